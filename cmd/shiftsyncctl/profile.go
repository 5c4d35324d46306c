package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matheus3301/shiftsync/internal/config"
	"github.com/matheus3301/shiftsync/internal/profile"
)

func init() {
	configInitCmd.Flags().String("base-url", "", "backend base URL")
	configInitCmd.Flags().String("token-env", "", "environment variable holding the bearer token")
	configInitCmd.Flags().Bool("force", false, "overwrite an existing config")

	profileCmd.AddCommand(profileUseCmd)
	configCmd.AddCommand(configInitCmd, configCheckCmd)
	rootCmd.AddCommand(profileCmd, configCmd)
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or select the active profile",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		name, err := activeProfile()
		if err != nil {
			return err
		}
		fmt.Printf("%s (%s)\n", name, profile.Dir(name))
		return nil
	},
}

var profileUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Make a profile the default for every command",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if err := profile.ValidateName(args[0]); err != nil {
			return err
		}
		g, err := config.LoadGlobal(profile.GlobalConfigPath())
		if err != nil {
			return err
		}
		g.ActiveProfile = args[0]
		if err := config.Save(profile.GlobalConfigPath(), g); err != nil {
			return err
		}
		fmt.Printf("active profile: %s\n", args[0])
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the profile's config.toml",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config.toml with defaults for the active profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		name, err := activeProfile()
		if err != nil {
			return err
		}
		path := profile.ConfigPath(name)
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}

		cfg := config.Default()
		cfg.Remote.BaseURL, _ = cmd.Flags().GetString("base-url")
		cfg.Remote.TokenEnv, _ = cmd.Flags().GetString("token-env")
		if err := config.Save(path, cfg); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", path)
		return nil
	},
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the active profile's config.toml",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		name, err := activeProfile()
		if err != nil {
			return err
		}
		cfg, err := config.Load(profile.ConfigPath(name))
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		fmt.Println("config ok")
		return nil
	},
}
