package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/matheus3301/shiftsync/internal/client"
	"github.com/matheus3301/shiftsync/internal/profile"
	"github.com/matheus3301/shiftsync/internal/status"
)

func init() {
	rootCmd.AddCommand(statusCmd, syncCmd, onlineCmd, watchCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity, sync state and the last sync result",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) error {
			snap, err := c.Status(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(snap)
			}
			printSnapshot(snap)
			return nil
		})
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a sync cycle now, or join the one in progress",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) error {
			res, err := c.SyncData(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(res)
			}
			printResult(res)
			if !res.Success {
				return fmt.Errorf("sync failed: %s", res.Error)
			}
			return nil
		})
	},
}

var onlineCmd = &cobra.Command{
	Use:   "online",
	Short: "Probe the backend and report whether it is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) error {
			online, err := c.CheckOnlineStatus(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(map[string]bool{"isOnline": online})
			}
			if online {
				fmt.Println("online")
			} else {
				fmt.Println("offline")
			}
			return nil
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print every status change until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		name, err := activeProfile()
		if err != nil {
			return err
		}
		c, err := client.New(profile.SocketPath(name))
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		return c.WatchStatus(cmd.Context(), func(snap status.Snapshot) {
			if jsonFlag {
				_ = outputJSON(snap)
				return
			}
			fmt.Printf("%s  online=%v syncing=%v state=%s\n",
				time.Now().Format(time.TimeOnly), snap.Online, snap.Syncing, snap.State)
		})
	},
}

func printSnapshot(snap status.Snapshot) {
	fmt.Printf("Online:  %v\n", snap.Online)
	fmt.Printf("Syncing: %v\n", snap.Syncing)
	fmt.Printf("State:   %s\n", snap.State)
	if snap.LastResult == nil {
		fmt.Println("Last sync: never")
		return
	}
	fmt.Println("Last sync:")
	printResult(*snap.LastResult)
}

func printResult(r status.Result) {
	outcome := "ok"
	if !r.Success {
		outcome = "failed: " + r.Error
	}
	fmt.Printf("  Result:     %s\n", outcome)
	if !r.FinishedAt.IsZero() {
		fmt.Printf("  Finished:   %s (%s)\n", r.FinishedAt.Local().Format(time.DateTime), r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	fmt.Printf("  Messages:   %d up, %d down\n", r.MessagesUploaded, r.MessagesDownloaded)
	fmt.Printf("  Teams:      %d up, %d down\n", r.TeamsUploaded, r.TeamsDownloaded)
	fmt.Printf("  Chat rooms: %d down\n", r.ChatRoomsDownloaded)
	fmt.Printf("  Outbox:     %d pending, %d failed\n", r.Pending, r.Failed)
}
