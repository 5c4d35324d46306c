package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/matheus3301/shiftsync/internal/client"
)

func init() {
	messagesCmd.Flags().Int("limit", 50, "maximum number of messages")
	messagesCmd.Flags().Int64("before", 0, "only messages created before this unix ms timestamp")

	membershipCmd.AddCommand(membershipSetCmd)
	roomCmd.AddCommand(roomRemoveMemberCmd)
	outboxCmd.AddCommand(outboxFailedCmd, outboxRetryCmd)

	rootCmd.AddCommand(sendCmd, messagesCmd, membershipCmd, roomCmd, outboxCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send <chat-room-id> <sender-id> <body...>",
	Short: "Write a message locally; it is uploaded on the next sync",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) error {
			m, err := c.SendMessage(ctx, args[0], args[1], strings.Join(args[2:], " "))
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(m)
			}
			fmt.Printf("%s (%s)\n", m.ID, m.SyncState)
			return nil
		})
	},
}

var messagesCmd = &cobra.Command{
	Use:   "messages <chat-room-id>",
	Short: "List a chat room's messages from the local store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		before, _ := cmd.Flags().GetInt64("before")
		return withClient(cmd, func(ctx context.Context, c *client.Client) error {
			msgs, err := c.ListMessages(ctx, args[0], before, limit)
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(msgs)
			}
			if len(msgs) == 0 {
				fmt.Println("No messages.")
				return nil
			}
			// Oldest first reads like a conversation.
			for i := len(msgs) - 1; i >= 0; i-- {
				m := msgs[i]
				fmt.Printf("%s  %-12s %-8s %s\n", m.CreatedTime().Format(time.DateTime), m.SenderID, m.SyncState, m.Body)
			}
			return nil
		})
	},
}

var membershipCmd = &cobra.Command{
	Use:   "membership",
	Short: "Change team memberships",
}

var membershipSetCmd = &cobra.Command{
	Use:   "set <user-id> <group-id> <active|inactive>",
	Short: "Set a user's membership status in a team group",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) error {
			if err := c.SetMembership(ctx, args[0], args[1], args[2]); err != nil {
				return err
			}
			fmt.Println("queued")
			return nil
		})
	},
}

var roomCmd = &cobra.Command{
	Use:   "room",
	Short: "Change chat room membership",
}

var roomRemoveMemberCmd = &cobra.Command{
	Use:   "remove-member <chat-room-id> <user-id>",
	Short: "Remove a member from a chat room",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) error {
			if err := c.RemoveRoomMember(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Println("queued")
			return nil
		})
	},
}

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Show pending mutations and local message states",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) error {
			v, err := c.OutboxStats(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(v)
			}
			fmt.Printf("Queued: %d\n", v.Queued)
			fmt.Printf("Failed: %d\n", v.Failed)
			fmt.Printf("Messages: %d local, %d pending, %d synced\n",
				v.Messages["local"], v.Messages["pending"], v.Messages["synced"])
			return nil
		})
	},
}

var outboxFailedCmd = &cobra.Command{
	Use:   "failed",
	Short: "List mutations that gave up",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) error {
			ms, err := c.FailedMutations(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(ms)
			}
			if len(ms) == 0 {
				fmt.Println("No failed mutations.")
				return nil
			}
			for _, m := range ms {
				fmt.Printf("#%-6d %-20s attempts=%d  %s\n", m.Seq, m.Kind, m.Attempts, m.LastError)
			}
			return nil
		})
	},
}

var outboxRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Give every failed mutation a fresh attempt budget",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) error {
			n, err := c.RetryFailed(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%d mutation(s) requeued\n", n)
			return nil
		})
	},
}
