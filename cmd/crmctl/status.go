package main

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/crmsync/internal/api"
	"github.com/spf13/cobra"
)

func newStatusCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(func(ctx context.Context, c *api.Client) error {
				resp, err := c.GetStatus(ctx)
				if err != nil {
					return err
				}
				if g.jsonOut {
					return outputJSON(cmd.OutOrStdout(), resp)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Session:  %s\n", resp.Session)
				fmt.Fprintf(out, "Status:   %s\n", resp.Status)
				fmt.Fprintf(out, "Uptime:   %s\n", (time.Duration(resp.UptimeMs) * time.Millisecond).Round(time.Second))
				fmt.Fprintf(out, "Push:     %s\n", onOff(resp.PushConnected, "connected", "disconnected"))
				fmt.Fprintf(out, "Chats:    %d (%d unread, %d messages)\n", resp.ChatCount, resp.UnreadChats, resp.UnreadMessages)
				fmt.Fprintf(out, "Calls:    %d new\n", resp.NewCalls)
				if resp.OpenChatID != "" {
					fmt.Fprintf(out, "Open:     %s\n", resp.OpenChatID)
				}
				fmt.Fprintf(out, "Chats at: %s\n", formatMillis(resp.ChatsRefreshedAt))
				fmt.Fprintf(out, "Calls at: %s\n", formatMillis(resp.CallsRefreshedAt))
				return nil
			})
		},
	}
}
