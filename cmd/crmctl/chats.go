package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/matheus3301/crmsync/internal/api"
	"github.com/spf13/cobra"
)

func newChatsCmd(g *globals) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "List conversations, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(func(ctx context.Context, c *api.Client) error {
				resp, err := c.ListChats(ctx, limit)
				if err != nil {
					return err
				}
				if g.jsonOut {
					return outputJSON(cmd.OutOrStdout(), resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Chats) == 0 {
					fmt.Fprintln(out, "No chats.")
					return nil
				}
				for _, ch := range resp.Chats {
					fmt.Fprintln(out, formatChat(ch))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of chats to show (0 = all)")
	return cmd
}

func newRefreshCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the chat list and call history from the CRM now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(func(ctx context.Context, c *api.Client) error {
				chats, err := c.RefreshChats(ctx)
				if err != nil {
					return err
				}
				calls, err := c.RefreshCalls(ctx)
				if err != nil {
					return err
				}
				if g.jsonOut {
					return outputJSON(cmd.OutOrStdout(), map[string]any{"chats": chats, "calls": calls})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Refreshed: %d chats, %d new calls\n", chats.Total, calls.NewCalls)
				return nil
			})
		},
	}
}

func newOpenCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "open <chat-id>",
		Short: "Open a chat in the daemon, mark it viewed and print its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(func(ctx context.Context, c *api.Client) error {
				resp, err := c.OpenChat(ctx, args[0])
				if err != nil {
					return err
				}
				if g.jsonOut {
					return outputJSON(cmd.OutOrStdout(), resp)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, formatChat(resp.Chat))
				fmt.Fprintln(out, strings.Repeat("-", 40))
				for _, m := range resp.Messages {
					fmt.Fprintln(out, formatMessage(m))
				}
				return nil
			})
		},
	}
}

func newCloseCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "close",
		Short: "Close the open chat and stop polling it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(func(ctx context.Context, c *api.Client) error {
				return c.CloseChat(ctx)
			})
		},
	}
}

func newMessagesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "messages [chat-id]",
		Short: "Print the message window of the open chat",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID := ""
			if len(args) == 1 {
				chatID = args[0]
			}
			return g.call(func(ctx context.Context, c *api.Client) error {
				resp, err := c.ListMessages(ctx, chatID)
				if err != nil {
					return err
				}
				if g.jsonOut {
					return outputJSON(cmd.OutOrStdout(), resp)
				}
				out := cmd.OutOrStdout()
				if resp.ChatID == "" {
					fmt.Fprintln(out, "No chat is open. Use: crmctl open <chat-id>")
					return nil
				}
				for _, m := range resp.Messages {
					fmt.Fprintln(out, formatMessage(m))
				}
				return nil
			})
		},
	}
}

func newSendCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "send <chat-id> <text...>",
		Short: "Queue a text message for a chat",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args[1:], " ")
			return g.call(func(ctx context.Context, c *api.Client) error {
				resp, err := c.SendText(ctx, args[0], text)
				if err != nil {
					return err
				}
				if g.jsonOut {
					return outputJSON(cmd.OutOrStdout(), resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %s\n", resp.ClientMsgID)
				return nil
			})
		},
	}
}
