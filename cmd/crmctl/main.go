package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/matheus3301/crmsync/internal/api"
	"github.com/matheus3301/crmsync/internal/lock"
	"github.com/matheus3301/crmsync/internal/session"
	"github.com/spf13/cobra"
	grpcstatus "google.golang.org/grpc/status"
)

// Version info set via ldflags at build time.
var Version = "dev"

type globals struct {
	session    string
	socketPath string
	jsonOut    bool
	timeout    time.Duration
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:           "crmctl",
		Short:         "Control a running crmsyncd session",
		Long:          "crmctl talks to the crmsyncd daemon of a session over its Unix socket.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&g.session, "session", "", "session name (overrides config default)")
	cmd.PersistentFlags().StringVar(&g.socketPath, "socket", "", "daemon socket path (overrides the session default)")
	cmd.PersistentFlags().BoolVar(&g.jsonOut, "json", false, "output in JSON format")
	cmd.PersistentFlags().DurationVar(&g.timeout, "timeout", 10*time.Second, "request timeout")
	_ = cmd.PersistentFlags().MarkHidden("socket")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newStatusCmd(g))
	cmd.AddCommand(newChatsCmd(g))
	cmd.AddCommand(newRefreshCmd(g))
	cmd.AddCommand(newOpenCmd(g))
	cmd.AddCommand(newCloseCmd(g))
	cmd.AddCommand(newMessagesCmd(g))
	cmd.AddCommand(newSendCmd(g))
	cmd.AddCommand(newCallsCmd(g))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "crmctl %s\n", Version)
		},
	}
}

// connect resolves the session, checks that its daemon is alive and dials it.
func (g *globals) connect() (*api.Client, func(), error) {
	socketPath := g.socketPath
	if socketPath == "" {
		name, err := session.Resolve(g.session)
		if err != nil {
			return nil, nil, err
		}
		if _, held, err := lock.Probe(session.LockPath(name)); err == nil && !held {
			return nil, nil, fmt.Errorf("no daemon running for session %q (start crmsyncd --session %s)", name, name)
		}
		socketPath = session.SocketPath(name)
	}
	conn, err := api.Dial(socketPath)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot connect to daemon: %w", err)
	}
	return api.NewClient(conn), func() { _ = conn.Close() }, nil
}

// call runs fn against a connected client under the request timeout.
func (g *globals) call(fn func(ctx context.Context, c *api.Client) error) error {
	c, closeFn, err := g.connect()
	if err != nil {
		return err
	}
	defer closeFn()
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()
	return fn(ctx, c)
}

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		msg := err.Error()
		if st, ok := grpcstatus.FromError(err); ok {
			msg = fmt.Sprintf("%s (%s)", st.Message(), st.Code())
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "error: %s\n", msg)
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
