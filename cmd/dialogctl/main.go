// Command dialogctl is a command-line client for the dialog API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"OpenMCP-Dialog/sdk/go/dialog"
)

const defaultServer = "http://localhost:8080"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type options struct {
	server  string
	timeout time.Duration
}

func (o *options) client() (*dialog.Client, error) {
	return dialog.NewClient(o.server, nil)
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "dialogctl",
		Short:        "Talk to a dialogd server",
		SilenceUsage: true,
	}
	server := os.Getenv("DIALOG_SERVER")
	if server == "" {
		server = defaultServer
	}
	root.PersistentFlags().StringVar(&opts.server, "server", server, "dialog API base URL (env DIALOG_SERVER)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "overall request timeout")

	root.AddCommand(
		newChatCmd(opts),
		newHistoryCmd(opts),
		newTranscriptsCmd(opts),
		newSubmitCmd(opts),
		newTurnCmd(opts),
		newTurnsCmd(opts),
		newStatsCmd(opts),
	)
	return root
}

func withTimeout(cmd *cobra.Command, opts *options) (context.Context, context.CancelFunc) {
	if opts.timeout <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), opts.timeout)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newChatCmd(opts *options) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "chat SESSION MESSAGE...",
		Short: "Send one message and print the assistant reply",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd, opts)
			defer cancel()

			resp, err := client.Chat(ctx, args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			if raw {
				return printJSON(cmd, resp)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.AssistantResponse)
			if len(resp.State.PendingArgs) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "[%s: %s, waiting for %s]\n",
					resp.State.Status, resp.State.ActiveIntent, strings.Join(resp.State.PendingArgs, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "json", false, "print the full response as JSON")
	return cmd
}

func newHistoryCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "history SESSION",
		Short: "Print the messages and state of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd, opts)
			defer cancel()

			sess, err := client.Session(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, sess)
		},
	}
}

func newTranscriptsCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "transcripts SESSION",
		Short: "List archived turns of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd, opts)
			defer cancel()

			records, err := client.Transcripts(ctx, args[0], limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, records)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of records")
	return cmd
}

func newSubmitCmd(opts *options) *cobra.Command {
	var (
		id       string
		wait     bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "submit SESSION MESSAGE...",
		Short: "Queue a message for asynchronous processing",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd, opts)
			defer cancel()

			turn, err := client.SubmitTurn(ctx, dialog.TurnSubmission{
				ID:        id,
				SessionID: args[0],
				Message:   strings.Join(args[1:], " "),
			})
			if err != nil {
				return err
			}
			if wait && !turn.Done() {
				turn, err = client.WaitForTurn(ctx, turn.ID, interval)
				if err != nil {
					return err
				}
			}
			return printJSON(cmd, turn)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "idempotency key for the turn")
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the turn finishes")
	cmd.Flags().DurationVar(&interval, "interval", 500*time.Millisecond, "poll interval with --wait")
	return cmd
}

func newTurnCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "turn ID",
		Short: "Show an asynchronous turn",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd, opts)
			defer cancel()

			turn, err := client.GetTurn(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, turn)
		},
	}
}

func addListFlags(cmd *cobra.Command, filter *dialog.ListTurnsOptions) {
	cmd.Flags().StringVar(&filter.SessionID, "session", "", "filter by session id")
	cmd.Flags().StringSliceVar(&filter.Statuses, "status", nil, "filter by status (pending, running, succeeded, failed)")
	cmd.Flags().StringVar(&filter.Query, "query", "", "substring match on id, message, error or reply")
}

func newTurnsCmd(opts *options) *cobra.Command {
	var filter dialog.ListTurnsOptions
	cmd := &cobra.Command{
		Use:   "turns",
		Short: "List asynchronous turns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd, opts)
			defer cancel()

			turns, err := client.ListTurns(ctx, filter)
			if err != nil {
				return err
			}
			return printJSON(cmd, turns)
		},
	}
	addListFlags(cmd, &filter)
	cmd.Flags().IntVar(&filter.Limit, "limit", 20, "page size")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "page offset")
	return cmd
}

func newStatsCmd(opts *options) *cobra.Command {
	var filter dialog.ListTurnsOptions
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Aggregate asynchronous turn counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd, opts)
			defer cancel()

			stats, err := client.TurnStats(ctx, filter)
			if err != nil {
				return err
			}
			return printJSON(cmd, stats)
		},
	}
	addListFlags(cmd, &filter)
	return cmd
}
