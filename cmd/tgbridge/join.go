package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"tgbridge/pkg/bridge"
	"tgbridge/pkg/transport"
	"tgbridge/pkg/workflow"
)

var (
	joinTimeout time.Duration
	joinOutput  string
	joinInit    bool
)

var joinCmd = &cobra.Command{
	Use:   "join <channel-id>",
	Short: "Join a channel through the web client",
	Long: `Run the join workflow for a channel and navigate back to it.
Requires a logged-in web client.

Examples:
  tgbridge join @some_channel --init
  tgbridge join -- -1001234567890`,
	Args: cobra.ExactArgs(1),
	RunE: runJoin,
}

func init() {
	joinCmd.Flags().DurationVar(&joinTimeout, "timeout", 2*time.Minute, "overall timeout")
	joinCmd.Flags().BoolVar(&joinInit, "init", false, "initialize the channel session after joining")
	joinCmd.Flags().StringVarP(&joinOutput, "output", "o", "", "output format: json or yaml")
	rootCmd.AddCommand(joinCmd)
}

func runJoin(cmd *cobra.Command, args []string) error {
	channelID := args[0]

	var (
		b  *bridge.Bridge
		tr *transport.Transport
	)
	return runOnce(joinTimeout, func(ctx context.Context) error {
		if err := waitReady(ctx, tr); err != nil {
			return err
		}

		st := b.Join(ctx, channelID)
		if st.Phase == workflow.PhaseReady && joinInit {
			st = b.Initialize(ctx, channelID)
		}
		if err := printValue(joinOutput, st); err != nil {
			return err
		}
		if st.Phase != workflow.PhaseReady {
			return fmt.Errorf("join failed: %s", st.ErrorCode)
		}
		return nil
	}, append(coreModules(), fx.Populate(&b, &tr))...)
}
