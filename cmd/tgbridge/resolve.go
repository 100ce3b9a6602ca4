package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"tgbridge/pkg/resolver"
	"tgbridge/pkg/transport"
)

var (
	resolvePreview bool
	resolveFull    bool
	resolveWait    time.Duration
	resolveOutput  string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <channel-id>",
	Short: "Resolve channel metadata",
	Long: `Resolve a channel through the Bot API, falling back to the web client.

Examples:
  tgbridge resolve @durov --preview
  tgbridge resolve --full -o yaml -- -1001234567890

Numeric channel ids start with "-" and must follow "--".`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().BoolVar(&resolvePreview, "preview", false, "resolve as a channel preview")
	resolveCmd.Flags().BoolVar(&resolveFull, "full", false, "fetch full channel info")
	resolveCmd.Flags().DurationVar(&resolveWait, "wait", 20*time.Second, "how long to wait for the web client")
	resolveCmd.Flags().StringVarP(&resolveOutput, "output", "o", "", "output format: json or yaml")
	resolveCmd.MarkFlagsMutuallyExclusive("preview", "full")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	channelID := args[0]

	var (
		engine *resolver.Engine
		tr     *transport.Transport
	)
	return runOnce(resolveWait+time.Minute, func(ctx context.Context) error {
		waitCtx, cancel := context.WithTimeout(ctx, resolveWait)
		err := waitReady(waitCtx, tr)
		cancel()
		if err != nil {
			// The Bot API path still works without the page.
			fmt.Printf("Warning: %v\n", err)
		}

		var res resolver.Result
		switch {
		case resolvePreview:
			res = engine.Preview(ctx, channelID)
		case resolveFull:
			res = engine.FullInfo(ctx, channelID)
		default:
			res = engine.ResolveChannel(ctx, channelID)
		}
		if err := printValue(resolveOutput, res); err != nil {
			return err
		}
		if !res.Success {
			return fmt.Errorf("resolve failed: %s", res.ErrorCode)
		}
		return nil
	}, append(coreModules(), fx.Populate(&engine, &tr))...)
}
