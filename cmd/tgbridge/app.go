package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/fx"

	"tgbridge/pkg/botapi"
	"tgbridge/pkg/bridge"
	"tgbridge/pkg/config"
	"tgbridge/pkg/events"
	"tgbridge/pkg/gateway"
	"tgbridge/pkg/logger"
	"tgbridge/pkg/login"
	"tgbridge/pkg/monitor"
	"tgbridge/pkg/resolver"
	"tgbridge/pkg/state"
	"tgbridge/pkg/tokenstore"
	"tgbridge/pkg/transport"
	"tgbridge/pkg/workflow"
)

// coreModules are shared by every command that talks to the web client.
func coreModules() []fx.Option {
	return []fx.Option{
		fx.Supply(config.Path(configPath)),
		config.Module,
		logger.Module,
		state.Module,
		tokenstore.Module,
		botapi.Module,
		login.Module,
		transport.Module,
		events.Module,
		resolver.Module,
		workflow.Module,
		bridge.Module,
	}
}

// serverModules adds the long-running surfaces to the core set.
func serverModules() []fx.Option {
	return append(coreModules(),
		monitor.Module,
		gateway.Module,
	)
}

// runOnce starts an app built from opts, runs fn and stops the app.
// Ctrl+C cancels the context handed to fn.
func runOnce(timeout time.Duration, fn func(ctx context.Context) error, opts ...fx.Option) error {
	ctx, cancel := signalContext()
	defer cancel()

	app := fx.New(append(opts, fx.NopLogger)...)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, startCancel := context.WithTimeout(ctx, 15*time.Second)
	defer startCancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("starting: %w", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		_ = app.Stop(stopCtx)
	}()

	runCtx, runCancel := context.WithTimeout(ctx, timeout)
	defer runCancel()
	return fn(runCtx)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Println("\nInterrupted, shutting down...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// waitReady blocks until the web client announced readiness.
func waitReady(ctx context.Context, tr *transport.Transport) error {
	ready := make(chan struct{}, 1)
	tr.OnReady(func(context.Context) {
		select {
		case ready <- struct{}{}:
		default:
		}
	})
	if tr.IsReady() {
		return nil
	}

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("web client not ready: %w", ctx.Err())
	}
}
