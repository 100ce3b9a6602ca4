package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"tgbridge/pkg/config"
	"tgbridge/pkg/logger"
)

const privilegeNote = `
Note: Managing system services requires administrator privileges.
Please run with sudo (Linux/macOS) or as Administrator (Windows).`

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge with its gateway",
	Long: `Run the tgbridge host: web client link, workflows, monitor and gateway.

It can run in foreground mode or be installed as a system service.

Examples:
  # Run in foreground (default)
  tgbridge serve

  # Install as system service (requires sudo/admin privileges)
  sudo tgbridge serve install

  # Control the service
  sudo tgbridge serve start
  sudo tgbridge serve stop
  sudo tgbridge serve restart
  tgbridge serve status

  # Uninstall the service
  sudo tgbridge serve uninstall`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Starting tgbridge in foreground mode...")
		fmt.Println("To install as a system service, use: tgbridge serve install")
		fmt.Println()
		runForeground()
	},
}

var serveRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run in foreground or as service",
	Long:  `Run the bridge. When installed as a service, this is called automatically.`,
	Run: func(cmd *cobra.Command, args []string) {
		isService := os.Getenv("INVOCATION_ID") != "" || // systemd
			os.Getenv("_") == "/bin/launchd" || // launchd
			os.Getenv("SERVICE_NAME") != "" // Windows service

		if !isService {
			runForeground()
			return
		}
		if err := RunService(); err != nil {
			fmt.Fprintf(os.Stderr, "Error running service: %v\n", err)
			os.Exit(1)
		}
	},
}

var serveInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install as system service",
	Long: `Install tgbridge as a system service (systemd, launchd or the
Windows Service Manager). The service starts automatically on boot.
Requires administrator/root privileges.`,
	Run: serviceAction("installing service", InstallService, true),
}

var serveUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Uninstall the system service",
	Run:   serviceAction("uninstalling service", UninstallService, true),
}

var serveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the system service",
	Run:   serviceAction("starting service", StartService, true),
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the system service",
	Run:   serviceAction("stopping service", StopService, true),
}

var serveRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the system service",
	Run:   serviceAction("restarting service", RestartService, true),
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the system service status",
	Run:   serviceAction("checking service status", StatusService, false),
}

func init() {
	serveCmd.AddCommand(serveRunCmd)
	serveCmd.AddCommand(serveInstallCmd)
	serveCmd.AddCommand(serveUninstallCmd)
	serveCmd.AddCommand(serveStartCmd)
	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveRestartCmd)
	serveCmd.AddCommand(serveStatusCmd)
}

func serviceAction(what string, fn func() error, privileged bool) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		if err := fn(); err != nil {
			fmt.Fprintf(os.Stderr, "Error %s: %v\n", what, err)
			if privileged {
				fmt.Fprintln(os.Stderr, privilegeNote)
			}
			os.Exit(1)
		}
	}
}

// runForeground runs the bridge until interrupted. fx.App.Run handles
// SIGINT and SIGTERM.
func runForeground() {
	opts := append(serverModules(),
		fx.Invoke(func(lc fx.Lifecycle, log *logger.Logger, cfg *config.Config) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					log.Info("tgbridge started",
						zap.String("mode", "foreground"),
						zap.String("link", cfg.WebClient.Link),
						zap.String("web_client", cfg.WebClient.URL),
						zap.Bool("gateway", cfg.Gateway.Enabled),
						zap.String("host", cfg.Gateway.Host),
						zap.Int("port", cfg.Gateway.Port))
					log.Info("Press Ctrl+C to stop")
					return nil
				},
			})
		}),
		fx.NopLogger,
	)

	app := fx.New(opts...)
	if err := app.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	app.Run()
}
