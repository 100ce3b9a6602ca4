package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kardianos/service"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"tgbridge/pkg/config"
	"tgbridge/pkg/logger"
)

// BridgeService implements service.Interface for the bridge server.
type BridgeService struct {
	app    *fx.App
	logger service.Logger
}

// NewBridgeService creates a new bridge service.
func NewBridgeService() *BridgeService {
	return &BridgeService{}
}

// Start implements service.Interface.Start
func (s *BridgeService) Start(svc service.Service) error {
	if s.logger != nil {
		s.logger.Info("Starting tgbridge service")
	}

	go s.run()

	return nil
}

// Stop implements service.Interface.Stop
func (s *BridgeService) Stop(svc service.Service) error {
	if s.logger != nil {
		s.logger.Info("Stopping tgbridge service")
	}

	if s.app != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.app.Stop(ctx); err != nil {
			if s.logger != nil {
				s.logger.Errorf("Error stopping service: %v", err)
			}
			return err
		}
	}

	return nil
}

func (s *BridgeService) run() {
	opts := append(serverModules(),
		fx.Invoke(func(lc fx.Lifecycle, log *logger.Logger) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					log.Info("Bridge service started", zap.String("mode", "daemon"))
					return nil
				},
				OnStop: func(ctx context.Context) error {
					log.Info("Bridge service stopped")
					return nil
				},
			})
		}),
		fx.NopLogger,
	)
	s.app = fx.New(opts...)

	s.app.Run()
}

// ServiceConfig returns the service configuration. The active config file
// is passed through so the service loads the same one.
func ServiceConfig() *service.Config {
	args := []string{"serve", "run"}

	path := strings.TrimSpace(configPath)
	if path == "" {
		path = strings.TrimSpace(os.Getenv(config.ConfigPathEnv))
	}
	if path != "" {
		args = append([]string{"-c", path}, args...)
	}

	return &service.Config{
		Name:        "tgbridge",
		DisplayName: "tgbridge",
		Description: "Host bridge for an embedded Telegram web client",
		Arguments:   args,
	}
}

func newService() (service.Service, *BridgeService, error) {
	prg := NewBridgeService()
	s, err := service.New(prg, ServiceConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("creating service: %w", err)
	}
	return s, prg, nil
}

// InstallService installs the bridge as a system service.
func InstallService() error {
	s, prg, err := newService()
	if err != nil {
		return err
	}

	logger, err := s.Logger(nil)
	if err != nil {
		return fmt.Errorf("creating service logger: %w", err)
	}
	prg.logger = logger

	if err := s.Install(); err != nil {
		return fmt.Errorf("installing service: %w", err)
	}

	fmt.Println("Service installed successfully!")
	fmt.Println("Use 'tgbridge serve start' to start the service")
	return nil
}

// UninstallService uninstalls the bridge service.
func UninstallService() error {
	s, _, err := newService()
	if err != nil {
		return err
	}

	if err := s.Uninstall(); err != nil {
		return fmt.Errorf("uninstalling service: %w", err)
	}

	fmt.Println("Service uninstalled successfully!")
	return nil
}

// StartService starts the bridge service.
func StartService() error {
	s, _, err := newService()
	if err != nil {
		return err
	}

	if err := s.Start(); err != nil {
		return fmt.Errorf("starting service: %w", err)
	}

	fmt.Println("Service started successfully!")
	return nil
}

// StopService stops the bridge service.
func StopService() error {
	s, _, err := newService()
	if err != nil {
		return err
	}

	if err := s.Stop(); err != nil {
		return fmt.Errorf("stopping service: %w", err)
	}

	fmt.Println("Service stopped successfully!")
	return nil
}

// RestartService restarts the bridge service.
func RestartService() error {
	s, _, err := newService()
	if err != nil {
		return err
	}

	if err := s.Restart(); err != nil {
		return fmt.Errorf("restarting service: %w", err)
	}

	fmt.Println("Service restarted successfully!")
	return nil
}

// StatusService prints the status of the bridge service.
func StatusService() error {
	s, _, err := newService()
	if err != nil {
		return err
	}

	status, err := s.Status()
	if err != nil {
		return fmt.Errorf("getting service status: %w", err)
	}

	statusStr := "Unknown"
	switch status {
	case service.StatusRunning:
		statusStr = "Running"
	case service.StatusStopped:
		statusStr = "Stopped"
	}

	fmt.Printf("Service Status: %s\n", statusStr)
	return nil
}

// RunService runs the bridge under the service manager.
func RunService() error {
	s, prg, err := newService()
	if err != nil {
		return err
	}

	logger, err := s.Logger(nil)
	if err != nil {
		return fmt.Errorf("creating service logger: %w", err)
	}
	prg.logger = logger

	if err := s.Run(); err != nil {
		logger.Error(err)
		return err
	}

	return nil
}
