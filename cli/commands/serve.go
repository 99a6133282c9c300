package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/turtacn/guomen/backend"
	"github.com/turtacn/guomen/common/constants"
	"github.com/turtacn/guomen/common/log"
	"github.com/turtacn/guomen/config"
	"github.com/turtacn/guomen/observability"
	"github.com/turtacn/guomen/observability/health"
	"github.com/turtacn/guomen/proxy"
	"github.com/turtacn/guomen/security/audit"
)

// NewServeCmd creates the serve command.
func NewServeCmd(cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the proxy's user catalog service",
		Long: `Start the user catalog service: restore the persisted snapshot, load
grants from the backends, and keep refreshing on the configured interval
and on SIGHUP.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *cfgFile, cmd)
		},
	}

	cmd.Flags().String("host", "", "listen host (overrides config)")
	cmd.Flags().Int("port", 0, "listen port (overrides config)")
	cmd.Flags().String("snapshot", "", "user snapshot path (overrides config)")
	cmd.Flags().String("log-level", "", "log level (overrides config)")

	return cmd
}

func runServe(ctx context.Context, cfgFile string, cmd *cobra.Command) error {
	cfg, err := config.LoadWithFlags(cfgFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log.SetLevel(cfg.Logging.Level)
	log.SetFormat(cfg.Logging.Format)
	logger := log.Component("serve")
	logger.Infof("starting %s %s", constants.ProjectName, constants.Version)

	if len(cfg.Backends) == 0 {
		return fmt.Errorf("no backend servers configured")
	}

	// Connect the backends. The pools dial lazily on the first load.
	var backends []backend.Querier
	for _, bc := range cfg.Backends {
		server, err := backend.Connect(bc, cfg.Auth)
		if err != nil {
			return fmt.Errorf("failed to prepare backend %s:%d: %w", bc.Host, bc.Port, err)
		}
		defer server.Close()
		backends = append(backends, server)
	}

	var auditor *audit.Logger
	if cfg.Audit.Enabled {
		auditor, err = audit.NewLogger(audit.Config{
			FilePath: cfg.Audit.FilePath,
			Async:    cfg.Audit.Async,
		})
		if err != nil {
			return fmt.Errorf("failed to open audit log: %w", err)
		}
		defer auditor.Close()
	}

	listener, err := proxy.NewListener(cfg, backends, auditor)
	if err != nil {
		return err
	}
	defer listener.Close()

	// Serve from the persisted snapshot until the first backend load
	// completes.
	if count, err := listener.RestoreUsers(); err != nil {
		logger.WithError(err).Warnf("cannot restore user snapshot")
	} else if count > 0 {
		logger.Infof("serving %d restored user entries", count)
	}

	if _, err := listener.LoadUsers(ctx); err != nil {
		if listener.Snapshot() == nil {
			return fmt.Errorf("initial user load failed with no snapshot to fall back on: %w", err)
		}
		logger.WithError(err).Warnf("initial user load failed, serving restored snapshot")
	}

	checker := health.NewChecker()
	checker.SetVersion(constants.Version)
	checker.AddCheck("catalog", func(ctx context.Context) error {
		if listener.Snapshot() == nil {
			return fmt.Errorf("no user catalog loaded")
		}
		return nil
	})

	obs := observability.NewServer(cfg.Observability, checker)
	if err := obs.Start(); err != nil {
		return fmt.Errorf("failed to start observability server: %w", err)
	}
	defer obs.Stop(context.Background())

	listener.StartRefresh(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		logger.Infof("received %s, shutting down", sig)
	case <-ctx.Done():
	}

	return nil
}
