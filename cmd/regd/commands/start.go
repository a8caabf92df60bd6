package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/qenex/regd/internal/epp"
	"github.com/qenex/regd/internal/logger"
	"github.com/qenex/regd/pkg/metrics"
	"github.com/qenex/regd/pkg/rdap"
	"github.com/qenex/regd/pkg/registry/store"
	"github.com/qenex/regd/pkg/whois"
)

const shutdownTimeout = 15 * time.Second

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the registry servers",
	Long: `Start the EPP server and, when enabled, the RDAP, WHOIS, and
metrics servers. The process runs in the foreground until it receives
SIGINT or SIGTERM, then drains connections and exits.

Examples:
  # Start with the default config location
  regd start

  # Start with a custom config file
  regd start --config /etc/regd/regd.yaml

  # Override settings through the environment
  REGD_LOGGING_LEVEL=DEBUG regd start`,
	RunE: runStart,
}

// stoppable is the shutdown surface shared by all regd servers.
type stoppable interface {
	Stop(ctx context.Context) error
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := initLogger(cfg); err != nil {
		return err
	}

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)

	st, err := store.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open registry store: %w", err)
	}
	defer func() { _ = st.Close() }()
	logger.Info("Registry store opened", "type", cfg.Database.Type)

	// One error channel shared by every server goroutine; the first
	// failure takes the whole process down.
	serverErr := make(chan error, 4)
	var servers []stoppable

	eppSrv := epp.NewServer(cfg, st)
	servers = append(servers, eppSrv)
	go func() { serverErr <- eppSrv.Start() }()

	if cfg.RDAP.Enabled {
		rdapSrv := rdap.NewServer(cfg, st)
		servers = append(servers, rdapSrv)
		go func() { serverErr <- rdapSrv.Start() }()
	} else {
		logger.Info("RDAP server disabled")
	}

	if cfg.WHOIS.Enabled {
		whoisSrv := whois.NewServer(cfg, st)
		servers = append(servers, whoisSrv)
		go func() { serverErr <- whoisSrv.Start() }()
	} else {
		logger.Info("WHOIS server disabled")
	}

	if cfg.Metrics.Enabled {
		metricsSrv := metrics.NewServer(cfg.Metrics.Addr())
		servers = append(servers, metricsSrv)
		go func() { serverErr <- metricsSrv.Start() }()
	} else {
		logger.Info("Metrics collection disabled")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
	case err := <-serverErr:
		signal.Stop(sigChan)
		if err != nil {
			stopAll(servers)
			return fmt.Errorf("server failed: %w", err)
		}
	}

	stopAll(servers)
	logger.Info("Server stopped gracefully")
	return nil
}

func stopAll(servers []stoppable) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, s := range servers {
		if err := s.Stop(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	}
}
