package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Wieedze/intuition-fee-proxy/internal/api"
	"github.com/Wieedze/intuition-fee-proxy/internal/config"
	"github.com/Wieedze/intuition-fee-proxy/internal/events"
	"github.com/Wieedze/intuition-fee-proxy/internal/ledger"
	"github.com/Wieedze/intuition-fee-proxy/internal/logging"
	"github.com/Wieedze/intuition-fee-proxy/internal/monitoring"
	"github.com/Wieedze/intuition-fee-proxy/internal/proxy"
	"github.com/Wieedze/intuition-fee-proxy/internal/vault"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the fee proxy service",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logs, err := logging.NewFactory(cfg.Logging)
	if err != nil {
		return err
	}
	defer logs.Sync()
	logger := logs.Root()

	l, err := ledger.Open(logs.Named("ledger"), cfg.Ledger)
	if err != nil {
		return err
	}
	defer l.Close()

	v, err := vault.NewInProc(logs.Named("vault"), l, vault.Config{
		Account:    cfg.VaultAccount(),
		AtomCost:   cfg.Vault.AtomCost.Int(),
		TripleCost: cfg.Vault.TripleCost.Int(),
	})
	if err != nil {
		return err
	}

	bus := events.NewBus(logs.Named("events"))
	defer bus.Close()

	metrics := monitoring.New(cfg.Metrics.Namespace)

	px, err := proxy.New(logs.Named("proxy"), bus, metrics, l, proxy.Params{
		Vault:         v,
		VaultAccount:  cfg.VaultAccount(),
		FeeRecipient:  cfg.FeeRecipient(),
		FixedFee:      cfg.Fees.FixedFee.Int(),
		PercentageFee: cfg.Fees.PercentageFee,
		InitialAdmins: cfg.AdminAddresses(),
		EscrowAccount: cfg.EscrowAccount(),
	})
	if err != nil {
		return err
	}

	server := api.NewServer(logs.Named("api"), cfg.Server, px, l, bus)

	errCh := make(chan error, 2)
	go func() {
		logger.Info("api server starting", zap.String("addr", cfg.Server.ListenAddr))
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
		go func() {
			logger.Info("metrics server starting", zap.String("addr", cfg.Metrics.ListenAddr))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
	}

	// Hot reload covers the log level only. Fee parameters belong to the
	// admin API once the service is up.
	watcher, err := config.NewWatcher(logs.Named("config"), cfgFile)
	if err != nil {
		logger.Warn("config watcher unavailable", zap.Error(err))
	} else {
		if err := watcher.Start(func(next *config.Config) {
			if err := logs.SetLevel(next.Logging.Level); err != nil {
				logger.Warn("ignoring invalid log level", zap.String("level", next.Logging.Level))
				return
			}
			metrics.ConfigUpdated()
			logger.Info("log level updated", zap.String("level", next.Logging.Level))
		}); err != nil {
			logger.Warn("config watcher failed to start", zap.Error(err))
		}
		defer watcher.Stop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if metricsServer != nil {
		_ = metricsServer.Shutdown(ctx)
	}
	return server.Shutdown(ctx)
}
