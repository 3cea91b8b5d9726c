package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vyrodovalexey/flowgate/internal/config"
	"github.com/vyrodovalexey/flowgate/internal/gateway"
	"github.com/vyrodovalexey/flowgate/internal/observability"
)

// runGateway starts every server, watches the configuration and blocks
// until ctx is done or a shutdown signal arrives. SIGHUP forces a
// configuration reload.
func runGateway(ctx context.Context, app *application, configPath string, logger observability.Logger) error {
	for _, s := range app.servers() {
		if err := s.Start(ctx); err != nil {
			stopServers(app, logger)
			return fmt.Errorf("failed to start server: %w", err)
		}
	}

	watcher := startConfigWatcher(ctx, app, configPath, logger)

	waitForShutdown(ctx, watcher, logger)
	shutdown(app, watcher, logger)
	return nil
}

// waitForShutdown blocks until ctx is done or SIGINT or SIGTERM arrives.
func waitForShutdown(ctx context.Context, watcher *config.Watcher, logger observability.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("context canceled, shutting down")
			return
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				if watcher == nil {
					continue
				}
				logger.Info("received SIGHUP, reloading configuration")
				if err := watcher.ForceReload(); err != nil {
					logger.Error("configuration reload failed", observability.Error(err))
				}
				continue
			}
			logger.Info("received shutdown signal", observability.String("signal", sig.String()))
			return
		}
	}
}

// shutdown stops the watcher, drains the servers, then releases the
// tracer and the redis client.
func shutdown(app *application, watcher *config.Watcher, logger observability.Logger) {
	if watcher != nil {
		_ = watcher.Stop()
	}

	stopServers(app, logger)

	ctx, cancel := context.WithTimeout(context.Background(),
		app.config.Server.ShutdownTimeout.OrDefault(config.DefaultShutdownTimeout))
	defer cancel()

	if err := app.tracer.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown tracer", observability.Error(err))
	}

	if app.redisClient != nil {
		if err := app.redisClient.Close(); err != nil {
			logger.Error("failed to close redis client", observability.Error(err))
		}
	}

	logger.Info("gateway stopped")
}

// stopServers stops every running server, the gateway first so that
// metrics stay scrapeable while it drains.
func stopServers(app *application, logger observability.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(),
		app.config.Server.ShutdownTimeout.OrDefault(config.DefaultShutdownTimeout))
	defer cancel()

	servers := app.servers()
	for i := len(servers) - 1; i >= 0; i-- {
		s := servers[i]
		if s.State() != gateway.StateRunning {
			continue
		}
		if err := s.Stop(ctx); err != nil {
			logger.Error("failed to stop server gracefully", observability.Error(err))
		}
	}
}
