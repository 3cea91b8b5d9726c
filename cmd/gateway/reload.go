package main

import (
	"context"
	"reflect"
	"time"

	"github.com/vyrodovalexey/flowgate/internal/config"
	"github.com/vyrodovalexey/flowgate/internal/observability"
)

// startConfigWatcher starts the configuration watcher. Every valid
// configuration written to configPath is redeployed.
func startConfigWatcher(
	ctx context.Context,
	app *application,
	configPath string,
	logger observability.Logger,
) *config.Watcher {
	watcher, err := config.NewWatcher(configPath, func(newCfg *config.GatewayConfig) {
		logger.Info("configuration changed, redeploying")
		_ = app.reload(newCfg, logger)
	},
		config.WithLogger(logger),
		config.WithErrorCallback(func(error) {
			app.metrics.RecordConfigReload(false)
		}),
	)
	if err != nil {
		logger.Warn("failed to create config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(ctx); err != nil {
		logger.Warn("failed to start config watcher", observability.Error(err))
		_ = watcher.Stop()
		return nil
	}

	return watcher
}

// reload deploys the APIs of newCfg and swaps them in. In-flight
// requests finish on the deployments they started with. A configuration
// that fails to deploy leaves the served APIs untouched.
func (app *application) reload(newCfg *config.GatewayConfig, logger observability.Logger) error {
	app.reloadMu.Lock()
	defer app.reloadMu.Unlock()

	start := time.Now()

	table, err := app.deployer.DeployAll(newCfg)
	if err != nil {
		logger.Error("failed to deploy configuration, keeping current APIs",
			observability.Error(err),
		)
		app.metrics.RecordConfigReload(false)
		return err
	}

	app.handler.Swap(table)

	for _, section := range restartRequired(app.config, newCfg) {
		logger.Warn("configuration section changed but is not hot-reloaded; restart the gateway to apply it",
			observability.String("section", section),
		)
	}

	app.config = newCfg
	app.metrics.RecordConfigReload(true)

	logger.Info("configuration redeployed",
		observability.Int("apis", table.Len()),
		observability.Duration("duration", time.Since(start)),
	)
	return nil
}

// restartRequired lists the sections that differ between oldCfg and
// newCfg and only take effect at startup.
func restartRequired(oldCfg, newCfg *config.GatewayConfig) []string {
	if oldCfg == nil || newCfg == nil {
		return nil
	}

	sections := []struct {
		name     string
		old, new any
	}{
		{"server", oldCfg.Server, newCfg.Server},
		{"admin", oldCfg.Admin, newCfg.Admin},
		{"metrics", oldCfg.Metrics, newCfg.Metrics},
		{"tracing", oldCfg.Tracing, newCfg.Tracing},
		{"logging", oldCfg.Logging, newCfg.Logging},
		{"engine", oldCfg.Engine, newCfg.Engine},
		{"redis", oldCfg.Redis, newCfg.Redis},
	}

	var changed []string
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			changed = append(changed, s.name)
		}
	}
	return changed
}
