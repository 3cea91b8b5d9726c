// Package config provides the configuration model of the gateway and
// its loading.
//
// The configuration is a single YAML document with ${VAR} and
// ${VAR:-default} environment substitution. It holds the server,
// admin, metrics, tracing, logging, engine and redis settings, and the
// APIs with their flows. Policy configurations are kept as raw YAML and
// handed to the policy factory untouched.
//
// # Loading
//
//	cfg, err := config.LoadConfig("gateway.yaml")
//	if err != nil {
//	    return err
//	}
//	if err := config.ValidateConfig(cfg); err != nil {
//	    return err
//	}
//
// # File Watching
//
//	watcher, err := config.NewWatcher(path, func(cfg *config.GatewayConfig) {
//	    // redeploy
//	}, config.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if err := watcher.Start(ctx); err != nil {
//	    return err
//	}
package config
