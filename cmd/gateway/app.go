package main

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/flowgate/internal/admin"
	"github.com/vyrodovalexey/flowgate/internal/config"
	"github.com/vyrodovalexey/flowgate/internal/flow"
	"github.com/vyrodovalexey/flowgate/internal/gateway"
	"github.com/vyrodovalexey/flowgate/internal/health"
	policymetrics "github.com/vyrodovalexey/flowgate/internal/metrics/policy"
	upstreammetrics "github.com/vyrodovalexey/flowgate/internal/metrics/upstream"
	"github.com/vyrodovalexey/flowgate/internal/observability"
	"github.com/vyrodovalexey/flowgate/internal/policies"
	"github.com/vyrodovalexey/flowgate/internal/policy"
	"github.com/vyrodovalexey/flowgate/internal/router"
)

// application holds all application components.
type application struct {
	config        *config.GatewayConfig
	registry      *policy.Registry
	deployer      *gateway.Deployer
	handler       *gateway.Handler
	server        *gateway.Server
	adminServer   *gateway.Server
	metricsServer *gateway.Server
	metrics       *observability.Metrics
	tracer        *observability.Tracer
	health        *health.Checker
	redisClient   *redis.Client
	startTime     time.Time

	reloadMu sync.Mutex
}

// newApplication wires every component for cfg and deploys its APIs.
// Nothing is started.
func newApplication(cfg *config.GatewayConfig, logger observability.Logger) (*application, error) {
	app := &application{
		config:    cfg,
		metrics:   observability.NewMetrics("flowgate"),
		startTime: time.Now(),
	}

	policyMetrics := policymetrics.GetPolicyMetrics()
	policyMetrics.MustRegister(app.metrics.Registry())
	upstreamMetrics := upstreammetrics.GetUpstreamMetrics()
	upstreamMetrics.MustRegister(app.metrics.Registry())
	health.GetHealthMetrics().MustRegister(app.metrics.Registry())

	tracer, err := initTracer(cfg.Tracing)
	if err != nil {
		return nil, err
	}
	app.tracer = tracer

	strategy, err := policy.ParseStrategy(cfg.Engine.Strategy)
	if err != nil {
		return nil, err
	}
	mode, err := flow.ParseMode(cfg.Engine.FlowMode)
	if err != nil {
		return nil, err
	}

	pluginOpts := []policies.Option{
		policies.WithMetrics(policyMetrics),
		policies.WithLogger(logger),
	}
	if cfg.Redis.Enabled() {
		app.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pluginOpts = append(pluginOpts, policies.WithRedis(app.redisClient, cfg.Redis.Prefix))
		logger.Info("redis store enabled", observability.String("address", cfg.Redis.Address))
	}

	app.registry = policy.NewRegistry(
		policy.WithStrategy(strategy),
		policy.WithRegistryLogger(logger),
	)
	if err := policies.Register(app.registry, pluginOpts...); err != nil {
		return nil, fmt.Errorf("failed to register policies: %w", err)
	}

	factory := policy.NewFactory(app.registry,
		policy.WithFactoryLogger(logger),
		policy.WithSkipRecorder(policyMetrics),
	)
	app.deployer, err = gateway.NewDeployer(factory,
		gateway.WithDeployerLogger(logger),
		gateway.WithPatternCache(router.NewPatternCache(cfg.Engine.PatternCacheSize)),
		gateway.WithDefaultMode(mode),
	)
	if err != nil {
		return nil, err
	}

	table, err := app.deployer.DeployAll(cfg)
	if err != nil {
		return nil, err
	}

	app.handler, err = gateway.NewHandler(table,
		gateway.WithLogger(logger),
		gateway.WithReporter(policyMetrics),
		gateway.WithMetrics(app.metrics),
		gateway.WithUpstreamMetrics(upstreamMetrics),
		gateway.WithRequestTimeout(cfg.Server.RequestTimeout.Duration()),
	)
	if err != nil {
		return nil, err
	}

	app.server = gateway.NewServer(cfg.Server, buildMiddlewareChain(app.handler, app.metrics, app.tracer),
		gateway.WithServerLogger(logger),
		gateway.WithServerName("gateway"),
	)

	if cfg.Admin.Enabled {
		api := admin.New(app.handler, app.registry,
			admin.WithLogger(logger),
			admin.WithStartTime(app.startTime),
		)
		app.adminServer = gateway.NewServer(sideServerConfig(cfg.Admin.Address, cfg.Server), api.Handler(),
			gateway.WithServerLogger(logger),
			gateway.WithServerName("admin"),
		)
	}

	app.health = health.NewChecker(version)
	app.health.RegisterCheck("apis", false, health.DeploymentsCheck(func() int {
		return app.handler.Table().Len()
	}))
	if app.redisClient != nil {
		app.health.RegisterCheck("redis", false, health.RedisCheck(app.redisClient))
	}

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, app.metrics.Handler())
		app.health.Register(mux)
		app.metricsServer = gateway.NewServer(sideServerConfig(cfg.Metrics.Address, cfg.Server), mux,
			gateway.WithServerLogger(logger),
			gateway.WithServerName("metrics"),
		)
	}

	return app, nil
}

// initTracer initializes the tracer.
func initTracer(cfg config.TracingConfig) (*observability.Tracer, error) {
	return observability.NewTracer(observability.TracerConfig{
		ServiceName:  cfg.ServiceName,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: cfg.SamplingRate,
		Enabled:      cfg.Enabled,
	})
}

// buildMiddlewareChain wraps the gateway handler with tracing and
// request metrics.
func buildMiddlewareChain(
	handler http.Handler,
	metrics *observability.Metrics,
	tracer *observability.Tracer,
) http.Handler {
	h := observability.MetricsMiddleware(metrics)(handler)
	h = observability.TracingMiddleware(tracer)(h)
	return h
}

// sideServerConfig returns the listener configuration of the admin and
// metrics servers: the gateway timeouts on another address.
func sideServerConfig(address string, base config.ServerConfig) config.ServerConfig {
	return config.ServerConfig{
		Address:         address,
		ReadTimeout:     base.ReadTimeout,
		WriteTimeout:    base.WriteTimeout,
		IdleTimeout:     base.IdleTimeout,
		ShutdownTimeout: base.ShutdownTimeout,
	}
}

// servers returns the configured servers in start order.
func (app *application) servers() []*gateway.Server {
	out := make([]*gateway.Server, 0, 3)
	for _, s := range []*gateway.Server{app.metricsServer, app.adminServer, app.server} {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}
