// Package observability provides logging, metrics, and tracing
// functionality for the flow gateway.
//
// # Logging
//
// The Logger interface provides structured logging backed by zap:
//
//	logger, err := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("flow resolved",
//	    observability.String("api", "petstore"),
//	    observability.Int("flows", 2),
//	)
//
// # Metrics
//
// Gateway-level Prometheus metrics for proxied requests:
//
//	metrics := observability.NewMetrics("flowgate")
//	handler := metrics.Handler()
//
// # Tracing
//
// OpenTelemetry distributed tracing with OTLP gRPC export:
//
//	tracer, err := observability.NewTracer(observability.TracerConfig{
//	    ServiceName:  "flowgate",
//	    OTLPEndpoint: "localhost:4317",
//	    Enabled:      true,
//	})
package observability
