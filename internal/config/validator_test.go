package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/flowgate/internal/util"
)

func validConfig() *GatewayConfig {
	cfg := DefaultConfig()
	cfg.APIs = []APIConfig{
		{
			ID:          "petstore",
			ContextPath: "/store",
			Upstream:    "http://localhost:9999",
			Flows: []FlowConfig{
				{Name: "pets", Path: "/pets/:id", Methods: []string{"GET"}},
				{Path: "/orders", Operator: "equals"},
			},
		},
	}
	return cfg
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(cfg *GatewayConfig)
		field  string
	}{
		{name: "valid", mutate: func(*GatewayConfig) {}},
		{name: "missing address", mutate: func(c *GatewayConfig) { c.Server.Address = "" }, field: "server.address"},
		{name: "negative timeout", mutate: func(c *GatewayConfig) { c.Server.IdleTimeout = -1 }, field: "server.idleTimeout"},
		{name: "log level", mutate: func(c *GatewayConfig) { c.Logging.Level = "loud" }, field: "logging.level"},
		{name: "log format", mutate: func(c *GatewayConfig) { c.Logging.Format = "xml" }, field: "logging.format"},
		{name: "sampling rate", mutate: func(c *GatewayConfig) { c.Tracing.SamplingRate = 2 }, field: "tracing.samplingRate"},
		{name: "tracing endpoint", mutate: func(c *GatewayConfig) { c.Tracing.Enabled = true }, field: "tracing.otlpEndpoint"},
		{
			name:   "metrics path",
			mutate: func(c *GatewayConfig) { c.Metrics.Enabled = true; c.Metrics.Path = "metrics" },
			field:  "metrics.path",
		},
		{name: "strategy", mutate: func(c *GatewayConfig) { c.Engine.Strategy = "magic" }, field: "engine.strategy"},
		{name: "engine mode", mutate: func(c *GatewayConfig) { c.Engine.FlowMode = "ALL" }, field: "engine.flowMode"},
		{name: "cache size", mutate: func(c *GatewayConfig) { c.Engine.PatternCacheSize = -1 }, field: "engine.patternCacheSize"},
		{name: "api id", mutate: func(c *GatewayConfig) { c.APIs[0].ID = "" }, field: "apis[0].id"},
		{
			name: "duplicate api id",
			mutate: func(c *GatewayConfig) {
				dup := c.APIs[0]
				dup.ContextPath = "/other"
				c.APIs = append(c.APIs, dup)
			},
			field: "apis[1].id",
		},
		{
			name: "duplicate context path",
			mutate: func(c *GatewayConfig) {
				dup := c.APIs[0]
				dup.ID = "other"
				c.APIs = append(c.APIs, dup)
			},
			field: "apis[1].contextPath",
		},
		{name: "context path", mutate: func(c *GatewayConfig) { c.APIs[0].ContextPath = "store" }, field: "apis[0].contextPath"},
		{name: "upstream", mutate: func(c *GatewayConfig) { c.APIs[0].Upstream = "ftp://x" }, field: "apis[0].upstream"},
		{name: "api mode", mutate: func(c *GatewayConfig) { c.APIs[0].FlowMode = "ANY" }, field: "apis[0].flowMode"},
		{name: "api timeout", mutate: func(c *GatewayConfig) { c.APIs[0].Timeout = -1 }, field: "apis[0].timeout"},
		{name: "operator", mutate: func(c *GatewayConfig) { c.APIs[0].Flows[0].Operator = "LIKE" }, field: "apis[0].flows"},
		{name: "flow path", mutate: func(c *GatewayConfig) { c.APIs[0].Flows[0].Path = "pets" }, field: "apis[0].flows[0].path"},
		{name: "pattern syntax", mutate: func(c *GatewayConfig) { c.APIs[0].Flows[0].Path = "/pets/:" }, field: "apis[0].flows[0].path"},
		{name: "method", mutate: func(c *GatewayConfig) { c.APIs[0].Flows[0].Methods = []string{"FETCH"} }, field: "apis[0].flows[0].methods[0]"},
		{
			name:   "policy id",
			mutate: func(c *GatewayConfig) { c.APIs[0].Flows[0].Pre = []PolicyRefConfig{{}} },
			field:  "apis[0].flows[0].pre[0].policy",
		},
		{
			name:   "duplicate flow name",
			mutate: func(c *GatewayConfig) { c.APIs[0].Flows[1].Name = "pets" },
			field:  "apis[0].flows[1].name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)
			err := ValidateConfig(cfg)

			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, util.ErrInvalidInput))

			var verr *util.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
}

func TestValidateConfig_Nil(t *testing.T) {
	t.Parallel()

	assert.Error(t, ValidateConfig(nil))
}

func TestValidateConfig_CollectsAllErrors(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Server.Address = ""
	cfg.APIs[0].Upstream = ""

	var verr *util.ValidationError
	require.ErrorAs(t, ValidateConfig(cfg), &verr)
	assert.Len(t, verr.Fields, 2)
}
