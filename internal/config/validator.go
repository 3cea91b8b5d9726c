package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vyrodovalexey/flowgate/internal/flow"
	"github.com/vyrodovalexey/flowgate/internal/policy"
	"github.com/vyrodovalexey/flowgate/internal/router"
	"github.com/vyrodovalexey/flowgate/internal/util"
)

// Validator validates gateway configuration and collects every problem
// as a field error.
type Validator struct {
	errs *util.ValidationError
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateConfig validates a gateway configuration.
func ValidateConfig(config *GatewayConfig) error {
	return NewValidator().Validate(config)
}

// Validate validates the configuration. It returns a
// *util.ValidationError listing every invalid field, or nil.
func (v *Validator) Validate(config *GatewayConfig) error {
	v.errs = util.NewValidationError("invalid gateway configuration")

	if config == nil {
		v.addError("", "configuration is nil")
		return v.errs
	}

	v.validateServer(&config.Server)
	v.validateObservability(config)
	v.validateEngine(&config.Engine)
	v.validateAPIs(config.APIs)

	return v.errs.OrNil()
}

func (v *Validator) addError(path, message string) {
	v.errs.AddField(path, message)
}

func (v *Validator) validateServer(s *ServerConfig) {
	if s.Address == "" {
		v.addError("server.address", "address is required")
	}
	durations := map[string]Duration{
		"server.readTimeout":     s.ReadTimeout,
		"server.writeTimeout":    s.WriteTimeout,
		"server.idleTimeout":     s.IdleTimeout,
		"server.requestTimeout":  s.RequestTimeout,
		"server.shutdownTimeout": s.ShutdownTimeout,
	}
	for path, d := range durations {
		if d < 0 {
			v.addError(path, "must not be negative")
		}
	}
}

func (v *Validator) validateObservability(config *GatewayConfig) {
	switch strings.ToLower(config.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		v.addError("logging.level", fmt.Sprintf("unknown level %q", config.Logging.Level))
	}

	switch config.Logging.Format {
	case "", "json", "console":
	default:
		v.addError("logging.format", "format must be json or console")
	}

	if config.Tracing.SamplingRate < 0 || config.Tracing.SamplingRate > 1 {
		v.addError("tracing.samplingRate", "must be between 0 and 1")
	}
	if config.Tracing.Enabled && config.Tracing.OTLPEndpoint == "" {
		v.addError("tracing.otlpEndpoint", "endpoint is required when tracing is enabled")
	}

	if config.Metrics.Enabled && !strings.HasPrefix(config.Metrics.Path, "/") {
		v.addError("metrics.path", "must start with '/'")
	}
}

func (v *Validator) validateEngine(e *EngineConfig) {
	if _, err := policy.ParseStrategy(e.Strategy); err != nil {
		v.addError("engine.strategy", err.Error())
	}
	if _, err := flow.ParseMode(e.FlowMode); err != nil {
		v.addError("engine.flowMode", err.Error())
	}
	if e.PatternCacheSize < 0 {
		v.addError("engine.patternCacheSize", "must not be negative")
	}
}

func (v *Validator) validateAPIs(apis []APIConfig) {
	ids := make(map[string]bool, len(apis))
	paths := make(map[string]string, len(apis))

	for i := range apis {
		api := &apis[i]
		path := fmt.Sprintf("apis[%d]", i)

		switch {
		case api.ID == "":
			v.addError(path+".id", "id is required")
		case ids[api.ID]:
			v.addError(path+".id", fmt.Sprintf("duplicate api id: %s", api.ID))
		default:
			ids[api.ID] = true
		}

		if err := util.ValidateContextPath(api.ContextPath); err != nil {
			v.addError(path+".contextPath", err.Error())
		} else if other, exists := paths[api.ContextPath]; exists {
			v.addError(path+".contextPath", fmt.Sprintf("context path already used by api %s", other))
		} else {
			paths[api.ContextPath] = api.ID
		}

		if err := util.ValidateURL(api.Upstream); err != nil {
			v.addError(path+".upstream", err.Error())
		}

		if _, err := flow.ParseMode(api.FlowMode); err != nil {
			v.addError(path+".flowMode", err.Error())
		}

		if api.Timeout < 0 {
			v.addError(path+".timeout", "must not be negative")
		}

		v.validateFlows(api, path)
	}
}

func (v *Validator) validateFlows(api *APIConfig, path string) {
	flows, err := api.ToFlows()
	if err != nil {
		v.addError(path+".flows", err.Error())
		return
	}

	seen := make(map[string]bool, len(flows))
	for i, f := range flows {
		fpath := fmt.Sprintf("%s.flows[%d]", path, i)

		if seen[f.ID] {
			v.addError(fpath+".name", fmt.Sprintf("duplicate flow id %q", f.ID))
		}
		seen[f.ID] = true

		if err := flow.Validate(f); err != nil {
			var verr *util.ValidationError
			if errors.As(err, &verr) {
				for field, msg := range verr.Fields {
					v.addError(fpath+"."+field, msg)
				}
			} else {
				v.addError(fpath, err.Error())
			}
			continue
		}

		if _, err := router.ParsePattern(f.PathOperator.Pattern); err != nil {
			v.addError(fpath+".path", err.Error())
		}
	}
}
