package config

import "time"

// ApplyDefaults fills unset values of a loaded Root.
func ApplyDefaults(cfg *Root) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Actuator.BasePath == "" {
		cfg.Actuator.BasePath = "/actuator"
	}
	if cfg.Observability.Metrics.Path == "" {
		cfg.Observability.Metrics.Path = "/metrics"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Global.StatusDir == "" {
		cfg.Global.StatusDir = "appdata"
	}
	if cfg.Global.Remote.BasePath == "" {
		cfg.Global.Remote.BasePath = "/rpc"
	}
	if cfg.Global.Remote.CallTimeout == 0 {
		cfg.Global.Remote.CallTimeout = 10 * time.Second
	}
}
