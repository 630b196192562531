package config

import "time"

type AppInfo struct {
	Name    string `config:"name" validate:"required"`
	Version string `config:"version" validate:"required"`
}

type MetricsConfig struct {
	Enabled bool   `config:"enabled"`
	Path    string `config:"path"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `config:"metrics"`
}

type ActuatorConfig struct {
	BasePath string `config:"basePath"`
}

type ServerConfig struct {
	Addr         string        `config:"addr" validate:"required"`
	ReadTimeout  time.Duration `config:"readTimeout"`
	WriteTimeout time.Duration `config:"writeTimeout"`
	IdleTimeout  time.Duration `config:"idleTimeout"`
}

type LoggingConfig struct {
	Level  string `config:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `config:"format" validate:"omitempty,oneof=text json"`
}

// RemoteConfig controls the remote module service.
type RemoteConfig struct {
	Enabled     bool          `config:"enabled"`
	BasePath    string        `config:"basePath"`
	CallTimeout time.Duration `config:"callTimeout"`
}

// GlobalConfig holds runtime-wide module settings.
type GlobalConfig struct {
	StartupModules []string `config:"startupModules"`
	StatusDir      string   `config:"statusDir"`
	// ForceRemoteCallsByValue makes the remote service hand out snapshots
	// instead of live references.
	ForceRemoteCallsByValue bool         `config:"forceRemoteCallsByValue"`
	Remote                  RemoteConfig `config:"remote"`
}

// ModuleConfig is the configuration record of one module: its class, the
// targets of its connectors, its config option values and whether it may be
// shared remotely.
type ModuleConfig struct {
	Module  string            `config:"module" validate:"required"`
	Connect map[string]string `config:"connect"`
	Options map[string]any    `config:"options"`
	Remote  bool              `config:"remote"`
}

// TaskConfig schedules a registered task. Schedule is a five-field cron
// expression or a descriptor such as @every 1m.
type TaskConfig struct {
	Schedule string         `config:"schedule" validate:"required"`
	Args     map[string]any `config:"args"`
}

type Root struct {
	App           AppInfo             `config:"app"`
	Server        ServerConfig        `config:"server"`
	Logging       LoggingConfig       `config:"logging"`
	Observability ObservabilityConfig `config:"observability"`
	Actuator      ActuatorConfig      `config:"actuator"`
	Global        GlobalConfig        `config:"global"`

	GUI      map[string]ModuleConfig `config:"gui" validate:"dive"`
	Logic    map[string]ModuleConfig `config:"logic" validate:"dive"`
	Hardware map[string]ModuleConfig `config:"hardware" validate:"dive"`

	Tasks map[string]TaskConfig `config:"tasks" validate:"dive"`
}

// Modules returns the module records of one base section.
func (r *Root) Modules(base string) map[string]ModuleConfig {
	switch base {
	case "gui":
		return r.GUI
	case "logic":
		return r.Logic
	case "hardware":
		return r.Hardware
	}
	return nil
}
