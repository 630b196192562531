package module

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cast"
)

// MissingAction decides what happens when a config option with a default is
// absent from the configuration.
type MissingAction string

const (
	MissingNothing MissingAction = "nothing"
	MissingInfo    MissingAction = "info"
	MissingWarn    MissingAction = "warn"
	MissingError   MissingAction = "error"
)

// Constructor converts a raw value into the value a module works with.
type Constructor func(any) (any, error)

// ConfigOption is a value supplied by configuration before activation and
// kept for the lifetime of the instance. An option without a default is
// mandatory.
type ConfigOption struct {
	Name        string
	Default     any
	HasDefault  bool
	Missing     MissingAction
	Constructor Constructor
}

// Required declares a mandatory option.
func Required(name string) ConfigOption {
	return ConfigOption{Name: name, Missing: MissingError}
}

// Defaulted declares an option that falls back to def silently.
func Defaulted(name string, def any) ConfigOption {
	return ConfigOption{Name: name, Default: def, HasDefault: true, Missing: MissingNothing}
}

func (o ConfigOption) WithConstructor(c Constructor) ConfigOption {
	o.Constructor = c
	return o
}

func (o ConfigOption) OnMissing(a MissingAction) ConfigOption {
	o.Missing = a
	return o
}

func (o ConfigOption) resolve(raw map[string]any, logger *slog.Logger) (any, error) {
	v, present := raw[o.Name]
	if !present {
		if !o.HasDefault || o.Missing == MissingError {
			return nil, fmt.Errorf("%w: %s", ErrMissingOption, o.Name)
		}
		switch o.Missing {
		case MissingWarn:
			logger.Warn("config option missing, using default", "option", o.Name, "default", o.Default)
		case MissingInfo:
			logger.Info("config option missing, using default", "option", o.Name, "default", o.Default)
		}
		return o.Default, nil
	}
	if o.Constructor == nil {
		return v, nil
	}
	cv, err := o.Constructor(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOptionConstructor, o.Name, err)
	}
	return cv, nil
}

func resolveOptions(md *Metadata, raw map[string]any, logger *slog.Logger) (map[string]any, error) {
	if err := CheckOptionNames(md, raw); err != nil {
		return nil, err
	}
	out := make(map[string]any, len(md.options.names))
	for _, opt := range md.ConfigOptions() {
		v, err := opt.resolve(raw, logger)
		if err != nil {
			return nil, err
		}
		out[opt.Name] = v
	}
	return out, nil
}

// CheckOptionNames rejects configured option names the class does not declare.
func CheckOptionNames(md *Metadata, raw map[string]any) error {
	for name := range raw {
		if _, ok := md.ConfigOption(name); !ok {
			return fmt.Errorf("%w: %s on %s", ErrUnknownOption, name, md.Class())
		}
	}
	return nil
}

// Constructors for common option types.
var (
	AsInt      Constructor = func(v any) (any, error) { return cast.ToIntE(v) }
	AsFloat    Constructor = func(v any) (any, error) { return cast.ToFloat64E(v) }
	AsString   Constructor = func(v any) (any, error) { return cast.ToStringE(v) }
	AsBool     Constructor = func(v any) (any, error) { return cast.ToBoolE(v) }
	AsDuration Constructor = func(v any) (any, error) { return cast.ToDurationE(v) }
	AsStrings  Constructor = func(v any) (any, error) { return cast.ToStringSliceE(v) }
)

// AsFloats converts a list of numbers.
func AsFloats(v any) (any, error) {
	items, err := cast.ToSliceE(v)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(items))
	for i, item := range items {
		f, err := cast.ToFloat64E(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out[i] = f
	}
	return out, nil
}

// AtLeast wraps a numeric constructor with a lower bound check.
func AtLeast(min float64, c Constructor) Constructor {
	return func(v any) (any, error) {
		cv, err := c(v)
		if err != nil {
			return nil, err
		}
		var f float64
		switch x := cv.(type) {
		case time.Duration:
			f = float64(x)
		default:
			if f, err = cast.ToFloat64E(x); err != nil {
				return nil, err
			}
		}
		if f < min {
			return nil, fmt.Errorf("%v is below %v", cv, min)
		}
		return cv, nil
	}
}
