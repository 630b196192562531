package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// Binder decodes nested maps into structs tagged with `config` and then
// validates them with `validate` tags.
//
// Decoding is weakly typed: "8080" binds to an int, "5s" to a
// time.Duration, "a,b" to a []string, and any encoding.TextUnmarshaler
// field is decoded from its text form.
//
//	type ServerConfig struct {
//	    Addr    string        `config:"addr" validate:"required"`
//	    Timeout time.Duration `config:"timeout"`
//	}
type Binder struct {
	validator *validator.Validate
	strict    bool
}

// BindError reports the stage ("decode" or "validate") that failed.
type BindError struct {
	Stage string
	Err   error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("config %s error: %v", e.Stage, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

type BinderOption func(*Binder)

// Strict makes keys without a matching struct field a decode error.
func Strict() BinderOption {
	return func(b *Binder) { b.strict = true }
}

func NewBinder(opts ...BinderOption) *Binder {
	b := &Binder{validator: validator.New()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Bind decodes source into target, which must be a pointer to a struct, and
// validates the result. target may be partially filled when validation
// fails.
func (b *Binder) Bind(source map[string]any, target any) error {
	if err := b.decode(source, target); err != nil {
		return &BindError{Stage: "decode", Err: err}
	}
	if err := b.validator.Struct(target); err != nil {
		return &BindError{Stage: "validate", Err: err}
	}
	return nil
}

func (b *Binder) decode(source map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		ErrorUnused:      b.strict,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.TextUnmarshallerHookFunc(),
		),
		TagName: "config",
	})
	if err != nil {
		return err
	}
	return decoder.Decode(source)
}
