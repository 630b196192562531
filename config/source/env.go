package source

import (
	"context"
	"os"
	"strings"

	"github.com/skekre98/modrig/config"
)

// DefaultEnvPrefix is used when EnvSource.Prefix is empty.
const DefaultEnvPrefix = "MODRIG_"

// EnvSource maps prefixed environment variables to nested keys by splitting
// on underscores and lowercasing:
//
//	MODRIG_SERVER_ADDR=:9090          -> {server: {addr: ":9090"}}
//	MODRIG_GLOBAL_STATUSDIR=/var/lib  -> {global: {statusdir: "/var/lib"}}
//
// Keys match camelCase config tags case-insensitively, so a variable
// never needs the original capitalisation. Values stay strings; the Binder
// converts them. When a leaf and a nested key collide, the first one seen
// wins.
type EnvSource struct {
	Prefix string
	// Environ defaults to os.Environ.
	Environ func() []string
}

func (e *EnvSource) Name() string { return "env" }

func (e *EnvSource) Load(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := e.Prefix
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	environ := e.Environ
	if environ == nil {
		environ = os.Environ
	}

	result := make(map[string]any)
	for _, kv := range environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		key = strings.ToLower(strings.TrimPrefix(key, prefix))
		setNestedValue(result, strings.Split(key, "_"), value)
	}
	return result, nil
}

func (e *EnvSource) Watch(context.Context, chan<- config.Event) error { return errNoWatch }

func setNestedValue(m map[string]any, segments []string, value string) {
	current := m
	segments = trimEmpty(segments)
	for i, segment := range segments {
		if i == len(segments)-1 {
			if _, exists := current[segment]; !exists {
				current[segment] = value
			}
			return
		}
		switch existing := current[segment].(type) {
		case map[string]any:
			current = existing
		case nil:
			nested := make(map[string]any)
			current[segment] = nested
			current = nested
		default:
			return
		}
	}
}

func trimEmpty(segments []string) []string {
	out := segments[:0:0]
	for _, s := range segments {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
