package source

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/skekre98/modrig/config"
)

// CLISource reads dotted long flags as nested configuration:
//
//	--server.addr=:9090 --global.statusDir /var/lib/modrig
//	  -> {server: {addr: ":9090"}, global: {statusDir: "/var/lib/modrig"}}
//
// Flags without a dot belong to the command line itself and are ignored, as
// are positional arguments and empty values. Single-dash long flags are
// accepted.
type CLISource struct {
	// Args defaults to os.Args[1:].
	Args []string
}

func (c *CLISource) Name() string { return "cli" }

func (c *CLISource) Load(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	args := c.Args
	if args == nil {
		args = os.Args[1:]
	}
	return parseFlags(args), nil
}

func (c *CLISource) Watch(context.Context, chan<- config.Event) error { return errNoWatch }

func parseFlags(raw []string) map[string]any {
	fs := pflag.NewFlagSet("config", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.ParseErrorsWhitelist.UnknownFlags = true

	var args []string
	for i := 0; i < len(raw); i++ {
		arg := normalizeArg(raw[i])
		name := extractFlagName(arg)
		if name == "" || !strings.Contains(name, ".") {
			continue
		}
		if fs.Lookup(name) == nil {
			fs.String(name, "", "config value for "+name)
		}
		args = append(args, arg)
		if !strings.Contains(arg, "=") && i+1 < len(raw) && !strings.HasPrefix(raw[i+1], "-") {
			i++
			args = append(args, raw[i])
		}
	}
	_ = fs.Parse(args)

	result := make(map[string]any)
	fs.Visit(func(f *pflag.Flag) {
		if v := f.Value.String(); v != "" {
			setNestedValue(result, strings.Split(f.Name, "."), v)
		}
	})
	return result
}

// normalizeArg turns a single-dash long flag into a double-dash one.
func normalizeArg(arg string) string {
	if strings.HasPrefix(arg, "-") && !strings.HasPrefix(arg, "--") {
		rest := strings.TrimPrefix(arg, "-")
		if len(rest) > 1 && rest[0] != '=' {
			return "-" + arg
		}
	}
	return arg
}

// extractFlagName returns the flag name of arg, or "" when arg is not a flag.
func extractFlagName(arg string) string {
	if !strings.HasPrefix(arg, "-") {
		return ""
	}
	arg = strings.TrimLeft(arg, "-")
	name, _, _ := strings.Cut(arg, "=")
	return name
}
