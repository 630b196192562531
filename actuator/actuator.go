// Package actuator serves operational endpoints: health, info, module
// states, recent module events, task runs and metrics.
package actuator

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skekre98/modrig/config"
	"github.com/skekre98/modrig/core"
	"github.com/skekre98/modrig/registry"
	"github.com/skekre98/modrig/task"
	"github.com/skekre98/modrig/web"
)

const Name = "actuator"

// eventBuffer is the number of module events kept for /events.
const eventBuffer = 100

type component struct {
	reg    *registry.Registry
	events *EventLog
}

func Component() core.Component { return &component{} }

func (m *component) Name() string { return Name }
func (m *component) DependsOn() []string {
	return []string{web.Name, registry.ComponentName, task.ComponentName}
}

func (m *component) Configure(c core.Container) error {
	engine := web.Engine(c)
	cfg := core.Get[config.Root](c)
	m.reg = core.Get[*registry.Registry](c)
	m.events = NewEventLog(eventBuffer)
	runner, _ := core.Lookup[*task.Runner](c)

	group := engine.Group(cfg.Actuator.BasePath)

	group.GET("/health", func(ctx *gin.Context) {
		h := Health(m.reg)
		code := http.StatusOK
		if h.Status != StatusUp {
			code = http.StatusServiceUnavailable
		}
		ctx.JSON(code, h)
	})

	group.GET("/info", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{
			"app": gin.H{
				"name":    cfg.App.Name,
				"version": cfg.App.Version,
			},
			"runtime": gin.H{
				"go":           runtime.Version(),
				"numGoroutine": runtime.NumGoroutine(),
				"time":         time.Now().UTC().Format(time.RFC3339),
				"pid":          os.Getpid(),
			},
		})
	})

	group.GET("/modules", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, m.reg.Modules())
	})
	group.GET("/modules/:name", func(ctx *gin.Context) {
		info, err := m.reg.ModuleInfo(ctx.Param("name"))
		if err != nil {
			web.Problem(ctx, http.StatusNotFound, err.Error())
			return
		}
		ctx.JSON(http.StatusOK, info)
	})

	group.GET("/events", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, m.events.Recent())
	})

	if runner != nil {
		group.GET("/tasks", func(ctx *gin.Context) {
			out := []task.Info{}
			for _, name := range runner.Names() {
				if in, err := runner.Info(name); err == nil {
					out = append(out, in)
				}
			}
			ctx.JSON(http.StatusOK, out)
		})
	}

	if cfg.Observability.Metrics.Enabled {
		path := cfg.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		var h http.Handler = promhttp.Handler()
		if promReg, ok := core.Lookup[*prometheus.Registry](c); ok {
			h = promhttp.HandlerFor(promReg, promhttp.HandlerOpts{Registry: promReg})
		}
		group.GET(path, gin.WrapH(h))
	}
	return nil
}

func (m *component) Start(_ context.Context, _ core.Container) error {
	m.events.Attach(m.reg)
	return nil
}

func (m *component) Stop(_ context.Context, _ core.Container) error {
	m.events.Detach()
	return nil
}

// Health states.
const (
	StatusUp       = "UP"
	StatusDegraded = "DEGRADED"
)

type Check struct {
	Name  string         `json:"name"`
	State registry.State `json:"state"`
	Error string         `json:"error,omitempty"`
}

type HealthReport struct {
	Status string  `json:"status"`
	Checks []Check `json:"checks"`
}

// Health reports every module; any module in the error state degrades
// the app.
func Health(reg *registry.Registry) HealthReport {
	h := HealthReport{Status: StatusUp, Checks: []Check{}}
	for _, in := range reg.Modules() {
		h.Checks = append(h.Checks, Check{Name: in.Name, State: in.State, Error: in.Error})
		if in.State == registry.StateError {
			h.Status = StatusDegraded
		}
	}
	return h
}
