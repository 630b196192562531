package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/skekre98/modrig/config"
	"github.com/skekre98/modrig/core"
)

const Name = "web"

func Engine(c core.Container) *gin.Engine {
	return core.Get[*gin.Engine](c)
}

// Component serves the gin engine other components register routes on.
func Component(opts ...Option) core.Component {
	var options Options
	for _, o := range opts {
		o(&options)
	}
	return &component{opts: options}
}

type component struct {
	opts   Options
	server *http.Server
	ln     net.Listener
}

func (m *component) Name() string        { return Name }
func (m *component) DependsOn() []string { return nil }

func (m *component) Configure(c core.Container) error {
	cfg := core.Get[config.Root](c)
	l := core.Get[*slog.Logger](c)

	gin.SetMode(gin.ReleaseMode)
	r := NewEngine(l, m.opts.Middlewares...)
	for _, reg := range m.opts.Routes {
		reg(r)
	}

	m.server = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ConnState:    ConnLogger(l),
	}
	core.Put(c, r)
	core.Put(c, m.server)
	return nil
}

// NewEngine returns a gin engine with request ids, panic recovery and
// access logging installed.
func NewEngine(l *slog.Logger, extra ...Handler) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), RecoveryProblem(l), AccessLog(l))
	r.Use(extra...)
	return r
}

// Start binds the listen address before returning so a port clash fails
// the app start.
func (m *component) Start(_ context.Context, c core.Container) error {
	l := core.Get[*slog.Logger](c)
	ln, err := net.Listen("tcp", m.server.Addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	m.ln = ln
	core.Put(c, ln.Addr())
	go func() {
		l.Info("http server starting", "addr", ln.Addr().String())
		if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("http server error", "error", err)
		}
	}()
	return nil
}

func (m *component) Stop(ctx context.Context, _ core.Container) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := m.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
