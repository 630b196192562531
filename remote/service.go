// Package remote shares selected modules with other processes over
// HTTP/JSON.
package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/skekre98/modrig/module"
	"github.com/skekre98/modrig/registry"
	"github.com/skekre98/modrig/web"
)

// Service aliases. Each alias is a route group under the remote base path.
const (
	ModuleService    = "remote-modules"
	NamespaceService = "namespace"
)

// Exposed operations. The prefix keeps them apart from transport routes.
const (
	OpGetModuleInstance       = "exposed_get_module_instance"
	OpGetModuleState          = "exposed_get_module_state"
	OpModuleHasAppData        = "exposed_module_has_appdata"
	OpGetAvailableModuleNames = "exposed_get_available_module_names"
	OpGetNamespace            = "exposed_get_namespace"
)

var (
	ErrUnknownModule = errors.New("unknown module")
	ErrNotShared     = errors.New("module is not shared")
	ErrNotActive     = errors.New("module is not active")
)

// Registry is the part of the module registry the service reads.
type Registry interface {
	ModuleNames() []string
	RemoteModuleNames() []string
	AllowRemote(name string) bool
	ModuleInfo(name string) (registry.Info, error)
	GetModuleInstance(name string) (module.Module, error)
	ModuleHasAppData(name string) (bool, error)
}

// Exporter lets a module publish values beyond its options and status.
// Export runs on the module's worker.
type Exporter interface {
	Export() map[string]any
}

type Options struct {
	// ByValue hands out snapshots instead of live references.
	ByValue bool
	// CallTimeout bounds each read from a module worker. Zero means 10s.
	CallTimeout time.Duration
	// App describes the application in the namespace service.
	App    func() AppInfo
	Logger *slog.Logger
}

type Service struct {
	reg  Registry
	opts Options
}

func NewService(reg Registry, opts Options) *Service {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{reg: reg, opts: opts}
}

// Register mounts both service aliases on r.
func (s *Service) Register(r web.Router) {
	mods := r.Group(ModuleService)
	mods.GET(OpGetAvailableModuleNames, s.availableNames)
	mods.GET(OpGetModuleState+"/:name", s.moduleState)
	mods.GET(OpModuleHasAppData+"/:name", s.hasAppData)
	mods.GET(OpGetModuleInstance+"/:name", s.moduleInstance)

	ns := r.Group(NamespaceService)
	ns.GET(OpGetNamespace, s.namespace)
}

func (s *Service) availableNames(c *gin.Context) {
	c.JSON(http.StatusOK, NamesResponse{Modules: s.reg.RemoteModuleNames()})
}

func (s *Service) moduleState(c *gin.Context) {
	info, ok := s.shared(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, StateResponse{Name: info.Name, State: string(info.State)})
}

func (s *Service) hasAppData(c *gin.Context) {
	info, ok := s.shared(c)
	if !ok {
		return
	}
	has, err := s.reg.ModuleHasAppData(info.Name)
	if err != nil {
		s.reject(c, info.Name, err)
		return
	}
	c.JSON(http.StatusOK, AppDataResponse{Name: info.Name, HasAppData: has})
}

func (s *Service) moduleInstance(c *gin.Context) {
	info, ok := s.shared(c)
	if !ok {
		return
	}
	inst, err := s.reg.GetModuleInstance(info.Name)
	if err != nil {
		s.reject(c, info.Name, fmt.Errorf("%w: %s", ErrNotActive, info.Name))
		return
	}
	desc, err := s.describe(c.Request.Context(), info, inst)
	if err != nil {
		s.reject(c, info.Name, err)
		return
	}
	desc.ByValue = s.opts.ByValue
	c.JSON(http.StatusOK, desc)
}

// namespace lists every active module outside the gui base, shared or
// not, plus the application itself.
func (s *Service) namespace(c *gin.Context) {
	resp := NamespaceResponse{Modules: map[string]Instance{}}
	if s.opts.App != nil {
		resp.App = s.opts.App()
	}
	for _, name := range s.reg.ModuleNames() {
		info, err := s.reg.ModuleInfo(name)
		if err != nil || info.Base == module.KindGUI || info.State != registry.StateActive {
			continue
		}
		inst, err := s.reg.GetModuleInstance(name)
		if err != nil {
			continue
		}
		desc, err := s.describe(c.Request.Context(), info, inst)
		if err != nil {
			s.opts.Logger.Warn("namespace entry skipped", "module", name, "error", err)
			continue
		}
		resp.Modules[name] = desc
	}
	c.JSON(http.StatusOK, resp)
}

// shared resolves the :name parameter and rejects modules that are
// unknown or not shared.
func (s *Service) shared(c *gin.Context) (registry.Info, bool) {
	name := c.Param("name")
	info, err := s.reg.ModuleInfo(name)
	if err != nil {
		s.reject(c, name, fmt.Errorf("%w: %s", ErrUnknownModule, name))
		return registry.Info{}, false
	}
	if !s.reg.AllowRemote(name) {
		s.reject(c, name, fmt.Errorf("%w: %s", ErrNotShared, name))
		return registry.Info{}, false
	}
	return info, true
}

func (s *Service) reject(c *gin.Context, name string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrUnknownModule):
		status = http.StatusNotFound
	case errors.Is(err, ErrNotShared):
		status = http.StatusForbidden
	case errors.Is(err, ErrNotActive):
		status = http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	s.opts.Logger.Warn("remote request rejected", "module", name, "op", c.FullPath(), "error", err)
	if status == http.StatusInternalServerError {
		web.Problem(c, status, fmt.Sprintf("module %q could not be read", name))
		return
	}
	web.Problem(c, status, err.Error())
}

// describe reads the module attributes on the module's own worker.
func (s *Service) describe(ctx context.Context, info registry.Info, inst module.Module) (Instance, error) {
	b := inst.ModuleBase()
	desc := Instance{
		Name:  info.Name,
		Base:  string(info.Base),
		Class: info.Class,
	}
	for _, iface := range b.Metadata().Interfaces() {
		desc.Interfaces = append(desc.Interfaces, iface.Name)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	err := b.Call(ctx, func(context.Context) error {
		st, err := b.DumpStatus()
		if err != nil {
			return err
		}
		desc.Attributes = Attributes{
			Options: plainMap(b.Options()),
			Status:  plainMap(st),
		}
		if ex, ok := inst.(Exporter); ok {
			desc.Attributes.Values = plainMap(ex.Export())
		}
		return nil
	})
	if err != nil {
		return Instance{}, fmt.Errorf("read %s: %w", info.Name, err)
	}
	return desc, nil
}
