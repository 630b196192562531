package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

var ErrUnknownAttribute = errors.New("unknown attribute")

// Attribute groups of a shared module.
const (
	GroupOptions = "options"
	GroupStatus  = "status"
	GroupValues  = "values"
)

// Error is a rejection returned by the remote service.
type Error struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("remote: %d %s: %s", e.Status, e.Title, e.Detail)
}

func (e *Error) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return ErrUnknownModule
	case http.StatusForbidden:
		return ErrNotShared
	case http.StatusConflict:
		return ErrNotActive
	}
	return nil
}

// Client talks to a remote service mounted at baseURL.
type Client struct {
	base string
	http *http.Client
}

func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), http: hc}
}

func (c *Client) get(ctx context.Context, out any, parts ...string) error {
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/"+strings.Join(parts, "/"), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		rerr := &Error{Status: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
		_ = json.NewDecoder(resp.Body).Decode(rerr)
		return rerr
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) AvailableModuleNames(ctx context.Context) ([]string, error) {
	var resp NamesResponse
	if err := c.get(ctx, &resp, ModuleService, OpGetAvailableModuleNames); err != nil {
		return nil, err
	}
	return resp.Modules, nil
}

func (c *Client) ModuleState(ctx context.Context, name string) (string, error) {
	var resp StateResponse
	if err := c.get(ctx, &resp, ModuleService, OpGetModuleState, name); err != nil {
		return "", err
	}
	return resp.State, nil
}

func (c *Client) ModuleHasAppData(ctx context.Context, name string) (bool, error) {
	var resp AppDataResponse
	if err := c.get(ctx, &resp, ModuleService, OpModuleHasAppData, name); err != nil {
		return false, err
	}
	return resp.HasAppData, nil
}

func (c *Client) Namespace(ctx context.Context) (NamespaceResponse, error) {
	var resp NamespaceResponse
	err := c.get(ctx, &resp, NamespaceService, OpGetNamespace)
	return resp, err
}

func (c *Client) instance(ctx context.Context, name string) (Instance, error) {
	var inst Instance
	err := c.get(ctx, &inst, ModuleService, OpGetModuleInstance, name)
	return inst, err
}

// Proxy is the client-side handle of a shared module.
type Proxy interface {
	Name() string
	Class() string
	Interfaces() []string
	// Attr reads one attribute from a group (options, status or values).
	Attr(ctx context.Context, group, key string) (any, error)
}

// GetModuleInstance returns a LiveProxy, or a SnapshotProxy when the
// service hands out values.
func (c *Client) GetModuleInstance(ctx context.Context, name string) (Proxy, error) {
	inst, err := c.instance(ctx, name)
	if err != nil {
		return nil, err
	}
	if inst.ByValue {
		return &SnapshotProxy{inst: inst}, nil
	}
	return &LiveProxy{client: c, inst: inst}, nil
}

// LiveProxy reads through to the module on every Attr call.
type LiveProxy struct {
	client *Client
	inst   Instance
}

func (p *LiveProxy) Name() string         { return p.inst.Name }
func (p *LiveProxy) Class() string        { return p.inst.Class }
func (p *LiveProxy) Interfaces() []string { return p.inst.Interfaces }

func (p *LiveProxy) Attr(ctx context.Context, group, key string) (any, error) {
	inst, err := p.client.instance(ctx, p.inst.Name)
	if err != nil {
		return nil, err
	}
	return lookupAttr(inst.Attributes, group, key)
}

// SnapshotProxy holds a copy of the module taken when it was fetched.
// Reads are served from the copy and never go back to the service.
type SnapshotProxy struct {
	inst Instance
}

func (p *SnapshotProxy) Name() string         { return p.inst.Name }
func (p *SnapshotProxy) Class() string        { return p.inst.Class }
func (p *SnapshotProxy) Interfaces() []string { return p.inst.Interfaces }

func (p *SnapshotProxy) Attr(_ context.Context, group, key string) (any, error) {
	return lookupAttr(p.inst.Attributes, group, key)
}

func lookupAttr(a Attributes, group, key string) (any, error) {
	var m map[string]any
	switch group {
	case GroupOptions:
		m = a.Options
	case GroupStatus:
		m = a.Status
	case GroupValues:
		m = a.Values
	default:
		return nil, fmt.Errorf("%w: group %s", ErrUnknownAttribute, group)
	}
	v, ok := m[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownAttribute, group, key)
	}
	return v, nil
}
