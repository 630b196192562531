package config_test

import (
	"context"
	"errors"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skekre98/modrig/config"
)

type mockSource struct {
	name string

	mu      sync.Mutex
	data    map[string]any
	err     error
	watchCh chan<- config.Event
}

func (m *mockSource) Name() string { return m.name }

func (m *mockSource) Load(context.Context) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := map[string]any{}
	config.Merge(out, m.data)
	return out, nil
}

func (m *mockSource) Watch(_ context.Context, ch chan<- config.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchCh = ch
	return nil
}

func (m *mockSource) set(data map[string]any) {
	m.mu.Lock()
	m.data = maps.Clone(data)
	ch := m.watchCh
	m.mu.Unlock()
	if ch != nil {
		ch <- config.Event{}
	}
}

type staticSource struct{ mockSource }

func (s *staticSource) Watch(context.Context, chan<- config.Event) error {
	return config.ErrWatchUnsupported
}

func appSource(version string) map[string]any {
	return map[string]any{
		"app":    map[string]any{"name": "modrig", "version": version},
		"server": map[string]any{"addr": ":8080"},
	}
}

func TestNewManager(t *testing.T) {
	var cfg config.Root
	mgr, err := config.NewManager(&cfg, config.Options{}, &mockSource{name: "file", data: appSource("1")})
	require.NoError(t, err)
	assert.NotNil(t, mgr)
	assert.Equal(t, "1", cfg.App.Version)
}

func TestNewManager_Errors(t *testing.T) {
	var cfg config.Root

	_, err := config.NewManager(cfg, config.Options{})
	assert.Error(t, err)

	boom := errors.New("unreadable")
	_, err = config.NewManager(&cfg, config.Options{}, &mockSource{name: "file", err: boom})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "file")

	_, err = config.NewManager(&cfg, config.Options{}, &mockSource{name: "file", data: map[string]any{}})
	var be *config.BindError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "validate", be.Stage)
}

func TestManager_SourcePrecedence(t *testing.T) {
	file := &mockSource{name: "file", data: appSource("1")}
	env := &mockSource{name: "env", data: map[string]any{"server": map[string]any{"addr": ":9090"}}}

	var cfg config.Root
	_, err := config.NewManager(&cfg, config.Options{Defaults: func(c any) {
		config.ApplyDefaults(c.(*config.Root))
	}}, file, env)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "modrig", cfg.App.Name)
	assert.Equal(t, "/actuator", cfg.Actuator.BasePath)
}

func TestManager_ReloadAndSubscribe(t *testing.T) {
	src := &mockSource{name: "file", data: appSource("1")}
	var cfg config.Root
	mgr, err := config.NewManager(&cfg, config.Options{}, src)
	require.NoError(t, err)

	events := make(chan config.Event, 2)
	mgr.Subscribe(events)

	// no change, no event
	require.NoError(t, mgr.Reload(context.Background()))
	assert.Empty(t, events)

	src.set(appSource("2"))
	require.NoError(t, mgr.Reload(context.Background()))
	select {
	case evt := <-events:
		assert.Equal(t, []string{"app"}, evt.ChangedKeys)
		assert.Equal(t, "1", evt.OldConfig.(*config.Root).App.Version)
		assert.Equal(t, "2", evt.NewConfig.(*config.Root).App.Version)
	case <-time.After(time.Second):
		t.Fatal("no change event")
	}

	var snap config.Root
	require.NoError(t, mgr.Snapshot(&snap))
	assert.Equal(t, "2", snap.App.Version)
	assert.Error(t, mgr.Snapshot(&struct{}{}))
}

func TestManager_FailedReloadKeepsConfig(t *testing.T) {
	src := &mockSource{name: "file", data: appSource("1")}
	var cfg config.Root
	mgr, err := config.NewManager(&cfg, config.Options{}, src)
	require.NoError(t, err)

	src.set(map[string]any{"app": map[string]any{"name": "modrig"}})
	assert.Error(t, mgr.Reload(context.Background()))
	assert.Equal(t, "1", cfg.App.Version)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, mgr.Reload(ctx), context.Canceled)
}

func TestManager_AutoReload(t *testing.T) {
	src := &mockSource{name: "file", data: appSource("1")}
	static := &staticSource{mockSource{name: "env", data: map[string]any{}}}

	var cfg config.Root
	mgr, err := config.NewManager(&cfg, config.Options{AutoReload: true}, src, static)
	require.NoError(t, err)
	defer mgr.Close()

	events := make(chan config.Event, 1)
	mgr.Subscribe(events)

	src.set(appSource("3"))
	select {
	case evt := <-events:
		assert.Equal(t, "3", evt.NewConfig.(*config.Root).App.Version)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not trigger a reload")
	}
}
