package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeComponent struct {
	name     string
	deps     []string
	startErr error
	stopErr  error
	journal  *[]string
}

func (f *fakeComponent) Name() string        { return f.name }
func (f *fakeComponent) DependsOn() []string { return f.deps }

func (f *fakeComponent) Configure(c Container) error {
	*f.journal = append(*f.journal, "configure "+f.name)
	return nil
}

func (f *fakeComponent) Start(context.Context, Container) error {
	*f.journal = append(*f.journal, "start "+f.name)
	return f.startErr
}

func (f *fakeComponent) Stop(context.Context, Container) error {
	*f.journal = append(*f.journal, "stop "+f.name)
	return f.stopErr
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestApp_StartStopOrder(t *testing.T) {
	var journal []string
	app := NewApp(quietLogger(),
		&fakeComponent{name: "startup", deps: []string{"web"}, journal: &journal},
		&fakeComponent{name: "web", journal: &journal},
		&fakeComponent{name: "actuator", deps: []string{"web"}, journal: &journal},
	)

	require.NoError(t, app.Start(context.Background()))
	assert.ErrorIs(t, app.Start(context.Background()), ErrAlreadyRunning)
	assert.Positive(t, app.Uptime())
	require.NoError(t, app.Stop(context.Background()))
	assert.Zero(t, app.Uptime())

	assert.Equal(t, []string{
		"configure web", "configure actuator", "configure startup",
		"start web", "start actuator", "start startup",
		"stop startup", "stop actuator", "stop web",
	}, journal)

	assert.Same(t, app, Get[*App](app.Container))
}

func TestApp_StartFailureStopsStarted(t *testing.T) {
	var journal []string
	boom := errors.New("port in use")
	app := NewApp(quietLogger(),
		&fakeComponent{name: "a", journal: &journal},
		&fakeComponent{name: "b", deps: []string{"a"}, startErr: boom, journal: &journal},
	)

	err := app.Start(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"configure a", "configure b", "start a", "start b", "stop a"}, journal)
}

func TestApp_StopAggregatesErrors(t *testing.T) {
	var journal []string
	e1, e2 := errors.New("one"), errors.New("two")
	app := NewApp(quietLogger(),
		&fakeComponent{name: "a", stopErr: e1, journal: &journal},
		&fakeComponent{name: "b", stopErr: e2, journal: &journal},
	)
	require.NoError(t, app.Start(context.Background()))
	err := app.Stop(context.Background())
	assert.ErrorIs(t, err, e1)
	assert.ErrorIs(t, err, e2)
}

func TestApp_Run(t *testing.T) {
	var journal []string
	app := NewApp(quietLogger(), &fakeComponent{name: "a", journal: &journal})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, app.Run(ctx))
	assert.Equal(t, []string{"configure a", "start a", "stop a"}, journal)
}

func TestTopoSort(t *testing.T) {
	var journal []string
	tests := []struct {
		name    string
		comps   []Component
		wantErr string
	}{
		{
			name:    "duplicate",
			comps:   []Component{&fakeComponent{name: "a", journal: &journal}, &fakeComponent{name: "a", journal: &journal}},
			wantErr: "duplicate",
		},
		{
			name:    "missing",
			comps:   []Component{&fakeComponent{name: "a", deps: []string{"z"}, journal: &journal}},
			wantErr: "missing dependency",
		},
		{
			name: "cycle",
			comps: []Component{
				&fakeComponent{name: "a", deps: []string{"b"}, journal: &journal},
				&fakeComponent{name: "b", deps: []string{"a"}, journal: &journal},
			},
			wantErr: "cycle",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := topoSort(tt.comps)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestContainer(t *testing.T) {
	c := NewContainer()
	_, ok := Lookup[string](c)
	assert.False(t, ok)
	assert.Panics(t, func() { Get[string](c) })

	Put(c, "value")
	v, ok := Lookup[string](c)
	assert.True(t, ok)
	assert.Equal(t, "value", v)

	c.Set(TypeKey[int]{}, "not an int")
	assert.Panics(t, func() { Get[int](c) })
	_, ok = Lookup[int](c)
	assert.False(t, ok)
}

func TestContainer_MissingPanicWrapsSentinel(t *testing.T) {
	c := NewContainer()
	defer func() {
		err, ok := recover().(error)
		require.True(t, ok)
		assert.ErrorIs(t, err, ErrMissingDependency)
		assert.Contains(t, err.Error(), "*core.App")
	}()
	Get[*App](c)
}
