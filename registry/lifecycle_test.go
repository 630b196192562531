package registry_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skekre98/modrig/module"
	"github.com/skekre98/modrig/registry"
)

func TestActivateDependenciesFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, "hw", module.KindHardware, "test.HardwareX", nil)
	f.add(t, "lg", module.KindLogic, "test.LogicY", map[string]string{"hw": "hw"})

	require.NoError(t, f.reg.ActivateModule(ctx, "lg"))
	assert.Equal(t, registry.StateActive, f.state(t, "hw"))
	assert.Equal(t, registry.StateActive, f.state(t, "lg"))

	err := f.reg.DeactivateModule(ctx, "hw")
	require.ErrorIs(t, err, registry.ErrModuleLocked)
	assert.Equal(t, registry.StateActive, f.state(t, "hw"))

	require.NoError(t, f.reg.DeactivateModule(ctx, "lg"))
	require.NoError(t, f.reg.DeactivateModule(ctx, "hw"))
	assert.Equal(t, registry.StateDeactivated, f.state(t, "hw"))
	assert.Equal(t, registry.StateDeactivated, f.state(t, "lg"))
	assert.EqualValues(t, 1, f.hw.activations.Load())
	assert.EqualValues(t, 1, f.hw.deactivations.Load())
}

func TestActivateBindsConnectors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, "hw", module.KindHardware, "test.HardwareX", nil)
	f.add(t, "lg", module.KindLogic, "test.LogicY", map[string]string{"hw": "hw"})
	require.NoError(t, f.reg.ActivateModule(ctx, "lg"))

	lg, err := f.reg.GetModuleInstance("lg")
	require.NoError(t, err)
	inst, err := module.Connect[Instrument](lg, "hw")
	require.NoError(t, err)
	assert.Equal(t, "hw:hw", inst.Identify())

	aux, err := lg.ModuleBase().Connection("aux")
	require.NoError(t, err)
	assert.Same(t, module.Disconnected, aux)
	assert.False(t, aux.Connected())

	none, err := module.Connect[Instrument](lg, "aux")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestActivateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, "hw", module.KindHardware, "test.HardwareX", nil)
	require.NoError(t, f.reg.ActivateModule(ctx, "hw"))
	require.NoError(t, f.reg.ActivateModule(ctx, "hw"))
	assert.EqualValues(t, 1, f.hw.activations.Load())
	require.NoError(t, f.reg.DeactivateModule(ctx, "hw"))
	require.NoError(t, f.reg.DeactivateModule(ctx, "hw"))
	assert.EqualValues(t, 1, f.hw.deactivations.Load())
}

func TestConcurrentActivationRunsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.hw.delay = 50 * time.Millisecond
	f.add(t, "hw", module.KindHardware, "test.HardwareX", nil)
	f.add(t, "lg", module.KindLogic, "test.LogicY", map[string]string{"hw": "hw"})
	f.add(t, "tw", module.KindLogic, "test.Twin", map[string]string{"left": "hw", "right": "hw"})

	var wg sync.WaitGroup
	errs := make(chan error, 12)
	for i := 0; i < 4; i++ {
		for _, name := range []string{"hw", "lg", "tw"} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- f.reg.ActivateModule(ctx, name)
			}()
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, f.hw.activations.Load())
	assert.EqualValues(t, 1, f.lg.activations.Load())
}

func TestDependencyFailureFailsConsumer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, "hw", module.KindHardware, "test.Broken", nil)
	f.add(t, "lg", module.KindLogic, "test.LogicY", map[string]string{"hw": "hw"})

	err := f.reg.ActivateModule(ctx, "lg")
	require.ErrorIs(t, err, registry.ErrDependencyFailed)
	require.ErrorIs(t, err, errHook)
	assert.Equal(t, registry.StateError, f.state(t, "hw"))
	assert.Equal(t, registry.StateError, f.state(t, "lg"))
	assert.EqualValues(t, 0, f.lg.activations.Load())

	_, err = f.reg.GetModuleInstance("hw")
	assert.ErrorIs(t, err, module.ErrNotActive)

	info, err := f.reg.ModuleInfo("hw")
	require.NoError(t, err)
	assert.Contains(t, info.Error, errHook.Error())
}

func TestOwnFailureKeepsDependenciesActive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.lg.activateErr = errHook
	f.add(t, "hw", module.KindHardware, "test.HardwareX", nil)
	f.add(t, "lg", module.KindLogic, "test.LogicY", map[string]string{"hw": "hw"})

	require.ErrorIs(t, f.reg.ActivateModule(ctx, "lg"), errHook)
	assert.Equal(t, registry.StateError, f.state(t, "lg"))
	assert.Equal(t, registry.StateActive, f.state(t, "hw"))

	// the failed module holds no binding, so hw can go down
	require.NoError(t, f.reg.DeactivateModule(ctx, "hw"))

	err := f.reg.ActivateModule(ctx, "lg")
	require.ErrorIs(t, err, registry.ErrInvalidTransition)

	require.ErrorIs(t, f.reg.ResetModule("hw"), registry.ErrInvalidTransition)
	require.NoError(t, f.reg.ResetModule("lg"))
	assert.Equal(t, registry.StateDeactivated, f.state(t, "lg"))

	f.lg.activateErr = nil
	require.NoError(t, f.reg.ActivateModule(ctx, "lg"))
	assert.Equal(t, registry.StateActive, f.state(t, "lg"))
}

func TestInterfaceMismatchFailsOnlyTheConsumer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, "scr", module.KindGUI, "test.Screen", nil)
	f.add(t, "lg", module.KindLogic, "test.LogicY", map[string]string{"hw": "scr"})

	err := f.reg.ActivateModule(ctx, "lg")
	require.ErrorIs(t, err, module.ErrInterfaceMismatch)
	assert.Equal(t, registry.StateError, f.state(t, "lg"))
	assert.Equal(t, registry.StateActive, f.state(t, "scr"))
	assert.EqualValues(t, 0, f.lg.activations.Load())
	require.NoError(t, f.reg.DeactivateModule(ctx, "scr"))
}

func TestMissingMandatoryTarget(t *testing.T) {
	f := newFixture(t)
	f.add(t, "lg", module.KindLogic, "test.LogicY", nil)
	err := f.reg.ActivateModule(context.Background(), "lg")
	require.ErrorIs(t, err, module.ErrMissingTarget)
	assert.Equal(t, registry.StateError, f.state(t, "lg"))
}

func TestDeactivateHookFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.hw.deactivateErr = errHook
	f.add(t, "hw", module.KindHardware, "test.HardwareX", nil)
	require.NoError(t, f.reg.ActivateModule(ctx, "hw"))
	require.ErrorIs(t, f.reg.DeactivateModule(ctx, "hw"), errHook)
	assert.Equal(t, registry.StateError, f.state(t, "hw"))
}

func TestStatusPersistsAcrossActivations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, "hw", module.KindHardware, "test.HardwareX", nil)

	has, err := f.reg.ModuleHasAppData("hw")
	require.NoError(t, err)
	assert.False(t, has)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.reg.ActivateModule(ctx, "hw"))
		require.NoError(t, f.reg.DeactivateModule(ctx, "hw"))
	}
	has, _ = f.reg.ModuleHasAppData("hw")
	assert.True(t, has)

	require.NoError(t, f.reg.ActivateModule(ctx, "hw"))
	inst, err := f.reg.GetModuleInstance("hw")
	require.NoError(t, err)
	n, err := module.StatusAs[int](inst, "count")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	require.ErrorIs(t, f.reg.ClearModuleAppData("hw"), registry.ErrInvalidTransition)
	require.NoError(t, f.reg.DeactivateModule(ctx, "hw"))
	require.NoError(t, f.reg.ClearModuleAppData("hw"))
	has, _ = f.reg.ModuleHasAppData("hw")
	assert.False(t, has)
}

func TestRemoveModule(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, "hw", module.KindHardware, "test.HardwareX", nil)
	f.add(t, "lg", module.KindLogic, "test.LogicY", map[string]string{"hw": "hw"})
	require.NoError(t, f.reg.ActivateModule(ctx, "lg"))

	require.ErrorIs(t, f.reg.RemoveModule(ctx, "hw"), registry.ErrModuleLocked)
	assert.Equal(t, []string{"hw", "lg"}, f.reg.ModuleNames())

	require.NoError(t, f.reg.RemoveModule(ctx, "hw", registry.Force()))
	assert.Equal(t, []string{"lg"}, f.reg.ModuleNames())
	assert.Equal(t, registry.StateDeactivated, f.state(t, "lg"))
	deps, err := f.reg.Dependencies("lg")
	require.NoError(t, err)
	assert.Empty(t, deps)
}

func TestRemoveBlockedWhileAnyConnectorBound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, "hw", module.KindHardware, "test.HardwareX", nil)
	f.add(t, "tw", module.KindLogic, "test.Twin", map[string]string{"left": "hw", "right": "hw"})
	require.NoError(t, f.reg.ActivateModule(ctx, "tw"))

	tw, err := f.reg.GetModuleInstance("tw")
	require.NoError(t, err)
	assert.Equal(t, []string{"left", "right"}, tw.ModuleBase().Connections().Bound())

	require.ErrorIs(t, f.reg.RemoveModule(ctx, "hw"), registry.ErrModuleLocked)

	left, ok := tw.ModuleBase().Metadata().Connector("left")
	require.True(t, ok)
	left.Unbind(tw.ModuleBase().Connections())
	require.ErrorIs(t, f.reg.RemoveModule(ctx, "hw"), registry.ErrModuleLocked)

	require.NoError(t, f.reg.DeactivateModule(ctx, "tw"))
	assert.Empty(t, tw.ModuleBase().Connections().Bound())
	require.NoError(t, f.reg.RemoveModule(ctx, "hw"))
	assert.Equal(t, []string{"tw"}, f.reg.ModuleNames())
}

func TestRankingActiveDependentModules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, "hw", module.KindHardware, "test.HardwareX", nil)
	f.add(t, "hw2", module.KindHardware, "test.HardwareX", nil)
	f.add(t, "lg", module.KindLogic, "test.LogicY", map[string]string{"hw": "hw"})
	f.add(t, "tw", module.KindLogic, "test.Twin", map[string]string{"left": "hw2", "right": "hw"})
	require.NoError(t, f.reg.ActivateModule(ctx, "lg"))

	ranked, err := f.reg.RankingActiveDependentModules("hw")
	require.NoError(t, err)
	assert.Equal(t, []string{"lg"}, ranked)

	require.NoError(t, f.reg.ActivateModule(ctx, "tw"))
	ranked, err = f.reg.RankingActiveDependentModules("hw")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"lg", "tw"}, ranked)

	ranked, err = f.reg.RankingActiveDependentModules("hw2")
	require.NoError(t, err)
	assert.Equal(t, []string{"tw"}, ranked)

	_, err = f.reg.RankingActiveDependentModules("ghost")
	assert.ErrorIs(t, err, registry.ErrUnknownModule)
}

func TestActivateAllAndDeactivateAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, "lg", module.KindLogic, "test.LogicY", map[string]string{"hw": "hw"})
	f.add(t, "hw", module.KindHardware, "test.HardwareX", nil)
	f.add(t, "bad", module.KindHardware, "test.Broken", nil)

	err := f.reg.ActivateAll(ctx)
	require.ErrorIs(t, err, errHook)
	assert.Equal(t, registry.StateActive, f.state(t, "lg"))
	assert.Equal(t, registry.StateActive, f.state(t, "hw"))
	assert.Equal(t, registry.StateError, f.state(t, "bad"))

	require.NoError(t, f.reg.DeactivateAll(ctx))
	assert.Equal(t, registry.StateDeactivated, f.state(t, "lg"))
	assert.Equal(t, registry.StateDeactivated, f.state(t, "hw"))
}

func TestOverwriteReplacesModule(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, "hw", module.KindHardware, "test.HardwareX", nil)
	require.NoError(t, f.reg.ActivateModule(ctx, "hw"))

	require.NoError(t, f.reg.AddModule(ctx, "hw", module.KindHardware,
		newModuleConfig("test.HardwareX", map[string]any{"port": 3}), registry.AllowOverwrite()))
	assert.Equal(t, registry.StateDeactivated, f.state(t, "hw"))

	require.NoError(t, f.reg.ActivateModule(ctx, "hw"))
	inst, err := f.reg.GetModuleInstance("hw")
	require.NoError(t, err)
	port, err := module.OptionAs[int](inst, "port")
	require.NoError(t, err)
	assert.Equal(t, 3, port)
}

func TestAcquiredModuleIsLocked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, "hw", module.KindHardware, "test.HardwareX", nil)

	_, err := f.reg.Acquire("task:t", "hw")
	require.ErrorIs(t, err, module.ErrNotActive)
	_, err = f.reg.Acquire("task:t", "nope")
	require.ErrorIs(t, err, registry.ErrUnknownModule)

	require.NoError(t, f.reg.ActivateModule(ctx, "hw"))
	inst, err := f.reg.Acquire("task:t", "hw")
	require.NoError(t, err)
	assert.Equal(t, "hw:hw", inst.(Instrument).Identify())
	_, err = f.reg.Acquire("task:t", "hw")
	require.NoError(t, err)
	assert.Equal(t, []string{"task:t"}, f.reg.Holders("hw"))

	err = f.reg.DeactivateModule(ctx, "hw")
	require.ErrorIs(t, err, registry.ErrModuleLocked)
	assert.Contains(t, err.Error(), "task:t")
	require.ErrorIs(t, f.reg.RemoveModule(ctx, "hw", registry.Force()), registry.ErrModuleLocked)
	assert.Equal(t, registry.StateActive, f.state(t, "hw"))

	f.reg.Release("task:t", "hw")
	require.ErrorIs(t, f.reg.DeactivateModule(ctx, "hw"), registry.ErrModuleLocked)
	f.reg.Release("task:t", "hw")
	f.reg.Release("task:t", "hw")
	assert.Empty(t, f.reg.Holders("hw"))

	require.NoError(t, f.reg.DeactivateModule(ctx, "hw"))
	assert.EqualValues(t, 1, f.hw.deactivations.Load())
}

func TestActivateRacingRemovalNeverOrphans(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.hw.entered = make(chan struct{}, 1)
	f.hw.release = make(chan struct{})
	f.add(t, "hw", module.KindHardware, "test.HardwareX", nil)
	require.NoError(t, f.reg.ActivateModule(ctx, "hw"))

	removed := make(chan error, 1)
	go func() { removed <- f.reg.RemoveModule(ctx, "hw") }()
	// removal now holds hw's lifecycle lock inside the deactivation hook
	<-f.hw.entered

	activated := make(chan error, 1)
	go func() { activated <- f.reg.ActivateModule(ctx, "hw") }()
	time.Sleep(20 * time.Millisecond)
	close(f.hw.release)

	removeErr, activateErr := <-removed, <-activated
	if removeErr == nil {
		require.ErrorIs(t, activateErr, registry.ErrUnknownModule)
		_, err := f.reg.GetModuleState("hw")
		require.ErrorIs(t, err, registry.ErrUnknownModule)
		assert.EqualValues(t, 1, f.hw.activations.Load())
		return
	}
	// activation won the lock between deactivation and removal
	require.NoError(t, activateErr)
	require.ErrorIs(t, removeErr, registry.ErrInvalidTransition)
	assert.Equal(t, registry.StateActive, f.state(t, "hw"))
	assert.EqualValues(t, 2, f.hw.activations.Load())
}
