package status_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/skekre98/modrig/module"
	"github.com/skekre98/modrig/status"
)

var key = status.Key{Name: "counter", Base: module.KindHardware, Class: "dummy.Sensor"}

func TestFileStore_Path(t *testing.T) {
	s := status.NewFileStore("/var/lib/modrig")
	assert.Equal(t,
		filepath.Join("/var/lib/modrig", "status-counter_hardware_dummy.Sensor.cfg"),
		s.Path(key, status.ExtPlain))
}

func TestFileStore_MissingFile(t *testing.T) {
	s := status.NewFileStore(t.TempDir())
	got, err := s.Load(key)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.False(t, s.Exists(key))
	assert.NoError(t, s.Remove(key))
}

func TestFileStore_PlainRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := status.NewFileStore(dir)

	in := map[string]any{
		"offset": 1.5,
		"label":  "probe",
		"points": []any{1, 2, 3},
		"nested": map[string]any{"enabled": true},
	}
	require.NoError(t, s.Save(key, in))
	assert.FileExists(t, s.Path(key, status.ExtPlain))
	assert.NoFileExists(t, s.Path(key, status.ExtArray))
	assert.True(t, s.Exists(key))

	got, err := s.Load(key)
	require.NoError(t, err)
	assert.Equal(t, in, got)

	require.NoError(t, s.Remove(key))
	assert.False(t, s.Exists(key))
}

func TestFileStore_ArrayRoundTrip(t *testing.T) {
	s := status.NewFileStore(t.TempDir())

	dense := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	vec := mat.NewVecDense(2, []float64{7, 8})
	require.NoError(t, s.Save(key, map[string]any{
		"matrix": dense,
		"series": map[string]any{"trace": vec},
		"note":   "calibrated",
	}))
	assert.FileExists(t, s.Path(key, status.ExtArray))
	assert.NoFileExists(t, s.Path(key, status.ExtPlain))

	got, err := s.Load(key)
	require.NoError(t, err)
	require.IsType(t, &mat.Dense{}, got["matrix"])
	assert.True(t, mat.Equal(dense, got["matrix"].(*mat.Dense)))
	series := got["series"].(map[string]any)
	require.IsType(t, &mat.VecDense{}, series["trace"])
	assert.True(t, mat.Equal(vec, series["trace"].(*mat.VecDense)))
	assert.Equal(t, "calibrated", got["note"])

	// switching back to plain data drops the array file
	require.NoError(t, s.Save(key, map[string]any{"note": "reset"}))
	assert.FileExists(t, s.Path(key, status.ExtPlain))
	assert.NoFileExists(t, s.Path(key, status.ExtArray))
}

func TestFileStore_Corrupt(t *testing.T) {
	dir := t.TempDir()
	s := status.NewFileStore(dir)
	require.NoError(t, os.WriteFile(s.Path(key, status.ExtPlain), []byte("offset: [1, 2"), 0o644))

	_, err := s.Load(key)
	assert.ErrorIs(t, err, status.ErrCorrupt)
}

func TestMemoryStore(t *testing.T) {
	s := status.NewMemoryStore()
	got, err := s.Load(key)
	require.NoError(t, err)
	assert.Empty(t, got)

	in := map[string]any{"offset": 2}
	require.NoError(t, s.Save(key, in))
	in["offset"] = 3

	got, err = s.Load(key)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"offset": 2}, got)
	assert.True(t, s.Exists(key))

	require.NoError(t, s.Remove(key))
	assert.False(t, s.Exists(key))
}
