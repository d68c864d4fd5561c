package model

import (
	"bytes"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testHeader struct {
	Format  string
	Version int
}

type testBody struct {
	Mean  []float64
	State ModelState
}

func TestSaveModelAtomicRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "model.gob")

	header := testHeader{Format: "test", Version: 1}
	body := testBody{Mean: []float64{1.5, -2}, State: ModelState{Fitted: true, NFeatures: 2, NSamples: 10}}
	require.NoError(t, SaveModelAtomic(path, header, body))

	var gotHeader testHeader
	var gotBody testBody
	require.NoError(t, LoadModel(path, &gotHeader, &gotBody))
	assert.Equal(t, header, gotHeader)
	assert.Equal(t, body, gotBody)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestSaveModelAtomicKeepsOldFileOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.gob")
	require.NoError(t, SaveModelAtomic(path, testHeader{Format: "old", Version: 1}))

	// channels cannot be gob-encoded
	err := SaveModelAtomic(path, make(chan int))
	require.Error(t, err)

	var header testHeader
	require.NoError(t, LoadModel(path, &header))
	assert.Equal(t, "old", header.Format)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLoadModelErrors(t *testing.T) {
	var header testHeader

	err := LoadModel(filepath.Join(t.TempDir(), "missing.gob"), &header)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, os.ErrNotExist))

	err = LoadModelFromReader(bytes.NewReader([]byte("not a gob stream")), &header)
	assert.Error(t, err)
}

func TestStateManager(t *testing.T) {
	s := NewStateManager()
	assert.False(t, s.IsFitted())
	assert.Error(t, s.RequireFitted("Pipeline", "Predict"))

	s.SetDimensions(20, 800)
	s.SetFitted()
	assert.True(t, s.IsFitted())
	assert.NoError(t, s.RequireFitted("Pipeline", "Predict"))
	assert.NoError(t, s.RequireFeatures("Predict", 20))
	assert.Error(t, s.RequireFeatures("Predict", 3))

	state := s.GetState()
	assert.Equal(t, ModelState{Fitted: true, NFeatures: 20, NSamples: 800}, state)

	s.Reset()
	assert.False(t, s.IsFitted())
	s.SetState(state)
	nFeatures, nSamples := s.GetDimensions()
	assert.Equal(t, 20, nFeatures)
	assert.Equal(t, 800, nSamples)
}
