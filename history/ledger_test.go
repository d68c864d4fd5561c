package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) (*Ledger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	l, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l, path
}

func TestLedger_RecordAndList(t *testing.T) {
	l, _ := openTestLedger(t)

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, acc := range []float64{0.91, 0.93, 0.92} {
		_, err := l.Record(Run{
			Seed:         42,
			TestAccuracy: acc,
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	runs, err := l.List()
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []float64{0.92, 0.93, 0.91},
		[]float64{runs[0].TestAccuracy, runs[1].TestAccuracy, runs[2].TestAccuracy})
	for _, r := range runs {
		_, err := uuid.Parse(r.ID)
		assert.NoError(t, err)
		assert.Equal(t, uint64(42), r.Seed)
	}
}

func TestLedger_GetAndDefaults(t *testing.T) {
	l, _ := openTestLedger(t)

	stored, err := l.Record(Run{ID: "run-a", CVMean: 0.9, CVSpread: 0.02, ArtifactPath: "models/m.gob"})
	require.NoError(t, err)
	assert.False(t, stored.Timestamp.IsZero())
	assert.Equal(t, time.UTC, stored.Timestamp.Location())

	got, err := l.Get("run-a")
	require.NoError(t, err)
	assert.Equal(t, "models/m.gob", got.ArtifactPath)
	assert.Equal(t, 0.02, got.CVSpread)

	_, err = l.Get("run-b")
	assert.Error(t, err)
}

func TestLedger_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	l, err := Open(path)
	require.NoError(t, err)
	_, err = l.Record(Run{ID: "persisted"})
	require.NoError(t, err)
	require.NoError(t, l.Close())

	l, err = Open(path)
	require.NoError(t, err)
	defer l.Close()
	runs, err := l.List()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "persisted", runs[0].ID)
}

func TestLedger_Empty(t *testing.T) {
	l, _ := openTestLedger(t)
	runs, err := l.List()
	require.NoError(t, err)
	assert.Empty(t, runs)
}
