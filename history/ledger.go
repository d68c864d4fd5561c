// Package history keeps a ledger of quick-start runs in a BoltDB file.
package history

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/YuminosukeSato/forestkit/pkg/errors"
)

const runsBucket = "runs"

// DefaultPath is where the quick-start CLI keeps its ledger.
const DefaultPath = "models/history.db"

// Run is one recorded quick-start run.
type Run struct {
	ID           string        `json:"id"`
	Seed         uint64        `json:"seed"`
	CVMean       float64       `json:"cv_mean"`
	CVSpread     float64       `json:"cv_spread"`
	TestAccuracy float64       `json:"test_accuracy"`
	ArtifactPath string        `json:"artifact_path"`
	Timestamp    time.Time     `json:"timestamp"`
	Duration     time.Duration `json:"duration"`
}

// Ledger stores runs keyed by timestamp, so iteration order is
// chronological.
type Ledger struct {
	db *bbolt.DB
}

// NewRunID returns a fresh random run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Open opens or creates the ledger at path, creating the parent directory
// when missing.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create ledger directory")
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open ledger %s", path)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(runsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create runs bucket")
	}
	return &Ledger{db: db}, nil
}

// Close releases the database file.
func (l *Ledger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

// runKey orders runs by timestamp and disambiguates equal timestamps by ID.
func runKey(run Run) []byte {
	key := make([]byte, 8, 8+len(run.ID))
	binary.BigEndian.PutUint64(key, uint64(run.Timestamp.UnixNano()))
	return append(key, run.ID...)
}

// Record stores run. A missing ID or timestamp is filled in, and the stored
// run is returned.
func (l *Ledger) Record(run Run) (Run, error) {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	if run.Timestamp.IsZero() {
		run.Timestamp = time.Now()
	}
	run.Timestamp = run.Timestamp.UTC()

	data, err := json.Marshal(run)
	if err != nil {
		return Run{}, errors.Wrap(err, "marshal run")
	}
	err = l.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(runsBucket)).Put(runKey(run), data)
	})
	if err != nil {
		return Run{}, errors.Wrapf(err, "failed to record run %s", run.ID)
	}
	return run, nil
}

// List returns every recorded run, newest first.
func (l *Ledger) List() ([]Run, error) {
	var runs []Run
	err := l.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(runsBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var run Run
			if err := json.Unmarshal(v, &run); err != nil {
				return errors.Wrapf(err, "corrupt run record %x", k)
			}
			runs = append(runs, run)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// Get returns the run with the given ID.
func (l *Ledger) Get(id string) (*Run, error) {
	runs, err := l.List()
	if err != nil {
		return nil, err
	}
	for i := range runs {
		if runs[i].ID == id {
			return &runs[i], nil
		}
	}
	return nil, errors.Newf("run %s not found", id)
}
