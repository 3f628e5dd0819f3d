// Package versioning is the durable catalog of trained model artifacts.
// Artifact bytes live on disk under the models directory; metadata lives in
// a BoltDB bucket whose single-transaction updates keep the
// exactly-one-production invariant across crashes. The bucket is the source
// of truth on restart.
package versioning

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
)

const (
	versionsBucket  = "model_versions"
	versionIDLayout = "20060102-150405.000000000"
)

var (
	// ErrVersionNotFound is returned when the referenced version does not
	// exist in the catalog.
	ErrVersionNotFound = errors.New("model version not found")

	// ErrAlreadyProduction is returned by Rollback when the target is the
	// current production version.
	ErrAlreadyProduction = errors.New("version is already production")

	// ErrArtifactWrite is returned when an artifact could not be written and
	// renamed into place. No version is published in that case.
	ErrArtifactWrite = errors.New("artifact write failed")
)

// Metrics holds the held-out evaluation scores for one model version.
type Metrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// ModelVersion is one catalog entry. Immutable after creation except for the
// production flag and promotion timestamp.
type ModelVersion struct {
	VersionID       string     `json:"version_id"`
	ArtifactPath    string     `json:"artifact_path"`
	Metrics         Metrics    `json:"metrics"`
	TrainingSamples int        `json:"training_samples"`
	CreatedAt       time.Time  `json:"created_at"`
	IsProduction    bool       `json:"is_production"`
	PromotedAt      *time.Time `json:"promoted_at,omitempty"`
}

// Store manages model versions. Safe for concurrent use; metadata mutations
// run inside single BoltDB transactions.
type Store struct {
	db        *bbolt.DB
	modelsDir string

	mu     sync.Mutex
	lastID string
}

// Open initializes the catalog under modelsDir. The directory layout is
// modelsDir/versions/ for immutable artifacts plus modelsDir/current.model
// for the republished production artifact.
func Open(modelsDir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(modelsDir, "versions"), 0o750); err != nil {
		return nil, fmt.Errorf("create models dir: %w", err)
	}

	db, err := bbolt.Open(filepath.Join(modelsDir, "models.db"), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open version catalog: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(versionsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create versions bucket: %w", err)
	}

	return &Store{db: db, modelsDir: modelsDir}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// CurrentArtifactPath is the republished production artifact location used
// by the prediction runtime on reload.
func (s *Store) CurrentArtifactPath() string {
	return filepath.Join(s.modelsDir, "current.model")
}

// newVersionID produces a unique, creation-ordered identifier. IDs sort
// lexicographically in the same order as their creation timestamps.
func (s *Store) newVersionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := time.Now().UTC().Format(versionIDLayout)
	for id <= s.lastID {
		time.Sleep(time.Nanosecond)
		id = time.Now().UTC().Format(versionIDLayout)
	}
	s.lastID = id
	return id
}

// Create writes the artifact with a temp-then-rename sequence and records
// the version metadata. New versions are always archived (non-production);
// promotion is a separate step.
func (s *Store) Create(artifact []byte, metrics Metrics, trainingSamples int) (ModelVersion, error) {
	id := s.newVersionID()
	path := filepath.Join(s.modelsDir, "versions", "model-"+id+".json")

	if err := writeAtomic(path, artifact); err != nil {
		return ModelVersion{}, fmt.Errorf("%w: %v", ErrArtifactWrite, err)
	}

	version := ModelVersion{
		VersionID:       id,
		ArtifactPath:    path,
		Metrics:         metrics,
		TrainingSamples: trainingSamples,
		CreatedAt:       time.Now().UTC(),
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(version)
		if err != nil {
			return fmt.Errorf("marshal version: %w", err)
		}
		return tx.Bucket([]byte(versionsBucket)).Put([]byte(id), data)
	})
	if err != nil {
		os.Remove(path)
		return ModelVersion{}, fmt.Errorf("persist version metadata: %w", err)
	}

	log.Info().
		Str("version", id).
		Float64("f1", metrics.F1).
		Int("training_samples", trainingSamples).
		Msg("model version archived")
	return version, nil
}

// Promote marks the target version as production, clears the previous
// production flag in the same transaction, and republishes the current
// artifact. Metadata commits first; a crash after the commit leaves the
// catalog authoritative and the artifact is republished on the next promote
// or restart.
func (s *Store) Promote(versionID string) error {
	return s.setProduction(versionID, false)
}

// Rollback re-promotes a previously archived version. Identical semantics to
// Promote except that promoting the current production version is rejected.
func (s *Store) Rollback(versionID string) error {
	return s.setProduction(versionID, true)
}

func (s *Store) setProduction(versionID string, rejectCurrent bool) error {
	var target ModelVersion

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(versionsBucket))

		data := b.Get([]byte(versionID))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrVersionNotFound, versionID)
		}
		if err := json.Unmarshal(data, &target); err != nil {
			return fmt.Errorf("unmarshal version %s: %w", versionID, err)
		}
		if target.IsProduction {
			if rejectCurrent {
				return fmt.Errorf("%w: %s", ErrAlreadyProduction, versionID)
			}
			return nil
		}

		// Clear the previous production flag within this transaction so a
		// crash cannot leave two production versions.
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var mv ModelVersion
			if err := json.Unmarshal(v, &mv); err != nil {
				continue
			}
			if mv.IsProduction && mv.VersionID != versionID {
				mv.IsProduction = false
				updated, err := json.Marshal(mv)
				if err != nil {
					return fmt.Errorf("marshal version %s: %w", mv.VersionID, err)
				}
				if err := b.Put(k, updated); err != nil {
					return err
				}
			}
		}

		now := time.Now().UTC()
		target.IsProduction = true
		target.PromotedAt = &now
		updated, err := json.Marshal(target)
		if err != nil {
			return fmt.Errorf("marshal version %s: %w", versionID, err)
		}
		return b.Put([]byte(versionID), updated)
	})
	if err != nil {
		return err
	}

	if err := s.republishCurrent(target.ArtifactPath); err != nil {
		return err
	}

	log.Info().Str("version", versionID).Msg("model version promoted to production")
	return nil
}

// republishCurrent copies the artifact to the stable current.model location
// with a temp-then-rename so a concurrent reload never reads a truncated
// file.
func (s *Store) republishCurrent(artifactPath string) error {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return fmt.Errorf("read artifact %s: %w", artifactPath, err)
	}
	if err := writeAtomic(s.CurrentArtifactPath(), data); err != nil {
		return fmt.Errorf("%w: republish current: %v", ErrArtifactWrite, err)
	}
	return nil
}

// RepublishProduction rewrites current.model from the production version's
// archived artifact and returns that version. A crash between a promotion's
// metadata commit and its republication can leave current.model holding the
// previous version's bytes; the catalog is authoritative, so startup calls
// this to bring the published artifact back in line before anything loads it.
// No-op when no promotion has happened yet.
func (s *Store) RepublishProduction() (*ModelVersion, error) {
	prod, err := s.Production()
	if err != nil || prod == nil {
		return prod, err
	}
	if err := s.republishCurrent(prod.ArtifactPath); err != nil {
		return prod, err
	}
	return prod, nil
}

// Get returns one version by ID.
func (s *Store) Get(versionID string) (ModelVersion, error) {
	var version ModelVersion
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(versionsBucket)).Get([]byte(versionID))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrVersionNotFound, versionID)
		}
		return json.Unmarshal(data, &version)
	})
	return version, err
}

// Production returns the current production version, or nil when no
// promotion has happened yet.
func (s *Store) Production() (*ModelVersion, error) {
	var prod *ModelVersion
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(versionsBucket)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var mv ModelVersion
			if err := json.Unmarshal(v, &mv); err != nil {
				continue
			}
			if mv.IsProduction {
				prod = &mv
				return nil
			}
		}
		return nil
	})
	return prod, err
}

// List returns up to limit versions, most recent first. The read is a
// snapshot: versions created after the call begins are not included.
func (s *Store) List(limit int) ([]ModelVersion, error) {
	if limit <= 0 {
		limit = 50
	}
	versions := make([]ModelVersion, 0, limit)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(versionsBucket)).Cursor()
		for k, v := c.Last(); k != nil && len(versions) < limit; k, v = c.Prev() {
			var mv ModelVersion
			if err := json.Unmarshal(v, &mv); err != nil {
				continue
			}
			versions = append(versions, mv)
		}
		return nil
	})
	return versions, err
}

// writeAtomic writes data to a temporary file in the target directory and
// renames it into place.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
