// Package storage provides persistent data storage for the alert classifier.
// It uses BoltDB as the underlying storage engine to store ingested alerts,
// confirmed labels, and the mutable ML settings record.
//
// The package provides thread-safe operations; every mutation runs inside a
// single BoltDB transaction.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"alertguard/internal/alert"
	"alertguard/internal/features"
	"alertguard/internal/model"

	"go.etcd.io/bbolt"
)

const (
	alertsBucket   = "alerts"
	labelsBucket   = "labels"
	settingsBucket = "settings"

	settingsKey = "ml_settings"
)

// StoredAlert is the persisted envelope around a raw alert record, carrying
// the prediction and label state accumulated over its lifetime.
type StoredAlert struct {
	ID         string       `json:"id"`
	Record     alert.Record `json:"record"`
	ReceivedAt time.Time    `json:"received_at"`

	PredictedLabel string     `json:"predicted_label,omitempty"`
	PredictedScore *float64   `json:"predicted_score,omitempty"`
	ModelVersion   string     `json:"model_version,omitempty"`
	PredictedAt    *time.Time `json:"predicted_at,omitempty"`
}

// Store provides persistent storage for alerts, labels, and settings.
type Store struct {
	db *bbolt.DB
}

// New opens the store under dataPath, creating buckets as needed.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "alertguard.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{alertsBucket, labelsBucket, settingsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveAlert persists a raw alert under its stable ID. Re-delivery of the
// same alert is a no-op for the record itself; prediction and label state
// already attached to it are preserved.
func (s *Store) SaveAlert(rec alert.Record) (string, error) {
	id := rec.ID()
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(alertsBucket))
		if b.Get([]byte(id)) != nil {
			return nil
		}
		stored := StoredAlert{
			ID:         id,
			Record:     rec,
			ReceivedAt: time.Now().UTC(),
		}
		data, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("marshal alert: %w", err)
		}
		return b.Put([]byte(id), data)
	})
	return id, err
}

// GetAlert returns a stored alert, or nil when unknown.
func (s *Store) GetAlert(id string) (*StoredAlert, error) {
	var stored *StoredAlert
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(alertsBucket)).Get([]byte(id))
		if data == nil {
			return nil
		}
		var sa StoredAlert
		if err := json.Unmarshal(data, &sa); err != nil {
			return fmt.Errorf("unmarshal alert %s: %w", id, err)
		}
		stored = &sa
		return nil
	})
	return stored, err
}

// RecordPrediction stamps the model's verdict onto the stored alert.
func (s *Store) RecordPrediction(id, label string, score float64, modelVersion string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(alertsBucket))
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("alert %s not found", id)
		}
		var stored StoredAlert
		if err := json.Unmarshal(data, &stored); err != nil {
			return fmt.Errorf("unmarshal alert %s: %w", id, err)
		}
		now := time.Now().UTC()
		stored.PredictedLabel = label
		stored.PredictedScore = &score
		stored.ModelVersion = modelVersion
		stored.PredictedAt = &now

		updated, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("marshal alert %s: %w", id, err)
		}
		return b.Put([]byte(id), updated)
	})
}

// SaveLabel records a confirmed classification for an alert, keyed by alert
// ID so repeated evaluation of the same alert cannot create duplicate or
// conflicting entries. An auto-classification never overwrites an existing
// label; a human decision overwrites anything.
func (s *Store) SaveLabel(alertID, label, provenance string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(labelsBucket))

		if existing := b.Get([]byte(alertID)); existing != nil && provenance == alert.ProvenanceAuto {
			return nil
		}

		rec := alert.LabelRecord{
			AlertID:    alertID,
			Label:      label,
			Provenance: provenance,
			LabeledAt:  time.Now().UTC(),
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal label: %w", err)
		}
		return b.Put([]byte(alertID), data)
	})
}

// GetLabel returns the label record for an alert, or nil when unlabeled.
func (s *Store) GetLabel(alertID string) (*alert.LabelRecord, error) {
	var rec *alert.LabelRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(labelsBucket)).Get([]byte(alertID))
		if data == nil {
			return nil
		}
		var lr alert.LabelRecord
		if err := json.Unmarshal(data, &lr); err != nil {
			return fmt.Errorf("unmarshal label %s: %w", alertID, err)
		}
		rec = &lr
		return nil
	})
	return rec, err
}

// QueryLabeled returns the training corpus: every stored alert with a
// confirmed label. Features are re-extracted from the stored raw record
// through the shared schema, so training and inference encode identically.
func (s *Store) QueryLabeled(ctx context.Context) ([]model.Sample, error) {
	var samples []model.Sample
	err := s.db.View(func(tx *bbolt.Tx) error {
		labels := tx.Bucket([]byte(labelsBucket))
		alerts := tx.Bucket([]byte(alertsBucket))

		return labels.ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec alert.LabelRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil // skip malformed records
			}

			data := alerts.Get(k)
			if data == nil {
				return nil
			}
			var stored StoredAlert
			if err := json.Unmarshal(data, &stored); err != nil {
				return nil
			}

			samples = append(samples, model.Sample{
				Features: features.Extract(stored.Record),
				Positive: rec.Label == alert.LabelMalicious,
			})
			return nil
		})
	})
	return samples, err
}
