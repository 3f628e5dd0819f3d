package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// Retrain interval units.
const (
	UnitMinutes = "minutes"
	UnitHours   = "hours"
)

// Settings is the single mutable ML configuration record. The scheduler
// reads it as a consistent snapshot on every decision point.
type Settings struct {
	RetrainIntervalValue int     `json:"retrain_interval_value"`
	RetrainIntervalUnit  string  `json:"retrain_interval_unit"`
	ConfidenceThreshold  float64 `json:"confidence_threshold"`
	AutoClassify         bool    `json:"auto_classify"`
	SchedulerEnabled     bool    `json:"scheduler_enabled"`
}

// DefaultSettings mirrors the defaults the service ships with: daily
// retraining, auto-classification off.
func DefaultSettings() Settings {
	return Settings{
		RetrainIntervalValue: 24,
		RetrainIntervalUnit:  UnitHours,
		ConfidenceThreshold:  0.85,
		AutoClassify:         false,
		SchedulerEnabled:     true,
	}
}

// RetrainInterval converts the value/unit pair to a duration.
func (s Settings) RetrainInterval() time.Duration {
	switch s.RetrainIntervalUnit {
	case UnitMinutes:
		return time.Duration(s.RetrainIntervalValue) * time.Minute
	default:
		return time.Duration(s.RetrainIntervalValue) * time.Hour
	}
}

// Validate rejects settings values outside their documented ranges.
func (s Settings) Validate() error {
	if s.RetrainIntervalValue <= 0 {
		return fmt.Errorf("retrain interval value must be positive, got %d", s.RetrainIntervalValue)
	}
	if s.RetrainIntervalUnit != UnitMinutes && s.RetrainIntervalUnit != UnitHours {
		return fmt.Errorf("retrain interval unit must be %q or %q, got %q", UnitMinutes, UnitHours, s.RetrainIntervalUnit)
	}
	if s.ConfidenceThreshold < 0 || s.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold must be in [0,1], got %f", s.ConfidenceThreshold)
	}
	return nil
}

// SettingsPatch is a partial settings update; nil fields are left unchanged.
type SettingsPatch struct {
	RetrainIntervalValue *int     `json:"retrain_interval_value,omitempty"`
	RetrainIntervalUnit  *string  `json:"retrain_interval_unit,omitempty"`
	ConfidenceThreshold  *float64 `json:"confidence_threshold,omitempty"`
	AutoClassify         *bool    `json:"auto_classify,omitempty"`
	SchedulerEnabled     *bool    `json:"scheduler_enabled,omitempty"`
}

// GetSettings returns the persisted settings record, creating it with
// defaults on first use.
func (s *Store) GetSettings() (Settings, error) {
	settings := DefaultSettings()
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(settingsBucket))
		data := b.Get([]byte(settingsKey))
		if data == nil {
			initial, err := json.Marshal(settings)
			if err != nil {
				return fmt.Errorf("marshal default settings: %w", err)
			}
			return b.Put([]byte(settingsKey), initial)
		}
		return json.Unmarshal(data, &settings)
	})
	return settings, err
}

// UpdateSettings applies a partial update inside one transaction and returns
// the resulting record. Readers never observe a half-applied interval/unit
// pair.
func (s *Store) UpdateSettings(patch SettingsPatch) (Settings, error) {
	updated := DefaultSettings()
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(settingsBucket))
		if data := b.Get([]byte(settingsKey)); data != nil {
			if err := json.Unmarshal(data, &updated); err != nil {
				return fmt.Errorf("unmarshal settings: %w", err)
			}
		}

		if patch.RetrainIntervalValue != nil {
			updated.RetrainIntervalValue = *patch.RetrainIntervalValue
		}
		if patch.RetrainIntervalUnit != nil {
			updated.RetrainIntervalUnit = *patch.RetrainIntervalUnit
		}
		if patch.ConfidenceThreshold != nil {
			updated.ConfidenceThreshold = *patch.ConfidenceThreshold
		}
		if patch.AutoClassify != nil {
			updated.AutoClassify = *patch.AutoClassify
		}
		if patch.SchedulerEnabled != nil {
			updated.SchedulerEnabled = *patch.SchedulerEnabled
		}

		if err := updated.Validate(); err != nil {
			return err
		}

		data, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("marshal settings: %w", err)
		}
		return b.Put([]byte(settingsKey), data)
	})
	return updated, err
}
