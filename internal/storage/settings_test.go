package storage

import (
	"testing"
	"time"
)

func TestRetrainInterval(t *testing.T) {
	testCases := []struct {
		name     string
		value    int
		unit     string
		expected time.Duration
	}{
		{"hours", 24, UnitHours, 24 * time.Hour},
		{"minutes", 30, UnitMinutes, 30 * time.Minute},
		{"single hour", 1, UnitHours, time.Hour},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := Settings{RetrainIntervalValue: tc.value, RetrainIntervalUnit: tc.unit}
			if got := s.RetrainInterval(); got != tc.expected {
				t.Errorf("Expected %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestSettingsValidate(t *testing.T) {
	valid := DefaultSettings()
	if err := valid.Validate(); err != nil {
		t.Errorf("Default settings should validate, got %v", err)
	}

	testCases := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"zero interval", func(s *Settings) { s.RetrainIntervalValue = 0 }},
		{"negative interval", func(s *Settings) { s.RetrainIntervalValue = -5 }},
		{"bad unit", func(s *Settings) { s.RetrainIntervalUnit = "days" }},
		{"threshold above one", func(s *Settings) { s.ConfidenceThreshold = 1.5 }},
		{"negative threshold", func(s *Settings) { s.ConfidenceThreshold = -0.1 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := DefaultSettings()
			tc.mutate(&s)
			if err := s.Validate(); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}
