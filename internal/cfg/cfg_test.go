package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "LISTEN_ADDR", "API_KEY", "DATA_PATH", "MODELS_DIR",
		"PROB_THRESHOLD", "TRAIN_SEED", "SIEM_BASE_URL", "SIEM_WS_URL",
		"SIEM_TOKEN", "REST_TIMEOUT", "PING_INTERVAL",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_EnvDefaults(t *testing.T) {
	clearEnv(t)

	c, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if c.ListenAddr != ":8090" {
		t.Errorf("Expected default listen addr, got %q", c.ListenAddr)
	}
	if c.ProbThreshold != 0.5 {
		t.Errorf("Expected default threshold 0.5, got %f", c.ProbThreshold)
	}
	if c.TrainSeed != 42 {
		t.Errorf("Expected default seed 42, got %d", c.TrainSeed)
	}
	if c.RESTTimeout != 10*time.Second {
		t.Errorf("Expected default REST timeout, got %v", c.RESTTimeout)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("PROB_THRESHOLD", "0.7")
	t.Setenv("TRAIN_SEED", "1234")
	t.Setenv("DATA_PATH", "/tmp/ag-data")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.ListenAddr != ":9999" {
		t.Errorf("Listen addr override not applied: %q", c.ListenAddr)
	}
	if c.ProbThreshold != 0.7 {
		t.Errorf("Threshold override not applied: %f", c.ProbThreshold)
	}
	if c.TrainSeed != 1234 {
		t.Errorf("Seed override not applied: %d", c.TrainSeed)
	}
	if c.DataPath != "/tmp/ag-data" {
		t.Errorf("Data path override not applied: %q", c.DataPath)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	clearEnv(t)

	content := `
server:
  listenAddr: ":7070"
  apiKey: "yaml-key"
storage:
  dataPath: "/var/lib/ag"
  modelsDir: "/var/lib/ag/models"
ml:
  probThreshold: 0.65
  trainSeed: 7
siem:
  baseURL: "https://siem.local"
  wsURL: "wss://siem.local/feed"
  token: "t0k3n"
  restTimeout: "20s"
  pingInterval: "30s"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	c, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.ListenAddr != ":7070" || c.APIKey != "yaml-key" {
		t.Errorf("Server section not applied: %+v", c)
	}
	if c.ProbThreshold != 0.65 || c.TrainSeed != 7 {
		t.Errorf("ML section not applied: %+v", c)
	}
	if c.SIEMBaseURL != "https://siem.local" || c.SIEMWsURL != "wss://siem.local/feed" {
		t.Errorf("SIEM section not applied: %+v", c)
	}
	if c.RESTTimeout != 20*time.Second || c.PingInterval != 30*time.Second {
		t.Errorf("Durations not parsed: %v / %v", c.RESTTimeout, c.PingInterval)
	}
}

func TestLoad_EnvBeatsYAML(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("server:\n  listenAddr: \":7070\"\n"), 0o600)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LISTEN_ADDR", ":6060")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.ListenAddr != ":6060" {
		t.Errorf("Expected env to win over YAML, got %q", c.ListenAddr)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", "/nonexistent/config.yaml")

	if _, err := Load(); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"threshold too high", func(s *Settings) { s.ProbThreshold = 1.0 }},
		{"threshold zero", func(s *Settings) { s.ProbThreshold = 0 }},
		{"empty data path", func(s *Settings) { s.DataPath = "" }},
		{"tiny rest timeout", func(s *Settings) { s.RESTTimeout = time.Millisecond }},
		{"ws without base", func(s *Settings) { s.SIEMWsURL = "wss://x"; s.SIEMBaseURL = "" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := Settings{
				ListenAddr:    ":8090",
				DataPath:      "data",
				ModelsDir:     "models",
				ProbThreshold: 0.5,
				RESTTimeout:   10 * time.Second,
				PingInterval:  15 * time.Second,
			}
			tc.mutate(&s)
			if err := validateSettings(&s); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}
