// Package cfg loads service configuration from a YAML file and/or the
// environment. Environment variables always win over file values.
package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	ListenAddr    string
	APIKey        string
	DataPath      string
	ModelsDir     string
	ProbThreshold float64
	TrainSeed     int64

	// Optional upstream SIEM integration. Empty URLs disable the
	// corresponding client.
	SIEMBaseURL string
	SIEMWsURL   string
	SIEMToken   string

	RESTTimeout  time.Duration
	PingInterval time.Duration
}

type ConfigFile struct {
	Server struct {
		ListenAddr string `yaml:"listenAddr"`
		APIKey     string `yaml:"apiKey"`
	} `yaml:"server"`

	Storage struct {
		DataPath  string `yaml:"dataPath"`
		ModelsDir string `yaml:"modelsDir"`
	} `yaml:"storage"`

	ML struct {
		ProbThreshold float64 `yaml:"probThreshold"`
		TrainSeed     int64   `yaml:"trainSeed"`
	} `yaml:"ml"`

	SIEM struct {
		BaseURL      string `yaml:"baseURL"`
		WsURL        string `yaml:"wsURL"`
		Token        string `yaml:"token"`
		RESTTimeout  string `yaml:"restTimeout"`
		PingInterval string `yaml:"pingInterval"`
	} `yaml:"siem"`
}

// Load reads configuration. A .env file in the working directory is applied
// first (missing is fine), then CONFIG_FILE selects a YAML file, and plain
// environment variables fill in or override the rest.
func Load() (Settings, error) {
	_ = godotenv.Load()

	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	restTimeout, err := time.ParseDuration(config.SIEM.RESTTimeout)
	if err != nil {
		restTimeout = 10 * time.Second
	}
	ping, err := time.ParseDuration(config.SIEM.PingInterval)
	if err != nil {
		ping = 15 * time.Second
	}

	settings := Settings{
		ListenAddr:    getEnvOrDefault("LISTEN_ADDR", orDefault(config.Server.ListenAddr, ":8090")),
		APIKey:        getEnvOrDefault("API_KEY", config.Server.APIKey),
		DataPath:      getEnvOrDefault("DATA_PATH", orDefault(config.Storage.DataPath, "data")),
		ModelsDir:     getEnvOrDefault("MODELS_DIR", orDefault(config.Storage.ModelsDir, "models")),
		ProbThreshold: getFloatFromEnvOrConfig("PROB_THRESHOLD", config.ML.ProbThreshold, 0.5),
		TrainSeed:     getInt64FromEnvOrConfig("TRAIN_SEED", config.ML.TrainSeed, 42),
		SIEMBaseURL:   getEnvOrDefault("SIEM_BASE_URL", config.SIEM.BaseURL),
		SIEMWsURL:     getEnvOrDefault("SIEM_WS_URL", config.SIEM.WsURL),
		SIEMToken:     getEnvOrDefault("SIEM_TOKEN", config.SIEM.Token),
		RESTTimeout:   restTimeout,
		PingInterval:  ping,
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		ListenAddr:    getEnvOrDefault("LISTEN_ADDR", ":8090"),
		APIKey:        os.Getenv("API_KEY"),
		DataPath:      getEnvOrDefault("DATA_PATH", "data"),
		ModelsDir:     getEnvOrDefault("MODELS_DIR", "models"),
		ProbThreshold: getFloatOrDefault("PROB_THRESHOLD", 0.5),
		TrainSeed:     getInt64OrDefault("TRAIN_SEED", 42),
		SIEMBaseURL:   os.Getenv("SIEM_BASE_URL"),
		SIEMWsURL:     os.Getenv("SIEM_WS_URL"),
		SIEMToken:     os.Getenv("SIEM_TOKEN"),
		RESTTimeout:   getDurationOrDefault("REST_TIMEOUT", 10*time.Second),
		PingInterval:  getDurationOrDefault("PING_INTERVAL", 15*time.Second),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getInt64OrDefault(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getInt64FromEnvOrConfig(key string, configValue, defaultValue int64) int64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseInt(env, 10, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func validateSettings(settings *Settings) error {
	if settings.ListenAddr == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	if settings.DataPath == "" {
		return fmt.Errorf("data path cannot be empty")
	}
	if settings.ModelsDir == "" {
		return fmt.Errorf("models directory cannot be empty")
	}
	if settings.ProbThreshold <= 0 || settings.ProbThreshold >= 1 {
		return fmt.Errorf("probability threshold must be in (0,1), got %f", settings.ProbThreshold)
	}
	if settings.RESTTimeout < time.Second || settings.RESTTimeout > time.Minute {
		return fmt.Errorf("REST timeout must be between 1s and 1m, got %v", settings.RESTTimeout)
	}
	if settings.PingInterval < time.Second || settings.PingInterval > 5*time.Minute {
		return fmt.Errorf("ping interval must be between 1s and 5m, got %v", settings.PingInterval)
	}
	if settings.SIEMWsURL != "" && settings.SIEMBaseURL == "" {
		return fmt.Errorf("SIEM WebSocket URL requires a SIEM base URL")
	}
	return nil
}
