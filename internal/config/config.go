// Package config loads process configuration from an optional YAML file
// overlaid with environment variables. Environment wins over file, file
// wins over defaults.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr = ":8080"
	defaultDBPath     = "ecoscen.db"
	defaultWorkers    = 1

	envConfigFile = "ECOSCEN_CONFIG"
	envListenAddr = "ECOSCEN_LISTEN_ADDR"
	envDBPath     = "ECOSCEN_DB_PATH"
	envLogLevel   = "ECOSCEN_LOG_LEVEL"
	envWorkers    = "ECOSCEN_WORKERS"
	envEngineCmd  = "ECOSCEN_ENGINE_CMD"
	envWorkDir    = "ECOSCEN_WORK_DIR"
)

// Config holds application configuration.
type Config struct {
	// ListenAddr is the HTTP API bind address.
	ListenAddr string
	// DBPath locates the run journal database.
	DBPath string
	LogLevel slog.Level
	// Workers is the default engine handle count for batch runs.
	Workers int
	// EngineCmd is the engine host executable, invoked once per handle.
	EngineCmd string
	// WorkDir receives per-worker model copies. Empty means a
	// temporary directory per batch.
	WorkDir string
}

// fileConfig is the YAML shape of a config file. All fields are
// optional.
type fileConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	DBPath     string `yaml:"db_path"`
	LogLevel   string `yaml:"log_level"`
	Workers    int    `yaml:"workers"`
	EngineCmd  string `yaml:"engine_cmd"`
	WorkDir    string `yaml:"work_dir"`
}

// Load reads configuration with sensible defaults, overlaying the YAML
// file named by ECOSCEN_CONFIG (if any) and then the environment.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr: defaultListenAddr,
		DBPath:     defaultDBPath,
		LogLevel:   slog.LevelInfo,
		Workers:    defaultWorkers,
	}

	if path := os.Getenv(envConfigFile); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	var fc fileConfig
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.ListenAddr != "" {
		c.ListenAddr = fc.ListenAddr
	}
	if fc.DBPath != "" {
		c.DBPath = fc.DBPath
	}
	if fc.LogLevel != "" {
		c.LogLevel = parseLogLevel(fc.LogLevel)
	}
	if fc.Workers > 0 {
		c.Workers = fc.Workers
	}
	if fc.EngineCmd != "" {
		c.EngineCmd = fc.EngineCmd
	}
	if fc.WorkDir != "" {
		c.WorkDir = fc.WorkDir
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(envListenAddr); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		c.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return fmt.Errorf("%s: invalid worker count %q", envWorkers, v)
		}
		c.Workers = n
	}
	if v := os.Getenv(envEngineCmd); v != "" {
		c.EngineCmd = v
	}
	if v := os.Getenv(envWorkDir); v != "" {
		c.WorkDir = v
	}
	return nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
