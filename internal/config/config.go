package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings for one analysis run or a long-lived serve
// process. Every knob the engine consults lives here; components never read
// package-level state.
type Config struct {
	Pipeline   PipelineConfig  `yaml:"pipeline"`
	Thresholds ThresholdConfig `yaml:"thresholds"`
	Rules      RulesConfig     `yaml:"rules"`
	Server     ServerConfig    `yaml:"server"`
	Logging    LoggingConfig   `yaml:"logging"`
}

// PipelineConfig controls correlation and scoring behaviour.
type PipelineConfig struct {
	// CorrelationTolerance is the maximum |log ts - metric ts| allowed when
	// attaching a snapshot. Outside it the record keeps a nil snapshot.
	CorrelationTolerance time.Duration `yaml:"correlationTolerance"`
	// Contamination is the expected anomalous fraction of the batch, in (0, 0.5).
	Contamination float64 `yaml:"contamination"`
	// Seed drives every random choice in the scorer so reports reproduce.
	Seed int64 `yaml:"seed"`
	// MinRecords is the smallest batch the scorer will fit a model on.
	MinRecords int `yaml:"minRecords"`
	// Trees and SampleSize parameterize the isolation ensemble.
	Trees      int `yaml:"trees"`
	SampleSize int `yaml:"sampleSize"`
	// TopErrors truncates the summary's recurring-message list.
	TopErrors int `yaml:"topErrors"`
	// DropInformational removes INFO/DEBUG records and known startup chatter
	// before scoring.
	DropInformational bool `yaml:"dropInformational"`
}

// ThresholdConfig holds the metric levels above which the annotator emits a
// root-cause suggestion.
type ThresholdConfig struct {
	CPUHigh        float64 `yaml:"cpuHigh"`
	HeapHighRatio  float64 `yaml:"heapHighRatio"`
	ErrorRateHigh  float64 `yaml:"errorRateHigh"`
	LatencyHighMs  float64 `yaml:"latencyHighMs"`
	PoolActiveHigh float64 `yaml:"poolActiveHigh"`
}

// RulesConfig controls keyword rule-pack loading for the annotator. An empty
// path selects the built-in pack.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig controls the HTTP trigger surface used by `serve`.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("RCA_PIPELINE_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Pipeline.Contamination <= 0 || c.Pipeline.Contamination >= 0.5 {
		return fmt.Errorf("contamination %v outside (0, 0.5)", c.Pipeline.Contamination)
	}
	if c.Pipeline.CorrelationTolerance <= 0 {
		return fmt.Errorf("correlation tolerance must be positive, got %v", c.Pipeline.CorrelationTolerance)
	}
	if c.Pipeline.MinRecords < 2 {
		return fmt.Errorf("minRecords must be at least 2, got %d", c.Pipeline.MinRecords)
	}
	if c.Pipeline.Trees <= 0 || c.Pipeline.SampleSize <= 1 {
		return fmt.Errorf("invalid ensemble size: trees=%d sampleSize=%d", c.Pipeline.Trees, c.Pipeline.SampleSize)
	}
	if c.Pipeline.TopErrors <= 0 {
		return fmt.Errorf("topErrors must be positive, got %d", c.Pipeline.TopErrors)
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Pipeline: PipelineConfig{
			CorrelationTolerance: 15 * time.Second,
			Contamination:        0.08,
			Seed:                 42,
			MinRecords:           10,
			Trees:                100,
			SampleSize:           256,
			TopErrors:            10,
			DropInformational:    true,
		},
		Thresholds: ThresholdConfig{
			CPUHigh:        0.85,
			HeapHighRatio:  0.90,
			ErrorRateHigh:  0.05,
			LatencyHighMs:  1000,
			PoolActiveHigh: 8,
		},
		Rules: RulesConfig{Path: ""},
		Server: ServerConfig{
			Address:         ":8093",
			GracefulTimeout: 10 * time.Second,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RCA_PIPELINE_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("RCA_PIPELINE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RCA_PIPELINE_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("RCA_PIPELINE_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := os.Getenv("RCA_PIPELINE_TOLERANCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pipeline.CorrelationTolerance = d
		}
	}
	if v := os.Getenv("RCA_PIPELINE_CONTAMINATION"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Pipeline.Contamination = f
		}
	}
	if v := os.Getenv("RCA_PIPELINE_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Pipeline.Seed = n
		}
	}
	if v := os.Getenv("RCA_PIPELINE_KEEP_INFO"); strings.EqualFold(v, "true") || v == "1" {
		cfg.Pipeline.DropInformational = false
	}
}
