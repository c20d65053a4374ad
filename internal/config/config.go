// Package config loads analyzer settings from an optional config file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Batch drivers select how the batch pipeline talks to the engine.
const (
	DriverSession = "session" // streaming session with partial results on timeout
	DriverUCI     = "uci"     // blocking fixed-depth search per move
)

// Config is the full configuration surface. Keys double as environment variable names.
type Config struct {
	StockfishPath    string `mapstructure:"STOCKFISH_PATH"`
	StockfishEnabled bool   `mapstructure:"STOCKFISH_ENABLED"`
	EngineName       string `mapstructure:"STOCKFISH_ENGINE_NAME"`
	BatchDepth       int    `mapstructure:"STOCKFISH_DEPTH"`
	MoveTimeoutMS    int    `mapstructure:"STOCKFISH_TIMEOUT_MS"`
	BatchDriver      string `mapstructure:"STOCKFISH_BATCH_DRIVER"`

	LiveMinDepth   int `mapstructure:"LIVE_MIN_DEPTH"`
	LiveMaxDepth   int `mapstructure:"LIVE_MAX_DEPTH"`
	LiveDepthStep  int `mapstructure:"LIVE_DEPTH_STEP"`
	LiveDebounceMS int `mapstructure:"LIVE_DEBOUNCE_MS"`

	SkillLevel int `mapstructure:"ENGINE_SKILL_LEVEL"`
	MultiPV    int `mapstructure:"ENGINE_MULTIPV"`
	HashMB     int `mapstructure:"ENGINE_HASH_MB"`
	Threads    int `mapstructure:"ENGINE_THREADS"`

	RedisURL      string `mapstructure:"REDIS_URL"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	QueueKey      string `mapstructure:"ANALYSIS_QUEUE_KEY"`

	MongoURI      string `mapstructure:"MONGO_URI"`
	MongoDatabase string `mapstructure:"MONGO_DATABASE"`
	StoreDir      string `mapstructure:"STORE_DIR"`

	IngestDir string `mapstructure:"INGEST_DIR"`
	ECODir    string `mapstructure:"ECO_DIR"`
	HTTPAddr  string `mapstructure:"HTTP_ADDR"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
}

var defaults = map[string]any{
	"STOCKFISH_PATH":         "stockfish",
	"STOCKFISH_ENABLED":      false,
	"STOCKFISH_ENGINE_NAME":  "Stockfish",
	"STOCKFISH_DEPTH":        12,
	"STOCKFISH_TIMEOUT_MS":   4000,
	"STOCKFISH_BATCH_DRIVER": DriverSession,
	"LIVE_MIN_DEPTH":         10,
	"LIVE_MAX_DEPTH":         60,
	"LIVE_DEPTH_STEP":        5,
	"LIVE_DEBOUNCE_MS":       100,
	"ENGINE_SKILL_LEVEL":     18,
	"ENGINE_MULTIPV":         1,
	"ENGINE_HASH_MB":         64,
	"ENGINE_THREADS":         1,
	"REDIS_URL":              "",
	"REDIS_PASSWORD":         "",
	"ANALYSIS_QUEUE_KEY":     "chess:analyzer:analysis-jobs",
	"MONGO_URI":              "",
	"MONGO_DATABASE":         "chess_analyzer",
	"STORE_DIR":              "./data/games",
	"INGEST_DIR":             "",
	"ECO_DIR":                "",
	"HTTP_ADDR":              ":8007",
	"LOG_LEVEL":              "info",
}

// Load reads configuration. cfgPath may be empty, in which case only defaults and
// environment variables apply.
func Load(cfgPath string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that depth and timeout settings are coherent.
func (c *Config) Validate() error {
	var errs []error
	if c.LiveMinDepth < 1 {
		errs = append(errs, fmt.Errorf("LIVE_MIN_DEPTH must be >= 1, got %d", c.LiveMinDepth))
	}
	if c.LiveMaxDepth < c.LiveMinDepth {
		errs = append(errs, fmt.Errorf("LIVE_MAX_DEPTH (%d) must be >= LIVE_MIN_DEPTH (%d)", c.LiveMaxDepth, c.LiveMinDepth))
	}
	if c.LiveDepthStep < 1 {
		errs = append(errs, fmt.Errorf("LIVE_DEPTH_STEP must be >= 1, got %d", c.LiveDepthStep))
	}
	if c.LiveDebounceMS < 0 {
		errs = append(errs, fmt.Errorf("LIVE_DEBOUNCE_MS must be >= 0, got %d", c.LiveDebounceMS))
	}
	if c.BatchDepth < 1 {
		errs = append(errs, fmt.Errorf("STOCKFISH_DEPTH must be >= 1, got %d", c.BatchDepth))
	}
	if c.MoveTimeoutMS <= 0 {
		errs = append(errs, fmt.Errorf("STOCKFISH_TIMEOUT_MS must be > 0, got %d", c.MoveTimeoutMS))
	}
	if c.MultiPV < 1 {
		errs = append(errs, fmt.Errorf("ENGINE_MULTIPV must be >= 1, got %d", c.MultiPV))
	}
	if c.SkillLevel < 0 || c.SkillLevel > 20 {
		errs = append(errs, fmt.Errorf("ENGINE_SKILL_LEVEL must be in 0..20, got %d", c.SkillLevel))
	}
	switch strings.ToLower(c.BatchDriver) {
	case DriverSession, DriverUCI:
		c.BatchDriver = strings.ToLower(c.BatchDriver)
	default:
		errs = append(errs, fmt.Errorf("unknown STOCKFISH_BATCH_DRIVER %q", c.BatchDriver))
	}
	return errors.Join(errs...)
}

// MoveTimeout is the per-move evaluation bound for batch analysis.
func (c *Config) MoveTimeout() time.Duration {
	return time.Duration(c.MoveTimeoutMS) * time.Millisecond
}

// Debounce is the live controller's coalescing window.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.LiveDebounceMS) * time.Millisecond
}
