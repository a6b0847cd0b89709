// Package config loads the converter settings from viper and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/cache"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/output"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/tts"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/tts/engines"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
)

// AppName names the config file, the env prefix and the user directories
const AppName = "mangarecap"

// Config is the full converter configuration.
type Config struct {
	Engine string
	Voice  string
	Prompt string
	Debug  bool

	Output      OutputConfig
	MaxInFlight int
	MetricsAddr string
	LogFile     string

	Gemini GeminiConfig
	Mock   MockConfig
	Cache  CacheConfig
}

// OutputConfig controls where and what gets written.
type OutputConfig struct {
	Dir   string
	Merge string
	Lines bool
}

// GeminiConfig configures the hosted engine.
type GeminiConfig struct {
	APIKey            string
	BaseURL           string
	SpeechModel       string
	RewriteModel      string
	Timeout           time.Duration
	RequestsPerMinute int
	Rewrite           bool
}

// MockConfig configures the offline engine.
type MockConfig struct {
	MsPerRune  int
	Latency    time.Duration
	BlockWords []string
}

// CacheConfig configures the synthesis payload cache.
type CacheConfig struct {
	Enabled  bool
	Dir      string
	MemoryMB int
	DiskMB   int
	TTL      time.Duration
}

// Env holds the settings read straight from the environment.
type Env struct {
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GoogleAPIKey string `env:"GOOGLE_API_KEY"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Voice: "Kore",
		Output: OutputConfig{
			Dir:   "output",
			Merge: string(output.MergeAuto),
			Lines: true,
		},
		Gemini: GeminiConfig{
			BaseURL:           engines.DefaultGeminiBaseURL,
			SpeechModel:       engines.DefaultGeminiSpeechModel,
			RewriteModel:      engines.DefaultGeminiRewriteModel,
			Timeout:           90 * time.Second,
			RequestsPerMinute: 60,
			Rewrite:           true,
		},
		Mock: MockConfig{
			MsPerRune: 60,
		},
		Cache: CacheConfig{
			Enabled:  true,
			MemoryMB: 64,
			DiskMB:   512,
			TTL:      30 * 24 * time.Hour,
		},
	}
}

// SetDefaults registers the defaults with v so config files only need to
// name what they change.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("engine", d.Engine)
	v.SetDefault("voice", d.Voice)
	v.SetDefault("prompt", d.Prompt)
	v.SetDefault("debug", d.Debug)
	v.SetDefault("max_inflight", d.MaxInFlight)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("log.file", d.LogFile)

	v.SetDefault("output.dir", d.Output.Dir)
	v.SetDefault("output.merge", d.Output.Merge)
	v.SetDefault("output.lines", d.Output.Lines)

	v.SetDefault("gemini.base_url", d.Gemini.BaseURL)
	v.SetDefault("gemini.speech_model", d.Gemini.SpeechModel)
	v.SetDefault("gemini.rewrite_model", d.Gemini.RewriteModel)
	v.SetDefault("gemini.timeout", d.Gemini.Timeout.String())
	v.SetDefault("gemini.requests_per_minute", d.Gemini.RequestsPerMinute)
	v.SetDefault("gemini.rewrite", d.Gemini.Rewrite)

	v.SetDefault("mock.ms_per_rune", d.Mock.MsPerRune)
	v.SetDefault("mock.latency", d.Mock.Latency.String())

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.memory_mb", d.Cache.MemoryMB)
	v.SetDefault("cache.disk_mb", d.Cache.DiskMB)
	v.SetDefault("cache.ttl", d.Cache.TTL.String())
}

// FromViper reads the configuration from v and the environment.
// Environment credentials take precedence over the config file.
func FromViper(v *viper.Viper) (Config, error) {
	SetDefaults(v)
	cfg := Default()

	cfg.Engine = v.GetString("engine")
	cfg.Voice = v.GetString("voice")
	cfg.Prompt = v.GetString("prompt")
	cfg.Debug = v.GetBool("debug")
	cfg.MaxInFlight = v.GetInt("max_inflight")
	cfg.MetricsAddr = v.GetString("metrics_addr")
	cfg.LogFile = expand(v.GetString("log.file"))

	cfg.Output.Dir = expand(v.GetString("output.dir"))
	cfg.Output.Merge = v.GetString("output.merge")
	cfg.Output.Lines = v.GetBool("output.lines")

	cfg.Gemini.APIKey = v.GetString("gemini.api_key")
	cfg.Gemini.BaseURL = v.GetString("gemini.base_url")
	cfg.Gemini.SpeechModel = v.GetString("gemini.speech_model")
	cfg.Gemini.RewriteModel = v.GetString("gemini.rewrite_model")
	cfg.Gemini.RequestsPerMinute = v.GetInt("gemini.requests_per_minute")
	cfg.Gemini.Rewrite = v.GetBool("gemini.rewrite")

	cfg.Mock.MsPerRune = v.GetInt("mock.ms_per_rune")
	cfg.Mock.BlockWords = v.GetStringSlice("mock.block_words")

	cfg.Cache.Enabled = v.GetBool("cache.enabled")
	cfg.Cache.Dir = expand(v.GetString("cache.dir"))
	cfg.Cache.MemoryMB = v.GetInt("cache.memory_mb")
	cfg.Cache.DiskMB = v.GetInt("cache.disk_mb")

	for key, dst := range map[string]*time.Duration{
		"gemini.timeout": &cfg.Gemini.Timeout,
		"mock.latency":   &cfg.Mock.Latency,
		"cache.ttl":      &cfg.Cache.TTL,
	} {
		if !v.IsSet(key) {
			continue
		}
		d, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return cfg, fmt.Errorf("%s: invalid duration %q", key, v.GetString(key))
		}
		*dst = d
	}

	e, err := env.ParseAs[Env]()
	if err != nil {
		return cfg, fmt.Errorf("error parsing environment: %w", err)
	}
	switch {
	case e.GeminiAPIKey != "":
		cfg.Gemini.APIKey = e.GeminiAPIKey
	case e.GoogleAPIKey != "" && cfg.Gemini.APIKey == "":
		cfg.Gemini.APIKey = e.GoogleAPIKey
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges. Engine selection and credentials are checked
// later, once the command line is known.
func (c *Config) Validate() error {
	if _, err := output.ParseMergeMode(c.Output.Merge); err != nil {
		return err
	}
	if c.MaxInFlight < 0 {
		return fmt.Errorf("max_inflight must be 0 (unbounded) or positive, got %d", c.MaxInFlight)
	}
	if c.Gemini.RequestsPerMinute < 1 || c.Gemini.RequestsPerMinute > 10000 {
		return fmt.Errorf("gemini requests_per_minute must be between 1 and 10000, got %d", c.Gemini.RequestsPerMinute)
	}
	if c.Gemini.Timeout < time.Second {
		return fmt.Errorf("gemini timeout must be at least 1 second, got %v", c.Gemini.Timeout)
	}
	if c.Mock.MsPerRune < 1 {
		return fmt.Errorf("mock ms_per_rune must be positive, got %d", c.Mock.MsPerRune)
	}
	if c.Cache.Enabled {
		if c.Cache.MemoryMB < 1 || c.Cache.MemoryMB > 10000 {
			return fmt.Errorf("cache memory_mb must be between 1 and 10000, got %d", c.Cache.MemoryMB)
		}
		if c.Cache.DiskMB < 0 || c.Cache.DiskMB > 100000 {
			return fmt.Errorf("cache disk_mb must be between 0 and 100000, got %d", c.Cache.DiskMB)
		}
	}
	return nil
}

// Request builds the per-run conversion request.
func (c *Config) Request() tts.Request {
	return tts.Request{
		VoiceID:      c.Voice,
		PromptPrefix: c.Prompt,
		Credentials:  tts.Credentials{APIKey: c.Gemini.APIKey},
	}
}

// GeminiEngineConfig converts to the engine's own config.
func (c *Config) GeminiEngineConfig() engines.GeminiConfig {
	return engines.GeminiConfig{
		BaseURL:           c.Gemini.BaseURL,
		SpeechModel:       c.Gemini.SpeechModel,
		RewriteModel:      c.Gemini.RewriteModel,
		Timeout:           c.Gemini.Timeout,
		RequestsPerMinute: c.Gemini.RequestsPerMinute,
	}
}

// MockEngineConfig converts to the engine's own config.
func (c *Config) MockEngineConfig() engines.MockConfig {
	return engines.MockConfig{
		MsPerRune:  c.Mock.MsPerRune,
		Latency:    c.Mock.Latency,
		BlockWords: c.Mock.BlockWords,
	}
}

// CacheManagerConfig converts to the cache config. An empty cache dir means
// the user cache directory.
func (c *Config) CacheManagerConfig() (cache.Config, error) {
	cc := cache.DefaultConfig()
	cc.MemoryCapacity = int64(c.Cache.MemoryMB) * 1024 * 1024
	cc.DiskCapacity = int64(c.Cache.DiskMB) * 1024 * 1024
	cc.TTL = c.Cache.TTL

	if c.Cache.DiskMB == 0 {
		cc.DiskPath = ""
		return cc, nil
	}

	dir := c.Cache.Dir
	if dir == "" {
		d, err := UserCacheDir()
		if err != nil {
			return cc, err
		}
		dir = filepath.Join(d, "synthesis")
	}
	cc.DiskPath = dir
	return cc, nil
}

// UserCacheDir returns the per-user cache directory.
func UserCacheDir() (string, error) {
	return gap.NewScope(gap.User, AppName).CacheDir()
}

// ConfigDirs lists the directories searched for the config file, in order.
func ConfigDirs() ([]string, error) {
	dirs, err := gap.NewScope(gap.User, AppName).ConfigDirs()
	if err != nil {
		return nil, err
	}
	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, AppName)}, dirs...)
	}
	if c := os.Getenv("MANGARECAP_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}
	return dirs, nil
}

func expand(path string) string {
	if path == "" {
		return path
	}
	p, err := homedir.Expand(path)
	if err != nil {
		return path
	}
	return p
}
