package model

import "time"

// Config holds the complete hopqa configuration
type Config struct {
	LLM         LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Vision      LLMConfig         `yaml:"vision" mapstructure:"vision"`
	Models      ModelsConfig      `yaml:"models" mapstructure:"models"`
	Paths       PathsConfig       `yaml:"paths" mapstructure:"paths"`
	Range       RangeConfig       `yaml:"range" mapstructure:"range"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Retry       RetryConfig       `yaml:"retry" mapstructure:"retry"`
	Generation  SamplingConfig    `yaml:"generation" mapstructure:"generation"`
	Verify      SamplingConfig    `yaml:"verify" mapstructure:"verify"`
	Leakage     LeakageConfig     `yaml:"leakage" mapstructure:"leakage"`
	Visual      VisualConfig      `yaml:"visual" mapstructure:"visual"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit" mapstructure:"rate_limit"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
	Metrics     MetricsConfig     `yaml:"metrics" mapstructure:"metrics"`
}

// LLMConfig selects and configures one oracle backend
type LLMConfig struct {
	Provider   string        `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama, openai-compatible
	APIKey     string        `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL    string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"` // Per call
	HTTPProxy  string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy    string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// ModelsConfig names the model used by each oracle-backed stage
type ModelsConfig struct {
	Generation string `yaml:"generation" mapstructure:"generation"`
	Leakage    string `yaml:"leakage" mapstructure:"leakage"`
	Logic      string `yaml:"logic" mapstructure:"logic"`
	Necessity  string `yaml:"necessity" mapstructure:"necessity"`
	Visual     string `yaml:"visual" mapstructure:"visual"`
}

// PathsConfig locates inputs and the results tree
type PathsConfig struct {
	CaptionDir string `yaml:"caption_dir" mapstructure:"caption_dir"` // One <unit>.json caption file per video
	VideoDir   string `yaml:"video_dir" mapstructure:"video_dir"`     // Clip files for stage 6
	ResultsDir string `yaml:"results_dir" mapstructure:"results_dir"` // Root of all stage outputs
}

// RangeConfig selects a slice of the sorted source-unit list.
// End <= 0 means no upper bound.
type RangeConfig struct {
	Start int `yaml:"start" mapstructure:"start"`
	End   int `yaml:"end" mapstructure:"end"`
}

// ConcurrencyConfig sizes the per-stage worker pools
type ConcurrencyConfig struct {
	Workers      int `yaml:"workers" mapstructure:"workers"`             // Text-only stages and leakage batches
	VideoWorkers int `yaml:"video_workers" mapstructure:"video_workers"` // Stage 6
}

// RetryConfig bounds oracle retries. The delay between attempts is fixed.
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries" mapstructure:"max_retries"`
	Backoff    time.Duration `yaml:"backoff" mapstructure:"backoff"`
}

// SamplingConfig holds generation options for a family of oracle calls
type SamplingConfig struct {
	Temperature float32 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// LeakageConfig tunes the stage 3 audit
type LeakageConfig struct {
	BatchSize     int `yaml:"batch_size" mapstructure:"batch_size"`
	ProgressEvery int `yaml:"progress_every" mapstructure:"progress_every"`
}

// VisualConfig tunes stage 6
type VisualConfig struct {
	CallDelay   time.Duration `yaml:"call_delay" mapstructure:"call_delay"` // Pause after every oracle attempt
	Temperature float32       `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// RateLimitConfig throttles oracle requests per model. Zero disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64            `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int                `yaml:"burst" mapstructure:"burst"`
	PerModel          map[string]float64 `yaml:"per_model,omitempty" mapstructure:"per_model"` // Overrides keyed by model name
}

// CacheConfig controls the oracle response cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// LogConfig controls process logging
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`   // console or json
	ToFile bool   `yaml:"to_file" mapstructure:"to_file"` // Also append to <stage dir>/<stage>.log
}

// MetricsConfig controls the prometheus textfile export
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// DefaultConfig returns the defaults used by the curation runs
func DefaultConfig() Config {
	return Config{
		LLM: LLMConfig{
			Provider: "openai",
			BaseURL:  "https://api.openai.com/v1",
			Timeout:  180 * time.Second,
		},
		Vision: LLMConfig{
			Provider: "openai-compatible",
			BaseURL:  "https://api.openai.com/v1",
			Timeout:  180 * time.Second,
		},
		Models: ModelsConfig{
			Generation: "gpt-5.2",
			Leakage:    "gpt-5",
			Logic:      "gpt-5",
			Necessity:  "gpt-5",
			Visual:     "qwen3-vl-235b-a22b-instruct",
		},
		Paths: PathsConfig{
			CaptionDir: "data/captions",
			VideoDir:   "data/clips",
			ResultsDir: "results",
		},
		Range: RangeConfig{
			Start: 0,
			End:   467,
		},
		Concurrency: ConcurrencyConfig{
			Workers:      30,
			VideoWorkers: 8,
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			Backoff:    2 * time.Second,
		},
		Generation: SamplingConfig{
			Temperature: 0.7,
			MaxTokens:   8192,
		},
		Verify: SamplingConfig{
			Temperature: 0.1,
			MaxTokens:   4096,
		},
		Leakage: LeakageConfig{
			BatchSize:     10,
			ProgressEvery: 10,
		},
		Visual: VisualConfig{
			CallDelay:   1 * time.Second,
			Temperature: 0,
			MaxTokens:   8192,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 0,
			Burst:             5,
		},
		Cache: CacheConfig{
			Enabled:   false,
			Dir:       ".hopqa-cache",
			MemoryTTL: 1 * time.Hour,
			DiskTTL:   30 * 24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
			ToFile: true,
		},
	}
}
