package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kestrelsearch/kestrel/internal/ranker"
)

// Config represents the complete kestrel configuration: the provider
// binding, the performance/exclusion knobs IndexManager applies to a run,
// the ranker's fusion weights, and where a repository's store lives on
// disk.
type Config struct {
	DefaultProvider string                    `yaml:"default_provider" json:"default_provider"`
	Providers       map[string]ProviderConfig `yaml:"providers" json:"providers"`
	Performance     PerformanceConfig         `yaml:"performance" json:"performance"`
	Exclusions      ExclusionsConfig          `yaml:"exclusions" json:"exclusions"`
	Ranker          RankerConfig              `yaml:"ranker" json:"ranker"`
	Storage         StorageConfig             `yaml:"storage" json:"storage"`

	// Submodules is carried alongside the mandated sections above: it
	// configures scanner.DiscoverSubmodules, which the walker consults
	// but which has no equivalent in the documented configuration surface.
	Submodules SubmoduleConfig `yaml:"submodules" json:"submodules"`
}

// ProviderConfig binds one named embedding provider to its model, its
// dimensionality, and the limits the RateLimiter/AdaptiveBatcher enforce
// against it.
type ProviderConfig struct {
	Model               string          `yaml:"model" json:"model"`
	Dimensions          int             `yaml:"dimensions" json:"dimensions"`
	MaxTokensPerRequest int             `yaml:"max_tokens_per_request" json:"max_tokens_per_request"`
	RateLimit           RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Enabled             bool            `yaml:"enabled" json:"enabled"`
}

// RateLimitConfig bounds a single provider's sliding 60-second request and
// token windows.
type RateLimitConfig struct {
	MaxRequestsPerMinute int `yaml:"max_requests_per_minute" json:"max_requests_per_minute"`
	MaxTokensPerMinute   int `yaml:"max_tokens_per_minute" json:"max_tokens_per_minute"`
}

// PerformanceConfig configures how an index run is batched, chunked, and
// bounded.
type PerformanceConfig struct {
	Concurrency      int    `yaml:"concurrency" json:"concurrency"`
	BatchSize        int    `yaml:"batch_size" json:"batch_size"`
	MemoryLimit      string `yaml:"memory_limit" json:"memory_limit"`
	ChunkSize        int    `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap     int    `yaml:"chunk_overlap" json:"chunk_overlap"`
	MaxFileSize      int64  `yaml:"max_file_size" json:"max_file_size"`
	AdaptiveBatching bool   `yaml:"adaptive_batching" json:"adaptive_batching"`
}

// ExclusionsConfig configures which files the Walker skips.
type ExclusionsConfig struct {
	Patterns    []string `yaml:"patterns" json:"patterns"`
	Extensions  []string `yaml:"extensions" json:"extensions"`
	Directories []string `yaml:"directories" json:"directories"`
	MaxFileSize int64    `yaml:"max_file_size" json:"max_file_size"`
	MinFileSize int64    `yaml:"min_file_size" json:"min_file_size"`
}

// RankerConfig configures the Ranker's score fusion.
type RankerConfig struct {
	Weights WeightsConfig `yaml:"weights" json:"weights"`
	BM25    BM25Config    `yaml:"bm25" json:"bm25"`
}

// WeightsConfig mirrors ranker.Weights; values are renormalized by the
// ranker, so these need not sum to 1.
type WeightsConfig struct {
	Vector     float64 `yaml:"vector" json:"vector"`
	BM25       float64 `yaml:"bm25" json:"bm25"`
	Structural float64 `yaml:"structural" json:"structural"`
}

// BM25Config mirrors ranker.BM25Params.
type BM25Config struct {
	K1 float64 `yaml:"k1" json:"k1"`
	B  float64 `yaml:"b" json:"b"`
}

// StorageConfig configures where and how a repository's store is persisted.
type StorageConfig struct {
	BaseDirectory string            `yaml:"base_directory" json:"base_directory"`
	Compression   CompressionConfig `yaml:"compression" json:"compression"`
}

// CompressionConfig toggles gzip compression of on-disk payload records.
type CompressionConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// SubmoduleConfig configures git submodule discovery.
type SubmoduleConfig struct {
	// Enabled enables submodule discovery (default: false, opt-in).
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Recursive enables discovery of nested submodules (default: true).
	Recursive bool `yaml:"recursive" json:"recursive"`
	// Include specifies submodules to include (empty = all).
	Include []string `yaml:"include" json:"include"`
	// Exclude specifies submodules to exclude.
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// defaultExcludePatterns are always excluded.
var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
	"**/*.min.js",
	"**/*.min.css",
	"**/package-lock.json",
	"**/yarn.lock",
	"**/pnpm-lock.yaml",
	"**/go.sum",
}

// NewConfig creates a new Config with sensible defaults: one enabled
// provider entry per embed.ProviderType, documented performance/ranker
// defaults, and a storage base directory under the user's home.
func NewConfig() *Config {
	return &Config{
		DefaultProvider: "", // Empty triggers auto-detection: Ollama -> MLX -> static
		Providers: map[string]ProviderConfig{
			"ollama": {
				Model:               "qwen3-embedding:8b",
				Dimensions:          0, // Auto-detected from the embedder
				MaxTokensPerRequest: 8000,
				RateLimit:           RateLimitConfig{MaxRequestsPerMinute: 6000, MaxTokensPerMinute: 1_000_000},
				Enabled:             true,
			},
			"mlx": {
				Model:               "small",
				Dimensions:          1024,
				MaxTokensPerRequest: 8000,
				RateLimit:           RateLimitConfig{MaxRequestsPerMinute: 6000, MaxTokensPerMinute: 1_000_000},
				Enabled:             true,
			},
			"static": {
				Model:               "static-768",
				Dimensions:          768,
				MaxTokensPerRequest: 8000,
				RateLimit:           RateLimitConfig{MaxRequestsPerMinute: 6000, MaxTokensPerMinute: 1_000_000},
				Enabled:             true,
			},
		},
		Performance: PerformanceConfig{
			Concurrency:      runtime.NumCPU(),
			BatchSize:        32,
			MemoryLimit:      "auto",
			ChunkSize:        1200,
			ChunkOverlap:     180,
			MaxFileSize:      10 * 1024 * 1024,
			AdaptiveBatching: true,
		},
		Exclusions: ExclusionsConfig{
			Patterns:    defaultExcludePatterns,
			Extensions:  nil,
			Directories: nil,
			MaxFileSize: 10 * 1024 * 1024,
			MinFileSize: 0,
		},
		Ranker: RankerConfig{
			Weights: WeightsConfig{Vector: 0.7, BM25: 0.2, Structural: 0.1},
			BM25:    BM25Config{K1: 1.5, B: 0.75},
		},
		Storage: StorageConfig{
			BaseDirectory: defaultStoreRoot(),
			Compression:   CompressionConfig{Enabled: false},
		},
		Submodules: SubmoduleConfig{
			Enabled:   false, // Opt-in
			Recursive: true,
			Include:   nil,
			Exclude:   nil,
		},
	}
}

// defaultStoreRoot returns the default store root, $KESTREL_STORE_ROOT or
// ~/.kestrel, mirroring cmd/kestrel's own default so a config file and an
// unconfigured CLI agree absent an override.
func defaultStoreRoot() string {
	if root := os.Getenv("KESTREL_STORE_ROOT"); root != "" {
		return root
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".kestrel")
	}
	return filepath.Join(home, ".kestrel")
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/kestrel/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/kestrel/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "kestrel", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "kestrel", "config.yaml")
	}
	return filepath.Join(home, ".config", "kestrel", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist (that's OK).
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}
	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// Load loads configuration from the specified directory. It applies
// configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/kestrel/config.yaml)
//  3. Project config (.kestrel.yaml in project root)
//  4. Environment variables (KESTREL_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .kestrel.yaml or .kestrel.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".kestrel.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}
	ymlPath := filepath.Join(dir, ".kestrel.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.DefaultProvider != "" {
		c.DefaultProvider = other.DefaultProvider
	}
	for id, p := range other.Providers {
		c.Providers[id] = p
	}

	if other.Performance.Concurrency != 0 {
		c.Performance.Concurrency = other.Performance.Concurrency
	}
	if other.Performance.BatchSize != 0 {
		c.Performance.BatchSize = other.Performance.BatchSize
	}
	if other.Performance.MemoryLimit != "" {
		c.Performance.MemoryLimit = other.Performance.MemoryLimit
	}
	if other.Performance.ChunkSize != 0 {
		c.Performance.ChunkSize = other.Performance.ChunkSize
	}
	if other.Performance.ChunkOverlap != 0 {
		c.Performance.ChunkOverlap = other.Performance.ChunkOverlap
	}
	if other.Performance.MaxFileSize != 0 {
		c.Performance.MaxFileSize = other.Performance.MaxFileSize
	}
	if other.Performance.AdaptiveBatching {
		c.Performance.AdaptiveBatching = other.Performance.AdaptiveBatching
	}

	if len(other.Exclusions.Patterns) > 0 {
		c.Exclusions.Patterns = append(c.Exclusions.Patterns, other.Exclusions.Patterns...)
	}
	if len(other.Exclusions.Extensions) > 0 {
		c.Exclusions.Extensions = other.Exclusions.Extensions
	}
	if len(other.Exclusions.Directories) > 0 {
		c.Exclusions.Directories = other.Exclusions.Directories
	}
	if other.Exclusions.MaxFileSize != 0 {
		c.Exclusions.MaxFileSize = other.Exclusions.MaxFileSize
	}
	if other.Exclusions.MinFileSize != 0 {
		c.Exclusions.MinFileSize = other.Exclusions.MinFileSize
	}

	if other.Ranker.Weights.Vector != 0 {
		c.Ranker.Weights.Vector = other.Ranker.Weights.Vector
	}
	if other.Ranker.Weights.BM25 != 0 {
		c.Ranker.Weights.BM25 = other.Ranker.Weights.BM25
	}
	if other.Ranker.Weights.Structural != 0 {
		c.Ranker.Weights.Structural = other.Ranker.Weights.Structural
	}
	if other.Ranker.BM25.K1 != 0 {
		c.Ranker.BM25.K1 = other.Ranker.BM25.K1
	}
	if other.Ranker.BM25.B != 0 {
		c.Ranker.BM25.B = other.Ranker.BM25.B
	}

	if other.Storage.BaseDirectory != "" {
		c.Storage.BaseDirectory = other.Storage.BaseDirectory
	}
	if other.Storage.Compression.Enabled {
		c.Storage.Compression.Enabled = other.Storage.Compression.Enabled
	}

	if other.Submodules.Enabled {
		c.Submodules.Enabled = other.Submodules.Enabled
	}
	if len(other.Submodules.Include) > 0 || len(other.Submodules.Exclude) > 0 || other.Submodules.Enabled {
		c.Submodules.Recursive = other.Submodules.Recursive
	}
	if len(other.Submodules.Include) > 0 {
		c.Submodules.Include = other.Submodules.Include
	}
	if len(other.Submodules.Exclude) > 0 {
		c.Submodules.Exclude = other.Submodules.Exclude
	}
}

// applyEnvOverrides applies KESTREL_<SECTION>_<FIELD> environment variable
// overrides, the highest-precedence layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("KESTREL_DEFAULT_PROVIDER"); v != "" {
		c.DefaultProvider = v
	}

	if v := os.Getenv("KESTREL_PERFORMANCE_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Performance.Concurrency = n
		}
	}
	if v := os.Getenv("KESTREL_PERFORMANCE_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Performance.BatchSize = n
		}
	}
	if v := os.Getenv("KESTREL_PERFORMANCE_MEMORY_LIMIT"); v != "" {
		c.Performance.MemoryLimit = v
	}
	if v := os.Getenv("KESTREL_PERFORMANCE_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Performance.ChunkSize = n
		}
	}
	if v := os.Getenv("KESTREL_PERFORMANCE_CHUNK_OVERLAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Performance.ChunkOverlap = n
		}
	}
	if v := os.Getenv("KESTREL_PERFORMANCE_ADAPTIVE_BATCHING"); v != "" {
		c.Performance.AdaptiveBatching = strings.ToLower(v) == "true" || v == "1"
	}

	if v := os.Getenv("KESTREL_RANKER_WEIGHTS_VECTOR"); v != "" {
		if f, err := parseFloat64(v); err == nil {
			c.Ranker.Weights.Vector = f
		}
	}
	if v := os.Getenv("KESTREL_RANKER_WEIGHTS_BM25"); v != "" {
		if f, err := parseFloat64(v); err == nil {
			c.Ranker.Weights.BM25 = f
		}
	}
	if v := os.Getenv("KESTREL_RANKER_WEIGHTS_STRUCTURAL"); v != "" {
		if f, err := parseFloat64(v); err == nil {
			c.Ranker.Weights.Structural = f
		}
	}
	if v := os.Getenv("KESTREL_RANKER_BM25_K1"); v != "" {
		if f, err := parseFloat64(v); err == nil {
			c.Ranker.BM25.K1 = f
		}
	}
	if v := os.Getenv("KESTREL_RANKER_BM25_B"); v != "" {
		if f, err := parseFloat64(v); err == nil {
			c.Ranker.BM25.B = f
		}
	}

	if v := os.Getenv("KESTREL_STORAGE_BASE_DIRECTORY"); v != "" {
		c.Storage.BaseDirectory = v
	}
	if v := os.Getenv("KESTREL_STORAGE_COMPRESSION_ENABLED"); v != "" {
		c.Storage.Compression.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Performance.Concurrency < 0 {
		return fmt.Errorf("performance.concurrency must be non-negative, got %d", c.Performance.Concurrency)
	}
	if c.Performance.ChunkSize <= 0 {
		return fmt.Errorf("performance.chunk_size must be positive, got %d", c.Performance.ChunkSize)
	}
	if c.Performance.ChunkOverlap < 0 || c.Performance.ChunkOverlap >= c.Performance.ChunkSize {
		return fmt.Errorf("performance.chunk_overlap must be non-negative and less than chunk_size, got %d", c.Performance.ChunkOverlap)
	}

	if c.Exclusions.MinFileSize < 0 {
		return fmt.Errorf("exclusions.min_file_size must be non-negative, got %d", c.Exclusions.MinFileSize)
	}
	if c.Exclusions.MaxFileSize > 0 && c.Exclusions.MinFileSize > c.Exclusions.MaxFileSize {
		return fmt.Errorf("exclusions.min_file_size must not exceed exclusions.max_file_size")
	}

	w := c.Ranker.Weights
	if w.Vector < 0 || w.BM25 < 0 || w.Structural < 0 {
		return fmt.Errorf("ranker.weights values must be non-negative")
	}
	if w.Vector+w.BM25+w.Structural <= 0 {
		return fmt.Errorf("ranker.weights must sum to a positive value")
	}
	if c.Ranker.BM25.K1 <= 0 {
		return fmt.Errorf("ranker.bm25.k1 must be positive, got %f", c.Ranker.BM25.K1)
	}
	if c.Ranker.BM25.B < 0 || c.Ranker.BM25.B > 1 {
		return fmt.Errorf("ranker.bm25.b must be between 0 and 1, got %f", c.Ranker.BM25.B)
	}

	if c.DefaultProvider != "" {
		if p, ok := c.Providers[c.DefaultProvider]; !ok {
			return fmt.Errorf("default_provider %q has no matching entry under providers", c.DefaultProvider)
		} else if !p.Enabled {
			return fmt.Errorf("default_provider %q is disabled", c.DefaultProvider)
		}
	}

	if c.Storage.BaseDirectory == "" {
		return fmt.Errorf("storage.base_directory must not be empty")
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

// RankerWeights converts the configured ranker weights to ranker.Weights.
func (c *Config) RankerWeights() ranker.Weights {
	return ranker.Weights{Vector: c.Ranker.Weights.Vector, BM25: c.Ranker.Weights.BM25, Structural: c.Ranker.Weights.Structural}
}

// RankerBM25Params converts the configured BM25 parameters to ranker.BM25Params.
func (c *Config) RankerBM25Params() ranker.BM25Params {
	return ranker.BM25Params{K1: c.Ranker.BM25.K1, B: c.Ranker.BM25.B}
}

// Provider returns the named provider's configuration, falling back to
// DefaultProvider when name is empty.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	if name == "" {
		name = c.DefaultProvider
	}
	p, ok := c.Providers[name]
	return p, ok
}

// ChunkOverlapRatio converts the configured character overlap into the
// ratio chunk.Options expects.
func (c *Config) ChunkOverlapRatio() float64 {
	if c.Performance.ChunkSize <= 0 {
		return 0
	}
	return float64(c.Performance.ChunkOverlap) / float64(c.Performance.ChunkSize)
}

// ExcludeGlobs expands Exclusions into the flat glob pattern list the
// Walker's ExcludePatterns accepts: explicit patterns plus one pattern per
// excluded extension and directory.
func (c *Config) ExcludeGlobs() []string {
	globs := make([]string, 0, len(c.Exclusions.Patterns)+len(c.Exclusions.Extensions)+len(c.Exclusions.Directories))
	globs = append(globs, c.Exclusions.Patterns...)
	for _, ext := range c.Exclusions.Extensions {
		ext = strings.TrimPrefix(ext, ".")
		globs = append(globs, "**/*."+ext)
	}
	for _, dir := range c.Exclusions.Directories {
		dir = strings.Trim(dir, "/")
		globs = append(globs, "**/"+dir+"/**")
	}
	return globs
}
