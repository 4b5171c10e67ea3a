package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "", cfg.DefaultProvider) // Empty triggers auto-detection

	ollama, ok := cfg.Providers["ollama"]
	require.True(t, ok)
	assert.Equal(t, "qwen3-embedding:8b", ollama.Model)
	assert.True(t, ollama.Enabled)
	assert.Equal(t, 8000, ollama.MaxTokensPerRequest)
	assert.Equal(t, 6000, ollama.RateLimit.MaxRequestsPerMinute)

	assert.Equal(t, 1200, cfg.Performance.ChunkSize)
	assert.Equal(t, 180, cfg.Performance.ChunkOverlap)
	assert.True(t, cfg.Performance.AdaptiveBatching)

	assert.Equal(t, 0.7, cfg.Ranker.Weights.Vector)
	assert.Equal(t, 0.2, cfg.Ranker.Weights.BM25)
	assert.Equal(t, 0.1, cfg.Ranker.Weights.Structural)
	assert.Equal(t, 1.5, cfg.Ranker.BM25.K1)
	assert.Equal(t, 0.75, cfg.Ranker.BM25.B)

	assert.NotEmpty(t, cfg.Storage.BaseDirectory)
	assert.False(t, cfg.Storage.Compression.Enabled)

	assert.False(t, cfg.Submodules.Enabled)
	assert.True(t, cfg.Submodules.Recursive)
}

func TestConfig_Validate_PassesOnDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate_RejectsZeroChunkSize(t *testing.T) {
	cfg := NewConfig()
	cfg.Performance.ChunkSize = 0
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_RejectsOverlapPastChunkSize(t *testing.T) {
	cfg := NewConfig()
	cfg.Performance.ChunkOverlap = cfg.Performance.ChunkSize
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_RejectsMinFileSizeAboveMax(t *testing.T) {
	cfg := NewConfig()
	cfg.Exclusions.MaxFileSize = 100
	cfg.Exclusions.MinFileSize = 200
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_RejectsZeroWeights(t *testing.T) {
	cfg := NewConfig()
	cfg.Ranker.Weights = WeightsConfig{}
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_RejectsUnknownDefaultProvider(t *testing.T) {
	cfg := NewConfig()
	cfg.DefaultProvider = "nonexistent"
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_RejectsDisabledDefaultProvider(t *testing.T) {
	cfg := NewConfig()
	cfg.DefaultProvider = "mlx"
	p := cfg.Providers["mlx"]
	p.Enabled = false
	cfg.Providers["mlx"] = p
	assert.Error(t, cfg.Validate())
}

func TestConfig_LoadFromProjectFile(t *testing.T) {
	dir := t.TempDir()
	yamlContent := `
default_provider: static
performance:
  chunk_size: 2000
  chunk_overlap: 300
ranker:
  weights:
    vector: 0.5
    bm25: 0.4
    structural: 0.1
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".kestrel.yaml"), []byte(yamlContent), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "static", cfg.DefaultProvider)
	assert.Equal(t, 2000, cfg.Performance.ChunkSize)
	assert.Equal(t, 300, cfg.Performance.ChunkOverlap)
	assert.Equal(t, 0.5, cfg.Ranker.Weights.Vector)
	// Unset fields retain their defaults through mergeWith.
	assert.Equal(t, 1.5, cfg.Ranker.BM25.K1)
}

func TestConfig_LoadWithoutProjectFile_UsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, NewConfig().Performance.ChunkSize, cfg.Performance.ChunkSize)
}

func TestConfig_EnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	yamlContent := "performance:\n  chunk_size: 2000\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".kestrel.yaml"), []byte(yamlContent), 0644))

	t.Setenv("KESTREL_PERFORMANCE_CHUNK_SIZE", "3000")
	t.Setenv("KESTREL_RANKER_WEIGHTS_VECTOR", "0.9")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Performance.ChunkSize)
	assert.Equal(t, 0.9, cfg.Ranker.Weights.Vector)
}

func TestConfig_RankerWeights_ConvertsToRankerPackageType(t *testing.T) {
	cfg := NewConfig()
	w := cfg.RankerWeights()
	assert.Equal(t, cfg.Ranker.Weights.Vector, w.Vector)
	assert.Equal(t, cfg.Ranker.Weights.BM25, w.BM25)
	assert.Equal(t, cfg.Ranker.Weights.Structural, w.Structural)
}

func TestConfig_RankerBM25Params_ConvertsToRankerPackageType(t *testing.T) {
	cfg := NewConfig()
	p := cfg.RankerBM25Params()
	assert.Equal(t, cfg.Ranker.BM25.K1, p.K1)
	assert.Equal(t, cfg.Ranker.BM25.B, p.B)
}

func TestConfig_Provider_FallsBackToDefaultProvider(t *testing.T) {
	cfg := NewConfig()
	cfg.DefaultProvider = "static"
	p, ok := cfg.Provider("")
	require.True(t, ok)
	assert.Equal(t, "static-768", p.Model)
}

func TestConfig_ChunkOverlapRatio(t *testing.T) {
	cfg := NewConfig()
	cfg.Performance.ChunkSize = 1000
	cfg.Performance.ChunkOverlap = 150
	assert.InDelta(t, 0.15, cfg.ChunkOverlapRatio(), 0.0001)
}

func TestConfig_ExcludeGlobs_ExpandsExtensionsAndDirectories(t *testing.T) {
	cfg := NewConfig()
	cfg.Exclusions.Patterns = []string{"**/*.lock"}
	cfg.Exclusions.Extensions = []string{".png", "jpg"}
	cfg.Exclusions.Directories = []string{"tmp", "/cache/"}

	globs := cfg.ExcludeGlobs()
	assert.Contains(t, globs, "**/*.lock")
	assert.Contains(t, globs, "**/*.png")
	assert.Contains(t, globs, "**/*.jpg")
	assert.Contains(t, globs, "**/tmp/**")
	assert.Contains(t, globs, "**/cache/**")
}

func TestConfig_WriteYAML_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.yaml")

	cfg := NewConfig()
	cfg.DefaultProvider = "ollama"
	require.NoError(t, cfg.WriteYAML(path))

	cfg2 := NewConfig()
	require.NoError(t, cfg2.loadYAML(path))
	assert.Equal(t, "ollama", cfg2.DefaultProvider)
}

func TestGetUserConfigPath_RespectsXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-home")
	assert.Equal(t, filepath.Join("/tmp/xdg-home", "kestrel", "config.yaml"), GetUserConfigPath())
}

func TestUserConfigExists_FalseWhenAbsent(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(t.TempDir(), "does-not-exist"))
	assert.False(t, UserConfigExists())
}
