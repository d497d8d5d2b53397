package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()

	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	return path
}

func TestStore_InitLoadsAndFormats(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
log_req_body = true
[[upstream]]
endpoint = "https://api.example.com/v1"
model = ""
api_keys = ["sk-a", "sk-b"]
mode = "anthropic"
`)

	store := NewStore(path)

	cfg, err := store.Init()
	require.NoError(t, err)
	assert.True(t, cfg.LogReqBody)
	require.Len(t, cfg.Upstream, 1)
	assert.Equal(t, "https://api.example.com/v1", cfg.Upstream[0].Endpoint)
	assert.Equal(t, ModeAnthropicDirect, cfg.Upstream[0].Mode)

	reformatted, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(reformatted), "endpoint")
}

func TestStore_InitMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "does-not-exist.toml"))

	cfg, err := store.Init()
	require.NoError(t, err)
	assert.Empty(t, cfg.Upstream)
	assert.True(t, cfg.Optimizations.EnableNetworkProbeMock)
}

func TestStore_InitParseFailureIsFatal(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "this is not [ valid toml")

	store := NewStore(path)

	_, err := store.Init()
	assert.Error(t, err)
}

func TestStore_DefaultOptimizationsAllTrue(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
[[upstream]]
endpoint = "https://api.example.com/v1"
`)

	store := NewStore(path)
	cfg, err := store.Init()
	require.NoError(t, err)

	assert.True(t, cfg.Optimizations.EnableNetworkProbeMock)
	assert.True(t, cfg.Optimizations.EnableFastPrefixDetection)
	assert.True(t, cfg.Optimizations.EnableHistoricalAnalysis)
	assert.True(t, cfg.Optimizations.EnableTitleGenerationSkip)
	assert.True(t, cfg.Optimizations.EnableSuggestionModeSkip)
	assert.True(t, cfg.Optimizations.EnableFilepathExtraction)
}

func TestStore_ReloadPublishesNewSnapshotAndKeepsOldOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
[[upstream]]
endpoint = "https://one.example.com"
`)

	store := NewStore(path)
	first, err := store.Init()
	require.NoError(t, err)
	require.Len(t, first.Upstream, 1)

	var oldSeen, newSeen *Config

	store.OnReload(func(old, next *Config) {
		oldSeen = old
		newSeen = next
	})

	require.NoError(t, os.WriteFile(path, []byte(`
[[upstream]]
endpoint = "https://one.example.com"
[[upstream]]
endpoint = "https://two.example.com"
`), 0o644))

	require.NoError(t, store.Reload())

	require.NotNil(t, oldSeen)
	require.NotNil(t, newSeen)
	assert.Len(t, oldSeen.Upstream, 1)
	assert.Len(t, newSeen.Upstream, 2)

	current := store.Get()
	assert.Len(t, current.Upstream, 2)

	// A subsequent reload against a now-invalid file must not replace
	// the live snapshot.
	require.NoError(t, os.WriteFile(path, []byte("not valid [ toml"), 0o644))
	assert.Error(t, store.Reload())
	assert.Len(t, store.Get().Upstream, 2)
}

func TestStore_GetWithoutInitReturnsDefaults(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "config.toml"))

	cfg := store.Get()
	assert.NotNil(t, cfg)
	assert.Empty(t, cfg.Upstream)
}
