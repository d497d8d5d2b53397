// Package config implements the proxy's atomic configuration substrate:
// TOML on disk, a lock-free in-memory snapshot, and hot reload on file
// change.
package config

import (
	"bytes"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/pelletier/go-toml/v2"
)

// Mode selects how a request body is translated before being forwarded
// to a given upstream.
type Mode string

const (
	ModeAnthropicDirect Mode = "anthropic"
	ModeOpenAIResponses Mode = "openai_responses"
	// ModeOpenAIChat is reserved and behaves identically to ModeAnthropicDirect.
	ModeOpenAIChat Mode = "openai_chat"
)

// UpstreamConfig describes one upstream endpoint and its credential pool.
type UpstreamConfig struct {
	Endpoint string   `toml:"endpoint"`
	Model    string   `toml:"model"`
	APIKeys  []string `toml:"api_keys"`
	Mode     Mode     `toml:"mode"`
}

// OptimizationConfig gates the six local-optimization detectors.
type OptimizationConfig struct {
	EnableNetworkProbeMock    bool `toml:"enable_network_probe_mock"`
	EnableFastPrefixDetection bool `toml:"enable_fast_prefix_detection"`
	EnableHistoricalAnalysis  bool `toml:"enable_historical_analysis_mock"`
	EnableTitleGenerationSkip bool `toml:"enable_title_generation_skip"`
	EnableSuggestionModeSkip  bool `toml:"enable_suggestion_mode_skip"`
	EnableFilepathExtraction  bool `toml:"enable_filepath_extraction_mock"`
}

func defaultOptimizations() OptimizationConfig {
	return OptimizationConfig{
		EnableNetworkProbeMock:    true,
		EnableFastPrefixDetection: true,
		EnableHistoricalAnalysis:  true,
		EnableTitleGenerationSkip: true,
		EnableSuggestionModeSkip:  true,
		EnableFilepathExtraction:  true,
	}
}

// Config is an immutable configuration snapshot. A snapshot is never
// mutated after publication; reload publishes a brand new one.
type Config struct {
	LogReqBody    bool               `toml:"log_req_body"`
	LogResBody    bool               `toml:"log_res_body"`
	Upstream      []UpstreamConfig   `toml:"upstream"`
	Optimizations OptimizationConfig `toml:"optimizations"`
}

func defaultConfig() Config {
	return Config{
		Optimizations: defaultOptimizations(),
	}
}

// Store holds the current Config behind a lock-free atomic pointer and
// the config file's on-disk path. Readers call Get; the watcher calls
// Reload.
type Store struct {
	configPath string
	current    atomic.Pointer[Config]
	onReload   func(old, next *Config)
}

// NewStore creates a Store for the given config path. It does not load
// anything; call Init to perform the startup load-format-publish
// sequence described in the spec.
func NewStore(configPath string) *Store {
	return &Store{configPath: configPath}
}

// OnReload registers a callback invoked after every successful reload
// with the previous and new snapshots, so the caller can act on the
// change (cmd wires it to rebuild the upstream selector and log).
func (s *Store) OnReload(fn func(old, next *Config)) {
	s.onReload = fn
}

// Init reads the file at the Store's config path, reformats it with a
// 4-space-indent TOML encoder and writes the formatted text back
// (best-effort), parses it, and publishes the first snapshot. A missing
// file is not an error: the default Config is published. A parse
// failure is fatal per spec.md's CLI contract: the caller is expected
// to exit non-zero.
func (s *Store) Init() (*Config, error) {
	raw, err := os.ReadFile(s.configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		raw = nil
	}

	if len(raw) > 0 {
		if formatted, ferr := formatTOML(raw); ferr == nil {
			_ = os.WriteFile(s.configPath, formatted, 0o644)
		}
		// A formatting failure is not fatal; the original bytes are
		// still parsed below.
	}

	cfg, err := parseTOML(raw)
	if err != nil {
		return nil, fmt.Errorf("parse TOML config: %w", err)
	}

	s.current.Store(cfg)

	return cfg, nil
}

// Get performs a lock-free read of the current Config. It never
// returns nil once Init has succeeded once.
func (s *Store) Get() *Config {
	if cfg := s.current.Load(); cfg != nil {
		return cfg
	}

	fallback := defaultConfig()

	return &fallback
}

// Reload re-reads and re-parses the config file and publishes a new
// snapshot on success. A parse failure is logged by the caller via the
// returned error; the prior snapshot remains live.
func (s *Store) Reload() error {
	raw, err := os.ReadFile(s.configPath)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	next, err := parseTOML(raw)
	if err != nil {
		return fmt.Errorf("parse TOML config: %w", err)
	}

	old := s.current.Swap(next)

	if s.onReload != nil {
		s.onReload(old, next)
	}

	return nil
}

func parseTOML(raw []byte) (*Config, error) {
	cfg := defaultConfig()

	if len(raw) == 0 {
		return &cfg, nil
	}

	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	if cfg.Upstream == nil {
		cfg.Upstream = []UpstreamConfig{}
	}

	for i := range cfg.Upstream {
		if cfg.Upstream[i].Mode == "" {
			cfg.Upstream[i].Mode = ModeAnthropicDirect
		}
	}

	return &cfg, nil
}

func formatTOML(raw []byte) ([]byte, error) {
	var generic map[string]any
	if err := toml.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}

	var buf bytes.Buffer

	enc := toml.NewEncoder(&buf).SetIndentSymbol("    ").SetIndentTables(true)
	if err := enc.Encode(generic); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
