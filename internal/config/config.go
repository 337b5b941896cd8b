package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Pipeline    PipelineConfig            `json:"pipeline"`
	Chat        ChatConfig                `json:"chat"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address"`
	// UploadBaseDir holds uploaded archives and per-request scratch
	// directories. Defaults to ./data/uploads when empty.
	UploadBaseDir string `json:"upload_base_dir"`
	CatalogPath   string `json:"catalog_path"`
	TokenTTLHours int    `json:"token_ttl_hours"`
	// ScratchTTLMinutes / SweepIntervalMinutes drive the background sweeper
	// that reclaims scratch directories left behind by crashed requests.
	ScratchTTLMinutes    int `json:"scratch_ttl_minutes"`
	SweepIntervalMinutes int `json:"sweep_interval_minutes"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

// PipelineConfig carries the tuning knobs for archive analysis. The defaults
// were tuned against the upstream provider's rate and token limits; treat
// them as a starting point, not invariants.
type PipelineConfig struct {
	Provider           string `json:"provider"`
	SummaryModel       string `json:"summary_model"`
	SynthesisModel     string `json:"synthesis_model"`
	BatchWidth         int    `json:"batch_width"`
	FileCharLimit      int    `json:"file_char_limit"`
	PromptCharLimit    int    `json:"prompt_char_limit"`
	SummaryMaxTokens   int    `json:"summary_max_tokens"`
	SynthesisMaxTokens int    `json:"synthesis_max_tokens"`
}

type ChatConfig struct {
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	HistoryLimit int    `json:"history_limit"`
	MaxTokens    int    `json:"max_tokens"`
}

const (
	DefaultBatchWidth         = 8
	DefaultFileCharLimit      = 3000
	DefaultPromptCharLimit    = 24000
	DefaultSummaryMaxTokens   = 500
	DefaultSynthesisMaxTokens = 3500
	DefaultChatHistoryLimit   = 10
	DefaultChatMaxTokens      = 500
)

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills zero-valued tuning fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Pipeline.BatchWidth <= 0 {
		c.Pipeline.BatchWidth = DefaultBatchWidth
	}
	if c.Pipeline.FileCharLimit <= 0 {
		c.Pipeline.FileCharLimit = DefaultFileCharLimit
	}
	if c.Pipeline.PromptCharLimit <= 0 {
		c.Pipeline.PromptCharLimit = DefaultPromptCharLimit
	}
	if c.Pipeline.SummaryMaxTokens <= 0 {
		c.Pipeline.SummaryMaxTokens = DefaultSummaryMaxTokens
	}
	if c.Pipeline.SynthesisMaxTokens <= 0 {
		c.Pipeline.SynthesisMaxTokens = DefaultSynthesisMaxTokens
	}
	if c.Chat.HistoryLimit <= 0 {
		c.Chat.HistoryLimit = DefaultChatHistoryLimit
	}
	if c.Chat.MaxTokens <= 0 {
		c.Chat.MaxTokens = DefaultChatMaxTokens
	}
}
