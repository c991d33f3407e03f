package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"credence/internal/logging"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all credence configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Language-model collaborator
	LLM LLMConfig `yaml:"llm"`

	// Relational and blob storage
	Store StoreConfig `yaml:"store"`

	// Context assembly budgets
	Context ContextConfig `yaml:"context"`

	// Document extraction
	Extraction ExtractionConfig `yaml:"extraction"`

	// HTTP transport
	Server ServerConfig `yaml:"server"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the language-model collaborator.
type LLMConfig struct {
	Provider          string  `yaml:"provider"` // gemini
	APIKey            string  `yaml:"api_key"`
	Model             string  `yaml:"model"`
	SummaryModel      string  `yaml:"summary_model"`
	Timeout           string  `yaml:"timeout"`
	UploadTimeout     string  `yaml:"upload_timeout"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// StoreConfig configures storage collaborators.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
	BlobRoot     string `yaml:"blob_root"`
}

// ContextConfig bounds what is injected into the model context.
type ContextConfig struct {
	RecentTurns     int `yaml:"recent_turns"`
	OpenItems       int `yaml:"open_items"`
	RecentDocuments int `yaml:"recent_documents"`
	ChunkBytes      int `yaml:"chunk_bytes"`
	MaxChunks       int `yaml:"max_chunks"`
	ListLimit       int `yaml:"list_limit"`
	ResolveLimit    int `yaml:"resolve_limit"`
}

// ExtractionConfig configures format extraction.
type ExtractionConfig struct {
	Timeout   string `yaml:"timeout"`
	MaxSheets int    `yaml:"max_sheets"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	ReadTimeout  string `yaml:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"`  // debug, info, warn, error
	Format     string          `yaml:"format"` // json, console
	File       string          `yaml:"file"`
	Categories map[string]bool `yaml:"categories,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "credence",
		Version: "0.4.0",

		LLM: LLMConfig{
			Provider:          "gemini",
			Model:             "gemini-2.5-flash",
			SummaryModel:      "gemini-2.5-flash",
			Timeout:           "60s",
			UploadTimeout:     "90s",
			RequestsPerSecond: 2,
			Burst:             4,
		},

		Store: StoreConfig{
			DatabasePath: "data/credence.db",
			BlobRoot:     "data/blobs",
		},

		Context: ContextConfig{
			RecentTurns:     10,
			OpenItems:       10,
			RecentDocuments: 10,
			ChunkBytes:      200 * 1024,
			MaxChunks:       5,
			ListLimit:       50,
			ResolveLimit:    5,
		},

		Extraction: ExtractionConfig{
			Timeout:   "30s",
			MaxSheets: 5,
		},

		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  "15s",
			WriteTimeout: "180s",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
// Variables from a .env file next to the working directory are loaded first
// and never override variables already set in the environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}
	// GEMINI_API_KEY wins over GOOGLE_API_KEY
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}
	if model := os.Getenv("CREDENCE_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if path := os.Getenv("CREDENCE_DB"); path != "" {
		c.Store.DatabasePath = path
	}
	if root := os.Getenv("CREDENCE_BLOB_ROOT"); root != "" {
		c.Store.BlobRoot = root
	}
	if addr := os.Getenv("CREDENCE_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if level := os.Getenv("CREDENCE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// applyDefaults fills zero budgets left by a partial YAML file.
func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Context.RecentTurns <= 0 {
		c.Context.RecentTurns = d.Context.RecentTurns
	}
	if c.Context.OpenItems <= 0 {
		c.Context.OpenItems = d.Context.OpenItems
	}
	if c.Context.RecentDocuments <= 0 {
		c.Context.RecentDocuments = d.Context.RecentDocuments
	}
	if c.Context.ChunkBytes <= 0 {
		c.Context.ChunkBytes = d.Context.ChunkBytes
	}
	if c.Context.MaxChunks <= 0 {
		c.Context.MaxChunks = d.Context.MaxChunks
	}
	if c.Context.ListLimit <= 0 {
		c.Context.ListLimit = d.Context.ListLimit
	}
	if c.Context.ResolveLimit <= 0 {
		c.Context.ResolveLimit = d.Context.ResolveLimit
	}
	if c.Extraction.MaxSheets <= 0 {
		c.Extraction.MaxSheets = d.Extraction.MaxSheets
	}
	if c.LLM.SummaryModel == "" {
		c.LLM.SummaryModel = c.LLM.Model
	}
}

// GetLLMTimeout returns the per-call model timeout.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 60*time.Second)
}

// GetUploadTimeout returns the attachment upload timeout.
func (c *Config) GetUploadTimeout() time.Duration {
	return parseDuration(c.LLM.UploadTimeout, 90*time.Second)
}

// GetExtractionTimeout returns the per-document extraction timeout.
func (c *Config) GetExtractionTimeout() time.Duration {
	return parseDuration(c.Extraction.Timeout, 30*time.Second)
}

// GetReadTimeout returns the HTTP read timeout.
func (c *Config) GetReadTimeout() time.Duration {
	return parseDuration(c.Server.ReadTimeout, 15*time.Second)
}

// GetWriteTimeout returns the HTTP write timeout.
func (c *Config) GetWriteTimeout() time.Duration {
	return parseDuration(c.Server.WriteTimeout, 180*time.Second)
}

// TextBudget is the cap on injected document text per request.
func (c *Config) TextBudget() int {
	return c.Context.ChunkBytes * c.Context.MaxChunks
}

// ToLogging converts the logging section for logging.Initialize.
func (l LoggingConfig) ToLogging() logging.Config {
	return logging.Config{
		Level:      l.Level,
		Format:     l.Format,
		File:       l.File,
		Categories: l.Categories,
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"gemini"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set GEMINI_API_KEY or GOOGLE_API_KEY)")
	}

	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}

	if c.Store.DatabasePath == "" {
		return fmt.Errorf("store.database_path is required")
	}
	if c.Context.ChunkBytes < 1024 {
		return fmt.Errorf("context.chunk_bytes must be >= 1024")
	}

	return nil
}
