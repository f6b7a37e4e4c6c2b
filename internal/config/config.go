// Package config loads and validates engine configuration from YAML
// files and environment variables.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete engine configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Vault      VaultConfig      `yaml:"vault" json:"vault"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// VaultConfig configures which documents the vault scan picks up.
type VaultConfig struct {
	// Path is the vault root directory. Empty means the current directory.
	Path string `yaml:"path" json:"path"`
	// Exclude lists directory names skipped during the scan.
	Exclude []string `yaml:"exclude" json:"exclude"`
	// MaxFileSizeKB caps indexable document size (default: 2048).
	MaxFileSizeKB int `yaml:"max_file_size_kb" json:"max_file_size_kb"`
}

// ChunkingConfig configures document splitting.
type ChunkingConfig struct {
	// MaxChunkChars is the hard upper bound for one chunk's text.
	// Oversized units are subdivided down to sentences, then fragments.
	MaxChunkChars int `yaml:"max_chunk_chars" json:"max_chunk_chars"`
}

// SearchConfig configures hybrid search parameters.
// Weights and the RRF constant are configurable via:
//  1. User config (~/.config/obsidian-tools/config.yaml)
//  2. Vault config (.obsidian-tools.yaml in the vault root)
//  3. Env vars (OBSIDIAN_TOOLS_*) - highest priority
type SearchConfig struct {
	// KeywordWeight is the weight for keyword matching (0.0-1.0).
	// Must sum to 1.0 with SemanticWeight.
	KeywordWeight float64 `yaml:"keyword_weight" json:"keyword_weight"`

	// SemanticWeight is the weight for vector similarity (0.0-1.0).
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`

	// RRFConstant is the RRF fusion smoothing parameter (k).
	// Default: 60. Higher values reduce the impact of rank differences.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// Oversample multiplies the requested result count for each
	// sub-query so fusion has enough candidates. Default: 2.
	Oversample int `yaml:"oversample" json:"oversample"`

	// MaxResults caps the number of returned results per query.
	MaxResults int `yaml:"max_results" json:"max_results"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedder: "ollama", "static", or empty for
	// auto-detection (Ollama when reachable, static otherwise).
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	// OllamaHost is the Ollama API endpoint (default: http://localhost:11434).
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	// CacheSize is the embedding LRU cache capacity (default: 1000).
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// IndexConfig configures index storage and maintenance.
type IndexConfig struct {
	// DataDir holds the manifest database and index files.
	// Empty means <vault>/.obsidian-tools.
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// WatchDebounce is the quiet period before watch mode reindexes.
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// defaultExcludeDirs are always skipped during vault scans.
var defaultExcludeDirs = []string{
	".obsidian",
	".git",
	".trash",
	".obsidian-tools",
	"node_modules",
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Vault: VaultConfig{
			Path:          "",
			Exclude:       defaultExcludeDirs,
			MaxFileSizeKB: 2048,
		},
		Chunking: ChunkingConfig{
			MaxChunkChars: 1500,
		},
		Search: SearchConfig{
			KeywordWeight:  0.5,
			SemanticWeight: 0.5,
			// k=60 is the commonly used constant (Azure AI Search, OpenSearch)
			RRFConstant: 60,
			Oversample:  2,
			MaxResults:  20,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "",
			Model:      "nomic-embed-text",
			Dimensions: 0, // auto-detect from the embedder
			BatchSize:  32,
			OllamaHost: "",
			CacheSize:  1000,
		},
		Index: IndexConfig{
			DataDir:       "",
			WatchDebounce: "500ms",
		},
		Server: ServerConfig{
			LogLevel: "info",
		},
	}
}

// GetUserConfigPath returns the path to the user configuration file.
// It follows the XDG Base Directory layout:
//   - $XDG_CONFIG_HOME/obsidian-tools/config.yaml (if set)
//   - ~/.config/obsidian-tools/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "obsidian-tools", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "obsidian-tools", "config.yaml")
	}
	return filepath.Join(home, ".config", "obsidian-tools", "config.yaml")
}

// Load loads configuration for the given vault directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/obsidian-tools/config.yaml)
//  3. Vault config (.obsidian-tools.yaml in the vault root)
//  4. Environment variables (OBSIDIAN_TOOLS_*)
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

// loadUserConfig loads the user configuration file if it exists.
// A missing file is not an error.
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

// loadFromFile attempts to load .obsidian-tools.yaml or .yml from dir.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".obsidian-tools.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".obsidian-tools.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	// No config file is fine - use defaults
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
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Vault
	if other.Vault.Path != "" {
		c.Vault.Path = other.Vault.Path
	}
	if len(other.Vault.Exclude) > 0 {
		// Merge with defaults rather than replace
		c.Vault.Exclude = append(c.Vault.Exclude, other.Vault.Exclude...)
	}
	if other.Vault.MaxFileSizeKB != 0 {
		c.Vault.MaxFileSizeKB = other.Vault.MaxFileSizeKB
	}

	// Chunking
	if other.Chunking.MaxChunkChars != 0 {
		c.Chunking.MaxChunkChars = other.Chunking.MaxChunkChars
	}

	// Search weights and RRF parameters.
	// Zero is not a practical value for any of these, so only merge non-zero.
	if other.Search.KeywordWeight != 0 {
		c.Search.KeywordWeight = other.Search.KeywordWeight
	}
	if other.Search.SemanticWeight != 0 {
		c.Search.SemanticWeight = other.Search.SemanticWeight
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.Oversample != 0 {
		c.Search.Oversample = other.Search.Oversample
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}

	// Embeddings
	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}

	// Index
	if other.Index.DataDir != "" {
		c.Index.DataDir = other.Index.DataDir
	}
	if other.Index.WatchDebounce != "" {
		c.Index.WatchDebounce = other.Index.WatchDebounce
	}

	// Server
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies OBSIDIAN_TOOLS_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("OBSIDIAN_TOOLS_VAULT"); v != "" {
		c.Vault.Path = v
	}
	if v := os.Getenv("OBSIDIAN_TOOLS_KEYWORD_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(v, 64); err == nil && w >= 0 && w <= 1 {
			c.Search.KeywordWeight = w
		}
	}
	if v := os.Getenv("OBSIDIAN_TOOLS_SEMANTIC_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(v, 64); err == nil && w >= 0 && w <= 1 {
			c.Search.SemanticWeight = w
		}
	}
	if v := os.Getenv("OBSIDIAN_TOOLS_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("OBSIDIAN_TOOLS_OVERSAMPLE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			c.Search.Oversample = n
		}
	}
	if v := os.Getenv("OBSIDIAN_TOOLS_EMBEDDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("OBSIDIAN_TOOLS_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("OBSIDIAN_TOOLS_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("OBSIDIAN_TOOLS_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Search.KeywordWeight < 0 || c.Search.KeywordWeight > 1 {
		return fmt.Errorf("keyword_weight must be between 0 and 1, got %f", c.Search.KeywordWeight)
	}
	if c.Search.SemanticWeight < 0 || c.Search.SemanticWeight > 1 {
		return fmt.Errorf("semantic_weight must be between 0 and 1, got %f", c.Search.SemanticWeight)
	}

	sum := c.Search.KeywordWeight + c.Search.SemanticWeight
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("keyword_weight + semantic_weight must equal 1.0, got %.2f", sum)
	}

	if c.Search.RRFConstant < 1 {
		return fmt.Errorf("rrf_constant must be at least 1, got %d", c.Search.RRFConstant)
	}
	if c.Search.Oversample < 1 {
		return fmt.Errorf("oversample must be at least 1, got %d", c.Search.Oversample)
	}
	if c.Search.MaxResults < 0 {
		return fmt.Errorf("max_results must be non-negative, got %d", c.Search.MaxResults)
	}
	if c.Chunking.MaxChunkChars < 1 {
		return fmt.Errorf("max_chunk_chars must be positive, got %d", c.Chunking.MaxChunkChars)
	}

	if c.Embeddings.Provider != "" { // empty string triggers auto-detection
		validProviders := map[string]bool{"ollama": true, "static": true}
		if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
			return fmt.Errorf("embeddings.provider must be 'ollama', 'static', or empty (auto-detect), got %s", c.Embeddings.Provider)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// DataDir resolves the index data directory for a vault root.
func (c *Config) DataDir(vaultRoot string) string {
	if c.Index.DataDir != "" {
		return c.Index.DataDir
	}
	return filepath.Join(vaultRoot, ".obsidian-tools")
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// FindVaultRoot finds the vault root directory by walking up from
// startDir looking for an .obsidian directory or an .obsidian-tools.yaml
// file. Falls back to startDir itself.
func FindVaultRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".obsidian")) {
			return currentDir, nil
		}
		if fileExists(filepath.Join(currentDir, ".obsidian-tools.yaml")) ||
			fileExists(filepath.Join(currentDir, ".obsidian-tools.yml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
