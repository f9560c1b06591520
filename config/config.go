package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DirName is the per-project directory holding the index, the vector
// database and optionally the configuration file.
const DirName = ".ctxasm"

// Config holds all configuration for the context assembler.
type Config struct {
	Index     IndexConfig     `yaml:"index" toml:"index"`
	Filter    FilterConfig    `yaml:"filter" toml:"filter"`
	Docs      DocsConfig      `yaml:"docs" toml:"docs"`
	Budget    BudgetConfig    `yaml:"budget" toml:"budget"`
	LLM       LLMConfig       `yaml:"llm" toml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding" toml:"embedding"`
	Cache     CacheConfig     `yaml:"cache" toml:"cache"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// IndexConfig holds indexing configuration.
type IndexConfig struct {
	Includes []string `yaml:"includes" toml:"includes"`
	Excludes []string `yaml:"excludes" toml:"excludes"`
	// files with these extensions are never symbol-indexed
	SkipExts       []string `yaml:"skip_exts" toml:"skip_exts"`
	MaxInputLength int      `yaml:"max_input_length" toml:"max_input_length"`
	// minimum seconds between two provider calls
	AntiQuotaLimit float64 `yaml:"anti_quota_limit" toml:"anti_quota_limit"`
	SkipBuildIndex bool    `yaml:"skip_build_index" toml:"skip_build_index"`
	Workers        int     `yaml:"workers" toml:"workers"`
	Stemming       bool    `yaml:"stemming" toml:"stemming"`
	WatchDebounce  Duration `yaml:"watch_debounce" toml:"watch_debounce"`
}

// FilterConfig controls the file selection cascade.
type FilterConfig struct {
	SkipFilterIndex bool `yaml:"skip_filter_index" toml:"skip_filter_index"`
	// 0 none, 1 query match only, 2 query match, expansion and verification
	IndexFilterLevel         int `yaml:"index_filter_level" toml:"index_filter_level"`
	IndexFilterFileNum       int `yaml:"index_filter_file_num" toml:"index_filter_file_num"`
	VerifyFileRelevanceScore int `yaml:"verify_file_relevance_score" toml:"verify_file_relevance_score"`
	FilterBatchSize          int `yaml:"filter_batch_size" toml:"filter_batch_size"`
	Workers                  int `yaml:"workers" toml:"workers"`
}

// DocsConfig controls document retrieval.
type DocsConfig struct {
	Root               string   `yaml:"root" toml:"root"`
	Strategy           string   `yaml:"strategy" toml:"strategy"` // "scan" or "semantic"
	RequiredExts       []string `yaml:"required_exts" toml:"required_exts"`
	TopK               int      `yaml:"top_k" toml:"top_k"`
	MinScore           int      `yaml:"min_score" toml:"min_score"`
	DocFilterRelevance int      `yaml:"doc_filter_relevance" toml:"doc_filter_relevance"`
	K1                 float64  `yaml:"k1" toml:"k1"`
	B                  float64  `yaml:"b" toml:"b"`
	PathBoostWeight    float64  `yaml:"path_boost_weight" toml:"path_boost_weight"`
}

// BudgetConfig partitions the context window.
type BudgetConfig struct {
	TokenLimit       int     `yaml:"token_limit" toml:"token_limit"`
	FullTextRatio    float64 `yaml:"full_text_ratio" toml:"full_text_ratio"`
	SegmentRatio     float64 `yaml:"segment_ratio" toml:"segment_ratio"`
	MinExcerptTokens int     `yaml:"min_excerpt_tokens" toml:"min_excerpt_tokens"`
	MinBufferTokens  int     `yaml:"min_buffer_tokens" toml:"min_buffer_tokens"`
}

// LLMConfig selects the text-generation provider behind the strategies.
type LLMConfig struct {
	Provider  string `yaml:"provider" toml:"provider"` // "local" or "openai"
	Model     string `yaml:"model" toml:"model"`
	BaseURL   string `yaml:"base_url" toml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env" toml:"api_key_env"`
	// concurrent in-flight requests; spacing is index.anti_quota_limit
	MaxInFlight  int      `yaml:"max_in_flight" toml:"max_in_flight"`
	MaxRetries   int      `yaml:"max_retries" toml:"max_retries"`
	RetryBackoff Duration `yaml:"retry_backoff" toml:"retry_backoff"`
	Timeout      Duration `yaml:"timeout" toml:"timeout"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider" toml:"provider"` // "openai", "ollama", "compatible", "local"
	Model     string `yaml:"model" toml:"model"`
	BaseURL   string `yaml:"base_url" toml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env" toml:"api_key_env"`
	Dimension int    `yaml:"dimension" toml:"dimension"`
	BatchSize int    `yaml:"batch_size" toml:"batch_size"`
}

// CacheConfig sizes the per-session relevance score cache.
type CacheConfig struct {
	Size int      `yaml:"size" toml:"size"`
	TTL  Duration `yaml:"ttl" toml:"ttl"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" toml:"level"`
	// empty logs to stderr
	File string `yaml:"file" toml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Index: IndexConfig{
			Includes:       []string{"**/*.go", "**/*.py", "**/*.js", "**/*.jsx", "**/*.ts", "**/*.tsx", "**/*.java", "**/*.c", "**/*.cpp", "**/*.h", "**/*.rs"},
			Excludes:       []string{"**/node_modules/**", "**/vendor/**", "**/.git/**", "**/dist/**", "**/build/**", "**/__pycache__/**", "**/*.min.js", DirName + "/**"},
			SkipExts:       []string{".md", ".html", ".txt", ".doc", ".pdf"},
			MaxInputLength: 6000,
			AntiQuotaLimit: 1.0,
			Workers:        4,
			Stemming:       true,
			WatchDebounce:  Duration(500 * time.Millisecond),
		},
		Filter: FilterConfig{
			IndexFilterLevel:         2,
			IndexFilterFileNum:       20,
			VerifyFileRelevanceScore: 6,
			FilterBatchSize:          10,
			Workers:                  4,
		},
		Docs: DocsConfig{
			Strategy:           "scan",
			TopK:               50,
			MinScore:           0,
			DocFilterRelevance: 6,
			K1:                 1.2,
			B:                  0.75,
			PathBoostWeight:    0.3,
		},
		Budget: BudgetConfig{
			TokenLimit:       30000,
			FullTextRatio:    0.7,
			SegmentRatio:     0.2,
			MinExcerptTokens: 32,
		},
		LLM: LLMConfig{
			Provider:     "local",
			Model:        "gpt-4o-mini",
			BaseURL:      "https://api.openai.com/v1",
			APIKeyEnv:    "OPENAI_API_KEY",
			MaxInFlight:  1,
			MaxRetries:   3,
			RetryBackoff: Duration(2 * time.Second),
			Timeout:      Duration(60 * time.Second),
		},
		Embedding: EmbeddingConfig{
			Provider:  "local",
			Model:     "text-embedding-3-small",
			APIKeyEnv: "OPENAI_API_KEY",
			Dimension: 256,
			BatchSize: 100,
		},
		Cache: CacheConfig{
			Size: 512,
			TTL:  Duration(10 * time.Minute),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML or TOML file, chosen by extension.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if isTOML(path) {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// ConfigFiles are the locations LoadFromDir tries, in order, relative to the project root.
var ConfigFiles = []string{
	"ctxasm.yaml",
	filepath.Join(DirName, "config.yaml"),
	filepath.Join(DirName, "config.toml"),
}

// LoadFromDir loads the first configuration file found under dir.
func LoadFromDir(dir string) (*Config, error) {
	for _, name := range ConfigFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return DefaultConfig(), nil
}

// Save saves configuration as YAML, or TOML for a .toml path.
func (c *Config) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(c)
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate rejects settings the pipeline cannot honor.
func (c *Config) Validate() error {
	var errs []error
	b := c.Budget
	if b.FullTextRatio < 0 || b.SegmentRatio < 0 {
		errs = append(errs, errors.New("budget ratios must not be negative"))
	}
	if b.FullTextRatio+b.SegmentRatio > 1 {
		errs = append(errs, fmt.Errorf("budget ratios sum to %.2f, more than 1", b.FullTextRatio+b.SegmentRatio))
	}
	if c.Filter.IndexFilterLevel < 0 || c.Filter.IndexFilterLevel > 2 {
		errs = append(errs, fmt.Errorf("filter.index_filter_level %d is not 0, 1 or 2", c.Filter.IndexFilterLevel))
	}
	for name, v := range map[string]int{
		"filter.verify_file_relevance_score": c.Filter.VerifyFileRelevanceScore,
		"docs.min_score":                     c.Docs.MinScore,
		"docs.doc_filter_relevance":          c.Docs.DocFilterRelevance,
	} {
		if v < 0 || v > 10 {
			errs = append(errs, fmt.Errorf("%s %d is outside 0..10", name, v))
		}
	}
	if c.Index.AntiQuotaLimit < 0 {
		errs = append(errs, errors.New("index.anti_quota_limit must not be negative"))
	}
	switch c.Docs.Strategy {
	case "scan", "semantic":
	default:
		errs = append(errs, fmt.Errorf("unknown docs.strategy %q", c.Docs.Strategy))
	}
	return errors.Join(errs...)
}

// IndexPath returns the path to the symbol index file.
func IndexPath(dir string) string {
	return filepath.Join(dir, DirName, "index.json")
}

// VectorDBPath returns the path to the document vector database.
func VectorDBPath(dir string) string {
	return filepath.Join(dir, DirName, "vectors.db")
}

// EnsureDir ensures the .ctxasm directory exists.
func EnsureDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, DirName), 0755)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// Duration is a time.Duration written as "1.5s" or "10m" in config files.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
