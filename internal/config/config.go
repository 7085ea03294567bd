package config

import (
	"errors"
	"fmt"
	"time"
)

// Config represents the entire YAML configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" json:"log"`
	Memory    MemoryConfig    `yaml:"memory" json:"memory"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	Index     IndexConfig     `yaml:"index" json:"index"`
	Reconcile ReconcileConfig `yaml:"reconcile" json:"reconcile"`
	Trello    TrelloConfig    `yaml:"trello" json:"trello"`
	Server    ServerConfig    `yaml:"server" json:"server"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format string `yaml:"format" json:"format"` // text or json
}

type MemoryConfig struct {
	Backend string `yaml:"backend" json:"backend"` // inmemory or badger
	Dir     string `yaml:"dir" json:"dir"`
}

type EmbeddingConfig struct {
	Remote    RemoteEmbedding `yaml:"remote" json:"remote"`
	Local     LocalEmbedding  `yaml:"local" json:"local"`
	Timeout   string          `yaml:"timeout" json:"timeout"`
	CacheSize int64           `yaml:"cache_size" json:"cache_size"`
}

// RemoteEmbedding configures the OpenAI-compatible provider. It is only
// used when APIKey is set.
type RemoteEmbedding struct {
	APIKey     string `yaml:"api_key" json:"-"`
	BaseURL    string `yaml:"base_url" json:"base_url"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
}

// LocalEmbedding configures the in-process provider used when no remote
// credentials are present. An empty Kind disables it.
type LocalEmbedding struct {
	Kind          string `yaml:"kind" json:"kind"` // hashing or onnx
	Dim           int    `yaml:"dim" json:"dim"`
	ModelPath     string `yaml:"model_path" json:"model_path"`
	TokenizerPath string `yaml:"tokenizer_path" json:"tokenizer_path"`
	LibraryPath   string `yaml:"library_path" json:"library_path"`
}

type IndexConfig struct {
	Backend    string     `yaml:"backend" json:"backend"` // auto, hnsw, chromem or brute
	HNSW       HNSWConfig `yaml:"hnsw" json:"hnsw"`
	Oversample int        `yaml:"oversample" json:"oversample"`
}

type HNSWConfig struct {
	M        int   `yaml:"m" json:"m"`
	EfSearch int   `yaml:"ef_search" json:"ef_search"`
	Seed     int64 `yaml:"seed" json:"seed"`
}

type ReconcileConfig struct {
	Sink     string   `yaml:"sink" json:"sink"` // local or s3
	Path     string   `yaml:"path" json:"path"`
	LocalDir string   `yaml:"local_dir" json:"local_dir"`
	S3       S3Config `yaml:"s3" json:"s3"`
}

type S3Config struct {
	Bucket          string `yaml:"bucket" json:"bucket"`
	Prefix          string `yaml:"prefix" json:"prefix"`
	Region          string `yaml:"region" json:"region"`
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id" json:"-"`
	SecretAccessKey string `yaml:"secret_access_key" json:"-"`
}

type TrelloConfig struct {
	APIKey  string `yaml:"api_key" json:"-"`
	Token   string `yaml:"token" json:"-"`
	BoardID string `yaml:"board_id" json:"board_id"`
}

type ServerConfig struct {
	Addr         string `yaml:"addr" json:"addr"`
	AuditRecalls bool   `yaml:"audit_recalls" json:"audit_recalls"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Log:       LogConfig{Level: "info", Format: "text"},
		Memory:    MemoryConfig{Backend: "inmemory"},
		Embedding: EmbeddingConfig{Timeout: "30s", CacheSize: 10_000},
		Index:     IndexConfig{Backend: "auto", HNSW: HNSWConfig{M: 16, EfSearch: 64, Seed: 1}, Oversample: 4},
		Reconcile: ReconcileConfig{Sink: "local", Path: "reconciliation_result.yaml", LocalDir: "."},
		Server:    ServerConfig{Addr: "127.0.0.1:8000"},
	}
}

// ApplyEnv overlays credentials and endpoints from the environment. getenv
// is usually os.Getenv; empty values leave the file setting in place.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Embedding.Remote.APIKey, "OPENAI_API_KEY")
	set(&c.Embedding.Remote.BaseURL, "OPENAI_BASE_URL")
	set(&c.Trello.APIKey, "TRELLO_API_KEY")
	set(&c.Trello.Token, "TRELLO_TOKEN")
	set(&c.Reconcile.S3.AccessKeyID, "AWS_ACCESS_KEY_ID")
	set(&c.Reconcile.S3.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	set(&c.Reconcile.S3.Region, "AWS_REGION")
}

// ProviderTimeout parses Embedding.Timeout. An empty value means 30s.
func (c *Config) ProviderTimeout() (time.Duration, error) {
	if c.Embedding.Timeout == "" {
		return 30 * time.Second, nil
	}
	d, err := time.ParseDuration(c.Embedding.Timeout)
	if err != nil {
		return 0, fmt.Errorf("embedding.timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("embedding.timeout must be positive, got %s", d)
	}
	return d, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Memory.Backend {
	case "inmemory":
	case "badger":
		if c.Memory.Dir == "" {
			errs = append(errs, errors.New("memory.dir is required for the badger backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("memory.backend %q is not one of inmemory, badger", c.Memory.Backend))
	}
	switch c.Embedding.Local.Kind {
	case "", "hashing", "onnx":
	default:
		errs = append(errs, fmt.Errorf("embedding.local.kind %q is not one of hashing, onnx", c.Embedding.Local.Kind))
	}
	if _, err := c.ProviderTimeout(); err != nil {
		errs = append(errs, err)
	}
	switch c.Index.Backend {
	case "auto", "hnsw", "chromem", "brute":
	default:
		errs = append(errs, fmt.Errorf("index.backend %q is not one of auto, hnsw, chromem, brute", c.Index.Backend))
	}
	switch c.Reconcile.Sink {
	case "local":
	case "s3":
		if c.Reconcile.S3.Bucket == "" {
			errs = append(errs, errors.New("reconcile.s3.bucket is required for the s3 sink"))
		}
	default:
		errs = append(errs, fmt.Errorf("reconcile.sink %q is not one of local, s3", c.Reconcile.Sink))
	}
	if c.Reconcile.Path == "" {
		errs = append(errs, errors.New("reconcile.path is required"))
	}
	return errors.Join(errs...)
}

// ConfigProvider is an interface for loading a configuration.
type ConfigProvider interface {
	LoadConfig(path string) (*Config, error)
}

// Global references
var (
	provider     ConfigProvider
	loadedConfig *Config
	ErrNotLoaded = fmt.Errorf("configuration not loaded")
)

// SetProvider sets the configuration provider.
func SetProvider(p ConfigProvider) {
	provider = p
}

// Load uses the current provider to load configuration from the given path.
func Load(path string) error {
	if provider == nil {
		return fmt.Errorf("no config provider set")
	}
	cfg, err := provider.LoadConfig(path)
	if err != nil {
		return err
	}
	loadedConfig = cfg
	return nil
}

// GetLoadedConfig returns the configuration from the last successful Load,
// or ErrNotLoaded.
func GetLoadedConfig() (*Config, error) {
	if loadedConfig == nil {
		return nil, ErrNotLoaded
	}
	return loadedConfig, nil
}
