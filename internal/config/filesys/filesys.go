package filesys

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/egobogo/addvar/internal/config"
)

// FilesysConfigProvider is a concrete implementation of ConfigProvider that reads YAML config files.
type FilesysConfigProvider struct {
	// Getenv overlays environment values after the file is read. Nil
	// disables the overlay.
	Getenv func(string) string
}

// NewFilesysConfigProvider creates a provider that overlays the process
// environment.
func NewFilesysConfigProvider() *FilesysConfigProvider {
	return &FilesysConfigProvider{Getenv: os.Getenv}
}

// LoadConfig reads the YAML file at path on top of config.Default, applies
// the environment overlay and validates the result. A missing file wraps
// os.ErrNotExist.
func (f *FilesysConfigProvider) LoadConfig(path string) (*config.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	cfg := config.Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML config: %w", err)
	}
	return f.finish(cfg)
}

// Defaults returns config.Default with the environment overlay applied.
func (f *FilesysConfigProvider) Defaults() (*config.Config, error) {
	return f.finish(config.Default())
}

func (f *FilesysConfigProvider) finish(cfg *config.Config) (*config.Config, error) {
	if f.Getenv != nil {
		cfg.ApplyEnv(f.Getenv)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
