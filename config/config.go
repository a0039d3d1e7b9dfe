package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v2"
)

const (
	DefaultWindowSize        = 100
	DefaultStalenessWindow   = 600 * time.Minute
	DefaultCapacityThreshold = 80
)

// Config is assembled once at startup and never mutated afterwards.
type Config struct {
	Root     string `yaml:"root"`
	Mirror   string `yaml:"mirror"`
	StateDir string `yaml:"state_dir"`

	WindowSize        int      `yaml:"window_size"`
	StalenessMinutes  int      `yaml:"staleness_minutes"`
	CapacityThreshold int      `yaml:"capacity_threshold"`
	Exclude           []string `yaml:"exclude"`
	StatusURL         string   `yaml:"status_url"`
	HashAlgorithm     string   `yaml:"hash_algorithm"`

	excludes []glob.Glob
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) finalize() error {
	if cfg.Root == "" {
		return fmt.Errorf("config: no backup root")
	}
	if cfg.Mirror == "" {
		return fmt.Errorf("config: no mirror location")
	}
	if cfg.StateDir == "" {
		return fmt.Errorf("config: no state directory")
	}
	if cfg.WindowSize == 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.WindowSize < 0 {
		return fmt.Errorf("config: invalid window size %d", cfg.WindowSize)
	}
	if cfg.StalenessMinutes < 0 {
		return fmt.Errorf("config: invalid staleness window %d", cfg.StalenessMinutes)
	}
	if cfg.CapacityThreshold == 0 {
		cfg.CapacityThreshold = DefaultCapacityThreshold
	}
	if cfg.CapacityThreshold < 0 || cfg.CapacityThreshold > 100 {
		return fmt.Errorf("config: invalid capacity threshold %d", cfg.CapacityThreshold)
	}
	if cfg.HashAlgorithm == "" {
		cfg.HashAlgorithm = "sha256"
	}
	for _, pattern := range cfg.Exclude {
		g, err := glob.Compile(pattern)
		if err != nil {
			return fmt.Errorf("config: invalid exclude pattern %q: %w", pattern, err)
		}
		cfg.excludes = append(cfg.excludes, g)
	}
	return nil
}

func (cfg *Config) Staleness() time.Duration {
	if cfg.StalenessMinutes == 0 {
		return DefaultStalenessWindow
	}
	return time.Duration(cfg.StalenessMinutes) * time.Minute
}

func (cfg *Config) Excludes() []glob.Glob {
	return cfg.excludes
}

func (cfg *Config) LedgerPath() string {
	return filepath.Join(cfg.StateDir, "ledger")
}

func (cfg *Config) LockPath() string {
	return filepath.Join(cfg.StateDir, "lock")
}

func (cfg *Config) FileSetPath() string {
	return filepath.Join(cfg.StateDir, "fileset")
}

func (cfg *Config) TransferLogPath() string {
	return filepath.Join(cfg.StateDir, "transfer.log")
}

func (cfg *Config) ErrorLogPath(runID string) string {
	return filepath.Join(cfg.StateDir, fmt.Sprintf("errors-%s.log", runID))
}
