// Package config loads the factord TOML configuration. A missing file is
// replaced with a generated default so a fresh checkout starts without
// ceremony.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Accounts names the privileged identities wired into the engines.
type Accounts struct {
	Marketplace string `toml:"Marketplace"`
	Escrow      string `toml:"Escrow"`
	Custody     string `toml:"Custody"`
	Admin       string `toml:"Admin"`
}

// Logging controls structured log output.
type Logging struct {
	Environment string `toml:"Environment"`
	File        string `toml:"File"`
	MaxSizeMB   int    `toml:"MaxSizeMB"`
	MaxBackups  int    `toml:"MaxBackups"`
	MaxAgeDays  int    `toml:"MaxAgeDays"`
}

type Config struct {
	RPCAddress     string   `toml:"RPCAddress"`
	DataDir        string   `toml:"DataDir"`
	FeeBasisPoints uint32   `toml:"FeeBasisPoints"`
	AuthSecret     string   `toml:"AuthSecret"`
	AllowInsecure  bool     `toml:"AllowInsecure"`
	Paused         []string `toml:"Paused"`
	Accounts       Accounts `toml:"Accounts"`
	Logging        Logging  `toml:"Logging"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./factorhub-data"
	}
	if cfg.Paused == nil {
		cfg.Paused = []string{}
	}
	if strings.TrimSpace(cfg.Logging.Environment) == "" {
		cfg.Logging.Environment = "dev"
	}
}

// Validate checks the loaded configuration for values the engines cannot run
// with.
func (cfg *Config) Validate() error {
	if cfg.FeeBasisPoints > 1000 {
		return fmt.Errorf("config: FeeBasisPoints %d exceeds the 1000 cap", cfg.FeeBasisPoints)
	}
	if strings.TrimSpace(cfg.AuthSecret) == "" && !cfg.AllowInsecure {
		return fmt.Errorf("config: AuthSecret required unless AllowInsecure is set")
	}
	for _, module := range cfg.Paused {
		switch strings.TrimSpace(module) {
		case "invoice", "marketplace", "escrow":
		default:
			return fmt.Errorf("config: unknown module %q in Paused", module)
		}
	}
	for name, account := range map[string]string{
		"Accounts.Marketplace": cfg.Accounts.Marketplace,
		"Accounts.Escrow":      cfg.Accounts.Escrow,
		"Accounts.Custody":     cfg.Accounts.Custody,
		"Accounts.Admin":       cfg.Accounts.Admin,
	} {
		if strings.TrimSpace(account) == "" {
			return fmt.Errorf("config: %s required", name)
		}
	}
	return nil
}

// PausedModules returns the paused set keyed by module name.
func (cfg *Config) PausedModules() map[string]bool {
	paused := make(map[string]bool, len(cfg.Paused))
	for _, module := range cfg.Paused {
		if trimmed := strings.TrimSpace(module); trimmed != "" {
			paused[trimmed] = true
		}
	}
	return paused
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:     ":8080",
		DataDir:        "./factorhub-data",
		FeeBasisPoints: 100,
		AllowInsecure:  true,
		Paused:         []string{},
		Accounts: Accounts{
			Marketplace: "marketplace.factorhub.local",
			Escrow:      "escrow.factorhub.local",
			Custody:     "custody.factorhub.local",
			Admin:       "admin.factorhub.local",
		},
		Logging: Logging{Environment: "dev"},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
