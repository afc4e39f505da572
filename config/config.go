package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fundpool/crypto"

	"github.com/BurntSushi/toml"
)

// Config captures the construction-time settings of a fundpool deployment:
// the controller identity and the price-oracle wiring. The minimum
// contribution threshold is a fixed design constant and deliberately absent.
type Config struct {
	Controller         string       `toml:"Controller"`
	PricePair          string       `toml:"PricePair"`
	MaxQuoteAgeSeconds int64        `toml:"MaxQuoteAgeSeconds"`
	Oracle             OracleConfig `toml:"oracle"`
}

// OracleConfig selects and tunes the price source.
type OracleConfig struct {
	Type          string            `toml:"Type"`
	Endpoint      string            `toml:"Endpoint"`
	AssetIDs      map[string]string `toml:"AssetIDs"`
	ManualRate    string            `toml:"ManualRate"`
	Version       uint64            `toml:"Version"`
	RatePerMinute float64           `toml:"RatePerMinute"`
	Burst         int               `toml:"Burst"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.PricePair) == "" {
		c.PricePair = "FND/USD"
	}
	if c.MaxQuoteAgeSeconds <= 0 {
		c.MaxQuoteAgeSeconds = 300
	}
	if strings.TrimSpace(c.Oracle.Type) == "" {
		c.Oracle.Type = "manual"
	}
	if c.Oracle.Version == 0 {
		c.Oracle.Version = 1
	}
	if c.Oracle.RatePerMinute <= 0 {
		c.Oracle.RatePerMinute = 30
	}
	if c.Oracle.Burst <= 0 {
		c.Oracle.Burst = 5
	}
}

// Validate checks field consistency. The controller must be a decodable
// bech32 address when set; the oracle type must be one of the known kinds.
func (c *Config) Validate() error {
	if trimmed := strings.TrimSpace(c.Controller); trimmed != "" {
		if _, err := crypto.DecodeAddress(trimmed); err != nil {
			return fmt.Errorf("invalid Controller address: %w", err)
		}
	}
	if !strings.Contains(c.PricePair, "/") {
		return fmt.Errorf("PricePair must be BASE/QUOTE, got %q", c.PricePair)
	}
	switch strings.ToLower(strings.TrimSpace(c.Oracle.Type)) {
	case "manual", "coingecko":
	default:
		return fmt.Errorf("unknown oracle type %q", c.Oracle.Type)
	}
	return nil
}

// ControllerAddress decodes the configured controller identity.
func (c *Config) ControllerAddress() (crypto.Address, error) {
	trimmed := strings.TrimSpace(c.Controller)
	if trimmed == "" {
		return crypto.Address{}, fmt.Errorf("Controller not configured")
	}
	return crypto.DecodeAddress(trimmed)
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Oracle.ManualRate = "2000"

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
