package daemonconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendMock = "mock"

	NetworkBitcoin = "bitcoin"
	NetworkTestnet = "testnet"
	NetworkSignet  = "signet"
	NetworkRegtest = "regtest"
)

const (
	envNetwork       = "WALLETD_NETWORK"
	envDataDir       = "WALLETD_DATA_DIR"
	envBackend       = "WALLETD_BACKEND"
	envProbeInterval = "WALLETD_PROBE_INTERVAL"
	envSeedPass      = "WALLETD_SEED_PASSPHRASE"
)

// Config describes how the embedded daemon is started. It is handed around by
// value and never mutated after LoadFromPath returns. A non-empty Descriptor
// pins the wallet keys; empty lets the backend derive them from a mnemonic.
type Config struct {
	Network       string         `yaml:"network"`
	DataDir       string         `yaml:"dataDir"`
	Backend       string         `yaml:"backend"`
	Descriptor    string         `yaml:"descriptor"`
	PollInterval  time.Duration  `yaml:"pollInterval"`
	ProbeInterval time.Duration  `yaml:"probeInterval"`
	Bitcoind      BitcoindConfig `yaml:"bitcoind"`
	Log           LogConfig      `yaml:"log"`

	// SeedPassphrase seals the wallet seed in DataDir. It is only read from
	// the environment; empty keeps the seed in memory for the session.
	SeedPassphrase string `yaml:"-"`
}

// BitcoindConfig points a chain-backed daemon at its bitcoind node. The mock
// backend has no node and refuses to start when either field is set.
type BitcoindConfig struct {
	Addr       string `yaml:"addr"`
	CookiePath string `yaml:"cookiePath"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type fileConfig struct {
	Daemon Config `yaml:"daemon"`
}

func DefaultConfig() Config {
	return Config{
		Network:       NetworkBitcoin,
		DataDir:       "walletd-data",
		Backend:       BackendMock,
		PollInterval:  30 * time.Second,
		ProbeInterval: 5 * time.Second,
		Log:           LogConfig{Level: "info"},
	}
}

func normalizeConfig(cfg Config) Config {
	def := DefaultConfig()
	cfg.Network = strings.ToLower(strings.TrimSpace(cfg.Network))
	switch cfg.Network {
	case NetworkBitcoin, NetworkTestnet, NetworkSignet, NetworkRegtest:
	default:
		cfg.Network = def.Network
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if cfg.Backend == "" {
		cfg.Backend = def.Backend
	}
	cfg.Descriptor = strings.TrimSpace(cfg.Descriptor)
	cfg.Bitcoind.Addr = strings.TrimSpace(cfg.Bitcoind.Addr)
	cfg.Bitcoind.CookiePath = strings.TrimSpace(cfg.Bitcoind.CookiePath)
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = def.DataDir
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = def.ProbeInterval
	}
	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = def.Log.Level
	}
	return cfg
}

// LoadFromPath reads the YAML config at configPath, or the first readable
// default location when configPath is empty. A missing default file is not an
// error; a missing or malformed explicit file is.
func LoadFromPath(configPath string) (Config, error) {
	cfg := DefaultConfig()

	candidates := make([]string, 0, 2)
	explicit := strings.TrimSpace(configPath) != ""
	if explicit {
		candidates = append(candidates, configPath)
	} else {
		candidates = append(candidates,
			filepath.Join("configs", "walletd.yaml"),
			"walletd.yaml",
		)
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if explicit {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
			continue
		}
		parsed := fileConfig{Daemon: cfg}
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg = parsed.Daemon
		break
	}

	if err := ApplyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	return normalizeConfig(cfg), nil
}

func ApplyEnvOverrides(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if v := strings.TrimSpace(os.Getenv(envNetwork)); v != "" {
		cfg.Network = v
	}
	if v := strings.TrimSpace(os.Getenv(envDataDir)); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv(envBackend)); v != "" {
		cfg.Backend = v
	}
	if raw := strings.TrimSpace(os.Getenv(envProbeInterval)); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", envProbeInterval, err)
		}
		cfg.ProbeInterval = d
	}
	if v := os.Getenv(envSeedPass); v != "" {
		cfg.SeedPassphrase = v
	}
	return nil
}
