package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"github.com/mezonai/mvnode/block"
	"github.com/mezonai/mvnode/blockchain"
	"github.com/mezonai/mvnode/blockprocessor"
	"github.com/mezonai/mvnode/common"
	"github.com/mezonai/mvnode/ledger"
	"github.com/mezonai/mvnode/logx"
	"github.com/mezonai/mvnode/ratelimit"
	"github.com/mezonai/mvnode/store"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// LoadGenesisConfig reads and parses the genesis.yml file
func LoadGenesisConfig(path string) (*GenesisConfig, error) {
	logx.Debug("CONFIG", "LoadGenesisConfig called with path: ", path)
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var cfgFile ConfigFile
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfgFile); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	cfg := &cfgFile.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis %s: %w", path, err)
	}
	logx.Info("CONFIG", fmt.Sprintf("Loaded genesis: %d leaders, %d initial accounts, %d slots per epoch",
		len(cfg.Leaders), len(cfg.Accounts), cfg.SlotsPerEpoch))
	return cfg, nil
}

// WriteGenesisConfig stores cfg as yaml at path.
func WriteGenesisConfig(path string, cfg *GenesisConfig) error {
	data, err := yaml.Marshal(&ConfigFile{Config: *cfg})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (g *GenesisConfig) Validate() error {
	settings := g.Settings()
	if err := settings.Validate(); err != nil {
		return err
	}
	if g.Block0Time.IsZero() {
		return errors.New("block0_time is required")
	}
	for _, acc := range g.Accounts {
		if !common.IsValidAddress(acc.Address) {
			return fmt.Errorf("invalid initial account address %q", acc.Address)
		}
		if acc.Amount == 0 {
			return fmt.Errorf("initial account %s has no funds", acc.Address)
		}
	}
	return nil
}

func (g *GenesisConfig) Settings() ledger.Settings {
	return ledger.Settings{
		Block0Time:    g.Block0Time,
		SlotDuration:  g.SlotDuration,
		SlotsPerEpoch: g.SlotsPerEpoch,
		Leaders:       append([]string(nil), g.Leaders...),
	}
}

// Block0 builds the genesis block minting every initial account.
func (g *GenesisConfig) Block0() *block.Block {
	contents := make([]*block.Fragment, 0, len(g.Accounts))
	for _, acc := range g.Accounts {
		contents = append(contents, block.NewFragment("", acc.Address, uint256.NewInt(acc.Amount), 0))
	}
	return block.Genesis(block.BlockDate{}, contents)
}

// LoadEd25519PrivKey loads an Ed25519 private key from a file (expects hex encoding)
func LoadEd25519PrivKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, err
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key in %s has %d bytes, want %d", path, len(key), ed25519.PrivateKeySize)
	}
	return ed25519.PrivateKey(key), nil
}

func SaveEd25519PrivKey(path string, key ed25519.PrivateKey) error {
	return os.WriteFile(path, []byte(hex.EncodeToString(key)), 0o600)
}

func DefaultNodeConfig() *NodeConfig {
	bc := blockchain.DefaultOptions()
	proc := blockprocessor.DefaultConfig()
	return &NodeConfig{
		Storage: StorageConfig{Type: string(store.LevelDBStoreType), Directory: "./data"},
		Log:     LogConfig{MaxSizeMB: 100, MaxAgeDays: 7, Level: "info"},
		Processor: ProcessorConfig{
			InputBuffer:             64,
			NetworkBuffer:           64,
			LeadershipSendTimeoutMs: int(proc.LeadershipSendTimeout / time.Millisecond),
			ShutdownTimeoutMs:       10_000,
		},
		Multiverse: MultiverseConfig{ForkDepth: bc.ForkDepth, GCInterval: bc.GCInterval},
		Network:    NetworkConfig{ReplyTimeoutMs: 10_000, PullLimit: 10, PullWindowMs: 1_000},
		Metrics:    MetricsConfig{ListenAddr: ":9100"},
		Node:       NodeSection{PrivateKeyPath: "node.key"},
	}
}

// LoadNodeConfig reads node.ini. Keys missing from the file keep their
// default value.
func LoadNodeConfig(path string) (*NodeConfig, error) {
	file, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultNodeConfig()
	for name, target := range cfg.sections() {
		if err := file.Section(name).MapTo(target); err != nil {
			return nil, fmt.Errorf("section [%s]: %w", name, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WriteNodeConfig saves cfg as an ini file, one section per struct.
func WriteNodeConfig(path string, cfg *NodeConfig) error {
	file := ini.Empty()
	for name, source := range cfg.sections() {
		if err := file.Section(name).ReflectFrom(source); err != nil {
			return fmt.Errorf("section [%s]: %w", name, err)
		}
	}
	return file.SaveTo(path)
}

func (c *NodeConfig) sections() map[string]interface{} {
	return map[string]interface{}{
		"storage":    &c.Storage,
		"log":        &c.Log,
		"processor":  &c.Processor,
		"multiverse": &c.Multiverse,
		"network":    &c.Network,
		"metrics":    &c.Metrics,
		"node":       &c.Node,
	}
}

func (c *NodeConfig) Validate() error {
	if err := c.StoreConfig().Validate(); err != nil {
		return fmt.Errorf("[storage]: %w", err)
	}
	if _, err := logx.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("[log]: %w", err)
	}
	if c.Processor.InputBuffer <= 0 || c.Processor.NetworkBuffer <= 0 {
		return errors.New("[processor]: queue buffers must be positive")
	}
	if c.Processor.LeadershipSendTimeoutMs <= 0 {
		return errors.New("[processor]: leadership_send_timeout_ms must be positive")
	}
	if c.Processor.ShutdownTimeoutMs < 0 {
		return errors.New("[processor]: shutdown_timeout_ms cannot be negative")
	}
	if c.Multiverse.GCInterval < 0 {
		return errors.New("[multiverse]: gc_interval cannot be negative")
	}
	if c.Network.ReplyTimeoutMs <= 0 {
		return errors.New("[network]: reply_timeout_ms must be positive")
	}
	if c.Network.PullLimit < 0 || c.Network.PullWindowMs < 0 {
		return errors.New("[network]: pull limits cannot be negative")
	}
	return nil
}

func (c *NodeConfig) StoreConfig() *store.StoreConfig {
	return &store.StoreConfig{
		Type:      store.StoreType(c.Storage.Type),
		Directory: c.Storage.Directory,
		RedisAddr: c.Storage.RedisAddr,
		RedisDB:   c.Storage.RedisDB,
	}
}

func (c *NodeConfig) LogOptions() logx.Options {
	level, err := logx.ParseLevel(c.Log.Level)
	if err != nil {
		level = logx.LevelInfo
	}
	return logx.Options{
		File:      c.Log.File,
		MaxSizeMB: c.Log.MaxSizeMB,
		MaxAgeDay: c.Log.MaxAgeDays,
		Level:     level,
	}
}

func (c *NodeConfig) BlockchainOptions() blockchain.Options {
	return blockchain.Options{ForkDepth: c.Multiverse.ForkDepth, GCInterval: c.Multiverse.GCInterval}
}

func (c *NodeConfig) ProcessorConfig() blockprocessor.Config {
	cfg := blockprocessor.DefaultConfig()
	cfg.LeadershipSendTimeout = time.Duration(c.Processor.LeadershipSendTimeoutMs) * time.Millisecond
	return cfg
}

func (c *NodeConfig) ReplyTimeout() time.Duration {
	return time.Duration(c.Network.ReplyTimeoutMs) * time.Millisecond
}

// PullLimit is the per node header pull budget. A zero pull_limit disables
// limiting.
func (c *NodeConfig) PullLimit() (ratelimit.Config, bool) {
	if c.Network.PullLimit == 0 {
		return ratelimit.Config{}, false
	}
	return ratelimit.Config{
		MaxRequests: c.Network.PullLimit,
		WindowSize:  time.Duration(c.Network.PullWindowMs) * time.Millisecond,
	}, true
}

func (c *NodeConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.Processor.ShutdownTimeoutMs) * time.Millisecond
}
