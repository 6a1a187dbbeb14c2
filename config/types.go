package config

import "time"

// InitialAccount is a balance minted by block0.
type InitialAccount struct {
	Address string `yaml:"address"`
	Amount  uint64 `yaml:"amount"`
}

// GenesisConfig holds the blockchain parameters from genesis.yml
type GenesisConfig struct {
	Block0Time    time.Time        `yaml:"block0_time"`
	SlotDuration  time.Duration    `yaml:"slot_duration"`
	SlotsPerEpoch uint32           `yaml:"slots_per_epoch"`
	Leaders       []string         `yaml:"consensus_leaders"`
	Accounts      []InitialAccount `yaml:"initial_accounts"`
}

// ConfigFile is the top-level structure for genesis.yml
type ConfigFile struct {
	Config GenesisConfig `yaml:"config"`
}

type StorageConfig struct {
	Type      string `ini:"type"`
	Directory string `ini:"directory"`
	RedisAddr string `ini:"redis_addr"`
	RedisDB   int    `ini:"redis_db"`
}

type LogConfig struct {
	File       string `ini:"file"`
	MaxSizeMB  int    `ini:"max_size_mb"`
	MaxAgeDays int    `ini:"max_age_days"`
	Level      string `ini:"level"`
}

type ProcessorConfig struct {
	InputBuffer             int `ini:"input_buffer"`
	NetworkBuffer           int `ini:"network_buffer"`
	LeadershipSendTimeoutMs int `ini:"leadership_send_timeout_ms"`
	ShutdownTimeoutMs       int `ini:"shutdown_timeout_ms"`
}

type MultiverseConfig struct {
	ForkDepth  uint32 `ini:"fork_depth"`
	GCInterval int    `ini:"gc_interval"`
}

type NetworkConfig struct {
	ReplyTimeoutMs int `ini:"reply_timeout_ms"`
	PullLimit      int `ini:"pull_limit"`
	PullWindowMs   int `ini:"pull_window_ms"`
}

type MetricsConfig struct {
	ListenAddr string `ini:"listen_addr"`
}

type NodeSection struct {
	PrivateKeyPath string `ini:"private_key_path"`
}

// NodeConfig is the node.ini file, one struct per section.
type NodeConfig struct {
	Storage    StorageConfig
	Log        LogConfig
	Processor  ProcessorConfig
	Multiverse MultiverseConfig
	Network    NetworkConfig
	Metrics    MetricsConfig
	Node       NodeSection
}
