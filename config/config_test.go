package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mezonai/mvnode/common"
	"github.com/mezonai/mvnode/ledger"
	"github.com/mezonai/mvnode/logx"
	"github.com/mezonai/mvnode/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAddress(t *testing.T) string {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return common.AddressFromPublicKey(pub)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadGenesisConfig(t *testing.T) {
	leader, alice := newAddress(t), newAddress(t)
	path := writeFile(t, "genesis.yml", `config:
  block0_time: 2024-01-02T03:04:05Z
  slot_duration: 2s
  slots_per_epoch: 50
  consensus_leaders:
    - `+leader+`
  initial_accounts:
    - address: `+alice+`
      amount: 1000
`)

	cfg, err := LoadGenesisConfig(path)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), cfg.Block0Time.UTC())
	assert.Equal(t, 2*time.Second, cfg.SlotDuration)
	assert.Equal(t, uint32(50), cfg.SlotsPerEpoch)

	l, err := ledger.FromGenesis(cfg.Block0(), cfg.Settings())
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), l.Account(alice).Balance.Uint64())
}

func TestGenesisRoundTrip(t *testing.T) {
	cfg := &GenesisConfig{
		Block0Time:    time.Unix(1_700_000_000, 0).UTC(),
		SlotDuration:  time.Second,
		SlotsPerEpoch: 10,
		Leaders:       []string{newAddress(t)},
		Accounts:      []InitialAccount{{Address: newAddress(t), Amount: 7}},
	}
	path := filepath.Join(t.TempDir(), "genesis.yml")
	require.NoError(t, WriteGenesisConfig(path, cfg))

	loaded, err := LoadGenesisConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Block0().Hash(), loaded.Block0().Hash())
	assert.Equal(t, cfg.Leaders, loaded.Leaders)
}

func TestGenesisValidation(t *testing.T) {
	valid := func() *GenesisConfig {
		return &GenesisConfig{
			Block0Time:    time.Unix(1_700_000_000, 0),
			SlotDuration:  time.Second,
			SlotsPerEpoch: 10,
			Leaders:       []string{newAddress(t)},
			Accounts:      []InitialAccount{{Address: newAddress(t), Amount: 1}},
		}
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(*GenesisConfig){
		"no leaders":       func(g *GenesisConfig) { g.Leaders = nil },
		"no slots":         func(g *GenesisConfig) { g.SlotsPerEpoch = 0 },
		"no block0 time":   func(g *GenesisConfig) { g.Block0Time = time.Time{} },
		"bad address":      func(g *GenesisConfig) { g.Accounts[0].Address = "not-an-address" },
		"empty allocation": func(g *GenesisConfig) { g.Accounts[0].Amount = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			g := valid()
			mutate(g)
			assert.Error(t, g.Validate())
		})
	}
}

func TestLoadGenesisRejectsUnknownFields(t *testing.T) {
	path := writeFile(t, "genesis.yml", "config:\n  leader_schedule: []\n")
	_, err := LoadGenesisConfig(path)
	assert.Error(t, err)
}

func TestLoadNodeConfigDefaults(t *testing.T) {
	path := writeFile(t, "node.ini", `[storage]
type = bolt
directory = /tmp/chain

[multiverse]
fork_depth = 3
`)
	cfg, err := LoadNodeConfig(path)
	require.NoError(t, err)

	assert.Equal(t, store.BoltStoreType, cfg.StoreConfig().Type)
	assert.Equal(t, "/tmp/chain", cfg.StoreConfig().Directory)
	assert.Equal(t, uint32(3), cfg.BlockchainOptions().ForkDepth)

	def := DefaultNodeConfig()
	assert.Equal(t, def.Multiverse.GCInterval, cfg.BlockchainOptions().GCInterval)
	assert.Equal(t, def.Processor, cfg.Processor)
	assert.Equal(t, logx.LevelInfo, cfg.LogOptions().Level)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout())
	assert.Equal(t, 5*time.Second, cfg.ProcessorConfig().LeadershipSendTimeout)
	assert.Equal(t, 10*time.Second, cfg.ReplyTimeout())

	limit, ok := cfg.PullLimit()
	require.True(t, ok)
	assert.Equal(t, 10, limit.MaxRequests)
	assert.Equal(t, time.Second, limit.WindowSize)
}

func TestLoadNodeConfigOverrides(t *testing.T) {
	path := writeFile(t, "node.ini", `[storage]
type = memory

[log]
file = logs/node.log
level = warn

[processor]
input_buffer = 8
leadership_send_timeout_ms = 250

[network]
pull_limit = 0

[metrics]
listen_addr = 127.0.0.1:9999
`)
	cfg, err := LoadNodeConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Processor.InputBuffer)
	assert.Equal(t, 250*time.Millisecond, cfg.ProcessorConfig().LeadershipSendTimeout)
	assert.Equal(t, "logs/node.log", cfg.LogOptions().File)
	assert.Equal(t, logx.LevelWarn, cfg.LogOptions().Level)
	assert.Equal(t, "127.0.0.1:9999", cfg.Metrics.ListenAddr)
	_, limited := cfg.PullLimit()
	assert.False(t, limited)
}

func TestLoadNodeConfigInvalid(t *testing.T) {
	for name, content := range map[string]string{
		"unknown storage": "[storage]\ntype = rocksdb\n",
		"bad level":       "[log]\nlevel = loud\n",
		"zero buffer":     "[processor]\ninput_buffer = 0\n",
		"redis no addr":   "[storage]\ntype = redis\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadNodeConfig(writeFile(t, "node.ini", content))
			assert.Error(t, err)
		})
	}
}

func TestPrivateKeyFile(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "node.key")
	require.NoError(t, SaveEd25519PrivKey(path, priv))

	loaded, err := LoadEd25519PrivKey(path)
	require.NoError(t, err)
	assert.Equal(t, priv, loaded)

	short := writeFile(t, "short.key", "abcd")
	_, err = LoadEd25519PrivKey(short)
	assert.Error(t, err)
}

func TestWriteNodeConfig(t *testing.T) {
	cfg := DefaultNodeConfig()
	cfg.Storage.Type = string(store.MemoryStoreType)
	cfg.Multiverse.ForkDepth = 42
	path := filepath.Join(t.TempDir(), "node.ini")
	require.NoError(t, WriteNodeConfig(path, cfg))

	loaded, err := LoadNodeConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
