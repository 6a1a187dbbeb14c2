package cmd

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mezonai/mvnode/common"
	"github.com/mezonai/mvnode/config"
	"github.com/mezonai/mvnode/logx"
	"github.com/spf13/cobra"
)

var (
	initDataDir       string
	initSlotsPerEpoch uint32
	initSlotDuration  time.Duration
	initFunds         uint64
	initForce         bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a single leader network",
	Long: `Initialize a new node by:
- Generating a new Ed25519 leader key
- Writing a genesis file naming that key as the only consensus leader
- Writing a node.ini with default settings`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeInitFiles()
	},
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringVar(&initDataDir, "data-dir", ".", "Directory to write node.key, genesis.yml and node.ini")
	initCmd.Flags().Uint32Var(&initSlotsPerEpoch, "slots-per-epoch", 100, "Number of slots in an epoch")
	initCmd.Flags().DurationVar(&initSlotDuration, "slot-duration", 2*time.Second, "Duration of a slot")
	initCmd.Flags().Uint64Var(&initFunds, "funds", 1_000_000, "Initial balance of the leader account")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing files")
}

func writeInitFiles() error {
	if err := os.MkdirAll(initDataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	keyPath := filepath.Join(initDataDir, "node.key")
	genesisPath := filepath.Join(initDataDir, "genesis.yml")
	nodePath := filepath.Join(initDataDir, "node.ini")

	if !initForce {
		for _, path := range []string{keyPath, genesisPath, nodePath} {
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			}
		}
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	if err := config.SaveEd25519PrivKey(keyPath, priv); err != nil {
		return fmt.Errorf("save key: %w", err)
	}
	leader := common.AddressFromPublicKey(pub)

	genesis := &config.GenesisConfig{
		Block0Time:    time.Now().UTC().Truncate(time.Second),
		SlotDuration:  initSlotDuration,
		SlotsPerEpoch: initSlotsPerEpoch,
		Leaders:       []string{leader},
		Accounts:      []config.InitialAccount{{Address: leader, Amount: initFunds}},
	}
	if err := genesis.Validate(); err != nil {
		return err
	}
	if err := config.WriteGenesisConfig(genesisPath, genesis); err != nil {
		return fmt.Errorf("write genesis: %w", err)
	}

	nodeCfg := config.DefaultNodeConfig()
	nodeCfg.Storage.Directory = filepath.Join(initDataDir, "data")
	nodeCfg.Node.PrivateKeyPath = keyPath
	if err := config.WriteNodeConfig(nodePath, nodeCfg); err != nil {
		return fmt.Errorf("write node config: %w", err)
	}

	logx.Info("INIT", "Leader: ", leader)
	logx.Info("INIT", "Block0: ", genesis.Block0().Hash())
	logx.Info("INIT", fmt.Sprintf("Wrote %s, %s and %s", keyPath, genesisPath, nodePath))
	return nil
}
