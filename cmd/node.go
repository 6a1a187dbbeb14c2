package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/mezonai/mvnode/block"
	"github.com/mezonai/mvnode/blockchain"
	"github.com/mezonai/mvnode/blockprocessor"
	"github.com/mezonai/mvnode/config"
	"github.com/mezonai/mvnode/events"
	"github.com/mezonai/mvnode/exception"
	"github.com/mezonai/mvnode/explorer"
	"github.com/mezonai/mvnode/intercom"
	"github.com/mezonai/mvnode/leadership"
	"github.com/mezonai/mvnode/logx"
	"github.com/mezonai/mvnode/monitoring"
	"github.com/mezonai/mvnode/network"
	"github.com/mezonai/mvnode/store"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	genesisPath    string
	nodeConfigPath string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the blockchain node",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runNode(ctx)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&genesisPath, "genesis", "genesis.yml", "Path to the genesis file")
	runCmd.Flags().StringVar(&nodeConfigPath, "config", "node.ini", "Path to the node configuration")
}

// node holds every long running service of a process.
type node struct {
	cfg        *config.NodeConfig
	store      store.BlockStore
	blockchain *blockchain.Blockchain
	processor  *blockprocessor.Process
	scheduler  *leadership.Scheduler
	explorer   *explorer.Process
	events     *events.EventBus
	hub        *network.Hub
	metrics    *http.Server

	input      chan intercom.BlockMsg
	leadership chan leadership.NewEpochToSchedule
	explorerCh chan intercom.ExplorerMsg
}

func runNode(ctx context.Context) (err error) {
	nodeCfg, err := config.LoadNodeConfig(nodeConfigPath)
	if err != nil {
		return fmt.Errorf("load node config: %w", err)
	}
	logx.Init(logx.OptionsFromEnv(nodeCfg.LogOptions()))
	defer logx.Close()

	genesis, err := config.LoadGenesisConfig(genesisPath)
	if err != nil {
		return fmt.Errorf("load genesis: %w", err)
	}

	n, err := initializeNode(ctx, nodeCfg, genesis)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := n.close(); closeErr != nil {
			err = multierror.Append(err, closeErr).ErrorOrNil()
		}
	}()
	return n.run(ctx)
}

func initializeNode(ctx context.Context, nodeCfg *config.NodeConfig, genesis *config.GenesisConfig) (*node, error) {
	privKey, err := config.LoadEd25519PrivKey(nodeCfg.Node.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load private key: %w", err)
	}
	nodeID, err := network.NodeIDFromKey(privKey)
	if err != nil {
		return nil, err
	}

	bs, err := store.CreateStore(nodeCfg.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("init %s blockstore: %w", nodeCfg.Storage.Type, err)
	}
	logx.Info("NODE", fmt.Sprintf("Using %s blockstore", nodeCfg.Storage.Type))

	n := &node{
		cfg:        nodeCfg,
		store:      bs,
		input:      make(chan intercom.BlockMsg, nodeCfg.Processor.InputBuffer),
		leadership: make(chan leadership.NewEpochToSchedule, 1),
		explorerCh: make(chan intercom.ExplorerMsg, nodeCfg.Processor.InputBuffer),
	}

	n.blockchain = blockchain.NewBlockchain(bs, leadership.NewVerifier(), nodeCfg.BlockchainOptions())
	block0, err := n.blockchain.LoadFromBlock0(ctx, genesis.Block0(), genesis.Settings())
	if err != nil {
		_ = bs.Close()
		return nil, fmt.Errorf("load block0: %w", err)
	}
	tip, err := n.blockchain.LoadTip(ctx)
	if err != nil {
		_ = bs.Close()
		return nil, fmt.Errorf("load tip: %w", err)
	}
	logx.Info("NODE", fmt.Sprintf("Block0 %s, tip %s at chain length %d", block0.Hash(), tip.Hash(), tip.ChainLength()))
	branch := n.blockchain.NewBranch(tip)
	monitoring.SetTipChainLength(uint32(tip.ChainLength()))

	networkCh := make(chan intercom.NetworkMsg, nodeCfg.Processor.NetworkBuffer)
	n.events = events.NewEventBus()
	router := events.NewEventRouter(n.events)
	n.processor = blockprocessor.NewProcess(n.blockchain, branch, networkCh, n.leadership, n.explorerCh, router, nodeCfg.ProcessorConfig())

	explorerDB := explorer.NewDB(n.blockchain)
	indexed, err := explorerDB.Rehydrate(ctx, n.blockchain, bs, tip.ChainLength())
	if err != nil {
		_ = bs.Close()
		return nil, fmt.Errorf("rehydrate explorer: %w", err)
	}
	logx.Info("NODE", fmt.Sprintf("Explorer rehydrated with %d stored blocks", indexed))
	n.explorer = explorer.NewProcess(explorerDB, nodeCfg.ShutdownTimeout())
	n.scheduler = initializeScheduler(n.blockchain, genesis, tip, n.input)

	n.hub = network.NewHub(nodeCfg.ReplyTimeout())
	if limit, ok := nodeCfg.PullLimit(); ok {
		n.hub.LimitPulls(limit)
	}
	n.hub.Join(&network.Endpoint{ID: nodeID, Blockchain: n.blockchain, Input: n.input, Outbox: networkCh})
	logx.Info("NODE", "Node id: ", nodeID)

	if nodeCfg.Metrics.ListenAddr != "" {
		monitoring.InitMetrics()
		mux := http.NewServeMux()
		monitoring.RegisterMetrics(mux)
		n.metrics = &http.Server{Addr: nodeCfg.Metrics.ListenAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}
	return n, nil
}

// initializeScheduler installs the schedule of the epoch running now. End of
// epoch notifications go back to the block processor input.
func initializeScheduler(bc *blockchain.Blockchain, genesis *config.GenesisConfig, tip *blockchain.Ref, input chan<- intercom.BlockMsg) *leadership.Scheduler {
	scheduler := leadership.NewScheduler(func(epoch block.Epoch) {
		select {
		case input <- intercom.LeadershipExpectEndOfEpoch{Epoch: epoch}:
		default:
			logx.Warn("NODE", "block processor queue full, end of epoch ", epoch, " not signalled")
		}
	}, time.Second)

	var epoch block.Epoch
	tf := leadership.TimeFrameFromSettings(genesis.Settings())
	if date, ok := tf.DateAt(time.Now()); ok {
		epoch = date.Epoch
	}
	scheduler.Install(bc.NewEpochLeadershipFrom(epoch, tip))
	return scheduler
}

func (n *node) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	exception.SafeGo("event-log", func() { events.LogEvents(ctx, n.events) })
	g.Go(func() error { return n.processor.Run(ctx, n.input) })
	g.Go(func() error { return n.scheduler.Run(ctx, n.leadership) })
	g.Go(func() error { return n.explorer.Run(ctx, n.explorerCh) })
	g.Go(func() error { return n.hub.Run(ctx) })
	if n.metrics != nil {
		g.Go(func() error {
			logx.Info("NODE", "Metrics listening on ", n.metrics.Addr)
			if err := n.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), n.cfg.ShutdownTimeout())
			defer cancel()
			return n.metrics.Shutdown(shutdownCtx)
		})
	}
	logx.Info("NODE", "Node started")
	err := g.Wait()
	logx.Info("NODE", "Node stopped")
	return err
}

func (n *node) close() error {
	var result *multierror.Error
	if err := n.store.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close blockstore: %w", err))
	}
	return result.ErrorOrNil()
}
