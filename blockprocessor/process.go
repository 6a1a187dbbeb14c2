package blockprocessor

import (
	"context"
	"fmt"
	"time"

	"github.com/mezonai/mvnode/block"
	"github.com/mezonai/mvnode/blockchain"
	"github.com/mezonai/mvnode/errors"
	"github.com/mezonai/mvnode/events"
	"github.com/mezonai/mvnode/intercom"
	"github.com/mezonai/mvnode/leadership"
	"github.com/mezonai/mvnode/logx"
	"github.com/mezonai/mvnode/monitoring"
)

type Config struct {
	// how long to wait on the leadership scheduler before dropping a schedule
	LeadershipSendTimeout time.Duration
	// same for the explorer queue
	ExplorerSendTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		LeadershipSendTimeout: 5 * time.Second,
		ExplorerSendTimeout:   5 * time.Second,
	}
}

// Process consumes block messages one at a time. Every message is handled to
// completion before the next is read, so applies never race on the branch.
type Process struct {
	blockchain *blockchain.Blockchain
	branch     *blockchain.Branch
	network    chan<- intercom.NetworkMsg
	leadership chan<- leadership.NewEpochToSchedule
	explorer   chan<- intercom.ExplorerMsg
	router     *events.EventRouter
	cfg        Config
}

// NewProcess wires the processor. explorer and router may be nil.
func NewProcess(
	bc *blockchain.Blockchain,
	branch *blockchain.Branch,
	network chan<- intercom.NetworkMsg,
	leadershipCh chan<- leadership.NewEpochToSchedule,
	explorer chan<- intercom.ExplorerMsg,
	router *events.EventRouter,
	cfg Config,
) *Process {
	return &Process{
		blockchain: bc,
		branch:     branch,
		network:    network,
		leadership: leadershipCh,
		explorer:   explorer,
		router:     router,
		cfg:        cfg,
	}
}

func (p *Process) Branch() *blockchain.Branch {
	return p.branch
}

// Run handles input until it is closed, a Shutdown message arrives or ctx is
// done. A message already being handled when ctx is cancelled still runs to
// completion.
func (p *Process) Run(ctx context.Context, input <-chan intercom.BlockMsg) error {
	logx.Info("BLOCK_PROCESSOR", "Block processor started")
	defer logx.Info("BLOCK_PROCESSOR", "Block processor stopped")

	handleCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-input:
			if !ok {
				return nil
			}
			if _, stop := msg.(intercom.Shutdown); stop {
				return nil
			}
			p.Handle(handleCtx, msg)
		}
	}
}

// Handle processes one message synchronously.
func (p *Process) Handle(ctx context.Context, msg intercom.BlockMsg) {
	switch m := msg.(type) {
	case intercom.LeadershipExpectEndOfEpoch:
		if err := p.handleEndOfEpoch(ctx, m.Epoch+1); err != nil {
			logx.Crit("BLOCK_PROCESSOR", "cannot send new leader schedule data to leadership module: ", err)
		}
	case intercom.LeadershipBlock:
		p.handleLeadershipBlock(ctx, m.Block)
	case intercom.AnnouncedBlock:
		if err := p.processBlockAnnouncement(ctx, m.Header, m.Peer); err != nil {
			logx.Error("BLOCK_PROCESSOR", fmt.Sprintf("cannot process announced block %s: %v", m.Header.Hash(), err))
		}
	case intercom.NetworkBlock:
		p.handleNetworkBlock(ctx, m.Block, m.Reply)
	case intercom.ChainHeaders:
		p.handleChainHeaders(ctx, m.Headers, m.Reply)
	case intercom.Shutdown:
	default:
		logx.Warn("BLOCK_PROCESSOR", fmt.Sprintf("unexpected message %T", msg))
	}
}

func (p *Process) handleEndOfEpoch(ctx context.Context, epoch block.Epoch) error {
	logx.Debug("BLOCK_PROCESSOR", "preparing new epoch schedule for epoch ", epoch)
	payload := p.blockchain.NewEpochLeadershipFrom(epoch, p.branch.Tip())

	timer := time.NewTimer(p.cfg.LeadershipSendTimeout)
	defer timer.Stop()
	select {
	case p.leadership <- payload:
		return nil
	case <-timer.C:
		return fmt.Errorf("leadership queue full for %s", p.cfg.LeadershipSendTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleLeadershipBlock skips the pre-check: the block was minted locally.
// Failing to apply it is a defect and is reported as such.
func (p *Process) handleLeadershipBlock(ctx context.Context, blk *block.Block) {
	ref, err := p.processLeadershipBlock(ctx, blk)
	if err != nil {
		p.rejected(blk.Hash(), events.SourceLeadership, err)
		logx.Fatal("BLOCK_PROCESSOR", fmt.Sprintf("locally minted block %s was rejected: %v", blk.Hash(), err))
		return
	}
	p.newRef(ref, blk, events.SourceLeadership)
}

func (p *Process) processLeadershipBlock(ctx context.Context, blk *block.Block) (*blockchain.Ref, error) {
	parent, err := p.blockchain.GetRef(ctx, blk.ParentHash())
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, blockchain.NewError(blockchain.KindMissingParentBlockFromStorage, blk.Hash(), nil)
	}
	post, err := p.blockchain.PostCheckHeader(ctx, &blk.Header, parent)
	if err != nil {
		return nil, err
	}
	return p.blockchain.ApplyAndStoreBlock(ctx, post, blk)
}

func (p *Process) processBlockAnnouncement(ctx context.Context, header *block.Header, peer intercom.NodeID) error {
	pre, err := p.blockchain.PreCheckHeader(ctx, header)
	if err != nil {
		return err
	}
	switch pre.Kind {
	case blockchain.AlreadyPresent:
		logx.Debug("BLOCK_PROCESSOR", "block is already present ", header.Hash())
	case blockchain.MissingParent:
		logx.Debug("BLOCK_PROCESSOR", "block is missing a locally stored parent ", header.Hash())
		from, err := p.blockchain.GetCheckpoints(ctx, p.branch)
		if err != nil {
			return err
		}
		p.sendNetwork(intercom.PullHeaders{Peer: peer, From: from, To: header.Hash()})
	case blockchain.HeaderWithCache:
		logx.Debug("BLOCK_PROCESSOR", "announced block has a locally stored parent, fetch it ", header.Hash())
		p.sendNetwork(intercom.GetNextBlock{Peer: peer, Hash: header.Hash()})
	}
	return nil
}

func (p *Process) handleNetworkBlock(ctx context.Context, blk *block.Block, reply *intercom.Reply[struct{}]) {
	ref, err := p.processNetworkBlock(ctx, blk)
	if err != nil {
		p.rejected(blk.Hash(), events.SourceNetwork, err)
		logx.Warn("BLOCK_PROCESSOR", fmt.Sprintf("network block %s rejected: %v", blk.Hash(), err))
		if reply != nil {
			_ = reply.ReplyError(NetworkBlockErrorIntoReply(err))
		}
		return
	}
	if ref != nil {
		p.newRef(ref, blk, events.SourceNetwork)
	}
	if reply != nil {
		_ = reply.ReplyOK(struct{}{})
	}
}

// processNetworkBlock returns a nil Ref when the block is already known.
func (p *Process) processNetworkBlock(ctx context.Context, blk *block.Block) (*blockchain.Ref, error) {
	pre, err := p.blockchain.PreCheckHeader(ctx, &blk.Header)
	if err != nil {
		return nil, err
	}
	switch pre.Kind {
	case blockchain.AlreadyPresent:
		logx.Debug("BLOCK_PROCESSOR", "block is already present ", blk.Hash())
		return nil, nil
	case blockchain.MissingParent:
		return nil, blockchain.NewError(blockchain.KindMissingParentBlockFromStorage, blk.Hash(), nil)
	}

	post, err := p.blockchain.PostCheckHeader(ctx, pre.Header, pre.Parent)
	if err != nil {
		return nil, err
	}
	ref, err := p.blockchain.ApplyAndStoreBlock(ctx, post, blk)
	if err != nil {
		return nil, err
	}
	logx.Debug("BLOCK_PROCESSOR", "block successfully applied ", blk.Hash())
	return ref, nil
}

func (p *Process) handleChainHeaders(ctx context.Context, headers []*block.Header, reply *intercom.Reply[[]block.HeaderHash]) {
	hashes, err := p.processChainHeaders(ctx, headers)
	if err != nil {
		logx.Warn("BLOCK_PROCESSOR", "header stream rejected: ", err)
		if reply != nil {
			_ = reply.ReplyError(NetworkBlockErrorIntoReply(err))
		}
		return
	}
	if reply != nil {
		_ = reply.ReplyOK(hashes)
	}
}

// processChainHeaders turns a header run into the list of blocks to fetch.
// Headers already stored are skipped since the peer may start from an older
// checkpoint. A header whose parent is not stored is accepted when that
// parent appeared earlier in the same run; otherwise the run fails.
func (p *Process) processChainHeaders(ctx context.Context, headers []*block.Header) ([]block.HeaderHash, error) {
	staged := make(map[block.HeaderHash]block.ChainLength, len(headers))
	fetch := make([]block.HeaderHash, 0, len(headers))

	for _, header := range headers {
		pre, err := p.blockchain.PreCheckHeader(ctx, header)
		if err != nil {
			return nil, err
		}
		hash := header.Hash()
		switch pre.Kind {
		case blockchain.AlreadyPresent:
			continue
		case blockchain.MissingParent:
			parentLength, ok := staged[header.ParentHash]
			if !ok || header.ChainLength != parentLength.Next() {
				return nil, blockchain.NewError(blockchain.KindMissingParentBlockFromStorage, hash, nil)
			}
		case blockchain.HeaderWithCache:
			if header.ChainLength != pre.Parent.ChainLength().Next() {
				return nil, blockchain.NewError(blockchain.KindBlockHeaderVerificationFailed, hash,
					fmt.Errorf("chain length %d does not follow parent length %d", header.ChainLength, pre.Parent.ChainLength()))
			}
		}
		staged[hash] = header.ChainLength
		fetch = append(fetch, hash)
	}
	return fetch, nil
}

func (p *Process) newRef(ref *blockchain.Ref, blk *block.Block, source events.Source) {
	monitoring.IncreaseAppliedBlockCount()
	if p.router != nil {
		p.router.PublishBlockApplied(blk, source)
	}
	p.sendExplorer(ref)

	previous := p.branch.Tip()
	if !p.branch.Advance(ref) {
		logx.Debug("BLOCK_PROCESSOR", fmt.Sprintf("block %s stored without moving the tip", ref.Hash()))
		return
	}
	if err := p.blockchain.StoreTip(ref); err != nil {
		logx.Error("BLOCK_PROCESSOR", "cannot record the new tip: ", err)
	}
	monitoring.SetTipChainLength(uint32(ref.ChainLength()))
	previousHash := block.ZeroHash
	if previous != nil {
		previousHash = previous.Hash()
		monitoring.RecordBlockTime(ref.Created().Sub(previous.Created()))
	}
	if p.router != nil {
		p.router.PublishTipUpdated(ref.Hash(), ref.ChainLength(), previousHash)
	}
	logx.Info("BLOCK_PROCESSOR", fmt.Sprintf("new tip %s at chain length %d (%s)", ref.Hash(), ref.ChainLength(), source))
	p.sendNetwork(intercom.Propagate{Header: ref.Header()})
}

func (p *Process) rejected(hash block.HeaderHash, source events.Source, err error) {
	monitoring.RecordRejectedBlock(rejectedReason(err))
	if p.router != nil {
		p.router.PublishBlockRejected(hash, source, err)
	}
}

func (p *Process) sendNetwork(msg intercom.NetworkMsg) {
	select {
	case p.network <- msg:
	default:
		logx.Error("BLOCK_PROCESSOR", fmt.Sprintf("cannot send %T to network: queue full", msg))
	}
}

func (p *Process) sendExplorer(ref *blockchain.Ref) {
	if p.explorer == nil {
		return
	}
	timer := time.NewTimer(p.cfg.ExplorerSendTimeout)
	defer timer.Stop()
	select {
	case p.explorer <- intercom.ExplorerMsg{NewBlock: ref}:
	case <-timer.C:
		logx.Error("BLOCK_PROCESSOR", "explorer queue full, block not indexed ", ref.Hash())
	}
}

// NetworkBlockErrorIntoReply maps a blockchain failure to the code sent back
// to the peer.
func NetworkBlockErrorIntoReply(err error) error {
	var code errors.NetworkErrorCode
	switch blockchain.KindOf(err) {
	case blockchain.KindStorage, blockchain.KindBlock0:
		code = errors.ErrCodeFailed
	case blockchain.KindLedger, blockchain.KindMissingParentBlockFromStorage:
		code = errors.ErrCodeFailedPrecondition
	case blockchain.KindBlockHeaderVerificationFailed:
		code = errors.ErrCodeInvalidArgument
	default:
		code = errors.ErrCodeFailed
	}
	return errors.Wrap(code, err.Error(), err)
}

func rejectedReason(err error) monitoring.BlockRejectedReason {
	switch blockchain.KindOf(err) {
	case blockchain.KindMissingParentBlockFromStorage:
		return monitoring.BlockMissingParent
	case blockchain.KindBlockHeaderVerificationFailed:
		return monitoring.BlockInvalidHeader
	case blockchain.KindLedger:
		return monitoring.BlockLedgerError
	case blockchain.KindStorage:
		return monitoring.BlockStorageError
	}
	return monitoring.BlockRejectedUnknown
}
