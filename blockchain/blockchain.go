package blockchain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mezonai/mvnode/block"
	"github.com/mezonai/mvnode/leadership"
	"github.com/mezonai/mvnode/ledger"
	"github.com/mezonai/mvnode/logx"
	"github.com/mezonai/mvnode/monitoring"
	"github.com/mezonai/mvnode/multiverse"
	"github.com/mezonai/mvnode/store"
)

// HeaderVerifier runs the consensus rules on a header given its parent and
// the ledger state reached by the parent.
type HeaderVerifier interface {
	VerifyHeader(header, parent *block.Header, parentState *ledger.Ledger) error
}

type PreCheckKind int

const (
	// the header is already stored
	AlreadyPresent PreCheckKind = iota + 1
	// the parent is unknown locally
	MissingParent
	// the parent is known, Parent carries its Ref
	HeaderWithCache
)

func (k PreCheckKind) String() string {
	switch k {
	case AlreadyPresent:
		return "already present"
	case MissingParent:
		return "missing parent"
	case HeaderWithCache:
		return "header with cache"
	}
	return "invalid"
}

// PreCheckedHeader is the outcome of PreCheckHeader. Cached is set for
// AlreadyPresent when the Ref is in memory, Parent for HeaderWithCache.
type PreCheckedHeader struct {
	Kind   PreCheckKind
	Header *block.Header
	Cached *Ref
	Parent *Ref
}

// PostCheckedHeader can only be obtained from PostCheckHeader, which makes
// apply impossible without a successful post-check.
type PostCheckedHeader struct {
	header *block.Header
	parent *Ref
}

func (p *PostCheckedHeader) Header() *block.Header {
	return p.header
}

func (p *PostCheckedHeader) Parent() *Ref {
	return p.parent
}

type Options struct {
	// Roots of applied refs are released once they are ForkDepth below the
	// longest applied chain.
	ForkDepth uint32
	// A GC sweep runs every GCInterval applies. Zero disables sweeping.
	GCInterval int
}

func DefaultOptions() Options {
	return Options{ForkDepth: 10, GCInterval: 16}
}

// Blockchain validates headers and blocks and keeps the resulting Refs in
// a multiverse backed by durable storage. It is safe for concurrent use.
type Blockchain struct {
	storage  store.BlockStore
	verifier HeaderVerifier
	refs     *multiverse.Multiverse[*Ref]
	opts     Options

	mu         sync.Mutex
	block0     *Ref
	block0Root *multiverse.GCRoot
	roots      map[block.ChainLength][]*multiverse.GCRoot
	longest    block.ChainLength
	applies    int
	branches   []*Branch
}

func NewBlockchain(storage store.BlockStore, verifier HeaderVerifier, opts Options) *Blockchain {
	return &Blockchain{
		storage:  storage,
		verifier: verifier,
		refs:     multiverse.New[*Ref](),
		opts:     opts,
		roots:    make(map[block.ChainLength][]*multiverse.GCRoot),
	}
}

// LoadFromBlock0 initializes the blockchain from block0. On first start
// block0 is stored; afterwards the stored block0 must match.
func (bc *Blockchain) LoadFromBlock0(ctx context.Context, block0 *block.Block, settings ledger.Settings) (*Ref, error) {
	hash := block0.Hash()

	stored, err := bc.storage.GetBlock0()
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return nil, NewError(KindStorage, hash, err)
	case stored != hash:
		return nil, NewError(KindBlock0, hash, fmt.Errorf("storage was initialized with block0 %s", stored))
	}

	state, err := ledger.FromGenesis(block0, settings)
	if err != nil {
		return nil, NewError(KindBlock0, hash, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := bc.storage.PutBlock(block0); err != nil {
		return nil, NewError(KindStorage, hash, err)
	}
	if err := bc.storage.PutBlock0(hash); err != nil {
		return nil, NewError(KindStorage, hash, err)
	}

	ref := newRef(&block0.Header, state)
	root := bc.refs.Insert(0, hash, block0.ParentHash(), ref)

	bc.mu.Lock()
	if bc.block0Root != nil {
		bc.block0Root.Release()
	}
	bc.block0, bc.block0Root = ref, root
	bc.mu.Unlock()

	logx.Info("BLOCKCHAIN", fmt.Sprintf("Loaded block0 %s with %d initial accounts", hash, state.AccountCount()))
	return ref, nil
}

func (bc *Blockchain) Block0() *Ref {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.block0
}

// LoadTip restores the tip recorded in storage, replaying stored blocks
// from the nearest in-memory ancestor. Without a recorded tip it returns
// block0.
func (bc *Blockchain) LoadTip(ctx context.Context) (*Ref, error) {
	block0 := bc.Block0()
	if block0 == nil {
		return nil, NewError(KindBlock0, block.ZeroHash, errors.New("block0 is not loaded"))
	}
	hash, err := bc.storage.GetTip()
	if errors.Is(err, store.ErrNotFound) {
		return block0, nil
	}
	if err != nil {
		return nil, NewError(KindStorage, block.ZeroHash, err)
	}

	chain, err := bc.rebuild(ctx, hash)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, NewError(KindStorage, hash, errors.New("recorded tip is not stored"))
	}
	bc.insert(chain...)
	tip := chain[len(chain)-1]
	logx.Info("BLOCKCHAIN", fmt.Sprintf("Restored tip %s at chain length %d (%d blocks replayed)", tip.Hash(), tip.ChainLength(), len(chain)))
	return tip, nil
}

// NewBranch starts tracking a chain tip. Tips of tracked branches and their
// ancestors survive GC.
func (bc *Blockchain) NewBranch(ref *Ref) *Branch {
	b := &Branch{tip: ref}
	bc.mu.Lock()
	bc.branches = append(bc.branches, b)
	bc.mu.Unlock()
	return b
}

// StoreTip records the tip so LoadTip can find it after a restart.
func (bc *Blockchain) StoreTip(ref *Ref) error {
	if err := bc.storage.PutTip(ref.Hash()); err != nil {
		return NewError(KindStorage, ref.Hash(), err)
	}
	return nil
}

// GetRef returns the Ref of hash, rebuilding it from storage when it is no
// longer in memory. A hash unknown to storage yields nil and no error.
func (bc *Blockchain) GetRef(ctx context.Context, hash block.HeaderHash) (*Ref, error) {
	if ref, ok := bc.refs.Get(hash); ok {
		return ref, nil
	}
	chain, err := bc.rebuild(ctx, hash)
	if err != nil || len(chain) == 0 {
		return nil, err
	}
	return chain[len(chain)-1], nil
}

// rebuild replays stored blocks from the closest ancestor of hash that is
// still in memory. It returns the rebuilt Refs oldest first, or nothing
// when hash is not stored. Nothing is inserted in the multiverse.
func (bc *Blockchain) rebuild(ctx context.Context, hash block.HeaderHash) ([]*Ref, error) {
	var pending []*block.Block
	cur := hash
	var base *Ref
	for {
		if ref, ok := bc.refs.Get(cur); ok {
			base = ref
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		blk, err := bc.storage.GetBlock(cur)
		if errors.Is(err, store.ErrNotFound) {
			if len(pending) == 0 {
				return nil, nil
			}
			return nil, NewError(KindStorage, cur, errors.New("stored block lineage is broken"))
		}
		if err != nil {
			return nil, NewError(KindStorage, cur, err)
		}
		if blk.ChainLength() == 0 {
			return nil, NewError(KindBlock0, cur, errors.New("block0 is not loaded"))
		}
		pending = append(pending, blk)
		cur = blk.ParentHash()
	}

	out := make([]*Ref, 0, len(pending))
	for i := len(pending) - 1; i >= 0; i-- {
		blk := pending[i]
		state, err := base.Ledger().Apply(&blk.Header, blk.Contents)
		if err != nil {
			return nil, NewError(KindLedger, blk.Hash(), err)
		}
		base = newRef(&blk.Header, state)
		out = append(out, base)
	}
	return out, nil
}

// PreCheckHeader classifies header without changing any state. It only
// fails when storage cannot be read.
func (bc *Blockchain) PreCheckHeader(ctx context.Context, header *block.Header) (PreCheckedHeader, error) {
	hash := header.Hash()

	if ref, ok := bc.refs.Get(hash); ok {
		return PreCheckedHeader{Kind: AlreadyPresent, Header: header, Cached: ref}, nil
	}
	present, err := bc.storage.Has(hash)
	if err != nil {
		return PreCheckedHeader{}, NewError(KindStorage, hash, err)
	}
	if present {
		return PreCheckedHeader{Kind: AlreadyPresent, Header: header}, nil
	}

	parent, err := bc.GetRef(ctx, header.ParentHash)
	if err != nil {
		return PreCheckedHeader{}, err
	}
	if parent == nil {
		return PreCheckedHeader{Kind: MissingParent, Header: header}, nil
	}
	return PreCheckedHeader{Kind: HeaderWithCache, Header: header, Parent: parent}, nil
}

// PostCheckHeader validates header against the consensus rules in the
// state of parent.
func (bc *Blockchain) PostCheckHeader(ctx context.Context, header *block.Header, parent *Ref) (*PostCheckedHeader, error) {
	hash := header.Hash()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parentHeader := parent.Header()
	if err := bc.verifier.VerifyHeader(header, &parentHeader, parent.Ledger()); err != nil {
		return nil, NewError(KindBlockHeaderVerificationFailed, hash, err)
	}
	return &PostCheckedHeader{header: header, parent: parent}, nil
}

// ApplyAndStoreBlock applies blk on the post-checked parent state and
// records the resulting Ref. Storage gets the block and its indexes in one
// batch before the Ref becomes visible, so a failure leaves both untouched.
func (bc *Blockchain) ApplyAndStoreBlock(ctx context.Context, post *PostCheckedHeader, blk *block.Block) (*Ref, error) {
	start := time.Now()
	hash := blk.Hash()

	if hash != post.header.Hash() {
		return nil, NewError(KindBlockHeaderVerificationFailed, hash, fmt.Errorf("block does not match post-checked header %s", post.header.Hash()))
	}
	if ref, ok := bc.refs.Get(hash); ok {
		return ref, nil
	}
	if !blk.ContentMatchesHeader() {
		return nil, NewError(KindLedger, hash, errors.New("block contents do not match the header content hash"))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	state, err := post.parent.Ledger().Apply(&blk.Header, blk.Contents)
	if err != nil {
		return nil, NewError(KindLedger, hash, err)
	}
	if err := bc.storage.PutBlock(blk); err != nil {
		return nil, NewError(KindStorage, hash, err)
	}

	// a parent rebuilt from storage comes back together with the ancestors
	// GC dropped, so the new ref always has its whole lineage in memory
	lineage, err := bc.lineage(ctx, post.parent)
	if err != nil {
		return nil, err
	}
	ref := newRef(&blk.Header, state)
	bc.insert(append(lineage, ref)...)

	monitoring.RecordApplyDuration(time.Since(start))
	monitoring.RecordFragmentsInBlock(len(blk.Contents))
	logx.Debug("BLOCKCHAIN", fmt.Sprintf("Applied block %s at chain length %d", hash, ref.ChainLength()))
	return ref, nil
}

// lineage returns the refs missing from memory between the closest
// in-memory ancestor of parent and parent itself, oldest first.
func (bc *Blockchain) lineage(ctx context.Context, parent *Ref) ([]*Ref, error) {
	if _, ok := bc.refs.Get(parent.Hash()); ok {
		return nil, nil
	}
	chain, err := bc.rebuild(ctx, parent.Hash())
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return []*Ref{parent}, nil
	}
	chain[len(chain)-1] = parent
	return chain, nil
}

// insert adds refs to the multiverse and keeps each root until its ref
// falls ForkDepth behind the longest chain. Every GCInterval calls a sweep
// runs, only once all of refs are rooted.
func (bc *Blockchain) insert(refs ...*Ref) {
	roots := make([]*multiverse.GCRoot, len(refs))
	for i, ref := range refs {
		roots[i] = bc.refs.Insert(ref.ChainLength(), ref.Hash(), ref.ParentHash(), ref)
	}

	bc.mu.Lock()
	defer bc.mu.Unlock()

	for i, ref := range refs {
		length := ref.ChainLength()
		bc.roots[length] = append(bc.roots[length], roots[i])
		if length > bc.longest {
			bc.longest = length
		}
	}
	if uint32(bc.longest) > bc.opts.ForkDepth {
		floor := block.ChainLength(uint32(bc.longest) - bc.opts.ForkDepth)
		for l, held := range bc.roots {
			if l >= floor {
				continue
			}
			for _, r := range held {
				r.Release()
			}
			delete(bc.roots, l)
		}
	}

	bc.applies++
	if bc.opts.GCInterval > 0 && bc.applies >= bc.opts.GCInterval {
		bc.applies = 0
		bc.gcLocked()
	}
}

// GC sweeps forks that are no longer retained nor reachable from a tracked
// branch tip and returns how many Refs were dropped.
func (bc *Blockchain) GC() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.gcLocked()
}

func (bc *Blockchain) gcLocked() int {
	tips := make([]block.HeaderHash, 0, len(bc.branches))
	for _, b := range bc.branches {
		if tip := b.Tip(); tip != nil {
			tips = append(tips, tip.Hash())
		}
	}
	swept := bc.refs.GC(tips...)
	monitoring.AddGCSwept(swept)
	monitoring.SetMultiverseSize(bc.refs.Len())
	if swept > 0 {
		logx.Debug("BLOCKCHAIN", fmt.Sprintf("GC dropped %d refs, %d remaining", swept, bc.refs.Len()))
	}
	return swept
}

// RefAt looks a Ref up in memory only.
func (bc *Blockchain) RefAt(length block.ChainLength, hash block.HeaderHash) (*Ref, bool) {
	return bc.refs.GetAt(length, hash)
}

func (bc *Blockchain) GetBlock(ctx context.Context, hash block.HeaderHash) (*block.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	blk, err := bc.storage.GetBlock(hash)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NewError(KindBlockNotFound, hash, err)
	}
	if err != nil {
		return nil, NewError(KindStorage, hash, err)
	}
	return blk, nil
}

// NewEpochLeadershipFrom computes the leadership payload of epoch from the
// state at tip.
func (bc *Blockchain) NewEpochLeadershipFrom(epoch block.Epoch, tip *Ref) leadership.NewEpochToSchedule {
	return leadership.NewEpochLeadershipFrom(epoch, tip.Ledger())
}
