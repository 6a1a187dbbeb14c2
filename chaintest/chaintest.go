// Package chaintest builds small signed chains for tests.
package chaintest

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/mezonai/mvnode/block"
	"github.com/mezonai/mvnode/blockchain"
	"github.com/mezonai/mvnode/common"
	"github.com/mezonai/mvnode/leadership"
	"github.com/mezonai/mvnode/ledger"
	"github.com/mezonai/mvnode/store"
	"github.com/stretchr/testify/require"
)

const SlotsPerEpoch = 100

type Key struct {
	Priv    ed25519.PrivateKey
	Address string
}

func NewKey(t testing.TB) Key {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return Key{Priv: priv, Address: common.AddressFromPublicKey(pub)}
}

// Transfer returns a signed fragment moving amount from k to recipient.
func (k Key) Transfer(recipient string, amount, nonce uint64) *block.Fragment {
	f := block.NewFragment(k.Address, recipient, uint256.NewInt(amount), nonce)
	f.Sign(k.Priv)
	return f
}

// CountingVerifier counts header verifications.
type CountingVerifier struct {
	Inner blockchain.HeaderVerifier
	calls atomic.Int64
}

func (v *CountingVerifier) VerifyHeader(header, parent *block.Header, parentState *ledger.Ledger) error {
	v.calls.Add(1)
	return v.Inner.VerifyHeader(header, parent, parentState)
}

func (v *CountingVerifier) Calls() int {
	return int(v.calls.Load())
}

// Genesis is a one-leader network where Alice owns the initial funds.
type Genesis struct {
	Leader   Key
	Alice    Key
	Block0   *block.Block
	Settings ledger.Settings
}

func NewGenesis(t testing.TB) *Genesis {
	t.Helper()
	leader, alice := NewKey(t), NewKey(t)
	b0 := block.Genesis(block.BlockDate{}, []*block.Fragment{
		block.NewFragment("", alice.Address, uint256.NewInt(1_000), 0),
	})
	return &Genesis{
		Leader: leader,
		Alice:  alice,
		Block0: b0,
		Settings: ledger.Settings{
			Block0Time:    time.Unix(1_700_000_000, 0),
			SlotDuration:  time.Second,
			SlotsPerEpoch: SlotsPerEpoch,
			Leaders:       []string{leader.Address},
		},
	}
}

// Next builds a signed block on parent at the given slot of epoch 0.
func (g *Genesis) Next(parent *block.Header, slot uint32, contents ...*block.Fragment) *block.Block {
	blk := block.AssembleBlock(parent, block.BlockDate{Slot: slot}, g.Leader.Address, contents)
	blk.Sign(g.Leader.Priv)
	return blk
}

// Chain builds n consecutive empty blocks on parent, one slot apart.
func (g *Genesis) Chain(parent *block.Header, n int) []*block.Block {
	out := make([]*block.Block, 0, n)
	for i := 0; i < n; i++ {
		blk := g.Next(parent, parent.Date.Slot+1)
		out = append(out, blk)
		parent = &blk.Header
	}
	return out
}

// Node bundles a loaded blockchain with its storage and main branch.
type Node struct {
	*Genesis
	Store      store.BlockStore
	Verifier   *CountingVerifier
	Blockchain *blockchain.Blockchain
	Branch     *blockchain.Branch
}

func NewNode(t testing.TB, g *Genesis, opts blockchain.Options) *Node {
	t.Helper()
	s, err := store.CreateStore(&store.StoreConfig{Type: store.MemoryStoreType})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return NewNodeWithStore(t, g, s, opts)
}

func NewNodeWithStore(t testing.TB, g *Genesis, s store.BlockStore, opts blockchain.Options) *Node {
	t.Helper()
	v := &CountingVerifier{Inner: leadership.NewVerifier()}
	bc := blockchain.NewBlockchain(s, v, opts)
	ctx := context.Background()
	_, err := bc.LoadFromBlock0(ctx, g.Block0, g.Settings)
	require.NoError(t, err)
	tip, err := bc.LoadTip(ctx)
	require.NoError(t, err)
	return &Node{Genesis: g, Store: s, Verifier: v, Blockchain: bc, Branch: bc.NewBranch(tip)}
}

// Apply runs the whole validation pipeline on blk and advances the branch.
func (n *Node) Apply(t testing.TB, blk *block.Block) *blockchain.Ref {
	t.Helper()
	ctx := context.Background()
	pre, err := n.Blockchain.PreCheckHeader(ctx, &blk.Header)
	require.NoError(t, err)
	require.Equal(t, blockchain.HeaderWithCache, pre.Kind, "pre-check of %s", blk.Hash())
	post, err := n.Blockchain.PostCheckHeader(ctx, pre.Header, pre.Parent)
	require.NoError(t, err)
	ref, err := n.Blockchain.ApplyAndStoreBlock(ctx, post, blk)
	require.NoError(t, err)
	if n.Branch.Advance(ref) {
		require.NoError(t, n.Blockchain.StoreTip(ref))
	}
	return ref
}
