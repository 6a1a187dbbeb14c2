package ledger

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/mezonai/mvnode/block"
	"github.com/mezonai/mvnode/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keyPair struct {
	priv ed25519.PrivateKey
	addr string
}

func newKeyPair(t *testing.T) keyPair {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return keyPair{priv: priv, addr: common.AddressFromPublicKey(pub)}
}

func testSettings(leader string) Settings {
	return Settings{
		Block0Time:    time.Unix(0, 0),
		SlotDuration:  time.Second,
		SlotsPerEpoch: 10,
		Leaders:       []string{leader},
	}
}

func mint(addr string, amount uint64) *block.Fragment {
	return block.NewFragment("", addr, uint256.NewInt(amount), 0)
}

func transfer(from keyPair, to string, amount, nonce uint64) *block.Fragment {
	f := block.NewFragment(from.addr, to, uint256.NewInt(amount), nonce)
	f.Sign(from.priv)
	return f
}

func TestFromGenesis(t *testing.T) {
	alice := newKeyPair(t)
	b0 := block.Genesis(block.BlockDate{}, []*block.Fragment{mint(alice.addr, 100)})

	l, err := FromGenesis(b0, testSettings(alice.addr))
	require.NoError(t, err)
	assert.Equal(t, uint64(100), l.Account(alice.addr).Balance.Uint64())
	assert.Equal(t, 1, l.AccountCount())
}

func TestFromGenesisRejectsInconsistentBlock0(t *testing.T) {
	alice := newKeyPair(t)

	dup := block.Genesis(block.BlockDate{}, []*block.Fragment{mint(alice.addr, 1), mint(alice.addr, 2)})
	_, err := FromGenesis(dup, testSettings(alice.addr))
	assert.ErrorIs(t, err, ErrInvalidBlock0)

	signed := block.Genesis(block.BlockDate{}, []*block.Fragment{transfer(alice, alice.addr, 1, 1)})
	_, err = FromGenesis(signed, testSettings(alice.addr))
	assert.ErrorIs(t, err, ErrInvalidBlock0)

	ok := block.Genesis(block.BlockDate{}, nil)
	_, err = FromGenesis(ok, Settings{})
	assert.ErrorIs(t, err, ErrInvalidBlock0)
}

func TestApplyDoesNotMutateParent(t *testing.T) {
	alice, bob := newKeyPair(t), newKeyPair(t)
	b0 := block.Genesis(block.BlockDate{}, []*block.Fragment{mint(alice.addr, 100)})
	parent, err := FromGenesis(b0, testSettings(alice.addr))
	require.NoError(t, err)

	blk := block.AssembleBlock(&b0.Header, block.BlockDate{Slot: 1}, alice.addr,
		[]*block.Fragment{transfer(alice, bob.addr, 40, 1), transfer(alice, bob.addr, 10, 2)})
	child, err := parent.Apply(&blk.Header, blk.Contents)
	require.NoError(t, err)

	assert.Equal(t, uint64(50), child.Account(alice.addr).Balance.Uint64())
	assert.Equal(t, uint64(2), child.Account(alice.addr).Nonce)
	assert.Equal(t, uint64(50), child.Account(bob.addr).Balance.Uint64())
	assert.Equal(t, block.ChainLength(1), child.ChainLength())

	assert.Equal(t, uint64(100), parent.Account(alice.addr).Balance.Uint64())
	assert.Nil(t, parent.Account(bob.addr))
}

func TestApplyRejections(t *testing.T) {
	alice, bob := newKeyPair(t), newKeyPair(t)
	b0 := block.Genesis(block.BlockDate{}, []*block.Fragment{mint(alice.addr, 100)})
	l, err := FromGenesis(b0, testSettings(alice.addr))
	require.NoError(t, err)

	header := &block.Header{ChainLength: 1, Date: block.BlockDate{Slot: 1}}
	cases := map[string]struct {
		frag *block.Fragment
		want error
	}{
		"insufficient": {transfer(alice, bob.addr, 101, 1), ErrInsufficientBalance},
		"nonce":        {transfer(alice, bob.addr, 1, 2), ErrInvalidNonce},
		"zero":         {transfer(alice, bob.addr, 0, 1), ErrZeroAmount},
		"unknown":      {transfer(bob, alice.addr, 1, 1), ErrUnknownSender},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := l.Apply(header, []*block.Fragment{tc.frag})
			assert.ErrorIs(t, err, tc.want)
		})
	}

	forged := transfer(alice, bob.addr, 1, 1)
	forged.Amount = uint256.NewInt(2)
	_, err = l.Apply(header, []*block.Fragment{forged})
	assert.ErrorIs(t, err, block.ErrInvalidFragmentSignature)
}
