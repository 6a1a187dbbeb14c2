package leadership

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/mezonai/mvnode/block"
	"github.com/mezonai/mvnode/common"
	"github.com/mezonai/mvnode/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type leader struct {
	priv ed25519.PrivateKey
	id   string
}

func newLeader(t *testing.T) leader {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return leader{priv: priv, id: common.AddressFromPublicKey(pub)}
}

func genesis(t *testing.T, leaders ...leader) (*block.Block, *ledger.Ledger) {
	t.Helper()
	ids := make([]string, 0, len(leaders))
	for _, l := range leaders {
		ids = append(ids, l.id)
	}
	b0 := block.Genesis(block.BlockDate{}, nil)
	state, err := ledger.FromGenesis(b0, ledger.Settings{
		Block0Time:    time.Unix(1000, 0),
		SlotDuration:  time.Second,
		SlotsPerEpoch: 4,
		Leaders:       ids,
	})
	require.NoError(t, err)
	return b0, state
}

func TestScheduleForEpochRoundRobin(t *testing.T) {
	a, b := newLeader(t), newLeader(t)
	_, state := genesis(t, a, b)

	s0 := ScheduleForEpoch(0, state.Settings())
	l, ok := s0.LeaderAt(0)
	require.True(t, ok)
	assert.Equal(t, a.id, l)
	l, _ = s0.LeaderAt(3)
	assert.Equal(t, b.id, l)
	_, ok = s0.LeaderAt(4)
	assert.False(t, ok)

	assert.Equal(t, []uint32{1, 3}, s0.SlotsOf(b.id))
	require.NoError(t, s0.Validate())
}

func TestScheduleMergesSingleLeaderRanges(t *testing.T) {
	a := newLeader(t)
	_, state := genesis(t, a)

	s := ScheduleForEpoch(2, state.Settings())
	assert.Equal(t, []LeaderScheduleEntry{{StartSlot: 0, EndSlot: 3, Leader: a.id}}, s.Entries())
	assert.Equal(t, block.Epoch(2), s.Epoch())
}

func TestNewLeaderScheduleRejectsOverlap(t *testing.T) {
	_, err := NewLeaderSchedule(0, []LeaderScheduleEntry{
		{StartSlot: 0, EndSlot: 2, Leader: "x"},
		{StartSlot: 2, EndSlot: 3, Leader: "y"},
	})
	assert.Error(t, err)
}

func TestTimeFrame(t *testing.T) {
	tf := TimeFrame{Start: time.Unix(1000, 0), SlotDuration: time.Second, SlotsPerEpoch: 4}

	_, ok := tf.DateAt(time.Unix(999, 0))
	assert.False(t, ok)

	d, ok := tf.DateAt(time.Unix(1009, 500))
	require.True(t, ok)
	assert.Equal(t, block.BlockDate{Epoch: 2, Slot: 1}, d)
	assert.Equal(t, time.Unix(1009, 0), tf.SlotStart(d))
	assert.Equal(t, time.Unix(1008, 0), tf.EpochStart(2))
}

func TestVerifier(t *testing.T) {
	a, b := newLeader(t), newLeader(t)
	b0, state := genesis(t, a, b)
	v := NewVerifier()

	mk := func(l leader, date block.BlockDate) *block.Block {
		blk := block.AssembleBlock(&b0.Header, date, l.id, nil)
		blk.Sign(l.priv)
		return blk
	}

	good := mk(b, block.BlockDate{Slot: 1})
	require.NoError(t, v.VerifyHeader(&good.Header, &b0.Header, state))

	wrongLeader := mk(a, block.BlockDate{Slot: 1})
	assert.ErrorIs(t, v.VerifyHeader(&wrongLeader.Header, &b0.Header, state), ErrWrongLeader)

	sameDate := mk(a, block.BlockDate{Slot: 0})
	assert.ErrorIs(t, v.VerifyHeader(&sameDate.Header, &b0.Header, state), ErrDateNotIncreasing)

	outOfEpoch := mk(a, block.BlockDate{Slot: 9})
	assert.ErrorIs(t, v.VerifyHeader(&outOfEpoch.Header, &b0.Header, state), ErrSlotOutOfRange)

	badLength := mk(b, block.BlockDate{Slot: 1})
	badLength.Header.ChainLength = 5
	badLength.Sign(b.priv)
	assert.ErrorIs(t, v.VerifyHeader(&badLength.Header, &b0.Header, state), ErrChainLength)

	assert.ErrorIs(t, v.VerifyHeader(&good.Header, &good.Header, state), ErrParentMismatch)

	forged := mk(b, block.BlockDate{Slot: 1})
	forged.Header.Signature = make([]byte, ed25519.SignatureSize)
	assert.ErrorIs(t, v.VerifyHeader(&forged.Header, &b0.Header, state), block.ErrInvalidHeaderSignature)
}

func TestSchedulerNotifiesOncePerEpoch(t *testing.T) {
	a := newLeader(t)
	_, state := genesis(t, a)

	var notified []block.Epoch
	s := NewScheduler(func(e block.Epoch) { notified = append(notified, e) }, time.Millisecond)
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }

	s.checkEndOfEpoch()
	assert.Empty(t, notified, "no schedule installed yet")

	s.Install(NewEpochLeadershipFrom(0, state))
	s.checkEndOfEpoch()
	assert.Empty(t, notified)

	now = time.Unix(1003, 0) // last slot of epoch 0
	s.checkEndOfEpoch()
	s.checkEndOfEpoch()
	assert.Equal(t, []block.Epoch{0}, notified)

	leaderID, ok := s.LeaderAt(block.BlockDate{Epoch: 0, Slot: 2})
	require.True(t, ok)
	assert.Equal(t, a.id, leaderID)
	_, ok = s.LeaderAt(block.BlockDate{Epoch: 1, Slot: 0})
	assert.False(t, ok)
}
