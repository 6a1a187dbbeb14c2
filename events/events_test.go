package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/mezonai/mvnode/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch chan BlockchainEvent) BlockchainEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
		return nil
	}
}

func TestEventBusSubscribeUnsubscribe(t *testing.T) {
	eventBus := NewEventBus()

	id, ch := eventBus.Subscribe()
	assert.Equal(t, 1, eventBus.GetTotalSubscriptions())
	assert.True(t, eventBus.HasSubscriber(id))

	hash := block.HeaderHash{0x01}
	eventBus.Publish(NewTipUpdated(hash, 3, block.ZeroHash))

	ev := receive(t, ch)
	assert.Equal(t, EventTipUpdated, ev.Type())
	assert.Equal(t, hash, ev.BlockHash())
	assert.Equal(t, block.ChainLength(3), ev.(*TipUpdated).ChainLength())

	assert.True(t, eventBus.Unsubscribe(id))
	assert.False(t, eventBus.Unsubscribe(id))
	assert.Equal(t, 0, eventBus.GetTotalSubscriptions())
	_, open := <-ch
	assert.False(t, open)
}

func TestPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	eventBus := NewEventBus()
	_, ch := eventBus.Subscribe()

	for i := 0; i < cap(ch)+10; i++ {
		eventBus.Publish(NewBlockRejected(block.HeaderHash{byte(i)}, SourceNetwork, "bad"))
	}
	assert.Len(t, ch, cap(ch))
}

func TestRouterPublishesFragments(t *testing.T) {
	router := NewEventRouter(NewEventBus())
	_, ch := router.Bus().Subscribe()

	f := block.NewFragment("", "addr", uint256.NewInt(1), 0)
	blk := block.Genesis(block.BlockDate{}, []*block.Fragment{f})
	router.PublishBlockApplied(blk, SourceLeadership)

	applied := receive(t, ch)
	require.Equal(t, EventBlockApplied, applied.Type())
	assert.Equal(t, SourceLeadership, applied.(*BlockApplied).Source())
	assert.Equal(t, 1, applied.(*BlockApplied).Fragments())

	included := receive(t, ch)
	require.Equal(t, EventFragmentIncluded, included.Type())
	assert.Equal(t, f.ID(), included.(*FragmentIncluded).FragmentID())
	assert.Equal(t, blk.Hash(), included.BlockHash())

	router.PublishBlockRejected(blk.Hash(), SourceNetwork, errors.New("nope"))
	assert.Equal(t, "nope", receive(t, ch).(*BlockRejected).Reason())
}

func TestLogEventsFollowsTheBus(t *testing.T) {
	bus := NewEventBus()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		LogEvents(ctx, bus)
		close(done)
	}()

	require.Eventually(t, func() bool { return bus.GetTotalSubscriptions() == 1 }, time.Second, 5*time.Millisecond)
	bus.Publish(NewTipUpdated(block.HeaderHash{0x01}, 1, block.ZeroHash))
	bus.Publish(NewBlockRejected(block.HeaderHash{0x02}, SourceNetwork, "bad parent"))

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("log sink did not stop")
	}
	assert.Equal(t, 0, bus.GetTotalSubscriptions())
}

func TestDescribe(t *testing.T) {
	hash := block.HeaderHash{0x03}

	assert.Contains(t, Describe(NewTipUpdated(hash, 7, block.ZeroHash)), "chain length 7")
	assert.Contains(t, Describe(NewBlockApplied(hash, 2, SourceLeadership, 4)), "applied leadership block")
	assert.Contains(t, Describe(NewBlockRejected(hash, SourceNetwork, "bad parent")), "bad parent")
	assert.Contains(t, Describe(NewFragmentIncluded(block.FragmentID{0x04}, hash)), hash.String())
}
