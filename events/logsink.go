package events

import (
	"context"
	"fmt"

	"github.com/mezonai/mvnode/logx"
)

// LogEvents subscribes to bus and writes every event to the node log until
// ctx is done or the subscription is closed.
func LogEvents(ctx context.Context, bus *EventBus) {
	id, ch := bus.Subscribe()
	defer bus.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			logEvent(ev)
		}
	}
}

func logEvent(ev BlockchainEvent) {
	switch e := ev.(type) {
	case *TipUpdated:
		logx.Info("EVENT", Describe(e))
	case *BlockRejected:
		logx.Warn("EVENT", Describe(e))
	default:
		logx.Debug("EVENT", Describe(e))
	}
}

// Describe renders ev as a single log line.
func Describe(ev BlockchainEvent) string {
	switch e := ev.(type) {
	case *TipUpdated:
		return fmt.Sprintf("tip %s at chain length %d (was %s)", e.BlockHash(), e.ChainLength(), e.Previous())
	case *BlockApplied:
		return fmt.Sprintf("applied %s block %s at chain length %d with %d fragments", e.Source(), e.BlockHash(), e.ChainLength(), e.Fragments())
	case *BlockRejected:
		return fmt.Sprintf("rejected %s block %s: %s", e.Source(), e.BlockHash(), e.Reason())
	case *FragmentIncluded:
		return fmt.Sprintf("fragment %s included in %s", e.FragmentID(), e.BlockHash())
	}
	return fmt.Sprintf("%s %s", ev.Type(), ev.BlockHash())
}
