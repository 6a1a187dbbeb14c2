package events

import (
	"github.com/mezonai/mvnode/block"
)

// EventRouter turns block processing outcomes into bus events.
type EventRouter struct {
	eventBus *EventBus
}

// NewEventRouter creates a new EventRouter instance
func NewEventRouter(eventBus *EventBus) *EventRouter {
	return &EventRouter{eventBus: eventBus}
}

func (er *EventRouter) Bus() *EventBus {
	return er.eventBus
}

// PublishBlockApplied publishes BlockApplied followed by one
// FragmentIncluded per fragment of blk.
func (er *EventRouter) PublishBlockApplied(blk *block.Block, source Source) {
	hash := blk.Hash()
	er.eventBus.Publish(NewBlockApplied(hash, blk.ChainLength(), source, len(blk.Contents)))
	for _, f := range blk.Contents {
		er.eventBus.Publish(NewFragmentIncluded(f.ID(), hash))
	}
}

func (er *EventRouter) PublishTipUpdated(hash block.HeaderHash, length block.ChainLength, previous block.HeaderHash) {
	er.eventBus.Publish(NewTipUpdated(hash, length, previous))
}

func (er *EventRouter) PublishBlockRejected(hash block.HeaderHash, source Source, err error) {
	er.eventBus.Publish(NewBlockRejected(hash, source, err.Error()))
}
