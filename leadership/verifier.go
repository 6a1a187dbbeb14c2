package leadership

import (
	"errors"
	"fmt"

	"github.com/mezonai/mvnode/block"
	"github.com/mezonai/mvnode/ledger"
)

var (
	ErrUnsupportedVersion = errors.New("unsupported header version")
	ErrParentMismatch     = errors.New("header does not link to the given parent")
	ErrChainLength        = errors.New("chain length is not parent length + 1")
	ErrDateNotIncreasing  = errors.New("block date is not after its parent")
	ErrSlotOutOfRange     = errors.New("slot is outside of the epoch")
	ErrWrongLeader        = errors.New("header not produced by the scheduled leader")
)

// Verifier checks headers against BFT consensus rules using the state of
// the parent block.
type Verifier struct{}

func NewVerifier() *Verifier {
	return &Verifier{}
}

func (v *Verifier) VerifyHeader(header, parent *block.Header, parentState *ledger.Ledger) error {
	if header.Version != block.HeaderVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, header.Version)
	}
	if header.ParentHash != parent.Hash() {
		return ErrParentMismatch
	}
	if header.ChainLength != parent.ChainLength.Next() {
		return fmt.Errorf("%w: got %d, parent %d", ErrChainLength, header.ChainLength, parent.ChainLength)
	}
	if !parent.Date.Before(header.Date) {
		return fmt.Errorf("%w: %s <= %s", ErrDateNotIncreasing, header.Date, parent.Date)
	}

	settings := parentState.Settings()
	if header.Date.Slot >= settings.SlotsPerEpoch {
		return fmt.Errorf("%w: slot %d, %d slots per epoch", ErrSlotOutOfRange, header.Date.Slot, settings.SlotsPerEpoch)
	}
	schedule := ScheduleForEpoch(header.Date.Epoch, settings)
	leader, ok := schedule.LeaderAt(header.Date.Slot)
	if !ok || leader != header.Leader {
		return fmt.Errorf("%w: expected %s at %s, got %s", ErrWrongLeader, leader, header.Date, header.Leader)
	}
	return header.VerifySignature()
}
