package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/mezonai/mvnode/common"
)

// Settings are the blockchain parameters fixed at block0.
type Settings struct {
	Block0Time    time.Time     `json:"block0_time"`
	SlotDuration  time.Duration `json:"slot_duration"`
	SlotsPerEpoch uint32        `json:"slots_per_epoch"`
	Leaders       []string      `json:"leaders"` // base58 ed25519 public keys, BFT round-robin
}

func (s *Settings) Validate() error {
	if s.SlotsPerEpoch == 0 {
		return errors.New("slots per epoch must be positive")
	}
	if s.SlotDuration <= 0 {
		return errors.New("slot duration must be positive")
	}
	if len(s.Leaders) == 0 {
		return errors.New("at least one consensus leader is required")
	}
	for _, l := range s.Leaders {
		if !common.IsValidAddress(l) {
			return fmt.Errorf("invalid leader id %q", l)
		}
	}
	return nil
}

func (s *Settings) clone() *Settings {
	cp := *s
	cp.Leaders = append([]string(nil), s.Leaders...)
	return &cp
}
