package leadership

import (
	"time"

	"github.com/mezonai/mvnode/block"
	"github.com/mezonai/mvnode/ledger"
)

// TimeFrame maps wall clock time to block dates.
type TimeFrame struct {
	Start         time.Time
	SlotDuration  time.Duration
	SlotsPerEpoch uint32
}

func TimeFrameFromSettings(s ledger.Settings) TimeFrame {
	return TimeFrame{Start: s.Block0Time, SlotDuration: s.SlotDuration, SlotsPerEpoch: s.SlotsPerEpoch}
}

// DateAt returns the block date covering t, false before block0 time.
func (tf TimeFrame) DateAt(t time.Time) (block.BlockDate, bool) {
	if t.Before(tf.Start) || tf.SlotDuration <= 0 || tf.SlotsPerEpoch == 0 {
		return block.BlockDate{}, false
	}
	abs := uint64(t.Sub(tf.Start) / tf.SlotDuration)
	per := uint64(tf.SlotsPerEpoch)
	return block.BlockDate{Epoch: block.Epoch(abs / per), Slot: uint32(abs % per)}, true
}

// SlotStart is the wall clock time at which date begins.
func (tf TimeFrame) SlotStart(date block.BlockDate) time.Time {
	return tf.Start.Add(time.Duration(date.AbsoluteSlot(tf.SlotsPerEpoch)) * tf.SlotDuration)
}

func (tf TimeFrame) EpochStart(epoch block.Epoch) time.Time {
	return tf.SlotStart(block.BlockDate{Epoch: epoch})
}

// NewEpochToSchedule is the payload handed to the leadership scheduler when
// an epoch is about to start.
type NewEpochToSchedule struct {
	Epoch         block.Epoch
	NewSchedule   *LeaderSchedule
	NewParameters ledger.Settings
	TimeFrame     TimeFrame
}

// NewEpochLeadershipFrom computes the schedule of epoch from the ledger state
// at the current tip.
func NewEpochLeadershipFrom(epoch block.Epoch, tip *ledger.Ledger) NewEpochToSchedule {
	settings := tip.Settings()
	return NewEpochToSchedule{
		Epoch:         epoch,
		NewSchedule:   ScheduleForEpoch(epoch, settings),
		NewParameters: settings,
		TimeFrame:     TimeFrameFromSettings(settings),
	}
}
