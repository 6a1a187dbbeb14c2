package leadership

import (
	"errors"
	"sort"

	"github.com/mezonai/mvnode/block"
	"github.com/mezonai/mvnode/ledger"
)

// LeaderScheduleEntry defines the leader assignment for a contiguous slot range.
// StartSlot and EndSlot are inclusive and relative to the epoch start.
type LeaderScheduleEntry struct {
	StartSlot uint32 // first slot in the range
	EndSlot   uint32 // last slot in the range
	Leader    string // leader pubkey responsible for these slots
}

// LeaderSchedule maintains an ordered, non-overlapping set of schedule
// entries for one epoch.
type LeaderSchedule struct {
	epoch   block.Epoch
	entries []LeaderScheduleEntry
}

// NewLeaderSchedule constructs a schedule and validates entries (sorted, non-overlapping).
func NewLeaderSchedule(epoch block.Epoch, entries []LeaderScheduleEntry) (*LeaderSchedule, error) {
	ls := &LeaderSchedule{epoch: epoch, entries: entries}
	if err := ls.Validate(); err != nil {
		return nil, err
	}
	return ls, nil
}

// ScheduleForEpoch assigns the epoch's slots round-robin over the BFT
// leaders, continuing the rotation from the previous epochs.
func ScheduleForEpoch(epoch block.Epoch, settings ledger.Settings) *LeaderSchedule {
	n := uint64(len(settings.Leaders))
	ls := &LeaderSchedule{epoch: epoch}
	if n == 0 {
		return ls
	}
	for slot := uint32(0); slot < settings.SlotsPerEpoch; slot++ {
		abs := block.BlockDate{Epoch: epoch, Slot: slot}.AbsoluteSlot(settings.SlotsPerEpoch)
		leader := settings.Leaders[abs%n]
		last := len(ls.entries) - 1
		if last >= 0 && ls.entries[last].Leader == leader && ls.entries[last].EndSlot+1 == slot {
			ls.entries[last].EndSlot = slot
			continue
		}
		ls.entries = append(ls.entries, LeaderScheduleEntry{StartSlot: slot, EndSlot: slot, Leader: leader})
	}
	return ls
}

func (ls *LeaderSchedule) Epoch() block.Epoch {
	return ls.epoch
}

// LeaderAt returns the leader for a given slot, or false if none assigned.
func (ls *LeaderSchedule) LeaderAt(slot uint32) (string, bool) {
	// binary search since entries sorted by StartSlot
	i := sort.Search(len(ls.entries), func(i int) bool {
		return ls.entries[i].StartSlot > slot
	})
	// candidate index is i-1
	if i > 0 {
		e := ls.entries[i-1]
		if slot >= e.StartSlot && slot <= e.EndSlot {
			return e.Leader, true
		}
	}
	return "", false
}

// SlotsOf returns every slot of the epoch assigned to leader.
func (ls *LeaderSchedule) SlotsOf(leader string) []uint32 {
	var slots []uint32
	for _, e := range ls.entries {
		if e.Leader != leader {
			continue
		}
		for s := e.StartSlot; s <= e.EndSlot; s++ {
			slots = append(slots, s)
		}
	}
	return slots
}

// Validate ensures entries are sorted by StartSlot and non-overlapping.
func (ls *LeaderSchedule) Validate() error {
	if len(ls.entries) == 0 {
		return nil
	}
	sort.Slice(ls.entries, func(i, j int) bool {
		return ls.entries[i].StartSlot < ls.entries[j].StartSlot
	})
	for i, e := range ls.entries {
		if e.EndSlot < e.StartSlot {
			return errors.New("schedule entry ends before it starts")
		}
		if i > 0 && e.StartSlot <= ls.entries[i-1].EndSlot {
			return errors.New("overlapping schedule entries detected")
		}
	}
	return nil
}

// Entries returns a copy of the underlying schedule entries.
func (ls *LeaderSchedule) Entries() []LeaderScheduleEntry {
	if len(ls.entries) == 0 {
		return nil
	}
	out := make([]LeaderScheduleEntry, len(ls.entries))
	copy(out, ls.entries)
	return out
}
