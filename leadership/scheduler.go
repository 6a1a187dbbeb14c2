package leadership

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mezonai/mvnode/block"
	"github.com/mezonai/mvnode/logx"
)

// Scheduler keeps the leader schedule of the running epoch and tells the
// block processor, through notify, when that epoch enters its last slot so
// the next schedule can be prepared.
type Scheduler struct {
	mu           sync.RWMutex
	current      *NewEpochToSchedule
	lastNotified *block.Epoch

	notify func(block.Epoch)
	tick   time.Duration
	now    func() time.Time
}

func NewScheduler(notify func(block.Epoch), tick time.Duration) *Scheduler {
	if tick <= 0 {
		tick = time.Second
	}
	return &Scheduler{notify: notify, tick: tick, now: time.Now}
}

// Install replaces the current schedule.
func (s *Scheduler) Install(payload NewEpochToSchedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &payload
	logx.Info("LEADERSHIP", fmt.Sprintf("Installed schedule for epoch %d (%d ranges)", payload.Epoch, len(payload.NewSchedule.Entries())))
}

func (s *Scheduler) Current() (NewEpochToSchedule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return NewEpochToSchedule{}, false
	}
	return *s.current, true
}

// LeaderAt answers from the installed schedule only.
func (s *Scheduler) LeaderAt(date block.BlockDate) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil || s.current.Epoch != date.Epoch {
		return "", false
	}
	return s.current.NewSchedule.LeaderAt(date.Slot)
}

// Run consumes new schedules until ctx is done or in is closed.
func (s *Scheduler) Run(ctx context.Context, in <-chan NewEpochToSchedule) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-in:
			if !ok {
				return nil
			}
			s.Install(payload)
		case <-ticker.C:
			s.checkEndOfEpoch()
		}
	}
}

func (s *Scheduler) checkEndOfEpoch() {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return
	}
	tf := s.current.TimeFrame
	date, ok := tf.DateAt(s.now())
	if !ok || date.Epoch < s.current.Epoch || date.Slot+1 < tf.SlotsPerEpoch {
		s.mu.Unlock()
		return
	}
	if s.lastNotified != nil && *s.lastNotified >= date.Epoch {
		s.mu.Unlock()
		return
	}
	epoch := date.Epoch
	s.lastNotified = &epoch
	s.mu.Unlock()

	logx.Debug("LEADERSHIP", fmt.Sprintf("Epoch %d is ending", epoch))
	if s.notify != nil {
		s.notify(epoch)
	}
}
