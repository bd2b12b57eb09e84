package service

import (
	"log/slog"
	"sync"
	"time"
)

type deadline struct {
	timer Timer
	at    time.Time
}

// Scheduler owns at most one pending deadline per room. Scheduling a new
// deadline always cancels the room's previous one first, so a room can
// never have two live timers.
type Scheduler struct {
	clock     Clock
	mu        sync.Mutex
	deadlines map[string]*deadline
}

func NewScheduler(clock Clock) *Scheduler {
	return &Scheduler{
		clock:     clock,
		deadlines: make(map[string]*deadline),
	}
}

// Schedule replaces the room's deadline with a new one firing after d.
// The returned time is the new deadline for snapshot display. fn runs on
// the clock's timer goroutine; callers are responsible for their own
// locking inside it.
func (s *Scheduler) Schedule(code string, d time.Duration, fn func()) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(code)
	at := s.clock.Now().Add(d)
	entry := &deadline{at: at}
	entry.timer = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		if s.deadlines[code] == entry {
			delete(s.deadlines, code)
		}
		s.mu.Unlock()
		fn()
	})
	s.deadlines[code] = entry
	slog.Debug("deadline scheduled", "room", code, "at", at)
	return at
}

// Cancel drops the room's pending deadline, if any.
func (s *Scheduler) Cancel(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(code)
}

func (s *Scheduler) cancelLocked(code string) {
	if entry, ok := s.deadlines[code]; ok {
		entry.timer.Stop()
		delete(s.deadlines, code)
	}
}

// DeadlineAt returns the room's pending deadline, if one is live.
func (s *Scheduler) DeadlineAt(code string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.deadlines[code]; ok {
		return entry.at, true
	}
	return time.Time{}, false
}

// Active reports how many rooms currently hold a live deadline.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deadlines)
}
