package sim

import (
	"sort"
	"sync"
	"time"
)

// CancelFunc stops a scheduled interval or timer. Safe to call more
// than once.
type CancelFunc func()

// Scheduler owns a session's timers: the tick interval and the pending
// wave-start timer. Pulling it behind an interface keeps tests off the
// wall clock entirely.
type Scheduler interface {
	// Every invokes fn repeatedly at the given period until canceled.
	Every(d time.Duration, fn func()) CancelFunc
	// After invokes fn once after the given delay unless canceled.
	After(d time.Duration, fn func()) CancelFunc
	// Now reports the scheduler's idea of the current time.
	Now() time.Time
}

// NewScheduler returns the wall-clock scheduler used in production.
func NewScheduler() Scheduler {
	return &tickerScheduler{}
}

type tickerScheduler struct{}

func (s *tickerScheduler) Every(d time.Duration, fn func()) CancelFunc {
	ticker := time.NewTicker(d)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

func (s *tickerScheduler) After(d time.Duration, fn func()) CancelFunc {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

func (s *tickerScheduler) Now() time.Time {
	return time.Now()
}

// ManualScheduler is a deterministic Scheduler driven by Advance calls.
// Timers fire synchronously on the advancing goroutine, in due order,
// so tests can step a session tick by tick without sleeping.
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Time
	nextID int
	timers map[int]*manualTimer
}

type manualTimer struct {
	due    time.Time
	period time.Duration // zero for one-shots
	fn     func()
}

func NewManualScheduler(start time.Time) *ManualScheduler {
	return &ManualScheduler{
		now:    start,
		timers: map[int]*manualTimer{},
	}
}

func (s *ManualScheduler) Every(d time.Duration, fn func()) CancelFunc {
	return s.add(&manualTimer{due: s.Now().Add(d), period: d, fn: fn})
}

func (s *ManualScheduler) After(d time.Duration, fn func()) CancelFunc {
	return s.add(&manualTimer{due: s.Now().Add(d), fn: fn})
}

func (s *ManualScheduler) add(t *manualTimer) CancelFunc {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.timers[id] = t

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.timers, id)
		})
	}
}

func (s *ManualScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// PendingTimers reports how many intervals/timers are currently armed.
// Lets tests confirm pause/resume idempotence leaves exactly one tick
// interval behind.
func (s *ManualScheduler) PendingTimers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Advance moves the clock forward, firing every timer that comes due
// along the way in chronological order.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now.Add(d)
	s.mu.Unlock()

	for {
		fired := s.fireNext(target)
		if !fired {
			break
		}
	}

	s.mu.Lock()
	s.now = target
	s.mu.Unlock()
}

// fireNext fires the earliest timer due at or before target, if any.
func (s *ManualScheduler) fireNext(target time.Time) bool {
	s.mu.Lock()

	type due struct {
		id int
		t  *manualTimer
	}
	var dues []due
	for id, t := range s.timers {
		if !t.due.After(target) {
			dues = append(dues, due{id, t})
		}
	}
	if len(dues) == 0 {
		s.mu.Unlock()
		return false
	}
	sort.Slice(dues, func(i, j int) bool {
		if dues[i].t.due.Equal(dues[j].t.due) {
			return dues[i].id < dues[j].id
		}
		return dues[i].t.due.Before(dues[j].t.due)
	})

	next := dues[0]
	s.now = next.t.due
	if next.t.period > 0 {
		next.t.due = next.t.due.Add(next.t.period)
	} else {
		delete(s.timers, next.id)
	}
	fn := next.t.fn
	s.mu.Unlock()

	fn()
	return true
}
