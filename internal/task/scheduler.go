package task

import (
	"runtime/debug"
	"sync"
	"time"

	"ibctl/util"
)

// TimerScheduler is a Scheduler backed by time.AfterFunc.  It is safe
// for concurrent use and may be shared by every session of a server.
type TimerScheduler struct {
	logger *util.Logger

	mu      sync.Mutex
	timers  map[uint64]*time.Timer
	nextID  uint64
	stopped bool
	wg      sync.WaitGroup
}

// NewTimerScheduler returns a running scheduler.  Panics in scheduled
// work are recovered and logged to logger.
func NewTimerScheduler(logger *util.Logger) *TimerScheduler {
	return &TimerScheduler{
		logger: logger,
		timers: make(map[uint64]*time.Timer),
	}
}

// Schedule implements Scheduler.  After Stop it is a no-op.
func (s *TimerScheduler) Schedule(fn func(), delay time.Duration) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return func() {}
	}

	s.nextID++
	id := s.nextID
	s.wg.Add(1)
	s.timers[id] = time.AfterFunc(delay, func() {
		if !s.claim(id) {
			return
		}
		defer s.wg.Done()
		s.run(fn)
	})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if t, ok := s.timers[id]; ok {
			t.Stop()
			delete(s.timers, id)
			s.wg.Done()
		}
	}
}

// Pending returns the number of jobs that have not fired yet.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels pending jobs and waits for running ones to return.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
		s.wg.Done()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// claim removes id from the pending set.  Only the caller that removes
// it may run or cancel the job.
func (s *TimerScheduler) claim(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.timers[id]; !ok {
		return false
	}
	delete(s.timers, id)
	return true
}

func (s *TimerScheduler) run(fn func()) {
	defer func() {
		if p := recover(); p != nil && s.logger != nil {
			s.logger.Error("scheduled task panicked: %v", p)
			s.logger.Debug("%s", debug.Stack())
		}
	}()
	fn()
}
