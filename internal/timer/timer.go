// Package timer schedules delayed continuations behind an interface so the
// game's transition delays can be driven by wall-clock time in production and
// fast-forwarded by hand in tests.
package timer

import (
	"sort"
	"sync"
	"time"
)

// Handle cancels a scheduled continuation.
type Handle interface {
	// Stop prevents the continuation from running. It reports whether the
	// call stopped it (false if it already ran or was already stopped).
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Handle
}

// Real schedules on the runtime timer. Callbacks run on their own goroutine.
type Real struct{}

func (Real) AfterFunc(d time.Duration, f func()) Handle {
	return time.AfterFunc(d, f)
}

// Manual is a Scheduler whose clock only moves when Advance is called.
// Callbacks run synchronously on the goroutine calling Advance, in due-time
// order (ties in scheduling order), which makes transition timing fully
// deterministic in tests.
type Manual struct {
	mu      sync.Mutex
	now     time.Duration
	seq     uint64
	pending []*manualTimer
}

type manualTimer struct {
	m   *Manual
	at  time.Duration
	seq uint64
	f   func()
}

// NewManual returns a Manual scheduler at time zero.
func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) AfterFunc(d time.Duration, f func()) Handle {
	if d < 0 {
		d = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{m: m, at: m.now + d, seq: m.seq, f: f}
	m.pending = append(m.pending, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	for i, p := range t.m.pending {
		if p == t {
			t.m.pending = append(t.m.pending[:i], t.m.pending[i+1:]...)
			return true
		}
	}
	return false
}

// Advance moves the clock forward by d, running every continuation that
// becomes due, including ones scheduled by callbacks during the advance.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.popDueLocked(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = next.at
		m.mu.Unlock()

		// The lock is released so the callback can schedule or stop timers.
		next.f()
	}
}

// Settle runs continuations until none remain, however far ahead they are.
func (m *Manual) Settle() {
	for {
		m.mu.Lock()
		if len(m.pending) == 0 {
			m.mu.Unlock()
			return
		}
		last := m.pending[0].at
		for _, p := range m.pending {
			if p.at > last {
				last = p.at
			}
		}
		d := last - m.now
		m.mu.Unlock()
		m.Advance(d)
	}
}

// Pending reports how many continuations are waiting to run.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Elapsed reports how far the clock has moved since creation.
func (m *Manual) Elapsed() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) popDueLocked(target time.Duration) *manualTimer {
	if len(m.pending) == 0 {
		return nil
	}
	sort.SliceStable(m.pending, func(i, j int) bool {
		if m.pending[i].at != m.pending[j].at {
			return m.pending[i].at < m.pending[j].at
		}
		return m.pending[i].seq < m.pending[j].seq
	})
	first := m.pending[0]
	if first.at > target {
		return nil
	}
	m.pending = m.pending[1:]
	return first
}
