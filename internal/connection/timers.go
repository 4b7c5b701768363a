package connection

import (
	"time"

	"github.com/benbjohnson/clock"
)

// timerSlot holds at most one pending callback.
type timerSlot struct {
	timer *clock.Timer
}

func (s *timerSlot) pending() bool {
	return s.timer != nil
}

// arm replaces whatever is pending in s with fn after d. fn runs with m.mu
// held, and only if s still holds this timer when it fires.
func (m *Manager) arm(s *timerSlot, d time.Duration, fn func()) {
	m.disarm(s)

	var t *clock.Timer
	t = m.clock.AfterFunc(d, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if s.timer != t {
			return
		}
		s.timer = nil
		fn()
	})
	s.timer = t
}

// disarm cancels the pending callback in s. No-op when nothing is pending.
func (m *Manager) disarm(s *timerSlot) {
	if s.timer == nil {
		return
	}
	s.timer.Stop()
	s.timer = nil
}

func (m *Manager) clearTimers() {
	m.disarm(&m.heartbeatTimer)
	m.disarm(&m.pongTimer)
	m.disarm(&m.reconnectTimer)
}
