package connection

import (
	"github.com/rickgao/topicfeed/internal/protocol"
)

// startHeartbeat begins the ping cycle for the current socket.
func (m *Manager) startHeartbeat() {
	m.stopHeartbeat()
	m.arm(&m.heartbeatTimer, m.cfg.HeartbeatInterval, m.heartbeatTick)
}

// stopHeartbeat cancels the ping cycle and any pending pong deadline.
func (m *Manager) stopHeartbeat() {
	m.disarm(&m.heartbeatTimer)
	m.disarm(&m.pongTimer)
}

func (m *Manager) heartbeatTick() {
	m.arm(&m.heartbeatTimer, m.cfg.HeartbeatInterval, m.heartbeatTick)

	if err := m.write(protocol.Ping()); err != nil {
		m.logger.Debug("ping not sent", "error", err)
		return
	}
	// Re-arming replaces any deadline still pending from the previous ping.
	m.arm(&m.pongTimer, m.cfg.PongTimeout, m.pongExpired)
}

// resolvePong cancels the pong deadline. A pong with no deadline pending is harmless.
func (m *Manager) resolvePong() {
	m.disarm(&m.pongTimer)
}

// pongExpired closes the socket without setting the manual-close flag, so the
// close event that follows schedules a reconnect.
func (m *Manager) pongExpired() {
	m.pongTimeouts++
	m.observer.PongTimeout()

	s := m.sock
	if s == nil {
		return
	}
	s.logger.Warn("pong timeout, closing socket", "timeout", m.cfg.PongTimeout)
	s.closing = true
	s.conn.Close()
}
