package telemetry

import "sync/atomic"

type counters struct {
	connects      uint64
	subscribes    uint64
	published     uint64
	skipped       uint64
	failed        uint64
	received      uint64
	handlerErrors uint64
	dropped       uint64
}

// Stats is a point-in-time snapshot of a Session.
type Stats struct {
	State             State
	ReconnectAttempts uint64 // failures since the last successful connect.
	Connects          uint64 // successful connect+subscribe cycles.
	Subscribes        uint64 // subscribe requests issued, including failed ones.
	Published         uint64
	Skipped           uint64 // ticks that found the session not Connected.
	Failed            uint64 // ticks whose reading or publish failed.
	Received          uint64 // messages handed to the handler.
	HandlerErrors     uint64
	Dropped           uint64 // messages outside the subscription, over a full queue, or after stop.
}

// Stats returns the current counters.
func (s *Session) Stats() Stats {
	s.mu.RLock()
	st := Stats{State: s.state, ReconnectAttempts: s.attempts}
	s.mu.RUnlock()

	st.Connects = atomic.LoadUint64(&s.stats.connects)
	st.Subscribes = atomic.LoadUint64(&s.stats.subscribes)
	st.Published = atomic.LoadUint64(&s.stats.published)
	st.Skipped = atomic.LoadUint64(&s.stats.skipped)
	st.Failed = atomic.LoadUint64(&s.stats.failed)
	st.Received = atomic.LoadUint64(&s.stats.received)
	st.HandlerErrors = atomic.LoadUint64(&s.stats.handlerErrors)
	st.Dropped = atomic.LoadUint64(&s.stats.dropped)
	return st
}
