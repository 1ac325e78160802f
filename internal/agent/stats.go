package agent

import "sync/atomic"

// Stats counts the agent's MQTT traffic. It is safe for concurrent use.
type Stats struct {
	received atomic.Int64
	acked    atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats plus the open connections.
type StatsSnapshot struct {
	Received    int64
	Acked       int64
	Connections int
}

func (s *Stats) addReceived() { s.received.Add(1) }
func (s *Stats) addAcked()    { s.acked.Add(1) }

// Reset zeroes the counters.
func (s *Stats) Reset() {
	s.received.Store(0)
	s.acked.Store(0)
}

// Received returns the number of messages received.
func (s *Stats) Received() int64 { return s.received.Load() }

// Acked returns the number of ACKs published.
func (s *Stats) Acked() int64 { return s.acked.Load() }
