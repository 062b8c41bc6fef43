package iotf

import "time"

// ClientStats is a snapshot of a client's message counters.
type ClientStats struct {
	ClientID  string
	Published uint64
	Received  uint64

	// Uptime is measured from client construction.
	Uptime time.Duration
}

// PublishInterval returns the mean time between published messages, or
// zero when nothing was published.
func (s ClientStats) PublishInterval() time.Duration {
	if s.Published == 0 {
		return 0
	}
	return s.Uptime / time.Duration(s.Published)
}

// ReceiveInterval returns the mean time between received messages, or
// zero when nothing was received.
func (s ClientStats) ReceiveInterval() time.Duration {
	if s.Received == 0 {
		return 0
	}
	return s.Uptime / time.Duration(s.Received)
}

// StatsRecorder receives statistics snapshots, e.g. to export them to a
// time-series database.
type StatsRecorder interface {
	RecordClientStats(stats ClientStats)
}
