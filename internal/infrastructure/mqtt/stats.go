package mqtt

import (
	"time"

	"github.com/nerrad567/watson-iot-client/internal/iotf"
)

// Stats returns the client's message counters.
func (c *Client) Stats() iotf.ClientStats {
	return iotf.ClientStats{
		ClientID:  c.settings.clientID,
		Published: c.tracker.Published(),
		Received:  c.received.Load(),
		Uptime:    time.Since(c.started),
	}
}

// logStats logs the counters and hands them to the stats recorder.
func (c *Client) logStats() {
	s := c.Stats()

	c.logger.Debug("Messages published",
		"count", s.Published,
		"life", s.Uptime.Round(time.Second),
		"interval", s.PublishInterval(),
	)
	c.logger.Debug("Messages received",
		"count", s.Received,
		"life", s.Uptime.Round(time.Second),
		"interval", s.ReceiveInterval(),
	)

	if c.recorder != nil {
		c.recorder.RecordClientStats(s)
	}
}
