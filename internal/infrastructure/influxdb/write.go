package influxdb

import (
	"slices"
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/watson-iot-client/internal/iotf"
)

const (
	// statsMeasurement is the measurement client statistics are written to.
	statsMeasurement = "client_stats"

	clientIDTag = "client_id"
)

// RecordClientStats queues one client_stats point tagged with the client
// ID. Intervals are written in seconds and omitted when no message was
// counted. Snapshots recorded after Close are dropped.
//
// Example:
//
//	client, err := mqtt.New(cfg, logger, mqtt.WithStatsRecorder(influx))
func (c *Client) RecordClientStats(stats iotf.ClientStats) {
	fields := map[string]any{
		"published":      stats.Published,
		"received":       stats.Received,
		"uptime_seconds": stats.Uptime.Seconds(),
	}
	if d := stats.PublishInterval(); d > 0 {
		fields["publish_interval_seconds"] = d.Seconds()
	}
	if d := stats.ReceiveInterval(); d > 0 {
		fields["receive_interval_seconds"] = d.Seconds()
	}
	point := write.NewPoint(statsMeasurement, map[string]string{clientIDTag: stats.ClientID}, fields, time.Now())

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.writeAPI == nil {
		c.logger.Debug("statistics dropped after close", "client_id", stats.ClientID)
		return
	}
	c.writeAPI.WritePoint(point)
}

// batchClientIDs returns the sorted, distinct client_id tag values of a
// line-protocol batch.
func batchClientIDs(batch string) []string {
	var ids []string
	for _, line := range strings.Split(batch, "\n") {
		if id, ok := lineTag(line, clientIDTag); ok && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// lineTag extracts tag key from one line-protocol line, undoing the
// backslash escapes of commas, spaces and equals signs.
func lineTag(line, key string) (string, bool) {
	// Fields start after the first unescaped space.
	var series strings.Builder
	escaped := false
	for _, r := range line {
		if !escaped && r == ' ' {
			break
		}
		escaped = !escaped && r == '\\'
		series.WriteRune(r)
	}

	for _, pair := range splitUnescaped(series.String(), ',')[1:] {
		k, v, ok := strings.Cut(pair, "=")
		if ok && k == key {
			return unescape(v), true
		}
	}
	return "", false
}

// splitUnescaped splits s at every sep not preceded by a backslash.
func splitUnescaped(s string, sep rune) []string {
	var parts []string
	var cur strings.Builder
	escaped := false
	for _, r := range s {
		if !escaped && r == sep {
			parts = append(parts, cur.String())
			cur.Reset()
			continue
		}
		escaped = !escaped && r == '\\'
		cur.WriteRune(r)
	}
	return append(parts, cur.String())
}

func unescape(s string) string {
	return strings.NewReplacer(`\,`, ",", `\ `, " ", `\=`, "=", `\\`, `\`).Replace(s)
}

var _ iotf.StatsRecorder = (*Client)(nil)
