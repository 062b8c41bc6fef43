package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/http"

	"github.com/nerrad567/watson-iot-client/internal/infrastructure/config"
	"github.com/nerrad567/watson-iot-client/internal/infrastructure/logging"
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds
	pingTimeout          = 5 * time.Second
)

// Client exports IoT client statistics to InfluxDB v2.
//
// Snapshots are batched by the non-blocking write API, so a transport can
// hand one over from its disconnect path without waiting on the network.
// Failed batches are logged with the client IDs they carried.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	logger   *logging.Logger

	// mu guards closed and orders writes before Close.
	mu     sync.Mutex
	closed bool

	// failures counts dropped batches per client ID.
	failures map[string]int
	failMu   sync.Mutex
}

// Connect pings the server named by cfg and prepares the batched writer.
//
// Parameters:
//   - ctx: Bounds the initial ping
//   - cfg: The influxdb section of the client configuration
//   - logger: Destination for export failures; nil discards them
//
// Returns:
//   - *Client: Exporter ready for RecordClientStats; the caller closes it
//   - error: ErrDisabled, or ErrUnreachable when the ping fails
func Connect(ctx context.Context, cfg config.InfluxDBConfig, logger *logging.Logger) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if logger == nil {
		logger = logging.Nop()
	}

	batchSize, flushInterval := uint(defaultBatchSize), uint(defaultFlushInterval)
	// #nosec G115 -- both checked positive
	if cfg.BatchSize > 0 {
		batchSize = uint(cfg.BatchSize)
	}
	if cfg.FlushInterval > 0 {
		flushInterval = uint(cfg.FlushInterval)
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(batchSize).
			SetFlushInterval(flushInterval*uint(time.Second/time.Millisecond)).
			SetApplicationName("iotf"),
	)

	c := &Client{
		client:   client,
		logger:   logger.With("component", "influxdb", "bucket", cfg.Bucket),
		failures: make(map[string]int),
	}
	if err := c.ping(ctx); err != nil {
		client.Close()
		return nil, err
	}

	c.writeAPI = client.WriteAPI(cfg.Org, cfg.Bucket)
	c.writeAPI.SetWriteFailedCallback(c.dropFailedBatch)
	go c.logWriteErrors(c.writeAPI.Errors())

	c.logger.Debug("statistics export ready", "url", cfg.URL)
	return c, nil
}

func (c *Client) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	if !healthy {
		return fmt.Errorf("%w: ping not acknowledged", ErrUnreachable)
	}
	return nil
}

// dropFailedBatch runs for retryable write failures. Snapshots are
// cumulative, so the batch is dropped and the next snapshot replaces it.
func (c *Client) dropFailedBatch(batch string, werr http.Error, attempts uint) bool {
	ids := batchClientIDs(batch)

	c.failMu.Lock()
	failures := make(map[string]int, len(ids))
	for _, id := range ids {
		c.failures[id]++
		failures[id] = c.failures[id]
	}
	c.failMu.Unlock()

	c.logger.Warn("dropping statistics batch",
		"client_ids", ids,
		"status", werr.StatusCode,
		"attempts", attempts,
		"failures", failures,
		"error", werr.Error(),
	)
	return false
}

// logWriteErrors drains the write API's error channel until it closes.
func (c *Client) logWriteErrors(errs <-chan error) {
	for err := range errs {
		c.logger.Error("exporting statistics", "error", fmt.Errorf("%w: %w", ErrExportFailed, err))
	}
}

// HealthCheck pings the server.
//
// Returns:
//   - error: nil if reachable, ErrClosed after Close, ErrUnreachable otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.ping(ctx)
}

// Close flushes buffered snapshots and releases the client. Later
// snapshots are dropped. Closing an unconnected Client is a no-op.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.writeAPI.Flush()
	c.client.Close()
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed || c.client == nil
}
