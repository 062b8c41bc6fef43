package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/watson-iot-client/internal/infrastructure/config"
	"github.com/nerrad567/watson-iot-client/internal/infrastructure/logging"
	"github.com/nerrad567/watson-iot-client/internal/iotf"
)

// Client is the MQTT transport for the Watson IoT Platform.
//
// It owns the paho client, tracks the connected-condition, pairs publish
// completions with caller callbacks and decodes incoming messages through
// its codec registry.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are automatically restored on reconnection.
//   - Connect and Disconnect must not be called from a message handler or
//     publish callback.
type Client struct {
	client   pahomqtt.Client
	clientMu sync.RWMutex

	// newPaho builds the paho client for each Connect.
	newPaho func(*pahomqtt.ClientOptions) pahomqtt.Client

	cfg      *config.Config
	settings transportSettings
	store    pahomqtt.Store
	logger   *logging.Logger

	connected connectedEvent
	loop      callbackLoop
	tracker   *PublishTracker
	codecs    *iotf.CodecRegistry

	// connectMu serialises Connect and Disconnect.
	connectMu sync.Mutex

	// subscriptions tracks active subscriptions for re-subscription on reconnect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	// Callbacks for connection events (optional, set via SetOnConnect/SetOnDisconnect).
	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	nextID   atomic.Uint64
	received atomic.Uint64
	started  time.Time
	recorder iotf.StatsRecorder
}

// Option configures optional Client collaborators.
type Option func(*Client)

// WithStore persists in-flight QoS 1/2 messages in store.
func WithStore(store pahomqtt.Store) Option {
	return func(c *Client) { c.store = store }
}

// WithCodecRegistry shares reg instead of a fresh empty registry.
func WithCodecRegistry(reg *iotf.CodecRegistry) Option {
	return func(c *Client) { c.codecs = reg }
}

// WithStatsRecorder exports statistics to r whenever they are logged.
func WithStatsRecorder(r iotf.StatsRecorder) Option {
	return func(c *Client) { c.recorder = r }
}

// New resolves the configuration and prepares a client. It does not
// connect.
//
// Parameters:
//   - cfg: Loaded configuration (platform, auth and mqtt sections are used)
//   - logger: Destination for client logs; nil discards them
//   - opts: Optional store, codec registry and stats recorder
//
// Returns:
//   - *Client: Disconnected client
//   - error: *iotf.Error for an unresolvable address, unknown TLS version
//     or unsupported auth method
func New(cfg *config.Config, logger *logging.Logger, opts ...Option) (*Client, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.With("component", "mqtt", "client_id", cfg.Platform.ClientID)

	settings, err := resolveSettings(cfg)
	if err != nil {
		logCritical(logger, "invalid MQTT client configuration", err)
		return nil, err
	}

	c := &Client{
		newPaho:       pahomqtt.NewClient,
		cfg:           cfg,
		settings:      settings,
		logger:        logger,
		tracker:       NewPublishTracker(),
		subscriptions: make(map[string]subscription),
		started:       time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.codecs == nil {
		c.codecs = iotf.NewCodecRegistry()
	}

	logger.Debug("using transport",
		"broker", settings.brokerURL(),
		"websockets", settings.websockets,
		"tls", settings.tls != nil,
	)
	if cfg.MQTT.DisableTLS {
		logger.Warn("TLS force disabled")
	}

	return c, nil
}

// Address returns the resolved broker address.
func (c *Client) Address() string {
	return c.settings.address
}

// Connect opens the connection and waits for the broker to accept it.
//
// It clears the connected-condition, starts callback delivery, starts the
// paho connection and then waits until the on-connect callback fires, the
// attempt fails, the connect timeout (mqtt.connect_timeout, 30s by default)
// elapses or ctx is done. There are no retries. On any failure the paho
// client and callback delivery are stopped before the error is returned.
//
// Returns:
//   - error: nil once connected; *iotf.Error with Kind ConnectionTimeout on
//     timeout, ConnectionFailure otherwise. Both carry the broker address.
func (c *Client) Connect(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	if c.IsConnected() {
		return nil
	}

	c.connected.Clear()
	c.loop.start()

	opts := buildClientOptions(c.settings, c.cfg.MQTT)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		c.logger.Info("reconnecting to the IBM Watson IoT Platform")
	})
	if c.store != nil {
		opts.SetStore(c.store)
	}

	// A client left from a lost connection may still be reconnecting under
	// the same client id; stop it before its replacement exists.
	if old := c.paho(); old != nil {
		old.Disconnect(0)
	}

	client := c.newPaho(opts)
	c.clientMu.Lock()
	c.client = client
	c.clientMu.Unlock()

	c.logger.Debug("connecting",
		"address", c.settings.address,
		"port", c.settings.port,
		"username", c.settings.credentials.Username,
	)

	timer := time.NewTimer(c.settings.timeout)
	defer timer.Stop()

	token := client.Connect()
	tokenDone := token.Done()
	ready := c.connected.Wait()

	for {
		select {
		case <-ready:
			return nil

		case <-tokenDone:
			if err := token.Error(); err != nil {
				return c.abortConnect(&iotf.Error{
					Kind:        iotf.ConnectionFailure,
					Address:     c.settings.address,
					Reason:      err.Error(),
					NestedError: err,
				})
			}
			// Accepted; keep waiting for the on-connect callback.
			tokenDone = nil

		case <-timer.C:
			return c.abortConnect(&iotf.Error{
				Kind:    iotf.ConnectionTimeout,
				Address: c.settings.address,
			})

		case <-ctx.Done():
			return c.abortConnect(&iotf.Error{
				Kind:        iotf.ConnectionFailure,
				Address:     c.settings.address,
				Reason:      ctx.Err().Error(),
				NestedError: ctx.Err(),
			})
		}
	}
}

// abortConnect stops the half-started connection before reporting err.
func (c *Client) abortConnect(err *iotf.Error) error {
	c.paho().Disconnect(0)
	c.loop.stop()
	c.connected.Clear()

	logCritical(c.logger, "connect failed", err)
	return err
}

// Disconnect closes the connection, then stops callback delivery.
//
// When it returns no connect, message or publish callback will run.
// Publish callbacks still pending are dropped.
//
// Returns:
//   - error: Always nil; kept for the iotf.Transport contract
func (c *Client) Disconnect() error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	client := c.paho()
	if client == nil {
		return nil
	}

	// Close the connection first, then stop delivery; the reverse order
	// would let paho keep handing traffic to a stopped loop.
	client.Disconnect(defaultDisconnectQuiesce)
	c.loop.stop()
	c.connected.Clear()

	if dropped := c.tracker.Reset(); dropped > 0 {
		c.logger.Warn("dropped pending publish callbacks", "count", dropped)
	}

	c.logger.Info("Closed connection to the IBM Watson IoT Platform")
	c.logStats()
	return nil
}

// handleConnect is called when the connection is established.
func (c *Client) handleConnect() {
	if !c.loop.enter() {
		return
	}
	defer c.loop.exit()

	c.connected.Set()
	c.logger.Info("Connected successfully", "address", c.settings.address)

	c.restoreSubscriptions()

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleDisconnect is called when the connection is lost without the
// caller asking for it.
func (c *Client) handleDisconnect(err error) {
	if !c.loop.enter() {
		return
	}
	defer c.loop.exit()

	c.connected.Clear()
	c.logger.Error("Unexpected disconnect from the IBM Watson IoT Platform", "error", err)
	c.logStats()

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// restoreSubscriptions re-subscribes to all tracked topics after reconnect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	client := c.paho()
	for _, sub := range c.subscriptions {
		// Re-subscribe (ignore errors during reconnection)
		client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
}

// paho returns the current paho client (nil before the first Connect).
func (c *Client) paho() pahomqtt.Client {
	c.clientMu.RLock()
	defer c.clientMu.RUnlock()
	return c.client
}

// HealthCheck verifies the connection is up, then checks the message store
// and statistics recorder when they implement iotf.HealthChecker.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: ErrNotConnected, or the first failing collaborator's error
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	if hc, ok := c.store.(iotf.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("message store: %w", err)
		}
	}
	if hc, ok := c.recorder.(iotf.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("statistics recorder: %w", err)
		}
	}
	return nil
}

// IsConnected reports whether the connected-condition is set and paho
// agrees the connection is up.
func (c *Client) IsConnected() bool {
	client := c.paho()
	return client != nil && c.connected.IsSet() && client.IsConnected()
}

// SetOnConnect sets a callback to be invoked when connection is established.
// This is called on initial connect and on every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback to be invoked when connection is lost.
// It is not called for Disconnect.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// KeepAliveInterval returns the keepalive used for the next Connect.
func (c *Client) KeepAliveInterval() time.Duration {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()
	return c.settings.keepAlive
}

// SetKeepAliveInterval changes the keepalive used for the next Connect.
func (c *Client) SetKeepAliveInterval(d time.Duration) {
	c.connectMu.Lock()
	c.settings.keepAlive = d
	c.connectMu.Unlock()
}

// Codecs returns the client's codec registry.
func (c *Client) Codecs() *iotf.CodecRegistry {
	return c.codecs
}

// MessageEncoderModule returns the encoder registered for format.
func (c *Client) MessageEncoderModule(format string) (iotf.Encoder, error) {
	enc, err := c.codecs.Encoder(format)
	if err != nil {
		logCritical(c.logger, "no encoder", err)
	}
	return enc, err
}

// MessageDecoderModule returns the decoder registered for format.
func (c *Client) MessageDecoderModule(format string) (iotf.Decoder, error) {
	dec, err := c.codecs.Decoder(format)
	if err != nil {
		logCritical(c.logger, "no decoder", err)
	}
	return dec, err
}

// SetMessageEncoderModule registers module for format.
func (c *Client) SetMessageEncoderModule(format string, module any) {
	c.codecs.Set(format, module)
}

// logCritical logs err at critical level with its structured attributes.
func logCritical(logger *logging.Logger, msg string, err error) {
	logger.Critical(msg, "error", err)
}

var _ iotf.Transport = (*Client)(nil)
