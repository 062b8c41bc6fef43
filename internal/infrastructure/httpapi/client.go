package httpapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nerrad567/watson-iot-client/internal/infrastructure/config"
	"github.com/nerrad567/watson-iot-client/internal/infrastructure/logging"
	"github.com/nerrad567/watson-iot-client/internal/iotf"
)

// Default timeouts for HTTP operations.
const (
	defaultRequestTimeout = 10 * time.Second
	defaultHealthTimeout  = 5 * time.Second

	// maxErrorBody caps how much of a failed response is kept in an APIError.
	maxErrorBody = 64 << 10
)

// Client is the HTTP transport for the Watson IoT Platform.
//
// HTTP is connectionless per request, so Connect and Disconnect do nothing;
// they exist so callers can hold either transport behind iotf.Transport.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	credentials iotf.Credentials
	codecs      *iotf.CodecRegistry
	logger      *logging.Logger

	clientID  string
	published atomic.Uint64
	started   time.Time
}

// Option configures optional Client collaborators.
type Option func(*Client)

// WithCodecRegistry shares reg instead of a fresh empty registry.
func WithCodecRegistry(reg *iotf.CodecRegistry) Option {
	return func(c *Client) { c.codecs = reg }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New resolves the base URL and credentials from cfg.
//
// The base URL is http.base_url when set, otherwise
// "https://{resolved address}:{http.port}" ("http://" when TLS is disabled).
//
// Parameters:
//   - cfg: Loaded configuration (platform, auth, mqtt TLS and http sections are used)
//   - logger: Destination for client logs; nil discards them
//   - opts: Optional codec registry and HTTP client
//
// Returns:
//   - *Client: Ready client
//   - error: *iotf.Error for an unresolvable address, unknown TLS version
//     or unsupported auth method
func New(cfg *config.Config, logger *logging.Logger, opts ...Option) (*Client, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.With("component", "http", "client_id", cfg.Platform.ClientID)

	creds, err := iotf.ResolveCredentials(cfg.Auth.Method, cfg.Auth.Key, cfg.Auth.Token)
	if err != nil {
		logger.Critical("invalid HTTP client configuration", "error", err)
		return nil, err
	}

	baseURL, tlsCfg, err := resolveBaseURL(cfg)
	if err != nil {
		logger.Critical("invalid HTTP client configuration", "error", err)
		return nil, err
	}

	timeout := cfg.GetHTTPTimeout()
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	c := &Client{
		baseURL:     baseURL,
		credentials: creds,
		logger:      logger,
		clientID:    cfg.Platform.ClientID,
		started:     time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert // stdlib default
		transport.TLSClientConfig = tlsCfg
		c.httpClient = &http.Client{Timeout: timeout, Transport: transport}
	}
	if c.codecs == nil {
		c.codecs = iotf.NewCodecRegistry()
	}

	logger.Debug("using transport", "base_url", baseURL)
	return c, nil
}

// resolveBaseURL returns the API root and, for https, the TLS settings.
func resolveBaseURL(cfg *config.Config) (string, *tls.Config, error) {
	if cfg.HTTP.BaseURL != "" {
		u, err := url.Parse(cfg.HTTP.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return "", nil, &iotf.Error{
				Kind:   iotf.ConfigurationInvalid,
				Reason: fmt.Sprintf("http.base_url %q is not an absolute URL", cfg.HTTP.BaseURL),
			}
		}
		return strings.TrimRight(cfg.HTTP.BaseURL, "/"), nil, nil
	}

	address, err := iotf.ResolveBrokerAddress(cfg.Platform.Domain, cfg.Platform.OrgID, cfg.Platform.BrokerURL)
	if err != nil {
		return "", nil, err
	}

	if cfg.MQTT.DisableTLS {
		return fmt.Sprintf("http://%s:%d", address, cfg.HTTP.Port), nil, nil
	}

	version, err := iotf.ParseTLSVersion(cfg.MQTT.TLSVersion)
	if err != nil {
		return "", nil, err
	}
	tlsCfg, err := iotf.NewTLSConfig(address, version, cfg.MQTT.CAFile)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("https://%s:%d", address, cfg.HTTP.Port), tlsCfg, nil
}

// BaseURL returns the API root requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Connect does nothing; HTTP requests are independent.
func (c *Client) Connect(context.Context) error {
	return nil
}

// Disconnect does nothing; HTTP requests are independent.
func (c *Client) Disconnect() error {
	return nil
}

// HealthCheck verifies the platform answers on the base URL.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultHealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return fmt.Errorf("http health check: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http health check: %w", err)
	}
	defer resp.Body.Close()
	// Drain body to allow connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("http health check: status %d", resp.StatusCode)
	}
	return nil
}

// PublishEvent encodes msg with the codec registered for format and POSTs
// it as an event of the given device.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - typeID, deviceID: The device the event belongs to
//   - event: Event name, e.g. "status"
//   - format: Codec name; also selects the Content-Type
//   - msg: The message to send
//
// Returns:
//   - error: MissingEncoder or InvalidEvent for encoding failures,
//     ConnectionFailure when the request cannot be sent, APIFailure
//     carrying the status and body for a non-2xx answer
func (c *Client) PublishEvent(ctx context.Context, typeID, deviceID, event, format string, msg iotf.Message) error {
	enc, err := c.MessageEncoderModule(format)
	if err != nil {
		return err
	}
	payload, err := enc.Encode(msg)
	if err != nil {
		c.logger.Critical("encode failed", "error", err)
		return err
	}

	endpoint := c.baseURL + eventPath(typeID, deviceID, event)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", ContentType(format))
	if !c.credentials.Anonymous() {
		req.SetBasicAuth(c.credentials.Username, c.credentials.Password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		iotfErr := &iotf.Error{
			Kind:        iotf.ConnectionFailure,
			Address:     c.baseURL,
			Reason:      err.Error(),
			NestedError: err,
		}
		c.logger.Error("publish failed", "error", iotfErr)
		return iotfErr
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // Body is informational

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := &iotf.Error{
			Kind:           iotf.APIFailure,
			HTTPStatusCode: resp.StatusCode,
			Reason:         http.StatusText(resp.StatusCode),
			Response:       body,
		}
		c.logger.Error("publish rejected", "error", apiErr)
		return apiErr
	}

	c.published.Add(1)
	c.logger.Debug("published event", "device_type", typeID, "device_id", deviceID, "event", event, "format", format)
	return nil
}

// eventPath is "/api/v0002/device/types/{type}/devices/{id}/events/{event}".
func eventPath(typeID, deviceID, event string) string {
	return fmt.Sprintf("/api/v0002/device/types/%s/devices/%s/events/%s",
		url.PathEscape(typeID), url.PathEscape(deviceID), url.PathEscape(event))
}

// Stats returns the client's counters. The HTTP transport never receives.
func (c *Client) Stats() iotf.ClientStats {
	return iotf.ClientStats{
		ClientID:  c.clientID,
		Published: c.published.Load(),
		Uptime:    time.Since(c.started),
	}
}

// Codecs returns the client's codec registry.
func (c *Client) Codecs() *iotf.CodecRegistry {
	return c.codecs
}

// MessageEncoderModule returns the encoder registered for format.
func (c *Client) MessageEncoderModule(format string) (iotf.Encoder, error) {
	enc, err := c.codecs.Encoder(format)
	if err != nil {
		c.logger.Critical("no encoder", "error", err)
	}
	return enc, err
}

// MessageDecoderModule returns the decoder registered for format.
func (c *Client) MessageDecoderModule(format string) (iotf.Decoder, error) {
	dec, err := c.codecs.Decoder(format)
	if err != nil {
		c.logger.Critical("no decoder", "error", err)
	}
	return dec, err
}

// SetMessageEncoderModule registers module for format.
func (c *Client) SetMessageEncoderModule(format string, module any) {
	c.codecs.Set(format, module)
}

var _ iotf.Transport = (*Client)(nil)
