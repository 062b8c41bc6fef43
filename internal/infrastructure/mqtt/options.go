package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/watson-iot-client/internal/infrastructure/config"
	"github.com/nerrad567/watson-iot-client/internal/iotf"
)

// Connection constants.
const (
	// defaultConnectTimeout bounds Connect when the config leaves it unset.
	defaultConnectTimeout = 30 * time.Second

	// defaultPublishTimeout is the maximum time Publish waits for acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// defaultTCPPort and defaultWebsocketPort apply when mqtt.port is 0.
	defaultTCPPort       = 8883
	defaultWebsocketPort = 9001

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2
)

// transportSettings is everything resolved from configuration before a
// paho client can be built.
type transportSettings struct {
	address      string
	port         int
	websockets   bool
	tls          *tls.Config
	credentials  iotf.Credentials
	clientID     string
	cleanSession bool
	keepAlive    time.Duration
	timeout      time.Duration
}

// brokerURL returns the paho broker URL, e.g. "ssl://org1.messaging.x.com:8883".
func (s transportSettings) brokerURL() string {
	var scheme string
	switch {
	case s.websockets && s.tls != nil:
		scheme = "wss"
	case s.websockets:
		scheme = "ws"
	case s.tls != nil:
		scheme = "ssl"
	default:
		scheme = "tcp"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, s.address, s.port)
}

// resolveSettings turns configuration into transport settings.
//
// Failures are *iotf.Error values: an unresolvable broker address or an
// unknown TLS version is ConfigurationInvalid, an unknown auth method is
// UnsupportedAuthMethod.
func resolveSettings(cfg *config.Config) (transportSettings, error) {
	address, err := iotf.ResolveBrokerAddress(cfg.Platform.Domain, cfg.Platform.OrgID, cfg.Platform.BrokerURL)
	if err != nil {
		return transportSettings{}, err
	}

	creds, err := iotf.ResolveCredentials(cfg.Auth.Method, cfg.Auth.Key, cfg.Auth.Token)
	if err != nil {
		return transportSettings{}, err
	}

	s := transportSettings{
		address:      address,
		port:         cfg.MQTT.Port,
		websockets:   cfg.MQTT.UseWebsockets,
		credentials:  creds,
		clientID:     cfg.Platform.ClientID,
		cleanSession: cfg.MQTT.CleanSession,
		keepAlive:    cfg.GetKeepAlive(),
		timeout:      cfg.GetConnectTimeout(),
	}
	if s.port == 0 {
		s.port = defaultTCPPort
		if s.websockets {
			s.port = defaultWebsocketPort
		}
	}
	if s.keepAlive <= 0 {
		s.keepAlive = defaultKeepAlive
	}
	if s.timeout <= 0 {
		s.timeout = defaultConnectTimeout
	}

	if !cfg.MQTT.DisableTLS {
		version, err := iotf.ParseTLSVersion(cfg.MQTT.TLSVersion)
		if err != nil {
			return transportSettings{}, err
		}
		s.tls, err = iotf.NewTLSConfig(address, version, cfg.MQTT.CAFile)
		if err != nil {
			return transportSettings{}, err
		}
	}

	return s, nil
}

// buildClientOptions creates paho MQTT options from resolved settings.
//
// This configures:
//   - Broker URL (tcp, ssl, ws or wss)
//   - Client ID for identification
//   - Authentication credentials (if a username is present)
//   - TLS configuration (unless disabled)
//   - Clean session mode and keepalive
//   - Reconnect policy (off unless mqtt.auto_reconnect is set)
func buildClientOptions(s transportSettings, cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(s.brokerURL())
	opts.SetClientID(s.clientID)

	if !s.credentials.Anonymous() {
		opts.SetUsername(s.credentials.Username)
		opts.SetPassword(s.credentials.Password)
	}

	opts.SetCleanSession(s.cleanSession)
	opts.SetKeepAlive(s.keepAlive)
	opts.SetConnectTimeout(s.timeout)

	// A single connect attempt per Connect call; retry policy belongs to the caller.
	opts.SetConnectRetry(false)
	opts.SetAutoReconnect(cfg.AutoReconnect)
	if cfg.AutoReconnect {
		opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
		opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	}

	if s.tls != nil {
		opts.SetTLSConfig(s.tls)
	}

	return opts
}
