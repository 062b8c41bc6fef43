package mqtt

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/watson-iot-client/internal/infrastructure/config"
	"github.com/nerrad567/watson-iot-client/internal/iotf"
	"github.com/nerrad567/watson-iot-client/internal/iotf/codecs"
)

const testBroker = "broker.test"

// testConfig returns a plain-TCP configuration pointing at testBroker.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Platform.BrokerURL = testBroker
	cfg.Platform.ClientID = "d:org1:sensor:s-01"
	cfg.MQTT.DisableTLS = true
	cfg.MQTT.Port = 1883
	return cfg
}

// newTestClient returns a client whose paho client is fake.
func newTestClient(t *testing.T, fake *fakePaho, opts ...Option) *Client {
	t.Helper()

	reg := iotf.NewCodecRegistry()
	codecs.Register(reg)

	c, err := New(testConfig(), nil, append([]Option{WithCodecRegistry(reg)}, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	c.newPaho = fake.build
	c.settings.timeout = 200 * time.Millisecond
	return c
}

func connectTestClient(t *testing.T, fake *fakePaho, opts ...Option) *Client {
	t.Helper()
	c := newTestClient(t, fake, opts...)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { c.Disconnect() }) //nolint:errcheck // Test cleanup
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// =============================================================================
// Construction
// =============================================================================

func TestNew_InvalidConfig(t *testing.T) {
	t.Run("no address", func(t *testing.T) {
		cfg := testConfig()
		cfg.Platform.BrokerURL = ""
		cfg.Platform.OrgID = ""

		_, err := New(cfg, nil)
		if !errors.Is(err, iotf.ErrConfiguration) {
			t.Errorf("New() error = %v, want ConfigurationInvalid", err)
		}
	})

	t.Run("unsupported auth method", func(t *testing.T) {
		cfg := testConfig()
		cfg.Auth.Method = "kerberos"

		_, err := New(cfg, nil)
		if !errors.Is(err, iotf.ErrUnsupportedAuthMethod) {
			t.Errorf("New() error = %v, want UnsupportedAuthMethod", err)
		}
	})

	t.Run("unknown TLS version", func(t *testing.T) {
		cfg := testConfig()
		cfg.MQTT.DisableTLS = false
		cfg.MQTT.TLSVersion = "SSLv3"

		_, err := New(cfg, nil)
		if !errors.Is(err, iotf.ErrConfiguration) {
			t.Errorf("New() error = %v, want ConfigurationInvalid", err)
		}
	})
}

func TestNew_InitialState(t *testing.T) {
	c := newTestClient(t, newFakePaho(connectAccept))

	if c.IsConnected() {
		t.Error("IsConnected() = true before Connect")
	}
	if c.Address() != testBroker {
		t.Errorf("Address() = %q, want %q", c.Address(), testBroker)
	}
	if !errors.Is(c.HealthCheck(context.Background()), ErrNotConnected) {
		t.Error("HealthCheck() before Connect should report ErrNotConnected")
	}
	if err := c.Disconnect(); err != nil {
		t.Errorf("Disconnect() before Connect error = %v", err)
	}
}

// =============================================================================
// Connect
// =============================================================================

func TestConnect_WaitsForOnConnect(t *testing.T) {
	fake := newFakePaho(connectAccept)
	c := connectTestClient(t, fake)

	if !c.IsConnected() {
		t.Fatal("IsConnected() = false after Connect")
	}
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if fake.opts.ClientID != "d:org1:sensor:s-01" {
		t.Errorf("ClientID = %q", fake.opts.ClientID)
	}
	if got := fake.opts.Servers[0].String(); got != "tcp://broker.test:1883" {
		t.Errorf("broker = %q, want tcp://broker.test:1883", got)
	}

	// A second Connect is a no-op.
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect() error = %v", err)
	}
	if fake.builds != 1 {
		t.Errorf("paho client built %d times, want 1", fake.builds)
	}
}

func TestConnect_Refused(t *testing.T) {
	fake := newFakePaho(connectRefuse)
	fake.connectErr = errors.New("not Authorized")
	c := newTestClient(t, fake)

	err := c.Connect(context.Background())

	var iotfErr *iotf.Error
	if !errors.As(err, &iotfErr) {
		t.Fatalf("Connect() error = %v, want *iotf.Error", err)
	}
	if iotfErr.Kind != iotf.ConnectionFailure {
		t.Errorf("Kind = %v, want ConnectionFailure", iotfErr.Kind)
	}
	if iotfErr.Address != testBroker {
		t.Errorf("Address = %q, want %q", iotfErr.Address, testBroker)
	}
	if !errors.Is(err, fake.connectErr) {
		t.Error("Connect() error should wrap the transport failure")
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after failed Connect")
	}
	if c.loop.running() {
		t.Error("callback loop still running after failed Connect")
	}
	if fake.disconnects != 1 {
		t.Errorf("disconnects = %d, want the half-open client stopped", fake.disconnects)
	}
}

func TestConnect_Timeout(t *testing.T) {
	for name, behaviour := range map[string]connectBehaviour{
		"broker silent":         connectSilent,
		"no on-connect trigger": connectTokenOnly,
	} {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, newFakePaho(behaviour))

			start := time.Now()
			err := c.Connect(context.Background())
			elapsed := time.Since(start)

			var iotfErr *iotf.Error
			if !errors.As(err, &iotfErr) || iotfErr.Kind != iotf.ConnectionTimeout {
				t.Fatalf("Connect() error = %v, want ConnectionTimeout", err)
			}
			if !strings.Contains(err.Error(), testBroker) {
				t.Errorf("error %q should name the broker address", err)
			}
			if !errors.Is(err, iotf.ErrConnectionFailed) {
				t.Error("a timeout should also match ErrConnectionFailed")
			}
			if elapsed < c.settings.timeout || elapsed > c.settings.timeout+time.Second {
				t.Errorf("Connect() took %v, want about %v", elapsed, c.settings.timeout)
			}
			if c.IsConnected() {
				t.Error("IsConnected() = true after timeout")
			}
		})
	}
}

func TestConnect_ContextCancelled(t *testing.T) {
	c := newTestClient(t, newFakePaho(connectSilent))
	c.settings.timeout = 10 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := c.Connect(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Connect() error = %v, want context.Canceled", err)
	}
	if !errors.Is(err, iotf.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ConnectionFailure", err)
	}
}

func TestConnect_KeepAliveAppliesToNextConnect(t *testing.T) {
	fake := newFakePaho(connectAccept)
	c := newTestClient(t, fake)

	if c.KeepAliveInterval() != 60*time.Second {
		t.Errorf("KeepAliveInterval() = %v, want 60s", c.KeepAliveInterval())
	}
	c.SetKeepAliveInterval(15 * time.Second)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Disconnect() //nolint:errcheck // Test cleanup

	if fake.opts.KeepAlive != 15 {
		t.Errorf("KeepAlive = %d, want 15", fake.opts.KeepAlive)
	}
}

// =============================================================================
// Publish
// =============================================================================

func TestPublishAsync_AckBeforeRegister(t *testing.T) {
	// autoAck completes the token inside paho's Publish, before the
	// callback is registered.
	fake := newFakePaho(connectAccept)
	c := connectTestClient(t, fake)

	var mu sync.Mutex
	calls := 0
	done := make(chan error, 2)
	id, err := c.PublishAsync("iot-2/evt/status/fmt/json", []byte(`{}`), 1, false, func(err error) {
		mu.Lock()
		calls++
		mu.Unlock()
		done <- err
	})
	if err != nil {
		t.Fatalf("PublishAsync() error = %v", err)
	}
	if id == 0 {
		t.Error("PublishAsync() id = 0")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("callback err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback never ran")
	}

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("callback ran %d times, want 1", calls)
	}
	waitFor(t, "tracker to drain", func() bool { return c.tracker.Len() == 0 })
	if c.Stats().Published != 1 {
		t.Errorf("Published = %d, want 1", c.Stats().Published)
	}
}

func TestPublishAsync_Identifiers(t *testing.T) {
	c := connectTestClient(t, newFakePaho(connectAccept))

	first, _ := c.PublishAsync("t/1", nil, 0, false, nil)  //nolint:errcheck // Checked below
	second, _ := c.PublishAsync("t/2", nil, 0, false, nil) //nolint:errcheck // Checked below
	if first == 0 || second <= first {
		t.Errorf("identifiers %d, %d should be distinct and increasing", first, second)
	}
}

func TestPublishAsync_Failure(t *testing.T) {
	fake := newFakePaho(connectAccept)
	fake.autoAck = false
	c := connectTestClient(t, fake)

	done := make(chan error, 1)
	if _, err := c.PublishAsync("iot-2/evt/status/fmt/json", []byte(`{}`), 1, false, func(err error) {
		done <- err
	}); err != nil {
		t.Fatalf("PublishAsync() error = %v", err)
	}

	brokerErr := errors.New("connection reset")
	fake.lastPublish().token.complete(brokerErr)

	select {
	case err := <-done:
		if !errors.Is(err, ErrPublishFailed) || !errors.Is(err, brokerErr) {
			t.Errorf("callback err = %v, want ErrPublishFailed wrapping %v", err, brokerErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback never ran")
	}
	if c.Stats().Published != 0 {
		t.Error("failed publish must not count as published")
	}
}

func TestPublishAsync_Validation(t *testing.T) {
	c := newTestClient(t, newFakePaho(connectAccept))

	if _, err := c.PublishAsync("t", nil, 0, false, nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("before Connect error = %v, want ErrNotConnected", err)
	}

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Disconnect() //nolint:errcheck // Test cleanup

	tests := []struct {
		name    string
		topic   string
		qos     byte
		payload []byte
		want    error
	}{
		{"empty topic", "", 0, nil, ErrInvalidTopic},
		{"qos 3", "t", 3, nil, ErrInvalidQoS},
		{"oversized payload", "t", 0, make([]byte, maxPayloadSize+1), ErrPublishFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.PublishAsync(tt.topic, tt.payload, tt.qos, false, nil); !errors.Is(err, tt.want) {
				t.Errorf("PublishAsync() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPublish_Blocking(t *testing.T) {
	c := connectTestClient(t, newFakePaho(connectAccept))

	if err := c.Publish("iot-2/evt/status/fmt/text", []byte("ok"), 1, false); err != nil {
		t.Errorf("Publish() error = %v", err)
	}
}

func TestPublishEvent_EncodesByFormat(t *testing.T) {
	fake := newFakePaho(connectAccept)
	c := connectTestClient(t, fake)

	if _, err := c.PublishEvent("status", codecs.FormatJSON, iotf.NewMessage(map[string]int{"cpu": 12}), 1, nil); err != nil {
		t.Fatalf("PublishEvent() error = %v", err)
	}
	pub := fake.lastPublish()
	if pub.topic != "iot-2/evt/status/fmt/json" {
		t.Errorf("topic = %q", pub.topic)
	}
	if string(pub.payload) != `{"cpu":12}` {
		t.Errorf("payload = %s", pub.payload)
	}
	if pub.qos != 1 {
		t.Errorf("qos = %d, want 1", pub.qos)
	}

	if _, err := c.PublishCommand("sensor", "s-01", "reboot", codecs.FormatText, iotf.NewMessage("now"), 0, nil); err != nil {
		t.Fatalf("PublishCommand() error = %v", err)
	}
	if got := fake.lastPublish().topic; got != "iot-2/type/sensor/id/s-01/cmd/reboot/fmt/text" {
		t.Errorf("command topic = %q", got)
	}
}

func TestPublishEvent_MissingEncoder(t *testing.T) {
	fake := newFakePaho(connectAccept)
	c := connectTestClient(t, fake)

	_, err := c.PublishEvent("status", "yaml", iotf.NewMessage("x"), 1, nil)
	if !errors.Is(err, iotf.ErrMissingEncoder) {
		t.Fatalf("PublishEvent() error = %v, want MissingEncoder", err)
	}
	if !strings.Contains(err.Error(), "yaml") {
		t.Errorf("error %q should name the format", err)
	}
	if len(fake.published) != 0 {
		t.Error("nothing should be published without an encoder")
	}
}

func TestPublishEvent_InvalidEvent(t *testing.T) {
	c := connectTestClient(t, newFakePaho(connectAccept))

	_, err := c.PublishEvent("status", codecs.FormatText, iotf.NewMessage(42), 1, nil)
	if !errors.Is(err, iotf.ErrInvalidEvent) {
		t.Errorf("PublishEvent() error = %v, want InvalidEvent", err)
	}
}

// =============================================================================
// Disconnect
// =============================================================================

func TestDisconnect_NoCallbacksAfterReturn(t *testing.T) {
	fake := newFakePaho(connectAccept)
	fake.autoAck = false
	c := newTestClient(t, fake)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	var mu sync.Mutex
	var fired []string
	record := func(what string) {
		mu.Lock()
		fired = append(fired, what)
		mu.Unlock()
	}

	c.SetOnDisconnect(func(error) { record("on-disconnect") })
	if err := c.SubscribeToDeviceCommands("+", "+", 1, func(Event) error {
		record("message")
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if _, err := c.PublishAsync("t", nil, 1, false, func(error) { record("publish") }); err != nil {
		t.Fatalf("PublishAsync() error = %v", err)
	}
	token := fake.lastPublish().token

	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Disconnect")
	}

	// Late traffic from the transport is dropped.
	token.complete(nil)
	fake.deliver(Topics{}.AllDeviceCommands(), "iot-2/cmd/reboot/fmt/json", []byte(`{}`))
	fake.loseConnection(errors.New("late"))
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(fired) != 0 {
		t.Errorf("callbacks after Disconnect: %v", fired)
	}
	if c.tracker.Len() != 0 {
		t.Errorf("tracker holds %d entries after Disconnect", c.tracker.Len())
	}
}

func TestPublish_InterruptedByDisconnect(t *testing.T) {
	fake := newFakePaho(connectAccept)
	fake.autoAck = false
	c := newTestClient(t, fake)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	result := make(chan error, 1)
	go func() {
		result <- c.Publish("t", []byte("x"), 1, false)
	}()

	waitFor(t, "publish to reach the transport", func() bool {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		return len(fake.published) == 1
	})
	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	select {
	case err := <-result:
		if !errors.Is(err, ErrDisconnected) {
			t.Errorf("Publish() error = %v, want ErrDisconnected", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Publish() did not return after Disconnect")
	}
}

func TestDisconnect_DuringPublishAsyncLeavesNoPendingEntry(t *testing.T) {
	fake := newFakePaho(connectAccept)
	fake.autoAck = false
	inPublish := make(chan struct{})
	release := make(chan struct{})
	fake.publishHook = func() {
		close(inPublish)
		<-release
	}
	c := newTestClient(t, fake)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	var fired atomic.Bool
	published := make(chan error, 1)
	go func() {
		_, err := c.PublishAsync("t", []byte("x"), 1, false, func(error) { fired.Store(true) })
		published <- err
	}()
	<-inPublish

	disconnected := make(chan struct{})
	go func() {
		c.Disconnect() //nolint:errcheck // Always nil
		close(disconnected)
	}()

	select {
	case <-disconnected:
		t.Fatal("Disconnect() returned while PublishAsync was registering")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)

	if err := <-published; err != nil {
		t.Fatalf("PublishAsync() error = %v", err)
	}
	<-disconnected

	if n := c.tracker.Len(); n != 0 {
		t.Errorf("tracker holds %d entries after Disconnect", n)
	}
	fake.lastPublish().token.complete(nil)
	time.Sleep(20 * time.Millisecond)
	if fired.Load() {
		t.Error("publish callback fired after Disconnect")
	}
}

func TestDisconnect_RecordsStats(t *testing.T) {
	rec := &statsSink{}
	c := connectTestClient(t, newFakePaho(connectAccept), WithStatsRecorder(rec))

	if err := c.Publish("t", nil, 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	got := rec.last()
	if got.ClientID != "d:org1:sensor:s-01" || got.Published != 1 {
		t.Errorf("recorded stats = %+v", got)
	}
}

// checkedSink is a stats recorder that also reports health.
type checkedSink struct {
	statsSink
	err error
}

func (s *checkedSink) HealthCheck(context.Context) error { return s.err }

func TestHealthCheck_Collaborators(t *testing.T) {
	exportDown := errors.New("export down")

	t.Run("healthy recorder", func(t *testing.T) {
		c := connectTestClient(t, newFakePaho(connectAccept), WithStatsRecorder(&checkedSink{}))
		if err := c.HealthCheck(context.Background()); err != nil {
			t.Errorf("HealthCheck() error = %v", err)
		}
	})

	t.Run("failing recorder", func(t *testing.T) {
		c := connectTestClient(t, newFakePaho(connectAccept), WithStatsRecorder(&checkedSink{err: exportDown}))
		err := c.HealthCheck(context.Background())
		if !errors.Is(err, exportDown) {
			t.Errorf("HealthCheck() error = %v, want %v", err, exportDown)
		}
		if !strings.Contains(err.Error(), "statistics recorder") {
			t.Errorf("HealthCheck() error %q should name the recorder", err)
		}
	})

	t.Run("failing store", func(t *testing.T) {
		db := openStoreDB(t)
		store := NewSQLiteStore(db, "d:org1:sensor:s-01", nil)
		c := connectTestClient(t, newFakePaho(connectAccept), WithStore(store))
		if err := c.HealthCheck(context.Background()); err != nil {
			t.Fatalf("HealthCheck() error = %v", err)
		}

		db.Close() //nolint:errcheck // Closing to force failure
		err := c.HealthCheck(context.Background())
		if err == nil || !strings.Contains(err.Error(), "message store") {
			t.Errorf("HealthCheck() error = %v, want a message store failure", err)
		}
	})
}

type statsSink struct {
	mu    sync.Mutex
	stats []iotf.ClientStats
}

func (s *statsSink) RecordClientStats(stats iotf.ClientStats) {
	s.mu.Lock()
	s.stats = append(s.stats, stats)
	s.mu.Unlock()
}

func (s *statsSink) last() iotf.ClientStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.stats) == 0 {
		return iotf.ClientStats{}
	}
	return s.stats[len(s.stats)-1]
}

// =============================================================================
// Connection loss and reconnect
// =============================================================================

func TestConnectionLost(t *testing.T) {
	fake := newFakePaho(connectAccept)
	c := connectTestClient(t, fake)

	lost := make(chan error, 1)
	c.SetOnDisconnect(func(err error) { lost <- err })

	cause := errors.New("keepalive timeout")
	fake.loseConnection(cause)

	select {
	case err := <-lost:
		if !errors.Is(err, cause) {
			t.Errorf("on-disconnect err = %v, want %v", err, cause)
		}
	case <-time.After(time.Second):
		t.Fatal("on-disconnect callback not called")
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after connection loss")
	}
}

func TestReconnect_RestoresSubscriptions(t *testing.T) {
	fake := newFakePaho(connectAccept)
	c := connectTestClient(t, fake)

	reconnected := make(chan struct{}, 1)
	c.SetOnConnect(func() { reconnected <- struct{}{} })

	topic := Topics{}.DeviceCommand("reboot", "json")
	if err := c.Subscribe(topic, 1, func(Event) error { return nil }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	fake.loseConnection(errors.New("gone"))
	fake.mu.Lock()
	delete(fake.handlers, topic)
	fake.connected = true
	onConnect := fake.opts.OnConnect
	fake.mu.Unlock()
	onConnect(fake)

	<-reconnected
	fake.mu.Lock()
	_, restored := fake.handlers[topic]
	fake.mu.Unlock()
	if !restored {
		t.Error("subscription not restored after reconnect")
	}
	if !c.IsConnected() {
		t.Error("IsConnected() = false after reconnect")
	}
}

func TestConnect_AfterLossStopsPreviousClient(t *testing.T) {
	fake := newFakePaho(connectAccept)
	c := connectTestClient(t, fake)

	fake.loseConnection(errors.New("gone"))
	waitFor(t, "connection loss", func() bool { return !c.IsConnected() })

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	fake.mu.Lock()
	disconnects, builds := fake.disconnects, fake.builds
	fake.mu.Unlock()
	if builds != 2 {
		t.Errorf("builds = %d, want 2", builds)
	}
	if disconnects != 1 {
		t.Errorf("previous client disconnects = %d, want 1", disconnects)
	}
	if !c.IsConnected() {
		t.Error("IsConnected() = false after second Connect")
	}
}

// =============================================================================
// Subscribe
// =============================================================================

func TestSubscribe_DecodesByTopicFormat(t *testing.T) {
	fake := newFakePaho(connectAccept)
	c := connectTestClient(t, fake)

	events := make(chan Event, 4)
	filter := Topics{}.AllDeviceCommands()
	if err := c.Subscribe(filter, 1, func(evt Event) error {
		events <- evt
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !c.HasSubscription(filter) || c.SubscriptionCount() != 1 {
		t.Fatal("subscription not tracked")
	}

	fake.deliver(filter, "iot-2/cmd/reboot/fmt/json", []byte(`{"delay":5}`))
	fake.deliver(filter, "iot-2/cmd/reboot/fmt/json", []byte(`{not json`))
	fake.deliver(filter, "iot-2/cmd/reboot/fmt/yaml", []byte(`delay: 5`))
	fake.deliver(filter, "iot-2/cmd/say/fmt/text", []byte(`hello`))

	evt := <-events
	if evt.Format != "json" || evt.Topic != "iot-2/cmd/reboot/fmt/json" {
		t.Errorf("event = %+v", evt)
	}
	data, ok := evt.Message.Data.(map[string]any)
	if !ok || data["delay"] != float64(5) {
		t.Errorf("decoded data = %#v", evt.Message.Data)
	}
	if evt.Message.Timestamp.IsZero() {
		t.Error("decoded message should carry a timestamp")
	}

	evt = <-events
	if evt.Format != "text" || evt.Message.Data != "hello" {
		t.Errorf("second event = %+v, undecodable messages must be skipped", evt)
	}
	if len(events) != 0 {
		t.Errorf("%d unexpected events", len(events))
	}
	if c.Stats().Received != 4 {
		t.Errorf("Received = %d, want 4", c.Stats().Received)
	}
}

func TestSubscribe_HandlerPanicRecovered(t *testing.T) {
	fake := newFakePaho(connectAccept)
	c := connectTestClient(t, fake)

	filter := Topics{}.DeviceCommand("+", "text")
	if err := c.Subscribe(filter, 0, func(Event) error { panic("boom") }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	fake.deliver(filter, "iot-2/cmd/x/fmt/text", []byte("x"))

	// Delivery keeps working after a panic.
	if !c.loop.enter() {
		t.Fatal("callback loop stopped by a handler panic")
	}
	c.loop.exit()
}

func TestSubscribe_Validation(t *testing.T) {
	c := newTestClient(t, newFakePaho(connectAccept))
	handler := func(Event) error { return nil }

	if err := c.Subscribe("t", 0, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("before Connect error = %v, want ErrNotConnected", err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Disconnect() //nolint:errcheck // Test cleanup

	if err := c.Subscribe("", 0, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v", err)
	}
	if err := c.Subscribe("t", 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("qos 3 error = %v", err)
	}
	if err := c.Subscribe("t", 0, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
}

func TestUnsubscribe(t *testing.T) {
	fake := newFakePaho(connectAccept)
	c := connectTestClient(t, fake)

	topic := Topics{}.ApplicationEvent("sensor", "+", "status", "json")
	if err := c.SubscribeToDeviceEvents("sensor", "+", "status", "json", 1, func(Event) error { return nil }); err != nil {
		t.Fatalf("SubscribeToDeviceEvents() error = %v", err)
	}
	if !c.HasSubscription(topic) {
		t.Fatalf("subscription %q not tracked", topic)
	}

	if err := c.Unsubscribe(topic); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if c.HasSubscription(topic) || c.SubscriptionCount() != 0 {
		t.Error("subscription still tracked after Unsubscribe")
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(\"\") error = %v", err)
	}
}

// =============================================================================
// Codec access
// =============================================================================

func TestCodecModules(t *testing.T) {
	c := newTestClient(t, newFakePaho(connectAccept))

	if _, err := c.MessageEncoderModule("json"); err != nil {
		t.Errorf("MessageEncoderModule(json) error = %v", err)
	}
	if _, err := c.MessageDecoderModule("avro"); !errors.Is(err, iotf.ErrMissingDecoder) {
		t.Errorf("MessageDecoderModule(avro) error = %v, want MissingDecoder", err)
	}

	c.SetMessageEncoderModule("avro", codecs.Binary{})
	if _, err := c.MessageDecoderModule("avro"); err != nil {
		t.Errorf("MessageDecoderModule(avro) after set error = %v", err)
	}
}
