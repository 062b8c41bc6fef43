package mqtt

import (
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// fakeToken is a paho token completed by the test.
type fakeToken struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newFakeToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func completedToken(err error) *fakeToken {
	t := newFakeToken()
	t.complete(err)
	return t
}

func (t *fakeToken) complete(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }

func (t *fakeToken) Error() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// connectBehaviour selects how fakePaho answers Connect.
type connectBehaviour int

const (
	// connectAccept completes the token and fires the on-connect handler.
	connectAccept connectBehaviour = iota
	// connectRefuse completes the token with connectErr.
	connectRefuse
	// connectSilent never answers.
	connectSilent
	// connectTokenOnly completes the token but never fires on-connect.
	connectTokenOnly
)

type fakePublish struct {
	topic   string
	qos     byte
	payload []byte
	token   *fakeToken
}

// fakePaho implements pahomqtt.Client without a network.
type fakePaho struct {
	mu          sync.Mutex
	opts        *pahomqtt.ClientOptions
	behaviour   connectBehaviour
	connectErr  error
	connected   bool
	autoAck     bool
	published   []fakePublish
	handlers    map[string]pahomqtt.MessageHandler
	disconnects int
	builds      int

	// publishHook runs inside Publish after the message is recorded.
	publishHook func()
}

func newFakePaho(b connectBehaviour) *fakePaho {
	return &fakePaho{
		behaviour: b,
		autoAck:   true,
		handlers:  make(map[string]pahomqtt.MessageHandler),
	}
}

// build is installed as Client.newPaho.
func (f *fakePaho) build(opts *pahomqtt.ClientOptions) pahomqtt.Client {
	f.mu.Lock()
	f.opts = opts
	f.builds++
	f.mu.Unlock()
	return f
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePaho) IsConnectionOpen() bool { return f.IsConnected() }

func (f *fakePaho) Connect() pahomqtt.Token {
	switch f.behaviour {
	case connectRefuse:
		return completedToken(f.connectErr)
	case connectSilent:
		return newFakeToken()
	case connectTokenOnly:
		return completedToken(nil)
	}

	f.mu.Lock()
	f.connected = true
	onConnect := f.opts.OnConnect
	f.mu.Unlock()

	go func() {
		if onConnect != nil {
			onConnect(f)
		}
	}()
	return completedToken(nil)
}

func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	f.connected = false
	f.disconnects++
	f.mu.Unlock()
}

func (f *fakePaho) Publish(topic string, qos byte, _ bool, payload any) pahomqtt.Token {
	var b []byte
	switch p := payload.(type) {
	case []byte:
		b = p
	case string:
		b = []byte(p)
	}

	token := newFakeToken()
	f.mu.Lock()
	f.published = append(f.published, fakePublish{topic: topic, qos: qos, payload: b, token: token})
	autoAck := f.autoAck
	hook := f.publishHook
	f.mu.Unlock()

	if hook != nil {
		hook()
	}

	if autoAck {
		token.complete(nil)
	}
	return token
}

func (f *fakePaho) Subscribe(topic string, _ byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	f.handlers[topic] = callback
	f.mu.Unlock()
	return completedToken(nil)
}

func (f *fakePaho) SubscribeMultiple(filters map[string]byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	for topic, qos := range filters {
		f.Subscribe(topic, qos, callback)
	}
	return completedToken(nil)
}

func (f *fakePaho) Unsubscribe(topics ...string) pahomqtt.Token {
	f.mu.Lock()
	for _, topic := range topics {
		delete(f.handlers, topic)
	}
	f.mu.Unlock()
	return completedToken(nil)
}

func (f *fakePaho) AddRoute(string, pahomqtt.MessageHandler) {}

func (f *fakePaho) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

// deliver hands a message to the handler subscribed under filter.
func (f *fakePaho) deliver(filter, topic string, payload []byte) {
	f.mu.Lock()
	h := f.handlers[filter]
	f.mu.Unlock()
	if h != nil {
		h(f, &fakeMessage{topic: topic, payload: payload})
	}
}

// loseConnection fires the connection-lost handler.
func (f *fakePaho) loseConnection(err error) {
	f.mu.Lock()
	f.connected = false
	lost := f.opts.OnConnectionLost
	f.mu.Unlock()
	if lost != nil {
		lost(f, err)
	}
}

func (f *fakePaho) lastPublish() fakePublish {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.published[len(f.published)-1]
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}
