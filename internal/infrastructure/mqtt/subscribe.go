package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/watson-iot-client/internal/iotf"
)

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler EventHandler
}

// Event is a received message after decoding.
type Event struct {
	// Topic is the concrete topic (wildcards expanded).
	Topic string

	// Format is taken from the topic's fmt segment.
	Format string

	// Payload is the raw wire payload.
	Payload []byte

	Message iotf.Message
}

// EventHandler is the callback signature for received messages.
//
// Handlers run on the paho delivery goroutine and should not block.
// Messages that fail to decode are logged and never reach the handler.
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type EventHandler func(evt Event) error

// Subscribe registers a handler for messages on the specified topic.
//
// Topics can include MQTT wildcards, e.g. Topics{}.AllDeviceCommands().
// Each message is decoded with the codec registered for the topic's
// format before the handler is called.
//
// Subscriptions are automatically restored if the connection is lost and
// reconnected (tracked internally).
//
// Parameters:
//   - topic: The topic pattern to subscribe to
//   - qos: Maximum QoS level for received messages (0, 1, or 2)
//   - handler: Callback function invoked for each decoded message
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Subscribe(topic string, qos byte, handler EventHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{
		topic:   topic,
		qos:     qos,
		handler: handler,
	}
	c.subMu.Unlock()

	token := c.paho().Subscribe(topic, qos, c.wrapHandler(handler))
	if !token.WaitTimeout(defaultPublishTimeout) {
		c.forget(topic)
		return fmt.Errorf("%w: %w after %v", ErrSubscribeFailed, ErrTimeout, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		c.forget(topic)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}

// SubscribeToDeviceCommands subscribes a device to its commands. Use "+"
// for command or format to match all.
func (c *Client) SubscribeToDeviceCommands(command, format string, qos byte, handler EventHandler) error {
	return c.Subscribe(Topics{}.DeviceCommand(command, format), qos, handler)
}

// SubscribeToDeviceEvents subscribes an application to device events. Use
// "+" for any segment to match all.
func (c *Client) SubscribeToDeviceEvents(typeID, deviceID, event, format string, qos byte, handler EventHandler) error {
	return c.Subscribe(Topics{}.ApplicationEvent(typeID, deviceID, event, format), qos, handler)
}

// Unsubscribe removes a subscription and stops receiving messages for a topic.
//
// Parameters:
//   - topic: The exact topic pattern that was subscribed to
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.forget(topic)

	token := c.paho().Unsubscribe(topic)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %w after %v", ErrUnsubscribeFailed, ErrTimeout, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}

	return nil
}

func (c *Client) forget(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}

// SubscriptionCount returns the number of active subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// HasSubscription checks if a subscription exists for the given topic.
//
// Note: This checks only the exact topic string, not pattern matching.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, exists := c.subscriptions[topic]
	return exists
}

// wrapHandler adapts an EventHandler to paho, adding decoding, panic
// recovery and the callback-loop gate.
func (c *Client) wrapHandler(handler EventHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		if !c.loop.enter() {
			return
		}
		defer c.loop.exit()

		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("MQTT handler panic recovered",
					"topic", msg.Topic(),
					"panic", r,
				)
			}
		}()

		c.received.Add(1)

		evt, err := c.decodeEvent(msg.Topic(), msg.Payload())
		if err != nil {
			c.logger.Error("discarding undecodable message",
				"topic", msg.Topic(),
				"error", err,
			)
			return
		}

		if err := handler(evt); err != nil {
			c.logger.Warn("MQTT handler returned error",
				"topic", msg.Topic(),
				"error", err,
			)
		}
	}
}

// decodeEvent picks the decoder from the topic's format.
func (c *Client) decodeEvent(topic string, payload []byte) (Event, error) {
	format, ok := Topics{}.Format(topic)
	if !ok {
		return Event{}, &iotf.Error{
			Kind:   iotf.InvalidEvent,
			Reason: fmt.Sprintf("topic %s does not name a message format", topic),
		}
	}

	msg, err := c.codecs.Decode(format, payload)
	if err != nil {
		return Event{}, err
	}

	return Event{
		Topic:   topic,
		Format:  format,
		Payload: payload,
		Message: msg,
	}, nil
}
