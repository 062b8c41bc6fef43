package mqtt

import (
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/watson-iot-client/internal/iotf"
)

// Maximum payload size for MQTT messages (1MB).
const maxPayloadSize = 1 << 20 // 1MB

// PublishAsync sends payload to topic without waiting for the broker.
//
// The returned identifier correlates the publish with onComplete, which
// runs exactly once: with nil when the broker acknowledges (QoS 1/2) or the
// message is written (QoS 0), or with an error if the publish fails. It
// may run before PublishAsync returns. It does not run if Disconnect is
// called first.
//
// Parameters:
//   - topic: The topic to publish to (e.g., "iot-2/evt/status/fmt/json")
//   - payload: The encoded message (max 1MB)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker should retain the message
//   - onComplete: Completion callback, may be nil
//
// Returns:
//   - uint64: Publish identifier
//   - error: Validation failure or ErrNotConnected
func (c *Client) PublishAsync(topic string, payload []byte, qos byte, retained bool, onComplete PublishCallback) (uint64, error) {
	if topic == "" {
		return 0, ErrInvalidTopic
	}
	if qos > maxQoS {
		return 0, ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return 0, fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return 0, ErrNotConnected
	}

	// Holding the loop keeps Disconnect from resetting the tracker until
	// the callback is registered.
	if !c.loop.enter() {
		return 0, ErrNotConnected
	}
	defer c.loop.exit()

	id := c.nextID.Add(1)
	token := c.paho().Publish(topic, qos, retained, payload)
	go c.watchPublish(id, token, c.loop.stopped())

	// Races with watchPublish; the tracker resolves either order.
	c.tracker.RegisterOrInvoke(id, onComplete)

	return id, nil
}

// watchPublish reports the outcome of token to the tracker unless the
// callback loop stops first.
func (c *Client) watchPublish(id uint64, token pahomqtt.Token, stopped <-chan struct{}) {
	select {
	case <-token.Done():
	case <-stopped:
		return
	}

	if !c.loop.enter() {
		return
	}
	defer c.loop.exit()

	select {
	case <-stopped:
		return
	default:
	}

	if err := token.Error(); err != nil {
		c.logger.Error("publish failed", "publish_id", id, "error", err)
		c.tracker.Fail(id, fmt.Errorf("%w: %w", ErrPublishFailed, err))
		return
	}
	c.tracker.Acknowledge(id)
}

// Publish sends payload to topic and waits for the acknowledgement.
//
// Returns:
//   - error: nil on success; ErrDisconnected if Disconnect ran first;
//     ErrPublishFailed wrapping ErrTimeout or the broker's failure otherwise
//
// Example:
//
//	topic := mqtt.Topics{}.DeviceEvent("status", "json")
//	err := client.Publish(topic, []byte(`{"cpu":12}`), 1, false)
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	stopped := c.loop.stopped()
	done := make(chan error, 1)
	if _, err := c.PublishAsync(topic, payload, qos, retained, func(err error) {
		done <- err
	}); err != nil {
		return err
	}

	timer := time.NewTimer(defaultPublishTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-stopped:
		select {
		case err := <-done:
			return err
		default:
			return ErrDisconnected
		}
	case <-timer.C:
		return fmt.Errorf("%w: %w after %v", ErrPublishFailed, ErrTimeout, defaultPublishTimeout)
	}
}

// PublishMessage encodes msg with the codec registered for format and
// publishes it asynchronously to topic.
//
// Returns:
//   - uint64: Publish identifier
//   - error: MissingEncoder or InvalidEvent *iotf.Error, or a PublishAsync error
func (c *Client) PublishMessage(topic, format string, msg iotf.Message, qos byte, onComplete PublishCallback) (uint64, error) {
	enc, err := c.MessageEncoderModule(format)
	if err != nil {
		return 0, err
	}
	payload, err := enc.Encode(msg)
	if err != nil {
		logCritical(c.logger, "encode failed", err)
		return 0, err
	}
	return c.PublishAsync(topic, payload, qos, false, onComplete)
}

// PublishEvent publishes a device event ("iot-2/evt/{event}/fmt/{format}").
func (c *Client) PublishEvent(event, format string, msg iotf.Message, qos byte, onComplete PublishCallback) (uint64, error) {
	return c.PublishMessage(Topics{}.DeviceEvent(event, format), format, msg, qos, onComplete)
}

// PublishDeviceEvent publishes an event on behalf of another device, as
// applications and gateways do.
func (c *Client) PublishDeviceEvent(typeID, deviceID, event, format string, msg iotf.Message, qos byte, onComplete PublishCallback) (uint64, error) {
	return c.PublishMessage(Topics{}.ApplicationEvent(typeID, deviceID, event, format), format, msg, qos, onComplete)
}

// PublishCommand sends a command to a device.
func (c *Client) PublishCommand(typeID, deviceID, command, format string, msg iotf.Message, qos byte, onComplete PublishCallback) (uint64, error) {
	return c.PublishMessage(Topics{}.ApplicationCommand(typeID, deviceID, command, format), format, msg, qos, onComplete)
}
