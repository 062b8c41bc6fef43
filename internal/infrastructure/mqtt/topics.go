package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every platform topic.
const TopicPrefix = "iot-2"

// Topics provides builders for Watson IoT Platform topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	eventTopic := topics.DeviceEvent("status", "json")
//	// Returns: "iot-2/evt/status/fmt/json"
type Topics struct{}

// =============================================================================
// Device Topics
// =============================================================================

// DeviceEvent returns the topic a device publishes its own events on.
//
// Example: iot-2/evt/status/fmt/json
func (Topics) DeviceEvent(event, format string) string {
	return fmt.Sprintf("%s/evt/%s/fmt/%s", TopicPrefix, event, format)
}

// DeviceCommand returns the topic a device receives commands on.
//
// Example: iot-2/cmd/reboot/fmt/json
func (Topics) DeviceCommand(command, format string) string {
	return fmt.Sprintf("%s/cmd/%s/fmt/%s", TopicPrefix, command, format)
}

// =============================================================================
// Application Topics
// =============================================================================

// ApplicationEvent returns the topic for events of a specific device.
//
// Example: iot-2/type/sensor/id/s-01/evt/status/fmt/json
func (Topics) ApplicationEvent(typeID, deviceID, event, format string) string {
	return fmt.Sprintf("%s/type/%s/id/%s/evt/%s/fmt/%s", TopicPrefix, typeID, deviceID, event, format)
}

// ApplicationCommand returns the topic for commands to a specific device.
//
// Example: iot-2/type/sensor/id/s-01/cmd/reboot/fmt/json
func (Topics) ApplicationCommand(typeID, deviceID, command, format string) string {
	return fmt.Sprintf("%s/type/%s/id/%s/cmd/%s/fmt/%s", TopicPrefix, typeID, deviceID, command, format)
}

// DeviceStatus returns the connection status topic of a device.
//
// Example: iot-2/type/sensor/id/s-01/mon
func (Topics) DeviceStatus(typeID, deviceID string) string {
	return fmt.Sprintf("%s/type/%s/id/%s/mon", TopicPrefix, typeID, deviceID)
}

// ApplicationStatus returns the connection status topic of an application.
//
// Example: iot-2/app/dashboard/mon
func (Topics) ApplicationStatus(appID string) string {
	return fmt.Sprintf("%s/app/%s/mon", TopicPrefix, appID)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllDeviceCommands returns a pattern matching every command for this device.
//
// Pattern: iot-2/cmd/+/fmt/+
func (t Topics) AllDeviceCommands() string {
	return t.DeviceCommand("+", "+")
}

// AllDeviceEvents returns a pattern matching every event of every device.
//
// Pattern: iot-2/type/+/id/+/evt/+/fmt/+
func (t Topics) AllDeviceEvents() string {
	return t.ApplicationEvent("+", "+", "+", "+")
}

// =============================================================================
// Parsing
// =============================================================================

// Format returns the message format named by topic: the segment after the
// last "fmt" segment. Status ("/mon") topics carry JSON.
func (Topics) Format(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	for i := len(parts) - 2; i >= 0; i-- {
		if parts[i] == "fmt" && parts[i+1] != "" {
			return parts[i+1], true
		}
	}
	if len(parts) > 1 && parts[len(parts)-1] == "mon" {
		return "json", true
	}
	return "", false
}
