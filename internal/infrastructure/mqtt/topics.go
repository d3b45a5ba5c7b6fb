package mqtt

import "fmt"

// Topic prefixes for the HubLink state mirror.
//
// HubLink publishes hub connectivity and device state onto the broker so
// dashboards and automations can consume a live mirror without polling
// the REST API. All topics live under the hublink/ prefix.
const (
	// TopicPrefix is the base for all HubLink topics.
	TopicPrefix = "hublink"

	// TopicPrefixHub is the base for per-hub topics.
	TopicPrefixHub = "hublink/hub"

	// TopicPrefixEvent is the base for engine event topics.
	TopicPrefixEvent = "hublink/event"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "hublink/system"
)

// Topics provides builders for HubLink MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("hub-garage", "light-01")
//	// Returns: "hublink/hub/hub-garage/device/light-01/state"
type Topics struct{}

// HubStatus returns the retained topic for one hub's connection status.
//
// Example: hublink/hub/hub-garage/status
func (Topics) HubStatus(hubID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixHub, hubID)
}

// DeviceState returns the retained topic for one device's state.
//
// Example: hublink/hub/hub-garage/device/light-01/state
func (Topics) DeviceState(hubID, deviceID string) string {
	return fmt.Sprintf("%s/%s/device/%s/state", TopicPrefixHub, hubID, deviceID)
}

// DeviceRemoved returns the topic announcing a device has disappeared
// from its hub.
//
// Example: hublink/hub/hub-garage/device/light-01/removed
func (Topics) DeviceRemoved(hubID, deviceID string) string {
	return fmt.Sprintf("%s/%s/device/%s/removed", TopicPrefixHub, hubID, deviceID)
}

// Event returns the topic for engine events of one type.
//
// Example: hublink/event/device_state_change
func (Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixEvent, eventType)
}

// SystemStatus returns the service status topic, also used for the LWT.
//
// Example: hublink/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllHubStatuses returns a pattern matching every hub status topic.
//
// Pattern: hublink/hub/+/status
func (Topics) AllHubStatuses() string {
	return fmt.Sprintf("%s/+/status", TopicPrefixHub)
}

// AllDeviceStates returns a pattern matching every device state topic.
//
// Pattern: hublink/hub/+/device/+/state
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/+/device/+/state", TopicPrefixHub)
}

// AllEvents returns a pattern matching every engine event topic.
//
// Pattern: hublink/event/+
func (Topics) AllEvents() string {
	return fmt.Sprintf("%s/+", TopicPrefixEvent)
}

// AllTopics returns a pattern matching all HubLink topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: hublink/#
func (Topics) AllTopics() string {
	return "hublink/#"
}
