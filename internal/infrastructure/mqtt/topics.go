package mqtt

import "fmt"

// Topic prefixes for the Greenhouse Core MQTT namespace.
//
// Activation topics are published retained so controllers that reconnect
// immediately receive the current map without waiting for the next tick.
const (
	// TopicPrefix is the base for all Greenhouse Core topics.
	TopicPrefix = "greenhouse"

	// TopicPrefixActivation is the base for schedule-derived activation state.
	TopicPrefixActivation = "greenhouse/activation"

	// TopicPrefixSensor is the base for inbound sensor readings.
	TopicPrefixSensor = "greenhouse/sensor"

	// TopicPrefixNotify is the base for push notification delivery.
	TopicPrefixNotify = "greenhouse/notify"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "greenhouse/system"
)

// Topics provides builders for Greenhouse Core MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	mapTopic := topics.ActivationMap("irrigation")
//	// Returns: "greenhouse/activation/irrigation"
type Topics struct{}

// ActivationMap returns the retained topic carrying the full zone activation
// map for a program kind ("irrigation" or "lighting").
//
// Example: greenhouse/activation/irrigation
func (Topics) ActivationMap(kind string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixActivation, kind)
}

// ZoneActivation returns the topic for a single zone's activation state.
//
// Example: greenhouse/activation/irrigation/zone-north-1
func (Topics) ZoneActivation(kind, zoneID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixActivation, kind, zoneID)
}

// SensorReading returns the topic sensor nodes publish readings on.
//
// Example: greenhouse/sensor/zone-north-1/reading
func (Topics) SensorReading(zoneID string) string {
	return fmt.Sprintf("%s/%s/reading", TopicPrefixSensor, zoneID)
}

// NotifyAudience returns the push delivery topic for an audience group.
//
// Example: greenhouse/notify/operator
func (Topics) NotifyAudience(audience string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixNotify, audience)
}

// SystemStatus returns the system status topic (online/offline LWT).
//
// Example: greenhouse/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllSensorReadings returns a pattern matching readings from every zone.
//
// Pattern: greenhouse/sensor/+/reading
func (Topics) AllSensorReadings() string {
	return fmt.Sprintf("%s/+/reading", TopicPrefixSensor)
}

// AllActivation returns a pattern matching all activation topics.
//
// Pattern: greenhouse/activation/#
func (Topics) AllActivation() string {
	return TopicPrefixActivation + "/#"
}

// AllTopics returns a pattern matching all Greenhouse Core topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: greenhouse/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
