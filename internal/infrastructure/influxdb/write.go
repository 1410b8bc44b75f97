package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteSensorReading writes a zone's temperature/humidity sample to InfluxDB.
//
// This is the primary method for recording greenhouse telemetry data.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - zoneID: Unique identifier for the zone (e.g., "zone-north-1")
//   - temperature: Temperature in degrees Celsius
//   - humidity: Relative humidity percentage
//
// Example:
//
//	client.WriteSensorReading("zone-north-1", 22.4, 61.0)
func (c *Client) WriteSensorReading(zoneID string, temperature, humidity float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"sensor_readings",
		map[string]string{
			"zone_id": zoneID,
		},
		map[string]interface{}{
			"temperature": temperature,
			"humidity":    humidity,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteActivation records an irrigation/lighting activation transition.
//
// Parameters:
//   - zoneID: Zone identifier
//   - kind: Program kind ("irrigation" or "lighting")
//   - active: true on window entry, false on window exit
func (c *Client) WriteActivation(zoneID, kind string, active bool) {
	if !c.IsConnected() {
		return
	}

	value := 0.0
	if active {
		value = 1.0
	}

	point := write.NewPoint(
		"activations",
		map[string]string{
			"zone_id": zoneID,
			"kind":    kind,
		},
		map[string]interface{}{
			"active": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom measurement with arbitrary tags and fields.
//
// Use the typed helpers above where they fit; this is the escape hatch
// for one-off measurements.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
