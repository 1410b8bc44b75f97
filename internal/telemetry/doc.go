// Package telemetry ingests zone sensor readings from MQTT.
//
// Every reading is broadcast live to connected clients. Readings are
// checked against the zone's current crop tolerance band; leaving or
// re-entering the band raises one notification per transition.
// Samples are written to the time-series sink at a throttled rate.
package telemetry
