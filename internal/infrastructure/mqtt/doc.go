// Package mqtt provides MQTT client connectivity for Greenhouse Core.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Greenhouse Core uses MQTT as the message bus connecting the Core to the
// field: irrigation/lighting controllers consume retained activation maps,
// sensor nodes publish readings. The broker (Mosquitto) decouples Core from
// device firmware.
//
//	Greenhouse Core ↔ MQTT Broker ↔ Controllers / Sensor Nodes
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s with jitter
//   - Message throughput: Broker-limited (typically 10K+ msg/sec)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all sensor readings
//	err = client.Subscribe(mqtt.Topics{}.AllSensorReadings(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish the irrigation activation map (retained)
//	topic := mqtt.Topics{}.ActivationMap("irrigation")
//	client.Publish(topic, payload, 1, true)
package mqtt
