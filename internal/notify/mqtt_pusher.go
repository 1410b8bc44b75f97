package notify

// MQTTClient is the publishing interface the pusher needs.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTPusher delivers audience push messages over the broker, one topic
// per audience group.
type MQTTPusher struct {
	client MQTTClient
}

// NewMQTTPusher creates a broker-backed pusher.
func NewMQTTPusher(client MQTTClient) *MQTTPusher {
	return &MQTTPusher{client: client}
}

// Push publishes the payload to the audience's notify topic.
func (p *MQTTPusher) Push(audience string, payload []byte) error {
	return p.client.Publish("greenhouse/notify/"+audience, payload, 1, false)
}
