package mqtt

import (
	"encoding/json"
	"fmt"
)

// maxPayloadSize is mosquitto's default message_size_limit.
const maxPayloadSize = 1 << 20

// Publish sends payload to topic and waits for the broker to accept it.
// Only state topics (status, online) should be retained.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if n := len(payload); n > maxPayloadSize {
		return fmt.Errorf("%w: %d byte payload exceeds %d", ErrPublishFailed, n, maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return await(c.client.Publish(topic, qos, retained, payload), defaultPublishTimeout, ErrPublishFailed)
}

// PublishJSON encodes v and publishes it at the client's QoS.
func (c *Client) PublishJSON(topic string, v any, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding %s payload: %w", ErrPublishFailed, topic, err)
	}
	return c.Publish(topic, payload, c.QoS(), retained)
}
