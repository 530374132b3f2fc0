package mqtt

import "fmt"

// checkTopic validates the arguments shared by Publish and Subscribe.
func checkTopic(topic string, qos byte) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	}
	return nil
}

// Subscribe registers handler for topic, which may contain + and #
// wildcards. The subscription survives reconnects until Unsubscribe.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, topic)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	// Recorded first so a reconnect racing this call still restores it.
	c.mu.Lock()
	c.subscriptions[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()

	if err := await(c.client.Subscribe(topic, qos, c.wrapHandler(handler)), defaultPublishTimeout, ErrSubscribeFailed); err != nil {
		c.forget(topic)
		return err
	}
	return nil
}

// Unsubscribe drops a subscription. Messages already in flight may still
// reach the handler.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.forget(topic)
	return await(c.client.Unsubscribe(topic), defaultPublishTimeout, ErrUnsubscribeFailed)
}

func (c *Client) forget(topic string) {
	c.mu.Lock()
	delete(c.subscriptions, topic)
	c.mu.Unlock()
}

// SubscriptionCount returns the number of subscriptions replayed on reconnect.
func (c *Client) SubscriptionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscriptions)
}

// HasSubscription reports whether exactly topic is subscribed.
func (c *Client) HasSubscription(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subscriptions[topic]
	return ok
}
