// Package mqtt provides the broker connection used to expose a synthd
// instance over MQTT.
//
// It wraps paho.mqtt.golang with auto-reconnect, subscription restoration,
// panic-safe handlers and a presence topic backed by a Last Will and
// Testament. Topics builds the per-instance topic tree; the bridge package
// decides what flows over it.
//
// # Usage
//
//	topics := mqtt.NewTopics(cfg.MQTT.TopicPrefix, cfg.Instance.ID)
//	client, err := mqtt.Connect(cfg.MQTT, topics)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(topics.Status(), update, true)
//
// TLS (broker.tls) should be on whenever the broker is not on localhost.
package mqtt
