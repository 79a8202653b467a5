// Package mqtt is the bus transport shared by the Bluetooth skill and the
// per-site satellites.
//
// It wraps paho.mqtt.golang with:
//   - subscription tracking and restore after reconnect
//   - a retained status topic (snips-bluetooth/{clientID}/status) with a
//     last will for crash detection
//   - panic recovery around handlers
//   - topic builders for the Hermes dialogue topics and the
//     bluetooth/request and bluetooth/answer hierarchies
//   - an Inbox that serialises handling on one worker goroutine
//
// Delivery is ordered, so paho runs handlers one at a time on its own
// goroutine. Anything that publishes in response to a message goes through
// an Inbox.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	inbox := mqtt.NewInbox(256)
//	go inbox.Run(ctx)
//	topics := mqtt.Topics{IntentPrefix: "domi"}
//	err = client.Subscribe(topics.Answer(mqtt.ActionSiteInfo), 1, inbox.Wrap(handleSiteInfo))
package mqtt
