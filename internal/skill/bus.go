package skill

import (
	"encoding/json"
	"fmt"

	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/infrastructure/mqtt"
)

// Publisher sends raw messages to the bus.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// bus builds and publishes the skill's outgoing messages.
type bus struct {
	pub    Publisher
	qos    byte
	topics mqtt.Topics
}

func (b *bus) publishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", topic, err)
	}
	return b.pub.Publish(topic, payload, b.qos, false)
}

// endSession closes a session; an empty text ends it silently.
func (b *bus) endSession(sessionID, text string) error {
	return b.publishJSON(mqtt.TopicEndSession, EndSession{SessionID: sessionID, Text: text})
}

// notify speaks text on siteID outside any session.
func (b *bus) notify(siteID, text string) error {
	return b.publishJSON(mqtt.TopicStartSession, StartSession{
		SiteID: siteID,
		Init:   SessionInit{Type: sessionTypeNotification, Text: text},
	})
}

// request sends action to one site. A nil body sends an empty payload.
func (b *bus) request(siteID, action string, body any) error {
	topic := b.topics.SiteRequest(siteID, action)
	if body == nil {
		return b.pub.Publish(topic, nil, b.qos, false)
	}
	return b.publishJSON(topic, body)
}

// broadcast sends action to every site.
func (b *bus) broadcast(action string) error {
	return b.pub.Publish(b.topics.AllSitesRequest(action), nil, b.qos, false)
}

// inject adds values for entity to the ASR vocabulary under request id.
func (b *bus) inject(id, entity string, values []string) error {
	return b.publishJSON(mqtt.TopicInjectionPerform, InjectionRequest{
		ID: id,
		Operations: []InjectionOperation{
			{Kind: injectionAdd, Values: map[string][]string{entity: values}},
		},
	})
}
