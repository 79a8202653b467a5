package mqtt

import (
	"fmt"
	"strings"
)

// Hermes dialogue topics.
const (
	TopicEndSession        = "hermes/dialogueManager/endSession"
	TopicStartSession      = "hermes/dialogueManager/startSession"
	TopicInjectionPerform  = "hermes/injection/perform"
	TopicInjectionComplete = "hermes/injection/complete"

	// TopicPrefixIntent is followed by "{prefix}:{IntentName}".
	TopicPrefixIntent = "hermes/intent/"
)

// Bluetooth bus topics exchanged between the skill and site satellites.
const (
	TopicPrefixBluetooth = "bluetooth"
	TopicPrefixRequest   = "bluetooth/request"
	TopicPrefixAnswer    = "bluetooth/answer"
)

// Actions name the request and answer of one Bluetooth operation.
// An action's request goes to bluetooth/request/oneSite/{site}/{action} and
// its answer comes back on bluetooth/answer/{action}.
const (
	ActionSiteInfo          = "siteInfo"
	ActionDevicesDiscover   = "devicesDiscover"
	ActionDevicesDiscovered = "devicesDiscovered"
	ActionDeviceConnect     = "deviceConnect"
	ActionDeviceDisconnect  = "deviceDisconnect"
	ActionDeviceRemove      = "deviceRemove"
)

const (
	statusTopicApplication   = "snips-bluetooth"
	statusTopicSuffix        = "status"
	singleLevelWildcard      = "+"
	multiLevelWildcard       = "#"
	oneSiteScope             = "oneSite"
	allSitesScope            = "allSites"
	intentNamespaceSeparator = ":"
)

// Topics builds topic strings for the Hermes and Bluetooth hierarchies.
//
//	topics := mqtt.Topics{IntentPrefix: "domi"}
//	topics.Intent("BluetoothDevicesScan")
//	// hermes/intent/domi:BluetoothDevicesScan
type Topics struct {
	// IntentPrefix is the assistant namespace of the skill's intents.
	IntentPrefix string
}

// Intent returns the topic of one intent.
func (t Topics) Intent(name string) string {
	return TopicPrefixIntent + t.IntentPrefix + intentNamespaceSeparator + name
}

// IntentName strips the hermes prefix and namespace from an intent topic.
// It returns false for topics outside this skill's namespace.
func (t Topics) IntentName(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, TopicPrefixIntent+t.IntentPrefix+intentNamespaceSeparator)
	if !ok || rest == "" {
		return "", false
	}
	return rest, true
}

// SiteRequest returns the request topic for one site.
//
// Example: bluetooth/request/oneSite/kitchen/deviceConnect
func (Topics) SiteRequest(siteID, action string) string {
	return fmt.Sprintf("%s/%s/%s/%s", TopicPrefixRequest, oneSiteScope, siteID, action)
}

// AllSitesRequest returns the broadcast request topic.
//
// Example: bluetooth/request/allSites/siteInfo
func (Topics) AllSitesRequest(action string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixRequest, allSitesScope, action)
}

// SiteRequests matches every request addressed to one site.
func (Topics) SiteRequests(siteID string) string {
	return fmt.Sprintf("%s/%s/%s/%s", TopicPrefixRequest, oneSiteScope, siteID, multiLevelWildcard)
}

// AllSitesRequests matches every broadcast request.
func (Topics) AllSitesRequests() string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixRequest, allSitesScope, multiLevelWildcard)
}

// Answer returns the answer topic of an action.
//
// Example: bluetooth/answer/deviceConnect
func (Topics) Answer(action string) string {
	return TopicPrefixAnswer + "/" + action
}

// AllAnswers matches every answer topic.
func (Topics) AllAnswers() string {
	return TopicPrefixAnswer + "/" + singleLevelWildcard
}

// RequestAction extracts the action from a request topic of either scope.
func (Topics) RequestAction(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, TopicPrefixRequest+"/")
	if !ok {
		return "", false
	}
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 3 && parts[0] == oneSiteScope && parts[2] != "":
		return parts[2], true
	case len(parts) == 2 && parts[0] == allSitesScope && parts[1] != "":
		return parts[1], true
	default:
		return "", false
	}
}

// AnswerAction extracts the action from an answer topic.
func (Topics) AnswerAction(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, TopicPrefixAnswer+"/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}

// Status returns the retained online/offline topic of a client, which
// also carries its last will.
//
// Example: snips-bluetooth/bluetooth-skill/status
func (Topics) Status(clientID string) string {
	return fmt.Sprintf("%s/%s/%s", statusTopicApplication, clientID, statusTopicSuffix)
}
