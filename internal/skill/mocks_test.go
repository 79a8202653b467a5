package skill

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/correlation"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/infrastructure/mqtt"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/naming"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/site"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu          sync.Mutex
	published   []mockPublish
	handlers    map[string]func(topic string, payload []byte) error
	connected   bool
	failTopics  map[string]error
	onPublished chan struct{}
}

type mockPublish struct {
	Topic   string
	Payload []byte
	QoS     byte
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected:   true,
		handlers:    make(map[string]func(topic string, payload []byte) error),
		failTopics:  make(map[string]error),
		onPublished: make(chan struct{}, 64),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failTopics[topic]; ok {
		return err
	}
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos})
	select {
	case m.onPublished <- struct{}{}:
	default:
	}
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, _ byte, handler func(topic string, payload []byte) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// FailPublish makes every publish to topic return err.
func (m *MockMQTTClient) FailPublish(topic string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failTopics[topic] = err
}

func (m *MockMQTTClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockPublish(nil), m.published...)
}

// PublishedOn returns the payloads published on topic, in order.
func (m *MockMQTTClient) PublishedOn(topic string) [][]byte {
	var out [][]byte
	for _, p := range m.GetPublished() {
		if p.Topic == topic {
			out = append(out, p.Payload)
		}
	}
	return out
}

func (m *MockMQTTClient) ClearPublished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}

// SimulateMessage delivers a message to the handler whose filter matches.
func (m *MockMQTTClient) SimulateMessage(topic string, payload []byte) error {
	m.mu.Lock()
	var handler func(string, []byte) error
	for filter, h := range m.handlers {
		if topicMatches(filter, topic) {
			handler = h
			break
		}
	}
	m.mu.Unlock()
	if handler == nil {
		return errors.New("no subscription for " + topic)
	}
	return handler(topic, payload)
}

// WaitPublished blocks until n messages have been published or fails.
func (m *MockMQTTClient) WaitPublished(t *testing.T, n int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for len(m.GetPublished()) < n {
		select {
		case <-m.onPublished:
		case <-deadline:
			t.Fatalf("published %d messages, want %d", len(m.GetPublished()), n)
		}
	}
}

func topicMatches(filter, topic string) bool {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, f := range fp {
		if f == "#" {
			return true
		}
		if i >= len(tp) || (f != "+" && f != tp[i]) {
			return false
		}
	}
	return len(fp) == len(tp)
}

type mockRecorder struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (r *mockRecorder) RecordOutcome(_ context.Context, o Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
	return nil
}

func (r *mockRecorder) get() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Outcome(nil), r.outcomes...)
}

func (r *mockRecorder) last(t *testing.T) Outcome {
	t.Helper()
	all := r.get()
	if len(all) == 0 {
		t.Fatal("no outcome recorded")
	}
	return all[len(all)-1]
}

type commandPoint struct {
	SiteID, Kind, Outcome string
}

type mockTelemetry struct {
	mu        sync.Mutex
	commands  []commandPoint
	sites     map[string][3]int
	discovery map[string]int
}

func newMockTelemetry() *mockTelemetry {
	return &mockTelemetry{sites: make(map[string][3]int), discovery: make(map[string]int)}
}

func (m *mockTelemetry) WriteCommand(siteID, kind, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, commandPoint{siteID, kind, outcome})
}

func (m *mockTelemetry) WriteSiteDevices(siteID string, available, paired, connected int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sites[siteID] = [3]int{available, paired, connected}
}

func (m *mockTelemetry) WriteDiscovery(siteID string, found int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discovery[siteID] = found
}

type mockNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *mockNotifier) Notify(_ string, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
}

// Device addresses used by the fixtures.
const (
	addrJBL   = "AA:00:00:00:00:01"
	addrSony  = "AA:00:00:00:00:02"
	addrEcho  = "AA:00:00:00:00:03"
	addrSonos = "AA:00:00:00:00:04"
)

// fixture is a dispatcher wired to mocks with two configured sites:
//
//	kitchen (Küche): JBL-X paired and connected, WH-1000XM4 paired,
//	                 Echo discoverable; JBL-X is spoken "speaker" or "box".
//	bath (Bad):      Sonos discoverable.
type fixture struct {
	mqtt      *MockMQTTClient
	store     *site.Store
	tracker   *correlation.Tracker
	recorder  *mockRecorder
	telemetry *mockTelemetry
	notifier  *mockNotifier
	d         *Dispatcher
	router    *Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := site.NewStore(naming.NewResolver(naming.Table{
		{Raw: "WH-1000XM4", Forms: []string{"kopfhörer"}},
	}))
	store.UpsertSite("kitchen", site.Patch{
		RoomName: site.StringPtr("Küche"),
		Available: []site.Device{
			{Address: addrJBL, Name: "JBL-X"},
			{Address: addrSony, Name: "WH-1000XM4"},
			{Address: addrEcho, Name: "Echo"},
		},
		Paired:    []string{addrJBL, addrSony},
		Connected: []string{addrJBL},
		Synonyms:  naming.Table{{Raw: "JBL-X", Forms: []string{"speaker", "box"}}},
	})
	store.UpsertSite("bath", site.Patch{
		RoomName:  site.StringPtr("Bad"),
		Available: []site.Device{{Address: addrSonos, Name: "Sonos"}},
	})

	f := &fixture{
		mqtt:      NewMockMQTTClient(),
		store:     store,
		tracker:   correlation.NewTracker(0),
		recorder:  &mockRecorder{},
		telemetry: newMockTelemetry(),
		notifier:  &mockNotifier{},
	}

	d, err := NewDispatcher(DispatcherOptions{
		Store:     f.store,
		Tracker:   f.tracker,
		Publisher: f.mqtt,
		QoS:       1,
		Topics:    mqtt.Topics{IntentPrefix: "domi"},
		Recorder:  f.recorder,
		Telemetry: f.telemetry,
		Notifier:  f.notifier,
	})
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	f.d = d
	f.router = NewRouter(store, d)
	return f
}

// endSessions returns the decoded endSession messages.
func (f *fixture) endSessions(t *testing.T) []EndSession {
	t.Helper()
	var out []EndSession
	for _, p := range f.mqtt.PublishedOn(mqtt.TopicEndSession) {
		var msg EndSession
		if err := json.Unmarshal(p, &msg); err != nil {
			t.Fatalf("endSession payload: %v", err)
		}
		out = append(out, msg)
	}
	return out
}

// notifications returns the decoded startSession messages.
func (f *fixture) notifications(t *testing.T) []StartSession {
	t.Helper()
	var out []StartSession
	for _, p := range f.mqtt.PublishedOn(mqtt.TopicStartSession) {
		var msg StartSession
		if err := json.Unmarshal(p, &msg); err != nil {
			t.Fatalf("startSession payload: %v", err)
		}
		out = append(out, msg)
	}
	return out
}

// onlyEndSession asserts exactly one session end and returns its text.
func (f *fixture) onlyEndSession(t *testing.T) string {
	t.Helper()
	ends := f.endSessions(t)
	if len(ends) != 1 {
		t.Fatalf("endSession published %d times, want 1", len(ends))
	}
	return ends[0].Text
}

// onlyNotification asserts exactly one notification and returns it.
func (f *fixture) onlyNotification(t *testing.T) StartSession {
	t.Helper()
	notes := f.notifications(t)
	if len(notes) != 1 {
		t.Fatalf("startSession published %d times, want 1", len(notes))
	}
	return notes[0]
}

func intent(sessionID, siteID string, slots map[string]any) IntentMessage {
	if slots == nil {
		slots = map[string]any{}
	}
	return IntentMessage{SessionID: sessionID, SiteID: siteID, Slots: slots}
}
