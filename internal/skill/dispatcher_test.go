package skill

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/correlation"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/infrastructure/mqtt"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/naming"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/protocol"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/site"
)

func TestNewDispatcher_Validation(t *testing.T) {
	store := site.NewStore(nil)
	tracker := correlation.NewTracker(0)
	pub := NewMockMQTTClient()

	tests := []struct {
		name string
		opts DispatcherOptions
	}{
		{"no store", DispatcherOptions{Tracker: tracker, Publisher: pub}},
		{"no tracker", DispatcherOptions{Store: store, Publisher: pub}},
		{"no publisher", DispatcherOptions{Store: store, Tracker: tracker}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewDispatcher(tt.opts); err == nil {
				t.Error("NewDispatcher() succeeded")
			}
		})
	}
}

func TestDispatcher_ScanAckNegative(t *testing.T) {
	f := newFixture(t)
	if err := f.d.DispatchScan("kitchen", "sess"); err != nil {
		t.Fatalf("DispatchScan() error = %v", err)
	}

	if err := f.d.OnScanAck("kitchen", false); err != nil {
		t.Fatalf("OnScanAck() error = %v", err)
	}

	note := f.onlyNotification(t)
	if note.SiteID != "kitchen" || note.Init.Type != "notification" ||
		note.Init.Text != "Die Gerätesuche konnte nicht gestartet werden." {
		t.Errorf("notification = %+v", note)
	}
	if f.tracker.Len() != 0 {
		t.Errorf("pending requests = %d, want 0", f.tracker.Len())
	}
	if o := f.recorder.last(t); o.Outcome != OutcomeRejected || o.Kind != correlation.KindScan {
		t.Errorf("recorded %+v", o)
	}
	if !slices.Contains(f.notifier.texts, "Die Gerätesuche konnte nicht gestartet werden.") {
		t.Error("notification not mirrored to notifier")
	}
}

func TestDispatcher_ScanAckPositiveKeepsPending(t *testing.T) {
	f := newFixture(t)
	f.d.DispatchScan("kitchen", "sess") //nolint:errcheck // publish cannot fail here

	if err := f.d.OnScanAck("kitchen", true); err != nil {
		t.Fatalf("OnScanAck() error = %v", err)
	}
	if f.tracker.Outstanding("kitchen", correlation.KindScan) != 1 {
		t.Error("positive ack consumed the pending scan")
	}
	if len(f.notifications(t)) != 0 {
		t.Error("positive ack spoke")
	}
}

func TestDispatcher_ScanAckStale(t *testing.T) {
	for _, ok := range []bool{true, false} {
		t.Run(fmt.Sprint(ok), func(t *testing.T) {
			f := newFixture(t)
			err := f.d.OnScanAck("kitchen", ok)
			if !IsStale(err) {
				t.Errorf("OnScanAck() error = %v, want stale", err)
			}
			if len(f.mqtt.GetPublished()) != 0 {
				t.Error("stale ack published")
			}
		})
	}
}

func TestDispatcher_ScanFlow(t *testing.T) {
	f := newFixture(t)
	f.d.DispatchScan("kitchen", "sess") //nolint:errcheck // publish cannot fail here
	f.d.OnScanAck("kitchen", true)      //nolint:errcheck // pending scan exists

	found := []site.Device{
		{Address: addrEcho, Name: "Echo"},
		{Address: "AA:00:00:00:00:09", Name: "JBL-X"},
	}
	if err := f.d.DispatchDiscovered("kitchen", found); err != nil {
		t.Fatalf("DispatchDiscovered() error = %v", err)
	}

	injections := f.mqtt.PublishedOn(mqtt.TopicInjectionPerform)
	if len(injections) != 1 {
		t.Fatalf("injections = %d, want 1", len(injections))
	}
	var req InjectionRequest
	if err := json.Unmarshal(injections[0], &req); err != nil {
		t.Fatalf("injection payload: %v", err)
	}
	wantOps := []InjectionOperation{{Kind: "add", Values: map[string][]string{"audio_devices": {"Echo", "speaker"}}}}
	if !reflect.DeepEqual(req.Operations, wantOps) {
		t.Errorf("operations = %+v, want %+v", req.Operations, wantOps)
	}

	pending := f.tracker.Pending()
	if len(pending) != 1 || pending[0].Kind != correlation.KindInject || pending[0].Token != req.ID {
		t.Fatalf("pending = %+v, want one inject under %s", pending, req.ID)
	}
	if len(f.notifications(t)) != 0 {
		t.Error("spoke before the injection finished")
	}

	if err := f.d.OnInjectionComplete(req.ID); err != nil {
		t.Fatalf("OnInjectionComplete() error = %v", err)
	}
	note := f.onlyNotification(t)
	if note.Init.Text != "Es wurden folgende Geräte entdeckt: Echo, speaker" {
		t.Errorf("notification = %q", note.Init.Text)
	}
	if f.tracker.Len() != 0 {
		t.Error("inject request still pending")
	}
	if got := f.telemetry.discovery["kitchen"]; got != 2 {
		t.Errorf("discovery telemetry = %d, want 2", got)
	}

	if err := f.d.OnInjectionComplete(req.ID); !IsStale(err) {
		t.Errorf("second OnInjectionComplete() = %v, want stale", err)
	}
}

func TestDispatcher_DiscoveredEmpty(t *testing.T) {
	f := newFixture(t)
	f.d.DispatchScan("kitchen", "sess") //nolint:errcheck // publish cannot fail here

	if err := f.d.DispatchDiscovered("kitchen", nil); err != nil {
		t.Fatalf("DispatchDiscovered() error = %v", err)
	}
	if note := f.onlyNotification(t); note.Init.Text != "Es wurde kein Gerät entdeckt." {
		t.Errorf("notification = %q", note.Init.Text)
	}
	if len(f.mqtt.PublishedOn(mqtt.TopicInjectionPerform)) != 0 {
		t.Error("empty scan injected")
	}
	if got := f.store.DiscoverableDevices("kitchen"); len(got) != 0 {
		t.Errorf("discoverable = %v, want none", got)
	}
	if got := f.store.PairedDevices("kitchen"); len(got) != 2 {
		t.Errorf("paired devices lost: %v", got)
	}
}

func TestDispatcher_DiscoveredStaleUpdatesCacheSilently(t *testing.T) {
	f := newFixture(t)

	err := f.d.DispatchDiscovered("bath", []site.Device{{Address: "AA:00:00:00:00:10", Name: "Bose"}})
	if !IsStale(err) {
		t.Fatalf("DispatchDiscovered() error = %v, want stale", err)
	}
	if len(f.mqtt.GetPublished()) != 0 {
		t.Error("stale scan result published")
	}
	got := f.store.DiscoverableDevices("bath")
	if len(got) != 1 || got[0].Name != "Bose" {
		t.Errorf("discoverable = %v, want only Bose", got)
	}
}

func TestDispatcher_ScanSupersedes(t *testing.T) {
	f := newFixture(t)
	f.d.DispatchScan("kitchen", "s1") //nolint:errcheck // publish cannot fail here
	f.d.DispatchScan("kitchen", "s2") //nolint:errcheck // publish cannot fail here

	pending := f.tracker.Pending()
	if len(pending) != 1 || *pending[0].SessionID != "s2" {
		t.Errorf("pending = %+v, want only the second scan", pending)
	}
}

func TestDispatcher_ScanExpiresSilently(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.tracker.SetClock(func() time.Time { return now })
	f.d.SetClock(func() time.Time { return now.Add(31 * time.Second) })

	f.d.DispatchScan("kitchen", "sess") //nolint:errcheck // publish cannot fail here
	f.mqtt.ClearPublished()

	expired := f.tracker.Sweep(now.Add(31 * time.Second))
	if len(expired) != 1 {
		t.Fatalf("Sweep() = %v, want one scan", expired)
	}
	if len(f.mqtt.GetPublished()) != 0 {
		t.Error("expiry published a message")
	}
	o := f.recorder.last(t)
	if o.Outcome != OutcomeExpired || o.Elapsed != 31*time.Second {
		t.Errorf("recorded %+v", o)
	}

	if err := f.d.DispatchDiscovered("kitchen", nil); !IsStale(err) {
		t.Errorf("late result = %v, want stale", err)
	}
}

func TestDispatcher_DeviceResults(t *testing.T) {
	tests := []struct {
		name          string
		kind          correlation.Kind
		addr          string
		ok            bool
		want          string
		wantConnected []string
		wantPaired    []string
		wantAvailable int
		wantOutcome   string
	}{
		{
			name: "connect ok", kind: correlation.KindConnect, addr: addrEcho, ok: true,
			want:          "Das Gerät Echo ist jetzt verbunden.",
			wantConnected: []string{addrJBL, addrEcho}, wantPaired: []string{addrJBL, addrSony, addrEcho},
			wantAvailable: 3, wantOutcome: OutcomeSucceeded,
		},
		{
			name: "connect failed", kind: correlation.KindConnect, addr: addrSony, ok: false,
			want:          "Das Gerät kopfhörer konnte nicht verbunden werden.",
			wantConnected: []string{addrJBL}, wantPaired: []string{addrJBL, addrSony},
			wantAvailable: 3, wantOutcome: OutcomeFailed,
		},
		{
			name: "disconnect ok", kind: correlation.KindDisconnect, addr: addrJBL, ok: true,
			want:          "Das Gerät speaker wurde getrennt.",
			wantConnected: []string{}, wantPaired: []string{addrJBL, addrSony},
			wantAvailable: 3, wantOutcome: OutcomeSucceeded,
		},
		{
			name: "disconnect failed", kind: correlation.KindDisconnect, addr: addrJBL, ok: false,
			want:          "Das Gerät speaker konnte nicht getrennt werden.",
			wantConnected: []string{addrJBL}, wantPaired: []string{addrJBL, addrSony},
			wantAvailable: 3, wantOutcome: OutcomeFailed,
		},
		{
			name: "remove ok", kind: correlation.KindRemove, addr: addrJBL, ok: true,
			want:          "Das Gerät speaker wurde aus der Datenbank entfernt.",
			wantConnected: []string{}, wantPaired: []string{addrSony},
			wantAvailable: 2, wantOutcome: OutcomeSucceeded,
		},
		{
			name: "remove failed", kind: correlation.KindRemove, addr: addrSony, ok: false,
			want:          "Das Gerät kopfhörer konnte nicht aus der Datenbank entfernt werden.",
			wantConnected: []string{addrJBL}, wantPaired: []string{addrJBL, addrSony},
			wantAvailable: 3, wantOutcome: OutcomeFailed,
		},
		{
			name: "unknown address speaks an empty name", kind: correlation.KindConnect, addr: "FF:FF:FF:FF:FF:FF", ok: false,
			want:          "Das Gerät  konnte nicht verbunden werden.",
			wantConnected: []string{addrJBL}, wantPaired: []string{addrJBL, addrSony},
			wantAvailable: 3, wantOutcome: OutcomeFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if err := f.d.DispatchDeviceCommand(tt.kind, "kitchen", tt.addr, "sess"); err != nil {
				t.Fatalf("DispatchDeviceCommand() error = %v", err)
			}

			if err := f.d.OnDeviceCommandResult(tt.kind, "kitchen", tt.addr, tt.ok); err != nil {
				t.Fatalf("OnDeviceCommandResult() error = %v", err)
			}

			if note := f.onlyNotification(t); note.Init.Text != tt.want || note.SiteID != "kitchen" {
				t.Errorf("notification = %+v, want %q", note, tt.want)
			}
			st, _ := f.store.Site("kitchen")
			if !sameSet(st.Connected, tt.wantConnected) {
				t.Errorf("connected = %v, want %v", st.Connected, tt.wantConnected)
			}
			if !sameSet(st.Paired, tt.wantPaired) {
				t.Errorf("paired = %v, want %v", st.Paired, tt.wantPaired)
			}
			if len(st.Available) != tt.wantAvailable {
				t.Errorf("available = %v", st.Available)
			}
			if f.tracker.Len() != 0 {
				t.Error("result left a pending request")
			}
			if o := f.recorder.last(t); o.Outcome != tt.wantOutcome || o.Kind != tt.kind || o.SessionID != "sess" {
				t.Errorf("recorded %+v", o)
			}
			if len(f.telemetry.commands) != 1 || f.telemetry.commands[0].Outcome != tt.wantOutcome {
				t.Errorf("telemetry = %+v", f.telemetry.commands)
			}
		})
	}
}

// Connect result for a device spoken as "speaker".
func TestDispatcher_ConnectScenario(t *testing.T) {
	f := newFixture(t)
	f.store.UpsertSite("kitchen", site.Patch{
		Available: []site.Device{{Address: "AA:BB", Name: "JBL-X"}},
		Paired:    []string{},
		Connected: []string{},
		Synonyms:  naming.Table{{Raw: "JBL-X", Forms: []string{"speaker"}}},
	})
	f.d.DispatchDeviceCommand(correlation.KindConnect, "kitchen", "AA:BB", "sess") //nolint:errcheck // publish cannot fail here

	if err := f.d.OnDeviceCommandResult(correlation.KindConnect, "kitchen", "AA:BB", true); err != nil {
		t.Fatalf("OnDeviceCommandResult() error = %v", err)
	}
	if got := f.store.ConnectedDevices("kitchen"); len(got) != 1 || got[0].Address != "AA:BB" {
		t.Errorf("connected = %v", got)
	}
	if note := f.onlyNotification(t); note.Init.Text != "Das Gerät speaker ist jetzt verbunden." {
		t.Errorf("notification = %q", note.Init.Text)
	}
}

func TestDispatcher_DeviceResultStale(t *testing.T) {
	f := newFixture(t)
	before, _ := f.store.Site("kitchen")

	err := f.d.OnDeviceCommandResult(correlation.KindDisconnect, "kitchen", addrJBL, true)
	if !IsStale(err) {
		t.Fatalf("OnDeviceCommandResult() error = %v, want stale", err)
	}
	if len(f.mqtt.GetPublished()) != 0 {
		t.Error("stale result spoke")
	}
	after, _ := f.store.Site("kitchen")
	if !reflect.DeepEqual(before.Connected, after.Connected) {
		t.Error("stale result mutated the cache")
	}
	if len(f.recorder.get()) != 0 {
		t.Error("stale result recorded")
	}
}

func TestDispatcher_ResultForOtherKindIsStale(t *testing.T) {
	f := newFixture(t)
	f.d.DispatchDeviceCommand(correlation.KindConnect, "kitchen", addrEcho, "sess") //nolint:errcheck // publish cannot fail here

	if err := f.d.OnDeviceCommandResult(correlation.KindRemove, "kitchen", addrEcho, true); !IsStale(err) {
		t.Errorf("remove result = %v, want stale", err)
	}
	if f.tracker.Outstanding("kitchen", correlation.KindConnect) != 1 {
		t.Error("connect request consumed by a remove result")
	}
}

// A connect superseded by a connect to another device must not consume the
// newer request when its answer still arrives.
func TestDispatcher_SupersededDeviceResultIsStale(t *testing.T) {
	f := newFixture(t)
	f.d.DispatchDeviceCommand(correlation.KindConnect, "kitchen", addrEcho, "s1") //nolint:errcheck // publish cannot fail here
	f.d.DispatchDeviceCommand(correlation.KindConnect, "kitchen", addrSony, "s2") //nolint:errcheck // publish cannot fail here

	if err := f.d.OnDeviceCommandResult(correlation.KindConnect, "kitchen", addrEcho, true); !IsStale(err) {
		t.Fatalf("result for the superseded device = %v, want stale", err)
	}
	if len(f.notifications(t)) != 0 {
		t.Error("superseded result spoke")
	}
	if f.tracker.Outstanding("kitchen", correlation.KindConnect) != 1 {
		t.Fatal("superseded result consumed the pending connect")
	}

	if err := f.d.OnDeviceCommandResult(correlation.KindConnect, "kitchen", addrSony, true); err != nil {
		t.Fatalf("result for the current device error = %v", err)
	}
	if note := f.onlyNotification(t); note.Init.Text != "Das Gerät kopfhörer ist jetzt verbunden." {
		t.Errorf("notification = %q", note.Init.Text)
	}
	st, _ := f.store.Site("kitchen")
	if !sameSet(st.Connected, []string{addrJBL, addrSony}) {
		t.Errorf("connected = %v, want JBL and Sony", st.Connected)
	}
	o := f.recorder.last(t)
	if o.Outcome != OutcomeSucceeded || o.SessionID != "s2" || o.Address != addrSony {
		t.Errorf("recorded %+v", o)
	}
	if f.tracker.Len() != 0 {
		t.Errorf("pending requests = %d, want 0", f.tracker.Len())
	}
}

func TestDispatcher_InjectionExpires(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.tracker.SetClock(func() time.Time { return now })
	f.d.SetClock(func() time.Time { return now.Add(31 * time.Second) })

	f.d.DispatchScan("kitchen", "sess") //nolint:errcheck // publish cannot fail here
	if err := f.d.DispatchDiscovered("kitchen", []site.Device{{Address: addrEcho, Name: "Echo"}}); err != nil {
		t.Fatalf("DispatchDiscovered() error = %v", err)
	}
	injections := f.mqtt.PublishedOn(mqtt.TopicInjectionPerform)
	if len(injections) != 1 {
		t.Fatalf("injections = %d, want 1", len(injections))
	}
	var req InjectionRequest
	if err := json.Unmarshal(injections[0], &req); err != nil {
		t.Fatal(err)
	}
	f.mqtt.ClearPublished()

	expired := f.tracker.Sweep(now.Add(31 * time.Second))
	if len(expired) != 1 || expired[0].Kind != correlation.KindInject {
		t.Fatalf("Sweep() = %v, want the injection", expired)
	}
	if f.tracker.Len() != 0 {
		t.Errorf("pending requests = %d, want 0", f.tracker.Len())
	}
	if len(f.mqtt.GetPublished()) != 0 {
		t.Error("expiry published a message")
	}
	if o := f.recorder.last(t); o.Outcome != OutcomeExpired || o.Kind != correlation.KindInject {
		t.Errorf("recorded %+v", o)
	}
	if err := f.d.OnInjectionComplete(req.ID); !IsStale(err) {
		t.Errorf("late injection complete = %v, want stale", err)
	}
}

func TestDispatcher_PublishFailure(t *testing.T) {
	boom := errors.New("broker gone")

	t.Run("device command", func(t *testing.T) {
		f := newFixture(t)
		f.mqtt.FailPublish(topics.SiteRequest("kitchen", mqtt.ActionDeviceConnect), boom)

		err := f.d.DispatchDeviceCommand(correlation.KindConnect, "kitchen", addrEcho, "sess")
		if !errors.Is(err, ErrCommandFailed) || !errors.Is(err, boom) {
			t.Errorf("DispatchDeviceCommand() error = %v", err)
		}
		if text := f.onlyEndSession(t); text != "Es gab einen Fehler." {
			t.Errorf("answer = %q", text)
		}
		if f.tracker.Len() != 0 {
			t.Error("failed publish left a pending request")
		}
		if o := f.recorder.last(t); o.Outcome != OutcomeFailed {
			t.Errorf("recorded %+v", o)
		}
	})

	t.Run("scan", func(t *testing.T) {
		f := newFixture(t)
		f.mqtt.FailPublish(topics.SiteRequest("kitchen", mqtt.ActionDevicesDiscover), boom)

		if err := f.d.DispatchScan("kitchen", "sess"); !errors.Is(err, ErrCommandFailed) {
			t.Errorf("DispatchScan() error = %v", err)
		}
		if text := f.onlyEndSession(t); text != "Es gab einen Fehler." {
			t.Errorf("answer = %q", text)
		}
		if f.tracker.Len() != 0 {
			t.Error("failed publish left a pending request")
		}
	})

	t.Run("injection", func(t *testing.T) {
		f := newFixture(t)
		f.mqtt.FailPublish(mqtt.TopicInjectionPerform, boom)
		f.d.DispatchScan("kitchen", "sess") //nolint:errcheck // scan topic works

		err := f.d.DispatchDiscovered("kitchen", []site.Device{{Address: addrEcho, Name: "Echo"}})
		if !errors.Is(err, ErrCommandFailed) {
			t.Errorf("DispatchDiscovered() error = %v", err)
		}
		if note := f.onlyNotification(t); note.Init.Text != "Es gab einen Fehler." {
			t.Errorf("notification = %q", note.Init.Text)
		}
		if f.tracker.Len() != 0 {
			t.Error("failed injection left a pending request")
		}
	})
}

func TestDispatcher_ApplySiteInfo(t *testing.T) {
	f := newFixture(t)
	var info protocol.SiteInfo
	payload := `{
		"site_id": "office",
		"room_name": "Büro",
		"available_devices": [
			{"name": "Pixel Buds", "mac_address": "BB:00:00:00:00:01"},
			{"name": "MX Keys", "mac_address": "BB:00:00:00:00:02"}
		],
		"paired_devices": [{"name": "MX Keys", "mac_address": "BB:00:00:00:00:02"}],
		"connected_devices": [{"name": "MX Keys", "mac_address": "BB:00:00:00:00:02"}],
		"device_names": {"Pixel Buds": "kopfhörer"}
	}`
	if err := json.Unmarshal([]byte(payload), &info); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if err := f.d.ApplySiteInfo(info); err != nil {
		t.Fatalf("ApplySiteInfo() error = %v", err)
	}

	if owner, ok := f.store.RoomOwner("Büro"); !ok || owner != "office" {
		t.Errorf("RoomOwner(Büro) = %q, %v", owner, ok)
	}
	addr, err := f.store.AddressFromName("office", "kopfhörer")
	if err != nil || addr != "BB:00:00:00:00:01" {
		t.Errorf("AddressFromName(kopfhörer) = %q, %v; site synonyms must win", addr, err)
	}
	if got := f.telemetry.sites["office"]; got != [3]int{2, 1, 1} {
		t.Errorf("site telemetry = %v", got)
	}

	// A later report without a room releases the claim.
	if err := f.d.ApplySiteInfo(protocol.SiteInfo{SiteID: "office"}); err != nil {
		t.Fatalf("ApplySiteInfo(no room) error = %v", err)
	}
	if owner, ok := f.store.RoomOwner("Büro"); ok {
		t.Errorf("RoomOwner(Büro) = %q after the room was dropped", owner)
	}
	var notConfigured *site.RoomNotConfiguredError
	if _, err := f.store.ResolveSite("kitchen", site.StringPtr("Büro")); !errors.As(err, &notConfigured) {
		t.Errorf("ResolveSite(Büro) error = %v, want RoomNotConfiguredError", err)
	}

	if err := f.d.ApplySiteInfo(protocol.SiteInfo{}); !errors.Is(err, protocol.ErrMissingField) {
		t.Errorf("ApplySiteInfo(empty) = %v", err)
	}
}

func TestDispatcher_Refresh(t *testing.T) {
	f := newFixture(t)
	if err := f.d.RefreshAllSites(); err != nil {
		t.Fatalf("RefreshAllSites() error = %v", err)
	}
	if err := f.d.RequestSiteInfo("bath"); err != nil {
		t.Fatalf("RequestSiteInfo() error = %v", err)
	}

	want := []string{"bluetooth/request/allSites/siteInfo", "bluetooth/request/oneSite/bath/siteInfo"}
	var got []string
	for _, p := range f.mqtt.GetPublished() {
		got = append(got, p.Topic)
		if len(p.Payload) != 0 {
			t.Errorf("%s payload = %q, want empty", p.Topic, p.Payload)
		}
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("topics = %v, want %v", got, want)
	}
}

func TestDispatcher_ConcurrentSites(t *testing.T) {
	f := newFixture(t)
	sites := []string{"kitchen", "bath"}
	addrs := map[string]string{"kitchen": addrEcho, "bath": addrSonos}

	var wg sync.WaitGroup
	for _, s := range sites {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				f.d.DispatchDeviceCommand(correlation.KindConnect, s, addrs[s], "sess") //nolint:errcheck // mock publish
				f.d.OnDeviceCommandResult(correlation.KindConnect, s, addrs[s], true)    //nolint:errcheck // may be stale
				f.d.OnDeviceCommandResult(correlation.KindDisconnect, s, addrs[s], true) //nolint:errcheck // always stale
			}
		}()
	}
	wg.Wait()

	if f.tracker.Len() != 0 {
		t.Errorf("pending requests = %d, want 0", f.tracker.Len())
	}
	for _, s := range sites {
		if got := f.store.ConnectedDevices(s); !slices.ContainsFunc(got, func(d site.Device) bool { return d.Address == addrs[s] }) {
			t.Errorf("%s connected = %v", s, got)
		}
	}
}

func TestDeviceKind(t *testing.T) {
	for action, want := range map[string]correlation.Kind{
		mqtt.ActionDeviceConnect:    correlation.KindConnect,
		mqtt.ActionDeviceDisconnect: correlation.KindDisconnect,
		mqtt.ActionDeviceRemove:     correlation.KindRemove,
	} {
		if got, ok := DeviceKind(action); !ok || got != want {
			t.Errorf("DeviceKind(%s) = %q, %v", action, got, ok)
		}
	}
	if _, ok := DeviceKind(mqtt.ActionSiteInfo); ok {
		t.Error("DeviceKind(siteInfo) reported a device kind")
	}
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := slices.Clone(a)
	bs := slices.Clone(b)
	slices.Sort(as)
	slices.Sort(bs)
	return slices.Equal(as, bs)
}
