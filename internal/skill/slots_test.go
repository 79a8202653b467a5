package skill

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestExtractSlots(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    map[string]any
		wantErr error
	}{
		{
			name: "custom slots",
			payload: `{"slots": [
				{"slotName": "device_name", "value": {"kind": "Custom", "value": "box"}},
				{"slotName": "room", "value": {"kind": "Custom", "value": "Küche"}}
			]}`,
			want: map[string]any{"device_name": "box", "room": "Küche"},
		},
		{
			name: "time slots keep the value object",
			payload: `{"slots": [
				{"slotName": "when", "value": {"kind": "InstantTime", "value": "2026-03-01 12:00:00", "grain": "Minute"}}
			]}`,
			want: map[string]any{"when": map[string]any{
				"kind": "InstantTime", "value": "2026-03-01 12:00:00", "grain": "Minute",
			}},
		},
		{
			name:    "other kinds are skipped",
			payload: `{"slots": [{"slotName": "n", "value": {"kind": "Number", "value": 3}}]}`,
			want:    map[string]any{},
		},
		{
			name:    "no slots",
			payload: `{"sessionId": "s"}`,
			want:    map[string]any{},
		},
		{
			name:    "custom slot without value",
			payload: `{"slots": [{"slotName": "room", "value": {"kind": "Custom"}}]}`,
			want:    map[string]any{},
			wantErr: ErrMalformedSlotData,
		},
		{
			name:    "slots not a list",
			payload: `{"slots": "room"}`,
			want:    map[string]any{},
			wantErr: ErrMalformedSlotData,
		},
		{
			name:    "one bad slot empties the result",
			payload: `{"slots": [{"slotName": "room", "value": {"kind": "Custom", "value": "Bad"}}, {"slotName": "x", "value": 7}]}`,
			want:    map[string]any{},
			wantErr: ErrMalformedSlotData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractSlots([]byte(tt.payload))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ExtractSlots() error = %v, want %v", err, tt.wantErr)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractSlots() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseIntent(t *testing.T) {
	msg, err := ParseIntent([]byte(`{
		"sessionId": "sess-1",
		"siteId": "kitchen",
		"intent": {"intentName": "domi:BluetoothDeviceConnect"},
		"slots": [{"slotName": "device_name", "value": {"kind": "Custom", "value": "box"}}]
	}`))
	if err != nil {
		t.Fatalf("ParseIntent() error = %v", err)
	}
	if msg.SessionID != "sess-1" || msg.SiteID != "kitchen" || msg.Slots["device_name"] != "box" {
		t.Errorf("ParseIntent() = %+v", msg)
	}

	t.Run("malformed slots keep the message", func(t *testing.T) {
		msg, err := ParseIntent([]byte(`{"sessionId": "s", "siteId": "kitchen", "slots": 5}`))
		if !errors.Is(err, ErrMalformedSlotData) {
			t.Errorf("error = %v, want ErrMalformedSlotData", err)
		}
		if msg.SessionID != "s" || msg.Slots == nil || len(msg.Slots) != 0 {
			t.Errorf("message = %+v", msg)
		}
	})

	t.Run("missing session", func(t *testing.T) {
		if _, err := ParseIntent([]byte(`{"siteId": "kitchen"}`)); !errors.Is(err, ErrMalformedIntent) {
			t.Errorf("error = %v, want ErrMalformedIntent", err)
		}
	})

	t.Run("not json", func(t *testing.T) {
		if _, err := ParseIntent([]byte(`{`)); !errors.Is(err, ErrMalformedIntent) {
			t.Errorf("error = %v, want ErrMalformedIntent", err)
		}
	})
}

func TestInjectionRequest_Wire(t *testing.T) {
	req := InjectionRequest{
		ID: "tok-1",
		Operations: []InjectionOperation{
			{Kind: injectionAdd, Values: map[string][]string{"audio_devices": {"box", "Echo"}}},
		},
	}
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"id":"tok-1","operations":[["add",{"audio_devices":["box","Echo"]}]]}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}

	var back InjectionRequest
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !reflect.DeepEqual(back, req) {
		t.Errorf("Unmarshal() = %+v", back)
	}

	var bad InjectionOperation
	if err := json.Unmarshal([]byte(`["add"]`), &bad); err == nil {
		t.Error("Unmarshal() accepted a one element tuple")
	}
}

func TestEndSession_OmitsEmptyText(t *testing.T) {
	data, err := json.Marshal(EndSession{SessionID: "s"})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"sessionId":"s"}` {
		t.Errorf("Marshal() = %s", data)
	}
}
