package mqtt

import "testing"

func TestTopicBuilders(t *testing.T) {
	topics := Topics{IntentPrefix: "domi"}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"Intent", topics.Intent("BluetoothDevicesScan"), "hermes/intent/domi:BluetoothDevicesScan"},
		{"SiteRequest", topics.SiteRequest("kitchen", ActionDeviceConnect), "bluetooth/request/oneSite/kitchen/deviceConnect"},
		{"AllSitesRequest", topics.AllSitesRequest(ActionSiteInfo), "bluetooth/request/allSites/siteInfo"},
		{"SiteRequests", topics.SiteRequests("kitchen"), "bluetooth/request/oneSite/kitchen/#"},
		{"AllSitesRequests", topics.AllSitesRequests(), "bluetooth/request/allSites/#"},
		{"Answer", topics.Answer(ActionDevicesDiscovered), "bluetooth/answer/devicesDiscovered"},
		{"AllAnswers", topics.AllAnswers(), "bluetooth/answer/+"},
		{"Status", topics.Status("bluetooth-skill"), "snips-bluetooth/bluetooth-skill/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestTopics_IntentName(t *testing.T) {
	topics := Topics{IntentPrefix: "domi"}

	tests := []struct {
		topic  string
		want   string
		wantOK bool
	}{
		{"hermes/intent/domi:BluetoothDeviceConnect", "BluetoothDeviceConnect", true},
		{"hermes/intent/other:BluetoothDeviceConnect", "", false},
		{"hermes/intent/domi:", "", false},
		{"hermes/injection/complete", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got, ok := topics.IntentName(tt.topic)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("IntentName(%q) = %q, %v; want %q, %v", tt.topic, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestTopics_RequestAction(t *testing.T) {
	tests := []struct {
		topic  string
		want   string
		wantOK bool
	}{
		{"bluetooth/request/oneSite/kitchen/devicesDiscover", ActionDevicesDiscover, true},
		{"bluetooth/request/allSites/siteInfo", ActionSiteInfo, true},
		{"bluetooth/request/oneSite/kitchen", "", false},
		{"bluetooth/request/oneSite/kitchen/a/b", "", false},
		{"bluetooth/request/someSites/siteInfo", "", false},
		{"bluetooth/answer/siteInfo", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got, ok := Topics{}.RequestAction(tt.topic)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("RequestAction(%q) = %q, %v; want %q, %v", tt.topic, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestTopics_AnswerAction(t *testing.T) {
	tests := []struct {
		topic  string
		want   string
		wantOK bool
	}{
		{"bluetooth/answer/deviceRemove", ActionDeviceRemove, true},
		{"bluetooth/answer/", "", false},
		{"bluetooth/answer/a/b", "", false},
		{"bluetooth/request/allSites/siteInfo", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got, ok := Topics{}.AnswerAction(tt.topic)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("AnswerAction(%q) = %q, %v; want %q, %v", tt.topic, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
