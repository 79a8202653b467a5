package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/naming"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/site"
)

// Messages exchanged between the skill and the site satellites.
// Requests travel on bluetooth/request/oneSite/{site}/{action} and
// bluetooth/request/allSites/{action}; answers on bluetooth/answer/{action}.

// DeviceRecord is a device as it appears on the wire.
type DeviceRecord struct {
	// Name is the raw adapter-reported device name.
	Name string `json:"name"`

	// Address is the Bluetooth MAC address, e.g. "AA:BB:CC:DD:EE:FF".
	Address string `json:"mac_address"`
}

// SiteInfo is a satellite's full device report.
// Topic: bluetooth/answer/siteInfo
type SiteInfo struct {
	SiteID           string         `json:"site_id"`
	RoomName         *string        `json:"room_name"`
	AvailableDevices []DeviceRecord `json:"available_devices"`
	PairedDevices    []DeviceRecord `json:"paired_devices"`
	ConnectedDevices []DeviceRecord `json:"connected_devices"`

	// DeviceNames is the satellite's synonym table, raw name to spoken forms.
	DeviceNames naming.Table `json:"device_names"`
}

// Validate checks the fields the skill relies on.
func (m SiteInfo) Validate() error {
	if m.SiteID == "" {
		return fmt.Errorf("%w: site_id", ErrMissingField)
	}
	return validateRecords(m.AvailableDevices)
}

// Patch converts the report into a store update. The room and every device
// list are replaced, so a null room_name clears the site's room; a missing
// device_names object leaves the site's table untouched.
func (m SiteInfo) Patch() site.Patch {
	p := site.Patch{
		RoomName:  m.RoomName,
		ClearRoom: m.RoomName == nil,
		Available: Devices(m.AvailableDevices),
		Paired:    Addresses(m.PairedDevices),
		Connected: Addresses(m.ConnectedDevices),
		Synonyms:  m.DeviceNames,
	}
	if p.Available == nil {
		p.Available = []site.Device{}
	}
	if p.Paired == nil {
		p.Paired = []string{}
	}
	if p.Connected == nil {
		p.Connected = []string{}
	}
	return p
}

// NewSiteInfo builds a report from a state snapshot.
func NewSiteInfo(st site.State) SiteInfo {
	info := SiteInfo{
		SiteID:           st.SiteID,
		RoomName:         st.RoomName,
		AvailableDevices: Records(st.Available),
		PairedDevices:    make([]DeviceRecord, 0, len(st.Paired)),
		ConnectedDevices: make([]DeviceRecord, 0, len(st.Connected)),
		DeviceNames:      st.Synonyms,
	}
	if info.DeviceNames == nil {
		info.DeviceNames = naming.Table{}
	}

	byAddr := make(map[string]DeviceRecord, len(st.Available))
	for _, r := range info.AvailableDevices {
		byAddr[r.Address] = r
	}
	for _, addr := range st.Paired {
		if r, ok := byAddr[addr]; ok {
			info.PairedDevices = append(info.PairedDevices, r)
		}
	}
	for _, addr := range st.Connected {
		if r, ok := byAddr[addr]; ok {
			info.ConnectedDevices = append(info.ConnectedDevices, r)
		}
	}
	return info
}

// DiscoverAnswer acknowledges a scan request.
// Topic: bluetooth/answer/devicesDiscover
type DiscoverAnswer struct {
	SiteID string `json:"siteId"`
	Result bool   `json:"result"`
}

// DiscoveredAnswer carries the result of a finished scan.
// Topic: bluetooth/answer/devicesDiscovered
type DiscoveredAnswer struct {
	SiteID              string         `json:"siteId"`
	DiscoverableDevices []DeviceRecord `json:"discoverable_devices"`
}

// DeviceRequest is the body of a connect, disconnect or remove request.
// Topic: bluetooth/request/oneSite/{site}/device{Connect,Disconnect,Remove}
type DeviceRequest struct {
	Addr string `json:"addr"`
}

// DeviceAnswer reports the result of a connect, disconnect or remove.
// Topic: bluetooth/answer/device{Connect,Disconnect,Remove}
type DeviceAnswer struct {
	SiteID string `json:"siteId"`
	Addr   string `json:"addr"`
	Result bool   `json:"result"`
}

// Decode unmarshals payload into v and reports malformed messages with
// ErrMalformedMessage.
func Decode(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	return nil
}

// DecodeDeviceRequest parses a device command body.
func DecodeDeviceRequest(payload []byte) (DeviceRequest, error) {
	var req DeviceRequest
	if err := Decode(payload, &req); err != nil {
		return req, err
	}
	if req.Addr == "" {
		return req, fmt.Errorf("%w: addr", ErrMissingField)
	}
	return req, nil
}

// DecodeDeviceAnswer parses a device command result.
func DecodeDeviceAnswer(payload []byte) (DeviceAnswer, error) {
	var ans DeviceAnswer
	if err := Decode(payload, &ans); err != nil {
		return ans, err
	}
	if ans.SiteID == "" {
		return ans, fmt.Errorf("%w: siteId", ErrMissingField)
	}
	return ans, nil
}

// Devices converts wire records into store devices.
func Devices(records []DeviceRecord) []site.Device {
	if records == nil {
		return nil
	}
	out := make([]site.Device, len(records))
	for i, r := range records {
		out[i] = site.Device{Address: r.Address, Name: r.Name}
	}
	return out
}

// Records converts store devices into wire records.
func Records(devices []site.Device) []DeviceRecord {
	out := make([]DeviceRecord, len(devices))
	for i, d := range devices {
		out[i] = DeviceRecord{Name: d.Name, Address: d.Address}
	}
	return out
}

// Addresses returns the MAC addresses of records, in order.
func Addresses(records []DeviceRecord) []string {
	if records == nil {
		return nil
	}
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Address
	}
	return out
}

func validateRecords(records []DeviceRecord) error {
	for i, r := range records {
		if r.Address == "" {
			return fmt.Errorf("%w: device %d has no mac_address", ErrMissingField, i)
		}
	}
	return nil
}
