package site

import (
	"time"

	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/naming"
)

// Device is a Bluetooth device known to a site's adapter.
// Identity is Address; Name is not unique.
type Device struct {
	Address   string `json:"address"`
	Name      string `json:"name"`
	Paired    bool   `json:"paired"`
	Connected bool   `json:"connected"`
}

// State is a snapshot of one site's cached device state.
//
// Invariants: every address in Paired appears in Available, every address in
// Connected appears in Paired.
type State struct {
	SiteID    string       `json:"site_id"`
	RoomName  *string      `json:"room_name"`
	Available []Device     `json:"available_devices"`
	Paired    []string     `json:"paired_devices"`
	Connected []string     `json:"connected_devices"`
	Synonyms  naming.Table `json:"device_names,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// DeepCopy returns a copy of the state sharing no memory with s.
func (s State) DeepCopy() State {
	out := s
	if s.RoomName != nil {
		room := *s.RoomName
		out.RoomName = &room
	}
	out.Available = append([]Device(nil), s.Available...)
	out.Paired = append([]string(nil), s.Paired...)
	out.Connected = append([]string(nil), s.Connected...)
	if s.Synonyms != nil {
		out.Synonyms = make(naming.Table, len(s.Synonyms))
		for i, e := range s.Synonyms {
			out.Synonyms[i] = naming.Entry{Raw: e.Raw, Forms: append([]string(nil), e.Forms...)}
		}
	}
	return out
}

// Patch is a partial update for UpsertSite. Nil fields are left untouched;
// a non-nil empty slice clears the field. ClearRoom drops the room name and
// releases its claim when RoomName is nil.
type Patch struct {
	RoomName  *string
	ClearRoom bool
	Available []Device
	Paired    []string
	Connected []string
	Synonyms  naming.Table
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
