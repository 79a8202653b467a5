package skill

import (
	"encoding/json"
	"fmt"
)

// Slot names read by the router.
const (
	slotRoom       = "room"
	slotDeviceName = "device_name"
)

// Slot value kinds.
const (
	kindCustom       = "Custom"
	kindInstantTime  = "InstantTime"
	kindTimeInterval = "TimeInterval"
	kindDuration     = "Duration"
)

type rawSlot struct {
	SlotName string          `json:"slotName"`
	Value    json.RawMessage `json:"value"`
}

type slotValue struct {
	Kind  string          `json:"kind"`
	Value json.RawMessage `json:"value"`
}

// ExtractSlots flattens the slots of an intent payload into a map keyed by
// slot name.
//
// Custom slots map to their value; InstantTime, TimeInterval and Duration
// slots keep the whole value object; other kinds are skipped. If any slot is
// malformed the result is an empty map and the error wraps
// ErrMalformedSlotData.
func ExtractSlots(payload []byte) (map[string]any, error) {
	var msg struct {
		Slots []rawSlot `json:"slots"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return map[string]any{}, fmt.Errorf("%w: %w", ErrMalformedSlotData, err)
	}

	out := make(map[string]any, len(msg.Slots))
	for _, s := range msg.Slots {
		var v slotValue
		if err := json.Unmarshal(s.Value, &v); err != nil {
			return map[string]any{}, fmt.Errorf("%w: slot %q: %w", ErrMalformedSlotData, s.SlotName, err)
		}

		switch v.Kind {
		case kindInstantTime, kindTimeInterval, kindDuration:
			var obj map[string]any
			if err := json.Unmarshal(s.Value, &obj); err != nil {
				return map[string]any{}, fmt.Errorf("%w: slot %q: %w", ErrMalformedSlotData, s.SlotName, err)
			}
			out[s.SlotName] = obj
		case kindCustom:
			var val any
			if err := json.Unmarshal(v.Value, &val); err != nil {
				return map[string]any{}, fmt.Errorf("%w: slot %q: %w", ErrMalformedSlotData, s.SlotName, err)
			}
			out[s.SlotName] = val
		}
	}
	return out, nil
}

// stringSlot returns a string slot, or nil if it is missing or not a string.
func stringSlot(slots map[string]any, name string) *string {
	s, ok := slots[name].(string)
	if !ok {
		return nil
	}
	return &s
}
