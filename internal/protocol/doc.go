// Package protocol defines the JSON messages of the bluetooth/request and
// bluetooth/answer topics shared by the skill and the site satellites, and
// their conversion to and from site state.
//
// Device lists travel as {"name", "mac_address"} records. A site report
// carries the available, paired and connected lists plus the satellite's
// synonym table:
//
//	{
//	  "site_id": "kitchen",
//	  "room_name": "Küche",
//	  "available_devices": [{"name": "JBL-X", "mac_address": "AA:BB:CC:DD:EE:01"}],
//	  "paired_devices": [],
//	  "connected_devices": [],
//	  "device_names": {"JBL-X": ["speaker", "box"]}
//	}
package protocol
