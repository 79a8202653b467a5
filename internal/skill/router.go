package skill

import (
	"errors"

	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/correlation"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/site"
)

// Intent names without the assistant prefix.
const (
	IntentDevicesScan       = "BluetoothDevicesScan"
	IntentDevicesPaired     = "BluetoothDevicesPaired"
	IntentDevicesConnected  = "BluetoothDevicesConnected"
	IntentDevicesDiscovered = "BluetoothDevicesDiscovered"
	IntentDeviceConnect     = "BluetoothDeviceConnect"
	IntentDeviceDisconnect  = "BluetoothDeviceDisconnect"
	IntentDeviceRemove      = "BluetoothDeviceRemove"
)

// Intents lists every intent the skill handles.
var Intents = []string{
	IntentDevicesScan,
	IntentDevicesPaired,
	IntentDevicesConnected,
	IntentDevicesDiscovered,
	IntentDeviceConnect,
	IntentDeviceDisconnect,
	IntentDeviceRemove,
}

var deviceIntents = map[string]correlation.Kind{
	IntentDeviceConnect:    correlation.KindConnect,
	IntentDeviceDisconnect: correlation.KindDisconnect,
	IntentDeviceRemove:     correlation.KindRemove,
}

// Terminal is how an intent was concluded.
type Terminal int

const (
	// TerminalDispatched means a command went to a site.
	TerminalDispatched Terminal = iota + 1

	// TerminalFailed means the session ended with an error response.
	TerminalFailed

	// TerminalAnswered means the session ended with an answer from the cache.
	TerminalAnswered
)

func (t Terminal) String() string {
	switch t {
	case TerminalDispatched:
		return "dispatched"
	case TerminalFailed:
		return "failed"
	case TerminalAnswered:
		return "answered"
	default:
		return "unknown"
	}
}

// Router maps an intent to a site and an operation. Every routed intent ends
// its session exactly once, either itself or through the Dispatcher.
type Router struct {
	store      *site.Store
	dispatcher *Dispatcher
	logger     Logger
}

// NewRouter creates a router that hands commands to dispatcher.
func NewRouter(store *site.Store, dispatcher *Dispatcher) *Router {
	return &Router{store: store, dispatcher: dispatcher, logger: noopLogger{}}
}

// SetLogger sets the logger for the router.
func (r *Router) SetLogger(logger Logger) {
	r.logger = logger
}

// Route handles one intent.
func (r *Router) Route(intent string, msg IntentMessage) Terminal {
	room := stringSlot(msg.Slots, slotRoom)

	siteID, err := r.store.ResolveSite(msg.SiteID, room)
	if err != nil {
		var notConfigured *site.RoomNotConfiguredError
		if errors.As(err, &notConfigured) {
			return r.fail(msg, phraseRoomNotConfigured(notConfigured.Room))
		}
		r.logger.Error("resolving site failed", "site_id", msg.SiteID, "error", err)
		return r.fail(msg, phraseError)
	}
	if !r.store.Has(siteID) {
		if room != nil {
			return r.fail(msg, phraseRoomNotConfigured(*room))
		}
		return r.fail(msg, phraseError)
	}

	switch intent {
	case IntentDevicesScan:
		if err := r.dispatcher.DispatchScan(siteID, msg.SessionID); err != nil {
			r.logger.Error("scan dispatch failed", "site_id", siteID, "error", err)
			return TerminalFailed
		}
		return TerminalDispatched

	case IntentDevicesPaired:
		names := r.store.SpokenNames(siteID, r.store.PairedDevices(siteID))
		return r.answer(msg, phrasePairedAnswer(names))

	case IntentDevicesConnected:
		names := r.store.SpokenNames(siteID, r.store.ConnectedDevices(siteID))
		return r.answer(msg, phraseConnectedAnswer(names))

	case IntentDevicesDiscovered:
		names := r.store.SpokenNames(siteID, r.store.DiscoverableDevices(siteID))
		return r.answer(msg, phraseDiscoveredAnswer(names))
	}

	kind, ok := deviceIntents[intent]
	if !ok {
		r.logger.Warn("unhandled intent", "intent", intent, "site_id", msg.SiteID)
		return r.fail(msg, phraseError)
	}
	return r.routeDevice(kind, siteID, msg)
}

func (r *Router) routeDevice(kind correlation.Kind, siteID string, msg IntentMessage) Terminal {
	name := stringSlot(msg.Slots, slotDeviceName)
	if name == nil {
		return r.unknownDevice(siteID, msg, "")
	}

	addr, err := r.store.AddressFromName(siteID, *name)
	if err != nil {
		return r.unknownDevice(siteID, msg, *name)
	}

	if err := r.dispatcher.DispatchDeviceCommand(kind, siteID, addr, msg.SessionID); err != nil {
		r.logger.Error("device command dispatch failed", "site_id", siteID, "kind", kind, "error", err)
		return TerminalFailed
	}
	return TerminalDispatched
}

// unknownDevice answers a device intent whose device is not in the cache
// and asks the site for a fresh report, so a retry can succeed.
func (r *Router) unknownDevice(siteID string, msg IntentMessage, name string) Terminal {
	r.logger.Info("unknown device", "site_id", siteID, "device_name", name)
	t := r.fail(msg, phraseUnknownDevice)
	if err := r.dispatcher.RequestSiteInfo(siteID); err != nil {
		r.logger.Error("site info request failed", "site_id", siteID, "error", err)
	}
	return t
}

func (r *Router) fail(msg IntentMessage, text string) Terminal {
	r.dispatcher.endSession(msg.SessionID, text)
	return TerminalFailed
}

func (r *Router) answer(msg IntentMessage, text string) Terminal {
	r.dispatcher.endSession(msg.SessionID, text)
	return TerminalAnswered
}
