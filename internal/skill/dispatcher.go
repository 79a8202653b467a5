package skill

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/correlation"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/infrastructure/mqtt"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/protocol"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/site"
)

const (
	// DefaultInjectionEntity is the ASR entity discovered names are added to.
	DefaultInjectionEntity = "audio_devices"

	// recordTimeout bounds a single outcome write.
	recordTimeout = 2 * time.Second
)

// deviceActions maps device command kinds to their bus actions.
var deviceActions = map[correlation.Kind]string{
	correlation.KindConnect:    mqtt.ActionDeviceConnect,
	correlation.KindDisconnect: mqtt.ActionDeviceDisconnect,
	correlation.KindRemove:     mqtt.ActionDeviceRemove,
}

// DeviceKind returns the command kind answered on a device action topic.
func DeviceKind(action string) (correlation.Kind, bool) {
	for kind, a := range deviceActions {
		if a == action {
			return kind, true
		}
	}
	return "", false
}

// DispatcherOptions holds the collaborators of a Dispatcher.
type DispatcherOptions struct {
	// Store, Tracker and Publisher are required.
	Store     *site.Store
	Tracker   *correlation.Tracker
	Publisher Publisher

	// QoS is used for every publish.
	QoS byte

	// Topics supplies the request topic layout.
	Topics mqtt.Topics

	// InjectionEntity defaults to DefaultInjectionEntity.
	InjectionEntity string

	// Recorder, Telemetry and Notifier are optional.
	Recorder  OutcomeRecorder
	Telemetry Telemetry
	Notifier  Notifier

	Logger Logger
}

// Dispatcher publishes site-scoped commands and turns their correlated
// results into spoken outcomes and store mutations.
//
// Every command registers a pending request before it is published, and
// every result consumes one; a result nothing waits for is stale and is
// dropped without speaking.
//
// All public methods are thread-safe.
type Dispatcher struct {
	store     *site.Store
	tracker   *correlation.Tracker
	bus       *bus
	entity    string
	recorder  OutcomeRecorder
	telemetry Telemetry
	notifier  Notifier
	logger    Logger
	now       func() time.Time
}

// NewDispatcher creates a dispatcher and registers it for scan expiry on
// the tracker.
func NewDispatcher(opts DispatcherOptions) (*Dispatcher, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("site store is required")
	}
	if opts.Tracker == nil {
		return nil, fmt.Errorf("request tracker is required")
	}
	if opts.Publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}

	d := &Dispatcher{
		store:     opts.Store,
		tracker:   opts.Tracker,
		bus:       &bus{pub: opts.Publisher, qos: opts.QoS, topics: opts.Topics},
		entity:    opts.InjectionEntity,
		recorder:  opts.Recorder,
		telemetry: opts.Telemetry,
		notifier:  opts.Notifier,
		logger:    opts.Logger,
		now:       time.Now,
	}
	if d.entity == "" {
		d.entity = DefaultInjectionEntity
	}
	if d.logger == nil {
		d.logger = noopLogger{}
	}
	opts.Tracker.SetOnExpire(d.requestExpired)
	return d, nil
}

// SetClock replaces the time source used for outcome timestamps.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// DispatchScan starts a scan on siteID and ends the session with the scan
// announcement. A scan already pending for the site is superseded.
func (d *Dispatcher) DispatchScan(siteID, sessionID string) error {
	d.supersede(siteID, correlation.KindScan)
	token := d.tracker.Register(siteID, correlation.KindScan, &sessionID)

	if err := d.bus.request(siteID, mqtt.ActionDevicesDiscover, nil); err != nil {
		d.tracker.Resolve(token)
		d.endSession(sessionID, phraseError)
		d.record(Outcome{
			SiteID: siteID, Kind: correlation.KindScan, Outcome: OutcomeFailed,
			SessionID: sessionID, Token: token, Details: err.Error(),
		})
		return fmt.Errorf("%w: scan request to %s: %w", ErrCommandFailed, siteID, err)
	}

	d.endSession(sessionID, phraseScanStarted)
	d.record(Outcome{
		SiteID: siteID, Kind: correlation.KindScan, Outcome: OutcomeDispatched,
		SessionID: sessionID, Token: token,
	})
	return nil
}

// OnScanAck handles the satellite's acknowledgement of a scan request.
// A refusal drops the pending scan and says so; an acceptance leaves it
// waiting for the discovered devices.
func (d *Dispatcher) OnScanAck(siteID string, ok bool) error {
	if ok {
		if d.tracker.Outstanding(siteID, correlation.KindScan) == 0 {
			return d.stale(siteID, correlation.KindScan, "")
		}
		d.logger.Debug("scan started", "site_id", siteID)
		return nil
	}

	req, found := d.tracker.ResolveBySite(siteID, correlation.KindScan)
	if !found {
		return d.stale(siteID, correlation.KindScan, "")
	}

	d.notify(siteID, phraseScanFailed)
	d.record(Outcome{
		SiteID: siteID, Kind: correlation.KindScan, Outcome: OutcomeRejected,
		SessionID: deref(req.SessionID), Token: req.Token,
		Details: phraseScanFailed, Elapsed: d.elapsed(req),
	})
	return nil
}

// DispatchDiscovered applies a finished scan. The discoverable devices are
// replaced even when the result is stale; only a pending scan leads to the
// vocabulary injection or the "nothing found" notice.
func (d *Dispatcher) DispatchDiscovered(siteID string, devices []site.Device) error {
	req, pending := d.tracker.ResolveBySite(siteID, correlation.KindScan)

	found := d.store.SetDiscoverable(siteID, devices)
	if d.telemetry != nil {
		d.telemetry.WriteDiscovery(siteID, len(found))
	}
	if !pending {
		return d.stale(siteID, correlation.KindScan, "")
	}

	outcome := Outcome{
		SiteID: siteID, Kind: correlation.KindScan, Outcome: OutcomeSucceeded,
		SessionID: deref(req.SessionID), Token: req.Token,
		Details: strconv.Itoa(len(found)) + " devices", Elapsed: d.elapsed(req),
	}

	if len(found) == 0 {
		d.notify(siteID, phraseNothingDiscovered)
		d.record(outcome)
		return nil
	}

	names := d.store.SpokenNames(siteID, found)
	token := d.tracker.Register(siteID, correlation.KindInject, req.SessionID)
	if err := d.bus.inject(token, d.entity, names); err != nil {
		d.tracker.Resolve(token)
		d.notify(siteID, phraseError)
		outcome.Outcome = OutcomeFailed
		outcome.Details = err.Error()
		d.record(outcome)
		return fmt.Errorf("%w: injection for %s: %w", ErrCommandFailed, siteID, err)
	}

	d.record(outcome)
	return nil
}

// OnInjectionComplete announces the discovered devices once their names
// are part of the vocabulary.
func (d *Dispatcher) OnInjectionComplete(requestID string) error {
	req, ok := d.tracker.Resolve(requestID)
	if !ok {
		d.logger.Debug("injection complete for unknown request", "request_id", requestID)
		return fmt.Errorf("%w: injection %s", correlation.ErrStaleCorrelation, requestID)
	}

	names := d.store.SpokenNames(req.SiteID, d.store.DiscoverableDevices(req.SiteID))
	text := phraseNothingDiscovered
	if len(names) > 0 {
		text = phraseDiscoveredNotice(names)
	}
	d.notify(req.SiteID, text)
	d.record(Outcome{
		SiteID: req.SiteID, Kind: correlation.KindInject, Outcome: OutcomeSucceeded,
		SessionID: deref(req.SessionID), Token: req.Token,
		Details: text, Elapsed: d.elapsed(req),
	})
	return nil
}

// DispatchDeviceCommand sends a connect, disconnect or remove for addr to
// siteID and ends the session silently. A command of the same kind already
// pending for the site is superseded.
func (d *Dispatcher) DispatchDeviceCommand(kind correlation.Kind, siteID, addr, sessionID string) error {
	action, ok := deviceActions[kind]
	if !ok {
		return fmt.Errorf("unsupported device command %q", kind)
	}
	name, _ := d.store.NameFromAddress(siteID, addr)

	d.supersede(siteID, kind)
	token := d.tracker.RegisterDevice(siteID, kind, addr, &sessionID)

	outcome := Outcome{
		SiteID: siteID, Kind: kind, Outcome: OutcomeDispatched,
		Address: addr, DeviceName: name, SessionID: sessionID, Token: token,
	}

	if err := d.bus.request(siteID, action, protocol.DeviceRequest{Addr: addr}); err != nil {
		d.tracker.Resolve(token)
		d.endSession(sessionID, phraseError)
		outcome.Outcome = OutcomeFailed
		outcome.Details = err.Error()
		d.record(outcome)
		return fmt.Errorf("%w: %s request to %s: %w", ErrCommandFailed, kind, siteID, err)
	}

	d.endSession(sessionID, "")
	d.record(outcome)
	return nil
}

// OnDeviceCommandResult applies a satellite's connect, disconnect or remove
// result and speaks it. A result nothing waits for, including one for a
// device other than the pending command's, is dropped.
func (d *Dispatcher) OnDeviceCommandResult(kind correlation.Kind, siteID, addr string, ok bool) error {
	req, found := d.tracker.ResolveDevice(siteID, kind, addr)
	if !found {
		return d.stale(siteID, kind, addr)
	}

	name, _ := d.store.NameFromAddress(siteID, addr)

	if ok {
		var err error
		switch kind {
		case correlation.KindConnect:
			err = d.store.MarkConnected(siteID, addr)
		case correlation.KindDisconnect:
			err = d.store.MarkDisconnected(siteID, addr)
		case correlation.KindRemove:
			err = d.store.Forget(siteID, addr)
		}
		if err != nil {
			d.logger.Warn("device result for device missing from cache",
				"site_id", siteID, "kind", kind, "address", addr, "error", err)
		}
	}

	text := phraseDeviceResult(kind, name, ok)
	d.notify(siteID, text)

	outcome := Outcome{
		SiteID: siteID, Kind: kind, Outcome: OutcomeSucceeded,
		Address: addr, DeviceName: name, SessionID: deref(req.SessionID), Token: req.Token,
		Details: text, Elapsed: d.elapsed(req),
	}
	if !ok {
		outcome.Outcome = OutcomeFailed
		d.logger.Info("device command failed", "site_id", siteID, "kind", kind, "address", addr,
			"error", ErrCommandFailed)
	}
	d.record(outcome)
	return nil
}

// ApplySiteInfo caches a satellite's device report.
func (d *Dispatcher) ApplySiteInfo(info protocol.SiteInfo) error {
	if err := info.Validate(); err != nil {
		return fmt.Errorf("site info: %w", err)
	}
	d.store.UpsertSite(info.SiteID, info.Patch())

	if d.telemetry != nil {
		if st, ok := d.store.Site(info.SiteID); ok {
			d.telemetry.WriteSiteDevices(st.SiteID, len(st.Available), len(st.Paired), len(st.Connected))
		}
	}
	d.logger.Debug("site info applied", "site_id", info.SiteID, "devices", len(info.AvailableDevices))
	return nil
}

// RequestSiteInfo asks one site for a fresh device report.
func (d *Dispatcher) RequestSiteInfo(siteID string) error {
	if err := d.bus.request(siteID, mqtt.ActionSiteInfo, nil); err != nil {
		return fmt.Errorf("requesting site info from %s: %w", siteID, err)
	}
	return nil
}

// RefreshAllSites asks every site for a fresh device report.
func (d *Dispatcher) RefreshAllSites() error {
	if err := d.bus.broadcast(mqtt.ActionSiteInfo); err != nil {
		return fmt.Errorf("requesting site info from all sites: %w", err)
	}
	return nil
}

// requestExpired records a scan or injection whose answer never arrived.
// Nothing is spoken.
func (d *Dispatcher) requestExpired(req correlation.PendingRequest) {
	d.record(Outcome{
		SiteID: req.SiteID, Kind: req.Kind, Outcome: OutcomeExpired,
		SessionID: deref(req.SessionID), Token: req.Token, Elapsed: d.elapsed(req),
	})
}

func (d *Dispatcher) supersede(siteID string, kind correlation.Kind) {
	for _, old := range d.tracker.Supersede(siteID, kind) {
		d.logger.Info("superseding pending request", "site_id", siteID, "kind", kind, "token", old.Token)
	}
}

func (d *Dispatcher) stale(siteID string, kind correlation.Kind, addr string) error {
	d.logger.Info("dropping stale result", "site_id", siteID, "kind", kind, "address", addr)
	return fmt.Errorf("%w: %s result from %s", correlation.ErrStaleCorrelation, kind, siteID)
}

func (d *Dispatcher) endSession(sessionID, text string) {
	if err := d.bus.endSession(sessionID, text); err != nil {
		d.logger.Error("ending session failed", "session_id", sessionID, "error", err)
	}
}

func (d *Dispatcher) notify(siteID, text string) {
	if err := d.bus.notify(siteID, text); err != nil {
		d.logger.Error("publishing notification failed", "site_id", siteID, "error", err)
	}
	if d.notifier != nil {
		d.notifier.Notify(siteID, text)
	}
}

func (d *Dispatcher) record(o Outcome) {
	if o.At.IsZero() {
		o.At = d.now()
	}
	if d.telemetry != nil && o.Outcome != OutcomeDispatched {
		d.telemetry.WriteCommand(o.SiteID, string(o.Kind), o.Outcome, o.Elapsed)
	}
	if d.recorder == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := d.recorder.RecordOutcome(ctx, o); err != nil {
		d.logger.Warn("recording command outcome failed",
			"site_id", o.SiteID, "kind", o.Kind, "outcome", o.Outcome, "error", err)
	}
}

func (d *Dispatcher) elapsed(req correlation.PendingRequest) time.Duration {
	if e := d.now().Sub(req.CreatedAt); e > 0 {
		return e
	}
	return 0
}

// IsStale reports whether err marks a dropped stale result.
func IsStale(err error) bool {
	return errors.Is(err, correlation.ErrStaleCorrelation)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
