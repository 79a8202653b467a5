package satellite

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/bluez"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/infrastructure/config"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/infrastructure/mqtt"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/naming"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/protocol"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/tasks"
)

// siteInfoTimeout bounds the device listing behind a site info answer.
const siteInfoTimeout = 5 * time.Second

// Adapter is the Bluetooth hardware the agent drives.
// *bluez.Adapter satisfies it.
type Adapter interface {
	Devices(ctx context.Context) ([]bluez.Device, error)
	Discover(ctx context.Context, d time.Duration) ([]bluez.Device, error)
	Connect(ctx context.Context, address string) error
	Disconnect(ctx context.Context, address string) error
	Remove(ctx context.Context, address string) error
}

// MQTTClient is the bus connection the agent needs.
// *mqtt.Client satisfies it.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error
	IsConnected() bool
}

// Logger defines the logging interface used by the Agent.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options holds configuration for creating an Agent.
type Options struct {
	Config config.SatelliteConfig

	// QoS is used for subscriptions and publishes.
	QoS byte

	// QueueSize bounds the inbound request queue.
	QueueSize int

	MQTT    MQTTClient
	Adapter Adapter

	// Tasks runs scans and commands. A private registry is used when nil.
	Tasks *tasks.Registry

	Logger Logger
}

// Agent answers the skill's requests for one site.
type Agent struct {
	siteID         string
	roomName       *string
	deviceNames    naming.Table
	scanDuration   time.Duration
	commandTimeout time.Duration

	mqtt    MQTTClient
	qos     byte
	topics  mqtt.Topics
	adapter Adapter
	tasks   *tasks.Registry
	inbox   *mqtt.Inbox
	logger  Logger

	wg       sync.WaitGroup
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// New creates an agent. Call Start to subscribe.
func New(opts Options) (*Agent, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("adapter is required")
	}
	if opts.Config.SiteID == "" {
		return nil, fmt.Errorf("site ID is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	registry := opts.Tasks
	if registry == nil {
		registry = tasks.NewRegistry()
		registry.SetLogger(logger)
	}

	var room *string
	if opts.Config.RoomName != "" {
		r := opts.Config.RoomName
		room = &r
	}
	names := opts.Config.DeviceNames
	if names == nil {
		names = naming.Table{}
	}

	inbox := mqtt.NewInbox(opts.QueueSize)
	inbox.SetLogger(logger)

	return &Agent{
		siteID:         opts.Config.SiteID,
		roomName:       room,
		deviceNames:    names,
		scanDuration:   time.Duration(opts.Config.ScanDuration) * time.Second,
		commandTimeout: time.Duration(opts.Config.CommandTimeout) * time.Second,
		mqtt:           opts.MQTT,
		qos:            opts.QoS,
		adapter:        opts.Adapter,
		tasks:          registry,
		inbox:          inbox,
		logger:         logger,
	}, nil
}

// SiteID returns the site the agent serves.
func (a *Agent) SiteID() string {
	return a.siteID
}

// Start subscribes to this site's and the broadcast requests, starts the
// request worker and announces the site's state.
func (a *Agent) Start(ctx context.Context) error {
	for _, topic := range []string{a.topics.SiteRequests(a.siteID), a.topics.AllSitesRequests()} {
		if err := a.mqtt.Subscribe(topic, a.qos, a.inbox.Wrap(a.handleRequest)); err != nil {
			return fmt.Errorf("subscribe to %s: %w", topic, err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.inbox.Run(runCtx)
	}()

	a.logger.Info("satellite started", "site_id", a.siteID, "scan_duration", a.scanDuration.String())
	if err := a.PublishSiteInfo(runCtx); err != nil {
		a.logger.Warn("initial site info failed", "error", err)
	}
	return nil
}

// Stop cancels running tasks and stops request handling.
func (a *Agent) Stop() {
	a.stopOnce.Do(func() {
		if a.cancel != nil {
			a.cancel()
		}
		a.wg.Wait()
		a.tasks.Stop()
		a.logger.Info("satellite stopped", "site_id", a.siteID, "dropped_messages", a.inbox.Dropped())
	})
}

// PublishSiteInfo reads the adapter's devices and publishes a full report.
func (a *Agent) PublishSiteInfo(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, siteInfoTimeout)
	defer cancel()

	devices, err := a.adapter.Devices(ctx)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	return a.publishJSON(a.topics.Answer(mqtt.ActionSiteInfo), a.siteInfo(devices))
}

// siteInfo builds the report for the given adapter devices.
func (a *Agent) siteInfo(devices []bluez.Device) protocol.SiteInfo {
	info := protocol.SiteInfo{
		SiteID:           a.siteID,
		RoomName:         a.roomName,
		AvailableDevices: make([]protocol.DeviceRecord, 0, len(devices)),
		PairedDevices:    []protocol.DeviceRecord{},
		ConnectedDevices: []protocol.DeviceRecord{},
		DeviceNames:      a.deviceNames,
	}
	for _, d := range devices {
		rec := protocol.DeviceRecord{Name: d.Name, Address: d.Address}
		info.AvailableDevices = append(info.AvailableDevices, rec)
		if d.Paired {
			info.PairedDevices = append(info.PairedDevices, rec)
			if d.Connected {
				info.ConnectedDevices = append(info.ConnectedDevices, rec)
			}
		}
	}
	return info
}

func (a *Agent) publishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}
	if err := a.mqtt.Publish(topic, payload, a.qos, false); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}
