package satellite

import (
	"context"
	"fmt"

	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/bluez"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/infrastructure/mqtt"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/protocol"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/tasks"
)

// commandFunc is one device operation of the adapter.
type commandFunc func(ctx context.Context, address string) error

func (a *Agent) handleRequest(topic string, payload []byte) error {
	action, ok := a.topics.RequestAction(topic)
	if !ok {
		return fmt.Errorf("unexpected request topic %q", topic)
	}

	switch action {
	case mqtt.ActionSiteInfo:
		return a.PublishSiteInfo(context.Background())
	case mqtt.ActionDevicesDiscover:
		return a.startScan()
	}

	command, ok := a.command(action)
	if !ok {
		a.logger.Debug("ignoring request", "action", action)
		return nil
	}
	req, err := protocol.DecodeDeviceRequest(payload)
	if err != nil {
		return err
	}
	return a.startCommand(action, req.Addr, command)
}

func (a *Agent) command(action string) (commandFunc, bool) {
	switch action {
	case mqtt.ActionDeviceConnect:
		return a.adapter.Connect, true
	case mqtt.ActionDeviceDisconnect:
		return a.adapter.Disconnect, true
	case mqtt.ActionDeviceRemove:
		return a.adapter.Remove, true
	default:
		return nil, false
	}
}

// startScan acknowledges the request, then runs discovery as a task. A scan
// that fails after the acknowledgement is reported as a negative ack.
func (a *Agent) startScan() error {
	key := tasks.Key{SiteID: a.siteID, Kind: mqtt.ActionDevicesDiscover}
	ackTopic := a.topics.Answer(mqtt.ActionDevicesDiscover)
	if err := a.publishJSON(ackTopic, protocol.DiscoverAnswer{SiteID: a.siteID, Result: true}); err != nil {
		return err
	}

	err := a.tasks.Start(key, func(ctx context.Context, t *tasks.Task) {
		found, err := a.adapter.Discover(ctx, a.scanDuration)
		t.Commit(func() {
			if err != nil {
				a.logger.Warn("scan failed", "site_id", a.siteID, "error", err)
				a.publish(ackTopic, protocol.DiscoverAnswer{SiteID: a.siteID, Result: false})
				return
			}
			a.logger.Info("scan finished", "site_id", a.siteID, "found", len(found))
			a.publish(a.topics.Answer(mqtt.ActionDevicesDiscovered), protocol.DiscoveredAnswer{
				SiteID:              a.siteID,
				DiscoverableDevices: records(found),
			})
		})
	})
	if err != nil {
		a.publish(ackTopic, protocol.DiscoverAnswer{SiteID: a.siteID, Result: false})
		return fmt.Errorf("start scan: %w", err)
	}
	return nil
}

// startCommand runs a device command as a task, answers with its result and
// republishes the site info. A newer command of the same action supersedes
// a running one whatever its address; the superseded command answers
// nothing.
func (a *Agent) startCommand(action, address string, command commandFunc) error {
	answerTopic := a.topics.Answer(action)
	if err := bluez.ValidateAddress(address); err != nil {
		a.publish(answerTopic, protocol.DeviceAnswer{SiteID: a.siteID, Addr: address, Result: false})
		return err
	}

	key := tasks.Key{SiteID: a.siteID, Kind: action}
	err := a.tasks.Start(key, func(ctx context.Context, t *tasks.Task) {
		cmdCtx, cancel := context.WithTimeout(ctx, a.commandTimeout)
		err := command(cmdCtx, address)
		cancel()

		t.Commit(func() {
			if err != nil {
				a.logger.Warn("device command failed", "action", action, "address", address, "error", err)
			} else {
				a.logger.Info("device command succeeded", "action", action, "address", address)
			}
			a.publish(answerTopic, protocol.DeviceAnswer{SiteID: a.siteID, Addr: address, Result: err == nil})
			if err := a.PublishSiteInfo(ctx); err != nil {
				a.logger.Warn("site info after command failed", "error", err)
			}
		})
	})
	if err != nil {
		a.publish(answerTopic, protocol.DeviceAnswer{SiteID: a.siteID, Addr: address, Result: false})
		return fmt.Errorf("start %s: %w", action, err)
	}
	return nil
}

// publish sends v and logs failures; used where no caller can act on them.
func (a *Agent) publish(topic string, v any) {
	if err := a.publishJSON(topic, v); err != nil {
		a.logger.Error("publish failed", "topic", topic, "error", err)
	}
}

func records(devices []bluez.Device) []protocol.DeviceRecord {
	out := make([]protocol.DeviceRecord, len(devices))
	for i, d := range devices {
		out[i] = protocol.DeviceRecord{Name: d.Name, Address: d.Address}
	}
	return out
}
