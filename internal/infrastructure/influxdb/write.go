package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementCommand   = "bluetooth_command"
	MeasurementSite      = "bluetooth_site"
	MeasurementDiscovery = "bluetooth_discovery"
)

// WriteCommand records the outcome of a voice command round trip.
//
//	client.WriteCommand("kitchen", "connect", "success", 1200*time.Millisecond)
func (c *Client) WriteCommand(siteID, kind, outcome string, elapsed time.Duration) {
	c.write(commandPoint(siteID, kind, outcome, elapsed, c.now()))
}

// WriteSiteDevices records how many devices a site reports per state.
func (c *Client) WriteSiteDevices(siteID string, available, paired, connected int) {
	c.write(sitePoint(siteID, available, paired, connected, c.now()))
}

// WriteDiscovery records the number of unpaired devices a scan turned up.
func (c *Client) WriteDiscovery(siteID string, found int) {
	c.write(discoveryPoint(siteID, found, c.now()))
}

func (c *Client) write(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}

func commandPoint(siteID, kind, outcome string, elapsed time.Duration, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementCommand,
		map[string]string{
			"site_id": siteID,
			"kind":    kind,
			"outcome": outcome,
		},
		map[string]any{
			"count":      1,
			"elapsed_ms": elapsed.Milliseconds(),
		},
		at,
	)
}

func sitePoint(siteID string, available, paired, connected int, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementSite,
		map[string]string{"site_id": siteID},
		map[string]any{
			"available": available,
			"paired":    paired,
			"connected": connected,
		},
		at,
	)
}

func discoveryPoint(siteID string, found int, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementDiscovery,
		map[string]string{"site_id": siteID},
		map[string]any{"found": found},
		at,
	)
}
