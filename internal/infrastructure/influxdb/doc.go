// Package influxdb records Bluetooth skill telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Three measurements
// are written:
//   - bluetooth_command: one point per finished voice command, tagged by
//     site, kind and outcome
//   - bluetooth_site: device counts whenever a site reports its state
//   - bluetooth_discovery: unpaired devices found by a scan
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//	client.WriteCommand("kitchen", "connect", "success", elapsed)
//
// Writes are batched and non-blocking; errors arrive through SetOnError.
package influxdb
