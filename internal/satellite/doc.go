// Package satellite is the per-site agent that owns a Bluetooth adapter and
// answers the skill's requests over MQTT.
//
// The agent listens on bluetooth/request/oneSite/{siteID}/# and
// bluetooth/request/allSites/#. Scans and device commands run as supervised
// tasks keyed by site and action, so a new scan cancels a running one and
// a slow connect never blocks message handling. After every state-changing
// command the agent republishes its site info so the skill's cache follows
// the adapter.
package satellite
