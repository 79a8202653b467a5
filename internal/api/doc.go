// Package api implements the read-only HTTP API and WebSocket event stream of
// the Bluetooth skill.
//
// # Endpoints
//
//	GET /api/v1/health           component health, 503 when one is failing
//	GET /api/v1/metrics          runtime, cache and connection statistics
//	GET /api/v1/sites            cached state of every site
//	GET /api/v1/sites/{siteID}   one site
//	GET /api/v1/pending          outstanding correlation entries (?site_id=)
//	GET /api/v1/audit            command audit (?site_id=&kind=&outcome=&limit=&offset=)
//	GET /api/v1/ws               WebSocket event stream
//
// WebSocket clients send {"type":"subscribe","payload":{"channels":[...]}}
// for "notification" and "site.updated". The Hub is also the skill's
// Notifier, so every spoken notification is mirrored to subscribers.
//
// Nothing here mutates state: commands only come in over the voice bus.
//
// The server follows the same lifecycle as the other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
