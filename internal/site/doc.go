// Package site holds the per-site Bluetooth device cache.
//
// Every satellite (site) reports its adapter's devices over the bus. The
// Store keeps one independent snapshot per site, answers name and room
// lookups for the intent router, and applies confirmed command results.
//
// # Data model
//
//	available ⊇ paired ⊇ connected        (by address)
//	discoverable = available − paired     (scan result, replaced wholesale)
//
// # Rooms
//
// Room names resolve to sites through a global index. The literal "hier"
// and the requesting site's own room always mean the requesting site. When
// two sites claim the same room the first claim wins and the conflict is
// logged.
//
// # Thread Safety
//
// Store methods are safe for concurrent use. Sites are locked
// independently; the store-wide lock only covers the site map and room
// index.
package site
