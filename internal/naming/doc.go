// Package naming resolves Bluetooth device names between the raw names an
// adapter reports and the spoken synonyms users configure.
//
// A synonym table maps a raw name to one or more spoken forms, the first
// being the preferred one:
//
//	JBL-X:       speaker
//	WH-1000XM4:  [kopfhörer, sony]
//
// Resolution is first match wins in both directions. Tables are decoded from
// YAML (configuration) and JSON (site info messages) with key order kept.
package naming
