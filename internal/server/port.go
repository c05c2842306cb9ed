// Package server serves materialized bundles over loopback HTTP. Each
// bundle maps to a deterministic port so relaunching an app lands on
// the same URL, and a per-port registry serializes start/stop so two
// bundles never fight over a listener.
package server

import "hash/fnv"

// PortFor derives the serving port for a bundle id. The same id always
// maps to the same port within [base, base+portRange).
func PortFor(bundleID string, base, portRange int) int {
	h := fnv.New32a()
	h.Write([]byte(bundleID))
	return base + int(h.Sum32()%uint32(portRange))
}
