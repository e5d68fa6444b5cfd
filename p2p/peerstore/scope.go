package peerstore

import "os"

// scopeEnvVar isolates peer data across networks sharing a machine (spec.md
// §4.9 "Isolation").
const scopeEnvVar = "VISION_PEERBOOK_SCOPE"

const defaultScope = "default"

// Scope derives the key-space prefix for a Peer Store instance: the
// VISION_PEERBOOK_SCOPE environment variable when set, else the first 8
// characters of the network's bootstrap prefix, else "default".
func Scope(bootstrapPrefix string) string {
	if v := os.Getenv(scopeEnvVar); v != "" {
		return v
	}
	if len(bootstrapPrefix) >= 8 {
		return bootstrapPrefix[:8]
	}
	return defaultScope
}
