package main

import (
	"github.com/vision-project/vision-node/internal/config"
	"github.com/vision-project/vision-node/p2p/peerstore"
)

// peerbookScope resolves the isolation key for this node's Peer Store
// (spec.md §4.9): cfg.PeerbookScope already carries VISION_PEERBOOK_SCOPE
// when the operator set one, so only the bootstrap-prefix fallback needs
// deriving here.
func peerbookScope(cfg *config.Config) string {
	if cfg.PeerbookScope != "" {
		return cfg.PeerbookScope
	}
	return peerstore.Scope(cfg.Static.BootstrapPrefix)
}
