package server

import (
	"fmt"

	"github.com/vision-project/vision-node/p2p/wire"
)

// MinProtocolVersion is the lowest peer protocol_version this node accepts
// (spec.md §4.11 "protocol_version ≥ min").
const MinProtocolVersion = wire.Version

// localHandshake builds the Handshake this node sends on every new
// connection, stamped with a fresh anti-replay nonce.
func (s *Server) localHandshake(chainHeight uint64) *wire.Handshake {
	return &wire.Handshake{
		ProtocolVersion: uint32(wire.Version),
		ChainID:         s.cfg.Static.ChainID,
		GenesisHash:     s.genesisHash,
		NodeNonce:       wire.NewNodeNonce(),
		ChainHeight:     chainHeight,

		NodeVersion: 1,
		NetworkID:   s.cfg.Static.ChainID,
		NodeBuild:   nodeBuild,

		NodeTag:       s.identity.NodeTag,
		VisionAddress: s.identity.VisionAddress(),
		NodeID:        s.identity.NodeID,
		PublicKey:     s.identity.PublicKey,
		Role:          string(s.role),

		AdvertisedIP:   s.advertisedIP,
		AdvertisedPort: s.advertisedPort,

		BootstrapCheckpointHeight: s.checkpointHeight,
		BootstrapCheckpointHash:   s.checkpointHash,
		BootstrapPrefix:           s.cfg.Static.BootstrapPrefix,

		SeedPeers: s.cfg.Static.SeedPeers,
	}
}

// nodeBuild identifies this implementation in handshake diagnostics.
const nodeBuild = "vision-node"

// checkCompatible applies spec.md §4.11's compatibility filter: chain_id,
// genesis_hash and bootstrap_prefix must match, and the peer's
// protocol_version must be at least MinProtocolVersion.
func (s *Server) checkCompatible(h *wire.Handshake) error {
	if h.ProtocolVersion < uint32(MinProtocolVersion) {
		return fmt.Errorf("server: peer protocol_version %d below minimum %d", h.ProtocolVersion, MinProtocolVersion)
	}
	if h.ChainID != s.cfg.Static.ChainID {
		return fmt.Errorf("server: chain_id mismatch: peer %q, local %q", h.ChainID, s.cfg.Static.ChainID)
	}
	if h.GenesisHash != s.genesisHash {
		return fmt.Errorf("server: genesis_hash mismatch: peer %s, local %s", h.GenesisHash, s.genesisHash)
	}
	if h.BootstrapPrefix != s.cfg.Static.BootstrapPrefix {
		return fmt.Errorf("server: bootstrap_prefix mismatch: peer %q, local %q", h.BootstrapPrefix, s.cfg.Static.BootstrapPrefix)
	}
	return nil
}
