package wire

import "github.com/vision-project/vision-node/internal/chaintypes"

// Handshake is the first message exchanged on every new connection
// (spec.md §4.11). Field order is fixed and must match on both the wire and
// the decode side: protocol_version, chain_id, genesis_hash, node_nonce,
// chain_height, tip_height?, node_version, network_id, node_build, node_tag,
// admission_ticket, passport?, vision_address, node_id, public_key, role,
// ebid, is_guardian, is_guardian_candidate, http_api_port?, advertised_ip?,
// advertised_port?, bootstrap_checkpoint_height, bootstrap_checkpoint_hash,
// bootstrap_prefix, seed_peers[].
type Handshake struct {
	ProtocolVersion uint32
	ChainID         string
	GenesisHash     chaintypes.Hash
	NodeNonce       uint64
	ChainHeight     uint64
	TipHeight       *uint64

	NodeVersion uint32
	NetworkID   string
	NodeBuild   string

	NodeTag          string
	AdmissionTicket  string
	Passport         []byte // opaque; empty when absent

	VisionAddress string
	NodeID        string
	PublicKey     []byte
	Role          string

	EBID                 string
	IsGuardian           bool
	IsGuardianCandidate  bool
	HTTPAPIPort          *uint16

	AdvertisedIP   string // empty when absent
	AdvertisedPort *uint16

	BootstrapCheckpointHeight uint64
	BootstrapCheckpointHash   chaintypes.Hash
	BootstrapPrefix           string

	SeedPeers []string
}

func (h *Handshake) encode() []byte {
	e := &encoder{}
	e.u32(h.ProtocolVersion)
	e.str(h.ChainID)
	e.hash(h.GenesisHash)
	e.u64(h.NodeNonce)
	e.u64(h.ChainHeight)
	encodeOptionalU64(e, h.TipHeight)

	e.u32(h.NodeVersion)
	e.str(h.NetworkID)
	e.str(h.NodeBuild)

	e.str(h.NodeTag)
	e.str(h.AdmissionTicket)
	e.bytesField(h.Passport)

	e.str(h.VisionAddress)
	e.str(h.NodeID)
	e.bytesField(h.PublicKey)
	e.str(h.Role)

	e.str(h.EBID)
	e.bool(h.IsGuardian)
	e.bool(h.IsGuardianCandidate)
	encodeOptionalU16(e, h.HTTPAPIPort)

	e.str(h.AdvertisedIP)
	encodeOptionalU16(e, h.AdvertisedPort)

	e.u64(h.BootstrapCheckpointHeight)
	e.hash(h.BootstrapCheckpointHash)
	e.str(h.BootstrapPrefix)

	e.u32(uint32(len(h.SeedPeers)))
	for _, s := range h.SeedPeers {
		e.str(s)
	}
	return e.bytes()
}

func decodeHandshake(payload []byte) (*Handshake, error) {
	d := newDecoder(payload)
	h := &Handshake{}

	var err error
	if h.ProtocolVersion, err = d.u32(); err != nil {
		return nil, err
	}
	if h.ChainID, err = d.str(); err != nil {
		return nil, err
	}
	if h.GenesisHash, err = d.hash(); err != nil {
		return nil, err
	}
	if h.NodeNonce, err = d.u64(); err != nil {
		return nil, err
	}
	if h.ChainHeight, err = d.u64(); err != nil {
		return nil, err
	}
	if h.TipHeight, err = decodeOptionalU64(d); err != nil {
		return nil, err
	}

	if h.NodeVersion, err = d.u32(); err != nil {
		return nil, err
	}
	if h.NetworkID, err = d.str(); err != nil {
		return nil, err
	}
	if h.NodeBuild, err = d.str(); err != nil {
		return nil, err
	}

	if h.NodeTag, err = d.str(); err != nil {
		return nil, err
	}
	if h.AdmissionTicket, err = d.str(); err != nil {
		return nil, err
	}
	if h.Passport, err = d.bytesField(); err != nil {
		return nil, err
	}

	if h.VisionAddress, err = d.str(); err != nil {
		return nil, err
	}
	if h.NodeID, err = d.str(); err != nil {
		return nil, err
	}
	if h.PublicKey, err = d.bytesField(); err != nil {
		return nil, err
	}
	if h.Role, err = d.str(); err != nil {
		return nil, err
	}

	if h.EBID, err = d.str(); err != nil {
		return nil, err
	}
	if h.IsGuardian, err = d.boolean(); err != nil {
		return nil, err
	}
	if h.IsGuardianCandidate, err = d.boolean(); err != nil {
		return nil, err
	}
	if h.HTTPAPIPort, err = decodeOptionalU16(d); err != nil {
		return nil, err
	}

	if h.AdvertisedIP, err = d.str(); err != nil {
		return nil, err
	}
	if h.AdvertisedPort, err = decodeOptionalU16(d); err != nil {
		return nil, err
	}

	if h.BootstrapCheckpointHeight, err = d.u64(); err != nil {
		return nil, err
	}
	if h.BootstrapCheckpointHash, err = d.hash(); err != nil {
		return nil, err
	}
	if h.BootstrapPrefix, err = d.str(); err != nil {
		return nil, err
	}

	n, err := d.u32()
	if err != nil {
		return nil, err
	}
	if n > maxSliceLen {
		return nil, errTooLarge
	}
	if n > 0 {
		h.SeedPeers = make([]string, n)
	}
	for i := range h.SeedPeers {
		if h.SeedPeers[i], err = d.str(); err != nil {
			return nil, err
		}
	}

	if err := d.finish(); err != nil {
		return nil, err
	}
	return h, nil
}

func encodeOptionalU64(e *encoder, v *uint64) {
	if v == nil {
		e.bool(false)
		return
	}
	e.bool(true)
	e.u64(*v)
}

func decodeOptionalU64(d *decoder) (*uint64, error) {
	present, err := d.boolean()
	if err != nil || !present {
		return nil, err
	}
	v, err := d.u64()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func encodeOptionalU16(e *encoder, v *uint16) {
	if v == nil {
		e.bool(false)
		return
	}
	e.bool(true)
	e.u16(*v)
}

func decodeOptionalU16(d *decoder) (*uint16, error) {
	present, err := d.boolean()
	if err != nil || !present {
		return nil, err
	}
	v, err := d.u16()
	if err != nil {
		return nil, err
	}
	return &v, nil
}
