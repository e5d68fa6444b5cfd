package peerstore

import "github.com/ethereum/go-ethereum/rlp"

// storedPeer mirrors Peer field-for-field; kept separate the way
// core/chainstore/codec.go keeps storedX types separate from their
// chaintypes counterparts, so the on-disk shape can evolve independently of
// the in-memory API type.
type storedPeer struct {
	NodeID        string
	NodeTag       string
	PublicKey     []byte
	VisionAddress string

	LastIP   string
	LastPort uint16
	Role     string

	HealthScore   int64
	LastSuccessTS uint64
	LastFailureTS uint64
	FailCount     uint64
	SuccessCount  uint64

	Trusted bool
	IsSeed  bool

	FirstSeenTS uint64
}

func toStoredPeer(p *Peer) storedPeer {
	return storedPeer{
		NodeID:        p.NodeID,
		NodeTag:       p.NodeTag,
		PublicKey:     p.PublicKey,
		VisionAddress: p.VisionAddress,
		LastIP:        p.LastIP,
		LastPort:      p.LastPort,
		Role:          string(p.Role),
		HealthScore:   p.HealthScore,
		LastSuccessTS: p.LastSuccessTS,
		LastFailureTS: p.LastFailureTS,
		FailCount:     p.FailCount,
		SuccessCount:  p.SuccessCount,
		Trusted:       p.Trusted,
		IsSeed:        p.IsSeed,
		FirstSeenTS:   p.FirstSeenTS,
	}
}

func (sp storedPeer) toPeer() *Peer {
	return &Peer{
		NodeID:        sp.NodeID,
		NodeTag:       sp.NodeTag,
		PublicKey:     sp.PublicKey,
		VisionAddress: sp.VisionAddress,
		LastIP:        sp.LastIP,
		LastPort:      sp.LastPort,
		Role:          Role(sp.Role),
		HealthScore:   sp.HealthScore,
		LastSuccessTS: sp.LastSuccessTS,
		LastFailureTS: sp.LastFailureTS,
		FailCount:     sp.FailCount,
		SuccessCount:  sp.SuccessCount,
		Trusted:       sp.Trusted,
		IsSeed:        sp.IsSeed,
		FirstSeenTS:   sp.FirstSeenTS,
	}
}

func encodePeer(p *Peer) ([]byte, error) {
	return rlp.EncodeToBytes(toStoredPeer(p))
}

func decodePeer(data []byte) (*Peer, error) {
	var sp storedPeer
	if err := rlp.DecodeBytes(data, &sp); err != nil {
		return nil, err
	}
	return sp.toPeer(), nil
}
