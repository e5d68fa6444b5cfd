// Package identity manages the node's persistent Ed25519 keypair and the
// identifiers derived from it: a node generates its key once and keeps it
// for the lifetime of its data directory; node_id and vision_address are
// pure functions of the public key.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/log"
)

// Identity is a node's long-lived Ed25519 keypair plus the values derived
// from it (spec.md §3 "Peer entity").
type Identity struct {
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
	NodeID     string // hex-encoded, first 20 bytes of sha256(public_key)
	NodeTag    string
}

const keyFileName = "identity.key"

// Load reads the identity from dataDir, generating and persisting a fresh
// keypair on first run. nodeTag is a human label chosen by the operator (or
// defaulted by the caller); it has no bearing on node_id, which depends only
// on the public key (spec.md §3 invariant).
func Load(dataDir, nodeTag string) (*Identity, error) {
	path := filepath.Join(dataDir, keyFileName)

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(raw) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("identity: corrupt key file %s: want %d bytes, got %d", path, ed25519.PrivateKeySize, len(raw))
		}
		priv := ed25519.PrivateKey(raw)
		return newIdentity(priv, nodeTag), nil

	case os.IsNotExist(err):
		_, priv, genErr := ed25519.GenerateKey(rand.Reader)
		if genErr != nil {
			return nil, fmt.Errorf("identity: generate key: %w", genErr)
		}
		if mkErr := os.MkdirAll(dataDir, 0o700); mkErr != nil {
			return nil, fmt.Errorf("identity: create data dir: %w", mkErr)
		}
		if writeErr := os.WriteFile(path, priv, 0o600); writeErr != nil {
			return nil, fmt.Errorf("identity: persist key: %w", writeErr)
		}
		log.Info("Generated new node identity", "path", path)
		return newIdentity(priv, nodeTag), nil

	default:
		return nil, fmt.Errorf("identity: read key file %s: %w", path, err)
	}
}

func newIdentity(priv ed25519.PrivateKey, nodeTag string) *Identity {
	pub := priv.Public().(ed25519.PublicKey)
	return &Identity{
		PrivateKey: priv,
		PublicKey:  pub,
		NodeID:     DeriveNodeID(pub),
		NodeTag:    nodeTag,
	}
}

// DeriveNodeID is deterministic: changing the public key changes identity
// (spec.md §3 invariant). It is hex-rendered, truncated to 20 bytes (40 hex
// chars) to keep vision addresses and log lines readable.
func DeriveNodeID(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:20])
}

// VisionAddress renders the human-facing identity string node_tag@node_id
// (spec.md §3, GLOSSARY "Vision address").
func (id *Identity) VisionAddress() string {
	return fmt.Sprintf("%s@%s", id.NodeTag, id.NodeID)
}

// Sign signs msg with the node's private key.
func (id *Identity) Sign(msg []byte) []byte {
	return ed25519.Sign(id.PrivateKey, msg)
}

// Verify checks an Ed25519 signature against a raw public key.
func Verify(pub ed25519.PublicKey, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}
