package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vision-project/vision-node/internal/chaintypes"
)

func u16ptr(v uint16) *uint16 { return &v }
func u64ptr(v uint64) *uint64 { return &v }

func sampleHandshake() *Handshake {
	return &Handshake{
		ProtocolVersion: 3,
		ChainID:         "vision-mainnet",
		GenesisHash:     chaintypes.BytesToHash([]byte("genesis")),
		NodeNonce:       NewNodeNonce(),
		ChainHeight:     1000,
		TipHeight:       u64ptr(1000),
		NodeVersion:     1,
		NetworkID:       "mainnet",
		NodeBuild:       "v1.0.0",
		NodeTag:         "alpha",
		AdmissionTicket: "ticket-1",
		Passport:        nil,
		VisionAddress:   "alpha@abc123",
		NodeID:          "abc123",
		PublicKey:       []byte{1, 2, 3, 4},
		Role:            "constellation",
		EBID:            "ebid-1",
		IsGuardian:      true,
		HTTPAPIPort:     u16ptr(8080),
		AdvertisedIP:    "203.0.113.5",
		AdvertisedPort:  u16ptr(17072),

		BootstrapCheckpointHeight: 500,
		BootstrapCheckpointHash:   chaintypes.BytesToHash([]byte("checkpoint")),
		BootstrapPrefix:           "drop-vision",
		SeedPeers:                []string{"203.0.113.1:7072", "203.0.113.2:7072"},
	}
}

func TestHandshakeRoundTrip(t *testing.T) {
	want := sampleHandshake()
	payload := want.encode()
	got, err := decodeHandshake(payload)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestHandshakeRoundTripWithoutOptionalFields(t *testing.T) {
	want := sampleHandshake()
	want.TipHeight = nil
	want.HTTPAPIPort = nil
	want.AdvertisedPort = nil
	want.AdvertisedIP = ""
	want.SeedPeers = nil

	payload := want.encode()
	got, err := decodeHandshake(payload)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestFrameRoundTripHandshake(t *testing.T) {
	msg := sampleHandshake()
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, msg))

	decoded, err := ReadMessage(&buf)
	require.NoError(t, err)
	got, ok := decoded.(*Handshake)
	require.True(t, ok)
	require.Equal(t, msg, got)
}

func TestFrameRoundTripCompressedBlocks(t *testing.T) {
	msg := &Blocks{Blocks: []BlockEnvelope{
		{Hash: chaintypes.BytesToHash([]byte("block-1")), Raw: bytes.Repeat([]byte{0xAB}, 2048)},
		{Hash: chaintypes.BytesToHash([]byte("block-2")), Raw: []byte("small body")},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, msg))

	decoded, err := ReadMessage(&buf)
	require.NoError(t, err)
	got, ok := decoded.(*Blocks)
	require.True(t, ok)
	require.Equal(t, msg, got)
}

func TestFrameRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("NOT-MAGIC")
	buf.Write([]byte{Version, 0, 0})

	_, err := ReadFrame(&buf)
	require.ErrorIs(t, err, errBadMagic)
}

func TestFrameRejectsWrongVersion(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(Magic[:])
	buf.WriteByte(Version + 1)
	buf.Write([]byte{0, 0})

	_, err := ReadFrame(&buf)
	require.ErrorIs(t, err, errBadVersion)
}

func TestGetHeadersRoundTrip(t *testing.T) {
	stop := chaintypes.BytesToHash([]byte("stop"))
	msg := &GetHeaders{
		Locator: []chaintypes.Hash{
			chaintypes.BytesToHash([]byte("tip")),
			chaintypes.BytesToHash([]byte("tip-2")),
		},
		Stop: &stop,
		Max:  2000,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, msg))
	decoded, err := ReadMessage(&buf)
	require.NoError(t, err)
	got, ok := decoded.(*GetHeaders)
	require.True(t, ok)
	require.Equal(t, msg, got)
}

func TestHeadersRoundTrip(t *testing.T) {
	msg := &Headers{Headers: []LiteHeader{
		{Hash: chaintypes.BytesToHash([]byte("a")), Height: 1, Difficulty: 100, Nonce: 7},
		{Hash: chaintypes.BytesToHash([]byte("b")), Height: 2, Difficulty: 105, Nonce: 9},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, msg))
	decoded, err := ReadMessage(&buf)
	require.NoError(t, err)
	got, ok := decoded.(*Headers)
	require.True(t, ok)
	require.Equal(t, msg, got)
}

func TestAnnounceBlockAndInvTxRoundTrip(t *testing.T) {
	ann := &AnnounceBlock{Height: 42, Hash: chaintypes.BytesToHash([]byte("h")), Prev: chaintypes.BytesToHash([]byte("p"))}
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, ann))
	decoded, err := ReadMessage(&buf)
	require.NoError(t, err)
	gotAnn, ok := decoded.(*AnnounceBlock)
	require.True(t, ok)
	require.Equal(t, ann, gotAnn)

	inv := &InvTx{TxIDs: []chaintypes.Hash{chaintypes.BytesToHash([]byte("tx1")), chaintypes.BytesToHash([]byte("tx2"))}}
	buf.Reset()
	require.NoError(t, WriteMessage(&buf, inv))
	decoded, err = ReadMessage(&buf)
	require.NoError(t, err)
	gotInv, ok := decoded.(*InvTx)
	require.True(t, ok)
	require.Equal(t, inv, gotInv)
}

func TestFrameRejectsOversizedHandshakePayload(t *testing.T) {
	huge := bytes.Repeat([]byte{0x01}, MaxHandshakePayload+1)
	err := WriteFrame(&bytes.Buffer{}, KindHandshake, huge)
	require.ErrorIs(t, err, errTooLarge)
}

func TestLiteHeaderFromBlock(t *testing.T) {
	block := &chaintypes.Block{
		Header: &chaintypes.Header{
			ParentHash: chaintypes.BytesToHash([]byte("parent")),
			Number:     9,
			Timestamp:  12345,
			Difficulty: 99,
			Nonce:      7,
			TxRoot:     chaintypes.BytesToHash([]byte("txroot")),
		},
		ID: chaintypes.BytesToHash([]byte("id")),
	}

	lh := LiteHeaderFromBlock(block)
	require.Equal(t, block.ID, lh.Hash)
	require.Equal(t, block.Header.ParentHash, lh.Prev)
	require.Equal(t, block.Header.Number, lh.Height)
	require.Equal(t, block.Header.Difficulty, lh.Target)
	require.Equal(t, block.Header.TxRoot, lh.Merkle)
}
