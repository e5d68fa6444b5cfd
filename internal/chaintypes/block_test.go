package chaintypes

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleHeader() *Header {
	return &Header{
		ParentHash: BytesToHash([]byte{0x11}),
		Number:     12345,
		Timestamp:  1700000000,
		Difficulty: 1000,
		Nonce:      42,
		TxRoot:     BytesToHash([]byte{0x33}),
		Miner:      []byte("vnode-1"),
	}
}

func TestEncodePreImageIsStableAndSized(t *testing.T) {
	h := sampleHeader()
	msg := h.EncodePreImage()

	require.Equal(t, []byte("VPOW"), msg[0:4])
	require.Equal(t, uint32(1), leU32(msg[4:8]))

	expectedSize := 4 + 4 + 32 + 8 + 8 + 8 + 8 + 32 + 4 + len(h.Miner)
	require.Len(t, msg, expectedSize)

	msg2 := h.EncodePreImage()
	require.Equal(t, msg, msg2, "encoding must be deterministic")
}

func TestDecodePreImageRoundTrips(t *testing.T) {
	h := sampleHeader()
	enc := h.EncodePreImage()

	got, err := DecodePreImage(enc)
	require.NoError(t, err)
	require.Equal(t, h.ParentHash, got.ParentHash)
	require.Equal(t, h.Number, got.Number)
	require.Equal(t, h.Timestamp, got.Timestamp)
	require.Equal(t, h.Difficulty, got.Difficulty)
	require.Equal(t, h.Nonce, got.Nonce)
	require.Equal(t, h.TxRoot, got.TxRoot)
	require.Equal(t, h.Miner, got.Miner)
}

func TestEncodePreImageEqualInputsEqualOutputs(t *testing.T) {
	h1 := sampleHeader()
	h2 := sampleHeader()
	require.Equal(t, h1.EncodePreImage(), h2.EncodePreImage())
}

func TestDecodePreImageRejectsBadMagic(t *testing.T) {
	h := sampleHeader()
	enc := h.EncodePreImage()
	enc[0] = 'X'
	_, err := DecodePreImage(enc)
	require.Error(t, err)
}

func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
