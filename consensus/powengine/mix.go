package powengine

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// scratchpadSeed initializes a ScratchpadWords-word scratchpad from the
// header pre-image and candidate nonce, by expanding blake2b(preimage) as a
// counter-mode stream (spec.md §4.2 "scratchpad initialized from the header
// pre-image and nonce").
func scratchpadSeed(preimage []byte, nonce uint64) []uint64 {
	var nonceLE [8]byte
	binary.LittleEndian.PutUint64(nonceLE[:], nonce)

	pad := make([]uint64, ScratchpadWords)
	var counter uint64
	for i := 0; i < len(pad); i += 8 {
		h, _ := blake2b.New512(nil)
		h.Write(preimage)
		h.Write(nonceLE[:])
		var counterLE [8]byte
		binary.LittleEndian.PutUint64(counterLE[:], counter)
		h.Write(counterLE[:])
		block := h.Sum(nil) // 64 bytes = 8 words
		for j := 0; j < 8 && i+j < len(pad); j++ {
			pad[i+j] = binary.LittleEndian.Uint64(block[j*8 : j*8+8])
		}
		counter++
	}
	return pad
}

// mix runs MixIterations rounds over the scratchpad, reading
// ReadsPerIteration words from the epoch dataset each round and folding them
// in, writing the scratchpad entry back every WriteEvery iterations
// (spec.md §4.2). This is the memory-hard core: each round's dataset index
// depends on the running scratchpad state, so the full dataset must be
// resident to avoid repeated regeneration.
func mix(ds *Dataset, pad []uint64) {
	padLen := uint64(len(pad))
	dsLen := uint64(len(ds.Words))
	pos := pad[0] % padLen

	for iter := 0; iter < MixIterations; iter++ {
		acc := pad[pos]
		for r := 0; r < ReadsPerIteration; r++ {
			idx := (acc ^ uint64(iter) ^ uint64(r)) % dsLen
			acc = acc*1099511628211 ^ ds.Words[idx]
			idx = (idx + acc) % dsLen
			acc ^= ds.Words[idx]
		}
		if iter%WriteEvery == 0 {
			pad[pos] = acc
		}
		pos = acc % padLen
	}
}

// finalize reduces the scratchpad to a 256-bit digest with blake2b-256.
func finalize(pad []uint64) [32]byte {
	h, _ := blake2b.New256(nil)
	buf := make([]byte, 8)
	for _, w := range pad {
		binary.LittleEndian.PutUint64(buf, w)
		h.Write(buf)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Digest computes the proof-of-work digest for a header pre-image, nonce,
// and epoch dataset. Both Mine and Verify call this; the candidate block_id
// is the resulting digest (spec.md §4.1 "pow_hash ... recomputed from the
// PoW pre-image, never trusted from the wire").
func Digest(ds *Dataset, preimage []byte, nonce uint64) [32]byte {
	pad := scratchpadSeed(preimage, nonce)
	mix(ds, pad)
	return finalize(pad)
}
