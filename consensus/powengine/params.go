package powengine

// Parameter set for the memory-hard proof-of-work function (spec.md §4.2).
// These are hard-forking constants, baked into the build — spec.md §9 Open
// Question 2 explicitly forbids making them environment-tunable in
// production: any consensus node that disagreed on these would silently
// fork. Dataset/scratchpad sizes are the only parameters that ever vary, and
// only under the `powwar` build tag (see sizes.go / sizes_war.go), which
// exists purely so tests can run the real mixing algorithm against a
// 1MB dataset instead of 256MB; cmd/visiond never builds with it.
const (
	// EpochLength is the number of blocks for which one dataset is valid.
	EpochLength = 7500

	// MixIterations is the number of mixing rounds per hash attempt.
	MixIterations = 65536

	// ReadsPerIteration is the number of dataset words read per mixing round.
	ReadsPerIteration = 4

	// WriteEvery writes the scratchpad back to its backing store every N
	// iterations.
	WriteEvery = 4

	wordSize = 8 // bytes per uint64 word
)

// Epoch returns the epoch index for a given block height.
func Epoch(number uint64) uint64 {
	return number / EpochLength
}
