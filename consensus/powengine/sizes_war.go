//go:build powwar

// This file exists only for tests that want to exercise the real mixing
// algorithm without allocating a 256MB dataset per epoch. cmd/visiond is
// never built with the powwar tag: consensus nodes built with different
// dataset sizes cannot validate each other's blocks (spec.md §4.2).
package powengine

const (
	DatasetMB    = 1
	ScratchpadMB = 1
)

const (
	DatasetWords    = DatasetMB * 1024 * 1024 / wordSize
	ScratchpadWords = ScratchpadMB * 1024 * 1024 / wordSize
)
