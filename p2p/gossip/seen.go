package gossip

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/holiman/bloomfilter/v2"

	"github.com/vision-project/vision-node/internal/chaintypes"
)

// seenFalsePositiveRate bounds how often Mark wrongly treats a not-yet-seen
// id as already seen (the cost of a false positive here is just a skipped,
// redundant announce — never a correctness problem, since the peer can
// always ask again via GetBlocks/GetData).
const seenFalsePositiveRate = 0.001

// SeenFilter is a one-way "have I told this peer about this id already"
// set, implemented as a bloom filter rather than an exact set since an
// unbounded exact set per peer would never shrink back down.
type SeenFilter struct {
	mu     sync.Mutex
	filter *bloomfilter.Filter
}

// NewSeenFilter sizes a filter for roughly expectedItems entries.
func NewSeenFilter(expectedItems uint64) (*SeenFilter, error) {
	f, err := bloomfilter.NewOptimal(expectedItems, seenFalsePositiveRate)
	if err != nil {
		return nil, err
	}
	return &SeenFilter{filter: f}, nil
}

func hash64(id chaintypes.Hash) hashValue {
	return hashValue(xxhash.Sum64(id.Bytes()))
}

// hashValue adapts a precomputed 64-bit digest to hash.Hash64 so it can be
// passed straight to the filter without re-hashing on every call.
type hashValue uint64

func (h hashValue) Write(p []byte) (int, error) { return len(p), nil }
func (h hashValue) Sum(b []byte) []byte         { return b }
func (h hashValue) Reset()                      {}
func (h hashValue) Size() int                   { return 8 }
func (h hashValue) BlockSize() int              { return 8 }
func (h hashValue) Sum64() uint64               { return uint64(h) }

// Mark records id as seen and reports whether it was newly seen (true) or
// already present (false) — gossip callers use the return value to decide
// whether to actually send.
func (s *SeenFilter) Mark(id chaintypes.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := hash64(id)
	if s.filter.Contains(h) {
		return false
	}
	s.filter.Add(h)
	return true
}
