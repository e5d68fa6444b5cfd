package sync

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vision-project/vision-node/internal/chaintypes"
)

// DefaultOrphanCapacity is spec.md §4.12's "bounded, default 512 entries,
// LRU" orphan buffer size.
const DefaultOrphanCapacity = 512

// OrphanBuffer holds blocks whose parent is not yet known, indexed both by
// the orphan's own id (for LRU eviction) and by its parent hash (so a newly
// arrived block can find and drain the children waiting on it). Grounded on
// consensus/powengine.DatasetCache's lru.Cache usage, generalized from a
// pure cache to one with a secondary by-parent index needed to chain-drain
// orphans in order.
type OrphanBuffer struct {
	mu       sync.Mutex
	cache    *lru.Cache[chaintypes.Hash, *chaintypes.Block]
	children map[chaintypes.Hash][]chaintypes.Hash // parent -> orphan ids waiting on it
}

// NewOrphanBuffer creates a buffer bounded to capacity entries (<=0 falls
// back to DefaultOrphanCapacity).
func NewOrphanBuffer(capacity int) *OrphanBuffer {
	if capacity <= 0 {
		capacity = DefaultOrphanCapacity
	}
	b := &OrphanBuffer{children: make(map[chaintypes.Hash][]chaintypes.Hash)}
	cache, _ := lru.NewWithEvict[chaintypes.Hash, *chaintypes.Block](capacity, b.onEvict)
	b.cache = cache
	return b
}

// onEvict runs under the lru.Cache's own call, which happens synchronously
// inside Add while b.mu is already held by the caller — it only touches the
// by-parent index, never the cache itself, so it is safe to call with mu
// held.
func (b *OrphanBuffer) onEvict(id chaintypes.Hash, block *chaintypes.Block) {
	b.removeFromParentIndexLocked(block.Header.ParentHash, id)
}

func (b *OrphanBuffer) removeFromParentIndexLocked(parent, id chaintypes.Hash) {
	siblings := b.children[parent]
	for i, s := range siblings {
		if s == id {
			b.children[parent] = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	if len(b.children[parent]) == 0 {
		delete(b.children, parent)
	}
}

// Add stores an orphan block, keyed by its own id, indexed under its
// parent hash.
func (b *OrphanBuffer) Add(block *chaintypes.Block) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, already := b.cache.Get(block.ID); already {
		return
	}
	b.cache.Add(block.ID, block)
	b.children[block.Header.ParentHash] = append(b.children[block.Header.ParentHash], block.ID)
}

// Len reports the number of buffered orphans.
func (b *OrphanBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cache.Len()
}

// DrainChildrenOf returns every buffered orphan directly descended from
// parent, removing them from the buffer, ordered by insertion (caller is
// responsible for recursing into the returned blocks' own ids if a chain of
// several orphans was waiting).
func (b *OrphanBuffer) DrainChildrenOf(parent chaintypes.Hash) []*chaintypes.Block {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := b.children[parent]
	if len(ids) == 0 {
		return nil
	}
	delete(b.children, parent)

	out := make([]*chaintypes.Block, 0, len(ids))
	for _, id := range ids {
		if block, ok := b.cache.Peek(id); ok {
			out = append(out, block)
			b.cache.Remove(id)
		}
	}
	return out
}
