package mempool

import (
	"container/heap"

	"github.com/vision-project/vision-node/internal/chaintypes"
)

// entry is one slot in the priority heap. index tracks its current position
// so remove_many and eviction can locate and remove an arbitrary entry in
// O(log n), the same bookkeeping trick used by container/heap's own
// PriorityQueue example.
type entry struct {
	tx    *chaintypes.Transaction
	id    chaintypes.Hash
	index int
}

// less implements the deterministic 3-key order spec.md §4.5 requires:
// descending fee-per-weight, then ascending first_seen_ns, then ascending
// txid. "better" (higher priority for block inclusion) compares as less, so
// a heap built with this order is a max-heap by priority.
func less(a, b *entry) bool {
	fa, fb := a.tx.FeePerWeight(), b.tx.FeePerWeight()
	if fa != fb {
		return fa > fb
	}
	if a.tx.FirstSeenNS != b.tx.FirstSeenNS {
		return a.tx.FirstSeenNS < b.tx.FirstSeenNS
	}
	return a.id.String() < b.id.String()
}

// priorityQueue implements container/heap.Interface over *entry.
type priorityQueue []*entry

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool { return less(pq[i], pq[j]) }

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*pq)
	*pq = append(*pq, e)
}

func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*pq = old[:n-1]
	return e
}

var _ heap.Interface = (*priorityQueue)(nil)
