// Package receipts is the shared receipt journal (spec.md §6): a single
// service that assigns monotonic receipt keys and writes/reads them through
// the chain store. core/validator draws receipt keys from it for the
// transactions it applies, and Latest serves the admin-facing "latest
// receipts" query.
// A ts_ns-then-counter key guarantees later receipts always sort after
// earlier ones even when several land in the same nanosecond.
package receipts

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/vision-project/vision-node/core/chainstore"
	"github.com/vision-project/vision-node/internal/chaintypes"
)

// counterModulus bounds the per-nanosecond collision counter to 6 decimal
// digits.
const counterModulus = 1_000_000

// Journal assigns receipt IDs and persists receipts through a chain store.
type Journal struct {
	store   *chainstore.Store
	counter atomic.Uint64
	nowNS   func() uint64
}

// New creates a Journal backed by store.
func New(store *chainstore.Store) *Journal {
	return &Journal{
		store: store,
		nowNS: func() uint64 { return uint64(time.Now().UnixNano()) },
	}
}

// NextID assigns the next monotonic key: a 20-digit nanosecond timestamp
// followed by a 6-digit counter, so two receipts landing in the same
// nanosecond still sort in assignment order.
func (j *Journal) NextID() string {
	c := j.counter.Add(1) - 1
	return fmt.Sprintf("%020d-%06d", j.nowNS(), c%counterModulus)
}

// Write assigns r an ID if it doesn't already have one, then persists it
// via w (typically a batch shared with the block apply or reorg that
// produced it, so the receipt lands atomically with the state it records).
func (j *Journal) Write(w pebble.Writer, r *chaintypes.Receipt) error {
	if r.ID == "" {
		r.ID = j.NextID()
	}
	return chainstore.WriteReceipt(w, r)
}

// Latest returns up to limit receipts, most recent first, for the
// admin-facing receipt feed. limit is clamped to maxLatestLimit; a
// non-positive limit means defaultLatestLimit.
func (j *Journal) Latest(limit int) ([]*chaintypes.Receipt, error) {
	if limit <= 0 {
		limit = defaultLatestLimit
	}
	if limit > maxLatestLimit {
		limit = maxLatestLimit
	}
	return j.store.LatestReceipts(limit)
}

const (
	defaultLatestLimit = 100
	maxLatestLimit     = 500
)
