package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vision-project/vision-node/core/chainstore"
	"github.com/vision-project/vision-node/internal/chaintypes"
	"github.com/vision-project/vision-node/p2p/wire"
)

func openTestStore(t *testing.T) *chainstore.Store {
	t.Helper()
	s, err := chainstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func makeBlock(number uint64, parent chaintypes.Hash, difficulty, nonce uint64) *chaintypes.Block {
	h := &chaintypes.Header{
		ParentHash: parent,
		Number:     number,
		Timestamp:  1_700_000_000 + number*15,
		Difficulty: difficulty,
		Nonce:      nonce,
		TxRoot:     chaintypes.Hash{},
		Miner:      []byte("miner"),
	}
	id := chaintypes.BytesToHash(h.EncodePreImage())
	return &chaintypes.Block{Header: h, ID: id}
}

// buildChain applies a linear chain of n blocks (including genesis) to s and
// returns them in order.
func buildChain(t *testing.T, s *chainstore.Store, n int) []*chaintypes.Block {
	t.Helper()
	var chain []*chaintypes.Block
	var parent chaintypes.Hash
	for i := 0; i < n; i++ {
		b := makeBlock(uint64(i), parent, 1, uint64(i))
		require.NoError(t, s.ApplyBlock(b, nil, nil, nil))
		chain = append(chain, b)
		parent = b.ID
	}
	return chain
}

func TestBuildLocatorIncludesTipAndGenesis(t *testing.T) {
	s := openTestStore(t)
	chain := buildChain(t, s, 5)

	locator, err := BuildLocator(s, chain[len(chain)-1])
	require.NoError(t, err)
	require.Equal(t, chain[len(chain)-1].ID, locator[0])
	require.Equal(t, chain[0].ID, locator[len(locator)-1])
}

func TestBuildLocatorLinearSpanBeforeExponentialStep(t *testing.T) {
	s := openTestStore(t)
	chain := buildChain(t, s, 30)

	locator, err := BuildLocator(s, chain[len(chain)-1])
	require.NoError(t, err)

	// The first locatorLinearSpan+1 entries (tip plus 10 linear steps) must
	// be consecutive ancestors.
	for i := 0; i <= locatorLinearSpan; i++ {
		require.Equal(t, chain[len(chain)-1-i].ID, locator[i])
	}
	// Beyond the linear span, steps double, so the entries thin out and the
	// locator terminates at genesis well before one entry per block.
	require.Less(t, len(locator), len(chain))
	require.Equal(t, chain[0].ID, locator[len(locator)-1])
}

func TestOrphanBufferDrainChildren(t *testing.T) {
	ob := NewOrphanBuffer(DefaultOrphanCapacity)

	parent := makeBlock(1, chaintypes.Hash{}, 1, 1)
	child1 := makeBlock(2, parent.ID, 1, 2)
	child2 := makeBlock(2, parent.ID, 1, 3)

	ob.Add(child1)
	ob.Add(child2)
	require.Equal(t, 2, ob.Len())

	drained := ob.DrainChildrenOf(parent.ID)
	require.Len(t, drained, 2)
	require.Equal(t, 0, ob.Len())

	// Once drained, asking again returns nothing.
	require.Empty(t, ob.DrainChildrenOf(parent.ID))
}

func TestOrphanBufferEvictionPrunesParentIndex(t *testing.T) {
	ob := NewOrphanBuffer(2)

	parent := chaintypes.Hash{}
	b1 := makeBlock(1, parent, 1, 1)
	b2 := makeBlock(1, parent, 1, 2)
	b3 := makeBlock(1, parent, 1, 3)

	ob.Add(b1)
	ob.Add(b2)
	ob.Add(b3) // evicts b1 under an LRU cap of 2

	require.Equal(t, 2, ob.Len())
	drained := ob.DrainChildrenOf(parent)
	require.Len(t, drained, 2)
	for _, b := range drained {
		require.NotEqual(t, b1.ID, b.ID)
	}
}

func TestBodyPipelineEnqueueDedupes(t *testing.T) {
	p := newBodyPipeline(DefaultWindowSize, DefaultBodyDeadline)
	h := chaintypes.Hash{1}
	p.Enqueue([]chaintypes.Hash{h, h})
	require.Equal(t, 1, p.Pending())
}

func TestBodyPipelineRespectsWindow(t *testing.T) {
	p := newBodyPipeline(2, DefaultBodyDeadline)
	hashes := []chaintypes.Hash{{1}, {2}, {3}}
	p.Enqueue(hashes)

	now := time.Now()
	batch := p.NextBatch("peer-a", now)
	require.Len(t, batch, 2)
	require.Equal(t, 3, p.Pending())

	// window is full: nothing more to dispatch until something is fulfilled.
	require.Empty(t, p.NextBatch("peer-b", now))

	p.Fulfilled(batch[0])
	require.Equal(t, 2, p.Pending())

	next := p.NextBatch("peer-b", now)
	require.Len(t, next, 1)
}

func TestBodyPipelineExpireOverdueRequeues(t *testing.T) {
	p := newBodyPipeline(DefaultWindowSize, time.Second)
	h := chaintypes.Hash{9}
	p.Enqueue([]chaintypes.Hash{h})

	now := time.Now()
	batch := p.NextBatch("slow-peer", now)
	require.Len(t, batch, 1)

	overdue := p.ExpireOverdue(now.Add(2 * time.Second))
	require.Equal(t, map[chaintypes.Hash]string{h: "slow-peer"}, overdue)

	// requeued, so a fresh dispatch picks it straight back up.
	again := p.NextBatch("fast-peer", now)
	require.Equal(t, []chaintypes.Hash{h}, again)
}

func TestBodyPipelineRelease(t *testing.T) {
	p := newBodyPipeline(DefaultWindowSize, DefaultBodyDeadline)
	h := chaintypes.Hash{4}
	p.Enqueue([]chaintypes.Hash{h})
	batch := p.NextBatch("peer-a", time.Now())
	require.Len(t, batch, 1)

	p.Release(batch)
	require.Equal(t, 1, p.Pending())
	again := p.NextBatch("peer-b", time.Now())
	require.Equal(t, batch, again)
}

func TestEncodeDecodeBlockRoundTrip(t *testing.T) {
	commit := chaintypes.Hash{7}
	b := makeBlock(3, chaintypes.Hash{1}, 42, 99)
	b.Header.DACommitment = &commit
	b.Txs = []*chaintypes.Transaction{
		{Sender: []byte("alice"), Nonce: 1, Fee: 10, Weight: 200, Payload: []byte("hi"), Signature: []byte("sig"), FirstSeenNS: 123},
	}

	raw, err := EncodeBlock(b)
	require.NoError(t, err)

	got, err := DecodeBlock(raw)
	require.NoError(t, err)
	require.Equal(t, b.ID, got.ID)
	require.Equal(t, b.Header.Number, got.Header.Number)
	require.Equal(t, *b.Header.DACommitment, *got.Header.DACommitment)
	require.Len(t, got.Txs, 1)
	require.Equal(t, b.Txs[0].Sender, got.Txs[0].Sender)
	require.Equal(t, b.Txs[0].FirstSeenNS, got.Txs[0].FirstSeenNS)
}

func TestEncodeDecodeBlockWithoutDACommitment(t *testing.T) {
	b := makeBlock(1, chaintypes.Hash{}, 1, 1)
	raw, err := EncodeBlock(b)
	require.NoError(t, err)
	got, err := DecodeBlock(raw)
	require.NoError(t, err)
	require.Nil(t, got.Header.DACommitment)
}

// stubApplier is a minimal blockApplier for Engine tests: every header and
// body is accepted unconditionally, so tests exercise the Engine's own
// bookkeeping rather than validation rules (those are core/validator's).
type stubApplier struct{}

func (stubApplier) Validate(*chaintypes.Block) error { return nil }
func (stubApplier) Effects(*chaintypes.Block) ([]*chaintypes.Account, []chainstore.AccountDelta, []*chaintypes.Receipt, error) {
	return nil, nil, nil, nil
}
func (stubApplier) ValidateHeader(*chaintypes.Header, chaintypes.Hash) error { return nil }

// stubPow accepts every header as valid proof of work, returning the same
// pre-image-derived digest makeBlock uses for a block's id so headers built
// from a test block's fields verify against that block's claimed hash.
type stubPow struct{}

func (stubPow) Verify(h *chaintypes.Header) (chaintypes.Hash, bool, error) {
	return chaintypes.BytesToHash(h.EncodePreImage()), true, nil
}

// stubSource lets a test script canned Headers/Blocks responses.
type stubSource struct {
	headers *wire.Headers
	blocks  *wire.Blocks
}

func (s *stubSource) RequestHeaders(string, *wire.GetHeaders) (*wire.Headers, error) {
	return s.headers, nil
}

func (s *stubSource) RequestBlocks(string, *wire.GetBlocks) (*wire.Blocks, error) {
	return s.blocks, nil
}

func newTestEngine(store *chainstore.Store, source PeerSource) *Engine {
	return New(store, stubApplier{}, stubPow{}, nil, source, nil, nil)
}

func TestAcceptHeadersExtendsTipAndQueuesBodies(t *testing.T) {
	s := openTestStore(t)
	chain := buildChain(t, s, 1)
	tip := chain[0]

	next := makeBlock(1, tip.ID, 1, 1)
	lh := wire.LiteHeaderFromBlock(next)

	e := newTestEngine(s, &stubSource{})
	accepted, err := e.acceptHeaders([]wire.LiteHeader{lh})
	require.NoError(t, err)
	require.Len(t, accepted, 1)
	require.Equal(t, next.Header.Number, accepted[0].Number)
	require.Equal(t, 1, e.PendingBodies())
}

func TestAcceptHeadersSkipsAlreadyStored(t *testing.T) {
	s := openTestStore(t)
	chain := buildChain(t, s, 2)

	lh := wire.LiteHeaderFromBlock(chain[1])
	e := newTestEngine(s, &stubSource{})
	accepted, err := e.acceptHeaders([]wire.LiteHeader{lh})
	require.NoError(t, err)
	require.Empty(t, accepted)
	require.Equal(t, 0, e.PendingBodies())
}

func TestAcceptHeadersRejectsCheckpointMismatch(t *testing.T) {
	s := openTestStore(t)
	chain := buildChain(t, s, 1)
	tip := chain[0]

	next := makeBlock(1, tip.ID, 1, 1)
	lh := wire.LiteHeaderFromBlock(next)

	e := New(s, stubApplier{}, stubPow{}, nil, &stubSource{}, nil, []Checkpoint{
		{Height: 1, Hash: chaintypes.Hash{0xff}},
	})
	_, err := e.acceptHeaders([]wire.LiteHeader{lh})
	require.ErrorIs(t, err, ErrCheckpointMismatch)
}

func TestHandleBlockBuffersOrphanThenDrainsOnParentArrival(t *testing.T) {
	s := openTestStore(t)
	chain := buildChain(t, s, 1)
	tip := chain[0]

	b1 := makeBlock(1, tip.ID, 1, 1)
	b2 := makeBlock(2, b1.ID, 1, 2)

	e := newTestEngine(s, &stubSource{})

	// b2 arrives before b1: it should be buffered as an orphan, not applied.
	require.NoError(t, e.handleBlock(b2))
	require.Equal(t, 1, e.OrphanCount())
	_, ok, err := s.ReadBlock(b2.ID)
	require.NoError(t, err)
	require.False(t, ok)

	// b1 arrives: applying it should drain and apply b2 too.
	require.NoError(t, e.handleBlock(b1))
	require.Equal(t, 0, e.OrphanCount())

	_, ok, err = s.ReadBlock(b1.ID)
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = s.ReadBlock(b2.ID)
	require.NoError(t, err)
	require.True(t, ok)

	newTip, ok, err := s.ReadTip()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, b2.ID, newTip)
}

func TestHandleBlocksDecodesEnvelopes(t *testing.T) {
	s := openTestStore(t)
	chain := buildChain(t, s, 1)
	tip := chain[0]

	next := makeBlock(1, tip.ID, 1, 1)
	raw, err := EncodeBlock(next)
	require.NoError(t, err)

	e := newTestEngine(s, &stubSource{})
	err = e.HandleBlocks(&wire.Blocks{Blocks: []wire.BlockEnvelope{{Hash: next.ID, Raw: raw}}})
	require.NoError(t, err)

	_, ok, err := s.ReadBlock(next.ID)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRunBodyTimeoutsRequeuesWithoutPenalizerSet(t *testing.T) {
	s := openTestStore(t)
	e := newTestEngine(s, &stubSource{})
	e.pipeline = newBodyPipeline(DefaultWindowSize, time.Second)

	h := chaintypes.Hash{5}
	e.pipeline.Enqueue([]chaintypes.Hash{h})
	now := time.Now()
	e.pipeline.NextBatch("slow-peer", now)

	// Must not panic even though no peerPenalizer was configured.
	e.RunBodyTimeouts(now.Add(2 * time.Second))
	require.Equal(t, 1, e.PendingBodies())
}

func TestHandleAnnounceFetchesKnownParentDirectly(t *testing.T) {
	s := openTestStore(t)
	chain := buildChain(t, s, 1)
	tip := chain[0]

	next := makeBlock(1, tip.ID, 1, 1)
	raw, err := EncodeBlock(next)
	require.NoError(t, err)

	source := &stubSource{blocks: &wire.Blocks{Blocks: []wire.BlockEnvelope{{Hash: next.ID, Raw: raw}}}}
	e := newTestEngine(s, source)

	needsSync, err := e.HandleAnnounce("peer-a", &wire.AnnounceBlock{Height: 1, Hash: next.ID, Prev: tip.ID})
	require.NoError(t, err)
	require.False(t, needsSync)

	_, ok, err := s.ReadBlock(next.ID)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestHandleAnnounceRequestsHeaderSyncWhenParentUnknown(t *testing.T) {
	s := openTestStore(t)
	buildChain(t, s, 1)

	orphanParent := chaintypes.Hash{0xaa}
	ann := &wire.AnnounceBlock{Height: 5, Hash: chaintypes.Hash{0xbb}, Prev: orphanParent}

	e := newTestEngine(s, &stubSource{})
	needsSync, err := e.HandleAnnounce("peer-a", ann)
	require.NoError(t, err)
	require.True(t, needsSync)
}
