package gossip

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vision-project/vision-node/internal/chaintypes"
	"github.com/vision-project/vision-node/p2p/peermanager"
	"github.com/vision-project/vision-node/p2p/peerstore"
	"github.com/vision-project/vision-node/p2p/wire"
)

func openTestPeerStore(t *testing.T) *peerstore.Store {
	t.Helper()
	s, err := peerstore.Open(t.TempDir(), "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type recordingSender struct {
	mu  sync.Mutex
	got map[string][]any
}

func newRecordingSender() *recordingSender {
	return &recordingSender{got: make(map[string][]any)}
}

func (s *recordingSender) SendTo(peerID string, msg any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got[peerID] = append(s.got[peerID], msg)
	return nil
}

func (s *recordingSender) countFor(peerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got[peerID])
}

func TestAnnounceTipSendsToCompatiblePeersOnce(t *testing.T) {
	store := openTestPeerStore(t)
	mgr := peermanager.New(store, 0, 0, true)
	now := time.Now()
	mgr.RecordConnected("peer-a", true, 10, now)
	mgr.RecordConnected("peer-b", false, 10, now) // incompatible, must be skipped

	sender := newRecordingSender()
	g := New(mgr, sender)

	block := &chaintypes.Block{Header: &chaintypes.Header{Number: 5}, ID: chaintypes.Hash{1}}
	g.AnnounceTip(block)
	require.Equal(t, 1, sender.countFor("peer-a"))
	require.Equal(t, 0, sender.countFor("peer-b"))

	// announcing the same tip again must not re-send to a peer already told.
	g.AnnounceTip(block)
	require.Equal(t, 1, sender.countFor("peer-a"))
}

func TestAnnounceTxDedupsPerPeer(t *testing.T) {
	store := openTestPeerStore(t)
	mgr := peermanager.New(store, 0, 0, true)
	now := time.Now()
	mgr.RecordConnected("peer-a", true, 10, now)

	sender := newRecordingSender()
	g := New(mgr, sender)

	tx := &chaintypes.Transaction{Sender: []byte("alice"), Nonce: 1, Fee: 10, Weight: 100}
	g.AnnounceTx(tx)
	g.AnnounceTx(tx)
	require.Equal(t, 1, sender.countFor("peer-a"))

	sent := sender.got["peer-a"][0]
	inv, ok := sent.(*wire.InvTx)
	require.True(t, ok)
	require.Equal(t, []chaintypes.Hash{tx.ID()}, inv.TxIDs)
}

func TestForgetPeerResetsDedup(t *testing.T) {
	store := openTestPeerStore(t)
	mgr := peermanager.New(store, 0, 0, true)
	now := time.Now()
	mgr.RecordConnected("peer-a", true, 10, now)

	sender := newRecordingSender()
	g := New(mgr, sender)

	block := &chaintypes.Block{Header: &chaintypes.Header{Number: 1}, ID: chaintypes.Hash{2}}
	g.AnnounceTip(block)
	require.Equal(t, 1, sender.countFor("peer-a"))

	g.ForgetPeer("peer-a")
	g.AnnounceTip(block)
	require.Equal(t, 2, sender.countFor("peer-a"))
}

func TestIPLimiterAllowsBurstThenThrottles(t *testing.T) {
	l := NewIPLimiter(1, 2)
	require.True(t, l.Allow("203.0.113.9"))
	require.True(t, l.Allow("203.0.113.9"))
	require.False(t, l.Allow("203.0.113.9"))

	// a different IP gets its own independent bucket.
	require.True(t, l.Allow("203.0.113.10"))
}

func TestSeenFilterMarksOnce(t *testing.T) {
	f, err := NewSeenFilter(1024)
	require.NoError(t, err)

	id := chaintypes.Hash{9, 9, 9}
	require.True(t, f.Mark(id))
	require.False(t, f.Mark(id))

	other := chaintypes.Hash{1, 2, 3}
	require.True(t, f.Mark(other))
}
