package peermanager

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vision-project/vision-node/p2p/peerstore"
)

func openTestPeerStore(t *testing.T) *peerstore.Store {
	t.Helper()
	s, err := peerstore.Open(t.TempDir(), "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBackoffForRampsAndCaps(t *testing.T) {
	require.Equal(t, 5*time.Second, BackoffFor(0))
	require.Equal(t, 15*time.Second, BackoffFor(1))
	require.Equal(t, 900*time.Second, BackoffFor(6))
	require.Equal(t, 900*time.Second, BackoffFor(100))
	require.Equal(t, 5*time.Second, BackoffFor(-1))
}

func TestIsValidIPv4EndpointRejectsLoopbackAndIPv6(t *testing.T) {
	priv := &net.TCPAddr{IP: net.ParseIP("10.0.0.5"), Port: 7072}
	loop := &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 7072}
	v6 := &net.TCPAddr{IP: net.ParseIP("::1"), Port: 7072}
	pub := &net.TCPAddr{IP: net.ParseIP("203.0.113.5"), Port: 7072}

	require.False(t, IsValidIPv4Endpoint(loop, true))
	require.False(t, IsValidIPv4Endpoint(v6, true))
	require.False(t, IsValidIPv4Endpoint(priv, false))
	require.True(t, IsValidIPv4Endpoint(priv, true))
	require.True(t, IsValidIPv4Endpoint(pub, false))
}

func TestRecordConnectedAndDisconnected(t *testing.T) {
	store := openTestPeerStore(t)
	m := New(store, 0, 0, true)
	now := time.Unix(1000, 0)

	m.RecordConnected("peer-1", true, 100, now)
	require.Equal(t, 1, m.TotalOutbound())
	require.True(t, m.NeedsMoreOutbound())

	m.RecordDisconnected("peer-1", now)
	require.Equal(t, 0, m.TotalOutbound())
	require.False(t, m.ReadyToDial("peer-1", now))
	require.True(t, m.ReadyToDial("peer-1", now.Add(6*time.Second)))
}

func TestRecordConnectedClassifiesSeedsAsAnchor(t *testing.T) {
	store := openTestPeerStore(t)
	require.NoError(t, store.Put(&peerstore.Peer{NodeID: "seed-1", IsSeed: true}))

	m := New(store, 0, 0, true)
	now := time.Now()
	m.RecordConnected("seed-1", true, 10, now)
	m.RecordConnected("random-peer", true, 10, now)

	require.Equal(t, 1, m.OutboundCount(BucketAnchor))
	require.Equal(t, 1, m.OutboundCount(BucketCandidate))
}

func TestConsensusQuorum(t *testing.T) {
	store := openTestPeerStore(t)
	m := New(store, 0, 0, true)
	now := time.Now()

	m.RecordConnected("a", true, 100, now)
	m.RecordConnected("b", true, 108, now)
	m.RecordConnected("c", false, 50, now)

	q := m.ConsensusQuorum()
	require.Equal(t, 2, q.CompatiblePeers)
	require.Equal(t, 1, q.IncompatiblePeers)
	require.EqualValues(t, 100, q.MinCompatibleHeight)
	require.EqualValues(t, 108, q.MaxCompatibleHeight)
}

func TestPruneIdleSchedulesBackoff(t *testing.T) {
	store := openTestPeerStore(t)
	m := New(store, 0, 0, true)
	start := time.Unix(1000, 0)
	m.RecordConnected("a", true, 1, start)

	pruned := m.PruneIdle(start.Add(IdleTimeout + time.Second))
	require.Equal(t, []string{"a"}, pruned)
	require.Equal(t, 0, m.TotalOutbound())
}

func TestHasOutboundCapacityRespectsMax(t *testing.T) {
	store := openTestPeerStore(t)
	m := New(store, 1, 2, true)
	now := time.Now()

	require.True(t, m.HasOutboundCapacity())
	m.RecordConnected("a", true, 1, now)
	m.RecordConnected("b", true, 1, now)
	require.False(t, m.HasOutboundCapacity())
}
