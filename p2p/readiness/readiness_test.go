package readiness

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vision-project/vision-node/p2p/peermanager"
)

type stubQuorum struct {
	view peermanager.QuorumView
}

func (s stubQuorum) ConsensusQuorum() peermanager.QuorumView { return s.view }

func TestCheckOnceZeroPeersRequiresExplicitPermit(t *testing.T) {
	g := New(stubQuorum{}, 2, time.Millisecond, 0, false)
	require.False(t, g.CheckOnce().Ready)

	g = New(stubQuorum{}, 2, time.Millisecond, 0, true)
	require.True(t, g.CheckOnce().Ready)
}

func TestCheckOnceQuorumReachedWithinSpread(t *testing.T) {
	view := peermanager.QuorumView{CompatiblePeers: 3, MinCompatibleHeight: 100, MaxCompatibleHeight: 105}
	g := New(stubQuorum{view}, 2, time.Millisecond, 0, false)
	require.True(t, g.CheckOnce().Ready)
}

func TestCheckOnceQuorumRejectedOnWideSpread(t *testing.T) {
	view := peermanager.QuorumView{CompatiblePeers: 3, MinCompatibleHeight: 100, MaxCompatibleHeight: 200}
	g := New(stubQuorum{view}, 2, time.Millisecond, 0, false)
	require.False(t, g.CheckOnce().Ready)
}

func TestCheckOnceInsufficientCompatiblePeers(t *testing.T) {
	view := peermanager.QuorumView{CompatiblePeers: 1, IncompatiblePeers: 4}
	g := New(stubQuorum{view}, 2, time.Millisecond, 0, false)
	require.False(t, g.CheckOnce().Ready)
}

func TestAwaitReturnsTrueOnceQuorumArrives(t *testing.T) {
	q := &mutableQuorum{}
	g := New(q, 2, 5*time.Millisecond, 0, false)

	go func() {
		time.Sleep(15 * time.Millisecond)
		q.set(peermanager.QuorumView{CompatiblePeers: 2, MinCompatibleHeight: 10, MaxCompatibleHeight: 11})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.True(t, g.Await(ctx))
}

func TestAwaitTimesOutLoudly(t *testing.T) {
	g := New(stubQuorum{}, 2, 2*time.Millisecond, 10*time.Millisecond, false)
	ctx := context.Background()
	require.False(t, g.Await(ctx))
}

func TestAwaitHonorsContextCancellation(t *testing.T) {
	g := New(stubQuorum{}, 2, time.Second, 0, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.False(t, g.Await(ctx))
}

type mutableQuorum struct {
	mu   sync.Mutex
	view peermanager.QuorumView
}

func (m *mutableQuorum) set(v peermanager.QuorumView) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.view = v
}

func (m *mutableQuorum) ConsensusQuorum() peermanager.QuorumView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view
}
