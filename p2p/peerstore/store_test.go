package peerstore

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), "test-scope")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func samplePeer(id string) *Peer {
	return &Peer{
		NodeID:        id,
		NodeTag:       "NODE-" + id,
		PublicKey:     []byte{1, 2, 3},
		VisionAddress: "NODE-" + id + "@" + id,
		LastIP:        "203.0.113.1",
		LastPort:      7072,
		Role:          RoleConstellation,
		HealthScore:   50,
		FirstSeenTS:   1000,
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	p := samplePeer("abc")
	require.NoError(t, s.Put(p))

	got, ok, err := s.Get("abc")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, p, got)
}

func TestGetMissingReturnsFalse(t *testing.T) {
	s := openTestStore(t)
	got, ok, err := s.Get("missing")
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, got)
}

func TestScopeIsolation(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "scope-a")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(samplePeer("shared-id")))

	// A second scope over the same database must not see scope-a's records,
	// and scope-a must not see its records, even under the same node_id.
	other := &Store{db: s.db, lock: s.lock, scope: "scope-b"}
	require.NoError(t, other.Put(samplePeer("shared-id")))
	require.NoError(t, other.Put(samplePeer("only-in-b")))

	all, err := s.All()
	require.NoError(t, err)
	require.Len(t, all, 1)

	allB, err := other.All()
	require.NoError(t, err)
	require.Len(t, allB, 2)
}

func TestRecordSuccessAndFailureAdjustHealthScore(t *testing.T) {
	s := openTestStore(t)
	p := samplePeer("abc")
	p.HealthScore = 50
	require.NoError(t, s.Put(p))

	require.NoError(t, s.RecordSuccess("abc", 100))
	got, _, err := s.Get("abc")
	require.NoError(t, err)
	require.EqualValues(t, 55, got.HealthScore)
	require.EqualValues(t, 100, got.LastSuccessTS)

	require.NoError(t, s.RecordFailure("abc", 200, "dial_timeout"))
	got, _, err = s.Get("abc")
	require.NoError(t, err)
	require.EqualValues(t, 45, got.HealthScore)
	require.EqualValues(t, 200, got.LastFailureTS)
	require.EqualValues(t, 1, got.FailCount)
}

func TestHealthScoreClampsToRange(t *testing.T) {
	s := openTestStore(t)
	p := samplePeer("abc")
	p.HealthScore = 98
	require.NoError(t, s.Put(p))
	require.NoError(t, s.RecordSuccess("abc", 1))
	require.NoError(t, s.RecordSuccess("abc", 2))

	got, _, err := s.Get("abc")
	require.NoError(t, err)
	require.EqualValues(t, 100, got.HealthScore)

	p2 := samplePeer("def")
	p2.HealthScore = 5
	require.NoError(t, s.Put(p2))
	require.NoError(t, s.RecordFailure("def", 1, "x"))

	got2, _, err := s.Get("def")
	require.NoError(t, err)
	require.EqualValues(t, 0, got2.HealthScore)
}

func TestEnforceCapacityKeepsAllSeeds(t *testing.T) {
	s := openTestStore(t)

	const (
		numSeeds    = 10
		scoreHigh   = 100 // 100 peers, score 80-100
		scoreMid    = 300 // score 50-80
		scoreLow    = 400 // score 20-50
		scoreLowest = 390 // score 5-20
	)

	for i := 0; i < numSeeds; i++ {
		p := samplePeer(fmt.Sprintf("seed-%03d", i))
		p.IsSeed = true
		p.HealthScore = 1 // deliberately low, must still survive
		require.NoError(t, s.Put(p))
	}
	addBand := func(prefix string, n int, score int64) {
		for i := 0; i < n; i++ {
			p := samplePeer(fmt.Sprintf("%s-%04d", prefix, i))
			p.HealthScore = score
			require.NoError(t, s.Put(p))
		}
	}
	addBand("high", scoreHigh, 90)
	addBand("mid", scoreMid, 65)
	addBand("low", scoreLow, 35)
	addBand("lowest", scoreLowest, 12)

	total := numSeeds + scoreHigh + scoreMid + scoreLow + scoreLowest
	all, err := s.All()
	require.NoError(t, err)
	require.Len(t, all, total)

	evicted, err := s.EnforceCapacity(1000)
	require.NoError(t, err)
	require.Equal(t, 200, evicted)

	remaining, err := s.All()
	require.NoError(t, err)
	require.Len(t, remaining, 1000)

	for i := 0; i < numSeeds; i++ {
		_, ok, err := s.Get(fmt.Sprintf("seed-%03d", i))
		require.NoError(t, err)
		require.True(t, ok, "seed must never be evicted by capacity enforcement")
	}

	for _, p := range remaining {
		if !p.IsSeed {
			require.LessOrEqual(t, int64(12), p.HealthScore, "evicted peers must be the lowest-scoring band")
		}
	}
}

func TestEnforceCapacityNoOpUnderCapacity(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Put(samplePeer("a")))
	require.NoError(t, s.Put(samplePeer("b")))

	evicted, err := s.EnforceCapacity(10)
	require.NoError(t, err)
	require.Equal(t, 0, evicted)
}

func TestMoodDerivation(t *testing.T) {
	p := samplePeer("abc")
	p.HealthScore = 95
	p.SuccessCount = 10
	p.LastSuccessTS = 1000
	mood, score := p.Mood(1100)
	require.Equal(t, MoodCelebration, mood)
	require.InDelta(t, 0.95, score, 0.001)

	p2 := samplePeer("def")
	p2.HealthScore = 10
	p2.FailCount = 9
	p2.SuccessCount = 1
	mood2, _ := p2.Mood(1100)
	require.Equal(t, MoodWounded, mood2)
}

func TestGetByRoleAndTrusted(t *testing.T) {
	s := openTestStore(t)
	a := samplePeer("a")
	a.Role = RoleAnchor
	a.Trusted = true
	require.NoError(t, s.Put(a))

	b := samplePeer("b")
	b.Role = RoleConstellation
	require.NoError(t, s.Put(b))

	anchors, err := s.GetByRole(RoleAnchor)
	require.NoError(t, err)
	require.Len(t, anchors, 1)
	require.Equal(t, "a", anchors[0].NodeID)

	trusted, err := s.GetTrusted()
	require.NoError(t, err)
	require.Len(t, trusted, 1)
	require.Equal(t, "a", trusted[0].NodeID)
}
