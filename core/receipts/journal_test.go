package receipts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vision-project/vision-node/core/chainstore"
	"github.com/vision-project/vision-node/internal/chaintypes"
)

func openTestStore(t *testing.T) *chainstore.Store {
	t.Helper()
	s, err := chainstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNextIDIsMonotonicAndFixedWidth(t *testing.T) {
	j := New(openTestStore(t))

	var ids []string
	for i := 0; i < 10; i++ {
		ids = append(ids, j.NextID())
	}
	for i, id := range ids {
		require.Len(t, id, 20+1+6, "id %q has unexpected width", id)
		require.Equal(t, "-", string(id[20]))
		if i > 0 {
			require.True(t, ids[i-1] < ids[i], "ids must sort in assignment order: %q then %q", ids[i-1], ids[i])
		}
	}
}

func TestNextIDCounterSurvivesSameNanosecond(t *testing.T) {
	j := New(openTestStore(t))
	j.nowNS = func() uint64 { return 1_700_000_000_000_000_000 }

	a := j.NextID()
	b := j.NextID()
	require.NotEqual(t, a, b)
	require.True(t, a < b)
	require.True(t, strings.HasPrefix(a, "17000000000000000000-"))
	require.True(t, strings.HasPrefix(b, "17000000000000000000-"))
}

func TestWriteAssignsIDWhenMissing(t *testing.T) {
	s := openTestStore(t)
	j := New(s)

	r := &chaintypes.Receipt{TxID: chaintypes.BytesToHash([]byte("tx-1")), From: []byte("alice"), Fee: 10, OK: true}
	require.Empty(t, r.ID)

	batch := s.NewBatch()
	require.NoError(t, j.Write(batch, r))
	require.NoError(t, batch.Commit(nil))

	require.NotEmpty(t, r.ID)
	got, ok, err := s.ReadReceipt(r.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, r.From, got.From)
	require.Equal(t, r.Fee, got.Fee)
}

func TestWritePreservesExplicitID(t *testing.T) {
	s := openTestStore(t)
	j := New(s)

	r := &chaintypes.Receipt{ID: "00000000000000000001-000001", TxID: chaintypes.BytesToHash([]byte("tx-2")), OK: true}

	batch := s.NewBatch()
	require.NoError(t, j.Write(batch, r))
	require.NoError(t, batch.Commit(nil))

	require.Equal(t, "00000000000000000001-000001", r.ID)
	_, ok, err := s.ReadReceipt(r.ID)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLatestReturnsMostRecentFirst(t *testing.T) {
	s := openTestStore(t)
	j := New(s)

	for i := 0; i < 5; i++ {
		r := &chaintypes.Receipt{TxID: chaintypes.BytesToHash([]byte{byte(i)}), OK: true}
		batch := s.NewBatch()
		require.NoError(t, j.Write(batch, r))
		require.NoError(t, batch.Commit(nil))
	}

	got, err := j.Latest(3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := 0; i+1 < len(got); i++ {
		require.True(t, got[i].ID > got[i+1].ID, "expected descending order")
	}
}

func TestLatestClampsOversizedLimit(t *testing.T) {
	j := New(openTestStore(t))
	got, err := j.Latest(maxLatestLimit + 100)
	require.NoError(t, err)
	require.Empty(t, got)
}
