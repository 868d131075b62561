package replica

import (
	"testing"

	"github.com/refmd-collab/docserver/internal/crdt"
	"github.com/stretchr/testify/require"
)

func TestAcquireCreatesAndReuses(t *testing.T) {
	s := New()
	h1 := s.Acquire("doc-1")
	h2 := s.Acquire("doc-1")
	require.Same(t, h1, h2)
	s.Release(h1)
	s.Release(h2)
}

func TestEvictRefusesWhileReferenced(t *testing.T) {
	s := New()
	h := s.Acquire("doc-1")
	require.False(t, s.Evict("doc-1"))
	s.Release(h)
	require.True(t, s.Evict("doc-1"))
}

func TestEvictUnknownDocumentIsNoop(t *testing.T) {
	s := New()
	require.True(t, s.Evict("never-existed"))
}

func TestApplyUpdateRejectsGarbageBytes(t *testing.T) {
	s := New()
	h := s.Acquire("doc-1")
	defer s.Release(h)

	err := h.ApplyUpdate([]byte("not json"))
	require.Error(t, err)
}

func TestSetTextThenDiffSinceRoundTrips(t *testing.T) {
	s := New()
	h := s.Acquire("doc-1")
	defer s.Release(h)

	_, err := h.SetText("hello world", "node-a")
	require.NoError(t, err)
	require.Equal(t, "hello world", h.RGA.Text())

	sv, err := h.StateVector()
	require.NoError(t, err)

	update, err := h.SetText("hello there", "node-a")
	require.NoError(t, err)
	require.NotEmpty(t, update)

	diff, err := h.DiffSince(sv)
	require.NoError(t, err)
	require.NotEmpty(t, diff)
}

func TestApplyUpdatePropagatesBetweenHandles(t *testing.T) {
	s := New()
	a := s.Acquire("doc-1")
	defer s.Release(a)

	update, err := a.SetText("converge", "node-a")
	require.NoError(t, err)

	b := crdt.NewRGA()
	ops, err := crdt.DecodeUpdate(update)
	require.NoError(t, err)
	for _, op := range ops {
		require.NoError(t, b.Apply(op))
	}
	require.Equal(t, a.RGA.Text(), b.Text())
}

func TestSnapshotAndLoadSnapshotRoundTrip(t *testing.T) {
	s := New()
	h := s.Acquire("doc-1")
	defer s.Release(h)

	_, err := h.SetText("persisted", "node-a")
	require.NoError(t, err)

	snap, err := h.Snapshot()
	require.NoError(t, err)

	h2 := s.Acquire("doc-2")
	defer s.Release(h2)
	require.NoError(t, h2.LoadSnapshot(snap))
	require.Equal(t, "persisted", h2.RGA.Text())
}

func TestDirtyTrackingAccumulatesAndClears(t *testing.T) {
	s := New()
	h := s.Acquire("doc-1")
	defer s.Release(h)

	_, err := h.SetText("abc", "node-a")
	require.NoError(t, err)
	ops, bytes := h.DirtySince()
	require.Greater(t, ops, 0)
	require.Greater(t, bytes, 0)

	h.ClearDirty()
	ops, bytes = h.DirtySince()
	require.Equal(t, 0, ops)
	require.Equal(t, 0, bytes)
}

func TestResidentListsOpenDocuments(t *testing.T) {
	s := New()
	h1 := s.Acquire("doc-1")
	h2 := s.Acquire("doc-2")
	defer s.Release(h1)
	defer s.Release(h2)

	ids := s.Resident()
	require.ElementsMatch(t, []string{"doc-1", "doc-2"}, ids)
}
