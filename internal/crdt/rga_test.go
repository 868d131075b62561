package crdt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRGAInsertAndText(t *testing.T) {
	r := NewRGA()
	var after RGANodeID
	for _, ch := range "Hello" {
		n := r.Insert(after, ch, "A")
		after = n.ID
	}
	require.Equal(t, "Hello", r.Text())
}

func TestRGADeleteTombstones(t *testing.T) {
	r := NewRGA()
	n1 := r.Insert(RGANodeID{}, 'a', "A")
	n2 := r.Insert(n1.ID, 'b', "A")
	r.Insert(n2.ID, 'c', "A")
	require.Equal(t, "abc", r.Text())

	r.Delete(n2.ID)
	require.Equal(t, "ac", r.Text())

	// idempotent: deleting again and deleting an unknown id is a no-op
	r.Delete(n2.ID)
	r.Delete(RGANodeID{Seq: 999, NodeID: "ghost"})
	require.Equal(t, "ac", r.Text())
}

func TestRGAConvergenceUnderReordering(t *testing.T) {
	// Two replicas receive the same ops in different orders and must
	// converge on identical text.
	src := NewRGA()
	root := src.Insert(RGANodeID{}, 'H', "A")
	ops := []RGANode{root}
	// Every later letter is anchored on the root, so each op can be
	// applied as soon as the root has arrived. Siblings at one anchor
	// are ordered newest first, so inserting "olle" reads "Hello".
	for _, ch := range "olle" {
		ops = append(ops, src.Insert(root.ID, ch, "A"))
	}

	r1 := NewRGA()
	for _, op := range ops {
		require.NoError(t, r1.Apply(op))
	}

	r2 := NewRGA()
	for i := len(ops) - 1; i >= 0; i-- {
		// Apply out of order is only valid once the anchor exists;
		// replay the zero-anchor root first, then walk backwards for
		// the rest to exercise a genuinely different delivery order.
		_ = i
	}
	// Build r2 with a valid alternate order: root must come first
	// (anchor dependency), but the remaining letters can arrive in any
	// order relative to each other as long as anchors resolve. Here
	// we apply them in reverse-of-insertion order after the root,
	// which is still a different sequence than r1's.
	require.NoError(t, r2.Apply(ops[0]))
	for i := len(ops) - 1; i >= 1; i-- {
		require.NoError(t, r2.Apply(ops[i]))
	}

	require.Equal(t, r1.Text(), r2.Text())
	require.Equal(t, "Hello", r1.Text())
}

func TestRGAConcurrentInsertsAtSameAnchorAreDeterministic(t *testing.T) {
	base := NewRGA()
	root := base.Insert(RGANodeID{}, 'X', "A")

	// Two replicas both insert after root concurrently, from different
	// origins, without seeing each other's op first.
	ra := NewRGA()
	require.NoError(t, ra.Apply(root))
	opA := ra.Insert(root.ID, 'a', "A")

	rb := NewRGA()
	require.NoError(t, rb.Apply(root))
	opB := rb.Insert(root.ID, 'b', "B")

	// Cross-apply so both replicas see both concurrent inserts.
	require.NoError(t, ra.Apply(opB))
	require.NoError(t, rb.Apply(opA))

	require.Equal(t, ra.Text(), rb.Text())
}

func TestRGAApplyIsIdempotent(t *testing.T) {
	r := NewRGA()
	n := r.Insert(RGANodeID{}, 'z', "A")
	before := r.Text()
	require.NoError(t, r.Apply(n))
	require.Equal(t, before, r.Text())
}

func TestReplaceAll(t *testing.T) {
	r := NewRGA()
	r.Insert(RGANodeID{}, 'x', "A")
	ops := r.ReplaceAll("new text", "A")
	require.Equal(t, "new text", r.Text())
	require.NotEmpty(t, ops)
}

func TestSnapshotRoundTrip(t *testing.T) {
	r := NewRGA()
	var after RGANodeID
	for _, ch := range "roundtrip" {
		n := r.Insert(after, ch, "A")
		after = n.ID
	}
	snap, err := r.Snapshot()
	require.NoError(t, err)

	r2, err := Rehydrate(snap)
	require.NoError(t, err)
	require.Equal(t, r.Text(), r2.Text())
	require.Equal(t, r.StateVector(), r2.StateVector())
}

func TestOpsSinceStateVector(t *testing.T) {
	r := NewRGA()
	n1 := r.Insert(RGANodeID{}, 'a', "A")
	sv := r.StateVector()
	n2 := r.Insert(n1.ID, 'b', "A")

	diff := r.OpsSince(sv)
	require.Len(t, diff, 1)
	require.Equal(t, n2.ID, diff[0].ID)
}

func TestVClockHappensBeforeAndMerge(t *testing.T) {
	v1 := VClock{"A": 1}
	v2 := VClock{"A": 2}
	require.True(t, v1.HappensBefore(v2))
	require.False(t, v2.HappensBefore(v1))

	v3 := VClock{"B": 1}
	require.True(t, v1.Concurrent(v3))

	merged := v1.Merge(v2).Merge(v3)
	require.Equal(t, uint64(2), merged["A"])
	require.Equal(t, uint64(1), merged["B"])
}
