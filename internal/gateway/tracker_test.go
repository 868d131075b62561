package gateway

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJoinAndLeaveMaintainMutualInverse(t *testing.T) {
	tr := NewTracker()
	tr.Register(&Conn{ID: "c1"})
	tr.Join("c1", "doc-1")
	tr.Join("c1", "doc-2")

	require.ElementsMatch(t, []string{"doc-1", "doc-2"}, tr.JoinedDocuments("c1"))
	require.Equal(t, 1, tr.SubscriberCount("doc-1"))

	remaining := tr.Leave("c1", "doc-1")
	require.Equal(t, 0, remaining)
	require.ElementsMatch(t, []string{"doc-2"}, tr.JoinedDocuments("c1"))
	require.Equal(t, 0, tr.SubscriberCount("doc-1"))
}

func TestDisconnectClearsAllJoinedDocuments(t *testing.T) {
	tr := NewTracker()
	tr.Register(&Conn{ID: "c1"})
	tr.Join("c1", "doc-1")
	tr.Join("c1", "doc-2")

	docs := tr.Disconnect("c1")
	require.ElementsMatch(t, []string{"doc-1", "doc-2"}, docs)
	require.Equal(t, 0, tr.SubscriberCount("doc-1"))
	require.Equal(t, 0, tr.SubscriberCount("doc-2"))
	require.Empty(t, tr.JoinedDocuments("c1"))

	_, ok := tr.Conn("c1")
	require.False(t, ok)
}

func TestSubscribersExcludesConnsNotJoined(t *testing.T) {
	tr := NewTracker()
	tr.Register(&Conn{ID: "c1"})
	tr.Register(&Conn{ID: "c2"})
	tr.Join("c1", "doc-1")

	subs := tr.Subscribers("doc-1")
	require.Len(t, subs, 1)
	require.Equal(t, "c1", subs[0].ID)
}

func TestJoinReportsWhetherTheSocketWasAlreadySubscribed(t *testing.T) {
	tr := NewTracker()
	tr.Register(&Conn{ID: "c1"})

	require.True(t, tr.Join("c1", "doc-1"))
	require.False(t, tr.Join("c1", "doc-1"))
	require.Equal(t, 1, tr.SubscriberCount("doc-1"))
}

func TestMultipleConnsShareADocument(t *testing.T) {
	tr := NewTracker()
	tr.Register(&Conn{ID: "c1"})
	tr.Register(&Conn{ID: "c2"})
	tr.Join("c1", "doc-1")
	tr.Join("c2", "doc-1")

	require.Equal(t, 2, tr.SubscriberCount("doc-1"))
	tr.Leave("c1", "doc-1")
	require.Equal(t, 1, tr.SubscriberCount("doc-1"))
}
