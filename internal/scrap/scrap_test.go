package scrap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendThenParseRoundTrips(t *testing.T) {
	text := "# Doc title\n\nsome body text"
	b := Block{ID: "abc-123", AuthorName: "Ada", Body: "first post"}
	out := Append(text, b)

	parsed := Parse(out)
	require.Len(t, parsed, 1)
	require.Equal(t, b, parsed[0])
}

func TestAppendMultipleBlocksPreservesOrder(t *testing.T) {
	text := Append("", Block{ID: "1", AuthorName: "Ada", Body: "one"})
	text = Append(text, Block{ID: "2", AuthorName: "Grace", Body: "two"})

	parsed := Parse(text)
	require.Len(t, parsed, 2)
	require.Equal(t, "1", parsed[0].ID)
	require.Equal(t, "2", parsed[1].ID)
}

func TestReplaceUpdatesOnlyMatchingBlock(t *testing.T) {
	text := Append("", Block{ID: "1", AuthorName: "Ada", Body: "one"})
	text = Append(text, Block{ID: "2", AuthorName: "Grace", Body: "two"})

	out, ok := Replace(text, "1", "one edited")
	require.True(t, ok)

	parsed := Parse(out)
	require.Equal(t, "one edited", parsed[0].Body)
	require.Equal(t, "two", parsed[1].Body)
}

func TestReplaceMissingIDReturnsNotFound(t *testing.T) {
	text := Append("", Block{ID: "1", AuthorName: "Ada", Body: "one"})
	_, ok := Replace(text, "missing", "x")
	require.False(t, ok)
}

func TestRemoveDeletesBlockAndNormalizesWhitespace(t *testing.T) {
	text := Append("doc body", Block{ID: "1", AuthorName: "Ada", Body: "one"})
	text = Append(text, Block{ID: "2", AuthorName: "Grace", Body: "two"})

	out, ok := Remove(text, "1")
	require.True(t, ok)

	parsed := Parse(out)
	require.Len(t, parsed, 1)
	require.Equal(t, "2", parsed[0].ID)
}

func TestAuthorDisplayNameFallsBackToAnonymous(t *testing.T) {
	require.Equal(t, "anonymous", Author{}.displayName())
	require.Equal(t, "Ada", Author{Name: "Ada"}.displayName())
}
