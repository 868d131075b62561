package linkgraph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDistinguishesAllThreeForms(t *testing.T) {
	text := "See [[Project Plan]], embed ![[diagram.png]], and cc @[[Ada Lovelace]]."
	links := Parse(text)
	require.Len(t, links, 3)
	require.Equal(t, KindReference, links[0].Kind)
	require.Equal(t, "Project Plan", links[0].Target)
	require.Equal(t, KindEmbed, links[1].Kind)
	require.Equal(t, "diagram.png", links[1].Target)
	require.Equal(t, KindMention, links[2].Kind)
	require.Equal(t, "Ada Lovelace", links[2].Target)
}

func TestParseIgnoresEmptyBrackets(t *testing.T) {
	links := Parse("nothing here [[]]")
	require.Empty(t, links)
}

func TestParsePreservesDuplicateTargets(t *testing.T) {
	links := Parse("[[A]] and again [[A]]")
	require.Len(t, links, 2)
}

func TestParseHandlesNoLinks(t *testing.T) {
	require.Empty(t, Parse("plain text with no links at all"))
}

type fakeLookup struct {
	byID    map[string]bool
	byTitle map[string]string
}

func (f fakeLookup) ResolveByID(ownerID, id string) (bool, error) {
	return f.byID[id], nil
}

func (f fakeLookup) ResolveByTitle(ownerID, title string) (string, bool, error) {
	id, ok := f.byTitle[title]
	return id, ok, nil
}

func TestResolveAllPrefersUUIDThenFallsBackToTitle(t *testing.T) {
	lookup := fakeLookup{
		byID:    map[string]bool{"11111111-1111-1111-1111-111111111111": true},
		byTitle: map[string]string{"Notes": "22222222-2222-2222-2222-222222222222"},
	}
	links := []RawLink{
		{Kind: KindReference, Target: "11111111-1111-1111-1111-111111111111"},
		{Kind: KindReference, Target: "Notes"},
		{Kind: KindReference, Target: "Missing"},
	}

	resolved, err := ResolveAll(lookup, "owner-1", links)
	require.NoError(t, err)
	require.Len(t, resolved, 3)
	require.NotNil(t, resolved[0].TargetID)
	require.Equal(t, "11111111-1111-1111-1111-111111111111", *resolved[0].TargetID)
	require.NotNil(t, resolved[1].TargetID)
	require.Equal(t, "22222222-2222-2222-2222-222222222222", *resolved[1].TargetID)
	require.Nil(t, resolved[2].TargetID)
}
