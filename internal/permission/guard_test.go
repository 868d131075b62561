package permission

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOwnerAlwaysAllowed(t *testing.T) {
	d := Evaluate(Request{IsOwner: true}, LevelEdit)
	require.True(t, d.Allowed)
	require.Equal(t, "owner", d.Reason)
}

func TestExplicitGrantTakesPrecedenceOverShareToken(t *testing.T) {
	grant := LevelComment
	shareLevel := LevelEdit
	d := Evaluate(Request{
		Grant:      &grant,
		ShareToken: "tok",
		ShareLevel: &shareLevel,
	}, LevelComment)
	require.True(t, d.Allowed)
	require.Equal(t, "explicit_grant", d.Reason)
}

func TestExplicitGrantInsufficientDoesNotFallThroughToShare(t *testing.T) {
	grant := LevelView
	shareLevel := LevelEdit
	d := Evaluate(Request{
		Grant:      &grant,
		ShareToken: "tok",
		ShareLevel: &shareLevel,
	}, LevelEdit)
	require.False(t, d.Allowed)
	require.Equal(t, "explicit_grant_insufficient", d.Reason)
}

func TestShareTokenGrantsViewAccess(t *testing.T) {
	shareLevel := LevelView
	d := Evaluate(Request{ShareToken: "tok", ShareLevel: &shareLevel}, LevelView)
	require.True(t, d.Allowed)
	require.Equal(t, "share_token", d.Reason)
}

func TestShareTokenNeverCoversGitConfig(t *testing.T) {
	shareLevel := LevelEdit
	d := Evaluate(Request{
		ShareToken:   "tok",
		ShareLevel:   &shareLevel,
		ExpectedKind: "git_config",
	}, LevelView)
	require.False(t, d.Allowed)
	require.Equal(t, "no_access", d.Reason)
}

func TestNoCredentialsDenied(t *testing.T) {
	d := Evaluate(Request{}, LevelView)
	require.False(t, d.Allowed)
	require.Equal(t, "no_access", d.Reason)
}

func TestAtleastRanking(t *testing.T) {
	require.True(t, Atleast(LevelEdit, LevelView))
	require.True(t, Atleast(LevelComment, LevelComment))
	require.False(t, Atleast(LevelView, LevelEdit))
}
