// Package permission implements the access-control decision used by
// every other component that needs to ask "can this principal do
// this to this document": a pure function with no I/O, so callers
// (REST handlers, the sync gateway on join) can evaluate it against
// whatever they already loaded without an extra round trip.
package permission

import "github.com/refmd-collab/docserver/internal/persistence"

// Level is re-exported for callers that only need permission, not the
// rest of the persistence package's surface.
type Level = persistence.PermissionLevel

const (
	LevelView    = persistence.PermissionView
	LevelComment = persistence.PermissionComment
	LevelEdit    = persistence.PermissionEdit
	LevelAdmin   = persistence.PermissionAdmin
	LevelOwner   = persistence.PermissionOwner
)

var rank = map[Level]int{
	LevelView:    1,
	LevelComment: 2,
	LevelEdit:    3,
	LevelAdmin:   4,
	LevelOwner:   5,
}

// Atleast reports whether level grants at least the access required.
func Atleast(level, required Level) bool {
	return rank[level] >= rank[required]
}

// Request bundles everything Evaluate needs to decide one access
// check: who's asking, about what document, optionally presenting a
// share token, and (for operations scoped to a specific resource,
// e.g. "delete this attachment") which kind of resource the request
// targets.
type Request struct {
	DocumentID   string
	UserID       string // empty for an unauthenticated/share-link request
	IsOwner      bool
	Grant        *Level // explicit DocumentPermission, if one exists for UserID
	ShareToken   string
	ShareLevel   *Level // the level of the share link ShareToken resolves to, if valid
	ExpectedKind string // optional: restricts the decision to a specific resource kind
}

// Decision is the outcome of Evaluate.
type Decision struct {
	Allowed bool
	Level   Level  // the effective level granted, meaningful only if Allowed
	Reason  string
}

// Evaluate decides access following a fixed precedence: owner access
// always wins, then an explicit per-user grant, then a valid
// share-link token, and only then deny. required is the minimum level
// the caller's operation needs.
func Evaluate(req Request, required Level) Decision {
	if req.IsOwner {
		return Decision{Allowed: true, Level: LevelOwner, Reason: "owner"}
	}

	if req.Grant != nil {
		if Atleast(*req.Grant, required) {
			return Decision{Allowed: true, Level: *req.Grant, Reason: "explicit_grant"}
		}
		return Decision{Allowed: false, Reason: "explicit_grant_insufficient"}
	}

	if req.ShareToken != "" && req.ShareLevel != nil && shareTokenCoversKind(req.ExpectedKind) {
		if Atleast(*req.ShareLevel, required) {
			return Decision{Allowed: true, Level: *req.ShareLevel, Reason: "share_token"}
		}
		return Decision{Allowed: false, Reason: "share_token_insufficient"}
	}

	return Decision{Allowed: false, Reason: "no_access"}
}

// shareKindDenylist lists resource kinds a share link can never grant
// access to, regardless of its level: sharing a document for viewing
// must not leak account-scoped resources like git credentials or the
// permission list itself.
var shareKindDenylist = map[string]bool{
	"git_config":  true,
	"permission":  true,
	"share_link":  true,
}

// shareTokenCoversKind reports whether a share link may authorize a
// request against the given resource kind. An empty kind means "the
// document itself", which share links always cover.
func shareTokenCoversKind(kind string) bool {
	return !shareKindDenylist[kind]
}
