package linkgraph

import "github.com/google/uuid"

// Lookup resolves a link target to a document id. Implementations
// scope the search to documents the requesting user can see (their
// own documents plus anything explicitly granted to them). Link
// resolution must not leak the existence of documents the user has no
// access to.
type Lookup interface {
	// ResolveByID returns true if id names a document within scope.
	ResolveByID(ownerID, id string) (exists bool, err error)
	// ResolveByTitle returns the id of a document matching title within
	// scope; which one is returned when several match is not defined.
	ResolveByTitle(ownerID, title string) (id string, found bool, err error)
}

// Resolved is one link occurrence after target resolution: TargetID is
// nil if the target could not be matched to any visible document.
// That's a dangling link, not an error.
type Resolved struct {
	Kind     Kind
	Label    string
	TargetID *string
}

// ResolveAll resolves every raw link against lookup, scoped to
// ownerID. A target that parses as a UUID is resolved by id first;
// anything else (or a UUID that doesn't resolve) falls back to a
// title match.
func ResolveAll(lookup Lookup, ownerID string, links []RawLink) ([]Resolved, error) {
	out := make([]Resolved, 0, len(links))
	for _, l := range links {
		resolved := Resolved{Kind: l.Kind, Label: l.Target}

		if _, err := uuid.Parse(l.Target); err == nil {
			exists, err := lookup.ResolveByID(ownerID, l.Target)
			if err != nil {
				return nil, err
			}
			if exists {
				id := l.Target
				resolved.TargetID = &id
				out = append(out, resolved)
				continue
			}
		}

		id, found, err := lookup.ResolveByTitle(ownerID, l.Target)
		if err != nil {
			return nil, err
		}
		if found {
			resolved.TargetID = &id
		}
		out = append(out, resolved)
	}
	return out, nil
}
