// Package linkgraph extracts and resolves the wiki-style links a
// document's text can contain ([[target]] references, ![[target]]
// embeds, and @[[target]] mentions) and maintains the replace-all
// index of resolved edges that backs backlink queries.
package linkgraph

import "regexp"

// linkPattern matches all three link forms in one pass: an optional
// leading '!' or '@' sigil, then the [[...]] body. Capture group 1 is
// the sigil (empty for a plain reference), group 2 is the target text.
var linkPattern = regexp.MustCompile(`(!|@)?\[\[([^\[\]]+)\]\]`)

// RawLink is one link occurrence as found in text, before resolution.
type RawLink struct {
	Kind   Kind
	Target string
}

// Kind mirrors persistence.LinkKind without importing persistence, so
// the parser has no dependency on the storage layer.
type Kind string

const (
	KindReference Kind = "reference"
	KindEmbed     Kind = "embed"
	KindMention   Kind = "mention"
)

// Parse extracts every link occurrence from document text. Duplicate
// targets are preserved (the caller dedupes if needed) since a
// document may intentionally reference the same target more than
// once and callers that count occurrences need that preserved.
func Parse(text string) []RawLink {
	matches := linkPattern.FindAllStringSubmatch(text, -1)
	links := make([]RawLink, 0, len(matches))
	for _, m := range matches {
		kind := KindReference
		switch m[1] {
		case "!":
			kind = KindEmbed
		case "@":
			kind = KindMention
		}
		target := m[2]
		if target == "" {
			continue
		}
		links = append(links, RawLink{Kind: kind, Target: target})
	}
	return links
}
