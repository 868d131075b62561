// Package scrap implements the scrap thread: an append-only sequence
// of short posts embedded directly in a document's CRDT text as
// HTML-comment-delimited blocks, so the thread renders inline with the
// rest of the markdown and survives the same sync/materialize path as
// everything else in the document.
package scrap

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// blockPattern matches one rendered scrap block in document text.
// DOTALL via (?s) so Body can span multiple lines.
var blockPattern = regexp.MustCompile(`(?s)<!-- scrap:start id=([0-9a-fA-F-]+) author=(.*?) -->\n(.*?)\n<!-- scrap:end -->`)

// Block is one parsed scrap post as it appears in document text.
type Block struct {
	ID         string
	AuthorName string
	Body       string
}

// Parse extracts every scrap block present in document text, in
// document order.
func Parse(text string) []Block {
	matches := blockPattern.FindAllStringSubmatch(text, -1)
	blocks := make([]Block, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, Block{ID: m[1], AuthorName: m[2], Body: m[3]})
	}
	return blocks
}

// Render renders a Block back to its embedded text form.
func Render(b Block) string {
	return fmt.Sprintf("<!-- scrap:start id=%s author=%s -->\n%s\n<!-- scrap:end -->", b.ID, b.AuthorName, b.Body)
}

// Append returns text with a new block added at the end, separated
// from existing content by a blank line so markdown rendering doesn't
// merge it into a preceding paragraph.
func Append(text string, b Block) string {
	rendered := Render(b)
	if strings.TrimRight(text, "\n") == "" {
		return rendered
	}
	return strings.TrimRight(text, "\n") + "\n\n" + rendered
}

// Replace substitutes the block with id for an updated one, leaving
// the rest of the text untouched. Returns ok=false if id wasn't found.
func Replace(text string, id string, newBody string) (string, bool) {
	found := false
	out := blockPattern.ReplaceAllStringFunc(text, func(match string) string {
		sub := blockPattern.FindStringSubmatch(match)
		if sub[1] != id {
			return match
		}
		found = true
		return Render(Block{ID: sub[1], AuthorName: sub[2], Body: newBody})
	})
	return out, found
}

// Remove deletes the block with id from text entirely, along with one
// adjacent blank-line separator if present.
func Remove(text string, id string) (string, bool) {
	found := false
	out := blockPattern.ReplaceAllStringFunc(text, func(match string) string {
		sub := blockPattern.FindStringSubmatch(match)
		if sub[1] != id {
			return match
		}
		found = true
		return ""
	})
	if !found {
		return text, false
	}
	out = regexp.MustCompile(`\n{3,}`).ReplaceAllString(out, "\n\n")
	return strings.Trim(out, "\n"), true
}

// Author identifies who is posting: a registered user, or an anonymous
// share-link visitor presenting only a display name. Scrap posts are
// allowed from share-link sessions without an account.
type Author struct {
	UserID *string
	Name   string
}

func (a Author) displayName() string {
	if a.Name != "" {
		return a.Name
	}
	if a.UserID != nil {
		return *a.UserID
	}
	return "anonymous"
}

// NowFunc is a package-level clock that tests can override. Post ids
// come from uuid.NewString, called directly in service.go.
var NowFunc = time.Now
