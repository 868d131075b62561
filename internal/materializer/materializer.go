// Package materializer writes a document's current CRDT text out to
// the filesystem as a markdown file with a frontmatter header, using
// an afero.Fs so the write path is swappable for an in-memory
// filesystem in tests without touching real disk.
package materializer

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"
	"github.com/spf13/afero"

	"github.com/refmd-collab/docserver/internal/apperr"
	"github.com/refmd-collab/docserver/internal/logging"
)

// NotifyFunc is called after a successful materialize so the git
// syncer can mark the user's working tree dirty. It deliberately takes
// only a user id: the syncer coalesces per-user, not per-document.
type NotifyFunc func(ctx context.Context, ownerID string)

// Materializer writes documents to storageRoot/<ownerID>/<path>.md.
type Materializer struct {
	fs          afero.Fs
	storageRoot string
	log         *logging.Logger
	notify      NotifyFunc
}

// Config configures a Materializer.
type Config struct {
	Fs          afero.Fs
	StorageRoot string
	Logger      *logging.Logger
	Notify      NotifyFunc
}

func New(cfg Config) *Materializer {
	fs := cfg.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	notify := cfg.Notify
	if notify == nil {
		notify = func(context.Context, string) {}
	}
	return &Materializer{fs: fs, storageRoot: cfg.StorageRoot, log: cfg.Logger, notify: notify}
}

// reservedPathChars matches the filesystem-meaningful characters a
// document title can't be allowed to carry straight through, so a
// title can't be used to escape storageRoot or collide with a
// filesystem-meaningful character.
var reservedPathChars = regexp.MustCompile(`[/\\:*?"<>|\x00]`)

// dashRun collapses two or more consecutive dashes left behind after
// reservedPathChars substitution into one.
var dashRun = regexp.MustCompile(`-{2,}`)

// maxSanitizedBytes caps a sanitized path component at 100 bytes so a
// long title can't produce a filename past filesystem limits.
const maxSanitizedBytes = 100

// Sanitize converts an arbitrary document path/title into a safe
// relative filesystem path. It is idempotent: Sanitize(Sanitize(p)) ==
// Sanitize(p), required so repeated materializes of an already-clean
// path never drift.
func Sanitize(p string) string {
	p = strings.TrimSpace(p)
	parts := strings.Split(p, "/")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		part = reservedPathChars.ReplaceAllString(part, "-")
		part = strings.ReplaceAll(part, " ", "_")
		part = dashRun.ReplaceAllString(part, "-")
		part = strings.Trim(part, ".-_")
		if part == "" || part == "." || part == ".." {
			continue
		}
		clean = append(clean, truncateBytes(part, maxSanitizedBytes))
	}
	if len(clean) == 0 {
		return "untitled"
	}
	return path.Join(clean...)
}

// truncateBytes cuts s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	b := []byte(s)[:n]
	for len(b) > 0 && !utf8.RuneStart(b[len(b)-1]) {
		b = b[:len(b)-1]
	}
	return string(b)
}

// Frontmatter is the YAML-ish header written above a document's body.
type Frontmatter struct {
	ID        string
	Title     string
	IsScrap   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func renderFrontmatter(fm Frontmatter) string {
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "id: %s\n", fm.ID)
	fmt.Fprintf(&b, "title: %s\n", fm.Title)
	if fm.IsScrap {
		b.WriteString("type: scrap\n")
	}
	fmt.Fprintf(&b, "created_at: %s\n", fm.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "updated_at: %s\n", fm.UpdatedAt.UTC().Format(time.RFC3339))
	b.WriteString("---\n\n")
	return b.String()
}

// retryPolicy gives transient (EIO-class) write failures 3 attempts
// with a 100ms pause between each.
func retryPolicy() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.Multiplier = 1 // fixed pause, not exponential
	b.MaxInterval = 100 * time.Millisecond
	return b
}

// Write renders and writes one document's markdown file at
// storageRoot/ownerID/relPath.md, creating parent directories as
// needed. relPath should already be sanitized (the caller controls
// whether the caller-facing title or a stored canonical path is the
// source).
func (m *Materializer) Write(ctx context.Context, ownerID string, fm Frontmatter, relPath, body string) (string, error) {
	clean := Sanitize(relPath)
	fullPath := path.Join(m.storageRoot, ownerID, clean+".md")
	dir := path.Dir(fullPath)

	content := renderFrontmatter(fm) + body

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := m.fs.MkdirAll(dir, 0o755); err != nil {
			return struct{}{}, err
		}
		if err := afero.WriteFile(m.fs, fullPath, []byte(content), 0o644); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(retryPolicy()), backoff.WithMaxTries(3))
	if err != nil {
		return "", apperr.Wrap(apperr.IoFatal, fmt.Errorf("materializer: write %s: %w", fullPath, err))
	}

	if m.log != nil {
		m.log.WithField("path", fullPath).Debug("materialized document")
	}
	m.notify(ctx, ownerID)
	return fullPath, nil
}

// Move renames a document's materialized file when its title/path
// changes, so history (and any git tracking) reflects a rename rather
// than a delete-plus-create.
func (m *Materializer) Move(ctx context.Context, ownerID, oldRelPath, newRelPath string) error {
	oldPath := path.Join(m.storageRoot, ownerID, Sanitize(oldRelPath)+".md")
	newPath := path.Join(m.storageRoot, ownerID, Sanitize(newRelPath)+".md")

	exists, err := afero.Exists(m.fs, oldPath)
	if err != nil {
		return apperr.Wrap(apperr.IoTransient, err)
	}
	if !exists {
		return nil
	}

	if err := m.fs.MkdirAll(path.Dir(newPath), 0o755); err != nil {
		return apperr.Wrap(apperr.IoFatal, err)
	}
	if err := m.fs.Rename(oldPath, newPath); err != nil {
		return apperr.Wrap(apperr.IoFatal, err)
	}
	m.notify(ctx, ownerID)
	return nil
}

// AttachmentPath returns the on-disk path for an uploaded file
// belonging to a document, under a shared attachments/ directory so
// attachments aren't scattered alongside every document's markdown.
func (m *Materializer) AttachmentPath(ownerID, documentID, filename string) string {
	return path.Join(m.storageRoot, ownerID, "attachments", documentID, Sanitize(filename))
}

// WriteAttachment stores file bytes at AttachmentPath, returning the
// path written.
func (m *Materializer) WriteAttachment(ctx context.Context, ownerID, documentID, filename string, data []byte) (string, error) {
	fullPath := m.AttachmentPath(ownerID, documentID, filename)

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := m.fs.MkdirAll(path.Dir(fullPath), 0o755); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, afero.WriteFile(m.fs, fullPath, data, 0o644)
	}, backoff.WithBackOff(retryPolicy()), backoff.WithMaxTries(3))
	if err != nil {
		return "", apperr.Wrap(apperr.IoFatal, err)
	}
	m.notify(ctx, ownerID)
	return fullPath, nil
}
