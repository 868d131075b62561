// Package persistence is the durable storage layer: GORM models and
// repository operations over PostgreSQL for everything that must
// survive a restart: document metadata and CRDT snapshots, the
// append-only update log, permissions, share links, attachments, the
// link graph, scrap posts, git sync configuration, and auth
// credentials. It follows the reference stack's GORM-over-postgres
// shape (explicit gorm-tagged model structs, AutoMigrate-driven schema, connection
// pool tuning at Open time).
package persistence

import (
	"time"

	"gorm.io/gorm"
)

// User is an authenticated principal. Credential issuance (signup,
// login, password hashing) lives outside this core; User here exists
// so documents/permissions/refresh tokens have something to reference.
type User struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	Email        string `gorm:"uniqueIndex;size:255;not null"`
	DisplayName  string `gorm:"size:255"`
	PasswordHash string `gorm:"size:255"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DocumentKind distinguishes a regular document, a folder (content-less,
// organizational only), and a scrap thread.
type DocumentKind string

const (
	DocumentKindDocument DocumentKind = "document"
	DocumentKindFolder   DocumentKind = "folder"
	DocumentKindScrap    DocumentKind = "scrap"
)

// Document is one collaboratively edited markdown file's metadata row.
// The authoritative text content lives in the CRDT replica during
// editing and is written back here (the Content column) only when the
// materializer runs: the CRDT is truth while a document is open, the
// row is truth at rest. Kind is immutable after creation; folders carry
// neither Content nor Path.
type Document struct {
	ID        string       `gorm:"type:uuid;primaryKey"`
	OwnerID   string       `gorm:"type:uuid;index;not null"`
	ParentID  *string      `gorm:"type:uuid;index"`
	Kind      DocumentKind `gorm:"size:16;not null;default:document"`
	Title     string       `gorm:"size:512;not null"`
	Content   string       `gorm:"type:text"`
	Path      string       `gorm:"size:1024;index"`
	Visibility string      `gorm:"size:16;not null;default:private"`
	PublishedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// DocumentSnapshot holds the latest full CRDT snapshot for a document,
// one row per document (upserted, not appended), used to rehydrate a
// replica on first access without replaying the entire update log.
type DocumentSnapshot struct {
	DocumentID  string `gorm:"type:uuid;primaryKey"`
	Snapshot    []byte `gorm:"type:bytea;not null"`
	StateVector []byte `gorm:"type:bytea;not null"`
	UpdatedAt   time.Time
}

// DocumentUpdate is one entry in the append-only update log: every
// integrated CRDT update is recorded here before the in-memory replica
// is considered durable, so a crash between updates never loses data
// that was already acknowledged to a client.
type DocumentUpdate struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	DocumentID string `gorm:"type:uuid;index;not null"`
	Update     []byte `gorm:"type:bytea;not null"`
	OriginNode string `gorm:"size:255"`
	CreatedAt  time.Time
}

// PermissionLevel is the access level a grant or share link confers.
type PermissionLevel string

const (
	PermissionView    PermissionLevel = "view"
	PermissionComment PermissionLevel = "comment"
	PermissionEdit    PermissionLevel = "edit"
	PermissionAdmin   PermissionLevel = "admin"
	PermissionOwner   PermissionLevel = "owner"
)

// DocumentPermission is an explicit, per-user grant on a document
// distinct from ownership. Access precedence is owner > explicit
// grant > share token > deny.
type DocumentPermission struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	DocumentID string `gorm:"type:uuid;index;not null"`
	UserID     string `gorm:"type:uuid;index;not null"`
	Level      PermissionLevel `gorm:"size:32;not null"`
	CreatedAt  time.Time
}

// ShareLink is an unauthenticated, token-bearing access path to a
// document at a fixed permission level.
type ShareLink struct {
	ID         string          `gorm:"type:uuid;primaryKey"`
	DocumentID string          `gorm:"type:uuid;index;not null"`
	Token      string          `gorm:"uniqueIndex;size:64;not null"`
	Level      PermissionLevel `gorm:"size:32;not null"`
	ExpiresAt  *time.Time
	CreatedAt  time.Time
}

// Attachment is an uploaded file associated with a document.
type Attachment struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	DocumentID string `gorm:"type:uuid;index;not null"`
	Filename   string `gorm:"size:512;not null"`
	StoragePath string `gorm:"size:1024;not null"`
	SizeBytes  int64
	MimeType   string `gorm:"size:255"`
	CreatedAt  time.Time
}

// LinkKind distinguishes the three wiki-link forms the link indexer
// parses out of document text.
type LinkKind string

const (
	LinkReference LinkKind = "reference" // [[target]]
	LinkEmbed     LinkKind = "embed"     // ![[target]]
	LinkMention   LinkKind = "mention"   // @[[target]]
)

// DocumentLink is one resolved edge in the link graph, replaced in
// full every time its source document is materialized.
type DocumentLink struct {
	ID           string   `gorm:"type:uuid;primaryKey"`
	SourceID     string   `gorm:"type:uuid;index;not null"`
	TargetID     *string  `gorm:"type:uuid;index"`
	TargetLabel  string   `gorm:"size:512;not null"`
	Kind         LinkKind `gorm:"size:32;not null"`
	CreatedAt    time.Time
}

// ScrapPost is one append-only post within a document's scrap thread.
type ScrapPost struct {
	ID         string  `gorm:"type:uuid;primaryKey"`
	DocumentID string  `gorm:"type:uuid;index;not null"`
	AuthorID   *string `gorm:"type:uuid"`
	AuthorName string  `gorm:"size:255"`
	Body       string  `gorm:"type:text;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  gorm.DeletedAt `gorm:"index"`
}

// Tag is a user-defined label, associated with documents and scrap
// posts through join tables.
type Tag struct {
	ID     string `gorm:"type:uuid;primaryKey"`
	UserID string `gorm:"type:uuid;index;not null"`
	Name   string `gorm:"size:128;not null"`
}

// ScrapPostTag joins ScrapPost and Tag many-to-many.
type ScrapPostTag struct {
	ScrapPostID string `gorm:"type:uuid;primaryKey"`
	TagID       string `gorm:"type:uuid;primaryKey"`
}

// GitConfig is one user's git remote sync configuration. AuthBlob is
// opaque ciphertext produced by internal/cryptox; the plaintext
// credential never reaches this row.
type GitConfig struct {
	UserID     string `gorm:"type:uuid;primaryKey"`
	RemoteURL  string `gorm:"size:1024;not null"`
	Branch     string `gorm:"size:255;not null;default:main"`
	AuthBlob   []byte `gorm:"type:bytea"`
	AutoSync   bool   `gorm:"not null;default:false"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// GitSyncLog records the outcome of one sync attempt for a user, for
// the status endpoint and for diagnosing repeated failures.
type GitSyncLog struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	UserID    string `gorm:"type:uuid;index;not null"`
	Success   bool
	Message   string `gorm:"type:text"`
	CreatedAt time.Time
}

// RefreshToken is a hashed (never plaintext) refresh token issued to
// a user session.
type RefreshToken struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	UserID    string `gorm:"type:uuid;index;not null"`
	TokenHash string `gorm:"size:255;not null"`
	ExpiresAt time.Time
	Revoked   bool `gorm:"not null;default:false"`
	CreatedAt time.Time
}

// AllModels lists every model AutoMigrate needs to know about.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Document{},
		&DocumentSnapshot{},
		&DocumentUpdate{},
		&DocumentPermission{},
		&ShareLink{},
		&Attachment{},
		&DocumentLink{},
		&ScrapPost{},
		&Tag{},
		&ScrapPostTag{},
		&GitConfig{},
		&GitSyncLog{},
		&RefreshToken{},
	}
}
