package linkgraph

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/refmd-collab/docserver/internal/apperr"
	"github.com/refmd-collab/docserver/internal/persistence"
)

// Indexer maintains the DocumentLink table: every time a document is
// materialized, its entire outgoing link set is parsed fresh and
// replaces whatever was indexed for it before. Replace-all per
// materialize, not an incremental diff.
type Indexer struct {
	db *gorm.DB
}

func NewIndexer(db *gorm.DB) *Indexer {
	return &Indexer{db: db}
}

// gormLookup adapts the Indexer's db to the Lookup interface,
// scoping every query to documents owned by or shared with ownerID.
type gormLookup struct {
	db *gorm.DB
}

func (l gormLookup) ResolveByID(ownerID, id string) (bool, error) {
	var count int64
	err := l.db.Model(&persistence.Document{}).
		Where("id = ? AND (owner_id = ? OR id IN (SELECT document_id FROM document_permissions WHERE user_id = ?))", id, ownerID, ownerID).
		Count(&count).Error
	return count > 0, err
}

func (l gormLookup) ResolveByTitle(ownerID, title string) (string, bool, error) {
	var doc persistence.Document
	err := l.db.
		Where("title = ? AND (owner_id = ? OR id IN (SELECT document_id FROM document_permissions WHERE user_id = ?))", title, ownerID, ownerID).
		First(&doc).Error
	if err == gorm.ErrRecordNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return doc.ID, true, nil
}

// Reindex parses text, resolves every link scoped to ownerID, and
// replaces sourceID's stored links with the freshly resolved set, all
// within one transaction so readers never observe a half-updated edge
// set.
func (idx *Indexer) Reindex(ctx context.Context, sourceID, ownerID, text string) error {
	raw := Parse(text)
	resolved, err := ResolveAll(gormLookup{db: idx.db.WithContext(ctx)}, ownerID, raw)
	if err != nil {
		return apperr.Wrap(apperr.PersistenceTransient, err)
	}

	return idx.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("source_id = ?", sourceID).Delete(&persistence.DocumentLink{}).Error; err != nil {
			return err
		}
		if len(resolved) == 0 {
			return nil
		}
		rows := make([]persistence.DocumentLink, 0, len(resolved))
		for _, r := range resolved {
			rows = append(rows, persistence.DocumentLink{
				ID:          uuid.NewString(),
				SourceID:    sourceID,
				TargetID:    r.TargetID,
				TargetLabel: r.Label,
				Kind:        persistence.LinkKind(r.Kind),
			})
		}
		return tx.Create(&rows).Error
	})
}

// Backlinks returns every document that links to targetID.
func (idx *Indexer) Backlinks(ctx context.Context, targetID string) ([]persistence.DocumentLink, error) {
	var rows []persistence.DocumentLink
	err := idx.db.WithContext(ctx).Where("target_id = ?", targetID).Find(&rows).Error
	if err != nil {
		return nil, apperr.Wrap(apperr.PersistenceTransient, err)
	}
	return rows, nil
}

// Outgoing returns every link a document, as stored at its last
// materialize, points out with.
func (idx *Indexer) Outgoing(ctx context.Context, sourceID string) ([]persistence.DocumentLink, error) {
	var rows []persistence.DocumentLink
	err := idx.db.WithContext(ctx).Where("source_id = ?", sourceID).Find(&rows).Error
	if err != nil {
		return nil, apperr.Wrap(apperr.PersistenceTransient, err)
	}
	return rows, nil
}

// Stats summarizes a document's link graph position.
type Stats struct {
	OutgoingCount int
	BacklinkCount int
	DanglingCount int
}

// DocumentStats computes Stats for one document.
func (idx *Indexer) DocumentStats(ctx context.Context, documentID string) (Stats, error) {
	out, err := idx.Outgoing(ctx, documentID)
	if err != nil {
		return Stats{}, err
	}
	back, err := idx.Backlinks(ctx, documentID)
	if err != nil {
		return Stats{}, err
	}
	dangling := 0
	for _, l := range out {
		if l.TargetID == nil {
			dangling++
		}
	}
	return Stats{OutgoingCount: len(out), BacklinkCount: len(back), DanglingCount: dangling}, nil
}
