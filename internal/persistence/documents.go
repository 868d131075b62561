package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/refmd-collab/docserver/internal/apperr"
)

// DocumentRepository is C3's operational surface over the database:
// the append-only update log, the single upserted snapshot row per
// document, and the write-back that turns CRDT state into the
// canonical Document row the rest of the system (link indexer, REST
// reads, materializer) queries.
type DocumentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository wraps an open *gorm.DB.
func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// classify turns a gorm/driver error into the apperr taxonomy. Any
// error gorm didn't recognize as "no rows" is treated as transient.
// Coarse, but safe: withRetry only retries a bounded number of times
// before giving up and surfacing the error anyway.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.Wrap(apperr.NotFound, err)
	}
	return apperr.Wrap(apperr.PersistenceTransient, err)
}

// SaveUpdate appends one entry to the update log. The log is
// append-only: it is never rewritten, only superseded by a later
// SaveSnapshot compaction.
func (d *DocumentRepository) SaveUpdate(ctx context.Context, documentID string, update []byte, originNode string) error {
	return withRetryVoid(ctx, func() error {
		err := d.db.WithContext(ctx).Create(&DocumentUpdate{
			DocumentID: documentID,
			Update:     update,
			OriginNode: originNode,
		}).Error
		if err != nil {
			return classify(err)
		}
		return nil
	})
}

// SaveSnapshot upserts the single current-snapshot row for a
// document and truncates the update log entries the snapshot now
// supersedes (everything older than the snapshot's own insert).
func (d *DocumentRepository) SaveSnapshot(ctx context.Context, documentID string, snapshot, stateVector []byte) error {
	return withRetryVoid(ctx, func() error {
		err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			row := DocumentSnapshot{DocumentID: documentID, Snapshot: snapshot, StateVector: stateVector}
			if err := tx.Save(&row).Error; err != nil {
				return err
			}
			return tx.Where("document_id = ?", documentID).Delete(&DocumentUpdate{}).Error
		})
		if err != nil {
			return classify(err)
		}
		return nil
	})
}

// LoadLatest returns the most recent snapshot bytes and state vector
// for a document, or apperr.NotFound if none exists yet (a brand new
// document).
func (d *DocumentRepository) LoadLatest(ctx context.Context, documentID string) (snapshot, stateVector []byte, err error) {
	row, err := withRetry(ctx, func() (DocumentSnapshot, error) {
		var row DocumentSnapshot
		err := d.db.WithContext(ctx).Where("document_id = ?", documentID).First(&row).Error
		if err != nil {
			return DocumentSnapshot{}, classify(err)
		}
		return row, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return row.Snapshot, row.StateVector, nil
}

// UpdatesSince returns every update-log entry recorded for a
// document since the last snapshot, in insertion order, for replay
// during recovery.
func (d *DocumentRepository) UpdatesSince(ctx context.Context, documentID string) ([][]byte, error) {
	rows, err := withRetry(ctx, func() ([]DocumentUpdate, error) {
		var rows []DocumentUpdate
		err := d.db.WithContext(ctx).
			Where("document_id = ?", documentID).
			Order("id asc").
			Find(&rows).Error
		if err != nil {
			return nil, classify(err)
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(rows))
	for i, r := range rows {
		out[i] = r.Update
	}
	return out, nil
}

// MaterializeToDocumentRow writes the rendered plaintext back onto the
// canonical Document row (Content, UpdatedAt), the step that makes the
// CRDT's current state visible outside live editing sessions.
func (d *DocumentRepository) MaterializeToDocumentRow(ctx context.Context, documentID, title, content string) error {
	return withRetryVoid(ctx, func() error {
		err := d.db.WithContext(ctx).Model(&Document{}).
			Where("id = ?", documentID).
			Updates(map[string]interface{}{"title": title, "content": content}).Error
		if err != nil {
			return classify(err)
		}
		return nil
	})
}

// Create inserts a brand new document row.
func (d *DocumentRepository) Create(ctx context.Context, doc *Document) error {
	return withRetryVoid(ctx, func() error {
		return classify(d.db.WithContext(ctx).Create(doc).Error)
	})
}

// Get loads a document row by id.
func (d *DocumentRepository) Get(ctx context.Context, documentID string) (*Document, error) {
	return withRetry(ctx, func() (*Document, error) {
		var doc Document
		err := d.db.WithContext(ctx).First(&doc, "id = ?", documentID).Error
		if err != nil {
			return nil, classify(err)
		}
		return &doc, nil
	})
}

// GetPermission loads the explicit per-user grant for a document, if
// one exists, for the Permission Guard's second evaluation step.
func (d *DocumentRepository) GetPermission(ctx context.Context, documentID, userID string) (*DocumentPermission, error) {
	return withRetry(ctx, func() (*DocumentPermission, error) {
		var row DocumentPermission
		err := d.db.WithContext(ctx).
			Where("document_id = ? AND user_id = ?", documentID, userID).
			First(&row).Error
		if err != nil {
			return nil, classify(err)
		}
		return &row, nil
	})
}

// GetShareLink resolves a share token to its row, returning
// apperr.NotFound if the token is unknown or has expired.
func (d *DocumentRepository) GetShareLink(ctx context.Context, token string) (*ShareLink, error) {
	return withRetry(ctx, func() (*ShareLink, error) {
		var row ShareLink
		err := d.db.WithContext(ctx).Where("token = ?", token).First(&row).Error
		if err != nil {
			return nil, classify(err)
		}
		if row.ExpiresAt != nil && row.ExpiresAt.Before(time.Now()) {
			return nil, apperr.New(apperr.NotFound, "share link expired")
		}
		return &row, nil
	})
}
