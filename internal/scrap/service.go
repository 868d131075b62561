package scrap

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/refmd-collab/docserver/internal/apperr"
	"github.com/refmd-collab/docserver/internal/persistence"
	"github.com/refmd-collab/docserver/internal/replica"
)

// PostEvent distinguishes the three scrap post mutations the sync
// gateway announces to a scrap document's room.
type PostEvent string

const (
	PostAdded   PostEvent = "added"
	PostUpdated PostEvent = "updated"
	PostDeleted PostEvent = "deleted"
)

// BroadcastFunc announces a scrap post mutation to every subscriber of
// documentID's room, called after the post's row and its embedded CRDT
// block have both been committed. A nil BroadcastFunc is a no-op, the
// same optional-collaborator pattern the materializer uses for its
// git-sync notify hook.
type BroadcastFunc func(ctx context.Context, documentID string, event PostEvent, postID, authorName, body string)

// Service coordinates a scrap post's two homes: the ScrapPost row
// (authorship, tags, soft-delete) and the live CRDT text embedding the
// rendered block. The two updates are deliberately not in one
// transaction: the database write is the authority on
// authorship, while the CRDT mutation must happen outside any database
// transaction since replica.Handle.ApplyUpdate/SetText never block on
// I/O and must not be rolled back by an unrelated DB failure after the
// text has already been broadcast to connected clients.
type Service struct {
	db        *gorm.DB
	store     *replica.Store
	broadcast BroadcastFunc
}

func NewService(db *gorm.DB, store *replica.Store, broadcast BroadcastFunc) *Service {
	if broadcast == nil {
		broadcast = func(context.Context, string, PostEvent, string, string, string) {}
	}
	return &Service{db: db, store: store, broadcast: broadcast}
}

// Add creates a new scrap post: the authorship row is inserted inside
// a transaction first; only once that commits is the rendered block
// appended to the document's live CRDT text.
func (s *Service) Add(ctx context.Context, documentID string, author Author, body string) (*persistence.ScrapPost, error) {
	post := persistence.ScrapPost{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		AuthorID:   author.UserID,
		AuthorName: author.displayName(),
		Body:       body,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&post).Error
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.PersistenceTransient, err)
	}

	h := s.store.Acquire(documentID)
	defer s.store.Release(h)

	updated := Append(h.RGA.Text(), Block{ID: post.ID, AuthorName: post.AuthorName, Body: body})
	if _, err := h.SetText(updated, fmt.Sprintf("scrap:%s", post.ID)); err != nil {
		return nil, err
	}

	s.broadcast(ctx, documentID, PostAdded, post.ID, post.AuthorName, body)
	return &post, nil
}

// Update edits an existing post's body: the row is updated first, then
// the embedded block is rewritten in place.
func (s *Service) Update(ctx context.Context, documentID, postID, newBody string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Model(&persistence.ScrapPost{}).
			Where("id = ? AND document_id = ?", postID, documentID).
			Update("body", newBody).Error
	})
	if err != nil {
		return apperr.Wrap(apperr.PersistenceTransient, err)
	}

	h := s.store.Acquire(documentID)
	defer s.store.Release(h)

	updated, ok := Replace(h.RGA.Text(), postID, newBody)
	if !ok {
		return apperr.New(apperr.NotFound, "scrap block not present in document text")
	}
	if _, err := h.SetText(updated, fmt.Sprintf("scrap:%s", postID)); err != nil {
		return err
	}

	s.broadcast(ctx, documentID, PostUpdated, postID, "", newBody)
	return nil
}

// Delete soft-deletes a post's row and removes its embedded block from
// the document text.
func (s *Service) Delete(ctx context.Context, documentID, postID string) error {
	err := s.db.WithContext(ctx).
		Where("id = ? AND document_id = ?", postID, documentID).
		Delete(&persistence.ScrapPost{}).Error
	if err != nil {
		return apperr.Wrap(apperr.PersistenceTransient, err)
	}

	h := s.store.Acquire(documentID)
	defer s.store.Release(h)

	updated, ok := Remove(h.RGA.Text(), postID)
	if !ok {
		return nil
	}
	if _, err := h.SetText(updated, fmt.Sprintf("scrap:%s", postID)); err != nil {
		return err
	}

	s.broadcast(ctx, documentID, PostDeleted, postID, "", "")
	return nil
}
