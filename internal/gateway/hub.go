package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/refmd-collab/docserver/internal/apperr"
	"github.com/refmd-collab/docserver/internal/awareness"
	"github.com/refmd-collab/docserver/internal/linkgraph"
	"github.com/refmd-collab/docserver/internal/logging"
	"github.com/refmd-collab/docserver/internal/materializer"
	"github.com/refmd-collab/docserver/internal/permission"
	"github.com/refmd-collab/docserver/internal/persistence"
	"github.com/refmd-collab/docserver/internal/replica"
	"github.com/refmd-collab/docserver/internal/scrap"
)

// Thresholds control when a dirty in-memory replica gets snapshotted
// and materialized to disk: whichever triggers first, more than 100
// bytes of accumulated update payload, at least 3 updates applied, or
// 10 seconds since the last flush.
const (
	ThresholdBytes    = 100
	ThresholdOps      = 3
	ThresholdInterval = 10 * time.Second
)

// DocumentStore is the subset of persistence.DocumentRepository the
// hub needs, narrowed to an interface so tests can exercise join/
// update/flush logic against a fake instead of a real database.
type DocumentStore interface {
	SaveUpdate(ctx context.Context, documentID string, update []byte, originNode string) error
	SaveSnapshot(ctx context.Context, documentID string, snapshot, stateVector []byte) error
	LoadLatest(ctx context.Context, documentID string) (snapshot, stateVector []byte, err error)
	UpdatesSince(ctx context.Context, documentID string) ([][]byte, error)
	MaterializeToDocumentRow(ctx context.Context, documentID, title, content string) error
	Get(ctx context.Context, documentID string) (*persistence.Document, error)
	GetPermission(ctx context.Context, documentID, userID string) (*persistence.DocumentPermission, error)
	GetShareLink(ctx context.Context, token string) (*persistence.ShareLink, error)
}

// Hub is the sync gateway's central coordinator: one per server
// process, holding the connection tracker and wiring every other
// component a join/update/disconnect needs to touch.
type Hub struct {
	tracker      *Tracker
	replicas     *replica.Store
	awareness    *awareness.Store
	documents    DocumentStore
	materializer *materializer.Materializer
	links        *linkgraph.Indexer
	log          *logging.Logger

	lastFlush map[string]time.Time
}

// Deps bundles the Hub's collaborators.
type Deps struct {
	Replicas     *replica.Store
	Awareness    *awareness.Store
	Documents    DocumentStore
	Materializer *materializer.Materializer
	Links        *linkgraph.Indexer
	Logger       *logging.Logger
}

func NewHub(deps Deps) *Hub {
	return &Hub{
		tracker:      NewTracker(),
		replicas:     deps.Replicas,
		awareness:    deps.Awareness,
		documents:    deps.Documents,
		materializer: deps.Materializer,
		links:        deps.Links,
		log:          deps.Logger,
		lastFlush:    make(map[string]time.Time),
	}
}

// Connect registers a newly accepted socket.
func (h *Hub) Connect(c *Conn) {
	h.tracker.Register(c)
}

// resolveAccess loads whatever context the Permission Guard needs to
// evaluate a request against documentID for userID, optionally backed
// by a share token: document ownership, an explicit per-user grant,
// and the share link the token resolves to, if any.
func (h *Hub) resolveAccess(ctx context.Context, documentID, userID, shareToken string) (permission.Request, error) {
	doc, err := h.documents.Get(ctx, documentID)
	if err != nil {
		return permission.Request{}, err
	}

	req := permission.Request{
		DocumentID: documentID,
		UserID:     userID,
		IsOwner:    userID != "" && userID == doc.OwnerID,
		ShareToken: shareToken,
	}

	if userID != "" && !req.IsOwner {
		if grant, gerr := h.documents.GetPermission(ctx, documentID, userID); gerr == nil {
			level := grant.Level
			req.Grant = &level
		}
	}
	if shareToken != "" {
		if link, lerr := h.documents.GetShareLink(ctx, shareToken); lerr == nil && link.DocumentID == documentID {
			level := link.Level
			req.ShareLevel = &level
		}
	}
	return req, nil
}

// JoinDocument subscribes a connection to a document, rehydrating the
// replica from persistence on first access, and replies with a
// sync_step2 carrying everything the client's presented state vector
// lacks. Access is gated by the Permission Guard; on deny the caller
// gets an error event and is never subscribed. Presence is registered
// and the room is notified only the first time this socket joins this
// document, keeping repeated join_document/sync_step1 calls idempotent.
func (h *Hub) JoinDocument(ctx context.Context, connID, documentID, shareToken string, clientStateVector []byte) error {
	conn := h.connFor(connID)
	if conn == nil {
		return nil
	}

	req, err := h.resolveAccess(ctx, documentID, conn.UserID, shareToken)
	if err != nil {
		return err
	}
	decision := permission.Evaluate(req, permission.LevelView)
	if !decision.Allowed {
		msg, err := encode(TypeError, documentID, ErrorPayload{Kind: "forbidden", Message: decision.Reason})
		if err != nil {
			return err
		}
		return conn.Sender.Send(msg)
	}

	isNew := h.tracker.Join(connID, documentID)

	handle, existed := h.replicas.AcquireExisting(documentID)
	if !existed {
		handle = h.replicas.Acquire(documentID)
		snapshot, _, err := h.documents.LoadLatest(ctx, documentID)
		if err == nil && len(snapshot) > 0 {
			if err := handle.LoadSnapshot(snapshot); err != nil {
				h.replicas.Release(handle)
				return err
			}
			updates, err := h.documents.UpdatesSince(ctx, documentID)
			if err == nil {
				for _, u := range updates {
					_ = handle.ApplyUpdate(u)
				}
			}
		} else if apperr.KindOf(err) != apperr.NotFound && err != nil {
			h.replicas.Release(handle)
			return err
		}
	}
	defer h.replicas.Release(handle)

	if err := h.awareness.Set(ctx, documentID, awareness.State{ClientID: connID, UserID: conn.UserID}); err != nil {
		return err
	}

	if isNew {
		joinedMsg, err := encode(TypeJoinedDocument, documentID, PresencePayload{ClientID: connID, UserID: conn.UserID})
		if err != nil {
			return err
		}
		if err := conn.Sender.Send(joinedMsg); err != nil && h.log != nil {
			h.log.WithField("conn_id", connID).WithError(err).Warn("failed to send joined-document")
		}

		userJoinedMsg, err := encode(TypeUserJoined, documentID, PresencePayload{ClientID: connID, UserID: conn.UserID})
		if err != nil {
			return err
		}
		h.broadcastExcept(documentID, connID, userJoinedMsg)

		countMsg, err := encode(TypeUserCountUpdate, documentID, UserCountPayload{Count: h.tracker.SubscriberCount(documentID)})
		if err != nil {
			return err
		}
		h.broadcastExcept(documentID, "", countMsg)
	}

	diff, err := handle.DiffSince(clientStateVector)
	if err != nil {
		return err
	}
	msg, err := encode(TypeSyncStep2, documentID, UpdatePayload{Update: diff})
	if err != nil {
		return err
	}
	if err := conn.Sender.Send(msg); err != nil && h.log != nil {
		h.log.WithField("conn_id", connID).WithError(err).Warn("failed to send sync_step2")
	}
	return nil
}

func (h *Hub) connFor(connID string) *Conn {
	c, _ := h.tracker.Conn(connID)
	return c
}

// LeaveDocument unsubscribes a connection from a document, removes its
// presence entry, and tells the room it left. If no subscribers remain,
// the replica is flushed (snapshot + materialize) before being evicted,
// so no data is lost between sessions.
func (h *Hub) LeaveDocument(ctx context.Context, connID, documentID string) error {
	userID := ""
	if conn := h.connFor(connID); conn != nil {
		userID = conn.UserID
	}

	remaining := h.tracker.Leave(connID, documentID)
	_ = h.awareness.Remove(ctx, documentID, connID)

	h.announceLeft(documentID, connID, userID, remaining)

	if remaining > 0 {
		return nil
	}
	if err := h.flush(ctx, documentID); err != nil {
		return err
	}
	handle, ok := h.replicas.AcquireExisting(documentID)
	if ok {
		h.replicas.Release(handle)
		h.replicas.Evict(documentID)
	}
	return nil
}

// announceLeft tells documentID's room that connID (userID) left and
// reports the subscriber count that remains.
func (h *Hub) announceLeft(documentID, connID, userID string, remaining int) {
	leftMsg, err := encode(TypeUserLeft, documentID, PresencePayload{ClientID: connID, UserID: userID})
	if err == nil {
		h.broadcastExcept(documentID, "", leftMsg)
	} else if h.log != nil {
		h.log.WithField("document_id", documentID).WithError(err).Warn("failed to encode user_left")
	}

	countMsg, err := encode(TypeUserCountUpdate, documentID, UserCountPayload{Count: remaining})
	if err == nil {
		h.broadcastExcept(documentID, "", countMsg)
	} else if h.log != nil {
		h.log.WithField("document_id", documentID).WithError(err).Warn("failed to encode user_count_update")
	}
}

// ApplyUpdate integrates an update from one client and broadcasts it
// to every other subscriber of the same document, then flushes to
// persistence if any threshold is crossed.
func (h *Hub) ApplyUpdate(ctx context.Context, originConnID, documentID string, update []byte) error {
	handle := h.replicas.Acquire(documentID)
	defer h.replicas.Release(handle)

	if err := handle.ApplyUpdate(update); err != nil {
		return err
	}
	if err := h.documents.SaveUpdate(ctx, documentID, update, originConnID); err != nil {
		return err
	}

	msg, err := encode(TypeUpdate, documentID, UpdatePayload{Update: update})
	if err != nil {
		return err
	}
	h.broadcastExcept(documentID, originConnID, msg)

	if h.shouldFlush(handle, documentID) {
		return h.flush(ctx, documentID)
	}
	return nil
}

func (h *Hub) shouldFlush(handle *replica.Handle, documentID string) bool {
	ops, bytes := handle.DirtySince()
	if ops == 0 {
		return false
	}
	if bytes > ThresholdBytes || ops >= ThresholdOps {
		return true
	}
	last, ok := h.lastFlush[documentID]
	return !ok || time.Since(last) >= ThresholdInterval
}

// flush snapshots the replica to persistence and materializes it to
// disk, then clears the dirty counters.
func (h *Hub) flush(ctx context.Context, documentID string) error {
	handle, ok := h.replicas.AcquireExisting(documentID)
	if !ok {
		return nil
	}
	defer h.replicas.Release(handle)

	snapshot, err := handle.Snapshot()
	if err != nil {
		return err
	}
	sv, err := handle.StateVector()
	if err != nil {
		return err
	}
	if err := h.documents.SaveSnapshot(ctx, documentID, snapshot, sv); err != nil {
		return err
	}

	doc, err := h.documents.Get(ctx, documentID)
	if err == nil {
		text := handle.RGA.Text()
		if err := h.documents.MaterializeToDocumentRow(ctx, documentID, doc.Title, text); err != nil {
			return err
		}
		if h.materializer != nil {
			if _, err := h.materializer.Write(ctx, doc.OwnerID,
				materializerFrontmatter(doc), doc.Path, text); err != nil {
				return err
			}
		}
		if h.links != nil {
			if err := h.links.Reindex(ctx, documentID, doc.OwnerID, text); err != nil {
				return err
			}
		}
	}

	handle.ClearDirty()
	h.lastFlush[documentID] = time.Now()
	return nil
}

func materializerFrontmatter(doc *persistence.Document) materializer.Frontmatter {
	return materializer.Frontmatter{
		ID:        doc.ID,
		Title:     doc.Title,
		IsScrap:   doc.Kind == persistence.DocumentKindScrap,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: time.Now(),
	}
}

// broadcastExcept sends message to every subscriber of documentID
// except excludeConnID (the update's origin, which already has it).
func (h *Hub) broadcastExcept(documentID, excludeConnID string, message []byte) {
	for _, c := range h.tracker.Subscribers(documentID) {
		if c.ID == excludeConnID {
			continue
		}
		if err := c.Sender.Send(message); err != nil && h.log != nil {
			h.log.WithField("conn_id", c.ID).WithError(err).Warn("failed to send to subscriber")
		}
	}
}

// UpdateCursor updates and rebroadcasts one client's cursor position.
func (h *Hub) UpdateCursor(ctx context.Context, connID, documentID, clientID string, cursor json.RawMessage) error {
	if err := h.awareness.UpdateCursor(ctx, documentID, clientID, cursor); err != nil {
		return err
	}
	msg, err := encode(TypeCursorUpdate, documentID, CursorPayload{ClientID: clientID, Cursor: cursor})
	if err != nil {
		return err
	}
	h.broadcastExcept(documentID, connID, msg)
	return nil
}

// UpdateSelection updates and rebroadcasts one client's selection range.
func (h *Hub) UpdateSelection(ctx context.Context, connID, documentID, clientID string, selection json.RawMessage) error {
	if err := h.awareness.UpdateSelection(ctx, documentID, clientID, selection); err != nil {
		return err
	}
	msg, err := encode(TypeSelectionUpdate, documentID, SelectionPayload{ClientID: clientID, Selection: selection})
	if err != nil {
		return err
	}
	h.broadcastExcept(documentID, connID, msg)
	return nil
}

// BroadcastAwareness sends the full awareness snapshot of documentID
// to every subscriber.
func (h *Hub) BroadcastAwareness(ctx context.Context, documentID string) error {
	states, err := h.awareness.Snapshot(ctx, documentID)
	if err != nil {
		return err
	}
	payload, err := awareness.ToJSON(states)
	if err != nil {
		return err
	}
	msg, err := encode(TypeAwareness, documentID, json.RawMessage(payload))
	if err != nil {
		return err
	}
	h.broadcastExcept(documentID, "", msg)
	return nil
}

// Disconnect tears down a connection entirely: presence is removed and
// the room notified for every document it had joined, and each one is
// flushed (save + materialize) regardless of how many subscribers
// remain after it leaves. A client's last edits must never be lost just
// because it was the only one still connected.
func (h *Hub) Disconnect(ctx context.Context, connID string) {
	userID := ""
	if conn := h.connFor(connID); conn != nil {
		userID = conn.UserID
	}

	docIDs := h.tracker.Disconnect(connID)
	for _, documentID := range docIDs {
		_ = h.awareness.Remove(ctx, documentID, connID)
		h.announceLeft(documentID, connID, userID, h.tracker.SubscriberCount(documentID))

		if err := h.flush(ctx, documentID); err != nil && h.log != nil {
			h.log.WithField("document_id", documentID).WithError(err).Error("flush on disconnect failed")
		}
		if h.tracker.SubscriberCount(documentID) == 0 {
			h.replicas.Evict(documentID)
		}
	}
}

// scrapEventType maps a scrap.PostEvent to its wire MessageType.
var scrapEventType = map[scrap.PostEvent]MessageType{
	scrap.PostAdded:   TypeScrapPostAdded,
	scrap.PostUpdated: TypeScrapPostUpdated,
	scrap.PostDeleted: TypeScrapPostDeleted,
}

// BroadcastScrapPost announces a scrap post mutation to every
// subscriber of documentID's room. Its signature matches
// scrap.BroadcastFunc, so a Hub can be wired in directly as the scrap
// service's notifier without the scrap package depending on gateway.
func (h *Hub) BroadcastScrapPost(ctx context.Context, documentID string, event scrap.PostEvent, postID, authorName, body string) {
	msgType, ok := scrapEventType[event]
	if !ok {
		return
	}
	msg, err := encode(msgType, documentID, ScrapPostPayload{PostID: postID, AuthorName: authorName, Body: body})
	if err != nil {
		if h.log != nil {
			h.log.WithField("document_id", documentID).WithError(err).Warn("failed to encode scrap post event")
		}
		return
	}
	h.broadcastExcept(documentID, "", msg)
}
