package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/refmd-collab/docserver/internal/logging"
)

// upgrader configures the websocket handshake. CheckOrigin is left to
// the caller to override (e.g. against the configured frontend
// origin); accepting every origin here would be a CSRF-style hole in
// production.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// SetCheckOrigin overrides the upgrader's origin check.
func SetCheckOrigin(fn func(r *http.Request) bool) {
	upgrader.CheckOrigin = fn
}

// wsSender adapts a *websocket.Conn to the Sender interface. Writes
// are serialized through a mutex since gorilla/websocket forbids
// concurrent writers on one connection.
type wsSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSender) Send(message []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, message)
}

// Handler upgrades HTTP requests to websockets and drives each
// connection's read loop against a Hub.
type Handler struct {
	hub *Hub
	log *logging.Logger
}

func NewHandler(hub *Hub, log *logging.Logger) *Handler {
	return &Handler{hub: hub, log: log}
}

// userIDKey is how the caller's auth middleware is expected to attach
// the verified user id to the request context before ServeHTTP runs.
type userIDKey struct{}

func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

func userIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey{}).(string)
	return v
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.log != nil {
			h.log.WithError(err).Warn("websocket upgrade failed")
		}
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	sender := &wsSender{conn: conn}
	c := &Conn{ID: connID, UserID: userIDFromContext(r.Context()), Sender: sender}
	h.hub.Connect(c)
	defer h.hub.Disconnect(r.Context(), connID)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.dispatch(r.Context(), connID, raw)
	}
}

func (h *Handler) dispatch(ctx context.Context, connID string, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.sendError(connID, "", "bad_envelope", err.Error())
		return
	}

	var err error
	switch env.Type {
	case TypeJoinDocument, TypeSyncStep1:
		var p StateVectorPayload
		if perr := json.Unmarshal(env.Payload, &p); perr == nil {
			err = h.hub.JoinDocument(ctx, connID, env.DocumentID, p.ShareToken, p.StateVector)
		} else {
			err = h.hub.JoinDocument(ctx, connID, env.DocumentID, "", nil)
		}
	case TypeLeaveDocument:
		err = h.hub.LeaveDocument(ctx, connID, env.DocumentID)
	case TypeUpdate, TypeSyncStep2:
		var p UpdatePayload
		if perr := json.Unmarshal(env.Payload, &p); perr != nil {
			err = perr
			break
		}
		err = h.hub.ApplyUpdate(ctx, connID, env.DocumentID, p.Update)
	case TypeCursorUpdate:
		var p CursorPayload
		if perr := json.Unmarshal(env.Payload, &p); perr != nil {
			err = perr
			break
		}
		err = h.hub.UpdateCursor(ctx, connID, env.DocumentID, p.ClientID, p.Cursor)
	case TypeSelectionUpdate:
		var p SelectionPayload
		if perr := json.Unmarshal(env.Payload, &p); perr != nil {
			err = perr
			break
		}
		err = h.hub.UpdateSelection(ctx, connID, env.DocumentID, p.ClientID, p.Selection)
	default:
		h.sendError(connID, env.DocumentID, "unknown_type", string(env.Type))
		return
	}

	if err != nil {
		h.sendError(connID, env.DocumentID, "operation_failed", err.Error())
	}
}

func (h *Handler) sendError(connID, documentID, kind, message string) {
	conn, ok := h.hub.tracker.Conn(connID)
	if !ok {
		return
	}
	msg, err := encode(TypeError, documentID, ErrorPayload{Kind: kind, Message: message})
	if err != nil {
		return
	}
	_ = conn.Sender.Send(msg)
}
