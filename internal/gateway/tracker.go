package gateway

import "sync"

// Sender abstracts writing one message to a connected client, so the
// tracker and hub can be tested without a real websocket.
type Sender interface {
	Send(message []byte) error
}

// Conn is one connected client's session state.
type Conn struct {
	ID     string
	UserID string
	Sender Sender
}

// Tracker maintains the two-way mapping between connections and the
// documents they've joined. Every mutating method keeps both maps in
// lockstep: a connection appears in docSubscribers[doc] if and only if
// doc appears in connDocs[conn]. The broadcast and disconnect-cleanup
// paths depend on that invariant.
type Tracker struct {
	mu             sync.RWMutex
	docSubscribers map[string]map[string]*Conn  // documentID -> connID -> Conn
	connDocs       map[string]map[string]struct{} // connID -> documentID set
	conns          map[string]*Conn
}

func NewTracker() *Tracker {
	return &Tracker{
		docSubscribers: make(map[string]map[string]*Conn),
		connDocs:       make(map[string]map[string]struct{}),
		conns:          make(map[string]*Conn),
	}
}

// Register adds a newly connected client with no joined documents yet.
func (t *Tracker) Register(c *Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[c.ID] = c
	t.connDocs[c.ID] = make(map[string]struct{})
}

// Join subscribes connID to documentID, returning true if this socket
// wasn't already subscribed (so the caller can keep join-announcement
// events idempotent per (socket, document)).
func (t *Tracker) Join(connID, documentID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.conns[connID]
	if !ok {
		return false
	}
	if t.docSubscribers[documentID] == nil {
		t.docSubscribers[documentID] = make(map[string]*Conn)
	}
	_, already := t.docSubscribers[documentID][connID]
	t.docSubscribers[documentID][connID] = c
	t.connDocs[connID][documentID] = struct{}{}
	return !already
}

// Leave unsubscribes connID from documentID, returning the number of
// subscribers documentID has left (so the caller can decide whether to
// evict the replica).
func (t *Tracker) Leave(connID, documentID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.leaveLocked(connID, documentID)
}

func (t *Tracker) leaveLocked(connID, documentID string) int {
	if subs, ok := t.docSubscribers[documentID]; ok {
		delete(subs, connID)
		if len(subs) == 0 {
			delete(t.docSubscribers, documentID)
		}
	}
	if docs, ok := t.connDocs[connID]; ok {
		delete(docs, documentID)
	}
	return len(t.docSubscribers[documentID])
}

// Disconnect removes connID entirely, leaving every document it had
// joined, and returns the set of document ids it was subscribed to so
// the caller can run the disconnect policy (save + materialize) for
// each one regardless of remaining subscriber count.
func (t *Tracker) Disconnect(connID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	docs, ok := t.connDocs[connID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(docs))
	for docID := range docs {
		ids = append(ids, docID)
	}
	for _, docID := range ids {
		t.leaveLocked(connID, docID)
	}
	delete(t.connDocs, connID)
	delete(t.conns, connID)
	return ids
}

// Subscribers returns every connection currently subscribed to documentID.
func (t *Tracker) Subscribers(documentID string) []*Conn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	subs := t.docSubscribers[documentID]
	out := make([]*Conn, 0, len(subs))
	for _, c := range subs {
		out = append(out, c)
	}
	return out
}

// SubscriberCount returns the number of connections subscribed to documentID.
func (t *Tracker) SubscriberCount(documentID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.docSubscribers[documentID])
}

// Conn returns the registered connection for connID, if any.
func (t *Tracker) Conn(connID string) (*Conn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.conns[connID]
	return c, ok
}

// JoinedDocuments returns the documents connID currently has open.
func (t *Tracker) JoinedDocuments(connID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	docs := t.connDocs[connID]
	out := make([]string, 0, len(docs))
	for id := range docs {
		out = append(out, id)
	}
	return out
}
