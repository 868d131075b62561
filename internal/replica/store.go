// Package replica implements the Replica Store: the in-memory registry
// of live CRDT replicas, one per open document, that the sync gateway
// and REST layer operate against. It owns reference counting so a
// document's replica survives exactly as long as something needs it,
// and the single-writer/many-reader discipline each replica's mutex
// already provides via internal/crdt.
package replica

import (
	"sync"
	"time"

	"github.com/refmd-collab/docserver/internal/apperr"
	"github.com/refmd-collab/docserver/internal/crdt"
)

// Handle is a reference-counted wrapper around one document's live
// RGA. Callers obtain a Handle via Store.Acquire and must call
// Release when done. Resident replicas are evicted only when Evict is
// explicitly requested, never just because the refcount dropped to
// zero; eviction policy is the caller's decision, not this store's.
type Handle struct {
	DocumentID string
	RGA        *crdt.RGA

	mu           sync.Mutex
	refCount     int
	lastModified time.Time
	dirtyOps     int
	dirtyBytes   int
}

// LastModified returns the time of the most recent successful
// ApplyUpdate or SetText call against this handle.
func (h *Handle) LastModified() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastModified
}

// DirtySince returns the number of update operations and bytes applied
// since the last call to ClearDirty, used by the gateway/materializer
// to decide when to snapshot and materialize.
func (h *Handle) DirtySince() (ops int, bytes int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dirtyOps, h.dirtyBytes
}

// ClearDirty resets the dirty counters, typically called right after a
// snapshot/materialize pass completes.
func (h *Handle) ClearDirty() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dirtyOps = 0
	h.dirtyBytes = 0
}

func (h *Handle) markDirty(opCount, byteCount int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastModified = time.Now()
	h.dirtyOps += opCount
	h.dirtyBytes += byteCount
}

// Store is the registry of resident replicas, keyed by document id.
type Store struct {
	mu       sync.Mutex
	handles  map[string]*Handle
}

// New creates an empty Store.
func New() *Store {
	return &Store{handles: make(map[string]*Handle)}
}

// Acquire returns the Handle for documentID, creating an empty replica
// if none is resident yet, and increments its reference count. The
// caller must call Release exactly once when finished.
func (s *Store) Acquire(documentID string) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handles[documentID]
	if !ok {
		h = &Handle{
			DocumentID:   documentID,
			RGA:          crdt.NewRGA(),
			lastModified: time.Now(),
		}
		s.handles[documentID] = h
	}
	h.mu.Lock()
	h.refCount++
	h.mu.Unlock()
	return h
}

// AcquireExisting returns the Handle for documentID if resident,
// without creating one. Used by operations that must not silently
// materialize an empty document (e.g. evict, stats).
func (s *Store) AcquireExisting(documentID string) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handles[documentID]
	if !ok {
		return nil, false
	}
	h.mu.Lock()
	h.refCount++
	h.mu.Unlock()
	return h, true
}

// Release decrements documentID's reference count. It does not evict
// the replica: eviction is a separate, explicit decision (Evict) so a
// momentarily-unreferenced document (e.g. between two requests) isn't
// torn down only to be rebuilt from the database a moment later.
func (s *Store) Release(h *Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.refCount > 0 {
		h.refCount--
	}
}

// Evict removes documentID's replica from the registry if its
// reference count is zero. Returns false without effect if the
// document is still referenced; returns true if it is not resident.
func (s *Store) Evict(documentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handles[documentID]
	if !ok {
		return true
	}
	h.mu.Lock()
	refs := h.refCount
	h.mu.Unlock()
	if refs > 0 {
		return false
	}
	delete(s.handles, documentID)
	return true
}

// Resident returns the document ids currently held in the registry,
// used by graceful shutdown to snapshot every live document.
func (s *Store) Resident() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.handles))
	for id := range s.handles {
		ids = append(ids, id)
	}
	return ids
}

// ApplyUpdate decodes and integrates update bytes produced by a peer,
// returning apperr.InvalidUpdate if the bytes don't decode or an
// operation's anchor can't be resolved.
func (h *Handle) ApplyUpdate(update []byte) error {
	ops, err := crdt.DecodeUpdate(update)
	if err != nil {
		return apperr.Wrapf(apperr.InvalidUpdate, err, "decode update for document %s", h.DocumentID)
	}
	for _, op := range ops {
		if err := h.RGA.Apply(op); err != nil {
			return apperr.Wrapf(apperr.InvalidUpdate, err, "integrate update for document %s", h.DocumentID)
		}
	}
	h.markDirty(len(ops), len(update))
	return nil
}

// Snapshot returns the replica's full current state as bytes.
func (h *Handle) Snapshot() ([]byte, error) {
	b, err := h.RGA.Snapshot()
	if err != nil {
		return nil, apperr.Wrap(apperr.EncodingError, err)
	}
	return b, nil
}

// DiffSince returns, as update bytes, every operation the caller's
// state vector hasn't observed yet.
func (h *Handle) DiffSince(stateVector []byte) ([]byte, error) {
	sv, err := crdt.DecodeStateVector(stateVector)
	if err != nil {
		return nil, apperr.Wrapf(apperr.InvalidUpdate, err, "decode state vector for document %s", h.DocumentID)
	}
	ops := h.RGA.OpsSince(sv)
	b, err := crdt.EncodeUpdate(ops)
	if err != nil {
		return nil, apperr.Wrap(apperr.EncodingError, err)
	}
	return b, nil
}

// StateVector returns the replica's current state vector as bytes.
func (h *Handle) StateVector() ([]byte, error) {
	b, err := crdt.EncodeStateVector(h.RGA.StateVector())
	if err != nil {
		return nil, apperr.Wrap(apperr.EncodingError, err)
	}
	return b, nil
}

// SetText clears the document and replaces it with s in one update,
// as used by the REST "replace whole document" contract. It returns
// the update bytes the caller should broadcast to subscribers.
func (h *Handle) SetText(s, nodeID string) ([]byte, error) {
	ops := h.RGA.ReplaceAll(s, nodeID)
	b, err := crdt.EncodeUpdate(ops)
	if err != nil {
		return nil, apperr.Wrap(apperr.EncodingError, err)
	}
	h.markDirty(len(ops), len(b))
	return b, nil
}

// LoadSnapshot replaces the handle's replica content with the state
// encoded in snapshot bytes, used when rehydrating a document from
// persistence on first access.
func (h *Handle) LoadSnapshot(snapshot []byte) error {
	r, err := crdt.Rehydrate(snapshot)
	if err != nil {
		return apperr.Wrap(apperr.EncodingError, err)
	}
	h.RGA = r
	return nil
}
