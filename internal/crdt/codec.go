package crdt

import "encoding/json"

// update is the wire representation of a CRDT update: a batch of ops
// produced by one Insert/Delete/ReplaceAll call. It is deliberately a
// thin JSON envelope rather than a bespoke binary format. The rest of
// the system treats update bytes as opaque, so the encoding only needs
// to round-trip through Decode faithfully.
type update struct {
	Ops []RGANode `json:"ops"`
}

// snapshot is the wire representation of a full replica: every op the
// replica currently holds, sufficient to rebuild an equivalent replica
// via Rehydrate.
type snapshot struct {
	Ops []RGANode `json:"ops"`
}

// EncodeUpdate serializes a batch of ops (as returned by Insert,
// ReplaceAll, or read off the wire) into update bytes.
func EncodeUpdate(ops []RGANode) ([]byte, error) {
	return json.Marshal(update{Ops: ops})
}

// DecodeUpdate parses update bytes back into the ops it carries.
func DecodeUpdate(b []byte) ([]RGANode, error) {
	var u update
	if err := json.Unmarshal(b, &u); err != nil {
		return nil, err
	}
	return u.Ops, nil
}

// Snapshot encodes the replica's entire current state (all ops,
// including tombstones) to bytes.
func (r *RGA) Snapshot() ([]byte, error) {
	return json.Marshal(snapshot{Ops: r.Ops()})
}

// Rehydrate builds a fresh RGA from previously captured snapshot
// bytes, applying each op in the order the snapshot recorded them
// (document order).
func Rehydrate(b []byte) (*RGA, error) {
	var s snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	r := NewRGA()
	for _, op := range s.Ops {
		if err := r.applyRehydrate(op); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// applyRehydrate is Apply without the "anchor must already exist"
// validation, so an op whose anchor is unknown is placed rather than
// rejected. Tombstoned nodes are restored as tombstones, keeping their
// ids and the state vector intact.
func (r *RGA) applyRehydrate(op RGANode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.index[op.ID]; exists {
		if op.Deleted {
			r.deleteLocked(op.ID)
		}
		return nil
	}
	r.insertLocked(op)
	r.bumpClockLocked(op.ID)
	return nil
}

// EncodeStateVector serializes a VClock to bytes.
func EncodeStateVector(v VClock) ([]byte, error) {
	return json.Marshal(v)
}

// DecodeStateVector parses state-vector bytes back into a VClock. An
// empty or absent payload decodes to an empty vector, matching the
// "default state vector" a brand-new client presents.
func DecodeStateVector(b []byte) (VClock, error) {
	if len(b) == 0 {
		return make(VClock), nil
	}
	var v VClock
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	if v == nil {
		v = make(VClock)
	}
	return v, nil
}
