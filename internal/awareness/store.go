// Package awareness implements the Awareness Store: ephemeral,
// TTL-bound presence data (cursor position, selection range, client
// color/name) for each client connected to a document. Presence is
// never persisted to the relational database; it lives in Redis with
// a short TTL and a sweep to clear out peers who disconnected without
// a clean "leave" event, following the sorted-set-plus-hash pattern
// used for job-processing tracking in the reference queue package.
package awareness

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/refmd-collab/docserver/internal/apperr"
)

// DefaultTTL is the presence entry lifetime: a client not refreshed
// within this window is considered gone.
const DefaultTTL = 30 * time.Second

// State is one client's presence within a document.
type State struct {
	ClientID  string          `json:"client_id"`
	UserID    string          `json:"user_id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Color     string          `json:"color,omitempty"`
	Cursor    json.RawMessage `json:"cursor,omitempty"`
	Selection json.RawMessage `json:"selection,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Store manages per-document presence in Redis.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// Config configures a Store.
type Config struct {
	RedisURL  string
	KeyPrefix string
	TTL       time.Duration
}

// New creates a Store, verifying connectivity with a Ping.
func New(ctx context.Context, cfg Config) (*Store, error) {
	redisURL := cfg.RedisURL
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, fmt.Errorf("parse redis url: %w", err))
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, apperr.Wrap(apperr.IoTransient, fmt.Errorf("connect to redis: %w", err))
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "awareness:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, prefix: prefix, ttl: ttl}, nil
}

// NewWithClient wraps an existing redis client, used by tests against
// miniredis.
func NewWithClient(client *redis.Client, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "awareness:"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

func (s *Store) dataKey(documentID string) string  { return s.prefix + documentID + ":data" }
func (s *Store) indexKey(documentID string) string { return s.prefix + documentID + ":index" }

// Set upserts a client's full presence state and refreshes its TTL.
func (s *Store) Set(ctx context.Context, documentID string, state State) error {
	state.UpdatedAt = time.Now()
	payload, err := json.Marshal(state)
	if err != nil {
		return apperr.Wrap(apperr.EncodingError, err)
	}

	expiry := float64(state.UpdatedAt.Add(s.ttl).Unix())
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.dataKey(documentID), state.ClientID, payload)
	pipe.ZAdd(ctx, s.indexKey(documentID), redis.Z{Score: expiry, Member: state.ClientID})
	pipe.Expire(ctx, s.dataKey(documentID), s.ttl*2)
	pipe.Expire(ctx, s.indexKey(documentID), s.ttl*2)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperr.Wrap(apperr.IoTransient, err)
	}
	return nil
}

// UpdateCursor merges a new cursor position into an existing client's
// state, creating the entry if absent (a client may move its cursor
// before its first full Set lands, e.g. reconnect races).
func (s *Store) UpdateCursor(ctx context.Context, documentID, clientID string, cursor json.RawMessage) error {
	return s.patch(ctx, documentID, clientID, func(st *State) { st.Cursor = cursor })
}

// UpdateSelection merges a new selection range into a client's state.
func (s *Store) UpdateSelection(ctx context.Context, documentID, clientID string, selection json.RawMessage) error {
	return s.patch(ctx, documentID, clientID, func(st *State) { st.Selection = selection })
}

func (s *Store) patch(ctx context.Context, documentID, clientID string, mutate func(*State)) error {
	existing, ok, err := s.get(ctx, documentID, clientID)
	if err != nil {
		return err
	}
	if !ok {
		existing = State{ClientID: clientID}
	}
	mutate(&existing)
	return s.Set(ctx, documentID, existing)
}

func (s *Store) get(ctx context.Context, documentID, clientID string) (State, bool, error) {
	raw, err := s.client.HGet(ctx, s.dataKey(documentID), clientID).Result()
	if err == redis.Nil {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, apperr.Wrap(apperr.IoTransient, err)
	}
	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return State{}, false, apperr.Wrap(apperr.EncodingError, err)
	}
	return st, true, nil
}

// Remove deletes a client's presence immediately (explicit "leave").
func (s *Store) Remove(ctx context.Context, documentID, clientID string) error {
	pipe := s.client.TxPipeline()
	pipe.HDel(ctx, s.dataKey(documentID), clientID)
	pipe.ZRem(ctx, s.indexKey(documentID), clientID)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperr.Wrap(apperr.IoTransient, err)
	}
	return nil
}

// Sweep evicts every client in documentID whose TTL has expired and
// returns the client ids removed. Callers run this on a timer; expired
// entries are also naturally invisible to snapshot reads that filter
// by the index, but Sweep reclaims the backing hash storage.
func (s *Store) Sweep(ctx context.Context, documentID string) ([]string, error) {
	now := float64(time.Now().Unix())
	expired, err := s.client.ZRangeByScore(ctx, s.indexKey(documentID), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%f", now),
	}).Result()
	if err != nil {
		return nil, apperr.Wrap(apperr.IoTransient, err)
	}
	if len(expired) == 0 {
		return nil, nil
	}

	pipe := s.client.TxPipeline()
	pipe.HDel(ctx, s.dataKey(documentID), expired...)
	pipe.ZRem(ctx, s.indexKey(documentID), toInterfaceSlice(expired)...)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, apperr.Wrap(apperr.IoTransient, err)
	}
	return expired, nil
}

func toInterfaceSlice(s []string) []interface{} {
	out := make([]interface{}, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

// Snapshot returns every non-expired client's presence for a document,
// as the JSON array the gateway broadcasts on "yjs:awareness".
func (s *Store) Snapshot(ctx context.Context, documentID string) ([]State, error) {
	now := float64(time.Now().Unix())
	ids, err := s.client.ZRangeByScore(ctx, s.indexKey(documentID), &redis.ZRangeBy{
		Min: fmt.Sprintf("%f", now),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, apperr.Wrap(apperr.IoTransient, err)
	}
	if len(ids) == 0 {
		return []State{}, nil
	}

	raws, err := s.client.HMGet(ctx, s.dataKey(documentID), ids...).Result()
	if err != nil {
		return nil, apperr.Wrap(apperr.IoTransient, err)
	}

	states := make([]State, 0, len(raws))
	for _, raw := range raws {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		var st State
		if err := json.Unmarshal([]byte(str), &st); err != nil {
			continue
		}
		states = append(states, st)
	}
	return states, nil
}

// ToJSON renders Snapshot's result as the JSON payload the wire
// protocol sends on the "yjs:awareness" event.
func ToJSON(states []State) ([]byte, error) {
	b, err := json.Marshal(states)
	if err != nil {
		return nil, apperr.Wrap(apperr.EncodingError, err)
	}
	return b, nil
}

// Close releases the underlying redis client.
func (s *Store) Close() error { return s.client.Close() }
