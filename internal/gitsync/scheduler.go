package gitsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/refmd-collab/docserver/internal/logging"
)

// Config tunes the scheduler's timing. Defaults: a 300s tick, a 30s
// quiet period after the last materialize before a user's pending
// changes are eligible to sync, and up to 3 retries with
// 60*(attempt+1)s backoff between them.
type Config struct {
	TickInterval time.Duration
	QuietPeriod  time.Duration
	MaxRetries   int
	Remote       string
	Branch       string
	ReposRoot    string
}

func DefaultConfig() Config {
	return Config{
		TickInterval: 300 * time.Second,
		QuietPeriod:  30 * time.Second,
		MaxRetries:   3,
		Remote:       "origin",
		Branch:       "main",
	}
}

type pendingState struct {
	dirty      bool
	markedAt   time.Time
	retryCount int
}

// Scheduler coalesces per-user materialize notifications and runs the
// git sync pipeline (add, commit, push) on a timer, never more often
// than TickInterval and never before QuietPeriod has passed since the
// user's last change.
type Scheduler struct {
	cfg  Config
	git  GitService
	log  *logging.Logger

	mu      sync.Mutex
	pending map[string]*pendingState
}

func NewScheduler(cfg Config, git GitService, log *logging.Logger) *Scheduler {
	return &Scheduler{cfg: cfg, git: git, log: log, pending: make(map[string]*pendingState)}
}

// MarkDirty records that ownerID has unsynced changes, called from
// the materializer's Notify hook.
func (s *Scheduler) MarkDirty(ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.pending[ownerID]
	if !ok {
		st = &pendingState{}
		s.pending[ownerID] = st
	}
	st.dirty = true
	st.markedAt = time.Now()
}

// Run blocks, ticking every cfg.TickInterval until ctx is cancelled,
// syncing every user whose quiet period has elapsed.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.syncDue(ctx)
		}
	}
}

func (s *Scheduler) dueUsers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var due []string
	for userID, st := range s.pending {
		if st.dirty && now.Sub(st.markedAt) >= s.cfg.QuietPeriod {
			due = append(due, userID)
		}
	}
	return due
}

func (s *Scheduler) syncDue(ctx context.Context) {
	for _, userID := range s.dueUsers() {
		if err := s.syncUser(ctx, userID); err != nil {
			if s.log != nil {
				s.log.WithField("user_id", userID).WithError(err).Error("git sync failed")
			}
			s.scheduleRetry(userID)
			continue
		}
		s.clearPending(userID)
	}
}

func (s *Scheduler) scheduleRetry(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.pending[userID]
	if !ok {
		return
	}
	st.retryCount++
	if st.retryCount > s.cfg.MaxRetries {
		// Give up until the next real change marks the user dirty
		// again; repeated failure shouldn't retry forever.
		st.dirty = false
		st.retryCount = 0
		return
	}
	backoff := time.Duration(60*(st.retryCount+1)) * time.Second
	st.markedAt = time.Now().Add(backoff - s.cfg.QuietPeriod)
}

func (s *Scheduler) clearPending(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, userID)
}

func (s *Scheduler) repoPath(userID string) string {
	return fmt.Sprintf("%s/%s", s.cfg.ReposRoot, userID)
}

func (s *Scheduler) syncUser(ctx context.Context, userID string) error {
	repo := s.repoPath(userID)
	if err := s.git.AddAll(ctx, repo); err != nil {
		return err
	}
	if err := s.git.Commit(ctx, repo, "sync: automated snapshot"); err != nil {
		return err
	}
	return s.git.Push(ctx, repo, s.cfg.Remote, s.cfg.Branch)
}

// Pending reports whether userID currently has unsynced changes, used
// by tests and the status endpoint.
func (s *Scheduler) Pending(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.pending[userID]
	return ok && st.dirty
}
