package gitsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeGit struct {
	mu      sync.Mutex
	pushed  []string
	failing bool
}

func (f *fakeGit) Init(ctx context.Context, repo string) error     { return nil }
func (f *fakeGit) AddAll(ctx context.Context, repo string) error   { return nil }
func (f *fakeGit) Commit(ctx context.Context, repo, msg string) error { return nil }
func (f *fakeGit) Push(ctx context.Context, repo, remote, branch string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("push failed")
	}
	f.pushed = append(f.pushed, repo)
	return nil
}
func (f *fakeGit) Status(ctx context.Context, repo string) (*Status, error)    { return &Status{Clean: true}, nil }
func (f *fakeGit) Diff(ctx context.Context, repo, path string) (string, error) { return "", nil }
func (f *fakeGit) Conflicts(ctx context.Context, repo string) ([]string, error) { return nil, nil }

func TestMarkDirtyThenSyncDueAfterQuietPeriod(t *testing.T) {
	git := &fakeGit{}
	cfg := DefaultConfig()
	cfg.QuietPeriod = 0
	cfg.ReposRoot = "/repos"
	s := NewScheduler(cfg, git, nil)

	s.MarkDirty("user-1")
	require.True(t, s.Pending("user-1"))

	s.syncDue(context.Background())
	require.False(t, s.Pending("user-1"))
	require.Equal(t, []string{"/repos/user-1"}, git.pushed)
}

func TestSyncNotDueBeforeQuietPeriodElapses(t *testing.T) {
	git := &fakeGit{}
	cfg := DefaultConfig()
	cfg.QuietPeriod = time.Hour
	s := NewScheduler(cfg, git, nil)

	s.MarkDirty("user-1")
	s.syncDue(context.Background())
	require.True(t, s.Pending("user-1"))
	require.Empty(t, git.pushed)
}

func TestFailedSyncSchedulesRetryAndEventuallyGivesUp(t *testing.T) {
	git := &fakeGit{failing: true}
	cfg := DefaultConfig()
	cfg.QuietPeriod = 0
	cfg.MaxRetries = 2
	s := NewScheduler(cfg, git, nil)

	s.MarkDirty("user-1")
	for i := 0; i < 3; i++ {
		s.syncDue(context.Background())
		s.mu.Lock()
		st := s.pending["user-1"]
		st.markedAt = time.Now().Add(-time.Hour)
		s.mu.Unlock()
	}
	require.False(t, s.Pending("user-1"))
}
