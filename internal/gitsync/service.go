// Package gitsync implements the Batch Git Syncer: a per-user
// scheduler that coalesces materialized filesystem changes into
// periodic git commits and pushes, plus a read-only status/diff/
// conflict surface for inspecting a user's working tree.
//
// Git operations never go through a forge SDK (gitea/gitlab clients in
// the reference stack are REST clients to hosted forges, not local git
// plumbing). GitService shells out to the git binary directly, with
// argument slices rather than a shell string, so no user-controlled
// value is ever interpreted by a shell.
package gitsync

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// GitService is the local git plumbing boundary the scheduler drives.
// Repo is the absolute path to a user's working tree.
type GitService interface {
	Init(ctx context.Context, repo string) error
	AddAll(ctx context.Context, repo string) error
	Commit(ctx context.Context, repo, message string) error
	Push(ctx context.Context, repo, remote, branch string) error
	Status(ctx context.Context, repo string) (*Status, error)
	Diff(ctx context.Context, repo, path string) (string, error)
	Conflicts(ctx context.Context, repo string) ([]string, error)
}

// Status is the porcelain status of a working tree.
type Status struct {
	Clean     bool
	Modified  []string
	Untracked []string
}

// ExecGitService is the real GitService, driving the system git binary.
type ExecGitService struct {
	Binary string // defaults to "git"
}

func NewExecGitService() *ExecGitService {
	return &ExecGitService{Binary: "git"}
}

func (g *ExecGitService) binary() string {
	if g.Binary == "" {
		return "git"
	}
	return g.Binary
}

func (g *ExecGitService) run(ctx context.Context, repo string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, g.binary(), args...)
	cmd.Dir = repo
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("gitsync: git %s: %w: %s", strings.Join(args, " "), err, stderr.String())
	}
	return out.String(), nil
}

func (g *ExecGitService) Init(ctx context.Context, repo string) error {
	_, err := g.run(ctx, repo, "init")
	return err
}

func (g *ExecGitService) AddAll(ctx context.Context, repo string) error {
	_, err := g.run(ctx, repo, "add", "-A")
	return err
}

func (g *ExecGitService) Commit(ctx context.Context, repo, message string) error {
	_, err := g.run(ctx, repo, "commit", "-m", message, "--allow-empty-message")
	return err
}

func (g *ExecGitService) Push(ctx context.Context, repo, remote, branch string) error {
	_, err := g.run(ctx, repo, "push", remote, branch)
	return err
}

func (g *ExecGitService) Status(ctx context.Context, repo string) (*Status, error) {
	out, err := g.run(ctx, repo, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	st := &Status{Clean: strings.TrimSpace(out) == ""}
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		code, file := line[:2], strings.TrimSpace(line[2:])
		if strings.TrimSpace(code) == "??" {
			st.Untracked = append(st.Untracked, file)
		} else {
			st.Modified = append(st.Modified, file)
		}
	}
	return st, nil
}

func (g *ExecGitService) Diff(ctx context.Context, repo, path string) (string, error) {
	return g.run(ctx, repo, "diff", "--", path)
}

func (g *ExecGitService) Conflicts(ctx context.Context, repo string) ([]string, error) {
	out, err := g.run(ctx, repo, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}
