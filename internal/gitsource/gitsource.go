package gitsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

const (
	remoteName    = "origin"
	defaultBranch = "main"
	tokenUser     = "x-access-token"
)

// Config holds the remote and committer settings for a Publisher.
type Config struct {
	Dir     string // directory inside the working tree that holds the data files
	RepoURL string
	Token   string
	Name    string
	Email   string
}

// Publisher commits data files and pushes them to a remote repository.
type Publisher struct {
	cfg Config
	now func() time.Time
}

// NewPublisher returns a Publisher for cfg. Missing committer details get defaults.
func NewPublisher(cfg Config) *Publisher {
	if cfg.Name == "" {
		cfg.Name = "attendance"
	}
	if cfg.Email == "" {
		cfg.Email = "attendance@localhost"
	}
	return &Publisher{cfg: cfg, now: time.Now}
}

// Push stages files, commits them with message and pushes the current branch.
// It never returns an error: the outcome is reported as ok and a message with
// the token redacted.
func (p *Publisher) Push(ctx context.Context, files []string, message string) (bool, string) {
	if p.cfg.RepoURL == "" || p.cfg.Token == "" {
		return false, "missing credentials (repo URL / token)"
	}
	if err := p.push(ctx, files, message); err != nil {
		return false, p.redact(fmt.Sprintf("push failed: %v", err))
	}
	return true, "push succeeded"
}

func (p *Publisher) push(ctx context.Context, files []string, message string) error {
	repo, err := p.open()
	if err != nil {
		return err
	}
	if _, err := p.Commit(repo, files, message); err != nil {
		return err
	}

	head, err := repo.Head()
	if err != nil {
		return fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	branch := defaultBranch
	if head.Name().IsBranch() {
		branch = head.Name().Short()
	}

	refSpec := config.RefSpec(fmt.Sprintf("%s:%s", head.Name(), plumbing.NewBranchReferenceName(branch)))
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remoteName,
		RemoteURL:  p.cfg.RepoURL,
		RefSpecs:   []config.RefSpec{refSpec},
		Auth:       p.auth(),
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to push to %s: %w", p.cfg.RepoURL, err)
	}
	return nil
}

// Commit stages the given files and records a commit. Files that are missing
// or outside the working tree are skipped. It returns false when there was
// nothing to commit.
func (p *Publisher) Commit(repo *git.Repository, files []string, message string) (bool, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("failed to get worktree: %w", err)
	}
	root, err := filepath.Abs(worktree.Filesystem.Root())
	if err != nil {
		return false, fmt.Errorf("failed to resolve worktree root: %w", err)
	}

	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			slog.Warn("Skipping file with unresolvable path", "file", f, "error", err)
			continue
		}
		rel, err := filepath.Rel(root, abs)
		if err != nil || strings.HasPrefix(rel, "..") {
			slog.Warn("Skipping file outside the worktree", "file", f, "worktree", root)
			continue
		}
		if _, err := worktree.Add(filepath.ToSlash(rel)); err != nil {
			slog.Warn("Failed to stage file", "file", rel, "error", err)
		}
	}

	_, err = worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: p.cfg.Name, Email: p.cfg.Email, When: p.now()},
	})
	if errors.Is(err, git.ErrEmptyCommit) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return true, nil
}

// Pull fetches and merges the remote branch into the working tree so the
// data files start from the latest pushed state.
func (p *Publisher) Pull(ctx context.Context) error {
	if p.cfg.RepoURL == "" {
		return errors.New("missing repo URL")
	}
	repo, err := p.open()
	if err != nil {
		return err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	slog.Info("Pulling latest changes", "dir", p.cfg.Dir)
	err = worktree.PullContext(ctx, &git.PullOptions{
		RemoteName:    remoteName,
		RemoteURL:     p.cfg.RepoURL,
		ReferenceName: plumbing.NewBranchReferenceName(defaultBranch),
		Auth:          p.auth(),
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return errors.New(p.redact(fmt.Sprintf("failed to pull: %v", err)))
	}
	slog.Info("Pull successful (or already up-to-date).")
	return nil
}

// open returns the repository containing Dir, creating one on branch main with
// an origin remote when none exists.
func (p *Publisher) open() (*git.Repository, error) {
	repo, err := git.PlainOpenWithOptions(p.cfg.Dir, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		slog.Info("Initialising repository", "dir", p.cfg.Dir)
		repo, err = git.PlainInitWithOptions(p.cfg.Dir, &git.PlainInitOptions{
			InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName(defaultBranch)},
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open repo at %s: %w", p.cfg.Dir, err)
	}

	if _, err := repo.Remote(remoteName); errors.Is(err, git.ErrRemoteNotFound) {
		_, err = repo.CreateRemote(&config.RemoteConfig{Name: remoteName, URLs: []string{p.cfg.RepoURL}})
		if err != nil {
			return nil, fmt.Errorf("failed to add remote %s: %w", remoteName, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to look up remote %s: %w", remoteName, err)
	}
	return repo, nil
}

func (p *Publisher) auth() transport.AuthMethod {
	if p.cfg.Token == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: tokenUser, Password: p.cfg.Token}
}

func (p *Publisher) redact(msg string) string {
	if p.cfg.Token == "" {
		return msg
	}
	return strings.ReplaceAll(msg, p.cfg.Token, "[TOKEN]")
}
