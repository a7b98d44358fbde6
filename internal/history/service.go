// Package history keeps a git-backed revision trail of note content. All
// notes live in one repository, one file per note, committed on every content
// save.
package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	authorName  = "scribe"
	authorEmail = "scribe@local.scribe.dev"
)

// CommitInfo describes one revision of a note.
type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// Service owns the workspace history repository.
type Service struct {
	mu  sync.Mutex
	dir string
}

// New opens the history repository at dir, initializing it if absent.
func New(dir string) (*Service, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	if _, err := git.PlainOpen(dir); err != nil {
		if !errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("open history repo: %w", err)
		}
		if _, err := git.PlainInit(dir, false); err != nil {
			return nil, fmt.Errorf("init history repo: %w", err)
		}
	}
	return &Service{dir: dir}, nil
}

func notePath(noteID string) string {
	return noteID + ".txt"
}

// CommitNote records the note's current plain text. A save that does not
// change the text commits nothing.
func (s *Service) CommitNote(noteID, title, plainText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, err := git.PlainOpen(s.dir)
	if err != nil {
		return fmt.Errorf("open history repo: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	path := notePath(noteID)
	if err := os.WriteFile(filepath.Join(s.dir, path), []byte(plainText+"\n"), 0o644); err != nil {
		return fmt.Errorf("write note file: %w", err)
	}
	if _, err := worktree.Add(path); err != nil {
		return fmt.Errorf("git add %s: %w", path, err)
	}

	status, err := worktree.Status()
	if err != nil {
		return fmt.Errorf("read worktree status: %w", err)
	}
	if status.IsClean() {
		return nil
	}

	message := fmt.Sprintf("Update %q", title)
	if _, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  authorName,
			Email: authorEmail,
			When:  time.Now(),
		},
	}); err != nil {
		return fmt.Errorf("commit note %s: %w", noteID, err)
	}
	return nil
}

// RemoveNote deletes the note's file and commits the removal. Removing a note
// that was never committed is a no-op.
func (s *Service) RemoveNote(noteID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, err := git.PlainOpen(s.dir)
	if err != nil {
		return fmt.Errorf("open history repo: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	path := notePath(noteID)
	if _, err := os.Stat(filepath.Join(s.dir, path)); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if _, err := worktree.Remove(path); err != nil {
		return fmt.Errorf("git rm %s: %w", path, err)
	}

	message := fmt.Sprintf("Delete %q", title)
	if _, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  authorName,
			Email: authorEmail,
			When:  time.Now(),
		},
	}); err != nil {
		return fmt.Errorf("commit removal of %s: %w", noteID, err)
	}
	return nil
}

// History lists the note's revisions, newest first.
func (s *Service) History(noteID string, limit int) ([]CommitInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}

	repo, err := git.PlainOpen(s.dir)
	if err != nil {
		return nil, fmt.Errorf("open history repo: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return []CommitInfo{}, nil
		}
		return nil, fmt.Errorf("resolve head: %w", err)
	}

	path := notePath(noteID)
	iter, err := repo.Log(&git.LogOptions{From: head.Hash(), FileName: &path})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0, limit)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, CommitInfo{
			Hash:      commitObj.Hash.String()[:7],
			Message:   commitObj.Message,
			Author:    commitObj.Author.Name,
			CreatedAt: commitObj.Author.When,
		})
		if len(items) >= limit {
			return errStopIteration
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return nil, fmt.Errorf("walk log: %w", err)
	}
	return items, nil
}

var errStopIteration = errors.New("stop iteration")
