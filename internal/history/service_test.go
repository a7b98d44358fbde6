package history

import (
	"strings"
	"testing"
)

func TestCommitAndHistory(t *testing.T) {
	svc, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := svc.CommitNote("note-f1", "Intake", "first draft"); err != nil {
		t.Fatalf("CommitNote: %v", err)
	}
	if err := svc.CommitNote("note-f1", "Intake", "second draft"); err != nil {
		t.Fatalf("CommitNote: %v", err)
	}

	commits, err := svc.History("note-f1", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(commits) != 2 {
		t.Fatalf("got %d commits, want 2", len(commits))
	}
	for _, commit := range commits {
		if !strings.Contains(commit.Message, "Intake") {
			t.Errorf("commit message %q should name the note", commit.Message)
		}
		if commit.Author != authorName {
			t.Errorf("author = %q", commit.Author)
		}
		if len(commit.Hash) != 7 {
			t.Errorf("hash = %q, want short hash", commit.Hash)
		}
	}
}

func TestUnchangedContentCommitsNothing(t *testing.T) {
	svc, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := svc.CommitNote("note-f1", "Intake", "same text"); err != nil {
		t.Fatalf("CommitNote: %v", err)
	}
	if err := svc.CommitNote("note-f1", "Intake", "same text"); err != nil {
		t.Fatalf("CommitNote: %v", err)
	}

	commits, err := svc.History("note-f1", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(commits) != 1 {
		t.Errorf("got %d commits, want 1", len(commits))
	}
}

func TestHistoryIsPerNote(t *testing.T) {
	svc, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := svc.CommitNote("note-a", "A", "text a"); err != nil {
		t.Fatalf("CommitNote: %v", err)
	}
	if err := svc.CommitNote("note-b", "B", "text b"); err != nil {
		t.Fatalf("CommitNote: %v", err)
	}

	commits, err := svc.History("note-a", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(commits) != 1 {
		t.Fatalf("got %d commits for note-a, want 1", len(commits))
	}
	if !strings.Contains(commits[0].Message, `"A"`) {
		t.Errorf("message = %q", commits[0].Message)
	}
}

func TestHistoryOfUnknownNoteIsEmpty(t *testing.T) {
	svc, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	commits, err := svc.History("note-gone", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(commits) != 0 {
		t.Errorf("got %d commits, want 0", len(commits))
	}
}

func TestRemoveNote(t *testing.T) {
	svc, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := svc.RemoveNote("note-never", "Never"); err != nil {
		t.Fatalf("RemoveNote of uncommitted note: %v", err)
	}

	if err := svc.CommitNote("note-f1", "Intake", "text"); err != nil {
		t.Fatalf("CommitNote: %v", err)
	}
	if err := svc.RemoveNote("note-f1", "Intake"); err != nil {
		t.Fatalf("RemoveNote: %v", err)
	}

	commits, err := svc.History("note-f1", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(commits) != 2 {
		t.Errorf("got %d commits, want creation plus removal", len(commits))
	}
	if !strings.HasPrefix(commits[0].Message, "Delete") {
		t.Errorf("latest message = %q", commits[0].Message)
	}
}

func TestReopenExistingRepo(t *testing.T) {
	dir := t.TempDir()
	svc, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := svc.CommitNote("note-f1", "Intake", "text"); err != nil {
		t.Fatalf("CommitNote: %v", err)
	}

	reopened, err := New(dir)
	if err != nil {
		t.Fatalf("New on existing repo: %v", err)
	}
	commits, err := reopened.History("note-f1", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(commits) != 1 {
		t.Errorf("got %d commits after reopen, want 1", len(commits))
	}
}
