package generate

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"scribe/api/internal/document"
	"scribe/api/internal/workspace"
)

type fakeGenerator struct {
	mu       sync.Mutex
	calls    int
	generate func(ctx context.Context, templateType workspace.TemplateType, sourceText string) (string, error)
}

func (g *fakeGenerator) Generate(ctx context.Context, templateType workspace.TemplateType, sourceText string) (string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.generate != nil {
		return g.generate(ctx, templateType, sourceText)
	}
	return "Subjective:\ngenerated from " + sourceText, nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]string)}
}

func (c *fakeCache) Get(_ context.Context, templateType workspace.TemplateType, sourceText string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.entries[string(templateType)+":"+sourceText]
	return value, ok, nil
}

func (c *fakeCache) Set(_ context.Context, templateType workspace.TemplateType, sourceText, generated string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[string(templateType)+":"+sourceText] = generated
	return nil
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func readyWorkspaceWithNote(t *testing.T) (*workspace.Store, string, string) {
	t.Helper()
	store := workspace.NewStore()
	if err := store.BeginSync(); err != nil {
		t.Fatalf("BeginSync: %v", err)
	}
	store.FinishSync()
	folderID, err := store.CreateFolder("Sessions")
	if err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	noteID, err := store.CreateNote(folderID, workspace.NoteSpec{
		Title:   "Intake",
		Content: document.FromText("Patient reports anxiety and poor sleep."),
	})
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	return store, folderID, noteID
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRequestConfirmCreatesTemplatedNote(t *testing.T) {
	store, folderID, sourceID := readyWorkspaceWithNote(t)
	gen := &fakeGenerator{}
	c := NewCoordinator(store, gen, nil, quietLogger())
	defer c.Close()

	if err := c.RequestGeneration(sourceID, workspace.TemplateSOAP); err != nil {
		t.Fatalf("RequestGeneration: %v", err)
	}
	status := c.Status()
	if status.State != StateAwaitingConfirmation {
		t.Fatalf("state = %q, want awaiting confirmation", status.State)
	}
	if status.Request == nil || status.Request.SourceNoteID != sourceID {
		t.Fatalf("status request = %+v", status.Request)
	}

	noteID, err := c.Confirm(context.Background())
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	note, err := store.Note(noteID)
	if err != nil {
		t.Fatalf("generated note missing: %v", err)
	}
	if note.Kind != workspace.NoteKindTemplated {
		t.Errorf("kind = %q", note.Kind)
	}
	if note.TemplateType != workspace.TemplateSOAP || note.SourceNoteID != sourceID {
		t.Errorf("template metadata = %q/%q", note.TemplateType, note.SourceNoteID)
	}
	if note.Title != "SOAP for Intake" {
		t.Errorf("title = %q, want %q", note.Title, "SOAP for Intake")
	}
	if note.FolderID != folderID {
		t.Errorf("generated note landed in folder %q, want source folder %q", note.FolderID, folderID)
	}
	if !strings.HasPrefix(noteID, "template-soap-"+sourceID+"-") {
		t.Errorf("note id = %q", noteID)
	}
	if got := store.ActiveTabID(); got != noteID {
		t.Errorf("active tab = %q, want generated note", got)
	}
	if got := c.Status().State; got != StateIdle {
		t.Errorf("state after confirm = %q, want idle", got)
	}
}

func TestRequestValidation(t *testing.T) {
	store, folderID, sourceID := readyWorkspaceWithNote(t)
	templatedID, err := store.CreateNote(folderID, workspace.NoteSpec{
		Title:        "SOAP for Intake",
		Kind:         workspace.NoteKindTemplated,
		TemplateType: workspace.TemplateSOAP,
		SourceNoteID: sourceID,
	})
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	c := NewCoordinator(store, &fakeGenerator{}, nil, quietLogger())
	defer c.Close()

	if err := c.RequestGeneration(templatedID, workspace.TemplateDAP); err != ErrSourceNotPlain {
		t.Errorf("templated source: err = %v, want ErrSourceNotPlain", err)
	}
	if err := c.RequestGeneration("note-gone", workspace.TemplateDAP); !workspace.IsNotFound(err) {
		t.Errorf("missing source: err = %v, want not found", err)
	}
	if err := c.RequestGeneration(sourceID, workspace.TemplateType("HAIKU")); !workspace.IsValidation(err) {
		t.Errorf("bad template type: err = %v, want validation error", err)
	}
	if got := c.Status().State; got != StateIdle {
		t.Errorf("rejected requests must leave coordinator idle, state = %q", got)
	}
}

func TestCancelDismissesGate(t *testing.T) {
	store, _, sourceID := readyWorkspaceWithNote(t)
	c := NewCoordinator(store, &fakeGenerator{}, nil, quietLogger())
	defer c.Close()

	if err := c.Cancel(); err != ErrNoPendingRequest {
		t.Errorf("Cancel while idle = %v, want ErrNoPendingRequest", err)
	}
	if err := c.RequestGeneration(sourceID, workspace.TemplateSOAP); err != nil {
		t.Fatalf("RequestGeneration: %v", err)
	}
	if err := c.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := c.Confirm(context.Background()); err != ErrNoPendingRequest {
		t.Errorf("Confirm after cancel = %v, want ErrNoPendingRequest", err)
	}
}

func TestAtMostOneGenerationInFlight(t *testing.T) {
	store, _, sourceID := readyWorkspaceWithNote(t)
	started := make(chan struct{})
	release := make(chan struct{})
	gen := &fakeGenerator{generate: func(context.Context, workspace.TemplateType, string) (string, error) {
		close(started)
		<-release
		return "generated", nil
	}}
	c := NewCoordinator(store, gen, nil, quietLogger())
	defer c.Close()

	if err := c.RequestGeneration(sourceID, workspace.TemplateSOAP); err != nil {
		t.Fatalf("RequestGeneration: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		_, err := c.Confirm(context.Background())
		done <- err
	}()
	<-started

	if got := c.Status().State; got != StateGenerating {
		t.Errorf("state = %q, want generating", got)
	}
	if err := c.RequestGeneration(sourceID, workspace.TemplateDAP); err != ErrGenerationInProgress {
		t.Errorf("request during generation = %v, want ErrGenerationInProgress", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	// Once idle again, a new request goes through.
	if err := c.RequestGeneration(sourceID, workspace.TemplateDAP); err != nil {
		t.Errorf("request after completion: %v", err)
	}
}

func TestFailureLeavesWorkspaceUnchanged(t *testing.T) {
	store, _, sourceID := readyWorkspaceWithNote(t)
	gen := &fakeGenerator{generate: func(context.Context, workspace.TemplateType, string) (string, error) {
		return "", generationErr(FailureQuota, errors.New("rate limited"))
	}}
	c := NewCoordinator(store, gen, nil, quietLogger())
	defer c.Close()

	before := store.Snapshot()
	if err := c.RequestGeneration(sourceID, workspace.TemplateSOAP); err != nil {
		t.Fatalf("RequestGeneration: %v", err)
	}
	_, err := c.Confirm(context.Background())
	var genErr *GenerationError
	if !errors.As(err, &genErr) || genErr.Kind != FailureQuota {
		t.Fatalf("Confirm error = %v, want quota GenerationError", err)
	}

	after := store.Snapshot()
	if len(after.Notes) != len(before.Notes) {
		t.Errorf("note count changed on failure: %d -> %d", len(before.Notes), len(after.Notes))
	}
	if len(after.Tabs) != len(before.Tabs) || after.ActiveTabID != before.ActiveTabID {
		t.Errorf("tab state changed on failure")
	}
	if got := c.Status().State; got != StateIdle {
		t.Errorf("state after failure = %q, want idle", got)
	}
}

func TestConfirmUsesCache(t *testing.T) {
	store, _, sourceID := readyWorkspaceWithNote(t)
	cache := newFakeCache()
	source, _ := store.Note(sourceID)
	if err := cache.Set(context.Background(), workspace.TemplateSOAP, source.Content.PlainText(), "cached SOAP output"); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	gen := &fakeGenerator{}
	c := NewCoordinator(store, gen, cache, quietLogger())
	defer c.Close()

	if err := c.RequestGeneration(sourceID, workspace.TemplateSOAP); err != nil {
		t.Fatalf("RequestGeneration: %v", err)
	}
	noteID, err := c.Confirm(context.Background())
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if gen.callCount() != 0 {
		t.Errorf("provider called %d times despite cache hit", gen.callCount())
	}
	note, _ := store.Note(noteID)
	if got := note.Content.PlainText(); got != "cached SOAP output" {
		t.Errorf("content = %q, want cached output", got)
	}
}

func TestDeferredGenerationFiresOnceWhenReady(t *testing.T) {
	store := workspace.NewStore()
	gen := &fakeGenerator{}
	c := NewCoordinator(store, gen, nil, quietLogger())
	defer c.Close()

	// Armed before the workspace is ready or the source note exists.
	c.ArmPending("note-f1", workspace.TemplateSOAP)
	if gen.callCount() != 0 {
		t.Fatal("deferred generation fired before its preconditions held")
	}

	if err := store.BeginSync(); err != nil {
		t.Fatalf("BeginSync: %v", err)
	}
	folderID, err := store.CreateFolder("My Notes")
	if err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	if _, err := store.CreateNote(folderID, workspace.NoteSpec{ID: "note-f1", Title: "intake.txt", Content: document.FromText("session text")}); err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	store.FinishSync()

	waitFor(t, "deferred templated note", func() bool {
		_, ok := store.TemplatedNoteForSource("note-f1")
		return ok
	})
	waitFor(t, "coordinator idle", func() bool {
		return c.Status().State == StateIdle
	})
	if gen.callCount() != 1 {
		t.Errorf("provider called %d times, want exactly 1", gen.callCount())
	}
	templated, _ := store.TemplatedNoteForSource("note-f1")
	if templated.Title != "SOAP for intake.txt" {
		t.Errorf("title = %q", templated.Title)
	}
}

func TestDeferredSkippedWhenTemplatedNoteExists(t *testing.T) {
	store, folderID, sourceID := readyWorkspaceWithNote(t)
	if _, err := store.CreateNote(folderID, workspace.NoteSpec{
		Title:        "SOAP for Intake",
		Kind:         workspace.NoteKindTemplated,
		TemplateType: workspace.TemplateSOAP,
		SourceNoteID: sourceID,
	}); err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	gen := &fakeGenerator{}
	c := NewCoordinator(store, gen, nil, quietLogger())
	defer c.Close()

	c.ArmPending(sourceID, workspace.TemplateSOAP)

	// The skip is decided synchronously once preconditions hold.
	if gen.callCount() != 0 {
		t.Errorf("provider called %d times for an already templated source", gen.callCount())
	}
	if got := c.Status().State; got != StateIdle {
		t.Errorf("state = %q, want idle", got)
	}
}
