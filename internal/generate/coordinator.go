// Package generate turns a plain note into a structured clinical note
// (SOAP, PIRP, DAP, PIE, SIRP, GIRP) through an LLM provider. The coordinator
// is a small state machine: a request waits behind a confirmation gate, at
// most one generation runs at a time, and a configured startup template can
// arm a deferred generation that fires once the workspace has a source note.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"scribe/api/internal/document"
	"scribe/api/internal/workspace"
)

type State string

const (
	StateIdle                 State = "idle"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateGenerating           State = "generating"
)

var (
	// ErrGenerationInProgress rejects new requests while a generation runs.
	ErrGenerationInProgress = errors.New("generation already in progress")
	// ErrNoPendingRequest rejects Confirm and Cancel outside the gate.
	ErrNoPendingRequest = errors.New("no generation awaiting confirmation")
	// ErrSourceNotPlain rejects generating from an already templated note.
	ErrSourceNotPlain = errors.New("only plain notes can source a template")
)

// Request identifies what to generate and from which note.
type Request struct {
	SourceNoteID string                 `json:"sourceNoteId"`
	TemplateType workspace.TemplateType `json:"templateType"`
}

// Status is the externally visible coordinator state.
type Status struct {
	State   State    `json:"state"`
	Request *Request `json:"request,omitempty"`
}

// Coordinator owns the generation lifecycle against one workspace store.
type Coordinator struct {
	store     *workspace.Store
	generator Generator
	cache     Cache
	logger    *log.Logger

	mu      sync.Mutex
	state   State
	request Request
	pending *Request

	unsubscribe func()
}

// NewCoordinator wires the coordinator to the store. cache may be nil.
func NewCoordinator(store *workspace.Store, generator Generator, cache Cache, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.Default()
	}
	c := &Coordinator{
		store:     store,
		generator: generator,
		cache:     cache,
		logger:    logger,
		state:     StateIdle,
	}
	// Watch for the moment an armed deferred generation becomes runnable:
	// the workspace turning ready, or the source note appearing. The check
	// hops to a goroutine because observers must not touch the store from
	// inside the callback.
	c.unsubscribe = store.Subscribe(func(event workspace.Event) {
		switch event.Kind {
		case workspace.EventPhaseChanged, workspace.EventNoteCreated:
			go c.triggerPendingIfReady()
		}
	})
	return c
}

// Close detaches the coordinator from store events.
func (c *Coordinator) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}

// Status reports the current state and, if any, the gated request.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	status := Status{State: c.state}
	if c.state != StateIdle {
		request := c.request
		status.Request = &request
	}
	return status
}

// RequestGeneration stages a generation behind the confirmation gate. A new
// request while one is already awaiting replaces it; a request while a
// generation is running is rejected.
func (c *Coordinator) RequestGeneration(sourceNoteID string, templateType workspace.TemplateType) error {
	if _, err := workspace.ParseTemplateType(string(templateType)); err != nil {
		return err
	}
	note, err := c.store.Note(sourceNoteID)
	if err != nil {
		return err
	}
	if note.Kind != workspace.NoteKindPlain {
		return ErrSourceNotPlain
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateGenerating {
		return ErrGenerationInProgress
	}
	c.state = StateAwaitingConfirmation
	c.request = Request{SourceNoteID: sourceNoteID, TemplateType: templateType}
	return nil
}

// Cancel dismisses the gated request. Only legal while one is awaiting.
func (c *Coordinator) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAwaitingConfirmation {
		return ErrNoPendingRequest
	}
	c.state = StateIdle
	c.request = Request{}
	return nil
}

// Confirm runs the gated generation synchronously. On success the generated
// note is created next to its source and focused; on failure the workspace is
// left exactly as it was and the coordinator returns to idle.
func (c *Coordinator) Confirm(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.state != StateAwaitingConfirmation {
		c.mu.Unlock()
		return "", ErrNoPendingRequest
	}
	c.state = StateGenerating
	request := c.request
	c.mu.Unlock()

	noteID, err := c.run(ctx, request)

	c.mu.Lock()
	c.state = StateIdle
	c.request = Request{}
	c.mu.Unlock()
	return noteID, err
}

// ArmPending schedules a deferred generation that fires once the workspace is
// ready and the source note exists. It fires at most once and is dropped if a
// templated note for the source already exists.
func (c *Coordinator) ArmPending(sourceNoteID string, templateType workspace.TemplateType) {
	c.mu.Lock()
	c.pending = &Request{SourceNoteID: sourceNoteID, TemplateType: templateType}
	c.mu.Unlock()
	c.triggerPendingIfReady()
}

// triggerPendingIfReady fires the armed generation when its preconditions
// hold. The pending slot is cleared before the goroutine is dispatched, so
// overlapping store events cannot fire it twice.
func (c *Coordinator) triggerPendingIfReady() {
	c.mu.Lock()
	pending := c.pending
	c.mu.Unlock()
	if pending == nil {
		return
	}
	if c.store.Phase() != workspace.PhaseReady || !c.store.HasNote(pending.SourceNoteID) {
		return
	}

	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		return
	}
	request := *c.pending
	c.pending = nil
	c.mu.Unlock()

	if _, exists := c.store.TemplatedNoteForSource(request.SourceNoteID); exists {
		c.logger.Printf("generate: skipping deferred %s generation, source %s already has a templated note",
			request.TemplateType, request.SourceNoteID)
		return
	}
	go c.runDeferred(request)
}

func (c *Coordinator) runDeferred(request Request) {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		c.logger.Printf("generate: dropping deferred %s generation, coordinator is %s", request.TemplateType, c.state)
		return
	}
	c.state = StateGenerating
	c.request = request
	c.mu.Unlock()

	if _, err := c.run(context.Background(), request); err != nil {
		c.logger.Printf("generate: deferred generation failed: %v", err)
	}

	c.mu.Lock()
	c.state = StateIdle
	c.request = Request{}
	c.mu.Unlock()
}

// run performs one generation end to end. It never leaves partial state: the
// templated note is created only after the provider call succeeds.
func (c *Coordinator) run(ctx context.Context, request Request) (string, error) {
	source, err := c.store.Note(request.SourceNoteID)
	if err != nil {
		return "", fmt.Errorf("load source note: %w", err)
	}
	if source.Kind != workspace.NoteKindPlain {
		return "", ErrSourceNotPlain
	}
	sourceText := source.Content.PlainText()

	generated, cached := c.cachedResult(ctx, request.TemplateType, sourceText)
	if !cached {
		generated, err = c.generator.Generate(ctx, request.TemplateType, sourceText)
		if err != nil {
			return "", err
		}
		if c.cache != nil {
			if err := c.cache.Set(ctx, request.TemplateType, sourceText, generated); err != nil {
				c.logger.Printf("generate: %v", err)
			}
		}
	}

	noteID := fmt.Sprintf("template-%s-%s-%d",
		strings.ToLower(string(request.TemplateType)), request.SourceNoteID, time.Now().UnixMilli())
	title := fmt.Sprintf("%s for %s", request.TemplateType, source.Title)

	if _, err := c.store.CreateNote(source.FolderID, workspace.NoteSpec{
		ID:           noteID,
		Title:        title,
		Content:      document.FromText(generated),
		Kind:         workspace.NoteKindTemplated,
		TemplateType: request.TemplateType,
		SourceNoteID: request.SourceNoteID,
	}); err != nil {
		return "", fmt.Errorf("create templated note: %w", err)
	}
	if err := c.store.ActivateTab(noteID); err != nil {
		c.logger.Printf("generate: activate %s: %v", noteID, err)
	}
	return noteID, nil
}

func (c *Coordinator) cachedResult(ctx context.Context, templateType workspace.TemplateType, sourceText string) (string, bool) {
	if c.cache == nil {
		return "", false
	}
	generated, ok, err := c.cache.Get(ctx, templateType, sourceText)
	if err != nil {
		c.logger.Printf("generate: %v", err)
		return "", false
	}
	return generated, ok
}
