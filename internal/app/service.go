// Package app wires the workspace store, coordinators, and side effects
// together and exposes them over HTTP and websockets.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"scribe/api/internal/config"
	"scribe/api/internal/document"
	"scribe/api/internal/export"
	"scribe/api/internal/filesync"
	"scribe/api/internal/generate"
	"scribe/api/internal/history"
	"scribe/api/internal/search"
	"scribe/api/internal/store"
	"scribe/api/internal/workspace"
)

// Options carries the optional backends. Everything except FilePort and
// Generator may be nil; the service degrades gracefully without them.
type Options struct {
	DB        *store.PostgresStore
	FilePort  filesync.FilePort
	Generator generate.Generator
	Cache     generate.Cache
	Search    *search.Service
	History   *history.Service
	Logger    *log.Logger
}

// Service is the application core. All mutations flow through the workspace
// store; committed events fan out to persistence, history, search, and
// connected websocket clients through a single ordered worker.
type Service struct {
	cfg       config.Config
	workspace *workspace.Store
	db        *store.PostgresStore
	files     *filesync.Coordinator
	generator *generate.Coordinator
	search    *search.Service
	history   *history.Service
	export    *export.Service
	hub       *Hub
	logger    *log.Logger
	canGen    bool

	events chan workspace.Event
}

func NewService(cfg config.Config, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	ws := workspace.NewStore()
	s := &Service{
		cfg:       cfg,
		workspace: ws,
		db:        opts.DB,
		search:    opts.Search,
		history:   opts.History,
		export:    export.NewService(),
		hub:       NewHub(),
		logger:    logger,
		canGen:    opts.Generator != nil,
		events:    make(chan workspace.Event, 1024),
	}

	s.generator = generate.NewCoordinator(ws, opts.Generator, opts.Cache, logger)

	s.files = filesync.NewCoordinator(ws, opts.FilePort, logger)
	if cfg.StartupTemplate != "" && s.canGen {
		templateType, err := workspace.ParseTemplateType(cfg.StartupTemplate)
		if err != nil {
			logger.Printf("app: ignoring startup template: %v", err)
		} else {
			s.files.WithStartupTemplate(templateType, s.generator.ArmPending)
		}
	}

	return s
}

// Workspace exposes the underlying store, mainly for tests.
func (s *Service) Workspace() *workspace.Store {
	return s.workspace
}

// Hub exposes the websocket hub for the HTTP layer.
func (s *Service) Hub() *Hub {
	return s.hub
}

// Bootstrap rehydrates persisted state, attaches the side-effect pipeline,
// and runs the initial file sync. Call once before serving traffic.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.db != nil {
		if err := s.rehydrate(ctx); err != nil {
			return fmt.Errorf("rehydrate workspace: %w", err)
		}
	}

	// Side effects attach after rehydration so startup does not re-persist
	// what was just loaded. Everything mutated from here on flows through
	// the pipeline, including the default folder below.
	s.workspace.Subscribe(func(event workspace.Event) {
		s.hub.Broadcast(event)
		select {
		case s.events <- event:
		default:
			s.logger.Printf("app: event pipeline full, dropping %s", event)
		}
	})
	go s.hub.Run()
	go s.applyEvents()

	if len(s.workspace.Folders()) == 0 {
		if _, err := s.workspace.CreateFolder(filesync.DefaultFolderName); err != nil {
			return fmt.Errorf("create default folder: %w", err)
		}
	}

	if s.search != nil {
		s.reindexAll()
	}

	if result, err := s.files.Run(ctx); err != nil {
		s.logger.Printf("app: initial file sync failed: %v", err)
	} else if len(result.Errors) > 0 {
		s.logger.Printf("app: file sync imported %d notes with %d failures", len(result.ImportedNoteIDs), len(result.Errors))
	}
	return nil
}

// Shutdown stops background workers. The event worker is left draining so a
// late commit never hits a closed channel.
func (s *Service) Shutdown() {
	s.generator.Close()
	s.hub.Stop()
}

// ResyncFiles re-imports the upload area. Wired to the directory watcher.
func (s *Service) ResyncFiles(ctx context.Context) {
	if _, err := s.files.Resync(ctx); err != nil {
		s.logger.Printf("app: file resync failed: %v", err)
	}
}

func (s *Service) rehydrate(ctx context.Context) error {
	folderRecords, err := s.db.ListFolders(ctx)
	if err != nil {
		return err
	}
	noteRecords, err := s.db.ListNotes(ctx)
	if err != nil {
		return err
	}

	folders := make([]workspace.Folder, 0, len(folderRecords))
	for _, record := range folderRecords {
		folders = append(folders, workspace.Folder{
			ID:         record.ID,
			Name:       record.Name,
			IsExpanded: record.IsExpanded,
		})
	}
	notes := make([]workspace.Note, 0, len(noteRecords))
	for _, record := range noteRecords {
		var content document.Document
		if len(record.Content) > 0 {
			if err := json.Unmarshal(record.Content, &content); err != nil {
				s.logger.Printf("app: note %s has unreadable content, starting empty: %v", record.ID, err)
				content = document.Empty()
			}
		} else {
			content = document.Empty()
		}
		notes = append(notes, workspace.Note{
			ID:           record.ID,
			Title:        record.Title,
			Content:      content,
			Kind:         workspace.NoteKind(record.Kind),
			FolderID:     record.FolderID,
			TemplateType: workspace.TemplateType(record.TemplateType),
			SourceNoteID: record.SourceNoteID,
		})
	}
	return s.workspace.Hydrate(folders, notes)
}

// applyEvents is the single ordered consumer for persistence, history, and
// search indexing.
func (s *Service) applyEvents() {
	for event := range s.events {
		s.applyEvent(event)
	}
}

func (s *Service) applyEvent(event workspace.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.db != nil {
		if err := s.persist(ctx, event); err != nil {
			s.logger.Printf("app: persist %s: %v", event, err)
		}
	}
	if s.history != nil {
		if err := s.record(event); err != nil {
			s.logger.Printf("app: history %s: %v", event, err)
		}
	}
	if s.search != nil {
		s.index(event)
	}
}

func (s *Service) persist(ctx context.Context, event workspace.Event) error {
	switch event.Kind {
	case workspace.EventFolderCreated:
		return s.db.UpsertFolder(ctx, store.FolderRecord{
			ID:         event.Folder.ID,
			Name:       event.Folder.Name,
			IsExpanded: event.Folder.IsExpanded,
		})
	case workspace.EventFolderRenamed:
		return s.db.RenameFolder(ctx, event.Folder.ID, event.Folder.Name)
	case workspace.EventFolderToggled:
		return s.db.SetFolderExpanded(ctx, event.Folder.ID, event.Folder.IsExpanded)
	case workspace.EventNoteCreated:
		return s.db.UpsertNote(ctx, noteRecord(event.Note))
	case workspace.EventNoteContent:
		content, err := json.Marshal(event.Note.Content)
		if err != nil {
			return fmt.Errorf("marshal content: %w", err)
		}
		return s.db.UpdateNoteContent(ctx, event.Note.ID, content, event.Note.Content.PlainText())
	case workspace.EventNoteRenamed:
		return s.db.RenameNote(ctx, event.Note.ID, event.Note.Title)
	case workspace.EventNoteDeleted:
		return s.db.DeleteNote(ctx, event.NoteID)
	}
	return nil
}

func noteRecord(note *workspace.Note) store.NoteRecord {
	content, err := json.Marshal(note.Content)
	if err != nil {
		content = []byte("{}")
	}
	return store.NoteRecord{
		ID:           note.ID,
		FolderID:     note.FolderID,
		Title:        note.Title,
		Kind:         string(note.Kind),
		TemplateType: string(note.TemplateType),
		SourceNoteID: note.SourceNoteID,
		Content:      content,
		PlainText:    note.Content.PlainText(),
	}
}

func (s *Service) record(event workspace.Event) error {
	switch event.Kind {
	case workspace.EventNoteCreated, workspace.EventNoteContent:
		return s.history.CommitNote(event.Note.ID, event.Note.Title, event.Note.Content.PlainText())
	case workspace.EventNoteDeleted:
		return s.history.RemoveNote(event.NoteID, event.Note.Title)
	}
	return nil
}

func (s *Service) index(event workspace.Event) {
	switch event.Kind {
	case workspace.EventNoteCreated, workspace.EventNoteContent, workspace.EventNoteRenamed:
		s.search.IndexNote(searchRecord(event.Note))
	case workspace.EventNoteDeleted:
		s.search.DeleteNote(event.NoteID)
	}
}

func searchRecord(note *workspace.Note) search.NoteRecord {
	return search.NoteRecord{
		ID:           note.ID,
		Title:        note.Title,
		PlainText:    note.Content.PlainText(),
		FolderID:     note.FolderID,
		Kind:         string(note.Kind),
		TemplateType: string(note.TemplateType),
	}
}

func (s *Service) reindexAll() {
	snapshot := s.workspace.Snapshot()
	records := make([]search.NoteRecord, 0, len(snapshot.Notes))
	for i := range snapshot.Notes {
		records = append(records, searchRecord(&snapshot.Notes[i].Note))
	}
	s.search.ReindexAll(records)
}

// --- operations exposed to the HTTP layer ---

func (s *Service) Snapshot() workspace.Snapshot {
	return s.workspace.Snapshot()
}

func (s *Service) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.Ping(ctx)
}

func (s *Service) CreateFolder(name string) (workspace.Folder, error) {
	id, err := s.workspace.CreateFolder(name)
	if err != nil {
		return workspace.Folder{}, err
	}
	return s.workspace.Folder(id)
}

func (s *Service) RenameFolder(folderID, name string) (workspace.Folder, error) {
	if err := s.workspace.RenameFolder(folderID, name); err != nil {
		return workspace.Folder{}, err
	}
	return s.workspace.Folder(folderID)
}

func (s *Service) ToggleFolderExpanded(folderID string) (workspace.Folder, error) {
	if err := s.workspace.ToggleFolderExpanded(folderID); err != nil {
		return workspace.Folder{}, err
	}
	return s.workspace.Folder(folderID)
}

func (s *Service) SetActiveFolder(folderID string) error {
	return s.workspace.SetActiveFolder(folderID)
}

func (s *Service) CreateNote(folderID, title string) (workspace.Note, error) {
	id, err := s.workspace.CreateNote(folderID, workspace.NoteSpec{Title: title})
	if err != nil {
		return workspace.Note{}, err
	}
	if err := s.workspace.ActivateTab(id); err != nil {
		s.logger.Printf("app: activate created note %s: %v", id, err)
	}
	return s.workspace.Note(id)
}

func (s *Service) Note(noteID string) (workspace.Note, error) {
	return s.workspace.Note(noteID)
}

func (s *Service) UpdateNoteContent(noteID string, content document.Document) (workspace.Note, error) {
	if err := s.workspace.UpdateNoteContent(noteID, content); err != nil {
		return workspace.Note{}, err
	}
	return s.workspace.Note(noteID)
}

func (s *Service) RenameNote(noteID, title string) (workspace.Note, error) {
	if err := s.workspace.RenameNote(noteID, title); err != nil {
		return workspace.Note{}, err
	}
	return s.workspace.Note(noteID)
}

func (s *Service) DeleteNote(noteID string) error {
	return s.workspace.DeleteNote(noteID)
}

func (s *Service) ActivateTab(noteID string) error {
	return s.workspace.ActivateTab(noteID)
}

func (s *Service) CloseTab(tabID string) error {
	return s.workspace.CloseTab(tabID)
}

func (s *Service) SetTabRenaming(tabID string, renaming bool) error {
	return s.workspace.SetTabRenaming(tabID, renaming)
}

func (s *Service) RequestGeneration(sourceNoteID string, templateType workspace.TemplateType) (generate.Status, error) {
	if !s.canGen {
		return generate.Status{}, domainError(http.StatusServiceUnavailable, "GENERATION_UNAVAILABLE", "No generation provider configured", nil)
	}
	if err := s.generator.RequestGeneration(sourceNoteID, templateType); err != nil {
		return generate.Status{}, err
	}
	return s.generator.Status(), nil
}

func (s *Service) ConfirmGeneration(ctx context.Context) (workspace.Note, error) {
	noteID, err := s.generator.Confirm(ctx)
	if err != nil {
		return workspace.Note{}, err
	}
	return s.workspace.Note(noteID)
}

func (s *Service) CancelGeneration() error {
	return s.generator.Cancel()
}

func (s *Service) GenerationStatus() generate.Status {
	return s.generator.Status()
}

func (s *Service) Search(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

func (s *Service) ExportNote(ctx context.Context, noteID string, format export.Format) (*export.Result, error) {
	note, err := s.workspace.Note(noteID)
	if err != nil {
		return nil, err
	}
	sourceTitle := ""
	if note.Kind == workspace.NoteKindTemplated {
		if source, err := s.workspace.Note(note.SourceNoteID); err == nil {
			sourceTitle = source.Title
		}
	}
	return s.export.Export(ctx, note, sourceTitle, format)
}

func (s *Service) NoteHistory(noteID string, limit int) ([]history.CommitInfo, error) {
	if _, err := s.workspace.Note(noteID); err != nil {
		return nil, err
	}
	if s.history == nil {
		return []history.CommitInfo{}, nil
	}
	return s.history.History(noteID, limit)
}
