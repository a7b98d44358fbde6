// Package workspace holds the in-memory workspace: folders, notes, and open
// tabs for the current session. The Store is the single source of truth; every
// mutation commits atomically and is delivered to subscribers in commit order.
package workspace

import (
	"sort"
	"strings"
	"sync"

	"scribe/api/internal/document"
	"scribe/api/internal/util"
)

// Store is the mutable workspace aggregate.
//
// Observers are invoked synchronously after a mutation commits, in commit
// order, without the state lock held, so they may call read operations. An
// observer must not mutate the store from inside the callback; mutations
// triggered by events are dispatched on a fresh goroutine (which is how the
// generation coordinator's deferred trigger works).
type Store struct {
	mu       sync.Mutex
	notifyMu sync.Mutex

	phase   Phase
	version uint64

	folders     map[string]*Folder
	folderOrder []string
	notes       map[string]*Note
	tabs        []Tab

	activeTabID    string
	activeFolderID string

	subs    map[int]func(Event)
	nextSub int
}

func NewStore() *Store {
	return &Store{
		phase:   PhaseUninitialized,
		folders: make(map[string]*Folder),
		notes:   make(map[string]*Note),
		subs:    make(map[int]func(Event)),
	}
}

// Subscribe registers an observer. The returned function removes it.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// publish delivers events in commit order. Called with s.mu held; returns
// with both locks released. Taking notifyMu before releasing mu guarantees
// that events from concurrent commits cannot interleave out of order.
func (s *Store) publish(events []Event) {
	observers := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		observers = append(observers, fn)
	}
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()
	for _, event := range events {
		for _, fn := range observers {
			fn(event)
		}
	}
}

// --- lifecycle ---

func (s *Store) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Hydrate loads persisted folders and notes into an uninitialized workspace.
// Folder note lists are rebuilt from the notes themselves so the bidirectional
// invariant holds even if the persisted rows drifted; notes attach to their
// folders in the order given, which the persistence port keeps as creation
// order, so the sidebar looks the same after a restart.
func (s *Store) Hydrate(folders []Folder, notes []Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseUninitialized {
		return validationf("hydrate: workspace already initialized")
	}

	for i := range folders {
		folder := folders[i]
		folder.NoteIDs = nil
		s.folders[folder.ID] = &folder
		s.folderOrder = append(s.folderOrder, folder.ID)
	}

	for i := range notes {
		note := notes[i]
		folder, ok := s.folders[note.FolderID]
		if !ok {
			return validationf("hydrate: note %s references unknown folder %s", note.ID, note.FolderID)
		}
		s.notes[note.ID] = &note
		folder.NoteIDs = append(folder.NoteIDs, note.ID)
	}

	if len(s.folderOrder) > 0 {
		s.activeFolderID = s.folderOrder[0]
	}
	return nil
}

// BeginSync moves the workspace into the Syncing phase. It succeeds exactly
// once; later calls return ErrAlreadySynced. This is the one-shot latch for
// the initial file sync.
func (s *Store) BeginSync() error {
	s.mu.Lock()
	if s.phase != PhaseUninitialized {
		s.mu.Unlock()
		return ErrAlreadySynced
	}
	s.phase = PhaseSyncing
	s.version++
	events := []Event{{Kind: EventPhaseChanged, Version: s.version, Phase: PhaseSyncing}}
	s.publish(events)
	return nil
}

// FinishSync moves a syncing workspace to Ready.
func (s *Store) FinishSync() {
	s.mu.Lock()
	if s.phase != PhaseSyncing {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseReady
	s.version++
	events := []Event{{Kind: EventPhaseChanged, Version: s.version, Phase: PhaseReady}}
	s.publish(events)
}

// --- folders ---

func (s *Store) CreateFolder(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", validationf("folder name must not be empty")
	}
	s.mu.Lock()
	id, events := s.createFolderLocked(name)
	s.publish(events)
	return id, nil
}

// EnsureFolder returns the id of the first folder with the given name,
// creating it if absent. Lookup and creation share one critical section so
// concurrent syncs cannot race a duplicate into existence.
func (s *Store) EnsureFolder(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", validationf("folder name must not be empty")
	}
	s.mu.Lock()
	for _, id := range s.folderOrder {
		if s.folders[id].Name == name {
			s.mu.Unlock()
			return id, nil
		}
	}
	id, events := s.createFolderLocked(name)
	s.publish(events)
	return id, nil
}

// createFolderLocked commits a new folder. Called with s.mu held; the caller
// publishes the returned events.
func (s *Store) createFolderLocked(name string) (string, []Event) {
	folder := &Folder{
		ID:         util.NewID("folder"),
		Name:       name,
		IsExpanded: true,
	}
	s.folders[folder.ID] = folder
	s.folderOrder = append(s.folderOrder, folder.ID)
	if s.activeFolderID == "" {
		s.activeFolderID = folder.ID
	}
	s.version++
	return folder.ID, []Event{{Kind: EventFolderCreated, Version: s.version, FolderID: folder.ID, Folder: copyFolder(folder)}}
}

// RenameFolder trims the new name; an empty result keeps the previous name
// and commits nothing, so a folder never ends up with a blank display name.
func (s *Store) RenameFolder(folderID, newName string) error {
	newName = strings.TrimSpace(newName)
	s.mu.Lock()
	folder, ok := s.folders[folderID]
	if !ok {
		s.mu.Unlock()
		return &NotFoundError{Kind: "folder", ID: folderID}
	}
	if newName == "" || newName == folder.Name {
		s.mu.Unlock()
		return nil
	}
	folder.Name = newName
	s.version++
	events := []Event{{Kind: EventFolderRenamed, Version: s.version, FolderID: folderID, Folder: copyFolder(folder)}}
	s.publish(events)
	return nil
}

func (s *Store) ToggleFolderExpanded(folderID string) error {
	s.mu.Lock()
	folder, ok := s.folders[folderID]
	if !ok {
		s.mu.Unlock()
		return &NotFoundError{Kind: "folder", ID: folderID}
	}
	folder.IsExpanded = !folder.IsExpanded
	s.version++
	events := []Event{{Kind: EventFolderToggled, Version: s.version, FolderID: folderID, Folder: copyFolder(folder)}}
	s.publish(events)
	return nil
}

func (s *Store) SetActiveFolder(folderID string) error {
	s.mu.Lock()
	if _, ok := s.folders[folderID]; !ok {
		s.mu.Unlock()
		return &NotFoundError{Kind: "folder", ID: folderID}
	}
	if s.activeFolderID == folderID {
		s.mu.Unlock()
		return nil
	}
	s.activeFolderID = folderID
	s.version++
	events := []Event{{Kind: EventFolderActivated, Version: s.version, FolderID: folderID}}
	s.publish(events)
	return nil
}

// --- notes ---

// NoteSpec describes a note to create. A zero ID gets a generated one; the
// file sync passes derived ids ("note-<fileID>") so imports stay idempotent.
type NoteSpec struct {
	ID           string
	Title        string
	Content      document.Document
	Kind         NoteKind
	TemplateType TemplateType
	SourceNoteID string
}

func (s *Store) CreateNote(folderID string, spec NoteSpec) (string, error) {
	if spec.Kind == "" {
		spec.Kind = NoteKindPlain
	}
	if spec.Kind == NoteKindTemplated {
		if _, ok := templateTypes[spec.TemplateType]; !ok {
			return "", validationf("templated note requires a valid template type, got %q", spec.TemplateType)
		}
		if spec.SourceNoteID == "" {
			return "", validationf("templated note requires a source note id")
		}
	} else if spec.TemplateType != "" || spec.SourceNoteID != "" {
		return "", validationf("plain note must not carry template metadata")
	}

	title := strings.TrimSpace(spec.Title)
	if title == "" {
		title = UntitledNote
	}
	if spec.Content.Root.Type == "" {
		spec.Content = document.Empty()
	}

	s.mu.Lock()
	folder, ok := s.folders[folderID]
	if !ok {
		s.mu.Unlock()
		return "", &NotFoundError{Kind: "folder", ID: folderID}
	}
	id := spec.ID
	if id == "" {
		id = util.NewID("note")
	}
	if _, exists := s.notes[id]; exists {
		s.mu.Unlock()
		return "", validationf("note %s already exists", id)
	}

	note := &Note{
		ID:           id,
		Title:        title,
		Content:      spec.Content,
		Kind:         spec.Kind,
		FolderID:     folderID,
		TemplateType: spec.TemplateType,
		SourceNoteID: spec.SourceNoteID,
	}
	s.notes[id] = note
	folder.NoteIDs = append(folder.NoteIDs, id)
	folder.IsExpanded = true

	s.version++
	events := []Event{{Kind: EventNoteCreated, Version: s.version, FolderID: folderID, NoteID: id, Note: copyNote(note)}}
	s.publish(events)
	return id, nil
}

func (s *Store) RenameNote(noteID, newTitle string) error {
	newTitle = strings.TrimSpace(newTitle)
	if newTitle == "" {
		newTitle = UntitledNote
	}
	s.mu.Lock()
	note, ok := s.notes[noteID]
	if !ok {
		s.mu.Unlock()
		return &NotFoundError{Kind: "note", ID: noteID}
	}
	note.Title = newTitle
	s.version++
	events := []Event{{Kind: EventNoteRenamed, Version: s.version, NoteID: noteID, FolderID: note.FolderID, Note: copyNote(note)}}
	s.publish(events)
	return nil
}

// UpdateNoteContent replaces the note's document. Title and kind are
// untouched.
func (s *Store) UpdateNoteContent(noteID string, content document.Document) error {
	if content.Root.Type == "" {
		content = document.Empty()
	}
	s.mu.Lock()
	note, ok := s.notes[noteID]
	if !ok {
		s.mu.Unlock()
		return &NotFoundError{Kind: "note", ID: noteID}
	}
	note.Content = content
	s.version++
	events := []Event{{Kind: EventNoteContent, Version: s.version, NoteID: noteID, FolderID: note.FolderID, Note: copyNote(note)}}
	s.publish(events)
	return nil
}

// DeleteNote removes the note, detaches it from its folder, closes its tab if
// open, and reassigns the active tab to the first remaining one.
//
// Templated notes derived from the deleted note keep their sourceNoteId; the
// dangling reference is surfaced as SourceMissing in snapshots.
func (s *Store) DeleteNote(noteID string) error {
	s.mu.Lock()
	note, ok := s.notes[noteID]
	if !ok {
		s.mu.Unlock()
		return &NotFoundError{Kind: "note", ID: noteID}
	}

	delete(s.notes, noteID)
	if folder, ok := s.folders[note.FolderID]; ok {
		folder.NoteIDs = removeString(folder.NoteIDs, noteID)
	}

	s.version++
	events := []Event{{Kind: EventNoteDeleted, Version: s.version, NoteID: noteID, FolderID: note.FolderID, Note: copyNote(note)}}

	if tabIndex := s.tabIndex(noteID); tabIndex >= 0 {
		s.tabs = append(s.tabs[:tabIndex], s.tabs[tabIndex+1:]...)
		events = append(events, Event{Kind: EventTabClosed, Version: s.version, TabID: noteID})
		if s.activeTabID == noteID {
			events = append(events, s.activateNextLocked()...)
		}
	}

	s.publish(events)
	return nil
}

// --- tabs ---

// ActivateTab opens a tab for the note if none exists, focuses it, and makes
// the note's folder the active folder.
func (s *Store) ActivateTab(noteID string) error {
	s.mu.Lock()
	note, ok := s.notes[noteID]
	if !ok {
		s.mu.Unlock()
		return &NotFoundError{Kind: "note", ID: noteID}
	}

	s.version++
	var events []Event
	if s.tabIndex(noteID) < 0 {
		s.tabs = append(s.tabs, Tab{ID: noteID, NoteID: noteID})
		events = append(events, Event{Kind: EventTabOpened, Version: s.version, TabID: noteID, NoteID: noteID})
	}
	s.activeTabID = noteID
	events = append(events, Event{Kind: EventTabActivated, Version: s.version, TabID: noteID, NoteID: noteID})
	if s.activeFolderID != note.FolderID {
		s.activeFolderID = note.FolderID
		events = append(events, Event{Kind: EventFolderActivated, Version: s.version, FolderID: note.FolderID})
	}
	s.publish(events)
	return nil
}

// CloseTab closes the tab without deleting its note. Closing the active tab
// activates the first remaining tab, or clears the active tab if none remain.
func (s *Store) CloseTab(tabID string) error {
	s.mu.Lock()
	index := s.tabIndex(tabID)
	if index < 0 {
		s.mu.Unlock()
		return &NotFoundError{Kind: "tab", ID: tabID}
	}
	s.tabs = append(s.tabs[:index], s.tabs[index+1:]...)
	s.version++
	events := []Event{{Kind: EventTabClosed, Version: s.version, TabID: tabID}}
	if s.activeTabID == tabID {
		events = append(events, s.activateNextLocked()...)
	}
	s.publish(events)
	return nil
}

func (s *Store) SetTabRenaming(tabID string, renaming bool) error {
	s.mu.Lock()
	index := s.tabIndex(tabID)
	if index < 0 {
		s.mu.Unlock()
		return &NotFoundError{Kind: "tab", ID: tabID}
	}
	for i := range s.tabs {
		s.tabs[i].IsRenaming = renaming && i == index
	}
	s.mu.Unlock()
	return nil
}

// activateNextLocked reassigns the active tab after the current one went
// away: first remaining tab, or none. The active folder follows the new
// active note, falling back to the first folder.
func (s *Store) activateNextLocked() []Event {
	var events []Event
	if len(s.tabs) > 0 {
		next := s.tabs[0]
		s.activeTabID = next.ID
		events = append(events, Event{Kind: EventTabActivated, Version: s.version, TabID: next.ID, NoteID: next.NoteID})
		if note, ok := s.notes[next.NoteID]; ok && s.activeFolderID != note.FolderID {
			s.activeFolderID = note.FolderID
			events = append(events, Event{Kind: EventFolderActivated, Version: s.version, FolderID: note.FolderID})
		}
		return events
	}
	s.activeTabID = ""
	events = append(events, Event{Kind: EventTabActivated, Version: s.version})
	if s.activeFolderID == "" && len(s.folderOrder) > 0 {
		s.activeFolderID = s.folderOrder[0]
		events = append(events, Event{Kind: EventFolderActivated, Version: s.version, FolderID: s.activeFolderID})
	}
	return events
}

// --- reads ---

func (s *Store) Folders() []Folder {
	s.mu.Lock()
	defer s.mu.Unlock()
	folders := make([]Folder, 0, len(s.folderOrder))
	for _, id := range s.folderOrder {
		folders = append(folders, *copyFolder(s.folders[id]))
	}
	return folders
}

func (s *Store) Folder(folderID string) (Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	folder, ok := s.folders[folderID]
	if !ok {
		return Folder{}, &NotFoundError{Kind: "folder", ID: folderID}
	}
	return *copyFolder(folder), nil
}

func (s *Store) Note(noteID string) (Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	note, ok := s.notes[noteID]
	if !ok {
		return Note{}, &NotFoundError{Kind: "note", ID: noteID}
	}
	return *copyNote(note), nil
}

func (s *Store) HasNote(noteID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.notes[noteID]
	return ok
}

// TemplatedNoteForSource returns the first templated note derived from the
// given source, if any. Used to keep the deferred generation idempotent.
func (s *Store) TemplatedNoteForSource(sourceNoteID string) (Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.notes))
	for id := range s.notes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		note := s.notes[id]
		if note.Kind == NoteKindTemplated && note.SourceNoteID == sourceNoteID {
			return *copyNote(note), true
		}
	}
	return Note{}, false
}

func (s *Store) Tabs() []Tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	tabs := make([]Tab, len(s.tabs))
	copy(tabs, s.tabs)
	return tabs
}

func (s *Store) ActiveTabID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeTabID
}

func (s *Store) ActiveFolderID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeFolderID
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := Snapshot{
		Folders:        make([]Folder, 0, len(s.folderOrder)),
		Notes:          make([]NoteView, 0, len(s.notes)),
		Tabs:           make([]Tab, len(s.tabs)),
		ActiveTabID:    s.activeTabID,
		ActiveFolderID: s.activeFolderID,
		Phase:          s.phase,
		Version:        s.version,
	}
	for _, id := range s.folderOrder {
		folder := s.folders[id]
		snapshot.Folders = append(snapshot.Folders, *copyFolder(folder))
		for _, noteID := range folder.NoteIDs {
			note := s.notes[noteID]
			view := NoteView{Note: *copyNote(note)}
			if note.Kind == NoteKindTemplated {
				_, sourceExists := s.notes[note.SourceNoteID]
				view.SourceMissing = !sourceExists
			}
			snapshot.Notes = append(snapshot.Notes, view)
		}
	}
	copy(snapshot.Tabs, s.tabs)
	return snapshot
}

// --- helpers ---

func (s *Store) tabIndex(tabID string) int {
	for i, tab := range s.tabs {
		if tab.ID == tabID {
			return i
		}
	}
	return -1
}

func copyFolder(f *Folder) *Folder {
	folder := *f
	folder.NoteIDs = make([]string, len(f.NoteIDs))
	copy(folder.NoteIDs, f.NoteIDs)
	return &folder
}

func copyNote(n *Note) *Note {
	note := *n
	return &note
}

func removeString(list []string, value string) []string {
	out := list[:0]
	for _, item := range list {
		if item != value {
			out = append(out, item)
		}
	}
	return out
}
