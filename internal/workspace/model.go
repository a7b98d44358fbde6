package workspace

import (
	"fmt"
	"strings"

	"scribe/api/internal/document"
)

// UntitledNote is the display name a note falls back to when renamed blank.
const UntitledNote = "Untitled Note"

type NoteKind string

const (
	NoteKindPlain     NoteKind = "plain"
	NoteKindTemplated NoteKind = "templated"
)

// TemplateType names a structured clinical note format.
type TemplateType string

const (
	TemplateSOAP TemplateType = "SOAP"
	TemplatePIRP TemplateType = "PIRP"
	TemplateDAP  TemplateType = "DAP"
	TemplatePIE  TemplateType = "PIE"
	TemplateSIRP TemplateType = "SIRP"
	TemplateGIRP TemplateType = "GIRP"
)

var templateTypes = map[TemplateType]struct{}{
	TemplateSOAP: {},
	TemplatePIRP: {},
	TemplateDAP:  {},
	TemplatePIE:  {},
	TemplateSIRP: {},
	TemplateGIRP: {},
}

func ParseTemplateType(s string) (TemplateType, error) {
	t := TemplateType(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := templateTypes[t]; !ok {
		return "", validationf("unknown template type %q", s)
	}
	return t, nil
}

type Folder struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	IsExpanded bool     `json:"isExpanded"`
	NoteIDs    []string `json:"noteIds"`
}

type Note struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Content  document.Document `json:"content"`
	Kind     NoteKind          `json:"kind"`
	FolderID string            `json:"folderId"`

	// Set only when Kind is NoteKindTemplated.
	TemplateType TemplateType `json:"templateType,omitempty"`
	SourceNoteID string       `json:"sourceNoteId,omitempty"`
}

type Tab struct {
	ID         string `json:"id"`
	NoteID     string `json:"noteId"`
	IsRenaming bool   `json:"isRenaming,omitempty"`
}

// Phase is the workspace lifecycle. The first file sync may only start from
// PhaseUninitialized, which is what makes it one-shot.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseSyncing       Phase = "syncing"
	PhaseReady         Phase = "ready"
)

// NoteView is a Note as exposed in snapshots. SourceMissing marks a templated
// note whose source has since been deleted; the reference itself is kept.
type NoteView struct {
	Note
	SourceMissing bool `json:"sourceMissing,omitempty"`
}

// Snapshot is a consistent copy of the whole workspace.
type Snapshot struct {
	Folders        []Folder   `json:"folders"`
	Notes          []NoteView `json:"notes"`
	Tabs           []Tab      `json:"tabs"`
	ActiveTabID    string     `json:"activeTabId,omitempty"`
	ActiveFolderID string     `json:"activeFolderId,omitempty"`
	Phase          Phase      `json:"phase"`
	Version        uint64     `json:"version"`
}

type EventKind string

const (
	EventFolderCreated   EventKind = "folder.created"
	EventFolderRenamed   EventKind = "folder.renamed"
	EventFolderToggled   EventKind = "folder.toggled"
	EventFolderActivated EventKind = "folder.activated"
	EventNoteCreated     EventKind = "note.created"
	EventNoteContent     EventKind = "note.content"
	EventNoteRenamed     EventKind = "note.renamed"
	EventNoteDeleted     EventKind = "note.deleted"
	EventTabOpened       EventKind = "tab.opened"
	EventTabClosed       EventKind = "tab.closed"
	EventTabActivated    EventKind = "tab.activated"
	EventPhaseChanged    EventKind = "phase.changed"
)

// Event describes one committed mutation. Note and Folder carry copies taken
// at commit time so observers never read the store from inside a callback.
type Event struct {
	Kind     EventKind `json:"kind"`
	Version  uint64    `json:"version"`
	FolderID string    `json:"folderId,omitempty"`
	NoteID   string    `json:"noteId,omitempty"`
	TabID    string    `json:"tabId,omitempty"`
	Note     *Note     `json:"note,omitempty"`
	Folder   *Folder   `json:"folder,omitempty"`
	Phase    Phase     `json:"phase,omitempty"`
}

func (e Event) String() string {
	return fmt.Sprintf("%s v%d", e.Kind, e.Version)
}
