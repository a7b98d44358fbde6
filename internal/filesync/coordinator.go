// Package filesync imports uploaded transcript files into the workspace as
// notes. The initial sync runs exactly once per workspace lifetime; later
// syncs (for example when the upload directory changes) reuse the same
// idempotent import but skip the lifecycle latch.
package filesync

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"scribe/api/internal/document"
	"scribe/api/internal/workspace"
)

// DefaultFolderName is where imported notes land when no folder exists yet.
const DefaultFolderName = "My Notes"

// UploadedFile is one file visible through the file port.
type UploadedFile struct {
	ID   string
	Name string
	Path string
	Size int64
}

// FilePort abstracts where uploads live. Implemented by the local directory
// backend and the S3 backend.
type FilePort interface {
	ListUploadedFiles(ctx context.Context) ([]UploadedFile, error)
	ReadFileAsText(ctx context.Context, path string) (string, error)
}

// ImportError records a single file that failed to import. The sync keeps
// going; one unreadable file never aborts the batch.
type ImportError struct {
	FileID string
	Path   string
	Err    error
}

func (e ImportError) Error() string {
	return fmt.Sprintf("import %s (%s): %v", e.FileID, e.Path, e.Err)
}

// Result summarizes one sync pass.
type Result struct {
	ImportedNoteIDs []string
	Skipped         int
	Errors          []ImportError
}

// Coordinator drives file imports against the workspace store.
type Coordinator struct {
	store  *workspace.Store
	port   FilePort
	logger *log.Logger

	// When set, a successful initial sync arms a deferred template
	// generation for the first imported note.
	startupTemplate workspace.TemplateType
	armPending      func(sourceNoteID string, templateType workspace.TemplateType)
}

func NewCoordinator(store *workspace.Store, port FilePort, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.Default()
	}
	return &Coordinator{store: store, port: port, logger: logger}
}

// WithStartupTemplate makes the initial sync arm a deferred generation using
// the first imported note as the source. arm is called after the sync commits.
func (c *Coordinator) WithStartupTemplate(t workspace.TemplateType, arm func(string, workspace.TemplateType)) *Coordinator {
	c.startupTemplate = t
	c.armPending = arm
	return c
}

// NoteIDForFile derives the workspace note id for an uploaded file. The
// derivation is what makes imports idempotent: the same file always maps to
// the same note.
func NoteIDForFile(fileID string) string {
	return "note-" + fileID
}

// Run performs the one-shot initial sync. If the workspace already synced it
// returns a zero Result and no error, which makes Run safe to call from
// multiple startup paths.
func (c *Coordinator) Run(ctx context.Context) (Result, error) {
	if err := c.store.BeginSync(); err != nil {
		if err == workspace.ErrAlreadySynced {
			return Result{}, nil
		}
		return Result{}, err
	}
	defer c.store.FinishSync()

	result, err := c.syncOnce(ctx)
	if err != nil {
		return result, err
	}

	if len(result.ImportedNoteIDs) > 0 {
		first := result.ImportedNoteIDs[0]
		if err := c.store.ActivateTab(first); err != nil {
			c.logger.Printf("filesync: activate imported note %s: %v", first, err)
		}
		if c.startupTemplate != "" && c.armPending != nil {
			c.armPending(first, c.startupTemplate)
		}
	}
	return result, nil
}

// Resync re-runs the import without touching the lifecycle. Files already
// imported are skipped by their derived note id, so this is safe to call on
// every change notification from the upload directory.
func (c *Coordinator) Resync(ctx context.Context) (Result, error) {
	if c.store.Phase() != workspace.PhaseReady {
		return Result{}, fmt.Errorf("filesync: resync before workspace is ready")
	}
	return c.syncOnce(ctx)
}

func (c *Coordinator) syncOnce(ctx context.Context) (Result, error) {
	var result Result

	files, err := c.port.ListUploadedFiles(ctx)
	if err != nil {
		return result, fmt.Errorf("list uploaded files: %w", err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].ID < files[j].ID })

	toImport := files[:0:0]
	for _, file := range files {
		if c.store.HasNote(NoteIDForFile(file.ID)) {
			result.Skipped++
			continue
		}
		toImport = append(toImport, file)
	}
	if len(toImport) == 0 {
		return result, nil
	}

	folderID, err := c.store.EnsureFolder(DefaultFolderName)
	if err != nil {
		return result, fmt.Errorf("ensure import folder: %w", err)
	}

	// Reads fan out; note creation stays in file order so the first
	// imported note is deterministic.
	texts := make([]string, len(toImport))
	readErrs := make([]error, len(toImport))
	var wg sync.WaitGroup
	for i, file := range toImport {
		wg.Add(1)
		go func(i int, file UploadedFile) {
			defer wg.Done()
			texts[i], readErrs[i] = c.port.ReadFileAsText(ctx, file.Path)
		}(i, file)
	}
	wg.Wait()

	for i, file := range toImport {
		if readErrs[i] != nil {
			importErr := ImportError{FileID: file.ID, Path: file.Path, Err: readErrs[i]}
			c.logger.Printf("filesync: %v", importErr)
			result.Errors = append(result.Errors, importErr)
			continue
		}
		noteID, err := c.store.CreateNote(folderID, workspace.NoteSpec{
			ID:      NoteIDForFile(file.ID),
			Title:   file.Name,
			Content: document.FromText(texts[i]),
		})
		if err != nil {
			importErr := ImportError{FileID: file.ID, Path: file.Path, Err: err}
			c.logger.Printf("filesync: %v", importErr)
			result.Errors = append(result.Errors, importErr)
			continue
		}
		result.ImportedNoteIDs = append(result.ImportedNoteIDs, noteID)
	}
	return result, nil
}
