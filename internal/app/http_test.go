package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"scribe/api/internal/config"
	"scribe/api/internal/filesync"
	"scribe/api/internal/generate"
	"scribe/api/internal/workspace"
)

type fakePort struct {
	files map[string]string
}

func (f *fakePort) ListUploadedFiles(ctx context.Context) ([]filesync.UploadedFile, error) {
	var files []filesync.UploadedFile
	for name := range f.files {
		files = append(files, filesync.UploadedFile{ID: strings.TrimSuffix(name, ".txt"), Name: name, Path: name})
	}
	return files, nil
}

func (f *fakePort) ReadFileAsText(ctx context.Context, path string) (string, error) {
	text, ok := f.files[path]
	if !ok {
		return "", fmt.Errorf("no such file %s", path)
	}
	return text, nil
}

type fakeGenerator struct{}

func (fakeGenerator) Generate(_ context.Context, templateType workspace.TemplateType, sourceText string) (string, error) {
	return fmt.Sprintf("%s:\n%s", templateType, sourceText), nil
}

func newTestServer(t *testing.T) (*httptest.Server, *Service) {
	t.Helper()
	cfg := config.Config{CORSOrigin: "*"}
	svc := NewService(cfg, Options{
		FilePort:  &fakePort{files: map[string]string{"intake.txt": "Patient reports anxiety."}},
		Generator: fakeGenerator{},
		Logger:    log.New(io.Discard, "", 0),
	})
	if err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	server := httptest.NewServer(NewHTTPServer(svc, cfg.CORSOrigin).Handler())
	t.Cleanup(server.Close)
	return server, svc
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func TestHealthEndpoints(t *testing.T) {
	server, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, server.URL+"/api/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/ready", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("ready status = %d: %s", resp.StatusCode, body)
	}
}

func TestWorkspaceSnapshotAfterBootstrap(t *testing.T) {
	server, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/workspace", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	var snapshot workspace.Snapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if snapshot.Phase != workspace.PhaseReady {
		t.Errorf("phase = %q", snapshot.Phase)
	}
	if len(snapshot.Notes) != 1 || snapshot.Notes[0].ID != "note-intake" {
		t.Fatalf("notes = %+v, want the imported note", snapshot.Notes)
	}
	if snapshot.ActiveTabID != "note-intake" {
		t.Errorf("activeTabId = %q", snapshot.ActiveTabID)
	}
}

func TestFolderAndNoteCRUD(t *testing.T) {
	server, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/folders", map[string]string{"name": "Sessions"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create folder status = %d: %s", resp.StatusCode, body)
	}
	var folder workspace.Folder
	if err := json.Unmarshal(body, &folder); err != nil {
		t.Fatalf("unmarshal folder: %v", err)
	}

	resp, body = doJSON(t, http.MethodPost, server.URL+"/api/notes", map[string]string{"folderId": folder.ID, "title": "Intake"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create note status = %d: %s", resp.StatusCode, body)
	}
	var note workspace.Note
	if err := json.Unmarshal(body, &note); err != nil {
		t.Fatalf("unmarshal note: %v", err)
	}

	resp, body = doJSON(t, http.MethodPut, server.URL+"/api/notes/"+note.ID+"/title", map[string]string{"title": ""})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rename status = %d: %s", resp.StatusCode, body)
	}
	var renamed workspace.Note
	if err := json.Unmarshal(body, &renamed); err != nil {
		t.Fatalf("unmarshal note: %v", err)
	}
	if renamed.Title != workspace.UntitledNote {
		t.Errorf("blank rename produced title %q", renamed.Title)
	}

	resp, _ = doJSON(t, http.MethodDelete, server.URL+"/api/notes/"+note.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, server.URL+"/api/notes/"+note.ID, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("deleted note fetch status = %d, want 404", resp.StatusCode)
	}
}

func TestValidationErrorsMapToBadRequest(t *testing.T) {
	server, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/folders", map[string]string{"name": "   "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty folder name status = %d: %s", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, http.MethodPost, server.URL+"/api/notes", map[string]string{"folderId": "folder-gone", "title": "x"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown folder status = %d", resp.StatusCode)
	}
}

func TestGenerationFlowOverHTTP(t *testing.T) {
	server, svc := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/generation/request",
		map[string]string{"sourceNoteId": "note-intake", "templateType": "SOAP"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("request status = %d: %s", resp.StatusCode, body)
	}
	var status generate.Status
	if err := json.Unmarshal(body, &status); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if status.State != generate.StateAwaitingConfirmation {
		t.Errorf("state = %q", status.State)
	}

	resp, body = doJSON(t, http.MethodPost, server.URL+"/api/generation/confirm", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("confirm status = %d: %s", resp.StatusCode, body)
	}
	var note workspace.Note
	if err := json.Unmarshal(body, &note); err != nil {
		t.Fatalf("unmarshal note: %v", err)
	}
	if note.Kind != workspace.NoteKindTemplated || note.TemplateType != workspace.TemplateSOAP {
		t.Errorf("generated note = %+v", note)
	}
	if note.Title != "SOAP for intake.txt" {
		t.Errorf("title = %q", note.Title)
	}
	if got := svc.Workspace().ActiveTabID(); got != note.ID {
		t.Errorf("active tab = %q, want generated note", got)
	}

	// Nothing is awaiting confirmation anymore.
	resp, _ = doJSON(t, http.MethodPost, server.URL+"/api/generation/confirm", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second confirm status = %d, want 409", resp.StatusCode)
	}
}

func TestGenerationRequestValidation(t *testing.T) {
	server, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/api/generation/request",
		map[string]string{"sourceNoteId": "note-intake", "templateType": "HAIKU"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad template type status = %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, server.URL+"/api/generation/cancel", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("cancel with nothing pending status = %d, want 409", resp.StatusCode)
	}
}

func TestTabRoutes(t *testing.T) {
	server, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/api/tabs/note-intake/activate", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("activate status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodDelete, server.URL+"/api/tabs/note-intake", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("close status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodDelete, server.URL+"/api/tabs/note-intake", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("closing a closed tab status = %d, want 404", resp.StatusCode)
	}
}

func TestExportNoteHTML(t *testing.T) {
	server, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/notes/note-intake/export?format=html", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export status = %d: %s", resp.StatusCode, body)
	}
	if got := resp.Header.Get("Content-Type"); !strings.HasPrefix(got, "text/html") {
		t.Errorf("content type = %q", got)
	}
	if !strings.Contains(string(body), "Patient reports anxiety.") {
		t.Errorf("export missing note content")
	}

	resp, _ = doJSON(t, http.MethodGet, server.URL+"/api/notes/note-intake/export?format=docx", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unsupported format status = %d", resp.StatusCode)
	}
}
