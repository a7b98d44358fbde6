package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"scribe/api/internal/document"
	"scribe/api/internal/export"
	"scribe/api/internal/generate"
	"scribe/api/internal/search"
	"scribe/api/internal/workspace"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	upgrader   websocket.Upgrader
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{
		service:    service,
		corsOrigin: corsOrigin,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	// The websocket route stays outside the middleware: the upgrader needs
	// the raw ResponseWriter to hijack the connection.
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/", s.withMiddleware(http.HandlerFunc(s.handle)))
	return mux
}

func (s *HTTPServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}
	s.service.Hub().Register(conn)
	go s.service.Hub().HandleConnection(conn)
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database":  map[string]any{"status": "ok"},
			"workspace": map[string]any{"phase": s.service.Snapshot().Phase},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/workspace" {
		writeJSON(w, http.StatusOK, s.service.Snapshot())
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		query := search.Query{Text: r.URL.Query().Get("q")}
		if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
			query.Limit = limit
		}
		if offset, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil {
			query.Offset = offset
		}
		writeJSON(w, http.StatusOK, s.service.Search(query))
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) >= 2 && parts[0] == "api" {
		switch parts[1] {
		case "folders":
			s.handleFolders(w, r, parts[2:])
			return
		case "notes":
			s.handleNotes(w, r, parts[2:])
			return
		case "tabs":
			s.handleTabs(w, r, parts[2:])
			return
		case "generation":
			s.handleGeneration(w, r, parts[2:])
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleFolders(w http.ResponseWriter, r *http.Request, rest []string) {
	switch {
	case r.Method == http.MethodPost && len(rest) == 0:
		var body struct {
			Name string `json:"name"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		folder, err := s.service.CreateFolder(body.Name)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, folder)

	case r.Method == http.MethodPut && len(rest) == 1:
		var body struct {
			Name string `json:"name"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		folder, err := s.service.RenameFolder(rest[0], body.Name)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, folder)

	case r.Method == http.MethodPut && len(rest) == 2 && rest[1] == "expanded":
		folder, err := s.service.ToggleFolderExpanded(rest[0])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, folder)

	case r.Method == http.MethodPost && len(rest) == 2 && rest[1] == "activate":
		if err := s.service.SetActiveFolder(rest[0]); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"activeFolderId": rest[0]})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleNotes(w http.ResponseWriter, r *http.Request, rest []string) {
	switch {
	case r.Method == http.MethodPost && len(rest) == 0:
		var body struct {
			FolderID string `json:"folderId"`
			Title    string `json:"title"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		note, err := s.service.CreateNote(body.FolderID, body.Title)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, note)

	case r.Method == http.MethodGet && len(rest) == 1:
		note, err := s.service.Note(rest[0])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, note)

	case r.Method == http.MethodPut && len(rest) == 2 && rest[1] == "content":
		var body struct {
			Content document.Document `json:"content"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		note, err := s.service.UpdateNoteContent(rest[0], body.Content)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, note)

	case r.Method == http.MethodPut && len(rest) == 2 && rest[1] == "title":
		var body struct {
			Title string `json:"title"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		note, err := s.service.RenameNote(rest[0], body.Title)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, note)

	case r.Method == http.MethodDelete && len(rest) == 1:
		if err := s.service.DeleteNote(rest[0]); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": rest[0]})

	case r.Method == http.MethodGet && len(rest) == 2 && rest[1] == "history":
		limit := 0
		if parsed, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
			limit = parsed
		}
		commits, err := s.service.NoteHistory(rest[0], limit)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"commits": commits})

	case r.Method == http.MethodGet && len(rest) == 2 && rest[1] == "export":
		format, err := export.ParseFormat(r.URL.Query().Get("format"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_FORMAT", err.Error(), nil)
			return
		}
		result, err := s.service.ExportNote(r.Context(), rest[0], format)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleTabs(w http.ResponseWriter, r *http.Request, rest []string) {
	switch {
	case r.Method == http.MethodPost && len(rest) == 2 && rest[1] == "activate":
		if err := s.service.ActivateTab(rest[0]); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"activeTabId": rest[0]})

	case r.Method == http.MethodPut && len(rest) == 2 && rest[1] == "renaming":
		var body struct {
			Renaming bool `json:"renaming"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.SetTabRenaming(rest[0], body.Renaming); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tabId": rest[0], "renaming": body.Renaming})

	case r.Method == http.MethodDelete && len(rest) == 1:
		if err := s.service.CloseTab(rest[0]); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"closed": rest[0]})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleGeneration(w http.ResponseWriter, r *http.Request, rest []string) {
	switch {
	case r.Method == http.MethodGet && len(rest) == 0:
		writeJSON(w, http.StatusOK, s.service.GenerationStatus())

	case r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "request":
		var body struct {
			SourceNoteID string `json:"sourceNoteId"`
			TemplateType string `json:"templateType"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		status, err := s.service.RequestGeneration(body.SourceNoteID, workspace.TemplateType(body.TemplateType))
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, status)

	case r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "confirm":
		note, err := s.service.ConfirmGeneration(r.Context())
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, note)

	case r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "cancel":
		if err := s.service.CancelGeneration(); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.service.GenerationStatus())

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if workspace.IsValidation(err) {
		return http.StatusBadRequest, "VALIDATION", err.Error(), nil
	}
	if workspace.IsNotFound(err) {
		return http.StatusNotFound, "NOT_FOUND", err.Error(), nil
	}
	if errors.Is(err, workspace.ErrAlreadySynced) {
		return http.StatusConflict, "ALREADY_SYNCED", err.Error(), nil
	}
	if errors.Is(err, generate.ErrGenerationInProgress) {
		return http.StatusConflict, "GENERATION_IN_PROGRESS", err.Error(), nil
	}
	if errors.Is(err, generate.ErrNoPendingRequest) {
		return http.StatusConflict, "NO_PENDING_GENERATION", err.Error(), nil
	}
	if errors.Is(err, generate.ErrSourceNotPlain) {
		return http.StatusBadRequest, "INVALID_SOURCE", err.Error(), nil
	}
	var genErr *generate.GenerationError
	if errors.As(err, &genErr) {
		switch genErr.Kind {
		case generate.FailureQuota:
			return http.StatusTooManyRequests, "GENERATION_QUOTA", "Generation quota exhausted", nil
		case generate.FailureNetwork, generate.FailureService:
			return http.StatusBadGateway, "GENERATION_UPSTREAM", "Generation provider unavailable", nil
		case generate.FailureMalformed:
			return http.StatusBadGateway, "GENERATION_MALFORMED", "Generation provider returned an unusable response", nil
		}
	}
	if errors.Is(err, export.ErrPDFDependencyMissing) {
		return http.StatusNotImplemented, "PDF_UNAVAILABLE", "PDF export is not available on this host", nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
