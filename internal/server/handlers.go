package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/inconshreveable/log15"
	"github.com/sourcegraph/go-lsp"

	"github.com/sourcegraph/lsif-server/internal/api"
	"github.com/sourcegraph/lsif-server/internal/bundles"
	"github.com/sourcegraph/lsif-server/internal/paths"
	"github.com/sourcegraph/lsif-server/internal/worker"
)

// POST /upload?repository=&commit=&root=[&skipValidation=true]
//
// Spools the gzipped LSIF payload to the uploads directory, validating
// each decompressed line against the payload schema on the way, and
// enqueues a convert job for it.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	repository := q.Get("repository")
	commit := q.Get("commit")
	root := sanitizeRoot(q.Get("root"))
	skipValidation, _ := strconv.ParseBool(q.Get("skipValidation"))

	if repository == "" {
		http.Error(w, "repository must be supplied", http.StatusBadRequest)
		return
	}
	if !isCommit(commit) {
		http.Error(w, "commit must be a 40-character revhash", http.StatusBadRequest)
		return
	}

	name := uuid.New().String()
	filename := paths.UploadFilename(s.storageRoot, name)

	file, err := os.Create(filename)
	if err != nil {
		log15.Error("Failed to create upload file", "filename", filename, "error", err)
		http.Error(w, fmt.Sprintf("failed to create upload file: %s", err), http.StatusInternalServerError)
		return
	}

	err = spoolUpload(file, r.Body, skipValidation)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(filename)

		if IsValidationError(err) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

		log15.Error("Failed to write upload", "error", err)
		http.Error(w, fmt.Sprintf("failed to write upload: %s", err), http.StatusInternalServerError)
		return
	}

	job, err := s.jobQueue.Enqueue(r.Context(), worker.JobConvert, worker.ConvertArgs{
		Repository: repository,
		Commit:     commit,
		Root:       root,
		Filename:   name,
	})
	if err != nil {
		_ = os.Remove(filename)
		log15.Error("Failed to enqueue conversion", "error", err)
		http.Error(w, fmt.Sprintf("failed to enqueue conversion: %s", err), http.StatusInternalServerError)
		return
	}

	log15.Info("Enqueued upload", "job", job.ID, "repository", repository, "commit", commit, "root", root)
	writeJSON(w, map[string]interface{}{"id": job.ID})
}

// POST /exists?repository=&commit=&file=
func (s *Server) handleExists(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	repository := q.Get("repository")
	commit := q.Get("commit")
	file := q.Get("file")

	if repository == "" || file == "" {
		http.Error(w, "repository and file must be supplied", http.StatusBadRequest)
		return
	}
	if !isCommit(commit) {
		http.Error(w, "commit must be a 40-character revhash", http.StatusBadRequest)
		return
	}

	exists, err := s.codeIntelAPI.Exists(r.Context(), repository, commit, file)
	if err != nil {
		log15.Error("Failed to handle exists request", "error", err)
		http.Error(w, fmt.Sprintf("failed to handle exists request: %s", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, exists)
}

type requestPayload struct {
	Path     string       `json:"path"`
	Position lsp.Position `json:"position"`
	Method   string       `json:"method"`
}

type locationPayload struct {
	Repository string    `json:"repository"`
	Commit     string    `json:"commit"`
	Path       string    `json:"path"`
	Range      lsp.Range `json:"range"`
}

// POST /request?repository=&commit=
//
// Dispatches a definitions, references, or hover query at the position
// named in the body.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	repository := q.Get("repository")
	commit := q.Get("commit")

	if repository == "" {
		http.Error(w, "repository must be supplied", http.StatusBadRequest)
		return
	}
	if !isCommit(commit) {
		http.Error(w, "commit must be a 40-character revhash", http.StatusBadRequest)
		return
	}

	var payload requestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("failed to read request body: %s", err), http.StatusBadRequest)
		return
	}

	line := payload.Position.Line
	character := payload.Position.Character

	switch payload.Method {
	case "definitions":
		locations, err := s.codeIntelAPI.Definitions(r.Context(), repository, commit, payload.Path, line, character)
		if err != nil {
			log15.Error("Failed to handle definitions request", "error", err)
			http.Error(w, fmt.Sprintf("failed to handle definitions request: %s", err), http.StatusInternalServerError)
			return
		}

		writeJSON(w, serializeLocations(locations))

	case "references":
		locations, err := s.codeIntelAPI.References(r.Context(), repository, commit, payload.Path, line, character)
		if err != nil {
			log15.Error("Failed to handle references request", "error", err)
			http.Error(w, fmt.Sprintf("failed to handle references request: %s", err), http.StatusInternalServerError)
			return
		}

		writeJSON(w, serializeLocations(locations))

	case "hover":
		text, hoverRange, exists, err := s.codeIntelAPI.Hover(r.Context(), repository, commit, payload.Path, line, character)
		if err != nil {
			log15.Error("Failed to handle hover request", "error", err)
			http.Error(w, fmt.Sprintf("failed to handle hover request: %s", err), http.StatusInternalServerError)
			return
		}

		if !exists {
			writeJSON(w, nil)
		} else {
			writeJSON(w, map[string]interface{}{"text": text, "range": lspRange(hoverRange)})
		}

	default:
		http.Error(w, fmt.Sprintf("unsupported method %q", payload.Method), http.StatusUnprocessableEntity)
	}
}

// GET /jobs/stats
func (s *Server) handleJobStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.jobQueue.Stats(r.Context())
	if err != nil {
		log15.Error("Failed to read queue stats", "error", err)
		http.Error(w, fmt.Sprintf("failed to read queue stats: %s", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, stats)
}

func serializeLocations(locations []api.ResolvedLocation) []locationPayload {
	payloads := make([]locationPayload, 0, len(locations))
	for _, location := range locations {
		payloads = append(payloads, locationPayload{
			Repository: location.Dump.Repository,
			Commit:     location.Dump.Commit,
			Path:       location.Path,
			Range:      lspRange(location.Range),
		})
	}

	return payloads
}

func lspRange(r bundles.Range) lsp.Range {
	return lsp.Range{
		Start: lsp.Position{Line: r.Start.Line, Character: r.Start.Character},
		End:   lsp.Position{Line: r.End.Line, Character: r.End.Character},
	}
}

// writeJSON writes the JSON-encoded payload to w and logs on write failure.
// If there is an encoding error, then a 500-level status is written to w.
func writeJSON(w http.ResponseWriter, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log15.Error("Failed to serialize result", "error", err)
		http.Error(w, fmt.Sprintf("failed to serialize result: %s", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		log15.Error("Failed to write payload to client", "error", err)
	}
}

// isCommit reports whether the value looks like a full 40-character git
// revhash.
func isCommit(commit string) bool {
	if len(commit) != 40 {
		return false
	}

	for _, c := range commit {
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}

	return true
}

func sanitizeRoot(s string) string {
	if s == "" || s == "/" {
		return ""
	}
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}
