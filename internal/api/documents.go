package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bull/znatok/internal/extract"
	"github.com/bull/znatok/internal/storage"
)

type uploadResponse struct {
	Status        string   `json:"status"`
	UploadedFiles []string `json:"uploaded_files"`
}

// handleUpload indexes every file of a multipart upload under the form's
// department. All types are checked before anything is stored; a file that
// fails to index is skipped.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	department := strings.TrimSpace(r.FormValue("department"))
	if department == "" {
		department = storage.AllDepartments
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		files = r.MultipartForm.File["file"]
	}
	if len(files) == 0 {
		writeDetail(w, http.StatusBadRequest, "No files uploaded")
		return
	}

	for _, fh := range files {
		if !extract.Accepts(fh.Filename, fh.Header.Get("Content-Type")) {
			writeDetail(w, http.StatusBadRequest, "Неподдерживаемый тип: "+fh.Filename)
			return
		}
	}

	uploaded := make([]string, 0, len(files))
	for _, fh := range files {
		name := displayName(fh.Filename)
		log := s.logger.With(zap.String("file", name), zap.String("department", department))

		data, err := readPart(fh)
		if err != nil {
			log.Error("Read upload failed, skipping file", zap.Error(err))
			continue
		}

		contentType := fh.Header.Get("Content-Type")
		if loc, err := s.deps.Archive.Save(r.Context(), name, data, contentType); err != nil {
			log.Warn("Archive original failed", zap.Error(err))
		} else if loc != "" {
			log.Debug("Archived original", zap.String("location", loc))
		}

		chunks, err := s.deps.Indexer.IndexBytes(r.Context(), name, department, contentType, data)
		if err != nil {
			log.Error("Indexing failed, skipping file", zap.Error(err))
			continue
		}
		log.Info("File indexed", zap.Int("chunks", chunks))
		uploaded = append(uploaded, name)
	}

	writeJSON(w, http.StatusOK, uploadResponse{Status: "ok", UploadedFiles: uploaded})
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// displayName strips any client-side directory from an uploaded filename.
func displayName(name string) string {
	return path.Base(strings.ReplaceAll(name, "\\", "/"))
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.deps.Indexer.Documents(r.Context())
	if err != nil {
		s.writeError(w, r, fmt.Errorf("list documents: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "filename"))
	if err != nil || !validFilename(name) {
		writeDetail(w, http.StatusBadRequest, "Invalid filename")
		return
	}

	if err := s.deps.Indexer.DeleteSource(r.Context(), name); err != nil {
		s.writeError(w, r, fmt.Errorf("delete %s: %w", name, err))
		return
	}
	if err := s.deps.Archive.Delete(r.Context(), name); err != nil {
		s.logger.Warn("Delete archived original failed", zap.String("file", name), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func validFilename(name string) bool {
	switch strings.TrimSpace(name) {
	case "", "undefined", "null":
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Indexer.Reset(r.Context()); err != nil {
		s.writeError(w, r, fmt.Errorf("reset collection: %w", err))
		return
	}
	s.logger.Warn("Collection reset")
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}
