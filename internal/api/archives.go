package api

import (
	"fmt"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/starford/idmlkit/internal/docservice"
)

const (
	maxUploadBytes = 50 << 20 // 50 MB
	idmlMediaType  = "application/vnd.adobe.indesign-idml-package"
)

// ArchiveHandler moves whole archives in and out of the library.
type ArchiveHandler struct {
	svc *docservice.Service
}

// NewArchiveHandler creates a handler backed by svc.
func NewArchiveHandler(svc *docservice.Service) *ArchiveHandler {
	return &ArchiveHandler{svc: svc}
}

// safeName validates that name is a relative slash path with no traversal.
func safeName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("filename is required")
	}
	cleaned := path.Clean(strings.ReplaceAll(name, `\`, "/"))
	if path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	return cleaned, nil
}

// Download handles GET /api/packages/{name}/download.
func (h *ArchiveHandler) Download(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "name")
	abs, err := h.svc.ArchivePath(name)
	if err != nil {
		writeError(w, "download", err)
		return
	}
	w.Header().Set("Content-Type", idmlMediaType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(abs)))
	http.ServeFile(w, r, abs)
}

// Upload handles POST /api/packages (multipart/form-data, field "file").
// An optional "name" field places the archive under a library path;
// otherwise the uploaded filename is used.
func (h *ArchiveHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(codeInvalidInput, "file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(codeInvalidInput, "missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}
	name, err = safeName(name)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(codeInvalidInput, err.Error()))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(codeInvalidInput, "failed to read upload"))
		return
	}

	sum, err := h.svc.ImportPackage(r.Context(), name, data)
	if err != nil {
		writeError(w, "upload package", err)
		return
	}
	writeJSON(w, http.StatusCreated, sum)
}
