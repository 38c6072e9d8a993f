// Package api provides the JSON API handlers for uploads.
package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ayusman/autoannotate/internal/store"
)

// Deleter removes an upload together with its files.
type Deleter interface {
	Delete(id string) error
}

// UploadHandler handles HTTP requests for upload resources.
type UploadHandler struct {
	store   *store.Store
	deleter Deleter
	logger  *zap.SugaredLogger
}

// NewUploadHandler creates a new UploadHandler. When d is nil, DELETE only
// removes the store record.
func NewUploadHandler(s *store.Store, d Deleter, logger *zap.SugaredLogger) *UploadHandler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &UploadHandler{store: s, deleter: d, logger: logger}
}

// ServeHTTP routes /api/uploads, /api/uploads/{id} and
// /api/uploads/{id}/detections.
func (h *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/uploads")
	path = strings.Trim(path, "/")

	if path == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
		return
	}

	id, sub, _ := strings.Cut(path, "/")
	switch sub {
	case "":
		switch r.Method {
		case http.MethodGet:
			h.get(w, r, id)
		case http.MethodDelete:
			h.delete(w, r, id)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "detections":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.detections(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

// UploadResponse is the JSON form of an upload. It is also the payload of
// upload events.
type UploadResponse struct {
	ID            string `json:"id"`
	Filename      string `json:"filename"`
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
	Detections    int    `json:"detections"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	ImageURL      string `json:"image_url,omitempty"`
	AnnotationURL string `json:"annotation_url,omitempty"`
	ThumbnailURL  string `json:"thumbnail_url,omitempty"`
	CreatedAt     string `json:"created_at"`
}

type listUploadsResponse struct {
	Uploads []UploadResponse `json:"uploads"`
}

type detectionResponse struct {
	Seq        int     `json:"seq"`
	ClassID    int     `json:"class_id"`
	Confidence float64 `json:"confidence"`
	Box        [4]int  `json:"box"`
}

type listDetectionsResponse struct {
	UploadID   string              `json:"upload_id"`
	Detections []detectionResponse `json:"detections"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewUploadResponse converts a store.Upload to its JSON form.
func NewUploadResponse(u *store.Upload) UploadResponse {
	return UploadResponse{
		ID:            u.ID,
		Filename:      u.Filename,
		Status:        string(u.Status),
		Error:         u.Error,
		Detections:    u.Detections,
		Width:         u.Width,
		Height:        u.Height,
		ImageURL:      ProcessedURL(u.ID, u.ImagePath),
		AnnotationURL: ProcessedURL(u.ID, u.AnnotationPath),
		ThumbnailURL:  ProcessedURL(u.ID, u.ThumbnailPath),
		CreatedAt:     u.CreatedAt.Format(time.RFC3339),
	}
}

// ProcessedURL returns the URL under which the server serves an output file
// of upload id, or "" when path is empty.
func ProcessedURL(id, path string) string {
	if path == "" {
		return ""
	}
	return "/processed/" + url.PathEscape(id) + "/" + url.PathEscape(filepath.Base(path))
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// list handles GET /api/uploads, newest first.
func (h *UploadHandler) list(w http.ResponseWriter, r *http.Request) {
	uploads, err := h.store.Uploads().List()
	if err != nil {
		h.logger.Errorw("Failed to list uploads", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list uploads")
		return
	}

	response := listUploadsResponse{
		Uploads: make([]UploadResponse, 0, len(uploads)),
	}
	for _, u := range uploads {
		response.Uploads = append(response.Uploads, NewUploadResponse(u))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/uploads/{id}.
func (h *UploadHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	u, err := h.store.Uploads().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Upload not found")
			return
		}
		h.logger.Errorw("Failed to get upload", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get upload")
		return
	}

	writeJSON(w, http.StatusOK, NewUploadResponse(u))
}

// delete handles DELETE /api/uploads/{id}.
func (h *UploadHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	var err error
	if h.deleter != nil {
		err = h.deleter.Delete(id)
	} else {
		err = h.store.Uploads().Delete(id)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Upload not found")
			return
		}
		h.logger.Errorw("Failed to delete upload", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete upload")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// detections handles GET /api/uploads/{id}/detections.
func (h *UploadHandler) detections(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := h.store.Uploads().GetByID(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Upload not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get upload")
		return
	}

	detections, err := h.store.Detections().GetByUploadID(id)
	if err != nil {
		h.logger.Errorw("Failed to list detections", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list detections")
		return
	}

	response := listDetectionsResponse{
		UploadID:   id,
		Detections: make([]detectionResponse, 0, len(detections)),
	}
	for _, d := range detections {
		response.Detections = append(response.Detections, detectionResponse{
			Seq:        d.Seq,
			ClassID:    d.ClassID,
			Confidence: d.Confidence,
			Box:        [4]int{d.X1, d.Y1, d.X2, d.Y2},
		})
	}

	writeJSON(w, http.StatusOK, response)
}
