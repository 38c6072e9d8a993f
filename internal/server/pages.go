package server

import (
	"bytes"
	"embed"
	"html/template"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/pkg/errors"

	"github.com/ayusman/autoannotate/internal/app"
	"github.com/ayusman/autoannotate/internal/server/api"
	"github.com/ayusman/autoannotate/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

// maxMemory is the part of a multipart form kept in memory; the rest spills
// to temporary files.
const maxMemory = 32 << 20

func parseTemplates() (*template.Template, error) {
	return template.New("pages").Funcs(sprig.FuncMap()).ParseFS(templateFS, "templates/*.html")
}

type indexData struct {
	TargetClass string
	Threshold   float64
}

type galleryItem struct {
	api.UploadResponse
	Created time.Time
}

type galleryData struct {
	Title string
	Items []galleryItem
	Live  bool
}

func newGalleryItems(uploads []*store.Upload) []galleryItem {
	items := make([]galleryItem, 0, len(uploads))
	for _, u := range uploads {
		items = append(items, galleryItem{UploadResponse: api.NewUploadResponse(u), Created: u.CreatedAt})
	}
	return items
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data interface{}) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.Errorw("Failed to render page", "template", name, "error", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// handleIndex serves the upload form at /.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.render(w, http.StatusOK, "index.html", indexData{
		TargetClass: s.config.TargetClass,
		Threshold:   s.config.Threshold,
	})
}

// handleGallery lists every upload, newest first.
func (s *Server) handleGallery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uploads, err := s.config.App.Store().Uploads().List()
	if err != nil {
		s.logger.Errorw("Failed to list uploads", "error", err)
		http.Error(w, "Failed to list uploads", http.StatusInternalServerError)
		return
	}

	s.render(w, http.StatusOK, "gallery.html", galleryData{
		Title: "Gallery",
		Items: newGalleryItems(uploads),
		Live:  true,
	})
}

// handleUpload accepts one or more files in the multipart field "file",
// processes each and responds with a gallery of this request's uploads.
// A file that fails to process is shown as failed and does not stop the
// others.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.config.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Upload too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "No files part", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	// Parts sent without a filename are parsed as plain values.
	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		if _, ok := r.MultipartForm.Value["file"]; ok {
			http.Error(w, "No valid files uploaded", http.StatusBadRequest)
			return
		}
		http.Error(w, "No files part", http.StatusBadRequest)
		return
	}

	var uploads []*store.Upload
	for _, fh := range files {
		u, err := s.ingest(r, fh)
		if errors.Is(err, app.ErrInvalidFilename) {
			s.logger.Debugw("Skipping file without a usable name", "filename", fh.Filename)
			continue
		}
		if err != nil {
			s.logger.Warnw("Upload failed", "filename", fh.Filename, "error", err)
		}
		if u != nil {
			uploads = append(uploads, u)
		}
	}

	if len(uploads) == 0 {
		http.Error(w, "No valid files uploaded", http.StatusBadRequest)
		return
	}

	s.render(w, http.StatusOK, "gallery.html", galleryData{
		Title: "Uploaded",
		Items: newGalleryItems(uploads),
	})
}

func (s *Server) ingest(r *http.Request, fh *multipart.FileHeader) (*store.Upload, error) {
	if strings.TrimSpace(fh.Filename) == "" {
		return nil, app.ErrInvalidFilename
	}

	f, err := fh.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", fh.Filename)
	}
	defer f.Close()

	return s.config.App.Ingest(r.Context(), fh.Filename, f)
}

// processedFiles serves ProcessedDir under /processed/ without directory
// listings.
func (s *Server) processedFiles() http.Handler {
	fs := http.StripPrefix("/processed/", http.FileServer(http.Dir(s.config.ProcessedDir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		fs.ServeHTTP(w, r)
	})
}
