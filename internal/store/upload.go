package store

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// UploadStatus is the outcome of processing an upload.
type UploadStatus string

const (
	// UploadStatusProcessed means all outputs were written.
	UploadStatusProcessed UploadStatus = "processed"
	// UploadStatusFailed means processing stopped with an error.
	UploadStatusFailed UploadStatus = "failed"
)

// Upload represents one received image and its processed outputs.
type Upload struct {
	ID             string
	Filename       string
	SourcePath     string
	OutputDir      string
	AnnotationPath string
	ImagePath      string
	ThumbnailPath  string
	Status         UploadStatus
	Error          string
	Detections     int
	Width          int
	Height         int
	CreatedAt      time.Time
}

// UploadRepository provides CRUD operations for uploads.
type UploadRepository struct {
	db *sql.DB
}

// Uploads returns the upload repository for this store.
func (s *Store) Uploads() *UploadRepository {
	return &UploadRepository{db: s.db}
}

const uploadColumns = `id, filename, source_path, output_dir, annotation_path, image_path,
	thumbnail_path, status, error, detections, width, height, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanUpload(row scanner) (*Upload, error) {
	u := &Upload{}
	var status string

	err := row.Scan(&u.ID, &u.Filename, &u.SourcePath, &u.OutputDir, &u.AnnotationPath, &u.ImagePath,
		&u.ThumbnailPath, &status, &u.Error, &u.Detections, &u.Width, &u.Height, &u.CreatedAt)
	if err != nil {
		return nil, err
	}

	u.Status = UploadStatus(status)
	return u, nil
}

// Create inserts a new upload together with its detection records in a
// single transaction. The upload's detection count is set from detections.
func (r *UploadRepository) Create(u *Upload, detections ...Detection) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	createdAt := time.Now()
	_, err = tx.Exec(
		`INSERT INTO uploads (`+uploadColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Filename, u.SourcePath, u.OutputDir, u.AnnotationPath, u.ImagePath,
		u.ThumbnailPath, string(u.Status), u.Error, len(detections), u.Width, u.Height, createdAt,
	)
	if err != nil {
		return err
	}

	if err := insertDetections(tx, u.ID, detections); err != nil {
		return errors.Wrap(err, "insert detections")
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	u.CreatedAt = createdAt
	u.Detections = len(detections)
	return nil
}

// GetByID retrieves an upload by its ID.
func (r *UploadRepository) GetByID(id string) (*Upload, error) {
	u, err := scanUpload(r.db.QueryRow(
		`SELECT `+uploadColumns+` FROM uploads WHERE id = ?`,
		id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

// List retrieves all uploads, newest first.
func (r *UploadRepository) List() ([]*Upload, error) {
	rows, err := r.db.Query(
		`SELECT ` + uploadColumns + ` FROM uploads ORDER BY created_at DESC, rowid DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var uploads []*Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, u)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return uploads, nil
}

// Delete removes an upload and its detection records.
func (r *UploadRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM uploads WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
