package store

import (
	"database/sql"
)

// Detection is one accepted annotation record stored for an upload.
type Detection struct {
	Seq        int
	ClassID    int
	Confidence float64
	X1, Y1     int
	X2, Y2     int
}

// DetectionRepository provides access to the records of uploads.
type DetectionRepository struct {
	db *sql.DB
}

// Detections returns the detection repository for this store.
func (s *Store) Detections() *DetectionRepository {
	return &DetectionRepository{db: s.db}
}

func insertDetections(tx *sql.Tx, uploadID string, detections []Detection) error {
	if len(detections) == 0 {
		return nil
	}

	stmt, err := tx.Prepare(
		`INSERT INTO detections (upload_id, seq, class_id, confidence, x1, y1, x2, y2)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, d := range detections {
		if _, err := stmt.Exec(uploadID, i, d.ClassID, d.Confidence, d.X1, d.Y1, d.X2, d.Y2); err != nil {
			return err
		}
	}
	return nil
}

// GetByUploadID retrieves the records of an upload in detector order.
func (r *DetectionRepository) GetByUploadID(uploadID string) ([]Detection, error) {
	rows, err := r.db.Query(
		`SELECT seq, class_id, confidence, x1, y1, x2, y2
		 FROM detections
		 WHERE upload_id = ?
		 ORDER BY seq`,
		uploadID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	detections := []Detection{}
	for rows.Next() {
		var d Detection
		if err := rows.Scan(&d.Seq, &d.ClassID, &d.Confidence, &d.X1, &d.Y1, &d.X2, &d.Y2); err != nil {
			return nil, err
		}
		detections = append(detections, d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return detections, nil
}
