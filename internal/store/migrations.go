package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Uploads table - one row per received file and its outputs
		`CREATE TABLE IF NOT EXISTS uploads (
			id TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			source_path TEXT NOT NULL,
			output_dir TEXT NOT NULL,
			annotation_path TEXT NOT NULL DEFAULT '',
			image_path TEXT NOT NULL DEFAULT '',
			thumbnail_path TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL CHECK(status IN ('processed', 'failed')),
			error TEXT NOT NULL DEFAULT '',
			detections INTEGER NOT NULL DEFAULT 0,
			width INTEGER NOT NULL DEFAULT 0,
			height INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Detections table - accepted annotation records per upload
		`CREATE TABLE IF NOT EXISTS detections (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			upload_id TEXT NOT NULL REFERENCES uploads(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			class_id INTEGER NOT NULL,
			confidence REAL NOT NULL CHECK(confidence >= 0 AND confidence <= 1),
			x1 INTEGER NOT NULL,
			y1 INTEGER NOT NULL,
			x2 INTEGER NOT NULL,
			y2 INTEGER NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_detections_upload_id ON detections(upload_id)`,
		`CREATE INDEX IF NOT EXISTS idx_uploads_created_at ON uploads(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
