package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Incidents table - high-priority behavior events, created_at in unix milliseconds
		`CREATE TABLE IF NOT EXISTS incidents (
			id TEXT PRIMARY KEY,
			track_id INTEGER NOT NULL,
			label TEXT NOT NULL,
			message TEXT NOT NULL,
			severity TEXT NOT NULL DEFAULT 'info',
			created_at INTEGER NOT NULL
		)`,

		// Settings table - stores application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_incidents_created_at ON incidents(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_label ON incidents(label)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
