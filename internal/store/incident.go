package store

import (
	"database/sql"
	"errors"
	"time"
)

// Incident is a persisted high-priority behavior event.
type Incident struct {
	ID        string    `json:"id"`
	TrackID   int       `json:"track_id"`
	Label     string    `json:"label"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
}

// IncidentRepository provides access to stored incidents.
type IncidentRepository struct {
	db *sql.DB
}

// Incidents returns the incident repository for this store.
func (s *Store) Incidents() *IncidentRepository {
	return &IncidentRepository{db: s.db}
}

// Create inserts a new incident. A zero CreatedAt is set to now.
func (r *IncidentRepository) Create(inc *Incident) error {
	if inc.CreatedAt.IsZero() {
		inc.CreatedAt = time.Now()
	}
	if inc.Severity == "" {
		inc.Severity = "info"
	}

	_, err := r.db.Exec(
		`INSERT INTO incidents (id, track_id, label, message, severity, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		inc.ID, inc.TrackID, inc.Label, inc.Message, inc.Severity, inc.CreatedAt.UnixMilli(),
	)
	return err
}

// GetByID retrieves an incident by its ID.
func (r *IncidentRepository) GetByID(id string) (*Incident, error) {
	row := r.db.QueryRow(
		`SELECT id, track_id, label, message, severity, created_at
		 FROM incidents WHERE id = ?`,
		id,
	)

	inc, err := scanIncident(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return inc, nil
}

// List returns the most recent incidents, newest first. A non-positive
// limit returns every incident.
func (r *IncidentRepository) List(limit int) ([]*Incident, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.Query(
		`SELECT id, track_id, label, message, severity, created_at
		 FROM incidents ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	incidents := []*Incident{}
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, inc)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return incidents, nil
}

// Count returns the number of stored incidents.
func (r *IncidentRepository) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM incidents`).Scan(&n)
	return n, err
}

// DeleteBefore removes incidents created before t and returns how many
// were deleted.
func (r *IncidentRepository) DeleteBefore(t time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM incidents WHERE created_at < ?`, t.UnixMilli())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIncident(s scanner) (*Incident, error) {
	inc := &Incident{}
	var createdMs int64
	if err := s.Scan(&inc.ID, &inc.TrackID, &inc.Label, &inc.Message, &inc.Severity, &createdMs); err != nil {
		return nil, err
	}
	inc.CreatedAt = time.UnixMilli(createdMs)
	return inc, nil
}
