// Package incident turns high-priority label transitions into persisted,
// deduplicated incidents and fans them out to alert plugins.
package incident

import (
	"fmt"
	"time"

	"github.com/ayusman/panoptes/internal/behavior"
	"github.com/ayusman/panoptes/internal/store"
)

// Incident is one high-priority behavior event.
type Incident struct {
	ID       string         `json:"id"`
	TrackID  int            `json:"track_id"`
	Label    behavior.Label `json:"label"`
	Message  string         `json:"message"`
	Severity string         `json:"severity"`
	Time     time.Time      `json:"time"`
}

// Message formats the human-readable text used for deduplication.
func Message(trackID int, label behavior.Label) string {
	return fmt.Sprintf("track %d: %s", trackID, label)
}

// Record converts the incident to its storage form.
func (i Incident) Record() *store.Incident {
	return &store.Incident{
		ID:        i.ID,
		TrackID:   i.TrackID,
		Label:     string(i.Label),
		Message:   i.Message,
		Severity:  i.Severity,
		CreatedAt: i.Time,
	}
}

// FromRecord converts a stored incident back.
func FromRecord(r *store.Incident) Incident {
	return Incident{
		ID:       r.ID,
		TrackID:  r.TrackID,
		Label:    behavior.Label(r.Label),
		Message:  r.Message,
		Severity: r.Severity,
		Time:     r.CreatedAt,
	}
}
