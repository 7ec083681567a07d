package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
)

// TimetableStatus represents lifecycle phases for accepted timetables.
type TimetableStatus string

const (
	TimetableStatusDraft     TimetableStatus = "DRAFT"
	TimetableStatusPublished TimetableStatus = "PUBLISHED"
	TimetableStatusArchived  TimetableStatus = "ARCHIVED"
)

// Timetable is a versioned snapshot of an accepted schedule. Versions count up per ScopeKey.
type Timetable struct {
	ID         string          `db:"id" json:"id"`
	ScopeKey   string          `db:"scope_key" json:"scope_key"`
	SectionIDs pq.StringArray  `db:"section_ids" json:"section_ids"`
	Version    int             `db:"version" json:"version"`
	Status     TimetableStatus `db:"status" json:"status"`
	SessionID  string          `db:"session_id" json:"session_id"`
	Revision   int64           `db:"revision" json:"revision"`
	Meta       types.JSONText  `db:"meta" json:"meta"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// TimetableSlot is a single placed period inside a timetable.
type TimetableSlot struct {
	ID          string    `db:"id" json:"id"`
	TimetableID string    `db:"timetable_id" json:"timetable_id"`
	SectionID   string    `db:"section_id" json:"section_id"`
	SubjectID   string    `db:"subject_id" json:"subject_id"`
	TeacherID   string    `db:"teacher_id" json:"teacher_id"`
	RoomID      string    `db:"room_id" json:"room_id"`
	DayOfWeek   int       `db:"day_of_week" json:"day_of_week"`
	Period      int       `db:"period" json:"period"`
	BlockID     string    `db:"block_id" json:"block_id"`
	Locked      bool      `db:"locked" json:"locked"`
	Forced      bool      `db:"forced" json:"forced"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
