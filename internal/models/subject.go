package models

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// Subject represents an academic subject and its room requirements.
type Subject struct {
	ID                 string         `db:"id" json:"id"`
	Code               string         `db:"code" json:"code"`
	Name               string         `db:"name" json:"name"`
	RequiresRoomType   sql.NullString `db:"requires_room_type" json:"-"`
	ConsecutivePeriods int            `db:"consecutive_periods" json:"consecutive_periods"`
	RequiredFacilities pq.StringArray `db:"required_facilities" json:"required_facilities"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
}
