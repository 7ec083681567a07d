package models

import (
	"database/sql"
	"time"
)

// Teacher represents an instructor record as stored in the catalog.
type Teacher struct {
	ID                string         `db:"id" json:"id"`
	FullName          string         `db:"full_name" json:"full_name"`
	Department        sql.NullString `db:"department" json:"-"`
	MaxPeriodsPerWeek int            `db:"max_periods_per_week" json:"max_periods_per_week"`
	Active            bool           `db:"active" json:"active"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

// TeacherSubject links a teacher to a subject they are qualified to teach.
type TeacherSubject struct {
	TeacherID string `db:"teacher_id" json:"teacher_id"`
	SubjectID string `db:"subject_id" json:"subject_id"`
}

// TeacherUnavailability blocks a teacher from one period of the week.
type TeacherUnavailability struct {
	TeacherID string         `db:"teacher_id" json:"teacher_id"`
	DayOfWeek int            `db:"day_of_week" json:"day_of_week"`
	Period    int            `db:"period" json:"period"`
	Reason    sql.NullString `db:"reason" json:"-"`
}
