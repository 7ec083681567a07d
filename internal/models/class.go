package models

import "time"

// ClassSection represents a cohort of students that follows one timetable.
type ClassSection struct {
	ID        string    `db:"id" json:"id"`
	ClassName string    `db:"class_name" json:"class_name"`
	Label     string    `db:"label" json:"label"`
	Strength  int       `db:"strength" json:"strength"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SectionSubjectLoad is the weekly demand of a section for one subject.
type SectionSubjectLoad struct {
	SectionID      string `db:"section_id" json:"section_id"`
	SubjectID      string `db:"subject_id" json:"subject_id"`
	PeriodsPerWeek int    `db:"periods_per_week" json:"periods_per_week"`
}
