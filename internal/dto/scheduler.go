package dto

import (
	"time"

	"github.com/noah-isme/sma-scheduler-api/internal/models"
	"github.com/noah-isme/sma-scheduler-api/internal/scheduler"
)

// ConstraintSettingRequest toggles or reweights one constraint for a session.
type ConstraintSettingRequest struct {
	Enabled *bool    `json:"enabled"`
	Weight  *float64 `json:"weight" validate:"omitempty,gte=0"`
}

// CreateSessionRequest opens a scheduling session over an inline or stored catalog.
type CreateSessionRequest struct {
	SectionIDs   []string                            `json:"sectionIds" validate:"omitempty,dive,required"`
	Constraints  map[string]ConstraintSettingRequest `json:"constraints" validate:"omitempty,dive"`
	CoreSubjects []string                            `json:"coreSubjects" validate:"omitempty,dive,required"`
	Catalog      *scheduler.CatalogInput             `json:"catalog"`
}

// SessionResponse describes an open session.
type SessionResponse struct {
	SessionID   string                                 `json:"sessionId"`
	Scope       []string                               `json:"scope"`
	Revision    uint64                                 `json:"revision"`
	Running     bool                                   `json:"running"`
	Constraints map[string]scheduler.ConstraintSetting `json:"constraints"`
	Template    scheduler.PeriodTemplate               `json:"template"`
	CreatedAt   time.Time                              `json:"createdAt"`
}

// GenerateRequest scopes a generation run; empty lists fall back to the session scope.
type GenerateRequest struct {
	SectionIDs []string `json:"sectionIds" validate:"omitempty,dive,required"`
	SubjectIDs []string `json:"subjectIds" validate:"omitempty,dive,required"`
}

// GenerateResponse returns the best-effort schedule and its violations.
type GenerateResponse struct {
	Schedule   *scheduler.Schedule     `json:"schedule"`
	Violations []scheduler.Violation   `json:"violations"`
	Stats      scheduler.GenerateStats `json:"stats"`
	Cancelled  bool                    `json:"cancelled"`
	Revision   uint64                  `json:"revision"`
	DurationMs int64                   `json:"durationMs"`
}

// PlaceRequest places one lesson block of a subject for a section.
type PlaceRequest struct {
	SectionID     string                `json:"sectionId" validate:"required"`
	SubjectID     string                `json:"subjectId" validate:"required"`
	PreferredSlot *scheduler.PeriodSlot `json:"preferredSlot"`
	TeacherID     string                `json:"teacherId"`
	RoomID        string                `json:"roomId"`
	Strict        bool                  `json:"strict"`
	Lock          bool                  `json:"lock"`
	Force         bool                  `json:"force"`
}

// ConflictDetail is the wire form of a placement conflict.
type ConflictDetail struct {
	Constraint string                `json:"constraint"`
	Reason     string                `json:"reason"`
	Blocking   scheduler.Blocker     `json:"blocking"`
	Slot       *scheduler.PeriodSlot `json:"slot,omitempty"`
}

// NewConflictDetail converts a scheduler conflict; nil stays nil.
func NewConflictDetail(err *scheduler.ConflictError) *ConflictDetail {
	if err == nil {
		return nil
	}
	return &ConflictDetail{Constraint: err.Constraint, Reason: err.Reason, Blocking: err.Blocking, Slot: err.Slot}
}

// PlaceResponse lists the assignments created by a placement.
type PlaceResponse struct {
	Assignments       []scheduler.Assignment `json:"assignments"`
	Penalty           float64                `json:"penalty"`
	PreferredConflict *ConflictDetail        `json:"preferredConflict,omitempty"`
	Revision          uint64                 `json:"revision"`
}

// ImportRequest force-places previously exported assignments.
type ImportRequest struct {
	Assignments []ImportAssignment `json:"assignments" validate:"required,min=1,dive"`
}

// ImportAssignment is one externally supplied assignment.
type ImportAssignment struct {
	SectionID string               `json:"sectionId" validate:"required"`
	SubjectID string               `json:"subjectId" validate:"required"`
	TeacherID string               `json:"teacherId" validate:"required"`
	RoomID    string               `json:"roomId" validate:"required"`
	Slot      scheduler.PeriodSlot `json:"slot"`
	BlockID   string               `json:"blockId"`
	Locked    bool                 `json:"locked"`
}

// ImportResponse lists the imported assignments.
type ImportResponse struct {
	Assignments []scheduler.Assignment `json:"assignments"`
	Revision    uint64                 `json:"revision"`
}

// ScheduleResponse is a snapshot of a session schedule.
type ScheduleResponse struct {
	SessionID string              `json:"sessionId"`
	Revision  uint64              `json:"revision"`
	Running   bool                `json:"running"`
	Schedule  *scheduler.Schedule `json:"schedule"`
}

// ConflictsResponse reports every violation of the current schedule.
type ConflictsResponse struct {
	Revision   uint64                     `json:"revision"`
	Summary    map[scheduler.Severity]int `json:"summary"`
	Violations []scheduler.Violation      `json:"violations"`
}

// TeacherLoadResponse is the workload view of a session.
type TeacherLoadResponse struct {
	Revision uint64                  `json:"revision"`
	Teachers []scheduler.TeacherLoad `json:"teachers"`
}

// RoomUtilizationResponse is the room usage view of a session.
type RoomUtilizationResponse struct {
	Revision uint64                `json:"revision"`
	Rooms    []scheduler.RoomUsage `json:"rooms"`
}

// TimetableExportQuery selects the section printed by the PDF export.
type TimetableExportQuery struct {
	SectionID string `form:"sectionId" validate:"required"`
}

// AcceptRequest asks for the current schedule to be stored as a new timetable version.
type AcceptRequest struct {
	Publish bool `json:"publish"`
	// AllowViolations accepts a schedule that still has high severity violations.
	AllowViolations bool `json:"allowViolations"`
}

// AcceptResponse acknowledges a queued persistence job.
type AcceptResponse struct {
	JobID    string `json:"jobId"`
	ScopeKey string `json:"scopeKey"`
	Revision uint64 `json:"revision"`
	Status   string `json:"status"`
}

// TimetableQuery lists stored timetable versions for a set of sections.
type TimetableQuery struct {
	SectionIDs []string `form:"sectionIds" validate:"required,min=1,dive,required"`
}

// TimetableResponse is a stored timetable with its slots.
type TimetableResponse struct {
	Timetable models.Timetable       `json:"timetable"`
	Slots     []models.TimetableSlot `json:"slots"`
}
