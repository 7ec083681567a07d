package models

// SchoolPeriodKind distinguishes teaching periods from breaks.
type SchoolPeriodKind string

const (
	SchoolPeriodTeaching SchoolPeriodKind = "TEACHING"
	SchoolPeriodReserved SchoolPeriodKind = "RESERVED"
)

// SchoolPeriod is one cell of the school-wide weekly grid.
type SchoolPeriod struct {
	DayOfWeek int              `db:"day_of_week" json:"day_of_week"`
	Period    int              `db:"period" json:"period"`
	Kind      SchoolPeriodKind `db:"kind" json:"kind"`
	Label     string           `db:"label" json:"label"`
}
