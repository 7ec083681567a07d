package scheduler

import "sort"

// Severity grades a violation for display.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

func (s Severity) rank() int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	default:
		return 2
	}
}

// Entities names everything a violation touches so the UI can highlight it.
type Entities struct {
	SectionIDs []string     `json:"sectionIds,omitempty"`
	SubjectID  string       `json:"subjectId,omitempty"`
	TeacherIDs []string     `json:"teacherIds,omitempty"`
	RoomIDs    []string     `json:"roomIds,omitempty"`
	Slots      []PeriodSlot `json:"slots,omitempty"`
}

// Violation describes one way a schedule falls short. It is output, never state.
type Violation struct {
	Severity Severity `json:"severity"`
	Kind     string   `json:"kind"`
	Entities Entities `json:"entities"`
	Message  string   `json:"message"`
}

// SortViolations orders by severity, kind, then message.
func SortViolations(list []Violation) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Severity.rank() != b.Severity.rank() {
			return a.Severity.rank() < b.Severity.rank()
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Message < b.Message
	})
}

// Kinds emitted outside the constraint set.
const (
	KindUnplacedDemand    = "unplaced_demand"
	KindUnfulfilledDemand = "unfulfilled_demand"
	KindExcessDemand      = "excess_demand"
	KindUnknownReference  = "unknown_reference"
)
