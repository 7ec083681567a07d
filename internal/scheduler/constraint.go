package scheduler

import (
	"fmt"
	"sort"
	"strings"
)

// Category separates rules that forbid a placement from rules that only penalise it.
type Category string

const (
	CategoryHard Category = "hard"
	CategorySoft Category = "soft"
)

// Constraint ids.
const (
	NoDoubleBooking      = "no_double_booking"
	SlotAvailable        = "slot_available"
	TeacherQualified     = "teacher_qualified"
	TeacherAvailability  = "teacher_availability"
	TeacherLoadCeiling   = "teacher_load"
	RoomCompatibility    = "room_compatibility"
	ConsecutivePeriods   = "consecutive_periods"
	NoBackToBack         = "no_back_to_back"
	CoreSubjectsMorning  = "core_subjects_morning"
	BalancedDistribution = "balanced_distribution"
	TeacherIdleGaps      = "teacher_idle_gaps"
	RoomChanges          = "room_changes"
)

// VerdictKind is the outcome of evaluating one candidate against one constraint.
type VerdictKind string

const (
	Satisfied     VerdictKind = "satisfied"
	HardViolation VerdictKind = "hard"
	SoftPenalty   VerdictKind = "soft"
)

// Verdict is the result of Constraint.Evaluate.
type Verdict struct {
	Kind       VerdictKind
	Constraint string
	Penalty    float64
	Reason     string
	Blocking   Blocker
	Slot       *PeriodSlot
}

// OK reports whether the verdict allows the placement.
func (v Verdict) OK() bool { return v.Kind != HardViolation }

func satisfied() Verdict { return Verdict{Kind: Satisfied} }

func hardFailure(id string, slot *PeriodSlot, blocking Blocker, format string, args ...any) Verdict {
	return Verdict{
		Kind:       HardViolation,
		Constraint: id,
		Reason:     fmt.Sprintf(format, args...),
		Blocking:   blocking,
		Slot:       slot,
	}
}

func softPenalty(id string, penalty float64, format string, args ...any) Verdict {
	if penalty <= 0 {
		return satisfied()
	}
	return Verdict{Kind: SoftPenalty, Constraint: id, Penalty: penalty, Reason: fmt.Sprintf(format, args...)}
}

// Candidate is a proposed placement of one lesson block.
type Candidate struct {
	SectionID string
	SubjectID string
	TeacherID string
	RoomID    string
	Slots     []PeriodSlot
}

// State is the read-only view constraints evaluate against.
type State struct {
	Catalog  *Catalog
	Schedule *Schedule
	Index    *Index
}

func (s *State) sectionName(id string) string {
	if section, ok := s.Catalog.Section(id); ok {
		return section.DisplayName()
	}
	return id
}

func (s *State) teacherName(id string) string {
	if teacher, ok := s.Catalog.Teacher(id); ok && teacher.Name != "" && teacher.Name != id {
		return fmt.Sprintf("%s (%s)", teacher.Name, id)
	}
	return id
}

func (s *State) roomName(id string) string {
	if room, ok := s.Catalog.Room(id); ok && room.Name != "" && room.Name != id {
		return fmt.Sprintf("%s (%s)", room.Name, id)
	}
	return id
}

func (s *State) subjectName(id string) string {
	if subject, ok := s.Catalog.Subject(id); ok && subject.Name != "" {
		return subject.Name
	}
	return id
}

// Constraint is a composable scheduling rule.
type Constraint interface {
	ID() string
	Category() Category
	// Evaluate judges a candidate block against the current state.
	Evaluate(c Candidate, s *State) Verdict
	// Audit reports every breach of the rule in a complete schedule.
	Audit(s *State) []Violation
}

// ConstraintSetting toggles and weights one constraint.
type ConstraintSetting struct {
	Enabled bool    `json:"enabled"`
	Weight  float64 `json:"weight"`
}

// Config selects the constraints of a session. Ids missing from Constraints
// keep their defaults.
type Config struct {
	Constraints  map[string]ConstraintSetting `json:"constraints"`
	CoreSubjects []string                     `json:"coreSubjects"`
}

var hardIDs = []string{
	SlotAvailable,
	ConsecutivePeriods,
	NoDoubleBooking,
	TeacherQualified,
	RoomCompatibility,
	TeacherAvailability,
	TeacherLoadCeiling,
}

var softDefaults = map[string]ConstraintSetting{
	NoBackToBack:         {Enabled: true, Weight: 3},
	CoreSubjectsMorning:  {Enabled: true, Weight: 2},
	BalancedDistribution: {Enabled: true, Weight: 2},
	TeacherIdleGaps:      {Enabled: true, Weight: 1},
	RoomChanges:          {Enabled: true, Weight: 1},
}

// DefaultConfig enables every constraint with its default weight.
func DefaultConfig() Config {
	cfg := Config{Constraints: make(map[string]ConstraintSetting, len(hardIDs)+len(softDefaults))}
	for _, id := range hardIDs {
		cfg.Constraints[id] = ConstraintSetting{Enabled: true}
	}
	for id, setting := range softDefaults {
		cfg.Constraints[id] = setting
	}
	return cfg
}

// IsHard reports whether id names a hard constraint.
func IsHard(id string) bool {
	for _, hard := range hardIDs {
		if hard == id {
			return true
		}
	}
	return false
}

// IsKnownConstraint reports whether id names any built-in constraint.
func IsKnownConstraint(id string) bool {
	_, soft := softDefaults[id]
	return soft || IsHard(id)
}

// ConstraintSet is the ordered list of hard rules plus the enabled soft rules.
type ConstraintSet struct {
	hard         []Constraint
	soft         []Constraint
	settings     map[string]ConstraintSetting
	coreSubjects []string
}

// NewConstraintSet builds the rule list for a session. Hard constraints
// cannot be disabled.
func NewConstraintSet(cfg Config) (*ConstraintSet, error) {
	settings := DefaultConfig().Constraints
	ids := make([]string, 0, len(cfg.Constraints))
	for id := range cfg.Constraints {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		setting := cfg.Constraints[id]
		switch {
		case !IsKnownConstraint(id):
			return nil, invalidRequest("unknown constraint %q", id)
		case IsHard(id) && !setting.Enabled:
			return nil, invalidRequest("hard constraint %q cannot be disabled", id)
		case setting.Weight < 0:
			return nil, invalidRequest("constraint %q weight must not be negative", id)
		case IsHard(id):
			continue
		}
		settings[id] = setting
	}

	core := make([]string, 0, len(cfg.CoreSubjects))
	for _, subject := range cfg.CoreSubjects {
		if trimmed := strings.TrimSpace(subject); trimmed != "" {
			core = append(core, trimmed)
		}
	}
	sort.Strings(core)

	cs := &ConstraintSet{settings: settings, coreSubjects: core}
	cs.hard = []Constraint{
		slotAvailable{},
		consecutivePeriods{},
		noDoubleBooking{},
		teacherQualified{},
		roomCompatibility{},
		teacherAvailability{},
		teacherLoad{},
	}
	for _, c := range []Constraint{
		noBackToBack{weight: settings[NoBackToBack].Weight},
		coreSubjectsMorning{weight: settings[CoreSubjectsMorning].Weight, core: core},
		balancedDistribution{weight: settings[BalancedDistribution].Weight},
		teacherIdleGaps{weight: settings[TeacherIdleGaps].Weight},
		roomChanges{weight: settings[RoomChanges].Weight},
	} {
		if settings[c.ID()].Enabled {
			cs.soft = append(cs.soft, c)
		}
	}
	return cs, nil
}

// Hard returns the hard constraints in evaluation order.
func (cs *ConstraintSet) Hard() []Constraint { return cs.hard }

// Soft returns the enabled soft constraints.
func (cs *ConstraintSet) Soft() []Constraint { return cs.soft }

// CoreSubjects returns the configured core subject ids or codes.
func (cs *ConstraintSet) CoreSubjects() []string { return cs.coreSubjects }

// Settings returns a copy of the effective settings keyed by constraint id.
func (cs *ConstraintSet) Settings() map[string]ConstraintSetting {
	out := make(map[string]ConstraintSetting, len(cs.settings))
	for id, setting := range cs.settings {
		out[id] = setting
	}
	return out
}

// CheckHard returns the first hard failure for c, or a satisfied verdict.
func (cs *ConstraintSet) CheckHard(c Candidate, s *State) Verdict {
	for _, rule := range cs.hard {
		if v := rule.Evaluate(c, s); !v.OK() {
			return v
		}
	}
	return satisfied()
}

// Penalty sums the weighted soft penalties of c.
func (cs *ConstraintSet) Penalty(c Candidate, s *State) float64 {
	total := 0.0
	for _, rule := range cs.soft {
		total += rule.Evaluate(c, s).Penalty
	}
	return total
}
