package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func weekTemplate(days, periods int, reserved ...PeriodSlot) PeriodTemplate {
	tpl := PeriodTemplate{PeriodsPerDay: periods, Reserved: reserved}
	for d := 1; d <= days; d++ {
		tpl.Days = append(tpl.Days, Day(d))
	}
	return tpl
}

func mustSlot(t *testing.T, raw string) PeriodSlot {
	t.Helper()
	slot, err := ParseSlot(raw)
	require.NoError(t, err)
	return slot
}

func mustCatalog(t *testing.T, in CatalogInput) *Catalog {
	t.Helper()
	catalog, err := LoadCatalog(in)
	require.NoError(t, err)
	return catalog
}

func mustConstraints(t *testing.T, cfg Config) *ConstraintSet {
	t.Helper()
	cs, err := NewConstraintSet(cfg)
	require.NoError(t, err)
	return cs
}

func newTestEngine(t *testing.T, in CatalogInput) *Engine {
	t.Helper()
	return NewEngine(mustCatalog(t, in), mustConstraints(t, DefaultConfig()))
}

// scienceLabInput is one section needing four lab periods from a teacher
// capped at three.
func scienceLabInput() CatalogInput {
	return CatalogInput{
		Teachers: []Teacher{{ID: "T-SCI", Name: "Rina", Subjects: []string{"SCI"}, MaxPeriodsPerWeek: 3}},
		Rooms:    []Room{{ID: "LAB-1", Name: "LAB-1", Type: RoomLab, Capacity: 40}},
		Subjects: []Subject{{ID: "SCI", Name: "Science", Code: "SCI", RequiresRoomType: RoomLab, RequiresConsecutivePeriods: 1}},
		Sections: []Section{{ID: "S1A", ClassName: "Grade 1", Label: "A", Strength: 30, Demands: map[string]int{"SCI": 4}}},
		Template: weekTemplate(5, 6),
	}
}

// twoSubjectInput is one section taking English and Math in a single classroom.
func twoSubjectInput() CatalogInput {
	return CatalogInput{
		Teachers: []Teacher{
			{ID: "T-ENG", Name: "Budi", Subjects: []string{"ENG"}, MaxPeriodsPerWeek: 20},
			{ID: "T-MATH", Name: "Sari", Subjects: []string{"MATH"}, MaxPeriodsPerWeek: 20},
		},
		Rooms: []Room{{ID: "R1", Name: "R1", Type: RoomClassroom, Capacity: 35}},
		Subjects: []Subject{
			{ID: "ENG", Name: "English", Code: "ENG", RequiresConsecutivePeriods: 1},
			{ID: "MATH", Name: "Math", Code: "MATH", RequiresConsecutivePeriods: 1},
		},
		Sections: []Section{{ID: "SA", ClassName: "Grade 2", Label: "A", Strength: 30, Demands: map[string]int{"ENG": 4, "MATH": 4}}},
		Template: weekTemplate(5, 6),
	}
}

// schoolInput is a small multi-section school with labs, doubles and lunch.
func schoolInput() CatalogInput {
	lunch := []PeriodSlot{}
	for d := Monday; d <= Friday; d++ {
		lunch = append(lunch, PeriodSlot{Day: d, Period: 4})
	}
	return CatalogInput{
		Teachers: []Teacher{
			{ID: "T01", Name: "Andi", Subjects: []string{"MATH"}, MaxPeriodsPerWeek: 12},
			{ID: "T02", Name: "Bela", Subjects: []string{"MATH", "PHY"}, MaxPeriodsPerWeek: 14},
			{ID: "T03", Name: "Citra", Subjects: []string{"ENG"}, MaxPeriodsPerWeek: 10},
			{ID: "T04", Name: "Dedi", Subjects: []string{"PHY"}, MaxPeriodsPerWeek: 8,
				Unavailable: []PeriodSlot{{Day: Monday, Period: 1}, {Day: Monday, Period: 2}}},
			{ID: "T05", Name: "Eka", Subjects: []string{"ART", "ENG"}, MaxPeriodsPerWeek: 10},
		},
		Rooms: []Room{
			{ID: "R101", Name: "Room 101", Type: RoomClassroom, Capacity: 36},
			{ID: "R102", Name: "Room 102", Type: RoomClassroom, Capacity: 32},
			{ID: "LAB-1", Name: "Physics Lab", Type: RoomLab, Capacity: 36, Facilities: []string{"gas", "sink"}},
			{ID: "STUDIO", Name: "Art Studio", Type: RoomSpecial, Capacity: 36},
		},
		Subjects: []Subject{
			{ID: "MATH", Name: "Mathematics", Code: "MTK", RequiresConsecutivePeriods: 1},
			{ID: "ENG", Name: "English", Code: "ENG", RequiresConsecutivePeriods: 1},
			{ID: "PHY", Name: "Physics", Code: "FIS", RequiresRoomType: RoomLab, RequiresConsecutivePeriods: 2, RequiredFacilities: []string{"sink"}},
			{ID: "ART", Name: "Art", Code: "SBD", RequiresRoomType: RoomSpecial, RequiresConsecutivePeriods: 1},
		},
		Sections: []Section{
			{ID: "X1", ClassName: "Grade 10", Label: "1", Strength: 34, Demands: map[string]int{"MATH": 5, "ENG": 4, "PHY": 4, "ART": 2}},
			{ID: "X2", ClassName: "Grade 10", Label: "2", Strength: 30, Demands: map[string]int{"MATH": 5, "ENG": 4, "PHY": 2, "ART": 2}},
			{ID: "X3", ClassName: "Grade 10", Label: "3", Strength: 28, Demands: map[string]int{"MATH": 4, "ENG": 3, "PHY": 2}},
		},
		Template: weekTemplate(5, 7, lunch...),
	}
}

func violationsOfKind(list []Violation, kind string) []Violation {
	var out []Violation
	for _, v := range list {
		if v.Kind == kind {
			out = append(out, v)
		}
	}
	return out
}

func violationsOfSeverity(list []Violation, severity Severity) []Violation {
	var out []Violation
	for _, v := range list {
		if v.Severity == severity {
			out = append(out, v)
		}
	}
	return out
}

// requireNoDoubleBooking asserts that no teacher, room or section holds two
// assignments in the same slot.
func requireNoDoubleBooking(t *testing.T, s *Schedule) {
	t.Helper()
	type key struct {
		id   string
		slot PeriodSlot
	}
	teachers := map[key]string{}
	rooms := map[key]string{}
	sections := map[key]string{}
	for _, a := range s.Assignments() {
		for _, check := range []struct {
			seen map[key]string
			id   string
		}{{teachers, a.TeacherID}, {rooms, a.RoomID}, {sections, a.SectionID}} {
			k := key{check.id, a.Slot}
			prev, clash := check.seen[k]
			require.Falsef(t, clash, "%s booked by %s and %s at %s", check.id, prev, a.ID, a.Slot)
			check.seen[k] = a.ID
		}
	}
}
