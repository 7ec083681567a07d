package scheduler

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCatalogIndexesEntities(t *testing.T) {
	catalog := mustCatalog(t, schoolInput())

	require.Len(t, catalog.Slots(), 30)
	assert.True(t, catalog.IsReserved(PeriodSlot{Day: Wednesday, Period: 4}))
	assert.False(t, catalog.Allocatable(PeriodSlot{Day: Wednesday, Period: 4}))
	assert.True(t, catalog.InGrid(PeriodSlot{Day: Wednesday, Period: 4}))
	assert.False(t, catalog.InGrid(PeriodSlot{Day: Saturday, Period: 1}))
	assert.Equal(t, PeriodSlot{Day: Monday, Period: 1}, catalog.Slots()[0])
	assert.Equal(t, PeriodSlot{Day: Friday, Period: 7}, catalog.Slots()[29])

	assert.Equal(t, []string{"X1", "X2", "X3"}, catalog.SectionIDs())
	var roomIDs []string
	for _, r := range catalog.Rooms() {
		roomIDs = append(roomIDs, r.ID)
	}
	assert.Equal(t, []string{"LAB-1", "R101", "R102", "STUDIO"}, roomIDs)

	var physics []string
	for _, teacher := range catalog.QualifiedTeachers("PHY") {
		physics = append(physics, teacher.ID)
	}
	assert.Equal(t, []string{"T02", "T04"}, physics)
	assert.True(t, catalog.TeacherUnavailable("T04", PeriodSlot{Day: Monday, Period: 2}))

	section, ok := catalog.Section("X1")
	require.True(t, ok)
	assert.Equal(t, "Grade 10-1", section.DisplayName())
	assert.Equal(t, 15, section.TotalDemand())
	assert.Equal(t, []string{"ART", "ENG", "MATH", "PHY"}, section.SubjectIDs())
}

func TestLoadCatalogRejectsUnsatisfiableInput(t *testing.T) {
	in := twoSubjectInput()
	in.Sections = append(in.Sections,
		Section{ID: "SB", ClassName: "Grade 2", Label: "B", Strength: 30, Demands: map[string]int{"BIO": 2}},
		Section{ID: "SC", ClassName: "Grade 2", Label: "C", Strength: 30, Demands: map[string]int{"ENG": 20, "MATH": 11}},
	)
	in.Subjects = append(in.Subjects, Subject{ID: "BIO", Name: "Biology", RequiresConsecutivePeriods: 1})

	_, err := LoadCatalog(in)
	require.Error(t, err)

	var catalogErr *CatalogError
	require.ErrorAs(t, err, &catalogErr)
	require.Len(t, catalogErr.Problems, 2)
	assert.Contains(t, catalogErr.Problems[0], "section SB demands BIO but no teacher teaches it")
	assert.Contains(t, catalogErr.Problems[1], "section SC demands 31 periods but the week has only 30 allocatable slots")
}

func TestLoadCatalogRejectsStructuralProblems(t *testing.T) {
	in := schoolInput()
	in.Rooms = append(in.Rooms, Room{ID: "R101", Type: RoomClassroom, Capacity: 10}, Room{ID: "GYM", Type: "field", Capacity: 0})
	in.Sections[0].Demands["PHY"] = 3
	in.Sections[1].Demands["HIST"] = 2

	_, err := LoadCatalog(in)
	var catalogErr *CatalogError
	require.ErrorAs(t, err, &catalogErr)

	assert.ElementsMatch(t, []string{
		"duplicate room id R101",
		"room GYM capacity must be positive",
		`room GYM has unknown type "field"`,
		"section X1 demands 3 periods of PHY which is not a multiple of its 2-period block",
		"section X2 demands unknown subject HIST",
	}, catalogErr.Problems)
	assert.IsIncreasing(t, catalogErr.Problems)
}

func TestLoadCatalogRejectsUnavailabilityOutsideTemplate(t *testing.T) {
	in := schoolInput()
	in.Teachers[0].Unavailable = []PeriodSlot{{Day: Saturday, Period: 1}, {Day: Tuesday, Period: 9}, {Day: Tuesday, Period: 2}}

	_, err := LoadCatalog(in)
	var catalogErr *CatalogError
	require.ErrorAs(t, err, &catalogErr)
	assert.Equal(t, []string{
		"teacher T01 unavailable slot SAT-1 is outside the template",
		"teacher T01 unavailable slot TUE-9 is outside the template",
	}, catalogErr.Problems)

	in.Teachers[0].Unavailable = []PeriodSlot{{Day: Tuesday, Period: 2}}
	catalog := mustCatalog(t, in)
	assert.True(t, catalog.TeacherUnavailable("T01", PeriodSlot{Day: Tuesday, Period: 2}))
}

func TestLoadCatalogRejectsInvalidTemplate(t *testing.T) {
	in := twoSubjectInput()
	in.Template = PeriodTemplate{Days: []Day{Monday, 9}, PeriodsPerDay: 0}

	_, err := LoadCatalog(in)
	var catalogErr *CatalogError
	require.ErrorAs(t, err, &catalogErr)
	assert.Contains(t, catalogErr.Problems, "template periodsPerDay must be at least 1")
	assert.Contains(t, catalogErr.Problems, "template day 9 is outside MON..SAT")
}

func TestParseSlot(t *testing.T) {
	slot, err := ParseSlot("wed-3")
	require.NoError(t, err)
	assert.Equal(t, PeriodSlot{Day: Wednesday, Period: 3}, slot)
	assert.Equal(t, "WED-3", slot.String())

	slot, err = ParseSlot("Saturday-1")
	require.NoError(t, err)
	assert.Equal(t, Saturday, slot.Day)

	for _, raw := range []string{"", "MON", "SUN-1", "MON-0", "MON-x"} {
		_, err := ParseSlot(raw)
		assert.Errorf(t, err, "expected %q to be rejected", raw)
	}
}

func TestDayJSONUsesCodes(t *testing.T) {
	raw, err := json.Marshal(PeriodSlot{Day: Friday, Period: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"day":"FRI","period":2}`, string(raw))

	var slot PeriodSlot
	require.NoError(t, json.Unmarshal([]byte(`{"day":"tuesday","period":5}`), &slot))
	assert.Equal(t, PeriodSlot{Day: Tuesday, Period: 5}, slot)

	require.Error(t, json.Unmarshal([]byte(`{"day":"SUN","period":1}`), &slot))
}
