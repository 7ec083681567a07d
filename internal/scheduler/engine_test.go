package scheduler

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateStopsAtTeacherLoadCeiling(t *testing.T) {
	engine := newTestEngine(t, scienceLabInput())

	result, err := engine.Generate(context.Background(), GenerateRequest{})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Schedule.Len())
	assert.Equal(t, GenerateStats{Items: 4, Placed: 3, Unplaced: 1}, result.Stats)
	assert.False(t, result.Cancelled)

	high := violationsOfSeverity(result.Violations, SeverityHigh)
	require.Len(t, high, 1)
	assert.Equal(t, KindUnplacedDemand, high[0].Kind)
	assert.Contains(t, high[0].Message, "Unable to place Science for Grade 1-A (unit 4 of 4)")
	assert.Contains(t, high[0].Message, "weekly maximum of 3")
	assert.Equal(t, []string{"S1A"}, high[0].Entities.SectionIDs)
	assert.Equal(t, []string{"T-SCI"}, high[0].Entities.TeacherIDs)

	for _, load := range engine.TeacherLoads() {
		assert.LessOrEqual(t, load.AssignedPeriods, load.MaxPeriodsPerWeek)
	}
}

func TestGenerateBlamesTeacherOverUnfitRooms(t *testing.T) {
	in := scienceLabInput()
	in.Rooms = append(in.Rooms,
		Room{ID: "C1", Name: "C1", Type: RoomClassroom, Capacity: 40},
		Room{ID: "C2", Name: "C2", Type: RoomClassroom, Capacity: 40},
	)
	engine := newTestEngine(t, in)

	result, err := engine.Generate(context.Background(), GenerateRequest{})
	require.NoError(t, err)
	assert.Equal(t, GenerateStats{Items: 4, Placed: 3, Unplaced: 1}, result.Stats)

	unplaced := violationsOfKind(result.Violations, KindUnplacedDemand)
	require.Len(t, unplaced, 1)
	assert.Equal(t, []string{"T-SCI"}, unplaced[0].Entities.TeacherIDs)
	assert.Empty(t, unplaced[0].Entities.RoomIDs)
	assert.Contains(t, unplaced[0].Message, "weekly maximum of 3")
	assert.NotContains(t, unplaced[0].Message, "classroom")
	for _, a := range result.Schedule.Assignments() {
		assert.Equal(t, "LAB-1", a.RoomID)
	}
}

func TestPlaceOneBlamesRoomOnlyWhenNoneFits(t *testing.T) {
	in := scienceLabInput()
	in.Rooms = append(in.Rooms, Room{ID: "C1", Name: "C1", Type: RoomClassroom, Capacity: 40})
	engine := newTestEngine(t, in)

	_, err := engine.PlaceOne(PlaceRequest{SectionID: "S1A", SubjectID: "SCI", RoomID: "C1"})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, RoomCompatibility, conflict.Constraint)
	assert.Equal(t, Blocker{Kind: "room", ID: "C1"}, conflict.Blocking)
	assert.Contains(t, conflict.Reason, "Room C1 is a classroom but Science requires a lab")

	result, err := engine.PlaceOne(PlaceRequest{SectionID: "S1A", SubjectID: "SCI"})
	require.NoError(t, err)
	assert.Equal(t, "LAB-1", result.Assignments[0].RoomID)
}

func TestGenerateSpreadsUnitsAcrossDays(t *testing.T) {
	engine := newTestEngine(t, scienceLabInput())

	result, err := engine.Generate(context.Background(), GenerateRequest{})
	require.NoError(t, err)

	var slots []string
	for _, a := range result.Schedule.Assignments() {
		slots = append(slots, a.Slot.String())
	}
	assert.Equal(t, []string{"MON-1", "TUE-1", "WED-1"}, slots)
}

func TestPlaceOnePreferredSlotConflict(t *testing.T) {
	engine := newTestEngine(t, twoSubjectInput())
	mon1 := mustSlot(t, "MON-1")

	_, err := engine.PlaceOne(PlaceRequest{SectionID: "SA", SubjectID: "ENG", PreferredSlot: &mon1})
	require.NoError(t, err)

	_, err = engine.PlaceOne(PlaceRequest{SectionID: "SA", SubjectID: "MATH", PreferredSlot: &mon1, Strict: true})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, NoDoubleBooking, conflict.Constraint)
	assert.Equal(t, Blocker{Kind: "section", ID: "SA", AssignmentID: "SA@MON-1"}, conflict.Blocking)
	require.NotNil(t, conflict.Slot)
	assert.Equal(t, mon1, *conflict.Slot)
	assert.Equal(t, "Grade 2-A already has English at MON-1", conflict.Reason)

	result, err := engine.PlaceOne(PlaceRequest{SectionID: "SA", SubjectID: "MATH", PreferredSlot: &mon1})
	require.NoError(t, err)
	require.NotNil(t, result.PreferredConflict)
	assert.Equal(t, "SA", result.PreferredConflict.Blocking.ID)
	require.Len(t, result.Assignments, 1)
	assert.Equal(t, mustSlot(t, "MON-2"), result.Assignments[0].Slot)
	assert.Equal(t, "T-MATH", result.Assignments[0].TeacherID)
	assert.Equal(t, "SA@MON-2", result.Assignments[0].ID)
}

func TestPlaceOneUsesPreferredSlotWhenFeasible(t *testing.T) {
	engine := newTestEngine(t, twoSubjectInput())
	thu5 := mustSlot(t, "THU-5")

	result, err := engine.PlaceOne(PlaceRequest{SectionID: "SA", SubjectID: "MATH", PreferredSlot: &thu5, Lock: true})
	require.NoError(t, err)
	require.Len(t, result.Assignments, 1)
	assert.Nil(t, result.PreferredConflict)
	assert.Equal(t, thu5, result.Assignments[0].Slot)
	assert.True(t, result.Assignments[0].Locked)
	assert.False(t, result.Assignments[0].Forced)
}

func TestPlaceOneRejectsExhaustedDemand(t *testing.T) {
	engine := newTestEngine(t, twoSubjectInput())
	for i := 0; i < 4; i++ {
		_, err := engine.PlaceOne(PlaceRequest{SectionID: "SA", SubjectID: "ENG"})
		require.NoError(t, err)
	}

	_, err := engine.PlaceOne(PlaceRequest{SectionID: "SA", SubjectID: "ENG"})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "demand_exhausted", conflict.Constraint)
	assert.Equal(t, 4, engine.Schedule().Placed("SA", "ENG"))
}

func TestPlaceOnePinnedUnqualifiedTeacher(t *testing.T) {
	engine := newTestEngine(t, twoSubjectInput())

	_, err := engine.PlaceOne(PlaceRequest{SectionID: "SA", SubjectID: "MATH", TeacherID: "T-ENG"})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, TeacherQualified, conflict.Constraint)
	assert.Equal(t, Blocker{Kind: "teacher", ID: "T-ENG"}, conflict.Blocking)
	assert.Contains(t, conflict.Reason, "no slot in the week can take Math for Grade 2-A")
}

func TestPlaceOneValidatesRequest(t *testing.T) {
	engine := newTestEngine(t, twoSubjectInput())

	_, err := engine.PlaceOne(PlaceRequest{SectionID: "SA", SubjectID: "MATH", Strict: true})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = engine.PlaceOne(PlaceRequest{SectionID: "NOPE", SubjectID: "MATH"})
	assert.ErrorIs(t, err, ErrUnknownEntity)

	_, err = engine.PlaceOne(PlaceRequest{SectionID: "SA", SubjectID: "MATH", RoomID: "NOPE"})
	assert.ErrorIs(t, err, ErrUnknownEntity)

	_, err = engine.PlaceOne(PlaceRequest{SectionID: "SA", SubjectID: "MATH", Force: true})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestPlaceOnePlacesWholeBlock(t *testing.T) {
	engine := newTestEngine(t, schoolInput())

	result, err := engine.PlaceOne(PlaceRequest{SectionID: "X1", SubjectID: "PHY"})
	require.NoError(t, err)
	require.Len(t, result.Assignments, 2)

	first, second := result.Assignments[0], result.Assignments[1]
	assert.Equal(t, mustSlot(t, "MON-1"), first.Slot)
	assert.Equal(t, mustSlot(t, "MON-2"), second.Slot)
	assert.Equal(t, first.ID, first.BlockID)
	assert.Equal(t, first.BlockID, second.BlockID)
	assert.Equal(t, "T02", first.TeacherID)
	assert.Equal(t, first.TeacherID, second.TeacherID)
	assert.Equal(t, "LAB-1", first.RoomID)
	assert.Equal(t, first.RoomID, second.RoomID)
}

func TestPlaceOneBlockNeverSpansLunch(t *testing.T) {
	engine := newTestEngine(t, schoolInput())
	mon3 := mustSlot(t, "MON-3")

	_, err := engine.PlaceOne(PlaceRequest{SectionID: "X2", SubjectID: "PHY", PreferredSlot: &mon3, Strict: true})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, SlotAvailable, conflict.Constraint)
	assert.Equal(t, "MON-4 is a reserved period", conflict.Reason)
}

func TestRemoveIsIdempotentAndRemovesBlocks(t *testing.T) {
	engine := newTestEngine(t, schoolInput())
	result, err := engine.PlaceOne(PlaceRequest{SectionID: "X1", SubjectID: "PHY"})
	require.NoError(t, err)

	removed := engine.Remove(result.Assignments[1].ID)
	assert.Len(t, removed, 2)
	assert.Equal(t, 0, engine.Schedule().Len())
	assert.Equal(t, 0, engine.index.Len())

	assert.Empty(t, engine.Remove(result.Assignments[1].ID))
	assert.Empty(t, engine.Remove("never-placed"))
	assert.Equal(t, 0, engine.index.Len())
	for _, load := range engine.TeacherLoads() {
		assert.Zero(t, load.AssignedPeriods)
	}
}

func TestRemoveStaysInsideTheSection(t *testing.T) {
	in := twoSubjectInput()
	in.Sections = append(in.Sections, Section{ID: "SB", ClassName: "Grade 2", Label: "B", Strength: 30, Demands: map[string]int{"ENG": 4}})
	in.Rooms = append(in.Rooms, Room{ID: "R2", Name: "R2", Type: RoomClassroom, Capacity: 35})
	engine := newTestEngine(t, in)

	imported, err := engine.Import([]Assignment{
		{SectionID: "SA", SubjectID: "ENG", TeacherID: "T-ENG", RoomID: "R1", Slot: mustSlot(t, "MON-1"), BlockID: "X"},
		{SectionID: "SB", SubjectID: "ENG", TeacherID: "T-ENG", RoomID: "R2", Slot: mustSlot(t, "TUE-1"), BlockID: "X"},
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Nil(t, imported)
	assert.Equal(t, 0, engine.Schedule().Len())

	imported, err = engine.Import([]Assignment{
		{SectionID: "SA", SubjectID: "ENG", TeacherID: "T-ENG", RoomID: "R1", Slot: mustSlot(t, "MON-1"), BlockID: "X"},
		{SectionID: "SB", SubjectID: "ENG", TeacherID: "T-ENG", RoomID: "R2", Slot: mustSlot(t, "TUE-1"), BlockID: "SA@MON-1"},
	})
	require.NoError(t, err)
	require.Len(t, imported, 2)
	assert.Equal(t, "SA@MON-1", imported[0].BlockID)
	assert.Equal(t, "SB@TUE-1", imported[1].BlockID)

	removed := engine.Remove("SA@MON-1")
	require.Len(t, removed, 1)
	assert.Equal(t, "SA", removed[0].SectionID)
	remaining := engine.Schedule().Assignments()
	require.Len(t, remaining, 1)
	assert.Equal(t, "SB@TUE-1", remaining[0].ID)
	assert.Equal(t, 1, engine.index.Len())

	shared := Assignment{ID: "SA@WED-1", SectionID: "SA", SubjectID: "ENG", TeacherID: "T-ENG", RoomID: "R1", Slot: mustSlot(t, "WED-1"), BlockID: "SB@TUE-1"}
	engine.schedule.put(shared)
	engine.index.Reserve(shared)
	removed = engine.Remove("SA@WED-1")
	require.Len(t, removed, 1)
	assert.Equal(t, "SA@WED-1", removed[0].ID)
	_, kept := engine.Schedule().Get("SB@TUE-1")
	assert.True(t, kept)
}

func TestImportRebuildsBlocks(t *testing.T) {
	engine := newTestEngine(t, schoolInput())
	tue2, tue3 := mustSlot(t, "TUE-2"), mustSlot(t, "TUE-3")

	_, err := engine.Import([]Assignment{
		{SectionID: "X1", SubjectID: "PHY", TeacherID: "T02", RoomID: "LAB-1", Slot: tue2, BlockID: "persisted-7"},
		{SectionID: "X1", SubjectID: "PHY", TeacherID: "T02", RoomID: "LAB-1", Slot: mustSlot(t, "TUE-5"), BlockID: "persisted-7"},
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = engine.Import([]Assignment{
		{SectionID: "X1", SubjectID: "PHY", TeacherID: "T02", RoomID: "LAB-1", Slot: tue2, BlockID: "persisted-7"},
		{SectionID: "X1", SubjectID: "PHY", TeacherID: "T04", RoomID: "LAB-1", Slot: tue3, BlockID: "persisted-7"},
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, 0, engine.Schedule().Len())

	imported, err := engine.Import([]Assignment{
		{SectionID: "X1", SubjectID: "PHY", TeacherID: "T02", RoomID: "LAB-1", Slot: tue3, BlockID: "persisted-7"},
		{SectionID: "X1", SubjectID: "PHY", TeacherID: "T02", RoomID: "LAB-1", Slot: tue2, BlockID: "persisted-7"},
	})
	require.NoError(t, err)
	require.Len(t, imported, 2)
	for _, a := range imported {
		assert.Equal(t, "X1@TUE-2", a.BlockID)
	}
	assert.Empty(t, violationsOfKind(engine.Analyze(), ConsecutivePeriods))

	assert.Len(t, engine.Remove("X1@TUE-3"), 2)
	assert.Equal(t, 0, engine.Schedule().Len())
}

func TestGenerateHonoursHardConstraints(t *testing.T) {
	engine := newTestEngine(t, schoolInput())

	result, err := engine.Generate(context.Background(), GenerateRequest{})
	require.NoError(t, err)
	requireNoDoubleBooking(t, result.Schedule)

	for _, load := range engine.TeacherLoads() {
		assert.LessOrEqualf(t, load.AssignedPeriods, load.MaxPeriodsPerWeek, "teacher %s", load.TeacherID)
	}
	for _, v := range violationsOfSeverity(result.Violations, SeverityHigh) {
		assert.Equal(t, KindUnplacedDemand, v.Kind)
	}
	for _, v := range violationsOfSeverity(engine.Analyze(), SeverityHigh) {
		t.Errorf("generated schedule breaks a hard constraint: %s", v.Message)
	}
	for _, a := range result.Schedule.Assignments() {
		assert.False(t, a.Slot.Period == 4, "lunch period allocated to %s", a.ID)
		if a.TeacherID == "T04" {
			assert.False(t, a.Slot.Day == Monday && a.Slot.Period <= 2, "T04 placed while unavailable at %s", a.Slot)
		}
	}
	assert.Equal(t, result.Stats.Items, result.Stats.Placed+result.Stats.Unplaced)
}

func TestGenerateIsDeterministic(t *testing.T) {
	first, err := newTestEngine(t, schoolInput()).Generate(context.Background(), GenerateRequest{})
	require.NoError(t, err)
	second, err := newTestEngine(t, schoolInput()).Generate(context.Background(), GenerateRequest{})
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestGenerateReportsUnsatisfiableDemand(t *testing.T) {
	in := twoSubjectInput()
	in.Subjects = append(in.Subjects, Subject{ID: "CHEM", Name: "Chemistry", RequiresRoomType: RoomLab, RequiresConsecutivePeriods: 1})
	in.Teachers = append(in.Teachers, Teacher{ID: "T-CHEM", Name: "Wati", Subjects: []string{"CHEM"}, MaxPeriodsPerWeek: 10})
	in.Sections[0].Demands["CHEM"] = 2
	engine := newTestEngine(t, in)

	result, err := engine.Generate(context.Background(), GenerateRequest{})
	require.NoError(t, err)

	assert.Equal(t, 8, result.Schedule.Len())
	assert.Zero(t, result.Schedule.Placed("SA", "CHEM"))
	unplaced := violationsOfKind(result.Violations, KindUnplacedDemand)
	require.Len(t, unplaced, 2)
	for _, v := range unplaced {
		assert.Equal(t, SeverityHigh, v.Severity)
		assert.Equal(t, []string{"R1"}, v.Entities.RoomIDs)
		assert.Contains(t, v.Message, "Room R1 is a classroom but Chemistry requires a lab")
	}
}

func TestGenerateKeepsLockedAssignments(t *testing.T) {
	engine := newTestEngine(t, twoSubjectInput())
	fri6 := mustSlot(t, "FRI-6")
	_, err := engine.PlaceOne(PlaceRequest{SectionID: "SA", SubjectID: "MATH", PreferredSlot: &fri6, Lock: true})
	require.NoError(t, err)

	result, err := engine.Generate(context.Background(), GenerateRequest{})
	require.NoError(t, err)

	locked, ok := result.Schedule.At("SA", fri6)
	require.True(t, ok)
	assert.True(t, locked.Locked)
	assert.Equal(t, "MATH", locked.SubjectID)
	assert.Equal(t, 1, result.Stats.RetainedPeriods)
	assert.Equal(t, 7, result.Stats.Items)
	assert.Equal(t, 8, result.Schedule.Len())
}

func TestGenerateClearsUnlockedAssignmentsOfTargetedPairs(t *testing.T) {
	engine := newTestEngine(t, schoolInput())
	fri7 := mustSlot(t, "FRI-7")
	_, err := engine.PlaceOne(PlaceRequest{SectionID: "X3", SubjectID: "ENG", PreferredSlot: &fri7})
	require.NoError(t, err)

	result, err := engine.Generate(context.Background(), GenerateRequest{SectionIDs: []string{"X2"}})
	require.NoError(t, err)

	kept, ok := result.Schedule.At("X3", fri7)
	require.True(t, ok, "untargeted section must keep its lessons")
	assert.Equal(t, "ENG", kept.SubjectID)
	for _, a := range result.Schedule.Assignments() {
		assert.Contains(t, []string{"X2", "X3"}, a.SectionID)
	}
	assert.Equal(t, 1, len(result.Schedule.BySection("X3")))
}

func TestGenerateHonoursCancellation(t *testing.T) {
	engine := newTestEngine(t, schoolInput())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := engine.Generate(ctx, GenerateRequest{})
	require.NoError(t, err)
	assert.True(t, result.Cancelled)
	assert.Equal(t, result.Stats.Items, result.Stats.Pending)
	assert.Zero(t, result.Stats.Placed)
	assert.Equal(t, 0, result.Schedule.Len())
	assert.NotNil(t, result.Violations)
}

func TestGenerateRejectsUnknownScope(t *testing.T) {
	engine := newTestEngine(t, schoolInput())

	_, err := engine.Generate(context.Background(), GenerateRequest{SectionIDs: []string{"X9"}})
	assert.ErrorIs(t, err, ErrUnknownEntity)

	_, err = engine.Generate(context.Background(), GenerateRequest{SubjectIDs: []string{"BIO"}})
	assert.ErrorIs(t, err, ErrUnknownEntity)
}

func TestForcedPlacementIsSurfacedByAnalyze(t *testing.T) {
	engine := newTestEngine(t, scienceLabInput())
	_, err := engine.Generate(context.Background(), GenerateRequest{})
	require.NoError(t, err)

	fri6 := mustSlot(t, "FRI-6")
	result, err := engine.PlaceOne(PlaceRequest{SectionID: "S1A", SubjectID: "SCI", PreferredSlot: &fri6, Force: true})
	require.NoError(t, err)
	require.Len(t, result.Assignments, 1)
	assert.True(t, result.Assignments[0].Forced)
	assert.Equal(t, "T-SCI", result.Assignments[0].TeacherID)
	assert.Equal(t, "LAB-1", result.Assignments[0].RoomID)

	loadBreaches := violationsOfKind(engine.Analyze(), TeacherLoadCeiling)
	require.Len(t, loadBreaches, 1)
	assert.Equal(t, SeverityHigh, loadBreaches[0].Severity)
	assert.Equal(t, "Teacher Rina (T-SCI) is assigned 4 periods, exceeding the weekly maximum of 3", loadBreaches[0].Message)

	_, err = engine.PlaceOne(PlaceRequest{SectionID: "S1A", SubjectID: "SCI", PreferredSlot: &fri6, Force: true})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "S1A@FRI-6", conflict.Blocking.AssignmentID)
}

func TestRoomUtilization(t *testing.T) {
	engine := newTestEngine(t, scienceLabInput())
	_, err := engine.Generate(context.Background(), GenerateRequest{})
	require.NoError(t, err)

	usage := engine.RoomUtilization()
	require.Len(t, usage, 1)
	assert.Equal(t, "LAB-1", usage[0].RoomID)
	assert.Equal(t, 3, usage[0].UsedPeriods)
	assert.Equal(t, 30, usage[0].AvailablePeriods)
	assert.InDelta(t, 0.1, usage[0].Utilization, 1e-9)
}
