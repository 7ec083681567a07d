package scheduler

import (
	"fmt"
	"sort"
	"strings"
)

func slotRef(slot PeriodSlot) *PeriodSlot { return &slot }

func hardViolation(kind, message string, entities Entities) Violation {
	return Violation{Severity: SeverityHigh, Kind: kind, Entities: entities, Message: message}
}

type slotAvailable struct{}

func (slotAvailable) ID() string         { return SlotAvailable }
func (slotAvailable) Category() Category { return CategoryHard }

func (slotAvailable) Evaluate(c Candidate, s *State) Verdict {
	for _, slot := range c.Slots {
		blocker := Blocker{Kind: "slot", ID: slot.String()}
		if !s.Catalog.InGrid(slot) {
			return hardFailure(SlotAvailable, slotRef(slot), blocker, "%s is outside the school week", slot)
		}
		if s.Catalog.IsReserved(slot) {
			return hardFailure(SlotAvailable, slotRef(slot), blocker, "%s is a reserved period", slot)
		}
	}
	return satisfied()
}

func (slotAvailable) Audit(s *State) []Violation {
	var out []Violation
	for _, a := range s.Schedule.Assignments() {
		if s.Catalog.Allocatable(a.Slot) {
			continue
		}
		why := "outside the school week"
		if s.Catalog.IsReserved(a.Slot) {
			why = "a reserved period"
		}
		out = append(out, hardViolation(SlotAvailable,
			fmt.Sprintf("%s has %s at %s which is %s", s.sectionName(a.SectionID), s.subjectName(a.SubjectID), a.Slot, why),
			Entities{SectionIDs: []string{a.SectionID}, SubjectID: a.SubjectID, Slots: []PeriodSlot{a.Slot}}))
	}
	return out
}

type teacherQualified struct{}

func (teacherQualified) ID() string         { return TeacherQualified }
func (teacherQualified) Category() Category { return CategoryHard }

func (teacherQualified) Evaluate(c Candidate, s *State) Verdict {
	blocker := Blocker{Kind: string(ResourceTeacher), ID: c.TeacherID}
	teacher, ok := s.Catalog.Teacher(c.TeacherID)
	if !ok {
		return hardFailure(TeacherQualified, nil, blocker, "teacher %s does not exist", c.TeacherID)
	}
	if !teacher.Teaches(c.SubjectID) {
		return hardFailure(TeacherQualified, nil, blocker, "Teacher %s is not qualified to teach %s",
			s.teacherName(c.TeacherID), s.subjectName(c.SubjectID))
	}
	return satisfied()
}

func (teacherQualified) Audit(s *State) []Violation {
	var out []Violation
	for _, a := range s.Schedule.Assignments() {
		teacher, ok := s.Catalog.Teacher(a.TeacherID)
		if ok && teacher.Teaches(a.SubjectID) {
			continue
		}
		out = append(out, hardViolation(TeacherQualified,
			fmt.Sprintf("Teacher %s is not qualified to teach %s to %s at %s",
				s.teacherName(a.TeacherID), s.subjectName(a.SubjectID), s.sectionName(a.SectionID), a.Slot),
			Entities{SectionIDs: []string{a.SectionID}, SubjectID: a.SubjectID, TeacherIDs: []string{a.TeacherID}, Slots: []PeriodSlot{a.Slot}}))
	}
	return out
}

type roomCompatibility struct{}

func (roomCompatibility) ID() string         { return RoomCompatibility }
func (roomCompatibility) Category() Category { return CategoryHard }

func (roomCompatibility) Evaluate(c Candidate, s *State) Verdict {
	blocker := Blocker{Kind: string(ResourceRoom), ID: c.RoomID}
	if problem := roomProblem(s, c.SectionID, c.SubjectID, c.RoomID); problem != "" {
		return hardFailure(RoomCompatibility, nil, blocker, "%s", problem)
	}
	return satisfied()
}

func (roomCompatibility) Audit(s *State) []Violation {
	var out []Violation
	for _, a := range s.Schedule.Assignments() {
		problem := roomProblem(s, a.SectionID, a.SubjectID, a.RoomID)
		if problem == "" {
			continue
		}
		out = append(out, hardViolation(RoomCompatibility,
			fmt.Sprintf("%s at %s", problem, a.Slot),
			Entities{SectionIDs: []string{a.SectionID}, SubjectID: a.SubjectID, RoomIDs: []string{a.RoomID}, Slots: []PeriodSlot{a.Slot}}))
	}
	return out
}

func roomProblem(s *State, sectionID, subjectID, roomID string) string {
	room, ok := s.Catalog.Room(roomID)
	if !ok {
		return fmt.Sprintf("room %s does not exist", roomID)
	}
	subject, ok := s.Catalog.Subject(subjectID)
	if !ok {
		return fmt.Sprintf("subject %s does not exist", subjectID)
	}
	if subject.RequiresRoomType != "" && room.Type != subject.RequiresRoomType {
		return fmt.Sprintf("Room %s is a %s but %s requires a %s",
			s.roomName(roomID), room.Type, s.subjectName(subjectID), subject.RequiresRoomType)
	}
	if section, ok := s.Catalog.Section(sectionID); ok && room.Capacity < section.Strength {
		return fmt.Sprintf("Room %s seats %d but %s has %d students",
			s.roomName(roomID), room.Capacity, section.DisplayName(), section.Strength)
	}
	if !room.HasFacilities(subject.RequiredFacilities) {
		return fmt.Sprintf("Room %s lacks facilities required by %s: %s",
			s.roomName(roomID), s.subjectName(subjectID), strings.Join(subject.RequiredFacilities, ", "))
	}
	return ""
}

type consecutivePeriods struct{}

func (consecutivePeriods) ID() string         { return ConsecutivePeriods }
func (consecutivePeriods) Category() Category { return CategoryHard }

func (consecutivePeriods) Evaluate(c Candidate, s *State) Verdict {
	subject, ok := s.Catalog.Subject(c.SubjectID)
	if !ok {
		return hardFailure(ConsecutivePeriods, nil, Blocker{Kind: "subject", ID: c.SubjectID}, "subject %s does not exist", c.SubjectID)
	}
	if len(c.Slots) == 0 {
		return hardFailure(ConsecutivePeriods, nil, Blocker{Kind: "subject", ID: c.SubjectID}, "no slot given for %s", s.subjectName(c.SubjectID))
	}
	if !contiguous(c.Slots) || len(c.Slots) != subject.BlockSize() {
		return hardFailure(ConsecutivePeriods, slotRef(c.Slots[0]), Blocker{Kind: "subject", ID: c.SubjectID},
			"%s needs %d consecutive periods on one day starting at %s",
			s.subjectName(c.SubjectID), subject.BlockSize(), c.Slots[0])
	}
	return satisfied()
}

func (consecutivePeriods) Audit(s *State) []Violation {
	blocks := make(map[string][]Assignment)
	var blockIDs []string
	for _, a := range s.Schedule.Assignments() {
		if _, seen := blocks[a.BlockID]; !seen {
			blockIDs = append(blockIDs, a.BlockID)
		}
		blocks[a.BlockID] = append(blocks[a.BlockID], a)
	}
	sort.Strings(blockIDs)

	var out []Violation
	for _, blockID := range blockIDs {
		members := blocks[blockID]
		first := members[0]
		subject, ok := s.Catalog.Subject(first.SubjectID)
		if !ok {
			continue
		}
		slots := make([]PeriodSlot, 0, len(members))
		teachers := map[string]bool{}
		rooms := map[string]bool{}
		for _, a := range members {
			slots = append(slots, a.Slot)
			teachers[a.TeacherID] = true
			rooms[a.RoomID] = true
		}
		entities := Entities{
			SectionIDs: []string{first.SectionID},
			SubjectID:  first.SubjectID,
			TeacherIDs: sortedKeys(teachers),
			RoomIDs:    sortedKeys(rooms),
			Slots:      slots,
		}
		var problem string
		switch {
		case len(members) != subject.BlockSize():
			problem = fmt.Sprintf("has %d of %d consecutive periods", len(members), subject.BlockSize())
		case !contiguous(slots):
			problem = "is not on contiguous periods of one day"
		case len(teachers) > 1:
			problem = "is split across teachers"
		case len(rooms) > 1:
			problem = "is split across rooms"
		}
		if problem == "" {
			continue
		}
		out = append(out, hardViolation(ConsecutivePeriods,
			fmt.Sprintf("%s %s block at %s %s", s.sectionName(first.SectionID), s.subjectName(first.SubjectID), first.Slot, problem),
			entities))
	}
	return out
}

func contiguous(slots []PeriodSlot) bool {
	for i := 1; i < len(slots); i++ {
		if slots[i].Day != slots[0].Day || slots[i].Period != slots[0].Period+i {
			return false
		}
	}
	return true
}

type noDoubleBooking struct{}

func (noDoubleBooking) ID() string         { return NoDoubleBooking }
func (noDoubleBooking) Category() Category { return CategoryHard }

func (noDoubleBooking) Evaluate(c Candidate, s *State) Verdict {
	for _, slot := range c.Slots {
		if holders := s.Index.Occupants(ResourceSection, c.SectionID, slot); len(holders) > 0 {
			held, _ := s.Schedule.Get(holders[0])
			return hardFailure(NoDoubleBooking, slotRef(slot),
				Blocker{Kind: string(ResourceSection), ID: c.SectionID, AssignmentID: holders[0]},
				"%s already has %s at %s", s.sectionName(c.SectionID), s.subjectName(held.SubjectID), slot)
		}
		if holders := s.Index.Occupants(ResourceTeacher, c.TeacherID, slot); len(holders) > 0 {
			held, _ := s.Schedule.Get(holders[0])
			return hardFailure(NoDoubleBooking, slotRef(slot),
				Blocker{Kind: string(ResourceTeacher), ID: c.TeacherID, AssignmentID: holders[0]},
				"Teacher %s already teaches %s at %s", s.teacherName(c.TeacherID), s.sectionName(held.SectionID), slot)
		}
		if holders := s.Index.Occupants(ResourceRoom, c.RoomID, slot); len(holders) > 0 {
			held, _ := s.Schedule.Get(holders[0])
			return hardFailure(NoDoubleBooking, slotRef(slot),
				Blocker{Kind: string(ResourceRoom), ID: c.RoomID, AssignmentID: holders[0]},
				"Room %s is already used by %s at %s", s.roomName(c.RoomID), s.sectionName(held.SectionID), slot)
		}
	}
	return satisfied()
}

func (noDoubleBooking) Audit(s *State) []Violation {
	type key struct {
		id   string
		slot PeriodSlot
	}
	byTeacher := make(map[key][]Assignment)
	byRoom := make(map[key][]Assignment)
	for _, a := range s.Schedule.Assignments() {
		byTeacher[key{a.TeacherID, a.Slot}] = append(byTeacher[key{a.TeacherID, a.Slot}], a)
		byRoom[key{a.RoomID, a.Slot}] = append(byRoom[key{a.RoomID, a.Slot}], a)
	}

	var out []Violation
	report := func(groups map[key][]Assignment, resource Resource) {
		for k, members := range groups {
			if len(members) < 2 || k.id == "" {
				continue
			}
			sections := make([]string, 0, len(members))
			names := make([]string, 0, len(members))
			for _, a := range members {
				sections = append(sections, a.SectionID)
				names = append(names, s.sectionName(a.SectionID))
			}
			entities := Entities{SectionIDs: sections, Slots: []PeriodSlot{k.slot}}
			label := "Teacher " + s.teacherName(k.id)
			if resource == ResourceRoom {
				label = "Room " + s.roomName(k.id)
				entities.RoomIDs = []string{k.id}
			} else {
				entities.TeacherIDs = []string{k.id}
			}
			out = append(out, hardViolation(NoDoubleBooking,
				fmt.Sprintf("%s double-booked with %s at %s", label, joinNames(names), k.slot),
				entities))
		}
	}
	report(byTeacher, ResourceTeacher)
	report(byRoom, ResourceRoom)
	return out
}

type teacherAvailability struct{}

func (teacherAvailability) ID() string         { return TeacherAvailability }
func (teacherAvailability) Category() Category { return CategoryHard }

func (teacherAvailability) Evaluate(c Candidate, s *State) Verdict {
	for _, slot := range c.Slots {
		if s.Catalog.TeacherUnavailable(c.TeacherID, slot) {
			return hardFailure(TeacherAvailability, slotRef(slot), Blocker{Kind: string(ResourceTeacher), ID: c.TeacherID},
				"Teacher %s is unavailable at %s", s.teacherName(c.TeacherID), slot)
		}
	}
	return satisfied()
}

func (teacherAvailability) Audit(s *State) []Violation {
	var out []Violation
	for _, a := range s.Schedule.Assignments() {
		if !s.Catalog.TeacherUnavailable(a.TeacherID, a.Slot) {
			continue
		}
		out = append(out, hardViolation(TeacherAvailability,
			fmt.Sprintf("Teacher %s is unavailable at %s but teaches %s", s.teacherName(a.TeacherID), a.Slot, s.sectionName(a.SectionID)),
			Entities{SectionIDs: []string{a.SectionID}, SubjectID: a.SubjectID, TeacherIDs: []string{a.TeacherID}, Slots: []PeriodSlot{a.Slot}}))
	}
	return out
}

type teacherLoad struct{}

func (teacherLoad) ID() string         { return TeacherLoadCeiling }
func (teacherLoad) Category() Category { return CategoryHard }

func (teacherLoad) Evaluate(c Candidate, s *State) Verdict {
	teacher, ok := s.Catalog.Teacher(c.TeacherID)
	if !ok {
		return satisfied()
	}
	assigned := s.Index.Load(ResourceTeacher, c.TeacherID)
	if assigned+len(c.Slots) > teacher.MaxPeriodsPerWeek {
		return hardFailure(TeacherLoadCeiling, nil, Blocker{Kind: string(ResourceTeacher), ID: c.TeacherID},
			"Teacher %s would exceed the weekly maximum of %d periods (already assigned %d)",
			s.teacherName(c.TeacherID), teacher.MaxPeriodsPerWeek, assigned)
	}
	return satisfied()
}

func (teacherLoad) Audit(s *State) []Violation {
	var out []Violation
	for _, teacher := range s.Catalog.Teachers() {
		assigned := s.Index.Load(ResourceTeacher, teacher.ID)
		if assigned <= teacher.MaxPeriodsPerWeek {
			continue
		}
		out = append(out, hardViolation(TeacherLoadCeiling,
			fmt.Sprintf("Teacher %s is assigned %d periods, exceeding the weekly maximum of %d",
				s.teacherName(teacher.ID), assigned, teacher.MaxPeriodsPerWeek),
			Entities{TeacherIDs: []string{teacher.ID}}))
	}
	return out
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func joinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	}
	return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
}
