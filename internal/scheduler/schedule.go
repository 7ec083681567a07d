package scheduler

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Assignment binds a (section, subject, slot) to a teacher and a room.
type Assignment struct {
	ID        string     `json:"id"`
	SectionID string     `json:"sectionId"`
	SubjectID string     `json:"subjectId"`
	TeacherID string     `json:"teacherId"`
	RoomID    string     `json:"roomId"`
	Slot      PeriodSlot `json:"slot"`
	BlockID   string     `json:"blockId"`
	Locked    bool       `json:"locked"`
	Forced    bool       `json:"forced"`
}

// AssignmentID derives the stable id of the assignment a section holds at slot.
func AssignmentID(sectionID string, slot PeriodSlot) string {
	return fmt.Sprintf("%s@%s", sectionID, slot)
}

// Schedule is the set of assignments for one session, keyed by (section, slot).
type Schedule struct {
	byID map[string]Assignment
}

// NewSchedule returns an empty schedule.
func NewSchedule() *Schedule {
	return &Schedule{byID: make(map[string]Assignment)}
}

// ScheduleOf builds a schedule from a list of assignments, later entries
// replacing earlier ones at the same (section, slot).
func ScheduleOf(assignments []Assignment) *Schedule {
	s := NewSchedule()
	for _, a := range assignments {
		a.ID = AssignmentID(a.SectionID, a.Slot)
		if a.BlockID == "" {
			a.BlockID = a.ID
		}
		s.byID[a.ID] = a
	}
	return s
}

// Len is the number of assignments.
func (s *Schedule) Len() int { return len(s.byID) }

// Get looks an assignment up by id.
func (s *Schedule) Get(id string) (Assignment, bool) {
	a, ok := s.byID[id]
	return a, ok
}

// At returns the assignment a section holds at slot.
func (s *Schedule) At(sectionID string, slot PeriodSlot) (Assignment, bool) {
	return s.Get(AssignmentID(sectionID, slot))
}

func (s *Schedule) put(a Assignment) {
	s.byID[a.ID] = a
}

func (s *Schedule) delete(id string) {
	delete(s.byID, id)
}

// Assignments returns every assignment ordered by section, then slot.
func (s *Schedule) Assignments() []Assignment {
	out := make([]Assignment, 0, len(s.byID))
	for _, a := range s.byID {
		out = append(out, a)
	}
	sortAssignments(out)
	return out
}

// BySection returns the section's assignments in slot order.
func (s *Schedule) BySection(sectionID string) []Assignment {
	var out []Assignment
	for _, a := range s.byID {
		if a.SectionID == sectionID {
			out = append(out, a)
		}
	}
	sortAssignments(out)
	return out
}

// Block returns the members of a consecutive block in slot order.
func (s *Schedule) Block(blockID string) []Assignment {
	var out []Assignment
	for _, a := range s.byID {
		if a.BlockID == blockID {
			out = append(out, a)
		}
	}
	sortAssignments(out)
	return out
}

// Placed counts the periods of subject already scheduled for a section.
func (s *Schedule) Placed(sectionID, subjectID string) int {
	n := 0
	for _, a := range s.byID {
		if a.SectionID == sectionID && a.SubjectID == subjectID {
			n++
		}
	}
	return n
}

// TeacherLoad counts the periods assigned to a teacher.
func (s *Schedule) TeacherLoad(teacherID string) int {
	n := 0
	for _, a := range s.byID {
		if a.TeacherID == teacherID {
			n++
		}
	}
	return n
}

// Clone returns an independent copy.
func (s *Schedule) Clone() *Schedule {
	out := &Schedule{byID: make(map[string]Assignment, len(s.byID))}
	for id, a := range s.byID {
		out.byID[id] = a
	}
	return out
}

// MarshalJSON encodes the schedule as its ordered assignment list.
func (s *Schedule) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Assignments())
}

// UnmarshalJSON decodes an assignment list.
func (s *Schedule) UnmarshalJSON(data []byte) error {
	var list []Assignment
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*s = *ScheduleOf(list)
	return nil
}

func sortAssignments(list []Assignment) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].SectionID != list[j].SectionID {
			return list[i].SectionID < list[j].SectionID
		}
		return list[i].Slot.Before(list[j].Slot)
	})
}
