package scheduler

import (
	"fmt"
	"sort"
	"strings"
)

func softViolation(kind string, severity Severity, message string, entities Entities) Violation {
	return Violation{Severity: severity, Kind: kind, Entities: entities, Message: message}
}

func (s *State) heldAt(resource Resource, id string, slot PeriodSlot) (Assignment, bool) {
	holders := s.Index.Occupants(resource, id, slot)
	if len(holders) == 0 {
		return Assignment{}, false
	}
	return s.Schedule.Get(holders[0])
}

// neighbours returns the slots directly before and after a block on the same day.
func neighbours(slots []PeriodSlot) []PeriodSlot {
	first, last := slots[0], slots[len(slots)-1]
	return []PeriodSlot{
		{Day: first.Day, Period: first.Period - 1},
		{Day: last.Day, Period: last.Period + 1},
	}
}

// sectionDays groups each section's assignments by day, slot ordered.
func sectionDays(s *State) (map[string]map[Day][]Assignment, []string) {
	out := make(map[string]map[Day][]Assignment)
	var ids []string
	for _, a := range s.Schedule.Assignments() {
		days, ok := out[a.SectionID]
		if !ok {
			days = make(map[Day][]Assignment)
			out[a.SectionID] = days
			ids = append(ids, a.SectionID)
		}
		days[a.Slot.Day] = append(days[a.Slot.Day], a)
	}
	return out, ids
}

func sortedDays[T any](m map[Day]T) []Day {
	days := make([]Day, 0, len(m))
	for d := range m {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days
}

type noBackToBack struct{ weight float64 }

func (noBackToBack) ID() string         { return NoBackToBack }
func (noBackToBack) Category() Category { return CategorySoft }

func (r noBackToBack) Evaluate(c Candidate, s *State) Verdict {
	hits := 0
	for _, slot := range neighbours(c.Slots) {
		if held, ok := s.heldAt(ResourceSection, c.SectionID, slot); ok && held.SubjectID == c.SubjectID {
			hits++
		}
	}
	return softPenalty(NoBackToBack, r.weight*float64(hits), "%s would have %s back-to-back",
		s.sectionName(c.SectionID), s.subjectName(c.SubjectID))
}

func (noBackToBack) Audit(s *State) []Violation {
	var out []Violation
	bySection, ids := sectionDays(s)
	for _, id := range ids {
		days := bySection[id]
		for _, day := range sortedDays(days) {
			list := days[day]
			for i := 1; i < len(list); i++ {
				prev, cur := list[i-1], list[i]
				if cur.Slot.Period != prev.Slot.Period+1 || cur.SubjectID != prev.SubjectID || cur.BlockID == prev.BlockID {
					continue
				}
				out = append(out, softViolation(NoBackToBack, SeverityMedium,
					fmt.Sprintf("%s has %s back-to-back at %s and %s", s.sectionName(id), s.subjectName(cur.SubjectID), prev.Slot, cur.Slot),
					Entities{SectionIDs: []string{id}, SubjectID: cur.SubjectID, Slots: []PeriodSlot{prev.Slot, cur.Slot}}))
			}
		}
	}
	return out
}

type coreSubjectsMorning struct {
	weight float64
	core   []string
}

func (coreSubjectsMorning) ID() string         { return CoreSubjectsMorning }
func (coreSubjectsMorning) Category() Category { return CategorySoft }

func (r coreSubjectsMorning) isCore(s *State, subjectID string) bool {
	subject, ok := s.Catalog.Subject(subjectID)
	for _, core := range r.core {
		if strings.EqualFold(core, subjectID) || (ok && subject.Code != "" && strings.EqualFold(core, subject.Code)) {
			return true
		}
	}
	return false
}

func morning(s *State, slot PeriodSlot) bool {
	return slot.Period <= (s.Catalog.PeriodsPerDay()+1)/2
}

func (r coreSubjectsMorning) Evaluate(c Candidate, s *State) Verdict {
	if !r.isCore(s, c.SubjectID) {
		return satisfied()
	}
	late := 0
	for _, slot := range c.Slots {
		if !morning(s, slot) {
			late++
		}
	}
	return softPenalty(CoreSubjectsMorning, r.weight*float64(late), "%s is a core subject placed after midday",
		s.subjectName(c.SubjectID))
}

func (r coreSubjectsMorning) Audit(s *State) []Violation {
	var out []Violation
	for _, a := range s.Schedule.Assignments() {
		if !r.isCore(s, a.SubjectID) || morning(s, a.Slot) {
			continue
		}
		out = append(out, softViolation(CoreSubjectsMorning, SeverityLow,
			fmt.Sprintf("%s for %s is at %s, in the second half of the day", s.subjectName(a.SubjectID), s.sectionName(a.SectionID), a.Slot),
			Entities{SectionIDs: []string{a.SectionID}, SubjectID: a.SubjectID, Slots: []PeriodSlot{a.Slot}}))
	}
	return out
}

type balancedDistribution struct{ weight float64 }

func (balancedDistribution) ID() string         { return BalancedDistribution }
func (balancedDistribution) Category() Category { return CategorySoft }

func (r balancedDistribution) Evaluate(c Candidate, s *State) Verdict {
	day := c.Slots[0].Day
	blocks := map[string]bool{}
	for p := 1; p <= s.Catalog.PeriodsPerDay(); p++ {
		if held, ok := s.heldAt(ResourceSection, c.SectionID, PeriodSlot{Day: day, Period: p}); ok && held.SubjectID == c.SubjectID {
			blocks[held.BlockID] = true
		}
	}
	return softPenalty(BalancedDistribution, r.weight*float64(len(blocks)), "%s would have %s more than once on %s",
		s.sectionName(c.SectionID), s.subjectName(c.SubjectID), day)
}

func (balancedDistribution) Audit(s *State) []Violation {
	type pair struct{ section, subject string }
	lessons := make(map[pair]map[Day]map[string][]PeriodSlot)
	var pairs []pair
	for _, a := range s.Schedule.Assignments() {
		k := pair{a.SectionID, a.SubjectID}
		days, ok := lessons[k]
		if !ok {
			days = make(map[Day]map[string][]PeriodSlot)
			lessons[k] = days
			pairs = append(pairs, k)
		}
		if days[a.Slot.Day] == nil {
			days[a.Slot.Day] = make(map[string][]PeriodSlot)
		}
		days[a.Slot.Day][a.BlockID] = append(days[a.Slot.Day][a.BlockID], a.Slot)
	}

	var out []Violation
	for _, k := range pairs {
		days := lessons[k]
		units, periods := 0, 0
		var used []string
		var all []PeriodSlot
		for _, day := range sortedDays(days) {
			blocks := days[day]
			units += len(blocks)
			used = append(used, day.String())
			var slots []PeriodSlot
			for _, members := range blocks {
				slots = append(slots, members...)
			}
			sortSlots(slots)
			periods += len(slots)
			all = append(all, slots...)
			if len(blocks) > 1 {
				out = append(out, softViolation(BalancedDistribution, SeverityMedium,
					fmt.Sprintf("%s has %s %d times on %s", s.sectionName(k.section), s.subjectName(k.subject), len(blocks), day),
					Entities{SectionIDs: []string{k.section}, SubjectID: k.subject, Slots: slots}))
			}
		}
		if units >= 3 && len(days) <= 2 && len(s.Catalog.Days()) > 2 {
			out = append(out, softViolation(BalancedDistribution, SeverityMedium,
				fmt.Sprintf("%s has all %d %s periods on %s", s.sectionName(k.section), periods, s.subjectName(k.subject), joinNames(used)),
				Entities{SectionIDs: []string{k.section}, SubjectID: k.subject, Slots: all}))
		}
	}
	return out
}

type teacherIdleGaps struct{ weight float64 }

func (teacherIdleGaps) ID() string         { return TeacherIdleGaps }
func (teacherIdleGaps) Category() Category { return CategorySoft }

// idleGaps counts free, non-reserved periods between a teacher's first and
// last lesson of a day.
func idleGaps(s *State, day Day, busy map[int]bool) int {
	first, last := 0, 0
	for p := range busy {
		if first == 0 || p < first {
			first = p
		}
		if p > last {
			last = p
		}
	}
	gaps := 0
	for p := first + 1; p < last; p++ {
		if !busy[p] && !s.Catalog.IsReserved(PeriodSlot{Day: day, Period: p}) {
			gaps++
		}
	}
	return gaps
}

func (r teacherIdleGaps) Evaluate(c Candidate, s *State) Verdict {
	day := c.Slots[0].Day
	busy := map[int]bool{}
	for p := 1; p <= s.Catalog.PeriodsPerDay(); p++ {
		if s.Index.Busy(ResourceTeacher, c.TeacherID, PeriodSlot{Day: day, Period: p}) {
			busy[p] = true
		}
	}
	if len(busy) == 0 {
		return satisfied()
	}
	before := idleGaps(s, day, busy)
	for _, slot := range c.Slots {
		busy[slot.Period] = true
	}
	added := idleGaps(s, day, busy) - before
	return softPenalty(TeacherIdleGaps, r.weight*float64(added), "Teacher %s would have %d more idle periods on %s",
		s.teacherName(c.TeacherID), added, day)
}

func (teacherIdleGaps) Audit(s *State) []Violation {
	type key struct {
		teacher string
		day     Day
	}
	busy := make(map[key]map[int]bool)
	var keys []key
	for _, a := range s.Schedule.Assignments() {
		k := key{a.TeacherID, a.Slot.Day}
		if busy[k] == nil {
			busy[k] = map[int]bool{}
			keys = append(keys, k)
		}
		busy[k][a.Slot.Period] = true
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].teacher != keys[j].teacher {
			return keys[i].teacher < keys[j].teacher
		}
		return keys[i].day < keys[j].day
	})

	var out []Violation
	for _, k := range keys {
		gaps := idleGaps(s, k.day, busy[k])
		if gaps == 0 {
			continue
		}
		out = append(out, softViolation(TeacherIdleGaps, SeverityLow,
			fmt.Sprintf("Teacher %s has %d idle periods on %s", s.teacherName(k.teacher), gaps, k.day),
			Entities{TeacherIDs: []string{k.teacher}}))
	}
	return out
}

type roomChanges struct{ weight float64 }

func (roomChanges) ID() string         { return RoomChanges }
func (roomChanges) Category() Category { return CategorySoft }

func (r roomChanges) Evaluate(c Candidate, s *State) Verdict {
	changes := 0
	for _, slot := range neighbours(c.Slots) {
		if held, ok := s.heldAt(ResourceSection, c.SectionID, slot); ok && held.RoomID != c.RoomID {
			changes++
		}
	}
	return softPenalty(RoomChanges, r.weight*float64(changes), "%s would change rooms around %s",
		s.sectionName(c.SectionID), c.Slots[0])
}

func (roomChanges) Audit(s *State) []Violation {
	var out []Violation
	bySection, ids := sectionDays(s)
	for _, id := range ids {
		days := bySection[id]
		for _, day := range sortedDays(days) {
			list := days[day]
			for i := 1; i < len(list); i++ {
				prev, cur := list[i-1], list[i]
				if cur.Slot.Period != prev.Slot.Period+1 || cur.RoomID == prev.RoomID {
					continue
				}
				out = append(out, softViolation(RoomChanges, SeverityLow,
					fmt.Sprintf("%s changes from Room %s to Room %s between %s and %s",
						s.sectionName(id), s.roomName(prev.RoomID), s.roomName(cur.RoomID), prev.Slot, cur.Slot),
					Entities{SectionIDs: []string{id}, RoomIDs: []string{prev.RoomID, cur.RoomID}, Slots: []PeriodSlot{prev.Slot, cur.Slot}}))
			}
		}
	}
	return out
}
