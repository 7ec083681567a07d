package scheduler

import "fmt"

// Analyze re-evaluates a complete schedule against every hard constraint,
// every enabled soft constraint and the catalog demand. It builds its own
// index so it can be run on any schedule, including imported ones.
func Analyze(catalog *Catalog, constraints *ConstraintSet, schedule *Schedule) []Violation {
	st := &State{Catalog: catalog, Schedule: schedule, Index: IndexSchedule(schedule)}

	out := unknownReferences(st)
	for _, rule := range constraints.Hard() {
		out = append(out, rule.Audit(st)...)
	}
	for _, rule := range constraints.Soft() {
		out = append(out, rule.Audit(st)...)
	}
	out = append(out, reconcileDemand(st)...)

	SortViolations(out)
	if out == nil {
		out = []Violation{}
	}
	return out
}

func unknownReferences(s *State) []Violation {
	var out []Violation
	for _, a := range s.Schedule.Assignments() {
		var missing []string
		if _, ok := s.Catalog.Section(a.SectionID); !ok {
			missing = append(missing, "section "+a.SectionID)
		}
		if _, ok := s.Catalog.Subject(a.SubjectID); !ok {
			missing = append(missing, "subject "+a.SubjectID)
		}
		if _, ok := s.Catalog.Teacher(a.TeacherID); !ok {
			missing = append(missing, "teacher "+a.TeacherID)
		}
		if _, ok := s.Catalog.Room(a.RoomID); !ok {
			missing = append(missing, "room "+a.RoomID)
		}
		if len(missing) == 0 {
			continue
		}
		out = append(out, Violation{
			Severity: SeverityHigh,
			Kind:     KindUnknownReference,
			Entities: Entities{
				SectionIDs: []string{a.SectionID},
				SubjectID:  a.SubjectID,
				TeacherIDs: []string{a.TeacherID},
				RoomIDs:    []string{a.RoomID},
				Slots:      []PeriodSlot{a.Slot},
			},
			Message: fmt.Sprintf("Assignment %s references unknown %s", a.ID, joinNames(missing)),
		})
	}
	return out
}

func reconcileDemand(s *State) []Violation {
	placed := make(map[string]map[string]int)
	for _, a := range s.Schedule.Assignments() {
		if placed[a.SectionID] == nil {
			placed[a.SectionID] = make(map[string]int)
		}
		placed[a.SectionID][a.SubjectID]++
	}

	var out []Violation
	for _, section := range s.Catalog.Sections() {
		subjects := map[string]bool{}
		for id := range section.Demands {
			subjects[id] = true
		}
		for id := range placed[section.ID] {
			subjects[id] = true
		}
		for _, subjectID := range sortedKeys(subjects) {
			want, got := section.Demands[subjectID], placed[section.ID][subjectID]
			entities := Entities{SectionIDs: []string{section.ID}, SubjectID: subjectID}
			switch {
			case got < want:
				out = append(out, Violation{
					Severity: SeverityMedium,
					Kind:     KindUnfulfilledDemand,
					Entities: entities,
					Message: fmt.Sprintf("%s has %d of %d weekly %s periods",
						section.DisplayName(), got, want, s.subjectName(subjectID)),
				})
			case got > want:
				out = append(out, Violation{
					Severity: SeverityMedium,
					Kind:     KindExcessDemand,
					Entities: entities,
					Message: fmt.Sprintf("%s has %d %s periods but needs only %d",
						section.DisplayName(), got, s.subjectName(subjectID), want),
				})
			}
		}
	}
	return out
}
