package scheduler

import (
	"context"
	"fmt"
	"sort"
)

// PlaceRequest asks for one lesson block of a subject for a section.
type PlaceRequest struct {
	SectionID     string      `json:"sectionId"`
	SubjectID     string      `json:"subjectId"`
	PreferredSlot *PeriodSlot `json:"preferredSlot,omitempty"`
	TeacherID     string      `json:"teacherId,omitempty"`
	RoomID        string      `json:"roomId,omitempty"`
	// Strict disables the search over the rest of the week.
	Strict bool `json:"strict,omitempty"`
	// Lock keeps the placement when the section is regenerated.
	Lock bool `json:"lock,omitempty"`
	// Force places at PreferredSlot without hard checks.
	Force bool `json:"force,omitempty"`
}

// PlaceResult lists the assignments created by PlaceOne.
type PlaceResult struct {
	Assignments       []Assignment   `json:"assignments"`
	Penalty           float64        `json:"penalty"`
	PreferredConflict *ConflictError `json:"preferredConflict,omitempty"`
}

// GenerateRequest scopes a generation run. Empty lists mean everything.
type GenerateRequest struct {
	SectionIDs []string `json:"sectionIds,omitempty"`
	SubjectIDs []string `json:"subjectIds,omitempty"`
}

// GenerateStats summarises a run in demand items (lesson blocks).
type GenerateStats struct {
	Items           int `json:"items"`
	Placed          int `json:"placed"`
	Unplaced        int `json:"unplaced"`
	Pending         int `json:"pending"`
	RetainedPeriods int `json:"retainedPeriods"`
}

// GenerateResult is the best-effort schedule and everything wrong with it.
type GenerateResult struct {
	Schedule   *Schedule     `json:"schedule"`
	Violations []Violation   `json:"violations"`
	Stats      GenerateStats `json:"stats"`
	Cancelled  bool          `json:"cancelled"`
}

// TeacherLoad is the workload row of one teacher.
type TeacherLoad struct {
	TeacherID         string `json:"teacherId"`
	Name              string `json:"name"`
	AssignedPeriods   int    `json:"assignedPeriods"`
	MaxPeriodsPerWeek int    `json:"maxPeriodsPerWeek"`
}

// RoomUsage is the utilisation row of one room.
type RoomUsage struct {
	RoomID           string   `json:"roomId"`
	Name             string   `json:"name"`
	Type             RoomType `json:"type"`
	UsedPeriods      int      `json:"usedPeriods"`
	AvailablePeriods int      `json:"availablePeriods"`
	Utilization      float64  `json:"utilization"`
}

// Engine places and removes assignments while keeping the schedule and its
// availability index in step. It is not safe for concurrent use; Session
// provides the locking.
type Engine struct {
	catalog     *Catalog
	constraints *ConstraintSet
	schedule    *Schedule
	index       *Index
}

// NewEngine returns an engine with an empty schedule.
func NewEngine(catalog *Catalog, constraints *ConstraintSet) *Engine {
	return &Engine{
		catalog:     catalog,
		constraints: constraints,
		schedule:    NewSchedule(),
		index:       NewIndex(),
	}
}

// Catalog returns the registry the engine schedules against.
func (e *Engine) Catalog() *Catalog { return e.catalog }

// Constraints returns the active constraint set.
func (e *Engine) Constraints() *ConstraintSet { return e.constraints }

// Schedule returns a copy of the live schedule.
func (e *Engine) Schedule() *Schedule { return e.schedule.Clone() }

func (e *Engine) state() *State {
	return &State{Catalog: e.catalog, Schedule: e.schedule, Index: e.index}
}

type choice struct {
	candidate Candidate
	penalty   float64
}

type searchOutcome struct {
	best     *choice
	failures map[string]int
	samples  map[string]Verdict
	order    []string
}

func (o *searchOutcome) record(v Verdict) {
	if _, seen := o.samples[v.Constraint]; !seen {
		o.samples[v.Constraint] = v
		o.order = append(o.order, v.Constraint)
	}
	o.failures[v.Constraint]++
}

// dominant returns the verdict of the constraint that rejected the most
// candidates, earliest-seen first on ties.
func (o *searchOutcome) dominant() (Verdict, bool) {
	var best Verdict
	bestCount := 0
	for _, id := range o.order {
		if o.failures[id] > bestCount {
			best, bestCount = o.samples[id], o.failures[id]
		}
	}
	return best, bestCount > 0
}

func blockAt(start PeriodSlot, size int) []PeriodSlot {
	slots := make([]PeriodSlot, size)
	for i := range slots {
		slots[i] = PeriodSlot{Day: start.Day, Period: start.Period + i}
	}
	return slots
}

// hosts keeps the rooms whose type, capacity and facilities fit the subject
// for the section. None of these depend on the slot.
func hosts(st *State, sectionID, subjectID string, rooms []*Room) []*Room {
	out := make([]*Room, 0, len(rooms))
	for _, room := range rooms {
		if roomProblem(st, sectionID, subjectID, room.ID) == "" {
			out = append(out, room)
		}
	}
	return out
}

// search walks starts in order and, for each, every teacher and room,
// keeping the hard-feasible candidate with the lowest penalty. Iteration
// order makes ties resolve to the earliest slot, then teacher, then room.
// Rooms that can never host the subject are dropped first; room
// compatibility is blamed only when none is left.
func (e *Engine) search(sectionID string, subject *Subject, teachers []*Teacher, rooms []*Room, starts []PeriodSlot) searchOutcome {
	out := searchOutcome{failures: make(map[string]int), samples: make(map[string]Verdict)}
	st := e.state()
	fitting := hosts(st, sectionID, subject.ID, rooms)
	if len(fitting) == 0 {
		for _, room := range rooms {
			out.record(roomCompatibility{}.Evaluate(Candidate{SectionID: sectionID, SubjectID: subject.ID, RoomID: room.ID}, st))
		}
		return out
	}
	rooms = fitting
	for _, start := range starts {
		slots := blockAt(start, subject.BlockSize())
		for _, teacher := range teachers {
			for _, room := range rooms {
				candidate := Candidate{
					SectionID: sectionID,
					SubjectID: subject.ID,
					TeacherID: teacher.ID,
					RoomID:    room.ID,
					Slots:     slots,
				}
				if v := e.constraints.CheckHard(candidate, st); !v.OK() {
					out.record(v)
					continue
				}
				penalty := e.constraints.Penalty(candidate, st)
				if out.best == nil || penalty < out.best.penalty {
					out.best = &choice{candidate: candidate, penalty: penalty}
				}
			}
		}
	}
	return out
}

func (e *Engine) conflictFrom(out searchOutcome, section *Section, subject *Subject, preferred *PeriodSlot) *ConflictError {
	v, ok := out.dominant()
	if !ok {
		return &ConflictError{
			Constraint: RoomCompatibility,
			Reason:     fmt.Sprintf("no teacher and room combination exists for %s", e.state().subjectName(subject.ID)),
			Blocking:   Blocker{Kind: "subject", ID: subject.ID},
			Slot:       preferred,
		}
	}
	slot := v.Slot
	if slot == nil {
		slot = preferred
	}
	reason := v.Reason
	if preferred == nil {
		reason = fmt.Sprintf("no slot in the week can take %s for %s: %s", e.state().subjectName(subject.ID), section.DisplayName(), v.Reason)
	}
	return &ConflictError{Constraint: v.Constraint, Reason: reason, Blocking: v.Blocking, Slot: slot}
}

func (e *Engine) teachersFor(subjectID, pinned string) ([]*Teacher, error) {
	if pinned == "" {
		return e.catalog.QualifiedTeachers(subjectID), nil
	}
	teacher, ok := e.catalog.Teacher(pinned)
	if !ok {
		return nil, unknownEntity("teacher", pinned)
	}
	return []*Teacher{teacher}, nil
}

func (e *Engine) roomsFor(pinned string) ([]*Room, error) {
	if pinned == "" {
		return e.catalog.Rooms(), nil
	}
	room, ok := e.catalog.Room(pinned)
	if !ok {
		return nil, unknownEntity("room", pinned)
	}
	return []*Room{room}, nil
}

func (e *Engine) lookup(sectionID, subjectID string) (*Section, *Subject, error) {
	section, ok := e.catalog.Section(sectionID)
	if !ok {
		return nil, nil, unknownEntity("section", sectionID)
	}
	subject, ok := e.catalog.Subject(subjectID)
	if !ok {
		return nil, nil, unknownEntity("subject", subjectID)
	}
	return section, subject, nil
}

func (e *Engine) commit(c Candidate, lock, forced bool) []Assignment {
	blockID := AssignmentID(c.SectionID, c.Slots[0])
	placed := make([]Assignment, 0, len(c.Slots))
	for _, slot := range c.Slots {
		a := Assignment{
			ID:        AssignmentID(c.SectionID, slot),
			SectionID: c.SectionID,
			SubjectID: c.SubjectID,
			TeacherID: c.TeacherID,
			RoomID:    c.RoomID,
			Slot:      slot,
			BlockID:   blockID,
			Locked:    lock,
			Forced:    forced,
		}
		e.schedule.put(a)
		e.index.Reserve(a)
		placed = append(placed, a)
	}
	return placed
}

// PlaceOne places one lesson block. The preferred slot is tried first; when
// it fails the rest of the week is searched unless the request is strict.
func (e *Engine) PlaceOne(req PlaceRequest) (*PlaceResult, error) {
	section, subject, err := e.lookup(req.SectionID, req.SubjectID)
	if err != nil {
		return nil, err
	}
	if req.Force {
		return e.force(req, section, subject)
	}
	if req.Strict && req.PreferredSlot == nil {
		return nil, invalidRequest("strict placement needs a preferred slot")
	}

	remaining := section.Demands[subject.ID] - e.schedule.Placed(section.ID, subject.ID)
	if remaining < subject.BlockSize() {
		return nil, &ConflictError{
			Constraint: "demand_exhausted",
			Reason: fmt.Sprintf("%s already has all %d weekly periods of %s",
				section.DisplayName(), section.Demands[subject.ID], e.state().subjectName(subject.ID)),
			Blocking: Blocker{Kind: string(ResourceSection), ID: section.ID},
		}
	}

	teachers, err := e.teachersFor(subject.ID, req.TeacherID)
	if err != nil {
		return nil, err
	}
	rooms, err := e.roomsFor(req.RoomID)
	if err != nil {
		return nil, err
	}

	result := &PlaceResult{}
	starts := e.catalog.Slots()
	if req.PreferredSlot != nil {
		preferred := *req.PreferredSlot
		out := e.search(section.ID, subject, teachers, rooms, []PeriodSlot{preferred})
		if out.best != nil {
			result.Assignments = e.commit(out.best.candidate, req.Lock, false)
			result.Penalty = out.best.penalty
			return result, nil
		}
		result.PreferredConflict = e.conflictFrom(out, section, subject, &preferred)
		if req.Strict {
			return nil, result.PreferredConflict
		}
		rest := make([]PeriodSlot, 0, len(starts))
		for _, slot := range starts {
			if slot != preferred {
				rest = append(rest, slot)
			}
		}
		starts = rest
	}

	out := e.search(section.ID, subject, teachers, rooms, starts)
	if out.best == nil {
		return nil, e.conflictFrom(out, section, subject, nil)
	}
	result.Assignments = e.commit(out.best.candidate, req.Lock, false)
	result.Penalty = out.best.penalty
	return result, nil
}

func (e *Engine) force(req PlaceRequest, section *Section, subject *Subject) (*PlaceResult, error) {
	if req.PreferredSlot == nil {
		return nil, invalidRequest("forced placement needs a preferred slot")
	}
	slots := blockAt(*req.PreferredSlot, subject.BlockSize())
	for _, slot := range slots {
		if !e.catalog.InGrid(slot) {
			return nil, invalidRequest("slot %s is outside the school week", slot)
		}
		if holders := e.index.Occupants(ResourceSection, section.ID, slot); len(holders) > 0 {
			return nil, &ConflictError{
				Constraint: NoDoubleBooking,
				Reason:     fmt.Sprintf("%s already has a lesson at %s", section.DisplayName(), slot),
				Blocking:   Blocker{Kind: string(ResourceSection), ID: section.ID, AssignmentID: holders[0]},
				Slot:       slotRef(slot),
			}
		}
	}

	teacherID := req.TeacherID
	if teacherID == "" {
		qualified := e.catalog.QualifiedTeachers(subject.ID)
		if len(qualified) == 0 {
			return nil, invalidRequest("no teacher teaches %s", subject.ID)
		}
		teacherID = qualified[0].ID
	} else if _, ok := e.catalog.Teacher(teacherID); !ok {
		return nil, unknownEntity("teacher", teacherID)
	}

	roomID := req.RoomID
	if roomID == "" {
		rooms := e.catalog.Rooms()
		if len(rooms) == 0 {
			return nil, invalidRequest("no rooms are registered")
		}
		roomID = rooms[0].ID
		if fitting := hosts(e.state(), section.ID, subject.ID, rooms); len(fitting) > 0 {
			roomID = fitting[0].ID
		}
	} else if _, ok := e.catalog.Room(roomID); !ok {
		return nil, unknownEntity("room", roomID)
	}

	placed := e.commit(Candidate{
		SectionID: section.ID,
		SubjectID: subject.ID,
		TeacherID: teacherID,
		RoomID:    roomID,
		Slots:     slots,
	}, req.Lock, true)
	return &PlaceResult{Assignments: placed}, nil
}

type demandItem struct {
	section *Section
	subject *Subject
	unit    int
	units   int
}

func (d demandItem) less(o demandItem) bool {
	dRoom, oRoom := d.subject.RequiresRoomType != "", o.subject.RequiresRoomType != ""
	if dRoom != oRoom {
		return dRoom
	}
	if dp, op := d.section.Demands[d.subject.ID], o.section.Demands[o.subject.ID]; dp != op {
		return dp > op
	}
	if d.section.Strength != o.section.Strength {
		return d.section.Strength > o.section.Strength
	}
	if d.subject.BlockSize() != o.subject.BlockSize() {
		return d.subject.BlockSize() > o.subject.BlockSize()
	}
	if d.section.ID != o.section.ID {
		return d.section.ID < o.section.ID
	}
	if d.subject.ID != o.subject.ID {
		return d.subject.ID < o.subject.ID
	}
	return d.unit < o.unit
}

// Generate clears the unlocked assignments of the targeted (section, subject)
// pairs and greedily places the remaining demand, most constrained first.
// Unplaceable items become high-severity violations; the run never aborts.
// ctx is checked between items and cancellation returns the partial schedule.
func (e *Engine) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	sections := e.catalog.Sections()
	if len(req.SectionIDs) > 0 {
		sections = sections[:0:0]
		for _, id := range dedupe(req.SectionIDs) {
			section, ok := e.catalog.Section(id)
			if !ok {
				return nil, unknownEntity("section", id)
			}
			sections = append(sections, section)
		}
	}
	var subjectFilter map[string]bool
	if len(req.SubjectIDs) > 0 {
		subjectFilter = make(map[string]bool, len(req.SubjectIDs))
		for _, id := range req.SubjectIDs {
			if _, ok := e.catalog.Subject(id); !ok {
				return nil, unknownEntity("subject", id)
			}
			subjectFilter[id] = true
		}
	}

	type pair struct{ section, subject string }
	targeted := make(map[pair]bool)
	for _, section := range sections {
		for _, subjectID := range section.SubjectIDs() {
			if subjectFilter == nil || subjectFilter[subjectID] {
				targeted[pair{section.ID, subjectID}] = true
			}
		}
	}

	result := &GenerateResult{}
	for _, a := range e.schedule.Assignments() {
		if !targeted[pair{a.SectionID, a.SubjectID}] {
			continue
		}
		if a.Locked {
			result.Stats.RetainedPeriods++
			continue
		}
		e.index.Release(a)
		e.schedule.delete(a.ID)
	}

	var items []demandItem
	for _, section := range sections {
		for _, subjectID := range section.SubjectIDs() {
			if !targeted[pair{section.ID, subjectID}] {
				continue
			}
			subject, _ := e.catalog.Subject(subjectID)
			k := subject.BlockSize()
			units := section.Demands[subjectID] / k
			done := e.schedule.Placed(section.ID, subjectID) / k
			for unit := done + 1; unit <= units; unit++ {
				items = append(items, demandItem{section: section, subject: subject, unit: unit, units: units})
			}
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].less(items[j]) })
	result.Stats.Items = len(items)

	rooms := e.catalog.Rooms()
	starts := e.catalog.Slots()
	for i, item := range items {
		if ctx.Err() != nil {
			result.Cancelled = true
			result.Stats.Pending = len(items) - i
			break
		}
		teachers := e.catalog.QualifiedTeachers(item.subject.ID)
		out := e.search(item.section.ID, item.subject, teachers, rooms, starts)
		if out.best != nil {
			e.commit(out.best.candidate, false, false)
			result.Stats.Placed++
			continue
		}
		result.Stats.Unplaced++
		result.Violations = append(result.Violations, e.unplaced(item, out))
	}

	st := e.state()
	for _, rule := range e.constraints.Soft() {
		result.Violations = append(result.Violations, rule.Audit(st)...)
	}
	SortViolations(result.Violations)
	if result.Violations == nil {
		result.Violations = []Violation{}
	}
	result.Schedule = e.schedule.Clone()
	return result, nil
}

func (e *Engine) unplaced(item demandItem, out searchOutcome) Violation {
	conflict := e.conflictFrom(out, item.section, item.subject, nil)
	entities := Entities{SectionIDs: []string{item.section.ID}, SubjectID: item.subject.ID}
	switch Resource(conflict.Blocking.Kind) {
	case ResourceTeacher:
		entities.TeacherIDs = []string{conflict.Blocking.ID}
	case ResourceRoom:
		entities.RoomIDs = []string{conflict.Blocking.ID}
	}
	if conflict.Slot != nil {
		entities.Slots = []PeriodSlot{*conflict.Slot}
	}
	return Violation{
		Severity: SeverityHigh,
		Kind:     KindUnplacedDemand,
		Entities: entities,
		Message: fmt.Sprintf("Unable to place %s for %s (unit %d of %d): %s",
			e.state().subjectName(item.subject.ID), item.section.DisplayName(), item.unit, item.units, conflict.Reason),
	}
}

// Remove deletes an assignment and every other member of its block within
// the same section. Unknown ids are ignored.
func (e *Engine) Remove(assignmentID string) []Assignment {
	a, ok := e.schedule.Get(assignmentID)
	if !ok {
		return nil
	}
	var members []Assignment
	for _, member := range e.schedule.Block(a.BlockID) {
		if member.SectionID == a.SectionID {
			members = append(members, member)
		}
	}
	for _, member := range members {
		e.index.Release(member)
		e.schedule.delete(member.ID)
	}
	return members
}

// Import places assignments as given, skipping hard checks, e.g. when a
// persisted timetable is reopened. The batch is applied only if every entry
// references known entities, no two entries share a (section, slot) and
// every block is well formed. Block ids are rewritten to the id of the
// block's first period, the same form PlaceOne produces.
func (e *Engine) Import(assignments []Assignment) ([]Assignment, error) {
	batch := make([]Assignment, 0, len(assignments))
	seen := make(map[string]bool, len(assignments))
	blocks := make(map[string][]int)
	var blockOrder []string
	for _, a := range assignments {
		if _, _, err := e.lookup(a.SectionID, a.SubjectID); err != nil {
			return nil, err
		}
		if _, ok := e.catalog.Teacher(a.TeacherID); !ok {
			return nil, unknownEntity("teacher", a.TeacherID)
		}
		if _, ok := e.catalog.Room(a.RoomID); !ok {
			return nil, unknownEntity("room", a.RoomID)
		}
		if !e.catalog.InGrid(a.Slot) {
			return nil, invalidRequest("slot %s is outside the school week", a.Slot)
		}
		a.ID = AssignmentID(a.SectionID, a.Slot)
		if seen[a.ID] {
			return nil, invalidRequest("duplicate assignment %s in import", a.ID)
		}
		if holders := e.index.Occupants(ResourceSection, a.SectionID, a.Slot); len(holders) > 0 {
			return nil, &ConflictError{
				Constraint: NoDoubleBooking,
				Reason:     fmt.Sprintf("%s already has a lesson at %s", e.state().sectionName(a.SectionID), a.Slot),
				Blocking:   Blocker{Kind: string(ResourceSection), ID: a.SectionID, AssignmentID: holders[0]},
				Slot:       slotRef(a.Slot),
			}
		}
		seen[a.ID] = true
		a.Forced = true
		if a.BlockID == "" {
			a.BlockID = a.ID
		} else {
			if _, ok := blocks[a.BlockID]; !ok {
				blockOrder = append(blockOrder, a.BlockID)
			}
			blocks[a.BlockID] = append(blocks[a.BlockID], len(batch))
		}
		batch = append(batch, a)
	}
	for _, blockID := range blockOrder {
		if err := e.rebuildBlock(blockID, batch, blocks[blockID]); err != nil {
			return nil, err
		}
	}
	for _, a := range batch {
		e.schedule.put(a)
		e.index.Reserve(a)
	}
	sortAssignments(batch)
	return batch, nil
}

// rebuildBlock checks that the batch entries at members form one block: a
// single lesson on contiguous periods of one day. Their block id becomes the
// id of the earliest period.
func (e *Engine) rebuildBlock(blockID string, batch []Assignment, members []int) error {
	sort.Slice(members, func(i, j int) bool { return batch[members[i]].Slot.Before(batch[members[j]].Slot) })
	first := batch[members[0]]
	for n, idx := range members[1:] {
		a := batch[idx]
		if a.SectionID != first.SectionID || a.SubjectID != first.SubjectID ||
			a.TeacherID != first.TeacherID || a.RoomID != first.RoomID {
			return invalidRequest("block %s mixes lessons: %s and %s differ in section, subject, teacher or room", blockID, first.ID, a.ID)
		}
		if a.Slot.Day != first.Slot.Day || a.Slot.Period != first.Slot.Period+n+1 {
			return invalidRequest("block %s is not contiguous on one day at %s", blockID, a.Slot)
		}
	}
	for _, idx := range members {
		batch[idx].BlockID = first.ID
	}
	return nil
}

// TeacherLoads recomputes every teacher's assigned periods from the schedule.
func (e *Engine) TeacherLoads() []TeacherLoad {
	teachers := e.catalog.Teachers()
	out := make([]TeacherLoad, 0, len(teachers))
	for _, t := range teachers {
		out = append(out, TeacherLoad{
			TeacherID:         t.ID,
			Name:              t.Name,
			AssignedPeriods:   e.index.Load(ResourceTeacher, t.ID),
			MaxPeriodsPerWeek: t.MaxPeriodsPerWeek,
		})
	}
	return out
}

// RoomUtilization recomputes how many allocatable periods each room is used.
func (e *Engine) RoomUtilization() []RoomUsage {
	rooms := e.catalog.Rooms()
	available := len(e.catalog.Slots())
	out := make([]RoomUsage, 0, len(rooms))
	for _, r := range rooms {
		used := e.index.Load(ResourceRoom, r.ID)
		usage := RoomUsage{
			RoomID:           r.ID,
			Name:             r.Name,
			Type:             r.Type,
			UsedPeriods:      used,
			AvailablePeriods: available,
		}
		if available > 0 {
			usage.Utilization = float64(used) / float64(available)
		}
		out = append(out, usage)
	}
	return out
}

// Analyze reports every violation of the live schedule.
func (e *Engine) Analyze() []Violation {
	return Analyze(e.catalog, e.constraints, e.schedule)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
