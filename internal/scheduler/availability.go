package scheduler

import "sort"

// occupancy maps an entity id to the assignments holding each of its slots.
type occupancy map[string]map[PeriodSlot]map[string]struct{}

func (o occupancy) add(id string, slot PeriodSlot, assignmentID string) {
	if id == "" {
		return
	}
	slots, ok := o[id]
	if !ok {
		slots = make(map[PeriodSlot]map[string]struct{})
		o[id] = slots
	}
	holders, ok := slots[slot]
	if !ok {
		holders = make(map[string]struct{})
		slots[slot] = holders
	}
	holders[assignmentID] = struct{}{}
}

func (o occupancy) remove(id string, slot PeriodSlot, assignmentID string) {
	slots, ok := o[id]
	if !ok {
		return
	}
	holders, ok := slots[slot]
	if !ok {
		return
	}
	delete(holders, assignmentID)
	if len(holders) == 0 {
		delete(slots, slot)
	}
	if len(slots) == 0 {
		delete(o, id)
	}
}

func (o occupancy) busy(id string, slot PeriodSlot) bool {
	return len(o[id][slot]) > 0
}

func (o occupancy) holders(id string, slot PeriodSlot) []string {
	set := o[id][slot]
	out := make([]string, 0, len(set))
	for assignmentID := range set {
		out = append(out, assignmentID)
	}
	sort.Strings(out)
	return out
}

func (o occupancy) count(id string) int {
	total := 0
	for _, holders := range o[id] {
		total += len(holders)
	}
	return total
}

// Resource names one of the three partitions of the index.
type Resource string

const (
	ResourceTeacher Resource = "teacher"
	ResourceRoom    Resource = "room"
	ResourceSection Resource = "section"
)

// Index tracks which teacher, room and section coordinates are busy. Each
// coordinate holds a set of assignment ids so that schedules containing forced
// overlaps are mirrored exactly.
type Index struct {
	teacherBusy occupancy
	roomBusy    occupancy
	sectionBusy occupancy
	reserved    map[string]Assignment
}

// NewIndex returns an empty availability index.
func NewIndex() *Index {
	return &Index{
		teacherBusy: make(occupancy),
		roomBusy:    make(occupancy),
		sectionBusy: make(occupancy),
		reserved:    make(map[string]Assignment),
	}
}

// IndexSchedule builds an index mirroring every assignment of s.
func IndexSchedule(s *Schedule) *Index {
	ix := NewIndex()
	for _, a := range s.Assignments() {
		ix.Reserve(a)
	}
	return ix
}

// IsFree reports whether teacher, room and section are all free at slot.
// Empty ids are ignored.
func (ix *Index) IsFree(teacherID, roomID, sectionID string, slot PeriodSlot) bool {
	return !ix.teacherBusy.busy(teacherID, slot) &&
		!ix.roomBusy.busy(roomID, slot) &&
		!ix.sectionBusy.busy(sectionID, slot)
}

// Busy reports whether the given resource is occupied at slot.
func (ix *Index) Busy(resource Resource, id string, slot PeriodSlot) bool {
	return ix.partition(resource).busy(id, slot)
}

// Occupants returns the ids of the assignments holding a coordinate.
func (ix *Index) Occupants(resource Resource, id string, slot PeriodSlot) []string {
	return ix.partition(resource).holders(id, slot)
}

// Load is the number of assignments reserved for the resource.
func (ix *Index) Load(resource Resource, id string) int {
	return ix.partition(resource).count(id)
}

// Reserve records a in all three partitions. Reserving an id twice replaces
// the earlier reservation.
func (ix *Index) Reserve(a Assignment) {
	if prev, ok := ix.reserved[a.ID]; ok {
		ix.release(prev)
	}
	ix.teacherBusy.add(a.TeacherID, a.Slot, a.ID)
	ix.roomBusy.add(a.RoomID, a.Slot, a.ID)
	ix.sectionBusy.add(a.SectionID, a.Slot, a.ID)
	ix.reserved[a.ID] = a
}

// Release drops the reservation held under a.ID. Releasing an assignment that
// was never reserved is a no-op.
func (ix *Index) Release(a Assignment) {
	prev, ok := ix.reserved[a.ID]
	if !ok {
		return
	}
	ix.release(prev)
}

func (ix *Index) release(a Assignment) {
	ix.teacherBusy.remove(a.TeacherID, a.Slot, a.ID)
	ix.roomBusy.remove(a.RoomID, a.Slot, a.ID)
	ix.sectionBusy.remove(a.SectionID, a.Slot, a.ID)
	delete(ix.reserved, a.ID)
}

// Reserved reports whether an assignment id is held by the index.
func (ix *Index) Reserved(id string) bool {
	_, ok := ix.reserved[id]
	return ok
}

// Len is the number of reserved assignments.
func (ix *Index) Len() int { return len(ix.reserved) }

func (ix *Index) partition(resource Resource) occupancy {
	switch resource {
	case ResourceTeacher:
		return ix.teacherBusy
	case ResourceRoom:
		return ix.roomBusy
	default:
		return ix.sectionBusy
	}
}
