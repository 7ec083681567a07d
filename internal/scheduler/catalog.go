package scheduler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Day is a school day, Monday=1 through Saturday=6.
type Day int

const (
	Monday Day = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

var dayCodes = map[Day]string{
	Monday:    "MON",
	Tuesday:   "TUE",
	Wednesday: "WED",
	Thursday:  "THU",
	Friday:    "FRI",
	Saturday:  "SAT",
}

var dayAliases = map[string]Day{
	"MON": Monday, "MONDAY": Monday,
	"TUE": Tuesday, "TUESDAY": Tuesday,
	"WED": Wednesday, "WEDNESDAY": Wednesday,
	"THU": Thursday, "THURSDAY": Thursday,
	"FRI": Friday, "FRIDAY": Friday,
	"SAT": Saturday, "SATURDAY": Saturday,
}

// Valid reports whether d is one of the six school days.
func (d Day) Valid() bool {
	return d >= Monday && d <= Saturday
}

func (d Day) String() string {
	if code, ok := dayCodes[d]; ok {
		return code
	}
	return "DAY" + strconv.Itoa(int(d))
}

// MarshalText encodes the day as its three letter code.
func (d Day) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid day %d", int(d))
	}
	return []byte(d.String()), nil
}

// UnmarshalText accepts MON/MONDAY style names or the numeric index.
func (d *Day) UnmarshalText(text []byte) error {
	parsed, err := ParseDay(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDay parses a day name, code, or 1-based index.
func ParseDay(raw string) (Day, error) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	if day, ok := dayAliases[raw]; ok {
		return day, nil
	}
	if n, err := strconv.Atoi(raw); err == nil && Day(n).Valid() {
		return Day(n), nil
	}
	return 0, fmt.Errorf("unknown day %q", raw)
}

// PeriodSlot is one (day, period) coordinate of the weekly grid.
type PeriodSlot struct {
	Day    Day `json:"day"`
	Period int `json:"period"`
}

func (s PeriodSlot) String() string {
	return fmt.Sprintf("%s-%d", s.Day, s.Period)
}

// Before orders slots by day, then period.
func (s PeriodSlot) Before(other PeriodSlot) bool {
	if s.Day != other.Day {
		return s.Day < other.Day
	}
	return s.Period < other.Period
}

// ParseSlot parses the "MON-1" form produced by String.
func ParseSlot(raw string) (PeriodSlot, error) {
	idx := strings.LastIndex(raw, "-")
	if idx <= 0 {
		return PeriodSlot{}, fmt.Errorf("invalid slot %q", raw)
	}
	day, err := ParseDay(raw[:idx])
	if err != nil {
		return PeriodSlot{}, err
	}
	period, err := strconv.Atoi(strings.TrimSpace(raw[idx+1:]))
	if err != nil || period < 1 {
		return PeriodSlot{}, fmt.Errorf("invalid period in slot %q", raw)
	}
	return PeriodSlot{Day: day, Period: period}, nil
}

// RoomType classifies rooms for subject compatibility.
type RoomType string

const (
	RoomClassroom RoomType = "classroom"
	RoomLab       RoomType = "lab"
	RoomSpecial   RoomType = "special"
)

func (t RoomType) valid() bool {
	switch t {
	case RoomClassroom, RoomLab, RoomSpecial:
		return true
	}
	return false
}

// Teacher is a staff member who can be assigned to teach subjects.
type Teacher struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	Department        string       `json:"department,omitempty"`
	Subjects          []string     `json:"subjects"`
	MaxPeriodsPerWeek int          `json:"maxPeriodsPerWeek"`
	Unavailable       []PeriodSlot `json:"unavailable,omitempty"`
}

// Teaches reports whether the teacher is qualified for the subject.
func (t *Teacher) Teaches(subjectID string) bool {
	for _, id := range t.Subjects {
		if id == subjectID {
			return true
		}
	}
	return false
}

// Room is a physical space that hosts one section per slot.
type Room struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Type       RoomType `json:"type"`
	Capacity   int      `json:"capacity"`
	Facilities []string `json:"facilities,omitempty"`
}

// HasFacilities reports whether every required facility is present.
func (r *Room) HasFacilities(required []string) bool {
	for _, need := range required {
		found := false
		for _, have := range r.Facilities {
			if strings.EqualFold(have, need) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Subject describes what is taught and where it can be taught.
type Subject struct {
	ID                         string   `json:"id"`
	Name                       string   `json:"name"`
	Code                       string   `json:"code"`
	RequiresRoomType           RoomType `json:"requiresRoomType,omitempty"`
	RequiresConsecutivePeriods int      `json:"requiresConsecutivePeriods"`
	RequiredFacilities         []string `json:"requiredFacilities,omitempty"`
}

// BlockSize is the number of contiguous periods one lesson occupies.
func (s *Subject) BlockSize() int {
	if s.RequiresConsecutivePeriods < 1 {
		return 1
	}
	return s.RequiresConsecutivePeriods
}

// Section is a class-section with its weekly subject demand.
type Section struct {
	ID        string         `json:"id"`
	ClassName string         `json:"className"`
	Label     string         `json:"label"`
	Strength  int            `json:"strength"`
	Demands   map[string]int `json:"demands"`
}

// DisplayName renders the section the way the admin screens show it, e.g. "Grade 2-B".
func (s *Section) DisplayName() string {
	switch {
	case s.ClassName == "" && s.Label == "":
		return s.ID
	case s.Label == "":
		return s.ClassName
	case s.ClassName == "":
		return s.Label
	}
	return s.ClassName + "-" + s.Label
}

// SubjectIDs returns the demanded subjects in ascending id order.
func (s *Section) SubjectIDs() []string {
	ids := make([]string, 0, len(s.Demands))
	for id := range s.Demands {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TotalDemand sums periodsPerWeek across subjects.
func (s *Section) TotalDemand() int {
	total := 0
	for _, n := range s.Demands {
		total += n
	}
	return total
}

// PeriodTemplate is the school-wide weekly grid.
type PeriodTemplate struct {
	Days          []Day        `json:"days"`
	PeriodsPerDay int          `json:"periodsPerDay"`
	Reserved      []PeriodSlot `json:"reserved,omitempty"`
}

// CatalogInput is the raw registry content supplied by upstream collaborators.
type CatalogInput struct {
	Teachers []Teacher      `json:"teachers"`
	Rooms    []Room         `json:"rooms"`
	Subjects []Subject      `json:"subjects"`
	Sections []Section      `json:"sections"`
	Template PeriodTemplate `json:"template"`
}

// Catalog is the validated, read-only registry for one scheduling session.
type Catalog struct {
	template PeriodTemplate
	days     []Day
	slots    []PeriodSlot
	reserved map[PeriodSlot]bool

	teachers map[string]*Teacher
	rooms    map[string]*Room
	subjects map[string]*Subject
	sections map[string]*Section

	teacherIDs []string
	roomIDs    []string
	subjectIDs []string
	sectionIDs []string

	qualified   map[string][]*Teacher
	unavailable map[string]map[PeriodSlot]bool
}

// LoadCatalog validates the input and builds the registry. Inputs that make the
// problem unsatisfiable by construction are rejected with a *CatalogError.
func LoadCatalog(in CatalogInput) (*Catalog, error) {
	var problems []string
	addf := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	c := &Catalog{
		reserved:    make(map[PeriodSlot]bool),
		teachers:    make(map[string]*Teacher, len(in.Teachers)),
		rooms:       make(map[string]*Room, len(in.Rooms)),
		subjects:    make(map[string]*Subject, len(in.Subjects)),
		sections:    make(map[string]*Section, len(in.Sections)),
		qualified:   make(map[string][]*Teacher),
		unavailable: make(map[string]map[PeriodSlot]bool),
	}

	if in.Template.PeriodsPerDay < 1 {
		addf("template periodsPerDay must be at least 1")
	}
	seenDays := make(map[Day]bool)
	for _, day := range in.Template.Days {
		if !day.Valid() {
			addf("template day %d is outside MON..SAT", int(day))
			continue
		}
		if !seenDays[day] {
			seenDays[day] = true
			c.days = append(c.days, day)
		}
	}
	if len(c.days) == 0 {
		addf("template must contain at least one day")
	}
	sort.Slice(c.days, func(i, j int) bool { return c.days[i] < c.days[j] })
	c.template = PeriodTemplate{Days: c.days, PeriodsPerDay: in.Template.PeriodsPerDay}
	for _, slot := range in.Template.Reserved {
		if !seenDays[slot.Day] || slot.Period < 1 || slot.Period > in.Template.PeriodsPerDay {
			addf("reserved slot %s is outside the template", slot)
			continue
		}
		if !c.reserved[slot] {
			c.reserved[slot] = true
			c.template.Reserved = append(c.template.Reserved, slot)
		}
	}
	sortSlots(c.template.Reserved)
	for _, day := range c.days {
		for p := 1; p <= in.Template.PeriodsPerDay; p++ {
			slot := PeriodSlot{Day: day, Period: p}
			if !c.reserved[slot] {
				c.slots = append(c.slots, slot)
			}
		}
	}

	for i := range in.Subjects {
		subject := in.Subjects[i]
		if subject.ID == "" {
			addf("subject #%d has no id", i)
			continue
		}
		if _, dup := c.subjects[subject.ID]; dup {
			addf("duplicate subject id %s", subject.ID)
			continue
		}
		if subject.RequiresConsecutivePeriods < 1 {
			subject.RequiresConsecutivePeriods = 1
		}
		if subject.RequiresRoomType != "" && !subject.RequiresRoomType.valid() {
			addf("subject %s requires unknown room type %q", subject.ID, subject.RequiresRoomType)
		}
		if in.Template.PeriodsPerDay > 0 && subject.RequiresConsecutivePeriods > in.Template.PeriodsPerDay {
			addf("subject %s requires %d consecutive periods but a day has only %d",
				subject.ID, subject.RequiresConsecutivePeriods, in.Template.PeriodsPerDay)
		}
		c.subjects[subject.ID] = &subject
		c.subjectIDs = append(c.subjectIDs, subject.ID)
	}

	for i := range in.Rooms {
		room := in.Rooms[i]
		if room.ID == "" {
			addf("room #%d has no id", i)
			continue
		}
		if _, dup := c.rooms[room.ID]; dup {
			addf("duplicate room id %s", room.ID)
			continue
		}
		if room.Type == "" {
			room.Type = RoomClassroom
		}
		if !room.Type.valid() {
			addf("room %s has unknown type %q", room.ID, room.Type)
		}
		if room.Capacity <= 0 {
			addf("room %s capacity must be positive", room.ID)
		}
		c.rooms[room.ID] = &room
		c.roomIDs = append(c.roomIDs, room.ID)
	}

	for i := range in.Teachers {
		teacher := in.Teachers[i]
		if teacher.ID == "" {
			addf("teacher #%d has no id", i)
			continue
		}
		if _, dup := c.teachers[teacher.ID]; dup {
			addf("duplicate teacher id %s", teacher.ID)
			continue
		}
		if teacher.MaxPeriodsPerWeek < 0 {
			addf("teacher %s maxPeriodsPerWeek must not be negative", teacher.ID)
		}
		teacher.Subjects = append([]string(nil), teacher.Subjects...)
		sort.Strings(teacher.Subjects)
		blocked := make(map[PeriodSlot]bool, len(teacher.Unavailable))
		for _, slot := range teacher.Unavailable {
			if !seenDays[slot.Day] || slot.Period < 1 || slot.Period > in.Template.PeriodsPerDay {
				addf("teacher %s unavailable slot %s is outside the template", teacher.ID, slot)
				continue
			}
			blocked[slot] = true
		}
		c.unavailable[teacher.ID] = blocked
		c.teachers[teacher.ID] = &teacher
		c.teacherIDs = append(c.teacherIDs, teacher.ID)
	}
	sort.Strings(c.teacherIDs)
	sort.Strings(c.roomIDs)
	sort.Strings(c.subjectIDs)

	for _, id := range c.teacherIDs {
		teacher := c.teachers[id]
		for _, subjectID := range teacher.Subjects {
			if _, ok := c.subjects[subjectID]; !ok {
				addf("teacher %s teaches unknown subject %s", id, subjectID)
				continue
			}
			c.qualified[subjectID] = append(c.qualified[subjectID], teacher)
		}
	}

	for i := range in.Sections {
		section := in.Sections[i]
		if section.ID == "" {
			addf("section #%d has no id", i)
			continue
		}
		if _, dup := c.sections[section.ID]; dup {
			addf("duplicate section id %s", section.ID)
			continue
		}
		if section.Strength < 0 {
			addf("section %s strength must not be negative", section.ID)
		}
		demands := make(map[string]int, len(section.Demands))
		for subjectID, periods := range section.Demands {
			demands[subjectID] = periods
		}
		section.Demands = demands
		for _, subjectID := range section.SubjectIDs() {
			periods := section.Demands[subjectID]
			subject, ok := c.subjects[subjectID]
			switch {
			case periods < 0:
				addf("section %s demands a negative period count for %s", section.ID, subjectID)
			case !ok:
				addf("section %s demands unknown subject %s", section.ID, subjectID)
			case periods > 0 && len(c.qualified[subjectID]) == 0:
				addf("section %s demands %s but no teacher teaches it", section.ID, subjectID)
			case periods%subject.BlockSize() != 0:
				addf("section %s demands %d periods of %s which is not a multiple of its %d-period block",
					section.ID, periods, subjectID, subject.BlockSize())
			}
		}
		if total := section.TotalDemand(); total > len(c.slots) {
			addf("section %s demands %d periods but the week has only %d allocatable slots",
				section.ID, total, len(c.slots))
		}
		c.sections[section.ID] = &section
		c.sectionIDs = append(c.sectionIDs, section.ID)
	}
	sort.Strings(c.sectionIDs)

	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, &CatalogError{Problems: problems}
	}
	return c, nil
}

// Template returns the normalised period template.
func (c *Catalog) Template() PeriodTemplate { return c.template }

// PeriodsPerDay is the number of periods in every day of the template.
func (c *Catalog) PeriodsPerDay() int { return c.template.PeriodsPerDay }

// Days returns the template days in order.
func (c *Catalog) Days() []Day { return c.days }

// Slots returns every allocatable slot in ascending (day, period) order.
func (c *Catalog) Slots() []PeriodSlot { return c.slots }

// IsReserved reports whether slot is a reserved (e.g. lunch) period.
func (c *Catalog) IsReserved(slot PeriodSlot) bool { return c.reserved[slot] }

// InGrid reports whether the slot lies inside the template, reserved or not.
func (c *Catalog) InGrid(slot PeriodSlot) bool {
	if slot.Period < 1 || slot.Period > c.template.PeriodsPerDay {
		return false
	}
	for _, day := range c.days {
		if day == slot.Day {
			return true
		}
	}
	return false
}

// Allocatable reports whether a lesson may be placed at slot.
func (c *Catalog) Allocatable(slot PeriodSlot) bool {
	return c.InGrid(slot) && !c.reserved[slot]
}

func (c *Catalog) Teacher(id string) (*Teacher, bool) {
	t, ok := c.teachers[id]
	return t, ok
}

func (c *Catalog) Room(id string) (*Room, bool) {
	r, ok := c.rooms[id]
	return r, ok
}

func (c *Catalog) Subject(id string) (*Subject, bool) {
	s, ok := c.subjects[id]
	return s, ok
}

func (c *Catalog) Section(id string) (*Section, bool) {
	s, ok := c.sections[id]
	return s, ok
}

// Teachers returns every teacher in ascending id order.
func (c *Catalog) Teachers() []*Teacher {
	out := make([]*Teacher, 0, len(c.teacherIDs))
	for _, id := range c.teacherIDs {
		out = append(out, c.teachers[id])
	}
	return out
}

// Rooms returns every room in ascending id order.
func (c *Catalog) Rooms() []*Room {
	out := make([]*Room, 0, len(c.roomIDs))
	for _, id := range c.roomIDs {
		out = append(out, c.rooms[id])
	}
	return out
}

// Sections returns every section in ascending id order.
func (c *Catalog) Sections() []*Section {
	out := make([]*Section, 0, len(c.sectionIDs))
	for _, id := range c.sectionIDs {
		out = append(out, c.sections[id])
	}
	return out
}

// SectionIDs returns the section ids in ascending order.
func (c *Catalog) SectionIDs() []string { return c.sectionIDs }

// QualifiedTeachers returns the teachers of a subject in ascending id order.
func (c *Catalog) QualifiedTeachers(subjectID string) []*Teacher {
	return c.qualified[subjectID]
}

// TeacherUnavailable reports whether the teacher has blocked the slot.
func (c *Catalog) TeacherUnavailable(teacherID string, slot PeriodSlot) bool {
	return c.unavailable[teacherID][slot]
}

func sortSlots(slots []PeriodSlot) {
	sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })
}
