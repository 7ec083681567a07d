package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-scheduler-api/internal/models"
	"github.com/noah-isme/sma-scheduler-api/internal/scheduler"
)

// CatalogRepository reads the school registry a scheduling session works on.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// CatalogRows is the raw content of the catalog tables.
type CatalogRows struct {
	Teachers       []models.Teacher
	TeacherSubject []models.TeacherSubject
	Unavailability []models.TeacherUnavailability
	Rooms          []models.Room
	Subjects       []models.Subject
	Sections       []models.ClassSection
	Loads          []models.SectionSubjectLoad
	Periods        []models.SchoolPeriod
}

// Load reads the catalog for the given sections, or every section when sectionIDs is empty.
// Unknown section ids yield an error wrapping sql.ErrNoRows.
func (r *CatalogRepository) Load(ctx context.Context, sectionIDs []string) (*scheduler.CatalogInput, error) {
	rows := CatalogRows{}

	if len(sectionIDs) == 0 {
		const query = `SELECT id, class_name, label, strength, created_at, updated_at FROM class_sections ORDER BY id`
		if err := r.db.SelectContext(ctx, &rows.Sections, query); err != nil {
			return nil, fmt.Errorf("list class sections: %w", err)
		}
	} else {
		const query = `SELECT id, class_name, label, strength, created_at, updated_at FROM class_sections WHERE id = ANY($1) ORDER BY id`
		if err := r.db.SelectContext(ctx, &rows.Sections, query, pq.Array(sectionIDs)); err != nil {
			return nil, fmt.Errorf("list class sections: %w", err)
		}
		if missing := missingSections(sectionIDs, rows.Sections); len(missing) > 0 {
			return nil, fmt.Errorf("class sections %s: %w", strings.Join(missing, ", "), sql.ErrNoRows)
		}
	}

	ids := make([]string, 0, len(rows.Sections))
	for _, s := range rows.Sections {
		ids = append(ids, s.ID)
	}
	const loadsQuery = `SELECT section_id, subject_id, periods_per_week FROM section_subject_loads WHERE section_id = ANY($1) ORDER BY section_id, subject_id`
	if err := r.db.SelectContext(ctx, &rows.Loads, loadsQuery, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list section subject loads: %w", err)
	}

	queries := []struct {
		label string
		dest  interface{}
		query string
	}{
		{"subjects", &rows.Subjects, `SELECT id, code, name, requires_room_type, consecutive_periods, required_facilities, created_at, updated_at FROM subjects ORDER BY id`},
		{"teachers", &rows.Teachers, `SELECT id, full_name, department, max_periods_per_week, active, created_at, updated_at FROM teachers WHERE active = TRUE ORDER BY id`},
		{"teacher subjects", &rows.TeacherSubject, `SELECT teacher_id, subject_id FROM teacher_subjects ORDER BY teacher_id, subject_id`},
		{"teacher unavailability", &rows.Unavailability, `SELECT teacher_id, day_of_week, period, reason FROM teacher_unavailability ORDER BY teacher_id, day_of_week, period`},
		{"rooms", &rows.Rooms, `SELECT id, name, room_type, capacity, facilities, created_at FROM rooms ORDER BY id`},
		{"school periods", &rows.Periods, `SELECT day_of_week, period, kind, label FROM school_periods ORDER BY day_of_week, period`},
	}
	for _, q := range queries {
		if err := r.db.SelectContext(ctx, q.dest, q.query); err != nil {
			return nil, fmt.Errorf("list %s: %w", q.label, err)
		}
	}

	input := BuildCatalogInput(rows)
	return &input, nil
}

func missingSections(requested []string, found []models.ClassSection) []string {
	seen := make(map[string]bool, len(found))
	for _, s := range found {
		seen[s.ID] = true
	}
	var missing []string
	for _, id := range requested {
		if !seen[id] {
			missing = append(missing, id)
			seen[id] = true
		}
	}
	sort.Strings(missing)
	return missing
}

// BuildCatalogInput maps catalog rows onto the scheduler registry input.
// Grid cells absent from school_periods are treated as reserved.
func BuildCatalogInput(rows CatalogRows) scheduler.CatalogInput {
	in := scheduler.CatalogInput{}

	teacherIdx := make(map[string]int, len(rows.Teachers))
	for _, t := range rows.Teachers {
		teacherIdx[t.ID] = len(in.Teachers)
		in.Teachers = append(in.Teachers, scheduler.Teacher{
			ID:                t.ID,
			Name:              t.FullName,
			Department:        t.Department.String,
			MaxPeriodsPerWeek: t.MaxPeriodsPerWeek,
		})
	}
	for _, link := range rows.TeacherSubject {
		if i, ok := teacherIdx[link.TeacherID]; ok {
			in.Teachers[i].Subjects = append(in.Teachers[i].Subjects, link.SubjectID)
		}
	}
	for _, u := range rows.Unavailability {
		if i, ok := teacherIdx[u.TeacherID]; ok {
			in.Teachers[i].Unavailable = append(in.Teachers[i].Unavailable, scheduler.PeriodSlot{Day: scheduler.Day(u.DayOfWeek), Period: u.Period})
		}
	}

	for _, room := range rows.Rooms {
		in.Rooms = append(in.Rooms, scheduler.Room{
			ID:         room.ID,
			Name:       room.Name,
			Type:       scheduler.RoomType(strings.ToLower(room.RoomType)),
			Capacity:   room.Capacity,
			Facilities: []string(room.Facilities),
		})
	}

	for _, s := range rows.Subjects {
		in.Subjects = append(in.Subjects, scheduler.Subject{
			ID:                         s.ID,
			Name:                       s.Name,
			Code:                       s.Code,
			RequiresRoomType:           scheduler.RoomType(strings.ToLower(s.RequiresRoomType.String)),
			RequiresConsecutivePeriods: s.ConsecutivePeriods,
			RequiredFacilities:         []string(s.RequiredFacilities),
		})
	}

	sectionIdx := make(map[string]int, len(rows.Sections))
	for _, s := range rows.Sections {
		sectionIdx[s.ID] = len(in.Sections)
		in.Sections = append(in.Sections, scheduler.Section{
			ID:        s.ID,
			ClassName: s.ClassName,
			Label:     s.Label,
			Strength:  s.Strength,
			Demands:   map[string]int{},
		})
	}
	for _, load := range rows.Loads {
		if i, ok := sectionIdx[load.SectionID]; ok && load.PeriodsPerWeek > 0 {
			in.Sections[i].Demands[load.SubjectID] += load.PeriodsPerWeek
		}
	}

	in.Template = buildTemplate(rows.Periods)
	return in
}

func buildTemplate(periods []models.SchoolPeriod) scheduler.PeriodTemplate {
	template := scheduler.PeriodTemplate{}
	days := make(map[int]bool)
	teaching := make(map[scheduler.PeriodSlot]bool)
	for _, p := range periods {
		days[p.DayOfWeek] = true
		if p.Period > template.PeriodsPerDay {
			template.PeriodsPerDay = p.Period
		}
		if p.Kind != models.SchoolPeriodReserved {
			teaching[scheduler.PeriodSlot{Day: scheduler.Day(p.DayOfWeek), Period: p.Period}] = true
		}
	}
	for day := range days {
		template.Days = append(template.Days, scheduler.Day(day))
	}
	sort.Slice(template.Days, func(i, j int) bool { return template.Days[i] < template.Days[j] })

	for _, day := range template.Days {
		for period := 1; period <= template.PeriodsPerDay; period++ {
			slot := scheduler.PeriodSlot{Day: day, Period: period}
			if !teaching[slot] {
				template.Reserved = append(template.Reserved, slot)
			}
		}
	}
	return template
}
