package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/noah-isme/sma-scheduler-api/internal/dto"
	"github.com/noah-isme/sma-scheduler-api/internal/scheduler"
	appErrors "github.com/noah-isme/sma-scheduler-api/pkg/errors"
	"github.com/noah-isme/sma-scheduler-api/pkg/export"
)

const reservedLabel = "Break"

// ExportPDF renders the weekly grid of one section and returns the document with a download name.
func (s *SchedulerService) ExportPDF(ctx context.Context, id string, query dto.TimetableExportQuery) ([]byte, string, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export query")
	}
	session, err := s.session(id)
	if err != nil {
		return nil, "", err
	}
	catalog := session.Catalog()
	section, ok := catalog.Section(query.SectionID)
	if !ok {
		return nil, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("section %s is not in the catalog", query.SectionID))
	}

	schedule, revision := session.Snapshot()
	grid := sectionGrid(catalog, section, schedule)
	grid.Subtitle = fmt.Sprintf("Revision %d", revision)
	for _, v := range session.Analyze() {
		if v.Severity != scheduler.SeverityHigh || !containsID(v.Entities.SectionIDs, section.ID) {
			continue
		}
		grid.Notes = append(grid.Notes, "! "+v.Message)
	}

	content, err := s.exporter.Render(grid)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render timetable")
	}
	filename := fmt.Sprintf("timetable-%s-r%d.pdf", strings.ReplaceAll(section.DisplayName(), " ", "_"), revision)
	return content, filename, nil
}

func sectionGrid(catalog *scheduler.Catalog, section *scheduler.Section, schedule *scheduler.Schedule) export.Grid {
	days := catalog.Days()
	grid := export.Grid{Title: "Timetable " + section.DisplayName()}
	for _, day := range days {
		grid.Columns = append(grid.Columns, day.String())
	}

	for period := 1; period <= catalog.PeriodsPerDay(); period++ {
		row := export.GridRow{Label: fmt.Sprintf("P%d", period)}
		allReserved := true
		for _, day := range days {
			slot := scheduler.PeriodSlot{Day: day, Period: period}
			if !catalog.IsReserved(slot) {
				allReserved = false
			}
			row.Cells = append(row.Cells, gridCell(catalog, section.ID, slot, schedule))
		}
		if allReserved {
			row.Reserved = reservedLabel
			row.Cells = nil
		}
		grid.Rows = append(grid.Rows, row)
	}
	return grid
}

func gridCell(catalog *scheduler.Catalog, sectionID string, slot scheduler.PeriodSlot, schedule *scheduler.Schedule) export.Cell {
	if catalog.IsReserved(slot) {
		return export.Cell{Lines: []string{reservedLabel}, Muted: true}
	}
	a, ok := schedule.At(sectionID, slot)
	if !ok {
		return export.Cell{}
	}

	subject := a.SubjectID
	if s, ok := catalog.Subject(a.SubjectID); ok && s.Name != "" {
		subject = s.Name
	}
	teacher := a.TeacherID
	if t, ok := catalog.Teacher(a.TeacherID); ok && t.Name != "" {
		teacher = t.Name
	}
	room := a.RoomID
	if r, ok := catalog.Room(a.RoomID); ok && r.Name != "" {
		room = r.Name
	}
	if a.Locked {
		subject += " *"
	}
	return export.Cell{Lines: []string{subject, teacher, room}, Muted: a.Forced}
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
