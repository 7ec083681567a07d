package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-scheduler-api/internal/models"
)

func TestTimetableSlotRepositoryInsertBatch(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTimetableSlotRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_slots")).
		WithArgs(sqlmock.AnyArg(), "tt-1", "X1", "PHY", "T02", "LAB-1", 1, 1, "X1@MON-1", false, false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_slots")).
		WithArgs(sqlmock.AnyArg(), "tt-1", "X1", "PHY", "T02", "LAB-1", 1, 2, "X1@MON-1", false, false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	slots := []models.TimetableSlot{
		{TimetableID: "tt-1", SectionID: "X1", SubjectID: "PHY", TeacherID: "T02", RoomID: "LAB-1", DayOfWeek: 1, Period: 1, BlockID: "X1@MON-1"},
		{TimetableID: "tt-1", SectionID: "X1", SubjectID: "PHY", TeacherID: "T02", RoomID: "LAB-1", DayOfWeek: 1, Period: 2, BlockID: "X1@MON-1"},
	}
	require.NoError(t, repo.InsertBatch(context.Background(), nil, slots))
	assert.NotEmpty(t, slots[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableSlotRepositoryInsertBatchEmpty(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTimetableSlotRepository(db)

	require.NoError(t, repo.InsertBatch(context.Background(), nil, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableSlotRepositoryListByTimetable(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTimetableSlotRepository(db)

	rows := sqlmock.NewRows([]string{"id", "timetable_id", "section_id", "subject_id", "teacher_id", "room_id", "day_of_week", "period", "block_id", "locked", "forced", "created_at"}).
		AddRow("slot-1", "tt-1", "X1", "MATH", "T01", "R101", 1, 1, "X1@MON-1", true, false, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM timetable_slots WHERE timetable_id = $1 ORDER BY section_id ASC, day_of_week ASC, period ASC")).
		WithArgs("tt-1").
		WillReturnRows(rows)

	slots, err := repo.ListByTimetable(context.Background(), "tt-1")
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.True(t, slots[0].Locked)
	assert.NoError(t, mock.ExpectationsWereMet())
}
