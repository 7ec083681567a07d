package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-scheduler-api/internal/dto"
	"github.com/noah-isme/sma-scheduler-api/internal/models"
	"github.com/noah-isme/sma-scheduler-api/internal/scheduler"
	appErrors "github.com/noah-isme/sma-scheduler-api/pkg/errors"
)

func TestTimetableServicePersistDraft(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	store := &timetableStoreStub{}
	slots := &timetableSlotStoreStub{}
	svc := NewTimetableService(store, slots, tx, nil, nil, nil, TimetableQueueConfig{})

	mock.ExpectBegin()
	mock.ExpectCommit()

	record, err := svc.Persist(context.Background(), persistJobFixture(false))
	require.NoError(t, err)
	assert.Equal(t, models.TimetableStatusDraft, record.Status)
	assert.Equal(t, "SA", record.ScopeKey)
	assert.Equal(t, int64(3), record.Revision)
	assert.JSONEq(t, `{"assignments":2,"violations":1}`, stripAcceptedAt(t, record.Meta))

	require.Len(t, slots.inserted, 2)
	assert.Equal(t, record.ID, slots.inserted[0].TimetableID)
	assert.Equal(t, 1, slots.inserted[0].DayOfWeek)
	assert.Equal(t, 2, slots.inserted[1].Period)
	assert.True(t, slots.inserted[1].Locked)
	assert.Empty(t, store.statusUpdates)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableServicePersistPublishArchivesPrevious(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	store := &timetableStoreStub{byScope: []models.Timetable{
		{ID: "tt-2", Version: 2, Status: models.TimetableStatusPublished},
		{ID: "tt-1", Version: 1, Status: models.TimetableStatusArchived},
	}}
	svc := NewTimetableService(store, &timetableSlotStoreStub{}, tx, nil, nil, nil, TimetableQueueConfig{})

	mock.ExpectBegin()
	mock.ExpectCommit()

	record, err := svc.Persist(context.Background(), persistJobFixture(true))
	require.NoError(t, err)
	assert.Equal(t, models.TimetableStatusPublished, record.Status)
	assert.Equal(t, 3, record.Version)
	assert.Equal(t, map[string]models.TimetableStatus{"tt-2": models.TimetableStatusArchived}, store.statusUpdates)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableServicePersistRollsBackOnSlotFailure(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	svc := NewTimetableService(&timetableStoreStub{}, &timetableSlotStoreStub{err: errors.New("duplicate key")}, tx, nil, nil, nil, TimetableQueueConfig{})

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Persist(context.Background(), persistJobFixture(false))
	assertAppError(t, err, appErrors.ErrInternal.Code, http.StatusInternalServerError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableServiceQueueRunsPersist(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	slots := &timetableSlotStoreStub{done: make(chan struct{})}
	svc := NewTimetableService(&timetableStoreStub{}, slots, tx, NewMetricsService(), nil, nil, TimetableQueueConfig{Workers: 1, BufferSize: 1})

	_, err := svc.Enqueue(persistJobFixture(false))
	assertAppError(t, err, appErrors.ErrServiceUnavailable.Code, http.StatusServiceUnavailable)

	mock.ExpectBegin()
	mock.ExpectCommit()

	svc.Start(context.Background())
	defer svc.Stop()

	jobID, err := svc.Enqueue(persistJobFixture(false))
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)

	select {
	case <-slots.done:
	case <-time.After(2 * time.Second):
		t.Fatal("persist job did not run")
	}
	assert.Len(t, slots.snapshot(), 2)
}

func TestTimetableServiceListAndGet(t *testing.T) {
	store := &timetableStoreStub{
		byScope: []models.Timetable{{ID: "tt-1", ScopeKey: "SA,SB", Version: 1}},
		byID:    map[string]models.Timetable{"tt-1": {ID: "tt-1", ScopeKey: "SA,SB", Version: 1}},
	}
	slots := &timetableSlotStoreStub{listed: []models.TimetableSlot{{ID: "slot-1", TimetableID: "tt-1"}}}
	svc := NewTimetableService(store, slots, nil, nil, nil, nil, TimetableQueueConfig{})

	list, err := svc.List(context.Background(), dto.TimetableQuery{SectionIDs: []string{"SB", "SA"}})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "SA,SB", store.lastScope)

	_, err = svc.List(context.Background(), dto.TimetableQuery{})
	assertAppError(t, err, appErrors.ErrValidation.Code, http.StatusBadRequest)

	resp, err := svc.Get(context.Background(), "tt-1")
	require.NoError(t, err)
	assert.Equal(t, "tt-1", resp.Timetable.ID)
	assert.Len(t, resp.Slots, 1)

	_, err = svc.Get(context.Background(), "tt-9")
	assertAppError(t, err, appErrors.ErrNotFound.Code, http.StatusNotFound)
}

func persistJobFixture(publish bool) PersistTimetableJob {
	return PersistTimetableJob{
		SessionID:  "session-1",
		Revision:   3,
		SectionIDs: []string{"SA"},
		ScopeKey:   "SA",
		Publish:    publish,
		Violations: 1,
		Assignments: []scheduler.Assignment{
			{ID: "SA@MON-1", SectionID: "SA", SubjectID: "ENG", TeacherID: "T-ENG", RoomID: "R1", Slot: scheduler.PeriodSlot{Day: scheduler.Monday, Period: 1}, BlockID: "b1"},
			{ID: "SA@MON-2", SectionID: "SA", SubjectID: "MATH", TeacherID: "T-MATH", RoomID: "R1", Slot: scheduler.PeriodSlot{Day: scheduler.Monday, Period: 2}, BlockID: "b2", Locked: true},
		},
	}
}

func stripAcceptedAt(t *testing.T, raw []byte) string {
	t.Helper()
	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &meta))
	delete(meta, "acceptedAt")
	out, err := json.Marshal(meta)
	require.NoError(t, err)
	return string(out)
}

type txProviderMock struct {
	db *sqlx.DB
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlx.NewDb(db, "sqlmock")}, mock
}

func (m *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return m.db.BeginTxx(ctx, opts)
}

type timetableStoreStub struct {
	byScope       []models.Timetable
	byID          map[string]models.Timetable
	lastScope     string
	created       []models.Timetable
	statusUpdates map[string]models.TimetableStatus
}

func (s *timetableStoreStub) CreateVersioned(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable) error {
	timetable.ID = "tt-new"
	timetable.Version = len(s.byScope) + 1
	s.created = append(s.created, *timetable)
	return nil
}

func (s *timetableStoreStub) ListByScope(ctx context.Context, scopeKey string) ([]models.Timetable, error) {
	s.lastScope = scopeKey
	return s.byScope, nil
}

func (s *timetableStoreStub) FindByID(ctx context.Context, id string) (*models.Timetable, error) {
	timetable, ok := s.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &timetable, nil
}

func (s *timetableStoreStub) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.TimetableStatus) error {
	if s.statusUpdates == nil {
		s.statusUpdates = make(map[string]models.TimetableStatus)
	}
	s.statusUpdates[id] = status
	return nil
}

type timetableSlotStoreStub struct {
	mu       sync.Mutex
	inserted []models.TimetableSlot
	listed   []models.TimetableSlot
	err      error
	done     chan struct{}
}

func (s *timetableSlotStoreStub) InsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.TimetableSlot) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	s.inserted = append(s.inserted, slots...)
	s.mu.Unlock()
	if s.done != nil {
		close(s.done)
	}
	return nil
}

func (s *timetableSlotStoreStub) ListByTimetable(ctx context.Context, timetableID string) ([]models.TimetableSlot, error) {
	return s.listed, nil
}

func (s *timetableSlotStoreStub) snapshot() []models.TimetableSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.TimetableSlot(nil), s.inserted...)
}
