package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-scheduler-api/internal/dto"
	"github.com/noah-isme/sma-scheduler-api/internal/models"
	"github.com/noah-isme/sma-scheduler-api/internal/scheduler"
	appErrors "github.com/noah-isme/sma-scheduler-api/pkg/errors"
	"github.com/noah-isme/sma-scheduler-api/pkg/jobs"
)

const persistJobType = "timetable.persist"

type timetableStore interface {
	CreateVersioned(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable) error
	ListByScope(ctx context.Context, scopeKey string) ([]models.Timetable, error)
	FindByID(ctx context.Context, id string) (*models.Timetable, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.TimetableStatus) error
}

type timetableSlotStore interface {
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.TimetableSlot) error
	ListByTimetable(ctx context.Context, timetableID string) ([]models.TimetableSlot, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// PersistTimetableJob carries an accepted schedule to the background writer.
type PersistTimetableJob struct {
	SessionID   string
	Revision    uint64
	SectionIDs  []string
	ScopeKey    string
	Publish     bool
	Assignments []scheduler.Assignment
	Violations  int
}

// TimetableQueueConfig sizes the persistence worker pool.
type TimetableQueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

// TimetableService stores accepted schedules as versioned timetables.
type TimetableService struct {
	timetables timetableStore
	slots      timetableSlotStore
	tx         txProvider
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	queue      *jobs.Queue
}

// NewTimetableService wires the timetable store and its persistence queue.
func NewTimetableService(
	timetables timetableStore,
	slots timetableSlotStore,
	tx txProvider,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg TimetableQueueConfig,
) *TimetableService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &TimetableService{
		timetables: timetables,
		slots:      slots,
		tx:         tx,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
	}
	svc.queue = jobs.NewQueue("timetable-persist", svc.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
		OnResult: func(job jobs.Job, err error) {
			metrics.RecordPersistJob(err == nil)
		},
	})
	return svc
}

// Start launches the persistence workers.
func (s *TimetableService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop halts the workers. Jobs still buffered are dropped.
func (s *TimetableService) Stop() {
	s.queue.Stop()
}

// Enqueue hands an accepted schedule to the background writer and returns the job id.
func (s *TimetableService) Enqueue(job PersistTimetableJob) (string, error) {
	id := uuid.NewString()
	err := s.queue.TryEnqueue(jobs.Job{ID: id, Type: persistJobType, Payload: job})
	if err != nil {
		if errors.Is(err, jobs.ErrQueueFull) {
			return "", appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "timetable writer is busy, retry later")
		}
		return "", appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "timetable writer is not running")
	}
	return id, nil
}

func (s *TimetableService) handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(PersistTimetableJob)
	if !ok {
		return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.ID)
	}
	timetable, err := s.Persist(ctx, payload)
	if err != nil {
		return err
	}
	s.logger.Info("timetable stored",
		zap.String("job_id", job.ID),
		zap.String("timetable_id", timetable.ID),
		zap.String("scope_key", timetable.ScopeKey),
		zap.Int("version", timetable.Version),
		zap.String("status", string(timetable.Status)),
	)
	return nil
}

// Persist writes the timetable and its slots in one transaction. Publishing archives
// the previously published version of the same scope.
func (s *TimetableService) Persist(ctx context.Context, job PersistTimetableJob) (*models.Timetable, error) {
	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}

	var previous []models.Timetable
	if job.Publish {
		list, listErr := s.timetables.ListByScope(ctx, job.ScopeKey)
		if listErr != nil {
			return nil, appErrors.Wrap(listErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load previous timetables")
		}
		previous = list
	}

	metaBytes, err := json.Marshal(map[string]any{
		"assignments": len(job.Assignments),
		"violations":  job.Violations,
		"acceptedAt":  time.Now().UTC(),
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode timetable metadata")
	}

	start := time.Now()
	defer func() { s.metrics.ObserveDBQuery("timetable_persist", time.Since(start)) }()

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	status := models.TimetableStatusDraft
	if job.Publish {
		status = models.TimetableStatusPublished
	}
	record := &models.Timetable{
		ScopeKey:   job.ScopeKey,
		SectionIDs: job.SectionIDs,
		Status:     status,
		SessionID:  job.SessionID,
		Revision:   int64(job.Revision),
		Meta:       types.JSONText(metaBytes),
	}
	if err = s.timetables.CreateVersioned(ctx, tx, record); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create timetable")
		return nil, err
	}

	for _, prior := range previous {
		if prior.Status != models.TimetableStatusPublished {
			continue
		}
		if err = s.timetables.UpdateStatus(ctx, tx, prior.ID, models.TimetableStatusArchived); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive previous timetable")
			return nil, err
		}
	}

	slots := make([]models.TimetableSlot, 0, len(job.Assignments))
	for _, a := range job.Assignments {
		slots = append(slots, models.TimetableSlot{
			TimetableID: record.ID,
			SectionID:   a.SectionID,
			SubjectID:   a.SubjectID,
			TeacherID:   a.TeacherID,
			RoomID:      a.RoomID,
			DayOfWeek:   int(a.Slot.Day),
			Period:      a.Slot.Period,
			BlockID:     a.BlockID,
			Locked:      a.Locked,
			Forced:      a.Forced,
		})
	}
	if err = s.slots.InsertBatch(ctx, tx, slots); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist timetable slots")
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit timetable transaction")
		return nil, err
	}
	return record, nil
}

// List returns every stored version for the given sections, newest first.
func (s *TimetableService) List(ctx context.Context, query dto.TimetableQuery) ([]models.Timetable, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable query")
	}
	timetables, err := s.timetables.ListByScope(ctx, ScopeKey(query.SectionIDs))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetables")
	}
	if timetables == nil {
		timetables = []models.Timetable{}
	}
	return timetables, nil
}

// Get loads a stored timetable with its slots.
func (s *TimetableService) Get(ctx context.Context, id string) (*dto.TimetableResponse, error) {
	timetable, err := s.timetables.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	slots, err := s.slots.ListByTimetable(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable slots")
	}
	if slots == nil {
		slots = []models.TimetableSlot{}
	}
	return &dto.TimetableResponse{Timetable: *timetable, Slots: slots}, nil
}
