package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-scheduler-api/internal/dto"
	"github.com/noah-isme/sma-scheduler-api/internal/scheduler"
	appErrors "github.com/noah-isme/sma-scheduler-api/pkg/errors"
	"github.com/noah-isme/sma-scheduler-api/pkg/export"
)

type catalogLoader interface {
	Load(ctx context.Context, sectionIDs []string) (*scheduler.CatalogInput, error)
}

type timetablePersister interface {
	Enqueue(job PersistTimetableJob) (string, error)
}

// Manual placement outcomes used as metric labels.
const (
	placementPlaced   = "placed"
	placementForced   = "forced"
	placementConflict = "conflict"
	placementRejected = "rejected"
)

// SchedulerConfig governs session lifetime and the default constraint set.
type SchedulerConfig struct {
	SessionTTL      time.Duration
	ReaperSpec      string
	MaxSessions     int
	GenerateTimeout time.Duration
	Defaults        scheduler.Config
}

// SchedulerService owns the registry of open scheduling sessions and maps
// scheduler outcomes onto the HTTP error contract.
type SchedulerService struct {
	catalogs  catalogLoader
	persister timetablePersister
	cache     *CacheService
	metrics   *MetricsService
	exporter  *export.PDFExporter
	validator *validator.Validate
	logger    *zap.Logger
	cfg       SchedulerConfig

	now   func() time.Time
	newID func() string

	mu       sync.RWMutex
	sessions map[string]*scheduler.Session

	cronMu sync.Mutex
	cron   *cron.Cron
}

// ConstraintDefaults builds the service-wide constraint configuration from deployment settings.
func ConstraintDefaults(coreSubjects []string, weights map[string]float64, disabled []string) (scheduler.Config, error) {
	cfg := scheduler.DefaultConfig()
	cfg.CoreSubjects = coreSubjects
	for id, weight := range weights {
		setting, ok := cfg.Constraints[id]
		if !ok {
			return scheduler.Config{}, fmt.Errorf("unknown constraint %q in weights", id)
		}
		setting.Weight = weight
		cfg.Constraints[id] = setting
	}
	for _, id := range disabled {
		setting, ok := cfg.Constraints[id]
		if !ok {
			return scheduler.Config{}, fmt.Errorf("unknown constraint %q in disabled list", id)
		}
		setting.Enabled = false
		cfg.Constraints[id] = setting
	}
	if _, err := scheduler.NewConstraintSet(cfg); err != nil {
		return scheduler.Config{}, err
	}
	return cfg, nil
}

// NewSchedulerService wires scheduler dependencies. catalogs and persister may be nil
// when the database is disabled.
func NewSchedulerService(
	catalogs catalogLoader,
	persister timetablePersister,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg SchedulerConfig,
) *SchedulerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 2 * time.Hour
	}
	if cfg.ReaperSpec == "" {
		cfg.ReaperSpec = "@every 1m"
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 64
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = 2 * time.Minute
	}
	if cfg.Defaults.Constraints == nil {
		cfg.Defaults = scheduler.DefaultConfig()
	}
	return &SchedulerService{
		catalogs:  catalogs,
		persister: persister,
		cache:     cache,
		metrics:   metrics,
		exporter:  export.NewPDFExporter(),
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
		sessions:  make(map[string]*scheduler.Session),
	}
}

// Start schedules the idle session reaper.
func (s *SchedulerService) Start() error {
	s.cronMu.Lock()
	defer s.cronMu.Unlock()
	if s.cron != nil {
		return nil
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(s.cfg.ReaperSpec, func() { s.Reap() }); err != nil {
		return fmt.Errorf("schedule session reaper %q: %w", s.cfg.ReaperSpec, err)
	}
	c.Start()
	s.cron = c
	s.logger.Info("session reaper started", zap.String("spec", s.cfg.ReaperSpec), zap.Duration("ttl", s.cfg.SessionTTL))
	return nil
}

// Stop halts the reaper and cancels every running generation.
func (s *SchedulerService) Stop() {
	s.cronMu.Lock()
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.cron = nil
	}
	s.cronMu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, session := range s.sessions {
		session.Cancel()
	}
}

// Reap closes sessions idle for longer than the TTL. Sessions with an active run are kept.
func (s *SchedulerService) Reap() int {
	cutoff := s.now().Add(-s.cfg.SessionTTL)

	s.mu.Lock()
	var evicted []string
	for id, session := range s.sessions {
		if session.Running() || session.LastActive().After(cutoff) {
			continue
		}
		delete(s.sessions, id)
		evicted = append(evicted, id)
	}
	remaining := len(s.sessions)
	s.mu.Unlock()

	if len(evicted) == 0 {
		return 0
	}
	sort.Strings(evicted)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, id := range evicted {
		s.invalidate(ctx, id)
	}
	s.metrics.RecordEvictions(len(evicted))
	s.metrics.SetActiveSessions(remaining)
	s.logger.Info("evicted idle scheduling sessions", zap.Strings("session_ids", evicted), zap.Int("remaining", remaining))
	return len(evicted)
}

// SessionCount reports the number of open sessions.
func (s *SchedulerService) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// CreateSession opens a session over an inline catalog or one read from the catalog store.
func (s *SchedulerService) CreateSession(ctx context.Context, req dto.CreateSessionRequest) (*dto.SessionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}

	constraints, err := s.constraintSet(req)
	if err != nil {
		return nil, err
	}

	input, err := s.loadCatalog(ctx, req)
	if err != nil {
		return nil, err
	}
	catalog, err := scheduler.LoadCatalog(*input)
	if err != nil {
		return nil, mapSchedulerError(err, "catalog cannot be scheduled")
	}
	for _, id := range req.SectionIDs {
		if _, ok := catalog.Section(id); !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("section %s is not in the catalog", id))
		}
	}

	s.mu.Lock()
	if len(s.sessions) >= s.cfg.MaxSessions {
		s.mu.Unlock()
		return nil, appErrors.Clone(appErrors.ErrSessionLimit, fmt.Sprintf("at most %d scheduling sessions may be open", s.cfg.MaxSessions))
	}
	session := scheduler.NewSession(s.newID(), catalog, constraints, req.SectionIDs, s.now())
	s.sessions[session.ID()] = session
	count := len(s.sessions)
	s.mu.Unlock()

	s.metrics.SetActiveSessions(count)
	s.logger.Info("scheduling session opened",
		zap.String("session_id", session.ID()),
		zap.Int("sections", len(catalog.SectionIDs())),
		zap.Strings("scope", session.Scope()),
	)
	return describeSession(session), nil
}

func (s *SchedulerService) constraintSet(req dto.CreateSessionRequest) (*scheduler.ConstraintSet, error) {
	cfg := scheduler.Config{
		Constraints:  make(map[string]scheduler.ConstraintSetting, len(s.cfg.Defaults.Constraints)),
		CoreSubjects: s.cfg.Defaults.CoreSubjects,
	}
	for id, setting := range s.cfg.Defaults.Constraints {
		cfg.Constraints[id] = setting
	}
	for id, override := range req.Constraints {
		if !scheduler.IsKnownConstraint(id) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown constraint %q", id))
		}
		setting, ok := cfg.Constraints[id]
		if !ok {
			setting = scheduler.ConstraintSetting{Enabled: true}
		}
		if override.Enabled != nil {
			setting.Enabled = *override.Enabled
		}
		if override.Weight != nil {
			setting.Weight = *override.Weight
		}
		cfg.Constraints[id] = setting
	}
	if len(req.CoreSubjects) > 0 {
		cfg.CoreSubjects = req.CoreSubjects
	}

	cs, err := scheduler.NewConstraintSet(cfg)
	if err != nil {
		return nil, mapSchedulerError(err, "invalid constraint configuration")
	}
	return cs, nil
}

func (s *SchedulerService) loadCatalog(ctx context.Context, req dto.CreateSessionRequest) (*scheduler.CatalogInput, error) {
	if req.Catalog != nil {
		return req.Catalog, nil
	}
	if s.catalogs == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "catalog is required when no catalog store is configured")
	}
	start := time.Now()
	input, err := s.catalogs.Load(ctx, req.SectionIDs)
	s.metrics.ObserveDBQuery("catalog_load", time.Since(start))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "requested sections were not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load catalog")
	}
	return input, nil
}

func (s *SchedulerService) session(id string) (*scheduler.Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrSessionNotFound, fmt.Sprintf("scheduling session %s not found", id))
	}
	session.Touch(s.now())
	return session, nil
}

// CloseSession cancels any run and forgets the session.
func (s *SchedulerService) CloseSession(ctx context.Context, id string) error {
	s.mu.Lock()
	session, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	count := len(s.sessions)
	s.mu.Unlock()
	if !ok {
		return appErrors.Clone(appErrors.ErrSessionNotFound, fmt.Sprintf("scheduling session %s not found", id))
	}

	session.Cancel()
	s.invalidate(ctx, id)
	s.metrics.SetActiveSessions(count)
	s.logger.Info("scheduling session closed", zap.String("session_id", id))
	return nil
}

// invalidate drops the cached views of a session. Views are keyed by revision,
// so a failure only leaves unreachable entries behind.
func (s *SchedulerService) invalidate(ctx context.Context, id string) {
	if err := s.cache.InvalidateSession(ctx, id); err != nil {
		s.logger.Warn("session cache invalidation failed", zap.String("session_id", id), zap.Error(err))
	}
}

// Snapshot returns the current schedule of a session.
func (s *SchedulerService) Snapshot(ctx context.Context, id string) (*dto.ScheduleResponse, error) {
	session, err := s.session(id)
	if err != nil {
		return nil, err
	}
	schedule, revision := session.Snapshot()
	return &dto.ScheduleResponse{SessionID: id, Revision: revision, Running: session.Running(), Schedule: schedule}, nil
}

// Generate runs the allocation engine for the session. The run is bounded by the
// configured timeout and stops early when ctx is cancelled.
func (s *SchedulerService) Generate(ctx context.Context, id string, req dto.GenerateRequest) (*dto.GenerateResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generate payload")
	}
	session, err := s.session(id)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.GenerateTimeout)
	defer cancel()

	start := time.Now()
	result, err := session.Generate(runCtx, scheduler.GenerateRequest{SectionIDs: req.SectionIDs, SubjectIDs: req.SubjectIDs})
	duration := time.Since(start)
	if err != nil {
		if !errors.Is(err, scheduler.ErrSessionBusy) {
			s.metrics.ObserveGeneration(GenerationFailed, duration, scheduler.GenerateStats{})
		}
		return nil, mapSchedulerError(err, "generation failed")
	}

	outcome := GenerationCompleted
	if result.Cancelled {
		outcome = GenerationCancelled
	}
	s.metrics.ObserveGeneration(outcome, duration, result.Stats)
	s.metrics.RecordViolations(result.Violations)
	s.invalidate(ctx, id)

	revision := session.Revision()
	s.logger.Info("generation finished",
		zap.String("session_id", id),
		zap.String("outcome", outcome),
		zap.Uint64("revision", revision),
		zap.Int("placed", result.Stats.Placed),
		zap.Int("unplaced", result.Stats.Unplaced),
		zap.Int("pending", result.Stats.Pending),
		zap.Int("violations", len(result.Violations)),
		zap.Duration("duration", duration),
	)

	return &dto.GenerateResponse{
		Schedule:   result.Schedule,
		Violations: result.Violations,
		Stats:      result.Stats,
		Cancelled:  result.Cancelled,
		Revision:   revision,
		DurationMs: duration.Milliseconds(),
	}, nil
}

// Cancel stops the session's active run. It reports whether a run was signalled.
func (s *SchedulerService) Cancel(ctx context.Context, id string) (bool, error) {
	session, err := s.session(id)
	if err != nil {
		return false, err
	}
	return session.Cancel(), nil
}

// Place puts one lesson block into the session schedule.
func (s *SchedulerService) Place(ctx context.Context, id string, req dto.PlaceRequest) (*dto.PlaceResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid placement payload")
	}
	session, err := s.session(id)
	if err != nil {
		return nil, err
	}

	result, err := session.PlaceOne(scheduler.PlaceRequest{
		SectionID:     req.SectionID,
		SubjectID:     req.SubjectID,
		PreferredSlot: req.PreferredSlot,
		TeacherID:     req.TeacherID,
		RoomID:        req.RoomID,
		Strict:        req.Strict,
		Lock:          req.Lock,
		Force:         req.Force,
	})
	if err != nil {
		var conflict *scheduler.ConflictError
		if errors.As(err, &conflict) {
			s.metrics.RecordPlacement(placementConflict)
		} else {
			s.metrics.RecordPlacement(placementRejected)
		}
		return nil, mapSchedulerError(err, "placement failed")
	}

	if req.Force {
		s.metrics.RecordPlacement(placementForced)
	} else {
		s.metrics.RecordPlacement(placementPlaced)
	}
	s.invalidate(ctx, id)
	return &dto.PlaceResponse{
		Assignments:       result.Assignments,
		Penalty:           result.Penalty,
		PreferredConflict: dto.NewConflictDetail(result.PreferredConflict),
		Revision:          session.Revision(),
	}, nil
}

// Remove deletes an assignment and the rest of its block. Unknown ids succeed.
func (s *SchedulerService) Remove(ctx context.Context, id, assignmentID string) error {
	session, err := s.session(id)
	if err != nil {
		return err
	}
	removed, err := session.Remove(assignmentID)
	if err != nil {
		return mapSchedulerError(err, "remove failed")
	}
	if len(removed) > 0 {
		s.invalidate(ctx, id)
	}
	return nil
}

// Import force-places a batch of assignments, all or nothing.
func (s *SchedulerService) Import(ctx context.Context, id string, req dto.ImportRequest) (*dto.ImportResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid import payload")
	}
	session, err := s.session(id)
	if err != nil {
		return nil, err
	}

	batch := make([]scheduler.Assignment, 0, len(req.Assignments))
	for _, item := range req.Assignments {
		batch = append(batch, scheduler.Assignment{
			SectionID: item.SectionID,
			SubjectID: item.SubjectID,
			TeacherID: item.TeacherID,
			RoomID:    item.RoomID,
			Slot:      item.Slot,
			BlockID:   item.BlockID,
			Locked:    item.Locked,
		})
	}
	imported, err := session.Import(batch)
	if err != nil {
		return nil, mapSchedulerError(err, "import failed")
	}
	s.invalidate(ctx, id)
	return &dto.ImportResponse{Assignments: imported, Revision: session.Revision()}, nil
}

// Conflicts reports every violation in the session schedule.
func (s *SchedulerService) Conflicts(ctx context.Context, id string) (*dto.ConflictsResponse, error) {
	session, err := s.session(id)
	if err != nil {
		return nil, err
	}
	violations := session.Analyze()
	summary := map[scheduler.Severity]int{
		scheduler.SeverityHigh:   0,
		scheduler.SeverityMedium: 0,
		scheduler.SeverityLow:    0,
	}
	for _, v := range violations {
		summary[v.Severity]++
	}
	s.metrics.RecordViolations(violations)
	return &dto.ConflictsResponse{Revision: session.Revision(), Summary: summary, Violations: violations}, nil
}

// TeacherLoad returns per-teacher workload, cached per session revision.
func (s *SchedulerService) TeacherLoad(ctx context.Context, id string) (*dto.TeacherLoadResponse, bool, error) {
	session, err := s.session(id)
	if err != nil {
		return nil, false, err
	}
	key := teacherLoadCacheKey(id, session.Revision())
	resp, hit, err := remember(ctx, s.cache, key, func() (*dto.TeacherLoadResponse, error) {
		loads, revision := session.TeacherLoads()
		return &dto.TeacherLoadResponse{Revision: revision, Teachers: loads}, nil
	})
	return resp, hit, err
}

// RoomUtilization returns per-room usage, cached per session revision.
func (s *SchedulerService) RoomUtilization(ctx context.Context, id string) (*dto.RoomUtilizationResponse, bool, error) {
	session, err := s.session(id)
	if err != nil {
		return nil, false, err
	}
	key := roomUsageCacheKey(id, session.Revision())
	resp, hit, err := remember(ctx, s.cache, key, func() (*dto.RoomUtilizationResponse, error) {
		rooms, revision := session.RoomUtilization()
		return &dto.RoomUtilizationResponse{Revision: revision, Rooms: rooms}, nil
	})
	return resp, hit, err
}

// Accept queues the current schedule for storage as a new timetable version.
func (s *SchedulerService) Accept(ctx context.Context, id string, req dto.AcceptRequest) (*dto.AcceptResponse, error) {
	session, err := s.session(id)
	if err != nil {
		return nil, err
	}
	if s.persister == nil {
		return nil, appErrors.Clone(appErrors.ErrServiceUnavailable, "timetable persistence is disabled")
	}
	if session.Running() {
		return nil, mapSchedulerError(scheduler.ErrSessionBusy, "")
	}

	schedule, revision := session.Snapshot()
	violations := session.Analyze()
	high := 0
	for _, v := range violations {
		if v.Severity == scheduler.SeverityHigh {
			high++
		}
	}
	if high > 0 && !req.AllowViolations {
		return nil, appErrors.Clone(appErrors.ErrScheduleConflict, fmt.Sprintf("schedule still has %d high severity violations", high))
	}

	scope := session.Scope()
	if len(scope) == 0 {
		scope = session.Catalog().SectionIDs()
	}
	job := PersistTimetableJob{
		SessionID:   id,
		Revision:    revision,
		SectionIDs:  scope,
		ScopeKey:    ScopeKey(scope),
		Publish:     req.Publish,
		Assignments: schedule.Assignments(),
		Violations:  len(violations),
	}
	jobID, err := s.persister.Enqueue(job)
	if err != nil {
		return nil, err
	}
	s.logger.Info("timetable accepted",
		zap.String("session_id", id),
		zap.String("job_id", jobID),
		zap.Uint64("revision", revision),
		zap.Int("assignments", len(job.Assignments)),
	)
	return &dto.AcceptResponse{JobID: jobID, ScopeKey: job.ScopeKey, Revision: revision, Status: "QUEUED"}, nil
}

// ScopeKey identifies a set of sections independent of order.
func ScopeKey(sectionIDs []string) string {
	ids := append([]string(nil), sectionIDs...)
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

func describeSession(session *scheduler.Session) *dto.SessionResponse {
	return &dto.SessionResponse{
		SessionID:   session.ID(),
		Scope:       session.Scope(),
		Revision:    session.Revision(),
		Running:     session.Running(),
		Constraints: session.Settings(),
		Template:    session.Catalog().Template(),
		CreatedAt:   session.CreatedAt(),
	}
}

// mapSchedulerError converts scheduler errors into the transport error contract.
func mapSchedulerError(err error, fallback string) error {
	var (
		catalogErr  *scheduler.CatalogError
		conflictErr *scheduler.ConflictError
	)
	switch {
	case errors.As(err, &catalogErr):
		return appErrors.WithDetails(appErrors.ErrCatalogInvalid, err, "", map[string]interface{}{"problems": catalogErr.Problems})
	case errors.As(err, &conflictErr):
		return appErrors.WithDetails(appErrors.ErrScheduleConflict, err, conflictErr.Reason, dto.NewConflictDetail(conflictErr))
	case errors.Is(err, scheduler.ErrSessionBusy):
		return appErrors.Wrap(err, appErrors.ErrSessionBusy.Code, appErrors.ErrSessionBusy.Status, appErrors.ErrSessionBusy.Message)
	case errors.Is(err, scheduler.ErrUnknownEntity), errors.Is(err, scheduler.ErrInvalidRequest):
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, stripSchedulerPrefix(err))
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fallback)
}

func stripSchedulerPrefix(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{scheduler.ErrUnknownEntity, scheduler.ErrInvalidRequest} {
		msg = strings.TrimPrefix(msg, sentinel.Error()+": ")
	}
	return msg
}
