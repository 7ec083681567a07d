package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Session is one isolated scheduling working set. A single mutex serialises
// every access to its engine; sessions share no mutable state.
type Session struct {
	id        string
	scope     []string
	createdAt time.Time

	mu     sync.Mutex
	engine *Engine

	running  atomic.Bool
	cancelMu sync.Mutex
	cancel   context.CancelFunc

	revision   atomic.Uint64
	lastActive atomic.Int64
}

// NewSession wraps a fresh engine. scope limits the sections generated by
// default; empty means every section of the catalog.
func NewSession(id string, catalog *Catalog, constraints *ConstraintSet, scope []string, now time.Time) *Session {
	s := &Session{
		id:        id,
		scope:     dedupe(scope),
		createdAt: now,
		engine:    NewEngine(catalog, constraints),
	}
	s.lastActive.Store(now.UnixNano())
	return s
}

func (s *Session) ID() string { return s.id }

// Scope returns the default section scope.
func (s *Session) Scope() []string { return s.scope }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Revision increases on every change to the schedule.
func (s *Session) Revision() uint64 { return s.revision.Load() }

// Running reports whether a generation run is in progress.
func (s *Session) Running() bool { return s.running.Load() }

// Touch records activity for idle eviction.
func (s *Session) Touch(now time.Time) { s.lastActive.Store(now.UnixNano()) }

// LastActive is the time of the most recent Touch.
func (s *Session) LastActive() time.Time { return time.Unix(0, s.lastActive.Load()) }

// Catalog returns the session's registry snapshot.
func (s *Session) Catalog() *Catalog { return s.engine.Catalog() }

// Settings returns the effective constraint settings.
func (s *Session) Settings() map[string]ConstraintSetting {
	return s.engine.Constraints().Settings()
}

// Generate runs the engine on a dedicated goroutine and waits for it. The run
// stops between demand items when ctx is done or Cancel is called. Only one
// run may be active per session.
func (s *Session) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrSessionBusy
	}
	defer s.running.Store(false)

	runCtx, cancel := context.WithCancel(ctx)
	s.cancelMu.Lock()
	s.cancel = cancel
	s.cancelMu.Unlock()
	defer func() {
		s.cancelMu.Lock()
		s.cancel = nil
		s.cancelMu.Unlock()
		cancel()
	}()

	if len(req.SectionIDs) == 0 {
		req.SectionIDs = s.scope
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	type outcome struct {
		result *GenerateResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("scheduler: generation panicked: %v", r)}
			}
		}()
		result, err := s.engine.Generate(runCtx, req)
		done <- outcome{result: result, err: err}
	}()
	out := <-done
	if out.err == nil {
		s.revision.Add(1)
	}
	return out.result, out.err
}

// Cancel stops the active generation run, if any.
func (s *Session) Cancel() bool {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

func (s *Session) edit(fn func() error) error {
	if s.running.Load() {
		return ErrSessionBusy
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

// PlaceOne places a lesson block. It fails with ErrSessionBusy during a run.
func (s *Session) PlaceOne(req PlaceRequest) (*PlaceResult, error) {
	var result *PlaceResult
	err := s.edit(func() error {
		var err error
		result, err = s.engine.PlaceOne(req)
		if err == nil {
			s.revision.Add(1)
		}
		return err
	})
	return result, err
}

// Remove deletes an assignment and its block. Unknown ids succeed with no
// effect.
func (s *Session) Remove(assignmentID string) ([]Assignment, error) {
	var removed []Assignment
	err := s.edit(func() error {
		removed = s.engine.Remove(assignmentID)
		if len(removed) > 0 {
			s.revision.Add(1)
		}
		return nil
	})
	return removed, err
}

// Import force-places a batch of assignments.
func (s *Session) Import(assignments []Assignment) ([]Assignment, error) {
	var imported []Assignment
	err := s.edit(func() error {
		var err error
		imported, err = s.engine.Import(assignments)
		if err == nil && len(imported) > 0 {
			s.revision.Add(1)
		}
		return err
	})
	return imported, err
}

// Snapshot returns a copy of the schedule together with its revision.
func (s *Session) Snapshot() (*Schedule, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Schedule(), s.revision.Load()
}

// Analyze reports the violations of the current schedule.
func (s *Session) Analyze() []Violation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Analyze()
}

// TeacherLoads returns the per-teacher workload at the current revision.
func (s *Session) TeacherLoads() ([]TeacherLoad, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.TeacherLoads(), s.revision.Load()
}

// RoomUtilization returns per-room usage at the current revision.
func (s *Session) RoomUtilization() ([]RoomUsage, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.RoomUtilization(), s.revision.Load()
}
