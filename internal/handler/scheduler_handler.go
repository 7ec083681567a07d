package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-scheduler-api/internal/dto"
	"github.com/noah-isme/sma-scheduler-api/internal/middleware"
	"github.com/noah-isme/sma-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/sma-scheduler-api/pkg/errors"
	"github.com/noah-isme/sma-scheduler-api/pkg/response"
)

const maxImportAssignments = 2048

type schedulerSessions interface {
	CreateSession(ctx context.Context, req dto.CreateSessionRequest) (*dto.SessionResponse, error)
	CloseSession(ctx context.Context, id string) error
	Snapshot(ctx context.Context, id string) (*dto.ScheduleResponse, error)
	Generate(ctx context.Context, id string, req dto.GenerateRequest) (*dto.GenerateResponse, error)
	Cancel(ctx context.Context, id string) (bool, error)
	Place(ctx context.Context, id string, req dto.PlaceRequest) (*dto.PlaceResponse, error)
	Remove(ctx context.Context, id, assignmentID string) error
	Import(ctx context.Context, id string, req dto.ImportRequest) (*dto.ImportResponse, error)
	Conflicts(ctx context.Context, id string) (*dto.ConflictsResponse, error)
	TeacherLoad(ctx context.Context, id string) (*dto.TeacherLoadResponse, bool, error)
	RoomUtilization(ctx context.Context, id string) (*dto.RoomUtilizationResponse, bool, error)
	ExportPDF(ctx context.Context, id string, query dto.TimetableExportQuery) ([]byte, string, error)
	Accept(ctx context.Context, id string, req dto.AcceptRequest) (*dto.AcceptResponse, error)
}

type timetableReader interface {
	List(ctx context.Context, query dto.TimetableQuery) ([]models.Timetable, error)
	Get(ctx context.Context, id string) (*dto.TimetableResponse, error)
}

// SchedulerHandler exposes scheduling session endpoints.
type SchedulerHandler struct {
	sessions   schedulerSessions
	timetables timetableReader
}

// NewSchedulerHandler constructs the handler. timetables may be nil when persistence is disabled.
func NewSchedulerHandler(sessions schedulerSessions, timetables timetableReader) *SchedulerHandler {
	return &SchedulerHandler{sessions: sessions, timetables: timetables}
}

// CreateSession godoc
// @Summary Open a scheduling session
// @Description Loads the catalog inline or from the database and prepares an empty schedule.
// @Tags Scheduler
// @Accept json
// @Produce json
// @Param payload body dto.CreateSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /scheduler/sessions [post]
func (h *SchedulerHandler) CreateSession(c *gin.Context) {
	var req dto.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session payload"))
		return
	}
	session, err := h.sessions.CreateSession(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetRevision(c, session.Revision)
	response.JSON(c, http.StatusCreated, session, middleware.ExtractMeta(c))
}

// GetSession godoc
// @Summary Get the current schedule of a session
// @Tags Scheduler
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /scheduler/sessions/{id} [get]
func (h *SchedulerHandler) GetSession(c *gin.Context) {
	snapshot, err := h.sessions.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetRevision(c, snapshot.Revision)
	response.JSON(c, http.StatusOK, snapshot, middleware.ExtractMeta(c))
}

// CloseSession godoc
// @Summary Close a scheduling session
// @Tags Scheduler
// @Param id path string true "Session ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /scheduler/sessions/{id} [delete]
func (h *SchedulerHandler) CloseSession(c *gin.Context) {
	if err := h.sessions.CloseSession(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Generate godoc
// @Summary Generate a timetable
// @Description Runs the allocation engine over the session scope. Disconnecting the client cancels the run and returns what was placed so far.
// @Tags Scheduler
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.GenerateRequest false "Optional scope"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /scheduler/sessions/{id}/generate [post]
func (h *SchedulerHandler) Generate(c *gin.Context) {
	var req dto.GenerateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
			return
		}
	}
	result, err := h.sessions.Generate(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetRevision(c, result.Revision)
	response.JSON(c, http.StatusOK, result, middleware.ExtractMeta(c))
}

// Cancel godoc
// @Summary Cancel the active generation run
// @Tags Scheduler
// @Produce json
// @Param id path string true "Session ID"
// @Success 202 {object} response.Envelope
// @Router /scheduler/sessions/{id}/cancel [post]
func (h *SchedulerHandler) Cancel(c *gin.Context) {
	signalled, err := h.sessions.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{"cancelled": signalled})
}

// Place godoc
// @Summary Place one lesson block
// @Description Places at the preferred slot when possible, otherwise at the best remaining slot unless strict is set.
// @Tags Scheduler
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.PlaceRequest true "Placement payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /scheduler/sessions/{id}/assignments [post]
func (h *SchedulerHandler) Place(c *gin.Context) {
	var req dto.PlaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid placement payload"))
		return
	}
	result, err := h.sessions.Place(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetRevision(c, result.Revision)
	response.JSON(c, http.StatusCreated, result, middleware.ExtractMeta(c))
}

// Import godoc
// @Summary Import assignments
// @Description Force-places a batch of assignments. The batch is rejected as a whole when any entry is invalid.
// @Tags Scheduler
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.ImportRequest true "Assignments"
// @Success 201 {object} response.Envelope
// @Router /scheduler/sessions/{id}/assignments/import [post]
func (h *SchedulerHandler) Import(c *gin.Context) {
	var req dto.ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid import payload"))
		return
	}
	if len(req.Assignments) > maxImportAssignments {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d assignments may be imported at once", maxImportAssignments)))
		return
	}
	result, err := h.sessions.Import(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetRevision(c, result.Revision)
	response.JSON(c, http.StatusCreated, result, middleware.ExtractMeta(c))
}

// Remove godoc
// @Summary Remove an assignment and the rest of its block
// @Tags Scheduler
// @Param id path string true "Session ID"
// @Param assignmentId path string true "Assignment ID"
// @Success 204
// @Router /scheduler/sessions/{id}/assignments/{assignmentId} [delete]
func (h *SchedulerHandler) Remove(c *gin.Context) {
	if err := h.sessions.Remove(c.Request.Context(), c.Param("id"), c.Param("assignmentId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Conflicts godoc
// @Summary List schedule violations
// @Tags Scheduler
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /scheduler/sessions/{id}/conflicts [get]
func (h *SchedulerHandler) Conflicts(c *gin.Context) {
	result, err := h.sessions.Conflicts(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetRevision(c, result.Revision)
	response.JSON(c, http.StatusOK, result, middleware.ExtractMeta(c))
}

// TeacherLoad godoc
// @Summary Teacher workload
// @Tags Scheduler
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /scheduler/sessions/{id}/teacher-load [get]
func (h *SchedulerHandler) TeacherLoad(c *gin.Context) {
	result, hit, err := h.sessions.TeacherLoad(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	middleware.SetRevision(c, result.Revision)
	response.JSON(c, http.StatusOK, result.Teachers, middleware.ExtractMeta(c))
}

// RoomUtilization godoc
// @Summary Room utilisation
// @Tags Scheduler
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /scheduler/sessions/{id}/room-utilization [get]
func (h *SchedulerHandler) RoomUtilization(c *gin.Context) {
	result, hit, err := h.sessions.RoomUtilization(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	middleware.SetRevision(c, result.Revision)
	response.JSON(c, http.StatusOK, result.Rooms, middleware.ExtractMeta(c))
}

// ExportPDF godoc
// @Summary Printable section timetable
// @Tags Scheduler
// @Produce application/pdf
// @Param id path string true "Session ID"
// @Param sectionId query string true "Section ID"
// @Success 200 {file} binary
// @Router /scheduler/sessions/{id}/timetable.pdf [get]
func (h *SchedulerHandler) ExportPDF(c *gin.Context) {
	var query dto.TimetableExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export query"))
		return
	}
	content, filename, err := h.sessions.ExportPDF(c.Request.Context(), c.Param("id"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", content)
}

// Accept godoc
// @Summary Accept the current schedule
// @Description Queues the schedule for storage as the next timetable version of its section scope.
// @Tags Scheduler
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.AcceptRequest false "Accept options"
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /scheduler/sessions/{id}/accept [post]
func (h *SchedulerHandler) Accept(c *gin.Context) {
	var req dto.AcceptRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid accept payload"))
			return
		}
	}
	result, err := h.sessions.Accept(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, result)
}

// ListTimetables godoc
// @Summary List stored timetable versions
// @Tags Timetables
// @Produce json
// @Param sectionIds query string true "Comma separated section IDs"
// @Success 200 {object} response.Envelope
// @Router /scheduler/timetables [get]
func (h *SchedulerHandler) ListTimetables(c *gin.Context) {
	if h.timetables == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrServiceUnavailable, "timetable persistence is disabled"))
		return
	}
	query := dto.TimetableQuery{SectionIDs: splitIDs(c.QueryArray("sectionIds"))}
	result, err := h.timetables.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, middleware.ExtractMeta(c))
}

// GetTimetable godoc
// @Summary Get a stored timetable with its slots
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /scheduler/timetables/{id} [get]
func (h *SchedulerHandler) GetTimetable(c *gin.Context) {
	if h.timetables == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrServiceUnavailable, "timetable persistence is disabled"))
		return
	}
	result, err := h.timetables.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, middleware.ExtractMeta(c))
}

// splitIDs accepts both repeated and comma separated query values.
func splitIDs(values []string) []string {
	var ids []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				ids = append(ids, trimmed)
			}
		}
	}
	return ids
}
