// Package handlers contains the HTTP handler implementations for the
// cronwatch ingestion API.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"cronwatch/internal/checkin"
	"cronwatch/internal/core"
	"cronwatch/internal/db"
	"cronwatch/internal/types"
)

// Listing defaults. The default window mirrors the retention horizon so an
// unfiltered list returns everything still online.
const (
	defaultListLimit  = 100
	maxListLimit      = 1000
	defaultListWindow = 90 * 24 * time.Hour
)

// MonitorResolver looks up monitors by their external identifiers.
// Mirrors the concrete db.MonitorRepository methods used by this handler.
type MonitorResolver interface {
	GetByGUID(ctx context.Context, guid string) (*types.Monitor, error)
	GetBySlug(ctx context.Context, projectID int64, slug string) (*types.Monitor, error)
}

// ProjectReader loads the owning project with its bootstrap flags.
type ProjectReader interface {
	GetByID(ctx context.Context, projectID int64) (*types.Project, error)
}

// CheckInRecorder runs the admission and persistence pipeline for one
// check-in.
type CheckInRecorder interface {
	CreateCheckIn(ctx context.Context, params checkin.CreateCheckInParams) (*checkin.CreateCheckInResult, error)
}

// CheckInLister pages the stored check-ins for a monitor.
type CheckInLister interface {
	List(ctx context.Context, params db.ListCheckInsParams) ([]*types.CheckIn, error)
}

// --- Request/Response Models ---

// CreateCheckInRequest is the request body for POST /monitors/{monitor}/checkins.
// An empty status means the job is starting and defaults to in_progress.
type CreateCheckInRequest struct {
	Status      string `json:"status,omitempty" validate:"checkin_status"`
	Duration    *int64 `json:"duration,omitempty" validate:"omitempty,min=0"`
	Environment string `json:"environment,omitempty" validate:"omitempty,max=64"`
}

// restrictedCheckInResponse is all an ingestion key ever gets back.
type restrictedCheckInResponse struct {
	ID string `json:"id"`
}

// --- Handler ---

// CheckInHandler serves check-in ingestion and listing for monitors.
type CheckInHandler struct {
	monitors  MonitorResolver
	projects  ProjectReader
	recorder  CheckInRecorder
	checkins  CheckInLister
	validator *core.Validator
	logger    *slog.Logger

	// baseURL is the public API origin used to build Link and Location
	// headers, without a trailing slash.
	baseURL string
}

// NewCheckInHandler creates a CheckInHandler with the provided dependencies.
func NewCheckInHandler(
	monitors MonitorResolver,
	projects ProjectReader,
	recorder CheckInRecorder,
	checkins CheckInLister,
	v *core.Validator,
	l *slog.Logger,
	baseURL string,
) *CheckInHandler {
	if l == nil {
		l = slog.Default()
	}
	return &CheckInHandler{
		monitors:  monitors,
		projects:  projects,
		recorder:  recorder,
		checkins:  checkins,
		validator: v,
		logger:    l,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
	}
}

// RegisterRoutes mounts check-in routes on the provided chi.Router.
// requireFull guards read endpoints against restricted ingestion keys;
// the create endpoint is open to both credential kinds.
func (h *CheckInHandler) RegisterRoutes(r chi.Router, requireFull func(http.Handler) http.Handler) {
	r.Route("/monitors/{monitorID}", func(r chi.Router) {
		r.Post("/checkins", h.Create)
		r.With(requireFull).Get("/checkins", h.List)
	})
}

// Create handles POST /monitors/{monitorID}/checkins.
//
// The monitor path segment is a guid for any caller, or a project-scoped
// slug for ingestion keys. The recorder owns admission (quota, deletion
// states) and the transactional write; this handler only resolves and
// authorizes the (project, monitor) pair and shapes the response:
//
//   - ingestion keys receive {"id": guid} and nothing else
//   - full callers receive the serialized check-in plus Link and Location
//     headers pointing at the latest and the created check-in
//   - an error check-in that did not newly fail its monitor answers 200
//     instead of 201, so retrying clients can tell the difference
func (h *CheckInHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	var req CreateCheckInRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	monitor, err := h.resolveMonitor(r.Context(), actor, chi.URLParam(r, "monitorID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	project, err := h.projects.GetByID(r.Context(), monitor.ProjectID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.recorder.CreateCheckIn(r.Context(), checkin.CreateCheckInParams{
		Project:     project,
		Monitor:     monitor,
		Environment: req.Environment,
		Status:      types.CheckInStatus(req.Status),
		Duration:    req.Duration,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.CheckIn.Status == types.CheckInStatusError && !result.MonitorFailed {
		status = http.StatusOK
	}

	if actor.Restricted() {
		core.JSON(w, r, status, restrictedCheckInResponse{ID: result.CheckIn.GUID})
		return
	}

	checkinsURL := fmt.Sprintf("%s/api/0/monitors/%s/checkins", h.baseURL, monitor.GUID)
	w.Header().Set("Link", fmt.Sprintf(`<%s/latest>; rel="latest"`, checkinsURL))
	w.Header().Set("Location", fmt.Sprintf("%s/%s", checkinsURL, result.CheckIn.GUID))
	core.JSON(w, r, status, result.CheckIn)
}

// List handles GET /monitors/{monitorID}/checkins. Full credentials only;
// the route guard rejects ingestion keys before this runs.
//
// Query parameters: start and end (RFC 3339, default the last 90 days),
// limit (max 1000) and offset. Results are newest first.
func (h *CheckInHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	monitor, err := h.resolveMonitor(r.Context(), actor, chi.URLParam(r, "monitorID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	params, err := parseListParams(r, monitor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	checkins, err := h.checkins.List(r.Context(), params)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if checkins == nil {
		checkins = []*types.CheckIn{}
	}

	core.JSON(w, r, http.StatusOK, checkins)
}

// resolveMonitor loads the monitor named by the path segment and enforces
// tenant scoping. Ingestion keys may use the project-local slug; everyone
// may use the guid. Cross-tenant lookups by ingestion key answer not-found
// so keys cannot probe for monitors outside their project; full tokens from
// the wrong organization get an explicit permission error.
func (h *CheckInHandler) resolveMonitor(ctx context.Context, actor types.Actor, monitorID string) (*types.Monitor, error) {
	if monitorID == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "monitor identifier is required", nil)
	}

	var (
		monitor *types.Monitor
		err     error
	)
	if _, parseErr := uuid.Parse(monitorID); parseErr == nil {
		monitor, err = h.monitors.GetByGUID(ctx, monitorID)
	} else if actor.Restricted() {
		monitor, err = h.monitors.GetBySlug(ctx, actor.ProjectID, monitorID)
	} else {
		return nil, types.NewAppError(types.ErrCodeNotFoundMonitor, "monitor not found", nil)
	}
	if err != nil {
		return nil, err
	}

	if actor.Restricted() {
		if monitor.ProjectID != actor.ProjectID {
			return nil, types.NewAppError(types.ErrCodeNotFoundMonitor, "monitor not found", nil)
		}
		return monitor, nil
	}

	if monitor.OrganizationID != actor.OrganizationID {
		return nil, types.NewAppError(types.ErrCodePermissionOrgMismatch,
			"monitor belongs to a different organization", nil)
	}
	return monitor, nil
}

// parseListParams reads the date range and pagination query parameters.
func parseListParams(r *http.Request, monitorID int64) (db.ListCheckInsParams, error) {
	q := r.URL.Query()
	now := time.Now().UTC()

	end := now
	if raw := q.Get("end"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return db.ListCheckInsParams{}, types.NewAppErrorWithDetails(
				types.ErrCodeValidationInvalidRange, "end must be an RFC 3339 timestamp", err,
				map[string]any{"end": raw})
		}
		end = parsed
	}

	start := end.Add(-defaultListWindow)
	if raw := q.Get("start"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return db.ListCheckInsParams{}, types.NewAppErrorWithDetails(
				types.ErrCodeValidationInvalidRange, "start must be an RFC 3339 timestamp", err,
				map[string]any{"start": raw})
		}
		start = parsed
	}

	if start.After(end) {
		return db.ListCheckInsParams{}, types.NewAppError(
			types.ErrCodeValidationInvalidRange, "start must not be after end", nil)
	}

	limit := defaultListLimit
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxListLimit {
			return db.ListCheckInsParams{}, types.NewAppError(
				types.ErrCodeValidationInvalidRange,
				fmt.Sprintf("limit must be a number between 1 and %d", maxListLimit), nil)
		}
		limit = parsed
	}

	offset := 0
	if raw := q.Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return db.ListCheckInsParams{}, types.NewAppError(
				types.ErrCodeValidationInvalidRange, "offset must be a non-negative number", nil)
		}
		offset = parsed
	}

	return db.ListCheckInsParams{
		MonitorID: monitorID,
		Start:     start,
		End:       end,
		Limit:     limit,
		Offset:    offset,
	}, nil
}
