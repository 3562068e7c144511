package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"sprintlens/internal/analytics"
	"sprintlens/internal/domain"
	"sprintlens/internal/engine"
	"sprintlens/internal/engine/auth"
	"sprintlens/internal/repo"
)

// Version is reported in the OpenAPI document.
const Version = "0.3.0"

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *zap.Logger
	// Metrics is created when nil; pass one to share it with other handlers.
	Metrics *Metrics
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"project p-1: not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope {"error": {...}}.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Sprintlens API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = cfg.Engine.Logger
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}
	e := cfg.Engine
	if e.DB == nil {
		return nil, errors.New("server: engine has no database")
	}
	e.Metrics = metrics
	e.Logger = logger

	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(instrument(metrics, logger))
	router.Use(middleware.Recoverer)
	router.Use(newAuthMiddleware(basePath, cfg.Auth, e.Repo, logger))
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	hcfg := huma.DefaultConfig("Sprintlens API", Version)
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	h := handlers{e: e, log: logger}
	registerDocs(router, basePath)
	registerHealth(group)
	h.registerAnalytics(group)
	h.registerProjects(group)
	h.registerSprints(group)
	h.registerTasks(group)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

// handlers binds route handlers to the engine and the request logger.
type handlers struct {
	e   engine.Engine
	log *zap.Logger
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// fail maps engine errors onto the envelope. Anything unrecognised is logged
// and reported without its cause.
func (h handlers) fail(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se auth.ScopingError
	if errors.As(err, &se) {
		return newAPIError(http.StatusBadRequest, "company_required", err.Error(), nil)
	}
	var ae auth.AuthenticationError
	if errors.As(err, &ae) {
		return newAPIError(http.StatusUnauthorized, "unauthorized", err.Error(), nil)
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		details := map[string]any{"scope": fe.Scope}
		if len(fe.Required) > 0 {
			details["required"] = fe.Required
		}
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), details)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		var details map[string]any
		if ve.Field != "" {
			details = map[string]any{"field": ve.Field}
		}
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), details)
	}
	h.log.Error("unexpected error", zap.Error(err))
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

var analyticsErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusInternalServerError,
}

// registerView registers one date-filtered analytics view.
func registerView[R any](api huma.API, h handlers, id, route, summary string,
	run func(context.Context, engine.Actor, engine.AnalyticsQuery) (R, error)) {
	huma.Register(api, huma.Operation{
		OperationID: id,
		Method:      http.MethodGet,
		Path:        route,
		Summary:     summary,
		Tags:        []string{"analytics"},
		Errors:      analyticsErrors,
	}, func(ctx context.Context, input *analyticsParams) (*struct {
		Body R `json:"body"`
	}, error) {
		report, err := run(ctx, actorFromContext(ctx), engine.AnalyticsQuery{
			ProjectID: input.ProjectID,
			StartDate: input.StartDate,
			EndDate:   input.EndDate,
		})
		if err != nil {
			return nil, h.fail(err)
		}
		return &struct {
			Body R `json:"body"`
		}{Body: report}, nil
	})
}

func (h handlers) registerAnalytics(api huma.API) {
	registerView(api, h, "analytics-productivity", "/analytics/productivity", "Task throughput by member and sprint", h.e.Productivity)
	registerView(api, h, "analytics-costs", "/analytics/costs", "Planned vs actual cost", h.e.Costs)
	registerView(api, h, "analytics-time", "/analytics/time", "Days from start to due date", h.e.Timing)
	registerView(api, h, "analytics-quality", "/analytics/quality", "Completion and block rates", h.e.Quality)

	huma.Register(api, huma.Operation{
		OperationID: "analytics-activity-heatmap",
		Method:      http.MethodGet,
		Path:        "/analytics/activity-heatmap",
		Summary:     "Tasks created, completed and in flight per day",
		Tags:        []string{"analytics"},
		Errors:      analyticsErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string `query:"projectId"`
	}) (*struct {
		Body analytics.HeatmapReport `json:"body"`
	}, error) {
		report, err := h.e.Heatmap(ctx, actorFromContext(ctx), input.ProjectID)
		if err != nil {
			return nil, h.fail(err)
		}
		return &struct {
			Body analytics.HeatmapReport `json:"body"`
		}{Body: report}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "analytics-compare-projects",
		Method:      http.MethodGet,
		Path:        "/analytics/compare-projects",
		Summary:     "Side-by-side summary of every company project",
		Tags:        []string{"analytics"},
		Errors:      analyticsErrors,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body analytics.ComparisonReport `json:"body"`
	}, error) {
		report, err := h.e.CompareProjects(ctx, actorFromContext(ctx))
		if err != nil {
			return nil, h.fail(err)
		}
		return &struct {
			Body analytics.ComparisonReport `json:"body"`
		}{Body: report}, nil
	})
}

func (h handlers) registerProjects(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects visible to the caller",
		Tags:        []string{"projects"},
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ProjectResponse `json:"body"`
	}, error) {
		items, err := h.e.VisibleProjects(ctx, actorFromContext(ctx))
		if err != nil {
			return nil, h.fail(err)
		}
		return &struct {
			Body []ProjectResponse `json:"body"`
		}{Body: mapProjects(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		Tags:          []string{"projects"},
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		actor := actorFromContext(ctx)
		if err := h.e.RequireCompanyAdmin(ctx, actor); err != nil {
			return nil, h.fail(err)
		}
		owner := actor.UserID
		if input.Body.OwnerID != nil && *input.Body.OwnerID != "" {
			owner = *input.Body.OwnerID
		}
		p, err := h.e.CreateProject(ctx, engine.ProjectCreateOptions{
			ID:                stringOrEmpty(input.Body.ID),
			CompanyID:         actor.CompanyID,
			Name:              input.Body.Name,
			Description:       stringOrEmpty(input.Body.Description),
			DefaultHourlyRate: input.Body.DefaultHourlyRate,
			OwnerID:           owner,
			ActorID:           actor.UserID,
		})
		if err != nil {
			return nil, h.fail(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Tags:        []string{"projects"},
		Errors:      analyticsErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		p, err := h.e.ProjectAccess(ctx, actorFromContext(ctx), input.ProjectID)
		if err != nil {
			return nil, h.fail(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-summary",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/summary",
		Summary:     "Project summary",
		Tags:        []string{"projects", "analytics"},
		Errors:      analyticsErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body analytics.ProjectSummary `json:"body"`
	}, error) {
		summary, err := h.e.ProjectSummary(ctx, actorFromContext(ctx), input.ProjectID)
		if err != nil {
			return nil, h.fail(err)
		}
		return &struct {
			Body analytics.ProjectSummary `json:"body"`
		}{Body: summary}, nil
	})
}

func (h handlers) registerSprints(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-sprint",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/sprints",
		Summary:       "Create sprint",
		Tags:          []string{"sprints"},
		DefaultStatus: http.StatusCreated,
		Errors:        analyticsErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string              `path:"project_id"`
		Body      CreateSprintRequest `json:"body"`
	}) (*struct {
		Body SprintResponse `json:"body"`
	}, error) {
		actor := actorFromContext(ctx)
		p, err := h.e.ProjectAccess(ctx, actor, input.ProjectID, domain.ProjectRoleOwner)
		if err != nil {
			return nil, h.fail(err)
		}
		s, err := h.e.CreateSprint(ctx, engine.SprintCreateOptions{
			ID:        stringOrEmpty(input.Body.ID),
			ProjectID: p.ID,
			Name:      input.Body.Name,
			StartDate: stringOrEmpty(input.Body.StartDate),
			EndDate:   stringOrEmpty(input.Body.EndDate),
			ActorID:   actor.UserID,
		})
		if err != nil {
			return nil, h.fail(err)
		}
		return &struct {
			Body SprintResponse `json:"body"`
		}{Body: sprintResponse(s)}, nil
	})
}

func (h handlers) registerTasks(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/tasks",
		Summary:     "List tasks",
		Tags:        []string{"tasks"},
		Errors:      analyticsErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID  string `path:"project_id"`
		Status     string `query:"status"`
		SprintID   string `query:"sprint_id"`
		AssigneeID string `query:"assignee_id"`
		Limit      int    `query:"limit" default:"100" minimum:"1" maximum:"1000"`
	}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		p, err := h.e.ProjectAccess(ctx, actorFromContext(ctx), input.ProjectID)
		if err != nil {
			return nil, h.fail(err)
		}
		f := repo.TaskFilters{ProjectID: p.ID, SprintID: input.SprintID, AssigneeID: input.AssigneeID, Limit: input.Limit}
		if input.Status != "" {
			status, err := domain.ParseTaskStatus(input.Status)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": "status"})
			}
			f.Status = string(status)
		}
		items, err := h.e.Repo.ListTasks(ctx, f)
		if err != nil {
			return nil, h.fail(err)
		}
		out := make([]TaskResponse, 0, len(items))
		for _, t := range items {
			out = append(out, taskResponse(t))
		}
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/tasks",
		Summary:       "Create task",
		Tags:          []string{"tasks"},
		DefaultStatus: http.StatusCreated,
		Errors:        analyticsErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		Body      CreateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		actor := actorFromContext(ctx)
		p, err := h.e.ProjectAccess(ctx, actor, input.ProjectID)
		if err != nil {
			return nil, h.fail(err)
		}
		b := input.Body
		t, err := h.e.CreateTask(ctx, engine.TaskCreateOptions{
			ID:                 stringOrEmpty(b.ID),
			ProjectID:          p.ID,
			SprintID:           stringOrEmpty(b.SprintID),
			AssigneeID:         stringOrEmpty(b.AssigneeID),
			Title:              b.Title,
			Description:        stringOrEmpty(b.Description),
			Status:             stringOrEmpty(b.Status),
			EstimateHours:      b.EstimateHours,
			ActualHours:        b.ActualHours,
			HourlyRateOverride: b.HourlyRateOverride,
			CostOverride:       b.CostOverride,
			StartDate:          stringOrEmpty(b.StartDate),
			DueDate:            stringOrEmpty(b.DueDate),
			ActorID:            actor.UserID,
		})
		if err != nil {
			return nil, h.fail(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/tasks/{task_id}",
		Summary:     "Update task",
		Tags:        []string{"tasks"},
		Errors:      analyticsErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		TaskID    string            `path:"task_id"`
		Body      UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		actor := actorFromContext(ctx)
		p, err := h.e.ProjectAccess(ctx, actor, input.ProjectID)
		if err != nil {
			return nil, h.fail(err)
		}
		b := input.Body
		t, err := h.e.UpdateTask(ctx, engine.TaskUpdateOptions{
			ID:                 input.TaskID,
			ProjectID:          p.ID,
			Title:              b.Title,
			Description:        b.Description,
			Status:             b.Status,
			SprintID:           b.SprintID,
			AssigneeID:         b.AssigneeID,
			EstimateHours:      b.EstimateHours,
			ActualHours:        b.ActualHours,
			HourlyRateOverride: b.HourlyRateOverride,
			CostOverride:       b.CostOverride,
			StartDate:          b.StartDate,
			DueDate:            b.DueDate,
			Clear:              b.Clear,
			ActorID:            actor.UserID,
		})
		if err != nil {
			return nil, h.fail(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})
}
