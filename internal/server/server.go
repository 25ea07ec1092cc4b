package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"designflow/internal/domain"
	"designflow/internal/engine"
	"designflow/internal/lifecycle"
	"designflow/internal/logging"
	"designflow/internal/repo"
	"designflow/internal/report"
	"designflow/internal/timeline"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *slog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"invalid transition: request already assigned"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the DesignFlow API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// request schema violations are the client's input, not a lifecycle rule
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
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(logger))
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("DesignFlow API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerDesigners(group, cfg.Engine)
	registerRequests(group, cfg.Engine)
	registerSuggestions(group, cfg.Engine)
	registerViews(group, cfg.Engine)
	registerShifts(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerMe(group)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("http request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "request_id", middleware.GetReqID(r.Context()))
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body:   apiErrorBody{Code: code, Message: message, Details: details},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return newAPIError(http.StatusUnprocessableEntity, "invalid_transition", err.Error(), nil)
	case errors.Is(err, engine.ErrInvalidInput):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusUnprocessableEntity:
		return "invalid_transition"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get(path.Join(basePath, "docs"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var once sync.Once
	var doc []byte
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			doc, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"}},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{Type: "http", Scheme: "bearer", BearerFormat: "JWT"}
	oas.Components.SecuritySchemes["actorHeader"] = &huma.SecurityScheme{Type: "apiKey", In: "header", Name: "X-Actor-Id"}
	security := []map[string][]string{{"bearerAuth": {}}, {"actorHeader": {}}}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>DesignFlow API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

type body[T any] struct {
	Body T `json:"body"`
}

func respond[T any](v T) *body[T] {
	return &body[T]{Body: v}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*body[map[string]string], error) {
		return respond(map[string]string{"status": "ok"}), nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
	}, func(ctx context.Context, _ *struct{}) (*body[map[string]string], error) {
		p := principalFromContext(ctx)
		return respond(map[string]string{"actor_id": p.ActorID, "name": p.Name, "role": string(p.Role), "source": p.Source}), nil
	})
}

func registerDesigners(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-designers",
		Method:      http.MethodGet,
		Path:        "/designers",
		Summary:     "List designers",
	}, func(ctx context.Context, _ *struct{}) (*body[[]domain.Designer], error) {
		items, err := e.Repo.ListDesigners(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-designer",
		Method:        http.MethodPost,
		Path:          "/designers",
		Summary:       "Create a designer",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateDesignerRequest
	}) (*body[domain.Designer], error) {
		d, err := e.CreateDesigner(ctx, engine.DesignerCreateOptions{
			ID:            input.Body.ID,
			Name:          input.Body.Name,
			Role:          input.Body.Role,
			Avatar:        input.Body.Avatar,
			Skills:        input.Body.Skills,
			CapacityHours: input.Body.CapacityHours,
			ActorID:       principalFromContext(ctx).ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(d), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-designer",
		Method:      http.MethodGet,
		Path:        "/designers/{designer_id}",
		Summary:     "Get a designer",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DesignerID string `path:"designer_id"`
	}) (*body[domain.Designer], error) {
		d, err := e.Repo.GetDesigner(ctx, input.DesignerID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(d), nil
	})
}

func registerRequests(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-requests",
		Method:      http.MethodGet,
		Path:        "/requests",
		Summary:     "List design requests",
	}, func(ctx context.Context, input *struct {
		Status     string `query:"status" enum:"Pending,In Progress,Review,Completed,Blocked"`
		AssignedTo string `query:"assigned_to"`
	}) (*body[[]domain.DesignRequest], error) {
		items, err := e.Repo.ListRequests(ctx, repo.RequestFilter{Status: domain.Status(input.Status), AssignedTo: input.AssignedTo})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "submit-request",
		Method:        http.MethodPost,
		Path:          "/requests",
		Summary:       "Submit a design request",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body SubmitRequestRequest
	}) (*body[domain.DesignRequest], error) {
		b := input.Body
		req, err := e.SubmitRequest(ctx, engine.RequestDraft{
			ID:               b.ID,
			Title:            b.Title,
			Client:           b.Client,
			Requestor:        b.Requestor,
			Description:      b.Description,
			Type:             b.Type,
			BusinessFunction: b.BusinessFunction,
			Priority:         domain.Priority(b.Priority),
			EstimatedHours:   b.EstimatedHours,
			DueDate:          b.DueDate,
			ActorID:          principalFromContext(ctx).ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(req), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-request",
		Method:      http.MethodGet,
		Path:        "/requests/{request_id}",
		Summary:     "Get a design request with its feedback",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RequestID string `path:"request_id"`
	}) (*body[domain.DesignRequest], error) {
		req, err := e.Repo.GetRequest(ctx, input.RequestID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(req), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-request",
		Method:      http.MethodPost,
		Path:        "/requests/{request_id}/assign",
		Summary:     "Assign a request to a designer",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		RequestID string `path:"request_id"`
		Body      AssignRequest
	}) (*body[engine.AssignResult], error) {
		res, err := e.Assign(ctx, input.RequestID, input.Body.DesignerID, principalFromContext(ctx).ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-feedback",
		Method:      http.MethodPost,
		Path:        "/requests/{request_id}/feedback",
		Summary:     "Record feedback on a request",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		RequestID string `path:"request_id"`
		Body      FeedbackRequest
	}) (*body[domain.DesignRequest], error) {
		p := principalFromContext(ctx)
		author := input.Body.Author
		if author == "" {
			author = p.Name
		}
		role := domain.Role(input.Body.Role)
		if role == "" {
			role = p.Role
		}
		req, err := e.RecordFeedback(ctx, engine.FeedbackOptions{
			RequestID: input.RequestID,
			Type:      domain.FeedbackType(input.Body.Type),
			Content:   input.Body.Content,
			Author:    author,
			Role:      role,
			ActorID:   p.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(req), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-request-status",
		Method:      http.MethodPatch,
		Path:        "/requests/{request_id}/status",
		Summary:     "Override a request's status",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		RequestID string `path:"request_id"`
		Body      SetStatusRequest
	}) (*body[domain.DesignRequest], error) {
		req, err := e.SetStatus(ctx, input.RequestID, domain.Status(input.Body.Status), principalFromContext(ctx).ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(req), nil
	})
}

func registerSuggestions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "request-suggestions",
		Method:      http.MethodPost,
		Path:        "/suggestions",
		Summary:     "Ask the advisory oracle for assignment suggestions",
		Description: "Returns an empty list when the oracle is unavailable or its answer is malformed.",
	}, func(ctx context.Context, _ *struct{}) (*body[SuggestionsResponse], error) {
		items, err := e.RequestSuggestions(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(SuggestionsResponse{Items: items}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "apply-suggestion",
		Method:      http.MethodPost,
		Path:        "/suggestions/apply",
		Summary:     "Apply a suggestion after re-validating it",
		Description: "Stale suggestions are discarded and reported with applied=false.",
	}, func(ctx context.Context, input *struct {
		Body ApplySuggestionRequest
	}) (*body[engine.ApplyResult], error) {
		res, err := e.ApplySuggestion(ctx, domain.Suggestion{
			RequestID:  input.Body.RequestID,
			DesignerID: input.Body.DesignerID,
			Rationale:  input.Body.Rationale,
		}, principalFromContext(ctx).ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(res), nil
	})
}

func registerViews(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "timeline",
		Method:      http.MethodGet,
		Path:        "/timeline",
		Summary:     "Per-designer timeline layout",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Start string `query:"start" doc:"YYYY-MM-DD; defaults to the start of the current week"`
		Days  int    `query:"days" minimum:"0" maximum:"366"`
	}) (*body[timeline.Layout], error) {
		layout, err := e.Timeline(ctx, engine.TimelineOptions{Start: input.Start, Days: input.Days})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(layout), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "report",
		Method:      http.MethodGet,
		Path:        "/reports",
		Summary:     "Request volume and utilization",
	}, func(ctx context.Context, _ *struct{}) (*body[report.Stats], error) {
		stats, err := e.Report(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(stats), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "report-insights",
		Method:      http.MethodPost,
		Path:        "/reports/insights",
		Summary:     "Summarize the report with the advisory oracle",
	}, func(ctx context.Context, input *struct {
		Body InsightsRequest
	}) (*body[InsightsResponse], error) {
		period := input.Body.Period
		if period == "" {
			period = "month"
		}
		text, err := e.Insights(ctx, period)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(InsightsResponse{Period: period, Text: text}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "dashboard",
		Method:      http.MethodGet,
		Path:        "/dashboard",
		Summary:     "Queue counters, recent requests and team load",
	}, func(ctx context.Context, _ *struct{}) (*body[report.Dashboard], error) {
		d, err := e.Dashboard(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(d), nil
	})
}

func registerShifts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-shifts",
		Method:      http.MethodGet,
		Path:        "/shifts",
		Summary:     "List shifts",
	}, func(ctx context.Context, input *struct {
		DesignerID string `query:"designer_id"`
	}) (*body[[]domain.Shift], error) {
		items, err := e.Repo.ListShifts(ctx, input.DesignerID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "schedule-shift",
		Method:      http.MethodPut,
		Path:        "/shifts",
		Summary:     "Set a designer's shift for a date",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body ScheduleShiftRequest
	}) (*body[domain.Shift], error) {
		s, err := e.ScheduleShift(ctx, input.Body.DesignerID, input.Body.Date, domain.ShiftType(input.Body.Type), principalFromContext(ctx).ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(s), nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"designer,request,workspace"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"n" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*body[paginatedEvents], error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEvents(ctx, limit+1, repo.EventFilter{
			Type: input.Type, EntityKind: input.EntityKind, EntityID: input.EntityID, Before: cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return respond(resp), nil
	})
}

func normalizeLimit(in int) int {
	switch {
	case in <= 0:
		return 50
	case in > 500:
		return 500
	default:
		return in
	}
}

