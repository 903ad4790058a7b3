package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"meetcast/internal/config"
	"meetcast/internal/domain"
	"meetcast/internal/engine"
	"meetcast/internal/metrics"
	"meetcast/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine engine.Engine
	// Repo is nil when the journal is disabled; run endpoints then answer 503.
	Repo     *repo.Repo
	Metrics  *metrics.Metrics
	Log      zerolog.Logger
	BasePath string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"run not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"id\":\"3f1c\"}"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

var errJournalDisabled = errors.New("run journal is disabled")

// New returns an HTTP handler exposing the meetcast API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
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
	router.Use(accessLog(cfg.Log))
	router.Use(middleware.Recoverer)

	hcfg := huma.DefaultConfig("meetcast API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerMetrics(router, cfg.Metrics)
	registerHealth(group)
	registerStatus(group, cfg)
	registerSchedule(group, cfg.Engine)
	registerRuns(group, cfg.Repo)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

// accessLog writes one zerolog line per request.
func accessLog(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("elapsed", time.Since(start)).
				Msg("http request")
		})
	}
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

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, errJournalDisabled) {
		return newAPIError(http.StatusServiceUnavailable, "journal_disabled", err.Error(), nil)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newAPIError(http.StatusGatewayTimeout, "timeout", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusServiceUnavailable:
		return "unavailable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerMetrics(r chi.Router, m *metrics.Metrics) {
	if m == nil {
		return
	}
	r.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		spec []byte
	)
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	if oas.Components != nil && oas.Components.Schemas != nil {
		schemas := oas.Components.Schemas.Map()
		if _, ok := schemas["ApiError"]; !ok {
			schemas["ApiError"] = oas.Components.Schemas.Schema(reflect.TypeOf(apiError{}), false, "ApiError")
		}
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
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
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
    <title>meetcast API Docs</title>
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

func registerStatus(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "status",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Capability mode and run counts",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body StatusResponse `json:"body"`
	}, error) {
		resp := StatusResponse{Mode: "mock", JournalEnabled: cfg.Repo != nil}
		if c := cfg.Engine.Config; c != nil && c.Capabilities.Mode != "" {
			resp.Mode = c.Capabilities.Mode
		}
		if cfg.Repo != nil {
			counts, err := cfg.Repo.CountRunsByStatus(ctx)
			if err != nil {
				return nil, handleError(err)
			}
			resp.RunCounts = counts
		}
		return &struct {
			Body StatusResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func registerSchedule(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "schedule",
		Method:      http.MethodPost,
		Path:        "/schedule",
		Summary:     "Evaluate a meeting request",
		Description: "Runs the scheduling pipeline once. The outcome, including clarification requests and failures, is reported in the summary status.",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body ScheduleRequest `json:"body"`
	}) (*struct {
		Body domain.EventSummary `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Body.Text) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "text is required", nil)
		}
		summary := e.Run(ctx, input.Body.Text, input.Body.Answer)
		return &struct {
			Body domain.EventSummary `json:"body"`
		}{Body: summary}, nil
	})
}

func registerRuns(api huma.API, r *repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "list-runs",
		Method:      http.MethodGet,
		Path:        "/runs",
		Summary:     "List journaled runs, newest first",
		Errors:      []int{http.StatusBadRequest, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
		Status string `query:"status" doc:"Filter by summary status"`
	}) (*struct {
		Body paginatedRuns `json:"body"`
	}, error) {
		if r == nil {
			return nil, handleError(errJournalDisabled)
		}
		if input.Status != "" && !validStatus(input.Status) {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid status filter", map[string]any{"status": input.Status})
		}
		limit := normalizeLimit(input.Limit)
		cursorTS, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := r.ListRuns(ctx, repo.RunFilters{
			Status:   input.Status,
			Limit:    limit + 1,
			CursorTS: cursorTS,
			CursorID: cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedRuns{Items: []RunResponse{}}
		if len(items) > limit {
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.TS, last.ID)
			items = items[:limit]
		}
		for _, it := range items {
			resp.Items = append(resp.Items, runResponse(it))
		}
		return &struct {
			Body paginatedRuns `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-run",
		Method:      http.MethodGet,
		Path:        "/runs/{id}",
		Summary:     "Get a run with its summary and stage transitions",
		Errors:      []int{http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Run `json:"body"`
	}, error) {
		if r == nil {
			return nil, handleError(errJournalDisabled)
		}
		run, err := r.GetRun(ctx, input.ID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, newAPIError(http.StatusNotFound, "not_found", "run not found", map[string]any{"id": input.ID})
			}
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Run `json:"body"`
		}{Body: run}, nil
	})
}

func validStatus(s string) bool {
	switch domain.Status(s) {
	case domain.StatusConfirmed, domain.StatusAdjusted, domain.StatusConflict,
		domain.StatusClarificationNeeded, domain.StatusError:
		return true
	}
	return false
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func parseCompositeCursor(cursor string) (string, string, error) {
	if cursor == "" {
		return "", "", nil
	}
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid cursor")
	}
	return parts[0], parts[1], nil
}

func composeCursor(ts, id string) string {
	if ts == "" || id == "" {
		return ""
	}
	return ts + "|" + id
}

// Addr returns the listen address from config, falling back to localhost.
func Addr(cfg *config.Config) string {
	if cfg != nil && cfg.Server.Addr != "" {
		return cfg.Server.Addr
	}
	return "127.0.0.1:8080"
}
