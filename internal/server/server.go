package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"

	"salesline/internal/pipeline"
	"salesline/internal/repo"
	"salesline/internal/rules"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   pipeline.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"stage_regression"`
	Message string         `json:"message" example:"cannot move stage backward"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"stage\":\"Pre-Sales\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Salesline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope above.
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
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Salesline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerProjects(group, cfg.Engine)
	registerAdvances(group, cfg.Engine)
	registerSerials(group, cfg.Engine)
	registerStatusUpdates(group, cfg.Engine)
	registerStatusMaster(group, cfg.Engine)
	registerStages(group, cfg.Engine)
	registerSummary(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	return router, nil
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
	var reject *rules.RejectionError
	if errors.As(err, &reject) {
		return newAPIError(http.StatusUnprocessableEntity, string(reject.Reason), reject.Message, nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "unknown stage"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
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
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
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

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
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
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	openPaths := map[string]bool{
		"/" + strings.TrimPrefix(path.Join(basePath, "health"), "/"):         true,
		"/" + strings.TrimPrefix(path.Join(basePath, "auth/dev/login"), "/"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if openPaths[route] {
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
    <title>Salesline API Docs</title>
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
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
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

func registerProjects(api huma.API, e pipeline.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Register project",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		value, err := parseAmount(input.Body.ProjectValue, "project_value")
		if err != nil {
			return nil, err
		}
		p, opErr := e.CreateProject(ctx, pipeline.ProjectCreateOptions{
			PartyName:          input.Body.PartyName,
			ProjectName:        input.Body.ProjectName,
			ContactPerson:      stringOrEmpty(input.Body.ContactPerson),
			MobileNumber:       stringOrEmpty(input.Body.MobileNumber),
			EmailID:            stringOrEmpty(input.Body.EmailID),
			AgentName:          stringOrEmpty(input.Body.AgentName),
			ProjectValue:       value,
			ScopeOfDevelopment: input.Body.ScopeOfDevelopment,
			AssignedTo:         stringOrEmpty(input.Body.AssignedTo),
			AttachmentURLs:     input.Body.AttachmentURLs,
			ActorID:            actorID,
		})
		if opErr != nil {
			return nil, handleError(opErr)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Stage          string `query:"stage" enum:"Pre-Sales,Quotation,Confirmed,Development,Completed"`
		IncludeDeleted bool   `query:"include_deleted"`
		Limit          int    `query:"limit" default:"50"`
		Cursor         string `query:"cursor"`
	}) (*struct {
		Body paginatedProjects `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		cursorTS, cursorNo, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, opErr := e.ListProjects(ctx, repo.ProjectFilters{
			Stage:           input.Stage,
			IncludeDeleted:  input.IncludeDeleted,
			Limit:           limit + 1,
			CursorCreatedAt: cursorTS,
			CursorNo:        cursorNo,
		})
		if opErr != nil {
			return nil, handleError(opErr)
		}
		counts, opErr := e.Repo.SerialCounts(ctx)
		if opErr != nil {
			return nil, handleError(opErr)
		}
		resp := paginatedProjects{Items: []ProjectSummaryResponse{}}
		if len(items) > limit {
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ProjectNo)
			items = items[:limit]
		}
		for _, p := range items {
			resp.Items = append(resp.Items, projectSummaryResponse(p, counts[p.ProjectNo]))
		}
		return &struct {
			Body paginatedProjects `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_no}",
		Summary:     "Get project with full history",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectNo string `path:"project_no"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		p, err := e.GetProject(ctx, input.ProjectNo)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_no}",
		Summary:     "Update project, optionally advancing stage or revising scope",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ProjectNo string               `path:"project_no"`
		Body      UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := pipeline.ProjectUpdateOptions{
			ProjectNo:      input.ProjectNo,
			PartyName:      input.Body.PartyName,
			ProjectName:    input.Body.ProjectName,
			ContactPerson:  input.Body.ContactPerson,
			MobileNumber:   input.Body.MobileNumber,
			EmailID:        input.Body.EmailID,
			AgentName:      input.Body.AgentName,
			Scope:          input.Body.ScopeOfDevelopment,
			Stage:          input.Body.Stage,
			StageRemarks:   stringOrEmpty(input.Body.StageRemarks),
			AssignedTo:     input.Body.AssignedTo,
			AttachmentURLs: input.Body.AttachmentURLs,
			ActorID:        actorID,
		}
		if input.Body.ProjectValue != nil {
			value, err := parseAmount(*input.Body.ProjectValue, "project_value")
			if err != nil {
				return nil, err
			}
			opts.ProjectValue = &value
		}
		p, opErr := e.UpdateProject(ctx, opts)
		if opErr != nil {
			return nil, handleError(opErr)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-project",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_no}",
		Summary:     "Soft-delete project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectNo string `path:"project_no"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteProject(ctx, input.ProjectNo, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerAdvances(api huma.API, e pipeline.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "record-advance",
		Method:        http.MethodPost,
		Path:          "/projects/{project_no}/advances",
		Summary:       "Record advance payment",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ProjectNo string               `path:"project_no"`
		Body      CreateAdvanceRequest `json:"body"`
	}) (*struct {
		Body AdvanceResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		amount, err := parseAmount(input.Body.Amount, "amount")
		if err != nil {
			return nil, err
		}
		a, opErr := e.RecordAdvance(ctx, pipeline.AdvanceOptions{
			ProjectNo:        input.ProjectNo,
			Amount:           amount,
			Date:             stringOrEmpty(input.Body.Date),
			TallyEntryNumber: input.Body.TallyEntryNumber,
			ActorID:          actorID,
		})
		if opErr != nil {
			return nil, handleError(opErr)
		}
		return &struct {
			Body AdvanceResponse `json:"body"`
		}{Body: advanceResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-advances",
		Method:      http.MethodGet,
		Path:        "/projects/{project_no}/advances",
		Summary:     "List advance payments",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectNo string `path:"project_no"`
	}) (*struct {
		Body struct {
			Items []AdvanceResponse `json:"items"`
			Total string            `json:"total"`
		} `json:"body"`
	}, error) {
		p, err := e.GetProject(ctx, input.ProjectNo)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []AdvanceResponse `json:"items"`
				Total string            `json:"total"`
			} `json:"body"`
		}{}
		out.Body.Items = []AdvanceResponse{}
		for _, a := range p.Advances.All() {
			out.Body.Items = append(out.Body.Items, advanceResponse(a))
		}
		out.Body.Total = p.TotalAdvance().String()
		return out, nil
	})
}

func registerSerials(api huma.API, e pipeline.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "record-serial",
		Method:        http.MethodPost,
		Path:          "/projects/{project_no}/serials",
		Summary:       "Record delivered serial number",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ProjectNo string              `path:"project_no"`
		Body      CreateSerialRequest `json:"body"`
	}) (*struct {
		Body SerialResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.RecordSerial(ctx, pipeline.SerialOptions{
			ProjectNo:    input.ProjectNo,
			SerialNumber: input.Body.SerialNumber,
			Version:      stringOrEmpty(input.Body.Version),
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SerialResponse `json:"body"`
		}{Body: SerialResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-serials",
		Method:      http.MethodGet,
		Path:        "/projects/{project_no}/serials",
		Summary:     "List serial numbers",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectNo string `path:"project_no"`
	}) (*struct {
		Body []SerialResponse `json:"body"`
	}, error) {
		p, err := e.GetProject(ctx, input.ProjectNo)
		if err != nil {
			return nil, handleError(err)
		}
		items := []SerialResponse{}
		for _, s := range p.Serials.All() {
			items = append(items, SerialResponse(s))
		}
		return &struct {
			Body []SerialResponse `json:"body"`
		}{Body: items}, nil
	})
}

func registerStatusUpdates(api huma.API, e pipeline.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "record-status-update",
		Method:        http.MethodPost,
		Path:          "/projects/{project_no}/status-updates",
		Summary:       "Post development status update",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ProjectNo string                    `path:"project_no"`
		Body      CreateStatusUpdateRequest `json:"body"`
	}) (*struct {
		Body StatusUpdateResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.RecordStatus(ctx, pipeline.StatusOptions{
			ProjectNo:       input.ProjectNo,
			StatusCode:      input.Body.StatusCode,
			Notes:           input.Body.Notes,
			AttachmentURLs:  input.Body.AttachmentURLs,
			CompiledFileURL: stringOrEmpty(input.Body.CompiledFileURL),
			ActorID:         actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StatusUpdateResponse `json:"body"`
		}{Body: statusUpdateResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-status-updates",
		Method:      http.MethodGet,
		Path:        "/projects/{project_no}/status-updates",
		Summary:     "List status updates",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectNo string `path:"project_no"`
	}) (*struct {
		Body []StatusUpdateResponse `json:"body"`
	}, error) {
		p, err := e.GetProject(ctx, input.ProjectNo)
		if err != nil {
			return nil, handleError(err)
		}
		items := []StatusUpdateResponse{}
		for _, u := range p.StatusUpdates.All() {
			items = append(items, statusUpdateResponse(u))
		}
		return &struct {
			Body []StatusUpdateResponse `json:"body"`
		}{Body: items}, nil
	})
}

func registerStatusMaster(api huma.API, e pipeline.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "status-master",
		Method:      http.MethodGet,
		Path:        "/status-master",
		Summary:     "List configured status codes",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []StatusMasterEntry `json:"body"`
	}, error) {
		return &struct {
			Body []StatusMasterEntry `json:"body"`
		}{Body: statusMasterResponse(e.Config)}, nil
	})
}

func registerStages(api huma.API, e pipeline.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-stages",
		Method:      http.MethodGet,
		Path:        "/stages",
		Summary:     "List pipeline stages in order",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []StageInfoResponse `json:"body"`
	}, error) {
		items := []StageInfoResponse{}
		for i, s := range domainStages() {
			items = append(items, StageInfoResponse{Name: s, Index: i})
		}
		return &struct {
			Body []StageInfoResponse `json:"body"`
		}{Body: items}, nil
	})
}

func registerSummary(api huma.API, e pipeline.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "pipeline-summary",
		Method:      http.MethodGet,
		Path:        "/summary",
		Summary:     "Project counts per stage",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]int `json:"body"`
	}, error) {
		counts, err := e.Repo.CountProjectsByStage(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		// include empty stages so dashboards always see the full set
		for _, s := range domainStages() {
			if _, ok := counts[s]; !ok {
				counts[s] = 0
			}
		}
		return &struct {
			Body map[string]int `json:"body"`
		}{Body: counts}, nil
	})
}

func registerEvents(api huma.API, e pipeline.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ProjectNo  string `query:"project_no"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"project,stage,scope,advance,serial,status"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursorID, input.ProjectNo, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, actor)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func signDevToken(secret, actorID string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   actorID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(12 * time.Hour)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func parseAmount(raw, field string) (decimal.Decimal, huma.StatusError) {
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, newAPIError(http.StatusBadRequest, "bad_request",
			fmt.Sprintf("%s must be a decimal number", field), map[string]any{"field": field, "value": raw})
	}
	return v, nil
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

func composeCursor(ts, no string) string {
	if ts == "" || no == "" {
		return ""
	}
	return ts + "|" + no
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}
