package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"

	"github.com/makeasinger/quizgen/internal/catalog"
	"github.com/makeasinger/quizgen/internal/checkpoint"
	"github.com/makeasinger/quizgen/internal/model"
	"github.com/makeasinger/quizgen/internal/service"
	"github.com/makeasinger/quizgen/pkg/response"
)

type nopEnqueuer struct{}

func (nopEnqueuer) Enqueue(*asynq.Task, ...asynq.Option) (*asynq.TaskInfo, error) {
	return &asynq.TaskInfo{}, nil
}

func newTestApp(t *testing.T) (*fiber.App, *service.JobService, *checkpoint.MemoryBackend) {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatal(err)
	}
	backend := checkpoint.NewMemoryBackend()
	svc := service.NewJobService(service.JobServiceConfig{
		Repo:       service.NewMemoryJobRepository(),
		Enqueuer:   nopEnqueuer{},
		Catalog:    cat,
		Plan:       catalog.PlanConfig{ChunkSize: 5, QuestionsPerLevel: 20, SoftSkillsCount: 20},
		Checkpoint: backend,
	})

	jobs := NewJobHandler(svc, validator.New())
	app := fiber.New()
	app.Post("/api/jobs/start", jobs.Start)
	app.Get("/api/jobs/status/:jobId", jobs.Status)
	app.Get("/api/jobs/result/:jobId", jobs.Result)
	app.Post("/api/jobs/cancel/:jobId", jobs.Cancel)
	app.Get("/api/checkpoints/summary", NewCheckpointHandler(svc).Summary)
	catalogs := NewCatalogHandler(cat)
	app.Get("/api/catalog", catalogs.List)
	app.Get("/api/catalog/:sector", catalogs.Sector)
	return app, svc, backend
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var r response.ErrorResponse
	if err := json.Unmarshal(body, &r); err != nil {
		t.Fatalf("decode error body %s: %v", body, err)
	}
	return r.Error.Code
}

func TestJobHandler_Start(t *testing.T) {
	app, _, _ := newTestApp(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"career level", `{"type":"career_level","sector":"finance","career":"accountant","level":1}`, http.StatusAccepted, ""},
		{"soft skills", `{"type":"soft_skills"}`, http.StatusAccepted, ""},
		{"bad json", `{`, http.StatusBadRequest, response.CodeValidationError},
		{"unknown type", `{"type":"everything"}`, http.StatusBadRequest, response.CodeValidationError},
		{"missing career", `{"type":"career_level","sector":"finance","level":1}`, http.StatusBadRequest, response.CodeValidationError},
		{"unknown sector", `{"type":"sector","sector":"astrology"}`, http.StatusBadRequest, response.CodeValidationError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, app, http.MethodPost, "/api/jobs/start", tt.body)
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", status, tt.wantStatus, body)
			}
			if tt.wantCode != "" && errorCode(t, body) != tt.wantCode {
				t.Errorf("code = %s, want %s", errorCode(t, body), tt.wantCode)
			}
		})
	}
}

func TestJobHandler_Lifecycle(t *testing.T) {
	app, _, _ := newTestApp(t)

	status, body := do(t, app, http.MethodPost, "/api/jobs/start", `{"type":"soft_skills"}`)
	if status != http.StatusAccepted {
		t.Fatalf("start status = %d", status)
	}
	var started model.JobStartResponse
	if err := json.Unmarshal(body, &started); err != nil {
		t.Fatal(err)
	}
	if started.TotalUnits != 4 {
		t.Errorf("TotalUnits = %d, want 4", started.TotalUnits)
	}

	status, body = do(t, app, http.MethodGet, "/api/jobs/status/"+started.JobID, "")
	if status != http.StatusOK {
		t.Fatalf("status code = %d", status)
	}
	var state model.JobStatusResponse
	_ = json.Unmarshal(body, &state)
	if state.Status != model.JobStatusPending {
		t.Errorf("Status = %s, want pending", state.Status)
	}

	status, _ = do(t, app, http.MethodGet, "/api/jobs/result/"+started.JobID, "")
	if status != http.StatusBadRequest {
		t.Errorf("result of pending job status = %d, want 400", status)
	}

	status, _ = do(t, app, http.MethodPost, "/api/jobs/cancel/"+started.JobID, "")
	if status != http.StatusOK {
		t.Fatalf("cancel status = %d", status)
	}
	status, body = do(t, app, http.MethodPost, "/api/jobs/cancel/"+started.JobID, "")
	if status != http.StatusConflict || errorCode(t, body) != response.CodeJobFinished {
		t.Errorf("second cancel = %d %s", status, body)
	}

	status, _ = do(t, app, http.MethodGet, "/api/jobs/status/nope", "")
	if status != http.StatusNotFound {
		t.Errorf("unknown job status = %d, want 404", status)
	}
}

func TestCheckpointHandler_Summary(t *testing.T) {
	app, _, backend := newTestApp(t)
	_ = backend.Append(t.Context(), checkpoint.Entry{UnitID: "finance/accountant_lvl1/1", Status: checkpoint.StatusComplete})

	status, body := do(t, app, http.MethodGet, "/api/checkpoints/summary", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var summary model.CheckpointSummaryResponse
	_ = json.Unmarshal(body, &summary)
	if summary.CompletedCount != 1 || summary.UnitIDs[0] != "finance/accountant_lvl1/1" {
		t.Errorf("summary = %+v", summary)
	}
}

func TestCatalogHandler(t *testing.T) {
	app, _, _ := newTestApp(t)

	status, body := do(t, app, http.MethodGet, "/api/catalog", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var cat catalog.Catalog
	if err := json.Unmarshal(body, &cat); err != nil {
		t.Fatal(err)
	}
	if cat.Levels != 5 || len(cat.Sectors) != 5 {
		t.Errorf("catalog = %d levels, %d sectors", cat.Levels, len(cat.Sectors))
	}

	if status, _ := do(t, app, http.MethodGet, "/api/catalog/technology", ""); status != http.StatusOK {
		t.Errorf("sector status = %d", status)
	}
	if status, _ := do(t, app, http.MethodGet, "/api/catalog/astrology", ""); status != http.StatusNotFound {
		t.Errorf("unknown sector status = %d, want 404", status)
	}
}
