package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/averros/ecoscen/internal/model"
	"github.com/averros/ecoscen/internal/params"
	"github.com/averros/ecoscen/internal/store"
)

// fakeStore is an in-memory Store for handler tests.
type fakeStore struct {
	runs     map[string]*model.Run
	order    []string
	failures map[string][]model.RowFailure
	statsErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		runs:     make(map[string]*model.Run),
		failures: make(map[string][]model.RowFailure),
	}
}

func (f *fakeStore) CreateRun(_ context.Context, r *model.Run) error {
	f.runs[r.ID] = r
	f.order = append(f.order, r.ID)
	return nil
}

func (f *fakeStore) GetRun(_ context.Context, id string) (*model.Run, error) {
	r, ok := f.runs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) ListRuns(_ context.Context, limit, offset int) ([]*model.Run, int, error) {
	var out []*model.Run
	for i := offset; i < len(f.order) && len(out) < limit; i++ {
		out = append(out, f.runs[f.order[i]])
	}
	return out, len(f.order), nil
}

func (f *fakeStore) UpdateRunStatus(_ context.Context, id, status string) error {
	r, ok := f.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	r.Status = status
	return nil
}

func (f *fakeStore) UpdateRun(_ context.Context, r *model.Run) error {
	if _, ok := f.runs[r.ID]; !ok {
		return store.ErrNotFound
	}
	f.runs[r.ID] = r
	return nil
}

func (f *fakeStore) GetRunStats(_ context.Context) (*store.RunStats, error) {
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	stats := &store.RunStats{CountByStatus: make(map[string]int)}
	for _, r := range f.runs {
		stats.Total++
		stats.CountByStatus[r.Status]++
		stats.TotalScenarios += r.Scenarios
		stats.TotalFailures += r.Failed
	}
	return stats, nil
}

func (f *fakeStore) InsertRowFailure(_ context.Context, runID, scenarioID, phase, message string) error {
	f.failures[runID] = append(f.failures[runID], model.RowFailure{
		RunID: runID, ScenarioID: scenarioID, Phase: phase, Message: message,
	})
	return nil
}

func (f *fakeStore) GetRowFailures(_ context.Context, runID string) ([]model.RowFailure, error) {
	return f.failures[runID], nil
}

func (f *fakeStore) Close() error { return nil }

var _ store.Store = (*fakeStore)(nil)

func testServer(t *testing.T, fs *fakeStore) *Server {
	t.Helper()
	reg, err := params.NewRegistry([]string{"Cod", "Herring"}, params.DefaultFamilies()...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewServer(":0", fs, reg, logger)
}

func doGet(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v: %s", err, rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	srv := testServer(t, newFakeStore())
	rec := doGet(t, srv, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp healthResponse
	decode(t, rec, &resp)
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := testServer(t, newFakeStore())
	rec := doGet(t, srv, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Error("empty metrics exposition")
	}
}

func TestListRuns(t *testing.T) {
	fs := newFakeStore()
	for i := 0; i < 3; i++ {
		fs.CreateRun(context.Background(), &model.Run{
			ID:        model.NewID(),
			Status:    model.StatusCompleted,
			ModelPath: "/models/baltic.ewemdb",
			Scenarios: 10,
			CreatedAt: time.Now().UTC(),
		})
	}
	srv := testServer(t, fs)

	rec := doGet(t, srv, "/v1/runs?limit=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp listRunsResponse
	decode(t, rec, &resp)
	if resp.Total != 3 || len(resp.Runs) != 2 || resp.Limit != 2 {
		t.Errorf("list = total %d, page %d, limit %d", resp.Total, len(resp.Runs), resp.Limit)
	}
}

func TestListRunsEmpty(t *testing.T) {
	srv := testServer(t, newFakeStore())
	rec := doGet(t, srv, "/v1/runs")
	var resp listRunsResponse
	decode(t, rec, &resp)
	if resp.Runs == nil {
		t.Error("runs is null, want empty array")
	}
}

func TestGetRun(t *testing.T) {
	fs := newFakeStore()
	run := &model.Run{ID: model.NewID(), Status: model.StatusRunning, CreatedAt: time.Now().UTC()}
	fs.CreateRun(context.Background(), run)
	srv := testServer(t, fs)

	rec := doGet(t, srv, "/v1/runs/"+run.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got model.Run
	decode(t, rec, &got)
	if got.ID != run.ID || got.Status != model.StatusRunning {
		t.Errorf("got %+v", got)
	}

	rec = doGet(t, srv, "/v1/runs/missing")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing run status = %d, want 404", rec.Code)
	}
}

func TestGetRowFailures(t *testing.T) {
	fs := newFakeStore()
	run := &model.Run{ID: model.NewID(), Status: model.StatusCompleted, CreatedAt: time.Now().UTC()}
	fs.CreateRun(context.Background(), run)
	fs.InsertRowFailure(context.Background(), run.ID, "s3", "run", "solver diverged")
	srv := testServer(t, fs)

	rec := doGet(t, srv, "/v1/runs/"+run.ID+"/failures")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp rowFailuresResponse
	decode(t, rec, &resp)
	if resp.RunID != run.ID || len(resp.Failures) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Failures[0].ScenarioID != "s3" || resp.Failures[0].Phase != "run" {
		t.Errorf("failure = %+v", resp.Failures[0])
	}

	rec = doGet(t, srv, "/v1/runs/missing/failures")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing run status = %d, want 404", rec.Code)
	}
}

func TestListParams(t *testing.T) {
	srv := testServer(t, newFakeStore())
	rec := doGet(t, srv, "/v1/params")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp paramsResponse
	decode(t, rec, &resp)
	if len(resp.Groups) != 2 {
		t.Errorf("groups = %v", resp.Groups)
	}
	if len(resp.GroupPrefixes) == 0 || len(resp.EnvParams) == 0 {
		t.Error("empty parameter catalog")
	}
	want := len(resp.EnvParams) + len(resp.GroupPrefixes)*len(resp.Groups)
	if len(resp.Names) != want {
		t.Errorf("names = %d entries, want %d", len(resp.Names), want)
	}
}

func TestListParamsNoRegistry(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	srv := NewServer(":0", newFakeStore(), nil, logger)
	rec := doGet(t, srv, "/v1/params")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestGetStats(t *testing.T) {
	fs := newFakeStore()
	fs.CreateRun(context.Background(), &model.Run{
		ID: model.NewID(), Status: model.StatusCompleted, Scenarios: 10, Failed: 1,
		CreatedAt: time.Now().UTC(),
	})
	srv := testServer(t, fs)

	rec := doGet(t, srv, "/v1/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp statsResponse
	decode(t, rec, &resp)
	if resp.Total != 1 || resp.TotalScenarios != 10 || resp.TotalFailures != 1 {
		t.Errorf("stats = %+v", resp)
	}
	if resp.ByStatus[model.StatusCompleted] != 1 {
		t.Errorf("by_status = %v", resp.ByStatus)
	}
}
