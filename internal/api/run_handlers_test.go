package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/clinicaltrials-harvester/internal/worker"
)

const testRunID = "0192a4c4-7d2a-7cc1-9a3e-1f6c7a3f0b11"

func TestRunHandlerListRuns(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{runs: []worker.Snapshot{{
		RunID:     testRunID,
		Status:    worker.StatusSucceeded,
		StartedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Counters:  worker.Counters{Documents: 3},
	}}}
	handler := NewRunHandler(repo, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/api/runs?status=success&limit=2000&offset=5", nil)
	rec := httptest.NewRecorder()

	handler.ListRuns(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), testRunID)
	require.NotNil(t, repo.lastStatus)
	require.Equal(t, worker.StatusSucceeded, *repo.lastStatus)
	require.Equal(t, maxRunLimit, repo.lastLimit)
	require.Equal(t, 5, repo.lastOffset)
}

func TestRunHandlerListRunsDefaults(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{}
	handler := NewRunHandler(repo, zap.NewNop())
	rec := httptest.NewRecorder()

	handler.ListRuns(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, repo.lastStatus)
	require.Equal(t, defaultRunLimit, repo.lastLimit)
	require.Zero(t, repo.lastOffset)
}

func TestRunHandlerListRunsBadRequests(t *testing.T) {
	t.Parallel()

	for _, query := range []string{"?limit=-1", "?limit=abc", "?offset=-3", "?status=bogus"} {
		t.Run(query, func(t *testing.T) {
			t.Parallel()
			handler := NewRunHandler(&fakeRunRepo{}, zap.NewNop())
			rec := httptest.NewRecorder()
			handler.ListRuns(rec, httptest.NewRequest(http.MethodGet, "/api/runs"+query, nil))
			require.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestRunHandlerListRunsRepoError(t *testing.T) {
	t.Parallel()

	handler := NewRunHandler(&fakeRunRepo{err: errors.New("db down")}, zap.NewNop())
	rec := httptest.NewRecorder()
	handler.ListRuns(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRunHandlerUnavailable(t *testing.T) {
	t.Parallel()

	handler := NewRunHandler(nil, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.ListRuns(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	handler.GetRun(rec, withRunIDParam(httptest.NewRequest(http.MethodGet, "/api/runs/"+testRunID, nil), testRunID))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRunHandlerGetRun(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{runs: []worker.Snapshot{{RunID: testRunID, Status: worker.StatusRunning}}}
	handler := NewRunHandler(repo, zap.NewNop())
	req := withRunIDParam(httptest.NewRequest(http.MethodGet, "/api/runs/"+testRunID, nil), testRunID)
	rec := httptest.NewRecorder()

	handler.GetRun(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"running"`)
}

func TestRunHandlerGetRunNotFound(t *testing.T) {
	t.Parallel()

	handler := NewRunHandler(&fakeRunRepo{err: worker.ErrRunNotFound}, zap.NewNop())
	req := withRunIDParam(httptest.NewRequest(http.MethodGet, "/api/runs/"+testRunID, nil), testRunID)
	rec := httptest.NewRecorder()

	handler.GetRun(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunHandlerGetRunInvalidID(t *testing.T) {
	t.Parallel()

	handler := NewRunHandler(&fakeRunRepo{}, zap.NewNop())
	req := withRunIDParam(httptest.NewRequest(http.MethodGet, "/api/runs/nope", nil), "nope")
	rec := httptest.NewRecorder()

	handler.GetRun(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunRoutesThroughServer(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{runs: []worker.Snapshot{{RunID: testRunID, Status: worker.StatusFailed}}}
	server := NewServer(nil, zap.NewNop(), WithRunRepository(repo))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/"+testRunID, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, testRunID, repo.lastRunID)
}

func TestParseStatus(t *testing.T) {
	t.Parallel()

	testCases := map[string]worker.Status{
		"pending":   worker.StatusPending,
		"RUNNING":   worker.StatusRunning,
		"succeeded": worker.StatusSucceeded,
		"error":     worker.StatusFailed,
		"cancelled": worker.StatusCanceled,
	}
	for input, want := range testCases {
		got, err := parseStatus(input)
		require.NoError(t, err, input)
		require.Equal(t, want, got, input)
	}
	_, err := parseStatus("done")
	require.Error(t, err)
}

type fakeRunRepo struct {
	runs []worker.Snapshot
	err  error

	lastStatus *worker.Status
	lastLimit  int
	lastOffset int
	lastRunID  string
}

func (f *fakeRunRepo) GetRun(_ context.Context, runID string) (worker.Snapshot, error) {
	f.lastRunID = runID
	if f.err != nil {
		return worker.Snapshot{}, f.err
	}
	for _, run := range f.runs {
		if run.RunID == runID {
			return run, nil
		}
	}
	return worker.Snapshot{}, worker.ErrRunNotFound
}

func (f *fakeRunRepo) ListRuns(_ context.Context, status *worker.Status, limit, offset int) ([]worker.Snapshot, error) {
	f.lastStatus = status
	f.lastLimit = limit
	f.lastOffset = offset
	return f.runs, f.err
}

func withRunIDParam(r *http.Request, runID string) *http.Request {
	ctx := chi.NewRouteContext()
	ctx.URLParams.Add("run_id", runID)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, ctx))
}
