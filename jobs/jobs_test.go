package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/moneta-ledger/moneta/internal/export"
	jobmetrics "github.com/moneta-ledger/moneta/internal/jobs"
)

type fakeFlusher struct {
	calls int
	err   error
}

func (f *fakeFlusher) FlushAll(context.Context) error {
	f.calls++
	return f.err
}

type fakeExporter struct {
	report export.Report
	err    error
}

func (f *fakeExporter) Export(context.Context) (export.Report, error) {
	return f.report, f.err
}

func TestFlushJobHandle(t *testing.T) {
	flusher := &fakeFlusher{}
	job := NewFlushJob(flusher, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewFlushTask(TriggerPayload{Reason: "cli"})
	require.NoError(t, err)
	require.Equal(t, TaskLedgerFlush, task.Type())
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, flusher.calls)

	flusher.err = errors.New("store down")
	require.ErrorIs(t, job.Handle(context.Background(), task), flusher.err)
}

func TestFlushJobSkipsMalformedPayload(t *testing.T) {
	job := NewFlushJob(&fakeFlusher{}, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskLedgerFlush, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestFlushJobAcceptsEmptyPayload(t *testing.T) {
	flusher := &fakeFlusher{}
	job := NewFlushJob(flusher, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskLedgerFlush, nil)))
	require.Equal(t, 1, flusher.calls)
}

func TestExportJobHandle(t *testing.T) {
	exp := &fakeExporter{report: export.Report{RunID: uuid.New(), Sales: 2}}
	job := NewExportJob(exp, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewExportTask(TriggerPayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	exp.err = errors.New("disk full")
	require.ErrorIs(t, job.Handle(context.Background(), task), exp.err)
}

func TestUnconfiguredJobsFail(t *testing.T) {
	task, err := NewFlushTask(TriggerPayload{})
	require.NoError(t, err)
	var flush *FlushJob
	require.Error(t, flush.Handle(context.Background(), task))
	require.Error(t, (&ExportJob{}).Handle(context.Background(), task))
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestHealthEndpoint(t *testing.T) {
	serve := func(inspector QueueInspector) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		NewHandler(inspector, nil).MountRoutes(r)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		return rec
	}

	rec := serve(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3}})
	require.Equal(t, http.StatusOK, rec.Code)
	var health queueHealth
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	require.Equal(t, 3, health.Pending)

	rec = serve(stubInspector{err: errors.New("redis down")})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = serve(nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
