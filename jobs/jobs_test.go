package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/smart-economato/economato/internal/catalog"
	jobmetrics "github.com/smart-economato/economato/internal/jobs"
	_ "github.com/smart-economato/economato/testing"
)

type stubSource struct {
	products []catalog.Product
	err      error
	calls    int
}

func (s *stubSource) LowStock(context.Context) ([]catalog.Product, error) {
	s.calls++
	return s.products, s.err
}

func family(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("metric %s not gathered", name)
	return nil
}

func TestStockScanRecordsLowStock(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	source := &stubSource{products: []catalog.Product{
		{ID: "1", Nombre: "Leche", Stock: 2, StockMinimo: 5},
		{ID: "7", Nombre: "Harina", Stock: 0, StockMinimo: 1},
	}}
	job := NewStockScanJob(source, nil, metrics)

	task, err := NewStockScanTask(ReasonReception, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, source.calls)

	gauge := family(t, reg, "economato_low_stock_products")
	require.Len(t, gauge.GetMetric(), 1)
	require.EqualValues(t, 2, gauge.GetMetric()[0].GetGauge().GetValue())
}

func TestStockScanPropagatesSourceError(t *testing.T) {
	reg := prometheus.NewRegistry()
	boom := errors.New("backend down")
	job := NewStockScanJob(&stubSource{err: boom}, nil, jobmetrics.NewMetrics(reg))

	task, err := NewStockScanTask(ReasonScheduled, time.Now())
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), boom)

	failures := family(t, reg, "economato_jobs_failures_total")
	require.EqualValues(t, 1, failures.GetMetric()[0].GetCounter().GetValue())
}

func TestStockScanSkipsRetryOnBadPayload(t *testing.T) {
	source := &stubSource{}
	job := NewStockScanJob(source, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskStockScan, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Zero(t, source.calls)
}

func TestStockScanTaskPayload(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 30, 0, 0, time.FixedZone("CET", 3600))
	task, err := NewStockScanTask(ReasonReception, at)
	require.NoError(t, err)
	require.Equal(t, TaskStockScan, task.Type())

	var payload StockScanPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, ReasonReception, payload.Reason)
	require.True(t, payload.RequestedAt.Equal(at))
	require.Equal(t, time.UTC, payload.RequestedAt.Location())
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return nil, f.err
	}
	return &asynq.TaskInfo{Queue: QueueDefault, Type: task.Type()}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

func TestEnqueueStockScan(t *testing.T) {
	fake := &fakeEnqueuer{}
	client := &Client{client: fake, now: time.Now}

	require.NoError(t, client.EnqueueStockScan(context.Background()))
	require.Len(t, fake.tasks, 1)
	require.Equal(t, TaskStockScan, fake.tasks[0].Type())
	require.Len(t, fake.opts[0], 3)

	fake.err = asynq.ErrDuplicateTask
	require.NoError(t, client.EnqueueStockScan(context.Background()))

	fake.err = errors.New("redis unavailable")
	require.Error(t, client.EnqueueStockScan(context.Background()))
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func serveHealth(t *testing.T, inspector QueueInspector) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(inspector, nil).MountRoutes)
	res := httptest.NewRecorder()
	r.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	return res
}

func TestHealthHandler(t *testing.T) {
	res := serveHealth(t, nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.JSONEq(t, `{"queue":"default","pending":0,"failed":0}`, res.Body.String())

	res = serveHealth(t, stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4, Failed: 1}})
	require.Equal(t, http.StatusOK, res.Code)
	require.JSONEq(t, `{"queue":"default","pending":4,"failed":1}`, res.Body.String())

	res = serveHealth(t, stubInspector{err: errors.New("redis down")})
	require.Equal(t, http.StatusServiceUnavailable, res.Code)
}
