package reception_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/smart-economato/economato/internal/backend"
	"github.com/smart-economato/economato/internal/backend/backendtest"
	"github.com/smart-economato/economato/internal/catalog"
	"github.com/smart-economato/economato/internal/reception"
	"github.com/smart-economato/economato/internal/shared"
	_ "github.com/smart-economato/economato/testing"
)

type stubJournal struct {
	mu      sync.Mutex
	entries []shared.JournalEntry
	err     error
}

func (s *stubJournal) Record(_ context.Context, entry shared.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return s.err
}

type stubIdempotency struct {
	mu       sync.Mutex
	seen     map[string]bool
	released []string
}

func (s *stubIdempotency) CheckAndInsert(_ context.Context, key, module string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	if s.seen[module+key] {
		return shared.ErrIdempotencyConflict
	}
	s.seen[module+key] = true
	return nil
}

func (s *stubIdempotency) Release(_ context.Context, key, module string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, module+key)
	s.released = append(s.released, key)
	return nil
}

type stubAlerts struct {
	calls int
	err   error
}

func (s *stubAlerts) EnqueueStockScan(context.Context) error {
	s.calls++
	return s.err
}

type stubRecorder struct {
	outcomes []string
}

func (s *stubRecorder) ObserveReceptionCommit(outcome string, _ int) {
	s.outcomes = append(s.outcomes, outcome)
}

type serviceFixture struct {
	svc     *reception.Service
	backend *backendtest.Server
	journal *stubJournal
	idem    *stubIdempotency
	alerts  *stubAlerts
	metrics *stubRecorder
}

func seed(t *testing.T) *backendtest.Server {
	t.Helper()
	srv := backendtest.New(t)
	srv.AddCategory(backend.Category{ID: "1", Nombre: "Lácteos"})
	srv.AddSupplier(backend.Supplier{ID: "2", Nombre: "Granja Sol"})
	srv.AddProduct(map[string]any{"id": "1", "nombre": "Leche", "precio": 0.9, "stock": 3, "stockMinimo": 5, "categoriaId": "1", "proveedorId": "2"})
	srv.AddProduct(map[string]any{"id": "2", "nombre": "Mantequilla", "precio": 2.1, "stock": 8, "stockMinimo": 2, "categoriaId": "1", "proveedorId": "2"})
	return srv
}

func newServiceFixture(t *testing.T, store reception.Store) *serviceFixture {
	t.Helper()
	srv := seed(t)
	client := backend.NewClient(srv.URL, 0)
	f := &serviceFixture{
		backend: srv,
		journal: &stubJournal{},
		idem:    &stubIdempotency{},
		alerts:  &stubAlerts{},
		metrics: &stubRecorder{},
	}
	f.svc = reception.NewService(reception.NewEngine(client, catalog.NewLoader(client)), store, nil, reception.Options{
		Journal:     f.journal,
		Idempotency: f.idem,
		Alerts:      f.alerts,
		Metrics:     f.metrics,
	})
	return f
}

func req(name string, qty int, price string) reception.LineRequest {
	return reception.LineRequest{
		NombreProducto: name,
		ProveedorID:    "2",
		CategoriaID:    "1",
		Cantidad:       qty,
		Precio:         decimal.RequireFromString(price),
	}
}

func TestServiceRequiresOpenSession(t *testing.T) {
	f := newServiceFixture(t, reception.NewMemoryStore())

	_, err := f.svc.State(context.Background(), "sess-1")
	require.ErrorIs(t, err, reception.ErrNotOpen)
	_, err = f.svc.AddItem(context.Background(), "sess-1", req("Leche", 1, "1"))
	require.ErrorIs(t, err, reception.ErrNotOpen)
}

func TestServiceOpenFailsWhenBackendDown(t *testing.T) {
	f := newServiceFixture(t, reception.NewMemoryStore())
	f.backend.FailGet("productos", http.StatusBadGateway)

	_, err := f.svc.Open(context.Background(), "sess-1")
	require.ErrorIs(t, err, backend.ErrStatus)

	_, err = f.svc.State(context.Background(), "sess-1")
	require.ErrorIs(t, err, reception.ErrNotOpen)
}

func TestServiceFlowPersistsAcrossCalls(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	f := newServiceFixture(t, reception.NewRedisStore(client, time.Hour))
	ctx := context.Background()

	st, err := f.svc.Open(ctx, "sess-1")
	require.NoError(t, err)
	require.Empty(t, st.Items)
	require.False(t, st.CanSave)
	require.Len(t, st.Suppliers, 1)

	suggestions, err := f.svc.Suggest(ctx, "sess-1", "man")
	require.NoError(t, err)
	require.Len(t, suggestions, 1)

	_, err = f.svc.Select(ctx, "sess-1", suggestions[0].ID)
	require.NoError(t, err)
	res, err := f.svc.AddItem(ctx, "sess-1", req("Mantequilla", 4, "2.00"))
	require.NoError(t, err)
	require.Equal(t, "2", *res.Item.ProductoID)

	res, err = f.svc.AddItem(ctx, "sess-1", req("Nata", 2, "1.50"))
	require.NoError(t, err)
	require.NotNil(t, res.Confirmation)

	st, err = f.svc.State(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, st.Items, 1)
	require.Len(t, st.Confirmations, 1)
	require.True(t, st.CanSave)

	_, err = f.svc.ResolveConfirmation(ctx, "sess-1", res.Confirmation.ID, true)
	require.NoError(t, err)

	sum, err := f.svc.PrepareCommit(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, 6, sum.Units)
	require.Equal(t, "11.00", sum.Total.StringFixed(2))

	result, err := f.svc.Commit(ctx, "sess-1", reception.CommitRequest{Confirmed: true, IdempotencyKey: "k-1", Actor: "chef.ana"})
	require.NoError(t, err)
	require.Equal(t, "Recepción guardada: 2 producto(s) (1 nuevos), 6 unidades", result.Message)

	require.Len(t, f.journal.entries, 1)
	entry := f.journal.entries[0]
	require.Equal(t, "chef.ana", entry.Username)
	require.Equal(t, 2, entry.Items)
	require.Equal(t, "11.00", entry.TotalValue)
	require.Len(t, entry.Lines, 2)
	require.Equal(t, 1, f.alerts.calls)
	require.Equal(t, []string{"success"}, f.metrics.outcomes)

	st, err = f.svc.State(ctx, "sess-1")
	require.NoError(t, err)
	require.Empty(t, st.Items)

	_, err = f.svc.Commit(ctx, "sess-1", reception.CommitRequest{Confirmed: true, IdempotencyKey: "k-1"})
	require.ErrorIs(t, err, reception.ErrDuplicateCommit)
}

func TestServiceFailedCommitReleasesKey(t *testing.T) {
	f := newServiceFixture(t, reception.NewMemoryStore())
	ctx := context.Background()

	_, err := f.svc.Open(ctx, "sess-1")
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, "sess-1", req("leche", 2, "1"))
	require.NoError(t, err)

	f.backend.FailPut("1", http.StatusInternalServerError)
	_, err = f.svc.Commit(ctx, "sess-1", reception.CommitRequest{Confirmed: true, IdempotencyKey: "k-2"})
	require.ErrorIs(t, err, reception.ErrBatchFailed)
	require.Equal(t, []string{"k-2"}, f.idem.released)
	require.Equal(t, []string{"failed"}, f.metrics.outcomes)
	require.Empty(t, f.journal.entries)
	require.Zero(t, f.alerts.calls)

	st, err := f.svc.State(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, st.Items, 1)
}

func TestServiceCommitSideEffectsNeverFailCommit(t *testing.T) {
	f := newServiceFixture(t, reception.NewMemoryStore())
	f.journal.err = errors.New("db down")
	f.alerts.err = errors.New("redis down")
	ctx := context.Background()

	_, err := f.svc.Open(ctx, "sess-1")
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, "sess-1", req("Leche", 2, "1"))
	require.NoError(t, err)

	res, err := f.svc.Commit(ctx, "sess-1", reception.CommitRequest{Confirmed: true})
	require.NoError(t, err)
	require.Equal(t, 1, res.Restocked)
}

func TestServiceRemoveItem(t *testing.T) {
	f := newServiceFixture(t, reception.NewMemoryStore())
	ctx := context.Background()

	_, err := f.svc.Open(ctx, "sess-1")
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, "sess-1", req("Leche", 2, "1"))
	require.NoError(t, err)

	st, msg, err := f.svc.RemoveItem(ctx, "sess-1", 0)
	require.NoError(t, err)
	require.Equal(t, "Item eliminado", msg)
	require.Empty(t, st.Items)

	_, _, err = f.svc.RemoveItem(ctx, "sess-1", 0)
	require.ErrorIs(t, err, reception.ErrLookup)
}

func TestServiceSerialisesConcurrentAdds(t *testing.T) {
	f := newServiceFixture(t, reception.NewMemoryStore())
	ctx := context.Background()
	_, err := f.svc.Open(ctx, "sess-1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.AddItem(ctx, "sess-1", req("Leche", 1, "1"))
		}()
	}
	wg.Wait()

	st, err := f.svc.State(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, st.Items, 20)
}

func TestServiceReadsLeaveStoredSessionUntouched(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	f := newServiceFixture(t, reception.NewRedisStore(client, time.Hour))
	ctx := context.Background()

	_, err := f.svc.Open(ctx, "sess-1")
	require.NoError(t, err)
	mr.FastForward(40 * time.Minute)
	before, err := mr.Get("economato:reception:sess-1")
	require.NoError(t, err)

	_, err = f.svc.Suggest(ctx, "sess-1", "le")
	require.NoError(t, err)
	_, err = f.svc.State(ctx, "sess-1")
	require.NoError(t, err)
	_, err = f.svc.PrepareCommit(ctx, "sess-1")
	require.ErrorIs(t, err, reception.ErrNothingToCommit)

	require.Equal(t, 20*time.Minute, mr.TTL("economato:reception:sess-1"))
	after, err := mr.Get("economato:reception:sess-1")
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestServiceLogsCatalogReloadFailure(t *testing.T) {
	srv := seed(t)
	client := backend.NewClient(srv.URL, 0)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	svc := reception.NewService(reception.NewEngine(client, catalog.NewLoader(client)), reception.NewMemoryStore(), logger, reception.Options{})
	ctx := context.Background()

	_, err := svc.Open(ctx, "sess-1")
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "sess-1", req("Leche", 2, "0.90"))
	require.NoError(t, err)

	srv.FailGet("productos", http.StatusServiceUnavailable)
	res, err := svc.Commit(ctx, "sess-1", reception.CommitRequest{Confirmed: true})
	require.NoError(t, err)
	require.False(t, res.CatalogReloaded)
	require.Contains(t, buf.String(), `msg="catalog reload after commit failed"`)
	require.Contains(t, buf.String(), "error=")
}
