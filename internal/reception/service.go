package reception

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/smart-economato/economato/internal/catalog"
	"github.com/smart-economato/economato/internal/shared"
)

const idempotencyModule = "reception.commit"

// JournalPort records committed receptions.
type JournalPort interface {
	Record(ctx context.Context, entry shared.JournalEntry) error
}

// IdempotencyPort guards commits against replays.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Release(ctx context.Context, key, module string) error
}

// AlertEnqueuer schedules a low-stock scan after stock changed.
type AlertEnqueuer interface {
	EnqueueStockScan(ctx context.Context) error
}

// CommitRecorder observes commit outcomes.
type CommitRecorder interface {
	ObserveReceptionCommit(outcome string, items int)
}

// Service runs reception commands against stored sessions. Commands for the
// same key are serialised.
type Service struct {
	engine  *Engine
	store   Store
	logger  *slog.Logger
	journal JournalPort
	idem    IdempotencyPort
	alerts  AlertEnqueuer
	metrics CommitRecorder

	locks keyedLocks
}

// Options groups the optional collaborators of Service.
type Options struct {
	Journal     JournalPort
	Idempotency IdempotencyPort
	Alerts      AlertEnqueuer
	Metrics     CommitRecorder
}

// NewService builds Service.
func NewService(engine *Engine, store Store, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		engine:  engine,
		store:   store,
		logger:  logger,
		journal: opts.Journal,
		idem:    opts.Idempotency,
		alerts:  opts.Alerts,
		metrics: opts.Metrics,
	}
}

// State is the view of a session returned to the client.
type State struct {
	Items         []LineItem            `json:"items"`
	Summary       CommitSummary         `json:"summary"`
	Selected      *catalog.Product      `json:"selected,omitempty"`
	Confirmations []PendingConfirmation `json:"confirmations"`
	Suppliers     []catalog.Supplier    `json:"suppliers"`
	Categories    []catalog.Category    `json:"categories"`
	CanSave       bool                  `json:"canSave"`
}

func stateOf(sess *Session) State {
	items := sess.Items
	if items == nil {
		items = []LineItem{}
	}
	pending := make([]PendingConfirmation, 0, len(sess.Pending))
	for _, pc := range sess.Pending {
		pending = append(pending, pc)
	}
	sortConfirmations(pending)
	return State{
		Items:         items,
		Summary:       Summarize(sess.Items),
		Selected:      sess.Selected,
		Confirmations: pending,
		Suppliers:     sess.Catalog.Suppliers,
		Categories:    sess.Catalog.Categories,
		CanSave:       len(sess.Items) > 0,
	}
}

func (s *Service) lock(key string) func() {
	return s.locks.lock(key)
}

// viewSession loads the session for key and hands it to fn without saving it back.
func (s *Service) viewSession(ctx context.Context, key string, fn func(*Session)) error {
	unlock := s.lock(key)
	defer unlock()

	sess, err := s.store.Load(ctx, key)
	if err != nil {
		return err
	}
	fn(sess)
	return nil
}

// withSession loads the session for key, applies fn and saves the result. The
// session is saved even when fn fails.
func (s *Service) withSession(ctx context.Context, key string, fn func(*Session) error) error {
	unlock := s.lock(key)
	defer unlock()

	sess, err := s.store.Load(ctx, key)
	if err != nil {
		return err
	}
	fnErr := fn(sess)
	if err := s.store.Save(ctx, key, sess); err != nil {
		return err
	}
	return fnErr
}

// Open starts a reception for key with a freshly loaded catalog, discarding any
// previous pending list.
func (s *Service) Open(ctx context.Context, key string) (State, error) {
	unlock := s.lock(key)
	defer unlock()

	sess, err := s.engine.Open(ctx)
	if err != nil {
		return State{}, err
	}
	if err := s.store.Save(ctx, key, sess); err != nil {
		return State{}, err
	}
	return stateOf(sess), nil
}

// Close drops the reception for key.
func (s *Service) Close(ctx context.Context, key string) error {
	unlock := s.lock(key)
	defer unlock()
	return s.store.Delete(ctx, key)
}

// State returns the current reception for key.
func (s *Service) State(ctx context.Context, key string) (State, error) {
	var st State
	err := s.viewSession(ctx, key, func(sess *Session) {
		st = stateOf(sess)
	})
	return st, err
}

// Suggest returns autocomplete candidates from the session catalog.
func (s *Service) Suggest(ctx context.Context, key, q string) ([]catalog.Product, error) {
	var out []catalog.Product
	err := s.viewSession(ctx, key, func(sess *Session) {
		out = catalog.WithoutRaw(catalog.Suggest(sess.Catalog.Products, q))
	})
	if out == nil {
		out = []catalog.Product{}
	}
	return out, err
}

// Select records an autocomplete pick.
func (s *Service) Select(ctx context.Context, key, productID string) (catalog.Product, error) {
	var p catalog.Product
	err := s.withSession(ctx, key, func(sess *Session) error {
		var err error
		p, err = s.engine.Select(sess, productID)
		return err
	})
	return p, err
}

// ClearSelection forgets the autocomplete pick.
func (s *Service) ClearSelection(ctx context.Context, key string) error {
	return s.withSession(ctx, key, func(sess *Session) error {
		s.engine.ClearSelection(sess)
		return nil
	})
}

// AddItem adds a line to the pending list or asks for confirmation.
func (s *Service) AddItem(ctx context.Context, key string, req LineRequest) (AddResult, error) {
	var res AddResult
	err := s.withSession(ctx, key, func(sess *Session) error {
		var err error
		res, err = s.engine.AddItem(sess, req)
		return err
	})
	return res, err
}

// ResolveConfirmation accepts or declines a pending new-product line.
func (s *Service) ResolveConfirmation(ctx context.Context, key, id string, accepted bool) (AddResult, error) {
	var res AddResult
	err := s.withSession(ctx, key, func(sess *Session) error {
		var err error
		res, err = s.engine.ResolveConfirmation(sess, id, accepted)
		return err
	})
	return res, err
}

// RemoveItem drops the pending item at index.
func (s *Service) RemoveItem(ctx context.Context, key string, index int) (State, string, error) {
	var (
		st  State
		msg string
	)
	err := s.withSession(ctx, key, func(sess *Session) error {
		var err error
		msg, err = s.engine.RemoveItem(sess, index)
		st = stateOf(sess)
		return err
	})
	return st, msg, err
}

// PrepareCommit returns the confirmation prompt for saving.
func (s *Service) PrepareCommit(ctx context.Context, key string) (CommitSummary, error) {
	var (
		sum CommitSummary
		err error
	)
	loadErr := s.viewSession(ctx, key, func(sess *Session) {
		sum, err = s.engine.PrepareCommit(sess)
	})
	if loadErr != nil {
		return CommitSummary{}, loadErr
	}
	return sum, err
}

// CommitRequest carries the operator's decision on the save prompt.
type CommitRequest struct {
	Confirmed      bool
	IdempotencyKey string
	Actor          string
}

// Commit saves the pending list upstream.
func (s *Service) Commit(ctx context.Context, key string, req CommitRequest) (CommitResult, error) {
	if req.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, req.IdempotencyKey, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return CommitResult{}, ErrDuplicateCommit
			}
			return CommitResult{}, err
		}
	}

	var res CommitResult
	err := s.withSession(ctx, key, func(sess *Session) error {
		var err error
		res, err = s.engine.Commit(ctx, sess, req.Confirmed)
		return err
	})
	if err != nil {
		if req.IdempotencyKey != "" && s.idem != nil {
			if relErr := s.idem.Release(ctx, req.IdempotencyKey, idempotencyModule); relErr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", relErr))
			}
		}
		s.observe(err, 0)
		return CommitResult{}, err
	}

	s.observe(nil, res.Items)
	s.logger.Info("reception committed",
		slog.String("actor", req.Actor),
		slog.Int("items", res.Items),
		slog.Int("new_products", res.NewProducts),
		slog.Int("restocked", res.Restocked),
		slog.Int("units", res.Units),
	)
	if !res.CatalogReloaded {
		s.logger.Warn("catalog reload after commit failed", slog.Any("error", res.ReloadErr))
	}
	s.afterCommit(ctx, req.Actor, res)
	return res, nil
}

func (s *Service) observe(err error, items int) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrBatchFailed):
		outcome = "failed"
	default:
		outcome = "rejected"
	}
	s.metrics.ObserveReceptionCommit(outcome, items)
}

func (s *Service) afterCommit(ctx context.Context, actor string, res CommitResult) {
	if s.journal != nil {
		entry := shared.JournalEntry{
			Username:    actor,
			Items:       res.Items,
			NewProducts: res.NewProducts,
			Restocked:   res.Restocked,
			Units:       res.Units,
			TotalValue:  res.Total.StringFixed(2),
			Lines:       journalLines(res.Lines),
		}
		if err := s.journal.Record(ctx, entry); err != nil {
			s.logger.Error("record reception journal", slog.Any("error", err))
		}
	}
	if s.alerts != nil {
		if err := s.alerts.EnqueueStockScan(ctx); err != nil {
			s.logger.Warn("enqueue stock scan", slog.Any("error", err))
		}
	}
}

func journalLines(items []LineItem) []map[string]any {
	lines := make([]map[string]any, 0, len(items))
	for _, it := range items {
		line := map[string]any{
			"nombreProducto":    it.NombreProducto,
			"cantidad":          it.Cantidad,
			"precio":            it.Precio.StringFixed(2),
			"total":             it.Total.StringFixed(2),
			"proveedorId":       it.ProveedorID,
			"productoExistente": it.ProductoExistente,
		}
		if it.ProductoID != nil {
			line["productoId"] = *it.ProductoID
		}
		lines = append(lines, line)
	}
	return lines
}

func sortConfirmations(pcs []PendingConfirmation) {
	slices.SortFunc(pcs, func(a, b PendingConfirmation) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
