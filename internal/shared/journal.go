package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// JournalEntry is one committed goods reception.
type JournalEntry struct {
	Username    string
	Items       int
	NewProducts int
	Restocked   int
	Units       int
	TotalValue  string
	Lines       []map[string]any
	At          time.Time
}

// Journal appends committed receptions to reception_journal.
type Journal struct {
	pool *pgxpool.Pool
}

// NewJournal returns a Journal backed by pool.
func NewJournal(pool *pgxpool.Pool) *Journal {
	return &Journal{pool: pool}
}

// Record persists the entry.
func (j *Journal) Record(ctx context.Context, entry JournalEntry) error {
	if j == nil || j.pool == nil {
		return errors.New("journal not initialised")
	}
	if entry.Items == 0 {
		return errors.New("journal entry requires at least one line")
	}
	lines, err := json.Marshal(entry.Lines)
	if err != nil {
		return err
	}
	var at *time.Time
	if !entry.At.IsZero() {
		at = &entry.At
	}
	_, err = j.pool.Exec(ctx, `INSERT INTO reception_journal (username, items, new_products, restocked, units, total_value, lines, received_at)
VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, COALESCE($8, NOW()))`,
		entry.Username, entry.Items, entry.NewProducts, entry.Restocked, entry.Units, entry.TotalValue, lines, at)
	return err
}
