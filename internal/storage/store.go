// Package storage persists execution plans to sqlite. Each run is one
// auditable unit: the plan row plus every order, failed ones included,
// written in a single transaction.
package storage

import (
	"database/sql"
	"fmt"
	"time"

	"alpha_portfolio/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id                   TEXT PRIMARY KEY,
	scaling_factor           TEXT NOT NULL,
	total_planned_buy_value  TEXT NOT NULL,
	total_planned_sell_value TEXT NOT NULL,
	generated_at             TIMESTAMP NOT NULL,
	persisted_at             TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS orders (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id           TEXT NOT NULL REFERENCES runs(run_id),
	seq              INTEGER NOT NULL,
	symbol           TEXT NOT NULL,
	side             TEXT NOT NULL,
	quantity         INTEGER NOT NULL,
	is_cover         INTEGER NOT NULL,
	priority         INTEGER NOT NULL,
	estimated_value  TEXT NOT NULL,
	status           TEXT NOT NULL,
	error_message    TEXT NOT NULL DEFAULT '',
	filled_quantity  TEXT NOT NULL,
	filled_avg_price TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_run_id ON orders(run_id);
`

// ordersColumns avoids SELECT * so schema changes fail loudly instead of
// silently shifting scans.
const ordersColumns = `seq, symbol, side, quantity, is_cover, priority, estimated_value, status, error_message, filled_quantity, filled_avg_price`

// Store is the sqlite-backed order store.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (or creates) the sqlite database at path and ensures the schema.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open order store: %w", err)
	}
	s := &Store{db: db, log: log.With().Str("component", "order_store").Logger()}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize order store schema: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// PersistPlan writes the run and all its orders in one transaction, so a
// crash never leaves a partially persisted plan.
func (s *Store) PersistPlan(plan *models.OrderExecutionPlan) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin persistence transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (run_id, scaling_factor, total_planned_buy_value, total_planned_sell_value, generated_at, persisted_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		plan.RunID,
		plan.ScalingFactorApplied.String(),
		plan.TotalPlannedBuyValue.String(),
		plan.TotalPlannedSellValue.String(),
		plan.GeneratedAt.UTC(),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", plan.RunID, err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO orders (run_id, ` + ordersColumns + `)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare order insert: %w", err)
	}
	defer stmt.Close()

	for i, ord := range plan.Orders {
		_, err := stmt.Exec(
			plan.RunID,
			i,
			ord.Symbol,
			string(ord.Side),
			ord.Quantity,
			ord.IsCover,
			ord.Priority,
			ord.EstimatedValue.String(),
			string(ord.Status),
			ord.ErrorMessage,
			ord.FilledQuantity.String(),
			ord.FilledAvgPrice.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert order %s for run %s: %w", ord.Symbol, plan.RunID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit plan %s: %w", plan.RunID, err)
	}

	s.log.Info().
		Str("run_id", plan.RunID).
		Int("orders", len(plan.Orders)).
		Msg("Execution plan persisted")
	return nil
}

// GetPlan loads a persisted plan by run id.
func (s *Store) GetPlan(runID string) (*models.OrderExecutionPlan, error) {
	plan := &models.OrderExecutionPlan{RunID: runID}

	var scaling, buyValue, sellValue string
	err := s.db.QueryRow(
		`SELECT scaling_factor, total_planned_buy_value, total_planned_sell_value, generated_at
		 FROM runs WHERE run_id = ?`, runID,
	).Scan(&scaling, &buyValue, &sellValue, &plan.GeneratedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	if plan.ScalingFactorApplied, err = decimal.NewFromString(scaling); err != nil {
		return nil, fmt.Errorf("corrupt scaling factor for run %s: %w", runID, err)
	}
	if plan.TotalPlannedBuyValue, err = decimal.NewFromString(buyValue); err != nil {
		return nil, fmt.Errorf("corrupt buy total for run %s: %w", runID, err)
	}
	if plan.TotalPlannedSellValue, err = decimal.NewFromString(sellValue); err != nil {
		return nil, fmt.Errorf("corrupt sell total for run %s: %w", runID, err)
	}

	rows, err := s.db.Query(
		`SELECT `+ordersColumns+` FROM orders WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load orders for run %s: %w", runID, err)
	}
	defer rows.Close()

	for rows.Next() {
		ord, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order for run %s: %w", runID, err)
		}
		plan.Orders = append(plan.Orders, ord)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders for run %s: %w", runID, err)
	}
	return plan, nil
}

// RunSummary is one row of the run history listing.
type RunSummary struct {
	RunID        string
	GeneratedAt  time.Time
	OrderCount   int
	FailedOrders int
}

// ListRuns returns run history, newest first.
func (s *Store) ListRuns(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT r.run_id, r.generated_at,
		        COUNT(o.id),
		        COALESCE(SUM(CASE WHEN o.status = ? THEN 1 ELSE 0 END), 0)
		 FROM runs r LEFT JOIN orders o ON o.run_id = r.run_id
		 GROUP BY r.run_id
		 ORDER BY r.generated_at DESC
		 LIMIT ?`, string(models.StatusFailed), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.GeneratedAt, &r.OrderCount, &r.FailedOrders); err != nil {
			return nil, fmt.Errorf("failed to scan run summary: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanOrder(rows *sql.Rows) (models.OptimizedOrder, error) {
	var ord models.OptimizedOrder
	var seq int
	var side, status, estValue, filledQty, filledAvg string
	if err := rows.Scan(&seq, &ord.Symbol, &side, &ord.Quantity, &ord.IsCover, &ord.Priority,
		&estValue, &status, &ord.ErrorMessage, &filledQty, &filledAvg); err != nil {
		return ord, err
	}
	ord.Side = models.OrderSide(side)
	ord.Status = models.OrderStatus(status)

	var err error
	if ord.EstimatedValue, err = decimal.NewFromString(estValue); err != nil {
		return ord, err
	}
	if ord.FilledQuantity, err = decimal.NewFromString(filledQty); err != nil {
		return ord, err
	}
	if ord.FilledAvgPrice, err = decimal.NewFromString(filledAvg); err != nil {
		return ord, err
	}
	return ord, nil
}
