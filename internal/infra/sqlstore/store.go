// Package sqlstore implements port.BillStore on database/sql, for SQLite
// (modernc.org/sqlite) and Postgres (pgx stdlib driver).
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/boddenberg/utility-bills-bfa/internal/domain"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var tracer = otel.Tracer("sqlstore")

// createdAtLayout is fixed-width so SQLite text ordering matches time ordering.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Dialect holds what differs between the supported engines.
type Dialect struct {
	name   string
	driver string
}

var (
	SQLite   = Dialect{name: "sqlite", driver: "sqlite"}
	Postgres = Dialect{name: "postgres", driver: "pgx"}
)

// Name is the dialect name used in logs and errors.
func (d Dialect) Name() string { return d.name }

func (d Dialect) placeholder(n int) string {
	if d == Postgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// date encodes a calendar date for the dialect's date column.
func (d Dialect) date(t time.Time) any {
	if d == Postgres {
		y, m, day := t.Date()
		return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	}
	return t.Format(domain.DateLayout)
}

func (d Dialect) timestamp(t time.Time) any {
	if d == Postgres {
		return t
	}
	return t.UTC().Format(createdAtLayout)
}

// BillStore is a SQL-backed bill store.
type BillStore struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
	now     func() time.Time
}

// Open connects, pings and migrates. For SQLite, dsn is a file path whose
// directory is created when missing.
func Open(ctx context.Context, d Dialect, dsn string, logger *zap.Logger) (*BillStore, error) {
	if d == SQLite {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", d.name, err)
	}
	if d == SQLite {
		// single writer avoids SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", d.name, err)
	}

	if err := RunMigrations(d, dsn); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("sql bill store ready", zap.String("dialect", d.name))
	return New(db, d, logger), nil
}

// New wraps an open, migrated database.
func New(db *sql.DB, d Dialect, logger *zap.Logger) *BillStore {
	return &BillStore{
		db:      db,
		dialect: d,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Close releases the connection pool.
func (s *BillStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *BillStore) unavailable(op string, err error) error {
	s.logger.Error("sql bill store failure",
		zap.String("dialect", s.dialect.name),
		zap.String("op", op),
		zap.Error(err),
	)
	return &domain.ErrStoreUnavailable{Store: s.dialect.name, Err: fmt.Errorf("%s: %w", op, err)}
}

const billColumns = "id, user_id, bill_type, date, usage, cost, goal_usage, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBill(r rowScanner) (domain.BillRecord, error) {
	var (
		b         domain.BillRecord
		billType  string
		date      string
		goal      sql.NullFloat64
		createdAt string
	)
	if err := r.Scan(&b.ID, &b.OwnerID, &billType, &date, &b.Usage, &b.Cost, &goal, &createdAt); err != nil {
		return b, err
	}
	d, err := domain.ParseBillDate(date)
	if err != nil {
		return b, err
	}
	b.BillType = domain.BillType(billType)
	b.Date = d
	if goal.Valid {
		g := goal.Float64
		b.GoalUsage = &g
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		b.CreatedAt = t.UTC()
	}
	return b, nil
}

func (s *BillStore) queryBills(ctx context.Context, query string, args ...any) ([]domain.BillRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bills := []domain.BillRecord{}
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

// ListBills returns every bill of the owner ordered by date, then insertion.
func (s *BillStore) ListBills(ctx context.Context, ownerID string) ([]domain.BillRecord, error) {
	ctx, span := tracer.Start(ctx, "SQLStore.ListBills")
	defer span.End()
	span.SetAttributes(attribute.String("owner.id", ownerID), attribute.String("db.system", s.dialect.name))

	p := s.dialect.placeholder
	bills, err := s.queryBills(ctx, `
SELECT `+billColumns+`
FROM bills
WHERE user_id = `+p(1)+`
ORDER BY date ASC, created_at ASC`, ownerID)
	if err != nil {
		return nil, s.unavailable("list bills", err)
	}
	return bills, nil
}

// CreateBill inserts a bill under a fresh UUID.
func (s *BillStore) CreateBill(ctx context.Context, ownerID string, in *domain.BillInput) (*domain.BillRecord, error) {
	ctx, span := tracer.Start(ctx, "SQLStore.CreateBill")
	defer span.End()

	b := domain.BillRecord{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		BillType:  in.BillType,
		Date:      in.Date,
		Usage:     in.Usage,
		Cost:      in.Cost,
		GoalUsage: in.GoalUsage,
		CreatedAt: s.now(),
	}

	var goal sql.NullFloat64
	if b.GoalUsage != nil {
		goal = sql.NullFloat64{Float64: *b.GoalUsage, Valid: true}
	}

	p := s.dialect.placeholder
	_, err := s.db.ExecContext(ctx, `
INSERT INTO bills (`+billColumns+`)
VALUES (`+strings.Join([]string{p(1), p(2), p(3), p(4), p(5), p(6), p(7), p(8)}, ", ")+`)`,
		b.ID, b.OwnerID, string(b.BillType), s.dialect.date(b.Date),
		b.Usage, b.Cost, goal, s.dialect.timestamp(b.CreatedAt))
	if err != nil {
		return nil, s.unavailable("create bill", err)
	}

	s.logger.Debug("bill saved",
		zap.String("dialect", s.dialect.name),
		zap.String("bill_id", b.ID),
		zap.String("bill_type", string(b.BillType)),
	)
	return &b, nil
}

// UpdateBill applies the non-nil patch fields to one of the owner's bills.
func (s *BillStore) UpdateBill(ctx context.Context, ownerID, id string, patch *domain.BillPatch) (*domain.BillRecord, error) {
	ctx, span := tracer.Start(ctx, "SQLStore.UpdateBill")
	defer span.End()
	span.SetAttributes(attribute.String("bill.id", id))

	p := s.dialect.placeholder
	var sets []string
	var args []any
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, col+" = "+p(len(args)))
	}
	if patch != nil {
		if patch.BillType != nil {
			set("bill_type", string(*patch.BillType))
		}
		if patch.Date != nil {
			set("date", s.dialect.date(*patch.Date))
		}
		if patch.Usage != nil {
			set("usage", *patch.Usage)
		}
		if patch.Cost != nil {
			set("cost", *patch.Cost)
		}
		if patch.GoalUsage != nil {
			set("goal_usage", *patch.GoalUsage)
		}
	}

	var query string
	if len(sets) == 0 {
		query = `SELECT ` + billColumns + ` FROM bills WHERE CAST(id AS TEXT) = ` + p(1) + ` AND user_id = ` + p(2)
	} else {
		query = `UPDATE bills SET ` + strings.Join(sets, ", ") +
			` WHERE CAST(id AS TEXT) = ` + p(len(args)+1) + ` AND user_id = ` + p(len(args)+2) +
			` RETURNING ` + billColumns
	}
	args = append(args, id, ownerID)

	b, err := scanBill(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "bill", ID: id}
	}
	if err != nil {
		return nil, s.unavailable("update bill", err)
	}
	return &b, nil
}

// LatestBill returns the owner's bill with the most recent date.
func (s *BillStore) LatestBill(ctx context.Context, ownerID string) (*domain.BillRecord, error) {
	ctx, span := tracer.Start(ctx, "SQLStore.LatestBill")
	defer span.End()

	b, err := scanBill(s.db.QueryRowContext(ctx, `
SELECT `+billColumns+`
FROM bills
WHERE user_id = `+s.dialect.placeholder(1)+`
ORDER BY date DESC, created_at DESC
LIMIT 1`, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "bill", ID: "latest"}
	}
	if err != nil {
		return nil, s.unavailable("latest bill", err)
	}
	return &b, nil
}

// ExistingBillTypes lists the bill types recorded in a month, in display order.
func (s *BillStore) ExistingBillTypes(ctx context.Context, ownerID string, month, year int) ([]domain.BillType, error) {
	ctx, span := tracer.Start(ctx, "SQLStore.ExistingBillTypes")
	defer span.End()

	start, end := domain.MonthRange(month, year)
	p := s.dialect.placeholder
	rows, err := s.db.QueryContext(ctx, `
SELECT DISTINCT bill_type
FROM bills
WHERE user_id = `+p(1)+` AND date >= `+p(2)+` AND date < `+p(3),
		ownerID, s.dialect.date(start), s.dialect.date(end))
	if err != nil {
		return nil, s.unavailable("existing bill types", err)
	}
	defer rows.Close()

	seen := map[domain.BillType]bool{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, s.unavailable("existing bill types", err)
		}
		seen[domain.BillType(t)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, s.unavailable("existing bill types", err)
	}

	types := make([]domain.BillType, 0, len(seen))
	for _, t := range domain.BillTypes {
		if seen[t] {
			types = append(types, t)
		}
	}
	return types, nil
}

// Ping checks the connection.
func (s *BillStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &domain.ErrStoreUnavailable{Store: s.dialect.name, Err: err}
	}
	return nil
}
