package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"bakerypos/internal/domain"
	"bakerypos/internal/store"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

//go:embed migrations
var migrationsFS embed.FS

// goose keeps its dialect and filesystem in package state.
var gooseMu sync.Mutex

var _ store.Repository = (*Store)(nil)

type Store struct {
	db      *sqlx.DB
	dialect Dialect
}

func Open(ctx context.Context, dialect Dialect, dsn string) (*Store, error) {
	var driverName string
	switch dialect {
	case DialectSQLite:
		driverName = "sqlite"
	case DialectPostgres:
		driverName = "pgx"
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}

	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}

	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxIdleConns(8)
		db.SetMaxOpenConns(30)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, dialect: dialect}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies the embedded migrations for the store's dialect. A nil
// logger silences goose.
func (s *Store) Migrate(ctx context.Context, logger goose.Logger) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if logger == nil {
		logger = goose.NopLogger()
	}
	goose.SetLogger(logger)
	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	gooseDialect, dir := "sqlite3", "migrations/sqlite"
	if s.dialect == DialectPostgres {
		gooseDialect, dir = "postgres", "migrations/postgres"
	}
	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db.DB, dir); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

type itemRow struct {
	ID         int64  `db:"id"`
	Name       string `db:"name"`
	PriceCents int64  `db:"price_cents"`
	Image      []byte `db:"image"`
	CreatedAt  string `db:"created_at"`
	UpdatedAt  string `db:"updated_at"`
}

func (r itemRow) toDomain() (domain.Item, error) {
	createdAt, err := store.ParseTimestamp(r.CreatedAt)
	if err != nil {
		return domain.Item{}, err
	}
	updatedAt, err := store.ParseTimestamp(r.UpdatedAt)
	if err != nil {
		return domain.Item{}, err
	}
	item := domain.Item{
		ID:         r.ID,
		Name:       r.Name,
		PriceCents: r.PriceCents,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}
	if len(r.Image) > 0 {
		item.Image = r.Image
	}
	return item, nil
}

type invoiceRow struct {
	ID           string `db:"id"`
	Number       int    `db:"invoice_number"`
	BusinessDate string `db:"business_date"`
	CreatedAt    string `db:"created_at"`
	LineCount    int    `db:"line_count"`
	ItemCount    int    `db:"item_count"`
	TotalCents   int64  `db:"total_cents"`
}

func (r invoiceRow) toDomain() (domain.Invoice, error) {
	createdAt, err := store.ParseTimestamp(r.CreatedAt)
	if err != nil {
		return domain.Invoice{}, err
	}
	return domain.Invoice{
		ID:           r.ID,
		Number:       r.Number,
		BusinessDate: r.BusinessDate,
		CreatedAt:    createdAt,
		LineCount:    r.LineCount,
		ItemCount:    r.ItemCount,
		TotalCents:   r.TotalCents,
	}, nil
}

type saleRow struct {
	ID             int64  `db:"id"`
	InvoiceID      string `db:"invoice_id"`
	ItemID         int64  `db:"item_id"`
	ItemName       string `db:"item_name"`
	Quantity       int    `db:"quantity"`
	UnitPriceCents int64  `db:"unit_price_cents"`
	TotalCents     int64  `db:"total_price_cents"`
	SaleDate       string `db:"sale_date"`
}

type counterRow struct {
	Date  string `db:"date"`
	Count int    `db:"count"`
}

const itemColumns = `id, name, price_cents, image, created_at, updated_at`

const invoiceColumns = `id, invoice_number, business_date, created_at, line_count, item_count, total_cents`

func (s *Store) ListItems(ctx context.Context) ([]domain.Item, error) {
	rows := make([]itemRow, 0, 64)
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+itemColumns+` FROM items ORDER BY id`); err != nil {
		return nil, err
	}

	items := make([]domain.Item, 0, len(rows))
	for _, row := range rows {
		item, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *Store) GetItem(ctx context.Context, id int64) (*domain.Item, error) {
	var row itemRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+itemColumns+` FROM items WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	item, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) FindItemByName(ctx context.Context, name string) (*domain.Item, error) {
	var row itemRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT `+itemColumns+`
		FROM items
		WHERE LOWER(name) = LOWER(?)
		ORDER BY id
		LIMIT 1
	`), strings.TrimSpace(name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	item, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	if strings.TrimSpace(item.Name) == "" || item.PriceCents < 0 {
		return nil, store.ErrInvalidInput
	}

	now := time.Now().UTC()
	stamp := store.FormatTimestamp(now)
	var id int64
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(`
		INSERT INTO items (name, price_cents, image, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`), item.Name, item.PriceCents, nullBytes(item.Image), stamp, stamp).Scan(&id)
	if err != nil {
		return nil, err
	}

	return s.GetItem(ctx, id)
}

func (s *Store) UpdateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	if strings.TrimSpace(item.Name) == "" || item.PriceCents < 0 {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE items
		SET name = ?, price_cents = ?, image = ?, updated_at = ?
		WHERE id = ?
	`), item.Name, item.PriceCents, nullBytes(item.Image), store.FormatTimestamp(time.Now()), item.ID)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetItem(ctx, item.ID)
}

func (s *Store) DeleteItem(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM items WHERE id = ?`), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// IncrementDailyCount creates or bumps the day's row in a single statement.
func (s *Store) IncrementDailyCount(ctx context.Context, date string) (int, error) {
	if date == "" {
		return 0, store.ErrInvalidInput
	}

	query := `
		INSERT INTO daily_invoice_count (date, count)
		VALUES (?, 1)
		ON CONFLICT (date) DO UPDATE SET count = count + 1
		RETURNING count
	`
	if s.dialect == DialectPostgres {
		query = `
			INSERT INTO daily_invoice_count (date, count)
			VALUES (?, 1)
			ON CONFLICT (date) DO UPDATE SET count = daily_invoice_count.count + 1
			RETURNING count
		`
	}

	var count int
	if err := s.db.QueryRowxContext(ctx, s.db.Rebind(query), date).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) GetDailyCount(ctx context.Context, date string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, s.db.Rebind(`SELECT count FROM daily_invoice_count WHERE date = ?`), date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return count, nil
}

func (s *Store) PruneDailyCounts(ctx context.Context, before string) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM daily_invoice_count WHERE date < ?`), before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) ListDailyCounts(ctx context.Context) ([]domain.DailyInvoiceCounter, error) {
	rows := make([]counterRow, 0, 32)
	if err := s.db.SelectContext(ctx, &rows, `SELECT date, count FROM daily_invoice_count ORDER BY date`); err != nil {
		return nil, err
	}
	counters := make([]domain.DailyInvoiceCounter, 0, len(rows))
	for _, row := range rows {
		counters = append(counters, domain.DailyInvoiceCounter{Date: row.Date, Count: row.Count})
	}
	return counters, nil
}

func (s *Store) CommitSale(ctx context.Context, invoice domain.Invoice, lines []domain.SaleLine) (*domain.Invoice, error) {
	prepared, err := store.PrepareSale(invoice, lines)
	if err != nil {
		return nil, err
	}
	prepared.CreatedAt = prepared.CreatedAt.UTC()
	soldAt := store.FormatTimestamp(prepared.CreatedAt)

	tx, err := s.db.BeginTxx(ctx, s.txOptions())
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	lookup := `SELECT id FROM items WHERE id = ?`
	if s.dialect == DialectPostgres {
		lookup += ` FOR SHARE`
	}
	for _, itemID := range uniqueItemIDs(lines) {
		var found int64
		err := tx.GetContext(ctx, &found, tx.Rebind(lookup), itemID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: id %d", store.ErrItemNotFound, itemID)
			}
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), prepared.ID, prepared.Number, prepared.BusinessDate, soldAt, prepared.LineCount, prepared.ItemCount, prepared.TotalCents)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("invoice %s on %s already recorded: %w", prepared.Label(), prepared.BusinessDate, err)
		}
		return nil, err
	}

	for _, line := range lines {
		_, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO sales (invoice_id, item_id, item_name, quantity, unit_price_cents, total_price_cents, sale_date)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`), prepared.ID, line.ItemID, line.ItemName, line.Quantity, line.UnitPriceCents, line.TotalCents, soldAt)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &prepared, nil
}

func (s *Store) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	return s.getInvoice(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id)
}

func (s *Store) GetInvoiceAt(ctx context.Context, at time.Time) (*domain.Invoice, error) {
	return s.getInvoice(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE created_at = ?
		ORDER BY invoice_number
		LIMIT 1
	`, store.FormatTimestamp(at))
}

func (s *Store) getInvoice(ctx context.Context, query string, arg any) (*domain.Invoice, error) {
	var row invoiceRow
	if err := s.db.GetContext(ctx, &row, s.db.Rebind(query), arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	invoice, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (s *Store) ListInvoices(ctx context.Context, since time.Time) ([]domain.Invoice, error) {
	rows := make([]invoiceRow, 0, 64)
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE created_at >= ?
		ORDER BY created_at DESC, invoice_number DESC
	`), store.FormatTimestamp(since))
	if err != nil {
		return nil, err
	}

	invoices := make([]domain.Invoice, 0, len(rows))
	for _, row := range rows {
		invoice, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, invoice)
	}
	return invoices, nil
}

const saleColumns = `id, invoice_id, item_id, item_name, quantity, unit_price_cents, total_price_cents, sale_date`

func (s *Store) ListInvoiceLines(ctx context.Context, invoiceID string) ([]domain.SaleLine, error) {
	return s.selectSaleLines(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE invoice_id = ?
		ORDER BY id
	`, invoiceID)
}

func (s *Store) ListSaleLines(ctx context.Context, from time.Time, to time.Time) ([]domain.SaleLine, error) {
	return s.selectSaleLines(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE sale_date >= ? AND sale_date < ?
		ORDER BY sale_date, id
	`, store.FormatTimestamp(from), store.FormatTimestamp(to))
}

func (s *Store) selectSaleLines(ctx context.Context, query string, args ...any) ([]domain.SaleLine, error) {
	rows := make([]saleRow, 0, 8)
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}

	lines := make([]domain.SaleLine, 0, len(rows))
	for _, row := range rows {
		soldAt, err := store.ParseTimestamp(row.SaleDate)
		if err != nil {
			return nil, err
		}
		lines = append(lines, domain.SaleLine{
			ID:             row.ID,
			InvoiceID:      row.InvoiceID,
			ItemID:         row.ItemID,
			ItemName:       row.ItemName,
			Quantity:       row.Quantity,
			UnitPriceCents: row.UnitPriceCents,
			TotalCents:     row.TotalCents,
			SoldAt:         soldAt,
		})
	}
	return lines, nil
}

func (s *Store) AggregateSales(ctx context.Context, from time.Time, to time.Time) ([]domain.ItemTotal, error) {
	totals := make([]domain.ItemTotal, 0, 32)
	rows, err := s.db.QueryxContext(ctx, s.db.Rebind(`
		SELECT
			item_id,
			item_name,
			CAST(SUM(quantity) AS BIGINT) AS quantity,
			CAST(SUM(total_price_cents) AS BIGINT) AS amount_cents
		FROM sales
		WHERE sale_date >= ? AND sale_date < ?
		GROUP BY item_id, item_name
		ORDER BY item_name, item_id
	`), store.FormatTimestamp(from), store.FormatTimestamp(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var total domain.ItemTotal
		if err := rows.Scan(&total.ItemID, &total.ItemName, &total.Quantity, &total.AmountCents); err != nil {
			return nil, err
		}
		totals = append(totals, total)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return totals, nil
}

// Wipe removes every item, sale, invoice and counter.
func (s *Store) Wipe(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, s.txOptions())
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	statements := []string{
		`TRUNCATE sales, invoices, daily_invoice_count, items RESTART IDENTITY`,
	}
	if s.dialect == DialectSQLite {
		statements = []string{
			`DELETE FROM sales`,
			`DELETE FROM invoices`,
			`DELETE FROM daily_invoice_count`,
			`DELETE FROM items`,
			`DELETE FROM sqlite_sequence WHERE name IN ('sales', 'items')`,
		}
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) txOptions() *sql.TxOptions {
	if s.dialect == DialectPostgres {
		return &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	}
	return nil
}

func uniqueItemIDs(lines []domain.SaleLine) []int64 {
	seen := make(map[int64]struct{}, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ItemID]; ok {
			continue
		}
		seen[line.ItemID] = struct{}{}
		ids = append(ids, line.ItemID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func nullBytes(value []byte) any {
	if len(value) == 0 {
		return nil
	}
	return value
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
