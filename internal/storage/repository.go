// Package storage is the durable ledger store: SQLite-backed entity
// persistence with transactional write primitives and atomic balance
// increments.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"movimenti/internal/core"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound covers both a missing row and a row owned by another
	// user; callers cannot tell the two apart.
	ErrNotFound = errors.New("not found")

	// ErrConflict signals a uniqueness violation on a dependent entity,
	// e.g. a second budget for the same category and month.
	ErrConflict = errors.New("conflict")
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath, migrationsFS); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Tx is one atomic unit of work spanning a movement row and its account
// balance deltas. Either everything inside commits or nothing does.
type Tx struct {
	tx *sql.Tx
}

func (r *SQLiteRepository) BeginTx(ctx context.Context) (*Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback is safe to defer after Commit; the driver's "already done"
// error is swallowed.
func (t *Tx) Rollback() {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		slog.Error("Transaction rollback failed", "error", err)
	}
}

// AddToBalance issues an atomic signed increment against the stored
// computed balance. Never read-then-write: concurrent movements on the
// same account must not lose updates.
func (t *Tx) AddToBalance(ctx context.Context, userID string, accountID, deltaCents int64) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE accounts
		SET computed_balance_cents = computed_balance_cents + ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?`,
		deltaCents, accountID, userID)
	if err != nil {
		return fmt.Errorf("update account balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("account %d: %w", accountID, ErrNotFound)
	}
	return nil
}

const movementColumns = `id, user_id, date, description, kind, category_id, amount_cents,
	payment_method, origin_account_id, destination_account_id, credit_instrument_id,
	installments, reconciled, reconciliation_month`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMovement(row rowScanner) (core.Movement, error) {
	var (
		m          core.Movement
		dateStr    string
		origin     sql.NullInt64
		dest       sql.NullInt64
		credit     sql.NullInt64
		installs   sql.NullInt64
		reconciled string
		month      string
	)
	err := row.Scan(&m.ID, &m.UserID, &dateStr, &m.Description, &m.Kind, &m.CategoryID,
		&m.Amount.Cents, &m.PaymentMethod, &origin, &dest, &credit, &installs,
		&reconciled, &month)
	if err != nil {
		return core.Movement{}, err
	}
	m.Date, err = core.ParseDate(dateStr)
	if err != nil {
		return core.Movement{}, fmt.Errorf("movement %d has malformed date %q: %w", m.ID, dateStr, err)
	}
	m.OriginAccountID = nullableID(origin)
	m.DestinationAccountID = nullableID(dest)
	m.CreditInstrumentID = nullableID(credit)
	m.Installments = nullableID(installs)
	m.Reconciled = core.ReconciliationState(reconciled)
	m.ReconciliationMonth = core.MonthTag(month)
	return m, nil
}

func nullableID(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func nullArg(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

// GetMovement loads one movement inside the transaction, scoped to its
// owner.
func (t *Tx) GetMovement(ctx context.Context, userID string, id int64) (core.Movement, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+movementColumns+` FROM movements WHERE id = ? AND user_id = ?`, id, userID)
	m, err := scanMovement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Movement{}, ErrNotFound
	}
	if err != nil {
		return core.Movement{}, fmt.Errorf("get movement: %w", err)
	}
	return m, nil
}

func (t *Tx) InsertMovement(ctx context.Context, m core.Movement) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO movements (user_id, date, description, kind, category_id, amount_cents,
			payment_method, origin_account_id, destination_account_id, credit_instrument_id,
			installments, reconciled, reconciliation_month)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.UserID, m.Date.String(), m.Description, m.Kind, m.CategoryID, m.Amount.Cents,
		m.PaymentMethod, nullArg(m.OriginAccountID), nullArg(m.DestinationAccountID),
		nullArg(m.CreditInstrumentID), nullArg(m.Installments), m.Reconciled,
		string(m.ReconciliationMonth))
	if err != nil {
		return 0, fmt.Errorf("insert movement: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func (t *Tx) UpdateMovement(ctx context.Context, m core.Movement) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE movements
		SET date = ?, description = ?, kind = ?, category_id = ?, amount_cents = ?,
		    payment_method = ?, origin_account_id = ?, destination_account_id = ?,
		    credit_instrument_id = ?, installments = ?, reconciled = ?,
		    reconciliation_month = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?`,
		m.Date.String(), m.Description, m.Kind, m.CategoryID, m.Amount.Cents,
		m.PaymentMethod, nullArg(m.OriginAccountID), nullArg(m.DestinationAccountID),
		nullArg(m.CreditInstrumentID), nullArg(m.Installments), m.Reconciled,
		string(m.ReconciliationMonth), m.ID, m.UserID)
	if err != nil {
		return fmt.Errorf("update movement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *Tx) DeleteMovement(ctx context.Context, userID string, id int64) error {
	res, err := t.tx.ExecContext(ctx,
		`DELETE FROM movements WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete movement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetMovement loads one movement outside any transaction.
func (r *SQLiteRepository) GetMovement(ctx context.Context, userID string, id int64) (core.Movement, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+movementColumns+` FROM movements WHERE id = ? AND user_id = ?`, id, userID)
	m, err := scanMovement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Movement{}, ErrNotFound
	}
	if err != nil {
		return core.Movement{}, fmt.Errorf("get movement: %w", err)
	}
	return m, nil
}

// MovementFilter narrows ListMovements. Zero values mean "no filter".
type MovementFilter struct {
	Year       int
	Month      int
	Kind       core.MovementKind
	CategoryID int64
}

// ListMovements returns a user's movements, newest date first, with
// optional filters on date month, kind, and category.
func (r *SQLiteRepository) ListMovements(ctx context.Context, userID string, f MovementFilter) ([]core.Movement, error) {
	query := `SELECT ` + movementColumns + ` FROM movements WHERE user_id = ?`
	args := []any{userID}

	if f.Year != 0 && f.Month != 0 {
		query += ` AND substr(date, 1, 7) = ?`
		args = append(args, fmt.Sprintf("%04d-%02d", f.Year, f.Month))
	}
	if f.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, f.Kind)
	}
	if f.CategoryID != 0 {
		query += ` AND category_id = ?`
		args = append(args, f.CategoryID)
	}
	query += ` ORDER BY date DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()

	var out []core.Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CreateAccount persists a new account. The computed balance starts at
// the initial balance; every later change flows through AddToBalance.
func (r *SQLiteRepository) CreateAccount(ctx context.Context, a core.Account) (int64, error) {
	var finalBalance any
	if a.FinalBalance != nil {
		finalBalance = a.FinalBalance.Cents
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (user_id, name, bank, initial_balance_cents,
			final_balance_cents, computed_balance_cents, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.UserID, a.Name, a.Bank, a.InitialBalance.Cents, finalBalance,
		a.InitialBalance.Cents, a.Active)
	if err != nil {
		return 0, fmt.Errorf("insert account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func scanAccount(row rowScanner) (core.Account, error) {
	var (
		a     core.Account
		final sql.NullInt64
	)
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Bank, &a.InitialBalance.Cents,
		&final, &a.ComputedBalance.Cents, &a.Active)
	if err != nil {
		return core.Account{}, err
	}
	if final.Valid {
		a.FinalBalance = &core.Money{Cents: final.Int64}
	}
	return a, nil
}

const accountColumns = `id, user_id, name, bank, initial_balance_cents,
	final_balance_cents, computed_balance_cents, active`

func (r *SQLiteRepository) GetAccount(ctx context.Context, userID string, id int64) (core.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ? AND user_id = ?`, id, userID)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, ErrNotFound
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (r *SQLiteRepository) ListAccounts(ctx context.Context, userID string) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateAccountDetails changes descriptive fields only. The computed
// balance is deliberately untouchable here.
func (r *SQLiteRepository) UpdateAccountDetails(ctx context.Context, a core.Account) error {
	var finalBalance any
	if a.FinalBalance != nil {
		finalBalance = a.FinalBalance.Cents
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET name = ?, bank = ?, final_balance_cents = ?, active = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?`,
		a.Name, a.Bank, finalBalance, a.Active, a.ID, a.UserID)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
