package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"movimenti/internal/core"
)

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (user_id, name) VALUES (?, ?)`,
		c.UserID, c.Name)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("category %q: %w", c.Name, ErrConflict)
	}
	if err != nil {
		return 0, fmt.Errorf("insert category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, userID string) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name FROM categories WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateBudget enforces one budget per user, category and month at the
// storage level; a duplicate surfaces as ErrConflict.
func (r *SQLiteRepository) CreateBudget(ctx context.Context, b core.Budget) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO budgets (user_id, category_id, month, limit_cents)
		VALUES (?, ?, ?, ?)`,
		b.UserID, b.CategoryID, string(b.Month), b.Limit.Cents)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("budget for category %d in %s: %w", b.CategoryID, b.Month, ErrConflict)
	}
	if err != nil {
		return 0, fmt.Errorf("insert budget: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) ListBudgets(ctx context.Context, userID string, month core.MonthTag) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, category_id, month, limit_cents
		FROM budgets WHERE user_id = ? AND month = ?
		ORDER BY category_id`, userID, string(month))
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		var b core.Budget
		var m string
		if err := rows.Scan(&b.ID, &b.UserID, &b.CategoryID, &m, &b.Limit.Cents); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		b.Month = core.MonthTag(m)
		out = append(out, b)
	}
	return out, rows.Err()
}

// SumExpensesByCategory aggregates expense totals per category for one
// reconciliation month, used to compare spend against budgets.
func (r *SQLiteRepository) SumExpensesByCategory(ctx context.Context, userID string, month core.MonthTag) (map[int64]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT category_id, SUM(amount_cents)
		FROM movements
		WHERE user_id = ? AND kind = 'expense' AND reconciliation_month = ?
		GROUP BY category_id`, userID, string(month))
	if err != nil {
		return nil, fmt.Errorf("sum expenses by category: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]int64)
	for rows.Next() {
		var categoryID, cents int64
		if err := rows.Scan(&categoryID, &cents); err != nil {
			return nil, fmt.Errorf("scan expense sum: %w", err)
		}
		out[categoryID] = cents
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CreateRecurringMovement(ctx context.Context, rm core.RecurringMovement) (int64, error) {
	var endDate any
	if !rm.EndDate.IsZero() {
		endDate = rm.EndDate.String()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO recurring_movements (user_id, every, start_date, end_date,
			description, kind, category_id, amount_cents, payment_method,
			origin_account_id, destination_account_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rm.UserID, rm.Every, rm.StartDate.String(), endDate,
		rm.Description, rm.Kind, rm.CategoryID, rm.Amount.Cents, rm.PaymentMethod,
		nullArg(rm.OriginAccountID), nullArg(rm.DestinationAccountID))
	if err != nil {
		return 0, fmt.Errorf("insert recurring movement: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// ListRecurring returns every recurring template across all users; the
// recurring worker decides which are due.
func (r *SQLiteRepository) ListRecurring(ctx context.Context) ([]core.RecurringMovement, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, every, start_date, end_date, description, kind,
			category_id, amount_cents, payment_method,
			origin_account_id, destination_account_id, last_execution_date
		FROM recurring_movements
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list recurring movements: %w", err)
	}
	defer rows.Close()

	var out []core.RecurringMovement
	for rows.Next() {
		var (
			rm       core.RecurringMovement
			origin   sql.NullInt64
			dest     sql.NullInt64
			startStr string
			endStr   sql.NullString
			last     sql.NullTime
		)
		err := rows.Scan(&rm.ID, &rm.UserID, &rm.Every, &startStr, &endStr,
			&rm.Description, &rm.Kind, &rm.CategoryID, &rm.Amount.Cents,
			&rm.PaymentMethod, &origin, &dest, &last)
		if err != nil {
			return nil, fmt.Errorf("scan recurring movement: %w", err)
		}
		rm.StartDate, err = core.ParseDate(startStr)
		if err != nil {
			return nil, fmt.Errorf("recurring %d has malformed start date %q: %w", rm.ID, startStr, err)
		}
		if endStr.Valid {
			rm.EndDate, err = core.ParseDate(endStr.String)
			if err != nil {
				return nil, fmt.Errorf("recurring %d has malformed end date %q: %w", rm.ID, endStr.String, err)
			}
		}
		rm.OriginAccountID = nullableID(origin)
		rm.DestinationAccountID = nullableID(dest)
		if last.Valid {
			rm.LastExecution = last.Time
		}
		out = append(out, rm)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) MarkRecurringExecuted(ctx context.Context, id int64, on time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE recurring_movements
		SET last_execution_date = ?
		WHERE id = ?`,
		on, id)
	if err != nil {
		return fmt.Errorf("mark recurring executed: %w", err)
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
