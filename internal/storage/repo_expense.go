package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type expenseRepository struct {
	db *sql.DB
}

const expenseSelect = `
	SELECT x.id, x.category, x.description, x.amount, x.expense_date, x.employee_id, x.property_id, x.status, x.note,
		COALESCE(e.full_name, ''), COALESCE(p.title, ''), x.created_at, x.updated_at
	FROM expenses x
	LEFT JOIN employees e ON e.id = x.employee_id
	LEFT JOIN properties p ON p.id = x.property_id
`

func (r *expenseRepository) Create(ctx context.Context, expense *Expense) error {
	if expense == nil {
		return fmt.Errorf("create expense: expense is nil")
	}
	if err := validateExpense(expense); err != nil {
		return err
	}

	now := nowUTC()
	expense.CreatedAt = now
	expense.UpdatedAt = now

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO expenses(category, description, amount, expense_date, employee_id, property_id, status, note, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, expense.Category, nullableString(expense.Description), fmtDecimal(expense.Amount), fmtDate(expense.ExpenseDate),
		nullableID(expense.EmployeeID), nullableID(expense.PropertyID), string(expense.Status), nullableString(expense.Note),
		fmtTime(now), fmtTime(now))
	if err != nil {
		if isForeignKeyError(err) {
			return validationErrorf("expense references a missing employee or property")
		}
		return fmt.Errorf("create expense: insert: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("create expense: last insert id: %w", err)
	}
	expense.ID = id
	return nil
}

func (r *expenseRepository) Get(ctx context.Context, id int64) (*Expense, error) {
	row := r.db.QueryRowContext(ctx, expenseSelect+` WHERE x.id = ?`, id)
	expense, err := scanExpense(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get expense: %w", err)
	}
	return expense, nil
}

func (r *expenseRepository) List(ctx context.Context, filter ExpenseFilter) ([]Expense, error) {
	query := expenseSelect + ` WHERE 1=1 `
	args := []any{}
	if filter.Category != "" {
		query += ` AND x.category = ? COLLATE NOCASE `
		args = append(args, filter.Category)
	}
	if filter.Status != "" {
		query += ` AND x.status = ? `
		args = append(args, string(filter.Status))
	}
	if filter.EmployeeID != nil {
		query += ` AND x.employee_id = ? `
		args = append(args, *filter.EmployeeID)
	}
	if filter.PropertyID != nil {
		query += ` AND x.property_id = ? `
		args = append(args, *filter.PropertyID)
	}
	if filter.From != nil {
		query += ` AND x.expense_date >= ? `
		args = append(args, fmtDate(*filter.From))
	}
	if filter.To != nil {
		query += ` AND x.expense_date <= ? `
		args = append(args, fmtDate(*filter.To))
	}
	query += ` ORDER BY x.expense_date DESC, x.id DESC `

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []Expense
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("list expenses: %w", err)
		}
		out = append(out, *expense)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list expenses: iterate: %w", err)
	}
	return out, nil
}

func (r *expenseRepository) Update(ctx context.Context, expense *Expense) error {
	if expense == nil {
		return fmt.Errorf("update expense: expense is nil")
	}
	if expense.ID == 0 {
		return validationErrorf("expense id is required")
	}
	if err := validateExpense(expense); err != nil {
		return err
	}

	expense.UpdatedAt = nowUTC()
	result, err := r.db.ExecContext(ctx, `
		UPDATE expenses
		SET category = ?, description = ?, amount = ?, expense_date = ?, employee_id = ?, property_id = ?, status = ?, note = ?, updated_at = ?
		WHERE id = ?
	`, expense.Category, nullableString(expense.Description), fmtDecimal(expense.Amount), fmtDate(expense.ExpenseDate),
		nullableID(expense.EmployeeID), nullableID(expense.PropertyID), string(expense.Status), nullableString(expense.Note),
		fmtTime(expense.UpdatedAt), expense.ID)
	if err != nil {
		if isForeignKeyError(err) {
			return validationErrorf("expense references a missing employee or property")
		}
		return fmt.Errorf("update expense: %w", err)
	}
	return expectOneRow(result, "update expense")
}

func (r *expenseRepository) Delete(ctx context.Context, id int64) error {
	return deleteUnreferenced(ctx, r.db, "expense", "expenses", id, nil)
}

func validateExpense(expense *Expense) error {
	expense.Category = strings.TrimSpace(expense.Category)
	if expense.Category == "" {
		return validationErrorf("expense category is required")
	}
	if !expense.Amount.IsPositive() {
		return validationErrorf("expense amount must be positive")
	}
	if expense.ExpenseDate.IsZero() {
		return validationErrorf("expense date is required")
	}
	if expense.Status == "" {
		expense.Status = ExpenseStatusPaid
	}
	if !expense.Status.Valid() {
		return validationErrorf("unsupported expense status %q", expense.Status)
	}
	return nil
}

func scanExpense(scanner rowScanner) (*Expense, error) {
	var (
		expense     Expense
		description sql.NullString
		amount      string
		expenseDate string
		employeeID  sql.NullInt64
		propertyID  sql.NullInt64
		status      string
		note        sql.NullString
		createdAt   string
		updatedAt   string
	)
	if err := scanner.Scan(
		&expense.ID, &expense.Category, &description, &amount, &expenseDate, &employeeID, &propertyID, &status, &note,
		&expense.EmployeeName, &expense.PropertyTitle, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	expense.Description = description.String
	expense.EmployeeID = idPtr(employeeID)
	expense.PropertyID = idPtr(propertyID)
	expense.Status = ExpenseStatus(status)
	expense.Note = note.String
	if expense.Amount, err = parseDecimal(amount); err != nil {
		return nil, err
	}
	if expense.ExpenseDate, err = parseDate(expenseDate); err != nil {
		return nil, err
	}
	if expense.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if expense.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &expense, nil
}
