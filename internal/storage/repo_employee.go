package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type employeeRepository struct {
	db *sql.DB
}

const employeeColumns = `id, full_name, phone, email, position, salary, join_date, status, note, created_at, updated_at`

var employeeDependents = []dependentCheck{
	{table: "properties", column: "employee_id"},
	{table: "contracts", column: "employee_id"},
	{table: "expenses", column: "employee_id"},
}

func (r *employeeRepository) Create(ctx context.Context, employee *Employee) error {
	if employee == nil {
		return fmt.Errorf("create employee: employee is nil")
	}
	if err := validateEmployee(employee); err != nil {
		return err
	}

	now := nowUTC()
	employee.CreatedAt = now
	employee.UpdatedAt = now

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO employees(full_name, phone, email, position, salary, join_date, status, note, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, employee.FullName, nullableString(employee.Phone), nullableString(employee.Email), nullableString(employee.Position),
		fmtDecimal(employee.Salary), fmtDate(employee.JoinDate), string(employee.Status), nullableString(employee.Note),
		fmtTime(now), fmtTime(now))
	if err != nil {
		return fmt.Errorf("create employee: insert: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("create employee: last insert id: %w", err)
	}
	employee.ID = id
	return nil
}

func (r *employeeRepository) Get(ctx context.Context, id int64) (*Employee, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = ?`, id)
	employee, err := scanEmployee(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get employee: %w", err)
	}
	return employee, nil
}

func (r *employeeRepository) List(ctx context.Context, filter PersonFilter) ([]Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE 1=1 `
	args := []any{}
	if strings.TrimSpace(filter.Search) != "" {
		pattern := likePattern(filter.Search)
		query += ` AND (full_name LIKE ? ESCAPE '\' OR phone LIKE ? ESCAPE '\' OR email LIKE ? ESCAPE '\' OR position LIKE ? ESCAPE '\') `
		args = append(args, pattern, pattern, pattern, pattern)
	}
	query += ` ORDER BY full_name ASC, id ASC `

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	defer rows.Close()

	var out []Employee
	for rows.Next() {
		employee, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("list employees: %w", err)
		}
		out = append(out, *employee)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list employees: iterate: %w", err)
	}
	return out, nil
}

func (r *employeeRepository) Update(ctx context.Context, employee *Employee) error {
	if employee == nil {
		return fmt.Errorf("update employee: employee is nil")
	}
	if employee.ID == 0 {
		return validationErrorf("employee id is required")
	}
	if err := validateEmployee(employee); err != nil {
		return err
	}

	employee.UpdatedAt = nowUTC()
	result, err := r.db.ExecContext(ctx, `
		UPDATE employees
		SET full_name = ?, phone = ?, email = ?, position = ?, salary = ?, join_date = ?, status = ?, note = ?, updated_at = ?
		WHERE id = ?
	`, employee.FullName, nullableString(employee.Phone), nullableString(employee.Email), nullableString(employee.Position),
		fmtDecimal(employee.Salary), fmtDate(employee.JoinDate), string(employee.Status), nullableString(employee.Note),
		fmtTime(employee.UpdatedAt), employee.ID)
	if err != nil {
		return fmt.Errorf("update employee: %w", err)
	}
	return expectOneRow(result, "update employee")
}

// Delete refuses while any property, contract or expense references the
// employee.
func (r *employeeRepository) Delete(ctx context.Context, id int64) error {
	return deleteUnreferenced(ctx, r.db, "employee", "employees", id, employeeDependents)
}

func validateEmployee(employee *Employee) error {
	employee.FullName = strings.TrimSpace(employee.FullName)
	if employee.FullName == "" {
		return validationErrorf("employee full name is required")
	}
	if employee.Status == "" {
		employee.Status = EmployeeStatusActive
	}
	if !employee.Status.Valid() {
		return validationErrorf("unsupported employee status %q", employee.Status)
	}
	if employee.Salary.IsNegative() {
		return validationErrorf("salary must not be negative")
	}
	if employee.JoinDate.IsZero() {
		return validationErrorf("join date is required")
	}
	return nil
}

func scanEmployee(scanner rowScanner) (*Employee, error) {
	var (
		employee  Employee
		phone     sql.NullString
		email     sql.NullString
		position  sql.NullString
		salary    string
		joinDate  string
		status    string
		note      sql.NullString
		createdAt string
		updatedAt string
	)
	if err := scanner.Scan(&employee.ID, &employee.FullName, &phone, &email, &position, &salary, &joinDate, &status, &note, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	employee.Phone = phone.String
	employee.Email = email.String
	employee.Position = position.String
	employee.Status = EmployeeStatus(status)
	employee.Note = note.String
	if employee.Salary, err = parseDecimal(salary); err != nil {
		return nil, err
	}
	if employee.JoinDate, err = parseDate(joinDate); err != nil {
		return nil, err
	}
	if employee.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if employee.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &employee, nil
}
