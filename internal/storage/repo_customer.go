package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type customerRepository struct {
	db *sql.DB
}

const customerColumns = `id, full_name, phone, email, id_number, address, note, created_at, updated_at`

var customerDependents = []dependentCheck{
	{table: "contracts", column: "customer_id"},
}

func (r *customerRepository) Create(ctx context.Context, customer *Customer) error {
	if customer == nil {
		return fmt.Errorf("create customer: customer is nil")
	}
	if err := validateCustomer(customer); err != nil {
		return err
	}

	now := nowUTC()
	customer.CreatedAt = now
	customer.UpdatedAt = now

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO customers(full_name, phone, email, id_number, address, note, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
	`, customer.FullName, nullableString(customer.Phone), nullableString(customer.Email), nullableString(customer.IDNumber),
		nullableString(customer.Address), nullableString(customer.Note), fmtTime(now), fmtTime(now))
	if err != nil {
		return fmt.Errorf("create customer: insert: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("create customer: last insert id: %w", err)
	}
	customer.ID = id
	return nil
}

func (r *customerRepository) Get(ctx context.Context, id int64) (*Customer, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = ?`, id)
	customer, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return customer, nil
}

func (r *customerRepository) List(ctx context.Context, filter PersonFilter) ([]Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE 1=1 `
	args := []any{}
	if strings.TrimSpace(filter.Search) != "" {
		pattern := likePattern(filter.Search)
		query += ` AND (full_name LIKE ? ESCAPE '\' OR phone LIKE ? ESCAPE '\' OR email LIKE ? ESCAPE '\' OR id_number LIKE ? ESCAPE '\') `
		args = append(args, pattern, pattern, pattern, pattern)
	}
	query += ` ORDER BY full_name ASC, id ASC `

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("list customers: %w", err)
		}
		out = append(out, *customer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list customers: iterate: %w", err)
	}
	return out, nil
}

func (r *customerRepository) Update(ctx context.Context, customer *Customer) error {
	if customer == nil {
		return fmt.Errorf("update customer: customer is nil")
	}
	if customer.ID == 0 {
		return validationErrorf("customer id is required")
	}
	if err := validateCustomer(customer); err != nil {
		return err
	}

	customer.UpdatedAt = nowUTC()
	result, err := r.db.ExecContext(ctx, `
		UPDATE customers
		SET full_name = ?, phone = ?, email = ?, id_number = ?, address = ?, note = ?, updated_at = ?
		WHERE id = ?
	`, customer.FullName, nullableString(customer.Phone), nullableString(customer.Email), nullableString(customer.IDNumber),
		nullableString(customer.Address), nullableString(customer.Note), fmtTime(customer.UpdatedAt), customer.ID)
	if err != nil {
		return fmt.Errorf("update customer: %w", err)
	}
	return expectOneRow(result, "update customer")
}

func (r *customerRepository) Delete(ctx context.Context, id int64) error {
	return deleteUnreferenced(ctx, r.db, "customer", "customers", id, customerDependents)
}

func validateCustomer(customer *Customer) error {
	customer.FullName = strings.TrimSpace(customer.FullName)
	if customer.FullName == "" {
		return validationErrorf("customer full name is required")
	}
	return nil
}

func scanCustomer(scanner rowScanner) (*Customer, error) {
	var (
		customer  Customer
		phone     sql.NullString
		email     sql.NullString
		idNumber  sql.NullString
		address   sql.NullString
		note      sql.NullString
		createdAt string
		updatedAt string
	)
	if err := scanner.Scan(&customer.ID, &customer.FullName, &phone, &email, &idNumber, &address, &note, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	customer.Phone = phone.String
	customer.Email = email.String
	customer.IDNumber = idNumber.String
	customer.Address = address.String
	customer.Note = note.String
	if customer.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if customer.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &customer, nil
}
