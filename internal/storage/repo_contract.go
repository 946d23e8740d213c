package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type contractRepository struct {
	db *sql.DB
}

const contractSelect = `
	SELECT c.id, c.property_id, c.customer_id, c.employee_id, c.contract_number, c.contract_type, c.amount,
		c.start_date, c.sign_date, c.end_date, c.status, c.note,
		COALESCE(p.title, ''), COALESCE(p.listing_code, ''), COALESCE(cu.full_name, ''), COALESCE(e.full_name, ''),
		c.created_at, c.updated_at
	FROM contracts c
	LEFT JOIN properties p ON p.id = c.property_id
	LEFT JOIN customers cu ON cu.id = c.customer_id
	LEFT JOIN employees e ON e.id = c.employee_id
`

var contractDependents = []dependentCheck{
	{table: "down_payments", column: "contract_id"},
}

func (r *contractRepository) Create(ctx context.Context, contract *Contract) error {
	if contract == nil {
		return fmt.Errorf("create contract: contract is nil")
	}
	if err := validateContract(contract); err != nil {
		return err
	}

	now := nowUTC()
	contract.CreatedAt = now
	contract.UpdatedAt = now

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO contracts(property_id, customer_id, employee_id, contract_number, contract_type, amount,
			start_date, sign_date, end_date, status, note, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, contract.PropertyID, contract.CustomerID, contract.EmployeeID, contract.ContractNumber, string(contract.Type),
		fmtDecimal(contract.Amount), fmtDate(contract.StartDate), fmtDate(contract.SignDate), nullableDate(contract.EndDate),
		string(contract.Status), nullableString(contract.Note), fmtTime(now), fmtTime(now))
	if err != nil {
		if isForeignKeyError(err) {
			return validationErrorf("contract references a missing property, customer or employee")
		}
		return fmt.Errorf("create contract: insert: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("create contract: last insert id: %w", err)
	}
	contract.ID = id
	return nil
}

func (r *contractRepository) Get(ctx context.Context, id int64) (*Contract, error) {
	row := r.db.QueryRowContext(ctx, contractSelect+` WHERE c.id = ?`, id)
	contract, err := scanContract(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get contract: %w", err)
	}
	return contract, nil
}

// List returns the most recently signed contracts first.
func (r *contractRepository) List(ctx context.Context, filter ContractFilter) ([]Contract, error) {
	query := contractSelect + ` WHERE 1=1 `
	args := []any{}
	if filter.Status != "" {
		query += ` AND c.status = ? `
		args = append(args, string(filter.Status))
	}
	if filter.Type != "" {
		query += ` AND c.contract_type = ? `
		args = append(args, string(filter.Type))
	}
	if filter.PropertyID != nil {
		query += ` AND c.property_id = ? `
		args = append(args, *filter.PropertyID)
	}
	if filter.CustomerID != nil {
		query += ` AND c.customer_id = ? `
		args = append(args, *filter.CustomerID)
	}
	if filter.EmployeeID != nil {
		query += ` AND c.employee_id = ? `
		args = append(args, *filter.EmployeeID)
	}
	query += ` ORDER BY c.sign_date DESC, c.id DESC `

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	defer rows.Close()

	var out []Contract
	for rows.Next() {
		contract, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("list contracts: %w", err)
		}
		out = append(out, *contract)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list contracts: iterate: %w", err)
	}
	return out, nil
}

func (r *contractRepository) Update(ctx context.Context, contract *Contract) error {
	if contract == nil {
		return fmt.Errorf("update contract: contract is nil")
	}
	if contract.ID == 0 {
		return validationErrorf("contract id is required")
	}
	if err := validateContract(contract); err != nil {
		return err
	}

	contract.UpdatedAt = nowUTC()
	result, err := r.db.ExecContext(ctx, `
		UPDATE contracts
		SET property_id = ?, customer_id = ?, employee_id = ?, contract_number = ?, contract_type = ?, amount = ?,
			start_date = ?, sign_date = ?, end_date = ?, status = ?, note = ?, updated_at = ?
		WHERE id = ?
	`, contract.PropertyID, contract.CustomerID, contract.EmployeeID, contract.ContractNumber, string(contract.Type),
		fmtDecimal(contract.Amount), fmtDate(contract.StartDate), fmtDate(contract.SignDate), nullableDate(contract.EndDate),
		string(contract.Status), nullableString(contract.Note), fmtTime(contract.UpdatedAt), contract.ID)
	if err != nil {
		if isForeignKeyError(err) {
			return validationErrorf("contract references a missing property, customer or employee")
		}
		return fmt.Errorf("update contract: %w", err)
	}
	return expectOneRow(result, "update contract")
}

// Delete refuses while any down payment is recorded against the contract.
func (r *contractRepository) Delete(ctx context.Context, id int64) error {
	return deleteUnreferenced(ctx, r.db, "contract", "contracts", id, contractDependents)
}

func validateContract(contract *Contract) error {
	contract.ContractNumber = strings.TrimSpace(contract.ContractNumber)
	if contract.ContractNumber == "" {
		return validationErrorf("contract number is required")
	}
	if contract.PropertyID <= 0 {
		return validationErrorf("contract property is required")
	}
	if contract.CustomerID <= 0 {
		return validationErrorf("contract customer is required")
	}
	if contract.EmployeeID <= 0 {
		return validationErrorf("contract employee is required")
	}
	if !contract.Type.Valid() {
		return validationErrorf("unsupported contract type %q", contract.Type)
	}
	if contract.Status == "" {
		contract.Status = ContractStatusActive
	}
	if !contract.Status.Valid() {
		return validationErrorf("unsupported contract status %q", contract.Status)
	}
	if contract.Amount.IsNegative() {
		return validationErrorf("contract amount must not be negative")
	}
	if contract.StartDate.IsZero() {
		return validationErrorf("contract start date is required")
	}
	if contract.SignDate.IsZero() {
		return validationErrorf("contract sign date is required")
	}
	if contract.EndDate != nil && contract.EndDate.Before(contract.StartDate) {
		return validationErrorf("contract end date precedes start date")
	}
	return nil
}

func scanContract(scanner rowScanner) (*Contract, error) {
	var (
		contract     Contract
		contractType string
		amount       string
		startDate    string
		signDate     string
		endDate      sql.NullString
		status       string
		note         sql.NullString
		createdAt    string
		updatedAt    string
	)
	if err := scanner.Scan(
		&contract.ID, &contract.PropertyID, &contract.CustomerID, &contract.EmployeeID, &contract.ContractNumber,
		&contractType, &amount, &startDate, &signDate, &endDate, &status, &note,
		&contract.PropertyTitle, &contract.PropertyListingCode, &contract.CustomerName, &contract.EmployeeName,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	contract.Type = ContractType(contractType)
	contract.Status = ContractStatus(status)
	contract.Note = note.String
	if contract.Amount, err = parseDecimal(amount); err != nil {
		return nil, err
	}
	if contract.StartDate, err = parseDate(startDate); err != nil {
		return nil, err
	}
	if contract.SignDate, err = parseDate(signDate); err != nil {
		return nil, err
	}
	if contract.EndDate, err = parseNullableDate(endDate); err != nil {
		return nil, err
	}
	if contract.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if contract.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &contract, nil
}
