package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type downPaymentRepository struct {
	db *sql.DB
}

const downPaymentSelect = `
	SELECT d.id, d.contract_id, d.amount, d.payment_date, d.method, d.payment_type, d.payment_number, d.note,
		COALESCE(c.contract_number, ''), d.created_at, d.updated_at
	FROM down_payments d
	LEFT JOIN contracts c ON c.id = d.contract_id
`

func (r *downPaymentRepository) Create(ctx context.Context, payment *DownPayment) error {
	if payment == nil {
		return fmt.Errorf("create down payment: payment is nil")
	}
	if err := validateDownPayment(payment); err != nil {
		return err
	}

	now := nowUTC()
	payment.CreatedAt = now
	payment.UpdatedAt = now

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO down_payments(contract_id, amount, payment_date, method, payment_type, payment_number, note, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, payment.ContractID, fmtDecimal(payment.Amount), fmtDate(payment.PaymentDate), string(payment.Method),
		nullableString(payment.PaymentType), nullableString(payment.PaymentNumber), nullableString(payment.Note),
		fmtTime(now), fmtTime(now))
	if err != nil {
		if isForeignKeyError(err) {
			return validationErrorf("contract %d does not exist", payment.ContractID)
		}
		return fmt.Errorf("create down payment: insert: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("create down payment: last insert id: %w", err)
	}
	payment.ID = id
	return nil
}

func (r *downPaymentRepository) Get(ctx context.Context, id int64) (*DownPayment, error) {
	row := r.db.QueryRowContext(ctx, downPaymentSelect+` WHERE d.id = ?`, id)
	payment, err := scanDownPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get down payment: %w", err)
	}
	return payment, nil
}

func (r *downPaymentRepository) List(ctx context.Context, filter DownPaymentFilter) ([]DownPayment, error) {
	query := downPaymentSelect + ` WHERE 1=1 `
	args := []any{}
	if filter.ContractID != nil {
		query += ` AND d.contract_id = ? `
		args = append(args, *filter.ContractID)
	}
	if filter.From != nil {
		query += ` AND d.payment_date >= ? `
		args = append(args, fmtDate(*filter.From))
	}
	if filter.To != nil {
		query += ` AND d.payment_date <= ? `
		args = append(args, fmtDate(*filter.To))
	}
	query += ` ORDER BY d.payment_date DESC, d.id DESC `

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list down payments: %w", err)
	}
	defer rows.Close()

	var out []DownPayment
	for rows.Next() {
		payment, err := scanDownPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("list down payments: %w", err)
		}
		out = append(out, *payment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list down payments: iterate: %w", err)
	}
	return out, nil
}

func (r *downPaymentRepository) ListByContract(ctx context.Context, contractID int64) ([]DownPayment, error) {
	return r.List(ctx, DownPaymentFilter{ContractID: &contractID})
}

// TotalForContract returns the sum and count of a contract's payments. The
// sum uses decimal arithmetic; amounts are stored as text and never pass
// through SQLite's floating point SUM.
func (r *downPaymentRepository) TotalForContract(ctx context.Context, contractID int64) (decimal.Decimal, int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT amount FROM down_payments WHERE contract_id = ?`, contractID)
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("total down payments: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	count := 0
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, 0, fmt.Errorf("total down payments: scan: %w", err)
		}
		amount, err := parseDecimal(raw)
		if err != nil {
			return decimal.Zero, 0, fmt.Errorf("total down payments: %w", err)
		}
		total = total.Add(amount)
		count++
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, 0, fmt.Errorf("total down payments: iterate: %w", err)
	}
	return total, count, nil
}

func (r *downPaymentRepository) Update(ctx context.Context, payment *DownPayment) error {
	if payment == nil {
		return fmt.Errorf("update down payment: payment is nil")
	}
	if payment.ID == 0 {
		return validationErrorf("down payment id is required")
	}
	if err := validateDownPayment(payment); err != nil {
		return err
	}

	payment.UpdatedAt = nowUTC()
	result, err := r.db.ExecContext(ctx, `
		UPDATE down_payments
		SET contract_id = ?, amount = ?, payment_date = ?, method = ?, payment_type = ?, payment_number = ?, note = ?, updated_at = ?
		WHERE id = ?
	`, payment.ContractID, fmtDecimal(payment.Amount), fmtDate(payment.PaymentDate), string(payment.Method),
		nullableString(payment.PaymentType), nullableString(payment.PaymentNumber), nullableString(payment.Note),
		fmtTime(payment.UpdatedAt), payment.ID)
	if err != nil {
		if isForeignKeyError(err) {
			return validationErrorf("contract %d does not exist", payment.ContractID)
		}
		return fmt.Errorf("update down payment: %w", err)
	}
	return expectOneRow(result, "update down payment")
}

func (r *downPaymentRepository) Delete(ctx context.Context, id int64) error {
	return deleteUnreferenced(ctx, r.db, "down payment", "down_payments", id, nil)
}

func validateDownPayment(payment *DownPayment) error {
	if payment.ContractID <= 0 {
		return validationErrorf("down payment contract is required")
	}
	if !payment.Amount.IsPositive() {
		return validationErrorf("down payment amount must be positive")
	}
	if payment.PaymentDate.IsZero() {
		return validationErrorf("payment date is required")
	}
	if payment.Method == "" {
		payment.Method = PaymentMethodCash
	}
	if !payment.Method.Valid() {
		return validationErrorf("unsupported payment method %q", payment.Method)
	}
	payment.PaymentNumber = strings.TrimSpace(payment.PaymentNumber)
	return nil
}

func scanDownPayment(scanner rowScanner) (*DownPayment, error) {
	var (
		payment       DownPayment
		amount        string
		paymentDate   string
		method        string
		paymentType   sql.NullString
		paymentNumber sql.NullString
		note          sql.NullString
		createdAt     string
		updatedAt     string
	)
	if err := scanner.Scan(
		&payment.ID, &payment.ContractID, &amount, &paymentDate, &method, &paymentType, &paymentNumber, &note,
		&payment.ContractNumber, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	payment.Method = PaymentMethod(method)
	payment.PaymentType = paymentType.String
	payment.PaymentNumber = paymentNumber.String
	payment.Note = note.String
	if payment.Amount, err = parseDecimal(amount); err != nil {
		return nil, err
	}
	if payment.PaymentDate, err = parseDate(paymentDate); err != nil {
		return nil, err
	}
	if payment.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if payment.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &payment, nil
}
