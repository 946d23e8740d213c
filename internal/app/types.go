package app

import (
	"context"
	"errors"
	"time"

	"github.com/agencydesk/agencydesk/internal/storage"
	"github.com/shopspring/decimal"
)

var (
	ErrValidation         = errors.New("app: validation failed")
	ErrInvalidCredentials = errors.New("app: invalid username or password")
	ErrUserInactive       = errors.New("app: user is inactive")
	ErrDatabaseMissing    = errors.New("app: database file does not exist")
	ErrBackupNotFound     = errors.New("app: backup file not found")
	ErrRestoreDeclined    = errors.New("app: restore declined")
)

// Confirmer is asked before a restore overwrites the live database.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// AlwaysConfirm approves every prompt. The CLI uses it for --yes.
var AlwaysConfirm Confirmer = ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })

type BackupInfo struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
	SizeBytes int64     `json:"size_bytes"`
	SHA256    string    `json:"sha256,omitempty"`

	modTime time.Time
}

type CreateUserRequest struct {
	Username string
	Password string
	FullName string
	Email    string
	IsAdmin  bool
}

type ContractBalance struct {
	ContractID     int64           `json:"contract_id"`
	ContractNumber string          `json:"contract_number"`
	Amount         decimal.Decimal `json:"amount"`
	Paid           decimal.Decimal `json:"paid"`
	Remaining      decimal.Decimal `json:"remaining"`
	PaymentCount   int             `json:"payment_count"`
}

type ExpenseTotals struct {
	Paid    decimal.Decimal `json:"paid"`
	Pending decimal.Decimal `json:"pending"`
}

type Summary struct {
	From                time.Time                      `json:"from"`
	To                  time.Time                      `json:"to"`
	PropertiesByStatus  map[storage.PropertyStatus]int `json:"properties_by_status"`
	ActiveContracts     int                            `json:"active_contracts"`
	ActiveContractValue decimal.Decimal                `json:"active_contract_value"`
	PaymentsReceived    decimal.Decimal                `json:"payments_received"`
	PaymentCount        int                            `json:"payment_count"`
	ExpensesByCategory  map[string]decimal.Decimal     `json:"expenses_by_category"`
	Expenses            ExpenseTotals                  `json:"expenses"`
}
