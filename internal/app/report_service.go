package app

import (
	"context"
	"fmt"
	"time"

	"github.com/agencydesk/agencydesk/internal/storage"
	"github.com/shopspring/decimal"
)

// ReportService computes the aggregates printed on contract and period
// reports.
type ReportService struct {
	store *storage.Store
}

func NewReportService(store *storage.Store) *ReportService {
	return &ReportService{store: store}
}

func (s *ReportService) ContractBalance(ctx context.Context, contractID int64) (*ContractBalance, error) {
	contract, err := s.store.Contracts.Get(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("contract balance: %w", err)
	}
	paid, count, err := s.store.Payments.TotalForContract(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("contract balance: %w", err)
	}
	return &ContractBalance{
		ContractID:     contract.ID,
		ContractNumber: contract.ContractNumber,
		Amount:         contract.Amount,
		Paid:           paid,
		Remaining:      contract.Amount.Sub(paid),
		PaymentCount:   count,
	}, nil
}

// Summary aggregates the current property stock and active contracts with
// the payments and expenses dated within [from, to].
func (s *ReportService) Summary(ctx context.Context, from, to time.Time) (*Summary, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: report end %s precedes start %s", ErrValidation, to.Format(time.DateOnly), from.Format(time.DateOnly))
	}

	summary := &Summary{
		From:                from,
		To:                  to,
		PropertiesByStatus:  map[storage.PropertyStatus]int{},
		ActiveContractValue: decimal.Zero,
		PaymentsReceived:    decimal.Zero,
		ExpensesByCategory:  map[string]decimal.Decimal{},
		Expenses:            ExpenseTotals{Paid: decimal.Zero, Pending: decimal.Zero},
	}

	properties, err := s.store.Properties.List(ctx, storage.PropertyFilter{})
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	for _, property := range properties {
		summary.PropertiesByStatus[property.Status]++
	}

	contracts, err := s.store.Contracts.List(ctx, storage.ContractFilter{Status: storage.ContractStatusActive})
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	summary.ActiveContracts = len(contracts)
	for _, contract := range contracts {
		summary.ActiveContractValue = summary.ActiveContractValue.Add(contract.Amount)
	}

	payments, err := s.store.Payments.List(ctx, storage.DownPaymentFilter{From: &from, To: &to})
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	summary.PaymentCount = len(payments)
	for _, payment := range payments {
		summary.PaymentsReceived = summary.PaymentsReceived.Add(payment.Amount)
	}

	expenses, err := s.store.Expenses.List(ctx, storage.ExpenseFilter{From: &from, To: &to})
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	for _, expense := range expenses {
		summary.ExpensesByCategory[expense.Category] = summary.ExpensesByCategory[expense.Category].Add(expense.Amount)
		switch expense.Status {
		case storage.ExpenseStatusPending:
			summary.Expenses.Pending = summary.Expenses.Pending.Add(expense.Amount)
		default:
			summary.Expenses.Paid = summary.Expenses.Paid.Add(expense.Amount)
		}
	}
	return summary, nil
}
