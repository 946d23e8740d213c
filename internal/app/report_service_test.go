package app

import (
	"context"
	"testing"

	"github.com/agencydesk/agencydesk/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestContractBalanceAndSummary(t *testing.T) {
	t.Parallel()

	store := newAppTestStore(t)
	svc := NewReportService(store)
	ctx := context.Background()

	agent := mustEmployee(t, store, "Agent")
	customer := mustCustomer(t, store, "Buyer")
	sold := mustProperty(t, store, "Sold Flat", storage.PropertyStatusSold)
	mustProperty(t, store, "Free Flat", storage.PropertyStatusAvailable)
	mustProperty(t, store, "Other Free Flat", storage.PropertyStatusAvailable)

	contract := &storage.Contract{
		PropertyID:     sold.ID,
		CustomerID:     customer.ID,
		EmployeeID:     agent.ID,
		ContractNumber: "C-2024-7",
		Type:           storage.ContractTypeSale,
		Amount:         decimal.RequireFromString("100000"),
		StartDate:      mustDate(t, "2024-02-01"),
		SignDate:       mustDate(t, "2024-02-01"),
	}
	require.NoError(t, store.Contracts.Create(ctx, contract))
	for _, p := range []struct {
		amount string
		date   string
	}{
		{"30000", "2024-02-01"},
		{"20000.50", "2024-03-15"},
		{"5000", "2024-05-01"},
	} {
		require.NoError(t, store.Payments.Create(ctx, &storage.DownPayment{
			ContractID:  contract.ID,
			Amount:      decimal.RequireFromString(p.amount),
			PaymentDate: mustDate(t, p.date),
		}))
	}
	for _, e := range []struct {
		category string
		amount   string
		status   storage.ExpenseStatus
		date     string
	}{
		{"Marketing", "250", storage.ExpenseStatusPaid, "2024-02-10"},
		{"Marketing", "100", storage.ExpenseStatusPending, "2024-03-10"},
		{"Office", "40", storage.ExpenseStatusPaid, "2024-04-20"},
	} {
		require.NoError(t, store.Expenses.Create(ctx, &storage.Expense{
			Category:    e.category,
			Amount:      decimal.RequireFromString(e.amount),
			ExpenseDate: mustDate(t, e.date),
			Status:      e.status,
		}))
	}

	balance, err := svc.ContractBalance(ctx, contract.ID)
	require.NoError(t, err)
	require.Equal(t, "C-2024-7", balance.ContractNumber)
	require.Equal(t, "55000.5", balance.Paid.String())
	require.Equal(t, "44999.5", balance.Remaining.String())
	require.Equal(t, 3, balance.PaymentCount)

	_, err = svc.ContractBalance(ctx, 404)
	require.ErrorIs(t, err, storage.ErrNotFound)

	summary, err := svc.Summary(ctx, mustDate(t, "2024-02-01"), mustDate(t, "2024-03-31"))
	require.NoError(t, err)
	require.Equal(t, 2, summary.PropertiesByStatus[storage.PropertyStatusAvailable])
	require.Equal(t, 1, summary.PropertiesByStatus[storage.PropertyStatusSold])
	require.Equal(t, 1, summary.ActiveContracts)
	require.Equal(t, "100000", summary.ActiveContractValue.String())
	require.Equal(t, 2, summary.PaymentCount)
	require.Equal(t, "50000.5", summary.PaymentsReceived.String())
	require.Equal(t, "350", summary.ExpensesByCategory["Marketing"].String())
	require.NotContains(t, summary.ExpensesByCategory, "Office")
	require.Equal(t, "250", summary.Expenses.Paid.String())
	require.Equal(t, "100", summary.Expenses.Pending.String())

	_, err = svc.Summary(ctx, mustDate(t, "2024-03-01"), mustDate(t, "2024-02-01"))
	require.ErrorIs(t, err, ErrValidation)
}
