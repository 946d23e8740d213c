package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/agencydesk/agencydesk/internal/storage"
	"github.com/spf13/cobra"
)

func newReportCommand(deps commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Aggregated figures",
	}

	var from, to string
	summary := &cobra.Command{
		Use:   "summary",
		Short: "Stock, active contracts, payments and expenses for a date range",
		Example: "  agencydesk report summary\n" +
			"  agencydesk --json report summary --from 2024-01-01 --to 2024-03-31",
		Args: noArgs("report summary"),
		RunE: func(cmd *cobra.Command, args []string) error {
			end := today()
			start := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)
			if from != "" {
				parsed, err := parseDateFlag("from", from)
				if err != nil {
					return err
				}
				start = parsed
			}
			if to != "" {
				parsed, err := parseDateFlag("to", to)
				if err != nil {
					return err
				}
				end = parsed
			}

			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				report, err := rt.reports.Summary(ctx, start, end)
				if err != nil {
					return err
				}
				return emit(deps, report, func(w io.Writer) error {
					if _, err := fmt.Fprintf(w, "period: %s .. %s\n", start.Format(dateLayout), end.Format(dateLayout)); err != nil {
						return err
					}
					statuses := make([]string, 0, len(report.PropertiesByStatus))
					for status := range report.PropertiesByStatus {
						statuses = append(statuses, string(status))
					}
					sort.Strings(statuses)
					for _, status := range statuses {
						if _, err := fmt.Fprintf(w, "properties %s: %d\n", status, report.PropertiesByStatus[storage.PropertyStatus(status)]); err != nil {
							return err
						}
					}
					if _, err := fmt.Fprintf(w, "active contracts: %d (value %s)\n", report.ActiveContracts, report.ActiveContractValue.StringFixed(2)); err != nil {
						return err
					}
					if _, err := fmt.Fprintf(w, "payments received: %s in %d payment(s)\n", report.PaymentsReceived.StringFixed(2), report.PaymentCount); err != nil {
						return err
					}
					categories := make([]string, 0, len(report.ExpensesByCategory))
					for category := range report.ExpensesByCategory {
						categories = append(categories, category)
					}
					sort.Strings(categories)
					for _, category := range categories {
						if _, err := fmt.Fprintf(w, "expenses %s: %s\n", category, report.ExpensesByCategory[category].StringFixed(2)); err != nil {
							return err
						}
					}
					_, err := fmt.Fprintf(w, "expenses paid: %s pending: %s\n", report.Expenses.Paid.StringFixed(2), report.Expenses.Pending.StringFixed(2))
					return err
				})
			})
		},
	}
	summary.Flags().StringVar(&from, "from", "", "Start date (YYYY-MM-DD, default first day of this month)")
	summary.Flags().StringVar(&to, "to", "", "End date (YYYY-MM-DD, default today)")

	balance := &cobra.Command{
		Use:   "balance <contract-id>",
		Short: "Paid and remaining amounts of a contract",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args, "contract")
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				b, err := rt.reports.ContractBalance(ctx, id)
				if err != nil {
					return err
				}
				return emit(deps, b, func(w io.Writer) error {
					_, err := fmt.Fprintf(
						w,
						"contract=%s amount=%s paid=%s remaining=%s payments=%d\n",
						b.ContractNumber,
						b.Amount.StringFixed(2),
						b.Paid.StringFixed(2),
						b.Remaining.StringFixed(2),
						b.PaymentCount,
					)
					return err
				})
			})
		},
	}

	cmd.AddCommand(summary, balance)
	return cmd
}
