package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/agencydesk/agencydesk/internal/storage"
	"github.com/spf13/cobra"
)

type contractFlags struct {
	number     string
	kind       string
	status     string
	propertyID int64
	customerID int64
	employeeID int64
	amount     string
	startDate  string
	signDate   string
	endDate    string
	note       string
}

func (f *contractFlags) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.number, "number", "", "Contract number")
	flags.StringVar(&f.kind, "type", "", "sale|rent")
	flags.StringVar(&f.status, "status", "", "active|completed|cancelled")
	flags.Int64Var(&f.propertyID, "property", 0, "Property id")
	flags.Int64Var(&f.customerID, "customer", 0, "Customer id")
	flags.Int64Var(&f.employeeID, "employee", 0, "Employee id")
	flags.StringVar(&f.amount, "amount", "", "Contract amount")
	flags.StringVar(&f.startDate, "start-date", "", "Start date (YYYY-MM-DD)")
	flags.StringVar(&f.signDate, "sign-date", "", "Signing date (YYYY-MM-DD, default start date)")
	flags.StringVar(&f.endDate, "end-date", "", "End date for rentals (YYYY-MM-DD, empty clears)")
	flags.StringVar(&f.note, "note", "", "Free-form note")
}

func (f *contractFlags) apply(cmd *cobra.Command, c *storage.Contract, all bool) error {
	changed := func(name string) bool { return all || cmd.Flags().Changed(name) }

	if changed("number") {
		c.ContractNumber = f.number
	}
	if changed("type") {
		c.Type = storage.ContractType(f.kind)
	}
	if changed("status") {
		c.Status = storage.ContractStatus(f.status)
	}
	if changed("property") {
		c.PropertyID = f.propertyID
	}
	if changed("customer") {
		c.CustomerID = f.customerID
	}
	if changed("employee") {
		c.EmployeeID = f.employeeID
	}
	if changed("amount") {
		amount, err := parseDecimalFlag("amount", f.amount)
		if err != nil {
			return err
		}
		c.Amount = amount
	}
	if changed("start-date") && f.startDate != "" {
		start, err := parseDateFlag("start-date", f.startDate)
		if err != nil {
			return err
		}
		c.StartDate = start
	}
	if changed("sign-date") && f.signDate != "" {
		sign, err := parseDateFlag("sign-date", f.signDate)
		if err != nil {
			return err
		}
		c.SignDate = sign
	}
	if all && c.SignDate.IsZero() {
		c.SignDate = c.StartDate
	}
	if changed("end-date") {
		end, err := optionalDate("end-date", f.endDate)
		if err != nil {
			return err
		}
		c.EndDate = end
	}
	if changed("note") {
		c.Note = f.note
	}
	return nil
}

func newContractCommand(deps commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contract",
		Short: "Sale and rental contracts",
	}

	var addFlags contractFlags
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a contract",
		Example: "  agencydesk contract add --number C-2024-001 --type sale --property 3 --customer 7 \\\n" +
			"    --employee 1 --amount 125000 --start-date 2024-03-01",
		Args: noArgs("contract add"),
		RunE: func(cmd *cobra.Command, args []string) error {
			contract := &storage.Contract{}
			if err := addFlags.apply(cmd, contract, true); err != nil {
				return err
			}
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				if err := rt.store.Contracts.Create(ctx, contract); err != nil {
					return err
				}
				created, err := rt.store.Contracts.Get(ctx, contract.ID)
				if err != nil {
					return err
				}
				return printContract(deps, *created)
			})
		},
	}
	addFlags.bind(add)

	var editFlags contractFlags
	edit := &cobra.Command{
		Use:   "edit <id>",
		Short: "Update a contract; only the given flags change",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args, "contract")
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				contract, err := rt.store.Contracts.Get(ctx, id)
				if err != nil {
					return err
				}
				if err := editFlags.apply(cmd, contract, false); err != nil {
					return err
				}
				if err := rt.store.Contracts.Update(ctx, contract); err != nil {
					return err
				}
				updated, err := rt.store.Contracts.Get(ctx, id)
				if err != nil {
					return err
				}
				return printContract(deps, *updated)
			})
		},
	}
	editFlags.bind(edit)

	var (
		status     string
		kind       string
		propertyID int64
		customerID int64
		employeeID int64
	)
	list := &cobra.Command{
		Use:   "ls",
		Short: "List contracts, most recently signed first",
		Args:  noArgs("contract ls"),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := storage.ContractFilter{
				Status:     storage.ContractStatus(status),
				Type:       storage.ContractType(kind),
				PropertyID: changedID(cmd, "property", propertyID),
				CustomerID: changedID(cmd, "customer", customerID),
				EmployeeID: changedID(cmd, "employee", employeeID),
			}
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				contracts, err := rt.store.Contracts.List(ctx, filter)
				if err != nil {
					return err
				}
				return emit(deps, mapSlice(contracts, toContractView), func(w io.Writer) error {
					for _, c := range contracts {
						if _, err := fmt.Fprintf(
							w,
							"%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
							c.ID,
							c.ContractNumber,
							c.SignDate.Format(dateLayout),
							c.Type,
							c.CustomerName,
							c.Amount.StringFixed(2),
							c.Status,
						); err != nil {
							return err
						}
					}
					return nil
				})
			})
		},
	}
	list.Flags().StringVar(&status, "status", "", "Filter by status")
	list.Flags().StringVar(&kind, "type", "", "Filter by type")
	list.Flags().Int64Var(&propertyID, "property", 0, "Filter by property id")
	list.Flags().Int64Var(&customerID, "customer", 0, "Filter by customer id")
	list.Flags().Int64Var(&employeeID, "employee", 0, "Filter by employee id")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a contract",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args, "contract")
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				contract, err := rt.store.Contracts.Get(ctx, id)
				if err != nil {
					return err
				}
				return printContract(deps, *contract)
			})
		},
	}

	remove := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a contract without recorded payments",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args, "contract")
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				if err := rt.store.Contracts.Delete(ctx, id); err != nil {
					return err
				}
				return printDeleted(deps, "contract", id)
			})
		},
	}

	cmd.AddCommand(add, list, show, edit, remove)
	return cmd
}

func printContract(deps commandDeps, c storage.Contract) error {
	return emit(deps, toContractView(c), func(w io.Writer) error {
		_, err := fmt.Fprintf(
			w,
			"id=%d number=%s type=%s status=%s property=%q customer=%q agent=%q amount=%s signed=%s\n",
			c.ID,
			c.ContractNumber,
			c.Type,
			c.Status,
			c.PropertyTitle,
			c.CustomerName,
			c.EmployeeName,
			c.Amount.StringFixed(2),
			c.SignDate.Format(dateLayout),
		)
		return err
	})
}

type paymentFlags struct {
	contractID int64
	amount     string
	date       string
	method     string
	kind       string
	number     string
	note       string
}

func (f *paymentFlags) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Int64Var(&f.contractID, "contract", 0, "Contract id")
	flags.StringVar(&f.amount, "amount", "", "Amount received")
	flags.StringVar(&f.date, "date", "", "Payment date (YYYY-MM-DD, default today)")
	flags.StringVar(&f.method, "method", "", "cash|bank_transfer|check|card")
	flags.StringVar(&f.kind, "type", "", "Payment type label (deposit, installment, ...)")
	flags.StringVar(&f.number, "number", "", "Receipt or reference number")
	flags.StringVar(&f.note, "note", "", "Free-form note")
}

func (f *paymentFlags) apply(cmd *cobra.Command, p *storage.DownPayment, all bool) error {
	changed := func(name string) bool { return all || cmd.Flags().Changed(name) }

	if changed("contract") {
		p.ContractID = f.contractID
	}
	if changed("amount") {
		amount, err := parseDecimalFlag("amount", f.amount)
		if err != nil {
			return err
		}
		p.Amount = amount
	}
	if changed("date") && f.date != "" {
		date, err := parseDateFlag("date", f.date)
		if err != nil {
			return err
		}
		p.PaymentDate = date
	}
	if changed("method") {
		p.Method = storage.PaymentMethod(f.method)
	}
	if changed("type") {
		p.PaymentType = f.kind
	}
	if changed("number") {
		p.PaymentNumber = f.number
	}
	if changed("note") {
		p.Note = f.note
	}
	return nil
}

func newPaymentCommand(deps commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payment",
		Short: "Down payments received against contracts",
	}

	var addFlags paymentFlags
	add := &cobra.Command{
		Use:     "add",
		Short:   "Record a payment",
		Example: "  agencydesk payment add --contract 4 --amount 10000 --method bank_transfer --date 2024-03-05",
		Args:    noArgs("payment add"),
		RunE: func(cmd *cobra.Command, args []string) error {
			payment := &storage.DownPayment{PaymentDate: today()}
			if err := addFlags.apply(cmd, payment, true); err != nil {
				return err
			}
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				if err := rt.store.Payments.Create(ctx, payment); err != nil {
					return err
				}
				created, err := rt.store.Payments.Get(ctx, payment.ID)
				if err != nil {
					return err
				}
				return printPayment(deps, *created)
			})
		},
	}
	addFlags.bind(add)

	var editFlags paymentFlags
	edit := &cobra.Command{
		Use:   "edit <id>",
		Short: "Update a payment; only the given flags change",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args, "payment")
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				payment, err := rt.store.Payments.Get(ctx, id)
				if err != nil {
					return err
				}
				if err := editFlags.apply(cmd, payment, false); err != nil {
					return err
				}
				if err := rt.store.Payments.Update(ctx, payment); err != nil {
					return err
				}
				updated, err := rt.store.Payments.Get(ctx, id)
				if err != nil {
					return err
				}
				return printPayment(deps, *updated)
			})
		},
	}
	editFlags.bind(edit)

	var (
		contractID int64
		from       string
		to         string
	)
	list := &cobra.Command{
		Use:   "ls",
		Short: "List payments, newest first",
		Args:  noArgs("payment ls"),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := storage.DownPaymentFilter{ContractID: changedID(cmd, "contract", contractID)}
			var err error
			if filter.From, err = optionalDate("from", from); err != nil {
				return err
			}
			if filter.To, err = optionalDate("to", to); err != nil {
				return err
			}
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				payments, err := rt.store.Payments.List(ctx, filter)
				if err != nil {
					return err
				}
				return emit(deps, mapSlice(payments, toPaymentView), func(w io.Writer) error {
					for _, p := range payments {
						if _, err := fmt.Fprintf(
							w,
							"%d\t%s\t%s\t%s\t%s\n",
							p.ID,
							p.ContractNumber,
							p.PaymentDate.Format(dateLayout),
							p.Amount.StringFixed(2),
							p.Method,
						); err != nil {
							return err
						}
					}
					return nil
				})
			})
		},
	}
	list.Flags().Int64Var(&contractID, "contract", 0, "Filter by contract id")
	list.Flags().StringVar(&from, "from", "", "Earliest payment date (YYYY-MM-DD)")
	list.Flags().StringVar(&to, "to", "", "Latest payment date (YYYY-MM-DD)")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a payment",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args, "payment")
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				payment, err := rt.store.Payments.Get(ctx, id)
				if err != nil {
					return err
				}
				return printPayment(deps, *payment)
			})
		},
	}

	remove := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a payment",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args, "payment")
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				if err := rt.store.Payments.Delete(ctx, id); err != nil {
					return err
				}
				return printDeleted(deps, "payment", id)
			})
		},
	}

	cmd.AddCommand(add, list, show, edit, remove)
	return cmd
}

func printPayment(deps commandDeps, p storage.DownPayment) error {
	return emit(deps, toPaymentView(p), func(w io.Writer) error {
		_, err := fmt.Fprintf(
			w,
			"id=%d contract=%s amount=%s date=%s method=%s\n",
			p.ID,
			p.ContractNumber,
			p.Amount.StringFixed(2),
			p.PaymentDate.Format(dateLayout),
			p.Method,
		)
		return err
	})
}
