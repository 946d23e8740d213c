package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/agencydesk/agencydesk/internal/storage"
	"github.com/spf13/cobra"
)

type expenseFlags struct {
	category    string
	description string
	amount      string
	date        string
	status      string
	employeeID  int64
	propertyID  int64
	note        string
}

func (f *expenseFlags) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.category, "category", "", "Expense category (rent, utilities, marketing, ...)")
	flags.StringVar(&f.description, "description", "", "Description")
	flags.StringVar(&f.amount, "amount", "", "Amount")
	flags.StringVar(&f.date, "date", "", "Expense date (YYYY-MM-DD, default today)")
	flags.StringVar(&f.status, "status", "", "paid|pending")
	flags.Int64Var(&f.employeeID, "employee", 0, "Related employee id (0 clears)")
	flags.Int64Var(&f.propertyID, "property", 0, "Related property id (0 clears)")
	flags.StringVar(&f.note, "note", "", "Free-form note")
}

func (f *expenseFlags) apply(cmd *cobra.Command, x *storage.Expense, all bool) error {
	changed := func(name string) bool { return all || cmd.Flags().Changed(name) }

	if changed("category") {
		x.Category = f.category
	}
	if changed("description") {
		x.Description = f.description
	}
	if changed("amount") {
		amount, err := parseDecimalFlag("amount", f.amount)
		if err != nil {
			return err
		}
		x.Amount = amount
	}
	if changed("date") && f.date != "" {
		date, err := parseDateFlag("date", f.date)
		if err != nil {
			return err
		}
		x.ExpenseDate = date
	}
	if changed("status") {
		x.Status = storage.ExpenseStatus(f.status)
	}
	if cmd.Flags().Changed("employee") {
		x.EmployeeID = changedID(cmd, "employee", f.employeeID)
	}
	if cmd.Flags().Changed("property") {
		x.PropertyID = changedID(cmd, "property", f.propertyID)
	}
	if changed("note") {
		x.Note = f.note
	}
	return nil
}

func newExpenseCommand(deps commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expense",
		Short: "Agency expenses",
	}

	var addFlags expenseFlags
	add := &cobra.Command{
		Use:     "add",
		Short:   "Record an expense",
		Example: "  agencydesk expense add --category marketing --amount 250 --property 3 --status pending",
		Args:    noArgs("expense add"),
		RunE: func(cmd *cobra.Command, args []string) error {
			expense := &storage.Expense{ExpenseDate: today()}
			if err := addFlags.apply(cmd, expense, true); err != nil {
				return err
			}
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				if err := rt.store.Expenses.Create(ctx, expense); err != nil {
					return err
				}
				created, err := rt.store.Expenses.Get(ctx, expense.ID)
				if err != nil {
					return err
				}
				return printExpense(deps, *created)
			})
		},
	}
	addFlags.bind(add)

	var editFlags expenseFlags
	edit := &cobra.Command{
		Use:   "edit <id>",
		Short: "Update an expense; only the given flags change",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args, "expense")
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				expense, err := rt.store.Expenses.Get(ctx, id)
				if err != nil {
					return err
				}
				if err := editFlags.apply(cmd, expense, false); err != nil {
					return err
				}
				if err := rt.store.Expenses.Update(ctx, expense); err != nil {
					return err
				}
				updated, err := rt.store.Expenses.Get(ctx, id)
				if err != nil {
					return err
				}
				return printExpense(deps, *updated)
			})
		},
	}
	editFlags.bind(edit)

	var (
		filter     storage.ExpenseFilter
		status     string
		employeeID int64
		propertyID int64
		from       string
		to         string
	)
	list := &cobra.Command{
		Use:   "ls",
		Short: "List expenses, newest first",
		Args:  noArgs("expense ls"),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter.Status = storage.ExpenseStatus(status)
			filter.EmployeeID = changedID(cmd, "employee", employeeID)
			filter.PropertyID = changedID(cmd, "property", propertyID)
			var err error
			if filter.From, err = optionalDate("from", from); err != nil {
				return err
			}
			if filter.To, err = optionalDate("to", to); err != nil {
				return err
			}
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				expenses, err := rt.store.Expenses.List(ctx, filter)
				if err != nil {
					return err
				}
				return emit(deps, mapSlice(expenses, toExpenseView), func(w io.Writer) error {
					for _, x := range expenses {
						if _, err := fmt.Fprintf(
							w,
							"%d\t%s\t%s\t%s\t%s\n",
							x.ID,
							x.ExpenseDate.Format(dateLayout),
							x.Category,
							x.Amount.StringFixed(2),
							x.Status,
						); err != nil {
							return err
						}
					}
					return nil
				})
			})
		},
	}
	list.Flags().StringVar(&filter.Category, "category", "", "Filter by category")
	list.Flags().StringVar(&status, "status", "", "Filter by status")
	list.Flags().Int64Var(&employeeID, "employee", 0, "Filter by employee id")
	list.Flags().Int64Var(&propertyID, "property", 0, "Filter by property id")
	list.Flags().StringVar(&from, "from", "", "Earliest expense date (YYYY-MM-DD)")
	list.Flags().StringVar(&to, "to", "", "Latest expense date (YYYY-MM-DD)")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an expense",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args, "expense")
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				expense, err := rt.store.Expenses.Get(ctx, id)
				if err != nil {
					return err
				}
				return printExpense(deps, *expense)
			})
		},
	}

	remove := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete an expense",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args, "expense")
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				if err := rt.store.Expenses.Delete(ctx, id); err != nil {
					return err
				}
				return printDeleted(deps, "expense", id)
			})
		},
	}

	cmd.AddCommand(add, list, show, edit, remove)
	return cmd
}

func printExpense(deps commandDeps, x storage.Expense) error {
	return emit(deps, toExpenseView(x), func(w io.Writer) error {
		_, err := fmt.Fprintf(
			w,
			"id=%d category=%q amount=%s date=%s status=%s property=%q employee=%q\n",
			x.ID,
			x.Category,
			x.Amount.StringFixed(2),
			x.ExpenseDate.Format(dateLayout),
			x.Status,
			x.PropertyTitle,
			x.EmployeeName,
		)
		return err
	})
}

func newCompanyCommand(deps commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "company",
		Short: "Agency details printed on documents",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the company record",
		Args:  noArgs("company show"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				info, err := rt.store.Company.Get(ctx)
				if err != nil {
					return err
				}
				return printCompany(deps, *info)
			})
		},
	}

	var values storage.CompanyInfo
	set := &cobra.Command{
		Use:     "set",
		Short:   "Create or update the company record; only the given flags change",
		Example: "  agencydesk company set --name 'Blue Door Realty' --phone '+355 4 222 333'",
		Args:    noArgs("company set"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				info, err := rt.store.Company.Get(ctx)
				if errors.Is(err, storage.ErrNotFound) {
					info = &storage.CompanyInfo{}
				} else if err != nil {
					return err
				}

				flags := cmd.Flags()
				for name, pair := range map[string][2]*string{
					"name":       {&info.Name, &values.Name},
					"address":    {&info.Address, &values.Address},
					"phone":      {&info.Phone, &values.Phone},
					"email":      {&info.Email, &values.Email},
					"website":    {&info.Website, &values.Website},
					"tax-number": {&info.TaxNumber, &values.TaxNumber},
					"logo":       {&info.LogoPath, &values.LogoPath},
				} {
					if flags.Changed(name) {
						*pair[0] = *pair[1]
					}
				}

				if err := rt.store.Company.Save(ctx, info); err != nil {
					return err
				}
				return printCompany(deps, *info)
			})
		},
	}
	set.Flags().StringVar(&values.Name, "name", "", "Company name")
	set.Flags().StringVar(&values.Address, "address", "", "Address")
	set.Flags().StringVar(&values.Phone, "phone", "", "Phone number")
	set.Flags().StringVar(&values.Email, "email", "", "Email address")
	set.Flags().StringVar(&values.Website, "website", "", "Website")
	set.Flags().StringVar(&values.TaxNumber, "tax-number", "", "Tax registration number")
	set.Flags().StringVar(&values.LogoPath, "logo", "", "Path to the logo image")

	cmd.AddCommand(show, set)
	return cmd
}

func printCompany(deps commandDeps, info storage.CompanyInfo) error {
	return emit(deps, toCompanyView(info), func(w io.Writer) error {
		_, err := fmt.Fprintf(
			w,
			"name=%q address=%q phone=%q email=%q website=%q tax_number=%q\n",
			info.Name,
			info.Address,
			info.Phone,
			info.Email,
			info.Website,
			info.TaxNumber,
		)
		return err
	})
}
