package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/agencydesk/agencydesk/internal/storage"
	"github.com/spf13/cobra"
)

type employeeFlags struct {
	fullName string
	phone    string
	email    string
	position string
	salary   string
	joinDate string
	status   string
	note     string
}

func (f *employeeFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.fullName, "full-name", "", "Full name")
	cmd.Flags().StringVar(&f.phone, "phone", "", "Phone number")
	cmd.Flags().StringVar(&f.email, "email", "", "Email address")
	cmd.Flags().StringVar(&f.position, "position", "", "Job title")
	cmd.Flags().StringVar(&f.salary, "salary", "", "Monthly salary")
	cmd.Flags().StringVar(&f.joinDate, "join-date", "", "Join date (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&f.status, "status", "", "active|inactive")
	cmd.Flags().StringVar(&f.note, "note", "", "Free-form note")
}

// apply copies the flags given on cmd onto e. With all set, every flag is
// copied, which is what add wants.
func (f *employeeFlags) apply(cmd *cobra.Command, e *storage.Employee, all bool) error {
	changed := func(name string) bool { return all || cmd.Flags().Changed(name) }

	if changed("full-name") {
		e.FullName = f.fullName
	}
	if changed("phone") {
		e.Phone = f.phone
	}
	if changed("email") {
		e.Email = f.email
	}
	if changed("position") {
		e.Position = f.position
	}
	if changed("salary") {
		salary, err := parseDecimalFlag("salary", f.salary)
		if err != nil {
			return err
		}
		e.Salary = salary
	}
	if changed("join-date") && f.joinDate != "" {
		joinDate, err := parseDateFlag("join-date", f.joinDate)
		if err != nil {
			return err
		}
		e.JoinDate = joinDate
	}
	if changed("status") {
		e.Status = storage.EmployeeStatus(f.status)
	}
	if changed("note") {
		e.Note = f.note
	}
	return nil
}

func newEmployeeCommand(deps commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "employee",
		Short: "Agency staff",
	}

	var addFlags employeeFlags
	add := &cobra.Command{
		Use:     "add",
		Short:   "Add an employee",
		Example: "  agencydesk employee add --full-name 'Arben Krasniqi' --position Agent --salary 1500",
		Args:    noArgs("employee add"),
		RunE: func(cmd *cobra.Command, args []string) error {
			employee := &storage.Employee{JoinDate: today()}
			if err := addFlags.apply(cmd, employee, true); err != nil {
				return err
			}
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				if err := rt.store.Employees.Create(ctx, employee); err != nil {
					return err
				}
				return printEmployee(deps, *employee)
			})
		},
	}
	addFlags.bind(add)

	var editFlags employeeFlags
	edit := &cobra.Command{
		Use:   "edit <id>",
		Short: "Update an employee; only the given flags change",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args, "employee")
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				employee, err := rt.store.Employees.Get(ctx, id)
				if err != nil {
					return err
				}
				if err := editFlags.apply(cmd, employee, false); err != nil {
					return err
				}
				if err := rt.store.Employees.Update(ctx, employee); err != nil {
					return err
				}
				return printEmployee(deps, *employee)
			})
		},
	}
	editFlags.bind(edit)

	var search string
	list := &cobra.Command{
		Use:   "ls",
		Short: "List employees by name",
		Args:  noArgs("employee ls"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				employees, err := rt.store.Employees.List(ctx, storage.PersonFilter{Search: search})
				if err != nil {
					return err
				}
				return emit(deps, mapSlice(employees, toEmployeeView), func(w io.Writer) error {
					for _, e := range employees {
						if _, err := fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", e.ID, e.FullName, e.Position, e.Phone, e.Status); err != nil {
							return err
						}
					}
					return nil
				})
			})
		},
	}
	list.Flags().StringVar(&search, "search", "", "Match name, phone, email or position")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an employee",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args, "employee")
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				employee, err := rt.store.Employees.Get(ctx, id)
				if err != nil {
					return err
				}
				return printEmployee(deps, *employee)
			})
		},
	}

	remove := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete an employee that nothing references",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args, "employee")
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				if err := rt.store.Employees.Delete(ctx, id); err != nil {
					return err
				}
				return printDeleted(deps, "employee", id)
			})
		},
	}

	cmd.AddCommand(add, list, show, edit, remove)
	return cmd
}

func printEmployee(deps commandDeps, e storage.Employee) error {
	return emit(deps, toEmployeeView(e), func(w io.Writer) error {
		_, err := fmt.Fprintf(
			w,
			"id=%d name=%q position=%q salary=%s joined=%s status=%s\n",
			e.ID,
			e.FullName,
			e.Position,
			e.Salary.StringFixed(2),
			e.JoinDate.Format(dateLayout),
			e.Status,
		)
		return err
	})
}

type customerFlags struct {
	fullName string
	phone    string
	email    string
	idNumber string
	address  string
	note     string
}

func (f *customerFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.fullName, "full-name", "", "Full name")
	cmd.Flags().StringVar(&f.phone, "phone", "", "Phone number")
	cmd.Flags().StringVar(&f.email, "email", "", "Email address")
	cmd.Flags().StringVar(&f.idNumber, "id-number", "", "Identity document number")
	cmd.Flags().StringVar(&f.address, "address", "", "Postal address")
	cmd.Flags().StringVar(&f.note, "note", "", "Free-form note")
}

func (f *customerFlags) apply(cmd *cobra.Command, c *storage.Customer, all bool) {
	changed := func(name string) bool { return all || cmd.Flags().Changed(name) }

	if changed("full-name") {
		c.FullName = f.fullName
	}
	if changed("phone") {
		c.Phone = f.phone
	}
	if changed("email") {
		c.Email = f.email
	}
	if changed("id-number") {
		c.IDNumber = f.idNumber
	}
	if changed("address") {
		c.Address = f.address
	}
	if changed("note") {
		c.Note = f.note
	}
}

func newCustomerCommand(deps commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "customer",
		Short: "Buyers and tenants",
	}

	var addFlags customerFlags
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a customer",
		Args:  noArgs("customer add"),
		RunE: func(cmd *cobra.Command, args []string) error {
			customer := &storage.Customer{}
			addFlags.apply(cmd, customer, true)
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				if err := rt.store.Customers.Create(ctx, customer); err != nil {
					return err
				}
				return printCustomer(deps, *customer)
			})
		},
	}
	addFlags.bind(add)

	var editFlags customerFlags
	edit := &cobra.Command{
		Use:   "edit <id>",
		Short: "Update a customer; only the given flags change",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args, "customer")
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				customer, err := rt.store.Customers.Get(ctx, id)
				if err != nil {
					return err
				}
				editFlags.apply(cmd, customer, false)
				if err := rt.store.Customers.Update(ctx, customer); err != nil {
					return err
				}
				return printCustomer(deps, *customer)
			})
		},
	}
	editFlags.bind(edit)

	var search string
	list := &cobra.Command{
		Use:   "ls",
		Short: "List customers by name",
		Args:  noArgs("customer ls"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				customers, err := rt.store.Customers.List(ctx, storage.PersonFilter{Search: search})
				if err != nil {
					return err
				}
				return emit(deps, mapSlice(customers, toCustomerView), func(w io.Writer) error {
					for _, c := range customers {
						if _, err := fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", c.ID, c.FullName, c.Phone, c.Email); err != nil {
							return err
						}
					}
					return nil
				})
			})
		},
	}
	list.Flags().StringVar(&search, "search", "", "Match name, phone, email or id number")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a customer",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args, "customer")
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				customer, err := rt.store.Customers.Get(ctx, id)
				if err != nil {
					return err
				}
				return printCustomer(deps, *customer)
			})
		},
	}

	remove := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a customer without contracts",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args, "customer")
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				if err := rt.store.Customers.Delete(ctx, id); err != nil {
					return err
				}
				return printDeleted(deps, "customer", id)
			})
		},
	}

	cmd.AddCommand(add, list, show, edit, remove)
	return cmd
}

func printCustomer(deps commandDeps, c storage.Customer) error {
	return emit(deps, toCustomerView(c), func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "id=%d name=%q phone=%q email=%q\n", c.ID, c.FullName, c.Phone, c.Email)
		return err
	})
}

func today() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
