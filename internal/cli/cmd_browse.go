package cli

import (
	"context"
	"errors"
	"os"

	"github.com/agencydesk/agencydesk/internal/storage"
	"github.com/agencydesk/agencydesk/internal/tui"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

func newBrowseCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse properties, customers and contracts in a terminal UI",
		Args:  noArgs("browse"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				err := tui.Run(tui.Options{
					Client: browseClient{rt: rt},
					IsTTY:  stdioIsTerminal,
				})
				if errors.Is(err, tui.ErrNotTTY) {
					return usageErrorf("browse needs an interactive terminal; use the list commands instead")
				}
				return err
			})
		},
	}
}

func stdioIsTerminal() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())
}

// browseClient serves the terminal UI from the open runtime.
type browseClient struct {
	rt *runtime
}

func (c browseClient) Login(ctx context.Context, username, password string) (string, error) {
	user, err := c.rt.auth.Login(ctx, username, password)
	if err != nil {
		return "", err
	}
	if user.FullName != "" {
		return user.FullName, nil
	}
	return user.Username, nil
}

func (c browseClient) ListProperties(ctx context.Context) ([]tui.Listing, error) {
	properties, err := c.rt.store.Properties.List(ctx, storage.PropertyFilter{})
	if err != nil {
		return nil, err
	}
	listings := make([]tui.Listing, 0, len(properties))
	for _, p := range properties {
		images, err := c.rt.properties.Images(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		listings = append(listings, tui.Listing{
			ID:          p.ID,
			Code:        p.ListingCode,
			Title:       p.Title,
			Type:        p.Type,
			City:        p.City,
			Address:     p.Address,
			Area:        p.Area.String(),
			Price:       p.Price.StringFixed(2),
			Status:      string(p.Status),
			Agent:       p.EmployeeName,
			ImageCount:  len(images),
			Description: p.Description,
		})
	}
	return listings, nil
}

func (c browseClient) ListCustomers(ctx context.Context) ([]tui.Customer, error) {
	customers, err := c.rt.store.Customers.List(ctx, storage.PersonFilter{})
	if err != nil {
		return nil, err
	}
	return mapSlice(customers, func(cu storage.Customer) tui.Customer {
		return tui.Customer{ID: cu.ID, Name: cu.FullName, Phone: cu.Phone, Email: cu.Email}
	}), nil
}

func (c browseClient) ListContracts(ctx context.Context) ([]tui.Contract, error) {
	contracts, err := c.rt.store.Contracts.List(ctx, storage.ContractFilter{})
	if err != nil {
		return nil, err
	}
	return mapSlice(contracts, func(co storage.Contract) tui.Contract {
		return tui.Contract{
			ID:       co.ID,
			Number:   co.ContractNumber,
			Type:     string(co.Type),
			Property: co.PropertyListingCode,
			Customer: co.CustomerName,
			Amount:   co.Amount.StringFixed(2),
			Status:   string(co.Status),
		}
	}), nil
}

func (c browseClient) ContractBalance(ctx context.Context, contractID int64) (tui.Balance, error) {
	balance, err := c.rt.reports.ContractBalance(ctx, contractID)
	if err != nil {
		return tui.Balance{}, err
	}
	return tui.Balance{
		Paid:      balance.Paid.StringFixed(2),
		Remaining: balance.Remaining.StringFixed(2),
		Payments:  balance.PaymentCount,
	}, nil
}
