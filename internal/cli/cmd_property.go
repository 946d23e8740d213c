package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/agencydesk/agencydesk/internal/storage"
	"github.com/spf13/cobra"
)

type propertyFlags struct {
	listingCode string
	kind        string
	title       string
	description string
	address     string
	city        string
	area        string
	price       string
	rooms       int
	bathrooms   int
	floor       int
	totalFloors int
	builtYear   int
	status      string
	employeeID  int64
	sourceURL   string
}

func (f *propertyFlags) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.listingCode, "code", "", "Listing code")
	flags.StringVar(&f.kind, "type", "", "Property type (apartment, villa, office, ...)")
	flags.StringVar(&f.title, "title", "", "Listing title")
	flags.StringVar(&f.description, "description", "", "Description")
	flags.StringVar(&f.address, "address", "", "Street address")
	flags.StringVar(&f.city, "city", "", "City")
	flags.StringVar(&f.area, "area", "", "Area in square meters")
	flags.StringVar(&f.price, "price", "", "Asking price")
	flags.IntVar(&f.rooms, "rooms", 0, "Number of rooms")
	flags.IntVar(&f.bathrooms, "bathrooms", 0, "Number of bathrooms")
	flags.IntVar(&f.floor, "floor", 0, "Floor")
	flags.IntVar(&f.totalFloors, "total-floors", 0, "Floors in the building")
	flags.IntVar(&f.builtYear, "built-year", 0, "Construction year")
	flags.StringVar(&f.status, "status", "", "available|reserved|sold|rented")
	flags.Int64Var(&f.employeeID, "employee", 0, "Responsible employee id (0 clears)")
	flags.StringVar(&f.sourceURL, "source-url", "", "Where the listing was found")
}

func (f *propertyFlags) apply(cmd *cobra.Command, p *storage.Property, all bool) error {
	changed := func(name string) bool { return all || cmd.Flags().Changed(name) }

	if changed("code") {
		p.ListingCode = f.listingCode
	}
	if changed("type") {
		p.Type = f.kind
	}
	if changed("title") {
		p.Title = f.title
	}
	if changed("description") {
		p.Description = f.description
	}
	if changed("address") {
		p.Address = f.address
	}
	if changed("city") {
		p.City = f.city
	}
	if changed("area") {
		area, err := parseDecimalFlag("area", f.area)
		if err != nil {
			return err
		}
		p.Area = area
	}
	if changed("price") {
		price, err := parseDecimalFlag("price", f.price)
		if err != nil {
			return err
		}
		p.Price = price
	}
	p.Rooms = keepOrChangedInt(cmd, "rooms", f.rooms, p.Rooms)
	p.Bathrooms = keepOrChangedInt(cmd, "bathrooms", f.bathrooms, p.Bathrooms)
	p.Floor = keepOrChangedInt(cmd, "floor", f.floor, p.Floor)
	p.TotalFloors = keepOrChangedInt(cmd, "total-floors", f.totalFloors, p.TotalFloors)
	p.BuiltYear = keepOrChangedInt(cmd, "built-year", f.builtYear, p.BuiltYear)
	if changed("status") {
		p.Status = storage.PropertyStatus(f.status)
	}
	if cmd.Flags().Changed("employee") {
		p.EmployeeID = changedID(cmd, "employee", f.employeeID)
	}
	if changed("source-url") {
		p.SourceURL = f.sourceURL
	}
	return nil
}

func keepOrChangedInt(cmd *cobra.Command, name string, v int, current *int) *int {
	if !cmd.Flags().Changed(name) {
		return current
	}
	return changedInt(cmd, name, v)
}

func newPropertyCommand(deps commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "property",
		Short: "Property listings and their photos",
	}

	var addFlags propertyFlags
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a property",
		Example: "  agencydesk property add --code TR-104 --type apartment --title '2+1 near Blloku' \\\n" +
			"    --city Tirana --area 84.5 --price 125000 --rooms 3 --employee 1",
		Args: noArgs("property add"),
		RunE: func(cmd *cobra.Command, args []string) error {
			property := &storage.Property{}
			if err := addFlags.apply(cmd, property, true); err != nil {
				return err
			}
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				if err := rt.store.Properties.Create(ctx, property); err != nil {
					return err
				}
				created, err := rt.store.Properties.Get(ctx, property.ID)
				if err != nil {
					return err
				}
				return printProperty(deps, *created)
			})
		},
	}
	addFlags.bind(add)

	var editFlags propertyFlags
	edit := &cobra.Command{
		Use:   "edit <id>",
		Short: "Update a property; only the given flags change",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args, "property")
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				property, err := rt.store.Properties.Get(ctx, id)
				if err != nil {
					return err
				}
				if err := editFlags.apply(cmd, property, false); err != nil {
					return err
				}
				if err := rt.store.Properties.Update(ctx, property); err != nil {
					return err
				}
				updated, err := rt.store.Properties.Get(ctx, id)
				if err != nil {
					return err
				}
				return printProperty(deps, *updated)
			})
		},
	}
	editFlags.bind(edit)

	var (
		filter     storage.PropertyFilter
		status     string
		employeeID int64
	)
	list := &cobra.Command{
		Use:   "ls",
		Short: "List properties, most recently updated first",
		Args:  noArgs("property ls"),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter.Status = storage.PropertyStatus(status)
			filter.EmployeeID = changedID(cmd, "employee", employeeID)
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				properties, err := rt.store.Properties.List(ctx, filter)
				if err != nil {
					return err
				}
				return emit(deps, mapSlice(properties, toPropertyView), func(w io.Writer) error {
					for _, p := range properties {
						if _, err := fmt.Fprintf(
							w,
							"%d\t%s\t%s\t%s\t%s\t%s\n",
							p.ID,
							p.ListingCode,
							p.Title,
							p.City,
							p.Price.StringFixed(2),
							p.Status,
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
	list.Flags().StringVar(&filter.Type, "type", "", "Filter by type")
	list.Flags().StringVar(&filter.City, "city", "", "Filter by city")
	list.Flags().Int64Var(&employeeID, "employee", 0, "Filter by responsible employee id")
	list.Flags().StringVar(&filter.Search, "search", "", "Match title, listing code or address")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a property",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args, "property")
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				property, err := rt.store.Properties.Get(ctx, id)
				if err != nil {
					return err
				}
				return printProperty(deps, *property)
			})
		},
	}

	remove := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a property with its photos; refused while contracts or expenses reference it",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args, "property")
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				if err := rt.properties.Delete(ctx, id); err != nil {
					return err
				}
				return printDeleted(deps, "property", id)
			})
		},
	}

	cmd.AddCommand(add, list, show, edit, remove, newPropertyImageCommand(deps))
	return cmd
}

func newPropertyImageCommand(deps commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "image",
		Short: "Property photos",
	}

	add := &cobra.Command{
		Use:     "add <property-id> <file>...",
		Short:   "Scale and attach photos; the first photo of a property becomes its main photo",
		Example: "  agencydesk property image add 12 ./front.jpg ./kitchen.png",
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) < 2 {
				return usageErrorf("image add requires a property id and at least one file")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			propertyID, err := parseIDArg(args[:1], "property")
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				images, err := rt.properties.AttachImages(ctx, propertyID, args[1:])
				if err != nil {
					return err
				}
				return printImages(deps, images)
			})
		},
	}

	list := &cobra.Command{
		Use:   "ls <property-id>",
		Short: "List photos, main photo first",
		RunE: func(cmd *cobra.Command, args []string) error {
			propertyID, err := parseIDArg(args, "property")
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				images, err := rt.properties.Images(ctx, propertyID)
				if err != nil {
					return err
				}
				return printImages(deps, images)
			})
		},
	}

	setMain := &cobra.Command{
		Use:   "main <image-id>",
		Short: "Make a photo the main photo of its property",
		RunE: func(cmd *cobra.Command, args []string) error {
			imageID, err := parseIDArg(args, "image")
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				if err := rt.properties.SetMainImage(ctx, imageID); err != nil {
					return err
				}
				image, err := rt.store.Properties.GetImage(ctx, imageID)
				if err != nil {
					return err
				}
				return printImages(deps, []storage.PropertyImage{*image})
			})
		},
	}

	remove := &cobra.Command{
		Use:   "rm <image-id>",
		Short: "Delete a photo and its file",
		RunE: func(cmd *cobra.Command, args []string) error {
			imageID, err := parseIDArg(args, "image")
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				if err := rt.properties.RemoveImage(ctx, imageID); err != nil {
					return err
				}
				return printDeleted(deps, "image", imageID)
			})
		},
	}

	cmd.AddCommand(add, list, setMain, remove)
	return cmd
}

func printProperty(deps commandDeps, p storage.Property) error {
	return emit(deps, toPropertyView(p), func(w io.Writer) error {
		agent := p.EmployeeName
		if agent == "" {
			agent = "-"
		}
		_, err := fmt.Fprintf(
			w,
			"id=%d code=%s type=%s title=%q city=%q area=%s price=%s status=%s agent=%q\n",
			p.ID,
			p.ListingCode,
			p.Type,
			p.Title,
			p.City,
			p.Area.String(),
			p.Price.StringFixed(2),
			p.Status,
			agent,
		)
		return err
	})
}

func printImages(deps commandDeps, images []storage.PropertyImage) error {
	return emit(deps, toImageViews(images), func(w io.Writer) error {
		for _, img := range images {
			if _, err := fmt.Fprintf(w, "%d\t%s\t%s\n", img.ID, boolToState(img.IsMain, "main", "-"), img.FilePath); err != nil {
				return err
			}
		}
		return nil
	})
}
