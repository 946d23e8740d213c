package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/agencydesk/agencydesk/internal/app"
	"github.com/agencydesk/agencydesk/internal/storage"
	"github.com/spf13/cobra"
)

func newUserCommand(deps commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Application user accounts",
	}
	cmd.AddCommand(
		newUserAddCommand(deps),
		newUserListCommand(deps),
		newUserShowCommand(deps),
		newUserEditCommand(deps),
		newUserRemoveCommand(deps),
		newUserResetPasswordCommand(deps),
	)
	return cmd
}

func newUserAddCommand(deps commandDeps) *cobra.Command {
	var req app.CreateUserRequest

	cmd := &cobra.Command{
		Use:     "add",
		Short:   "Create a user; the initial password is read from stdin",
		Example: "  printf 's3cret!\\n' | agencydesk user add --username dora --full-name 'Dora Hoxha'",
		Args:    noArgs("user add"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(req.Username) == "" {
				return usageErrorf("user add requires --username")
			}
			lines, err := readSecretLines(cmd.InOrStdin(), 1, "password")
			if err != nil {
				return mapCommandError(err)
			}
			req.Password = lines[0]

			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				user, err := rt.auth.CreateUser(ctx, req)
				if err != nil {
					return err
				}
				return printUser(deps, *user)
			})
		},
	}
	cmd.Flags().StringVar(&req.Username, "username", "", "Login name (unique, case-insensitive)")
	cmd.Flags().StringVar(&req.FullName, "full-name", "", "Display name")
	cmd.Flags().StringVar(&req.Email, "email", "", "Email address")
	cmd.Flags().BoolVar(&req.IsAdmin, "admin", false, "Grant administrator rights")
	return cmd
}

func newUserListCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List users",
		Args:  noArgs("user ls"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				users, err := rt.store.Users.List(ctx)
				if err != nil {
					return err
				}
				return emit(deps, mapSlice(users, toUserView), func(w io.Writer) error {
					for _, u := range users {
						if _, err := fmt.Fprintf(
							w,
							"%d\t%s\t%s\t%s\t%s\n",
							u.ID,
							u.Username,
							u.FullName,
							boolToState(u.IsAdmin, "admin", "user"),
							boolToState(u.IsActive, "active", "inactive"),
						); err != nil {
							return err
						}
					}
					return nil
				})
			})
		},
	}
}

func newUserShowCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args, "user")
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				user, err := rt.store.Users.Get(ctx, id)
				if err != nil {
					return err
				}
				return printUser(deps, *user)
			})
		},
	}
}

func newUserEditCommand(deps commandDeps) *cobra.Command {
	var (
		username string
		fullName string
		email    string
		isAdmin  bool
		isActive bool
	)

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Update a user; only the given flags change",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args, "user")
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				user, err := rt.store.Users.Get(ctx, id)
				if err != nil {
					return err
				}
				flags := cmd.Flags()
				if flags.Changed("username") {
					user.Username = username
				}
				if flags.Changed("full-name") {
					user.FullName = fullName
				}
				if flags.Changed("email") {
					user.Email = email
				}
				if flags.Changed("admin") {
					user.IsAdmin = isAdmin
				}
				if flags.Changed("active") {
					user.IsActive = isActive
				}
				if err := rt.store.Users.Update(ctx, user); err != nil {
					return err
				}
				return printUser(deps, *user)
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Login name")
	cmd.Flags().StringVar(&fullName, "full-name", "", "Display name")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().BoolVar(&isAdmin, "admin", false, "Administrator rights")
	cmd.Flags().BoolVar(&isActive, "active", true, "Whether the user may log in")
	return cmd
}

func newUserRemoveCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args, "user")
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				if err := rt.store.Users.Delete(ctx, id); err != nil {
					return err
				}
				return printDeleted(deps, "user", id)
			})
		},
	}
}

func newUserResetPasswordCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-password <id>",
		Short: "Set a new password without the current one; read from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args, "user")
			if err != nil {
				return err
			}
			lines, err := readSecretLines(cmd.InOrStdin(), 1, "new password")
			if err != nil {
				return mapCommandError(err)
			}
			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				if err := rt.auth.ResetPassword(ctx, id, lines[0]); err != nil {
					return err
				}
				return emit(deps, map[string]any{"reset": true, "id": id}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "password reset for user %d\n", id)
					return err
				})
			})
		},
	}
}

func printUser(deps commandDeps, u storage.User) error {
	return emit(deps, toUserView(u), func(w io.Writer) error {
		lastLogin := "never"
		if u.LastLoginAt != nil {
			lastLogin = u.LastLoginAt.Local().Format("2006-01-02 15:04")
		}
		_, err := fmt.Fprintf(
			w,
			"id=%d username=%s name=%q role=%s status=%s last_login=%s\n",
			u.ID,
			u.Username,
			u.FullName,
			boolToState(u.IsAdmin, "admin", "user"),
			boolToState(u.IsActive, "active", "inactive"),
			lastLogin,
		)
		return err
	})
}

func printDeleted(deps commandDeps, entity string, id int64) error {
	return emit(deps, map[string]any{"deleted": true, "entity": entity, "id": id}, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "deleted %s %d\n", entity, id)
		return err
	})
}
