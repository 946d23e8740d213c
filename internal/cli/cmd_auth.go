package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func newLoginCommand(deps commandDeps) *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:     "login",
		Short:   "Verify credentials; the password is read from stdin",
		Example: "  printf 'admin123\\n' | agencydesk login --username admin",
		Args:    noArgs("login"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(username) == "" {
				return usageErrorf("login requires --username")
			}
			lines, err := readSecretLines(cmd.InOrStdin(), 1, "password")
			if err != nil {
				return mapCommandError(err)
			}

			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				user, err := rt.auth.Login(ctx, username, lines[0])
				if err != nil {
					return err
				}
				return emit(deps, toUserView(*user), func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "logged in as %s (%s)\n", user.Username, boolToState(user.IsAdmin, "administrator", "user"))
					return err
				})
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Username")
	return cmd
}

func newPasswdCommand(deps commandDeps) *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:     "passwd",
		Short:   "Change a password; reads the current and the new password from stdin",
		Example: "  printf 'admin123\\nn3w-secret\\n' | agencydesk passwd --username admin",
		Args:    noArgs("passwd"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(username) == "" {
				return usageErrorf("passwd requires --username")
			}
			lines, err := readSecretLines(cmd.InOrStdin(), 2, "current and new password")
			if err != nil {
				return mapCommandError(err)
			}

			return withRuntime(cmd.Context(), deps, func(ctx context.Context, rt *runtime) error {
				user, err := rt.auth.Login(ctx, username, lines[0])
				if err != nil {
					return err
				}
				if err := rt.auth.ChangePassword(ctx, user.ID, lines[0], lines[1]); err != nil {
					return err
				}
				return emit(deps, map[string]any{"changed": true, "username": user.Username}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "password changed for %s\n", user.Username)
					return err
				})
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Username")
	return cmd
}
