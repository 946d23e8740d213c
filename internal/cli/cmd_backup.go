package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/agencydesk/agencydesk/internal/app"
	"github.com/agencydesk/agencydesk/internal/config"
	"github.com/spf13/cobra"
)

func newBackupCommand(deps commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Database backups",
		Example: "  agencydesk backup create --label before-import\n" +
			"  agencydesk backup restore before-import_20240301_101500.db",
	}
	cmd.AddCommand(
		newBackupCreateCommand(deps),
		newBackupRestoreCommand(deps),
		newBackupListCommand(deps),
		newBackupPruneCommand(deps),
	)
	return cmd
}

func newBackupCreateCommand(deps commandDeps) *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Copy the live database into the backup directory",
		Example: "  agencydesk backup create\n" +
			"  agencydesk backup create --label month-end",
		Args: noArgs("backup create"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackups(cmd.Context(), deps, func(ctx context.Context, _ config.Config, backups *app.BackupService) error {
				info, err := backups.Create(ctx, label)
				if err != nil {
					return err
				}
				return emit(deps, info, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "backup created: %s (%d bytes, sha256 %s)\n", info.Path, info.SizeBytes, info.SHA256)
					return err
				})
			})
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "Prefix for the backup file name")
	return cmd
}

func newBackupRestoreCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup>",
		Short: "Replace the live database with a backup; a pre_restore backup is taken first",
		Example: "  agencydesk backup restore ./agency_20240301_101500.db\n" +
			"  agencydesk --yes backup restore month-end_20240331_180000.db",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
				return usageErrorf("backup restore requires exactly one backup file")
			}
			confirmer := newConfirmer(deps, cmd.InOrStdin(), cmd.ErrOrStderr())

			return withBackups(cmd.Context(), deps, func(ctx context.Context, _ config.Config, backups *app.BackupService) error {
				source := resolveBackupPath(backups.Dir(), args[0])
				pre, err := backups.Restore(ctx, source, confirmer)
				if err != nil {
					return err
				}
				payload := map[string]any{
					"restored":    true,
					"source":      source,
					"pre_restore": pre,
				}
				return emit(deps, payload, func(w io.Writer) error {
					if _, err := fmt.Fprintf(w, "restored from: %s\n", source); err != nil {
						return err
					}
					if pre == nil {
						_, err := fmt.Fprintln(w, "no previous database to save")
						return err
					}
					_, err := fmt.Fprintf(w, "previous database saved as: %s\n", pre.Path)
					return err
				})
			})
		},
	}
}

func newBackupListCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List backups, newest first",
		Args:  noArgs("backup ls"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackups(cmd.Context(), deps, func(ctx context.Context, _ config.Config, backups *app.BackupService) error {
				listed, err := backups.List(ctx)
				if err != nil {
					return err
				}
				if listed == nil {
					listed = []app.BackupInfo{}
				}
				return emit(deps, listed, func(w io.Writer) error {
					for _, b := range listed {
						if _, err := fmt.Fprintf(w, "%s\t%s\t%d\n", b.CreatedAt.Local().Format("2006-01-02 15:04:05"), b.Name, b.SizeBytes); err != nil {
							return err
						}
					}
					return nil
				})
			})
		},
	}
}

func newBackupPruneCommand(deps commandDeps) *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest backups",
		Args:  noArgs("backup prune"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("keep") && keep < 0 {
				return usageErrorf("--keep must not be negative")
			}
			return withBackups(cmd.Context(), deps, func(ctx context.Context, cfg config.Config, backups *app.BackupService) error {
				if !cmd.Flags().Changed("keep") {
					keep = cfg.Backup.Keep
				}
				removed, err := backups.Prune(ctx, keep)
				if err != nil {
					return err
				}
				if removed == nil {
					removed = []app.BackupInfo{}
				}
				return emit(deps, map[string]any{"kept": keep, "removed": removed}, func(w io.Writer) error {
					for _, b := range removed {
						if _, err := fmt.Fprintf(w, "removed %s\n", b.Name); err != nil {
							return err
						}
					}
					_, err := fmt.Fprintf(w, "%d backup(s) removed\n", len(removed))
					return err
				})
			})
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 0, "Number of backups to keep (default from config)")
	return cmd
}

// resolveBackupPath accepts either a path or a bare file name from the
// backup directory.
func resolveBackupPath(dir, arg string) string {
	if _, err := os.Stat(arg); err == nil {
		return arg
	}
	if filepath.Base(arg) == arg {
		return filepath.Join(dir, arg)
	}
	return arg
}
