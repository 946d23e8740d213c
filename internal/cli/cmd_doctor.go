package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/agencydesk/agencydesk/internal/debug"
	"github.com/agencydesk/agencydesk/internal/storage"
	"github.com/spf13/cobra"
)

func newDoctorCommand(deps commandDeps) *cobra.Command {
	var bundlePath string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the config, database and data directories without changing them",
		Example: "  agencydesk doctor\n" +
			"  agencydesk doctor --bundle ./agencydesk-support.json",
		Args: noArgs("doctor"),
		RunE: func(cmd *cobra.Command, args []string) error {
			bundle := debug.NewBundle()
			bundle.Version = map[string]any{
				"version":    deps.build.Version,
				"commit":     deps.build.Commit,
				"build_time": deps.build.BuildTime,
			}

			cfg, report, cfgErr := loadConfig(deps)
			if cfgErr != nil {
				bundle.Checks = append(bundle.Checks, debug.Check{Name: "config", OK: false, Message: cfgErr.Error()})
			} else {
				bundle.Checks = append(bundle.Checks, debug.Check{Name: "config", OK: true, Message: report.ConfigPath})
				bundle.Config = map[string]any{
					"config_path":      report.ConfigPath,
					"database_path":    cfg.Storage.DatabasePath,
					"backup_dir":       cfg.Storage.BackupDir,
					"image_dir":        cfg.Storage.ImageDir,
					"policy_overrides": report.PolicyOverrides,
				}

				health, err := storage.Inspect(cmd.Context(), cfg.Storage.DatabasePath)
				switch {
				case errors.Is(err, os.ErrNotExist):
					bundle.Checks = append(bundle.Checks, debug.Check{
						Name:    "database",
						OK:      false,
						Message: fmt.Sprintf("%s does not exist (run `agencydesk init`)", cfg.Storage.DatabasePath),
					})
				case err != nil:
					bundle.Checks = append(bundle.Checks, debug.Check{Name: "database", OK: false, Message: err.Error()})
				default:
					bundle.Database = map[string]any{
						"path":           health.Path,
						"size_bytes":     health.SizeBytes,
						"schema_version": health.SchemaVersion,
						"integrity":      health.Integrity,
						"counts":         health.Counts,
					}
					ok := health.Current && health.Integrity == "ok"
					message := fmt.Sprintf("schema v%d, integrity %s", health.SchemaVersion, health.Integrity)
					if !health.Current {
						message += fmt.Sprintf(", expected schema v%d", storage.CurrentSchemaVersion())
					}
					bundle.Checks = append(bundle.Checks, debug.Check{Name: "database", OK: ok, Message: message})
				}

				bundle.Checks = append(bundle.Checks,
					checkWritableDir("backup_dir", cfg.Storage.BackupDir),
					checkWritableDir("image_dir", cfg.Storage.ImageDir),
				)
				if cfg.Security.DefaultAdminPassword == storage.DefaultAdminPassword {
					bundle.Notes = append(bundle.Notes, "config still seeds the stock administrator password; change it after first login")
				}
			}

			if bundlePath != "" {
				if err := debug.WriteBundle(bundlePath, bundle); err != nil {
					return mapCommandError(err)
				}
			}

			if err := emit(deps, bundle, func(w io.Writer) error {
				for _, check := range bundle.Checks {
					if _, err := fmt.Fprintf(w, "%s: %s (%s)\n", check.Name, boolToState(check.OK, "ok", "fail"), check.Message); err != nil {
						return err
					}
				}
				for _, note := range bundle.Notes {
					if _, err := fmt.Fprintf(w, "note: %s\n", note); err != nil {
						return err
					}
				}
				return nil
			}); err != nil {
				return mapCommandError(err)
			}

			if bundle.Failed() {
				return asExitError(ExitCodeGeneric, fmt.Errorf("doctor: one or more checks failed"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&bundlePath, "bundle", "", "Also write the report as a JSON support bundle")
	return cmd
}

// checkWritableDir reports ok when dir is absent (it is created on demand)
// or when a file can be created in it.
func checkWritableDir(name, dir string) debug.Check {
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return debug.Check{Name: name, OK: true, Message: dir + " (created on first use)"}
	}
	if err != nil {
		return debug.Check{Name: name, OK: false, Message: err.Error()}
	}
	if !info.IsDir() {
		return debug.Check{Name: name, OK: false, Message: dir + " is not a directory"}
	}
	probe, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return debug.Check{Name: name, OK: false, Message: err.Error()}
	}
	_ = probe.Close()
	_ = os.Remove(probe.Name())
	return debug.Check{Name: name, OK: true, Message: filepath.Clean(dir)}
}
