package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/agencydesk/agencydesk/internal/app"
	"github.com/agencydesk/agencydesk/internal/config"
	"github.com/spf13/cobra"
)

const defaultInitConfig = `[storage]
# database_path = ""
# backup_dir = ""
# image_dir = ""
busy_timeout = "5s"

[security]
default_admin_username = "admin"
argon2_memory_kib = 65536
argon2_iterations = 3
min_password_length = 6

[images]
max_width = 1024
max_height = 768
jpeg_quality = 85

[backup]
keep = 30

[logging]
level = "info"
file = ""
max_size_mb = 10
max_files = 5
`

func newInitCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the config file and database, seeding the default administrator",
		Example: "  agencydesk init\n" +
			"  agencydesk --db ./agency.db init",
		Args: noArgs("init"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, report, err := loadConfig(deps)
			if err != nil {
				return mapCommandError(err)
			}
			yes := deps.globals != nil && deps.globals.Yes

			existed := true
			if _, err := os.Stat(cfg.Storage.DatabasePath); errors.Is(err, os.ErrNotExist) {
				existed = false
			} else if err != nil {
				return mapCommandError(err)
			}

			logger, closeLog, err := newLogger(cfg)
			if err != nil {
				return mapCommandError(err)
			}
			defer closeLog.Close()

			hasher, err := newHasher(cfg)
			if err != nil {
				return mapCommandError(fmt.Errorf("%w: %v", config.ErrInvalidConfig, err))
			}
			if err := app.Bootstrap(cmd.Context(), cfg.Storage.DatabasePath, storageOptions(cfg, logger, hasher)); err != nil {
				return mapCommandError(err)
			}
			for _, dir := range []string{cfg.Storage.BackupDir, cfg.Storage.ImageDir} {
				if err := os.MkdirAll(dir, 0o700); err != nil {
					return mapCommandError(fmt.Errorf("init: create %s: %w", dir, err))
				}
			}
			if err := writeDefaultConfig(report.ConfigPath, yes); err != nil {
				return mapCommandError(err)
			}

			payload := map[string]any{
				"initialized":   true,
				"created":       !existed,
				"database_path": cfg.Storage.DatabasePath,
				"config_path":   report.ConfigPath,
				"backup_dir":    cfg.Storage.BackupDir,
				"image_dir":     cfg.Storage.ImageDir,
			}
			return emit(deps, payload, func(w io.Writer) error {
				if existed {
					if _, err := fmt.Fprintf(w, "database already initialized: %s\n", cfg.Storage.DatabasePath); err != nil {
						return err
					}
				} else {
					if _, err := fmt.Fprintf(w, "initialized database: %s\n", cfg.Storage.DatabasePath); err != nil {
						return err
					}
					if _, err := fmt.Fprintf(w, "default administrator: %s (change the password with `agencydesk passwd`)\n", cfg.Security.DefaultAdminUsername); err != nil {
						return err
					}
				}
				_, err := fmt.Fprintf(w, "config: %s\n", report.ConfigPath)
				return err
			})
		},
	}
}

func writeDefaultConfig(path string, overwrite bool) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: config path is required", app.ErrValidation)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("init: create config directory: %w", err)
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("init: stat config path: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(defaultInitConfig), 0o600); err != nil {
		return fmt.Errorf("init: write config: %w", err)
	}
	return nil
}
