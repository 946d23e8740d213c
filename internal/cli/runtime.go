package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/agencydesk/agencydesk/internal/app"
	"github.com/agencydesk/agencydesk/internal/config"
	"github.com/agencydesk/agencydesk/internal/crypto"
	logpkg "github.com/agencydesk/agencydesk/internal/log"
	"github.com/agencydesk/agencydesk/internal/media"
	"github.com/agencydesk/agencydesk/internal/storage"
)

var loadConfigFn = config.Load

// runtime is the set of services one command invocation works with. It owns
// the open store and the log file.
type runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	store      *storage.Store
	hasher     *crypto.PasswordHasher
	auth       *app.AuthService
	properties *app.PropertyService
	reports    *app.ReportService
}

func loadConfig(deps commandDeps) (config.Config, config.LoadReport, error) {
	loadOpts := config.LoadOptions{Env: deps.env}
	if deps.globals != nil {
		if configPath := strings.TrimSpace(deps.globals.ConfigPath); configPath != "" {
			loadOpts.ConfigPath = configPath
		}
		if dbPath := strings.TrimSpace(deps.globals.DBPath); dbPath != "" {
			loadOpts.Flags.DatabasePath = &dbPath
		}
	}
	cfg, report, err := loadConfigFn(loadOpts)
	if err != nil {
		return config.Config{}, report, fmt.Errorf("load config: %w", err)
	}
	return cfg, report, nil
}

func newHasher(cfg config.Config) (*crypto.PasswordHasher, error) {
	params := crypto.DefaultArgon2Params()
	params.Memory = uint32(cfg.Security.Argon2MemoryKiB)
	params.Iterations = uint32(cfg.Security.Argon2Iterations)
	return crypto.NewPasswordHasher(params)
}

func storageOptions(cfg config.Config, logger *slog.Logger, hasher *crypto.PasswordHasher) storage.Options {
	return storage.Options{
		Logger:               logger,
		Hasher:               hasher,
		DefaultAdminUsername: cfg.Security.DefaultAdminUsername,
		DefaultAdminPassword: cfg.Security.DefaultAdminPassword,
		BusyTimeout:          cfg.Storage.BusyTimeout,
	}
}

func newLogger(cfg config.Config) (*slog.Logger, io.Closer, error) {
	return logpkg.New(logpkg.Options{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
		Stderr:    os.Stderr,
	})
}

// withRuntime opens the configured database, which is created and seeded on
// first use, runs fn and closes everything again.
func withRuntime(cmdCtx context.Context, deps commandDeps, fn func(context.Context, *runtime) error) error {
	ctx := cmdCtx
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, _, err := loadConfig(deps)
	if err != nil {
		return mapCommandError(err)
	}
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return mapCommandError(fmt.Errorf("configure logging: %w", err))
	}
	defer closeLog.Close()

	hasher, err := newHasher(cfg)
	if err != nil {
		return mapCommandError(fmt.Errorf("%w: %v", config.ErrInvalidConfig, err))
	}

	store, err := storage.Open(ctx, cfg.Storage.DatabasePath, storageOptions(cfg, logger, hasher))
	if err != nil {
		return mapCommandError(err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Warn("close store", "error", closeErr)
		}
	}()

	images, err := media.NewStore(cfg.Storage.ImageDir, media.Options{
		MaxWidth:    cfg.Images.MaxWidth,
		MaxHeight:   cfg.Images.MaxHeight,
		JPEGQuality: cfg.Images.JPEGQuality,
	})
	if err != nil {
		return mapCommandError(err)
	}

	rt := &runtime{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		hasher:     hasher,
		auth:       app.NewAuthService(store, hasher, cfg.Security.MinPasswordLength, logger),
		properties: app.NewPropertyService(store, images, logger),
		reports:    app.NewReportService(store),
	}
	return mapCommandError(fn(ctx, rt))
}

// withBackups runs fn with a backup service built from the configured paths.
// The database is not opened, so backups can be restored over a live file
// that is missing, damaged or from a newer release.
func withBackups(cmdCtx context.Context, deps commandDeps, fn func(context.Context, config.Config, *app.BackupService) error) error {
	ctx := cmdCtx
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, _, err := loadConfig(deps)
	if err != nil {
		return mapCommandError(err)
	}
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return mapCommandError(fmt.Errorf("configure logging: %w", err))
	}
	defer closeLog.Close()

	backups := app.NewBackupService(cfg.Storage.DatabasePath, cfg.Storage.BackupDir, app.BackupOptions{
		BusyTimeout: cfg.Storage.BusyTimeout,
		Logger:      logger,
	})
	return mapCommandError(fn(ctx, cfg, backups))
}

func printJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

// emit prints value as JSON under --json, nothing under --quiet, and
// otherwise calls text.
func emit(deps commandDeps, value any, text func(io.Writer) error) error {
	if deps.globals.JSON {
		return printJSON(deps.out, value)
	}
	if deps.globals.Quiet {
		return nil
	}
	return text(deps.out)
}

func boolToState(v bool, yes, no string) string {
	if v {
		return yes
	}
	return no
}
