package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

const (
	defaultDatabaseFileName  = "agencydesk.db"
	defaultBackupDirName     = "Backups"
	defaultImageDirName      = "Images"
	defaultBusyTimeout       = 5 * time.Second
	defaultAdminUsername     = "admin"
	defaultAdminPassword     = "admin123"
	defaultArgon2MemoryKiB   = 64 * 1024
	defaultArgon2Iterations  = 3
	defaultMinPasswordLength = 6
	defaultImageMaxWidth     = 1024
	defaultImageMaxHeight    = 768
	defaultJPEGQuality       = 85
	defaultBackupKeep        = 30
	defaultLogLevel          = "info"
	defaultLogMaxSizeMB      = 10
	defaultLogMaxFiles       = 5

	minArgon2MemoryKiB  = 8 * 1024
	maxArgon2MemoryKiB  = 1024 * 1024
	maxArgon2Iterations = 64
	dotEnvFileName      = ".env"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	// Home is the resolved application data directory. It is not read from
	// the config file.
	Home     string         `toml:"-"`
	Storage  StorageConfig  `toml:"storage"`
	Security SecurityConfig `toml:"security"`
	Images   ImagesConfig   `toml:"images"`
	Backup   BackupConfig   `toml:"backup"`
	Logging  LoggingConfig  `toml:"logging"`
}

type StorageConfig struct {
	DatabasePath string        `toml:"database_path"`
	BackupDir    string        `toml:"backup_dir"`
	ImageDir     string        `toml:"image_dir"`
	BusyTimeout  time.Duration `toml:"busy_timeout"`
}

type SecurityConfig struct {
	DefaultAdminUsername string `toml:"default_admin_username"`
	DefaultAdminPassword string `toml:"default_admin_password"`
	Argon2MemoryKiB      int    `toml:"argon2_memory_kib"`
	Argon2Iterations     int    `toml:"argon2_iterations"`
	MinPasswordLength    int    `toml:"min_password_length"`
}

type ImagesConfig struct {
	MaxWidth    int `toml:"max_width"`
	MaxHeight   int `toml:"max_height"`
	JPEGQuality int `toml:"jpeg_quality"`
}

type BackupConfig struct {
	Keep int `toml:"keep"`
}

type LoggingConfig struct {
	Level     string `toml:"level"`
	File      string `toml:"file"`
	MaxSizeMB int    `toml:"max_size_mb"`
	MaxFiles  int    `toml:"max_files"`
}

type LoadOptions struct {
	ConfigPath string
	PolicyPath string
	DotEnvPath string
	Env        map[string]string
	Flags      FlagOverrides
}

type FlagOverrides struct {
	DatabasePath *string
}

type LoadReport struct {
	ConfigPath      string
	PolicyOverrides []string
}

// DefaultConfig returns the settings used when nothing overrides them, with
// every path placed under home.
func DefaultConfig(home string) Config {
	return Config{
		Home: home,
		Storage: StorageConfig{
			DatabasePath: filepath.Join(home, defaultDatabaseFileName),
			BackupDir:    filepath.Join(home, defaultBackupDirName),
			ImageDir:     filepath.Join(home, defaultImageDirName),
			BusyTimeout:  defaultBusyTimeout,
		},
		Security: SecurityConfig{
			DefaultAdminUsername: defaultAdminUsername,
			DefaultAdminPassword: defaultAdminPassword,
			Argon2MemoryKiB:      defaultArgon2MemoryKiB,
			Argon2Iterations:     defaultArgon2Iterations,
			MinPasswordLength:    defaultMinPasswordLength,
		},
		Images: ImagesConfig{
			MaxWidth:    defaultImageMaxWidth,
			MaxHeight:   defaultImageMaxHeight,
			JPEGQuality: defaultJPEGQuality,
		},
		Backup: BackupConfig{
			Keep: defaultBackupKeep,
		},
		Logging: LoggingConfig{
			Level:     defaultLogLevel,
			File:      "",
			MaxSizeMB: defaultLogMaxSizeMB,
			MaxFiles:  defaultLogMaxFiles,
		},
	}
}

// Load resolves the configuration. Precedence, lowest first: defaults, the
// config file, the .env file, the process environment, LoadOptions.Env,
// flags, and finally the policy file.
func Load(opts LoadOptions) (Config, LoadReport, error) {
	report := LoadReport{PolicyOverrides: []string{}}

	env := newEnvLookup(opts)

	home, err := env.appHome()
	if err != nil {
		return Config{}, report, fmt.Errorf("resolve app home: %w", err)
	}
	if err := env.loadDotEnv(opts, home); err != nil {
		return Config{}, report, err
	}
	cfg := DefaultConfig(home)

	configPath, err := env.configPath(opts)
	if err != nil {
		return Config{}, report, fmt.Errorf("resolve config path: %w", err)
	}
	report.ConfigPath = configPath
	if err := loadAndApplyFile(configPath, &cfg, nil); err != nil {
		return Config{}, report, err
	}

	if err := applyEnvOverrides(&cfg, env); err != nil {
		return Config{}, report, err
	}
	applyFlagOverrides(&cfg, opts.Flags)

	policyPath := opts.PolicyPath
	if policyPath == "" {
		if value, ok := env.lookup("AGENCYDESK_POLICY_FILE"); ok {
			policyPath = value
		} else {
			policyPath = filepath.Join(home, "policy.toml")
		}
	}
	if err := loadAndApplyFile(policyPath, &cfg, &report.PolicyOverrides); err != nil {
		return Config{}, report, err
	}

	if err := validate(cfg); err != nil {
		return Config{}, report, err
	}
	return cfg, report, nil
}

type rawConfig struct {
	Storage  *rawStorage  `toml:"storage"`
	Security *rawSecurity `toml:"security"`
	Images   *rawImages   `toml:"images"`
	Backup   *rawBackup   `toml:"backup"`
	Logging  *rawLogging  `toml:"logging"`
}

type rawStorage struct {
	DatabasePath *string `toml:"database_path"`
	BackupDir    *string `toml:"backup_dir"`
	ImageDir     *string `toml:"image_dir"`
	BusyTimeout  *string `toml:"busy_timeout"`
}

type rawSecurity struct {
	DefaultAdminUsername *string `toml:"default_admin_username"`
	DefaultAdminPassword *string `toml:"default_admin_password"`
	Argon2MemoryKiB      *int    `toml:"argon2_memory_kib"`
	Argon2Iterations     *int    `toml:"argon2_iterations"`
	MinPasswordLength    *int    `toml:"min_password_length"`
}

type rawImages struct {
	MaxWidth    *int `toml:"max_width"`
	MaxHeight   *int `toml:"max_height"`
	JPEGQuality *int `toml:"jpeg_quality"`
}

type rawBackup struct {
	Keep *int `toml:"keep"`
}

type rawLogging struct {
	Level     *string `toml:"level"`
	File      *string `toml:"file"`
	MaxSizeMB *int    `toml:"max_size_mb"`
	MaxFiles  *int    `toml:"max_files"`
}

func loadAndApplyFile(path string, cfg *Config, policyOverrides *[]string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file %q: %w", path, err)
	}

	var raw rawConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: parse TOML file %q: %v", ErrInvalidConfig, path, err)
	}

	return applyRawConfig(cfg, raw, policyOverrides)
}

func applyRawConfig(cfg *Config, raw rawConfig, policyOverrides *[]string) error {
	if raw.Storage != nil {
		setString("storage.database_path", raw.Storage.DatabasePath, &cfg.Storage.DatabasePath, policyOverrides)
		setString("storage.backup_dir", raw.Storage.BackupDir, &cfg.Storage.BackupDir, policyOverrides)
		setString("storage.image_dir", raw.Storage.ImageDir, &cfg.Storage.ImageDir, policyOverrides)
		if err := setDuration("storage.busy_timeout", raw.Storage.BusyTimeout, &cfg.Storage.BusyTimeout, policyOverrides); err != nil {
			return err
		}
	}

	if raw.Security != nil {
		setString("security.default_admin_username", raw.Security.DefaultAdminUsername, &cfg.Security.DefaultAdminUsername, policyOverrides)
		setString("security.default_admin_password", raw.Security.DefaultAdminPassword, &cfg.Security.DefaultAdminPassword, policyOverrides)
		setInt("security.argon2_memory_kib", raw.Security.Argon2MemoryKiB, &cfg.Security.Argon2MemoryKiB, policyOverrides)
		setInt("security.argon2_iterations", raw.Security.Argon2Iterations, &cfg.Security.Argon2Iterations, policyOverrides)
		setInt("security.min_password_length", raw.Security.MinPasswordLength, &cfg.Security.MinPasswordLength, policyOverrides)
	}

	if raw.Images != nil {
		setInt("images.max_width", raw.Images.MaxWidth, &cfg.Images.MaxWidth, policyOverrides)
		setInt("images.max_height", raw.Images.MaxHeight, &cfg.Images.MaxHeight, policyOverrides)
		setInt("images.jpeg_quality", raw.Images.JPEGQuality, &cfg.Images.JPEGQuality, policyOverrides)
	}

	if raw.Backup != nil {
		setInt("backup.keep", raw.Backup.Keep, &cfg.Backup.Keep, policyOverrides)
	}

	if raw.Logging != nil {
		setString("logging.level", raw.Logging.Level, &cfg.Logging.Level, policyOverrides)
		setString("logging.file", raw.Logging.File, &cfg.Logging.File, policyOverrides)
		setInt("logging.max_size_mb", raw.Logging.MaxSizeMB, &cfg.Logging.MaxSizeMB, policyOverrides)
		setInt("logging.max_files", raw.Logging.MaxFiles, &cfg.Logging.MaxFiles, policyOverrides)
	}

	return nil
}

func applyEnvOverrides(cfg *Config, env *envLookup) error {
	if value, ok := env.lookup("AGENCYDESK_DB_PATH"); ok {
		cfg.Storage.DatabasePath = value
	}
	if value, ok := env.lookup("AGENCYDESK_BACKUP_DIR"); ok {
		cfg.Storage.BackupDir = value
	}
	if value, ok := env.lookup("AGENCYDESK_IMAGE_DIR"); ok {
		cfg.Storage.ImageDir = value
	}
	if value, ok := env.lookup("AGENCYDESK_BUSY_TIMEOUT"); ok {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: parse AGENCYDESK_BUSY_TIMEOUT: %v", ErrInvalidConfig, err)
		}
		cfg.Storage.BusyTimeout = d
	}

	if value, ok := env.lookup("AGENCYDESK_DEFAULT_ADMIN_USERNAME"); ok {
		cfg.Security.DefaultAdminUsername = value
	}
	if value, ok := env.lookup("AGENCYDESK_DEFAULT_ADMIN_PASSWORD"); ok {
		cfg.Security.DefaultAdminPassword = value
	}

	ints := []struct {
		key    string
		target *int
	}{
		{"AGENCYDESK_ARGON2_MEMORY_KIB", &cfg.Security.Argon2MemoryKiB},
		{"AGENCYDESK_ARGON2_ITERATIONS", &cfg.Security.Argon2Iterations},
		{"AGENCYDESK_MIN_PASSWORD_LENGTH", &cfg.Security.MinPasswordLength},
		{"AGENCYDESK_IMAGE_MAX_WIDTH", &cfg.Images.MaxWidth},
		{"AGENCYDESK_IMAGE_MAX_HEIGHT", &cfg.Images.MaxHeight},
		{"AGENCYDESK_JPEG_QUALITY", &cfg.Images.JPEGQuality},
		{"AGENCYDESK_BACKUP_KEEP", &cfg.Backup.Keep},
		{"AGENCYDESK_LOG_MAX_SIZE_MB", &cfg.Logging.MaxSizeMB},
		{"AGENCYDESK_LOG_MAX_FILES", &cfg.Logging.MaxFiles},
	}
	for _, item := range ints {
		value, ok := env.lookup(item.key)
		if !ok {
			continue
		}
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, item.key, err)
		}
		*item.target = parsed
	}

	if value, ok := env.lookup("AGENCYDESK_LOG_LEVEL"); ok {
		cfg.Logging.Level = value
	}
	if value, ok := env.lookup("AGENCYDESK_LOG_FILE"); ok {
		cfg.Logging.File = value
	}
	return nil
}

func applyFlagOverrides(cfg *Config, flags FlagOverrides) {
	if flags.DatabasePath != nil && *flags.DatabasePath != "" {
		cfg.Storage.DatabasePath = *flags.DatabasePath
	}
}

func validate(cfg Config) error {
	switch {
	case strings.TrimSpace(cfg.Storage.DatabasePath) == "":
		return fmt.Errorf("%w: storage.database_path must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(cfg.Storage.BackupDir) == "":
		return fmt.Errorf("%w: storage.backup_dir must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(cfg.Storage.ImageDir) == "":
		return fmt.Errorf("%w: storage.image_dir must not be empty", ErrInvalidConfig)
	case cfg.Storage.BusyTimeout <= 0 || cfg.Storage.BusyTimeout > 10*time.Minute:
		return fmt.Errorf("%w: storage.busy_timeout must be > 0 and <= 10m", ErrInvalidConfig)
	case strings.TrimSpace(cfg.Security.DefaultAdminUsername) == "":
		return fmt.Errorf("%w: security.default_admin_username must not be empty", ErrInvalidConfig)
	case cfg.Security.MinPasswordLength < defaultMinPasswordLength:
		return fmt.Errorf("%w: security.min_password_length must be >= %d", ErrInvalidConfig, defaultMinPasswordLength)
	case len([]rune(cfg.Security.DefaultAdminPassword)) < defaultMinPasswordLength:
		return fmt.Errorf("%w: security.default_admin_password must be at least %d characters", ErrInvalidConfig, defaultMinPasswordLength)
	case cfg.Security.Argon2MemoryKiB < minArgon2MemoryKiB:
		return fmt.Errorf("%w: security.argon2_memory_kib must be >= %d", ErrInvalidConfig, minArgon2MemoryKiB)
	case cfg.Security.Argon2MemoryKiB > maxArgon2MemoryKiB:
		return fmt.Errorf("%w: security.argon2_memory_kib must be <= %d", ErrInvalidConfig, maxArgon2MemoryKiB)
	case cfg.Security.Argon2Iterations < 1 || cfg.Security.Argon2Iterations > maxArgon2Iterations:
		return fmt.Errorf("%w: security.argon2_iterations must be between 1 and %d", ErrInvalidConfig, maxArgon2Iterations)
	case cfg.Images.MaxWidth < 1 || cfg.Images.MaxHeight < 1:
		return fmt.Errorf("%w: images.max_width and images.max_height must be positive", ErrInvalidConfig)
	case cfg.Images.JPEGQuality < 1 || cfg.Images.JPEGQuality > 100:
		return fmt.Errorf("%w: images.jpeg_quality must be within 1..100", ErrInvalidConfig)
	case cfg.Backup.Keep < 0:
		return fmt.Errorf("%w: backup.keep must not be negative", ErrInvalidConfig)
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: logging.level must be one of debug, info, warn, error", ErrInvalidConfig)
	}
	return nil
}

func setDuration(field string, raw *string, target *time.Duration, policyOverrides *[]string) error {
	if raw == nil {
		return nil
	}
	d, err := time.ParseDuration(*raw)
	if err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, field, err)
	}
	if policyOverrides != nil && *target != d {
		*policyOverrides = append(*policyOverrides, field)
	}
	*target = d
	return nil
}

func setString(field string, raw *string, target *string, policyOverrides *[]string) {
	if raw == nil {
		return
	}
	if policyOverrides != nil && *target != *raw {
		*policyOverrides = append(*policyOverrides, field)
	}
	*target = *raw
}

func setInt(field string, raw *int, target *int, policyOverrides *[]string) {
	if raw == nil {
		return
	}
	if policyOverrides != nil && *target != *raw {
		*policyOverrides = append(*policyOverrides, field)
	}
	*target = *raw
}

// envLookup resolves variables from LoadOptions.Env, then the process
// environment, then the .env file in the app home.
type envLookup struct {
	explicit map[string]string
	dotEnv   map[string]string
}

func newEnvLookup(opts LoadOptions) *envLookup {
	return &envLookup{explicit: opts.Env, dotEnv: map[string]string{}}
}

func (e *envLookup) lookup(key string) (string, bool) {
	if e.explicit != nil {
		if value, ok := e.explicit[key]; ok {
			return value, true
		}
	}
	if value, ok := os.LookupEnv(key); ok {
		return value, true
	}
	value, ok := e.dotEnv[key]
	return value, ok
}

func (e *envLookup) loadDotEnv(opts LoadOptions, home string) error {
	path := opts.DotEnvPath
	if path == "" {
		path = filepath.Join(home, dotEnvFileName)
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: read %s: %v", ErrInvalidConfig, path, err)
	}
	e.dotEnv = values
	return nil
}

func (e *envLookup) configPath(opts LoadOptions) (string, error) {
	if opts.ConfigPath != "" {
		return opts.ConfigPath, nil
	}
	if value, ok := e.lookup("AGENCYDESK_CONFIG_PATH"); ok {
		return value, nil
	}
	return e.defaultConfigPath()
}

func (e *envLookup) appHome() (string, error) {
	if value, ok := e.lookup("AGENCYDESK_HOME"); ok && value != "" {
		return value, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "AgencyDesk"), nil
	}

	dataHome := filepath.Join(home, ".local", "share")
	if xdgDataHome, ok := e.lookup("XDG_DATA_HOME"); ok && xdgDataHome != "" {
		dataHome = xdgDataHome
	}
	return filepath.Join(dataHome, "agencydesk"), nil
}

func (e *envLookup) defaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "AgencyDesk", "config.toml"), nil
	}

	configHome := filepath.Join(home, ".config")
	if xdgConfigHome, ok := e.lookup("XDG_CONFIG_HOME"); ok && xdgConfigHome != "" {
		configHome = xdgConfigHome
	}
	return filepath.Join(configHome, "agencydesk", "config.toml"), nil
}
