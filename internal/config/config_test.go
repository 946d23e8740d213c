package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigPrecedenceFlagOverEnv(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	cfgPath := writeConfigFile(t, `
[storage]
database_path = "/srv/file.db"
`)

	flagPath := "/srv/flag.db"
	cfg, _, err := Load(LoadOptions{
		ConfigPath: cfgPath,
		Env: map[string]string{
			"AGENCYDESK_HOME":    home,
			"AGENCYDESK_DB_PATH": "/srv/env.db",
		},
		Flags: FlagOverrides{
			DatabasePath: &flagPath,
		},
	})
	require.NoError(t, err)
	require.Equal(t, "/srv/flag.db", cfg.Storage.DatabasePath)
}

func TestLoadConfigPrecedenceEnvOverFile(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfigFile(t, `
[storage]
busy_timeout = "10s"
`)

	cfg, _, err := Load(LoadOptions{
		ConfigPath: cfgPath,
		Env: map[string]string{
			"AGENCYDESK_HOME":         t.TempDir(),
			"AGENCYDESK_BUSY_TIMEOUT": "20s",
		},
	})
	require.NoError(t, err)
	require.Equal(t, 20*time.Second, cfg.Storage.BusyTimeout)
}

func TestLoadConfigPrecedenceFileOverDefault(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfigFile(t, `
[backup]
keep = 3
`)

	cfg, _, err := Load(LoadOptions{
		ConfigPath: cfgPath,
		Env:        map[string]string{"AGENCYDESK_HOME": t.TempDir()},
	})
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Backup.Keep)
}

func TestLoadConfigDefaultsLiveUnderAppHome(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	cfg, report, err := Load(LoadOptions{
		ConfigPath: filepath.Join(home, "missing.toml"),
		Env:        map[string]string{"AGENCYDESK_HOME": home},
	})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "missing.toml"), report.ConfigPath)
	require.Equal(t, home, cfg.Home)
	require.Equal(t, filepath.Join(home, "agencydesk.db"), cfg.Storage.DatabasePath)
	require.Equal(t, filepath.Join(home, "Backups"), cfg.Storage.BackupDir)
	require.Equal(t, filepath.Join(home, "Images"), cfg.Storage.ImageDir)
	require.Equal(t, "admin", cfg.Security.DefaultAdminUsername)
	require.Equal(t, "admin123", cfg.Security.DefaultAdminPassword)
	require.Equal(t, 6, cfg.Security.MinPasswordLength)
	require.Equal(t, 1024, cfg.Images.MaxWidth)
	require.Equal(t, 768, cfg.Images.MaxHeight)
	require.Equal(t, 85, cfg.Images.JPEGQuality)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfigFromTOMLParsesAllSupportedFields(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfigFile(t, `
[storage]
database_path = "/data/agency.db"
backup_dir = "/data/backups"
image_dir = "/data/images"
busy_timeout = "2s"

[security]
default_admin_username = "root"
default_admin_password = "s3cret-pass"
argon2_memory_kib = 32768
argon2_iterations = 4
min_password_length = 10

[images]
max_width = 800
max_height = 600
jpeg_quality = 70

[backup]
keep = 12

[logging]
level = "debug"
file = "/var/log/agencydesk.log"
max_size_mb = 20
max_files = 2
`)

	cfg, _, err := Load(LoadOptions{
		ConfigPath: cfgPath,
		Env:        map[string]string{"AGENCYDESK_HOME": t.TempDir()},
	})
	require.NoError(t, err)
	require.Equal(t, "/data/agency.db", cfg.Storage.DatabasePath)
	require.Equal(t, "/data/backups", cfg.Storage.BackupDir)
	require.Equal(t, "/data/images", cfg.Storage.ImageDir)
	require.Equal(t, 2*time.Second, cfg.Storage.BusyTimeout)
	require.Equal(t, "root", cfg.Security.DefaultAdminUsername)
	require.Equal(t, "s3cret-pass", cfg.Security.DefaultAdminPassword)
	require.Equal(t, 32768, cfg.Security.Argon2MemoryKiB)
	require.Equal(t, 4, cfg.Security.Argon2Iterations)
	require.Equal(t, 10, cfg.Security.MinPasswordLength)
	require.Equal(t, 800, cfg.Images.MaxWidth)
	require.Equal(t, 600, cfg.Images.MaxHeight)
	require.Equal(t, 70, cfg.Images.JPEGQuality)
	require.Equal(t, 12, cfg.Backup.Keep)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "/var/log/agencydesk.log", cfg.Logging.File)
	require.Equal(t, 20, cfg.Logging.MaxSizeMB)
	require.Equal(t, 2, cfg.Logging.MaxFiles)
}

func TestLoadConfigReadsDotEnvFromAppHome(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(home, ".env"), []byte("AGENCYDESK_BACKUP_KEEP=7\nAGENCYDESK_LOG_LEVEL=warn\n"), 0o600))

	cfg, _, err := Load(LoadOptions{
		ConfigPath: filepath.Join(home, "config.toml"),
		Env: map[string]string{
			"AGENCYDESK_HOME":      home,
			"AGENCYDESK_LOG_LEVEL": "error",
		},
	})
	require.NoError(t, err)
	require.Equal(t, 7, cfg.Backup.Keep)
	require.Equal(t, "error", cfg.Logging.Level, "explicit env wins over .env")
}

func TestLoadConfigValidationRejectsInvalidValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "zero busy timeout", body: "[storage]\nbusy_timeout = \"0s\"\n"},
		{name: "unparseable busy timeout", body: "[storage]\nbusy_timeout = \"soon\"\n"},
		{name: "short minimum password", body: "[security]\nmin_password_length = 4\n"},
		{name: "short default admin password", body: "[security]\ndefault_admin_password = \"abc\"\n"},
		{name: "weak argon2 memory", body: "[security]\nargon2_memory_kib = 1024\n"},
		{name: "excessive argon2 memory", body: "[security]\nargon2_memory_kib = 4194304\n"},
		{name: "excessive argon2 iterations", body: "[security]\nargon2_iterations = 1000\n"},
		{name: "jpeg quality out of range", body: "[images]\njpeg_quality = 101\n"},
		{name: "negative backup keep", body: "[backup]\nkeep = -1\n"},
		{name: "unknown log level", body: "[logging]\nlevel = \"chatty\"\n"},
		{name: "malformed toml", body: "[storage\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, _, err := Load(LoadOptions{
				ConfigPath: writeConfigFile(t, tc.body),
				Env:        map[string]string{"AGENCYDESK_HOME": t.TempDir()},
			})
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadConfigRejectsNonNumericEnv(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	_, _, err := Load(LoadOptions{
		ConfigPath: filepath.Join(home, "config.toml"),
		Env: map[string]string{
			"AGENCYDESK_HOME":         home,
			"AGENCYDESK_JPEG_QUALITY": "high",
		},
	})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestPolicyOverrideWinsAndIsReported(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfigFile(t, `
[security]
min_password_length = 8
`)
	policyPath := writeConfigFile(t, `
[security]
min_password_length = 12
`)

	cfg, report, err := Load(LoadOptions{
		ConfigPath: cfgPath,
		PolicyPath: policyPath,
		Env: map[string]string{
			"AGENCYDESK_HOME":                t.TempDir(),
			"AGENCYDESK_MIN_PASSWORD_LENGTH": "6",
		},
	})
	require.NoError(t, err)
	require.Equal(t, 12, cfg.Security.MinPasswordLength)
	require.Equal(t, []string{"security.min_password_length"}, report.PolicyOverrides)
}

func TestMissingPolicyFileIsNotAnError(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	_, report, err := Load(LoadOptions{
		ConfigPath: filepath.Join(home, "config.toml"),
		PolicyPath: filepath.Join(home, "missing-policy.toml"),
		Env:        map[string]string{"AGENCYDESK_HOME": home},
	})
	require.NoError(t, err)
	require.Empty(t, report.PolicyOverrides)
}

func TestLoadPolicyFromAppHomeByDefault(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(home, "policy.toml"), []byte("[backup]\nkeep = 90\n"), 0o600))

	cfg, report, err := Load(LoadOptions{
		ConfigPath: filepath.Join(home, "config.toml"),
		Env:        map[string]string{"AGENCYDESK_HOME": home},
	})
	require.NoError(t, err)
	require.Equal(t, 90, cfg.Backup.Keep)
	require.Equal(t, []string{"backup.keep"}, report.PolicyOverrides)
}

func TestLoadConfigPathFromEnv(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfigFile(t, "[images]\nmax_width = 640\n")
	cfg, report, err := Load(LoadOptions{
		Env: map[string]string{
			"AGENCYDESK_HOME":        t.TempDir(),
			"AGENCYDESK_CONFIG_PATH": cfgPath,
		},
	})
	require.NoError(t, err)
	require.Equal(t, cfgPath, report.ConfigPath)
	require.Equal(t, 640, cfg.Images.MaxWidth)
}

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}
