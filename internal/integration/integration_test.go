//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	repoRoot         string
	integrationBin   string
	integrationCache string
)

func TestMain(m *testing.M) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		fmt.Fprintln(os.Stderr, "integration: resolve current file")
		os.Exit(1)
	}
	repoRoot = filepath.Clean(filepath.Join(filepath.Dir(file), "..", ".."))

	tmpDir, err := os.MkdirTemp("", "agencydesk-integration-")
	if err != nil {
		fmt.Fprintf(os.Stderr, "integration: create temp dir: %v\n", err)
		os.Exit(1)
	}

	integrationCache = filepath.Join(tmpDir, "gocache")
	if err := os.MkdirAll(integrationCache, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "integration: create gocache: %v\n", err)
		os.Exit(1)
	}

	integrationBin = filepath.Join(tmpDir, "agencydesk")
	buildCmd := exec.Command("go", "build", "-o", integrationBin, "./cmd/agencydesk")
	buildCmd.Dir = repoRoot
	buildCmd.Env = append(os.Environ(), "GOCACHE="+integrationCache)
	if output, err := buildCmd.CombinedOutput(); err != nil {
		fmt.Fprintf(os.Stderr, "integration: build cli: %v\n%s\n", err, string(output))
		os.Exit(1)
	}

	code := m.Run()
	_ = os.RemoveAll(tmpDir)
	os.Exit(code)
}

type cliHarness struct {
	home   string
	dbPath string
	config string
}

type cliResult struct {
	output   string
	exitCode int
	err      error
}

func newHarness(t *testing.T) *cliHarness {
	t.Helper()

	home := t.TempDir()
	return &cliHarness{
		home:   home,
		dbPath: filepath.Join(home, "agencydesk.db"),
		config: filepath.Join(home, "config.toml"),
	}
}

func (h *cliHarness) env() []string {
	return []string{
		"AGENCYDESK_HOME=" + h.home,
		"AGENCYDESK_CONFIG_PATH=" + h.config,
		"AGENCYDESK_POLICY_FILE=" + filepath.Join(h.home, "policy.toml"),
		"AGENCYDESK_ARGON2_MEMORY_KIB=8192",
		"AGENCYDESK_ARGON2_ITERATIONS=1",
	}
}

func (h *cliHarness) run(stdin string, args ...string) cliResult {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, integrationBin, args...)
	cmd.Dir = h.home
	cmd.Env = append(os.Environ(), h.env()...)
	cmd.Stdin = strings.NewReader(stdin)
	output, err := cmd.CombinedOutput()

	res := cliResult{
		output: strings.TrimSpace(string(output)),
		err:    err,
	}
	if err == nil {
		res.exitCode = 0
		return res
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.exitCode = exitErr.ExitCode()
		return res
	}
	res.exitCode = -1
	if ctx.Err() != nil {
		res.output = strings.TrimSpace(string(output) + "\n" + ctx.Err().Error())
	}
	return res
}

func requireSuccess(t *testing.T, res cliResult, command ...string) string {
	t.Helper()
	require.NoError(t, res.err, "command failed: %s\noutput:\n%s", strings.Join(command, " "), res.output)
	require.Equal(t, 0, res.exitCode)
	return res.output
}

func requireExit(t *testing.T, res cliResult, code int, command ...string) string {
	t.Helper()
	require.Error(t, res.err, "command unexpectedly succeeded: %s\noutput:\n%s", strings.Join(command, " "), res.output)
	require.Equalf(t, code, res.exitCode, "command %s\noutput:\n%s", strings.Join(command, " "), res.output)
	return res.output
}

func (h *cliHarness) customerNames(t *testing.T) []string {
	t.Helper()
	out := requireSuccess(t, h.run("", "--json", "customer", "ls"), "customer ls")
	var customers []struct {
		FullName string `json:"full_name"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &customers))
	names := make([]string, 0, len(customers))
	for _, c := range customers {
		names = append(names, c.FullName)
	}
	return names
}

func TestIntegrationInitLoginAndPasswordChange(t *testing.T) {
	h := newHarness(t)

	requireSuccess(t, h.run("", "init"), "init")
	_, err := os.Stat(h.dbPath)
	require.NoError(t, err)

	requireSuccess(t, h.run("admin123\n", "login", "--username", "admin"), "login")
	requireExit(t, h.run("nope\n", "login", "--username", "admin"), 5, "login wrong password")
	requireSuccess(t, h.run("admin123\nbetter-secret\n", "passwd", "--username", "admin"), "passwd")
	requireExit(t, h.run("admin123\n", "login", "--username", "admin"), 5, "login old password")
	requireSuccess(t, h.run("better-secret\n", "login", "--username", "admin"), "login new password")
}

func TestIntegrationReferencedRecordsCannotBeDeleted(t *testing.T) {
	h := newHarness(t)

	requireSuccess(t, h.run("", "init"), "init")
	requireSuccess(t, h.run("", "employee", "add", "--full-name", "Arben Krasniqi"), "employee add")
	requireSuccess(t, h.run("", "customer", "add", "--full-name", "Elira Dema"), "customer add")
	requireSuccess(t, h.run("", "property", "add", "--code", "TR-1", "--type", "apartment", "--title", "Blloku 2+1", "--price", "125000", "--employee", "1"), "property add")
	requireSuccess(t, h.run("", "contract", "add", "--number", "C-1", "--type", "sale", "--property", "1", "--customer", "1", "--employee", "1", "--amount", "125000", "--start-date", "2024-03-01"), "contract add")

	requireExit(t, h.run("", "employee", "rm", "1"), 4, "employee rm")
	requireExit(t, h.run("", "customer", "rm", "1"), 4, "customer rm")
	requireExit(t, h.run("", "property", "rm", "1"), 4, "property rm")
	requireExit(t, h.run("", "customer", "show", "99"), 3, "customer show missing")

	requireSuccess(t, h.run("", "contract", "rm", "1"), "contract rm")
	requireSuccess(t, h.run("", "customer", "rm", "1"), "customer rm")
	require.Empty(t, h.customerNames(t))
}

func TestIntegrationBackupRestoreRoundTrip(t *testing.T) {
	h := newHarness(t)

	requireSuccess(t, h.run("", "init"), "init")
	requireSuccess(t, h.run("", "customer", "add", "--full-name", "Kept Customer"), "customer add")
	out := requireSuccess(t, h.run("", "--json", "backup", "create", "--label", "before"), "backup create")
	var created struct {
		Path string `json:"path"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	require.FileExists(t, created.Path)

	requireSuccess(t, h.run("", "customer", "add", "--full-name", "Lost Customer"), "customer add")
	require.ElementsMatch(t, []string{"Kept Customer", "Lost Customer"}, h.customerNames(t))

	requireExit(t, h.run("n\n", "backup", "restore", created.Path), 1, "backup restore declined")
	require.Len(t, h.customerNames(t), 2)

	requireSuccess(t, h.run("", "--yes", "backup", "restore", created.Path), "backup restore")
	require.Equal(t, []string{"Kept Customer"}, h.customerNames(t))

	entries, err := os.ReadDir(filepath.Join(h.home, "Backups"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestIntegrationDoctorAfterInit(t *testing.T) {
	h := newHarness(t)

	requireExit(t, h.run("", "doctor"), 1, "doctor before init")
	_, err := os.Stat(h.dbPath)
	require.ErrorIs(t, err, os.ErrNotExist)

	requireSuccess(t, h.run("", "init"), "init")
	out := requireSuccess(t, h.run("", "doctor"), "doctor")
	require.Contains(t, out, "database: ok")
}

func TestIntegrationConcurrentWriters(t *testing.T) {
	h := newHarness(t)

	requireSuccess(t, h.run("", "init"), "init")

	var wg sync.WaitGroup
	errCh := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := h.run("", "customer", "add", "--full-name", fmt.Sprintf("Parallel %d", i))
			if res.err != nil {
				errCh <- fmt.Errorf("exit=%d output=%s", res.exitCode, res.output)
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}
	require.Len(t, h.customerNames(t), 5)
}
