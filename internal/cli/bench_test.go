package cli

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

// BenchmarkCustomerListJSON measures one full command: config load, store
// open, query and JSON rendering against a small populated database.
func BenchmarkCustomerListJSON(b *testing.B) {
	home := b.TempDir()
	env := map[string]string{
		"AGENCYDESK_HOME":              home,
		"AGENCYDESK_CONFIG_PATH":       filepath.Join(home, "config.toml"),
		"AGENCYDESK_ARGON2_MEMORY_KIB": "8192",
		"AGENCYDESK_ARGON2_ITERATIONS": "1",
		"AGENCYDESK_LOG_LEVEL":         "error",
	}
	benchRun(b, env, "--quiet", "init")
	for i := 0; i < 25; i++ {
		benchRun(b, env, "--quiet", "customer", "add", "--full-name", fmt.Sprintf("Customer %02d", i))
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		out := benchRun(b, env, "--json", "customer", "ls")
		if !strings.Contains(out, "Customer 24") {
			b.Fatalf("customer ls output is missing rows: %s", out)
		}
	}
}

func benchRun(b *testing.B, env map[string]string, args ...string) string {
	b.Helper()
	var out bytes.Buffer
	cmd := newRootCommand(&out, BuildInfo{Version: "bench"}, env)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		b.Fatalf("agencydesk %s: %v", strings.Join(args, " "), err)
	}
	return out.String()
}
