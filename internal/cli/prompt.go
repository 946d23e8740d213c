package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/agencydesk/agencydesk/internal/app"
)

// readSecretLines reads exactly n non-empty lines from r. Passwords are taken
// from stdin so they never appear in the process list or shell history.
func readSecretLines(r io.Reader, n int, what string) ([]string, error) {
	reader := bufio.NewReader(r)
	lines := make([]string, 0, n)
	for len(lines) < n {
		line, err := reader.ReadString('\n')
		value := strings.TrimRight(line, "\r\n")
		if value != "" {
			lines = append(lines, value)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read %s from stdin: %w", what, err)
		}
	}
	if len(lines) < n {
		return nil, usageErrorf("expected %d line(s) on stdin: %s", n, what)
	}
	return lines, nil
}

// stdinConfirmer asks on out and accepts "y" or "yes" read from in. out is
// stderr so the question never mixes with --json output on stdout.
type stdinConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

func newConfirmer(deps commandDeps, in io.Reader, errOut io.Writer) app.Confirmer {
	if deps.globals != nil && deps.globals.Yes {
		return app.AlwaysConfirm
	}
	return &stdinConfirmer{in: bufio.NewReader(in), out: errOut}
}

func (c *stdinConfirmer) Confirm(_ context.Context, prompt string) (bool, error) {
	if _, err := fmt.Fprintf(c.out, "%s [y/N]: ", prompt); err != nil {
		return false, err
	}
	line, err := c.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read confirmation: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
