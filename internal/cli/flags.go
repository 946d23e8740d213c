package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

func parseDecimalFlag(name, raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, usageErrorf("--%s must be a decimal number: %q", name, raw)
	}
	return value, nil
}

func parseDateFlag(name, raw string) (time.Time, error) {
	value, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, usageErrorf("--%s must be a date in YYYY-MM-DD form: %q", name, raw)
	}
	return value, nil
}

// optionalDate parses raw unless it is empty.
func optionalDate(name, raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	value, err := parseDateFlag(name, raw)
	if err != nil {
		return nil, err
	}
	return &value, nil
}

// changedInt returns a pointer to v when the flag was given, so unset
// numeric columns stay NULL.
func changedInt(cmd *cobra.Command, name string, v int) *int {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	value := v
	return &value
}

// changedID is changedInt for foreign keys; 0 clears the reference.
func changedID(cmd *cobra.Command, name string, v int64) *int64 {
	if !cmd.Flags().Changed(name) || v == 0 {
		return nil
	}
	value := v
	return &value
}

func parseIDArg(args []string, what string) (int64, error) {
	if len(args) != 1 {
		return 0, usageErrorf("expected exactly one %s id", what)
	}
	id, err := parsePositiveID(args[0])
	if err != nil {
		return 0, usageErrorf("invalid %s id %q", what, args[0])
	}
	return id, nil
}

func parsePositiveID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, fmt.Errorf("id must be positive")
	}
	return id, nil
}

func noArgs(name string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != 0 {
			return usageErrorf("%s does not accept positional arguments", name)
		}
		return nil
	}
}
