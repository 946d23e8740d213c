package cli

import (
	"io"

	"github.com/spf13/cobra"
)

type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

type GlobalOptions struct {
	ConfigPath string
	DBPath     string
	JSON       bool
	Quiet      bool
	Yes        bool
}

type commandDeps struct {
	globals *GlobalOptions
	out     io.Writer
	build   BuildInfo
	// env takes precedence over the process environment when loading config.
	env map[string]string
}

func NewRootCommand(out io.Writer, build BuildInfo) *cobra.Command {
	return newRootCommand(out, build, nil)
}

func newRootCommand(out io.Writer, build BuildInfo, env map[string]string) *cobra.Command {
	globals := &GlobalOptions{}
	deps := commandDeps{
		globals: globals,
		out:     out,
		build:   build,
		env:     env,
	}

	cmd := &cobra.Command{
		Use:           "agencydesk",
		Short:         "Real-estate agency records: properties, contracts, payments and backups",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	// Prompts go to cobra's stderr, which stays os.Stderr so --json output
	// on out is never interleaved with them.
	cmd.SetOut(out)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: ExitCodeUsage, Err: err}
	})

	flags := cmd.PersistentFlags()
	flags.StringVar(&globals.ConfigPath, "config", "", "Config file path")
	flags.StringVar(&globals.DBPath, "db", "", "Database file path")
	flags.BoolVar(&globals.JSON, "json", false, "Print machine-readable JSON")
	flags.BoolVar(&globals.Quiet, "quiet", false, "Suppress non-essential output")
	flags.BoolVar(&globals.Yes, "yes", false, "Answer yes to confirmation prompts")

	cmd.AddCommand(
		newInitCommand(deps),
		newLoginCommand(deps),
		newPasswdCommand(deps),
		newUserCommand(deps),
		newEmployeeCommand(deps),
		newCustomerCommand(deps),
		newPropertyCommand(deps),
		newContractCommand(deps),
		newPaymentCommand(deps),
		newExpenseCommand(deps),
		newCompanyCommand(deps),
		newBackupCommand(deps),
		newReportCommand(deps),
		newDoctorCommand(deps),
		newBrowseCommand(deps),
		newVersionCommand(deps),
	)
	cmd.InitDefaultCompletionCmd()
	return cmd
}
