// Package cli implements the taskqueue command line.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/p-blackswan/taskqueue/internal/config"
	perrors "github.com/p-blackswan/taskqueue/internal/errors"
)

// app carries the state shared by every subcommand.
type app struct {
	file    string
	output  string
	verbose bool

	cfg    *config.Config
	logger zerolog.Logger
}

// NewRootCmd builds the command tree.
func NewRootCmd(version string, logger zerolog.Logger) *cobra.Command {
	a := &app{logger: logger}

	rootCmd := &cobra.Command{
		Use:   "taskqueue",
		Short: "taskqueue - project and task lifecycle manager",
		Long: `taskqueue keeps projects and their ordered tasks in a JSON file shared by
every client, and walks each task through not started, in progress and done
with explicit approval gates.`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&a.file, "file", "f", "", "Data file (overrides TASK_MANAGER_FILE_PATH)")
	rootCmd.PersistentFlags().StringVarP(&a.output, "output", "o", "json", "Output format: json or yaml")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(a.serveCmd())
	rootCmd.AddCommand(a.projectCmd())
	rootCmd.AddCommand(a.taskCmd())
	rootCmd.AddCommand(a.planCmd())

	return rootCmd
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if a.output != "json" && a.output != "yaml" {
		return perrors.New(perrors.KindInvalidArgument, "invalid output format %q: must be json or yaml", a.output)
	}

	cfg, err := config.Load()
	if err != nil {
		return perrors.Wrap(perrors.KindConfigurationError, err, "failed to load config")
	}
	if a.file != "" {
		cfg.FilePath = a.file
	}
	a.cfg = cfg

	switch {
	case a.verbose:
		a.logger = a.logger.Level(zerolog.DebugLevel)
	case cmd.Name() != "serve":
		a.logger = a.logger.Level(zerolog.WarnLevel)
	}
	return nil
}

// Execute runs the root command and prints failures as "Error: <Kind>: <message>".
func Execute(version string, logger zerolog.Logger) error {
	return execute(NewRootCmd(version, logger), os.Args[1:], os.Stderr)
}

func execute(cmd *cobra.Command, args []string, stderr io.Writer) error {
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(stderr, "Error:", formatError(err))
		return err
	}
	return nil
}

func formatError(err error) string {
	if kind := perrors.KindOf(err); kind != "" {
		return fmt.Sprintf("%s: %s", kind, err.Error())
	}
	return err.Error()
}
