// Package cli implements the wavs command tree.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/0x6d61/wavs/internal/config"
	"github.com/0x6d61/wavs/internal/logger"
)

// Version information (set by build flags)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// app carries state shared by every subcommand of one invocation.
type app struct {
	configPath string
	logLevel   string
	logFile    string
	logJSON    bool

	cfg *config.Config
}

// Execute runs the command tree against os.Args.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "wavs",
		Short: "Web application vulnerability scanner",
		Long: `wavs - Web Application Vulnerability Scanner

Discovers the directories, files, pages and forms of a web application and
probes them for SQL injection, XSS, file inclusion, command injection, CSRF
and information disclosure. Results are kept per scan in a local database.

WARNING: Use this tool only against systems you have explicit permission to test.
Unauthorized access to computer systems is illegal.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default: wavs.yaml in ., ./config or ~/.config/wavs)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.logFile, "log-file", "", "Also append logs to this file")
	root.PersistentFlags().BoolVar(&a.logJSON, "log-json", false, "Write the log file as JSON")

	root.AddCommand(
		newVersionCmd(),
		newScanCmd(a),
		newReportCmd(a),
		newScansCmd(a),
		newDatabaseCmd(a),
	)
	return root
}

// setup loads configuration and configures logging. Flags override the
// config file.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "version" {
		return nil
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFile != "" {
		cfg.Log.File = a.logFile
	}
	if a.logJSON {
		cfg.Log.JSONFormat = true
	}
	if err := logger.SetupWriter(cfg.Log, cmd.ErrOrStderr()); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "wavs %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
