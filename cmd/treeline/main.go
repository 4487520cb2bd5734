package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mosaic-build/treeline/internal/config"
	"github.com/mosaic-build/treeline/internal/ui"
)

var version = "dev"

// rootFlags holds flags shared by the snapshot and pack commands.
type rootFlags struct {
	execRoot      string
	files         []string
	dirs          []string
	allowSymlinks bool
	inlineLimit   string
	stdoutFile    string
	stderrFile    string
	policyName    string
	jsonOut       bool
	verbose       bool
	quiet         bool
	logFile       string
}

var flags rootFlags

func main() {
	os.Exit(run())
}

func run() int {
	var showVersion bool

	rootCmd := &cobra.Command{
		Use:   "treeline",
		Short: "Content-addressed snapshots of build outputs for remote cache upload",
		Long: `treeline digests build-action outputs into content-addressed form:
files are digested in place, directories become deterministic tree
snapshots, and the blobs still needing upload are reported (snapshot)
or staged into a local CAS directory (pack).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				fmt.Fprintf(os.Stdout, "treeline %s\n", version)
				return nil
			}
			return cmd.Help()
		},
	}

	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.execRoot, "root", ".", "execution root; output paths are reported relative to it")
	pf.StringArrayVar(&flags.files, "file", nil, "declared output file (repeatable)")
	pf.StringArrayVar(&flags.dirs, "dir", nil, "declared output directory (repeatable)")
	pf.BoolVar(&flags.allowSymlinks, "allow-symlinks", false, "accept symbolic link outputs")
	pf.StringVar(&flags.inlineLimit, "inline-limit", "0", "inline content byte budget (e.g. 64K)")
	pf.StringVar(&flags.stdoutFile, "stdout", "", "file holding the action's stdout")
	pf.StringVar(&flags.stderrFile, "stderr", "", "file holding the action's stderr")
	pf.StringVar(&flags.policyName, "insert-policy", "above-limit", "CAS insertion policy for stdout/stderr (always, above-limit, never)")
	pf.BoolVar(&flags.jsonOut, "json", false, "machine-readable JSON output")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "verbose logging")
	pf.BoolVarP(&flags.quiet, "quiet", "q", false, "errors only")
	pf.StringVar(&flags.logFile, "log", "", "write a JSON log to this file")

	rootCmd.AddCommand(snapshotCmd())
	rootCmd.AddCommand(packCmd())
	rootCmd.AddCommand(docsCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("treeline failed", "error", err)
		fmt.Fprintf(os.Stderr, "treeline: %v\n", err)
		return 1
	}
	return 0
}

// setupLogging configures the default slog logger: a text handler on
// stderr, optionally fanned out to a JSON log file. Returns a cleanup
// func closing the log file.
func setupLogging() (func(), error) {
	logLevel := slog.LevelWarn
	if flags.verbose {
		logLevel = slog.LevelDebug
	} else if !flags.quiet {
		logLevel = slog.LevelInfo
	}
	textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})

	cleanup := func() {}
	var logHandler slog.Handler = textHandler
	if flags.logFile != "" {
		lf, err := os.Create(flags.logFile)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
		logHandler = ui.NewMultiHandler(textHandler, jsonHandler)
		cleanup = func() { lf.Close() }
	}
	slog.SetDefault(slog.New(logHandler))
	return cleanup, nil
}

// applyConfigDefaults fills flags the user did not set on the CLI
// from the optional config file.
func applyConfigDefaults(cmd *cobra.Command, defaults config.DefaultsConfig) {
	if !cmd.Flags().Changed("allow-symlinks") && defaults.AllowSymlinks != nil {
		flags.allowSymlinks = *defaults.AllowSymlinks
	}
	if !cmd.Flags().Changed("inline-limit") && defaults.InlineLimit != nil {
		flags.inlineLimit = *defaults.InlineLimit
	}
}
