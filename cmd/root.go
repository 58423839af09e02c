package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/corpeningc/catsync/internal/config"
	"github.com/corpeningc/catsync/internal/engine"
	"github.com/corpeningc/catsync/internal/logging"
)

var (
	repoDir      string
	configFile   string
	logLevel     string
	outputFormat string

	// app is the engine bound for the running command.
	app    *engine.Engine
	logger = logging.Discard()
)

var rootCmd = &cobra.Command{
	Use:   "catsync",
	Short: "Keep a git-backed product catalog in sync",
	Long: "Publishes and pulls catalog edits through a shared git remote and " +
		"resolves conflicting edits record by record.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "shell" || cmd.Name() == "help" {
			return nil
		}
		return bind(cmd)
	},
}

// Execute runs the command tree until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&repoDir, "repo", "C", ".", "catalog working copy")
	flags.StringVar(&configFile, "config", "", "config file (default .catsync.yaml in the repo, then the user config dir)")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVarP(&outputFormat, "output", "o", "text", "output format: text, json, yaml")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(changesCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(continueCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(conflictsCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(abortCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(undoCmd)
	rootCmd.AddCommand(remoteCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(shellCmd)
}

// bind loads configuration and opens the engine for the selected repo.
func bind(cmd *cobra.Command) error {
	switch outputFormat {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", outputFormat)
	}

	dir, err := filepath.Abs(repoDir)
	if err != nil {
		return err
	}

	v := config.New()
	if err := v.BindPFlag("log.level", cmd.Root().PersistentFlags().Lookup("log-level")); err != nil {
		return err
	}
	cfg, err := config.Load(v, dir, configFile)
	if err != nil {
		return err
	}

	logger = logging.New(cfg.Log, os.Stderr)
	eng, err := engine.Open(cmd.Context(), dir, cfg, logger)
	if err != nil {
		return err
	}
	app = eng
	return nil
}

// interactive reports whether prompts can be shown.
func interactive() bool {
	return outputFormat == "text" &&
		term.IsTerminal(int(os.Stdin.Fd())) &&
		term.IsTerminal(int(os.Stdout.Fd()))
}

// emit writes v in the selected machine format, or text for humans.
func emit(w io.Writer, v any, text func() string) error {
	switch outputFormat {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	_, err := fmt.Fprintln(w, text())
	return err
}
