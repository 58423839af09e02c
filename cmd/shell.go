package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/corpeningc/catsync/internal/git"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive catsync shell",
	Long:  "Launch an interactive shell for running catsync commands without repeating the 'catsync' prefix",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractiveShell(cmd.Context())
	},
}

func runInteractiveShell(ctx context.Context) error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)

	historyFile := historyPath()
	if f, err := os.Open(historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}

	line.SetCompleter(completions)

	fmt.Println("catsync interactive shell. Type 'exit' or press Ctrl+D to quit.")
	fmt.Println("Type 'help' to see available commands.")

	for ctx.Err() == nil {
		input, err := line.Prompt(shellPrompt(ctx))
		if err != nil {
			// EOF or Ctrl+C
			fmt.Println()
			break
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		switch strings.ToLower(input) {
		case "exit", "quit":
			saveHistory(line, historyFile)
			return nil
		case "clear", "cls":
			fmt.Print("\033[H\033[2J")
			continue
		}

		executeCommand(ctx, input)
	}

	saveHistory(line, historyFile)
	return nil
}

// shellPrompt shows the branch and flags an open conflict.
func shellPrompt(ctx context.Context) string {
	repo := git.New(repoDir)
	branch, err := repo.CurrentBranch(ctx)
	if err != nil {
		branch = "unknown"
	}
	if unmerged, err := repo.UnmergedPaths(ctx); err == nil && len(unmerged) > 0 {
		return fmt.Sprintf("[%s|CONFLICT]> ", branch)
	}
	if inMerge, err := repo.MergeInProgress(ctx); err == nil && inMerge {
		return fmt.Sprintf("[%s|MERGING]> ", branch)
	}
	return fmt.Sprintf("[%s]> ", branch)
}

func saveHistory(line *liner.State, historyFile string) {
	_ = os.MkdirAll(filepath.Dir(historyFile), 0o755)
	if f, err := os.Create(historyFile); err == nil {
		_, _ = line.WriteHistory(f)
		f.Close()
	}
}

func executeCommand(ctx context.Context, input string) {
	parts, err := splitArgs(input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	if len(parts) == 0 {
		return
	}
	if parts[0] == "shell" {
		fmt.Println("Already in the shell.")
		return
	}

	rootCmd.SetArgs(parts)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}

	// subcommand flags keep their values between executions otherwise;
	// root flags given to "catsync shell" stay in effect
	rootCmd.SetArgs([]string{})
	for _, sub := range rootCmd.Commands() {
		resetFlags(sub)
	}
}

func resetFlags(cmd *cobra.Command) {
	cmd.LocalNonPersistentFlags().VisitAll(func(f *pflag.Flag) {
		if !f.Changed {
			return
		}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	})
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// splitArgs splits a shell line on whitespace. Single and double quotes
// group words and a backslash escapes the next character outside single
// quotes.
func splitArgs(input string) ([]string, error) {
	var (
		args    []string
		word    strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)
	for _, r := range input {
		switch {
		case escaped:
			word.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped, inWord = true, true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				word.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote, inWord = r, true
		case unicode.IsSpace(r):
			if inWord {
				args = append(args, word.String())
				word.Reset()
				inWord = false
			}
		default:
			word.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if escaped {
		return nil, fmt.Errorf("trailing backslash")
	}
	if inWord {
		args = append(args, word.String())
	}
	return args, nil
}

// completions offers command paths such as "remote set-url" for the text
// typed so far.
func completions(line string) []string {
	var out []string
	var walk func(prefix string, cmd *cobra.Command)
	walk = func(prefix string, cmd *cobra.Command) {
		for _, sub := range cmd.Commands() {
			if sub.Hidden || sub.Name() == "shell" {
				continue
			}
			path := prefix + sub.Name()
			if strings.HasPrefix(path, strings.ToLower(line)) {
				out = append(out, path)
			}
			walk(path+" ", sub)
		}
	}
	walk("", rootCmd)
	return out
}

func historyPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "catsync", "history")
	}
	return ".catsync_history"
}
