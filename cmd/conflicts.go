package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/corpeningc/catsync/internal/changes"
	"github.com/corpeningc/catsync/internal/conflict"
	"github.com/corpeningc/catsync/internal/engine"
	"github.com/corpeningc/catsync/internal/ui"
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Show the open conflict record by record",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := app.GetConflictDetails(cmd.Context())
		if err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), s, func() string { return ui.RenderConflicts(s, time.Now()) })
	},
}

var resolveFields []string

var resolveCmd = &cobra.Command{
	Use:   "resolve [local|remote|smart|custom]",
	Short: "Resolve the open conflict",
	Long: "Resolves every conflicted file at once. custom takes --field " +
		"file:id:field=local|remote selections; unselected fields keep the local value. " +
		"Without arguments on a terminal you are asked.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var method conflict.Method
		switch {
		case len(args) == 1:
			m, err := conflict.ParseMethod(args[0])
			if err != nil {
				return err
			}
			method = m
		case len(resolveFields) > 0:
			method = conflict.MethodCustom
		case interactive():
			s, err := app.GetConflictDetails(ctx)
			if err != nil {
				return err
			}
			if s == nil {
				fmt.Fprintln(cmd.OutOrStdout(), ui.RenderConflicts(nil, time.Now()))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.RenderConflicts(s, time.Now()))
			if method, err = ui.ChooseMethod(s); err != nil {
				return err
			}
		default:
			return fmt.Errorf("resolve needs a method: local, remote, smart or custom")
		}

		var (
			res *engine.ResolveResult
			err error
		)
		if method == conflict.MethodCustom {
			selections, err := fieldSelections(cmd)
			if err != nil {
				return err
			}
			res, err = app.ResolveConflictWithFieldSelections(ctx, selections)
			if err != nil {
				return err
			}
		} else if res, err = app.ResolveConflict(ctx, method); err != nil {
			return err
		}

		return emit(cmd.OutOrStdout(), res, func() string {
			out := ui.Success(fmt.Sprintf("Resolved %d files with %s.", len(res.ResolvedFiles), res.Method))
			if res.FollowUp != nil {
				out += "\nRe-applying your stashed changes conflicted:\n" + ui.RenderConflicts(res.FollowUp, time.Now())
			}
			return out
		})
	},
}

// fieldSelections takes --field flags, or asks on a terminal.
func fieldSelections(cmd *cobra.Command) ([]conflict.FieldSelection, error) {
	if len(resolveFields) == 0 && interactive() {
		s, err := app.GetConflictDetails(cmd.Context())
		if err != nil || s == nil {
			return nil, err
		}
		return ui.ChooseFields(s)
	}
	selections := make([]conflict.FieldSelection, 0, len(resolveFields))
	for _, raw := range resolveFields {
		sel, err := parseFieldSelection(raw)
		if err != nil {
			return nil, err
		}
		selections = append(selections, sel)
	}
	return selections, nil
}

// parseFieldSelection parses file:id:field=local|remote.
func parseFieldSelection(raw string) (conflict.FieldSelection, error) {
	target, side, ok := strings.Cut(raw, "=")
	if !ok {
		return conflict.FieldSelection{}, fmt.Errorf("field selection %q: want file:id:field=local|remote", raw)
	}
	parts := strings.Split(target, ":")
	if len(parts) < 3 {
		return conflict.FieldSelection{}, fmt.Errorf("field selection %q: want file:id:field=local|remote", raw)
	}
	// the file may itself contain a colon
	field := parts[len(parts)-1]
	id, err := strconv.Atoi(parts[len(parts)-2])
	if err != nil {
		return conflict.FieldSelection{}, fmt.Errorf("field selection %q: bad record id: %w", raw, err)
	}
	file := strings.Join(parts[:len(parts)-2], ":")

	sel := conflict.FieldSelection{File: file, RecordID: id, Field: field}
	switch side {
	case "local", "ours":
		sel.UseLocal = true
	case "remote", "theirs":
	default:
		return conflict.FieldSelection{}, fmt.Errorf("field selection %q: side must be local or remote", raw)
	}
	return sel, nil
}

var abortCmd = &cobra.Command{
	Use:   "abort",
	Short: "Abandon the open conflict",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.AbortConflict(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success("Conflict aborted."))
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <file>...",
	Short: "Discard local edits to files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, path := range args {
			if err := app.RestoreFile(cmd.Context(), path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.Success("Restored "+path))
		}
		return nil
	},
}

var undoCmd = &cobra.Command{
	Use:   "undo <file> <record-id> <added|removed|modified>",
	Short: "Revert one record change, keeping the rest of the file",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("bad record id %q: %w", args[1], err)
		}
		kind := changes.Kind(args[2])
		switch kind {
		case changes.Added, changes.Removed, changes.Modified:
		default:
			return fmt.Errorf("unknown change kind %q", args[2])
		}

		if err := app.UndoChange(cmd.Context(), changes.Ref{File: args[0], RecordID: id, Kind: kind}); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success(fmt.Sprintf("Undid %s record %d in %s", kind, id, args[0])))
		return nil
	},
}

func init() {
	resolveCmd.Flags().StringArrayVar(&resolveFields, "field", nil, "field selection file:id:field=local|remote (repeatable)")
}
