package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/corpeningc/catsync/internal/changes"
	"github.com/corpeningc/catsync/internal/engine"
	"github.com/corpeningc/catsync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local catalog changes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := app.GetStatus(cmd.Context())
		if err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), st, func() string { return ui.RenderStatus(st) })
	},
}

var changesRemote bool

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "Page through record-level changes",
	Long:  "Shows every added, removed and modified record, locally or on the remote with --remote.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		title := "Local changes"
		var sets []*changes.ChangeSet
		if changesRemote {
			rc, err := app.CheckRemoteChanges(cmd.Context())
			if err != nil {
				return err
			}
			title = fmt.Sprintf("Remote changes (%d behind)", rc.BehindBy)
			for _, f := range rc.Files {
				if !f.Changes.Empty() {
					sets = append(sets, f.Changes)
				}
			}
		} else {
			st, err := app.GetStatus(cmd.Context())
			if err != nil {
				return err
			}
			sets = st.Changes
		}

		if interactive() && len(sets) > 0 {
			return ui.ShowChanges(title, sets)
		}
		return emit(cmd.OutOrStdout(), sets, func() string { return ui.RenderChangeSets(sets) })
	},
}

var (
	publishMessage     string
	publishInteractive bool
)

var publishCmd = &cobra.Command{
	Use:   "publish [files...]",
	Short: "Commit catalog changes and push them to the remote",
	Long: "Stages the given files (default: every changed catalog file), commits, " +
		"integrates the remote branch and pushes. A conflict stops the publish; " +
		"resolve it and run 'catsync continue'.",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := engine.PublishOptions{Message: publishMessage, Paths: args}

		if publishInteractive && interactive() {
			st, err := app.GetStatus(cmd.Context())
			if err != nil {
				return err
			}
			if st.Clean {
				fmt.Fprintln(cmd.OutOrStdout(), ui.RenderStatus(st))
				return nil
			}
			if len(opts.Paths) == 0 {
				selected, err := ui.SelectFiles(st.ChangedFiles())
				if err != nil {
					return err
				}
				if len(selected) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No files selected.")
					return nil
				}
				opts.Paths = selected
			}
			if opts.Message == "" {
				msg, ok, err := ui.PromptMessage(fmt.Sprintf("Update catalog (%d changes)", st.RecordChangeCount()))
				if err != nil || !ok {
					return err
				}
				opts.Message = msg
			}
		}

		res, err := app.Publish(cmd.Context(), opts)
		if err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), res, func() string { return renderPublish(res) })
	},
}

var continueCmd = &cobra.Command{
	Use:   "continue [files...]",
	Short: "Finish a publish after its conflict was resolved",
	Long:  "Commits any remaining changes to the given files (default: every changed catalog file) and pushes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := app.ContinuePublish(cmd.Context(), engine.PublishOptions{Message: publishMessage, Paths: args})
		if err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), res, func() string { return renderPublish(res) })
	},
}

func renderPublish(res *engine.PublishResult) string {
	if res.Conflict != nil && res.Pushed {
		return ui.Success("Published: "+res.Message) + "\n" +
			ui.RenderConflicts(res.Conflict, time.Now()) +
			"\nYour other edits clash with the remote; resolve with 'catsync resolve'."
	}
	if res.Conflict != nil {
		return ui.RenderConflicts(res.Conflict, time.Now()) +
			"\nResolve with 'catsync resolve', then run 'catsync continue'."
	}
	switch {
	case res.Pushed && res.Committed:
		return ui.Success(fmt.Sprintf("Published: %s", res.Message))
	case res.Pushed:
		return ui.Success("Remote is up to date.")
	}
	return ui.RenderStatus(res.Status)
}

var (
	pullStrategy string
	pullRetry    bool
)

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Bring remote catalog changes into the working copy",
	Long: "Pulls the remote branch. With local changes the strategy decides: " +
		"auto asks, stash keeps them, commit commits them first, force discards them.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if pullRetry {
			st, err := app.PullWithRetry(cmd.Context())
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), st, func() string { return ui.RenderStatus(st) })
		}

		strategy, err := engine.ParseStrategy(pullStrategy)
		if err != nil {
			return err
		}
		res, err := app.PullWithStrategy(cmd.Context(), strategy)
		if err != nil {
			return err
		}

		if res.NeedsDecision != nil && interactive() {
			chosen, err := ui.ChooseStrategy(res.NeedsDecision.ChangedFiles)
			if errors.Is(err, huh.ErrUserAborted) {
				fmt.Fprintln(cmd.OutOrStdout(), "Pull cancelled.")
				return nil
			}
			if err != nil {
				return err
			}
			if res, err = app.PullWithStrategy(cmd.Context(), chosen); err != nil {
				return err
			}
		}
		return emit(cmd.OutOrStdout(), res, func() string { return renderPull(res) })
	},
}

func renderPull(res *engine.PullResult) string {
	switch {
	case res.Conflict != nil:
		return ui.RenderConflicts(res.Conflict, time.Now()) + "\nResolve with 'catsync resolve' or give up with 'catsync abort'."
	case res.NeedsDecision != nil:
		return ui.Failure(fmt.Sprintf("Local changes in %d files; pull again with --strategy stash, commit or force.",
			len(res.NeedsDecision.ChangedFiles)))
	}
	return ui.Success("Pulled.") + "\n" + ui.RenderStatus(res.Status)
}

var checkConflicts bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Look for remote changes without integrating them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if checkConflicts {
			preview, err := app.CheckPotentialConflicts(cmd.Context())
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), preview, func() string {
				if len(preview) == 0 {
					return ui.Success("No conflicts expected.")
				}
				out := ""
				for _, fc := range preview {
					out += fmt.Sprintf("%s: %d conflicting records\n", fc.Path, len(fc.Records))
				}
				return out
			})
		}

		rc, err := app.CheckRemoteChanges(cmd.Context())
		if err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), rc, func() string { return ui.RenderRemote(rc) })
	},
}

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Discard all local commits and changes and match the remote",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetYes {
			if !interactive() {
				return fmt.Errorf("reset discards local work; pass --yes to confirm")
			}
			confirmed := false
			err := huh.NewConfirm().
				Title("Discard every local commit and change?").
				Affirmative("Reset").
				Negative("Cancel").
				Value(&confirmed).
				Run()
			if err != nil {
				return err
			}
			if !confirmed {
				return nil
			}
		}
		if err := app.ResetToRemote(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success("Working copy matches the remote."))
		return nil
	},
}

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Inspect or change the sync remote",
}

var remoteValidateCmd = &cobra.Command{
	Use:   "validate <url>",
	Short: "Check that the sync remote points at url",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := app.ValidateRemoteMatches(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := emit(cmd.OutOrStdout(), m, func() string {
			if m.Matches {
				return ui.Success("Remote matches.")
			}
			if m.CurrentURL == "" {
				return ui.Failure("No remote configured.")
			}
			return ui.Failure("Remote points at " + m.CurrentURL)
		}); err != nil {
			return err
		}
		if !m.Matches {
			return fmt.Errorf("remote does not match %s", args[0])
		}
		return nil
	},
}

var remoteSetURLCmd = &cobra.Command{
	Use:   "set-url <url>",
	Short: "Point the sync remote at url",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.SetRemoteURL(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success("Remote set to "+args[0]))
		return nil
	},
}

func init() {
	changesCmd.Flags().BoolVar(&changesRemote, "remote", false, "show changes on the remote branch")

	publishCmd.Flags().StringVarP(&publishMessage, "message", "m", "", "commit message (default generated from the changes)")
	publishCmd.Flags().BoolVarP(&publishInteractive, "interactive", "i", false, "pick files and message interactively")
	continueCmd.Flags().StringVarP(&publishMessage, "message", "m", "", "commit message for remaining changes")

	pullCmd.Flags().StringVarP(&pullStrategy, "strategy", "s", string(engine.StrategyAuto), "auto, stash, commit or force")
	pullCmd.Flags().BoolVar(&pullRetry, "retry", false, "plain pull, retrying network failures")

	checkCmd.Flags().BoolVar(&checkConflicts, "conflicts", false, "preview the conflicts a publish would hit")

	resetCmd.Flags().BoolVar(&resetYes, "yes", false, "do not ask for confirmation")

	remoteCmd.AddCommand(remoteValidateCmd)
	remoteCmd.AddCommand(remoteSetURLCmd)
}
