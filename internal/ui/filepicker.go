package ui

import (
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/corpeningc/catsync/internal/engine"
)

// SelectFiles asks which changed files to publish. All files start selected.
func SelectFiles(files []string) ([]string, error) {
	selectedFiles := append([]string(nil), files...)
	var options []huh.Option[string]

	for _, file := range files {
		options = append(options, huh.NewOption(file, file).Selected(true))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Select files to publish:").
				Options(options...).
				Value(&selectedFiles),
		),
	)

	err := form.Run()
	if err != nil {
		return nil, err
	}

	return selectedFiles, nil
}

// ChooseStrategy asks how a pull should treat local changes.
func ChooseStrategy(changedFiles []string) (engine.Strategy, error) {
	strategy := engine.StrategyStash

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[engine.Strategy]().
				Title(fmt.Sprintf("You have local changes in %s. How should the pull handle them?", plural(len(changedFiles), "file"))).
				Options(
					huh.NewOption("Keep them: stash, pull, re-apply", engine.StrategyStash),
					huh.NewOption("Commit them first, then pull", engine.StrategyCommit),
					huh.NewOption("Discard them and match the remote", engine.StrategyForce),
				).
				Value(&strategy),
		),
	)

	if err := form.Run(); err != nil {
		return "", err
	}
	if strategy != engine.StrategyForce {
		return strategy, nil
	}

	confirmed := false
	confirm := huh.NewConfirm().
		Title("Discard all local changes? This cannot be undone.").
		Affirmative("Discard").
		Negative("Cancel").
		Value(&confirmed)
	if err := confirm.Run(); err != nil {
		return "", err
	}
	if !confirmed {
		return "", huh.ErrUserAborted
	}
	return strategy, nil
}
