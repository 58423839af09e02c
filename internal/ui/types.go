package ui

import (
	"github.com/corpeningc/catsync/internal/conflict"
	"github.com/corpeningc/catsync/internal/engine"
)

// Snapshot is what the watch dashboard shows: local status plus any open
// conflict.
type Snapshot struct {
	Status   *engine.RepoStatus
	Conflict *conflict.Session
}

type snapshotMsg struct {
	snapshot Snapshot
	err      error
}

// FileEventMsg tells the dashboard a watched file changed on disk.
type FileEventMsg struct {
	Path string
}

type ClearStatusMsg struct{}
