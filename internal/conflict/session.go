package conflict

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/corpeningc/catsync/internal/errors"
	"github.com/corpeningc/catsync/internal/git"
)

// Operation is the interrupted operation a session belongs to.
type Operation string

const (
	// OperationMerge is an integration stopped on conflicting paths.
	OperationMerge Operation = "merge"
	// OperationStash is a stash pop stopped on conflicting paths.
	OperationStash Operation = "stash"
)

// sessionNamespace scopes session ids.
var sessionNamespace = uuid.MustParse("6f1c3a52-8f0e-4d7c-9a51-2b7de0c4e9a1")

// Session is an open conflict. It is derived from the repository each time
// it is queried and is never stored.
type Session struct {
	ID                  string                   `json:"id" yaml:"id"`
	Operation           Operation                `json:"operation" yaml:"operation"`
	ConflictedFilePaths []string                 `json:"conflictedFilePaths" yaml:"conflictedFilePaths"`
	Files               map[string]*FileConflict `json:"files" yaml:"files"`
	CreatedAt           time.Time                `json:"createdAt" yaml:"createdAt"`
}

// NewSession assembles a session. head identifies the interrupted operation
// (MERGE_HEAD or the stash commit) so the same repository state always
// yields the same id.
func NewSession(op Operation, head string, files []FileConflict, createdAt time.Time) *Session {
	s := &Session{
		Operation: op,
		Files:     make(map[string]*FileConflict, len(files)),
		CreatedAt: createdAt,
	}
	for i := range files {
		fc := files[i]
		s.Files[fc.Path] = &fc
		s.ConflictedFilePaths = append(s.ConflictedFilePaths, fc.Path)
	}
	sort.Strings(s.ConflictedFilePaths)

	key := string(op) + "\x00" + head + "\x00" + strings.Join(s.ConflictedFilePaths, "\x00")
	s.ID = uuid.NewSHA1(sessionNamespace, []byte(key)).String()
	return s
}

// RecordConflictCount returns the number of contended records.
func (s *Session) RecordConflictCount() int {
	n := 0
	for _, fc := range s.Files {
		n += len(fc.Records)
	}
	return n
}

// StageReader reads index stages of unmerged paths.
type StageReader interface {
	ShowStage(ctx context.Context, stage int, path string) ([]byte, error)
}

// LoadSides reads the three versions of an unmerged path. During a stash pop
// the stashed edits are the local side, which git records as "theirs".
func LoadSides(ctx context.Context, r StageReader, op Operation, path string) (Sides, error) {
	localStage, remoteStage := git.StageOurs, git.StageTheirs
	if op == OperationStash {
		localStage, remoteStage = git.StageTheirs, git.StageOurs
	}

	var sides Sides
	var err error
	if sides.Base, err = readStage(ctx, r, git.StageBase, path); err != nil {
		return Sides{}, err
	}
	if sides.Local, err = readStage(ctx, r, localStage, path); err != nil {
		return Sides{}, err
	}
	if sides.Remote, err = readStage(ctx, r, remoteStage, path); err != nil {
		return Sides{}, err
	}
	return sides, nil
}

func readStage(ctx context.Context, r StageReader, stage int, path string) (Version, error) {
	data, err := r.ShowStage(ctx, stage, path)
	if err != nil {
		if errors.Is(err, errors.ErrPathNotFound) {
			return Version{}, nil
		}
		return Version{}, err
	}
	return Version{Data: data, Present: true}, nil
}
