// Package gitrepo wraps the target git repository behind a narrow
// interface the reconciliation engine can drive, including a dry-run
// variant that only reports intended mutations.
package gitrepo

import (
	"fmt"
	"time"
)

// Signature identifies the author or committer of a commit or tag.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

func (s Signature) String() string {
	return fmt.Sprintf("%s <%s>", s.Name, s.Email)
}

// Repo is the set of target-repository operations the reconciliation
// engine needs. All mutating operations are retried per the
// repository's RetryPolicy; exhausting it surfaces ErrRepeatedFailure.
type Repo interface {
	// Tags lists all tag names (short form).
	Tags() ([]string, error)
	// BranchExists reports whether a local branch exists.
	BranchExists(name string) (bool, error)
	// SwitchBranch checks out a branch, creating it as an orphan with
	// an emptied working tree when it does not exist yet.
	SwitchBranch(name string) error
	// CreateBranchFrom creates and checks out a branch starting at a
	// commitish reachable from parent.
	CreateBranchFrom(name, commitish string) error
	// CommitBefore returns the hash of the youngest commit on a branch
	// that is not younger than the given timestamp.
	CommitBefore(branch string, timestamp int64) (string, error)
	// CheckoutPathsFromTag replaces the working-tree content of
	// pkgPath with the content recorded under the given tag. The
	// previous content is deleted first, not merged over.
	CheckoutPathsFromTag(tag, pkgPath string) error
	// RemovePath deletes a path from the working tree.
	RemovePath(pkgPath string) error
	// RemoveFile deletes a single file, ignoring a missing one.
	RemoveFile(fname string) error
	// AddAll stages every working-tree change.
	AddAll() error
	// HasStagedChanges reports whether anything is staged against HEAD.
	HasStagedChanges() (bool, error)
	// Commit records the staged changes. The committer timestamp is an
	// explicit parameter; there is no environment side channel.
	Commit(msg string, author, committer Signature, allowEmpty bool) error
	// CreateTag makes a lightweight tag at HEAD.
	CreateTag(name string) error
	// CreateAnnotatedTag makes an annotated tag at HEAD.
	CreateAnnotatedTag(name, message string, tagger Signature) error
	// DeleteTag removes a tag.
	DeleteTag(name string) error
}
