package gitrepo

import "log/slog"

// DryRun wraps a Repo, delegating reads and replacing every mutation
// with a log line describing what would have happened. Used to
// rehearse a reconciliation plan before a destructive run.
type DryRun struct {
	Underlying Repo
}

var _ Repo = (*DryRun)(nil)

func (d *DryRun) Tags() ([]string, error) {
	return d.Underlying.Tags()
}

func (d *DryRun) BranchExists(name string) (bool, error) {
	return d.Underlying.BranchExists(name)
}

func (d *DryRun) CommitBefore(branch string, timestamp int64) (string, error) {
	return d.Underlying.CommitBefore(branch, timestamp)
}

func (d *DryRun) SwitchBranch(name string) error {
	slog.Info("dry-run: switch branch", "branch", name)
	return nil
}

func (d *DryRun) CreateBranchFrom(name, commitish string) error {
	slog.Info("dry-run: create branch", "branch", name, "at", commitish)
	return nil
}

func (d *DryRun) CheckoutPathsFromTag(tag, pkgPath string) error {
	slog.Info("dry-run: checkout", "tag", tag, "path", pkgPath)
	return nil
}

func (d *DryRun) RemovePath(pkgPath string) error {
	slog.Info("dry-run: remove path", "path", pkgPath)
	return nil
}

func (d *DryRun) RemoveFile(fname string) error {
	slog.Info("dry-run: remove file", "file", fname)
	return nil
}

func (d *DryRun) AddAll() error {
	slog.Info("dry-run: stage all changes")
	return nil
}

// HasStagedChanges pretends changes are staged so the rehearsal log
// shows the commits a real run would make.
func (d *DryRun) HasStagedChanges() (bool, error) {
	return true, nil
}

func (d *DryRun) Commit(msg string, author, committer Signature, allowEmpty bool) error {
	slog.Info("dry-run: commit", "author", author.String(), "date", author.When, "msg", msg)
	return nil
}

func (d *DryRun) CreateTag(name string) error {
	slog.Info("dry-run: create tag", "tag", name)
	return nil
}

func (d *DryRun) CreateAnnotatedTag(name, message string, tagger Signature) error {
	slog.Info("dry-run: create annotated tag", "tag", name, "msg", message)
	return nil
}

func (d *DryRun) DeleteTag(name string) error {
	slog.Info("dry-run: delete tag", "tag", name)
	return nil
}
