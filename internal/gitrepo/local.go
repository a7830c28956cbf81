package gitrepo

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/go-git/go-billy/v5"
	billyutil "github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/greatliontech/relgit/internal/util"
)

// Local drives a git repository on the local filesystem through
// go-git. The engine assumes exclusive ownership of the working tree
// for the duration of a run.
type Local struct {
	repo  *git.Repository
	retry util.RetryPolicy
}

type Option func(*Local)

func WithRetry(p util.RetryPolicy) Option {
	return func(l *Local) {
		l.retry = p
	}
}

// Open opens an existing repository at path.
func Open(path string, opts ...Option) (*Local, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("opening git repository %s: %w", path, err)
	}
	return wrap(repo, opts...), nil
}

// Init creates a repository at path, or opens it if one exists.
func Init(path string, opts ...Option) (*Local, error) {
	repo, err := git.PlainInit(path, false)
	if errors.Is(err, git.ErrRepositoryAlreadyExists) {
		return Open(path, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("initialising git repository %s: %w", path, err)
	}
	return wrap(repo, opts...), nil
}

func wrap(repo *git.Repository, opts ...Option) *Local {
	l := &Local{repo: repo, retry: util.DefaultRetry}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Local) Tags() ([]string, error) {
	iter, err := l.repo.Tags()
	if err != nil {
		return nil, err
	}
	var tags []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		tags = append(tags, ref.Name().Short())
		return nil
	})
	return tags, err
}

func (l *Local) BranchExists(name string) (bool, error) {
	_, err := l.repo.Reference(plumbing.NewBranchReferenceName(name), false)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (l *Local) SwitchBranch(name string) error {
	exists, err := l.BranchExists(name)
	if err != nil {
		return err
	}
	wt, err := l.repo.Worktree()
	if err != nil {
		return err
	}
	if exists {
		return l.retry.Do("checkout "+name, func() error {
			return wt.Checkout(&git.CheckoutOptions{
				Branch: plumbing.NewBranchReferenceName(name),
				Force:  true,
			})
		})
	}
	return l.createOrphan(name, wt)
}

// createOrphan points HEAD at an unborn branch and empties the working
// tree and index, so the branch's first commit has no parent.
func (l *Local) createOrphan(name string, wt *git.Worktree) error {
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(name))
	if err := l.repo.Storer.SetReference(head); err != nil {
		return err
	}
	if err := clearWorktree(wt.Filesystem); err != nil {
		return err
	}
	// Stage the wipe so nothing from the previous branch leaks into
	// the orphan's first commit.
	err := wt.AddWithOptions(&git.AddOptions{All: true})
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		// Fresh repository with no commits at all: nothing staged.
		return nil
	}
	return err
}

func (l *Local) CreateBranchFrom(name, commitish string) error {
	commit, err := l.resolveCommit(commitish)
	if err != nil {
		return fmt.Errorf("resolving branch point %q: %w", commitish, err)
	}
	wt, err := l.repo.Worktree()
	if err != nil {
		return err
	}
	return l.retry.Do("branch "+name, func() error {
		return wt.Checkout(&git.CheckoutOptions{
			Hash:   commit.Hash,
			Branch: plumbing.NewBranchReferenceName(name),
			Create: true,
		})
	})
}

func (l *Local) CommitBefore(branch string, timestamp int64) (string, error) {
	ref, err := l.repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		return "", fmt.Errorf("resolving branch %q: %w", branch, err)
	}
	until := time.Unix(timestamp, 0)
	iter, err := l.repo.Log(&git.LogOptions{
		From:  ref.Hash(),
		Order: git.LogOrderCommitterTime,
		Until: &until,
	})
	if err != nil {
		return "", err
	}
	defer iter.Close()
	commit, err := iter.Next()
	if err != nil {
		return "", fmt.Errorf("no commit found before timestamp %d: %w", timestamp, err)
	}
	return commit.Hash.String(), nil
}

func (l *Local) CheckoutPathsFromTag(tag, pkgPath string) error {
	commit, err := l.resolveCommit(tag)
	if err != nil {
		return fmt.Errorf("resolving tag %q: %w", tag, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return err
	}
	sub, err := tree.Tree(pkgPath)
	if err != nil {
		return fmt.Errorf("no path %q under tag %q: %w", pkgPath, tag, err)
	}
	wt, err := l.repo.Worktree()
	if err != nil {
		return err
	}
	return l.retry.Do("checkout "+tag+" "+pkgPath, func() error {
		// Replace, never merge: files deleted upstream must vanish.
		if err := billyutil.RemoveAll(wt.Filesystem, pkgPath); err != nil {
			return err
		}
		return sub.Files().ForEach(func(f *object.File) error {
			return writeWorktreeFile(wt.Filesystem, path.Join(pkgPath, f.Name), f)
		})
	})
}

func (l *Local) RemovePath(pkgPath string) error {
	wt, err := l.repo.Worktree()
	if err != nil {
		return err
	}
	return billyutil.RemoveAll(wt.Filesystem, pkgPath)
}

func (l *Local) RemoveFile(fname string) error {
	wt, err := l.repo.Worktree()
	if err != nil {
		return err
	}
	err = wt.Filesystem.Remove(fname)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (l *Local) AddAll() error {
	wt, err := l.repo.Worktree()
	if err != nil {
		return err
	}
	return l.retry.Do("add all", func() error {
		return wt.AddWithOptions(&git.AddOptions{All: true})
	})
}

func (l *Local) HasStagedChanges() (bool, error) {
	wt, err := l.repo.Worktree()
	if err != nil {
		return false, err
	}
	status, err := wt.Status()
	if err != nil {
		return false, err
	}
	for _, fs := range status {
		if fs.Staging != git.Unmodified && fs.Staging != git.Untracked {
			return true, nil
		}
	}
	return false, nil
}

func (l *Local) Commit(msg string, author, committer Signature, allowEmpty bool) error {
	wt, err := l.repo.Worktree()
	if err != nil {
		return err
	}
	return l.retry.Do("commit", func() error {
		_, err := wt.Commit(msg, &git.CommitOptions{
			Author:            signature(author),
			Committer:         signature(committer),
			AllowEmptyCommits: allowEmpty,
		})
		return err
	})
}

func (l *Local) CreateTag(name string) error {
	return l.retry.Do("tag "+name, func() error {
		head, err := l.repo.Head()
		if err != nil {
			return err
		}
		_, err = l.repo.CreateTag(name, head.Hash(), nil)
		return err
	})
}

func (l *Local) CreateAnnotatedTag(name, message string, tagger Signature) error {
	return l.retry.Do("tag -a "+name, func() error {
		head, err := l.repo.Head()
		if err != nil {
			return err
		}
		_, err = l.repo.CreateTag(name, head.Hash(), &git.CreateTagOptions{
			Tagger:  signature(tagger),
			Message: message,
		})
		return err
	})
}

func (l *Local) DeleteTag(name string) error {
	return l.retry.Do("tag -d "+name, func() error {
		return l.repo.DeleteTag(name)
	})
}

// resolveCommit maps a revision string (branch, tag, hash) to its
// commit, peeling annotated tags.
func (l *Local) resolveCommit(rev string) (*object.Commit, error) {
	hash, err := l.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, err
	}
	commit, err := l.repo.CommitObject(*hash)
	if err == nil {
		return commit, nil
	}
	tag, tagErr := l.repo.TagObject(*hash)
	if tagErr != nil {
		return nil, err
	}
	return tag.Commit()
}

func signature(s Signature) *object.Signature {
	return &object.Signature{Name: s.Name, Email: s.Email, When: s.When}
}

func writeWorktreeFile(fs billy.Filesystem, fname string, f *object.File) error {
	if err := fs.MkdirAll(path.Dir(fname), 0o755); err != nil {
		return err
	}
	mode, err := f.Mode.ToOSFileMode()
	if err != nil {
		mode = 0o644
	}
	dst, err := fs.OpenFile(fname, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer dst.Close()
	src, err := f.Reader()
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(dst, src)
	return err
}

// clearWorktree removes every top-level entry except dotfiles, which
// covers .git when the repository stores itself inside the tree.
func clearWorktree(fs billy.Filesystem) error {
	entries, err := fs.ReadDir("/")
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if len(entry.Name()) > 0 && entry.Name()[0] == '.' {
			continue
		}
		if err := billyutil.RemoveAll(fs, entry.Name()); err != nil {
			return err
		}
	}
	return nil
}
