package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/greatliontech/relgit/internal/gitrepo"
	"github.com/greatliontech/relgit/internal/metadata"
	"github.com/greatliontech/relgit/internal/release"
	"github.com/greatliontech/relgit/internal/util"
)

var testRetry = util.RetryPolicy{Attempts: 1, Wait: time.Millisecond}

// testRepo builds a repository whose master branch carries two
// versions of Trigger/TrigSteer under upstream import markers, the
// way a completed import run leaves them.
func testRepo(t *testing.T) (*gitrepo.Local, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := gitrepo.Init(dir, gitrepo.WithRetry(testRetry))
	if err != nil {
		t.Fatal(err)
	}
	sig := gitrepo.Signature{Name: "importer", Email: "importer@example.org",
		When: time.Date(2015, 3, 1, 10, 0, 0, 0, time.UTC)}

	write := func(fname, content string) {
		t.Helper()
		full := filepath.Join(dir, fname)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write("Trigger/TrigSteer/src/steer.cxx", "version one\n")
	write("Trigger/TrigSteer/ChangeLog", "history\n")
	if err := repo.AddAll(); err != nil {
		t.Fatal(err)
	}
	if err := repo.Commit("import TrigSteer-01-00-00", sig, sig, false); err != nil {
		t.Fatal(err)
	}
	if err := repo.CreateTag("import/TrigSteer-01-00-00"); err != nil {
		t.Fatal(err)
	}

	write("Trigger/TrigSteer/src/steer.cxx", "version two\n")
	if err := repo.AddAll(); err != nil {
		t.Fatal(err)
	}
	if err := repo.Commit("import TrigSteer-01-00-01", sig, sig, false); err != nil {
		t.Fatal(err)
	}
	if err := repo.CreateTag("import/TrigSteer-01-00-01"); err != nil {
		t.Fatal(err)
	}
	return repo, dir
}

func testCache() *metadata.Cache {
	cache := metadata.NewCache()
	cache.Record("TrigSteer", "Trigger", "TrigSteer-01-00-00", metadata.TagMetadata{
		Revision: 100, Date: "2015-02-01T09:00:00", Author: "jdoe", Message: "steering v1",
	})
	cache.Record("TrigSteer", "Trigger", "TrigSteer-01-00-01", metadata.TagMetadata{
		Revision: 150, Date: "2015-02-20T09:00:00", Author: "jdoe", Message: "steering v2",
	})
	return cache
}

func testSeries() release.Series {
	return release.Series{
		{
			Release: release.Descriptor{Name: "20.1.5", Type: release.TypeBase, Timestamp: 1425204000},
			Packages: map[string]string{
				"Trigger/TrigSteer": "TrigSteer-01-00-00",
			},
		},
		{
			Release: release.Descriptor{Name: "20.1.5.1", Type: release.TypeCache, Timestamp: 1426204000},
			Packages: map[string]string{
				"Trigger/TrigSteer": "TrigSteer-01-00-01",
			},
		},
	}
}

func branchCommitCount(t *testing.T, dir, branch string) int {
	t.Helper()
	gr, err := git.PlainOpen(dir)
	if err != nil {
		t.Fatal(err)
	}
	ref, err := gr.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		t.Fatal(err)
	}
	iter, err := gr.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		t.Fatal(err)
	}
	defer iter.Close()
	count := 0
	for {
		if _, err := iter.Next(); err != nil {
			break
		}
		count++
	}
	return count
}

func hasTag(t *testing.T, repo gitrepo.Repo, name string) bool {
	t.Helper()
	tags, err := repo.Tags()
	if err != nil {
		t.Fatal(err)
	}
	for _, tag := range tags {
		if tag == name {
			return true
		}
	}
	return false
}

func TestEngineBuildsBranch(t *testing.T) {
	repo, dir := testRepo(t)
	authors := metadata.NewAuthors("example.org")
	authors.Record("jdoe", metadata.AuthorInfo{Name: "Jane Doe", Email: "jane.doe@example.org"})

	engine := New(repo, testCache(), authors, Options{})
	if err := engine.Run(context.Background(), "20.1", testSeries()); err != nil {
		t.Fatalf("Run failed: %s", err)
	}

	// Base then cache import: two commits on the orphan branch.
	if got := branchCommitCount(t, dir, "20.1"); got != 2 {
		t.Errorf("Expected 2 commits on branch, got %d", got)
	}

	// The newer marker replaced the older one.
	if hasTag(t, repo, "20.1/import/TrigSteer-01-00-00") {
		t.Error("Superseded branch marker should have been retired")
	}
	if !hasTag(t, repo, "20.1/import/TrigSteer-01-00-01") {
		t.Error("Expected live branch marker for the cache version")
	}
	for _, tag := range []string{"release/20.1.5", "release/20.1.5.1"} {
		if !hasTag(t, repo, tag) {
			t.Errorf("Expected release tag %s", tag)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "Trigger/TrigSteer/src/steer.cxx"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "version two\n" {
		t.Errorf("Expected cache version content, got %q", data)
	}
	// ChangeLog stays on the import tags but not on the branch.
	if _, err := os.Stat(filepath.Join(dir, "Trigger/TrigSteer/ChangeLog")); !os.IsNotExist(err) {
		t.Error("Expected ChangeLog removed from branch")
	}
}

func TestEngineSecondRunIsNoOp(t *testing.T) {
	repo, dir := testRepo(t)
	authors := metadata.NewAuthors("example.org")

	engine := New(repo, testCache(), authors, Options{})
	if err := engine.Run(context.Background(), "20.1", testSeries()); err != nil {
		t.Fatalf("First run failed: %s", err)
	}
	before := branchCommitCount(t, dir, "20.1")

	if err := engine.Run(context.Background(), "20.1", testSeries()); err != nil {
		t.Fatalf("Second run failed: %s", err)
	}
	if after := branchCommitCount(t, dir, "20.1"); after != before {
		t.Errorf("Second run created commits: %d -> %d", before, after)
	}
}

func TestEngineRequiresBaseFirst(t *testing.T) {
	repo, _ := testRepo(t)
	engine := New(repo, testCache(), metadata.NewAuthors("example.org"), Options{})

	series := testSeries()[1:]
	if err := engine.Run(context.Background(), "20.1", series); err == nil {
		t.Error("Expected an error for a series without leading base release")
	}
}

func TestEngineRetiresDroppedPackageToBase(t *testing.T) {
	repo, dir := testRepo(t)
	authors := metadata.NewAuthors("example.org")
	series := testSeries()
	base := series[0]

	engine := New(repo, testCache(), authors, Options{BaseRelease: base})
	if err := engine.Run(context.Background(), "20.1", series); err != nil {
		t.Fatalf("Run failed: %s", err)
	}

	// A later cache without the package reverts it to the base tag.
	empty := &release.Snapshot{
		Release: release.Descriptor{Name: "20.1.5.2", Type: release.TypeCache, Timestamp: 1427204000},
		Packages: map[string]string{},
	}
	if err := engine.Run(context.Background(), "20.1", release.Series{base, empty}); err != nil {
		t.Fatalf("Revert run failed: %s", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "Trigger/TrigSteer/src/steer.cxx"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "version one\n" {
		t.Errorf("Expected base version content after revert, got %q", data)
	}
	if !hasTag(t, repo, "20.1/import/TrigSteer-01-00-00") {
		t.Error("Expected base marker after revert")
	}
	if hasTag(t, repo, "20.1/import/TrigSteer-01-00-01") {
		t.Error("Expected cache marker retired after revert")
	}
}

func TestEngineRemovesPackageWithoutBase(t *testing.T) {
	repo, dir := testRepo(t)
	authors := metadata.NewAuthors("example.org")
	series := testSeries()

	engine := New(repo, testCache(), authors, Options{SkipReleaseTag: true})
	if err := engine.Run(context.Background(), "20.1", series); err != nil {
		t.Fatalf("Run failed: %s", err)
	}

	gone := &release.Snapshot{
		Release: release.Descriptor{Name: "20.1.6", Type: release.TypeBase, Timestamp: 1428204000},
		Packages: map[string]string{},
	}
	if err := engine.Run(context.Background(), "20.1", release.Series{gone}); err != nil {
		t.Fatalf("Removal run failed: %s", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "Trigger/TrigSteer")); !os.IsNotExist(err) {
		t.Error("Expected package removed from working tree")
	}
	if hasTag(t, repo, "20.1/import/TrigSteer-01-00-01") {
		t.Error("Expected marker retired after removal")
	}
}

func TestEngineDryRunTouchesNothing(t *testing.T) {
	repo, dir := testRepo(t)
	authors := metadata.NewAuthors("example.org")

	dry := &gitrepo.DryRun{Underlying: repo}
	engine := New(dry, testCache(), authors, Options{})
	if err := engine.Run(context.Background(), "20.1", testSeries()); err != nil {
		t.Fatalf("Dry run failed: %s", err)
	}

	gr, err := git.PlainOpen(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := gr.Reference(plumbing.NewBranchReferenceName("20.1"), false); err == nil {
		t.Error("Dry run must not create the branch")
	}
	if hasTag(t, repo, "release/20.1.5") {
		t.Error("Dry run must not create tags")
	}
}
