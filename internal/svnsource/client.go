// Package svnsource implements the source-VCS collaborator interfaces
// over the svn command-line client.
package svnsource

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path"
	"strings"

	"github.com/greatliontech/relgit/internal/metadata"
	"github.com/greatliontech/relgit/internal/release"
	"github.com/greatliontech/relgit/internal/util"
)

// ErrPathMissing is the recoverable failure for a tag or path that the
// source repository no longer has.
var ErrPathMissing = errors.New("path does not exist in source repository")

// Client talks to an SVN repository through the svn CLI.
type Client struct {
	root  string
	retry util.RetryPolicy
}

type Option func(*Client)

func WithRetry(p util.RetryPolicy) Option {
	return func(c *Client) {
		c.retry = p
	}
}

func New(root string, opts ...Option) *Client {
	c := &Client{root: root, retry: util.DefaultRetry}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ metadata.TagLister = (*Client)(nil)
var _ metadata.Fetcher = (*Client)(nil)

// ListTags lists a package's tags in repository order, appending the
// synthetic trunk entry.
func (c *Client) ListTags(ctx context.Context, pkgPath string) ([]string, error) {
	out, err := c.run(ctx, "ls", c.url(pkgPath, "tags"))
	if err != nil {
		return nil, err
	}
	var tags []string
	for _, line := range strings.Fields(out) {
		tags = append(tags, strings.TrimSuffix(line, "/"))
	}
	tags = append(tags, release.TrunkTag)
	return tags, nil
}

// svnInfo is the subset of `svn info --xml` output we read.
type svnInfo struct {
	Entry struct {
		Commit struct {
			Revision int    `xml:"revision,attr"`
			Author   string `xml:"author"`
			Date     string `xml:"date"`
		} `xml:"commit"`
	} `xml:"entry"`
}

// PathMetadata queries commit metadata for one package tag (or trunk).
func (c *Client) PathMetadata(ctx context.Context, pkgPath, tag string) (metadata.TagMetadata, error) {
	slog.Debug("querying source metadata", "package", pkgPath, "tag", tag)
	out, err := c.run(ctx, "info", c.url(pkgPath, tagPath(tag)), "--xml")
	if err != nil {
		return metadata.TagMetadata{}, err
	}
	info := svnInfo{}
	if err := xml.Unmarshal([]byte(out), &info); err != nil {
		return metadata.TagMetadata{}, fmt.Errorf("parsing svn info for %s/%s: %w", pkgPath, tag, err)
	}
	// Sub-second precision is noise for commit dates.
	date, _, _ := strings.Cut(info.Entry.Commit.Date, ".")
	msg, err := c.commitMessage(ctx, pkgPath, tag, info.Entry.Commit.Revision)
	if err != nil {
		return metadata.TagMetadata{}, err
	}
	return metadata.TagMetadata{
		Revision: info.Entry.Commit.Revision,
		Date:     date,
		Author:   info.Entry.Commit.Author,
		Message:  msg,
	}, nil
}

// commitMessage fetches the log message for one revision of a path.
func (c *Client) commitMessage(ctx context.Context, pkgPath, tag string, revision int) (string, error) {
	out, err := c.run(ctx, "log", c.url(pkgPath, tagPath(tag)),
		"-r", fmt.Sprintf("%d", revision), "--xml")
	if err != nil {
		return "", err
	}
	parsed := struct {
		Entry struct {
			Msg string `xml:"msg"`
		} `xml:"logentry"`
	}{}
	if err := xml.Unmarshal([]byte(out), &parsed); err != nil {
		return "", fmt.Errorf("parsing svn log for %s/%s: %w", pkgPath, tag, err)
	}
	return parsed.Entry.Msg, nil
}

// FindPackages walks the repository below start looking for leaf
// packages, identified by a trunk/tags directory pair. Vetoed path
// elements prune the walk.
func (c *Client) FindPackages(ctx context.Context, start string, veto []string) ([]string, error) {
	slog.Debug("searching for packages", "path", start)
	out, err := c.run(ctx, "ls", c.url(start, ""))
	if err != nil {
		return nil, err
	}
	entries := strings.Fields(out)
	if contains(entries, "trunk/") && contains(entries, "tags/") {
		slog.Info("found leaf package", "package", start)
		return []string{strings.TrimPrefix(strings.TrimSuffix(start, "/"), "./")}, nil
	}
	var packages []string
	for _, entry := range entries {
		if !strings.HasSuffix(entry, "/") || strings.Contains(entry, " ") {
			continue
		}
		name := strings.TrimSuffix(entry, "/")
		if contains(veto, name) {
			continue
		}
		found, err := c.FindPackages(ctx, path.Join(start, name), veto)
		if err != nil {
			return nil, err
		}
		packages = append(packages, found...)
	}
	return packages, nil
}

func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	var out []byte
	name := "svn " + strings.Join(args, " ")
	err := c.retry.Do(name, func() error {
		var err error
		out, err = exec.CommandContext(ctx, "svn", args...).Output()
		return err
	})
	if err != nil {
		if isMissingPath(err) {
			return "", fmt.Errorf("%w: %s", ErrPathMissing, name)
		}
		return "", err
	}
	return string(out), nil
}

func (c *Client) url(pkgPath, sub string) string {
	parts := []string{c.root, pkgPath}
	if sub != "" {
		parts = append(parts, sub)
	}
	return strings.Join(parts, "/")
}

// tagPath maps a version tag to its repository path; trunk lives
// beside tags/, not under it.
func tagPath(tag string) string {
	if tag == release.TrunkTag {
		return release.TrunkTag
	}
	return path.Join("tags", tag)
}

func isMissingPath(err error) bool {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return strings.Contains(string(exitErr.Stderr), "E200009") ||
			strings.Contains(string(exitErr.Stderr), "non-existent")
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
