package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/google/renameio/v2"
)

// AuthorInfo is the resolved identity for one source-VCS user name.
type AuthorInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Authors maps source-VCS user names to commit identities. Unknown
// users fall back to "user <user@domain>".
type Authors struct {
	known  map[string]AuthorInfo
	domain string
}

var (
	emailRe    = regexp.MustCompile(`<[a-zA-Z0-9-]+@[a-zA-Z0-9-]+>`)
	userNameRe = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
)

func NewAuthors(domain string) *Authors {
	return &Authors{known: map[string]AuthorInfo{}, domain: domain}
}

// LoadAuthors reads a persisted author cache. A missing file yields an
// empty cache.
func LoadAuthors(path, domain string) (*Authors, error) {
	a := NewAuthors(domain)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return a, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &a.known); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCacheCorrupt, path, err)
	}
	return a, nil
}

func (a *Authors) Has(user string) bool {
	_, ok := a.known[user]
	return ok
}

func (a *Authors) Record(user string, info AuthorInfo) {
	if _, ok := a.known[user]; ok {
		return
	}
	a.known[user] = info
}

// Get returns the identity for a user, synthesising one from the
// configured domain if the user was never resolved.
func (a *Authors) Get(user string) AuthorInfo {
	if info, ok := a.known[user]; ok {
		return info
	}
	return AuthorInfo{Name: user, Email: user + "@" + a.domain}
}

// CommitAuthor formats a "Name <email>" author string for a commit.
// Author strings that already carry an email pass through unchanged.
func (a *Authors) CommitAuthor(user string) string {
	if info, ok := a.known[user]; ok {
		return fmt.Sprintf("%s <%s>", info.Name, info.Email)
	}
	if emailRe.MatchString(user) {
		return user
	}
	if userNameRe.MatchString(user) {
		return fmt.Sprintf("%s <%s@%s>", user, user, a.domain)
	}
	return user
}

func (a *Authors) Persist(path string) error {
	data, err := json.MarshalIndent(a.known, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, data, 0o644)
}
