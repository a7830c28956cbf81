package metadata

import "context"

// DomainResolver synthesizes identities as user@domain when no
// directory service is configured.
type DomainResolver struct {
	Domain string
}

var _ AuthorResolver = DomainResolver{}

func (r DomainResolver) ResolveAuthor(_ context.Context, user string) (AuthorInfo, error) {
	return AuthorInfo{Name: user, Email: user + "@" + r.Domain}, nil
}
