package decentium

import (
	"fmt"
	"strings"

	"github.com/decentium/decentium-go/internal/codec"
)

// Permlink identifies a post by author and slug. Slugs are names; their dots
// are written as dashes in the string form.
type Permlink struct {
	Author string `json:"author"`
	Slug   string `json:"slug"`
}

// ParsePermlink parses "author/slug".
func ParsePermlink(s string) (Permlink, error) {
	author, slug, ok := strings.Cut(s, "/")
	if !ok {
		return Permlink{}, fmt.Errorf("invalid permlink %q", s)
	}
	p := Permlink{Author: author, Slug: strings.ReplaceAll(slug, "-", ".")}
	if err := p.Validate(); err != nil {
		return Permlink{}, fmt.Errorf("invalid permlink %q: %w", s, err)
	}
	return p, nil
}

// Validate checks that author and slug are valid names.
func (p Permlink) Validate() error {
	for _, n := range []string{p.Author, p.Slug} {
		if !codec.IsName(n) {
			return fmt.Errorf("%w: %q", codec.ErrInvalidName, n)
		}
	}
	return nil
}

func (p Permlink) String() string {
	return p.Author + "/" + strings.ReplaceAll(p.Slug, ".", "-")
}
