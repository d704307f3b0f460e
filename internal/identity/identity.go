// Package identity derives and tracks node identifiers.
//
// An identifier is either supplied explicitly by the markup or derived from
// the node's label with Sanitize. A Set guarantees uniqueness within one
// tree: a derived identifier that collides is suffixed with a random token,
// an explicit identifier that collides is an error.
package identity

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Errors returned by Set.
var (
	// ErrDuplicateID is returned when an explicit identifier is already taken.
	ErrDuplicateID = errors.New("duplicate node id")

	// ErrNoIdentifier is returned when no identifier could be produced.
	ErrNoIdentifier = errors.New("cannot derive node id")
)

var (
	nonWord    = regexp.MustCompile(`[^\w\s]`)
	whitespace = regexp.MustCompile(`\s+`)
)

// Sanitize turns a label into an identifier: surrounding whitespace is
// trimmed, dots become underscores, characters other than ASCII letters,
// digits, underscores and whitespace are dropped, whitespace runs become a
// single underscore, and the result is lowercased. Sanitize is idempotent.
func Sanitize(label string) string {
	s := strings.TrimSpace(label)
	s = strings.ReplaceAll(s, ".", "_")
	s = nonWord.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(s, "_")
	return strings.ToLower(s)
}

// Token returns a short random identifier fragment.
func Token() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(u.String(), "-", "")[:12], nil
}

// Set tracks the identifiers in use by one tree.
type Set struct {
	mu    sync.Mutex
	ids   map[string]struct{}
	token func() (string, error)
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{
		ids:   make(map[string]struct{}),
		token: Token,
	}
}

// Assign returns the identifier for a node. A non-empty explicit identifier
// is used verbatim and must be unused. Otherwise the identifier is derived
// from label; an empty derivation is replaced by random tokens and a taken
// one is suffixed until unique. The returned identifier is reserved.
func (s *Set) Assign(explicit, label string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if explicit != "" {
		if _, taken := s.ids[explicit]; taken {
			return "", fmt.Errorf("%w: %q", ErrDuplicateID, explicit)
		}
		s.ids[explicit] = struct{}{}
		return explicit, nil
	}

	id := Sanitize(label)
	if id == "" {
		first, err := s.token()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrNoIdentifier, err)
		}
		second, err := s.token()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrNoIdentifier, err)
		}
		id = first + "_" + second
	}

	base := id
	for {
		if _, taken := s.ids[id]; !taken {
			break
		}
		suffix, err := s.token()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrNoIdentifier, err)
		}
		id = base + "_" + suffix
	}

	s.ids[id] = struct{}{}
	return id, nil
}

// Reserve marks id as used.
func (s *Set) Reserve(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.ids[id]; taken {
		return fmt.Errorf("%w: %q", ErrDuplicateID, id)
	}
	s.ids[id] = struct{}{}
	return nil
}

// Release frees ids for reuse.
func (s *Set) Release(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.ids, id)
	}
}

// Has reports whether id is in use.
func (s *Set) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of identifiers in use.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}
