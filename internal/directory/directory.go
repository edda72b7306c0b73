package directory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"staffpresence/internal/apperr"
)

// Role is the role family a person belongs to.
type Role string

const (
	RoleTeacher  Role = "teacher"
	RoleEmployee Role = "employee"
	RoleOther    Role = "other"
)

// ParseRole normalizes a role label; unknown labels become RoleOther.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleTeacher:
		return RoleTeacher
	case RoleEmployee:
		return RoleEmployee
	default:
		return RoleOther
	}
}

// Rank orders roles for tie-breaking; higher wins.
func (r Role) Rank() int {
	switch r {
	case RoleTeacher:
		return 2
	case RoleEmployee:
		return 1
	default:
		return 0
	}
}

// Person is a directory entry. The directory is owned elsewhere and read-only here.
type Person struct {
	Identifier     string `json:"identifier" yaml:"identifier"`
	DisplayName    string `json:"display_name" yaml:"display_name"`
	Role           Role   `json:"role" yaml:"role"`
	Classification string `json:"classification,omitempty" yaml:"classification"`
}

// Lookup is the read-only directory contract. GetPerson returns
// apperr.ErrNotFound for unknown identifiers.
type Lookup interface {
	ListPersons(ctx context.Context) ([]Person, error)
	GetPerson(ctx context.Context, identifier string) (Person, error)
}

// Static is an immutable in-memory directory.
type Static struct {
	persons map[string]Person
}

// NewStatic builds a directory from a fixed list; later duplicates win.
func NewStatic(persons ...Person) *Static {
	s := &Static{persons: make(map[string]Person, len(persons))}
	for _, p := range persons {
		p.Role = ParseRole(string(p.Role))
		s.persons[p.Identifier] = p
	}
	return s
}

type directoryFile struct {
	Persons []Person `yaml:"persons"`
}

// LoadFile reads a YAML directory snapshot of the form:
//
//	persons:
//	  - identifier: T-001
//	    display_name: Ana Cruz
//	    role: teacher
func LoadFile(path string) (*Static, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directory file: %w", err)
	}
	var f directoryFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse directory file: %w", err)
	}
	for i, p := range f.Persons {
		if strings.TrimSpace(p.Identifier) == "" {
			return nil, fmt.Errorf("directory entry %d has no identifier", i)
		}
	}
	return NewStatic(f.Persons...), nil
}

// ListPersons returns all persons ordered by identifier.
func (s *Static) ListPersons(_ context.Context) ([]Person, error) {
	out := make([]Person, 0, len(s.persons))
	for _, p := range s.persons {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out, nil
}

// GetPerson returns a single person.
func (s *Static) GetPerson(_ context.Context, identifier string) (Person, error) {
	p, ok := s.persons[identifier]
	if !ok {
		return Person{}, apperr.ErrNotFound
	}
	return p, nil
}
