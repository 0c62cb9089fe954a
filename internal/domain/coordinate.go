package domain

import (
	"fmt"

	"github.com/bnema/courseimages/pkg/validation"
)

// Coordinate is a name:tag pair inside the registry, without host.
type Coordinate struct {
	Name string
	Tag  string
}

// ParseCoordinate parses "name[:tag]". The tag defaults to "latest".
func ParseCoordinate(s string) (Coordinate, error) {
	name, tag := validation.ParseImageReference(s)
	if err := validation.ValidateRepositoryName(name); err != nil {
		return Coordinate{}, fmt.Errorf("%w %q: %v", ErrInvalidCoordinate, s, err)
	}
	if err := validation.ValidateReference(tag); err != nil {
		return Coordinate{}, fmt.Errorf("%w %q: %v", ErrInvalidCoordinate, s, err)
	}
	return Coordinate{Name: name, Tag: tag}, nil
}

// MustParseCoordinate is ParseCoordinate for static values; it panics on error.
func MustParseCoordinate(s string) Coordinate {
	c, err := ParseCoordinate(s)
	if err != nil {
		panic(err)
	}
	return c
}

// String returns name:tag.
func (c Coordinate) String() string {
	return c.Name + ":" + c.Tag
}

// Matches reports whether the coordinate designates name:ref.
func (c Coordinate) Matches(name, ref string) bool {
	return c.Name != "" && c.Name == name && c.Tag == ref
}

// IsZero reports whether the coordinate is unset.
func (c Coordinate) IsZero() bool {
	return c.Name == "" && c.Tag == ""
}
