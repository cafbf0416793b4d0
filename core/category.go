package core

import (
	"bytes"
	"errors"
	"fmt"
)

// CategorySize is the fixed width of a Category tag in bytes.
const CategorySize = 32

// ErrInvalidCategory is returned for a tag that does not fit a Category.
var ErrInvalidCategory = errors.New("invalid category")

// Category is an opaque fixed-size classification label. Its text form is
// the tag with trailing NUL bytes removed.
type Category [CategorySize]byte

// ParseCategory packs s into a Category. It fails if s does not fit.
func ParseCategory(s string) (Category, error) {
	var c Category
	if len(s) > CategorySize {
		return c, fmt.Errorf("%w: %q longer than %d bytes", ErrInvalidCategory, s, CategorySize)
	}
	copy(c[:], s)
	return c, nil
}

// String returns the tag without NUL padding.
func (c Category) String() string {
	return string(bytes.TrimRight(c[:], "\x00"))
}

// IsZero reports whether the tag is empty.
func (c Category) IsZero() bool {
	return c == Category{}
}

func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
