package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// UnknownIdentity is the name recorded for decisions about an unmatched face.
const UnknownIdentity = "Unknown"

var ErrInvalidName = errors.New("invalid identity name")

// Gallery is the index-aligned set of enrolled encodings and their owners.
// Names[i] owns Encodings[i].
type Gallery struct {
	Encodings [][]float32
	Names     []string
}

// Identity summarizes one enrolled name.
type Identity struct {
	Name      string `json:"name"`
	Encodings int    `json:"encodings"`
}

// Validate checks that the gallery can be persisted: aligned slices, no
// nameless encoding and no empty vector.
func (g Gallery) Validate() error {
	if len(g.Encodings) != len(g.Names) {
		return fmt.Errorf("gallery misaligned: %d encodings, %d names", len(g.Encodings), len(g.Names))
	}
	for i := range g.Names {
		if g.Names[i] == "" {
			return fmt.Errorf("encoding %d has no owner", i)
		}
		if len(g.Encodings[i]) == 0 {
			return fmt.Errorf("encoding %d is empty", i)
		}
	}
	return nil
}

func (g Gallery) Len() int { return len(g.Names) }

func (g Gallery) Contains(name string) bool {
	for _, n := range g.Names {
		if n == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (g Gallery) Clone() Gallery {
	out := Gallery{
		Encodings: make([][]float32, len(g.Encodings)),
		Names:     make([]string, len(g.Names)),
	}
	copy(out.Names, g.Names)
	for i, enc := range g.Encodings {
		out.Encodings[i] = append([]float32(nil), enc...)
	}
	return out
}

// With returns a copy with encodings appended under name.
func (g Gallery) With(name string, encodings [][]float32) Gallery {
	out := g.Clone()
	for _, enc := range encodings {
		out.Encodings = append(out.Encodings, append([]float32(nil), enc...))
		out.Names = append(out.Names, name)
	}
	return out
}

// Without returns a copy with every encoding owned by name removed, and the
// number of encodings dropped.
func (g Gallery) Without(name string) (Gallery, int) {
	out := Gallery{
		Encodings: make([][]float32, 0, len(g.Encodings)),
		Names:     make([]string, 0, len(g.Names)),
	}
	removed := 0
	for i, n := range g.Names {
		if n == name {
			removed++
			continue
		}
		out.Encodings = append(out.Encodings, append([]float32(nil), g.Encodings[i]...))
		out.Names = append(out.Names, n)
	}
	return out, removed
}

// Identities lists enrolled names sorted alphabetically with encoding counts.
func (g Gallery) Identities() []Identity {
	counts := make(map[string]int)
	for _, n := range g.Names {
		counts[n]++
	}
	out := make([]Identity, 0, len(counts))
	for name, n := range counts {
		out = append(out, Identity{Name: name, Encodings: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ValidateName rejects names that cannot be enrolled: empty, the unknown
// sentinel, or anything unusable as a single directory component.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case name == UnknownIdentity:
		return fmt.Errorf("%w: %q is reserved", ErrInvalidName, name)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	}
	return nil
}
