package files

import (
	"fmt"
	"path"
	"strings"
)

// InternalPath is a slash separated path relative to the storage root.
// It names where an asset should live; it is not proof that a file exists.
type InternalPath string

// NewInternalPath joins elements into an internal path
func NewInternalPath(elem ...string) InternalPath {
	return InternalPath(path.Join(elem...))
}

// Join appends elements to p
func (p InternalPath) Join(elem ...string) InternalPath {
	return NewInternalPath(append([]string{string(p)}, elem...)...)
}

// Dir returns the parent directory of p, "." at the top level
func (p InternalPath) Dir() InternalPath {
	return InternalPath(path.Dir(string(p)))
}

// Base returns the last element of p
func (p InternalPath) Base() string {
	return path.Base(string(p))
}

// Ext returns the extension of p including the dot
func (p InternalPath) Ext() string {
	return path.Ext(string(p))
}

func (p InternalPath) String() string {
	return string(p)
}

// Validate rejects paths that would escape the storage root or name it
func (p InternalPath) Validate() error {
	s := string(p)
	switch {
	case s == "" || s == ".":
		return fmt.Errorf("empty internal path")
	case strings.HasPrefix(s, "/"):
		return fmt.Errorf("internal path %q is absolute", s)
	case strings.Contains(s, "\\"):
		return fmt.Errorf("internal path %q contains a backslash", s)
	case path.Clean(s) != s:
		return fmt.Errorf("internal path %q is not clean", s)
	}
	for _, elem := range strings.Split(s, "/") {
		if elem == ".." {
			return fmt.Errorf("internal path %q leaves the storage root", s)
		}
	}
	return nil
}
