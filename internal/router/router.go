// Package router computes the full URL path for a binding's prefix and a
// mode-specific suffix, and matches requests against configured bindings.
package router

import "strings"

// Normalize joins a binding's prefix with a suffix path.
//
//	normalize("/")      == ""
//	normalize("/git/")  == "/git"
//
// then appends ensureLeading(suffix), and if the whole result is empty,
// returns "/".
func Normalize(prefix, suffix string) string {
	p := prefix
	if p == "/" {
		p = ""
	} else {
		p = strings.TrimSuffix(p, "/")
	}
	s := suffix
	if s != "" && !strings.HasPrefix(s, "/") {
		s = "/" + s
	}
	full := p + s
	if full == "" {
		return "/"
	}
	return full
}

// Binding is a single (prefix, command) routing entry.
type Binding struct {
	Prefix  string
	Command string
}

// Table matches exact paths against a set of bindings' derived full paths.
// There are no wildcards: an unmatched path is the caller's default 404.
type Table struct {
	byPath map[string]*Binding
}

// New builds a Table. pathFor computes the full path for a binding given its
// prefix, letting callers reuse Table for different mode suffixes
// (ssePath, messagePath, streamableHttpPath, ...).
func New(bindings []*Binding, pathFor func(prefix string) string) *Table {
	t := &Table{byPath: map[string]*Binding{}}
	for _, b := range bindings {
		t.byPath[pathFor(b.Prefix)] = b
	}
	return t
}

// Lookup returns the binding whose full path equals path, if any.
func (t *Table) Lookup(path string) (*Binding, bool) {
	b, ok := t.byPath[path]
	return b, ok
}
