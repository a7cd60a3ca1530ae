// Package pathtemplate matches and expands slash-separated URL path templates
// such as "jobs/{JobID}/sections/{SectionID}/costCenters/".
//
// A segment is either literal text or a single variable. "{name}" matches
// exactly one non-empty segment; "{name...}" must be the last segment and
// matches the remainder of the path. A trailing slash in the template is
// significant.
package pathtemplate

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ajitpratap0/simpro-tap/pkg/errors"
)

// ParseError reports a path that does not fit a template, or a template
// that cannot be expanded. Callers retrieve it with errors.As.
type ParseError struct {
	Template string
	Input    string
	Reason   string
}

func (e *ParseError) Error() string {
	if e.Input == "" {
		return fmt.Sprintf("template %q: %s", e.Template, e.Reason)
	}
	return fmt.Sprintf("path %q does not match template %q: %s", e.Input, e.Template, e.Reason)
}

type segment struct {
	literal string
	name    string
	rest    bool
}

func (s segment) isVar() bool { return s.name != "" }

// Template is a parsed path template. It is safe for concurrent use.
type Template struct {
	raw      string
	segments []segment
}

// Parse compiles a template
func Parse(raw string) (*Template, error) {
	parts := strings.Split(raw, "/")
	segs := make([]segment, 0, len(parts))
	seen := make(map[string]bool)

	for i, p := range parts {
		lb, rb := strings.IndexByte(p, '{'), strings.IndexByte(p, '}')
		if lb == -1 && rb == -1 {
			segs = append(segs, segment{literal: p})
			continue
		}
		if lb != 0 || rb != len(p)-1 {
			return nil, parseError(raw, "", fmt.Sprintf("segment %q mixes literal text and a variable", p))
		}

		name := p[1 : len(p)-1]
		rest := strings.HasSuffix(name, "...")
		name = strings.TrimSuffix(name, "...")
		if name == "" || strings.ContainsAny(name, "{}") {
			return nil, parseError(raw, "", fmt.Sprintf("invalid variable %q", p))
		}
		if rest && i != len(parts)-1 {
			return nil, parseError(raw, "", fmt.Sprintf("%q must be the last segment", p))
		}
		if seen[name] {
			return nil, parseError(raw, "", fmt.Sprintf("variable %q repeated", name))
		}
		seen[name] = true
		segs = append(segs, segment{name: name, rest: rest})
	}

	return &Template{raw: raw, segments: segs}, nil
}

// MustParse is Parse for templates known at compile time
func MustParse(raw string) *Template {
	t, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the template source
func (t *Template) String() string { return t.raw }

// Vars returns the variable names in template order
func (t *Template) Vars() []string {
	var names []string
	for _, s := range t.segments {
		if s.isVar() {
			names = append(names, s.name)
		}
	}
	return names
}

// Match extracts the variables from path. Any query string is ignored.
// A mismatch returns an errors.Error of type parse wrapping a *ParseError.
func (t *Template) Match(path string) (map[string]string, error) {
	input := path
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(path, "/")
	vars := make(map[string]string, len(t.segments))

	for i, s := range t.segments {
		if s.rest {
			if i >= len(parts) {
				return nil, parseError(t.raw, input, fmt.Sprintf("missing %s", s.name))
			}
			tail := strings.Join(parts[i:], "/")
			if tail == "" {
				return nil, parseError(t.raw, input, fmt.Sprintf("empty %s", s.name))
			}
			vars[s.name] = tail
			return vars, nil
		}
		if i >= len(parts) {
			return nil, parseError(t.raw, input, "path is shorter than template")
		}
		if !s.isVar() {
			if parts[i] != s.literal {
				return nil, parseError(t.raw, input, fmt.Sprintf("segment %d is %q, want %q", i, parts[i], s.literal))
			}
			continue
		}
		if parts[i] == "" {
			return nil, parseError(t.raw, input, fmt.Sprintf("empty %s", s.name))
		}
		v, err := url.PathUnescape(parts[i])
		if err != nil {
			return nil, parseError(t.raw, input, fmt.Sprintf("bad escape in %s", s.name))
		}
		vars[s.name] = v
	}

	if len(parts) != len(t.segments) {
		return nil, parseError(t.raw, input, "path is longer than template")
	}
	return vars, nil
}

// Expand substitutes vars into the template. Single-segment values are
// path-escaped; every variable must have a non-empty value.
func (t *Template) Expand(vars map[string]string) (string, error) {
	parts := make([]string, len(t.segments))
	for i, s := range t.segments {
		if !s.isVar() {
			parts[i] = s.literal
			continue
		}
		v := vars[s.name]
		if v == "" {
			return "", parseError(t.raw, "", fmt.Sprintf("no value for %s", s.name))
		}
		if s.rest {
			parts[i] = v
		} else {
			parts[i] = url.PathEscape(v)
		}
	}
	return strings.Join(parts, "/"), nil
}

func parseError(tmpl, input, reason string) error {
	return errors.Wrap(&ParseError{Template: tmpl, Input: input, Reason: reason},
		errors.ErrorTypeParse, "path template error")
}
