package jobtree

import (
	"fmt"
	"regexp"
	"strings"
)

// RegexPrefix marks a filter pattern as a regular expression; everything
// else is a plain substring match. Both match against process names only,
// never paths.
const RegexPrefix = "re:"

// Filter is one validated process-name pattern.
type Filter struct {
	pattern string
	re      *regexp.Regexp
}

// CompileFilter validates a pattern. Invalid regular expressions and
// empty patterns are rejected so they are never stored.
func CompileFilter(pattern string) (Filter, error) {
	if pattern == "" {
		return Filter{}, fmt.Errorf("empty filter pattern")
	}
	if expr, ok := strings.CutPrefix(pattern, RegexPrefix); ok {
		if expr == "" {
			return Filter{}, fmt.Errorf("empty regex filter pattern")
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return Filter{}, fmt.Errorf("invalid filter pattern %q: %w", pattern, err)
		}
		return Filter{pattern: pattern, re: re}, nil
	}
	return Filter{pattern: pattern}, nil
}

// Pattern returns the original pattern string.
func (f Filter) Pattern() string { return f.pattern }

// Matches reports whether the filter matches a process name.
func (f Filter) Matches(name string) bool {
	if f.re != nil {
		return f.re.MatchString(name)
	}
	return strings.Contains(name, f.pattern)
}
