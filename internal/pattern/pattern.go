// Package pattern compiles user wildcard patterns into URL predicates.
//
// A pattern is matched against the whole URL, case-insensitively. The only
// special character is "*", which matches any run of characters (including
// none, and including "/"). Every other character is literal.
package pattern

import (
	"regexp"
	"strings"

	"github.com/lotas/tabregel/internal/applog"
)

// Matcher reports whether a URL matches a compiled pattern.
type Matcher func(url string) bool

// metaReplacer escapes regexp metacharacters and expands "*". It works in a
// single pass over the input, so a backslash added while escaping one
// character is never escaped again.
var metaReplacer = strings.NewReplacer(
	`\`, `\\`,
	`.`, `\.`,
	`+`, `\+`,
	`?`, `\?`,
	`^`, `\^`,
	`$`, `\$`,
	`{`, `\{`,
	`}`, `\}`,
	`(`, `\(`,
	`)`, `\)`,
	`|`, `\|`,
	`[`, `\[`,
	`]`, `\]`,
	`*`, `.*`,
)

// Expression returns the anchored, case-insensitive regular expression
// source for a wildcard pattern.
func Expression(pattern string) string {
	return "(?i)^" + metaReplacer.Replace(pattern) + "$"
}

// Compile turns a wildcard pattern into a Matcher. A pattern that fails to
// compile yields a Matcher that never matches.
func Compile(pattern string) Matcher {
	re, err := regexp.Compile(Expression(pattern))
	if err != nil {
		applog.Warn("pattern.compile", "pattern", pattern, "error", err.Error())
		return func(string) bool { return false }
	}
	return re.MatchString
}

// Set is a compiled list of patterns; it matches when any pattern matches.
type Set []Matcher

// CompileAll compiles every pattern in order.
func CompileAll(patterns []string) Set {
	set := make(Set, 0, len(patterns))
	for _, p := range patterns {
		set = append(set, Compile(p))
	}
	return set
}

// Match reports whether any pattern in the set matches url.
func (s Set) Match(url string) bool {
	for _, m := range s {
		if m(url) {
			return true
		}
	}
	return false
}
