// Package exclude compiles kosmokopy's exclusion pattern syntax into
// matchers evaluated against file and directory basenames during
// enumeration.
package exclude

import (
	"path/filepath"
	"strings"
)

// Kind identifies which of the four exclusion pattern syntaxes a
// Pattern was compiled from.
type Kind int

const (
	// ExactDir is a literal directory name ("/cache").
	ExactDir Kind = iota
	// ExactFile is a literal file name ("skip_me.log").
	ExactFile
	// GlobDir is a case-insensitive glob matched against directory
	// basenames ("~/build*").
	GlobDir
	// GlobFile is a case-insensitive glob matched against file
	// basenames ("~*.tmp").
	GlobFile
)

// Pattern is one compiled exclusion rule.
type Pattern struct {
	Kind    Kind
	Literal string // the original source syntax, for diagnostics
	match   func(basename string) bool
}

// Compile parses the CLI's --exclude values into compiled patterns.
//
// Sigil grammar:
//
//	"/name"   (no wildcards) -> ExactDir
//	"~/glob"                 -> GlobDir
//	"~glob"                  -> GlobFile
//	anything else            -> ExactFile
func Compile(raw []string) []Pattern {
	patterns := make([]Pattern, 0, len(raw))
	for _, r := range raw {
		patterns = append(patterns, compileOne(r))
	}
	return patterns
}

func compileOne(r string) Pattern {
	switch {
	case strings.HasPrefix(r, "~/"):
		glob := r[2:]
		return Pattern{Kind: GlobDir, Literal: r, match: globMatcher(glob)}
	case strings.HasPrefix(r, "~"):
		glob := r[1:]
		return Pattern{Kind: GlobFile, Literal: r, match: globMatcher(glob)}
	case strings.HasPrefix(r, "/") && !containsWildcard(r):
		name := strings.TrimPrefix(r, "/")
		return Pattern{Kind: ExactDir, Literal: r, match: exactMatcher(name)}
	default:
		return Pattern{Kind: ExactFile, Literal: r, match: exactMatcher(r)}
	}
}

func containsWildcard(s string) bool {
	return strings.ContainsAny(s, "*?")
}

func exactMatcher(name string) func(string) bool {
	return func(basename string) bool {
		return basename == name
	}
}

// globMatcher returns a case-insensitive matcher for a shell-style glob
// ('*' = any run of non-separator characters, '?' = exactly one).
// filepath.Match already implements these semantics for a pattern with
// no path separators, so case-folding both sides is all that's added.
func globMatcher(glob string) func(string) bool {
	lowered := strings.ToLower(glob)
	return func(basename string) bool {
		ok, err := filepath.Match(lowered, strings.ToLower(basename))
		return err == nil && ok
	}
}

// ExcludesDir reports whether dirName (a basename, not a full path)
// matches any ExactDir or GlobDir pattern.
func ExcludesDir(patterns []Pattern, dirName string) bool {
	for _, p := range patterns {
		if (p.Kind == ExactDir || p.Kind == GlobDir) && p.match(dirName) {
			return true
		}
	}
	return false
}

// ExcludesFile reports whether fileName (a basename, not a full path)
// matches any ExactFile or GlobFile pattern.
func ExcludesFile(patterns []Pattern, fileName string) bool {
	for _, p := range patterns {
		if (p.Kind == ExactFile || p.Kind == GlobFile) && p.match(fileName) {
			return true
		}
	}
	return false
}
