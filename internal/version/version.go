// Package version implements Headwind's version model (C1): parsing,
// comparison and classification of image tags and chart versions.
package version

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Ordering is the result of comparing two versions.
type Ordering int

const (
	Less Ordering = iota - 1
	Equal
	Greater
)

// Class classifies the relationship between a current and a candidate
// version, per spec.md §4.1.
type Class int

const (
	ClassEqual Class = iota
	ClassPatch
	ClassMinor
	ClassMajor
	ClassDowngrade
	ClassIncomparable
)

func (c Class) String() string {
	switch c {
	case ClassEqual:
		return "equal"
	case ClassPatch:
		return "patch"
	case ClassMinor:
		return "minor"
	case ClassMajor:
		return "major"
	case ClassDowngrade:
		return "downgrade"
	default:
		return "incomparable"
	}
}

// Version is a parsed or opaque version string. The original, unmodified
// input (including a leading "v", if any) is retained in Raw for output.
type Version struct {
	Raw    string
	semver *semver.Version
}

// Parse parses s as a semver 2.0.0 string (an optional leading "v" is
// stripped for comparison but retained in Raw). Strings that do not parse
// are retained verbatim as an Opaque version: IsOpaque will return true,
// and the version compares only as an opaque string (per spec.md §4.1, used
// only by the all/glob/force policies).
func Parse(s string) Version {
	v, err := semver.StrictNewVersion(strings.TrimPrefix(s, "v"))
	if err != nil {
		return Version{Raw: s}
	}
	return Version{Raw: s, semver: v}
}

// IsOpaque reports whether s failed semver parsing.
func (v Version) IsOpaque() bool {
	return v.semver == nil
}

// String returns the original, unmodified representation.
func (v Version) String() string {
	return v.Raw
}

// Cmp compares a and b per semver 2.0.0 ordering when both parse; otherwise
// falls back to a lexicographic string comparison of the raw values (this
// makes Cmp a total order, satisfying spec.md invariant 6, but callers
// needing policy-aware "are these even comparable" semantics should check
// IsOpaque first).
func Cmp(a, b Version) Ordering {
	if a.semver != nil && b.semver != nil {
		switch a.semver.Compare(b.semver) {
		case -1:
			return Less
		case 1:
			return Greater
		default:
			return Equal
		}
	}
	switch strings.Compare(a.Raw, b.Raw) {
	case -1:
		return Less
	case 1:
		return Greater
	default:
		return Equal
	}
}

// Classify implements spec.md §4.1's classify(current, candidate) operation.
func Classify(current, candidate Version) Class {
	if current.semver == nil || candidate.semver == nil {
		if current.Raw == candidate.Raw {
			return ClassEqual
		}
		return ClassIncomparable
	}

	cur, cand := current.semver, candidate.semver
	switch cand.Compare(cur) {
	case 0:
		return ClassEqual
	case -1:
		return ClassDowngrade
	}

	switch {
	case cand.Major() != cur.Major():
		return ClassMajor
	case cand.Minor() != cur.Minor():
		return ClassMinor
	default:
		return ClassPatch
	}
}

// Greatest returns the greatest version among candidates by Cmp, or false
// if candidates is empty. Used by C2/C4 to tie-break admissible sets
// (spec.md §4.2 "Tie-break").
func Greatest(candidates []Version) (Version, bool) {
	if len(candidates) == 0 {
		return Version{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if Cmp(c, best) == Greater {
			best = c
		}
	}
	return best, true
}
