// Package resolve collapses hierarchically related family labels into their
// minimal most-specific representative set.
//
// Specificity is structural: a subfamily label is its parent label followed
// by a suffix the configured Relation accepts. The default relation accepts
// underscore-separated numeric suffixes (AA1 -> AA1_3 -> AA1_3_2); labels that
// merely share a prefix (GH1, GH13) are unrelated and both retained.
package resolve

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Relation decides whether child is a strictly more specific form of parent.
type Relation interface {
	Refines(child, parent string) bool
	Name() string
}

// NumericSuffix is the default relation: child equals parent followed by one
// or more "_<digits>" segments reaching the end of the string.
type NumericSuffix struct{}

func (NumericSuffix) Name() string { return "numeric-suffix" }

func (NumericSuffix) Refines(child, parent string) bool {
	if parent == "" || len(child) <= len(parent) || !strings.HasPrefix(child, parent) {
		return false
	}
	rest := child[len(parent):]
	for rest != "" {
		if rest[0] != '_' {
			return false
		}
		rest = rest[1:]
		n := 0
		for n < len(rest) && rest[n] >= '0' && rest[n] <= '9' {
			n++
		}
		if n == 0 {
			return false
		}
		rest = rest[n:]
	}
	return true
}

// SuffixPattern accepts child when it is parent followed by one or more
// segments each matching the pattern in full. Used for naming schemes with
// non-numeric subfamily suffixes.
type SuffixPattern struct {
	re  *regexp.Regexp
	src string
}

// NewSuffixPattern compiles pattern, anchoring repeated segments to the whole
// suffix so GH5 -> GH5a -> GH5ab chains the way numeric suffixes do.
func NewSuffixPattern(pattern string) (*SuffixPattern, error) {
	re, err := regexp.Compile(`^(?:` + pattern + `)+$`)
	if err != nil {
		return nil, fmt.Errorf("suffix pattern %q: %w", pattern, err)
	}
	return &SuffixPattern{re: re, src: pattern}, nil
}

func (p *SuffixPattern) Name() string { return "suffix:" + p.src }

func (p *SuffixPattern) Refines(child, parent string) bool {
	if parent == "" || len(child) <= len(parent) || !strings.HasPrefix(child, parent) {
		return false
	}
	return p.re.MatchString(child[len(parent):])
}

// Resolve returns the minimal most-specific subset of labels, sorted: every
// label that some other input label refines is dropped. A nil relation only
// deduplicates.
func Resolve(labels []string, rel Relation) []string {
	unique := dedupe(labels)
	if rel == nil || len(unique) < 2 {
		sort.Strings(unique)
		return unique
	}

	// Longest first; a subfamily is always longer than its parent.
	sort.Slice(unique, func(i, j int) bool {
		if len(unique[i]) != len(unique[j]) {
			return len(unique[i]) > len(unique[j])
		}
		return unique[i] < unique[j]
	})

	kept := make([]string, 0, len(unique))
	for i, cand := range unique {
		refined := false
		for _, longer := range unique[:i] {
			if rel.Refines(longer, cand) {
				refined = true
				break
			}
		}
		if !refined {
			kept = append(kept, cand)
		}
	}
	sort.Strings(kept)
	return kept
}

// Key joins a resolved set into one stable combination label.
func Key(labels []string, sep string) string {
	return strings.Join(labels, sep)
}

func dedupe(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

// Pair is a label pair that looks hierarchical but fails the relation.
type Pair struct {
	Parent string
	Child  string
}

func (p Pair) String() string { return p.Parent + " ~ " + p.Child }

// NearMisses lists pairs where child starts with parent followed by a
// separator ('_', '.', '-') yet rel does not accept them, e.g. GH5 / GH5_a.
// These are left uncollapsed and surfaced for domain review.
func NearMisses(labels []string, rel Relation) []Pair {
	if rel == nil {
		return nil
	}
	unique := dedupe(labels)
	sort.Strings(unique)

	var out []Pair
	for _, parent := range unique {
		for _, child := range unique {
			if len(child) <= len(parent)+1 || !strings.HasPrefix(child, parent) {
				continue
			}
			switch child[len(parent)] {
			case '_', '.', '-':
			default:
				continue
			}
			if rel.Refines(child, parent) {
				continue
			}
			out = append(out, Pair{Parent: parent, Child: child})
		}
	}
	return out
}
