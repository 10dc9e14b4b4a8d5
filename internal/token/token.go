// Package token splits composite annotation fields into clean labels.
package token

import (
	"fmt"
	"iter"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/hurttlocker/annotally/internal/diag"
)

// DefaultSentinels are the markers treated as "no data" when a Spec has none.
var DefaultSentinels = []string{"-", ""}

// Spec is the per-category tokenization configuration.
type Spec struct {
	// Delimiters is the set of runes a field is split on. Empty means the
	// whole field is one token.
	Delimiters string `yaml:"delimiters"`
	// Sentinels are field values that produce zero tokens.
	Sentinels []string `yaml:"sentinels"`
	// Prefixes are source tags stripped from each piece (first match wins,
	// exact and case-sensitive).
	Prefixes []string `yaml:"strip_prefixes"`
	// StripPattern removes every match from each piece, e.g. `_e\d+`.
	StripPattern string `yaml:"strip_pattern" validate:"omitempty,regexp"`
	// KeepParens disables truncation at the first '('.
	KeepParens bool `yaml:"keep_parens"`
	// Fold applies NFKC normalization, for free-text categories.
	Fold bool `yaml:"fold"`

	strip *regexp.Regexp
}

// Compile validates the strip pattern and returns a Spec ready for use.
func (s Spec) Compile() (Spec, error) {
	if s.StripPattern == "" {
		return s, nil
	}
	re, err := regexp.Compile(s.StripPattern)
	if err != nil {
		return s, fmt.Errorf("strip pattern %q: %w", s.StripPattern, err)
	}
	s.strip = re
	return s, nil
}

func (s Spec) sentinels() []string {
	if s.Sentinels == nil {
		return DefaultSentinels
	}
	return s.Sentinels
}

// IsSentinel reports whether v (trimmed) is one of the configured "missing" markers.
func (s Spec) IsSentinel(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return true
	}
	for _, m := range s.sentinels() {
		if v == m {
			return true
		}
	}
	return false
}

// Tokens yields the normalized tokens of field.
func (s Spec) Tokens(field string) iter.Seq[string] {
	return func(yield func(string) bool) {
		if s.IsSentinel(field) {
			return
		}
		for _, piece := range s.split(field) {
			tok := s.clean(piece)
			if tok == "" || s.IsSentinel(tok) {
				continue
			}
			if !yield(tok) {
				return
			}
		}
	}
}

// Collect returns every token of field, in field order, duplicates kept.
func (s Spec) Collect(field string) []string {
	var out []string
	for tok := range s.Tokens(field) {
		out = append(out, tok)
	}
	return out
}

func (s Spec) split(field string) []string {
	if s.Delimiters == "" {
		return []string{field}
	}
	return strings.FieldsFunc(field, func(r rune) bool {
		return strings.ContainsRune(s.Delimiters, r)
	})
}

func (s Spec) clean(piece string) string {
	piece = strings.TrimSpace(piece)
	if s.Fold {
		piece = norm.NFKC.String(piece)
	}
	for _, p := range s.Prefixes {
		if p != "" && strings.HasPrefix(piece, p) {
			piece = piece[len(p):]
			break
		}
	}
	if s.strip != nil {
		piece = s.strip.ReplaceAllString(piece, "")
	}
	if !s.KeepParens {
		if i := strings.IndexByte(piece, '('); i >= 0 {
			piece = piece[:i]
		}
	}
	return strings.TrimSpace(piece)
}

// Split breaks a tab-delimited line into fields. A line with fewer than min
// fields is a malformed record.
func Split(line string, min int) ([]string, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Split(line, "\t")
	if len(fields) < min {
		return fields, fmt.Errorf("%w: %d fields, want at least %d", diag.ErrMalformedRecord, len(fields), min)
	}
	return fields, nil
}
