// Package record merges annotation observations arriving from independent
// sources into one record per entity.
package record

import (
	"fmt"
	"sort"

	"github.com/hurttlocker/annotally/internal/diag"
)

// Observation is one parsed annotation: the tokens one source emitted for one
// category of one entity. Tokens are already normalized by the token parser;
// an empty, non-nil Tokens slice means the source annotated the category but
// produced nothing (a sentinel field).
type Observation struct {
	Group    string
	Entity   string
	Category string
	Tokens   []string
	Measures map[string]float64

	Source string
	File   string
	Line   int
}

// Field is the value of one category on a record. Observed=false is the
// explicit "no data" marker: no source reported this category for the
// entity. Observed=true with no tokens means annotated but empty. Tokens
// keep every occurrence in arrival order; counting rules dedupe as needed.
type Field struct {
	Observed bool
	Tokens   []string
}

// EntityRecord holds everything known about one entity.
type EntityRecord struct {
	Key      string
	Group    string
	Fields   map[string]*Field
	Measures map[string]float64
	Sources  []string
}

// Field returns the named category, never nil.
func (r *EntityRecord) Field(category string) *Field {
	if f, ok := r.Fields[category]; ok {
		return f
	}
	return &Field{}
}

// Merger builds EntityRecords keyed by entity identifier.
type Merger struct {
	categories []string
	replace    map[string]bool
	records    map[string]*EntityRecord
	// owner tracks which source populated each category, for replace policy.
	owner map[string]map[string]string
}

// NewMerger returns a Merger for the given categories. Categories listed in
// replace are overwritten by a later source instead of extended.
func NewMerger(categories []string, replace map[string]bool) *Merger {
	if replace == nil {
		replace = map[string]bool{}
	}
	return &Merger{
		categories: append([]string(nil), categories...),
		replace:    replace,
		records:    make(map[string]*EntityRecord),
		owner:      make(map[string]map[string]string),
	}
}

// Add folds one observation into its entity's record. An entity already
// recorded under another group is rejected as a malformed record.
func (m *Merger) Add(obs Observation) error {
	if obs.Entity == "" {
		return fmt.Errorf("%w: empty entity key", diag.ErrMalformedRecord)
	}
	rec, ok := m.records[obs.Entity]
	if !ok {
		rec = m.newRecord(obs.Entity, obs.Group)
	} else if rec.Group != obs.Group {
		return fmt.Errorf("%w: entity %s already in group %s, seen again in %s",
			diag.ErrMalformedRecord, obs.Entity, rec.Group, obs.Group)
	}

	if obs.Source != "" && !contains(rec.Sources, obs.Source) {
		rec.Sources = append(rec.Sources, obs.Source)
	}
	for k, v := range obs.Measures {
		rec.Measures[k] = v
	}
	if obs.Category == "" {
		return nil
	}

	f, ok := rec.Fields[obs.Category]
	if !ok {
		f = &Field{}
		rec.Fields[obs.Category] = f
	}
	owners := m.owner[obs.Entity]
	prev, owned := owners[obs.Category]
	if m.replace[obs.Category] && owned && prev != obs.Source {
		f.Tokens = nil
	}
	owners[obs.Category] = obs.Source

	f.Observed = true
	f.Tokens = append(f.Tokens, obs.Tokens...)
	return nil
}

// Unique returns the distinct tokens of f in first-seen order.
func (f *Field) Unique() []string {
	out := make([]string, 0, len(f.Tokens))
	for _, t := range f.Tokens {
		if !contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

func (m *Merger) newRecord(key, group string) *EntityRecord {
	rec := &EntityRecord{
		Key:      key,
		Group:    group,
		Fields:   make(map[string]*Field, len(m.categories)),
		Measures: map[string]float64{},
	}
	for _, c := range m.categories {
		rec.Fields[c] = &Field{}
	}
	m.records[key] = rec
	m.owner[key] = map[string]string{}
	return rec
}

// Len returns the number of distinct entities.
func (m *Merger) Len() int { return len(m.records) }

// Records returns all records sorted by group then key.
func (m *Merger) Records() []*EntityRecord {
	out := make([]*EntityRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
