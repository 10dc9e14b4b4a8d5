package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hurttlocker/annotally/internal/token"
)

// HeaderMode says where a table's column names come from.
type HeaderMode string

const (
	// HeaderNone means columns are addressed by index only.
	HeaderNone HeaderMode = "none"
	// HeaderFirst takes names from the first non-comment line.
	HeaderFirst HeaderMode = "first"
	// HeaderHash takes names from the first line starting with a single '#'
	// (eggNOG-mapper's "#query" line); "##" lines are comments.
	HeaderHash HeaderMode = "hash"
)

// Layout is the validated column schema of one tab-delimited source.
//
// Column references are header names, or "$N" for the 0-based field index.
type Layout struct {
	Header    HeaderMode `yaml:"header" validate:"omitempty,oneof=none first hash"`
	Comment   string     `yaml:"comment"`
	MinFields int        `yaml:"min_fields" validate:"gte=0"`
	Entity    string     `yaml:"entity" validate:"required"`
	When      *Filter    `yaml:"when"`
	Columns   []Column   `yaml:"columns" validate:"dive"`
	Measures  []Measure  `yaml:"measures" validate:"dive"`
}

// Column maps one or more fields to a category.
type Column struct {
	Category string   `yaml:"category" validate:"required"`
	From     []string `yaml:"from" validate:"required,min=1,dive,required"`
	// JoinSep joins multi-field references. A sentinel first field makes the
	// whole value a sentinel; later sentinel fields are dropped.
	JoinSep string     `yaml:"join_sep"`
	When    *Filter    `yaml:"when"`
	Keep    []string   `yaml:"keep_prefix"`
	Drop    []string   `yaml:"drop_prefix"`
	Token   token.Spec `yaml:"token"`
}

// Filter admits a row (or a column value) when a field is one of In.
type Filter struct {
	Column string   `yaml:"column" validate:"required"`
	In     []string `yaml:"in" validate:"required,min=1"`
}

// Measure is a numeric per-entity field such as sequence length.
type Measure struct {
	Name string `yaml:"name" validate:"required"`
	From string `yaml:"from" validate:"required"`
}

func (l Layout) header() HeaderMode {
	if l.Header == "" {
		return HeaderNone
	}
	return l.Header
}

func (l Layout) comment() string {
	if l.Comment == "" {
		return "#"
	}
	return l.Comment
}

// usesNames reports whether any reference needs a header line.
func (l Layout) usesNames() bool {
	for _, ref := range l.refs() {
		if _, ok := parseIndex(ref); !ok {
			return true
		}
	}
	return false
}

func (l Layout) refs() []string {
	out := []string{l.Entity}
	if l.When != nil {
		out = append(out, l.When.Column)
	}
	for _, c := range l.Columns {
		out = append(out, c.From...)
		if c.When != nil {
			out = append(out, c.When.Column)
		}
	}
	for _, m := range l.Measures {
		out = append(out, m.From)
	}
	return out
}

func parseIndex(ref string) (int, bool) {
	if !strings.HasPrefix(ref, "$") {
		return 0, false
	}
	n, err := strconv.Atoi(ref[1:])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// bound is a Layout with every reference resolved to a field index.
type bound struct {
	entity   int
	when     *boundFilter
	columns  []boundColumn
	measures []boundMeasure
	min      int
}

type boundFilter struct {
	idx int
	in  map[string]struct{}
}

func (f *boundFilter) admits(fields []string) bool {
	if f == nil {
		return true
	}
	_, ok := f.in[strings.TrimSpace(fields[f.idx])]
	return ok
}

type boundColumn struct {
	Column
	idx  []int
	when *boundFilter
	spec token.Spec
}

type boundMeasure struct {
	name string
	idx  int
}

// bind resolves l against a header (nil when the file has none).
func (l Layout) bind(header []string) (*bound, error) {
	names := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if _, dup := names[h]; !dup {
			names[h] = i
		}
	}

	b := &bound{min: l.MinFields}
	resolveRef := func(ref string) (int, error) {
		idx, ok := parseIndex(ref)
		if !ok {
			if idx, ok = names[ref]; !ok {
				return 0, fmt.Errorf("column %q not found in header", ref)
			}
		}
		if idx+1 > b.min {
			b.min = idx + 1
		}
		return idx, nil
	}
	bindFilter := func(f *Filter) (*boundFilter, error) {
		if f == nil {
			return nil, nil
		}
		idx, err := resolveRef(f.Column)
		if err != nil {
			return nil, err
		}
		in := make(map[string]struct{}, len(f.In))
		for _, v := range f.In {
			in[v] = struct{}{}
		}
		return &boundFilter{idx: idx, in: in}, nil
	}

	var err error
	if b.entity, err = resolveRef(l.Entity); err != nil {
		return nil, err
	}
	if b.when, err = bindFilter(l.When); err != nil {
		return nil, err
	}
	for _, c := range l.Columns {
		bc := boundColumn{Column: c}
		for _, ref := range c.From {
			idx, err := resolveRef(ref)
			if err != nil {
				return nil, err
			}
			bc.idx = append(bc.idx, idx)
		}
		if bc.when, err = bindFilter(c.When); err != nil {
			return nil, err
		}
		if bc.spec, err = c.Token.Compile(); err != nil {
			return nil, fmt.Errorf("category %s: %w", c.Category, err)
		}
		b.columns = append(b.columns, bc)
	}
	for _, m := range l.Measures {
		idx, err := resolveRef(m.From)
		if err != nil {
			return nil, err
		}
		b.measures = append(b.measures, boundMeasure{name: m.Name, idx: idx})
	}
	return b, nil
}

// value returns the raw field for a column, joining multi-field references.
func (c boundColumn) value(fields []string) string {
	if len(c.idx) == 1 {
		return fields[c.idx[0]]
	}
	first := strings.TrimSpace(fields[c.idx[0]])
	if c.spec.IsSentinel(first) {
		return ""
	}
	parts := []string{first}
	for _, i := range c.idx[1:] {
		if v := strings.TrimSpace(fields[i]); !c.spec.IsSentinel(v) {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, c.JoinSep)
}

// tokens applies the column's token spec and prefix filters.
func (c boundColumn) tokens(raw string) []string {
	out := make([]string, 0, 4)
	for tok := range c.spec.Tokens(raw) {
		if len(c.Keep) > 0 && !hasPrefix(tok, c.Keep) {
			continue
		}
		if hasPrefix(tok, c.Drop) {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func hasPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
