// Package aggregate rolls entity records up into per-group summaries:
// frequency maps over resolved labels, top-N rankings of free-text tokens,
// set unions and measure medians.
//
// Aggregation is order independent: feeding the same records in any order,
// or merging partial aggregators built from any partition of them, yields
// the same frequency maps and sets. Top-N ties are the one order-sensitive
// element and resolve by first encounter.
package aggregate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hurttlocker/annotally/internal/record"
	"github.com/hurttlocker/annotally/internal/resolve"
)

// Mode selects how a category is summarized.
type Mode string

const (
	// ModeCount counts each resolved label once per entity carrying it.
	ModeCount Mode = "count"
	// ModeCombination counts each entity's resolved label set as one joined key.
	ModeCombination Mode = "combination"
	// ModeTop renders the N most frequent tokens as "token (count)".
	ModeTop Mode = "top"
	// ModeRanked lists every token by descending frequency without counts.
	ModeRanked Mode = "ranked"
	// ModeSet lists the sorted union of tokens.
	ModeSet Mode = "set"
)

// DefaultCombinationSep joins a resolved label set into one combination key.
const DefaultCombinationSep = "|"

// Rule configures the summary of one category.
type Rule struct {
	Category string
	Mode     Mode
	// TopN bounds ModeTop output; zero or negative keeps every token.
	TopN int
	// Relation collapses labels before counting; nil disables collapsing.
	Relation resolve.Relation
	// Sep joins combination keys (ModeCombination) or rendered lists.
	Sep string
}

func (r Rule) counts() bool {
	return r.Mode == ModeCount || r.Mode == ModeCombination
}

// ListSep joins a category's tokens in rendered columns. Combination keys
// already use Sep, so their lists fall back to ", ".
func (r Rule) ListSep() string {
	if r.Sep != "" && r.Mode != ModeCombination {
		return r.Sep
	}
	return ", "
}

// FrequencyMap maps a label (or label combination) to an occurrence count.
type FrequencyMap map[string]int

// Add increments every label in other into f.
func (f FrequencyMap) Add(other FrequencyMap) {
	for k, v := range other {
		f[k] += v
	}
}

// tally counts tokens and remembers first-encounter order for ties.
type tally struct {
	counts map[string]int
	order  []string
}

func newTally() *tally { return &tally{counts: map[string]int{}} }

func (t *tally) add(tok string, n int) {
	if _, ok := t.counts[tok]; !ok {
		t.order = append(t.order, tok)
	}
	t.counts[tok] += n
}

func (t *tally) ranked() []string {
	out := append([]string(nil), t.order...)
	sort.SliceStable(out, func(i, j int) bool {
		return t.counts[out[i]] > t.counts[out[j]]
	})
	return out
}

type groupState struct {
	entities int
	freq     map[string]FrequencyMap
	tallies  map[string]*tally
	sets     map[string]map[string]struct{}
	measures map[string][]float64
}

func newGroupState() *groupState {
	return &groupState{
		freq:     map[string]FrequencyMap{},
		tallies:  map[string]*tally{},
		sets:     map[string]map[string]struct{}{},
		measures: map[string][]float64{},
	}
}

// Aggregator accumulates records per group. It is not safe for concurrent
// use; partition records by group across workers and Merge the results.
type Aggregator struct {
	rules  []Rule
	groups map[string]*groupState
	vocab  map[string]map[string]struct{}
}

// New returns an Aggregator applying rules.
func New(rules []Rule) *Aggregator {
	return &Aggregator{
		rules:  append([]Rule(nil), rules...),
		groups: map[string]*groupState{},
		vocab:  map[string]map[string]struct{}{},
	}
}

// Rules returns the configured rules.
func (a *Aggregator) Rules() []Rule { return a.rules }

func (a *Aggregator) group(key string) *groupState {
	g, ok := a.groups[key]
	if !ok {
		g = newGroupState()
		a.groups[key] = g
	}
	return g
}

// Add folds one entity record into its group.
func (a *Aggregator) Add(rec *record.EntityRecord) {
	g := a.group(rec.Group)
	g.entities++
	for name, v := range rec.Measures {
		g.measures[name] = append(g.measures[name], v)
	}

	for _, rule := range a.rules {
		f := rec.Field(rule.Category)
		if !f.Observed || len(f.Tokens) == 0 {
			continue
		}
		switch rule.Mode {
		case ModeCount, ModeCombination:
			a.addCounts(g, rule, f.Tokens)
		case ModeTop, ModeRanked:
			t, ok := g.tallies[rule.Category]
			if !ok {
				t = newTally()
				g.tallies[rule.Category] = t
			}
			for _, tok := range f.Tokens {
				t.add(tok, 1)
			}
		case ModeSet:
			s, ok := g.sets[rule.Category]
			if !ok {
				s = map[string]struct{}{}
				g.sets[rule.Category] = s
			}
			for _, tok := range f.Tokens {
				s[tok] = struct{}{}
			}
		}
	}
}

func (a *Aggregator) addCounts(g *groupState, rule Rule, tokens []string) {
	if rule.Relation != nil {
		v, ok := a.vocab[rule.Category]
		if !ok {
			v = map[string]struct{}{}
			a.vocab[rule.Category] = v
		}
		for _, tok := range tokens {
			v[tok] = struct{}{}
		}
	}

	labels := resolve.Resolve(tokens, rule.Relation)
	fm, ok := g.freq[rule.Category]
	if !ok {
		fm = FrequencyMap{}
		g.freq[rule.Category] = fm
	}
	if rule.Mode == ModeCombination {
		sep := rule.Sep
		if sep == "" {
			sep = DefaultCombinationSep
		}
		fm[resolve.Key(labels, sep)]++
		return
	}
	for _, l := range labels {
		fm[l]++
	}
}

// Merge folds other into a. Both must share the same rules.
func (a *Aggregator) Merge(other *Aggregator) {
	for cat, words := range other.vocab {
		v, ok := a.vocab[cat]
		if !ok {
			v = map[string]struct{}{}
			a.vocab[cat] = v
		}
		for w := range words {
			v[w] = struct{}{}
		}
	}

	for _, key := range sortedKeys(other.groups) {
		src := other.groups[key]
		dst := a.group(key)
		dst.entities += src.entities
		for cat, fm := range src.freq {
			d, ok := dst.freq[cat]
			if !ok {
				d = FrequencyMap{}
				dst.freq[cat] = d
			}
			d.Add(fm)
		}
		for cat, t := range src.tallies {
			d, ok := dst.tallies[cat]
			if !ok {
				d = newTally()
				dst.tallies[cat] = d
			}
			for _, tok := range t.order {
				d.add(tok, t.counts[tok])
			}
		}
		for cat, s := range src.sets {
			d, ok := dst.sets[cat]
			if !ok {
				d = map[string]struct{}{}
				dst.sets[cat] = d
			}
			for tok := range s {
				d[tok] = struct{}{}
			}
		}
		for name, vals := range src.measures {
			dst.measures[name] = append(dst.measures[name], vals...)
		}
	}
}

// Groups returns the group keys seen so far, sorted.
func (a *Aggregator) Groups() []string { return sortedKeys(a.groups) }

// Frequencies returns the per-group frequency maps of a counted category.
// Every group seen by the aggregator is present, with an empty map when it
// carried none of the category's labels.
func (a *Aggregator) Frequencies(category string) map[string]FrequencyMap {
	out := make(map[string]FrequencyMap, len(a.groups))
	for key, g := range a.groups {
		fm := FrequencyMap{}
		fm.Add(g.freq[category])
		out[key] = fm
	}
	return out
}

// Vocabulary returns every raw label seen in a collapsing category, sorted.
func (a *Aggregator) Vocabulary(category string) []string {
	return sortedKeys(a.vocab[category])
}

// GroupSummary is the rolled-up view of one group.
type GroupSummary struct {
	Group       string
	Entities    int
	Frequencies map[string]FrequencyMap
	Lists       map[string][]string
	Rendered    map[string]string
	Medians     map[string]float64
}

// Summaries returns one summary per group, sorted by group key.
func (a *Aggregator) Summaries() []GroupSummary {
	out := make([]GroupSummary, 0, len(a.groups))
	for _, key := range a.Groups() {
		g := a.groups[key]
		s := GroupSummary{
			Group:       key,
			Entities:    g.entities,
			Frequencies: map[string]FrequencyMap{},
			Lists:       map[string][]string{},
			Rendered:    map[string]string{},
			Medians:     map[string]float64{},
		}
		for _, rule := range a.rules {
			switch rule.Mode {
			case ModeCount, ModeCombination:
				fm := FrequencyMap{}
				fm.Add(g.freq[rule.Category])
				s.Frequencies[rule.Category] = fm
				s.Rendered[rule.Category] = renderCounts(fm)
			case ModeTop:
				s.Lists[rule.Category], s.Rendered[rule.Category] = top(g.tallies[rule.Category], rule.TopN, rule.ListSep())
			case ModeRanked:
				var list []string
				if t := g.tallies[rule.Category]; t != nil {
					list = t.ranked()
				}
				s.Lists[rule.Category] = list
				s.Rendered[rule.Category] = strings.Join(list, rule.ListSep())
			case ModeSet:
				list := sortedKeys(g.sets[rule.Category])
				s.Lists[rule.Category] = list
				s.Rendered[rule.Category] = strings.Join(list, rule.ListSep())
			}
		}
		for name, vals := range g.measures {
			if m, ok := Median(vals); ok {
				s.Medians[name] = m
			}
		}
		out = append(out, s)
	}
	return out
}

func top(t *tally, n int, sep string) ([]string, string) {
	if t == nil {
		return nil, ""
	}
	ranked := t.ranked()
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	parts := make([]string, len(ranked))
	for i, tok := range ranked {
		parts[i] = fmt.Sprintf("%s (%d)", tok, t.counts[tok])
	}
	return ranked, strings.Join(parts, sep)
}

// Top ranks tokens by frequency and renders the n most frequent as
// "token (count)" joined by ", ", ties broken by first encounter.
func Top(tokens []string, n int) string {
	t := newTally()
	for _, tok := range tokens {
		t.add(tok, 1)
	}
	_, s := top(t, n, ", ")
	return s
}

func renderCounts(fm FrequencyMap) string {
	keys := sortedKeys(fm)
	sort.SliceStable(keys, func(i, j int) bool { return fm[keys[i]] > fm[keys[j]] })
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s (%d)", k, fm[k])
	}
	return strings.Join(parts, ", ")
}

// Median returns the median of vals; even-length inputs average the two
// middle values.
func Median(vals []float64) (float64, bool) {
	if len(vals) == 0 {
		return 0, false
	}
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 0 {
		return (s[mid-1] + s[mid]) / 2, true
	}
	return s[mid], true
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
