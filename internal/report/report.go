// Package report renders a plain-text account of an aggregation run: what
// was read, what was recovered from, and which labels dominate.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hurttlocker/annotally/internal/aggregate"
	"github.com/hurttlocker/annotally/internal/diag"
	"github.com/hurttlocker/annotally/internal/pipeline"
)

// DefaultTopLabels is the number of labels listed per counted category.
const DefaultTopLabels = 5

type LabelCount struct {
	Label string
	Count int
}

type CategoryReport struct {
	Category string
	Distinct int
	Total    int
	Top      []LabelCount
}

type Report struct {
	Profile           string
	Stats             pipeline.Stats
	DiagnosticsByKind map[string]int
	MissingSources    []string
	NearMisses        map[string][]string
	Categories        []CategoryReport
	Artifacts         []string
}

type Options struct {
	// TopLabels bounds each category's label list; zero means
	// DefaultTopLabels.
	TopLabels int
	// Written lists the artifact paths, when the caller wrote any.
	Written []string
}

// BuildReport summarizes a pipeline output.
func BuildReport(out *pipeline.Output, opts Options) Report {
	n := opts.TopLabels
	if n <= 0 {
		n = DefaultTopLabels
	}

	r := Report{
		Profile:           out.Profile,
		Stats:             out.Stats,
		DiagnosticsByKind: map[string]int{},
		NearMisses:        map[string][]string{},
		Artifacts:         append([]string(nil), opts.Written...),
	}
	for _, d := range out.Diagnostics {
		r.DiagnosticsByKind[string(d.Kind)]++
		if d.Kind == diag.KindMissingSource {
			r.MissingSources = append(r.MissingSources, d.File)
		}
	}
	for cat, pairs := range out.NearMisses {
		for _, p := range pairs {
			r.NearMisses[cat] = append(r.NearMisses[cat], p.String())
		}
	}

	totals := map[string]aggregate.FrequencyMap{}
	for _, s := range out.Summaries {
		for cat, fm := range s.Frequencies {
			t, ok := totals[cat]
			if !ok {
				t = aggregate.FrequencyMap{}
				totals[cat] = t
			}
			t.Add(fm)
		}
	}
	cats := make([]string, 0, len(totals))
	for cat := range totals {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	for _, cat := range cats {
		r.Categories = append(r.Categories, categoryReport(cat, totals[cat], n))
	}
	return r
}

func categoryReport(cat string, fm aggregate.FrequencyMap, n int) CategoryReport {
	items := make([]LabelCount, 0, len(fm))
	total := 0
	for k, v := range fm {
		items = append(items, LabelCount{Label: k, Count: v})
		total += v
	}
	sortCounts(items)
	cr := CategoryReport{Category: cat, Distinct: len(items), Total: total}
	if len(items) > n {
		items = items[:n]
	}
	cr.Top = items
	return cr
}

// sortCounts orders by count descending, ties by label.
func sortCounts(items []LabelCount) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Count == items[j].Count {
			return items[i].Label < items[j].Label
		}
		return items[i].Count > items[j].Count
	})
}

// Warnings lists conditions a reader should look at before trusting the
// tables.
func Warnings(r Report) []string {
	warnings := []string{}
	if n := len(r.MissingSources); n > 0 {
		warnings = append(warnings, fmt.Sprintf("%d expected source file(s) missing", n))
	}
	if n := r.DiagnosticsByKind[string(diag.KindMalformedRecord)]; n > 0 {
		warnings = append(warnings, fmt.Sprintf("%s malformed record(s) skipped", humanize.Comma(int64(n))))
	}
	for _, cat := range sortedKeys(r.NearMisses) {
		warnings = append(warnings, fmt.Sprintf("%s: %d label pair(s) look related but were not collapsed",
			cat, len(r.NearMisses[cat])))
	}
	return warnings
}

// RenderReport formats r as text.
func RenderReport(r Report) string {
	var b strings.Builder
	b.WriteString("annotally run report\n")
	b.WriteString(fmt.Sprintf("Profile: %s\n", r.Profile))
	b.WriteString(fmt.Sprintf("Files: %s scanned, %s imported, %s skipped\n",
		humanize.Comma(int64(r.Stats.FilesScanned)),
		humanize.Comma(int64(r.Stats.FilesImported)),
		humanize.Comma(int64(r.Stats.FilesSkipped))))
	b.WriteString(fmt.Sprintf("Observations: %s\n", humanize.Comma(int64(r.Stats.Observations))))
	b.WriteString(fmt.Sprintf("Entities: %s in %s group(s)\n",
		humanize.Comma(int64(r.Stats.Entities)), humanize.Comma(int64(r.Stats.Groups))))
	if r.Stats.Duration > 0 {
		b.WriteString(fmt.Sprintf("Duration: %s\n", r.Stats.Duration.Round(time.Millisecond)))
	}

	b.WriteString("\nDiagnostics\n")
	if len(r.DiagnosticsByKind) == 0 {
		b.WriteString("(none)\n")
	}
	for _, line := range formatSortedCounts(r.DiagnosticsByKind) {
		b.WriteString(line + "\n")
	}

	b.WriteString("\nAttention\n")
	warnings := Warnings(r)
	if len(warnings) == 0 {
		b.WriteString("- OK: nothing to review\n")
	}
	for _, w := range warnings {
		b.WriteString("- WARN: " + w + "\n")
	}
	for _, cat := range sortedKeys(r.NearMisses) {
		for _, p := range r.NearMisses[cat] {
			b.WriteString(fmt.Sprintf("  %s: %s\n", cat, p))
		}
	}

	for _, c := range r.Categories {
		b.WriteString(fmt.Sprintf("\nTop labels (%s, %s distinct)\n", c.Category, humanize.Comma(int64(c.Distinct))))
		if len(c.Top) == 0 {
			b.WriteString("(none)\n")
			continue
		}
		for _, lc := range c.Top {
			pct := 0.0
			if c.Total > 0 {
				pct = float64(lc.Count) / float64(c.Total) * 100
			}
			b.WriteString(fmt.Sprintf("- %s: %s (%.1f%%)\n", lc.Label, humanize.Comma(int64(lc.Count)), pct))
		}
	}

	if len(r.Artifacts) > 0 {
		b.WriteString("\nWritten\n")
		for _, a := range r.Artifacts {
			b.WriteString("- " + a + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatSortedCounts(m map[string]int) []string {
	items := make([]LabelCount, 0, len(m))
	total := 0
	for k, v := range m {
		items = append(items, LabelCount{Label: k, Count: v})
		total += v
	}
	sortCounts(items)
	out := make([]string, 0, len(items))
	for _, it := range items {
		pct := 0.0
		if total > 0 {
			pct = (float64(it.Count) / float64(total)) * 100
		}
		out = append(out, fmt.Sprintf("- %s: %s (%.1f%%)", it.Label, humanize.Comma(int64(it.Count)), pct))
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
