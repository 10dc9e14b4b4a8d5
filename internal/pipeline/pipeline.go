// Package pipeline runs one aggregation: ingest every source of a profile,
// merge observations into entity records, aggregate per group and build the
// output tables and matrices. Every run starts from fresh state.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hurttlocker/annotally/internal/aggregate"
	"github.com/hurttlocker/annotally/internal/config"
	"github.com/hurttlocker/annotally/internal/diag"
	"github.com/hurttlocker/annotally/internal/export"
	"github.com/hurttlocker/annotally/internal/ingest"
	"github.com/hurttlocker/annotally/internal/matrix"
	"github.com/hurttlocker/annotally/internal/ontology"
	"github.com/hurttlocker/annotally/internal/record"
	"github.com/hurttlocker/annotally/internal/resolve"
)

// NoData marks a cell with nothing to report.
const NoData = "-"

// Options configures a run.
type Options struct {
	Profile  *config.Profile
	InputDir string
	// Workers bounds concurrent ingestion and aggregation; zero means
	// GOMAXPROCS.
	Workers     int
	MaxFileSize int64
	// Ontology is required when a category splits by namespace.
	Ontology *ontology.Ontology
	Logger   *zap.Logger
}

// Stats are the run counters.
type Stats struct {
	FilesScanned  int
	FilesImported int
	FilesSkipped  int
	Observations  int
	Entities      int
	Groups        int
	Duration      time.Duration
}

// Output is everything a run produced.
type Output struct {
	Profile string
	// Tables lists the artifacts in write order: detail, summary, then every
	// matrix and class matrix.
	Tables    []export.Table
	Summaries []aggregate.GroupSummary
	// Matrices and Classes are keyed by category.
	Matrices    map[string]*matrix.Matrix
	Classes     map[string]*matrix.Matrix
	Diagnostics []diag.Diagnostic
	// NearMisses lists, per collapsing category, label pairs that look
	// related but were kept apart.
	NearMisses map[string][]resolve.Pair
	Stats      Stats
}

// Run executes the profile against opts.InputDir. When no entity survives
// ingestion it returns the partial output (counters and diagnostics) with
// diag.ErrNoValidRecords.
func Run(ctx context.Context, opts Options) (*Output, error) {
	start := time.Now()
	p := opts.Profile
	if p == nil {
		return nil, errors.New("pipeline: profile is required")
	}
	if p.NeedsOntology() && opts.Ontology == nil {
		return nil, fmt.Errorf("profile %s splits ontology namespaces but no ontology was loaded", p.Name)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	rules, err := p.Rules()
	if err != nil {
		return nil, err
	}

	engine := ingest.NewEngine(ingest.EngineOptions{
		Workers:     workers,
		MaxFileSize: opts.MaxFileSize,
		Logger:      logger,
	})
	res, err := engine.Run(ctx, opts.InputDir, p.Sources)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}

	collector := diag.NewCollector(logger)
	collector.AddAll(res.Diagnostics)

	merger := record.NewMerger(p.CategoryNames(), p.Replace())
	for _, b := range res.Batches {
		for _, obs := range b.Observations {
			if err := merger.Add(obs); err != nil {
				d := diag.FromError(err)
				d.Group, d.Source, d.File, d.Line = obs.Group, obs.Source, obs.File, obs.Line
				collector.Add(d)
			}
		}
	}

	out := &Output{
		Profile:    p.Name,
		Matrices:   map[string]*matrix.Matrix{},
		Classes:    map[string]*matrix.Matrix{},
		NearMisses: map[string][]resolve.Pair{},
		Stats: Stats{
			FilesScanned:  res.FilesScanned,
			FilesImported: res.FilesImported,
			FilesSkipped:  res.FilesSkipped,
			Observations:  res.Observations,
			Entities:      merger.Len(),
		},
	}
	if merger.Len() == 0 {
		out.Diagnostics = collector.Items()
		out.Stats.Duration = time.Since(start)
		return out, diag.ErrNoValidRecords
	}

	records := merger.Records()
	agg, err := aggregateRecords(ctx, rules, records, workers)
	if err != nil {
		return nil, err
	}
	out.Summaries = agg.Summaries()
	out.Stats.Groups = len(out.Summaries)

	for _, rule := range rules {
		if rule.Relation == nil {
			continue
		}
		if pairs := resolve.NearMisses(agg.Vocabulary(rule.Category), rule.Relation); len(pairs) > 0 {
			out.NearMisses[rule.Category] = pairs
			logger.Info("near-miss labels kept apart",
				zap.String("category", rule.Category),
				zap.Int("pairs", len(pairs)))
		}
	}

	if p.Outputs.Detail != "" {
		out.Tables = append(out.Tables, detailTable(p, records))
	}
	if p.Outputs.Summary != "" {
		out.Tables = append(out.Tables, summaryTable(p, out.Summaries, opts.Ontology))
	}
	for _, c := range p.Categories {
		if c.Matrix == nil {
			continue
		}
		m := matrix.Build(agg.Frequencies(c.Name), matrix.Options{Columns: c.Matrix.Columns})
		out.Matrices[c.Name] = m
		out.Tables = append(out.Tables, matrixTable(c.Matrix.File, p.Group(), m))

		if c.Matrix.ClassFile != "" {
			cm := m.Collapse(c.Matrix.ClassList(), c.Matrix.Total)
			out.Classes[c.Name] = cm
			out.Tables = append(out.Tables, matrixTable(c.Matrix.ClassFile, p.Group(), cm))
		}
	}

	out.Diagnostics = collector.Items()
	out.Stats.Duration = time.Since(start)
	logger.Info("aggregation finished",
		zap.String("profile", p.Name),
		zap.Int("groups", out.Stats.Groups),
		zap.Int("entities", out.Stats.Entities),
		zap.Int("diagnostics", len(out.Diagnostics)),
		zap.Duration("duration", out.Stats.Duration))
	return out, nil
}

// aggregateRecords splits records by group into worker partitions, builds
// one Aggregator per partition and reduces them. A group never spans two
// partitions, so first-encounter tie breaking stays deterministic.
func aggregateRecords(ctx context.Context, rules []aggregate.Rule, records []*record.EntityRecord, workers int) (*aggregate.Aggregator, error) {
	var groups []string
	byGroup := map[string][]*record.EntityRecord{}
	for _, r := range records {
		if _, ok := byGroup[r.Group]; !ok {
			groups = append(groups, r.Group)
		}
		byGroup[r.Group] = append(byGroup[r.Group], r)
	}
	if workers > len(groups) {
		workers = len(groups)
	}

	parts := make([]*aggregate.Aggregator, workers)
	eg, egCtx := errgroup.WithContext(ctx)
	for w := range workers {
		eg.Go(func() error {
			a := aggregate.New(rules)
			for i := w; i < len(groups); i += workers {
				if err := egCtx.Err(); err != nil {
					return err
				}
				for _, r := range byGroup[groups[i]] {
					a.Add(r)
				}
			}
			parts[w] = a
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	total := aggregate.New(rules)
	for _, a := range parts {
		total.Merge(a)
	}
	return total, nil
}

func detailTable(p *config.Profile, records []*record.EntityRecord) export.Table {
	header := []string{p.Group(), p.Entity()}
	for _, m := range p.Measures {
		header = append(header, headerOr(m.DetailHeader, m.Name))
	}
	for _, c := range p.Categories {
		header = append(header, c.DetailColumn())
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		row := []string{r.Group, r.Key}
		for _, m := range p.Measures {
			v, ok := r.Measures[m.Name]
			if !ok {
				row = append(row, NoData)
				continue
			}
			row = append(row, formatNumber(v))
		}
		for _, c := range p.Categories {
			row = append(row, orNoData(strings.Join(r.Field(c.Name).Unique(), c.Rule().ListSep())))
		}
		rows = append(rows, row)
	}
	return export.Table{Name: p.Outputs.Detail, Header: header, Rows: rows}
}

func summaryTable(p *config.Profile, summaries []aggregate.GroupSummary, onto *ontology.Ontology) export.Table {
	header := []string{p.Group()}
	if p.EntitiesHeader != "" {
		header = append(header, p.EntitiesHeader)
	}
	for _, m := range p.Measures {
		header = append(header, headerOr(m.Header, m.Name))
	}
	for _, c := range p.Categories {
		if !c.Namespaces {
			header = append(header, c.SummaryHeader())
			continue
		}
		for _, ns := range ontology.Namespaces {
			header = append(header, ns+"_"+c.SummaryHeader()+"_IDs", ns+"_Names")
		}
	}

	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		row := []string{s.Group}
		if p.EntitiesHeader != "" {
			row = append(row, strconv.Itoa(s.Entities))
		}
		for _, m := range p.Measures {
			v, ok := s.Medians[m.Name]
			if !ok {
				row = append(row, NoData)
				continue
			}
			row = append(row, formatNumber(v))
		}
		for _, c := range p.Categories {
			if c.Namespaces {
				row = append(row, splitNamespaces(labels(s, c), onto, c.Rule().ListSep())...)
				continue
			}
			row = append(row, orNoData(s.Rendered[c.Name]))
		}
		rows = append(rows, row)
	}
	return export.Table{Name: p.Outputs.Summary, Header: header, Rows: rows}
}

// labels returns the distinct labels a group carries in category c.
func labels(s aggregate.GroupSummary, c config.Category) []string {
	if fm, ok := s.Frequencies[c.Name]; ok {
		out := make([]string, 0, len(fm))
		for k := range fm {
			out = append(out, k)
		}
		sort.Strings(out)
		return out
	}
	return s.Lists[c.Name]
}

// splitNamespaces buckets ontology IDs by namespace and renders an ID column
// and a name column per namespace. IDs the ontology does not know are
// dropped.
func splitNamespaces(ids []string, onto *ontology.Ontology, sep string) []string {
	type entry struct{ id, name string }
	buckets := map[string][]entry{}
	seen := map[string]bool{}
	for _, id := range ids {
		term, ok := onto.Lookup(id)
		if !ok || term.Short() == "" || seen[term.ID] {
			continue
		}
		seen[term.ID] = true
		buckets[term.Short()] = append(buckets[term.Short()], entry{term.ID, term.Name})
	}

	out := make([]string, 0, 2*len(ontology.Namespaces))
	for _, ns := range ontology.Namespaces {
		b := buckets[ns]
		sort.Slice(b, func(i, j int) bool { return b[i].id < b[j].id })
		idList := make([]string, len(b))
		names := make([]string, len(b))
		for i, e := range b {
			idList[i], names[i] = e.id, e.name
		}
		out = append(out, orNoData(strings.Join(idList, sep)), orNoData(strings.Join(names, sep)))
	}
	return out
}

func matrixTable(name, keyHeader string, m *matrix.Matrix) export.Table {
	header, rows := m.Table(keyHeader)
	return export.Table{Name: name, Header: header, Rows: rows}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func orNoData(s string) string {
	if s == "" {
		return NoData
	}
	return s
}

func headerOr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
