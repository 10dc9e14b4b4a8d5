package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hurttlocker/annotally/internal/diag"
	"github.com/hurttlocker/annotally/internal/record"
)

// EngineOptions configures an Engine.
type EngineOptions struct {
	// Workers bounds concurrent group imports; zero means GOMAXPROCS.
	Workers     int
	MaxFileSize int64
	Logger      *zap.Logger
}

// Engine discovers and imports every source, one group per worker.
type Engine struct {
	workers     int
	maxFileSize int64
	logger      *zap.Logger
}

// NewEngine creates an Engine.
func NewEngine(opts EngineOptions) *Engine {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{workers: workers, maxFileSize: opts.MaxFileSize, logger: logger}
}

type groupJobs struct {
	group string
	jobs  []Job
}

// Run discovers files for every source under root and imports them. Groups
// are independent, so each is parsed by its own worker; batches come back
// sorted by group and, within a group, in source then path order.
func (e *Engine) Run(ctx context.Context, root string, sources []Source) (*Result, error) {
	result := &Result{}
	importers := make(map[string]Importer, len(sources))
	byGroup := map[string]*groupJobs{}

	for _, src := range sources {
		if _, dup := importers[src.Name]; dup {
			return nil, fmt.Errorf("duplicate source name %q", src.Name)
		}
		importers[src.Name] = &TableImporter{
			Source:      src.Name,
			Layout:      src.Layout,
			MaxFileSize: e.maxFileSize,
		}

		jobs, diags, err := Discover(root, src)
		if err != nil {
			return nil, err
		}
		result.Diagnostics = append(result.Diagnostics, diags...)
		e.logger.Debug("discovered source files",
			zap.String("source", src.Name),
			zap.Int("files", len(jobs)),
			zap.Int("diagnostics", len(diags)))

		for _, j := range jobs {
			g, ok := byGroup[j.Group]
			if !ok {
				g = &groupJobs{group: j.Group}
				byGroup[j.Group] = g
			}
			g.jobs = append(g.jobs, j)
		}
	}

	groups := make([]*groupJobs, 0, len(byGroup))
	for _, g := range byGroup {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].group < groups[j].group })

	partial := make([]*Result, len(groups))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(e.workers)
	for i, g := range groups {
		eg.Go(func() error {
			r, err := e.importGroup(egCtx, g, importers)
			if err != nil {
				return err
			}
			partial[i] = r
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	for _, r := range partial {
		result.Add(r)
		result.Batches = append(result.Batches, r.Batches...)
	}
	return result, nil
}

func (e *Engine) importGroup(ctx context.Context, g *groupJobs, importers map[string]Importer) (*Result, error) {
	r := &Result{}
	batch := Batch{Group: g.group}
	for _, j := range g.jobs {
		r.FilesScanned++
		imp := importers[j.Source]
		if !imp.CanHandle(j.Path) {
			r.FilesSkipped++
			continue
		}

		obs, diags, err := imp.Import(ctx, j.Path, j.Group)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				r.FilesSkipped++
				r.Diagnostics = append(r.Diagnostics, diag.Diagnostic{
					Kind:    diag.KindMissingSource,
					Group:   j.Group,
					Source:  j.Source,
					File:    j.Path,
					Message: err.Error(),
				})
				continue
			}
			return nil, fmt.Errorf("importing %s: %w", j.Path, err)
		}

		r.Diagnostics = append(r.Diagnostics, diags...)
		if len(obs) == 0 {
			r.FilesSkipped++
		} else {
			r.FilesImported++
		}
		r.Observations += countAnnotated(obs)
		batch.Observations = append(batch.Observations, obs...)

		e.logger.Debug("imported file",
			zap.String("group", j.Group),
			zap.String("source", j.Source),
			zap.String("path", j.Path),
			zap.Int("observations", len(obs)),
			zap.Int("diagnostics", len(diags)))
	}
	r.Batches = []Batch{batch}
	return r, nil
}

// countAnnotated counts observations that carry a category, leaving out the
// bare entity registrations.
func countAnnotated(obs []record.Observation) int {
	n := 0
	for _, o := range obs {
		if o.Category != "" {
			n++
		}
	}
	return n
}
