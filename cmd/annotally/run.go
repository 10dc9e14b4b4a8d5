package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hurttlocker/annotally/internal/config"
	"github.com/hurttlocker/annotally/internal/diag"
	"github.com/hurttlocker/annotally/internal/export"
	"github.com/hurttlocker/annotally/internal/matrix"
	"github.com/hurttlocker/annotally/internal/ontology"
	"github.com/hurttlocker/annotally/internal/pipeline"
	"github.com/hurttlocker/annotally/internal/report"
	"github.com/hurttlocker/annotally/internal/store"
)

type runFlags struct {
	input    string
	output   string
	workers  int
	dbPath   string
	xlsx     string
	ontology string
	report   bool
	top      int
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <profile>",
		Short: "Aggregate a directory of annotation outputs",
		Long: `Runs one aggregation. <profile> is a profile YAML file or the name of a
built-in preset. Settings resolve as: defaults < --config file < profile
settings < ANNOTALLY_* environment < flags.

Recovered problems (missing files, short rows, non-numeric values) are
logged and counted; they never stop the run. A run that finds no valid
records writes nothing and exits 0.`,
		Example: `  annotally run dbcan-genomes --in dbcan_results --out .
  annotally run interpro-orthogroups --in iprscan-annotations --out summary --xlsx summary.xlsx
  annotally run go-orthogroups --in . --ontology go-basic.obo --report`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAggregate(cmd, g, f, args[0])
		},
	}
	cmd.Flags().StringVar(&f.input, "in", "", "Input directory")
	cmd.Flags().StringVar(&f.output, "out", "", "Output directory (default .)")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "Concurrent groups (default one per CPU)")
	cmd.Flags().StringVar(&f.dbPath, "db", "", "Also save the run to this SQLite database")
	cmd.Flags().StringVar(&f.xlsx, "xlsx", "", "Also write every table to this XLSX workbook")
	cmd.Flags().StringVar(&f.ontology, "ontology", "", "OBO file for term names and namespaces")
	cmd.Flags().BoolVar(&f.report, "report", false, "Print a run report")
	cmd.Flags().IntVar(&f.top, "top", report.DefaultTopLabels, "Labels per category in the report")
	return cmd
}

func runAggregate(cmd *cobra.Command, g *globalFlags, f *runFlags, profile string) error {
	logger := g.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	stdout := cmd.OutOrStdout()

	resolved, err := config.ResolveConfig(config.ResolveOptions{
		ConfigPath:  g.configPath,
		Profile:     profile,
		CLIInput:    f.input,
		CLIOutput:   f.output,
		CLIDBPath:   f.dbPath,
		CLIOntology: f.ontology,
		CLIXLSX:     f.xlsx,
		CLIWorkers:  f.workers,
	})
	if err != nil {
		return err
	}
	logger.Debug("resolved settings",
		zap.String("profile", resolved.ProfileFrom),
		zap.String("input", resolved.InputDir.Value),
		zap.String("input_from", string(resolved.InputDir.Source)),
		zap.String("output", resolved.OutputDir.Value),
		zap.Int("workers", resolved.WorkerCount()))

	var onto *ontology.Ontology
	if path := resolved.Ontology.Value; path != "" {
		if onto, err = ontology.Load(path); err != nil {
			return err
		}
		logger.Debug("loaded ontology", zap.String("path", path), zap.Int("terms", onto.Len()))
	}

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := pipeline.Run(ctx, pipeline.Options{
		Profile:  resolved.Profile,
		InputDir: resolved.InputDir.Value,
		Workers:  resolved.WorkerCount(),
		Ontology: onto,
		Logger:   logger,
	})
	if errors.Is(err, diag.ErrNoValidRecords) {
		fmt.Fprintf(stdout, "No valid input records under %s (%d diagnostics); nothing written.\n",
			resolved.InputDir.Value, len(out.Diagnostics))
		if f.report {
			fmt.Fprintln(stdout, report.RenderReport(report.BuildReport(out, report.Options{TopLabels: f.top})))
		}
		return nil
	}
	if err != nil {
		return err
	}

	written, err := export.WriteDir(resolved.OutputDir.Value, out.Tables)
	if err != nil {
		return err
	}
	if path := resolved.XLSX.Value; path != "" {
		if err := export.WriteXLSX(path, out.Tables); err != nil {
			return err
		}
		written = append(written, path)
	}

	if path := resolved.DBPath.Value; path != "" {
		id, err := saveRun(ctx, path, resolved, out)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Saved run %s to %s\n", id, path)
	}

	if f.report {
		fmt.Fprintln(stdout, report.RenderReport(report.BuildReport(out, report.Options{TopLabels: f.top, Written: written})))
		return nil
	}
	fmt.Fprintf(stdout, "%d groups, %d entities, %d diagnostics\n",
		out.Stats.Groups, out.Stats.Entities, len(out.Diagnostics))
	for _, p := range written {
		fmt.Fprintf(stdout, "  wrote %s\n", p)
	}
	return nil
}

func saveRun(ctx context.Context, dbPath string, resolved config.ResolvedConfig, out *pipeline.Output) (string, error) {
	st, err := store.NewStore(store.StoreConfig{DBPath: dbPath})
	if err != nil {
		return "", err
	}
	defer st.Close()

	matrices := map[string]*matrix.Matrix{}
	for _, c := range resolved.Profile.Categories {
		if c.Matrix == nil {
			continue
		}
		if m, ok := out.Matrices[c.Name]; ok {
			matrices[c.Matrix.File] = m
		}
		if m, ok := out.Classes[c.Name]; ok {
			matrices[c.Matrix.ClassFile] = m
		}
	}
	return st.SaveRun(ctx, &store.RunRecord{
		Profile:       out.Profile,
		InputDir:      resolved.InputDir.Value,
		Duration:      out.Stats.Duration,
		FilesScanned:  out.Stats.FilesScanned,
		FilesImported: out.Stats.FilesImported,
		Observations:  out.Stats.Observations,
		Entities:      out.Stats.Entities,
		Groups:        out.Stats.Groups,
		Matrices:      matrices,
		Diagnostics:   out.Diagnostics,
	})
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
