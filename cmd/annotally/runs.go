package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hurttlocker/annotally/internal/export"
	"github.com/hurttlocker/annotally/internal/store"
)

func newRunsCmd() *cobra.Command {
	var dbPath string
	openStore := func() (store.Store, error) {
		return store.NewStore(store.StoreConfig{DBPath: dbPath})
	}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect runs saved with --db",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", store.DefaultDBPath, "Run database")

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List saved runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.ListRuns(cmdContext(cmd), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tPROFILE\tSTARTED\tGROUPS\tENTITIES\tDIAGNOSTICS\tMATRICES")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
					r.ID, r.Profile, humanize.Time(r.StartedAt),
					humanize.Comma(int64(r.Groups)), humanize.Comma(int64(r.Entities)),
					r.Diagnostics, len(r.Matrices))
			}
			return tw.Flush()
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list")

	show := &cobra.Command{
		Use:   "show RUN_ID MATRIX",
		Short: "Print a saved matrix as TSV",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			m, err := st.LoadMatrix(cmdContext(cmd), args[0], args[1])
			if err != nil {
				return err
			}
			header, rows := m.Table("Group")
			return export.WriteTSV(cmd.OutOrStdout(), export.Table{Name: args[1], Header: header, Rows: rows})
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}
