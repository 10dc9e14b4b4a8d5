package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hurttlocker/annotally/internal/config"
)

func newProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles [name]",
		Short: "List built-in profiles, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				p, from, err := config.LoadProfile(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s (%s)\n%s\n\n", p.Name, from, p.Description)
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "CATEGORY\tMODE\tCOLLAPSE\tOUTPUT")
				for _, c := range p.Categories {
					output := c.SummaryHeader()
					if c.Matrix != nil {
						output = c.Matrix.File
					}
					fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", c.Name, c.Mode, c.Collapse, output)
				}
				return tw.Flush()
			}

			presets, err := config.Presets()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, p := range presets {
				fmt.Fprintf(tw, "%s\t%s\n", p.Name, p.Description)
			}
			return tw.Flush()
		},
	}
}
