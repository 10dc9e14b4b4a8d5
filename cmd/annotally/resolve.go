package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hurttlocker/annotally/internal/config"
	"github.com/hurttlocker/annotally/internal/resolve"
	"github.com/hurttlocker/annotally/internal/token"
)

func newResolveCmd() *cobra.Command {
	var (
		suffixPattern string
		delimiters    string
	)
	cmd := &cobra.Command{
		Use:   "resolve LABEL...",
		Short: "Collapse family labels to their most specific set",
		Long: `Prints the minimal most-specific set of the given labels and any label
pairs that look hierarchical but were kept apart. Each argument may hold
several labels separated by --delimiters, as in a dbCAN field.`,
		Example: `  annotally resolve AA1 AA1_3 GH13 GH1
  annotally resolve 'GH5_4|GH5|CBM1'
  annotally resolve --suffix-pattern '[a-z]' GH5 GH5a`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rel, err := config.Category{Name: "resolve", Collapse: true, SuffixPattern: suffixPattern}.Relation()
			if err != nil {
				return err
			}
			spec := token.Spec{Delimiters: delimiters}
			var labels []string
			for _, a := range args {
				labels = append(labels, spec.Collect(a)...)
			}

			out := cmd.OutOrStdout()
			resolved := resolve.Resolve(labels, rel)
			fmt.Fprintf(out, "%s\n", strings.Join(resolved, " "))
			for _, p := range resolve.NearMisses(labels, rel) {
				fmt.Fprintf(out, "near miss: %s\n", p)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&suffixPattern, "suffix-pattern", "", "Subfamily suffix regexp (default numeric _N segments)")
	cmd.Flags().StringVar(&delimiters, "delimiters", "|", "Characters separating labels within an argument")
	return cmd
}
