package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jmcleod/heist/puzzle"
)

var catalogFlags struct {
	file   string
	reveal bool
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Validate and list a puzzle catalog",
	Long: `Loads a puzzle catalog, validates every record and prints a summary.
Without --file the built-in catalog is used. --reveal also prints solutions
and reward flags; do not run it where players can see the output.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadCatalog(catalogFlags.file)
		if err != nil {
			return err
		}
		printCatalog(cmd.OutOrStdout(), c, catalogFlags.reveal)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.Flags().StringVarP(&catalogFlags.file, "file", "f", "", "Catalog YAML file")
	catalogCmd.Flags().BoolVar(&catalogFlags.reveal, "reveal", false, "Include solutions and reward flags")
}

func printCatalog(w io.Writer, c *puzzle.Catalog, reveal bool) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if reveal {
		fmt.Fprintln(tw, "ID\tTYPE\tMATCH\tTITLE\tSOLUTION\tFLAG")
	} else {
		fmt.Fprintln(tw, "ID\tTYPE\tMATCH\tTITLE")
	}
	for _, r := range c.Records() {
		if reveal {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.Type, r.Match, r.Title, r.Solution, r.Flag)
		} else {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Type, r.Match, r.Title)
		}
	}
	tw.Flush()

	fmt.Fprintln(w)
	green.Fprintf(w, "%d puzzles OK\n", c.Len())
	if reveal {
		color.New(color.FgYellow).Fprintln(w, "solutions and flags revealed")
	}
}
