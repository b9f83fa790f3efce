package cli

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/askql/askql/internal/demo"
)

func newDemoCommand(opts Options) *cobra.Command {
	var (
		out       string
		seed      int64
		overwrite bool
		size      = demo.DefaultSize()
	)
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Create a sample music-store SQLite database",
		Long: `demo writes a small database shaped like the Chinook sample (artists, albums,
tracks, customers and invoices). The same seed always produces the same data.`,
		Example: `  askql demo --out demo.sqlite
  askql --dsn demo.sqlite`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ds := demo.NewGenerator(seed).Dataset(size)
			counts, err := demo.WriteSQLite(cmd.Context(), out, ds, overwrite)
			if err != nil {
				return err
			}

			names := make([]string, 0, len(counts))
			for name := range counts {
				names = append(names, name)
			}
			sort.Strings(names)
			pterm.Success.WithWriter(opts.Stdout).Println("Wrote " + out)
			for _, name := range names {
				_, _ = fmt.Fprintf(opts.Stdout, "  %-12s %s rows\n", name, humanize.Comma(int64(counts[name])))
			}
			_, _ = fmt.Fprintf(opts.Stdout, "\nTry: askql --driver sqlite --dsn %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "demo.sqlite", "path of the database file to create")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed")
	cmd.Flags().BoolVar(&overwrite, "force", false, "replace an existing file")
	cmd.Flags().IntVar(&size.Artists, "artists", size.Artists, "number of artists")
	cmd.Flags().IntVar(&size.Customers, "customers", size.Customers, "number of customers")
	cmd.Flags().IntVar(&size.Invoices, "invoices", size.Invoices, "number of invoices")
	return cmd
}
