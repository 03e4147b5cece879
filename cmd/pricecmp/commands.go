package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/chaniweb/backend/internal/domain"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newGroupsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List every product group ranked by price per unit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, engine, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}

			overview, err := engine.Overview(cmd.Context(), snapshot)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.outputJSON {
				return writeJSON(out, overview)
			}

			for _, g := range overview.Groups {
				printGroup(out, g)
			}
			printDiagnostics(out, overview.InvalidListings)
			fmt.Fprintf(out, "%d groups, %d listings excluded\n", len(overview.Groups), overview.ExcludedCount)
			return nil
		},
	}
}

func newCompareCmd(opts *options) *cobra.Command {
	var (
		query   string
		listing string
	)

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare prices for one listing or a free-text query",
		Example: `  pricecmp compare --catalog products.xlsx --query "aceite girasol"
  pricecmp compare --catalog products.json --listing 42 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, engine, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}

			result, err := engine.Compare(cmd.Context(), snapshot, domain.Query{
				ListingID: domain.ListingID(listing),
				Text:      query,
			})
			if errors.Is(err, domain.ErrInvalidQuery) {
				return fmt.Errorf("exactly one of --query and --listing is required")
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.outputJSON {
				return writeJSON(out, result)
			}

			if !result.Found {
				fmt.Fprintf(out, "No comparable products for %s\n", result.Query)
				return nil
			}
			for _, g := range result.Groups {
				printGroup(out, g)
			}
			if best, ok := result.Best(); ok {
				bestColor.Fprintf(out, "Best: %s at %s, %s/%s\n",
					best.Name, best.Supermarket, best.PricePerUnitDisplay(), best.CanonicalUnit)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "free-text product query")
	cmd.Flags().StringVarP(&listing, "listing", "l", "", "listing id to compare")
	cmd.MarkFlagsMutuallyExclusive("query", "listing")
	cmd.MarkFlagsOneRequired("query", "listing")

	return cmd
}

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	bestColor   = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
)

// printGroup renders one ranked group as a table, best offer highlighted
func printGroup(w io.Writer, g domain.RankedGroup) {
	headerColor.Fprintf(w, "%s\n", g.Key)
	if !g.Comparable {
		warnColor.Fprintln(w, "  not comparable: unrecognized unit")
	}

	var table bytes.Buffer
	tw := tabwriter.NewWriter(&table, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  #\tSUPERMARKET\tNAME\tPRICE\tPER UNIT")
	for _, m := range g.Members {
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s/%s\n",
			m.Rank, m.Supermarket, m.Name, m.Price.StringFixed(2), m.PricePerUnitDisplay(), m.CanonicalUnit)
	}
	tw.Flush()

	// Color after alignment so escape codes do not skew the columns
	lines := strings.Split(strings.TrimRight(table.String(), "\n"), "\n")
	for i, line := range lines {
		if i == 1 && len(g.Members) > 1 {
			bestColor.Fprintln(w, line)
			continue
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintf(w, "  average %s/%s, spread %s, %d supermarkets\n\n",
		g.Average.StringFixed(2), g.Best.CanonicalUnit, g.Stats.Spread.StringFixed(2), g.Stats.VendorCount)
}

func printDiagnostics(w io.Writer, invalid []domain.InvalidListing) {
	if len(invalid) == 0 {
		return
	}
	warnColor.Fprintf(w, "%d listings need attention:\n", len(invalid))
	for _, d := range invalid {
		fmt.Fprintf(w, "  %s %s (%s): %s\n", d.Listing.ID, strings.TrimSpace(d.Listing.Name), d.Kind, d.Reason)
	}
	fmt.Fprintln(w)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
