package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hupe1980/vecsearch/metadata"
	"github.com/hupe1980/vecsearch/model"
)

func (a *app) queryCmd() *cobra.Command {
	var (
		text    string
		vector  []float32
		k       int
		filters []string
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Print the records nearest to a text or vector",
		Long: `Print the k records nearest to the embedding of --text, or to --vector,
closest first. Each --filter condition (key=value, key!=value, key>=value,
key<value, key~=substring, key=a|b) must hold for a record to match.`,
		Example: `  vecsearch query --text "function safeTransferFrom(address from, ...)" --k 3
  vecsearch query --vector 0.1,0.2,0.3 --filter type=ERC-20 --filter year>=2020`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			fs := metadata.NewFilterSet()
			for _, expr := range filters {
				f, err := metadata.ParseCondition(expr)
				if err != nil {
					return err
				}
				fs.Filters = append(fs.Filters, f)
			}

			query, err := a.embedQuery(ctx, text, vector)
			if err != nil {
				return err
			}

			svc, err := a.openService(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			matches, err := svc.Search(query).KNN(k).Filter(fs).Execute(ctx)
			if err != nil {
				return err
			}
			printMatches(cmd.OutOrStdout(), matches)
			return nil
		},
	}
	cmd.Flags().StringVarP(&text, "text", "t", "", "query text, embedded with the configured embedder")
	cmd.Flags().Float32SliceVar(&vector, "vector", nil, "query vector")
	cmd.Flags().IntVarP(&k, "k", "k", 10, "number of matches")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "metadata condition (repeatable)")
	return cmd
}

func printMatches(w io.Writer, matches []model.Match) {
	if len(matches) == 0 {
		fmt.Fprintln(w, "no matches")
		return
	}
	for i, m := range matches {
		fmt.Fprintf(w, "%d. %s distance=%.4f score=%.4f", i+1, m.ID, m.Distance, m.Score)
		if len(m.Metadata) > 0 {
			fmt.Fprintf(w, " %v", m.Metadata.ToMap())
		}
		fmt.Fprintln(w)
	}
}
