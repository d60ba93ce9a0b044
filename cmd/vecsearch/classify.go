package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/vecsearch"
	"github.com/hupe1980/vecsearch/backend/local"
)

func (a *app) classifyCmd() *cobra.Command {
	var (
		file     string
		text     string
		vector   []float32
		labelKey string
	)
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Label a snippet with the label of its nearest labelled record",
		Long: `Load the labelled records of a file into an in-process index and print
the label of the record nearest to --text (or --vector). The configured
backend is not used.`,
		Example: `  vecsearch classify --file contracts.yaml --text "function balanceOf(address account, uint256 id)"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			records, err := a.loadRecords(ctx, file)
			if err != nil {
				return err
			}
			query, err := a.embedQuery(ctx, text, vector)
			if err != nil {
				return err
			}

			metric, err := a.cfg.Metric()
			if err != nil {
				return err
			}
			b, err := local.New(a.cfg.Index.Dimension, metric, func(o *local.Options) { o.Logger = a.logger.Logger })
			if err != nil {
				return err
			}
			svc, err := vecsearch.New(b, a.serviceOptions()...)
			if err != nil {
				return err
			}
			defer svc.Close()

			res, err := svc.UpsertBatch(ctx, records)
			if err != nil {
				return err
			}
			if err := res.Err(); err != nil {
				return err
			}

			nearest, err := svc.Search(query).First(ctx)
			if err != nil {
				return err
			}

			label := "(unlabelled)"
			if v, ok := nearest.Metadata[labelKey]; ok {
				label = v.String()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (nearest %s, distance=%.4f, score=%.4f)\n",
				label, nearest.ID, nearest.Distance, nearest.Score)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "labelled records file")
	cmd.Flags().StringVarP(&text, "text", "t", "", "snippet to classify")
	cmd.Flags().Float32SliceVar(&vector, "vector", nil, "vector to classify")
	cmd.Flags().StringVar(&labelKey, "label-key", "type", "metadata key holding the label")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
