package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) upsertCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Embed and upsert the records of a file",
		Long: `Upsert the records of a YAML records file into the configured index.
Records with text are embedded with the configured embedder; records with
a vector are stored as given. Invalid records are reported and skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			records, err := a.loadRecords(ctx, file)
			if err != nil {
				return err
			}

			svc, err := a.openService(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			res, err := svc.UpsertBatch(ctx, records)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "upserted %d of %d records\n", res.Upserted, len(records))
			for _, ie := range res.Errors {
				fmt.Fprintf(out, "  record %d (%s): %v\n", ie.Index, ie.ID, ie.Err)
			}
			if err != nil {
				return err
			}
			if res.Failed() > 0 {
				return fmt.Errorf("%d records failed", res.Failed())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "records file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
