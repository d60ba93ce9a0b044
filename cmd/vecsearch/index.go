package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/vecsearch/internal/config"
)

func (a *app) createIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-index",
		Short: "Create the configured index if it does not exist",
		Long: `Create the index named in the config on the configured backend. An
existing index must have the configured dimension and metric.

The local backend lives only inside one process; use "serve" for it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.Backend.Type == config.BackendLocal {
				return fmt.Errorf("create-index needs a persistent backend, got %q", a.cfg.Backend.Type)
			}

			svc, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			size, err := svc.Size(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "index %s ready: backend=%s dimension=%d metric=%s records=%d\n",
				a.cfg.Index.Name, svc.Backend().Name(), svc.Dimension(), svc.Metric(), size)
			return nil
		},
	}
}
