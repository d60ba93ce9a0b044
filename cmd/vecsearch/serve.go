package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/vecsearch/server"
)

func (a *app) serveCmd() *cobra.Command {
	var (
		addr    string
		records string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve in-process indexes over HTTP",
		Long: `Serve in-process indexes over the HTTP/JSON protocol of the remote
backend. The index of the config is created at startup and optionally
filled from a records file; clients create further indexes with POST /indexes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			sc := a.cfg.Server
			if addr == "" {
				addr = sc.Addr
			}

			srv := server.New(func(o *server.Options) {
				o.APIKey = sc.APIKey()
				o.Logger = a.logger.Logger
				o.RequestTimeout = sc.RequestTimeout
				o.MaxInFlight = sc.MaxInFlight
				o.MaxBodyBytes = sc.MaxBodyBytes
				o.BodyMemoryLimit = sc.BodyMemoryLimit
				o.RequestsPerSecond = sc.RequestsPerSecond
				o.ServiceOptions = a.searchOptions()
			})
			defer srv.Close()

			metric, err := a.cfg.Metric()
			if err != nil {
				return err
			}
			if _, err := srv.CreateIndex(a.cfg.Index.Name, a.cfg.Index.Dimension, metric); err != nil {
				return err
			}

			if records != "" {
				recs, err := a.loadRecords(ctx, records)
				if err != nil {
					return err
				}
				svc, _ := srv.Service(a.cfg.Index.Name)
				res, err := svc.UpsertBatch(ctx, recs)
				if err != nil {
					return err
				}
				if err := res.Err(); err != nil {
					return fmt.Errorf("load %s: %w", records, err)
				}
				a.logger.InfoContext(ctx, "records loaded", "index", a.cfg.Index.Name, "count", res.Upserted)
			}

			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&records, "records", "", "records file loaded into the index at startup")
	return cmd
}
