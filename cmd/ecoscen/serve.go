package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/averros/ecoscen/internal/api"
	"github.com/averros/ecoscen/internal/config"
	"github.com/averros/ecoscen/internal/params"
	"github.com/averros/ecoscen/internal/store"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run journal over HTTP",
		Long: `Start the HTTP API over the run journal. With --model, the server
also exposes the model's parameter catalog at /v1/params.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			modelPath, _ := cmd.Flags().GetString("model")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := config.NewLogger(os.Stderr, cfg.LogLevel)

			journal, err := store.NewSQLiteStore(cfg.DBPath)
			if err != nil {
				return err
			}
			defer journal.Close()

			var reg *params.Registry
			if modelPath != "" {
				factory, err := hostFactory(cmd, cfg.EngineCmd)
				if err != nil {
					return err
				}
				factory.Logger = logger
				reg, err = probeRegistry(context.Background(), factory, modelPath)
				if err != nil {
					return err
				}
			}

			return api.NewServer(cfg.ListenAddr, journal, reg, logger).Run()
		},
	}

	cmd.Flags().String("model", "", "Model database file for the parameter catalog (optional)")

	return cmd
}
