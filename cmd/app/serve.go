package main

import (
	"DecisionCore/internal/di"

	"github.com/spf13/cobra"
)

func serveCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run engines on live observations and serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			app, err := di.InitializeApp(cfg)
			if err != nil {
				return err
			}
			// blocks until interrupted
			return app.Run(cmd.Context())
		},
	}
}
