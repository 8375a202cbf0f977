package main

import (
	"fmt"
	"strings"

	"DecisionCore/internal/di"
	"DecisionCore/internal/usecase"
	"DecisionCore/pkg/queue"

	"github.com/spf13/cobra"
)

func resetCmd(load configLoader) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reset SYMBOL...",
		Short: "Ask running instances to reset engines through the control queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			rdb := di.ProvideRedisClient(cfg)
			if rdb == nil {
				return fmt.Errorf("reset requires redis to be enabled")
			}
			defer rdb.Close()

			pub, err := queue.NewRedisPublisher(rdb, nil, queue.WithKeyPrefix(cfg.Redis.Queue.Name+":queue"))
			if err != nil {
				return err
			}
			defer pub.Stop(cmd.Context())

			for _, s := range args {
				req := usecase.EngineResetRequest{Symbol: strings.ToUpper(s), Reason: reason}
				if err := pub.PublishMessage(cmd.Context(), usecase.JobEngineReset, req); err != nil {
					return fmt.Errorf("publish reset %s: %w", req.Symbol, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reset queued for %s\n", req.Symbol)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "manual", "reason recorded with the reset")
	return cmd
}
