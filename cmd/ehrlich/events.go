package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Sequela02/ehrlich-sub001/config"
	"github.com/Sequela02/ehrlich-sub001/internal/events"
	"github.com/Sequela02/ehrlich-sub001/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func eventsCMD(load configLoader) *cobra.Command {
	var count int64
	var afterSeq int64
	var timeout time.Duration

	replay := &cobra.Command{
		Use:   "replay <investigation-id>",
		Short: "Print the recorded event log of an investigation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			switch cfg.Events.Sink {
			case "redis":
				envs, err := replayStream(ctx, cfg, args[0], count)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), envs)
			case "postgres":
				st, err := store.Open(ctx, cfg.Storage.Postgres)
				if err != nil {
					return err
				}
				defer st.Close()
				recs, err := st.ListEvents(ctx, args[0], afterSeq, int(count))
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), recs)
			}
			return fmt.Errorf("events.sink is %q; nothing is recorded", cfg.Events.Sink)
		},
	}
	replay.Flags().Int64Var(&count, "count", 500, "maximum events to print")
	replay.Flags().Int64Var(&afterSeq, "after", 0, "postgres only: skip events up to this sequence")
	replay.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline")

	cmd := &cobra.Command{Use: "events", Short: "Inspect investigation event logs"}
	cmd.AddCommand(replay)
	return cmd
}

func replayStream(ctx context.Context, cfg *config.Config, investigationID string, count int64) ([]events.Envelope, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Storage.Redis.Addr(),
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})
	defer client.Close()
	return events.NewStreamSink(client, cfg.Events.StreamPrefix, cfg.Events.MaxLen).Replay(ctx, investigationID, count)
}
