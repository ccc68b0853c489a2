/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/ritgame/apiserver/config"
	"github.com/ritgame/apiserver/internal/logging"
	"github.com/ritgame/apiserver/internal/mq"
	"github.com/ritgame/apiserver/types"
	"github.com/spf13/cobra"
)

var eventsChannel string

// eventsCmd groups commands that work with the user events channel.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect user lifecycle events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Log every user event published to the events channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.New(cfg.Log)

		channel := cfg.MQ.Channel
		if eventsChannel != "" {
			channel = eventsChannel
		}

		queue, err := mq.Open(cmd.Context(), cfg.MQ)
		if err != nil {
			return err
		}
		if queue == nil {
			return errors.New("MQ_BACKEND is not set")
		}
		defer queue.Close()

		logger.Info("tailing user events", "backend", cfg.MQ.Backend, "channel", channel)
		err = queue.Subscribe(cmd.Context(), channel, logUserEvent(logger))
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

// logUserEvent acks malformed messages after logging them so they are not
// redelivered forever.
func logUserEvent(logger *slog.Logger) mq.Handler {
	return func(ctx context.Context, msg mq.Message) error {
		var event types.UserEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			logger.WarnContext(ctx, "skipping malformed event", "id", msg.ID, "error", err)
			return nil
		}
		logger.InfoContext(ctx, "user event",
			"id", msg.ID,
			"type", event.Type,
			"recordId", event.RecordID,
			"externalId", event.ExternalID,
			"reason", event.Reason,
			"occurredAt", event.OccurredAt,
		)
		return nil
	}
}

func init() {
	eventsTailCmd.Flags().StringVar(&eventsChannel, "channel", "", "channel to read instead of EVENTS_CHANNEL")
	eventsCmd.AddCommand(eventsTailCmd)
	rootCmd.AddCommand(eventsCmd)
}
