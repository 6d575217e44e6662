// Package lifecycle consumes poll lifecycle events and clears the dimension
// record of polls that closed on any instance.
package lifecycle

import (
	"context"
	"encoding/json"
	"log/slog"

	"anonpoll/internal/platform/kafka/consumer"
	pollmodels "anonpoll/internal/poll/models"
)

type Resetter interface {
	PollClosed(ctx context.Context, pollID string) error
}

type Handler struct {
	resetter Resetter
	logger   *slog.Logger
}

func NewHandler(resetter Resetter, logger *slog.Logger) *Handler {
	return &Handler{resetter: resetter, logger: logger}
}

// Handle resets on ended and archived events. Malformed messages are logged
// and skipped; a reset failure is returned so the batch is redelivered.
func (h *Handler) Handle(ctx context.Context, msg *consumer.Message) error {
	var ev pollmodels.LifecycleEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		h.logger.Warn("failed to decode lifecycle event",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}
	if ev.PollID == "" {
		h.logger.Warn("lifecycle event without poll id", "offset", msg.Offset)
		return nil
	}
	state, err := pollmodels.ParseState(string(ev.State))
	if err != nil {
		h.logger.Warn("lifecycle event with unknown state",
			"poll_id", ev.PollID,
			"state", ev.State,
		)
		return nil
	}
	if !state.Closed() {
		return nil
	}
	return h.resetter.PollClosed(ctx, ev.PollID)
}
