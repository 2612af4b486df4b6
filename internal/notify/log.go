package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSender writes notifications to the log. Used when no messaging channel
// is configured.
type LogSender struct {
	logger *zerolog.Logger
}

func NewLogSender(logger *zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, userID, text string) error {
	s.logger.Info().Str("user_id", userID).Str("text", text).Msg("Notification")
	return nil
}
