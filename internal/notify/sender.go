package notify

import (
	"context"
	"log/slog"

	"github.com/mr1hm/go-disaster-notify/internal/models"
)

// Sender delivers one message to one target on a single channel. A nil
// error means the provider accepted the message.
type Sender interface {
	Send(ctx context.Context, target, title, body string) error
}

// Senders maps each channel to its delivery implementation.
type Senders map[models.Channel]Sender

// LogSender only logs; it stands in for real providers in development.
type LogSender struct {
	Channel models.Channel
}

func (s LogSender) Send(_ context.Context, target, title, body string) error {
	slog.Info("notification (log sender)", "channel", s.Channel, "target", target, "title", title, "body", body)
	return nil
}

// LogSenders returns a LogSender for every channel.
func LogSenders() Senders {
	return Senders{
		models.ChannelPush:  LogSender{Channel: models.ChannelPush},
		models.ChannelEmail: LogSender{Channel: models.ChannelEmail},
		models.ChannelSMS:   LogSender{Channel: models.ChannelSMS},
	}
}
