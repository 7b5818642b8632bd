package notify

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Kind string

const (
	KindConfirmed Kind = "confirmed"
	KindCancelled Kind = "cancelled"
	KindCompleted Kind = "completed"
)

// Intent is the booking engine's outbound notification shape. Delivery,
// templating and retries belong to the mail dispatcher behind this
// interface; the engine only guarantees the intent was emitted.
type Intent struct {
	BookingID uuid.UUID
	Kind      Kind
	Recipient uuid.UUID
	Context   map[string]any
}

type Notifier interface {
	Notify(ctx context.Context, intent Intent) error
}

// LogNotifier stands in for the real dispatcher: it writes every intent
// to the log. Useful in dev and as the default wiring.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, intent Intent) error {
	n.log.Info("notification intent",
		zap.String("booking_id", intent.BookingID.String()),
		zap.String("kind", string(intent.Kind)),
		zap.String("recipient", intent.Recipient.String()),
		zap.Any("context", intent.Context),
	)
	return nil
}
