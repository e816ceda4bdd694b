package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Notification is one message ready for delivery.
type Notification struct {
	Recipient string
	Subject   string
	Body      string
}

// Notifier delivers a notification. Delivery is fire-and-report: callers
// observe failures and decide what state to persist.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// PriceMoveNotification renders the hourly-movement message.
func PriceMoveNotification(recipient, symbol string, changePct, oldPrice, newPrice decimal.Decimal, oldTS, newTS time.Time) Notification {
	return Notification{
		Recipient: recipient,
		Subject:   fmt.Sprintf("Price Alert: %s", symbol),
		Body: fmt.Sprintf(
			"The price of %s has increased by %s%% in the last hour.\n\n"+
				"Previous Price (%s): $%s\nCurrent Price (%s): $%s",
			symbol,
			changePct.StringFixed(2),
			formatTimestamp(oldTS), oldPrice.String(),
			formatTimestamp(newTS), newPrice.String(),
		),
	}
}

// TargetHitNotification renders the target-price message.
func TargetHitNotification(recipient, symbol string, currentPrice, targetPrice decimal.Decimal) Notification {
	return Notification{
		Recipient: recipient,
		Subject:   fmt.Sprintf("Price Alert for %s", symbol),
		Body: fmt.Sprintf(
			"The price of %s has reached $%s. Your alert was set for $%s.",
			symbol, currentPrice.String(), targetPrice.String(),
		),
	}
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format("Jan 2, 03:04 PM")
}

// Multi fans a notification out to every configured channel. Notify fails
// only when every channel fails, so a flaky secondary channel does not block
// alert state transitions.
type Multi struct {
	channels []Notifier
}

// NewMulti builds a fan-out notifier.
func NewMulti(channels ...Notifier) *Multi {
	return &Multi{channels: channels}
}

// Notify dispatches to all channels.
func (m *Multi) Notify(ctx context.Context, note Notification) error {
	if len(m.channels) == 0 {
		return errors.New("no notification channels configured")
	}

	var errs []error
	for _, channel := range m.channels {
		if err := channel.Notify(ctx, note); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == len(m.channels) {
		return errors.Join(errs...)
	}
	return nil
}

var _ Notifier = (*Multi)(nil)
