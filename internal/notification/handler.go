package notification

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/example/ec-shop/internal/domain/order"
	"github.com/example/ec-shop/internal/domain/user"
	"github.com/example/ec-shop/internal/email"
	"github.com/example/ec-shop/internal/infrastructure/store"
	"github.com/shopspring/decimal"
)

// UserLookup finds the recipient of a notification.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*user.User, bool, error)
}

// Mailer is implemented by email.Service.
type Mailer interface {
	SendOrderConfirmation(to, orderID string, total decimal.Decimal, items []email.OrderItem) error
}

// Handler processes events for sending notifications
type Handler struct {
	mailer Mailer
	users  UserLookup
	log    *slog.Logger
}

// NewHandler creates a new notification handler
func NewHandler(mailer Mailer, users UserLookup, log *slog.Logger) *Handler {
	return &Handler{mailer: mailer, users: users, log: log}
}

// HandleEvent processes an event from Kafka. Event types other than
// OrderPlaced are ignored.
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return errors.Wrapf(err, "decode event with key %q", key)
	}

	if event.EventType == order.EventOrderPlaced {
		return h.handleOrderPlaced(ctx, event)
	}
	return nil
}

func (h *Handler) handleOrderPlaced(ctx context.Context, event store.Event) error {
	var e order.OrderPlaced
	if err := json.Unmarshal(event.Data, &e); err != nil {
		return errors.Wrapf(err, "decode %s %s", event.EventType, event.ID)
	}

	log := h.log.With("order_id", e.OrderID, "user_id", e.UserID)
	log.InfoContext(ctx, "processing order placed")

	u, ok, err := h.users.GetUser(ctx, e.UserID)
	if err != nil {
		return err
	}
	if !ok {
		log.WarnContext(ctx, "order owner not found, skipping confirmation")
		return nil
	}

	items := make([]email.OrderItem, len(e.Items))
	for i, item := range e.Items {
		title := item.Title
		if title == "" {
			title = item.ProductID
		}
		items[i] = email.OrderItem{
			Title:     title,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}

	if err := h.mailer.SendOrderConfirmation(u.Email, e.OrderID, e.Total, items); err != nil {
		return err
	}

	log.InfoContext(ctx, "order confirmation sent", "to", u.Email)
	return nil
}
