package order

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// WebhookHandler applies asynchronous payment outcomes to orders, matching
// on payment intent id. Transitions are idempotent: redelivered outcomes for
// an already-terminal order are no-ops.
type WebhookHandler struct {
	orders Repository
	lg     *zap.Logger
}

// NewWebhookHandler creates a WebhookHandler over the given repository.
func NewWebhookHandler(orders Repository, lg *zap.Logger) *WebhookHandler {
	return &WebhookHandler{orders: orders, lg: lg}
}

// HandleOutcome transitions the order bound to intentID per the payment
// outcome. It returns false, without error and without mutation, when no
// order holds the intent: webhooks may race ahead of order creation or
// reference a foreign intent, and neither case is a fault.
func (h *WebhookHandler) HandleOutcome(ctx context.Context, intentID string, success bool) (bool, error) {
	o, err := h.orders.FindByPaymentIntentID(ctx, intentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, errors.Wrap(err, "find order by intent")
	}

	next := StatusPaymentFailed
	if success {
		next = StatusPaymentReceived
	}

	if o.Status.Terminal() {
		if o.Status != next {
			h.lg.Warn("conflicting payment outcome for terminal order",
				zap.String("order_id", o.ID),
				zap.String("status", string(o.Status)),
				zap.String("outcome", string(next)))
		}
		return true, nil
	}

	if err := h.orders.UpdateStatusByIntentID(ctx, intentID, next); err != nil {
		return false, errors.Wrap(err, "update order status")
	}

	h.lg.Info("order status updated from payment outcome",
		zap.String("order_id", o.ID),
		zap.String("intent_id", intentID),
		zap.String("status", string(next)))
	return true, nil
}
