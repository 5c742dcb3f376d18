package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// signatureHeader carries the hex-encoded HMAC-SHA256 of the raw request body.
const signatureHeader = "Webhook-Signature"

// webhookEvent is the provider's payment outcome notification.
type webhookEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

type webhookResponse struct {
	Handled bool `json:"handled"`
}

// PaymentWebhook receives asynchronous payment outcomes from the provider.
// Unknown intents and unrecognized event types are acknowledged with 200 so
// the provider stops redelivering; signature failures are the only rejection.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if !h.verifySignature(body, r.Header.Get(signatureHeader)) {
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var success bool
	switch event.Type {
	case "payment_intent.succeeded":
		success = true
	case "payment_intent.payment_failed":
		success = false
	default:
		zctx.From(r.Context()).Debug("ignoring webhook event", zap.String("type", event.Type))
		writeJSON(w, http.StatusOK, webhookResponse{Handled: false})
		return
	}

	handled, err := h.webhook.HandleOutcome(r.Context(), event.Data.Object.ID, success)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, webhookResponse{Handled: handled})
}

// verifySignature computes the HMAC-SHA256 of the body under the shared
// webhook secret and compares it to the provided hex signature in constant
// time.
func (h *Handler) verifySignature(body []byte, signature string) bool {
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, h.webhookSecret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), provided)
}
