package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/stellar-anchor/depositsd/internal/corelog"
	"github.com/stellar-anchor/depositsd/internal/txn"
)

// Notifier fires the per-transaction on-change webhook (spec.md §6.4):
// fire-and-forget, failures logged, never retried, never blocking the
// caller's state transition.
type Notifier interface {
	NotifyChange(ctx context.Context, tx *txn.Transaction)
}

// WebhookNotifier posts a JSON snapshot of tx to its OnChangeCallbackURL on
// a detached goroutine. When SigningKey is set, every delivery carries an
// X-Delivery-Signature header: a compact HS256 JWS whose claims are the
// transaction ID, the delivery ID and the issue time, the same way the reference platform's webhook sender lets receivers
// verify the callback actually came from this anchor.
type WebhookNotifier struct {
	Client     *http.Client
	Timeout    time.Duration
	SigningKey []byte
}

// NewWebhookNotifier builds a WebhookNotifier with sane defaults. signingKey
// may be nil, in which case deliveries go out unsigned.
func NewWebhookNotifier(signingKey []byte) *WebhookNotifier {
	return &WebhookNotifier{Client: http.DefaultClient, Timeout: 10 * time.Second, SigningKey: signingKey}
}

func (w *WebhookNotifier) NotifyChange(ctx context.Context, tx *txn.Transaction) {
	if tx.OnChangeCallbackURL == "" {
		return
	}

	url := tx.OnChangeCallbackURL
	payload, err := json.Marshal(tx)
	if err != nil {
		corelog.Ctx(ctx).WithError(err).Warn("failed to marshal on-change callback payload")
		return
	}

	deliveryID := uuid.NewString()

	signature, err := w.sign(tx.ID, deliveryID)
	if err != nil {
		corelog.Ctx(ctx).WithError(err).Warn("failed to sign on-change callback payload")
	}

	go func() {
		reqCtx, cancel := context.WithTimeout(context.Background(), w.Timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			corelog.Root().WithError(err).Warn("failed to build on-change callback request")
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Delivery-Id", deliveryID)
		if signature != "" {
			req.Header.Set("X-Delivery-Signature", signature)
		}

		resp, err := w.Client.Do(req)
		if err != nil {
			corelog.Root().WithError(err).WithField("url", url).Warn("on-change callback failed")
			return
		}
		defer resp.Body.Close()
	}()
}

// sign produces a compact JWS asserting this delivery's transaction and
// delivery IDs. Returns "" without error when no signing key is configured.
func (w *WebhookNotifier) sign(txID, deliveryID string) (string, error) {
	if len(w.SigningKey) == 0 {
		return "", nil
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"tx_id":       txID,
		"delivery_id": deliveryID,
		"iat":         time.Now().Unix(),
	})
	return token.SignedString(w.SigningKey)
}
