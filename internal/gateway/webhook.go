package gateway

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"slot-shop/internal/metrics"

	"github.com/google/uuid"
)

// WebhookHandler verifies the gateway's shared secret and forwards
// decoded events to the processor.
type WebhookHandler struct {
	logger    *slog.Logger
	metrics   *metrics.Metrics
	secret    string
	processor Processor
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(logger *slog.Logger, metricRegistry *metrics.Metrics, secret string, processor Processor) *WebhookHandler {
	return &WebhookHandler{
		logger:    logger.With("component", "gateway_webhook"),
		metrics:   metricRegistry,
		secret:    secret,
		processor: processor,
	}
}

// ServeHTTP satisfies http.Handler.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !h.authorized(r) {
		h.metrics.Errors.WithLabelValues("gateway_webhook_auth").Inc()
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.metrics.Errors.WithLabelValues("gateway_webhook").Inc()
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		h.metrics.Errors.WithLabelValues("gateway_webhook").Inc()
		http.Error(w, "malformed event", http.StatusBadRequest)
		return
	}
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	evt.ReceivedAt = time.Now()

	h.metrics.InboundEvents.WithLabelValues(string(evt.Type)).Inc()

	if h.processor != nil {
		if err := h.processor.HandleEvent(r.Context(), evt); err != nil {
			h.logger.Error("failed processing event", "error", err, "event_id", evt.ID, "type", evt.Type)
			h.metrics.Errors.WithLabelValues("gateway_webhook_process").Inc()
			http.Error(w, "failed to process", http.StatusInternalServerError)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (h *WebhookHandler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return true
	}
	provided := r.Header.Get("X-Gateway-Secret")
	return subtle.ConstantTimeCompare([]byte(provided), []byte(h.secret)) == 1
}
