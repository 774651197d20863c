package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"slot-shop/internal/logging"
	"slot-shop/internal/metrics"
)

type recordingProcessor struct {
	events []Event
	err    error
}

func (p *recordingProcessor) HandleEvent(_ context.Context, evt Event) error {
	p.events = append(p.events, evt)
	return p.err
}

func newWebhook(processor Processor, secret string) *WebhookHandler {
	logger := logging.NewLoggerTo(io.Discard, "error")
	return NewWebhookHandler(logger, metrics.Registry("gatewaytest"), secret, processor)
}

func TestWebhookRejectsWrongSecret(t *testing.T) {
	proc := &recordingProcessor{}
	handler := newWebhook(proc, "s3cret")

	req := httptest.NewRequest(http.MethodPost, "/webhook/gateway", strings.NewReader(`{"type":"command"}`))
	req.Header.Set("X-Gateway-Secret", "wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if len(proc.events) != 0 {
		t.Fatal("unauthorized request must not reach the processor")
	}
}

func TestWebhookRejectsNonPost(t *testing.T) {
	handler := newWebhook(&recordingProcessor{}, "")

	req := httptest.NewRequest(http.MethodGet, "/webhook/gateway", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestWebhookDecodesAndForwards(t *testing.T) {
	proc := &recordingProcessor{}
	handler := newWebhook(proc, "s3cret")

	body := `{"type":"button","user_id":42,"chat_id":42,"data":"checkout:7"}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/gateway", strings.NewReader(body))
	req.Header.Set("X-Gateway-Secret", "s3cret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(proc.events) != 1 {
		t.Fatalf("events = %d, want 1", len(proc.events))
	}
	evt := proc.events[0]
	if evt.Type != EventButton || evt.UserID != 42 || evt.Data != "checkout:7" {
		t.Fatalf("event = %+v", evt)
	}
	if evt.ID == "" {
		t.Fatal("missing event id must be filled in")
	}
	if evt.ReceivedAt.IsZero() {
		t.Fatal("received timestamp must be set")
	}
}

func TestWebhookRejectsMalformedBody(t *testing.T) {
	proc := &recordingProcessor{}
	handler := newWebhook(proc, "")

	req := httptest.NewRequest(http.MethodPost, "/webhook/gateway", strings.NewReader("{nope"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(proc.events) != 0 {
		t.Fatal("malformed body must not reach the processor")
	}
}
