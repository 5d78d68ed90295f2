package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/dentalchat-ai/platform/internal/observability/metrics"
	"github.com/dentalchat-ai/platform/pkg/logging"
)

var pipelineTracer = otel.Tracer("dentalchat.internal.delivery.pipeline")

const defaultWebhookTimeout = 10 * time.Second

// ConversationFinalizer flips the durable finalized flag exactly once.
type ConversationFinalizer interface {
	Finalize(ctx context.Context, conversationID uuid.UUID) (bool, error)
}

// ClientDirectory resolves a client's configured lead webhook URL. Empty
// string means no webhook is configured.
type ClientDirectory interface {
	WebhookURL(ctx context.Context, clientID uuid.UUID) (string, error)
}

// AuditRecorder persists the append-only delivery trail.
type AuditRecorder interface {
	RecordAttempt(ctx context.Context, clientID, conversationID uuid.UUID, webhookURL string) error
	RecordSuccess(ctx context.Context, clientID, conversationID uuid.UUID, statusCode int) error
	RecordFailure(ctx context.Context, clientID, conversationID uuid.UUID, statusCode int, reason string) error
}

// Pipeline finalizes conversations and posts lead payloads to client
// webhooks. Delivery runs off the request path; a failed or skipped delivery
// never fails the chat turn that triggered it.
type Pipeline struct {
	finalizer ConversationFinalizer
	directory ClientDirectory
	audit     AuditRecorder
	client    *http.Client
	logger    *logging.Logger
	metrics   *metrics.DeliveryMetrics

	wg sync.WaitGroup
}

// PipelineOption customizes pipeline behavior.
type PipelineOption func(*Pipeline)

// WithHTTPClient overrides the outbound HTTP client.
func WithHTTPClient(client *http.Client) PipelineOption {
	return func(p *Pipeline) {
		if client != nil {
			p.client = client
		}
	}
}

// WithMetrics attaches delivery metrics.
func WithMetrics(m *metrics.DeliveryMetrics) PipelineOption {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// NewPipeline wires the lead delivery pipeline.
func NewPipeline(finalizer ConversationFinalizer, directory ClientDirectory, audit AuditRecorder, logger *logging.Logger, opts ...PipelineOption) *Pipeline {
	if finalizer == nil {
		panic("delivery: finalizer cannot be nil")
	}
	if directory == nil {
		panic("delivery: client directory cannot be nil")
	}
	if audit == nil {
		panic("delivery: audit recorder cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	p := &Pipeline{
		finalizer: finalizer,
		directory: directory,
		audit:     audit,
		client:    &http.Client{Timeout: defaultWebhookTimeout},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Finalize marks the conversation finalized. Returns false when another turn
// already finalized it.
func (p *Pipeline) Finalize(ctx context.Context, conversationID uuid.UUID) (bool, error) {
	return p.finalizer.Finalize(ctx, conversationID)
}

// DeliverLead posts the lead to the client's webhook in the background. The
// caller's context is not reused so an ending request cannot cancel an
// in-flight delivery.
func (p *Pipeline) DeliverLead(clientID, conversationID uuid.UUID, state map[string]*string) {
	payload := NewLeadPayload(clientID, conversationID, state)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*defaultWebhookTimeout)
		defer cancel()
		p.deliver(ctx, payload)
	}()
}

// Close waits for in-flight deliveries to finish, bounded by ctx.
func (p *Pipeline) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("delivery: shutdown with deliveries in flight: %w", ctx.Err())
	}
}

func (p *Pipeline) deliver(ctx context.Context, payload LeadPayload) {
	ctx, span := pipelineTracer.Start(ctx, "delivery.deliver_lead")
	defer span.End()

	webhookURL, err := p.directory.WebhookURL(ctx, payload.ClientID)
	if err != nil {
		span.RecordError(err)
		p.logger.Error("failed to resolve lead webhook",
			"error", err,
			"client_id", payload.ClientID.String(),
		)
		p.metrics.ObserveDelivery("error", 0)
		return
	}
	if webhookURL == "" {
		// No webhook configured. Not an attempt, not a failure.
		p.logger.Info("no lead webhook configured, skipping delivery",
			"client_id", payload.ClientID.String(),
			"conversation_id", payload.ConversationID.String(),
		)
		p.metrics.ObserveDelivery("skipped", 0)
		return
	}

	if err := p.audit.RecordAttempt(ctx, payload.ClientID, payload.ConversationID, webhookURL); err != nil {
		p.logger.Error("failed to record delivery attempt", "error", err)
	}

	start := time.Now()
	statusCode, respBody, err := p.post(ctx, webhookURL, payload)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		span.RecordError(err)
		p.logger.Error("lead webhook delivery failed",
			"error", err,
			"client_id", payload.ClientID.String(),
			"conversation_id", payload.ConversationID.String(),
		)
		p.metrics.ObserveDelivery("failure", elapsed)
		if auditErr := p.audit.RecordFailure(ctx, payload.ClientID, payload.ConversationID, 0, err.Error()); auditErr != nil {
			p.logger.Error("failed to record delivery failure", "error", auditErr)
		}
		return
	}

	if statusCode == http.StatusOK {
		p.logger.Info("lead delivered",
			"client_id", payload.ClientID.String(),
			"conversation_id", payload.ConversationID.String(),
		)
		p.metrics.ObserveDelivery("success", elapsed)
		if auditErr := p.audit.RecordSuccess(ctx, payload.ClientID, payload.ConversationID, statusCode); auditErr != nil {
			p.logger.Error("failed to record delivery success", "error", auditErr)
		}
		return
	}

	p.logger.Warn("lead webhook returned non-200",
		"status", statusCode,
		"client_id", payload.ClientID.String(),
		"conversation_id", payload.ConversationID.String(),
	)
	p.metrics.ObserveDelivery("failure", elapsed)
	reason := fmt.Sprintf("unexpected status %d", statusCode)
	if respBody != "" {
		reason = fmt.Sprintf("unexpected status %d: %s", statusCode, respBody)
	}
	if auditErr := p.audit.RecordFailure(ctx, payload.ClientID, payload.ConversationID, statusCode, reason); auditErr != nil {
		p.logger.Error("failed to record delivery failure", "error", auditErr)
	}
}

// maxResponseBody bounds how much of the webhook response is kept for the
// audit trail.
const maxResponseBody = 4 << 10

func (p *Pipeline) post(ctx context.Context, webhookURL string, payload LeadPayload) (int, string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, "", fmt.Errorf("delivery: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("delivery: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("delivery: post webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		respBody = nil
	}
	return resp.StatusCode, string(respBody), nil
}
