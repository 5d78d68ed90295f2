package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFinalizer struct {
	finalized map[uuid.UUID]bool
	mu        sync.Mutex
}

func (f *fakeFinalizer) Finalize(_ context.Context, conversationID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finalized == nil {
		f.finalized = make(map[uuid.UUID]bool)
	}
	if f.finalized[conversationID] {
		return false, nil
	}
	f.finalized[conversationID] = true
	return true, nil
}

type fakeDirectory struct {
	url string
	err error
}

func (f *fakeDirectory) WebhookURL(_ context.Context, _ uuid.UUID) (string, error) {
	return f.url, f.err
}

type recordingAudit struct {
	mu        sync.Mutex
	attempts  int
	successes []int
	failures  []string
}

func (a *recordingAudit) RecordAttempt(_ context.Context, _, _ uuid.UUID, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attempts++
	return nil
}

func (a *recordingAudit) RecordSuccess(_ context.Context, _, _ uuid.UUID, statusCode int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.successes = append(a.successes, statusCode)
	return nil
}

func (a *recordingAudit) RecordFailure(_ context.Context, _, _ uuid.UUID, _ int, reason string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures = append(a.failures, reason)
	return nil
}

func (a *recordingAudit) snapshot() (int, []int, []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attempts, a.successes, a.failures
}

func drain(t *testing.T, p *Pipeline) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Close(ctx))
}

func TestDeliverLeadSuccess(t *testing.T) {
	var received LeadPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	audit := &recordingAudit{}
	pipeline := NewPipeline(&fakeFinalizer{}, &fakeDirectory{url: server.URL}, audit, nil)

	clientID := uuid.New()
	convID := uuid.New()
	name := "Dana"
	phone := "555-0100"
	state := map[string]*string{"name": &name, "phone": &phone, "email": nil}

	pipeline.DeliverLead(clientID, convID, state)
	drain(t, pipeline)

	attempts, successes, failures := audit.snapshot()
	assert.Equal(t, 1, attempts)
	assert.Equal(t, []int{http.StatusOK}, successes)
	assert.Empty(t, failures)

	assert.Equal(t, clientID, received.ClientID)
	assert.Equal(t, convID, received.ConversationID)
	require.NotNil(t, received.Name)
	assert.Equal(t, "Dana", *received.Name)
	assert.Nil(t, received.Email)
	require.NotNil(t, received.LeadData["phone"])
	assert.Equal(t, "555-0100", *received.LeadData["phone"])
}

func TestDeliverLeadNon200RecordsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"lead intake is down"}`))
	}))
	defer server.Close()

	audit := &recordingAudit{}
	pipeline := NewPipeline(&fakeFinalizer{}, &fakeDirectory{url: server.URL}, audit, nil)

	pipeline.DeliverLead(uuid.New(), uuid.New(), map[string]*string{})
	drain(t, pipeline)

	attempts, successes, failures := audit.snapshot()
	assert.Equal(t, 1, attempts)
	assert.Empty(t, successes)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0], "502")
	assert.Contains(t, failures[0], "lead intake is down", "failure audit carries the response body text")
}

func TestDeliverLeadTransportErrorRecordsFailure(t *testing.T) {
	audit := &recordingAudit{}
	pipeline := NewPipeline(&fakeFinalizer{}, &fakeDirectory{url: "http://127.0.0.1:1/webhook"}, audit, nil)

	pipeline.DeliverLead(uuid.New(), uuid.New(), map[string]*string{})
	drain(t, pipeline)

	attempts, successes, failures := audit.snapshot()
	assert.Equal(t, 1, attempts)
	assert.Empty(t, successes)
	assert.Len(t, failures, 1)
}

func TestDeliverLeadNoWebhookSkipsSilently(t *testing.T) {
	audit := &recordingAudit{}
	pipeline := NewPipeline(&fakeFinalizer{}, &fakeDirectory{url: ""}, audit, nil)

	pipeline.DeliverLead(uuid.New(), uuid.New(), map[string]*string{})
	drain(t, pipeline)

	attempts, successes, failures := audit.snapshot()
	assert.Zero(t, attempts, "no webhook configured means no attempt row")
	assert.Empty(t, successes)
	assert.Empty(t, failures)
}

func TestFinalizeDelegatesIdempotently(t *testing.T) {
	pipeline := NewPipeline(&fakeFinalizer{}, &fakeDirectory{}, &recordingAudit{}, nil)
	convID := uuid.New()

	won, err := pipeline.Finalize(context.Background(), convID)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = pipeline.Finalize(context.Background(), convID)
	require.NoError(t, err)
	assert.False(t, won)
}
