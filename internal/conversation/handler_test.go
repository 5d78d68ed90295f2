package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTurnService struct {
	id    uuid.UUID
	reply string
	err   error

	gotClient  uuid.UUID
	gotConvID  *uuid.UUID
	gotMessage string
}

func (f *fakeTurnService) HandleTurn(_ context.Context, clientID uuid.UUID, conversationID *uuid.UUID, message string) (uuid.UUID, string, error) {
	f.gotClient = clientID
	f.gotConvID = conversationID
	f.gotMessage = message
	return f.id, f.reply, f.err
}

func postChat(t *testing.T, handler *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.Chat(rec, req)
	return rec
}

func TestChatSuccess(t *testing.T) {
	svc := &fakeTurnService{id: uuid.New(), reply: "Welcome!"}
	handler := NewHandler(svc, nil)
	clientID := uuid.New()

	rec := postChat(t, handler, `{"client_id": "`+clientID.String()+`", "message": "hi"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ChatResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, svc.id, resp.ConversationID)
	assert.Equal(t, "Welcome!", resp.Response)
	assert.Equal(t, clientID, svc.gotClient)
	assert.Nil(t, svc.gotConvID)
}

func TestChatPassesConversationID(t *testing.T) {
	svc := &fakeTurnService{id: uuid.New(), reply: "ok"}
	handler := NewHandler(svc, nil)
	clientID := uuid.New()
	convID := uuid.New()

	rec := postChat(t, handler, `{"client_id": "`+clientID.String()+`", "conversation_id": "`+convID.String()+`", "message": "hi again"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.gotConvID)
	assert.Equal(t, convID, *svc.gotConvID)
}

func TestChatRejectsMissingClientID(t *testing.T) {
	handler := NewHandler(&fakeTurnService{}, nil)
	rec := postChat(t, handler, `{"message": "hi"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatRejectsBlankMessage(t *testing.T) {
	handler := NewHandler(&fakeTurnService{}, nil)
	rec := postChat(t, handler, `{"client_id": "`+uuid.NewString()+`", "message": "   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatRejectsMalformedBody(t *testing.T) {
	handler := NewHandler(&fakeTurnService{}, nil)
	rec := postChat(t, handler, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatServiceError(t *testing.T) {
	svc := &fakeTurnService{err: errors.New("db down")}
	handler := NewHandler(svc, nil)
	rec := postChat(t, handler, `{"client_id": "`+uuid.NewString()+`", "message": "hi"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
