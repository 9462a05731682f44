package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/hrconsult-assistant/internal/session"
)

func newTestRouter(t *testing.T, completion CompletionClient) (http.Handler, *Service) {
	t.Helper()
	svc, _, _ := newTestService(t, completion)
	h := NewHandler(svc, true, nil)
	r := chi.NewRouter()
	r.Post("/chat/sessions", h.StartSession)
	r.Get("/chat/sessions/{sessionID}", h.GetSession)
	r.Get("/chat/sessions/{sessionID}/messages", h.ListMessages)
	r.Post("/chat/sessions/{sessionID}/messages", h.PostMessage)
	r.Post("/chat/sessions/{sessionID}/stream", h.StreamMessage)
	r.Post("/chat/sessions/{sessionID}/cancel", h.CancelTurn)
	r.Get("/chat/ws", h.WebSocket(NewUpgrader(nil)))
	return r, svc
}

func TestHandler_SessionLifecycle(t *testing.T) {
	router, _ := newTestRouter(t, &scriptedCompletion{steps: []completionStep{{result: CompletionResult{Text: "Happy to help with hiring.", Tokens: 9}}}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat/sessions", strings.NewReader(`{"session_id":"tab-1"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var conv session.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	assert.Equal(t, "tab-1", conv.SessionID)
	assert.Zero(t, conv.TotalMessages)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat/sessions/tab-1/messages", strings.NewReader(`{"message":"Can you help with hiring?"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	var result TurnResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, TurnRendered, result.State)
	require.NotNil(t, result.Reply)
	assert.Equal(t, "Happy to help with hiring.", result.Reply.Content)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat/sessions/tab-1/messages?limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var listed messagesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Messages, 1)
	assert.Equal(t, ChatRoleAssistant, listed.Messages[0].Role)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat/sessions/tab-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	assert.Equal(t, 2, conv.TotalMessages)
}

func TestHandler_Errors(t *testing.T) {
	router, _ := newTestRouter(t, &scriptedCompletion{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat/sessions/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat/sessions/s/messages", strings.NewReader(`{"message":""}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat/sessions/s/messages", strings.NewReader(`not json`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat/sessions/s/messages?limit=-2", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat/sessions/s/cancel", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_OversizedBodyRejectedBeforeTurn(t *testing.T) {
	completion := &scriptedCompletion{}
	router, _ := newTestRouter(t, completion)
	body := `{"message":"hi","padding":"` + strings.Repeat("x", maxChatBody) + `"}`

	for _, path := range []string{"/chat/sessions/big/messages", "/chat/sessions/big/stream"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat/sessions", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	completion.mu.Lock()
	defer completion.mu.Unlock()
	assert.Empty(t, completion.requests, "oversized bodies must not reach the model")
}

func TestHandler_ConcurrentTurnConflict(t *testing.T) {
	started := make(chan struct{})
	router, svc := newTestRouter(t, &scriptedCompletion{steps: []completionStep{{block: true, started: started}}})

	done := make(chan struct{})
	go func() {
		defer close(done)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat/sessions/busy/messages", strings.NewReader(`{"message":"first"}`)))
	}()
	<-started

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat/sessions/busy/messages", strings.NewReader(`{"message":"second"}`)))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat/sessions/busy/cancel", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	<-done
	assert.False(t, svc.Cancel("busy"))
}

func TestHandler_StreamWritesFragmentsThenDone(t *testing.T) {
	completion := &scriptedCompletion{steps: []completionStep{{
		fragments: []string{"Book ", "a consultation."},
		result:    CompletionResult{Text: "Book a consultation.", Tokens: 5},
	}}}
	router, _ := newTestRouter(t, completion)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat/sessions/s-sse/stream", strings.NewReader(`{"message":"how do I book?"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Equal(t, 2, strings.Count(body, "event: fragment"))
	assert.Contains(t, body, `data: {"text":"Book "}`)
	doneIdx := strings.Index(body, "event: done")
	require.Greater(t, doneIdx, strings.LastIndex(body, "event: fragment"))

	payload := body[doneIdx:]
	payload = strings.TrimSpace(strings.TrimPrefix(payload[strings.Index(payload, "data: "):], "data: "))
	var result TurnResult
	require.NoError(t, json.Unmarshal([]byte(payload), &result))
	require.NotNil(t, result.CTA)
	assert.Equal(t, "/contact", result.CTA.Path)
}

func TestHandler_WebSocketTurn(t *testing.T) {
	completion := &scriptedCompletion{steps: []completionStep{{
		fragments: []string{"Hi", " there"},
		result:    CompletionResult{Text: "Hi there", Tokens: 3},
	}}}
	router, _ := newTestRouter(t, completion)
	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/ws?session=ws-1"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Frame{Type: FrameMessage, Text: "hello"}))
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var texts bytes.Buffer
	for {
		var frame Frame
		require.NoError(t, conn.ReadJSON(&frame))
		if frame.Type == FrameFragment {
			texts.WriteString(frame.Text)
			continue
		}
		require.Equal(t, FrameDone, frame.Type, "unexpected frame %+v", frame)
		require.NotNil(t, frame.Result)
		assert.Equal(t, "Hi there", frame.Result.Reply.Content)
		break
	}
	assert.Equal(t, "Hi there", texts.String())
}

func TestHandler_WebSocketCloseLeavesOtherTransportTurnRunning(t *testing.T) {
	started := make(chan struct{})
	router, svc := newTestRouter(t, &scriptedCompletion{steps: []completionStep{{block: true, started: started}}})
	srv := httptest.NewServer(router)
	defer srv.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat/sessions/shared/messages", strings.NewReader(`{"message":"long question"}`)))
	}()
	<-started

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/ws?session=shared"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.NoError(t, conn.Close())

	assert.Never(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, 300*time.Millisecond, 20*time.Millisecond, "closing a socket must not abort the REST turn")

	assert.True(t, svc.Cancel("shared"))
	<-done
}

func TestHandler_WebSocketRequiresSession(t *testing.T) {
	router, _ := newTestRouter(t, &scriptedCompletion{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat/ws", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpgraderCheckOrigin(t *testing.T) {
	up := NewUpgrader(func(origin string) bool { return origin == "https://hrconsult.example" })
	req := httptest.NewRequest(http.MethodGet, "/chat/ws", nil).WithContext(context.Background())
	assert.True(t, up.CheckOrigin(req))
	req.Header.Set("Origin", "https://hrconsult.example")
	assert.True(t, up.CheckOrigin(req))
	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, up.CheckOrigin(req))

	assert.Nil(t, NewUpgrader(nil).CheckOrigin)
}
