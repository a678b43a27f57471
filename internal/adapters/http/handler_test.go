package httpadapter_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	httpadapter "github.com/pathwise/chatbot-service/internal/adapters/http"
	"github.com/pathwise/chatbot-service/internal/adapters/nlu"
	"github.com/pathwise/chatbot-service/internal/adapters/storage/memory"
	"github.com/pathwise/chatbot-service/internal/app/assistant"
	"github.com/pathwise/chatbot-service/internal/app/chat"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	chatSvc := chat.NewService(memory.NewChatStore())
	assistantSvc := assistant.NewService(chatSvc, nlu.NewRuleAnalyzer())

	return httpadapter.NewServer(assistantSvc, chatSvc)
}

func doJSON(t *testing.T, srv http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRoot(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodGet, "/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Service string `json:"service"`
		Status  string `json:"status"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Service == "" || resp.Status != "running" {
		t.Errorf("unexpected root payload: %+v", resp)
	}

	// The catch-all must not answer for unknown paths.
	w = doJSON(t, srv, http.MethodGet, "/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown path, got %d", w.Code)
	}
}

func TestChatAndHistoryFlow(t *testing.T) {
	srv := newTestServer(t)

	// One conversational turn.
	w := doJSON(t, srv, http.MethodPost, "/chat", map[string]string{
		"user_id": "test-user",
		"message": "help me plan my career",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", w.Code, w.Body.String())
	}

	var turn struct {
		Response   string  `json:"response"`
		ChatID     string  `json:"chat_id"`
		MessageID  string  `json:"message_id"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.NewDecoder(w.Body).Decode(&turn); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if turn.Response == "" || turn.ChatID == "" || turn.MessageID == "" {
		t.Fatalf("incomplete chat response: %+v", turn)
	}

	// History listing shows the (auto-titled) chat.
	w = doJSON(t, srv, http.MethodGet, "/chats/test-user", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var list struct {
		Chats []struct {
			ChatID       string `json:"chat_id"`
			Title        string `json:"title"`
			MessageCount int    `json:"message_count"`
		} `json:"chats"`
	}
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Chats) != 1 {
		t.Fatalf("expected 1 chat, got %d", len(list.Chats))
	}
	if list.Chats[0].Title != "help me plan my career" {
		t.Errorf("unexpected title %q", list.Chats[0].Title)
	}
	if list.Chats[0].MessageCount != 2 {
		t.Errorf("expected 2 messages, got %d", list.Chats[0].MessageCount)
	}

	// Fetch the chat with its messages.
	w = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/chats/test-user/%s", turn.ChatID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode chat: %v", err)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got.Messages))
	}
	if got.Messages[0].Role != "user" || got.Messages[1].Role != "assistant" {
		t.Errorf("unexpected roles: %+v", got.Messages)
	}

	// Another user cannot see it.
	w = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/chats/other-user/%s", turn.ChatID), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for foreign user, got %d", w.Code)
	}
}

func TestNewChatDeactivatesOld(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/chat", map[string]string{
		"user_id": "test-user",
		"message": "hi",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var first struct {
		ChatID string `json:"chat_id"`
	}
	if err := json.NewDecoder(w.Body).Decode(&first); err != nil {
		t.Fatalf("decode: %v", err)
	}

	w = doJSON(t, srv, http.MethodPost, "/chats/new", map[string]string{
		"user_id": "test-user",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d, body=%s", w.Code, w.Body.String())
	}
	var fresh struct {
		ChatID string `json:"chat_id"`
		Title  string `json:"title"`
	}
	if err := json.NewDecoder(w.Body).Decode(&fresh); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fresh.ChatID == first.ChatID {
		t.Fatal("expected a new chat id")
	}

	// The next /chat turn lands in the fresh chat.
	w = doJSON(t, srv, http.MethodPost, "/chat", map[string]string{
		"user_id": "test-user",
		"message": "hello again",
	})
	var next struct {
		ChatID string `json:"chat_id"`
	}
	if err := json.NewDecoder(w.Body).Decode(&next); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if next.ChatID != fresh.ChatID {
		t.Errorf("turn went to %s, expected fresh chat %s", next.ChatID, fresh.ChatID)
	}
}

func TestRenameAndDeleteChat(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/chats/new", map[string]string{"user_id": "test-user"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	var created struct {
		ChatID string `json:"chat_id"`
	}
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	path := fmt.Sprintf("/chats/test-user/%s", created.ChatID)

	w = doJSON(t, srv, http.MethodPut, path+"/title", map[string]string{"title": "Roadmap talk"})
	if w.Code != http.StatusOK {
		t.Fatalf("rename: expected 200, got %d, body=%s", w.Code, w.Body.String())
	}

	w = doJSON(t, srv, http.MethodPut, path+"/title", map[string]string{"title": "  "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty title: expected 400, got %d", w.Code)
	}

	w = doJSON(t, srv, http.MethodDelete, path, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", w.Code)
	}

	w = doJSON(t, srv, http.MethodGet, path, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", w.Code)
	}
}

func TestChatValidation(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/chat", map[string]string{"message": "hi"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing user_id: expected 400, got %d", w.Code)
	}

	w = doJSON(t, srv, http.MethodPost, "/chat", map[string]string{"user_id": "u", "message": ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty message: expected 400, got %d", w.Code)
	}

	w = doJSON(t, srv, http.MethodGet, "/chat", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /chat: expected 405, got %d", w.Code)
	}
}

func TestSuggestions(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodGet, "/suggestions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Suggestions []string `json:"suggestions"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Suggestions) == 0 {
		t.Error("expected conversation starters")
	}
}
