package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pathwise/chatbot-service/internal/adapters/nlu"
	"github.com/pathwise/chatbot-service/internal/app/assistant"
	"github.com/pathwise/chatbot-service/internal/app/chat"
	"github.com/pathwise/chatbot-service/internal/domain"
)

type Server struct {
	assistant *assistant.Service
	chats     *chat.Service
}

func NewServer(assistantSvc *assistant.Service, chatSvc *chat.Service) http.Handler {
	s := &Server{assistant: assistantSvc, chats: chatSvc}
	mux := http.NewServeMux()

	// / → liveness + service identification
	mux.HandleFunc("/", s.handleRoot)

	mux.HandleFunc("/healthz", s.handleHealthz)

	// /chat → run one conversational turn (POST)
	mux.HandleFunc("/chat", s.handleChat)

	// /suggestions → conversation starters (GET)
	mux.HandleFunc("/suggestions", s.handleSuggestions)

	// /chats/new          → POST: start a fresh chat (deactivates the old one)
	// /chats/{user_id}    → GET: chat history listing
	// /chats/{user_id}/{chat_id}        → GET: one chat with messages, DELETE
	// /chats/{user_id}/{chat_id}/title  → PUT: rename
	mux.HandleFunc("/chats/", s.handleChats)

	return chainMiddlewares(mux, withCORS, withLogging, withRequestID)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type chatRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
	ChatID  string `json:"chat_id,omitempty"`
}

type chatResponse struct {
	Response    string   `json:"response"`
	Suggestions []string `json:"suggestions"`
	Confidence  float64  `json:"confidence"`
	ChatID      string   `json:"chat_id"`
	MessageID   string   `json:"message_id"`
}

type newChatRequest struct {
	UserID string `json:"user_id"`
	Title  string `json:"title,omitempty"`
}

type newChatResponse struct {
	ChatID    string    `json:"chat_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type chatSummaryResponse struct {
	ChatID        string    `json:"chat_id"`
	Title         string    `json:"title"`
	LastMessageAt time.Time `json:"last_message_at"`
	CreatedAt     time.Time `json:"created_at"`
	MessageCount  int       `json:"message_count"`
}

type listChatsResponse struct {
	Chats []chatSummaryResponse `json:"chats"`
}

type turnResponse struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	Intent      string   `json:"intent,omitempty"`
	Confidence  float64  `json:"confidence,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

type getChatResponse struct {
	ChatID   string         `json:"chat_id"`
	Title    string         `json:"title"`
	IsActive bool           `json:"is_active"`
	Messages []turnResponse `json:"messages"`
}

type renameChatRequest struct {
	Title string `json:"title"`
}

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	// "/" is the mux catch-all; anything but the root itself is unknown.
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "PathWise Chatbot Service",
		"status":  "running",
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "chatbot"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		badRequest(w, "user_id is required")
		return
	}

	out, err := s.assistant.HandleMessage(r.Context(), assistant.HandleMessageInput{
		UserID: domain.UserID(req.UserID),
		ChatID: domain.ChatID(req.ChatID),
		Text:   req.Message,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Response:    out.Reply,
		Suggestions: out.Suggestions,
		Confidence:  out.Confidence,
		ChatID:      string(out.ChatID),
		MessageID:   string(out.MessageID),
	})
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{
		"suggestions": nlu.ConversationStarters,
	})
}

// /chats/new, /chats/{user_id}, /chats/{user_id}/{chat_id}[/title]
func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/chats/")
	if path == "" {
		http.NotFound(w, r)
		return
	}

	parts := strings.Split(path, "/")

	if len(parts) == 1 && parts[0] == "new" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		s.handleNewChat(w, r)
		return
	}

	userID := domain.UserID(parts[0])
	if userID == "" {
		http.NotFound(w, r)
		return
	}

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		s.handleListChats(w, r, userID)

	case len(parts) == 2:
		chatID := domain.ChatID(parts[1])
		switch r.Method {
		case http.MethodGet:
			s.handleGetChat(w, r, userID, chatID)
		case http.MethodDelete:
			s.handleDeleteChat(w, r, userID, chatID)
		default:
			methodNotAllowed(w)
		}

	case len(parts) == 3 && parts[2] == "title":
		if r.Method != http.MethodPut {
			methodNotAllowed(w)
			return
		}
		s.handleRenameChat(w, r, userID, domain.ChatID(parts[1]))

	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleNewChat(w http.ResponseWriter, r *http.Request) {
	var req newChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		badRequest(w, "user_id is required")
		return
	}

	created, err := s.chats.StartNewChat(r.Context(), chat.StartNewChatInput{
		UserID: domain.UserID(req.UserID),
		Title:  req.Title,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, newChatResponse{
		ChatID:    string(created.ID),
		Title:     created.Title,
		CreatedAt: created.CreatedAt,
	})
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request, userID domain.UserID) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			badRequest(w, "limit must be an integer")
			return
		}
		limit = n
	}

	summaries, err := s.chats.ListUserChats(r.Context(), userID, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := listChatsResponse{Chats: make([]chatSummaryResponse, 0, len(summaries))}
	for _, c := range summaries {
		resp.Chats = append(resp.Chats, chatSummaryResponse{
			ChatID:        string(c.ID),
			Title:         c.Title,
			LastMessageAt: c.LastMessageAt,
			CreatedAt:     c.CreatedAt,
			MessageCount:  c.TurnCount,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request, userID domain.UserID, chatID domain.ChatID) {
	found, err := s.chats.GetChat(r.Context(), chatID, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := getChatResponse{
		ChatID:   string(found.ID),
		Title:    found.Title,
		IsActive: found.IsActive,
		Messages: make([]turnResponse, 0, len(found.Messages)),
	}
	for _, t := range found.Messages {
		tr := turnResponse{
			ID:        string(t.ID),
			Role:      string(t.Role),
			Content:   t.Content,
			Timestamp: t.Timestamp,
		}
		if t.Metadata != nil {
			tr.Intent = t.Metadata.Intent
			tr.Confidence = t.Metadata.Confidence
			tr.Suggestions = t.Metadata.Suggestions
		}
		resp.Messages = append(resp.Messages, tr)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRenameChat(w http.ResponseWriter, r *http.Request, userID domain.UserID, chatID domain.ChatID) {
	var req renameChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	if err := s.chats.RenameChat(r.Context(), chatID, userID, req.Title); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Title updated successfully"})
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request, userID domain.UserID, chatID domain.ChatID) {
	if err := s.chats.DeleteChat(r.Context(), chatID, userID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Chat deleted successfully"})
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{
		"error": "method not allowed",
	})
}

// writeError maps the domain error taxonomy onto status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidation(err):
		badRequest(w, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "chat not found"})
	case errors.Is(err, domain.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "conflicting update, retry"})
	case errors.Is(err, domain.ErrUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "storage unavailable"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
