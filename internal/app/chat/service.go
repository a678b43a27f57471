package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pathwise/chatbot-service/internal/domain"
	"github.com/pathwise/chatbot-service/internal/observability"
)

const (
	// DefaultContextWindow is the on-demand window handed to the reasoning
	// component.
	DefaultContextWindow = 10

	// DefaultHistoryWindow is the always-on summary window kept in
	// Context.ConversationHistory. Deliberately independent from the
	// on-demand window.
	DefaultHistoryWindow = 5

	// DefaultListLimit bounds history listings when the caller passes no limit.
	DefaultListLimit = 20
)

// Service implements the conversational session subsystem: chat lifecycle,
// the append-only message log, bounded context windows, and aggregation of
// derived signals into session state.
type Service struct {
	store domain.ChatStore
	now   func() time.Time

	historyWindow int
}

func NewService(store domain.ChatStore) *Service {
	return &Service{
		store:         store,
		now:           time.Now,
		historyWindow: DefaultHistoryWindow,
	}
}

// WithHistoryWindow overrides the summary window used by UpdateContext.
func (s *Service) WithHistoryWindow(n int) *Service {
	if n > 0 {
		s.historyWindow = n
	}
	return s
}

// ResolveActiveChat returns the user's active chat, creating one lazily when
// none exists. Idempotent: two calls in a row return the same chat. When two
// concurrent calls race on creation, the loser observes the winner's chat
// instead of erroring.
func (s *Service) ResolveActiveChat(ctx context.Context, userID domain.UserID) (*domain.Chat, error) {
	if userID == "" {
		return nil, &domain.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}

	chat, err := s.store.FindActiveChat(ctx, userID)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("resolving active chat: %w", err)
	}

	log := observability.LoggerFromContext(ctx).With("user_id", userID)

	fresh := s.newChat(userID, domain.DefaultTitle)
	if err := s.store.CreateActiveChat(ctx, fresh); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Lost the create-if-absent race: the winner's chat is the
			// correct result.
			log.Info("active chat creation lost race, re-reading")
			return s.store.FindActiveChat(ctx, userID)
		}
		return nil, fmt.Errorf("creating active chat: %w", err)
	}

	log.Info("active chat created", "chat_id", fresh.ID)
	return fresh, nil
}

type StartNewChatInput struct {
	UserID domain.UserID
	Title  string
}

// StartNewChat deactivates the user's current active chat (if any) and
// creates a fresh one. The old chat stays readable but leaves the write path.
func (s *Service) StartNewChat(ctx context.Context, in StartNewChatInput) (*domain.Chat, error) {
	if in.UserID == "" {
		return nil, &domain.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}

	log := observability.LoggerFromContext(ctx).With("user_id", in.UserID)

	current, err := s.store.FindActiveChat(ctx, in.UserID)
	switch {
	case err == nil:
		if err := s.store.DeactivateChat(ctx, current.ID); err != nil {
			return nil, fmt.Errorf("deactivating chat %s: %w", current.ID, err)
		}
		log.Info("chat deactivated", "chat_id", current.ID)
	case errors.Is(err, domain.ErrNotFound):
		// Nothing to deactivate.
	default:
		return nil, fmt.Errorf("looking up active chat: %w", err)
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = domain.DefaultTitle
	}

	fresh := s.newChat(in.UserID, title)
	if err := s.store.CreateActiveChat(ctx, fresh); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return s.store.FindActiveChat(ctx, in.UserID)
		}
		return nil, fmt.Errorf("creating chat: %w", err)
	}

	log.Info("new chat started", "chat_id", fresh.ID)
	return fresh, nil
}

type AppendTurnInput struct {
	ChatID   domain.ChatID
	Role     domain.Role
	Content  string
	Metadata *domain.TurnMetadata
}

// AppendTurn validates and appends one turn to the chat's log. The timestamp
// is server-assigned; LastMessageAt advances with it. Prior turns are never
// removed or reordered.
func (s *Service) AppendTurn(ctx context.Context, in AppendTurnInput) (*domain.Chat, error) {
	if in.ChatID == "" {
		return nil, &domain.ValidationError{Field: "chat_id", Reason: "must not be empty"}
	}
	if !domain.ValidRole(in.Role) {
		return nil, &domain.ValidationError{Field: "role", Reason: fmt.Sprintf("must be %q or %q", domain.RoleUser, domain.RoleAssistant)}
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, &domain.ValidationError{Field: "content", Reason: "must not be empty"}
	}

	turn := domain.Turn{
		ID:        domain.TurnID(uuid.NewString()),
		Role:      in.Role,
		Content:   in.Content,
		Timestamp: s.now(),
		Metadata:  in.Metadata,
	}

	chat, err := s.store.AppendTurn(ctx, in.ChatID, turn)
	if err != nil {
		return nil, fmt.Errorf("appending turn to chat %s: %w", in.ChatID, err)
	}
	return chat, nil
}

// BuildContext loads the chat and projects its last maxMessages turns to
// role/content pairs, in chronological order. Read-only. maxMessages <= 0
// yields an empty window.
func (s *Service) BuildContext(ctx context.Context, id domain.ChatID, maxMessages int) ([]domain.ContextMessage, error) {
	chat, err := s.store.GetChat(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading chat %s: %w", id, err)
	}
	return chat.ContextWindow(maxMessages), nil
}

type UpdateContextInput struct {
	ChatID      domain.ChatID
	Intent      string
	Suggestions []string
}

type UpdateContextOutput struct {
	Chat *domain.Chat

	// Suggestions are echoed back as transient guidance for the caller; they
	// are never persisted into the chat context.
	Suggestions []string
}

// UpdateContext sets the current intent and refreshes the conversation
// history summary from the last turns of the log.
func (s *Service) UpdateContext(ctx context.Context, in UpdateContextInput) (*UpdateContextOutput, error) {
	if in.ChatID == "" {
		return nil, &domain.ValidationError{Field: "chat_id", Reason: "must not be empty"}
	}
	if strings.TrimSpace(in.Intent) == "" {
		return nil, &domain.ValidationError{Field: "intent", Reason: "must not be empty"}
	}

	chat, err := s.casContext(ctx, in.ChatID, func(chat *domain.Chat, next *domain.ChatContext) {
		next.CurrentIntent = in.Intent
		next.ConversationHistory = chat.RecentContents(s.historyWindow)
	})
	if err != nil {
		return nil, err
	}

	return &UpdateContextOutput{Chat: chat, Suggestions: in.Suggestions}, nil
}

// PreferenceSignals carries incoming preference updates. Empty fields mean
// "no signal".
type PreferenceSignals struct {
	Topics      []string
	SkillLevel  domain.SkillLevel
	CareerGoals []string
}

type MergePreferencesInput struct {
	ChatID  domain.ChatID
	Signals PreferenceSignals
}

// MergePreferences folds signals into the chat's user preferences. Topics and
// career goals accumulate as de-duplicated sets; the skill level is
// last-write-wins. Idempotent for repeated topic/goal signals.
func (s *Service) MergePreferences(ctx context.Context, in MergePreferencesInput) (*domain.Chat, error) {
	if in.ChatID == "" {
		return nil, &domain.ValidationError{Field: "chat_id", Reason: "must not be empty"}
	}

	return s.casContext(ctx, in.ChatID, func(_ *domain.Chat, next *domain.ChatContext) {
		prefs := &next.UserPreferences
		prefs.PreferredTopics = mergeUnique(prefs.PreferredTopics, in.Signals.Topics)
		prefs.CareerGoals = mergeUnique(prefs.CareerGoals, in.Signals.CareerGoals)
		if in.Signals.SkillLevel != "" {
			prefs.SkillLevel = in.Signals.SkillLevel
		}
	})
}

// ListUserChats returns the user's chats ordered by last activity, newest
// first, projected to summary fields.
func (s *Service) ListUserChats(ctx context.Context, userID domain.UserID, limit int) ([]*domain.ChatSummary, error) {
	if userID == "" {
		return nil, &domain.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	summaries, err := s.store.ListChatsByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing chats for %s: %w", userID, err)
	}
	return summaries, nil
}

// GetChat loads a chat and verifies ownership. A chat belonging to another
// user is indistinguishable from a missing one.
func (s *Service) GetChat(ctx context.Context, id domain.ChatID, userID domain.UserID) (*domain.Chat, error) {
	chat, err := s.store.GetChat(ctx, id)
	if err != nil {
		return nil, err
	}
	if chat.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return chat, nil
}

// RenameChat updates the chat title.
func (s *Service) RenameChat(ctx context.Context, id domain.ChatID, userID domain.UserID, title string) error {
	if strings.TrimSpace(title) == "" {
		return &domain.ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if _, err := s.GetChat(ctx, id, userID); err != nil {
		return err
	}
	return s.store.SetTitle(ctx, id, title)
}

// DeleteChat removes a chat entirely. Deletion is a route-level convenience;
// the session lifecycle itself only ever deactivates.
func (s *Service) DeleteChat(ctx context.Context, id domain.ChatID, userID domain.UserID) error {
	return s.store.DeleteChat(ctx, id, userID)
}

// casContext runs one compare-and-swap cycle on the context sub-record,
// re-reading and retrying once when a concurrent writer got there first.
func (s *Service) casContext(ctx context.Context, id domain.ChatID, mutate func(*domain.Chat, *domain.ChatContext)) (*domain.Chat, error) {
	for attempt := 0; ; attempt++ {
		chat, err := s.store.GetChat(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("loading chat %s: %w", id, err)
		}

		next := chat.Context
		mutate(chat, &next)
		next.Version = chat.Context.Version + 1

		updated, err := s.store.UpdateContext(ctx, id, chat.Context.Version, next)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, domain.ErrConflict) && attempt == 0 {
			observability.LoggerFromContext(ctx).Info("context update lost race, retrying", "chat_id", id)
			continue
		}
		return nil, fmt.Errorf("updating context of chat %s: %w", id, err)
	}
}

func (s *Service) newChat(userID domain.UserID, title string) *domain.Chat {
	now := s.now()
	return &domain.Chat{
		ID:            domain.ChatID(uuid.NewString()),
		UserID:        userID,
		Title:         title,
		Messages:      []domain.Turn{},
		IsActive:      true,
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
		Context:       domain.DefaultContext(),
	}
}

func mergeUnique(existing, incoming []string) []string {
	if len(incoming) == 0 {
		return existing
	}

	seen := make(map[string]struct{}, len(existing))
	for _, v := range existing {
		seen[v] = struct{}{}
	}

	out := existing
	for _, v := range incoming {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
