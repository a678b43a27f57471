package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/pathwise/chatbot-service/internal/app/chat"
	"github.com/pathwise/chatbot-service/internal/domain"
	"github.com/pathwise/chatbot-service/internal/observability"
)

const titleLimit = 50

// Service runs one full conversational turn: resolve the chat, build the
// context window, consult the reasoning component, persist both turns, and
// fold the derived signals back into the chat context.
type Service struct {
	chats    *chat.Service
	analyzer domain.IntentAnalyzer

	contextWindow int
}

func NewService(chats *chat.Service, analyzer domain.IntentAnalyzer) *Service {
	return &Service{
		chats:         chats,
		analyzer:      analyzer,
		contextWindow: chat.DefaultContextWindow,
	}
}

// WithContextWindow overrides the window handed to the analyzer.
func (s *Service) WithContextWindow(n int) *Service {
	if n > 0 {
		s.contextWindow = n
	}
	return s
}

type HandleMessageInput struct {
	UserID domain.UserID
	// ChatID pins the turn to a specific chat; empty means "the user's active
	// chat", created lazily.
	ChatID domain.ChatID
	Text   string
}

type HandleMessageOutput struct {
	ChatID      domain.ChatID
	MessageID   domain.TurnID
	Reply       string
	Suggestions []string
	Confidence  float64
}

func (s *Service) HandleMessage(ctx context.Context, in HandleMessageInput) (*HandleMessageOutput, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, &domain.ValidationError{Field: "message", Reason: "must not be empty"}
	}

	var (
		current *domain.Chat
		err     error
	)
	if in.ChatID != "" {
		current, err = s.chats.GetChat(ctx, in.ChatID, in.UserID)
	} else {
		current, err = s.chats.ResolveActiveChat(ctx, in.UserID)
	}
	if err != nil {
		return nil, err
	}

	log := observability.LoggerFromContext(ctx).With(
		"chat_id", current.ID,
		"user_id", current.UserID,
	)

	window := current.ContextWindow(s.contextWindow)
	firstMessage := len(current.Messages) == 0

	analysis, err := s.analyzer.Analyze(ctx, in.Text, window)
	if err != nil {
		log.Error("analyzer failed", "error", err)
		return nil, fmt.Errorf("analyzing message: %w", err)
	}

	if _, err := s.chats.AppendTurn(ctx, chat.AppendTurnInput{
		ChatID:  current.ID,
		Role:    domain.RoleUser,
		Content: in.Text,
		Metadata: &domain.TurnMetadata{
			Intent:     analysis.Intent,
			Confidence: analysis.Confidence,
		},
	}); err != nil {
		return nil, err
	}

	updated, err := s.chats.AppendTurn(ctx, chat.AppendTurnInput{
		ChatID:  current.ID,
		Role:    domain.RoleAssistant,
		Content: analysis.Reply,
		Metadata: &domain.TurnMetadata{
			Intent:      analysis.Intent,
			Confidence:  analysis.Confidence,
			Suggestions: analysis.Suggestions,
		},
	})
	if err != nil {
		return nil, err
	}

	out, err := s.chats.UpdateContext(ctx, chat.UpdateContextInput{
		ChatID:      current.ID,
		Intent:      analysis.Intent,
		Suggestions: analysis.Suggestions,
	})
	if err != nil {
		return nil, err
	}

	if len(analysis.Topics) > 0 {
		if _, err := s.chats.MergePreferences(ctx, chat.MergePreferencesInput{
			ChatID:  current.ID,
			Signals: chat.PreferenceSignals{Topics: analysis.Topics},
		}); err != nil {
			return nil, err
		}
	}

	if firstMessage {
		if err := s.chats.RenameChat(ctx, current.ID, current.UserID, deriveTitle(in.Text)); err != nil {
			// A missed title is not worth failing the turn over.
			log.Error("failed to set chat title", "error", err)
		}
	}

	log.Info("turn completed", "intent", analysis.Intent, "confidence", analysis.Confidence)

	assistantTurn := updated.Messages[len(updated.Messages)-1]
	return &HandleMessageOutput{
		ChatID:      current.ID,
		MessageID:   assistantTurn.ID,
		Reply:       analysis.Reply,
		Suggestions: out.Suggestions,
		Confidence:  analysis.Confidence,
	}, nil
}

// deriveTitle turns the first user message into the chat title.
func deriveTitle(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= titleLimit {
		return string(runes)
	}
	return string(runes[:titleLimit]) + "..."
}
