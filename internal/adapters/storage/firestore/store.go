package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pathwise/chatbot-service/internal/domain"
)

// Store persists chats in Firestore: one document per chat in the "chats"
// collection, with the append-only log as a "turns" subcollection. Turns as
// individual documents keep concurrent appends from overwriting each other;
// the chat document itself only carries summary fields and the versioned
// context sub-record.
type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore store for the given project.
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) chatsCol() *firestore.CollectionRef {
	return s.client.Collection("chats")
}

func (s *Store) chatDoc(id domain.ChatID) *firestore.DocumentRef {
	return s.chatsCol().Doc(string(id))
}

func (s *Store) turnsCol(id domain.ChatID) *firestore.CollectionRef {
	return s.chatDoc(id).Collection("turns")
}

// mapErr translates gRPC status codes into the domain error taxonomy.
func mapErr(op string, err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return domain.ErrNotFound
	case codes.AlreadyExists, codes.Aborted, codes.FailedPrecondition:
		return domain.ErrConflict
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("firestore %s: %w: %v", op, domain.ErrUnavailable, err)
	}
	return fmt.Errorf("firestore %s: %w", op, err)
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type contextDoc struct {
	CurrentIntent       string   `firestore:"current_intent"`
	ConversationHistory []string `firestore:"conversation_history"`
	PreferredTopics     []string `firestore:"preferred_topics"`
	SkillLevel          string   `firestore:"skill_level"`
	CareerGoals         []string `firestore:"career_goals"`
	Version             int64    `firestore:"version"`
}

type chatDoc struct {
	UserID        string     `firestore:"user_id"`
	Title         string     `firestore:"title"`
	IsActive      bool       `firestore:"is_active"`
	LastMessageAt time.Time  `firestore:"last_message_at"`
	CreatedAt     time.Time  `firestore:"created_at"`
	UpdatedAt     time.Time  `firestore:"updated_at"`
	TurnCount     int        `firestore:"turn_count"`
	Context       contextDoc `firestore:"context"`
}

type turnMetadataDoc struct {
	Confidence  float64  `firestore:"confidence"`
	Intent      string   `firestore:"intent"`
	Suggestions []string `firestore:"suggestions"`
}

type turnDoc struct {
	Role      string           `firestore:"role"`
	Content   string           `firestore:"content"`
	Timestamp time.Time        `firestore:"timestamp"`
	Metadata  *turnMetadataDoc `firestore:"metadata"`
}

func toContextDoc(c domain.ChatContext) contextDoc {
	return contextDoc{
		CurrentIntent:       c.CurrentIntent,
		ConversationHistory: c.ConversationHistory,
		PreferredTopics:     c.UserPreferences.PreferredTopics,
		SkillLevel:          string(c.UserPreferences.SkillLevel),
		CareerGoals:         c.UserPreferences.CareerGoals,
		Version:             c.Version,
	}
}

func fromContextDoc(d contextDoc) domain.ChatContext {
	return domain.ChatContext{
		CurrentIntent:       d.CurrentIntent,
		ConversationHistory: d.ConversationHistory,
		UserPreferences: domain.UserPreferences{
			PreferredTopics: d.PreferredTopics,
			SkillLevel:      domain.SkillLevel(d.SkillLevel),
			CareerGoals:     d.CareerGoals,
		},
		Version: d.Version,
	}
}

func toChatDoc(chat *domain.Chat) chatDoc {
	return chatDoc{
		UserID:        string(chat.UserID),
		Title:         chat.Title,
		IsActive:      chat.IsActive,
		LastMessageAt: chat.LastMessageAt,
		CreatedAt:     chat.CreatedAt,
		UpdatedAt:     chat.UpdatedAt,
		TurnCount:     len(chat.Messages),
		Context:       toContextDoc(chat.Context),
	}
}

func fromChatDoc(id domain.ChatID, d chatDoc, turns []domain.Turn) *domain.Chat {
	return &domain.Chat{
		ID:            id,
		UserID:        domain.UserID(d.UserID),
		Title:         d.Title,
		Messages:      turns,
		IsActive:      d.IsActive,
		LastMessageAt: d.LastMessageAt,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
		Context:       fromContextDoc(d.Context),
	}
}

func toTurnDoc(turn domain.Turn) turnDoc {
	doc := turnDoc{
		Role:      string(turn.Role),
		Content:   turn.Content,
		Timestamp: turn.Timestamp,
	}
	if turn.Metadata != nil {
		doc.Metadata = &turnMetadataDoc{
			Confidence:  turn.Metadata.Confidence,
			Intent:      turn.Metadata.Intent,
			Suggestions: turn.Metadata.Suggestions,
		}
	}
	return doc
}

func fromTurnDoc(id domain.TurnID, d turnDoc) domain.Turn {
	turn := domain.Turn{
		ID:        id,
		Role:      domain.Role(d.Role),
		Content:   d.Content,
		Timestamp: d.Timestamp,
	}
	if d.Metadata != nil {
		turn.Metadata = &domain.TurnMetadata{
			Confidence:  d.Metadata.Confidence,
			Intent:      d.Metadata.Intent,
			Suggestions: d.Metadata.Suggestions,
		}
	}
	return turn
}

// ─────────────────────────────────────────
// ChatStore implementation
// ─────────────────────────────────────────

// CreateActiveChat creates the chat document inside a transaction that first
// checks for an existing active chat of the same user. Firestore serializes
// the conflicting transactions, so two concurrent creations cannot both
// succeed.
func (s *Store) CreateActiveChat(ctx context.Context, chat *domain.Chat) error {
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		q := s.chatsCol().
			Where("user_id", "==", string(chat.UserID)).
			Where("is_active", "==", true).
			Limit(1)

		iter := tx.Documents(q)
		defer iter.Stop()

		if _, err := iter.Next(); err != iterator.Done {
			if err != nil {
				return err
			}
			return domain.ErrConflict
		}

		return tx.Create(s.chatDoc(chat.ID), toChatDoc(chat))
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return domain.ErrConflict
		}
		return mapErr("CreateActiveChat", err)
	}
	return nil
}

func (s *Store) GetChat(ctx context.Context, id domain.ChatID) (*domain.Chat, error) {
	snap, err := s.chatDoc(id).Get(ctx)
	if err != nil {
		return nil, mapErr("GetChat", err)
	}

	var doc chatDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore GetChat decode: %w", err)
	}

	turns, err := s.loadTurns(ctx, id)
	if err != nil {
		return nil, err
	}

	return fromChatDoc(id, doc, turns), nil
}

func (s *Store) FindActiveChat(ctx context.Context, userID domain.UserID) (*domain.Chat, error) {
	q := s.chatsCol().
		Where("user_id", "==", string(userID)).
		Where("is_active", "==", true).
		Limit(1)

	iter := q.Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if err == iterator.Done {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, mapErr("FindActiveChat", err)
	}

	var doc chatDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore FindActiveChat decode: %w", err)
	}

	id := domain.ChatID(snap.Ref.ID)
	turns, err := s.loadTurns(ctx, id)
	if err != nil {
		return nil, err
	}

	return fromChatDoc(id, doc, turns), nil
}

// AppendTurn writes the turn as its own document and advances the chat's
// summary fields in the same transaction. Concurrent appends create distinct
// turn documents; neither is lost.
func (s *Store) AppendTurn(ctx context.Context, id domain.ChatID, turn domain.Turn) (*domain.Chat, error) {
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(s.chatDoc(id))
		if err != nil {
			return err
		}

		var doc chatDoc
		if err := snap.DataTo(&doc); err != nil {
			return err
		}

		if err := tx.Create(s.turnsCol(id).Doc(string(turn.ID)), toTurnDoc(turn)); err != nil {
			return err
		}

		last := doc.LastMessageAt
		if turn.Timestamp.After(last) {
			last = turn.Timestamp
		}

		return tx.Update(s.chatDoc(id), []firestore.Update{
			{Path: "last_message_at", Value: last},
			{Path: "updated_at", Value: turn.Timestamp},
			{Path: "turn_count", Value: doc.TurnCount + 1},
		})
	})
	if err != nil {
		return nil, mapErr("AppendTurn", err)
	}

	return s.GetChat(ctx, id)
}

// UpdateContext replaces the context sub-record if and only if its stored
// version still equals baseVersion.
func (s *Store) UpdateContext(ctx context.Context, id domain.ChatID, baseVersion int64, next domain.ChatContext) (*domain.Chat, error) {
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(s.chatDoc(id))
		if err != nil {
			return err
		}

		var doc chatDoc
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		if doc.Context.Version != baseVersion {
			return domain.ErrConflict
		}

		return tx.Update(s.chatDoc(id), []firestore.Update{
			{Path: "context", Value: toContextDoc(next)},
			{Path: "updated_at", Value: time.Now()},
		})
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, domain.ErrConflict
		}
		return nil, mapErr("UpdateContext", err)
	}

	return s.GetChat(ctx, id)
}

func (s *Store) DeactivateChat(ctx context.Context, id domain.ChatID) error {
	_, err := s.chatDoc(id).Update(ctx, []firestore.Update{
		{Path: "is_active", Value: false},
		{Path: "updated_at", Value: time.Now()},
	})
	if err != nil {
		return mapErr("DeactivateChat", err)
	}
	return nil
}

func (s *Store) SetTitle(ctx context.Context, id domain.ChatID, title string) error {
	_, err := s.chatDoc(id).Update(ctx, []firestore.Update{
		{Path: "title", Value: title},
		{Path: "updated_at", Value: time.Now()},
	})
	if err != nil {
		return mapErr("SetTitle", err)
	}
	return nil
}

func (s *Store) DeleteChat(ctx context.Context, id domain.ChatID, userID domain.UserID) error {
	snap, err := s.chatDoc(id).Get(ctx)
	if err != nil {
		return mapErr("DeleteChat", err)
	}

	var doc chatDoc
	if err := snap.DataTo(&doc); err != nil {
		return fmt.Errorf("firestore DeleteChat decode: %w", err)
	}
	if doc.UserID != string(userID) {
		return domain.ErrNotFound
	}

	// Subcollection documents are not deleted with their parent.
	iter := s.turnsCol(id).Documents(ctx)
	defer iter.Stop()
	for {
		turnSnap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return mapErr("DeleteChat turns", err)
		}
		if _, err := turnSnap.Ref.Delete(ctx); err != nil {
			return mapErr("DeleteChat turn delete", err)
		}
	}

	if _, err := s.chatDoc(id).Delete(ctx); err != nil {
		return mapErr("DeleteChat", err)
	}
	return nil
}

func (s *Store) ListChatsByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.ChatSummary, error) {
	q := s.chatsCol().
		Where("user_id", "==", string(userID)).
		OrderBy("last_message_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*domain.ChatSummary
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, mapErr("ListChatsByUser", err)
		}

		var doc chatDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode chatDoc: %w", err)
		}

		out = append(out, &domain.ChatSummary{
			ID:            domain.ChatID(snap.Ref.ID),
			Title:         doc.Title,
			LastMessageAt: doc.LastMessageAt,
			CreatedAt:     doc.CreatedAt,
			TurnCount:     doc.TurnCount,
		})
	}
	return out, nil
}

func (s *Store) loadTurns(ctx context.Context, id domain.ChatID) ([]domain.Turn, error) {
	q := s.turnsCol(id).OrderBy("timestamp", firestore.Asc)

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []domain.Turn
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, mapErr("loadTurns", err)
		}

		var doc turnDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode turnDoc: %w", err)
		}
		out = append(out, fromTurnDoc(domain.TurnID(snap.Ref.ID), doc))
	}
	return out, nil
}
