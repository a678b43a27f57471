package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	redisstore "github.com/pathwise/chatbot-service/internal/adapters/storage/redis"
	"github.com/pathwise/chatbot-service/internal/domain"
)

func newTestStore(t *testing.T) *redisstore.Store {
	t.Helper()

	mr := miniredis.RunT(t)
	store, err := redisstore.NewStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("connecting to test redis: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newChat(id, userID string) *domain.Chat {
	now := time.Now().UTC()
	return &domain.Chat{
		ID:            domain.ChatID(id),
		UserID:        domain.UserID(userID),
		Title:         domain.DefaultTitle,
		IsActive:      true,
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
		Context:       domain.DefaultContext(),
	}
}

func TestCreateActiveChatLoserSeesWinner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	winner := newChat("chat-1", "u1")
	if err := store.CreateActiveChat(ctx, winner); err != nil {
		t.Fatalf("creating first chat: %v", err)
	}

	loser := newChat("chat-2", "u1")
	if err := store.CreateActiveChat(ctx, loser); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict for second active chat, got %v", err)
	}

	// The re-read after a lost race must land on the winner's chat, never on
	// a pointer with no document behind it.
	active, err := store.FindActiveChat(ctx, "u1")
	if err != nil {
		t.Fatalf("finding active chat after lost race: %v", err)
	}
	if active.ID != winner.ID {
		t.Errorf("expected active chat %s, got %s", winner.ID, active.ID)
	}

	// The loser's unpublished document is gone.
	if _, err := store.GetChat(ctx, loser.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected loser's chat to be discarded, got %v", err)
	}

	// And it never leaked into the user's listing.
	summaries, err := store.ListChatsByUser(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("listing chats: %v", err)
	}
	if len(summaries) != 1 || summaries[0].ID != winner.ID {
		t.Errorf("expected only the winner in the listing, got %+v", summaries)
	}
}

func TestAppendTurnAndReload(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	chat := newChat("chat-1", "u1")
	if err := store.CreateActiveChat(ctx, chat); err != nil {
		t.Fatalf("creating chat: %v", err)
	}

	ts := time.Now().UTC()
	turn := domain.Turn{
		ID:        "t1",
		Role:      domain.RoleUser,
		Content:   "hello",
		Timestamp: ts,
		Metadata:  &domain.TurnMetadata{Intent: "general", Confidence: 0.4},
	}
	updated, err := store.AppendTurn(ctx, chat.ID, turn)
	if err != nil {
		t.Fatalf("appending turn: %v", err)
	}
	if len(updated.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(updated.Messages))
	}
	if !updated.LastMessageAt.Equal(ts) {
		t.Errorf("expected last_message_at %v, got %v", ts, updated.LastMessageAt)
	}

	reloaded, err := store.GetChat(ctx, chat.ID)
	if err != nil {
		t.Fatalf("reloading chat: %v", err)
	}
	got := reloaded.Messages[0]
	if got.Content != "hello" || got.Metadata == nil || got.Metadata.Intent != "general" {
		t.Errorf("turn did not survive the round trip: %+v", got)
	}
}

func TestUpdateContextStaleVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	chat := newChat("chat-1", "u1")
	if err := store.CreateActiveChat(ctx, chat); err != nil {
		t.Fatalf("creating chat: %v", err)
	}

	next := chat.Context
	next.CurrentIntent = "resume_help"
	next.Version = 1
	if _, err := store.UpdateContext(ctx, chat.ID, 0, next); err != nil {
		t.Fatalf("first context update: %v", err)
	}

	// A writer still holding version 0 must be rejected.
	stale := chat.Context
	stale.CurrentIntent = "career_guidance"
	stale.Version = 1
	if _, err := store.UpdateContext(ctx, chat.ID, 0, stale); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict for stale version, got %v", err)
	}

	reloaded, err := store.GetChat(ctx, chat.ID)
	if err != nil {
		t.Fatalf("reloading chat: %v", err)
	}
	if reloaded.Context.CurrentIntent != "resume_help" || reloaded.Context.Version != 1 {
		t.Errorf("stale write leaked through: %+v", reloaded.Context)
	}
}

func TestDeactivateReleasesPointer(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	chat := newChat("chat-1", "u1")
	if err := store.CreateActiveChat(ctx, chat); err != nil {
		t.Fatalf("creating chat: %v", err)
	}
	if err := store.DeactivateChat(ctx, chat.ID); err != nil {
		t.Fatalf("deactivating chat: %v", err)
	}

	if _, err := store.FindActiveChat(ctx, "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected no active chat after deactivation, got %v", err)
	}

	// A fresh chat can claim the slot again.
	if err := store.CreateActiveChat(ctx, newChat("chat-2", "u1")); err != nil {
		t.Fatalf("creating replacement chat: %v", err)
	}
}
