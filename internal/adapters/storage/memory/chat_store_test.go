package memory_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pathwise/chatbot-service/internal/adapters/storage/memory"
	"github.com/pathwise/chatbot-service/internal/domain"
)

func newChat(id domain.ChatID, userID domain.UserID) *domain.Chat {
	now := time.Now()
	return &domain.Chat{
		ID:            id,
		UserID:        userID,
		Title:         domain.DefaultTitle,
		Messages:      []domain.Turn{},
		IsActive:      true,
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
		Context:       domain.DefaultContext(),
	}
}

func TestCreateActiveChatConflict(t *testing.T) {
	ctx := context.Background()
	store := memory.NewChatStore()

	if err := store.CreateActiveChat(ctx, newChat("c1", "u1")); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if err := store.CreateActiveChat(ctx, newChat("c2", "u1")); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict for second active chat, got %v", err)
	}

	// A different user is unaffected.
	if err := store.CreateActiveChat(ctx, newChat("c3", "u2")); err != nil {
		t.Fatalf("create for other user failed: %v", err)
	}

	// After deactivation the user may get a new active chat.
	if err := store.DeactivateChat(ctx, "c1"); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	if err := store.CreateActiveChat(ctx, newChat("c4", "u1")); err != nil {
		t.Fatalf("create after deactivation failed: %v", err)
	}
}

func TestConcurrentAppendsAllSurvive(t *testing.T) {
	ctx := context.Background()
	store := memory.NewChatStore()

	if err := store.CreateActiveChat(ctx, newChat("c1", "u1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	const writers = 20

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			turn := domain.Turn{
				ID:        domain.TurnID(fmt.Sprintf("t%d", i)),
				Role:      domain.RoleUser,
				Content:   fmt.Sprintf("message %d", i),
				Timestamp: time.Now(),
			}
			if _, err := store.AppendTurn(ctx, "c1", turn); err != nil {
				t.Errorf("append %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	chat, err := store.GetChat(ctx, "c1")
	if err != nil {
		t.Fatalf("GetChat failed: %v", err)
	}
	if len(chat.Messages) != writers {
		t.Fatalf("lost appends: expected %d messages, got %d", writers, len(chat.Messages))
	}
}

func TestAppendTurnTimestampMonotone(t *testing.T) {
	ctx := context.Background()
	store := memory.NewChatStore()

	if err := store.CreateActiveChat(ctx, newChat("c1", "u1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	now := time.Now()
	if _, err := store.AppendTurn(ctx, "c1", domain.Turn{
		ID: "t1", Role: domain.RoleUser, Content: "newer", Timestamp: now,
	}); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	// A turn carrying an older timestamp still lands, but must not pull
	// last_message_at backwards.
	updated, err := store.AppendTurn(ctx, "c1", domain.Turn{
		ID: "t2", Role: domain.RoleAssistant, Content: "older", Timestamp: now.Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if len(updated.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(updated.Messages))
	}
	if !updated.LastMessageAt.Equal(now) {
		t.Errorf("last_message_at moved backwards: %v", updated.LastMessageAt)
	}
}

func TestUpdateContextVersionCheck(t *testing.T) {
	ctx := context.Background()
	store := memory.NewChatStore()

	if err := store.CreateActiveChat(ctx, newChat("c1", "u1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	next := domain.DefaultContext()
	next.CurrentIntent = "career_guidance"
	next.Version = 1

	if _, err := store.UpdateContext(ctx, "c1", 0, next); err != nil {
		t.Fatalf("first update failed: %v", err)
	}

	// A writer still holding base version 0 must lose.
	stale := domain.DefaultContext()
	stale.CurrentIntent = "resume_help"
	stale.Version = 1
	if _, err := store.UpdateContext(ctx, "c1", 0, stale); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict for stale version, got %v", err)
	}

	chat, err := store.GetChat(ctx, "c1")
	if err != nil {
		t.Fatalf("GetChat failed: %v", err)
	}
	if chat.Context.CurrentIntent != "career_guidance" {
		t.Errorf("stale write overwrote context: %q", chat.Context.CurrentIntent)
	}
}

func TestGetChatReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := memory.NewChatStore()

	if err := store.CreateActiveChat(ctx, newChat("c1", "u1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	turn := domain.Turn{ID: "t1", Role: domain.RoleUser, Content: "hello", Timestamp: time.Now()}
	if _, err := store.AppendTurn(ctx, "c1", turn); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	chat, _ := store.GetChat(ctx, "c1")
	chat.Messages[0].Content = "mutated"
	chat.Context.CurrentIntent = "mutated"

	reloaded, _ := store.GetChat(ctx, "c1")
	if reloaded.Messages[0].Content != "hello" {
		t.Error("caller mutation leaked into stored messages")
	}
	if reloaded.Context.CurrentIntent != domain.IntentGeneral {
		t.Error("caller mutation leaked into stored context")
	}
}

func TestDeleteChatOwnership(t *testing.T) {
	ctx := context.Background()
	store := memory.NewChatStore()

	if err := store.CreateActiveChat(ctx, newChat("c1", "u1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := store.DeleteChat(ctx, "c1", "u2"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign delete, got %v", err)
	}
	if err := store.DeleteChat(ctx, "c1", "u1"); err != nil {
		t.Fatalf("owner delete failed: %v", err)
	}
	if _, err := store.GetChat(ctx, "c1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected chat to be gone, got %v", err)
	}
}
