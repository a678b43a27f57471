package main

import (
	"context"
	"log"
	"net/http"

	httpadapter "github.com/pathwise/chatbot-service/internal/adapters/http"
	"github.com/pathwise/chatbot-service/internal/adapters/nlu"
	firestorestore "github.com/pathwise/chatbot-service/internal/adapters/storage/firestore"
	memstore "github.com/pathwise/chatbot-service/internal/adapters/storage/memory"
	redisstore "github.com/pathwise/chatbot-service/internal/adapters/storage/redis"
	"github.com/pathwise/chatbot-service/internal/app/assistant"
	"github.com/pathwise/chatbot-service/internal/app/chat"
	"github.com/pathwise/chatbot-service/internal/config"
	"github.com/pathwise/chatbot-service/internal/domain"
)

func main() {
	ctx := context.Background()
	cfg := config.Load()

	// Storage: memory, Firestore or Redis
	var store domain.ChatStore

	switch cfg.StorageBackend {
	case "firestore":
		log.Printf("[STORE] Using Firestore storage (project=%s)", cfg.GCPProjectID)
		fsStore, err := firestorestore.NewStore(ctx, cfg.GCPProjectID)
		if err != nil {
			log.Fatalf("error initializing Firestore store: %v", err)
		}
		defer fsStore.Close()
		store = fsStore

	case "redis":
		log.Println("[STORE] Using Redis storage")
		rStore, err := redisstore.NewStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("error initializing Redis store: %v", err)
		}
		defer rStore.Close()
		store = rStore

	default:
		log.Println("[STORE] Using in-memory storage")
		store = memstore.NewChatStore()
	}

	// Reasoning component: rule-based knowledge base or Gemini
	var analyzer domain.IntentAnalyzer

	if cfg.UseRuleAnalyzer {
		log.Println("[NLU] Using rule-based analyzer")
		analyzer = nlu.NewRuleAnalyzer()
	} else {
		log.Println("[NLU] Using Gemini analyzer")
		gemini, err := nlu.NewGeminiAnalyzer(ctx, cfg.GCPProjectID, cfg.GCPLocation, cfg.ModelName)
		if err != nil {
			log.Fatalf("error initializing Gemini analyzer: %v", err)
		}
		analyzer = gemini
	}

	chatSvc := chat.NewService(store).WithHistoryWindow(cfg.HistoryWindow)
	assistantSvc := assistant.NewService(chatSvc, analyzer).WithContextWindow(cfg.ContextWindow)

	handler := httpadapter.NewServer(assistantSvc, chatSvc)

	port := ":" + cfg.Port
	log.Println("PathWise chatbot service listening on port:", port)
	if err := http.ListenAndServe(port, handler); err != nil {
		log.Fatal(err)
	}
}
