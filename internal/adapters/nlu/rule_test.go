package nlu_test

import (
	"context"
	"testing"

	"github.com/pathwise/chatbot-service/internal/adapters/nlu"
	"github.com/pathwise/chatbot-service/internal/domain"
)

func TestRuleAnalyzerClassification(t *testing.T) {
	ctx := context.Background()
	analyzer := nlu.NewRuleAnalyzer()

	cases := []struct {
		message string
		intent  string
	}{
		{"I need help with my resume", "resume_help"},
		{"what skills should I evaluate and what are my strengths", "skill_assessment"},
		{"suggest a portfolio project I could build", "project_ideas"},
		{"give me a roadmap to learn backend development", "learning_path"},
		{"hello there", domain.IntentGeneral},
	}

	for _, tc := range cases {
		got, err := analyzer.Analyze(ctx, tc.message, nil)
		if err != nil {
			t.Fatalf("Analyze(%q) failed: %v", tc.message, err)
		}
		if got.Intent != tc.intent {
			t.Errorf("Analyze(%q) intent = %q, want %q", tc.message, got.Intent, tc.intent)
		}
		if got.Reply == "" {
			t.Errorf("Analyze(%q) returned empty reply", tc.message)
		}
		if len(got.Suggestions) > 3 {
			t.Errorf("Analyze(%q) returned %d suggestions, max is 3", tc.message, len(got.Suggestions))
		}
		if got.Confidence < 0.3 || got.Confidence > 0.95 {
			t.Errorf("Analyze(%q) confidence %f out of range", tc.message, got.Confidence)
		}
	}
}

func TestRuleAnalyzerTopics(t *testing.T) {
	ctx := context.Background()
	analyzer := nlu.NewRuleAnalyzer()

	got, err := analyzer.Analyze(ctx, "help me with my resume", nil)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(got.Topics) != 1 || got.Topics[0] != "resume_help" {
		t.Errorf("expected topic signal for classified intent, got %v", got.Topics)
	}

	general, err := analyzer.Analyze(ctx, "hello", nil)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(general.Topics) != 0 {
		t.Errorf("general intent should carry no topic signal, got %v", general.Topics)
	}
}

func TestRuleAnalyzerContextBoostsConfidence(t *testing.T) {
	ctx := context.Background()
	analyzer := nlu.NewRuleAnalyzer()

	bare, err := analyzer.Analyze(ctx, "resume advice", nil)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	window := []domain.ContextMessage{
		{Role: domain.RoleUser, Content: "I want a new job"},
		{Role: domain.RoleAssistant, Content: "Tell me more"},
	}
	boosted, err := analyzer.Analyze(ctx, "resume advice", window)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if boosted.Confidence <= bare.Confidence {
		t.Errorf("expected context boost: %f <= %f", boosted.Confidence, bare.Confidence)
	}
}
