package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/pathwise/chatbot-service/internal/domain"
)

const analyzerSystemPrompt = `
You are the reasoning component of a career-guidance chatbot.

Given the conversation so far and the newest user message, respond with a
single JSON object and nothing else:

{
  "reply": "<your answer to the user>",
  "intent": "<one of: career_guidance, skill_assessment, project_ideas, learning_path, resume_help, general>",
  "suggestions": ["<up to 3 follow-up questions the user could ask next>"],
  "confidence": <0.0-1.0>,
  "topics": ["<topics the user seems interested in, may be empty>"]
}

Guidelines:
- Answer in the SAME LANGUAGE as the user.
- Be concise and practical; suggest small, realistic next steps.
- Do not give medical, legal, or financial advice.
`

// GeminiAnalyzer implements domain.IntentAnalyzer on Vertex AI (Gemini).
type GeminiAnalyzer struct {
	client    *genai.Client
	modelName string
}

// NewGeminiAnalyzer creates the Vertex-backed analyzer. Project and location
// come from configuration rather than ambient credentials lookup.
func NewGeminiAnalyzer(ctx context.Context, projectID, location, modelName string) (*GeminiAnalyzer, error) {
	if projectID == "" || location == "" {
		return nil, fmt.Errorf("projectID and location are required for the Gemini analyzer")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Vertex AI client: %w", err)
	}

	return &GeminiAnalyzer{
		client:    client,
		modelName: modelName,
	}, nil
}

type analyzerVerdict struct {
	Reply       string   `json:"reply"`
	Intent      string   `json:"intent"`
	Suggestions []string `json:"suggestions"`
	Confidence  float64  `json:"confidence"`
	Topics      []string `json:"topics"`
}

// Analyze sends the context window plus the new user message to the model and
// parses its JSON verdict.
func (g *GeminiAnalyzer) Analyze(ctx context.Context, message string, window []domain.ContextMessage) (domain.Analysis, error) {
	contents := buildContents(message, window)

	temp := float32(0.7)
	topP := float32(0.9)

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(analyzerSystemPrompt, genai.RoleUser),
		Temperature:       &temp,
		TopP:              &topP,
		MaxOutputTokens:   2048,
		ResponseMIMEType:  "application/json",
	}

	res, err := g.client.Models.GenerateContent(ctx, g.modelName, contents, cfg)
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("gemini generate content: %w", err)
	}

	text := res.Text()
	if text == "" {
		return domain.Analysis{}, fmt.Errorf("gemini returned empty text")
	}

	return parseVerdict(text), nil
}

// buildContents maps the context window plus the new message onto genai
// contents, translating assistant turns to the model role.
func buildContents(message string, window []domain.ContextMessage) []*genai.Content {
	var contents []*genai.Content
	for _, m := range window {
		var role genai.Role = genai.RoleUser
		if m.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return append(contents, genai.NewContentFromText(message, genai.RoleUser))
}

// parseVerdict decodes the model's JSON output. A response that is not valid
// JSON is degraded to a plain reply with the general intent rather than
// failing the whole turn.
func parseVerdict(text string) domain.Analysis {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")

	var v analyzerVerdict
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil || v.Reply == "" {
		return domain.Analysis{
			Reply:      text,
			Intent:     domain.IntentGeneral,
			Confidence: 0.5,
		}
	}

	if v.Intent == "" {
		v.Intent = domain.IntentGeneral
	}
	if len(v.Suggestions) > 3 {
		v.Suggestions = v.Suggestions[:3]
	}

	return domain.Analysis{
		Reply:       v.Reply,
		Intent:      v.Intent,
		Suggestions: v.Suggestions,
		Confidence:  v.Confidence,
		Topics:      v.Topics,
	}
}
