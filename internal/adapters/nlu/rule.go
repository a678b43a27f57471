package nlu

import (
	"context"
	"strings"

	"github.com/pathwise/chatbot-service/internal/domain"
)

// category groups the keywords, canned replies and follow-up suggestions for
// one intent label.
type category struct {
	keywords    []string
	responses   []string
	suggestions []string
}

var knowledgeBase = map[string]category{
	"career_guidance": {
		keywords: []string{"career", "job", "profession", "work", "employment", "career path", "future"},
		responses: []string{
			"I'd be happy to help with career guidance! What specific area are you interested in? Are you looking to start a new career, switch fields, or advance in your current role?",
			"Career guidance is one of my specialties! Tell me about your current situation - are you a student, recent graduate, or looking to make a career change?",
			"Let's explore your career options together! What skills do you currently have, and what type of work environment appeals to you most?",
		},
		suggestions: []string{
			"What skills should I develop for tech careers?",
			"How do I transition from non-tech to tech?",
			"What are the highest paying tech roles?",
			"What career paths are available in software development?",
		},
	},
	"skill_assessment": {
		keywords: []string{"skills", "ability", "competency", "assessment", "evaluate", "strengths", "weaknesses"},
		responses: []string{
			"I can help you assess your skills! What field are you interested in? I can help identify your strengths and areas for improvement.",
			"Skill assessment is crucial for career growth. Tell me about your current technical skills, soft skills, and what you'd like to develop further.",
			"Let's evaluate your skills together! What programming languages, tools, or technologies are you familiar with?",
		},
		suggestions: []string{
			"How do I assess my programming skills?",
			"What soft skills are most important?",
			"How can I identify skill gaps?",
			"What's the best way to practice coding?",
		},
	},
	"project_ideas": {
		keywords: []string{"project", "build", "create", "portfolio", "idea", "develop"},
		responses: []string{
			"Great question! Project ideas depend on your interests and skill level. What programming languages or technologies are you comfortable with?",
			"Building projects is the best way to learn and showcase your skills. What area excites you most - web, mobile, data, or something else?",
			"Let's brainstorm some project ideas! Tell me about your current skill level and what type of projects excite you most.",
		},
		suggestions: []string{
			"What projects should I build for my portfolio?",
			"How do I choose the right project complexity?",
			"What makes a project stand out to employers?",
			"What are some beginner-friendly project ideas?",
		},
	},
	"learning_path": {
		keywords: []string{"learn", "study", "course", "roadmap", "tutorial", "education", "path"},
		responses: []string{
			"I can help create a learning path for you! What specific technology or skill do you want to master?",
			"A structured roadmap makes learning much more effective. What's your target - a language, a framework, or a whole field?",
			"Let's map out your learning journey! Where are you starting from, and where do you want to end up?",
		},
		suggestions: []string{
			"How do I create a learning roadmap?",
			"What's the best way to learn programming?",
			"What resources should I use for learning?",
			"How do I stay motivated while learning?",
		},
	},
	"resume_help": {
		keywords: []string{"resume", "cv", "application", "interview", "hiring", "recruiter"},
		responses: []string{
			"I can help with your resume! Are you looking for advice on structure, content, or tailoring it to specific roles?",
			"A strong resume opens doors. Tell me about the roles you're applying for and what experience you want to highlight.",
			"Let's polish your resume together! What section are you least confident about?",
		},
		suggestions: []string{
			"How do I write a tech resume?",
			"What keywords should I include?",
			"How do I format my resume for ATS?",
			"What projects should I highlight?",
		},
	},
	domain.IntentGeneral: {
		keywords: []string{},
		responses: []string{
			"Hello! I'm your AI career assistant. I can help with career guidance, skill assessment, project ideas, learning paths, and resume advice. What would you like to know?",
			"Hi there! I'm here to help you with your career journey. Feel free to ask me anything about career development, skills, or professional growth!",
			"Welcome! I specialize in career guidance and professional development. How can I assist you today?",
		},
		suggestions: []string{
			"Tell me about career guidance",
			"Help me assess my skills",
			"Suggest some project ideas",
		},
	},
}

// ConversationStarters are the generic prompts served when no chat context
// exists yet.
var ConversationStarters = []string{
	"Help me plan my career path",
	"Assess my current skills",
	"Suggest project ideas for my portfolio",
	"Create a learning roadmap for Python",
	"Review my resume for tech jobs",
	"What are the best programming languages to learn?",
}

// RuleAnalyzer is a deterministic, dependency-free reasoning component backed
// by the keyword knowledge base. It is the default for local development and
// the drop-in fake for tests.
type RuleAnalyzer struct{}

func NewRuleAnalyzer() *RuleAnalyzer {
	return &RuleAnalyzer{}
}

func (a *RuleAnalyzer) Analyze(ctx context.Context, message string, window []domain.ContextMessage) (domain.Analysis, error) {
	intent := classifyIntent(message)
	cat := knowledgeBase[intent]

	contextText := recentUserText(window)

	reply := pickResponse(cat.responses, contextText)
	suggestions := filterSuggestions(cat.suggestions, contextText)
	if len(suggestions) > 3 {
		suggestions = suggestions[:3]
	}

	var topics []string
	if intent != domain.IntentGeneral {
		topics = []string{intent}
	}

	return domain.Analysis{
		Reply:       reply,
		Intent:      intent,
		Suggestions: suggestions,
		Confidence:  confidence(message, contextText),
		Topics:      topics,
	}, nil
}

// classifyIntent scores each category by keyword hits in the message and
// returns the best match, falling back to the general intent.
func classifyIntent(message string) string {
	lowered := strings.ToLower(message)

	best := domain.IntentGeneral
	bestScore := 0
	for name, cat := range knowledgeBase {
		score := 0
		for _, kw := range cat.keywords {
			if strings.Contains(lowered, kw) {
				score++
			}
		}
		if score > bestScore {
			best = name
			bestScore = score
		}
	}
	return best
}

// recentUserText joins the content of the last few user turns of the window.
func recentUserText(window []domain.ContextMessage) string {
	start := len(window) - 3
	if start < 0 {
		start = 0
	}

	var parts []string
	for _, m := range window[start:] {
		if m.Role == domain.RoleUser {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, " ")
}

// pickResponse prefers a canned reply that shares a word with the recent user
// context, defaulting to the first one. Deterministic on purpose.
func pickResponse(responses []string, contextText string) string {
	if len(responses) == 0 {
		return ""
	}
	if contextText == "" {
		return responses[0]
	}

	words := strings.Fields(strings.ToLower(contextText))
	if len(words) > 5 {
		words = words[:5]
	}
	for _, r := range responses {
		lowered := strings.ToLower(r)
		for _, w := range words {
			if strings.Contains(lowered, w) {
				return r
			}
		}
	}
	return responses[0]
}

func filterSuggestions(suggestions []string, contextText string) []string {
	if contextText == "" {
		return suggestions
	}

	contextWords := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(contextText)) {
		contextWords[w] = struct{}{}
	}

	var filtered []string
	for _, s := range suggestions {
		for _, w := range strings.Fields(strings.ToLower(s)) {
			if _, ok := contextWords[w]; ok {
				filtered = append(filtered, s)
				break
			}
		}
	}
	if len(filtered) > 0 {
		return filtered
	}
	return suggestions
}

// confidence grows with message length and gets a small boost when there is
// prior context, capped at 0.95.
func confidence(message, contextText string) float64 {
	base := float64(len(strings.Fields(message))) / 10
	if base > 0.9 {
		base = 0.9
	}
	if base < 0.3 {
		base = 0.3
	}
	if contextText != "" {
		base += 0.1
	}
	if base > 0.95 {
		base = 0.95
	}
	return base
}
