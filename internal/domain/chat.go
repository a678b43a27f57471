package domain

// TurnMetadata holds optional signals attached to a single turn by the
// reasoning component (or by the caller).
type TurnMetadata struct {
	Confidence  float64
	Intent      string
	Suggestions []string
}

// Turn is one message exchanged within a chat. Turns are created once and
// never mutated or deleted.
type Turn struct {
	ID        TurnID
	Role      Role
	Content   string
	Timestamp Timestamp
	Metadata  *TurnMetadata
}

// UserPreferences accumulates long-lived signals across turns.
// PreferredTopics and CareerGoals behave as ordered sets.
type UserPreferences struct {
	PreferredTopics []string
	SkillLevel      SkillLevel
	CareerGoals     []string
}

// ChatContext is the derived summary sub-record of a chat. It is updated as a
// unit through a versioned compare-and-swap, never field by field.
type ChatContext struct {
	CurrentIntent       string
	ConversationHistory []string
	UserPreferences     UserPreferences

	// Version increments on every context write; stores reject a write whose
	// base version no longer matches.
	Version int64
}

// Chat is a bounded conversational interaction owned by one user: an ordered,
// append-only log of turns plus the derived context summary.
type Chat struct {
	ID            ChatID
	UserID        UserID
	Title         string
	Messages      []Turn
	IsActive      bool
	LastMessageAt Timestamp
	CreatedAt     Timestamp
	UpdatedAt     Timestamp
	Context       ChatContext
}

// ChatSummary is the projection returned by history listings.
type ChatSummary struct {
	ID            ChatID
	Title         string
	LastMessageAt Timestamp
	CreatedAt     Timestamp
	TurnCount     int
}

// ContextMessage is one element of the window handed to the reasoning
// component: a turn stripped down to role and content.
type ContextMessage struct {
	Role    Role
	Content string
}

// ContextWindow returns the last maxMessages turns in chronological order,
// projected to role and content. maxMessages <= 0 yields an empty window; a
// window larger than the log yields the whole log. Read-only.
func (c *Chat) ContextWindow(maxMessages int) []ContextMessage {
	if maxMessages <= 0 {
		return []ContextMessage{}
	}

	msgs := c.Messages
	if len(msgs) > maxMessages {
		msgs = msgs[len(msgs)-maxMessages:]
	}

	window := make([]ContextMessage, 0, len(msgs))
	for _, t := range msgs {
		window = append(window, ContextMessage{Role: t.Role, Content: t.Content})
	}
	return window
}

// RecentContents returns the content of the last n turns in chronological
// order. Used to refresh the always-on conversation history summary.
func (c *Chat) RecentContents(n int) []string {
	msgs := c.Messages
	if n <= 0 {
		return []string{}
	}
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}

	contents := make([]string, 0, len(msgs))
	for _, t := range msgs {
		contents = append(contents, t.Content)
	}
	return contents
}

// DefaultContext is the context a chat is born with.
func DefaultContext() ChatContext {
	return ChatContext{
		CurrentIntent:       IntentGeneral,
		ConversationHistory: []string{},
		UserPreferences: UserPreferences{
			PreferredTopics: []string{},
			SkillLevel:      SkillBeginner,
			CareerGoals:     []string{},
		},
	}
}
