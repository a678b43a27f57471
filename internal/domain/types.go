package domain

import "time"

type ChatID string
type UserID string
type TurnID string

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ValidRole reports whether r is one of the two conversation roles.
func ValidRole(r Role) bool {
	return r == RoleUser || r == RoleAssistant
}

// SkillLevel is a coarse proficiency label carried in user preferences.
type SkillLevel string

const (
	SkillBeginner     SkillLevel = "beginner"
	SkillIntermediate SkillLevel = "intermediate"
	SkillAdvanced     SkillLevel = "advanced"
)

// IntentGeneral is the intent every chat starts with, before any classification.
const IntentGeneral = "general"

// DefaultTitle is the placeholder title of a freshly created chat.
const DefaultTitle = "New Chat"

type Timestamp = time.Time
