package chat

import "time"

// ConversationType distinguishes one-to-one chats from groups.
type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

// Valid reports whether t is a known conversation type.
func (t ConversationType) Valid() bool {
	return t == ConversationDirect || t == ConversationGroup
}

// SortOrder selects ascending or descending timestamp order.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// LastMessage previews the newest message of a conversation.
type LastMessage struct {
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
	Preview   string    `json:"preview"`
}

// ConversationSummary is one row of a user's conversation directory.
type ConversationSummary struct {
	ID           string           `json:"conversationId"`
	Type         ConversationType `json:"type"`
	Name         string           `json:"name"`
	Photo        []byte           `json:"photo,omitempty"`
	Participants []UserSummary    `json:"participants"`
	LastMessage  *LastMessage     `json:"lastMessage,omitempty"`
	ReadOnly     bool             `json:"readOnly,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// Conversation is a summary together with its ordered messages.
type Conversation struct {
	ConversationSummary
	Messages []Message `json:"messages"`
}
