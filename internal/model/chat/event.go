package chat

import "time"

// EventType names a realtime notification.
type EventType string

const (
	EventMessageCreated  EventType = "message.created"
	EventMessageDeleted  EventType = "message.deleted"
	EventCommentUpserted EventType = "comment.upserted"
	EventCommentRemoved  EventType = "comment.removed"
	EventGroupUpdated    EventType = "group.updated"
	EventMemberAdded     EventType = "member.added"
	EventMemberLeft      EventType = "member.left"
)

// Event is pushed to every participant of the affected conversation.
type Event struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversationId"`
	Data           any       `json:"data,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
