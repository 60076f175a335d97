package chat

import "time"

// ContentKind tags the payload carried by a message.
type ContentKind string

const (
	ContentText  ContentKind = "text"
	ContentPhoto ContentKind = "photo"
)

// Content is either a text string or a photo blob.
type Content struct {
	Kind  ContentKind `json:"kind"`
	Text  string      `json:"text,omitempty"`
	Photo []byte      `json:"photo,omitempty"`
}

// TextContent builds a text payload.
func TextContent(text string) Content {
	return Content{Kind: ContentText, Text: text}
}

// PhotoContent builds a photo payload.
func PhotoContent(photo []byte) Content {
	return Content{Kind: ContentPhoto, Photo: photo}
}

// MessageType records how a message entered the conversation.
type MessageType string

const (
	MessageStandard MessageType = "standard"
	MessageReply    MessageType = "reply"
	MessageForward  MessageType = "forward"
)

// MessageStatus is derived from the members' last access times.
type MessageStatus string

const (
	StatusReceived MessageStatus = "received"
	StatusRead     MessageStatus = "read"
)

// ForwardOrigin points at the message a forward was copied from.
type ForwardOrigin struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

// Message is one entry of a conversation log. Content and sender never change
// after creation.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversationId"`
	Sender         UserSummary    `json:"sender"`
	Content        Content        `json:"content"`
	Timestamp      time.Time      `json:"timestamp"`
	Type           MessageType    `json:"type"`
	Status         MessageStatus  `json:"status"`
	ReplyTo        string         `json:"replyToMessageId,omitempty"`
	ForwardedFrom  *ForwardOrigin `json:"forwardedFrom,omitempty"`
	Comments       []Comment      `json:"comments"`
}

// Comment is a single emoticon reaction; at most one per author and message.
type Comment struct {
	ID        string      `json:"commentId"`
	MessageID string      `json:"messageId"`
	Author    UserSummary `json:"sender"`
	Emoticon  string      `json:"content"`
	UpdatedAt time.Time   `json:"updatedAt"`
}
