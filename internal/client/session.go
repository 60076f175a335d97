package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
)

// Session issues calls on behalf of one authenticated user.
type Session struct {
	c    *Client
	cred Credential
}

// UserID returns the identifier of the acting user.
func (s *Session) UserID() string {
	return s.cred.UserID()
}

// Credential returns the credential the session presents.
func (s *Session) Credential() Credential {
	return s.cred
}

// SendOption tunes PostMessage and ReplyMessage.
type SendOption func(*request)

// WithIdempotencyKey makes a retried send return the original message
// instead of appending a duplicate.
func WithIdempotencyKey(key string) SendOption {
	return func(r *request) {
		if r.headers == nil {
			r.headers = map[string]string{}
		}
		r.headers[idempotencyHeader] = key
	}
}

// path builds /users/{u}/segments... Collection endpoints append the trailing
// slash themselves so the paths match the published route table exactly.
func (s *Session) path(segments ...string) string {
	return escape(append([]string{"users", s.cred.UserID()}, segments...)...)
}

func (s *Session) do(ctx context.Context, r request, out any) (int, error) {
	return s.c.do(ctx, s.cred, r, out)
}

// Profile returns the acting user's own record.
func (s *Session) Profile(ctx context.Context) (chat.User, error) {
	var out chat.User
	_, err := s.do(ctx, request{method: http.MethodGet, path: s.path("profile")}, &out)
	return out, err
}

// ListConversations returns the user's conversations ordered by recency.
// An empty order uses the server default (newest first).
func (s *Session) ListConversations(ctx context.Context, order chat.SortOrder) ([]chat.ConversationSummary, error) {
	var out []chat.ConversationSummary
	_, err := s.do(ctx, request{method: http.MethodGet, path: s.path("conversations") + "/" + sortQuery(order)}, &out)
	return out, err
}

// OpenConversation returns the existing direct chat with targetUsername or
// creates a new conversation of the given kind. created reports a new one.
func (s *Session) OpenConversation(ctx context.Context, targetUsername string, kind chat.ConversationType) (summary chat.ConversationSummary, created bool, err error) {
	body := map[string]string{"targetUsername": targetUsername, "type": string(kind)}
	status, err := s.do(ctx, request{method: http.MethodPut, path: s.path("conversations") + "/", body: body}, &summary)
	return summary, status == http.StatusCreated, err
}

// GetConversation returns a conversation and its messages and marks it read.
// An empty order uses the server default (oldest first).
func (s *Session) GetConversation(ctx context.Context, conversationID string, order chat.SortOrder) (chat.Conversation, error) {
	var out chat.Conversation
	_, err := s.do(ctx, request{method: http.MethodGet, path: s.path("conversations", conversationID) + sortQuery(order)}, &out)
	return out, err
}

// PostMessage appends content to a conversation. Photos are uploaded as
// multipart, text as JSON.
func (s *Session) PostMessage(ctx context.Context, conversationID string, content chat.Content, opts ...SendOption) (chat.Message, error) {
	r := contentRequest(s.path("conversations", conversationID, "messages")+"/", content)
	for _, opt := range opts {
		opt(&r)
	}
	var out chat.Message
	_, err := s.do(ctx, r, &out)
	return out, err
}

// ReplyMessage appends content as a reply to messageID.
func (s *Session) ReplyMessage(ctx context.Context, conversationID, messageID string, content chat.Content, opts ...SendOption) (chat.Message, error) {
	r := contentRequest(s.path("conversations", conversationID, "messages", messageID, "replyMessage"), content)
	for _, opt := range opts {
		opt(&r)
	}
	var out chat.Message
	_, err := s.do(ctx, r, &out)
	return out, err
}

// ForwardMessage copies messageID into targetConversationID.
func (s *Session) ForwardMessage(ctx context.Context, conversationID, messageID, targetConversationID string) (chat.Message, error) {
	var out chat.Message
	_, err := s.do(ctx, request{
		method: http.MethodPost,
		path:   s.path("conversations", conversationID, "messages", messageID, "forwardMessage"),
		body:   map[string]string{"conversationId": targetConversationID},
	}, &out)
	return out, err
}

// DeleteMessage removes one of the user's own messages.
func (s *Session) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	_, err := s.do(ctx, request{method: http.MethodDelete, path: s.path("conversations", conversationID, "messages", messageID)}, nil)
	return err
}

// CommentMessage sets the user's emoticon reaction on a message, replacing
// any previous one.
func (s *Session) CommentMessage(ctx context.Context, conversationID, messageID, emoticon string) (chat.Comment, error) {
	var out chat.Comment
	_, err := s.do(ctx, request{
		method: http.MethodPut,
		path:   s.path("conversations", conversationID, "messages", messageID, "comments") + "/",
		body:   map[string]string{"content": emoticon},
	}, &out)
	return out, err
}

// UncommentMessage removes a reaction. Removing an absent comment succeeds.
func (s *Session) UncommentMessage(ctx context.Context, conversationID, messageID, commentID string) error {
	_, err := s.do(ctx, request{method: http.MethodDelete, path: s.path("conversations", conversationID, "messages", messageID, "comments", commentID)}, nil)
	return err
}

func (s *Session) GetGroupMembers(ctx context.Context, groupID string) ([]chat.UserSummary, error) {
	var out []chat.UserSummary
	_, err := s.do(ctx, request{method: http.MethodGet, path: s.path("groups", groupID, "members") + "/"}, &out)
	return out, err
}

func (s *Session) AddMember(ctx context.Context, groupID, username string) (chat.UserSummary, error) {
	var out chat.UserSummary
	_, err := s.do(ctx, request{method: http.MethodPut, path: s.path("groups", groupID, "members") + "/", body: map[string]string{"username": username}}, &out)
	return out, err
}

func (s *Session) LeaveGroup(ctx context.Context, groupID string) error {
	_, err := s.do(ctx, request{method: http.MethodDelete, path: s.path("groups", groupID, "members", "me")}, nil)
	return err
}

func (s *Session) SetGroupName(ctx context.Context, groupID, name string) (chat.ConversationSummary, error) {
	var out chat.ConversationSummary
	_, err := s.do(ctx, request{method: http.MethodPut, path: s.path("groups", groupID, "name"), body: map[string]string{"name": name}}, &out)
	return out, err
}

func (s *Session) SetGroupPhoto(ctx context.Context, groupID string, photo []byte) (chat.ConversationSummary, error) {
	var out chat.ConversationSummary
	_, err := s.do(ctx, request{
		method: http.MethodPut,
		path:   s.path("groups", groupID, "photo"),
		form:   &formFile{field: "photo", filename: "photo", data: photo, isFile: true},
	}, &out)
	return out, err
}

func (s *Session) SetUsername(ctx context.Context, username string) (chat.User, error) {
	var out chat.User
	_, err := s.do(ctx, request{method: http.MethodPut, path: s.path("username"), body: map[string]string{"username": username}}, &out)
	return out, err
}

func (s *Session) SetPhoto(ctx context.Context, photo []byte) (chat.User, error) {
	var out chat.User
	_, err := s.do(ctx, request{
		method: http.MethodPut,
		path:   s.path("photo"),
		form:   &formFile{field: "photo", filename: "photo", data: photo, isFile: true},
	}, &out)
	return out, err
}

// SearchUsers finds users whose name contains query, case-insensitively.
func (s *Session) SearchUsers(ctx context.Context, query string) ([]chat.User, error) {
	var out []chat.User
	_, err := s.do(ctx, request{method: http.MethodGet, path: s.path("search") + "?username=" + url.QueryEscape(query)}, &out)
	return out, err
}

func contentRequest(path string, content chat.Content) request {
	r := request{method: http.MethodPost, path: path}
	if content.Kind == chat.ContentPhoto {
		r.form = &formFile{field: "content", filename: "photo", data: content.Photo, isFile: true}
		return r
	}
	r.body = map[string]string{"content": content.Text}
	return r
}

func sortQuery(order chat.SortOrder) string {
	if order == "" {
		return ""
	}
	return "?sort=" + url.QueryEscape(string(order))
}
