package chat

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
	"github.com/zhouzirui/z-chat/backend/pkg/apperr"
)

// appendRequest describes one message to add to a conversation log.
type appendRequest struct {
	senderID       string
	conversationID string
	content        storedContent
	kind           chat.MessageType
	replyTo        string
	forwardedFrom  *chat.ForwardOrigin
	idempotencyKey string
}

// PostMessage appends content to the conversation. A non-empty
// idempotencyKey makes retries safe: a repeated key from the same sender
// returns the message created by the first attempt.
func (s *Service) PostMessage(ctx context.Context, userID, conversationID string, content chat.Content, idempotencyKey string) (chat.Message, error) {
	if err := apperr.FromContext(ctx); err != nil {
		return chat.Message{}, err
	}
	stored, err := s.storePhoto(ctx, content)
	if err != nil {
		return chat.Message{}, err
	}
	return s.append(ctx, appendRequest{
		senderID:       userID,
		conversationID: conversationID,
		content:        stored,
		kind:           chat.MessageStandard,
		idempotencyKey: idempotencyKey,
	})
}

// ReplyMessage appends content as a reply to messageID, which must belong to
// the same conversation.
func (s *Service) ReplyMessage(ctx context.Context, userID, conversationID, messageID string, content chat.Content, idempotencyKey string) (chat.Message, error) {
	if err := apperr.FromContext(ctx); err != nil {
		return chat.Message{}, err
	}
	stored, err := s.storePhoto(ctx, content)
	if err != nil {
		return chat.Message{}, err
	}
	return s.append(ctx, appendRequest{
		senderID:       userID,
		conversationID: conversationID,
		content:        stored,
		kind:           chat.MessageReply,
		replyTo:        messageID,
		idempotencyKey: idempotencyKey,
	})
}

// ForwardMessage copies messageID from conversationID into
// targetConversationID. The caller must participate in both conversations.
func (s *Service) ForwardMessage(ctx context.Context, userID, conversationID, messageID, targetConversationID string) (chat.Message, error) {
	if err := apperr.FromContext(ctx); err != nil {
		return chat.Message{}, err
	}
	source, err := s.lookup(conversationID)
	if err != nil {
		return chat.Message{}, err
	}

	source.mu.RLock()
	if !source.isMember(userID) {
		source.mu.RUnlock()
		return chat.Message{}, apperr.Forbidden("not a participant of the source conversation")
	}
	original, ok := source.byID[messageID]
	if !ok {
		source.mu.RUnlock()
		return chat.Message{}, apperr.NotFound("message")
	}
	content := original.content
	source.mu.RUnlock()

	if content.kind == chat.ContentPhoto {
		data, err := s.blobs.Get(ctx, content.photoRef)
		if err != nil {
			return chat.Message{}, fmt.Errorf("load forwarded photo: %w", err)
		}
		ref, err := s.blobs.Put(ctx, data)
		if err != nil {
			return chat.Message{}, fmt.Errorf("copy forwarded photo: %w", err)
		}
		content.photoRef = ref
	}

	return s.append(ctx, appendRequest{
		senderID:       userID,
		conversationID: targetConversationID,
		content:        content,
		kind:           chat.MessageForward,
		forwardedFrom:  &chat.ForwardOrigin{ConversationID: conversationID, MessageID: messageID},
	})
}

// append is the single writer path of a conversation log. It owns the photo
// blob in req and releases it when the message is not stored.
func (s *Service) append(ctx context.Context, req appendRequest) (chat.Message, error) {
	c, err := s.lookup(req.conversationID)
	if err != nil {
		s.releaseBlob(req.content.photoRef)
		return chat.Message{}, err
	}

	c.mu.Lock()
	view, recipients, err := s.appendLocked(c, req)
	c.mu.Unlock()
	if err != nil {
		s.releaseBlob(req.content.photoRef)
		return chat.Message{}, err
	}
	if recipients == nil {
		// idempotent replay, nothing new was stored
		s.releaseBlob(req.content.photoRef)
		s.resolvePhotos(ctx, []photoFetch{{dst: &view.Content.Photo, ref: view.photoRef}})
		return view.Message, nil
	}

	s.observer.MessageStored(req.kind, req.content.kind)
	s.logger.Debug("message_stored",
		zap.String("conversation", c.id),
		zap.String("message", view.ID),
		zap.String("type", string(req.kind)))

	if req.content.kind == chat.ContentPhoto {
		s.resolvePhotos(ctx, []photoFetch{{dst: &view.Content.Photo, ref: req.content.photoRef}})
	}
	s.publish(recipients, chat.EventMessageCreated, c.id, view.Message)
	return view.Message, nil
}

type storedView struct {
	chat.Message
	photoRef string
}

// appendLocked validates and appends req. Caller holds c.mu. A nil recipient
// list with a nil error marks an idempotent replay.
func (s *Service) appendLocked(c *conversation, req appendRequest) (storedView, []string, error) {
	if err := authorizeWrite(c, req.senderID); err != nil {
		return storedView{}, nil, err
	}
	if req.replyTo != "" {
		if _, ok := c.byID[req.replyTo]; !ok {
			return storedView{}, nil, apperr.NotFound("message to reply to")
		}
	}

	var dedupKey string
	if req.idempotencyKey != "" {
		dedupKey = req.senderID + "\x00" + req.idempotencyKey
		if id, ok := c.idempotency[dedupKey]; ok {
			existing, ok := c.byID[id]
			if !ok {
				return storedView{}, nil, apperr.Conflict("idempotency key belongs to a deleted message")
			}
			view, ref := s.messageView(existing, c.readHorizon())
			return storedView{Message: view, photoRef: ref}, nil, nil
		}
	}

	now := s.now()
	m := &message{
		id:             uuid.NewString(),
		conversationID: c.id,
		senderID:       req.senderID,
		content:        req.content,
		timestamp:      c.nextStamp(now),
		kind:           req.kind,
		replyTo:        req.replyTo,
		forwardedFrom:  req.forwardedFrom,
	}
	c.messages = append(c.messages, m)
	c.byID[m.id] = m
	if dedupKey != "" {
		c.idempotency[dedupKey] = m.id
	}
	// the sender has seen everything up to their own message
	if member := c.members[req.senderID]; member != nil {
		member.lastAccess = m.timestamp
	}

	view, _ := s.messageView(m, c.readHorizon())
	return storedView{Message: view}, c.memberIDs(), nil
}

// DeleteMessage removes a message and its comments. Only the sender may
// delete a message.
func (s *Service) DeleteMessage(ctx context.Context, userID, conversationID, messageID string) error {
	if err := apperr.FromContext(ctx); err != nil {
		return err
	}
	c, err := s.lookup(conversationID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if !c.isMember(userID) {
		c.mu.Unlock()
		return apperr.Forbidden("not a participant of this conversation")
	}
	m, ok := c.byID[messageID]
	if !ok {
		c.mu.Unlock()
		return apperr.NotFound("message")
	}
	if m.senderID != userID {
		c.mu.Unlock()
		return apperr.Forbidden("only the sender can delete a message")
	}

	m.mu.Lock()
	m.deleted = true
	m.comments = nil
	m.mu.Unlock()

	delete(c.byID, messageID)
	for i, candidate := range c.messages {
		if candidate == m {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			break
		}
	}
	recipients := c.memberIDs()
	c.mu.Unlock()

	s.releaseBlob(m.content.photoRef)
	s.logger.Debug("message_deleted", zap.String("conversation", conversationID), zap.String("message", messageID))
	s.publish(recipients, chat.EventMessageDeleted, conversationID, map[string]string{"messageId": messageID})
	return nil
}
