package chat

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
	"github.com/zhouzirui/z-chat/backend/pkg/apperr"
)

// CommentMessage sets userID's reaction on a message. Each author has at most
// one comment per message; commenting again replaces the emoticon and keeps
// the comment id.
func (s *Service) CommentMessage(ctx context.Context, userID, conversationID, messageID, emoticon string) (chat.Comment, error) {
	if err := apperr.FromContext(ctx); err != nil {
		return chat.Comment{}, err
	}
	if err := validateEmoticon(emoticon); err != nil {
		return chat.Comment{}, err
	}
	c, m, recipients, err := s.messageForWrite(conversationID, messageID, userID)
	if err != nil {
		return chat.Comment{}, err
	}

	m.mu.Lock()
	if m.deleted {
		m.mu.Unlock()
		return chat.Comment{}, apperr.NotFound("message")
	}
	var target *comment
	for _, cm := range m.comments {
		if cm.authorID == userID {
			target = cm
			break
		}
	}
	if target == nil {
		target = &comment{id: uuid.NewString(), authorID: userID}
		m.comments = append(m.comments, target)
	}
	target.emoticon = emoticon
	target.updatedAt = s.now().UTC()
	snapshot := *target
	m.mu.Unlock()

	view := s.commentView(m.id, &snapshot)
	s.logger.Debug("comment_upserted",
		zap.String("conversation", c.id),
		zap.String("message", m.id),
		zap.String("comment", view.ID))
	s.publish(recipients, chat.EventCommentUpserted, c.id, view)
	return view, nil
}

// UncommentMessage removes a comment. Removing a comment that no longer
// exists succeeds; removing someone else's comment does not.
func (s *Service) UncommentMessage(ctx context.Context, userID, conversationID, messageID, commentID string) error {
	if err := apperr.FromContext(ctx); err != nil {
		return err
	}
	c, m, recipients, err := s.messageForWrite(conversationID, messageID, userID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	removed := false
	for i, cm := range m.comments {
		if cm.id != commentID {
			continue
		}
		if cm.authorID != userID {
			m.mu.Unlock()
			return apperr.Forbidden("only the author can remove a comment")
		}
		m.comments = append(m.comments[:i], m.comments[i+1:]...)
		removed = true
		break
	}
	m.mu.Unlock()

	if removed {
		s.publish(recipients, chat.EventCommentRemoved, c.id, map[string]string{
			"messageId": messageID,
			"commentId": commentID,
		})
	}
	return nil
}

// messageForWrite resolves a message the caller may react to. Only the
// conversation read lock is taken, so comments on different messages of the
// same conversation proceed in parallel.
func (s *Service) messageForWrite(conversationID, messageID, userID string) (*conversation, *message, []string, error) {
	c, err := s.lookup(conversationID)
	if err != nil {
		return nil, nil, nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := authorizeWrite(c, userID); err != nil {
		return nil, nil, nil, err
	}
	m, ok := c.byID[messageID]
	if !ok {
		return nil, nil, nil, apperr.NotFound("message")
	}
	return c, m, c.memberIDs(), nil
}
