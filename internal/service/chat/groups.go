package chat

import (
	"context"

	"go.uber.org/zap"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
	"github.com/zhouzirui/z-chat/backend/pkg/apperr"
)

// AddMember adds the user named username to the group. The caller must be a
// member already.
func (s *Service) AddMember(ctx context.Context, userID, groupID, username string) (chat.UserSummary, error) {
	if err := apperr.FromContext(ctx); err != nil {
		return chat.UserSummary{}, err
	}
	g, err := s.lookupGroup(groupID)
	if err != nil {
		return chat.UserSummary{}, err
	}
	targetID, err := s.userByName(username)
	if err != nil {
		return chat.UserSummary{}, err
	}

	g.mu.Lock()
	if err := authorizeWrite(g, userID); err != nil {
		g.mu.Unlock()
		return chat.UserSummary{}, err
	}
	if g.isMember(targetID) {
		g.mu.Unlock()
		return chat.UserSummary{}, apperr.Conflict("user is already a member")
	}
	g.members[targetID] = &membership{joinedAt: s.now().UTC()}
	delete(g.former, targetID)
	recipients := g.memberIDs()

	s.mu.Lock()
	s.addMembershipLocked(targetID, g.id)
	s.mu.Unlock()
	g.mu.Unlock()

	added := s.userSummary(targetID)
	s.logger.Debug("member_added", zap.String("group", groupID), zap.String("user", targetID), zap.String("by", userID))
	s.publish(recipients, chat.EventMemberAdded, groupID, added)
	return added, nil
}

// LeaveGroup removes the caller from the group. When the last member leaves
// the group stays readable by its former members but accepts no more writes.
func (s *Service) LeaveGroup(ctx context.Context, userID, groupID string) error {
	if err := apperr.FromContext(ctx); err != nil {
		return err
	}
	g, err := s.lookupGroup(groupID)
	if err != nil {
		return err
	}

	g.mu.Lock()
	if !g.isMember(userID) {
		g.mu.Unlock()
		return apperr.Forbidden("not a member of this group")
	}
	delete(g.members, userID)
	g.former[userID] = struct{}{}
	recipients := append(g.memberIDs(), userID)
	closed := g.closed()

	s.mu.Lock()
	if set, ok := s.memberships[userID]; ok {
		delete(set, g.id)
	}
	s.mu.Unlock()
	g.mu.Unlock()

	s.logger.Debug("member_left", zap.String("group", groupID), zap.String("user", userID), zap.Bool("closed", closed))
	s.publish(recipients, chat.EventMemberLeft, groupID, s.userSummary(userID))
	return nil
}

// GetGroupMembers lists the current members. Former members may still read
// the roster; anyone else is treated like a reader of a foreign conversation.
func (s *Service) GetGroupMembers(ctx context.Context, userID, groupID string) ([]chat.UserSummary, error) {
	if err := apperr.FromContext(ctx); err != nil {
		return nil, err
	}
	g, err := s.lookupGroup(groupID)
	if err != nil {
		return nil, err
	}

	g.mu.RLock()
	_, wasMember := g.former[userID]
	if !g.isMember(userID) && !wasMember {
		g.mu.RUnlock()
		return nil, s.hidden()
	}
	ids := g.memberIDs()
	g.mu.RUnlock()

	return s.userSummaries(ids), nil
}

// SetGroupName renames the group. Last write wins.
func (s *Service) SetGroupName(ctx context.Context, userID, groupID, name string) (chat.ConversationSummary, error) {
	if err := apperr.FromContext(ctx); err != nil {
		return chat.ConversationSummary{}, err
	}
	if err := validateGroupName(name); err != nil {
		return chat.ConversationSummary{}, err
	}
	g, err := s.lookupGroup(groupID)
	if err != nil {
		return chat.ConversationSummary{}, err
	}

	g.mu.Lock()
	if err := authorizeWrite(g, userID); err != nil {
		g.mu.Unlock()
		return chat.ConversationSummary{}, err
	}
	g.name = name
	summary, ref := s.summarize(g, userID)
	recipients := g.memberIDs()
	g.mu.Unlock()

	s.resolvePhotos(ctx, []photoFetch{{dst: &summary.Photo, ref: ref}})
	s.publish(recipients, chat.EventGroupUpdated, groupID, summary)
	return summary, nil
}

// SetGroupPhoto replaces the group photo. Last write wins.
func (s *Service) SetGroupPhoto(ctx context.Context, userID, groupID string, photo []byte) (chat.ConversationSummary, error) {
	if err := apperr.FromContext(ctx); err != nil {
		return chat.ConversationSummary{}, err
	}
	g, err := s.lookupGroup(groupID)
	if err != nil {
		return chat.ConversationSummary{}, err
	}
	stored, err := s.storePhoto(ctx, chat.PhotoContent(photo))
	if err != nil {
		return chat.ConversationSummary{}, err
	}

	g.mu.Lock()
	if err := authorizeWrite(g, userID); err != nil {
		g.mu.Unlock()
		s.releaseBlob(stored.photoRef)
		return chat.ConversationSummary{}, err
	}
	previous := g.photoRef
	g.photoRef = stored.photoRef
	summary, _ := s.summarize(g, userID)
	recipients := g.memberIDs()
	g.mu.Unlock()

	s.releaseBlob(previous)
	summary.Photo = photo
	s.publish(recipients, chat.EventGroupUpdated, groupID, summary)
	return summary, nil
}
