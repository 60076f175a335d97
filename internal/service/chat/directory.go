package chat

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
	"github.com/zhouzirui/z-chat/backend/pkg/apperr"
)

const photoPreview = "📷 Photo"

// summarize renders c for viewer. Caller holds c.mu (read or write). The
// returned photo reference is resolved by the caller after unlocking.
func (s *Service) summarize(c *conversation, viewer string) (chat.ConversationSummary, string) {
	summary := chat.ConversationSummary{
		ID:           c.id,
		Type:         c.kind,
		Name:         c.name,
		Participants: s.userSummaries(c.memberIDs()),
		ReadOnly:     c.closed(),
		CreatedAt:    c.createdAt,
	}
	photoRef := c.photoRef

	if c.kind == chat.ConversationDirect {
		for id := range c.members {
			if id == viewer {
				continue
			}
			s.mu.RLock()
			if other, ok := s.users[id]; ok {
				summary.Name = other.username
				photoRef = other.photoRef
			}
			s.mu.RUnlock()
		}
	}

	if n := len(c.messages); n > 0 {
		last := c.messages[n-1]
		preview := last.content.text
		if last.content.kind == chat.ContentPhoto {
			preview = photoPreview
		}
		summary.LastMessage = &chat.LastMessage{
			MessageID: last.id,
			Timestamp: last.timestamp,
			Preview:   preview,
		}
	}
	return summary, photoRef
}

// ListConversations returns every conversation userID participates in,
// ordered by the timestamp of its most recent message. Ties are broken by
// conversation id so repeated calls are deterministic.
func (s *Service) ListConversations(ctx context.Context, userID string, order chat.SortOrder) ([]chat.ConversationSummary, error) {
	if err := apperr.FromContext(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	candidates := make([]*conversation, 0, len(s.memberships[userID]))
	for id := range s.memberships[userID] {
		if c, ok := s.conversations[id]; ok {
			candidates = append(candidates, c)
		}
	}
	s.mu.RUnlock()

	type row struct {
		summary  chat.ConversationSummary
		photoRef string
	}
	rows := make([]row, 0, len(candidates))
	for _, c := range candidates {
		c.mu.RLock()
		if c.isMember(userID) {
			summary, ref := s.summarize(c, userID)
			rows = append(rows, row{summary: summary, photoRef: ref})
		}
		c.mu.RUnlock()
	}

	sort.SliceStable(rows, func(i, j int) bool {
		ki, kj := recencyKey(rows[i].summary), recencyKey(rows[j].summary)
		if !ki.Equal(kj) {
			if order == chat.SortAsc {
				return ki.Before(kj)
			}
			return ki.After(kj)
		}
		return rows[i].summary.ID < rows[j].summary.ID
	})

	out := make([]chat.ConversationSummary, len(rows))
	fetches := make([]photoFetch, 0, len(rows))
	for i := range rows {
		out[i] = rows[i].summary
	}
	for i := range out {
		fetches = append(fetches, photoFetch{dst: &out[i].Photo, ref: rows[i].photoRef})
	}
	s.resolvePhotos(ctx, fetches)
	return out, nil
}

// recencyKey orders conversations without messages by creation time.
func recencyKey(summary chat.ConversationSummary) time.Time {
	if summary.LastMessage != nil {
		return summary.LastMessage.Timestamp
	}
	return summary.CreatedAt
}

// GetConversation returns the conversation with its messages in the requested
// order and records the caller's read position. A conversation that does not
// exist and one the caller does not belong to are reported the same way
// while existence hiding is enabled.
func (s *Service) GetConversation(ctx context.Context, userID, conversationID string, order chat.SortOrder) (chat.Conversation, error) {
	if err := apperr.FromContext(ctx); err != nil {
		return chat.Conversation{}, err
	}
	c, err := s.lookup(conversationID)
	if err != nil {
		return chat.Conversation{}, apperr.NotFound("conversation")
	}

	c.mu.Lock()
	member, ok := c.members[userID]
	if !ok {
		c.mu.Unlock()
		return chat.Conversation{}, s.hidden()
	}
	// Everything currently in the log has now been delivered to the caller.
	member.lastAccess = s.now().UTC()
	if member.lastAccess.Before(c.lastStamp) {
		member.lastAccess = c.lastStamp
	}

	summary, summaryRef := s.summarize(c, userID)
	horizon := c.readHorizon()
	messages := make([]chat.Message, len(c.messages))
	refs := make([]string, len(c.messages))
	for i, m := range c.messages {
		messages[i], refs[i] = s.messageView(m, horizon)
	}
	c.mu.Unlock()

	if order == chat.SortDesc {
		for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
			messages[i], messages[j] = messages[j], messages[i]
			refs[i], refs[j] = refs[j], refs[i]
		}
	}

	result := chat.Conversation{ConversationSummary: summary, Messages: messages}
	fetches := make([]photoFetch, 0, len(refs)+1)
	fetches = append(fetches, photoFetch{dst: &result.Photo, ref: summaryRef})
	for i := range result.Messages {
		fetches = append(fetches, photoFetch{dst: &result.Messages[i].Content.Photo, ref: refs[i]})
	}
	s.resolvePhotos(ctx, fetches)
	return result, nil
}

// CreateOrGetConversation opens a conversation between userID and the user
// named targetUsername. A direct conversation is unique per pair of users and
// is returned as-is when it already exists; a group is always new. The
// boolean reports whether a conversation was created.
func (s *Service) CreateOrGetConversation(ctx context.Context, userID, targetUsername string, kind chat.ConversationType) (chat.ConversationSummary, bool, error) {
	if err := apperr.FromContext(ctx); err != nil {
		return chat.ConversationSummary{}, false, err
	}
	if !kind.Valid() {
		return chat.ConversationSummary{}, false, apperr.Invalid("conversation type must be 'direct' or 'group'")
	}
	targetID, err := s.userByName(targetUsername)
	if err != nil {
		return chat.ConversationSummary{}, false, err
	}
	if targetID == userID {
		return chat.ConversationSummary{}, false, apperr.Invalid("cannot open a conversation with yourself")
	}

	c, created := s.createConversation(userID, targetID, kind)
	if created {
		s.logger.Debug("conversation_created",
			zap.String("conversation", c.id),
			zap.String("type", string(kind)),
			zap.String("creator", userID))
	}

	c.mu.RLock()
	summary, ref := s.summarize(c, userID)
	c.mu.RUnlock()
	s.resolvePhotos(ctx, []photoFetch{{dst: &summary.Photo, ref: ref}})
	return summary, created, nil
}

func (s *Service) createConversation(userID, targetID string, kind chat.ConversationType) (*conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair := newPairKey(userID, targetID)
	if kind == chat.ConversationDirect {
		if id, ok := s.direct[pair]; ok {
			return s.conversations[id], false
		}
	}

	now := s.now().UTC()
	c := &conversation{
		id:        uuid.NewString(),
		kind:      kind,
		createdAt: now,
		members: map[string]*membership{
			userID:   {joinedAt: now},
			targetID: {joinedAt: now},
		},
		former:      make(map[string]struct{}),
		byID:        make(map[string]*message),
		idempotency: make(map[string]string),
	}
	if kind == chat.ConversationGroup {
		c.name = defaultGroupName
	}

	s.conversations[c.id] = c
	if kind == chat.ConversationDirect {
		s.direct[pair] = c.id
	}
	s.addMembershipLocked(userID, c.id)
	s.addMembershipLocked(targetID, c.id)
	return c, true
}

// addMembershipLocked indexes conversationID under userID. Caller holds s.mu.
func (s *Service) addMembershipLocked(userID, conversationID string) {
	set, ok := s.memberships[userID]
	if !ok {
		set = make(map[string]struct{})
		s.memberships[userID] = set
	}
	set[conversationID] = struct{}{}
}
