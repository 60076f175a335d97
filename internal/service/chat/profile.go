package chat

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
	"github.com/zhouzirui/z-chat/backend/pkg/apperr"
)

// SetMyUsername renames the caller. Setting the current name again is a
// no-op; a name held by another user is a conflict.
func (s *Service) SetMyUsername(ctx context.Context, userID, username string) (chat.User, error) {
	if err := apperr.FromContext(ctx); err != nil {
		return chat.User{}, err
	}
	if err := validateUsername(username); err != nil {
		return chat.User{}, err
	}

	s.mu.Lock()
	rec, ok := s.users[userID]
	if !ok {
		s.mu.Unlock()
		return chat.User{}, apperr.NotFound("user")
	}
	if owner, taken := s.byName[username]; taken && owner != userID {
		s.mu.Unlock()
		return chat.User{}, apperr.Conflict("username already taken")
	}
	previous := rec.username
	delete(s.byName, previous)
	rec.username = username
	s.byName[username] = userID
	user := chat.User{ID: rec.id, Username: rec.username}
	ref := rec.photoRef
	s.mu.Unlock()

	if previous != username {
		s.logger.Debug("username_changed", zap.String("user", userID), zap.String("from", previous), zap.String("to", username))
	}
	s.resolvePhotos(ctx, []photoFetch{{dst: &user.Photo, ref: ref}})
	return user, nil
}

// SetMyPhoto replaces the caller's profile photo.
func (s *Service) SetMyPhoto(ctx context.Context, userID string, photo []byte) (chat.User, error) {
	if err := apperr.FromContext(ctx); err != nil {
		return chat.User{}, err
	}
	stored, err := s.storePhoto(ctx, chat.PhotoContent(photo))
	if err != nil {
		return chat.User{}, err
	}

	s.mu.Lock()
	rec, ok := s.users[userID]
	if !ok {
		s.mu.Unlock()
		s.releaseBlob(stored.photoRef)
		return chat.User{}, apperr.NotFound("user")
	}
	previous := rec.photoRef
	rec.photoRef = stored.photoRef
	user := chat.User{ID: rec.id, Username: rec.username, Photo: photo}
	s.mu.Unlock()

	s.releaseBlob(previous)
	return user, nil
}

// SearchUsers matches query case-insensitively against usernames. An empty
// query lists every user; otherwise at most the configured search limit is
// returned. No match yields an empty, non-nil slice.
func (s *Service) SearchUsers(ctx context.Context, userID, query string) ([]chat.User, error) {
	if err := apperr.FromContext(ctx); err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(query))

	type hit struct {
		user chat.User
		ref  string
	}
	s.mu.RLock()
	hits := make([]hit, 0)
	for _, rec := range s.users {
		if needle == "" || strings.Contains(strings.ToLower(rec.username), needle) {
			hits = append(hits, hit{user: chat.User{ID: rec.id, Username: rec.username}, ref: rec.photoRef})
		}
	}
	s.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].user.Username != hits[j].user.Username {
			return hits[i].user.Username < hits[j].user.Username
		}
		return hits[i].user.ID < hits[j].user.ID
	})
	if needle != "" && len(hits) > s.searchLimit {
		hits = hits[:s.searchLimit]
	}

	out := make([]chat.User, len(hits))
	fetches := make([]photoFetch, len(hits))
	for i, h := range hits {
		out[i] = h.user
		fetches[i] = photoFetch{dst: &out[i].Photo, ref: h.ref}
	}
	s.resolvePhotos(ctx, fetches)
	return out, nil
}
