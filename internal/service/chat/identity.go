package chat

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
	"github.com/zhouzirui/z-chat/backend/pkg/apperr"
)

// ResolveIdentity returns the user registered under username, creating it on
// first use. The boolean reports whether a new user was registered.
func (s *Service) ResolveIdentity(ctx context.Context, username string) (chat.User, bool, error) {
	if err := apperr.FromContext(ctx); err != nil {
		return chat.User{}, false, err
	}
	if err := validateUsername(username); err != nil {
		return chat.User{}, false, err
	}

	s.mu.Lock()
	if id, ok := s.byName[username]; ok {
		rec := s.users[id]
		s.mu.Unlock()
		return chat.User{ID: rec.id, Username: rec.username}, false, nil
	}
	rec := &userRecord{id: uuid.NewString(), username: username}
	s.users[rec.id] = rec
	s.byName[username] = rec.id
	s.mu.Unlock()

	s.logger.Debug("user_created", zap.String("user", rec.id), zap.String("username", username))
	return chat.User{ID: rec.id, Username: rec.username}, true, nil
}

// LookupUser returns the user with the given id, including its photo.
func (s *Service) LookupUser(ctx context.Context, userID string) (chat.User, error) {
	if err := apperr.FromContext(ctx); err != nil {
		return chat.User{}, err
	}
	s.mu.RLock()
	rec, ok := s.users[userID]
	var user chat.User
	var ref string
	if ok {
		user = chat.User{ID: rec.id, Username: rec.username}
		ref = rec.photoRef
	}
	s.mu.RUnlock()
	if !ok {
		return chat.User{}, apperr.NotFound("user")
	}

	s.resolvePhotos(ctx, []photoFetch{{dst: &user.Photo, ref: ref}})
	return user, nil
}

// UserExists reports whether userID belongs to a registered user.
func (s *Service) UserExists(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[userID]
	return ok
}

// userByName resolves a username to its id.
func (s *Service) userByName(username string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[username]
	if !ok {
		return "", apperr.NotFound("user " + username)
	}
	return id, nil
}
