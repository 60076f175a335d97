package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
	"github.com/zhouzirui/z-chat/backend/internal/store/blob"
	"github.com/zhouzirui/z-chat/backend/pkg/apperr"
)

const (
	defaultMaxPhotoBytes = 10 << 20
	defaultSearchLimit   = 10
	defaultGroupName     = "New Group"
)

// Publisher receives committed changes for realtime delivery.
type Publisher interface {
	Publish(recipients []string, event chat.Event)
}

// Observer is notified about stored messages, used for metrics.
type Observer interface {
	MessageStored(kind chat.MessageType, content chat.ContentKind)
}

type nopPublisher struct{}

func (nopPublisher) Publish([]string, chat.Event) {}

type nopObserver struct{}

func (nopObserver) MessageStored(chat.MessageType, chat.ContentKind) {}

// Option customises a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPublisher routes committed changes to p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithObserver registers a message observer.
func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithHideExistence controls whether reading a conversation the caller does
// not participate in reports NotFound (true) or Forbidden (false).
func WithHideExistence(hide bool) Option {
	return func(s *Service) { s.hideExistence = hide }
}

// WithMaxPhotoBytes caps the size of any uploaded photo.
func WithMaxPhotoBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxPhotoBytes = n
		}
	}
}

// WithSearchLimit caps the number of users returned by a non-empty search.
func WithSearchLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.searchLimit = n
		}
	}
}

// Service implements the messaging backend: identities, the conversation
// directory, per-conversation message logs, groups and profiles.
//
// Lock order is conversation.mu, then message.mu, then Service.mu. Service.mu
// only guards the directory maps and user records and is never held while a
// conversation lock is acquired.
type Service struct {
	mu            sync.RWMutex
	users         map[string]*userRecord
	byName        map[string]string
	conversations map[string]*conversation
	direct        map[pairKey]string
	memberships   map[string]map[string]struct{}

	blobs         blob.Store
	publisher     Publisher
	observer      Observer
	logger        *zap.Logger
	now           func() time.Time
	hideExistence bool
	maxPhotoBytes int64
	searchLimit   int
}

// NewService bootstraps the in-memory messaging service. Photos are kept in
// blobs.
func NewService(blobs blob.Store, opts ...Option) *Service {
	s := &Service{
		users:         make(map[string]*userRecord),
		byName:        make(map[string]string),
		conversations: make(map[string]*conversation),
		direct:        make(map[pairKey]string),
		memberships:   make(map[string]map[string]struct{}),
		blobs:         blobs,
		publisher:     nopPublisher{},
		observer:      nopObserver{},
		logger:        zap.NewNop(),
		now:           time.Now,
		hideExistence: true,
		maxPhotoBytes: defaultMaxPhotoBytes,
		searchLimit:   defaultSearchLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type userRecord struct {
	id       string
	username string
	photoRef string
}

type pairKey struct{ a, b string }

func newPairKey(x, y string) pairKey {
	if x > y {
		x, y = y, x
	}
	return pairKey{a: x, b: y}
}

type membership struct {
	joinedAt   time.Time
	lastAccess time.Time
}

type conversation struct {
	id        string
	kind      chat.ConversationType
	createdAt time.Time

	mu          sync.RWMutex
	name        string
	photoRef    string
	members     map[string]*membership
	former      map[string]struct{}
	messages    []*message
	byID        map[string]*message
	lastStamp   time.Time
	idempotency map[string]string
}

// closed reports a group nobody belongs to anymore. Such a group accepts no
// further writes.
func (c *conversation) closed() bool {
	return c.kind == chat.ConversationGroup && len(c.members) == 0
}

func (c *conversation) isMember(userID string) bool {
	_, ok := c.members[userID]
	return ok
}

func (c *conversation) memberIDs() []string {
	ids := make([]string, 0, len(c.members))
	for id := range c.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// nextStamp returns a timestamp strictly after every timestamp handed out in
// this conversation so far. Caller holds c.mu.
func (c *conversation) nextStamp(now time.Time) time.Time {
	ts := now.UTC().Truncate(time.Microsecond)
	if !ts.After(c.lastStamp) {
		ts = c.lastStamp.Add(time.Microsecond)
	}
	c.lastStamp = ts
	return ts
}

// readHorizon is the oldest last-access among current members; messages at or
// before it have been seen by everyone.
func (c *conversation) readHorizon() time.Time {
	var horizon time.Time
	first := true
	for _, m := range c.members {
		if m.lastAccess.IsZero() {
			return time.Time{}
		}
		if first || m.lastAccess.Before(horizon) {
			horizon = m.lastAccess
			first = false
		}
	}
	return horizon
}

type storedContent struct {
	kind     chat.ContentKind
	text     string
	photoRef string
}

type message struct {
	id             string
	conversationID string
	senderID       string
	content        storedContent
	timestamp      time.Time
	kind           chat.MessageType
	replyTo        string
	forwardedFrom  *chat.ForwardOrigin

	mu       sync.Mutex
	deleted  bool
	comments []*comment
}

type comment struct {
	id        string
	authorID  string
	emoticon  string
	updatedAt time.Time
}

// lookup returns the conversation with the given id.
func (s *Service) lookup(conversationID string) (*conversation, error) {
	s.mu.RLock()
	c, ok := s.conversations[conversationID]
	s.mu.RUnlock()
	if !ok {
		return nil, apperr.NotFound("conversation")
	}
	return c, nil
}

// lookupGroup is lookup restricted to group conversations.
func (s *Service) lookupGroup(groupID string) (*conversation, error) {
	c, err := s.lookup(groupID)
	if err != nil || c.kind != chat.ConversationGroup {
		return nil, apperr.NotFound("group")
	}
	return c, nil
}

// hidden is the error for reading a conversation the caller cannot see.
func (s *Service) hidden() error {
	if s.hideExistence {
		return apperr.NotFound("conversation")
	}
	return apperr.Forbidden("not a participant of this conversation")
}

// authorizeWrite checks that userID may append to c. Caller holds c.mu.
func authorizeWrite(c *conversation, userID string) error {
	if c.closed() {
		return apperr.Forbidden("group has no members and is read-only")
	}
	if !c.isMember(userID) {
		return apperr.Forbidden("not a participant of this conversation")
	}
	return nil
}

func (s *Service) userSummary(id string) chat.UserSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[id]; ok {
		return chat.UserSummary{ID: u.id, Username: u.username}
	}
	return chat.UserSummary{ID: id}
}

func (s *Service) userSummaries(ids []string) []chat.UserSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]chat.UserSummary, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, chat.UserSummary{ID: u.id, Username: u.username})
		}
	}
	return out
}

// photoFetch is a deferred blob load into a view field.
type photoFetch struct {
	dst *[]byte
	ref string
}

// resolvePhotos loads the referenced blobs outside of any lock. Missing blobs
// leave the field empty.
func (s *Service) resolvePhotos(ctx context.Context, fetches []photoFetch) {
	for _, f := range fetches {
		if f.ref == "" {
			continue
		}
		data, err := s.blobs.Get(ctx, f.ref)
		if err != nil {
			s.logger.Warn("photo_unavailable", zap.String("ref", f.ref), zap.Error(err))
			continue
		}
		*f.dst = data
	}
}

// storePhoto validates and persists photo content. Text content passes
// through untouched.
func (s *Service) storePhoto(ctx context.Context, content chat.Content) (storedContent, error) {
	switch content.Kind {
	case chat.ContentText:
		if err := validateText(content.Text); err != nil {
			return storedContent{}, err
		}
		return storedContent{kind: chat.ContentText, text: content.Text}, nil
	case chat.ContentPhoto:
		if err := validatePhoto(content.Photo, s.maxPhotoBytes); err != nil {
			return storedContent{}, err
		}
		ref, err := s.blobs.Put(ctx, content.Photo)
		if err != nil {
			return storedContent{}, err
		}
		return storedContent{kind: chat.ContentPhoto, photoRef: ref}, nil
	default:
		return storedContent{}, apperr.Invalid("unsupported content kind %q", content.Kind)
	}
}

// releaseBlob deletes a blob that is no longer referenced. Failures only leak
// storage, so they are logged rather than returned.
func (s *Service) releaseBlob(ref string) {
	if ref == "" {
		return
	}
	if err := s.blobs.Delete(context.Background(), ref); err != nil {
		s.logger.Warn("blob_release_failed", zap.String("ref", ref), zap.Error(err))
	}
}

func (s *Service) publish(recipients []string, eventType chat.EventType, conversationID string, data any) {
	if len(recipients) == 0 {
		return
	}
	s.publisher.Publish(recipients, chat.Event{
		Type:           eventType,
		ConversationID: conversationID,
		Data:           data,
		Timestamp:      s.now().UTC(),
	})
}

// messageView renders m for a reader. Caller holds the conversation lock; the
// returned ref must be resolved into Content.Photo by the caller.
func (s *Service) messageView(m *message, horizon time.Time) (chat.Message, string) {
	view := chat.Message{
		ID:             m.id,
		ConversationID: m.conversationID,
		Sender:         s.userSummary(m.senderID),
		Content:        chat.Content{Kind: m.content.kind, Text: m.content.text},
		Timestamp:      m.timestamp,
		Type:           m.kind,
		Status:         chat.StatusReceived,
		ReplyTo:        m.replyTo,
		Comments:       []chat.Comment{},
	}
	if m.forwardedFrom != nil {
		origin := *m.forwardedFrom
		view.ForwardedFrom = &origin
	}
	if !horizon.IsZero() && !m.timestamp.After(horizon) {
		view.Status = chat.StatusRead
	}

	m.mu.Lock()
	for _, cm := range m.comments {
		view.Comments = append(view.Comments, s.commentView(m.id, cm))
	}
	m.mu.Unlock()

	return view, m.content.photoRef
}

func (s *Service) commentView(messageID string, cm *comment) chat.Comment {
	return chat.Comment{
		ID:        cm.id,
		MessageID: messageID,
		Author:    s.userSummary(cm.authorID),
		Emoticon:  cm.emoticon,
		UpdatedAt: cm.updatedAt,
	}
}
