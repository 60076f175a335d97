package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-chat/backend/internal/client"
	"github.com/zhouzirui/z-chat/backend/internal/handler"
	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
	"github.com/zhouzirui/z-chat/backend/internal/realtime"
	chatService "github.com/zhouzirui/z-chat/backend/internal/service/chat"
	"github.com/zhouzirui/z-chat/backend/internal/store/blob"
	"github.com/zhouzirui/z-chat/backend/pkg/apperr"
)

var pngPhoto = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func newClient(t *testing.T) *client.Client {
	t.Helper()
	hub := realtime.NewHub(nil, nil)
	svc := chatService.NewService(blob.NewMemoryStore(), chatService.WithPublisher(hub))
	srv := httptest.NewServer(handler.NewRouter(svc, hub, nil, nil, handler.Options{MaxPhotoBytes: 1 << 20}))
	t.Cleanup(srv.Close)
	return client.New(srv.URL)
}

func login(t *testing.T, c *client.Client, name string) *client.Session {
	t.Helper()
	sess, _, err := c.Login(context.Background(), name)
	require.NoError(t, err)
	return sess
}

func TestLoginIsIdempotent(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	first, created, err := c.Login(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := c.Login(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.UserID(), again.UserID())

	_, _, err = c.Login(ctx, "a")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestConversationFlow(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	alice := login(t, c, "alice")
	bob := login(t, c, "bob")

	direct, created, err := alice.OpenConversation(ctx, "bob", chat.ConversationDirect)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := bob.OpenConversation(ctx, "alice", chat.ConversationDirect)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, direct.ID, again.ID)

	hello, err := alice.PostMessage(ctx, direct.ID, chat.TextContent("hello bob"))
	require.NoError(t, err)
	assert.Equal(t, chat.MessageStandard, hello.Type)

	reply, err := bob.ReplyMessage(ctx, direct.ID, hello.ID, chat.TextContent("hi alice"))
	require.NoError(t, err)
	assert.Equal(t, hello.ID, reply.ReplyTo)

	comment, err := bob.CommentMessage(ctx, direct.ID, hello.ID, "😀")
	require.NoError(t, err)

	conv, err := alice.GetConversation(ctx, direct.ID, chat.SortAsc)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, hello.ID, conv.Messages[0].ID)
	assert.Equal(t, chat.StatusRead, conv.Messages[0].Status)
	require.Len(t, conv.Messages[0].Comments, 1)
	assert.Equal(t, "😀", conv.Messages[0].Comments[0].Emoticon)

	require.NoError(t, bob.UncommentMessage(ctx, direct.ID, hello.ID, comment.ID))
	require.NoError(t, bob.UncommentMessage(ctx, direct.ID, hello.ID, comment.ID))

	err = bob.DeleteMessage(ctx, direct.ID, hello.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	require.NoError(t, alice.DeleteMessage(ctx, direct.ID, hello.ID))

	list, err := bob.ListConversations(ctx, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].LastMessage)
	assert.Equal(t, reply.ID, list[0].LastMessage.MessageID)
}

func TestGroupsAndProfile(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	alice := login(t, c, "alice")
	bob := login(t, c, "bob")
	carol := login(t, c, "carol")

	group, _, err := alice.OpenConversation(ctx, "bob", chat.ConversationGroup)
	require.NoError(t, err)

	added, err := bob.AddMember(ctx, group.ID, "carol")
	require.NoError(t, err)
	assert.Equal(t, carol.UserID(), added.ID)

	_, err = alice.AddMember(ctx, group.ID, "carol")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	renamed, err := carol.SetGroupName(ctx, group.ID, "weekend")
	require.NoError(t, err)
	assert.Equal(t, "weekend", renamed.Name)

	withPhoto, err := alice.SetGroupPhoto(ctx, group.ID, pngPhoto)
	require.NoError(t, err)
	assert.Equal(t, pngPhoto, withPhoto.Photo)

	require.NoError(t, carol.LeaveGroup(ctx, group.ID))
	members, err := carol.GetGroupMembers(ctx, group.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	me, err := bob.SetUsername(ctx, "bobby")
	require.NoError(t, err)
	assert.Equal(t, "bobby", me.Username)

	_, err = alice.SetUsername(ctx, "bobby")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	me, err = alice.SetPhoto(ctx, pngPhoto)
	require.NoError(t, err)
	assert.Equal(t, pngPhoto, me.Photo)

	profile, err := alice.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.Username)

	found, err := carol.SearchUsers(ctx, "BOB")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, bob.UserID(), found[0].ID)
}

func TestPhotoForwardAndIdempotency(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	alice := login(t, c, "alice")
	login(t, c, "bob")
	login(t, c, "carol")

	direct, _, err := alice.OpenConversation(ctx, "bob", chat.ConversationDirect)
	require.NoError(t, err)
	group, _, err := alice.OpenConversation(ctx, "carol", chat.ConversationGroup)
	require.NoError(t, err)

	photo, err := alice.PostMessage(ctx, direct.ID, chat.PhotoContent(pngPhoto), client.WithIdempotencyKey("k1"))
	require.NoError(t, err)
	assert.Equal(t, chat.ContentPhoto, photo.Content.Kind)

	retry, err := alice.PostMessage(ctx, direct.ID, chat.PhotoContent(pngPhoto), client.WithIdempotencyKey("k1"))
	require.NoError(t, err)
	assert.Equal(t, photo.ID, retry.ID)

	fwd, err := alice.ForwardMessage(ctx, direct.ID, photo.ID, group.ID)
	require.NoError(t, err)
	assert.Equal(t, chat.MessageForward, fwd.Type)
	assert.Equal(t, pngPhoto, fwd.Content.Photo)
	require.NotNil(t, fwd.ForwardedFrom)
	assert.Equal(t, photo.ID, fwd.ForwardedFrom.MessageID)
}

func TestErrorsMapToSentinels(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	alice := login(t, c, "alice")
	login(t, c, "bob")
	mallory := login(t, c, "mallory")

	direct, _, err := alice.OpenConversation(ctx, "bob", chat.ConversationDirect)
	require.NoError(t, err)

	_, err = mallory.GetConversation(ctx, direct.ID, "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = alice.PostMessage(ctx, direct.ID, chat.TextContent(""))
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = alice.ListConversations(ctx, "sideways")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = c.As(client.IdentifierCredential("nobody")).ListConversations(ctx, "")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestTimeoutMapsToErrTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := client.New(srv.URL, client.WithTimeout(50*time.Millisecond))
	_, _, err := c.Login(context.Background(), "alice")
	assert.ErrorIs(t, err, apperr.ErrTimeout)
}

func TestEventsStream(t *testing.T) {
	c := newClient(t)
	alice := login(t, c, "alice")
	bob := login(t, c, "bob")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	direct, _, err := alice.OpenConversation(ctx, "bob", chat.ConversationDirect)
	require.NoError(t, err)

	events, err := bob.Events(ctx)
	require.NoError(t, err)

	// The subscription is registered asynchronously after the handshake, so
	// keep posting until bob sees one.
	deadline := time.After(3 * time.Second)
	for {
		_, err := alice.PostMessage(ctx, direct.ID, chat.TextContent("ping"))
		require.NoError(t, err)
		select {
		case ev, ok := <-events:
			require.True(t, ok)
			assert.Equal(t, chat.EventMessageCreated, ev.Type)
			assert.Equal(t, direct.ID, ev.ConversationID)
			cancel()
			return
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatal("no event received")
		}
	}
}

func TestCollectionPathsKeepTrailingSlash(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen[r.Method+" "+r.URL.Path] = true
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodGet {
			w.Write([]byte(`[]`))
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	sess := client.New(srv.URL).As(client.IdentifierCredential("u1"))
	_, err := sess.ListConversations(ctx, "")
	require.NoError(t, err)
	_, _, err = sess.OpenConversation(ctx, "bob", chat.ConversationDirect)
	require.NoError(t, err)
	_, err = sess.PostMessage(ctx, "c1", chat.TextContent("hi"))
	require.NoError(t, err)
	_, err = sess.CommentMessage(ctx, "c1", "m1", "😀")
	require.NoError(t, err)
	_, err = sess.AddMember(ctx, "g1", "carol")
	require.NoError(t, err)
	_, err = sess.GetGroupMembers(ctx, "g1")
	require.NoError(t, err)
	require.NoError(t, sess.LeaveGroup(ctx, "g1"))

	for _, want := range []string{
		"GET /users/u1/conversations/",
		"PUT /users/u1/conversations/",
		"POST /users/u1/conversations/c1/messages/",
		"PUT /users/u1/conversations/c1/messages/m1/comments/",
		"PUT /users/u1/groups/g1/members/",
		"GET /users/u1/groups/g1/members/",
		"DELETE /users/u1/groups/g1/members/me",
	} {
		assert.True(t, seen[want], want)
	}
}
