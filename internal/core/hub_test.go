package core

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vseti/vseti-chat/internal/store"
)

func TestHubRejectsCommandsBeforeAuth(t *testing.T) {
	f := newFixture(t, 1, Options{})
	c := NewClient("anon", 8)
	f.hub.Connect(c)

	f.hub.Handle(context.Background(), c, &Command{Kind: CommandGetConversations})

	ev := mustEvent(t, c.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeNotAuthenticated {
		t.Fatalf("expected not_authenticated error, got %+v", ev)
	}
	if ev.Command != "get_conversations" {
		t.Fatalf("unexpected command in error: %q", ev.Command)
	}
	if c.State() != StateUnauthenticated {
		t.Fatalf("expected unauthenticated state, got %v", c.State())
	}
}

func TestHubAuthFailure(t *testing.T) {
	f := newFixture(t, 1, Options{})
	ctx := context.Background()

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "nope"},
		{name: "unknown user", token: token(999)},
		{name: "empty", token: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient("c", 8)
			f.hub.Connect(c)
			f.hub.Handle(ctx, c, &Command{Kind: CommandAuth, Token: tt.token})

			ev := mustEvent(t, c.Events, EventAuthError)
			require.Equal(t, ErrCodeAuthenticationFailed, ev.Error.Code)
			require.False(t, c.Authenticated())
			require.False(t, f.hub.Registry().Online(999))
		})
	}
}

func TestHubSingleActiveConnection_Keep(t *testing.T) {
	f := newFixture(t, 2, Options{})
	ctx := context.Background()
	alice, bob := f.users[0], f.users[1]
	conv := f.conversation(t, alice, bob)

	first := f.connect(t, "a1", alice)
	second := f.connect(t, "a2", alice)
	bobClient := f.connect(t, "b", bob)

	got, ok := f.hub.Registry().Lookup(alice)
	require.True(t, ok)
	require.Same(t, second, got)

	f.hub.Handle(ctx, bobClient, &Command{Kind: CommandSendMessage, ConversationID: conv.ID, Content: "hi"})

	ev := mustEvent(t, second.Events, EventNewMessage)
	require.Equal(t, "hi", ev.Message.Content)
	noEvent(t, first.Events, EventNewMessage)

	// The orphaned connection stays open until it closes on its own.
	require.NotEqual(t, StateClosed, first.State())
	f.hub.Disconnect(first)
	got, ok = f.hub.Registry().Lookup(alice)
	require.True(t, ok)
	require.Same(t, second, got)
}

func TestHubSingleActiveConnection_Evict(t *testing.T) {
	f := newFixture(t, 1, Options{DuplicatePolicy: DuplicateEvict})
	alice := f.users[0]

	first := f.connect(t, "a1", alice)
	second := f.connect(t, "a2", alice)

	mustEvent(t, first.Events, EventSessionReplaced)
	<-first.Done()
	require.Equal(t, StateClosed, first.State())

	got, ok := f.hub.Registry().Lookup(alice)
	require.True(t, ok)
	require.Same(t, second, got)
}

func TestHubCreateConversationIdempotentForTwoParties(t *testing.T) {
	f := newFixture(t, 2, Options{})
	ctx := context.Background()
	alice, bob := f.users[0], f.users[1]
	a := f.connect(t, "a", alice)
	b := f.connect(t, "b", bob)

	f.hub.Handle(ctx, a, &Command{Kind: CommandCreateConversation, ParticipantIDs: []int64{bob}})
	created := mustEvent(t, a.Events, EventConversationCreated)
	mustEvent(t, b.Events, EventConversationCreated)

	f.hub.Handle(ctx, b, &Command{Kind: CommandCreateConversation, ParticipantIDs: []int64{alice, bob}})
	again := mustEvent(t, b.Events, EventConversationCreated)

	require.Equal(t, created.Conversation.ID, again.Conversation.ID)
	require.ElementsMatch(t, []int64{alice, bob}, again.Conversation.Participants)
	require.Len(t, again.Conversation.Members, 2)

	convs, err := f.hub.Directory().ListForUser(ctx, alice)
	require.NoError(t, err)
	require.Len(t, convs, 1)
}

func TestHubCreateConversationInvalidParticipants(t *testing.T) {
	f := newFixture(t, 1, Options{})
	ctx := context.Background()
	a := f.connect(t, "a", f.users[0])

	tests := []struct {
		name string
		ids  []int64
	}{
		{name: "only self", ids: []int64{f.users[0]}},
		{name: "empty", ids: nil},
		{name: "unknown user", ids: []int64{4242}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.hub.Handle(ctx, a, &Command{Kind: CommandCreateConversation, ParticipantIDs: tt.ids})
			ev := mustEvent(t, a.Events, EventError)
			require.Equal(t, ErrCodeInvalidParticipants, ev.Error.Code)
		})
	}
}

func TestHubPerConversationOrdering(t *testing.T) {
	f := newFixture(t, 3, Options{})
	ctx := context.Background()
	conv := f.conversation(t, f.users...)

	clients := make([]*Client, len(f.users))
	for i, id := range f.users {
		clients[i] = f.connect(t, "c"+string(rune('a'+i)), id)
	}

	const perSender = 40
	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			for range perSender {
				f.hub.Handle(ctx, c, &Command{Kind: CommandSendMessage, ConversationID: conv.ID, Content: "m"})
			}
		}(c)
	}
	wg.Wait()

	total := perSender * len(clients)
	stored, err := f.store.ListMessages(ctx, conv.ID, total, 0)
	require.NoError(t, err)
	require.Len(t, stored, total)
	want := make([]int64, 0, total)
	for _, m := range stored {
		want = append(want, m.ID)
	}

	for _, c := range clients {
		got := make([]int64, 0, total)
		for len(got) < total {
			ev := mustEvent(t, c.Events, EventNewMessage)
			got = append(got, ev.Message.ID)
		}
		require.Equal(t, want, got, "client %s observed a different order", c.ID)
	}
}

func TestHubUnreadAccounting(t *testing.T) {
	f := newFixture(t, 2, Options{})
	ctx := context.Background()
	alice, bob := f.users[0], f.users[1]
	conv := f.conversation(t, alice, bob)
	a := f.connect(t, "a", alice)
	b := f.connect(t, "b", bob)

	const k = 3
	for range k {
		f.hub.Handle(ctx, a, &Command{Kind: CommandSendMessage, ConversationID: conv.ID, Content: "ping"})
	}

	f.hub.Handle(ctx, b, &Command{Kind: CommandGetUnreadCounts})
	counts := mustEvent(t, b.Events, EventUnreadCounts)
	require.Len(t, counts.UnreadCounts, 1)
	require.Equal(t, k, counts.UnreadCounts[0].Count)

	f.hub.Handle(ctx, b, &Command{Kind: CommandMarkRead, ConversationID: conv.ID})
	read := mustEvent(t, a.Events, EventMessagesRead)
	require.Equal(t, conv.ID, read.ConversationID)
	require.Equal(t, bob, read.UserID)
	require.Equal(t, k, read.Count)

	f.hub.Handle(ctx, b, &Command{Kind: CommandGetUnreadCounts})
	counts = mustEvent(t, b.Events, EventUnreadCounts)
	require.Equal(t, 0, counts.UnreadCounts[0].Count)

	// Marking again changes nothing but still reports.
	f.hub.Handle(ctx, b, &Command{Kind: CommandMarkRead, ConversationID: conv.ID})
	read = mustEvent(t, a.Events, EventMessagesRead)
	require.Equal(t, 0, read.Count)
}

func TestHubRemoveParticipant(t *testing.T) {
	f := newFixture(t, 3, Options{})
	ctx := context.Background()
	alice, bob, carol := f.users[0], f.users[1], f.users[2]
	conv := f.conversation(t, alice, bob, carol)
	a := f.connect(t, "a", alice)
	b := f.connect(t, "b", bob)
	c := f.connect(t, "c", carol)

	// Carol views the conversation so she sits in its room.
	f.hub.Handle(ctx, c, &Command{Kind: CommandGetMessages, ConversationID: conv.ID})
	mustEvent(t, c.Events, EventMessagesList)

	f.hub.Handle(ctx, a, &Command{Kind: CommandRemoveParticipant, ConversationID: conv.ID, UserID: carol})
	for _, cl := range []*Client{a, b, c} {
		ev := mustEvent(t, cl.Events, EventParticipantRemoved)
		require.Equal(t, carol, ev.UserID)
	}
	require.Empty(t, f.hub.Registry().Rooms(c))

	f.hub.Handle(ctx, a, &Command{Kind: CommandSendMessage, ConversationID: conv.ID, Content: "without carol"})
	mustEvent(t, b.Events, EventNewMessage)
	noEvent(t, c.Events, EventNewMessage)

	f.hub.Handle(ctx, b, &Command{Kind: CommandTyping, ConversationID: conv.ID})
	noEvent(t, c.Events, EventUserTyping)

	f.hub.Handle(ctx, c, &Command{Kind: CommandSendMessage, ConversationID: conv.ID, Content: "let me in"})
	ev := mustEvent(t, c.Events, EventError)
	require.Equal(t, ErrCodeNotParticipant, ev.Error.Code)

	f.hub.Handle(ctx, a, &Command{Kind: CommandRemoveParticipant, ConversationID: conv.ID, UserID: carol})
	ev = mustEvent(t, a.Events, EventError)
	require.Equal(t, ErrCodeNotParticipant, ev.Error.Code)
}

// removingStore removes a participant in the middle of a history read, after
// the reader passed the membership check but before it joins the room.
type removingStore struct {
	Storage
	once   sync.Once
	onList func()
}

func (s *removingStore) ListMessages(ctx context.Context, conversationID int64, limit, offset int) ([]*store.Message, error) {
	s.once.Do(s.onList)
	return s.Storage.ListMessages(ctx, conversationID, limit, offset)
}

func TestHubRemovedDuringReadGetsNoTyping(t *testing.T) {
	f := newFixture(t, 3, Options{})
	ctx := context.Background()
	alice, bob, carol := f.users[0], f.users[1], f.users[2]
	conv := f.conversation(t, alice, bob, carol)

	hooked := &removingStore{Storage: f.store}
	f.hub = NewHub(hooked, fakeVerifier{}, nil, Options{})
	a := f.connect(t, "a", alice)
	b := f.connect(t, "b", bob)
	c := f.connect(t, "c", carol)
	f.hub.Handle(ctx, a, &Command{Kind: CommandTyping, ConversationID: conv.ID})
	hooked.onList = func() {
		f.hub.Handle(ctx, a, &Command{Kind: CommandRemoveParticipant, ConversationID: conv.ID, UserID: carol})
	}

	f.hub.Handle(ctx, c, &Command{Kind: CommandGetMessages, ConversationID: conv.ID})
	mustEvent(t, c.Events, EventParticipantRemoved)

	f.hub.Handle(ctx, b, &Command{Kind: CommandTyping, ConversationID: conv.ID})
	mustEvent(t, a.Events, EventUserTyping)
	noEvent(t, c.Events, EventUserTyping)
	require.Empty(t, f.hub.Registry().Rooms(c))
}

func TestHubAddParticipant(t *testing.T) {
	f := newFixture(t, 3, Options{})
	ctx := context.Background()
	alice, bob, carol := f.users[0], f.users[1], f.users[2]
	conv := f.conversation(t, alice, bob)
	a := f.connect(t, "a", alice)
	c := f.connect(t, "c", carol)

	f.hub.Handle(ctx, c, &Command{Kind: CommandAddParticipant, ConversationID: conv.ID, UserID: carol})
	ev := mustEvent(t, c.Events, EventError)
	require.Equal(t, ErrCodeNotParticipant, ev.Error.Code)

	f.hub.Handle(ctx, a, &Command{Kind: CommandAddParticipant, ConversationID: conv.ID, UserID: 777})
	ev = mustEvent(t, a.Events, EventError)
	require.Equal(t, ErrCodeUserNotFound, ev.Error.Code)

	f.hub.Handle(ctx, a, &Command{Kind: CommandAddParticipant, ConversationID: conv.ID, UserID: carol})
	added := mustEvent(t, c.Events, EventParticipantAdded)
	require.Equal(t, carol, added.UserID)
	require.Equal(t, carol, added.User.ID)
	mustEvent(t, a.Events, EventParticipantAdded)

	// A third member turns the direct conversation into a non-deduplicated one.
	got, err := f.store.FindDirectConversation(ctx, alice, bob)
	require.Error(t, err)
	require.Nil(t, got)
}

func TestHubOfflineRecipientSkipped(t *testing.T) {
	f := newFixture(t, 2, Options{})
	ctx := context.Background()
	alice, bob := f.users[0], f.users[1]
	conv := f.conversation(t, alice, bob)
	a := f.connect(t, "a", alice)

	f.hub.Handle(ctx, a, &Command{Kind: CommandSendMessage, ConversationID: conv.ID, Content: "anyone?"})

	ev := mustEvent(t, a.Events, EventNewMessage)
	require.Equal(t, alice, ev.Message.SenderID)
	noEvent(t, a.Events, EventError)

	msgs, err := f.store.ListMessages(ctx, conv.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestHubSendValidation(t *testing.T) {
	f := newFixture(t, 2, Options{MaxContentLength: 5})
	ctx := context.Background()
	conv := f.conversation(t, f.users[0], f.users[1])
	a := f.connect(t, "a", f.users[0])

	tests := []struct {
		name    string
		convID  int64
		content string
		code    string
	}{
		{name: "blank", convID: conv.ID, content: "  \n\t", code: ErrCodeEmptyContent},
		{name: "too long", convID: conv.ID, content: "abcdef", code: ErrCodeInvalidInput},
		{name: "missing conversation", convID: conv.ID + 100, content: "hi", code: ErrCodeConversationNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.hub.Handle(ctx, a, &Command{Kind: CommandSendMessage, ConversationID: tt.convID, Content: tt.content})
			ev := mustEvent(t, a.Events, EventError)
			require.Equal(t, tt.code, ev.Error.Code)
			require.Equal(t, "send_message", ev.Command)
		})
	}
}

func TestHubTypingGoesToRoomExceptSender(t *testing.T) {
	f := newFixture(t, 3, Options{})
	ctx := context.Background()
	alice, bob, carol := f.users[0], f.users[1], f.users[2]
	conv := f.conversation(t, alice, bob, carol)
	a := f.connect(t, "a", alice)
	b := f.connect(t, "b", bob)
	c := f.connect(t, "c", carol)

	f.hub.Handle(ctx, b, &Command{Kind: CommandGetMessages, ConversationID: conv.ID})
	mustEvent(t, b.Events, EventMessagesList)

	f.hub.Handle(ctx, a, &Command{Kind: CommandTyping, ConversationID: conv.ID})
	ev := mustEvent(t, b.Events, EventUserTyping)
	require.Equal(t, alice, ev.UserID)
	noEvent(t, a.Events, EventUserTyping)
	// Carol never opened the conversation.
	noEvent(t, c.Events, EventUserTyping)
}

func TestHubGetMessagesPaging(t *testing.T) {
	f := newFixture(t, 2, Options{})
	ctx := context.Background()
	conv := f.conversation(t, f.users[0], f.users[1])
	a := f.connect(t, "a", f.users[0])

	for _, text := range []string{"one", "two", "three"} {
		f.hub.Handle(ctx, a, &Command{Kind: CommandSendMessage, ConversationID: conv.ID, Content: text})
	}

	f.hub.Handle(ctx, a, &Command{Kind: CommandGetMessages, ConversationID: conv.ID, Limit: 2})
	page := mustEvent(t, a.Events, EventMessagesList)
	require.Len(t, page.Messages, 2)
	require.Equal(t, "two", page.Messages[0].Content)
	require.Equal(t, "three", page.Messages[1].Content)
	require.Equal(t, f.users[0], page.Messages[0].Sender.ID)

	f.hub.Handle(ctx, a, &Command{Kind: CommandGetMessages, ConversationID: conv.ID, Limit: 2, Offset: 2})
	page = mustEvent(t, a.Events, EventMessagesList)
	require.Len(t, page.Messages, 1)
	require.Equal(t, "one", page.Messages[0].Content)

	f.hub.Handle(ctx, a, &Command{Kind: CommandGetMessages, ConversationID: conv.ID, Limit: -1})
	ev := mustEvent(t, a.Events, EventError)
	require.Equal(t, ErrCodeInvalidInput, ev.Error.Code)
}

func TestHubGetConversationsIncludesLastMessage(t *testing.T) {
	f := newFixture(t, 3, Options{})
	ctx := context.Background()
	alice := f.users[0]
	older := f.conversation(t, alice, f.users[1])
	newer := f.conversation(t, alice, f.users[2])
	a := f.connect(t, "a", alice)

	f.hub.Handle(ctx, a, &Command{Kind: CommandSendMessage, ConversationID: newer.ID, Content: "latest"})
	f.hub.Handle(ctx, a, &Command{Kind: CommandGetConversations})

	ev := mustEvent(t, a.Events, EventConversationsList)
	require.Len(t, ev.Conversations, 2)
	require.Equal(t, newer.ID, ev.Conversations[0].ID)
	require.NotNil(t, ev.Conversations[0].LastMessage)
	require.Equal(t, "latest", ev.Conversations[0].LastMessage.Content)
	require.Equal(t, older.ID, ev.Conversations[1].ID)
	require.Nil(t, ev.Conversations[1].LastMessage)
}

func TestHubLogout(t *testing.T) {
	f := newFixture(t, 1, Options{})
	a := f.connect(t, "a", f.users[0])

	f.hub.Handle(context.Background(), a, &Command{Kind: CommandLogout})

	mustEvent(t, a.Events, EventLogoutSuccess)
	<-a.Done()
	require.Equal(t, StateClosed, a.State())
	require.False(t, f.hub.Registry().Online(f.users[0]))

	// Closed is terminal.
	f.hub.Handle(context.Background(), a, &Command{Kind: CommandAuth, Token: token(f.users[0])})
	require.False(t, f.hub.Registry().Online(f.users[0]))
}

func TestHubDisconnectCleansUp(t *testing.T) {
	f := newFixture(t, 2, Options{})
	ctx := context.Background()
	conv := f.conversation(t, f.users[0], f.users[1])
	a := f.connect(t, "a", f.users[0])

	f.hub.Handle(ctx, a, &Command{Kind: CommandGetMessages, ConversationID: conv.ID})
	mustEvent(t, a.Events, EventMessagesList)
	require.Len(t, f.hub.Registry().RoomClients(conv.ID), 1)

	f.hub.Disconnect(a)
	f.hub.Disconnect(a)

	require.False(t, f.hub.Registry().Online(f.users[0]))
	require.Empty(t, f.hub.Registry().RoomClients(conv.ID))
	require.Empty(t, f.hub.Registry().Clients())
}

func TestHubShutdownClosesClients(t *testing.T) {
	f := newFixture(t, 2, Options{})
	a := f.connect(t, "a", f.users[0])
	anon := NewClient("anon", 1)
	f.hub.Connect(anon)

	f.hub.Shutdown()

	<-a.Done()
	<-anon.Done()
	require.Zero(t, f.hub.Registry().OnlineCount())
}

func TestDirectoryUpdateLastMessage(t *testing.T) {
	f := newFixture(t, 3, Options{})
	ctx := context.Background()
	alice, bob, carol := f.users[0], f.users[1], f.users[2]
	conv := f.conversation(t, alice, bob)
	other := f.conversation(t, alice, carol)

	first := &store.Message{ConversationID: conv.ID, SenderID: alice, Content: "first"}
	_, err := f.store.CreateMessage(ctx, first)
	require.NoError(t, err)
	second := &store.Message{ConversationID: conv.ID, SenderID: bob, Content: "second"}
	_, err = f.store.CreateMessage(ctx, second)
	require.NoError(t, err)
	foreign := &store.Message{ConversationID: other.ID, SenderID: carol, Content: "elsewhere"}
	_, err = f.store.CreateMessage(ctx, foreign)
	require.NoError(t, err)

	dir := f.hub.Directory()
	require.NoError(t, dir.UpdateLastMessage(ctx, conv.ID, first.ID))
	got, err := dir.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessageID)
	require.Equal(t, first.ID, *got.LastMessageID)

	require.ErrorIs(t, dir.UpdateLastMessage(ctx, conv.ID, foreign.ID), ErrInvalidInput)
	require.ErrorIs(t, dir.UpdateLastMessage(ctx, 9999, first.ID), ErrInvalidInput)
}
