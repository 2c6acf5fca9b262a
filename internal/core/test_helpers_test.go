package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vseti/vseti-chat/internal/store"
	"github.com/vseti/vseti-chat/internal/store/sqlite"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// noEvent fails if an event of kind is already queued on ch.
func noEvent(t *testing.T, ch <-chan *Event, kind EventKind) {
	t.Helper()
	for {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event kind %v: %+v", kind, ev)
			}
		default:
			return
		}
	}
}

// fakeVerifier accepts tokens of the form "token-<id>".
type fakeVerifier struct{}

func (fakeVerifier) Verify(_ context.Context, token string) (Identity, error) {
	var id int64
	if _, err := fmt.Sscanf(token, "token-%d", &id); err != nil || id <= 0 {
		return Identity{}, ErrAuthenticationFailed
	}
	return Identity{UserID: id}, nil
}

func token(id int64) string {
	return fmt.Sprintf("token-%d", id)
}

type fixture struct {
	hub   *Hub
	store *sqlite.SQLiteStore
	users []int64
}

func newFixture(t *testing.T, users int, opts Options) *fixture {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	ids := make([]int64, 0, users)
	for i := range users {
		u, err := st.CreateUser(context.Background(), store.NewUser{
			Email:        fmt.Sprintf("user%d@example.com", i),
			PasswordHash: "hash",
			FirstName:    fmt.Sprintf("User%d", i),
		})
		require.NoError(t, err)
		ids = append(ids, u.ID)
	}

	return &fixture{
		hub:   NewHub(st, fakeVerifier{}, nil, opts),
		store: st,
		users: ids,
	}
}

// connect attaches a client and authenticates it as userID.
func (f *fixture) connect(t *testing.T, id string, userID int64) *Client {
	t.Helper()

	c := NewClient(id, 512)
	f.hub.Connect(c)
	f.hub.Handle(context.Background(), c, &Command{Kind: CommandAuth, Token: token(userID)})
	ev := mustEvent(t, c.Events, EventAuthSuccess)
	require.Equal(t, userID, ev.User.ID)
	return c
}

func (f *fixture) conversation(t *testing.T, participants ...int64) *store.Conversation {
	t.Helper()

	conv, err := f.store.CreateConversation(context.Background(), "", len(participants) > 2, participants)
	require.NoError(t, err)
	return conv
}
