package chatclient

import (
	"context"
	"errors"
	"net"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adi-253/skillswap/internal/handlers"
	"github.com/adi-253/skillswap/internal/models"
	"github.com/adi-253/skillswap/internal/services"
	"github.com/adi-253/skillswap/internal/store"
	realtime "github.com/adi-253/skillswap/internal/websocket"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

type failingAppend struct {
	*store.Memory
}

func (failingAppend) Append(context.Context, models.Message) error {
	return errors.New("disk full")
}

type testServer struct {
	mem       *store.Memory
	hub       *realtime.Hub
	http      *httptest.Server
	swapID    string
	requester string
	target    string
	outsider  string
}

func newTestServer(t *testing.T, failWrites bool) *testServer {
	t.Helper()
	s := &testServer{
		mem:       store.NewMemory(),
		swapID:    uuid.NewString(),
		requester: uuid.NewString(),
		target:    uuid.NewString(),
		outsider:  uuid.NewString(),
	}
	s.mem.PutUser(models.User{ID: s.requester, Name: "Rosa"})
	s.mem.PutUser(models.User{ID: s.target, Name: "Tariq"})
	s.mem.PutSwap(models.SwapRequest{ID: s.swapID, RequesterID: s.requester, TargetUserID: s.target, Status: models.SwapStatusAccepted})

	var messages store.MessageStore = s.mem
	if failWrites {
		messages = failingAppend{s.mem}
	}
	chat := services.NewChatService(messages, s.mem, s.mem, 1000, nil)
	s.hub = realtime.NewHub(chat, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go s.hub.Run(ctx)

	r := chi.NewRouter()
	r.Get("/chathub", realtime.NewHandler(s.hub).ServeWS)
	r.Route("/api/chat", handlers.NewChatHandler(chat, nil).Routes)
	s.http = httptest.NewServer(r)
	t.Cleanup(func() {
		s.http.Close()
		cancel()
	})
	return s
}

// dropper records the client side of every dialed connection so tests can cut them.
type dropper struct {
	mu    sync.Mutex
	conns []net.Conn
}

func (d *dropper) dialer() *websocket.Dialer {
	return &websocket.Dialer{
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := (&net.Dialer{}).DialContext(ctx, network, addr)
			if err == nil {
				d.mu.Lock()
				d.conns = append(d.conns, conn)
				d.mu.Unlock()
			}
			return conn, err
		},
	}
}

func (d *dropper) dropAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, conn := range d.conns {
		conn.Close()
	}
	d.conns = nil
}

func (s *testServer) connect(t *testing.T, userID string, opts ...Option) *Connection {
	t.Helper()
	conn, err := NewConnection(s.http.URL, userID, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (s *testServer) mount(t *testing.T, userID string, opts ...Option) (*Controller, *Connection) {
	t.Helper()
	conn := s.connect(t, userID, opts...)
	ctrl := NewController(conn, NewAPI(s.http.URL), s.swapID, userID, nil)
	require.NoError(t, ctrl.Mount(context.Background()))
	return ctrl, conn
}

func TestHubEndpoint(t *testing.T) {
	tests := []struct {
		serverURL string
		userID    string
		want      string
		wantErr   bool
	}{
		{"http://localhost:8080", "u1", "ws://localhost:8080/chathub?userId=u1", false},
		{"https://chat.example.com/", "", "wss://chat.example.com/chathub", false},
		{"ws://10.0.0.2:9000/base", "", "ws://10.0.0.2:9000/base/chathub", false},
		{"ftp://example.com", "", "", true},
	}
	for _, tt := range tests {
		got, err := hubEndpoint(tt.serverURL, tt.userID)
		if tt.wantErr {
			assert.Error(t, err, tt.serverURL)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestOperationsBeforeConnect(t *testing.T) {
	conn, err := NewConnection("http://127.0.0.1:1", "")
	require.NoError(t, err)

	ctx := context.Background()
	assert.ErrorIs(t, conn.Join(ctx, "c", "u"), ErrNotConnected)
	assert.ErrorIs(t, conn.Leave(ctx, "c"), ErrNotConnected)
	assert.ErrorIs(t, conn.Send(ctx, "c", "u", "hi"), ErrNotConnected)
	assert.ErrorIs(t, conn.MarkRead(ctx, "m"), ErrNotConnected)
	assert.Equal(t, StateDisconnected, conn.State())
}

func TestConnectIsLazyAndIdempotent(t *testing.T) {
	s := newTestServer(t, false)
	conn := s.connect(t, s.requester)
	assert.Equal(t, StateDisconnected, conn.State())

	require.NoError(t, conn.Connect(context.Background()))
	require.NoError(t, conn.Connect(context.Background()))
	assert.Equal(t, StateConnected, conn.State())
	assert.Eventually(t, func() bool { return s.hub.ConnectionCount() == 1 }, waitFor, tick)

	require.NoError(t, conn.Close())
	assert.ErrorIs(t, conn.Connect(context.Background()), ErrClosed)
}

func TestSendReconcilesWithEcho(t *testing.T) {
	s := newTestServer(t, false)
	rosa, _ := s.mount(t, s.requester)
	tariq, _ := s.mount(t, s.target)

	require.NoError(t, rosa.Send(context.Background(), "  Hello "))

	entries := rosa.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, Confirmed, entries[0].State)
	assert.Equal(t, "Hello", entries[0].Message.Content)
	assert.Equal(t, "Rosa", entries[0].Message.SenderName)
	assert.NotContains(t, entries[0].Message.ID, tempIDPrefix)
	assert.Empty(t, rosa.Draft())

	require.Eventually(t, func() bool { return len(tariq.Entries()) == 1 }, waitFor, tick)
	assert.Equal(t, entries[0].Message.ID, tariq.Entries()[0].Message.ID)

	// the open chat marks incoming messages read
	assert.Eventually(t, func() bool {
		stored, _ := s.mem.ListByConversation(context.Background(), s.swapID)
		return len(stored) == 1 && stored[0].IsRead
	}, waitFor, tick)
	assert.Eventually(t, func() bool { return tariq.Entries()[0].Message.IsRead }, waitFor, tick)
}

func TestSendFailureRollsBack(t *testing.T) {
	s := newTestServer(t, true)
	rosa, _ := s.mount(t, s.requester)

	err := rosa.Send(context.Background(), "Hello")
	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, "Failed to send message", serverErr.Message)

	assert.Empty(t, rosa.Entries())
	assert.Equal(t, "Hello", rosa.Draft())
	assert.Equal(t, "Failed to send message", rosa.Err())
}

func TestSendRejectsEmptyInput(t *testing.T) {
	s := newTestServer(t, false)
	rosa, _ := s.mount(t, s.requester)

	assert.ErrorIs(t, rosa.Send(context.Background(), "  \n "), ErrEmptyMessage)
	assert.Empty(t, rosa.Entries())
}

func TestMountLoadsHistoryAndMarksRead(t *testing.T) {
	s := newTestServer(t, false)
	ctx := context.Background()
	for _, content := range []string{"first", "second"} {
		require.NoError(t, s.mem.Append(ctx, models.Message{
			ID: uuid.NewString(), ConversationID: s.swapID, SenderID: s.target, Content: content, SentAt: time.Now().UTC(),
		}))
	}

	rosa, _ := s.mount(t, s.requester)
	entries := rosa.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].Message.Content)
	assert.Equal(t, "Tariq", entries[1].Message.SenderName)
	assert.True(t, entries[0].Message.IsRead)

	unread, err := s.mem.HasUnread(ctx, s.swapID, s.requester)
	require.NoError(t, err)
	assert.False(t, unread)
}

func TestMountUnauthorized(t *testing.T) {
	s := newTestServer(t, false)
	conn := s.connect(t, s.outsider)
	ctrl := NewController(conn, NewAPI(s.http.URL), s.swapID, s.outsider, nil)

	err := ctrl.Mount(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.Status)
	assert.Equal(t, services.MsgNotAuthorized, ctrl.Err())
	assert.Equal(t, 0, s.hub.MemberCount(s.swapID))
}

func TestUnmountLeavesAndIgnoresLateMessages(t *testing.T) {
	s := newTestServer(t, false)
	rosa, _ := s.mount(t, s.requester)
	tariq, _ := s.mount(t, s.target)
	require.Equal(t, 2, s.hub.MemberCount(s.swapID))

	require.NoError(t, tariq.Unmount(context.Background()))
	require.NoError(t, tariq.Unmount(context.Background()))
	assert.Equal(t, 1, s.hub.MemberCount(s.swapID))

	require.NoError(t, rosa.Send(context.Background(), "anyone?"))
	tariq.handleMessage(rosa.Entries()[0].Message)
	assert.Empty(t, tariq.Entries())
	assert.ErrorIs(t, tariq.Send(context.Background(), "late"), ErrNotMounted)
}

func TestMultipleSubscribersSeeEveryMessage(t *testing.T) {
	s := newTestServer(t, false)
	rosa, _ := s.mount(t, s.requester)
	tariq, tariqConn := s.mount(t, s.target)

	var mu sync.Mutex
	var seen []string
	unsubscribe := tariqConn.OnMessage(func(msg models.MessagePayload) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, msg.Content)
	})

	require.NoError(t, rosa.Send(context.Background(), "one"))
	require.Eventually(t, func() bool { return len(tariq.Entries()) == 1 }, waitFor, tick)
	unsubscribe()
	require.NoError(t, rosa.Send(context.Background(), "two"))
	require.Eventually(t, func() bool { return len(tariq.Entries()) == 2 }, waitFor, tick)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"one"}, seen)
}

// joinRecorder reports every successful join.
type joinRecorder struct {
	*Connection
	joined chan string
}

func (j joinRecorder) Join(ctx context.Context, conversationID, userID string) error {
	err := j.Connection.Join(ctx, conversationID, userID)
	if err == nil {
		j.joined <- conversationID
	}
	return err
}

func TestReconnectRejoinsConversation(t *testing.T) {
	s := newTestServer(t, false)
	d := &dropper{}
	rosa, _ := s.mount(t, s.requester)

	conn := s.connect(t, s.target, WithDialer(d.dialer()), WithReconnectDelays(0, 10*time.Millisecond))
	recorder := joinRecorder{Connection: conn, joined: make(chan string, 4)}
	tariq := NewController(recorder, NewAPI(s.http.URL), s.swapID, s.target, nil)
	require.NoError(t, tariq.Mount(context.Background()))
	require.Equal(t, s.swapID, <-recorder.joined)

	states := make(chan State, 8)
	conn.OnStateChange(func(state State) { states <- state })

	d.dropAll()
	assert.Equal(t, StateReconnecting, <-states)
	assert.Equal(t, StateConnected, <-states)

	select {
	case conversationID := <-recorder.joined:
		assert.Equal(t, s.swapID, conversationID)
	case <-time.After(waitFor):
		t.Fatal("conversation was not rejoined")
	}

	require.NoError(t, rosa.Send(context.Background(), "welcome back"))
	assert.Eventually(t, func() bool { return len(tariq.Entries()) == 1 }, waitFor, tick)
}

func TestReconnectGivesUp(t *testing.T) {
	s := newTestServer(t, false)
	d := &dropper{}
	conn := s.connect(t, s.target, WithDialer(d.dialer()), WithReconnectDelays(0, 5*time.Millisecond))
	require.NoError(t, conn.Connect(context.Background()))

	states := make(chan State, 8)
	conn.OnStateChange(func(state State) { states <- state })

	s.http.Listener.Close()
	d.dropAll()

	assert.Equal(t, StateReconnecting, <-states)
	assert.Equal(t, StateOffline, <-states)
	assert.ErrorIs(t, conn.Join(context.Background(), s.swapID, s.target), ErrNotConnected)
}

func TestConnectDuringReconnectEndsConnected(t *testing.T) {
	s := newTestServer(t, false)
	d := &dropper{}
	conn := s.connect(t, s.target, WithDialer(d.dialer()), WithReconnectDelays(300*time.Millisecond))
	require.NoError(t, conn.Connect(context.Background()))

	states := make(chan State, 8)
	conn.OnStateChange(func(state State) { states <- state })

	d.dropAll()
	assert.Equal(t, StateReconnecting, <-states)
	assert.Equal(t, StateReconnecting, conn.State())

	require.NoError(t, conn.Connect(context.Background()))
	assert.Equal(t, StateConnecting, <-states)
	assert.Equal(t, StateConnected, <-states)

	// the pending attempt finds the connection open and repeats the state
	select {
	case state := <-states:
		assert.Equal(t, StateConnected, state)
	case <-time.After(waitFor):
		t.Fatal("reconnect loop did not report the open connection")
	}
	assert.Equal(t, StateConnected, conn.State())
}

func TestErrorEventsReachSubscribers(t *testing.T) {
	s := newTestServer(t, false)
	conn := s.connect(t, s.outsider)
	require.NoError(t, conn.Connect(context.Background()))

	events := make(chan string, 1)
	conn.OnError(func(message string) { events <- message })

	err := conn.Join(context.Background(), s.swapID, s.outsider)
	require.Error(t, err)
	assert.Equal(t, services.MsgNotAuthorized, err.Error())
	assert.Equal(t, services.MsgNotAuthorized, <-events)
}
