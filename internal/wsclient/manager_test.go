package wsclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/wordhex-backend/internal/auth"
	"github.com/DoyleJ11/wordhex-backend/internal/grid"
	"github.com/DoyleJ11/wordhex-backend/internal/types"
)

type echoOptions struct {
	// kickFirst closes the first connection right after accepting it.
	kickFirst bool
	// readDelay stalls the server before its first read.
	readDelay time.Duration
}

// echoServer answers JOIN with WELCOME and records everything else it reads.
type echoServer struct {
	*httptest.Server
	dials    atomic.Int32
	tokens   chan string
	received chan types.ClientMessage
}

func newEchoServer(t *testing.T, opts echoOptions) *echoServer {
	t.Helper()
	es := &echoServer{
		tokens:   make(chan string, 16),
		received: make(chan types.ClientMessage, 64),
	}
	es.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := es.dials.Add(1)
		es.tokens <- r.URL.Query().Get("token")
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		c.SetReadLimit(1 << 26)
		if opts.kickFirst && n == 1 {
			c.Close(websocket.StatusGoingAway, "restart")
			return
		}
		time.Sleep(opts.readDelay)
		for {
			_, data, err := c.Read(r.Context())
			if err != nil {
				return
			}
			var cm types.ClientMessage
			if json.Unmarshal(data, &cm) != nil {
				continue
			}
			if cm.Type == types.MsgJoin {
				b, _ := json.Marshal(types.ServerMessage{Type: types.MsgWelcome, PlayerID: cm.PlayerID})
				_ = c.Write(r.Context(), websocket.MessageText, b)
				continue
			}
			es.received <- cm
		}
	}))
	t.Cleanup(es.Close)
	return es
}

func (es *echoServer) wsURL() string { return "ws" + strings.TrimPrefix(es.URL, "http") }

func newManager(t *testing.T, url string, tokens auth.TokenSource, maxAttempts int) *Manager {
	t.Helper()
	return newManagerWith(t, Options{
		URL:         url,
		Tokens:      tokens,
		MaxAttempts: maxAttempts,
	})
}

func newManagerWith(t *testing.T, opts Options) *Manager {
	t.Helper()
	opts.BaseDelay = 10 * time.Millisecond
	opts.MaxDelay = 50 * time.Millisecond
	opts.RetryInterval = 10 * time.Millisecond
	m := New(opts)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// statusLog records status changes delivered by the manager.
type statusLog struct {
	mu   sync.Mutex
	seen []Status
}

func (l *statusLog) add(s Status) {
	l.mu.Lock()
	l.seen = append(l.seen, s)
	l.mu.Unlock()
}

func (l *statusLog) has(s Status) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, x := range l.seen {
		if x == s {
			return true
		}
	}
	return false
}

func recvClient(t *testing.T, ch <-chan types.ClientMessage) types.ClientMessage {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("server received nothing")
		return types.ClientMessage{}
	}
}

func TestManager_SendAndSubscribe(t *testing.T) {
	es := newEchoServer(t, echoOptions{})
	m := newManager(t, es.wsURL(), auth.NewStaticToken("tok-1"), 0)

	got := make(chan types.ServerMessage, 4)
	dispose := m.Subscribe(func(msg types.ServerMessage) { got <- msg })
	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, "tok-1", <-es.tokens)

	require.Eventually(t, func() bool { return m.Status() == StatusConnected }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, m.Send(types.ClientMessage{Type: types.MsgJoin, PlayerID: "p1"}))

	select {
	case msg := <-got:
		assert.Equal(t, types.MsgWelcome, msg.Type)
		assert.Equal(t, "p1", msg.PlayerID)
	case <-time.After(2 * time.Second):
		t.Fatal("no WELCOME delivered")
	}

	dispose()
	require.NoError(t, m.Send(types.ClientMessage{Type: types.MsgJoin, PlayerID: "p1"}))
	select {
	case msg := <-got:
		t.Fatalf("disposed handler still called with %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestManager_WaitsForToken(t *testing.T) {
	es := newEchoServer(t, echoOptions{})
	tokens := auth.NewStaticToken("")
	m := newManager(t, es.wsURL(), tokens, 0)
	require.NoError(t, m.Connect(context.Background()))

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, es.dials.Load(), "no dial without an identity")

	tokens.Set("late")
	assert.Equal(t, "late", <-es.tokens)
}

func TestManager_QueuesWhileOfflineAndSupersedes(t *testing.T) {
	es := newEchoServer(t, echoOptions{})
	tokens := auth.NewStaticToken("")
	m := newManager(t, es.wsURL(), tokens, 0)
	require.NoError(t, m.Connect(context.Background()))

	require.NoError(t, m.Send(types.ClientMessage{Type: types.MsgReady, Ready: false}))
	require.NoError(t, m.Send(types.ClientMessage{Type: types.MsgPath}))
	require.NoError(t, m.Send(types.ClientMessage{Type: types.MsgReady, Ready: true}))

	tokens.Set("now")

	first := recvClient(t, es.received)
	second := recvClient(t, es.received)
	assert.Equal(t, types.MsgPath, first.Type)
	assert.Equal(t, types.MsgReady, second.Type)
	assert.True(t, second.Ready, "newer READY replaced the older one")
	select {
	case extra := <-es.received:
		t.Fatalf("superseded message was sent: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestManager_WriteInFlightKeepsNewerQueuedMessage(t *testing.T) {
	es := newEchoServer(t, echoOptions{readDelay: 300 * time.Millisecond})
	m := newManager(t, es.wsURL(), auth.NewStaticToken("tok"), 0)
	require.NoError(t, m.Connect(context.Background()))
	require.Eventually(t, func() bool { return m.Status() == StatusConnected }, 2*time.Second, 5*time.Millisecond)

	// big enough that the write blocks until the server starts reading
	long := make(grid.Path, 1_000_000)
	m.enqueue(types.ClientMessage{Type: types.MsgSubmit, Word: "OLD", Path: long})
	go m.flush()
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, m.Send(types.ClientMessage{Type: types.MsgSubmit, Word: "NEW"}))

	var words []string
	for len(words) < 2 {
		words = append(words, recvClient(t, es.received).Word)
	}
	assert.Equal(t, []string{"OLD", "NEW"}, words)
	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Empty(t, m.pending)
}

func TestManager_HandshakeGoesBeforeQueuedSends(t *testing.T) {
	es := newEchoServer(t, echoOptions{})
	tokens := auth.NewStaticToken("")
	m := newManagerWith(t, Options{
		URL:    es.wsURL(),
		Tokens: tokens,
		Handshake: func() []types.ClientMessage {
			return []types.ClientMessage{
				{Type: types.MsgJoin, PlayerID: "p1"},
				{Type: types.MsgJoinLobby, Code: "ABC123"},
			}
		},
	})
	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Send(types.ClientMessage{Type: types.MsgReady, Ready: true}))

	tokens.Set("tok")

	first := recvClient(t, es.received)
	assert.Equal(t, types.MsgJoinLobby, first.Type)
	assert.Equal(t, "ABC123", first.Code)
	second := recvClient(t, es.received)
	assert.Equal(t, types.MsgReady, second.Type, "queued send waits for the lobby to be re-joined")
}

func TestManager_ReconnectsAfterServerClose(t *testing.T) {
	es := newEchoServer(t, echoOptions{kickFirst: true})
	var handshakes atomic.Int32
	m := newManagerWith(t, Options{
		URL:    es.wsURL(),
		Tokens: auth.NewStaticToken("tok"),
		Handshake: func() []types.ClientMessage {
			handshakes.Add(1)
			return []types.ClientMessage{{Type: types.MsgJoin, PlayerID: "p1"}}
		},
	})
	log := &statusLog{}
	m.OnStatus(log.add)
	require.NoError(t, m.Connect(context.Background()))

	require.Eventually(t, func() bool { return es.dials.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return log.has(StatusReconnecting) && m.Status() == StatusConnected },
		2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, handshakes.Load(), int32(2), "every connection runs the handshake")

	require.NoError(t, m.Send(types.ClientMessage{Type: types.MsgReady, Ready: true}))
	assert.Equal(t, types.MsgReady, recvClient(t, es.received).Type)
}

func TestManager_FailsAfterMaxAttempts(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(dead.URL, "http")
	dead.Close()

	m := newManager(t, url, auth.NewStaticToken("tok"), 3)
	log := &statusLog{}
	m.OnStatus(log.add)
	require.NoError(t, m.Connect(context.Background()))

	require.Eventually(t, func() bool { return log.has(StatusFailed) }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, log.has(StatusReconnecting))
}

func TestManager_CloseIsFinal(t *testing.T) {
	m := newManager(t, "ws://127.0.0.1:1", auth.NewStaticToken(""), 0)
	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	assert.ErrorIs(t, m.Send(types.ClientMessage{Type: types.MsgReady}), ErrClosed)
	assert.ErrorIs(t, m.Connect(context.Background()), ErrClosed)
	assert.Equal(t, StatusClosed, m.Status())
}

func TestBackoff(t *testing.T) {
	base, max := 100*time.Millisecond, time.Second
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{30, time.Second},
	}
	for _, tc := range cases {
		got := backoff(tc.attempt, base, max)
		assert.GreaterOrEqual(t, got, tc.want)
		assert.LessOrEqual(t, got, tc.want+tc.want/5, "attempt %d", tc.attempt)
	}
}
