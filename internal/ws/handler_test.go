package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/wordhex-backend/internal/auth"
	"github.com/DoyleJ11/wordhex-backend/internal/hub"
	"github.com/DoyleJ11/wordhex-backend/internal/types"
)

func newServer(t *testing.T, iss *auth.Issuer) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := hub.NewHub(ctx, hub.Config{})
	srv := httptest.NewServer(Handler(h, Options{Issuer: iss}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?" + query
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.CloseNow() })
	return c
}

func write(t *testing.T, c *websocket.Conn, msg types.ClientMessage) {
	t.Helper()
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, b))
}

// readType reads frames until one of type typ arrives.
func readType(t *testing.T, c *websocket.Conn, typ types.MsgType) types.ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		_, data, err := c.Read(ctx)
		require.NoError(t, err, "waiting for %s", typ)
		var msg types.ServerMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg.Type == typ {
			return msg
		}
	}
}

func TestHandler_LobbyToFirstTurn(t *testing.T) {
	srv := newServer(t, nil)
	a := dial(t, srv, "")
	b := dial(t, srv, "")

	write(t, a, types.ClientMessage{Type: types.MsgJoin, PlayerID: "alice"})
	assert.Equal(t, "alice", readType(t, a, types.MsgWelcome).PlayerID)

	write(t, a, types.ClientMessage{Type: types.MsgCreate})
	created := readType(t, a, types.MsgCreated)
	require.Len(t, created.Code, hub.CodeLength)

	write(t, b, types.ClientMessage{Type: types.MsgJoin, PlayerID: "bob"})
	write(t, b, types.ClientMessage{Type: types.MsgJoinLobby, Code: strings.ToLower(created.Code)})
	joined := readType(t, b, types.MsgJoined)
	assert.Equal(t, created.Code, joined.Code)

	write(t, a, types.ClientMessage{Type: types.MsgReady, Ready: true})
	write(t, a, types.ClientMessage{Type: types.MsgStart})

	board := readType(t, b, types.MsgBoard)
	assert.Len(t, board.Board, 5)
	assert.Equal(t, "alice", readType(t, b, types.MsgTurn).PlayerID)

	// bob is not the turn holder
	write(t, b, types.ClientMessage{Type: types.MsgEndTurn})
	e := readType(t, b, types.MsgError)
	assert.Equal(t, "out_of_turn", e.Error.Code)
}

func TestHandler_ErrorsBeforeJoiningALobby(t *testing.T) {
	srv := newServer(t, nil)
	c := dial(t, srv, "playerId=solo")

	write(t, c, types.ClientMessage{Type: types.MsgReady, Ready: true})
	assert.Equal(t, "not_member", readType(t, c, types.MsgError).Error.Code)

	write(t, c, types.ClientMessage{Type: types.MsgJoinLobby, Code: "NOPE00"})
	assert.Equal(t, "solo", readType(t, c, types.MsgWelcome).PlayerID)
	assert.Equal(t, "lobby_not_found", readType(t, c, types.MsgError).Error.Code)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte("{not json")))
	assert.Equal(t, "malformed", readType(t, c, types.MsgError).Error.Code)
}

func TestHandler_TokenRequiredWhenSecretSet(t *testing.T) {
	iss := auth.NewIssuer("s3cret", time.Hour)
	srv := newServer(t, iss)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/?token=bogus", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	tok, err := iss.Issue("p-42", "Ann")
	require.NoError(t, err)
	c := dial(t, srv, "token="+tok)

	// the token decides the identity, not the message
	write(t, c, types.ClientMessage{Type: types.MsgJoin, PlayerID: "spoofed"})
	assert.Equal(t, "p-42", readType(t, c, types.MsgWelcome).PlayerID)
}

func TestHandler_DevModeTakesPlayerIDFromCreateAndJoinLobby(t *testing.T) {
	srv := newServer(t, nil)
	host := dial(t, srv, "")
	guest := dial(t, srv, "")

	write(t, host, types.ClientMessage{Type: types.MsgCreate, PlayerID: "dave"})
	assert.Equal(t, "dave", readType(t, host, types.MsgWelcome).PlayerID)
	created := readType(t, host, types.MsgCreated)
	require.NotNil(t, created.Players[0])
	assert.Equal(t, "dave", created.Players[0].ID)

	write(t, guest, types.ClientMessage{Type: types.MsgJoinLobby, PlayerID: "carol", Code: created.Code})
	assert.Equal(t, "carol", readType(t, guest, types.MsgWelcome).PlayerID)
	joined := readType(t, guest, types.MsgJoined)
	require.NotNil(t, joined.Players[1])
	assert.Equal(t, "carol", joined.Players[1].ID)
}
