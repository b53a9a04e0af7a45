package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/wordhex-backend/internal/auth"
	"github.com/DoyleJ11/wordhex-backend/internal/hub"
	"github.com/DoyleJ11/wordhex-backend/internal/lobby"
	"github.com/DoyleJ11/wordhex-backend/internal/types"
)

const (
	writeTimeout = 3 * time.Second
	pingInterval = 20 * time.Second
	pingTimeout  = 10 * time.Second
	outboxSize   = 32
)

type Options struct {
	Issuer *auth.Issuer // nil or without a secret: playerId is taken from the client
	Logger *zap.Logger
	// OriginPatterns loosens the same-origin check, e.g. "localhost:*" in dev.
	OriginPatterns []string
}

func Handler(h *hub.Hub, opts Options) http.HandlerFunc {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("ws")

	return func(w http.ResponseWriter, r *http.Request) {
		var playerID, name string
		if opts.Issuer.Enabled() {
			claims, err := opts.Issuer.Verify(r.URL.Query().Get("token"))
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			playerID, name = claims.Subject, claims.Name
		} else {
			// dev mode: a guest session's token is its player id
			playerID = r.URL.Query().Get("playerId")
			if playerID == "" {
				playerID = r.URL.Query().Get("token")
			}
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: opts.OriginPatterns})
		if err != nil {
			log.Debug("accept", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		s := &session{
			hub:      h,
			conn:     conn,
			log:      log,
			ctx:      ctx,
			cancel:   cancel,
			playerID: playerID,
			name:     name,
			verified: opts.Issuer.Enabled(),
			direct:   make(chan types.ServerMessage, outboxSize),
		}
		defer s.detach(true)

		go s.writer()
		go s.keepalive()
		s.readLoop()
	}
}

// session is one websocket connection. The reader goroutine owns it; the
// lobby attachment is also read by the outbox forwarder, hence mu.
type session struct {
	hub    *hub.Hub
	conn   *websocket.Conn
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc

	playerID string
	name     string
	verified bool

	direct chan types.ServerMessage

	mu     sync.Mutex
	lobby  *lobby.Lobby
	outbox chan types.ServerMessage
}

// Writer goroutine
func (s *session) writer() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.direct:
			payload, err := json.Marshal(msg)
			if err != nil {
				s.log.Error("encode", zap.Error(err))
				continue
			}
			ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
			err = s.conn.Write(ctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				s.cancel()
				return
			}
		}
	}
}

func (s *session) keepalive() {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(s.ctx, pingTimeout)
			err := s.conn.Ping(ctx)
			cancel()
			if err != nil {
				s.cancel()
				return
			}
		}
	}
}

// Reader loop
func (s *session) readLoop() {
	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			// Treat clean close/going-away as normal:
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if !errors.Is(err, context.Canceled) {
					s.log.Debug("read", zap.String("player", s.playerID), zap.Error(err))
				}
			}
			return
		}

		var cm types.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			s.send(types.Error("malformed", types.KindProtocol, "bad json"))
			continue
		}
		s.handle(cm)
	}
}

func (s *session) handle(cm types.ClientMessage) {
	switch cm.Type {
	case types.MsgJoin:
		s.adopt(cm)
		s.identify()

	case types.MsgCreate:
		s.adopt(cm)
		s.identify()
		lb, err := s.hub.Create(s.ctx)
		if err != nil {
			s.log.Warn("create lobby", zap.Error(err))
			s.send(types.Error("unavailable", types.KindTransient, "could not create a lobby"))
			return
		}
		s.enter(lb, true)

	case types.MsgJoinLobby:
		s.adopt(cm)
		s.identify()
		lb, err := s.hub.Get(s.ctx, cm.Code)
		if err != nil || lb == nil {
			s.send(lobby.ErrorMessage(lobby.ErrLobbyNotFound))
			return
		}
		s.enter(lb, false)

	case types.MsgLeave:
		lb, _ := s.current()
		s.detach(false)
		if lb != nil {
			lb.Send(lobby.FromClient{PlayerID: s.playerID, Msg: cm})
		}

	default:
		lb, _ := s.current()
		if lb == nil {
			s.send(lobby.ErrorMessage(lobby.ErrNotMember))
			return
		}
		if !lb.Send(lobby.FromClient{PlayerID: s.playerID, Msg: cm}) {
			s.detach(false)
			s.send(lobby.ErrorMessage(lobby.ErrLobbyNotFound))
		}
	}
}

// adopt takes the identity a frame carries. Only unverified connections may
// name their own player id; switching ids leaves the current lobby first.
func (s *session) adopt(cm types.ClientMessage) {
	if cm.Name != "" {
		s.name = cm.Name
	}
	if s.verified || cm.PlayerID == "" || cm.PlayerID == s.playerID {
		return
	}
	s.detach(true)
	s.playerID = cm.PlayerID
}

// identify makes sure the connection has a player id and tells the client.
func (s *session) identify() {
	if s.playerID == "" {
		s.playerID = uuid.NewString()
	}
	s.send(types.ServerMessage{Type: types.MsgWelcome, PlayerID: s.playerID})
}

// enter joins lb, leaving any lobby this connection was in.
func (s *session) enter(lb *lobby.Lobby, create bool) {
	if cur, _ := s.current(); cur == lb && !create {
		return
	}
	s.detach(true)

	out := make(chan types.ServerMessage, outboxSize)
	reply := make(chan error, 1)
	if !lb.Send(lobby.Join{PlayerID: s.playerID, Name: s.name, Outbox: out, Create: create, Reply: reply}) {
		s.send(lobby.ErrorMessage(lobby.ErrLobbyNotFound))
		return
	}
	var err error
	select {
	case err = <-reply:
	case <-lb.Done():
		err = lobby.ErrLobbyNotFound
	case <-s.ctx.Done():
		return
	}
	if err != nil {
		s.send(lobby.ErrorMessage(err))
		return
	}

	s.mu.Lock()
	s.lobby, s.outbox = lb, out
	s.mu.Unlock()
	go s.forward(out)
}

// forward copies lobby traffic to the writer. When the lobby closes the
// outbox on its own (dropped, replaced by a newer connection, shut down) the
// connection is closed so the client reconnects for a fresh snapshot.
func (s *session) forward(out chan types.ServerMessage) {
	for msg := range out {
		select {
		case s.direct <- msg:
		case <-s.ctx.Done():
			return
		}
	}
	s.mu.Lock()
	current := s.outbox == out
	if current {
		s.lobby, s.outbox = nil, nil
	}
	s.mu.Unlock()
	if current {
		s.conn.Close(websocket.StatusTryAgainLater, "lobby closed the connection")
		s.cancel()
	}
}

func (s *session) current() (*lobby.Lobby, chan types.ServerMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lobby, s.outbox
}

// detach forgets the current lobby; with notify the lobby hears that this
// connection is gone.
func (s *session) detach(notify bool) {
	s.mu.Lock()
	lb, out := s.lobby, s.outbox
	s.lobby, s.outbox = nil, nil
	s.mu.Unlock()
	if lb != nil && notify {
		lb.Send(lobby.Leave{PlayerID: s.playerID, Outbox: out})
	}
}

func (s *session) send(msg types.ServerMessage) {
	select {
	case s.direct <- msg:
	case <-s.ctx.Done():
	}
}
