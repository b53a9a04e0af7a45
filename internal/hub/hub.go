package hub

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/wordhex-backend/internal/bot"
	"github.com/DoyleJ11/wordhex-backend/internal/dictionary"
	"github.com/DoyleJ11/wordhex-backend/internal/engine"
	"github.com/DoyleJ11/wordhex-backend/internal/lobby"
	"github.com/DoyleJ11/wordhex-backend/internal/store"
)

var ErrClosed = errors.New("hub is shut down")

type HubMsg interface{ isHubMsg() }

// CreateLobby allocates a fresh code and an empty lobby for it. The caller
// opens it by sending lobby.Join with Create set.
type CreateLobby struct {
	Reply chan *lobby.Lobby
}

// GetLobby finds a live lobby, reopening it from the store when needed.
type GetLobby struct {
	Code  string
	Reply chan *lobby.Lobby // nil lobby when unknown
}

// RemoveLobby forgets Lobby if it still owns Code.
type RemoveLobby struct {
	Code  string
	Lobby *lobby.Lobby
}

type ListLobbies struct {
	Reply chan []string
}

type ShutdownHub struct{}

func (CreateLobby) isHubMsg() {}
func (GetLobby) isHubMsg()    {}
func (RemoveLobby) isHubMsg() {}
func (ListLobbies) isHubMsg() {}
func (ShutdownHub) isHubMsg() {}

type Config struct {
	Rules       engine.Rules
	Oracle      dictionary.Oracle
	Store       store.LobbyStore // optional
	Logger      *zap.Logger
	IdleTimeout time.Duration
	Bots        *bot.Player // nil refuses ADDBOT
	BotDelay    time.Duration
}

const maxCodeAttempts = 16

type Hub struct {
	cfg     Config
	log     *zap.Logger
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, cfg Config) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	h := &Hub{
		cfg:     cfg,
		log:     cfg.Logger.Named("hub"),
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[string]*lobby.Lobby),
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Send delivers m unless the hub has shut down.
func (h *Hub) Send(m HubMsg) bool {
	if h.ctx.Err() != nil {
		return false
	}
	select {
	case h.inbox <- m:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

// Create is CreateLobby as a call.
func (h *Hub) Create(ctx context.Context) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	if !h.Send(CreateLobby{Reply: reply}) {
		return nil, ErrClosed
	}
	select {
	case lb := <-reply:
		if lb == nil {
			return nil, errors.New("could not allocate a lobby code")
		}
		return lb, nil
	case <-h.ctx.Done():
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get is GetLobby as a call; a nil lobby means none exists.
func (h *Hub) Get(ctx context.Context, code string) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	if !h.Send(GetLobby{Code: code, Reply: reply}) {
		return nil, ErrClosed
	}
	select {
	case lb := <-reply:
		return lb, nil
	case <-h.ctx.Done():
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateLobby:
				code, err := h.allocate()
				if err != nil {
					h.log.Error("allocate lobby code", zap.Error(err))
					msg.Reply <- nil
					break
				}
				msg.Reply <- h.spawn(code)

			case GetLobby:
				code := NormalizeCode(msg.Code)
				if lb := h.lobbies[code]; lb != nil {
					msg.Reply <- lb
					break
				}
				msg.Reply <- h.reopen(code) // May be nil

			case RemoveLobby:
				if h.lobbies[msg.Code] == msg.Lobby {
					delete(h.lobbies, msg.Code)
					h.log.Debug("lobby removed", zap.String("code", msg.Code))
				}

			case ListLobbies:
				codes := make([]string, 0, len(h.lobbies))
				for code := range h.lobbies {
					codes = append(codes, code)
				}
				msg.Reply <- codes

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for _, lb := range h.lobbies {
		lb.Send(lobby.Shutdown{})
	}
	clear(h.lobbies)
	h.cancel()
}

func (h *Hub) spawn(code string) *lobby.Lobby {
	lb := lobby.NewLobby(h.ctx, code, lobby.Deps{
		Rules:       h.cfg.Rules,
		Oracle:      h.cfg.Oracle,
		Store:       h.cfg.Store,
		Logger:      h.cfg.Logger,
		IdleTimeout: h.cfg.IdleTimeout,
		Bots:        h.cfg.Bots,
		BotDelay:    h.cfg.BotDelay,
		OnEmpty: func(code string, l *lobby.Lobby) {
			h.Send(RemoveLobby{Code: code, Lobby: l})
		},
	})
	h.lobbies[code] = lb
	return lb
}

// allocate picks a code no live lobby and no stored record uses.
func (h *Hub) allocate() (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		c, err := GenerateCode()
		if err != nil {
			return "", err
		}
		if h.lobbies[c] != nil || h.stored(c) {
			h.log.Debug("collision on code, regenerating", zap.String("code", c))
			continue
		}
		return c, nil
	}
	return "", errors.New("no free lobby code")
}

func (h *Hub) stored(code string) bool {
	if h.cfg.Store == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(h.ctx, 2*time.Second)
	defer cancel()
	_, err := h.cfg.Store.GetByCode(ctx, code)
	return err == nil
}

// reopen brings back an open lobby that outlived its actor, e.g. across a
// restart. Started lobbies stay closed: match state is not persisted.
func (h *Hub) reopen(code string) *lobby.Lobby {
	if h.cfg.Store == nil || len(code) != CodeLength {
		return nil
	}
	ctx, cancel := context.WithTimeout(h.ctx, 2*time.Second)
	defer cancel()
	rec, err := h.cfg.Store.GetByCode(ctx, code)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			h.log.Warn("lobby lookup failed", zap.String("code", code), zap.Error(err))
		}
		return nil
	}
	if !rec.Open || len(rec.Members) == 0 {
		return nil
	}
	lb := h.spawn(code)
	if err := lb.Restore(rec); err != nil {
		h.log.Warn("restore lobby", zap.String("code", code), zap.Error(err))
		delete(h.lobbies, code)
		lb.Send(lobby.Shutdown{})
		return nil
	}
	h.log.Info("lobby restored from store", zap.String("code", code), zap.Int("members", len(rec.Members)))
	return lb
}
