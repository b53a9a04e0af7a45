package lobby

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/wordhex-backend/internal/bot"
	"github.com/DoyleJ11/wordhex-backend/internal/dictionary"
	"github.com/DoyleJ11/wordhex-backend/internal/engine"
	"github.com/DoyleJ11/wordhex-backend/internal/grid"
	"github.com/DoyleJ11/wordhex-backend/internal/store"
	"github.com/DoyleJ11/wordhex-backend/internal/types"
)

type Msg interface{ isLobbyMsg() }

// Join registers a connection for PlayerID. With Create set it also opens
// the lobby with PlayerID as host. The outcome goes to Reply.
type Join struct {
	PlayerID string
	Name     string
	Outbox   chan types.ServerMessage // where this client wants to receive messages
	Create   bool
	Reply    chan error
}

func (Join) isLobbyMsg() {}

// Leave is a dropped connection. The seat is kept for a reconnect; only an
// explicit LEAVE frees it. A Leave for a replaced outbox is ignored.
type Leave struct {
	PlayerID string
	Outbox   chan types.ServerMessage
}

func (Leave) isLobbyMsg() {}

type FromClient struct {
	PlayerID string
	Msg      types.ClientMessage
}

func (FromClient) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type turnTimerFired struct{ gen uint64 }

func (turnTimerFired) isLobbyMsg() {}

type idleTimerFired struct{ gen uint64 }

func (idleTimerFired) isLobbyMsg() {}

// botTurn wakes a computer seat whose turn it is.
type botTurn struct{ gen uint64 }

func (botTurn) isLobbyMsg() {}

type View struct {
	Code       string
	Version    int
	NumClients int
	State      State
	Seats      [Capacity]*Seat
	Match      *engine.State // nil before START
}

type Deps struct {
	Rules  engine.Rules
	Oracle dictionary.Oracle
	Store  store.LobbyStore // optional
	Logger *zap.Logger
	// IdleTimeout shuts the lobby down once no connection is left; 0 never does.
	IdleTimeout time.Duration
	OnEmpty     func(code string, l *Lobby)
	// Bots plays computer seats added with ADDBOT; nil refuses them.
	Bots     *bot.Player
	BotDelay time.Duration
}

const storeTimeout = 2 * time.Second

type Lobby struct {
	code    string
	deps    Deps
	log     *zap.Logger
	inbox   chan Msg
	coord   *Coordinator
	match   *engine.Session
	version int
	clients map[string]chan types.ServerMessage
	bots    map[string]bool
	botSeq  int

	turnTimer *time.Timer
	botTimer  *time.Timer
	turnGen   uint64
	idleTimer *time.Timer
	idleGen   uint64

	ctx    context.Context
	cancel context.CancelFunc
}

func NewLobby(parent context.Context, code string, deps Deps) *Lobby {
	ctx, cancel := context.WithCancel(parent)
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Oracle == nil {
		deps.Oracle = dictionary.Default()
	}

	l := &Lobby{
		code:    code,
		deps:    deps,
		log:     deps.Logger.With(zap.String("code", code)),
		inbox:   make(chan Msg, 64), // Small buffer
		coord:   NewCoordinator(),
		clients: make(map[string]chan types.ServerMessage),
		bots:    make(map[string]bool),
		ctx:     ctx,
		cancel:  cancel,
	}
	// reclaimed if the creator never shows up
	l.armIdleTimer()

	go l.loop()
	return l
}

// Restore opens the lobby from a durable record. It must be called before
// the lobby is shared.
func (l *Lobby) Restore(rec *store.Record) error {
	seats := make([]Seat, 0, len(rec.Members))
	for _, m := range rec.Members {
		seats = append(seats, Seat{PlayerID: m.PlayerID, Name: m.Name, Ready: m.Ready})
	}
	reply := make(chan error, 1)
	if !l.Send(restore{seats: seats, reply: reply}) {
		return ErrLobbyNotFound
	}
	return <-reply
}

type restore struct {
	seats []Seat
	reply chan error
}

func (restore) isLobbyMsg() {}

func (l *Lobby) Code() string { return l.code }

// Expose the inbox so tests or WS layer can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Send delivers m unless the lobby has shut down.
func (l *Lobby) Send(m Msg) bool {
	if l.ctx.Err() != nil {
		return false
	}
	select {
	case l.inbox <- m:
		return true
	case <-l.ctx.Done():
		return false
	}
}

// Done is closed once the lobby stops accepting messages.
func (l *Lobby) Done() <-chan struct{} { return l.ctx.Done() }

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				err := l.join(msg)
				if msg.Reply != nil {
					msg.Reply <- err
				}

			case restore:
				err := l.coord.Restore(l.code, msg.seats)
				if err == nil {
					l.armIdleTimer()
				}
				msg.reply <- err

			case Leave:
				l.disconnect(msg)

			case FromClient:
				l.handleClient(msg)

			case turnTimerFired:
				if msg.gen != l.turnGen || l.match == nil {
					break // stale
				}
				holder := l.match.Turn()
				events, err := l.match.Apply(l.ctx, engine.Command{Type: engine.CmdTurnTimeout, PlayerID: holder})
				if err != nil {
					l.log.Warn("turn timeout", zap.String("player", holder), zap.Error(err))
					break
				}
				l.log.Info("turn timed out", zap.String("player", holder))
				l.publish(holder, events)

			case botTurn:
				if msg.gen != l.turnGen || l.match == nil {
					break // stale
				}
				if holder := l.match.Turn(); l.bots[holder] {
					l.playBot(holder)
				}

			case idleTimerFired:
				if msg.gen != l.idleGen || len(l.clients) > 0 {
					break
				}
				l.log.Info("lobby idle, closing")
				l.shutdown()
				return

			case GetState:
				// test-only: reflect internal state without data races
				v := View{
					Code:       l.code,
					Version:    l.version,
					NumClients: len(l.clients),
					State:      l.coord.State(),
					Seats:      l.coord.Seats(),
				}
				if l.match != nil {
					st := l.match.State()
					v.Match = &st
				}
				msg.Reply <- v

			case Shutdown:
				l.shutdown()
				return
			}

			if l.finished() {
				l.log.Info("nobody left, closing")
				l.shutdown()
				return
			}
		}
	}
}

// finished reports a lobby nobody can come back to: everyone left before
// START, or the match is over and every connection is gone.
func (l *Lobby) finished() bool {
	if l.match == nil {
		return l.coord.Code() != "" && l.coord.State() == StateEmpty
	}
	return len(l.clients) == 0 && l.match.State().Phase == engine.PhaseEnded
}

func (l *Lobby) shutdown() {
	l.stopTurnTimer()
	if l.idleTimer != nil {
		l.idleTimer.Stop()
	}
	for id, ch := range l.clients {
		close(ch) // Tell client no more messages
		delete(l.clients, id)
	}
	l.cancel()
	if l.deps.OnEmpty != nil {
		go l.deps.OnEmpty(l.code, l)
	}
}

func (l *Lobby) join(msg Join) error {
	log := l.log.With(zap.String("player", msg.PlayerID))

	if msg.Create {
		if err := l.coord.Create(l.code, Seat{PlayerID: msg.PlayerID, Name: msg.Name}); err != nil {
			return err
		}
		l.persist("create", func(ctx context.Context, s store.LobbyStore) error {
			return s.Create(ctx, l.code, store.Member{PlayerID: msg.PlayerID, Name: msg.Name})
		})
		l.register(msg.PlayerID, msg.Outbox)
		l.version++
		players, ready := l.lobbyPlayers()
		l.sendTo(msg.PlayerID, types.ServerMessage{Type: types.MsgCreated, Code: l.code, Players: players, Ready: ready})
		l.broadcast(l.lobbyState())
		log.Info("lobby created")
		return nil
	}

	// A roster member coming back mid-match gets the current snapshot.
	if l.match != nil {
		if !engine.InRoster(l.match.State(), msg.PlayerID) {
			return ErrLobbyClosed
		}
		l.register(msg.PlayerID, msg.Outbox)
		l.version++
		l.sendTo(msg.PlayerID, l.lobbyState())
		l.sendMatchSnapshot(msg.PlayerID)
		l.broadcast(l.matchState())
		log.Info("player rejoined match")
		return nil
	}

	slot, err := l.coord.Join(Seat{PlayerID: msg.PlayerID, Name: msg.Name})
	if err != nil {
		return err
	}
	seat := l.coord.Seats()[slot]
	l.persist("join", func(ctx context.Context, s store.LobbyStore) error {
		role := store.RoleMember
		if slot == 0 {
			role = store.RoleHost
		}
		return s.Join(ctx, l.code, store.Member{PlayerID: seat.PlayerID, Name: seat.Name, Slot: slot, Ready: seat.Ready, Role: role})
	})
	l.register(msg.PlayerID, msg.Outbox)
	l.version++
	players, ready := l.lobbyPlayers()
	l.sendTo(msg.PlayerID, types.ServerMessage{Type: types.MsgJoined, Code: l.code, Players: players, Ready: ready})
	l.broadcast(l.lobbyState())
	log.Info("player joined", zap.Int("slot", slot))
	return nil
}

// register attaches outbox to playerID, replacing any earlier connection.
func (l *Lobby) register(playerID string, outbox chan types.ServerMessage) {
	if old, ok := l.clients[playerID]; ok && old != outbox {
		close(old)
	}
	l.clients[playerID] = outbox
	l.idleGen++
	if l.idleTimer != nil {
		l.idleTimer.Stop()
		l.idleTimer = nil
	}
}

func (l *Lobby) disconnect(msg Leave) {
	if ch, ok := l.clients[msg.PlayerID]; !ok || ch != msg.Outbox {
		return
	}
	close(msg.Outbox)
	delete(l.clients, msg.PlayerID)
	l.log.Info("player disconnected", zap.String("player", msg.PlayerID))

	l.version++
	if l.match != nil {
		l.broadcast(l.matchState())
	} else {
		l.broadcast(l.lobbyState())
	}
	if len(l.clients) == 0 {
		l.armIdleTimer()
	}
}

func (l *Lobby) handleClient(msg FromClient) {
	pid := msg.PlayerID
	switch msg.Msg.Type {
	case types.MsgReady:
		if err := l.coord.SetReady(pid, msg.Msg.Ready); err != nil {
			l.sendTo(pid, ErrorMessage(err))
			return
		}
		l.persist("ready", func(ctx context.Context, s store.LobbyStore) error {
			return s.SetReady(ctx, l.code, pid, msg.Msg.Ready)
		})
		l.version++
		players, ready := l.lobbyPlayers()
		l.broadcast(types.ServerMessage{Type: types.MsgReadyUpdate, Players: players, Ready: ready})
		l.broadcast(l.lobbyState())

	case types.MsgStart:
		l.start(pid)

	case types.MsgLeave:
		l.quit(pid)

	case types.MsgAddBot:
		l.addBot(pid)

	case types.MsgPath, types.MsgSubmit, types.MsgEndTurn:
		if l.match == nil {
			l.sendTo(pid, ErrorMessage(ErrMatchNotStarted))
			return
		}
		cmd := engine.Command{PlayerID: pid, Word: msg.Msg.Word, Path: msg.Msg.Path, Claimed: msg.Msg.Score}
		switch msg.Msg.Type {
		case types.MsgPath:
			cmd.Type = engine.CmdPath
		case types.MsgSubmit:
			cmd.Type = engine.CmdSubmit
		default:
			cmd.Type = engine.CmdEndTurn
		}
		events, err := l.match.Apply(l.ctx, cmd)
		if err != nil {
			// Path previews race the turn cursor; a stale one is just dropped.
			if cmd.Type == engine.CmdPath {
				l.log.Debug("path dropped", zap.String("player", pid), zap.Error(err))
				return
			}
			l.log.Info("command rejected", zap.String("player", pid), zap.String("cmd", string(cmd.Type)), zap.Error(err))
			l.sendTo(pid, ErrorMessage(err))
			return
		}
		l.publish(pid, events)

	default:
		l.sendTo(pid, ErrorMessage(ErrUnknownType))
	}
}

func (l *Lobby) start(pid string) {
	seats, err := l.coord.Start(pid)
	if err != nil {
		l.sendTo(pid, ErrorMessage(err))
		return
	}
	roster := make([]engine.Player, len(seats))
	for i, s := range seats {
		roster[i] = engine.Player{ID: s.PlayerID, Name: s.Name}
	}
	match, err := engine.New(roster, l.deps.Rules, l.deps.Oracle, l.boardFor)
	if err != nil {
		l.log.Error("start match", zap.Error(err))
		l.sendTo(pid, ErrorMessage(err))
		return
	}
	l.match = match
	l.persist("start", func(ctx context.Context, s store.LobbyStore) error {
		return s.Start(ctx, l.code, time.Now().UTC())
	})

	st := match.State()
	l.version++
	l.broadcast(l.lobbyState())
	l.broadcast(types.ServerMessage{Type: types.MsgBoard, Board: st.Board.Letters(), Round: st.Round})
	l.broadcast(types.ServerMessage{Type: types.MsgRound, Round: st.Round})
	l.broadcast(types.ServerMessage{Type: types.MsgTurn, PlayerID: match.Turn(), Round: st.Round})
	l.broadcast(l.matchState())
	l.armTurnTimer()
	l.scheduleBot()
	l.log.Info("match started", zap.Int("players", len(roster)))
}

// quit is an explicit LEAVE. Before START it frees the seat; during a match
// it only detaches the connection.
func (l *Lobby) quit(pid string) {
	if l.match == nil {
		if err := l.coord.Leave(pid); err != nil {
			l.sendTo(pid, ErrorMessage(err))
			return
		}
		l.persist("leave", func(ctx context.Context, s store.LobbyStore) error {
			return s.Leave(ctx, l.code, pid)
		})
		// A bot never hosts. The bots go with the seat they would inherit.
		if l.bots[l.coord.HostID()] {
			for id := range l.bots {
				_ = l.coord.Leave(id)
			}
			clear(l.bots)
		}
	}
	if ch, ok := l.clients[pid]; ok {
		close(ch)
		delete(l.clients, pid)
	}
	l.log.Info("player left", zap.String("player", pid))

	l.version++
	if l.match != nil {
		l.broadcast(l.matchState())
	} else {
		l.broadcast(l.lobbyState())
	}
	if len(l.clients) == 0 {
		l.armIdleTimer()
	}
}

// publish fans engine events out to the connections, then sends the full
// match snapshot.
func (l *Lobby) publish(actor string, events []engine.Event) {
	l.version++
	for _, ev := range events {
		switch ev.Type {
		case engine.EvtPathUpdated:
			l.broadcastExcept(actor, types.ServerMessage{Type: types.MsgOppPath, PlayerID: ev.PlayerID, Path: ev.Path})

		case engine.EvtWordScored:
			l.broadcastExcept(actor, types.ServerMessage{Type: types.MsgOppSubmit, PlayerID: ev.PlayerID, Word: ev.Word, Score: ev.Score})
			l.sendTo(actor, types.ServerMessage{Type: types.MsgAccepted, PlayerID: ev.PlayerID, Word: ev.Word, Score: ev.Score})
			l.log.Info("word scored", zap.String("player", ev.PlayerID), zap.String("word", ev.Word), zap.Int("score", ev.Score))

		case engine.EvtRoundAdvanced:
			l.broadcast(types.ServerMessage{Type: types.MsgRound, Round: ev.Round})

		case engine.EvtBoardChanged:
			l.broadcast(types.ServerMessage{Type: types.MsgBoard, Board: ev.Board.Letters(), Round: ev.Round})

		case engine.EvtTurnAdvanced:
			l.broadcast(types.ServerMessage{Type: types.MsgTurn, PlayerID: ev.PlayerID, Round: ev.Round})
			l.armTurnTimer()
			l.scheduleBot()

		case engine.EvtMatchEnded:
			l.stopTurnTimer()
			st := l.match.State()
			l.broadcast(types.ServerMessage{Type: types.MsgMatchEnd, Reason: ev.Reason, Scores: st.Scores, Winners: ev.Winners})
			l.log.Info("match ended", zap.String("reason", ev.Reason), zap.Strings("winners", ev.Winners))
		}
	}
	if engine.ContainsEvent(events, engine.EvtPathUpdated) && len(events) == 1 {
		return // path mirrors change nothing in the snapshot
	}
	l.broadcast(l.matchState())
}

func (l *Lobby) sendMatchSnapshot(pid string) {
	st := l.match.State()
	l.sendTo(pid, types.ServerMessage{Type: types.MsgBoard, Board: st.Board.Letters(), Round: st.Round})
	l.sendTo(pid, l.matchState())
	if st.Phase == engine.PhaseEnded {
		l.sendTo(pid, types.ServerMessage{Type: types.MsgMatchEnd, Reason: st.EndReason, Scores: st.Scores, Winners: engine.Leaders(st)})
		return
	}
	l.sendTo(pid, types.ServerMessage{Type: types.MsgTurn, PlayerID: l.match.Turn(), Round: st.Round})
}

func (l *Lobby) boardFor(round int) grid.Grid {
	size := l.deps.Rules.BoardSize
	if size <= 0 {
		size = 5
	}
	return grid.Generate(size, grid.Seed(l.code, round))
}

func (l *Lobby) armTurnTimer() {
	l.stopTurnTimer()
	d := l.deps.Rules.TurnTimeout
	if d <= 0 || l.match == nil {
		return
	}
	gen := l.turnGen
	l.turnTimer = time.AfterFunc(d, func() {
		select {
		case l.inbox <- turnTimerFired{gen: gen}:
		case <-l.ctx.Done():
		}
	})
}

// stopTurnTimer also invalidates a fire or bot wake-up already queued in
// the inbox.
func (l *Lobby) stopTurnTimer() {
	l.turnGen++
	if l.turnTimer != nil {
		l.turnTimer.Stop()
		l.turnTimer = nil
	}
	if l.botTimer != nil {
		l.botTimer.Stop()
		l.botTimer = nil
	}
}

func (l *Lobby) addBot(pid string) {
	if l.deps.Bots == nil {
		l.sendTo(pid, ErrorMessage(ErrBotsDisabled))
		return
	}
	l.botSeq++
	id := fmt.Sprintf("bot-%d", l.botSeq)
	slot, err := l.coord.AddBot(pid, Seat{PlayerID: id, Name: fmt.Sprintf("Bot %d", l.botSeq)})
	if err != nil {
		l.sendTo(pid, ErrorMessage(err))
		return
	}
	l.bots[id] = true
	l.version++
	l.broadcast(l.lobbyState())
	l.log.Info("bot seated", zap.String("player", id), zap.Int("slot", slot))
}

// scheduleBot wakes the current turn holder after BotDelay if it is a bot.
// Call it after armTurnTimer so the wake-up carries the live generation.
func (l *Lobby) scheduleBot() {
	if l.match == nil || !l.bots[l.match.Turn()] {
		return
	}
	gen := l.turnGen
	l.botTimer = time.AfterFunc(l.deps.BotDelay, func() {
		select {
		case l.inbox <- botTurn{gen: gen}:
		case <-l.ctx.Done():
		}
	})
}

// playBot traces a word for the bot through the same commands a person
// would send; a bot with nothing to play passes.
func (l *Lobby) playBot(id string) {
	if mv, ok := l.deps.Bots.Move(l.match.State().Board); ok {
		if events, err := l.match.Apply(l.ctx, engine.Command{Type: engine.CmdPath, PlayerID: id, Path: mv.Path}); err == nil {
			l.publish(id, events)
		}
		events, err := l.match.Apply(l.ctx, engine.Command{Type: engine.CmdSubmit, PlayerID: id, Word: mv.Word, Path: mv.Path})
		if err == nil {
			l.publish(id, events)
			return
		}
		l.log.Info("bot word rejected", zap.String("player", id), zap.String("word", mv.Word), zap.Error(err))
	}
	events, err := l.match.Apply(l.ctx, engine.Command{Type: engine.CmdEndTurn, PlayerID: id})
	if err != nil {
		l.log.Warn("bot pass", zap.String("player", id), zap.Error(err))
		return
	}
	l.publish(id, events)
}

func (l *Lobby) armIdleTimer() {
	if l.deps.IdleTimeout <= 0 {
		return
	}
	if l.idleTimer != nil {
		l.idleTimer.Stop()
	}
	l.idleGen++
	gen := l.idleGen
	l.idleTimer = time.AfterFunc(l.deps.IdleTimeout, func() {
		select {
		case l.inbox <- idleTimerFired{gen: gen}:
		case <-l.ctx.Done():
		}
	})
}

// persist writes through to the lobby store. Failures are logged; the
// in-memory lobby stays authoritative.
func (l *Lobby) persist(op string, fn func(context.Context, store.LobbyStore) error) {
	if l.deps.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(l.ctx, storeTimeout)
	defer cancel()
	if err := fn(ctx, l.deps.Store); err != nil && !errors.Is(err, context.Canceled) {
		l.log.Warn("lobby store write failed", zap.String("op", op), zap.Error(err))
	}
}

func (l *Lobby) lobbyPlayers() ([]*types.PlayerView, []bool) {
	seats := l.coord.Seats()
	players := make([]*types.PlayerView, Capacity)
	ready := make([]bool, Capacity)
	for i, s := range seats {
		if s == nil {
			continue
		}
		_, online := l.clients[s.PlayerID]
		players[i] = &types.PlayerView{ID: s.PlayerID, Name: s.Name, Host: i == 0, Ready: s.Ready, Connected: online, Bot: l.bots[s.PlayerID]}
		ready[i] = s.Ready
	}
	return players, ready
}

func (l *Lobby) lobbyState() types.ServerMessage {
	players, ready := l.lobbyPlayers()
	return types.ServerMessage{Type: types.MsgLobbyState, Code: l.code, State: string(l.coord.State()), Players: players, Ready: ready}
}

func (l *Lobby) matchState() types.ServerMessage {
	st := l.match.State()
	players := make([]*types.PlayerView, len(st.Roster))
	for i, p := range st.Roster {
		_, online := l.clients[p.ID]
		players[i] = &types.PlayerView{ID: p.ID, Name: p.Name, Host: i == 0, Score: st.Scores[p.ID], Connected: online, Bot: l.bots[p.ID]}
	}
	msg := types.ServerMessage{
		Type:    types.MsgMatchState,
		Code:    l.code,
		State:   string(st.Phase),
		Round:   st.Round,
		Scores:  st.Scores,
		Players: players,
	}
	if st.Phase == engine.PhaseActive {
		msg.Turn = l.match.Turn()
	}
	return msg
}

func (l *Lobby) sendTo(pid string, msg types.ServerMessage) {
	ch, ok := l.clients[pid]
	if !ok {
		return
	}
	msg.Version = l.version
	select {
	case ch <- msg:
	default:
		l.drop(pid, ch)
	}
}

func (l *Lobby) broadcast(msg types.ServerMessage) { l.broadcastExcept("", msg) }

func (l *Lobby) broadcastExcept(skip string, msg types.ServerMessage) {
	msg.Version = l.version
	for id, ch := range l.clients {
		if id == skip {
			continue
		}
		select {
		case ch <- msg:
			//ok
		default:
			// Client is slow/full - drop them.
			l.drop(id, ch)
		}
	}
}

func (l *Lobby) drop(id string, ch chan types.ServerMessage) {
	close(ch)
	delete(l.clients, id)
	l.log.Warn("dropped slow client", zap.String("player", id))
	if len(l.clients) == 0 {
		l.armIdleTimer()
	}
}
