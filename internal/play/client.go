// Package play holds one player's view of a match: the local selection,
// what the server last said about the board, turn and scores, and mirrors
// of opponents' in-progress paths.
package play

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/wordhex-backend/internal/dictionary"
	"github.com/DoyleJ11/wordhex-backend/internal/grid"
	"github.com/DoyleJ11/wordhex-backend/internal/scoring"
	"github.com/DoyleJ11/wordhex-backend/internal/types"
)

var (
	ErrNotYourTurn  = errors.New("not your turn")
	ErrNoBoard      = errors.New("no board yet")
	ErrWordTooShort = errors.New("word too short")
	ErrNotInLobby   = errors.New("not in a lobby")
)

const previewTimeout = 2 * time.Second

// Sender is the outgoing half of a server connection.
type Sender interface {
	Send(types.ClientMessage) error
}

// Preview is the word under the current selection.
type Preview struct {
	Word    string
	Score   int
	Checked bool // Valid is meaningful only once checked
	Valid   bool
}

// View is a copy of the client state for rendering.
type View struct {
	PlayerID  string
	Code      string
	Lobby     []*types.PlayerView
	Board     grid.Grid
	Round     int
	Turn      string
	MyTurn    bool
	Scores    map[string]int
	Selection grid.Path
	Opponents map[string]grid.Path
	Preview   Preview
	Ended     bool
	Winners   []string
	Reason    string
	LastError *types.ErrorBody
}

type Options struct {
	Name   string
	Oracle dictionary.Oracle // optional; without it previews stay unchecked
	Logger *zap.Logger
	// OnChange runs after every state change, outside the lock.
	OnChange func()
}

// Client is safe for concurrent use: server messages, gestures and preview
// results may arrive from different goroutines.
type Client struct {
	send Sender
	opts Options
	log  *zap.Logger

	mu        sync.Mutex
	playerID  string
	code      string
	lobby     []*types.PlayerView
	board     grid.Grid
	sel       *grid.Selector
	opponents map[string]grid.Path
	round     int
	turn      string
	scores    map[string]int
	preview   Preview
	ended     bool
	winners   []string
	reason    string
	lastErr   *types.ErrorBody
}

func New(send Sender, opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		send:      send,
		opts:      opts,
		log:       opts.Logger.Named("play"),
		sel:       grid.NewSelector(0),
		opponents: make(map[string]grid.Path),
		scores:    make(map[string]int),
	}
}

// Lobby commands

// Hello announces the player; the server answers WELCOME with the id it
// settled on.
func (c *Client) Hello(playerID string) error {
	c.mu.Lock()
	if playerID != "" {
		c.playerID = playerID
	}
	id := c.playerID
	c.mu.Unlock()
	return c.send.Send(types.ClientMessage{Type: types.MsgJoin, PlayerID: id, Name: c.opts.Name})
}

func (c *Client) Create() error {
	return c.send.Send(types.ClientMessage{Type: types.MsgCreate})
}

func (c *Client) JoinLobby(code string) error {
	return c.send.Send(types.ClientMessage{Type: types.MsgJoinLobby, Code: code})
}

func (c *Client) Ready(ready bool) error {
	return c.send.Send(types.ClientMessage{Type: types.MsgReady, Ready: ready})
}

// AddBot asks for a computer player in the next free seat. Host only.
func (c *Client) AddBot() error {
	return c.send.Send(types.ClientMessage{Type: types.MsgAddBot})
}

func (c *Client) Start() error {
	return c.send.Send(types.ClientMessage{Type: types.MsgStart})
}

func (c *Client) Leave() error {
	c.mu.Lock()
	c.code = ""
	c.mu.Unlock()
	return c.send.Send(types.ClientMessage{Type: types.MsgLeave})
}

// Handshake is what a fresh connection must say before anything else: who
// the player is and which lobby to re-attach to. The server answers with a
// full snapshot.
func (c *Client) Handshake() []types.ClientMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := []types.ClientMessage{{Type: types.MsgJoin, PlayerID: c.playerID, Name: c.opts.Name}}
	if c.code != "" {
		out = append(out, types.ClientMessage{Type: types.MsgJoinLobby, PlayerID: c.playerID, Code: c.code})
	}
	return out
}

// Resume sends the handshake through the Sender, for transports that do not
// run it themselves.
func (c *Client) Resume() error {
	for _, msg := range c.Handshake() {
		if err := c.send.Send(msg); err != nil {
			return err
		}
	}
	return nil
}

// Gestures

// Touch starts a selection at p.
func (c *Client) Touch(p grid.Point) {
	c.gesture(func(s *grid.Selector) bool { return s.Start(p) })
}

// Drag extends the selection towards p; dragging back onto the previous
// tile undoes the last step.
func (c *Client) Drag(p grid.Point) {
	c.gesture(func(s *grid.Selector) bool { return s.Extend(p) })
}

// Release ends the gesture. The path stays selected until Submit or Clear.
func (c *Client) Release() {
	c.mu.Lock()
	c.sel.End()
	c.mu.Unlock()
}

func (c *Client) Clear() {
	c.gesture(func(s *grid.Selector) bool {
		s.Reset()
		return true
	})
}

func (c *Client) gesture(step func(*grid.Selector) bool) {
	c.mu.Lock()
	if c.board == nil || !step(c.sel) {
		c.mu.Unlock()
		return
	}
	path := c.sel.Path()
	word := grid.Word(c.board, path)
	version := c.sel.Version()
	c.preview = Preview{Word: word, Score: scoring.Score(word)}
	mine := c.myTurnLocked()
	c.mu.Unlock()

	if mine {
		if err := c.send.Send(types.ClientMessage{Type: types.MsgPath, Path: path}); err != nil {
			c.log.Debug("send path", zap.Error(err))
		}
	}
	c.validate(word, version)
	c.changed()
}

// validate checks word in the background and keeps the answer only if the
// selection has not moved since.
func (c *Client) validate(word string, version uint64) {
	if c.opts.Oracle == nil || len([]rune(word)) < scoring.MinWordLength {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), previewTimeout)
		defer cancel()
		ok, err := dictionary.Check(ctx, c.opts.Oracle, word)
		if err != nil {
			c.log.Debug("preview lookup", zap.String("word", word), zap.Error(err))
			return
		}
		c.mu.Lock()
		if c.sel.Version() != version {
			c.mu.Unlock()
			return
		}
		c.preview.Checked, c.preview.Valid = true, ok
		c.mu.Unlock()
		c.changed()
	}()
}

// Submit plays the current selection. The score sent along is advisory.
func (c *Client) Submit() error {
	c.mu.Lock()
	if c.board == nil {
		c.mu.Unlock()
		return ErrNoBoard
	}
	if !c.myTurnLocked() {
		c.mu.Unlock()
		return ErrNotYourTurn
	}
	path := c.sel.Path()
	word := grid.Word(c.board, path)
	c.mu.Unlock()

	if len([]rune(word)) < scoring.MinWordLength {
		return ErrWordTooShort
	}
	return c.send.Send(types.ClientMessage{Type: types.MsgSubmit, Word: word, Path: path, Score: scoring.Score(word)})
}

func (c *Client) EndTurn() error {
	c.mu.Lock()
	mine := c.myTurnLocked()
	c.mu.Unlock()
	if !mine {
		return ErrNotYourTurn
	}
	return c.send.Send(types.ClientMessage{Type: types.MsgEndTurn})
}

// Handle applies one server message. It is the wsclient subscriber.
func (c *Client) Handle(msg types.ServerMessage) {
	c.mu.Lock()
	switch msg.Type {
	case types.MsgWelcome:
		c.playerID = msg.PlayerID

	case types.MsgCreated, types.MsgJoined:
		c.code = msg.Code
		c.lobby = msg.Players
		c.lastErr = nil

	case types.MsgLobbyState, types.MsgReadyUpdate:
		if msg.Code != "" {
			c.code = msg.Code
		}
		c.lobby = msg.Players

	case types.MsgBoard:
		g, err := grid.FromLetters(msg.Board)
		if err != nil {
			c.log.Warn("bad board", zap.Error(err))
			break
		}
		c.board = g
		c.sel = grid.NewSelector(g.Size())
		c.preview = Preview{}
		clear(c.opponents)
		c.ended = false
		if msg.Round > 0 {
			c.round = msg.Round
		}

	case types.MsgTurn:
		if c.turn != msg.PlayerID {
			delete(c.opponents, c.turn)
			c.sel.Reset()
			c.preview = Preview{}
		}
		c.turn = msg.PlayerID
		if msg.Round > 0 {
			c.round = msg.Round
		}

	case types.MsgOppPath:
		if msg.PlayerID == c.playerID {
			break
		}
		if len(msg.Path) == 0 {
			delete(c.opponents, msg.PlayerID)
		} else {
			c.opponents[msg.PlayerID] = msg.Path.Clone()
		}

	case types.MsgOppSubmit:
		delete(c.opponents, msg.PlayerID)

	case types.MsgAccepted:
		c.sel.Reset()
		c.preview = Preview{}
		c.lastErr = nil

	case types.MsgRound:
		c.round = msg.Round

	case types.MsgMatchState:
		if msg.Scores != nil {
			c.scores = copyScores(msg.Scores)
		}
		if msg.Turn != "" {
			c.turn = msg.Turn
		}
		if msg.Round > 0 {
			c.round = msg.Round
		}

	case types.MsgMatchEnd:
		c.ended = true
		c.winners = append([]string(nil), msg.Winners...)
		c.reason = msg.Reason
		if msg.Scores != nil {
			c.scores = copyScores(msg.Scores)
		}
		c.sel.Reset()
		clear(c.opponents)

	case types.MsgError:
		c.lastErr = msg.Error
		if msg.Error != nil && msg.Error.Code == "lobby_not_found" {
			c.code = ""
		}

	default:
		c.log.Debug("ignored message", zap.String("type", string(msg.Type)))
	}
	c.mu.Unlock()
	c.changed()
}

func (c *Client) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	opp := make(map[string]grid.Path, len(c.opponents))
	for id, p := range c.opponents {
		opp[id] = p.Clone()
	}
	var board grid.Grid
	if c.board != nil {
		board = make(grid.Grid, len(c.board))
		for i, row := range c.board {
			board[i] = append([]rune(nil), row...)
		}
	}
	var lastErr *types.ErrorBody
	if c.lastErr != nil {
		e := *c.lastErr
		lastErr = &e
	}
	return View{
		PlayerID:  c.playerID,
		Code:      c.code,
		Lobby:     append([]*types.PlayerView(nil), c.lobby...),
		Board:     board,
		Round:     c.round,
		Turn:      c.turn,
		MyTurn:    c.myTurnLocked(),
		Scores:    copyScores(c.scores),
		Selection: c.sel.Path(),
		Opponents: opp,
		Preview:   c.preview,
		Ended:     c.ended,
		Winners:   append([]string(nil), c.winners...),
		Reason:    c.reason,
		LastError: lastErr,
	}
}

func (c *Client) myTurnLocked() bool {
	return !c.ended && c.playerID != "" && c.turn == c.playerID
}

func (c *Client) changed() {
	if c.opts.OnChange != nil {
		c.opts.OnChange()
	}
}

func copyScores(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
