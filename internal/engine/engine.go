package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/wordhex-backend/internal/dictionary"
	"github.com/DoyleJ11/wordhex-backend/internal/grid"
	"github.com/DoyleJ11/wordhex-backend/internal/scoring"
)

var ErrOutOfTurn = errors.New("not your turn")
var ErrNotInRoster = errors.New("player not in match")
var ErrWordTooShort = errors.New("word too short")
var ErrInvalidWord = errors.New("not a valid word")
var ErrMalformed = errors.New("malformed submission")
var ErrUnsupportedCommand = errors.New("unsupported command")
var ErrMatchEnded = errors.New("match already ended")
var ErrEmptyRoster = errors.New("roster is empty")

type Phase string

const (
	PhaseActive Phase = "active"
	PhaseEnded  Phase = "ended"
)

// End reasons reported with EvtMatchEnded.
const (
	ReasonRoundCap = "round_cap"
	ReasonScoreCap = "score_cap"
	ReasonAborted  = "aborted"
)

type Player struct {
	ID   string
	Name string
}

// Rules are the match policy. A zero cap disables that end condition.
type Rules struct {
	BoardSize   int
	TurnTimeout time.Duration
	RoundCap    int
	ScoreCap    int
}

type State struct {
	Phase     Phase
	Roster    []Player
	Cursor    int
	Round     int
	Scores    map[string]int
	Paths     map[string]grid.Path
	Board     grid.Grid
	Rules     Rules
	EndReason string
}

type CommandType string

const (
	CmdSubmit      CommandType = "Submit"
	CmdPath        CommandType = "Path"
	CmdEndTurn     CommandType = "EndTurn"
	CmdTurnTimeout CommandType = "TurnTimeout"
	CmdEnd         CommandType = "End"
)

/*
	CmdSubmit      -> EvtWordScored -> EvtTurnAdvanced (+ EvtRoundAdvanced, EvtBoardChanged on wrap)
	CmdPath        -> EvtPathUpdated
	CmdEndTurn     -> EvtTurnPassed -> EvtTurnAdvanced ...
	CmdTurnTimeout -> EvtTurnPassed -> EvtTurnAdvanced ...
	CmdEnd         -> EvtMatchEnded
	Any cap reached during an advance replaces the rest with EvtMatchEnded.
*/

type Command struct {
	Type     CommandType
	PlayerID string
	Word     string
	Path     grid.Path
	Claimed  int // client's score, never used for crediting
	Reason   string
}

type EventType string

const (
	EvtPathUpdated   EventType = "PathUpdated"
	EvtWordScored    EventType = "WordScored"
	EvtTurnPassed    EventType = "TurnPassed"
	EvtTurnAdvanced  EventType = "TurnAdvanced"
	EvtRoundAdvanced EventType = "RoundAdvanced"
	EvtBoardChanged  EventType = "BoardChanged"
	EvtMatchEnded    EventType = "MatchEnded"
)

type Event struct {
	Type     EventType
	PlayerID string
	Word     string
	Score    int
	Total    int
	Path     grid.Path
	Round    int
	Board    grid.Grid
	Reason   string
	Winners  []string
}

// BoardSource supplies the board for a round.
type BoardSource func(round int) grid.Grid

// Session is the match state machine. It is not safe for concurrent use;
// the owning lobby actor serialises every call.
type Session struct {
	state  State
	oracle dictionary.Oracle
	boards BoardSource
}

func New(roster []Player, rules Rules, oracle dictionary.Oracle, boards BoardSource) (*Session, error) {
	if len(roster) == 0 {
		return nil, ErrEmptyRoster
	}
	s := &Session{state: NewState(roster, rules), oracle: oracle, boards: boards}
	if boards != nil {
		s.state.Board = boards(s.state.Round)
	}
	return s, nil
}

// State returns a copy that is safe to hand to other goroutines.
func (s *Session) State() State { return s.state.Clone() }

func (s *Session) Turn() string { return CurrentPlayer(s.state).ID }

func (s *Session) Apply(ctx context.Context, cmd Command) ([]Event, error) {
	if s.state.Phase == PhaseEnded {
		return nil, ErrMatchEnded
	}
	if cmd.Type == CmdEnd {
		return s.end(cmd.Reason), nil
	}
	if !InRoster(s.state, cmd.PlayerID) {
		return nil, ErrNotInRoster
	}
	// Turn must match for everything below
	if CurrentPlayer(s.state).ID != cmd.PlayerID {
		return nil, ErrOutOfTurn
	}

	switch cmd.Type {
	case CmdSubmit:
		return s.submit(ctx, cmd)

	case CmdPath:
		if s.state.Board != nil && len(cmd.Path) > 0 {
			if err := grid.Validate(s.state.Board, cmd.Path); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
			}
		}
		s.state.Paths[cmd.PlayerID] = cmd.Path.Clone()
		return []Event{{Type: EvtPathUpdated, PlayerID: cmd.PlayerID, Path: cmd.Path.Clone()}}, nil

	case CmdEndTurn, CmdTurnTimeout:
		events := []Event{{Type: EvtTurnPassed, PlayerID: cmd.PlayerID}}
		return append(events, s.advance()...), nil

	default:
		return nil, ErrUnsupportedCommand
	}
}

func (s *Session) submit(ctx context.Context, cmd Command) ([]Event, error) {
	word := scoring.Normalize(cmd.Word)
	if len([]rune(word)) < scoring.MinWordLength {
		return nil, ErrWordTooShort
	}
	if s.state.Board != nil {
		if err := grid.Validate(s.state.Board, cmd.Path); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		if spelled := grid.Word(s.state.Board, cmd.Path); spelled != word {
			return nil, fmt.Errorf("%w: path spells %q, not %q", ErrMalformed, spelled, word)
		}
	}

	ok, err := dictionary.Check(ctx, s.oracle, word)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidWord
	}

	points := scoring.Score(word)
	s.state.Scores[cmd.PlayerID] += points
	total := s.state.Scores[cmd.PlayerID]

	events := []Event{{Type: EvtWordScored, PlayerID: cmd.PlayerID, Word: word, Score: points, Total: total}}
	if s.state.Rules.ScoreCap > 0 && total >= s.state.Rules.ScoreCap {
		return append(events, s.end(ReasonScoreCap)...), nil
	}
	return append(events, s.advance()...), nil
}

// advance moves the turn to the next roster slot and starts a new round on wrap.
func (s *Session) advance() []Event {
	delete(s.state.Paths, CurrentPlayer(s.state).ID)

	next, wrapped := NextCursor(s.state.Cursor, len(s.state.Roster))
	var events []Event
	if wrapped {
		if s.state.Rules.RoundCap > 0 && s.state.Round >= s.state.Rules.RoundCap {
			return s.end(ReasonRoundCap)
		}
		s.state.Round++
		events = append(events, Event{Type: EvtRoundAdvanced, Round: s.state.Round})
		if s.boards != nil {
			s.state.Board = s.boards(s.state.Round)
			clear(s.state.Paths)
			events = append(events, Event{Type: EvtBoardChanged, Round: s.state.Round, Board: s.state.Board})
		}
	}
	s.state.Cursor = next
	return append(events, Event{Type: EvtTurnAdvanced, PlayerID: CurrentPlayer(s.state).ID, Round: s.state.Round})
}

func (s *Session) end(reason string) []Event {
	if reason == "" {
		reason = ReasonAborted
	}
	s.state.Phase = PhaseEnded
	s.state.EndReason = reason
	clear(s.state.Paths)
	return []Event{{Type: EvtMatchEnded, Reason: reason, Winners: Leaders(s.state)}}
}
