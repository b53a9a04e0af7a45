package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/wordhex-backend/internal/dictionary"
	"github.com/DoyleJ11/wordhex-backend/internal/grid"
)

var board = grid.MustParse("ATE", "LIN", "QEM")

func fixedBoard(int) grid.Grid { return board }

func roster(ids ...string) []Player {
	out := make([]Player, len(ids))
	for i, id := range ids {
		out[i] = Player{ID: id, Name: "name-" + id}
	}
	return out
}

// countingOracle accepts words in the list and counts lookups.
type countingOracle struct {
	words *dictionary.WordList
	calls int32
}

func (o *countingOracle) IsValid(ctx context.Context, w string) (bool, error) {
	atomic.AddInt32(&o.calls, 1)
	return o.words.IsValid(ctx, w)
}

func newSession(t *testing.T, rules Rules, ids ...string) (*Session, *countingOracle) {
	t.Helper()
	o := &countingOracle{words: dictionary.NewWordList("ATI", "ATE", "TIE", "LIE", "TEN", "TIN")}
	s, err := New(roster(ids...), rules, o, fixedBoard)
	require.NoError(t, err)
	return s, o
}

var (
	pathALI = grid.Path{{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}}
	pathATI = grid.Path{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}}
	pathATE = grid.Path{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}}
	pathTIN = grid.Path{{X: 1, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 1}}
)

func TestNew_StartsAtSlotZeroRoundOne(t *testing.T) {
	s, _ := newSession(t, Rules{}, "p0", "p1")
	st := s.State()

	assert.Equal(t, "p0", s.Turn())
	assert.Equal(t, 1, st.Round)
	assert.Equal(t, map[string]int{"p0": 0, "p1": 0}, st.Scores)
	assert.Equal(t, board, st.Board)
}

func TestNew_RejectsEmptyRoster(t *testing.T) {
	_, err := New(nil, Rules{}, dictionary.NewWordList(), nil)
	require.ErrorIs(t, err, ErrEmptyRoster)
}

func TestSubmit_InvalidWordKeepsTurn(t *testing.T) {
	s, _ := newSession(t, Rules{}, "p0", "p1")

	events, err := s.Apply(context.Background(), Command{Type: CmdSubmit, PlayerID: "p0", Word: "ALI", Path: pathALI, Claimed: 99})

	require.ErrorIs(t, err, ErrInvalidWord)
	assert.Empty(t, events)
	assert.Equal(t, "p0", s.Turn())
	assert.Equal(t, 0, s.State().Scores["p0"])
}

func TestSubmit_ValidWordScoresAndAdvances(t *testing.T) {
	s, _ := newSession(t, Rules{}, "p0", "p1", "p2")

	events, err := s.Apply(context.Background(), Command{Type: CmdSubmit, PlayerID: "p0", Word: "ati", Path: pathATI, Claimed: 1000})
	require.NoError(t, err)

	require.True(t, ContainsEvent(events, EvtWordScored))
	assert.Equal(t, Event{Type: EvtWordScored, PlayerID: "p0", Word: "ATI", Score: 4, Total: 4}, events[0])
	assert.False(t, ContainsEvent(events, EvtRoundAdvanced))

	st := s.State()
	assert.Equal(t, "p1", s.Turn())
	assert.Equal(t, 1, st.Round)
	assert.Equal(t, 4, st.Scores["p0"], "claimed score is ignored")
}

func TestSubmit_OutOfTurnChangesNothing(t *testing.T) {
	s, o := newSession(t, Rules{}, "p0", "p1")
	before := s.State()

	_, err := s.Apply(context.Background(), Command{Type: CmdSubmit, PlayerID: "p1", Word: "ATI", Path: pathATI})

	require.ErrorIs(t, err, ErrOutOfTurn)
	assert.Equal(t, before, s.State())
	assert.Zero(t, atomic.LoadInt32(&o.calls))
}

func TestSubmit_ShortWordSkipsLookup(t *testing.T) {
	s, o := newSession(t, Rules{}, "p0", "p1")

	_, err := s.Apply(context.Background(), Command{Type: CmdSubmit, PlayerID: "p0", Word: "AT", Path: pathATI[:2]})

	require.ErrorIs(t, err, ErrWordTooShort)
	assert.Zero(t, atomic.LoadInt32(&o.calls))
}

func TestSubmit_Malformed(t *testing.T) {
	cases := []struct {
		name string
		word string
		path grid.Path
	}{
		{"path spells another word", "TIE", pathATI},
		{"path not adjacent", "AEN", grid.Path{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 1}}},
		{"no path", "ATI", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, o := newSession(t, Rules{}, "p0", "p1")
			_, err := s.Apply(context.Background(), Command{Type: CmdSubmit, PlayerID: "p0", Word: tc.word, Path: tc.path})
			require.ErrorIs(t, err, ErrMalformed)
			assert.Equal(t, "p0", s.Turn())
			assert.Zero(t, atomic.LoadInt32(&o.calls))
		})
	}
}

func TestSubmit_OracleFailureKeepsTurn(t *testing.T) {
	down := dictionary.OracleFunc(func(context.Context, string) (bool, error) {
		return false, dictionary.ErrUnavailable
	})
	s, err := New(roster("p0", "p1"), Rules{}, down, fixedBoard)
	require.NoError(t, err)

	_, err = s.Apply(context.Background(), Command{Type: CmdSubmit, PlayerID: "p0", Word: "ATI", Path: pathATI})

	require.True(t, errors.Is(err, dictionary.ErrUnavailable))
	assert.Equal(t, "p0", s.Turn())
}

func TestAdvance_WrapIncrementsRoundAndReplacesBoard(t *testing.T) {
	boards := 0
	o := dictionary.NewWordList("ATI", "ATE")
	s, err := New(roster("p0", "p1"), Rules{}, o, func(round int) grid.Grid {
		boards++
		return board
	})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Apply(ctx, Command{Type: CmdSubmit, PlayerID: "p0", Word: "ATI", Path: pathATI})
	require.NoError(t, err)
	events, err := s.Apply(ctx, Command{Type: CmdSubmit, PlayerID: "p1", Word: "ATE", Path: pathATE})
	require.NoError(t, err)

	assert.True(t, ContainsEvent(events, EvtRoundAdvanced))
	assert.True(t, ContainsEvent(events, EvtBoardChanged))
	assert.Equal(t, "p0", s.Turn())
	assert.Equal(t, 2, s.State().Round)
	assert.Equal(t, 2, boards)
}

func TestPath_OnlyTurnHolder(t *testing.T) {
	s, _ := newSession(t, Rules{}, "p0", "p1")
	ctx := context.Background()

	_, err := s.Apply(ctx, Command{Type: CmdPath, PlayerID: "p1", Path: pathTIN})
	require.ErrorIs(t, err, ErrOutOfTurn)

	events, err := s.Apply(ctx, Command{Type: CmdPath, PlayerID: "p0", Path: pathTIN})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, pathTIN, events[0].Path)

	_, err = s.Apply(ctx, Command{Type: CmdPath, PlayerID: "p0", Path: pathATI[:2]})
	require.NoError(t, err)
	assert.Equal(t, pathATI[:2], s.State().Paths["p0"], "paths are replaced, not merged")
}

func TestEndTurn_PassesWithoutScore(t *testing.T) {
	s, _ := newSession(t, Rules{}, "p0", "p1")

	events, err := s.Apply(context.Background(), Command{Type: CmdEndTurn, PlayerID: "p0"})
	require.NoError(t, err)

	assert.True(t, ContainsEvent(events, EvtTurnPassed))
	assert.Equal(t, "p1", s.Turn())
	assert.Equal(t, 0, s.State().Scores["p0"])
}

func TestTurnTimeout_StaleHolderRejected(t *testing.T) {
	s, _ := newSession(t, Rules{}, "p0", "p1")
	ctx := context.Background()
	_, err := s.Apply(ctx, Command{Type: CmdEndTurn, PlayerID: "p0"})
	require.NoError(t, err)

	_, err = s.Apply(ctx, Command{Type: CmdTurnTimeout, PlayerID: "p0"})
	require.ErrorIs(t, err, ErrOutOfTurn)
	assert.Equal(t, "p1", s.Turn())
}

func TestRoundCap_EndsMatch(t *testing.T) {
	s, _ := newSession(t, Rules{RoundCap: 1}, "p0", "p1")
	ctx := context.Background()

	_, err := s.Apply(ctx, Command{Type: CmdSubmit, PlayerID: "p0", Word: "ATI", Path: pathATI})
	require.NoError(t, err)
	events, err := s.Apply(ctx, Command{Type: CmdEndTurn, PlayerID: "p1"})
	require.NoError(t, err)

	require.True(t, ContainsEvent(events, EvtMatchEnded))
	last := events[len(events)-1]
	assert.Equal(t, ReasonRoundCap, last.Reason)
	assert.Equal(t, []string{"p0"}, last.Winners)
	assert.Equal(t, PhaseEnded, s.State().Phase)

	_, err = s.Apply(ctx, Command{Type: CmdEndTurn, PlayerID: "p0"})
	require.ErrorIs(t, err, ErrMatchEnded)
}

func TestScoreCap_EndsMatch(t *testing.T) {
	s, _ := newSession(t, Rules{ScoreCap: 4}, "p0", "p1")

	events, err := s.Apply(context.Background(), Command{Type: CmdSubmit, PlayerID: "p0", Word: "ATI", Path: pathATI})
	require.NoError(t, err)

	assert.True(t, ContainsEvent(events, EvtMatchEnded))
	assert.False(t, ContainsEvent(events, EvtTurnAdvanced))
	assert.Equal(t, ReasonScoreCap, s.State().EndReason)
}

func TestEnd_Explicit(t *testing.T) {
	s, _ := newSession(t, Rules{}, "p0", "p1")

	events, err := s.Apply(context.Background(), Command{Type: CmdEnd})
	require.NoError(t, err)

	assert.Equal(t, ReasonAborted, events[0].Reason)
	assert.Equal(t, []string{"p0", "p1"}, events[0].Winners, "ties share the lead")
}

func TestNotInRoster(t *testing.T) {
	s, _ := newSession(t, Rules{}, "p0", "p1")
	_, err := s.Apply(context.Background(), Command{Type: CmdSubmit, PlayerID: "stranger", Word: "ATI", Path: pathATI})
	require.ErrorIs(t, err, ErrNotInRoster)
}

func TestStateIsACopy(t *testing.T) {
	s, _ := newSession(t, Rules{}, "p0", "p1")
	st := s.State()
	st.Scores["p0"] = 500
	st.Roster[0].ID = "x"

	assert.Equal(t, 0, s.State().Scores["p0"])
	assert.Equal(t, "p0", s.Turn())
}

func TestNextCursor(t *testing.T) {
	cases := []struct {
		cursor, n, next int
		wrapped         bool
	}{
		{0, 2, 1, false},
		{1, 2, 0, true},
		{2, 4, 3, false},
		{3, 4, 0, true},
		{0, 1, 0, true},
	}
	for _, tc := range cases {
		next, wrapped := NextCursor(tc.cursor, tc.n)
		assert.Equal(t, tc.next, next)
		assert.Equal(t, tc.wrapped, wrapped)
	}
}
