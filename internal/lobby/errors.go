package lobby

import (
	"errors"

	"github.com/DoyleJ11/wordhex-backend/internal/dictionary"
	"github.com/DoyleJ11/wordhex-backend/internal/engine"
	"github.com/DoyleJ11/wordhex-backend/internal/types"
)

var ErrUnknownType = errors.New("unknown message type")
var ErrMatchNotStarted = errors.New("match has not started")
var ErrBotsDisabled = errors.New("computer players are not available")

var wireErrors = []struct {
	err  error
	code string
	kind types.Kind
}{
	{engine.ErrOutOfTurn, "out_of_turn", types.KindProtocol},
	{engine.ErrMalformed, "malformed", types.KindProtocol},
	{engine.ErrWordTooShort, "word_too_short", types.KindProtocol},
	{engine.ErrInvalidWord, "invalid_word", types.KindProtocol},
	{engine.ErrNotInRoster, "not_member", types.KindProtocol},
	{ErrNotMember, "not_member", types.KindProtocol},
	{engine.ErrMatchEnded, "match_ended", types.KindProtocol},
	{engine.ErrUnsupportedCommand, "unknown_type", types.KindProtocol},
	{ErrUnknownType, "unknown_type", types.KindProtocol},
	{ErrLobbyFull, "lobby_full", types.KindCapacity},
	{ErrNotHost, "not_host", types.KindAuthority},
	{ErrStartPreconditionUnmet, "start_precondition_unmet", types.KindPrecondition},
	{ErrLobbyClosed, "lobby_closed", types.KindPrecondition},
	{ErrLobbyNotFound, "lobby_not_found", types.KindPrecondition},
	{ErrAlreadyCreated, "lobby_exists", types.KindPrecondition},
	{ErrMatchNotStarted, "match_not_started", types.KindPrecondition},
	{ErrBotsDisabled, "bots_disabled", types.KindPrecondition},
	{dictionary.ErrUnavailable, "unavailable", types.KindTransient},
}

// ErrorMessage turns err into the ERROR frame sent to the requester.
func ErrorMessage(err error) types.ServerMessage {
	for _, w := range wireErrors {
		if errors.Is(err, w.err) {
			return types.Error(w.code, w.kind, err.Error())
		}
	}
	return types.Error("internal", types.KindTransient, "internal error")
}
