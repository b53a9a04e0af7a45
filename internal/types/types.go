package types

import "github.com/DoyleJ11/wordhex-backend/internal/grid"

type MsgType string

// Client -> Session
const (
	MsgJoin      MsgType = "JOIN"
	MsgCreate    MsgType = "CREATE"
	MsgJoinLobby MsgType = "JOINLOBBY"
	MsgReady     MsgType = "READY"
	MsgStart     MsgType = "START"
	MsgPath      MsgType = "PATH"
	MsgSubmit    MsgType = "SUBMIT"
	MsgEndTurn   MsgType = "ENDTURN"
	MsgLeave     MsgType = "LEAVE"
	MsgAddBot    MsgType = "ADDBOT"
)

// Session -> Client
const (
	MsgWelcome     MsgType = "WELCOME"
	MsgCreated     MsgType = "CREATED"
	MsgJoined      MsgType = "JOINED"
	MsgReadyUpdate MsgType = "READYUPDATE"
	MsgLobbyState  MsgType = "LOBBY_STATE"
	MsgBoard       MsgType = "BOARD"
	MsgTurn        MsgType = "TURN"
	MsgOppPath     MsgType = "OPPPATH"
	MsgOppSubmit   MsgType = "OPPSUBMIT"
	MsgAccepted    MsgType = "ACCEPTED"
	MsgRound       MsgType = "ROUND"
	MsgMatchState  MsgType = "MATCH_STATE"
	MsgMatchEnd    MsgType = "MATCHEND"
	MsgError       MsgType = "ERROR"
)

type ClientMessage struct {
	Type     MsgType   `json:"type"`
	PlayerID string    `json:"playerId,omitempty"`
	Name     string    `json:"name,omitempty"`
	Code     string    `json:"code,omitempty"`
	Ready    bool      `json:"ready,omitempty"`
	Path     grid.Path `json:"path,omitempty"`
	Word     string    `json:"word,omitempty"`
	Score    int       `json:"score,omitempty"` // advisory; the session recomputes it
}

// PlayerView is one lobby slot or roster entry. Lobby snapshots carry four
// entries with null for an empty slot.
type PlayerView struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Host      bool   `json:"host,omitempty"`
	Ready     bool   `json:"ready"`
	Score     int    `json:"score"`
	Connected bool   `json:"connected"`
	Bot       bool   `json:"bot,omitempty"`
}

type ServerMessage struct {
	Type     MsgType        `json:"type"`
	Version  int            `json:"version,omitempty"`
	PlayerID string         `json:"playerId,omitempty"`
	Code     string         `json:"code,omitempty"`
	State    string         `json:"state,omitempty"`
	Players  []*PlayerView  `json:"players,omitempty"`
	Ready    []bool         `json:"ready,omitempty"`
	Board    [][]string     `json:"board,omitempty"`
	Round    int            `json:"round,omitempty"`
	Turn     string         `json:"turn,omitempty"`
	Path     grid.Path      `json:"path,omitempty"`
	Word     string         `json:"word,omitempty"`
	Score    int            `json:"score,omitempty"`
	Scores   map[string]int `json:"scores,omitempty"`
	Winners  []string       `json:"winners,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Error    *ErrorBody     `json:"error,omitempty"`
}

// Kind groups error codes by how a client should react.
type Kind string

const (
	KindProtocol     Kind = "protocol"
	KindCapacity     Kind = "capacity"
	KindAuthority    Kind = "authority"
	KindPrecondition Kind = "precondition"
	KindTransient    Kind = "transient"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func Error(code string, kind Kind, message string) ServerMessage {
	return ServerMessage{Type: MsgError, Error: &ErrorBody{Code: code, Kind: kind, Message: message}}
}
