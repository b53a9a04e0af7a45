package lobby

import (
	"errors"
)

var ErrLobbyFull = errors.New("lobby is full")
var ErrLobbyNotFound = errors.New("lobby not found")
var ErrLobbyClosed = errors.New("lobby is closed")
var ErrNotHost = errors.New("only the host can start the match")
var ErrStartPreconditionUnmet = errors.New("need the host ready and at least 2 players")
var ErrNotMember = errors.New("not a member of this lobby")
var ErrAlreadyCreated = errors.New("lobby already created")

// Capacity is the number of seats; seat 0 is the host.
const Capacity = 4

// MinPlayers is the smallest roster that can start a match.
const MinPlayers = 2

type State string

const (
	StateEmpty  State = "empty"
	StateOpen   State = "open"
	StateLocked State = "locked"
)

type Seat struct {
	PlayerID string
	Name     string
	Ready    bool
}

// Coordinator is the pre-match state machine: EMPTY -> OPEN -> LOCKED.
// Like engine.Session it is owned by one lobby actor and never shared.
type Coordinator struct {
	code  string
	state State
	seats [Capacity]*Seat
}

func NewCoordinator() *Coordinator {
	return &Coordinator{state: StateEmpty}
}

// Create opens the lobby under code with host in seat 0, not ready.
func (c *Coordinator) Create(code string, host Seat) error {
	if c.state != StateEmpty {
		return ErrAlreadyCreated
	}
	host.Ready = false
	c.code = code
	c.seats[0] = &host
	c.state = StateOpen
	return nil
}

// Restore rebuilds an open lobby from its durable record, seats in order.
func (c *Coordinator) Restore(code string, seats []Seat) error {
	if c.state != StateEmpty {
		return ErrAlreadyCreated
	}
	if len(seats) == 0 {
		return ErrLobbyNotFound
	}
	if len(seats) > Capacity {
		return ErrLobbyFull
	}
	c.code = code
	for i := range seats {
		s := seats[i]
		c.seats[i] = &s
	}
	c.state = StateOpen
	return nil
}

// Join seats p in the first free seat. Joining again with a present id
// returns the existing seat.
func (c *Coordinator) Join(p Seat) (int, error) {
	switch c.state {
	case StateEmpty:
		return -1, ErrLobbyNotFound
	case StateLocked:
		return -1, ErrLobbyClosed
	}
	if i := c.SeatOf(p.PlayerID); i >= 0 {
		return i, nil
	}
	for i, s := range c.seats {
		if s == nil {
			p.Ready = false
			c.seats[i] = &p
			return i, nil
		}
	}
	return -1, ErrLobbyFull
}

// AddBot seats a computer player, always ready. Only the host may add one.
func (c *Coordinator) AddBot(requester string, b Seat) (int, error) {
	if c.state != StateOpen {
		return -1, ErrLobbyClosed
	}
	if c.HostID() != requester {
		return -1, ErrNotHost
	}
	for i, s := range c.seats {
		if s == nil {
			b.Ready = true
			c.seats[i] = &b
			return i, nil
		}
	}
	return -1, ErrLobbyFull
}

// SetReady flips the caller's own flag; there is no way to set another seat's.
func (c *Coordinator) SetReady(playerID string, ready bool) error {
	if c.state != StateOpen {
		return ErrLobbyClosed
	}
	i := c.SeatOf(playerID)
	if i < 0 {
		return ErrNotMember
	}
	c.seats[i].Ready = ready
	return nil
}

// Start seals the lobby and returns the roster in seat order.
func (c *Coordinator) Start(requester string) ([]Seat, error) {
	if c.state != StateOpen {
		return nil, ErrLobbyClosed
	}
	host := c.seats[0]
	if host == nil || host.PlayerID != requester {
		return nil, ErrNotHost
	}
	if !host.Ready || c.Count() < MinPlayers {
		return nil, ErrStartPreconditionUnmet
	}
	c.state = StateLocked
	return c.roster(), nil
}

// Leave vacates a seat while the lobby is open. Remaining occupants move up,
// so the first of them becomes host. The last one out empties the lobby.
func (c *Coordinator) Leave(playerID string) error {
	if c.state != StateOpen {
		return ErrLobbyClosed
	}
	i := c.SeatOf(playerID)
	if i < 0 {
		return ErrNotMember
	}
	var kept [Capacity]*Seat
	n := 0
	for j, s := range c.seats {
		if s != nil && j != i {
			kept[n] = s
			n++
		}
	}
	c.seats = kept
	if n == 0 {
		c.state = StateEmpty
	}
	return nil
}

func (c *Coordinator) SeatOf(playerID string) int {
	for i, s := range c.seats {
		if s != nil && s.PlayerID == playerID {
			return i
		}
	}
	return -1
}

func (c *Coordinator) Count() int {
	n := 0
	for _, s := range c.seats {
		if s != nil {
			n++
		}
	}
	return n
}

func (c *Coordinator) Code() string { return c.code }
func (c *Coordinator) State() State { return c.state }
func (c *Coordinator) HostID() string {
	if c.seats[0] == nil {
		return ""
	}
	return c.seats[0].PlayerID
}

// Seats returns copies; empty seats are nil.
func (c *Coordinator) Seats() [Capacity]*Seat {
	var out [Capacity]*Seat
	for i, s := range c.seats {
		if s != nil {
			cp := *s
			out[i] = &cp
		}
	}
	return out
}

func (c *Coordinator) roster() []Seat {
	var out []Seat
	for _, s := range c.seats {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}
