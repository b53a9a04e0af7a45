// Package store persists lobby records: who sits where, ready flags, and
// whether the lobby is still open. Match state is never persisted.
package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("lobby record not found")
var ErrCodeTaken = errors.New("lobby code already taken")
var ErrNotMember = errors.New("player is not an active member")

type Role string

const (
	RoleHost   Role = "host"
	RoleMember Role = "member"
)

type Member struct {
	PlayerID string
	Name     string
	Slot     int
	Ready    bool
	Role     Role
	JoinedAt time.Time
}

type Record struct {
	Code      string
	HostID    string
	Open      bool
	StartedAt *time.Time
	CreatedAt time.Time
	Members   []Member // active members, by slot
}

// LobbyStore is the durable lobby record. Implementations must be safe for
// concurrent use; every lobby actor writes through the same store.
type LobbyStore interface {
	Create(ctx context.Context, code string, host Member) error
	// Join adds or reactivates a member.
	Join(ctx context.Context, code string, m Member) error
	SetReady(ctx context.Context, code, playerID string, ready bool) error
	// Leave deactivates a member and renumbers the remaining slots from 0;
	// slot 0 becomes host.
	Leave(ctx context.Context, code, playerID string) error
	Start(ctx context.Context, code string, at time.Time) error
	GetByCode(ctx context.Context, code string) (*Record, error)
	Close() error
}
