package engine

import (
	"maps"
	"slices"

	"github.com/DoyleJ11/wordhex-backend/internal/grid"
)

func NewState(roster []Player, rules Rules) State {
	s := State{
		Phase:  PhaseActive,
		Roster: slices.Clone(roster),
		Cursor: 0,
		Round:  1,
		Scores: make(map[string]int, len(roster)),
		Paths:  map[string]grid.Path{},
		Rules:  rules,
	}
	for _, p := range roster {
		s.Scores[p.ID] = 0
	}
	return s
}

func (s State) Clone() State {
	c := s
	c.Roster = slices.Clone(s.Roster)
	c.Scores = maps.Clone(s.Scores)
	c.Paths = make(map[string]grid.Path, len(s.Paths))
	for id, p := range s.Paths {
		c.Paths[id] = p.Clone()
	}
	return c
}

func InRoster(s State, id string) bool {
	return slices.ContainsFunc(s.Roster, func(p Player) bool { return p.ID == id })
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// Leaders returns every player sharing the top score, in roster order.
func Leaders(s State) []string {
	best := -1
	var out []string
	for _, p := range s.Roster {
		switch sc := s.Scores[p.ID]; {
		case sc > best:
			best = sc
			out = []string{p.ID}
		case sc == best:
			out = append(out, p.ID)
		}
	}
	return out
}
