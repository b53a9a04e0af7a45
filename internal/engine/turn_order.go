package engine

// NextCursor is round-robin over the roster in slot order. wrapped is true
// when the turn returns to slot 0, which starts a new round.
func NextCursor(cursor, n int) (next int, wrapped bool) {
	if n <= 0 {
		return 0, false
	}
	next = (cursor + 1) % n
	return next, next == 0
}

func CurrentPlayer(s State) Player {
	if len(s.Roster) == 0 || s.Cursor < 0 || s.Cursor >= len(s.Roster) {
		return Player{}
	}
	return s.Roster[s.Cursor]
}
