package grid

// Selector reduces tile gestures into a Path. It owns only the local
// player's in-progress selection and does no I/O.
type Selector struct {
	size    int
	path    Path
	active  bool
	version uint64
}

// NewSelector bounds points to a size x size grid; size <= 0 disables the bound.
func NewSelector(size int) *Selector {
	return &Selector{size: size}
}

func (s *Selector) inBounds(p Point) bool {
	if s.size <= 0 {
		return true
	}
	return p.X >= 0 && p.Y >= 0 && p.X < s.size && p.Y < s.size
}

// Start resets the path to [p] and activates selection.
func (s *Selector) Start(p Point) bool {
	if !s.inBounds(p) {
		return false
	}
	s.path = Path{p}
	s.active = true
	s.version++
	return true
}

// Extend applies one gesture step and reports whether the path changed.
//
// The penultimate point is a backtrack and drops the last tile. Any other
// point already in the path, or one not adjacent to the last tile, is ignored.
func (s *Selector) Extend(p Point) bool {
	if !s.active || len(s.path) == 0 || !s.inBounds(p) {
		return false
	}
	if n := len(s.path); n >= 2 && s.path[n-2] == p {
		s.path = s.path[:n-1]
		s.version++
		return true
	}
	if s.path.Contains(p) {
		return false
	}
	last, _ := s.path.Last()
	if !Adjacent(last, p) {
		return false
	}
	s.path = append(s.path, p)
	s.version++
	return true
}

// End deactivates selection and returns the final path. The path is kept;
// callers Reset it when they are done with it.
func (s *Selector) End() Path {
	s.active = false
	return s.path.Clone()
}

func (s *Selector) Reset() {
	s.path = nil
	s.active = false
	s.version++
}

func (s *Selector) Path() Path { return s.path.Clone() }

func (s *Selector) Active() bool { return s.active }

// Version changes on every mutation; async results computed for an older
// version are stale.
func (s *Selector) Version() uint64 { return s.version }
