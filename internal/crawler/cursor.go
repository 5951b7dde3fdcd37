package crawler

// Cursor is the position of the next work unit in the row-major walk over
// conferences x authors. After the last unit it rests at
// (Conferences-1, Authors), where Done reports true.
type Cursor struct {
	Conference  int `json:"conference_index"`
	Author      int `json:"author_index"`
	Conferences int `json:"conferences"`
	Authors     int `json:"authors"`
}

// NewCursor returns a cursor at the first unit of a conferences x authors grid.
func NewCursor(conferences, authors int) Cursor {
	return Cursor{Conferences: conferences, Authors: authors}
}

// Total is the number of work units in the grid.
func (c Cursor) Total() int {
	return c.Conferences * c.Authors
}

// Step is the number of units completed before the cursor position.
func (c Cursor) Step() int {
	if c.Done() {
		return c.Total()
	}
	return c.Conference*c.Authors + c.Author
}

// Done reports whether every unit has been processed.
func (c Cursor) Done() bool {
	if c.Conferences <= 0 || c.Authors <= 0 {
		return true
	}
	if c.Conference >= c.Conferences {
		return true
	}
	return c.Conference == c.Conferences-1 && c.Author >= c.Authors
}

// Advance returns the cursor for the unit after the current one. The author
// index wraps to zero when a conference row is finished, except on the last
// row where it stays at Authors to mark exhaustion.
func (c Cursor) Advance() Cursor {
	if c.Done() {
		return c
	}
	next := c
	next.Author++
	if next.Author >= next.Authors && next.Conference < next.Conferences-1 {
		next.Author = 0
		next.Conference++
	}
	return next
}
