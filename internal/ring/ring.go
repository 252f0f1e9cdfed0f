// Package ring implements the scrollback ring: a fixed-capacity line
// history with a partial-line carry, shared by every live session.
package ring

import "strings"

// DefaultCapacity is the number of completed lines kept per session when no
// override is configured (persistence.scrollbackLines).
const DefaultCapacity = 10000

// Ring is a circular buffer of completed terminal lines plus the trailing
// unterminated segment of the most recent write. It is not safe for
// concurrent use; callers serialize access under the session's lock.
type Ring struct {
	capacity int
	lines    []string
	head     int // index of the oldest line
	size     int // number of valid lines in the buffer
	carry    []byte
}

// New returns a Ring with room for capacity completed lines. capacity <= 0
// falls back to DefaultCapacity.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{
		capacity: capacity,
		lines:    make([]string, capacity),
	}
}

// Append splits data on CR?LF terminators — a bare LF or a CR immediately
// followed by LF — pushing every completed line into the ring and keeping
// the trailing unterminated bytes as the carry for the next call. A bare CR
// not followed by LF (the in-place-redraw idiom used by progress bars and
// readline prompt redraws) is not a terminator and is left in the carry.
// The carry is kept as a byte slice (not a string) so multibyte UTF-8
// sequences split across PTY reads survive intact.
func (r *Ring) Append(data []byte) {
	if len(data) == 0 {
		return
	}
	buf := append(r.carry, data...)
	r.carry = nil

	start := 0
	for i := 0; i < len(buf); i++ {
		if buf[i] != '\n' {
			continue
		}
		end := i
		if end > start && buf[end-1] == '\r' {
			end--
		}
		r.push(string(buf[start:end]))
		start = i + 1
	}
	if start < len(buf) {
		r.carry = append([]byte(nil), buf[start:]...)
	}
}

func (r *Ring) push(line string) {
	idx := (r.head + r.size) % r.capacity
	r.lines[idx] = line
	if r.size < r.capacity {
		r.size++
	} else {
		r.head = (r.head + 1) % r.capacity
	}
}

// ReadAll returns every completed line, oldest to newest, followed by the
// carry (as its own element) if it is non-empty.
func (r *Ring) ReadAll() []string {
	out := make([]string, 0, r.size+1)
	for i := 0; i < r.size; i++ {
		out = append(out, r.lines[(r.head+i)%r.capacity])
	}
	if len(r.carry) > 0 {
		out = append(out, string(r.carry))
	}
	return out
}

// ReadRecent returns the last k elements of the sequence ReadAll would
// produce (completed lines plus carry).
func (r *Ring) ReadRecent(k int) []string {
	all := r.ReadAll()
	if k <= 0 || k >= len(all) {
		return all
	}
	return all[len(all)-k:]
}

// Joined returns ReadAll joined with LF, the format used for the
// session.attached scrollback payload.
func (r *Ring) Joined() string {
	return strings.Join(r.ReadAll(), "\n")
}

// Clear resets the ring to empty, dropping all lines and the carry.
func (r *Ring) Clear() {
	r.head = 0
	r.size = 0
	r.carry = nil
}

// Len returns the number of completed lines currently stored (excludes the
// carry).
func (r *Ring) Len() int {
	return r.size
}
