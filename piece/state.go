package piece

import "sync"

// Status is a piece's place in the download lifecycle (spec.md §4.6).
type Status int

const (
	Missing Status = iota
	InFlight
	Have
)

// Work describes one piece to be downloaded.
type Work struct {
	Index  int
	Hash   [20]byte
	Length int64
}

// Table tracks the Status of every piece under a single mutex. Selection
// methods hold the lock only for the O(pieces) scan they need and release
// it before any blocking I/O, so a slow peer never stalls piece selection
// for the others (spec.md §6 concurrency invariant).
type Table struct {
	mu     sync.Mutex
	status []Status
	work   []Work
}

// NewTable builds a Table with every piece initially Missing.
func NewTable(work []Work) *Table {
	return &Table{
		status: make([]Status, len(work)),
		work:   work,
	}
}

// Len returns the total number of pieces.
func (t *Table) Len() int {
	return len(t.work)
}

// NextMissing scans for a piece that is Missing and has(index) returns
// true, marks it InFlight, and returns it. The second return is false if no
// such piece exists right now.
func (t *Table) NextMissing(has func(index int) bool) (Work, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, st := range t.status {
		if st == Missing && has(i) {
			t.status[i] = InFlight
			return t.work[i], true
		}
	}
	return Work{}, false
}

// Release returns an InFlight piece to Missing, e.g. after a peer
// disconnects mid-download or fails verification.
func (t *Table) Release(index int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status[index] == InFlight {
		t.status[index] = Missing
	}
}

// MarkHave records a successfully verified piece.
func (t *Table) MarkHave(index int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status[index] = Have
}

// Done reports whether every piece has been verified.
func (t *Table) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, st := range t.status {
		if st != Have {
			return false
		}
	}
	return true
}

// CountHave returns the number of verified pieces, used for progress
// reporting and the tracker's "left" announce parameter.
func (t *Table) CountHave() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, st := range t.status {
		if st == Have {
			n++
		}
	}
	return n
}
