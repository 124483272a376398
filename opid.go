package reptree

import (
	"fmt"
	"sync"
)

// safeCounterLimit is the largest counter value this implementation
// accepts, matching the 53-bit "JSON safe integer" ceiling spec.md §4.6
// requires encoders and decoders to respect.
const safeCounterLimit = uint64(1)<<53 - 1

// OpID totally orders every operation in the system. Comparison is
// lexicographic: Counter first, PeerID as tiebreaker (spec.md §2, §3).
//
// OpID is the generalization of the teacher's RGA node ID (a Lamport
// timestamp paired with an origin node) from a single replicated
// sequence to every operation the engine ever applies.
type OpID struct {
	Counter uint64
	PeerID  string
}

// Less reports whether id sorts strictly before other.
func (id OpID) Less(other OpID) bool {
	if id.Counter != other.Counter {
		return id.Counter < other.Counter
	}
	return id.PeerID < other.PeerID
}

// Greater reports whether id sorts strictly after other.
func (id OpID) Greater(other OpID) bool {
	return other.Less(id)
}

// Equal reports whether id and other identify the same operation.
func (id OpID) Equal(other OpID) bool {
	return id.Counter == other.Counter && id.PeerID == other.PeerID
}

// IsZero reports whether id is the zero value (never a valid OpID for
// an applied operation).
func (id OpID) IsZero() bool {
	return id.Counter == 0 && id.PeerID == ""
}

// String renders id as "counter@peerID" for logging.
func (id OpID) String() string {
	return fmt.Sprintf("%d@%s", id.Counter, id.PeerID)
}

// validateOpID rejects a malformed or out-of-range OpID. A zero PeerID
// is malformed; a Counter above safeCounterLimit would silently lose
// precision on any JSON round-trip, so it is rejected up front instead
// (spec.md §4.6, §7).
func validateOpID(id OpID) error {
	if id.PeerID == "" {
		return NewValidationError("OpID.PeerID", id.PeerID, fmt.Errorf("peer id must not be empty"))
	}
	if id.Counter > safeCounterLimit {
		return NewValidationError("OpID.Counter", id.Counter, ErrCounterOverflow)
	}
	return nil
}

// LamportClock is a per-replica logical clock. It is bumped on every
// locally originated op and fast-forwarded on receipt of any remote op
// with a larger counter (spec.md §2).
type LamportClock struct {
	mu      sync.Mutex
	counter uint64
}

// NewLamportClock returns a clock starting at zero.
func NewLamportClock() *LamportClock {
	return &LamportClock{}
}

// Next increments the clock and returns the new counter value, for use
// as the Counter of a freshly issued local op.
func (c *LamportClock) Next() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counter++
	return c.counter
}

// Observe fast-forwards the clock to max(current, counter), the update
// rule applied on receipt of any op (local or remote) per spec.md §2
// step "clock update".
func (c *LamportClock) Observe(counter uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if counter > c.counter {
		c.counter = counter
	}
}

// Current returns the clock's present value.
func (c *LamportClock) Current() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counter
}

// rewind is used only by Transact's abort path to undo a Next() call
// for an op that is being discarded before any peer could have observed
// it (transactions are local-only, spec.md §5).
func (c *LamportClock) rewind(to uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if to < c.counter {
		c.counter = to
	}
}
