package reptree

import (
	"sort"
	"sync"
)

// Range is an inclusive, closed counter interval [Lo, Hi] belonging to
// one peer's StateVector entry.
type Range struct {
	Lo uint64
	Hi uint64
}

// contains reports whether counter falls within the range.
func (r Range) contains(counter uint64) bool {
	return counter >= r.Lo && counter <= r.Hi
}

// MissingRange is one contiguous block of counters this replica has for
// a peer that another replica's StateVector does not (spec.md §4.3
// "diff").
type MissingRange struct {
	PeerID string
	Lo     uint64
	Hi     uint64
}

// StateVector stores, per peer, a minimal set of sorted, non-overlapping
// counter ranges representing exactly which counters from that peer
// have been applied (spec.md §2, §4.3).
//
// Each peer's range list plays the role the teacher's GCounter slot map
// played for a single monotonically-growing integer per peer — except a
// StateVector tracks the full set of applied counters, not just a
// running maximum, because causally-out-of-order delivery means "applied
// up to N" is not always true once N has been seen.
type StateVector struct {
	mu     sync.RWMutex
	ranges map[string][]Range
}

// NewStateVector returns an empty state vector.
func NewStateVector() *StateVector {
	return &StateVector{ranges: make(map[string][]Range)}
}

// Update records that counter has been applied for peerID, extending,
// merging with an adjacent range, or inserting a new singleton range as
// needed (spec.md §4.3).
func (sv *StateVector) Update(peerID string, counter uint64) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	sv.ranges[peerID] = insertCounter(sv.ranges[peerID], counter)
}

// insertCounter inserts counter into a sorted, disjoint, non-adjacent
// range list, merging with neighbors when the insertion closes a gap.
func insertCounter(rs []Range, counter uint64) []Range {
	i := sort.Search(len(rs), func(i int) bool { return rs[i].Lo > counter })
	// rs[i-1], if it exists, is the last range whose Lo <= counter.
	if i > 0 && rs[i-1].contains(counter) {
		return rs // already present
	}
	mergeLeft := i > 0 && rs[i-1].Hi+1 == counter
	mergeRight := i < len(rs) && rs[i].Lo == counter+1
	switch {
	case mergeLeft && mergeRight:
		rs[i-1].Hi = rs[i].Hi
		return append(rs[:i], rs[i+1:]...)
	case mergeLeft:
		rs[i-1].Hi = counter
		return rs
	case mergeRight:
		rs[i].Lo = counter
		return rs
	default:
		out := make([]Range, 0, len(rs)+1)
		out = append(out, rs[:i]...)
		out = append(out, Range{Lo: counter, Hi: counter})
		out = append(out, rs[i:]...)
		return out
	}
}

// retract removes counter from the range list. It is used only by
// Transact's abort path to undo an Update for a local op that is being
// discarded before any peer observed it (spec.md §5).
func (sv *StateVector) retract(peerID string, counter uint64) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	rs := sv.ranges[peerID]
	for i, r := range rs {
		if !r.contains(counter) {
			continue
		}
		switch {
		case r.Lo == r.Hi:
			rs = append(rs[:i], rs[i+1:]...)
		case counter == r.Lo:
			rs[i].Lo++
		case counter == r.Hi:
			rs[i].Hi--
		default:
			left := Range{Lo: r.Lo, Hi: counter - 1}
			right := Range{Lo: counter + 1, Hi: r.Hi}
			rs = append(rs[:i], append([]Range{left, right}, rs[i+1:]...)...)
		}
		break
	}
	sv.ranges[peerID] = rs
}

// Contains reports whether id has been applied (spec.md §3 invariant 3,
// §8 "State-vector tightness").
func (sv *StateVector) Contains(id OpID) bool {
	sv.mu.RLock()
	defer sv.mu.RUnlock()
	rs := sv.ranges[id.PeerID]
	i := sort.Search(len(rs), func(i int) bool { return rs[i].Hi >= id.Counter })
	return i < len(rs) && rs[i].contains(id.Counter)
}

// Diff returns, for each peer, the ranges present in sv but absent from
// other — the minimal description of what sv has that other lacks
// (spec.md §4.3). The result is sorted by PeerID then Lo.
func (sv *StateVector) Diff(other *StateVector) []MissingRange {
	sv.mu.RLock()
	defer sv.mu.RUnlock()
	other.mu.RLock()
	defer other.mu.RUnlock()

	peers := make([]string, 0, len(sv.ranges))
	for p := range sv.ranges {
		peers = append(peers, p)
	}
	sort.Strings(peers)

	var out []MissingRange
	for _, peer := range peers {
		out = append(out, diffPeerRanges(peer, sv.ranges[peer], other.ranges[peer])...)
	}
	return out
}

// diffPeerRanges computes mine - theirs for one peer's range lists via a
// linear sweep over both sorted lists (spec.md §4.3).
func diffPeerRanges(peer string, mine, theirs []Range) []MissingRange {
	var out []MissingRange
	j := 0
	for _, m := range mine {
		lo := m.Lo
		for lo <= m.Hi {
			for j < len(theirs) && theirs[j].Hi < lo {
				j++
			}
			if j >= len(theirs) || theirs[j].Lo > m.Hi {
				out = append(out, MissingRange{PeerID: peer, Lo: lo, Hi: m.Hi})
				break
			}
			if theirs[j].Lo > lo {
				out = append(out, MissingRange{PeerID: peer, Lo: lo, Hi: theirs[j].Lo - 1})
			}
			if theirs[j].Hi >= m.Hi {
				lo = m.Hi + 1
				break
			}
			lo = theirs[j].Hi + 1
		}
	}
	return out
}

// Clone returns a deep copy of sv.
func (sv *StateVector) Clone() *StateVector {
	sv.mu.RLock()
	defer sv.mu.RUnlock()
	out := NewStateVector()
	for peer, rs := range sv.ranges {
		cp := make([]Range, len(rs))
		copy(cp, rs)
		out.ranges[peer] = cp
	}
	return out
}

// Encode renders sv as {peerID: [[lo,hi], ...]} per spec.md §6.
func (sv *StateVector) Encode() map[string][][2]uint64 {
	sv.mu.RLock()
	defer sv.mu.RUnlock()
	out := make(map[string][][2]uint64, len(sv.ranges))
	for peer, rs := range sv.ranges {
		enc := make([][2]uint64, len(rs))
		for i, r := range rs {
			enc[i] = [2]uint64{r.Lo, r.Hi}
		}
		out[peer] = enc
	}
	return out
}

// DecodeStateVector parses the wire form produced by Encode.
func DecodeStateVector(enc map[string][][2]uint64) *StateVector {
	sv := NewStateVector()
	for peer, rs := range enc {
		cp := make([]Range, len(rs))
		for i, r := range rs {
			cp[i] = Range{Lo: r[0], Hi: r[1]}
		}
		sv.ranges[peer] = cp
	}
	return sv
}
