package crdt

// Point marks a moment in a document's edit history. It is a version vector
// mapping actor id to the highest sequence number observed from that actor.
// Points are opaque to callers; they are obtained from Head or Update and
// passed back to ChangesSince and TouchedSince.
type Point map[string]int64

// Clone returns an independent copy of the point.
func (p Point) Clone() Point {
	c := make(Point, len(p))
	for actor, seq := range p {
		c[actor] = seq
	}
	return c
}

// AncestorOf reports whether p is causally reachable from other, i.e. every
// edit known at p is also known at other.
func (p Point) AncestorOf(other Point) bool {
	for actor, seq := range p {
		if seq > other[actor] {
			return false
		}
	}
	return true
}
