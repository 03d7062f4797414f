package crdt

import "errors"

// Engine errors
var (
	// ErrIncompatibleHistory indicates that a history point or change-set is
	// not causally compatible with the document it was used against: the
	// point is not an ancestor of the document's head, or the change-set has
	// a gap relative to the edits the document has already seen.
	ErrIncompatibleHistory = errors.New("incompatible history")
)
