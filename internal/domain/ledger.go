package domain

// Ledger is an ordered, append-only history of one record kind. It has value
// semantics: Append returns a new ledger and never mutates the receiver's
// backing storage as seen by earlier copies, so a loaded aggregate can be
// validated and extended without touching the authoritative state.
type Ledger[T any] struct {
	entries []T
}

// LedgerOf builds a ledger from entries already in append order.
func LedgerOf[T any](entries []T) Ledger[T] {
	return Ledger[T]{entries: entries}
}

// Append returns a new ledger with entry as its last element.
func (l Ledger[T]) Append(entry T) Ledger[T] {
	next := make([]T, len(l.entries), len(l.entries)+1)
	copy(next, l.entries)
	return Ledger[T]{entries: append(next, entry)}
}

// Latest returns the last-appended entry.
func (l Ledger[T]) Latest() (T, bool) {
	if len(l.entries) == 0 {
		var zero T
		return zero, false
	}
	return l.entries[len(l.entries)-1], true
}

// All returns the entries in append order. The slice is a copy; iterating it
// repeatedly has no side effects on the ledger.
func (l Ledger[T]) All() []T {
	out := make([]T, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l Ledger[T]) Len() int {
	return len(l.entries)
}
