package todomodel

import "github.com/todoplug/hostrt/internal/abi"

// Insert adds a new, already-constructed todo to the aggregate, appending
// it to creation order. Callers (the executor) are responsible for
// assigning IDs and timestamps before calling Insert.
func (a *Aggregate) Insert(t *abi.Todo) {
	a.items[t.ID] = t
	a.order = append(a.order, t.ID)
}

// SoftDelete sets id's delete timestamp without removing it from storage.
// Returns false if id does not exist.
func (a *Aggregate) SoftDelete(id string, at int64) bool {
	if _, ok := a.items[id]; !ok {
		return false
	}
	a.deletedAt[id] = at
	return true
}

// Exists reports whether id is present in the aggregate, regardless of its
// soft-delete state. Used by the executor and temp-id resolution to
// validate targets before mutating.
func (a *Aggregate) Exists(id string) bool {
	_, ok := a.items[id]
	return ok
}
