package store

import "sort"

// OrderChange is a single task whose order must be rewritten.
type OrderChange struct {
	ID    string
	Order int
}

// Reindex computes the dense 0..N-1 order that results from applying a
// caller-supplied ordering to the existing tasks. Ids in orderedIDs
// take their position's index; ids that match no existing task are
// silently ignored, as are repeat mentions. Tasks not mentioned keep
// their relative order among each other and follow the mentioned block
// contiguously. Only tasks whose order actually differs are returned,
// so backends never rewrite unchanged rows.
//
// Calling Reindex with an empty orderedIDs renumbers the current order
// densely without moving anything, which is also how backends repair
// gaps after a delete.
func Reindex(tasks []Task, orderedIDs []string) []OrderChange {
	current := make(map[string]int, len(tasks))
	for _, t := range tasks {
		current[t.ID] = t.Order
	}

	mentioned := make([]string, 0, len(orderedIDs))
	seen := make(map[string]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		if _, exists := current[id]; exists && !seen[id] {
			seen[id] = true
			mentioned = append(mentioned, id)
		}
	}

	rest := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if !seen[t.ID] {
			rest = append(rest, t)
		}
	}
	sort.SliceStable(rest, func(i, j int) bool { return rest[i].Order < rest[j].Order })

	changes := make([]OrderChange, 0)
	next := 0
	for _, id := range mentioned {
		if current[id] != next {
			changes = append(changes, OrderChange{ID: id, Order: next})
		}
		next++
	}
	for _, t := range rest {
		if t.Order != next {
			changes = append(changes, OrderChange{ID: t.ID, Order: next})
		}
		next++
	}
	return changes
}

// Placement says where Move reinserts the moved id relative to the
// reference id.
type Placement string

const (
	PlaceBefore Placement = "before"
	PlaceAfter  Placement = "after"
)

// Move computes the sequence that results from moving one id
// immediately before or after a reference id. The moved id is removed
// first, so the insertion index is relative to the shortened sequence,
// clamped to its bounds. If either id is absent the input sequence is
// returned unchanged (as a copy). Move has no side effects; callers
// persist its result through ReorderTasks.
func Move(ids []string, movedID, refID string, place Placement) []string {
	out := make([]string, 0, len(ids))
	movedAt := -1
	for i, id := range ids {
		if id == movedID {
			movedAt = i
			continue
		}
		out = append(out, id)
	}
	if movedAt < 0 {
		return append([]string(nil), ids...)
	}

	refAt := -1
	for i, id := range out {
		if id == refID {
			refAt = i
			break
		}
	}
	if refAt < 0 {
		return append([]string(nil), ids...)
	}

	at := refAt
	if place == PlaceAfter {
		at = refAt + 1
	}
	if at < 0 {
		at = 0
	}
	if at > len(out) {
		at = len(out)
	}

	out = append(out, "")
	copy(out[at+1:], out[at:])
	out[at] = movedID
	return out
}
