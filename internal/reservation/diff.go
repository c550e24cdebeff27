package reservation

import "sort"

// Class is the diff class of one equipment id across an event edit
type Class string

const (
	ClassKept    Class = "kept"
	ClassAdded   Class = "added"
	ClassRemoved Class = "removed"
)

// Diff splits the ids of two snapshots of one event.
// The three slices are sorted and pairwise disjoint, and together they hold
// exactly the union of both snapshots.
type Diff struct {
	Kept    []string
	Added   []string
	Removed []string
}

// DiffEquipment classifies previous and next. Blank and repeated ids are ignored.
// Creating an event passes a nil previous; deleting one passes a nil next.
func DiffEquipment(previous, next []string) Diff {
	prev := toSet(previous)
	nxt := toSet(next)

	d := Diff{Kept: []string{}, Added: []string{}, Removed: []string{}}
	for id := range prev {
		if _, ok := nxt[id]; ok {
			d.Kept = append(d.Kept, id)
		} else {
			d.Removed = append(d.Removed, id)
		}
	}
	for id := range nxt {
		if _, ok := prev[id]; !ok {
			d.Added = append(d.Added, id)
		}
	}
	sort.Strings(d.Kept)
	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	return d
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	return set
}

// Len is the number of distinct ids across both snapshots
func (d Diff) Len() int {
	return len(d.Kept) + len(d.Added) + len(d.Removed)
}

// Each calls fn for every id, removals first so released items are settled
// before new claims land.
func (d Diff) Each(fn func(id string, class Class)) {
	for _, id := range d.Removed {
		fn(id, ClassRemoved)
	}
	for _, id := range d.Kept {
		fn(id, ClassKept)
	}
	for _, id := range d.Added {
		fn(id, ClassAdded)
	}
}
