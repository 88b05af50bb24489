package http2

import "sort"

// Streams is the per-connection stream table: a by-id index for
// lookup/removal, plus a priority-ordered view the write scheduler
// consumes. The priority view is rebuilt lazily (marked dirty by any
// priority change and re-sorted on the next NextWritable call, rather
// than kept continuously sorted), since priority churn is common but
// dequeues are comparatively rare.
type Streams struct {
	byID  []*Stream // sorted ascending by id
	order []*Stream // priority view, valid iff !dirty
	dirty bool
}

func (strms *Streams) find(id uint32) int {
	return sort.Search(len(strms.byID), func(i int) bool {
		return strms.byID[i].id >= id
	})
}

// Insert adds s to the table. s must not already be present.
func (strms *Streams) Insert(s *Stream) {
	i := strms.find(s.id)
	strms.byID = append(strms.byID, nil)
	copy(strms.byID[i+1:], strms.byID[i:])
	strms.byID[i] = s
	strms.dirty = true
}

// Del removes and returns the stream with the given id, or nil.
func (strms *Streams) Del(id uint32) *Stream {
	i := strms.find(id)
	if i >= len(strms.byID) || strms.byID[i].id != id {
		return nil
	}
	s := strms.byID[i]
	strms.byID = append(strms.byID[:i], strms.byID[i+1:]...)
	strms.dirty = true
	return s
}

// Get returns the stream with the given id, or nil.
func (strms *Streams) Get(id uint32) *Stream {
	i := strms.find(id)
	if i < len(strms.byID) && strms.byID[i].id == id {
		return strms.byID[i]
	}
	return nil
}

// Len returns the number of streams currently tracked (any state).
func (strms *Streams) Len() int { return len(strms.byID) }

// Active returns the number of streams not yet Closed, the count
// MAX_CONCURRENT_STREAMS bounds.
func (strms *Streams) Active() int {
	n := 0
	for _, s := range strms.byID {
		if s.state != StreamStateClosed {
			n++
		}
	}
	return n
}

// Range calls fn for every stream in id order, stopping early if fn
// returns false.
func (strms *Streams) Range(fn func(*Stream) bool) {
	for _, s := range strms.byID {
		if !fn(s) {
			return
		}
	}
}

// TouchPriority marks the priority view stale. Call after any
// SetPriority.
func (strms *Streams) TouchPriority() { strms.dirty = true }

// WouldCycle reports whether making child depend on newParent would
// create a cycle in the dependency DAG rooted at stream 0, by walking
// newParent's ancestor chain looking for child's id.
func (strms *Streams) WouldCycle(child, newParent uint32) bool {
	if newParent == 0 || child == newParent {
		return child == newParent && child != 0
	}

	seen := make(map[uint32]bool, 8)
	cur := newParent
	for cur != 0 {
		if cur == child {
			return true
		}
		if seen[cur] {
			// an existing cycle elsewhere in the tree; don't extend it.
			return true
		}
		seen[cur] = true

		parent := strms.Get(cur)
		if parent == nil {
			break
		}
		cur = parent.dependency
	}
	return false
}

// priorityLess implements the write-scheduler ordering key
// (dependency, 256−weight, !exclusive, stream_id), ascending.
func priorityLess(a, b *Stream) bool {
	if a.dependency != b.dependency {
		return a.dependency < b.dependency
	}
	aw, bw := 256-int(a.weight), 256-int(b.weight)
	if aw != bw {
		return aw < bw
	}
	if a.exclusive != b.exclusive {
		return a.exclusive // exclusive(true) sorts before non-exclusive
	}
	return a.id < b.id
}

func (strms *Streams) rebuild() {
	strms.order = append(strms.order[:0], strms.byID...)
	sort.Slice(strms.order, func(i, j int) bool {
		return priorityLess(strms.order[i], strms.order[j])
	})
	strms.dirty = false
}

// NextWritable returns the highest-priority stream with a pending
// write and positive send window, or nil if none qualifies.
func (strms *Streams) NextWritable() *Stream {
	if strms.dirty {
		strms.rebuild()
	}
	for _, s := range strms.order {
		if s.Writable() {
			return s
		}
	}
	return nil
}
