// Package queue provides the time-ordered task queue used by the scheduler.
// It is not thread-safe, callers must guard it with their own lock.
package queue

import (
	"time"

	"github.com/huandu/skiplist"
	"github.com/segmentio/ksuid"
)

// key orders entries by due time, then by push sequence.
type key struct {
	Due time.Time
	Seq uint64
}

func compareKeys(a, b interface{}) int {
	k1, k2 := a.(key), b.(key)
	switch {
	case k1.Due.Before(k2.Due):
		return -1
	case k1.Due.After(k2.Due):
		return 1
	case k1.Seq < k2.Seq:
		return -1
	case k1.Seq > k2.Seq:
		return 1
	}
	return 0
}

// Entry is a queued value together with its reference and due time.
type Entry[T any] struct {
	Ref   ksuid.KSUID
	Due   time.Time
	Value T
}

// Queue is a min-priority queue keyed by due time.
// Entries with equal due times are kept in push order.
type Queue[T any] struct {
	l    *skiplist.SkipList
	refs map[ksuid.KSUID]key
	seq  uint64
}

func New[T any]() *Queue[T] {
	return &Queue[T]{
		l:    skiplist.New(skiplist.GreaterThanFunc(compareKeys)),
		refs: make(map[ksuid.KSUID]key),
	}
}

// Push inserts v due at the given time and reports whether
// it became the new front of the queue.
// Pushing a ref that's already queued replaces the previous entry.
func (q *Queue[T]) Push(ref ksuid.KSUID, due time.Time, v T) (atFront bool) {
	if k, ok := q.refs[ref]; ok {
		q.l.Remove(k)
	}
	q.seq++
	k := key{Due: due, Seq: q.seq}
	q.refs[ref] = k
	e := q.l.Set(k, Entry[T]{Ref: ref, Due: due, Value: v})
	return e.Prev() == nil
}

// Front returns the earliest entry without removing it.
func (q *Queue[T]) Front() (Entry[T], bool) {
	if e := q.l.Front(); e != nil {
		return e.Value.(Entry[T]), true
	}
	return Entry[T]{}, false
}

// Pop removes and returns the earliest entry.
func (q *Queue[T]) Pop() (Entry[T], bool) {
	e := q.l.Front()
	if e == nil {
		return Entry[T]{}, false
	}
	q.l.Remove(e.Key())
	v := e.Value.(Entry[T])
	delete(q.refs, v.Ref)
	return v, true
}

// RemoveFunc rebuilds the queue without the entries for which fn
// returns true and returns the number of removed entries.
// Relative order of the remaining entries is preserved.
func (q *Queue[T]) RemoveFunc(fn func(Entry[T]) bool) (removed int) {
	rebuilt := skiplist.New(skiplist.GreaterThanFunc(compareKeys))
	for e := q.l.Front(); e != nil; e = e.Next() {
		v := e.Value.(Entry[T])
		if fn(v) {
			delete(q.refs, v.Ref)
			removed++
			continue
		}
		rebuilt.Set(e.Key(), v)
	}
	q.l = rebuilt
	return removed
}

// Has returns true if ref is queued.
func (q *Queue[T]) Has(ref ksuid.KSUID) bool {
	_, ok := q.refs[ref]
	return ok
}

func (q *Queue[T]) Len() int {
	return q.l.Len()
}

// Clear drops all entries and returns how many were dropped.
func (q *Queue[T]) Clear() (dropped int) {
	dropped = q.l.Len()
	q.l = skiplist.New(skiplist.GreaterThanFunc(compareKeys))
	q.refs = make(map[ksuid.KSUID]key)
	return dropped
}

// Scan calls fn for each entry after the given one in fire order
// until either the end of the queue is reached or fn returns false.
// Starts from the front of the queue if after is zero.
// Returns false if after isn't queued, otherwise returns true.
func (q *Queue[T]) Scan(
	after ksuid.KSUID,
	fn func(Entry[T]) bool,
) (afterFound bool) {
	var start *skiplist.Element
	if after != ksuid.Nil {
		k, ok := q.refs[after]
		if !ok {
			return false
		}
		start = q.l.Get(k).Next()
	} else {
		start = q.l.Front()
	}

	for e := start; e != nil; e = e.Next() {
		if !fn(e.Value.(Entry[T])) {
			return true
		}
	}
	return true
}
