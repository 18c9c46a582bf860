package zephyr

// slot is one entry of a Slab. An occupied slot holds a value; a
// vacant slot holds the index of the next vacant slot, or the
// length of the backing slice when it is the last one on the list.
type slot[T any] struct {
	val      T
	next     int
	occupied bool
}

// Slab is a free-list backed table mapping small integer keys to
// values. Insertion and removal are O(1); vacant slots are threaded
// into a singly linked free list through the slots themselves, and
// the most recently freed key is reused first.
//
// A Slab is not safe for concurrent use. The Runtime guards its
// table with a SpinLock.
type Slab[T any] struct {
	entries []slot[T]
	len     int
	next    int
}

// NewSlab returns an empty Slab whose backing storage can hold
// capacity values before growing.
func NewSlab[T any](capacity int) *Slab[T] {
	return &Slab[T]{entries: make([]slot[T], 0, capacity)}
}

// Capacity returns the number of slots, live or vacant.
func (s *Slab[T]) Capacity() int {
	return len(s.entries)
}

// Len returns the number of live values.
func (s *Slab[T]) Len() int {
	return s.len
}

// IsEmpty reports whether the slab holds no live values.
func (s *Slab[T]) IsEmpty() bool {
	return s.len == 0
}

// Clear discards every slot and resets the free list.
func (s *Slab[T]) Clear() {
	clear(s.entries)
	s.entries = s.entries[:0]
	s.len = 0
	s.next = 0
}

// NextKey returns the key the next Insert will use: the head of the
// free list, or Capacity() when the list is empty.
func (s *Slab[T]) NextKey() int {
	return s.next
}

// Insert stores val and returns its key.
func (s *Slab[T]) Insert(val T) int {
	key := s.next
	s.InsertAt(key, val)
	return key
}

// InsertAt stores val at key, which must equal NextKey(). Any other
// key means the caller's bookkeeping diverged from the slab's and
// InsertAt panics with an *UnreachableError.
func (s *Slab[T]) InsertAt(key int, val T) {
	if key != s.next {
		panic(&UnreachableError{Op: "InsertAt", Key: key, Next: s.next})
	}

	if key == len(s.entries) {
		s.entries = append(s.entries, slot[T]{val: val, occupied: true})
		s.next = key + 1
		s.len++
		return
	}

	e := &s.entries[key]
	if e.occupied {
		panic(&UnreachableError{Op: "InsertAt", Key: key, Next: s.next})
	}

	s.next = e.next
	*e = slot[T]{val: val, occupied: true}
	s.len++
}

// Get returns a pointer to the value stored at key. The pointer
// aliases the slot itself and stays valid until an insertion grows
// the slab.
func (s *Slab[T]) Get(key int) (*T, bool) {
	if key < 0 || key >= len(s.entries) {
		return nil, false
	}

	e := &s.entries[key]
	if !e.occupied {
		return nil, false
	}

	return &e.val, true
}

// Contains reports whether key holds a live value.
func (s *Slab[T]) Contains(key int) bool {
	_, ok := s.Get(key)
	return ok
}

// Remove detaches and returns the value at key, pushing key onto the
// head of the free list. Removing a vacant or out-of-range key leaves
// the slab untouched.
func (s *Slab[T]) Remove(key int) (T, bool) {
	var zero T

	if key < 0 || key >= len(s.entries) {
		return zero, false
	}

	prev := slot[T]{next: s.next}
	prev, s.entries[key] = s.entries[key], prev

	if !prev.occupied {
		s.entries[key] = prev
		return zero, false
	}

	s.len--
	s.next = key
	return prev.val, true
}
