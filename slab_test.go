package zephyr

import (
	"errors"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// checkSlab walks the free list and verifies the table invariants.
func checkSlab[T any](r *require.Assertions, s *Slab[T]) {
	live := 0
	for _, e := range s.entries {
		if e.occupied {
			live++
		}
	}
	r.Equal(live, s.len, "len must count occupied slots")

	seen := make(map[int]bool)
	for k := s.next; k != len(s.entries); k = s.entries[k].next {
		r.True(k >= 0 && k < len(s.entries), "free link %d out of range", k)
		r.False(s.entries[k].occupied, "free list visits occupied slot %d", k)
		r.False(seen[k], "free list visits slot %d twice", k)
		seen[k] = true
	}
	r.Equal(len(s.entries)-s.len, len(seen), "free list length")
}

func TestSlabExample(t *testing.T) {
	r := require.New(t)

	s := NewSlab[string](0)
	r.True(s.IsEmpty())

	r.Equal(0, s.Insert("A"))
	r.Equal(1, s.Insert("B"))

	v, ok := s.Remove(0)
	r.True(ok)
	r.Equal("A", v)
	r.Equal(1, s.Len())

	r.Equal(0, s.Insert("C"))

	b, ok := s.Get(1)
	r.True(ok)
	r.Equal("B", *b)

	c, ok := s.Get(0)
	r.True(ok)
	r.Equal("C", *c)

	checkSlab(r, s)
}

func TestSlabRoundTrip(t *testing.T) {
	r := require.New(t)

	s := NewSlab[int](4)
	s.Insert(1)
	s.Insert(2)
	before := s.Len()

	key := s.Insert(42)
	r.Equal(before+1, s.Len())

	v, ok := s.Remove(key)
	r.True(ok)
	r.Equal(42, v)
	r.Equal(before, s.Len())
	checkSlab(r, s)
}

func TestSlabRemoveIdempotent(t *testing.T) {
	r := require.New(t)

	s := NewSlab[int](0)
	key := s.Insert(7)
	s.Insert(8)

	v, ok := s.Remove(key)
	r.True(ok)
	r.Equal(7, v)
	n, next := s.Len(), s.NextKey()

	v, ok = s.Remove(key)
	r.False(ok)
	r.Zero(v)
	r.Equal(n, s.Len())
	r.Equal(next, s.NextKey())
	checkSlab(r, s)
}

func TestSlabRemoveOutOfRange(t *testing.T) {
	r := require.New(t)

	s := NewSlab[int](0)
	s.Insert(1)

	for _, key := range []int{-1, 1, 100} {
		_, ok := s.Remove(key)
		r.False(ok)
		_, ok = s.Get(key)
		r.False(ok)
		r.False(s.Contains(key))
	}
	r.Equal(1, s.Len())
	checkSlab(r, s)
}

func TestSlabReuseIsLIFO(t *testing.T) {
	r := require.New(t)

	s := NewSlab[int](0)
	for i := range 5 {
		s.Insert(i)
	}

	s.Remove(1)
	s.Remove(3)
	s.Remove(2)

	r.Equal(2, s.Insert(20))
	r.Equal(3, s.Insert(30))
	r.Equal(1, s.Insert(10))
	r.Equal(5, s.Insert(50))
	checkSlab(r, s)
}

func TestSlabGrowth(t *testing.T) {
	r := require.New(t)

	s := NewSlab[int](0)
	for i := range 3 {
		r.Equal(s.Capacity(), s.NextKey())
		before := s.Capacity()
		r.Equal(i, s.Insert(i))
		r.Equal(before+1, s.Capacity())
	}

	s.Remove(0)
	before := s.Capacity()
	s.Insert(0)
	r.Equal(before, s.Capacity(), "reusing a vacant slot must not grow")
}

func TestSlabGetAliasesSlot(t *testing.T) {
	r := require.New(t)

	s := NewSlab[int](8)
	key := s.Insert(1)

	p, ok := s.Get(key)
	r.True(ok)
	*p = 99

	q, ok := s.Get(key)
	r.True(ok)
	r.Same(p, q)
	r.Equal(99, *q)

	v, ok := s.Remove(key)
	r.True(ok)
	r.Equal(99, v)
}

func TestSlabClear(t *testing.T) {
	r := require.New(t)

	s := NewSlab[int](0)
	for i := range 4 {
		s.Insert(i)
	}
	s.Remove(2)

	s.Clear()
	r.True(s.IsEmpty())
	r.Equal(0, s.Capacity())
	r.Equal(0, s.NextKey())
	r.Equal(0, s.Insert(5))
	checkSlab(r, s)
}

func TestSlabInsertAt(t *testing.T) {
	r := require.New(t)

	s := NewSlab[string](0)
	s.InsertAt(s.NextKey(), "a")
	s.InsertAt(s.NextKey(), "b")
	s.Remove(0)

	r.Equal(0, s.NextKey())
	s.InsertAt(0, "c")
	r.Equal(2, s.NextKey())
	checkSlab(r, s)
}

func TestSlabInsertAtUnreachable(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*Slab[int])
		key   int
	}{
		{"past the end", func(s *Slab[int]) { s.Insert(0) }, 5},
		{"occupied slot", func(s *Slab[int]) { s.Insert(0); s.Insert(1) }, 0},
		{"vacant but not head", func(s *Slab[int]) {
			for i := range 4 {
				s.Insert(i)
			}
			s.Remove(1)
			s.Remove(2)
		}, 1},
		{"append while list non-empty", func(s *Slab[int]) { s.Insert(0); s.Insert(1); s.Remove(0) }, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := require.New(t)

			s := NewSlab[int](0)
			tt.setup(s)
			n, next := s.Len(), s.NextKey()

			func() {
				defer func() {
					p := recover()
					r.NotNil(p)
					err, ok := p.(error)
					r.True(ok)
					r.True(errors.Is(err, ErrUnreachable))

					var ue *UnreachableError
					r.True(errors.As(err, &ue))
					r.Equal(tt.key, ue.Key)
					r.Equal(next, ue.Next)
				}()
				s.InsertAt(tt.key, -1)
			}()

			r.Equal(n, s.Len())
			r.Equal(next, s.NextKey())
			checkSlab(r, s)
		})
	}
}

func TestSlabRandomOps(t *testing.T) {
	r := require.New(t)

	rng := rand.New(rand.NewPCG(1, 2))
	s := NewSlab[int](0)
	model := make(map[int]int)

	for i := range 10000 {
		if len(model) == 0 || rng.IntN(3) > 0 {
			key := s.Insert(i)
			_, dup := model[key]
			r.False(dup, "key %d handed out twice", key)
			model[key] = i
		} else {
			key := rng.IntN(s.Capacity() + 2)
			want, live := model[key]
			got, ok := s.Remove(key)
			r.Equal(live, ok)
			if live {
				r.Equal(want, got)
				delete(model, key)
				r.Equal(key, s.NextKey())
			}
		}
		r.Equal(len(model), s.Len())
	}

	for key := range s.Capacity() {
		want, live := model[key]
		got, ok := s.Get(key)
		r.Equal(live, ok)
		if live {
			r.Equal(want, *got)
		}
	}
	checkSlab(r, s)
}

// slabOp is one logged operation of the concurrent stress test.
type slabOp struct {
	insert bool
	key    int
	val    int
	ok     bool
}

func TestSlabConcurrent(t *testing.T) {
	r := require.New(t)

	const (
		goroutines = 8
		steps      = 5000
	)

	var (
		lock SpinLock
		log  []slabOp
		wg   sync.WaitGroup
	)
	s := NewSlab[int](0)
	owned := make([][]int, goroutines)
	inserted := make([]int, goroutines)
	removed := make([]int, goroutines)

	for g := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(uint64(g), 7))
			for i := range steps {
				if len(owned[g]) == 0 || rng.IntN(2) == 0 {
					val := g*steps + i
					lock.Lock()
					key := s.Insert(val)
					log = append(log, slabOp{insert: true, key: key, val: val})
					lock.Unlock()
					owned[g] = append(owned[g], key)
					inserted[g]++
				} else {
					j := rng.IntN(len(owned[g]))
					key := owned[g][j]
					owned[g][j] = owned[g][len(owned[g])-1]
					owned[g] = owned[g][:len(owned[g])-1]
					lock.Lock()
					val, ok := s.Remove(key)
					log = append(log, slabOp{key: key, val: val, ok: ok})
					lock.Unlock()
					if ok {
						removed[g]++
					}
				}
			}
		}()
	}
	wg.Wait()

	net := 0
	live := make(map[int]bool)
	for g := range goroutines {
		r.Equal(inserted[g]-len(owned[g]), removed[g], "goroutine %d lost a removal", g)
		net += inserted[g] - removed[g]
		for _, key := range owned[g] {
			r.False(live[key], "key %d owned twice", key)
			live[key] = true
		}
	}
	r.Equal(net, s.Len())
	checkSlab(r, s)

	// Replaying the log serially must reproduce every key and value.
	replay := NewSlab[int](0)
	for i, op := range log {
		if op.insert {
			r.Equal(op.key, replay.Insert(op.val), "op %d", i)
			continue
		}
		val, ok := replay.Remove(op.key)
		r.Equal(op.ok, ok, "op %d", i)
		r.Equal(op.val, val, "op %d", i)
	}
	r.Equal(s.Len(), replay.Len())
	r.Equal(s.NextKey(), replay.NextKey())
}
