package chunkset

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsertContainsRemove(t *testing.T) {
	s := New()
	require.False(t, s.Contains(5))
	s.Insert(5)
	require.True(t, s.Contains(5))
	require.Equal(t, 1, s.Len())
	s.Remove(5)
	require.False(t, s.Contains(5))
	require.Equal(t, 0, s.Len())
}

func TestInsertDuplicatePanics(t *testing.T) {
	s := New()
	s.Insert(1)
	require.Panics(t, func() { s.Insert(1) })
}

func TestRemoveMissingPanics(t *testing.T) {
	s := New()
	require.Panics(t, func() { s.Remove(1) })
}

func TestMinAndTakeMin(t *testing.T) {
	s := New()
	_, ok := s.Min()
	require.False(t, ok)

	for _, a := range []uint64{30, 10, 20, 5, 25} {
		s.Insert(a)
	}
	m, ok := s.Min()
	require.True(t, ok)
	require.Equal(t, uint64(5), m)

	want := []uint64{5, 10, 20, 25, 30}
	for _, w := range want {
		a, ok := s.TakeMin()
		require.True(t, ok)
		require.Equal(t, w, a)
	}
	_, ok = s.TakeMin()
	require.False(t, ok)
}

func TestMoveRange(t *testing.T) {
	src := New()
	for _, a := range []uint64{0, 2048, 4096, 6144, 8192} {
		src.Insert(a)
	}
	dst := New()
	moved := src.MoveRange(dst, 2048, 6144)
	require.Equal(t, 2, moved)
	require.True(t, dst.Contains(2048))
	require.True(t, dst.Contains(4096))
	require.False(t, src.Contains(2048))
	require.False(t, src.Contains(4096))
	require.True(t, src.Contains(0))
	require.True(t, src.Contains(6144))
	require.True(t, src.Contains(8192))
	require.Equal(t, 3, src.Len())
	require.Equal(t, 2, dst.Len())
}

func TestMoveRangeDiscard(t *testing.T) {
	src := New()
	for _, a := range []uint64{0, 256, 512} {
		src.Insert(a)
	}
	moved := src.MoveRange(nil, 0, 1024)
	require.Equal(t, 3, moved)
	require.Equal(t, 0, src.Len())
}

// TestRandomizedAgainstModel drives Insert/Remove against a map
// reference model, checks membership and Len agree at every step, and
// checks the in-order traversal (i.e. the BST property holds) once at
// the end.
func TestRandomizedAgainstModel(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	s := New()
	model := map[uint64]bool{}

	universe := 2000
	for i := 0; i < 20000; i++ {
		a := uint64(rng.Intn(universe))
		if model[a] {
			require.True(t, s.Contains(a))
			s.Remove(a)
			delete(model, a)
		} else {
			require.False(t, s.Contains(a))
			s.Insert(a)
			model[a] = true
		}
		require.Equal(t, len(model), s.Len())
	}

	requireSameElements(t, s, model)
}

func TestRandomizedMoveRange(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		src := New()
		dst := New()
		model := map[uint64]bool{}
		n := rng.Intn(50)
		for i := 0; i < n; i++ {
			a := uint64(rng.Intn(500))
			if !model[a] {
				src.Insert(a)
				model[a] = true
			}
		}
		lo := uint64(rng.Intn(500))
		hi := lo + uint64(rng.Intn(200))

		moved := src.MoveRange(dst, lo, hi)

		wantMoved := 0
		for a := range model {
			if a >= lo && a < hi {
				wantMoved++
			}
		}
		require.Equal(t, wantMoved, moved)

		for a := range model {
			if a >= lo && a < hi {
				require.True(t, dst.Contains(a))
				require.False(t, src.Contains(a))
			} else {
				require.True(t, src.Contains(a))
				require.False(t, dst.Contains(a))
			}
		}
	}
}

func requireSameElements(t *testing.T, s *Set, model map[uint64]bool) {
	t.Helper()
	want := make([]uint64, 0, len(model))
	for a := range model {
		want = append(want, a)
	}
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })

	got := make([]uint64, 0, s.Len())
	for {
		a, ok := s.TakeMin()
		if !ok {
			break
		}
		got = append(got, a)
	}
	require.Equal(t, want, got)
}
