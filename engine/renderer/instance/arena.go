// Package instance implements the draw-instance manager: the data
// structure translating per-coordinate render commands into GPU-ready
// instance buffers, with ref-counted matrix dedup, opaque/non-opaque
// partitioning, indirect draw argument assembly and on-demand device
// buffer resizing.
package instance

import (
	"github.com/go-gl/mathgl/mgl32"
)

// MatrixIndex is an arena index type. The model-matrix arena uses uint32,
// the shared world-matrix arena uint16.
type MatrixIndex interface {
	~uint16 | ~uint32
}

// MatrixArena is a dense vector of distinct matrices plus reuse counts
// tracking how many instances beyond the first share each slot. Dedup is
// by identity with the most recent insert, which compresses the dominant
// pattern of long equal runs at near-zero cost.
type MatrixArena[I MatrixIndex] struct {
	buffer []mgl32.Mat4
	// reuses[i] is the number of extra sharers of slot i; absent means
	// unshared.
	reuses map[I]I
}

// NewMatrixArena creates an empty arena with the given initial capacity.
func NewMatrixArena[I MatrixIndex](capacity int) MatrixArena[I] {
	return MatrixArena[I]{
		buffer: make([]mgl32.Mat4, 0, capacity),
		reuses: make(map[I]I),
	}
}

// Buffer returns the live matrix slots.
func (a *MatrixArena[I]) Buffer() []mgl32.Mat4 {
	return a.buffer
}

// Len returns the number of live slots.
func (a *MatrixArena[I]) Len() int {
	return len(a.buffer)
}

// ReuseCount returns the number of extra sharers of a slot.
func (a *MatrixArena[I]) ReuseCount(index I) I {
	return a.reuses[index]
}

// SetAll overwrites every slot with the same matrix. Fast path for the
// single shared camera matrix.
func (a *MatrixArena[I]) SetAll(m mgl32.Mat4) {
	for i := range a.buffer {
		a.buffer[i] = m
	}
}

// InsertMatrix returns an index holding m: the last slot when it already
// equals m (bumping its reuse count), a fresh slot otherwise.
func (a *MatrixArena[I]) InsertMatrix(m mgl32.Mat4) I {
	if n := len(a.buffer); n > 0 && a.buffer[n-1] == m {
		index := I(n - 1)
		a.reuses[index]++
		return index
	}
	a.buffer = append(a.buffer, m)
	return I(len(a.buffer) - 1)
}

// ModifyMatrix rewrites the slot in place when it is unshared; otherwise
// it releases one share and inserts m anew, returning the (possibly new)
// index the caller must store.
func (a *MatrixArena[I]) ModifyMatrix(index I, m mgl32.Mat4) I {
	if a.reuses[index] == 0 {
		delete(a.reuses, index)
		a.buffer[index] = m
		return index
	}

	a.reuses[index]--
	if a.reuses[index] == 0 {
		delete(a.reuses, index)
	}
	return a.InsertMatrix(m)
}

// RemoveMatrix releases one holder of a slot. An unshared slot is
// swap-removed; when the swapped-in last slot had a different index, that
// old index is returned so the caller can remap instances still pointing
// at it.
func (a *MatrixArena[I]) RemoveMatrix(index I) (I, bool) {
	if a.reuses[index] == 0 {
		delete(a.reuses, index)

		removedIndex := I(len(a.buffer) - 1)
		a.buffer[index] = a.buffer[removedIndex]
		a.buffer = a.buffer[:len(a.buffer)-1]

		if removedIndex != index {
			if r, shared := a.reuses[removedIndex]; shared {
				delete(a.reuses, removedIndex)
				a.reuses[index] = r
			}
			return removedIndex, true
		}
		return 0, false
	}

	a.reuses[index]--
	if a.reuses[index] == 0 {
		delete(a.reuses, index)
	}
	return 0, false
}

// RemoveMatrices releases a batch of holders, accumulating the remap of
// moved slots into mapping. toRemove must be sorted from largest index to
// smallest.
func (a *MatrixArena[I]) RemoveMatrices(toRemove []I, mapping map[I]I) {
	for _, index := range toRemove {
		if removedIndex, moved := a.RemoveMatrix(index); moved {
			mapping[removedIndex] = index
		}
	}
}

// Resolve chases an index through a remap table until it stops moving.
func Resolve[I MatrixIndex](mapping map[I]I, index I) I {
	for {
		next, ok := mapping[index]
		if !ok {
			return index
		}
		index = next
	}
}

// Clear drops every slot and reuse count.
func (a *MatrixArena[I]) Clear() {
	a.buffer = a.buffer[:0]
	clear(a.reuses)
}
