// Package tensor provides the dense float32 tensors that flow through the
// inference pipeline and the accounting that proves every intermediate
// tensor of a call is released.
package tensor

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// Shape lists dimension sizes, outermost first (NHWC for images).
type Shape []int

// Size returns the number of elements described by the shape.
func (s Shape) Size() int {
	if len(s) == 0 {
		return 0
	}
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Equal reports whether two shapes have identical dimensions.
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (s Shape) Clone() Shape {
	return append(Shape(nil), s...)
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = fmt.Sprint(d)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Tensor is a dense row-major float32 tensor. Tensors created by a Tracker
// must be released exactly once; Release is idempotent.
type Tensor struct {
	shape    Shape
	data     []float32
	tracker  *Tracker
	released atomic.Bool
}

// Shape returns the tensor shape. Callers must not modify it.
func (t *Tensor) Shape() Shape { return t.shape }

// Data exposes the backing buffer. It is nil after Release.
func (t *Tensor) Data() []float32 { return t.data }

// Len returns the number of elements.
func (t *Tensor) Len() int { return len(t.data) }

// Released reports whether Release has been called.
func (t *Tensor) Released() bool { return t.released.Load() }

// Release drops the backing buffer and decrements the tracker's live count.
func (t *Tensor) Release() {
	if t == nil || !t.released.CompareAndSwap(false, true) {
		return
	}
	t.data = nil
	if t.tracker != nil {
		t.tracker.dec()
	}
}

// Tracker counts live tensors. It is the counter used to verify that a call
// returns the live count to its pre-call baseline.
type Tracker struct {
	live      atomic.Int64
	allocated atomic.Int64
	onChange  func(live int64)
}

// NewTracker creates a tracker. onChange, if non-nil, observes every change
// of the live count (used to feed the live_tensors gauge).
func NewTracker(onChange func(live int64)) *Tracker {
	return &Tracker{onChange: onChange}
}

// Live returns the number of tensors allocated and not yet released.
func (tr *Tracker) Live() int64 { return tr.live.Load() }

// Allocated returns the number of tensors ever allocated.
func (tr *Tracker) Allocated() int64 { return tr.allocated.Load() }

func (tr *Tracker) inc() {
	tr.allocated.Add(1)
	v := tr.live.Add(1)
	if tr.onChange != nil {
		tr.onChange(v)
	}
}

func (tr *Tracker) dec() {
	v := tr.live.Add(-1)
	if tr.onChange != nil {
		tr.onChange(v)
	}
}

// Scope groups the tensors of one call so they can be released together.
// A Scope is owned by a single call; the mutex only guards against
// backends that allocate from helper goroutines.
type Scope struct {
	tracker *Tracker
	mu      sync.Mutex
	owned   []*Tensor
	closed  bool
}

// NewScope opens a scope on the tracker. A nil tracker yields untracked tensors.
func (tr *Tracker) NewScope() *Scope {
	return &Scope{tracker: tr}
}

// Zeros allocates a zero-filled tensor owned by the scope.
func (s *Scope) Zeros(shape Shape) *Tensor {
	return s.adopt(shape, make([]float32, shape.Size()))
}

// FromData wraps data in a tensor owned by the scope. The length of data
// must match the shape.
func (s *Scope) FromData(shape Shape, data []float32) (*Tensor, error) {
	if shape.Size() != len(data) {
		return nil, fmt.Errorf("%w: shape %s needs %d values, got %d", ErrShape, shape, shape.Size(), len(data))
	}
	return s.adopt(shape, data), nil
}

// Reshape returns a new tensor sharing t's buffer under another shape with
// the same element count. The view is tracked separately and owned by the scope.
func (s *Scope) Reshape(t *Tensor, shape Shape) (*Tensor, error) {
	if shape.Size() != t.Len() {
		return nil, fmt.Errorf("%w: cannot reshape %s to %s", ErrShape, t.shape, shape)
	}
	return s.adopt(shape, t.data), nil
}

func (s *Scope) adopt(shape Shape, data []float32) *Tensor {
	t := &Tensor{shape: shape.Clone(), data: data, tracker: s.tracker}
	if s.tracker != nil {
		s.tracker.inc()
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		t.Release()
		panic("tensor: allocation on a released scope")
	}
	s.owned = append(s.owned, t)
	s.mu.Unlock()
	return t
}

// Len returns the number of tensors the scope currently owns.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.owned)
}

// Release frees every tensor the scope owns. Safe to call more than once.
func (s *Scope) Release() {
	s.mu.Lock()
	owned := s.owned
	s.owned = nil
	s.closed = true
	s.mu.Unlock()
	for _, t := range owned {
		t.Release()
	}
}
