package scheduler

import "errors"

var (
	ErrSelectionFull       = errors.New("selection already has the required number of items")
	ErrAlreadySelected     = errors.New("item already selected")
	ErrNotSelected         = errors.New("item is not selected")
	ErrIncompleteSelection = errors.New("selection is incomplete")
)

// Selection is an immutable fixed-capacity set. Add and Remove return a new
// value and leave the receiver untouched.
type Selection[T comparable] struct {
	required int
	items    []T
}

// NewSelection creates an empty selection needing required items.
func NewSelection[T comparable](required int) Selection[T] {
	if required < 1 {
		required = 1
	}
	return Selection[T]{required: required}
}

// SelectionOf builds a selection from existing items, stopping at the
// first error.
func SelectionOf[T comparable](required int, items ...T) (Selection[T], error) {
	sel := NewSelection[T](required)
	for _, item := range items {
		next, err := sel.Add(item)
		if err != nil {
			return sel, err
		}
		sel = next
	}
	return sel, nil
}

func (s Selection[T]) Add(item T) (Selection[T], error) {
	if s.Contains(item) {
		return s, ErrAlreadySelected
	}
	if len(s.items) >= s.required {
		return s, ErrSelectionFull
	}
	items := make([]T, len(s.items), len(s.items)+1)
	copy(items, s.items)
	return Selection[T]{required: s.required, items: append(items, item)}, nil
}

func (s Selection[T]) Remove(item T) (Selection[T], error) {
	for i, existing := range s.items {
		if existing != item {
			continue
		}
		items := make([]T, 0, len(s.items)-1)
		items = append(items, s.items[:i]...)
		items = append(items, s.items[i+1:]...)
		return Selection[T]{required: s.required, items: items}, nil
	}
	return s, ErrNotSelected
}

func (s Selection[T]) Contains(item T) bool {
	for _, existing := range s.items {
		if existing == item {
			return true
		}
	}
	return false
}

// Items returns a copy of the selected items in insertion order.
func (s Selection[T]) Items() []T {
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

func (s Selection[T]) Len() int { return len(s.items) }

func (s Selection[T]) Required() int { return s.required }

// Progress reports selected and required counts.
func (s Selection[T]) Progress() (int, int) {
	return len(s.items), s.required
}

// IsComplete is true only when exactly the required count is selected.
func (s Selection[T]) IsComplete() bool {
	return len(s.items) == s.required
}
