// Package order holds the single reorder primitive behind every ordered
// sequence in a survey definition: fields within a survey and options
// within a field both go through these functions, so the move/remove
// semantics cannot drift between the two.
package order

import "survey-service/internal/domain"

// IndexOf returns the position of item in items, or -1.
// Identity is the item itself (pointers compare by reference).
func IndexOf[T comparable](items []T, item T) int {
	for i, it := range items {
		if it == item {
			return i
		}
	}
	return -1
}

// MoveUp swaps item with its immediate predecessor. Already-first is a
// no-op; an absent item is a precondition violation.
func MoveUp[T comparable](items []T, item T) error {
	i := IndexOf(items, item)
	if i < 0 {
		return domain.ErrNotFound
	}
	if i > 0 {
		items[i-1], items[i] = items[i], items[i-1]
	}
	return nil
}

// MoveDown swaps item with its immediate successor. Already-last is a no-op.
func MoveDown[T comparable](items []T, item T) error {
	i := IndexOf(items, item)
	if i < 0 {
		return domain.ErrNotFound
	}
	if i < len(items)-1 {
		items[i], items[i+1] = items[i+1], items[i]
	}
	return nil
}

// Append adds item at the end of the sequence.
func Append[T comparable](items *[]T, item T) {
	*items = append(*items, item)
}

// Remove deletes item and closes the gap, preserving the relative order
// of the remainder.
func Remove[T comparable](items *[]T, item T) error {
	i := IndexOf(*items, item)
	if i < 0 {
		return domain.ErrNotFound
	}
	*items = append((*items)[:i], (*items)[i+1:]...)
	return nil
}
