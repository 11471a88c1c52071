package html

// Producer yields a value, or nil when it cannot resolve one
type Producer[T any] func() *T

// FirstOf evaluates producers in order and returns the first non-nil
// result. Later producers are not evaluated.
func FirstOf[T any](producers ...Producer[T]) *T {
	for _, produce := range producers {
		if v := produce(); v != nil {
			return v
		}
	}
	return nil
}
