// Package ring provides a fixed-capacity FIFO that overwrites its oldest
// element once full.
package ring

type Buffer[T any] struct {
	data  []T
	start int
	size  int
}

func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer[T]{data: make([]T, capacity)}
}

// Push appends v in O(1), evicting the oldest element when the buffer is full.
func (b *Buffer[T]) Push(v T) {
	if b.size < len(b.data) {
		b.data[(b.start+b.size)%len(b.data)] = v
		b.size++
		return
	}
	b.data[b.start] = v
	b.start = (b.start + 1) % len(b.data)
}

func (b *Buffer[T]) Len() int { return b.size }

func (b *Buffer[T]) Cap() int { return len(b.data) }

// At returns the i-th element counting from the oldest.
func (b *Buffer[T]) At(i int) T {
	return b.data[(b.start+i)%len(b.data)]
}

func (b *Buffer[T]) Last() (T, bool) {
	var zero T
	if b.size == 0 {
		return zero, false
	}
	return b.At(b.size - 1), true
}

// Tail copies the most recent n elements, oldest first. n <= 0 or n > Len()
// returns everything.
func (b *Buffer[T]) Tail(n int) []T {
	if n <= 0 || n > b.size {
		n = b.size
	}
	out := make([]T, n)
	off := b.size - n
	for i := 0; i < n; i++ {
		out[i] = b.At(off + i)
	}
	return out
}
