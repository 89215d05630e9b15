package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue(t *testing.T) {
	q := New[int](4)

	_, err := q.Dequeue()
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = q.Peek()
	assert.ErrorIs(t, err, ErrEmpty)

	q.Enqueue(1)
	q.Enqueue(2)
	q.Enqueue(3)
	assert.Equal(t, uint(3), q.Len())

	head, err := q.Peek()
	require.NoError(t, err)
	assert.Equal(t, 1, head)
	assert.Equal(t, uint(3), q.Len(), "peek should not consume")

	for want := 1; want <= 3; want++ {
		got, err := q.Dequeue()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	assert.Zero(t, q.Len())
}
