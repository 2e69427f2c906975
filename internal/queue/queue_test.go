package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellar-anchor/depositsd/internal/txn"
)

func TestQueue_FIFO(t *testing.T) {
	q := New()
	t1 := &txn.Transaction{ID: "1"}
	t2 := &txn.Transaction{ID: "2"}
	t3 := &txn.Transaction{ID: "3"}

	q.Enqueue(t1)
	q.Enqueue(t2)
	q.Enqueue(t3)

	ctx := context.Background()
	for _, want := range []*txn.Transaction{t1, t2, t3} {
		got, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Same(t, want, got)
	}
}

func TestQueue_DequeueBlocksThenUnblocks(t *testing.T) {
	q := New()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	result := make(chan *txn.Transaction, 1)
	go func() {
		tx, err := q.Dequeue(ctx)
		require.NoError(t, err)
		result <- tx
	}()

	time.Sleep(10 * time.Millisecond)
	tx := &txn.Transaction{ID: "late"}
	q.Enqueue(tx)

	select {
	case got := <-result:
		assert.Same(t, tx, got)
	case <-time.After(time.Second):
		t.Fatal("dequeue never unblocked")
	}
}

func TestQueue_DequeueRespectsCancellation(t *testing.T) {
	q := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueue_Rehydrate(t *testing.T) {
	q := New()
	t1 := &txn.Transaction{ID: "1"}
	t2 := &txn.Transaction{ID: "2"}
	q.Rehydrate([]*txn.Transaction{t1, t2})
	assert.Equal(t, 2, q.Len())

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Same(t, t1, got)
}
