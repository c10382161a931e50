package bchan

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestFIFOOrder(t *testing.T) {
	t.Parallel()

	c := New[int](4)
	for i := 0; i < 4; i++ {
		require.NoError(t, c.TrySend(i))
	}
	assert.Equal(t, 4, c.Len())
	assert.ErrorIs(t, c.TrySend(99), ErrFull)

	for i := 0; i < 4; i++ {
		v, err := c.TryReceive()
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	_, err := c.TryReceive()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestWrapAround(t *testing.T) {
	t.Parallel()

	c := New[int](2)
	next := 0
	for round := 0; round < 5; round++ {
		require.NoError(t, c.TrySend(next))
		require.NoError(t, c.TrySend(next+1))
		v, err := c.TryReceive()
		require.NoError(t, err)
		assert.Equal(t, next, v)
		v, err = c.TryReceive()
		require.NoError(t, err)
		assert.Equal(t, next+1, v)
		next += 2
	}
}

func TestCloseDrainsBufferedValues(t *testing.T) {
	t.Parallel()

	c := New[string](3)
	require.NoError(t, c.TrySend("a"))
	require.NoError(t, c.TrySend("b"))
	c.Close()
	c.Close() // idempotent

	assert.True(t, c.Closed())
	assert.ErrorIs(t, c.TrySend("c"), ErrClosed)

	v, err := c.TryReceive()
	require.NoError(t, err)
	assert.Equal(t, "a", v)
	v, err = c.TryReceive()
	require.NoError(t, err)
	assert.Equal(t, "b", v)
	_, err = c.TryReceive()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSendBlocksUntilReceive(t *testing.T) {
	t.Parallel()

	c := New[int](1)
	require.NoError(t, c.TrySend(1))

	done := make(chan error, 1)
	go func() {
		done <- c.Send(context.Background(), 2)
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("send returned while the buffer was full")
	default:
	}

	v, err := c.TryReceive()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	require.NoError(t, <-done)

	v, err = c.TryReceive()
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestSendHonoursContext(t *testing.T) {
	t.Parallel()

	c := New[int](1)
	require.NoError(t, c.TrySend(1))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := c.Send(ctx, 2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReceiveUnblocksOnClose(t *testing.T) {
	t.Parallel()

	c := New[int](1)
	done := make(chan error, 1)
	go func() {
		_, err := c.Receive(context.Background())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	c.Close()
	assert.ErrorIs(t, <-done, ErrClosed)
}

func TestReceiveTimeout(t *testing.T) {
	t.Parallel()

	c := New[int](1)
	start := time.Now()
	_, err := c.ReceiveTimeout(30 * time.Millisecond)
	assert.ErrorIs(t, err, ErrEmpty)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)

	require.NoError(t, c.TrySend(7))
	v, err := c.ReceiveTimeout(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	c.Close()
	_, err = c.ReceiveTimeout(time.Second)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRendezvous(t *testing.T) {
	t.Parallel()

	c := New[int](0)
	assert.ErrorIs(t, c.TrySend(1), ErrFull) // nobody is waiting

	done := make(chan int, 1)
	go func() {
		v, err := c.Receive(context.Background())
		if err != nil {
			done <- -1

			return
		}
		done <- v
	}()

	require.NoError(t, c.Send(context.Background(), 42))
	assert.Equal(t, 42, <-done)
	assert.Equal(t, 0, c.Len())
}

func TestConcurrentProducersConsumers(t *testing.T) {
	t.Parallel()

	const (
		producers = 4
		perWorker = 250
	)
	c := New[int](8)
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if err := c.Send(context.Background(), i); err != nil {
					t.Error(err)

					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		c.Close()
	}()

	received := 0
	for {
		_, err := c.Receive(context.Background())
		if err != nil {
			assert.ErrorIs(t, err, ErrClosed)

			break
		}
		received++
	}
	assert.Equal(t, producers*perWorker, received)
}
