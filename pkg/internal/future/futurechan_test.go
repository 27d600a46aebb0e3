package future

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunWithTimeout runs a test function with a timeout.
func RunWithTimeout(t *testing.T, timeout time.Duration, testFunc func()) {
	done := make(chan bool)

	go func() {
		testFunc()
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("Test timed out")
	}
}

func TestComplete_OnlyOnce(t *testing.T) {
	f := NewChan[int]()
	assert.False(t, f.IsCompleted())
	f.Complete(1).Complete(2)
	assert.True(t, f.IsCompleted())
	assert.Equal(t, 1, f.Get())
}

func TestThenAccept(t *testing.T) {
	RunWithTimeout(t, time.Second, func() {
		result := make(chan int)
		NewChan[int]().ThenAccept(func(value int) {
			result <- value
		}).Complete(10)
		assert.Equal(t, 10, <-result)
	})
}

func TestThenApply(t *testing.T) {
	RunWithTimeout(t, time.Second, func() {
		f1 := NewChan[int]()
		f2 := ThenApply(f1, func(value int) string {
			return time.Duration(value).String()
		})
		f1.Complete(10)
		assert.Equal(t, "10ns", f2.Get())
	})
}

func TestGet_Blocks(t *testing.T) {
	RunWithTimeout(t, time.Second, func() {
		f := NewChan[int]()
		go func() { time.Sleep(50 * time.Millisecond); f.Complete(10) }()
		assert.Equal(t, 10, f.Get())
		assert.Equal(t, 10, f.Get())
	})
}

func TestAwait(t *testing.T) {
	RunWithTimeout(t, time.Second, func() {
		v, err := Completed("ok").Await(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "ok", v)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = NewChan[string]().Await(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
