package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWait(t *testing.T) {
	require.NoError(t, Wait(context.Background(), 0))
	require.NoError(t, Wait(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Wait(ctx, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunWithTimeout(t *testing.T) {
	err := RunWithTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	errBoom := errors.New("boom")
	err = RunWithTimeout(context.Background(), 0, func(context.Context) error { return errBoom })
	require.ErrorIs(t, err, errBoom)
}

func TestRecoverPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		defer RecoverPanic(nil, "test")
		panic("boom")
	})
}

func TestRecoverPanicAnd(t *testing.T) {
	var cleaned atomic.Int32

	assert.NotPanics(t, func() {
		defer RecoverPanicAnd(nil, "test", func() { cleaned.Add(1) })
		panic("boom")
	})
	assert.Equal(t, int32(1), cleaned.Load())

	func() {
		defer RecoverPanicAnd(nil, "test", func() { cleaned.Add(1) })
	}()
	assert.Equal(t, int32(1), cleaned.Load(), "cleanup runs only after a panic")
}

func TestTickerLoop(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	var fast, initial, panicky atomic.Int32

	err := TickerLoop(ctx, TickerConfig{
		Name: "test",
		Tasks: []TickerTask{
			{Name: "fast", Interval: 10 * time.Millisecond, Run: func(context.Context) { fast.Add(1) }},
			{Name: "initial", Interval: time.Hour, RunOnStart: true, Run: func(context.Context) { initial.Add(1) }},
			{Name: "panicky", Interval: 10 * time.Millisecond, Run: func(context.Context) {
				panicky.Add(1)
				panic("boom")
			}},
			{Name: "disabled", Interval: 0, Run: func(context.Context) { t.Error("disabled task ran") }},
		},
	})

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, fast.Load(), int32(3))
	assert.Equal(t, int32(1), initial.Load())
	assert.GreaterOrEqual(t, panicky.Load(), int32(2), "a panicking task keeps its schedule")
}
