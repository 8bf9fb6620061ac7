package framework

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoopPriority(t *testing.T) {
	var order []int
	tick := func(n int) Ticker {
		return TickFunc(func() { order = append(order, n) })
	}
	l := NewLoop().
		AddTicker(PrLvObserve, tick(3)).
		AddTicker(PrLvInput, tick(0)).
		AddTicker(PrLvEngine, tick(1), tick(2))
	l.StepN(2)
	require.Equal(t, []int{0, 1, 2, 3, 0, 1, 2, 3}, order)
	require.Equal(t, uint64(2), l.Steps())
}

type runTicker struct {
	ticks int
	ran   chan struct{}
}

func (r *runTicker) Tick() { r.ticks++ }

func (r *runTicker) Run(ctx context.Context) error {
	close(r.ran)
	<-ctx.Done()
	return ctx.Err()
}

func TestLoopRun(t *testing.T) {
	rt := &runTicker{ran: make(chan struct{})}
	l := NewLoop().AddTicker(PrLvEngine, rt)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	<-rt.ran
	for l.Steps() < 3 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	require.Equal(t, context.Canceled, <-done)
	require.NotZero(t, l.Steps())
}

func TestLoopRunFails(t *testing.T) {
	errBoom := errors.New("boom")
	l := NewLoop().AddRunnable(RunnableFunc(func(context.Context) error {
		return errBoom
	}))
	err := l.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, errBoom.Error(), err.Error())
}

func TestRunWithContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stop := make(chan struct{})
	cancel()
	err := RunWithContextCancel(ctx, func() { close(stop) }, func() error {
		<-stop
		return nil
	})
	require.Equal(t, context.Canceled, err)
}

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Add(nil).Aggregate())
	errs.Add(errors.New("a"), errors.New("b"))
	require.EqualError(t, errs.Aggregate(), "multiple errors: a; b")
}
