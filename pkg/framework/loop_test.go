package framework

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	lock  sync.Mutex
	calls []int
}

func (r *recorder) controller(id int) Controller {
	return ControlFunc(func(cc ControlContext) error {
		r.lock.Lock()
		r.calls = append(r.calls, id)
		r.lock.Unlock()
		return nil
	})
}

func (r *recorder) snapshot() []int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]int(nil), r.calls...)
}

func TestLoopPriorityOrder(t *testing.T) {
	var rec recorder
	loop := NewLoop()
	loop.Interval = time.Hour
	loop.AddController(PrLvPostProc, rec.controller(3))
	loop.AddController(PrLvSense, rec.controller(1), rec.controller(2))
	loop.runIteration(context.Background())
	require.Equal(t, []int{1, 2, 3}, rec.snapshot())
}

func TestLoopTicksUntilCanceled(t *testing.T) {
	var rec recorder
	loop := NewLoop()
	loop.Interval = time.Millisecond
	loop.AddController(PrLvControl, rec.controller(0))
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(ctx) }()
	require.Eventually(t, func() bool { return len(rec.snapshot()) >= 3 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		require.Equal(t, context.Canceled, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestLoopTriggerNext(t *testing.T) {
	var rec recorder
	loop := NewLoop()
	loop.Interval = time.Hour
	loop.AddController(PrLvControl, rec.controller(0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)
	require.Eventually(t, func() bool {
		loop.TriggerNext()
		return len(rec.snapshot()) > 0
	}, time.Second, time.Millisecond)
}

func TestLoopStopsOnRunnableError(t *testing.T) {
	errBroken := errors.New("broken")
	loop := NewLoop()
	loop.AddRunnable(RunFunc(func(ctx context.Context) error {
		return errBroken
	}))
	loop.AddRunnable(RunFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	err := loop.Run(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, errBroken))
}

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Add(nil, context.Canceled).Aggregate())
	e1, e2 := errors.New("e1"), errors.New("e2")
	errs.Add(e1)
	require.Equal(t, "e1", errs.Aggregate().Error())
	errs.Add(e2)
	require.Equal(t, "Multiple errors:\ne1\ne2", errs.Aggregate().Error())
	require.True(t, errors.Is(errs.Aggregate(), e2))
}

func TestNamedRun(t *testing.T) {
	r := NamedRun("source", RunFunc(func(context.Context) error { return nil }))
	require.Equal(t, "source", r.(Named).Name())
	require.NoError(t, NewRunner().Go(r).Wait())
}
