package framework

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTest = errors.New("test")

func waitCanceled(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRunnerAggregatesErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunnerWith(ctx).Go(
		RunFunc(func(context.Context) error { return errTest }),
		NamedRun("wait", RunFunc(waitCanceled)),
		RunFunc(func(context.Context) error { return nil }),
	)
	time.AfterFunc(10*time.Millisecond, cancel)
	err := r.Wait()
	require.Error(t, err)
	require.ErrorIs(t, err, errTest)
	var agg *AggregatedError
	require.ErrorAs(t, err, &agg)
	assert.Len(t, agg.Errors, 1)
	assert.Equal(t, "#0: test", err.Error())
}

func TestRunnerNamedError(t *testing.T) {
	err := NewRunner().Go(NamedRun("link", RunFunc(func(context.Context) error {
		return errTest
	}))).Wait()
	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, "link", runErr.Name)
	assert.Equal(t, "link: test", err.Error())
}

func TestRunnerStopOnExit(t *testing.T) {
	r := NewRunner().StopOnExit().Go(
		RunFunc(waitCanceled),
		RunFunc(func(context.Context) error { return nil }),
	)
	done := make(chan error, 1)
	go func() { done <- r.Wait() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runners not stopped")
	}
}

func TestRunnerStopOnError(t *testing.T) {
	r := NewRunner().StopOnError().Go(
		RunFunc(waitCanceled),
		RunFunc(func(context.Context) error { return errTest }),
		RunFunc(waitCanceled),
	)
	done := make(chan error, 1)
	go func() { done <- r.Wait() }()
	select {
	case err := <-done:
		require.ErrorIs(t, err, errTest)
	case <-time.After(5 * time.Second):
		t.Fatal("runners not stopped")
	}
}

func TestRunnerNoError(t *testing.T) {
	r := NewRunner().Go(RunFunc(func(context.Context) error { return nil }))
	require.NoError(t, r.Wait())
}

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Add(nil, nil).Aggregate())
	errs.Add(errTest, errors.New("other"))
	require.Equal(t, "2 errors:\n\ttest\n\tother", errs.Aggregate().Error())

	var outer AggregatedError
	outer.Add(errs.Aggregate(), errors.New("last"))
	assert.Len(t, outer.Errors, 3)
	require.ErrorIs(t, outer.Aggregate(), errTest)
}

type testCloser struct {
	closed int
}

func (c *testCloser) Close() error {
	c.closed++
	return nil
}

func TestRunWithContextCloser(t *testing.T) {
	closer := &testCloser{}
	require.ErrorIs(t, RunWithContextCloser(context.Background(), closer, func() error {
		return errTest
	}), errTest)
	assert.Equal(t, 1, closer.closed)

	ctx, cancel := context.WithCancel(context.Background())
	unblock := make(chan struct{})
	closer = &testCloser{}
	time.AfterFunc(10*time.Millisecond, cancel)
	err := RunWithContextCancel(ctx, func() {
		closer.Close()
		close(unblock)
	}, func() error {
		<-unblock
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, closer.closed)
}
