package worker_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/shpitdev/pds-validator/pkg/pipeline/worker"
)

func TestProcessAll_PreservesOrder(t *testing.T) {
	t.Parallel()

	var calls []string
	fn := func(_ context.Context, in string) int {
		calls = append(calls, in)
		return len(in)
	}

	out, err := worker.ProcessAll(context.Background(), []string{"a", "bbb", "cc"}, fn, worker.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 outputs, got %d", len(out))
	}
	for i, want := range []int{1, 3, 2} {
		if out[i].Index != i || out[i].Output != want {
			t.Fatalf("out[%d]=%#v want index=%d output=%d", i, out[i], i, want)
		}
	}
	if !slices.Equal(calls, []string{"a", "bbb", "cc"}) {
		t.Fatalf("unexpected call order: %v", calls)
	}
}

func TestProcessAllWithCallback_RunsCallbackBeforeNextItem(t *testing.T) {
	t.Parallel()

	var events []string
	_, err := worker.ProcessAllWithCallback(
		context.Background(),
		[]string{"first", "second"},
		func(_ context.Context, in string) string {
			events = append(events, "process:"+in)
			return in
		},
		func(res worker.Result[string, string]) error {
			events = append(events, "callback:"+res.Input)
			return nil
		},
		worker.Options{},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"process:first", "callback:first", "process:second", "callback:second"}
	if !slices.Equal(events, want) {
		t.Fatalf("events=%v want=%v", events, want)
	}
}

func TestProcessAllWithCallback_CallbackErrorStopsRun(t *testing.T) {
	t.Parallel()

	callbackErr := errors.New("callback failed")
	calls := 0
	_, err := worker.ProcessAllWithCallback(
		context.Background(),
		[]string{"a", "b"},
		func(_ context.Context, in string) string {
			calls++
			return in
		},
		func(worker.Result[string, string]) error {
			return callbackErr
		},
		worker.Options{},
	)
	if !errors.Is(err, callbackErr) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call before stop, got %d", calls)
	}
}

func TestProcessAll_IntervalSpacesItems(t *testing.T) {
	t.Parallel()

	var starts []time.Time
	fn := func(_ context.Context, _ int) int {
		starts = append(starts, time.Now())
		return 0
	}

	interval := 40 * time.Millisecond
	if _, err := worker.ProcessAll(context.Background(), []int{1, 2, 3}, fn, worker.Options{Interval: interval}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(starts) != 3 {
		t.Fatalf("expected 3 starts, got %d", len(starts))
	}
	// Allow some scheduler slack below the nominal interval.
	for i := 1; i < len(starts); i++ {
		if gap := starts[i].Sub(starts[i-1]); gap < interval-10*time.Millisecond {
			t.Fatalf("gap between item %d and %d = %s, want >= ~%s", i-1, i, gap, interval)
		}
	}
}

func TestProcessAll_RequestTimeoutAppliesPerItem(t *testing.T) {
	t.Parallel()

	fn := func(ctx context.Context, _ int) bool {
		_, ok := ctx.Deadline()
		return ok
	}
	out, err := worker.ProcessAll(context.Background(), []int{1}, fn, worker.Options{RequestTimeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out[0].Output {
		t.Fatalf("expected per-item deadline to be set")
	}
}

func TestProcessAll_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	fn := func(_ context.Context, _ int) int {
		calls++
		cancel()
		return 0
	}
	out, err := worker.ProcessAll(ctx, []int{1, 2, 3}, fn, worker.Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if out != nil {
		t.Fatalf("expected nil output on cancel, got %#v", out)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}
