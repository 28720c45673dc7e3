package worker

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

type Options struct {
	// Interval is the minimum spacing between the start of two consecutive items.
	// Set to <=0 to disable pacing.
	Interval time.Duration

	// RequestTimeout bounds a single item. Set to <=0 for no per-item deadline.
	RequestTimeout time.Duration
}

// Result holds the output for one input item.
type Result[In any, Out any] struct {
	Index  int
	Input  In
	Output Out
}

// ProcessAll runs the processor over all input items, one at a time, in order.
func ProcessAll[In any, Out any](
	ctx context.Context,
	items []In,
	processor func(context.Context, In) Out,
	opts Options,
) ([]Result[In, Out], error) {
	return ProcessAllWithCallback(ctx, items, processor, nil, opts)
}

// ProcessAllWithCallback runs the processor over all input items sequentially and
// invokes onResult after each item, before the next one starts. A callback error
// or context cancellation stops the run and is returned.
func ProcessAllWithCallback[In any, Out any](
	ctx context.Context,
	items []In,
	processor func(context.Context, In) Out,
	onResult func(Result[In, Out]) error,
	opts Options,
) ([]Result[In, Out], error) {
	var limiter *rate.Limiter
	if opts.Interval > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.Interval), 1)
	}

	out := make([]Result[In, Out], 0, len(items))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		res := Result[In, Out]{
			Index:  i,
			Input:  item,
			Output: processOne(ctx, item, processor, opts.RequestTimeout),
		}
		out = append(out, res)

		if onResult != nil {
			if err := onResult(res); err != nil {
				return nil, err
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func processOne[In any, Out any](
	ctx context.Context,
	item In,
	processor func(context.Context, In) Out,
	timeout time.Duration,
) Out {
	if timeout <= 0 {
		return processor(ctx, item)
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return processor(reqCtx, item)
}
