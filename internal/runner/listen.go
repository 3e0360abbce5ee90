package runner

import (
	"context"
	"iter"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/funpay-runner/internal/funpay"
)

const DefaultInterval = 6 * time.Second

// ListenOptions control the event stream.
type ListenOptions struct {
	// Interval is slept after every cycle; it does not absorb cycle time.
	Interval time.Duration
	// PropagateFailures ends the stream with the first cycle fault instead
	// of logging it and polling again.
	PropagateFailures bool
}

// Listen returns an endless stream of events. It fails immediately with
// funpay.ErrNotAuthorized when the account is not logged in.
//
// The stream stops when ctx is cancelled or the consumer stops ranging. With
// PropagateFailures the failing cycle yields (nil, err) once and the stream
// ends; otherwise errors are never yielded.
func (r *Runner) Listen(ctx context.Context, opts ListenOptions) (iter.Seq2[Event, error], error) {
	if !r.client.IsAuthenticated() {
		return nil, funpay.ErrNotAuthorized
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}

	return func(yield func(Event, error) bool) {
		r.logger.Info("event stream started",
			zap.Duration("interval", opts.Interval),
			zap.Bool("propagateFailures", opts.PropagateFailures),
		)

		for {
			events, err := r.GetUpdates(ctx)
			if err != nil {
				if ctx.Err() != nil {
					r.logger.Info("event stream cancelled")
					return
				}
				if opts.PropagateFailures {
					yield(nil, err)
					return
				}
				r.logger.Error("failed to get updates", zap.Error(err))
			}

			for _, ev := range events {
				if !yield(ev, nil) {
					return
				}
			}

			select {
			case <-ctx.Done():
				r.logger.Info("event stream cancelled")
				return
			case <-time.After(opts.Interval):
			}
		}
	}, nil
}
