package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"house-price-workers/internal/common/metrics"
)

type prediction struct {
	values []float64
	err    error
}

// Invoke runs m on the single-row frame built from rec and returns the first prediction.
// With a deadline on ctx the model runs on its own goroutine and the call
// returns ErrInferenceTimeout once the deadline passes; the model's result is then discarded.
func Invoke(ctx context.Context, m Model, rec AlignedRecord) (float64, error) {
	if m == nil {
		return 0, fmt.Errorf("%w: no model loaded", ErrInference)
	}
	frame := NewFrame(rec)

	start := time.Now()
	defer func() {
		metrics.InferenceDuration.WithLabelValues(m.Name()).Observe(time.Since(start).Seconds())
	}()

	var (
		values []float64
		err    error
	)
	if _, ok := ctx.Deadline(); !ok && ctx.Done() == nil {
		values, err = safePredict(m, frame)
	} else {
		done := make(chan prediction, 1)
		go func() {
			v, e := safePredict(m, frame)
			done <- prediction{values: v, err: e}
		}()
		select {
		case p := <-done:
			values, err = p.values, p.err
		case <-ctx.Done():
			return 0, fmt.Errorf("%w: model %q did not answer: %v", ErrInferenceTimeout, m.Name(), ctx.Err())
		}
	}

	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("%w: model %q returned no prediction", ErrInference, m.Name())
	}
	return values[0], nil
}

// safePredict turns a panicking model into an inference error.
func safePredict(m Model, frame Frame) (values []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: model %q panicked: %v", ErrInference, m.Name(), r)
		}
	}()

	values, err = m.Predict(frame)
	if err != nil && !errors.Is(err, ErrInference) {
		err = fmt.Errorf("%w: %v", ErrInference, err)
	}
	return values, err
}
