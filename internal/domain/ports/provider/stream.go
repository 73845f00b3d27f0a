package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"chat-ai-orchestrator/internal/domain"
)

// TextStream is a pull iterator over incremental text deltas. Deltas arrive
// in send order. A stream terminates exactly once: Recv returns io.EOF on a
// clean end, domain.ErrCancelled after cancellation, or the producer's
// terminal error otherwise.
type TextStream struct {
	ch     chan string
	err    error
	cancel context.CancelFunc
	once   sync.Once
}

// Stream starts produce in its own goroutine and returns the consumer half.
// produce pushes deltas through emit and returns the terminal error (nil for
// a clean end of stream). emit blocks until the consumer pulls or the stream
// is cancelled; producers must propagate emit's error. Cancellation of ctx,
// or Close on the stream, makes the next emit fail with domain.ErrCancelled.
func Stream(ctx context.Context, produce func(ctx context.Context, emit func(delta string) error) error) *TextStream {
	ctx, cancel := context.WithCancel(ctx)
	s := &TextStream{ch: make(chan string), cancel: cancel}
	go func() {
		emit := func(delta string) error {
			select {
			case s.ch <- delta:
				return nil
			case <-ctx.Done():
				return domain.ErrCancelled
			}
		}
		err := produce(ctx, emit)
		if err == nil && ctx.Err() != nil {
			err = domain.ErrCancelled
		}
		if err != nil && !errors.Is(err, domain.ErrCancelled) &&
			(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			err = fmt.Errorf("%w: %v", domain.ErrCancelled, err)
		}
		s.err = err
		close(s.ch)
		cancel()
	}()
	return s
}

// Recv blocks for the next delta. It returns io.EOF when the stream ended
// cleanly, and the terminal error otherwise.
func (s *TextStream) Recv() (string, error) {
	delta, ok := <-s.ch
	if !ok {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	return delta, nil
}

// Close cancels the producer and drains the stream. Safe to call multiple
// times and after the stream has ended.
func (s *TextStream) Close() error {
	s.once.Do(func() {
		s.cancel()
		for range s.ch {
		}
	})
	return nil
}

// Collect pulls the stream to completion and returns the accumulated text.
// On failure the partial text gathered so far is returned with the error.
func (s *TextStream) Collect() (string, error) {
	var b strings.Builder
	for {
		delta, err := s.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return b.String(), nil
			}
			return b.String(), err
		}
		b.WriteString(delta)
	}
}
