package transport

import (
	"context"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
)

type received struct {
	from int
	msg  []byte
}

// Exchange receives one message with tag from every rank in from and sends out[r] to every rank r in out.
// Receives are posted before sends. onRecv is called from the calling goroutine for each message
// in arrival order. Any transport failure is wrapped in ErrCommunication.
func Exchange(
	ctx context.Context,
	t Transport,
	tag Tag,
	out map[int][]byte,
	from []int,
	onRecv func(from int, msg []byte) error,
) error {
	start := time.Now()
	defer func() { exchangeLatency.WithLabelValues(tag.String()).Observe(time.Since(start).Seconds()) }()
	results := make(chan received, len(from))
	eg, ectx := errgroup.WithContext(ctx)
	for _, r := range from {
		eg.Go(func() error {
			msg, err := t.Recv(ectx, r, tag)
			if err != nil {
				return fmt.Errorf("receive from %d: %w", r, err)
			}
			results <- received{from: r, msg: msg}
			return nil
		})
	}
	ranks := make([]int, 0, len(out))
	for r := range out {
		ranks = append(ranks, r)
	}
	slices.Sort(ranks)
	for _, r := range ranks {
		msg := out[r]
		eg.Go(func() error {
			if err := t.Send(ectx, r, tag, msg); err != nil {
				return fmt.Errorf("send to %d: %w", r, err)
			}
			return nil
		})
	}
	done := make(chan error, 1)
	go func() {
		done <- eg.Wait()
		close(results)
	}()
	var handleErr error
	for res := range results {
		if handleErr == nil {
			handleErr = onRecv(res.from, res.msg)
		}
	}
	if err := <-done; err != nil {
		return fmt.Errorf("%w: %w", ErrCommunication, err)
	}
	return handleErr
}
