// Package memory implements transport.Transport for ranks running in one process.
package memory

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spacemeshos/go-parindex/log"
	"github.com/spacemeshos/go-parindex/transport"
)

// SendHook is called before every delivery. A non-nil error aborts the world.
type SendHook func(from, to int, tag transport.Tag, msg []byte) error

// Opt is a type to configure a world.
type Opt func(w *World)

// WithSendHook installs a hook for fault injection.
func WithSendHook(hook SendHook) Opt {
	return func(w *World) {
		w.hook = hook
	}
}

// WithLogger configures logger for the world.
func WithLogger(logger *zap.Logger) Opt {
	return func(w *World) {
		w.logger = logger
	}
}

// World is a set of connected in-process endpoints.
type World struct {
	logger  *zap.Logger
	hook    SendHook
	boxes   []*transport.Mailbox
	tracker *transport.Tracker
}

// NewWorld creates a world of size endpoints.
func NewWorld(size int, opts ...Opt) *World {
	w := &World{
		logger:  log.NewNop(),
		boxes:   make([]*transport.Mailbox, size),
		tracker: transport.NewTracker("memory"),
	}
	for _, opt := range opts {
		opt(w)
	}
	for i := range w.boxes {
		w.boxes[i] = transport.NewMailbox()
	}
	return w
}

// Size returns the number of endpoints.
func (w *World) Size() int {
	return len(w.boxes)
}

// Endpoint returns the transport of rank.
func (w *World) Endpoint(rank int) *Endpoint {
	if rank < 0 || rank >= len(w.boxes) {
		panic(fmt.Sprintf("BUG: rank %d out of world of size %d", rank, len(w.boxes)))
	}
	return &Endpoint{w: w, rank: rank}
}

// Abort wakes up every blocked receiver of the world with cause.
func (w *World) Abort(cause error) {
	w.logger.Debug("aborting world", zap.Error(cause))
	for _, box := range w.boxes {
		box.Close(cause)
	}
}

// Endpoint is the transport of a single rank in a World.
type Endpoint struct {
	w    *World
	rank int
}

var _ transport.Transport = (*Endpoint)(nil)

func (e *Endpoint) Rank() int { return e.rank }

func (e *Endpoint) Size() int { return len(e.w.boxes) }

func (e *Endpoint) Send(ctx context.Context, to int, tag transport.Tag, msg []byte) error {
	if err := transport.CheckRank(e, to); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.w.hook != nil {
		if err := e.w.hook(e.rank, to, tag, msg); err != nil {
			e.w.Abort(err)
			return fmt.Errorf("send %s to %d: %w", tag, to, err)
		}
	}
	e.w.tracker.Sent(tag, len(msg))
	e.w.boxes[to].Put(e.rank, tag, slices.Clone(msg))
	return nil
}

func (e *Endpoint) Recv(ctx context.Context, from int, tag transport.Tag) ([]byte, error) {
	if err := transport.CheckRank(e, from); err != nil {
		return nil, err
	}
	_, msg, err := e.w.boxes[e.rank].Get(ctx, from, tag)
	if err != nil {
		return nil, err
	}
	e.w.tracker.Received(tag, len(msg))
	return msg, nil
}

func (e *Endpoint) RecvAny(ctx context.Context, tag transport.Tag) (int, []byte, error) {
	from, msg, err := e.w.boxes[e.rank].Get(ctx, transport.AnySource, tag)
	if err != nil {
		return 0, nil, err
	}
	e.w.tracker.Received(tag, len(msg))
	return from, msg, nil
}

// Close stops delivery to this endpoint.
func (e *Endpoint) Close() error {
	e.w.boxes[e.rank].Close(nil)
	return nil
}

// Run executes fn concurrently for every rank of a new world and returns the error of each rank.
// A rank returning an error aborts the world so that the others do not block forever.
func Run(
	ctx context.Context,
	size int,
	fn func(context.Context, transport.Transport) error,
	opts ...Opt,
) []error {
	w := NewWorld(size, opts...)
	errs := make([]error, size)
	var eg errgroup.Group
	for r := range size {
		eg.Go(func() error {
			errs[r] = fn(ctx, w.Endpoint(r))
			if errs[r] != nil {
				w.Abort(errs[r])
			}
			return nil
		})
	}
	eg.Wait()
	return errs
}
