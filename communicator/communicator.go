// Package communicator moves data between the local slots listed in an interface.
//
// Buffered gathers the values of every sent slot into one message per neighbour and
// scatters received messages through a GatherScatter, so it works for any container
// described by a Policy. Datatype replays precomputed runs over flat storage and
// always overwrites.
package communicator

import (
	"errors"

	"go.uber.org/zap"

	"github.com/spacemeshos/go-parindex/log"
	"github.com/spacemeshos/go-parindex/metrics"
)

var (
	// ErrNotBuilt is returned when communicating before a build or after Free.
	ErrNotBuilt = errors.New("communicator not built")
	// ErrVariableSizeNeedsData is returned by Build for policies without a fixed slot size.
	ErrVariableSizeNeedsData = errors.New("variable size policy needs the containers to build")
	// ErrOrderMismatch is returned when two ranks list their shared slots in different order.
	ErrOrderMismatch = errors.New("interface order differs between ranks")
	// ErrMessageSize is returned when a received message does not fit the receiving slots.
	ErrMessageSize = errors.New("unexpected message size")
)

const subsystem = "communicator"

var packed = metrics.NewCounter(
	"packed_elements",
	subsystem,
	"Number of elements packed for sending",
	[]string{"kind", "direction"},
)

type direction uint8

const (
	forward direction = iota
	backward
)

func (d direction) String() string {
	if d == backward {
		return "backward"
	}
	return "forward"
}

type settings struct {
	logger     *zap.Logger
	orderCheck bool
}

func defaultSettings() settings {
	return settings{logger: log.NewNop()}
}

// Opt is a type to configure a communicator.
type Opt func(s *settings)

// WithLogger configures logger.
func WithLogger(logger *zap.Logger) Opt {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithOrderCheck makes the first exchange after every build verify that each pair of
// neighbours lists the shared slots in the same order.
func WithOrderCheck() Opt {
	return func(s *settings) {
		s.orderCheck = true
	}
}
