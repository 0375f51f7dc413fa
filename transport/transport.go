// Package transport defines the point-to-point messaging contract between
// participating ranks and the collective helpers built on top of it.
package transport

import (
	"context"
	"errors"
	"fmt"
)

//go:generate mockgen -typed -package=transport -destination=./mocks.go -source=./transport.go

// AnySource can be passed to Mailbox.Get to accept a message from any rank.
const AnySource = -1

var (
	// ErrCommunication is returned on every rank when an exchange fails on any of them.
	ErrCommunication = errors.New("communication failed")
	// ErrClosed is returned by operations on a closed transport.
	ErrClosed = errors.New("transport closed")
	// ErrInvalidRank is returned when a rank is outside of [0, size).
	ErrInvalidRank = errors.New("invalid rank")
)

// Tag separates independent message streams between the same pair of ranks.
type Tag uint32

const (
	// TagRemoteIndices carries published index pairs.
	TagRemoteIndices Tag = iota + 1
	// TagSyncer carries incremental synchronization messages.
	TagSyncer
	// TagCommunicator carries payloads of buffered communicators.
	TagCommunicator
	// TagDatatype carries payloads of datatype communicators.
	TagDatatype
	// TagOrder carries send and receive order digests.
	TagOrder

	tagReduce Tag = 1 << 30
	tagResult Tag = tagReduce + 1
)

func (t Tag) String() string {
	switch t {
	case TagRemoteIndices:
		return "remote_indices"
	case TagSyncer:
		return "syncer"
	case TagCommunicator:
		return "communicator"
	case TagDatatype:
		return "datatype"
	case TagOrder:
		return "order"
	case tagReduce:
		return "reduce"
	case tagResult:
		return "result"
	default:
		return fmt.Sprintf("tag(%d)", uint32(t))
	}
}

// Transport is the messaging layer of one rank.
// Messages between a pair of ranks with the same tag are delivered in the order they were sent.
type Transport interface {
	// Rank returns the rank of this participant.
	Rank() int
	// Size returns the number of participants.
	Size() int
	// Send hands msg over for delivery to rank to. It does not wait for the receiver.
	Send(ctx context.Context, to int, tag Tag, msg []byte) error
	// Recv blocks until a message with tag arrives from rank from.
	Recv(ctx context.Context, from int, tag Tag) ([]byte, error)
	// RecvAny blocks until a message with tag arrives from any rank.
	RecvAny(ctx context.Context, tag Tag) (int, []byte, error)
	// Close releases resources held by the transport.
	Close() error
}

// CheckRank validates that rank is addressable by t.
func CheckRank(t Transport, rank int) error {
	if rank < 0 || rank >= t.Size() {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidRank, rank, t.Size())
	}
	return nil
}
