// Package p2p implements transport.Transport over libp2p streams.
// Every message travels on its own stream as a varint header followed by the payload,
// and the receiver acknowledges it once it is queued.
package p2p

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/multiformats/go-varint"
	"go.uber.org/zap"

	"github.com/spacemeshos/go-parindex/log"
	"github.com/spacemeshos/go-parindex/transport"
)

// ProtocolID is the libp2p protocol used for messages.
const ProtocolID = "/parindex/msg/1"

const (
	flagCompressed = 1 << iota
)

const ack = 0x1

var (
	// ErrUnknownPeer is returned for streams from peers outside of the rank table.
	ErrUnknownPeer = errors.New("unknown peer")
	// ErrMessageTooLarge is returned for frames over the configured limit.
	ErrMessageTooLarge = errors.New("message too large")
)

// Config configures the transport.
type Config struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxMessageSize    int           `mapstructure:"max-message-size"`
	Compression       bool          `mapstructure:"compression"`
	CompressThreshold int           `mapstructure:"compress-threshold"`
}

// DefaultConfig returns the default transport configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:           30 * time.Second,
		MaxMessageSize:    64 << 20,
		Compression:       true,
		CompressThreshold: 4096,
	}
}

// Opt is a type to configure a transport.
type Opt func(t *Transport)

// WithLog configures logger for the transport.
func WithLog(logger *zap.Logger) Opt {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithConfig overrides the default configuration.
func WithConfig(cfg Config) Opt {
	return func(t *Transport) {
		t.cfg = cfg
	}
}

// Transport maps ranks to libp2p peers.
type Transport struct {
	logger  *zap.Logger
	cfg     Config
	h       host.Host
	rank    int
	peers   []peer.ID
	ranks   map[peer.ID]int
	box     *transport.Mailbox
	enc     *zstd.Encoder
	dec     *zstd.Decoder
	tracker *transport.Tracker
}

var _ transport.Transport = (*Transport)(nil)

// New creates a transport for host h. The rank of a participant is its position in peers,
// so every participant must use the same ordering.
func New(h host.Host, peers []peer.ID, opts ...Opt) (*Transport, error) {
	t := &Transport{
		logger:  log.NewNop(),
		cfg:     DefaultConfig(),
		h:       h,
		rank:    -1,
		peers:   peers,
		ranks:   make(map[peer.ID]int, len(peers)),
		box:     transport.NewMailbox(),
		tracker: transport.NewTracker("p2p"),
	}
	for _, opt := range opts {
		opt(t)
	}
	for i, p := range peers {
		if _, exists := t.ranks[p]; exists {
			return nil, fmt.Errorf("duplicate peer %s", p)
		}
		t.ranks[p] = i
		if p == h.ID() {
			t.rank = i
		}
	}
	if t.rank < 0 {
		return nil, fmt.Errorf("host %s is not in the peer list", h.ID())
	}
	var err error
	if t.enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest)); err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	if t.dec, err = zstd.NewReader(nil); err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	t.logger = t.logger.With(log.ZRank(t.rank))
	h.SetStreamHandler(protocol.ID(ProtocolID), t.handle)
	return t, nil
}

func (t *Transport) Rank() int { return t.rank }

func (t *Transport) Size() int { return len(t.peers) }

// Send opens a stream to the peer of rank to and returns once the peer has queued msg.
func (t *Transport) Send(ctx context.Context, to int, tag transport.Tag, msg []byte) error {
	if err := transport.CheckRank(t, to); err != nil {
		return err
	}
	t.tracker.Sent(tag, len(msg))
	if to == t.rank {
		t.box.Put(t.rank, tag, append([]byte(nil), msg...))
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()
	stream, err := t.h.NewStream(ctx, t.peers[to], protocol.ID(ProtocolID))
	if err != nil {
		return fmt.Errorf("open stream to rank %d: %w", to, err)
	}
	defer stream.Close()
	if deadline, ok := ctx.Deadline(); ok {
		stream.SetDeadline(deadline)
	}
	var flags uint64
	if t.cfg.Compression && len(msg) >= t.cfg.CompressThreshold {
		msg = t.enc.EncodeAll(msg, nil)
		flags |= flagCompressed
	}
	wr := bufio.NewWriter(stream)
	for _, v := range []uint64{uint64(tag), flags, uint64(len(msg))} {
		if _, err := wr.Write(varint.ToUvarint(v)); err != nil {
			stream.Reset()
			return fmt.Errorf("rank %d: write header: %w", to, err)
		}
	}
	if _, err := wr.Write(msg); err != nil {
		stream.Reset()
		return fmt.Errorf("rank %d: write payload: %w", to, err)
	}
	if err := wr.Flush(); err != nil {
		stream.Reset()
		return fmt.Errorf("rank %d: flush: %w", to, err)
	}
	var b [1]byte
	if _, err := io.ReadFull(stream, b[:]); err != nil {
		stream.Reset()
		return fmt.Errorf("rank %d: read ack: %w", to, err)
	}
	if b[0] != ack {
		return fmt.Errorf("rank %d: unexpected ack %02x", to, b[0])
	}
	return nil
}

func (t *Transport) handle(stream network.Stream) {
	defer stream.Close()
	from, ok := t.ranks[stream.Conn().RemotePeer()]
	if !ok {
		t.logger.Warn("stream from unknown peer",
			zap.Stringer("peer", stream.Conn().RemotePeer()),
			zap.Error(ErrUnknownPeer),
		)
		stream.Reset()
		return
	}
	stream.SetDeadline(time.Now().Add(t.cfg.Timeout))
	tag, msg, err := t.readFrame(bufio.NewReader(stream))
	if err != nil {
		t.logger.Debug("failed to read message", log.ZPeerRank(from), zap.Error(err))
		stream.Reset()
		return
	}
	t.tracker.Received(tag, len(msg))
	t.box.Put(from, tag, msg)
	if _, err := stream.Write([]byte{ack}); err != nil {
		t.logger.Debug("failed to acknowledge message", log.ZPeerRank(from), zap.Error(err))
	}
}

func (t *Transport) readFrame(rd *bufio.Reader) (transport.Tag, []byte, error) {
	var header [3]uint64
	for i := range header {
		v, err := varint.ReadUvarint(rd)
		if err != nil {
			return 0, nil, fmt.Errorf("read header: %w", err)
		}
		header[i] = v
	}
	tag, flags, size := transport.Tag(header[0]), header[1], header[2]
	if size > uint64(t.cfg.MaxMessageSize) {
		return 0, nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, size, t.cfg.MaxMessageSize)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(rd, buf); err != nil {
		return 0, nil, fmt.Errorf("read payload: %w", err)
	}
	if flags&flagCompressed != 0 {
		out, err := t.dec.DecodeAll(buf, nil)
		if err != nil {
			return 0, nil, fmt.Errorf("decompress: %w", err)
		}
		if len(out) > t.cfg.MaxMessageSize {
			return 0, nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(out), t.cfg.MaxMessageSize)
		}
		buf = out
	}
	return tag, buf, nil
}

func (t *Transport) Recv(ctx context.Context, from int, tag transport.Tag) ([]byte, error) {
	if err := transport.CheckRank(t, from); err != nil {
		return nil, err
	}
	_, msg, err := t.box.Get(ctx, from, tag)
	return msg, err
}

func (t *Transport) RecvAny(ctx context.Context, tag transport.Tag) (int, []byte, error) {
	return t.box.Get(ctx, transport.AnySource, tag)
}

// Close stops accepting messages. The host is owned by the caller.
func (t *Transport) Close() error {
	t.h.RemoveStreamHandler(protocol.ID(ProtocolID))
	t.box.Close(nil)
	t.enc.Close()
	t.dec.Close()
	return nil
}
