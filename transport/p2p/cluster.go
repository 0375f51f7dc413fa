package p2p

import (
	"context"
	"errors"
	"fmt"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
)

// Cluster is a set of libp2p hosts in one process, one per rank, connected to each other.
type Cluster struct {
	hosts      []host.Host
	transports []*Transport
}

// StartCluster launches n hosts listening on listen (for example "/ip4/127.0.0.1/tcp/0")
// and connects every pair of them.
func StartCluster(ctx context.Context, n int, listen string, opts ...Opt) (*Cluster, error) {
	c := &Cluster{}
	for range n {
		h, err := libp2p.New(libp2p.ListenAddrStrings(listen))
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("start host: %w", err)
		}
		c.hosts = append(c.hosts, h)
	}
	if err := c.connect(ctx); err != nil {
		c.Close()
		return nil, err
	}
	ids := make([]peer.ID, n)
	for i, h := range c.hosts {
		ids[i] = h.ID()
	}
	for _, h := range c.hosts {
		t, err := New(h, ids, opts...)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.transports = append(c.transports, t)
	}
	return c, nil
}

func (c *Cluster) connect(ctx context.Context) error {
	for i, h := range c.hosts {
		for _, other := range c.hosts[i+1:] {
			info := peer.AddrInfo{ID: other.ID(), Addrs: other.Addrs()}
			if err := h.Connect(ctx, info); err != nil {
				return fmt.Errorf("connect %s to %s: %w", h.ID(), other.ID(), err)
			}
		}
	}
	return nil
}

// Transport returns the transport of rank.
func (c *Cluster) Transport(rank int) *Transport {
	return c.transports[rank]
}

// Close shuts down all transports and hosts.
func (c *Cluster) Close() error {
	var errs []error
	for _, t := range c.transports {
		errs = append(errs, t.Close())
	}
	for _, h := range c.hosts {
		errs = append(errs, h.Close())
	}
	return errors.Join(errs...)
}
