package presets

import (
	"github.com/spacemeshos/go-parindex/config"
)

func init() {
	register("neighbours", neighbours())
	register("p2p", localP2P())
}

// neighbours bootstraps from adjacent ranks only and lets the syncer find the rest.
func neighbours() config.Config {
	conf := config.DefaultConfig()
	conf.Ranks = 6
	conf.Remote.Mode = config.NeighboursMode
	conf.Remote.Sync = true
	conf.Communicator.VerifyOrder = true
	conf.Demo.PerRank = 2
	conf.Demo.Overlap = 2
	return conf
}

// localP2P runs every rank as a libp2p host on the loopback interface.
func localP2P() config.Config {
	conf := config.DefaultConfig()
	conf.Transport.Kind = config.P2PTransport
	conf.Transport.Listen = "/ip4/127.0.0.1/tcp/0"
	conf.Transport.P2P.CompressThreshold = 512
	conf.Communicator.VerifyOrder = true
	conf.Demo.PerRank = 1024
	conf.Demo.Overlap = 16
	return conf
}
