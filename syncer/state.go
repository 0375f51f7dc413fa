package syncer

import (
	"cmp"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/spacemeshos/go-parindex/common/types"
	"github.com/spacemeshos/go-parindex/indexset"
	"github.com/spacemeshos/go-parindex/remoteindices"
)

// state holds the remote indices as they were before the sync and what was learned since.
type state struct {
	rank    int
	ranks   []int
	old     map[int][]remoteindices.RemoteIndex
	learned map[int]map[types.GlobalIndex]types.Attribute
	created mapset.Set[types.GlobalIndex]
}

func newState(rank int, ri *remoteindices.RemoteIndices) *state {
	st := &state{
		rank:    rank,
		ranks:   ri.Ranks(),
		old:     make(map[int][]remoteindices.RemoteIndex, ri.Neighbours()),
		learned: make(map[int]map[types.GlobalIndex]types.Attribute),
		created: mapset.NewThreadUnsafeSet[types.GlobalIndex](),
	}
	for _, r := range st.ranks {
		l, _ := ri.Lists(r)
		st.old[r] = slices.Clone(l.Send.Entries())
	}
	return st
}

// pack collects the entities of set that dest held before the sync, each with every rank
// known to hold it.
func (st *state) pack(set *indexset.IndexSet, dest int) *message {
	pos := make(map[int]int, len(st.ranks))
	msg := &message{}
	for p := range set.All() {
		var holders []holder
		known := false
		for _, r := range st.ranks {
			list := st.old[r]
			i := pos[r]
			for i < len(list) && list[i].Global < p.Global {
				i++
			}
			pos[r] = i
			if i < len(list) && list[i].Global == p.Global {
				holders = append(holders, holder{Rank: uint32(r), Attribute: list[i].Attribute})
				known = known || r == dest
			}
		}
		if !known {
			continue
		}
		msg.Entries = append(msg.Entries, entry{
			Global:    p.Global,
			Attribute: p.Local.Attribute,
			Holders:   holders,
		})
	}
	return msg
}

// insert records that rank holds global with attr unless an entry for global is already known.
func (st *state) insert(rank int, global types.GlobalIndex, attr types.Attribute) {
	if rank == st.rank {
		return
	}
	if _, ok := slices.BinarySearchFunc(st.old[rank], global, func(r remoteindices.RemoteIndex, g types.GlobalIndex) int {
		return r.Global.Compare(g)
	}); ok {
		return
	}
	m, ok := st.learned[rank]
	if !ok {
		if _, known := st.old[rank]; !known {
			discovered.Inc()
		}
		m = make(map[types.GlobalIndex]types.Attribute)
		st.learned[rank] = m
	}
	if _, ok := m[global]; !ok {
		m[global] = attr
	}
}

// lists merges the old and learned remote indices per rank.
func (st *state) lists() map[int][]remoteindices.RemoteIndex {
	out := make(map[int][]remoteindices.RemoteIndex, len(st.old)+len(st.learned))
	for r, list := range st.old {
		if len(list) > 0 {
			out[r] = list
		}
	}
	for r, m := range st.learned {
		merged := out[r]
		for g, attr := range m {
			merged = append(merged, remoteindices.RemoteIndex{Global: g, Attribute: attr})
		}
		slices.SortFunc(merged, func(a, b remoteindices.RemoteIndex) int {
			return cmp.Compare(a.Global, b.Global)
		})
		out[r] = merged
	}
	return out
}

