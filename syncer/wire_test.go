package syncer

import (
	"bytes"
	"math"
	"testing"

	"github.com/spacemeshos/go-scale"
	"github.com/stretchr/testify/require"

	"github.com/spacemeshos/go-parindex/codec"
	"github.com/spacemeshos/go-parindex/common/types"
	"github.com/spacemeshos/go-parindex/indexset"
	"github.com/spacemeshos/go-parindex/remoteindices"
	"github.com/spacemeshos/go-parindex/transport"
	"github.com/spacemeshos/go-parindex/transport/memory"
)

func TestMessageDecode(t *testing.T) {
	msg := &message{Entries: []entry{
		{Global: 3, Attribute: types.Owner, Holders: []holder{{Rank: 1, Attribute: types.Overlap}}},
		{Global: 7, Attribute: types.Copy},
		{Global: 9, Attribute: types.Border, Holders: []holder{{Rank: 4, Attribute: types.Owner}, {Rank: 2}}},
	}}
	buf, err := codec.Encode(msg)
	require.NoError(t, err)
	require.Len(t, buf, 8+3*(8+1+4)+3*(4+1))

	var got message
	require.NoError(t, codec.Decode(buf, &got))
	require.Equal(t, msg.holders(), got.holders())
	require.Equal(t, msg.Entries[2], got.Entries[2])

	t.Run("unsorted", func(t *testing.T) {
		bad := &message{Entries: []entry{{Global: 2}, {Global: 1}}}
		require.Error(t, codec.Decode(codec.MustEncode(bad), &message{}))
	})
	t.Run("truncated", func(t *testing.T) {
		require.Error(t, codec.Decode(buf[:len(buf)-1], &message{}))
	})
	t.Run("holder count", func(t *testing.T) {
		tampered := append([]byte(nil), buf...)
		tampered[4]++
		require.Error(t, codec.Decode(tampered, &message{}))
	})
}

func TestMessageDecodeHugeCounts(t *testing.T) {
	var b bytes.Buffer
	e := scale.NewEncoder(&b)
	_, err := scale.EncodeUint32(e, 1)
	require.NoError(t, err)
	_, err = scale.EncodeUint32(e, math.MaxInt32+1)
	require.NoError(t, err)
	_, err = types.GlobalIndex(4).EncodeScale(e)
	require.NoError(t, err)
	_, err = types.Owner.EncodeScale(e)
	require.NoError(t, err)
	_, err = scale.EncodeUint32(e, math.MaxInt32+1)
	require.NoError(t, err)
	require.Len(t, b.Bytes(), 21)

	require.Error(t, codec.Decode(b.Bytes(), &message{}))
}

func TestUnpackHolderOutOfRange(t *testing.T) {
	set := indexset.New()
	ri := remoteindices.New(set, set, memory.NewWorld(2).Endpoint(0))
	s, err := New(set, ri)
	require.NoError(t, err)
	st := newState(0, ri)
	msg := &message{Entries: []entry{{
		Global:    1,
		Attribute: types.Owner,
		Holders:   []holder{{Rank: 0, Attribute: types.Overlap}, {Rank: 7, Attribute: types.Overlap}},
	}}}

	err = s.unpack(st, 1, msg, NoNumbers)
	require.ErrorIs(t, err, ErrConsistency)
	require.ErrorIs(t, err, transport.ErrInvalidRank)
	require.Empty(t, st.learned)
}
