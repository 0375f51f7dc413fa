package communicator_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spacemeshos/go-parindex/common/types"
	"github.com/spacemeshos/go-parindex/communicator"
)

func TestDescriptor(t *testing.T) {
	d := communicator.NewDescriptor()
	d.Append(0, 2)
	d.Append(2, 2)
	d.Append(6, 2)
	d.Append(8, 0)
	d.Append(4, 1)
	require.Equal(t, []communicator.Run{{Offset: 0, Len: 4}, {Offset: 6, Len: 2}, {Offset: 4, Len: 1}}, d.Runs())
	require.Equal(t, 7, d.Len())
}

func TestDatatype(t *testing.T) {
	sources := make([][]int64, line.Size)
	dests := make([][]int64, line.Size)
	errs := runRanks(t, func(ctx context.Context, rank int, env rankEnv) error {
		src := make([]int64, 2*env.set.Size())
		dst := make([]int64, 2*env.set.Size())
		for p := range env.set.All() {
			if p.Local.Attribute == types.Owner {
				src[2*p.Local.Local] = int64(p.Global)
				src[2*p.Local.Local+1] = -int64(p.Global)
			}
		}
		for k := range dst {
			dst[k] = 99
		}
		c := communicator.NewDatatype[int64](communicator.Int64Codec{}, communicator.WithOrderCheck())
		err := c.Build(env.ri,
			owner, communicator.Storage[int64]{Data: src, Block: 2},
			overlap, communicator.Storage[int64]{Data: dst, Block: 2},
		)
		if err != nil {
			return err
		}
		if err := c.Forward(ctx); err != nil {
			return err
		}
		if err := c.Backward(ctx); err != nil {
			return err
		}
		sources[rank], dests[rank] = src, dst
		return nil
	})
	requireNoErrors(t, errs)
	require.Equal(t, []int64{3, -3, 99, 99, 99, 99, 99, 99, 99, 99, 8, -8}, dests[1])
	require.Equal(t, []int64{0, 0, 4, -4, 5, -5, 6, -6, 7, -7, 0, 0}, sources[1])
	require.Equal(t, []int64{99, 99, 99, 99, 99, 99, 99, 99, 4, -4}, dests[0])
}

func TestDatatypeStorageTooSmall(t *testing.T) {
	errs := runRanks(t, func(ctx context.Context, rank int, env rankEnv) error {
		c := communicator.NewDatatype[float64](communicator.Float64Codec{})
		err := c.Build(env.ri,
			owner, communicator.Storage[float64]{Data: make([]float64, 1), Block: 1},
			overlap, communicator.Storage[float64]{Data: make([]float64, env.set.Size()), Block: 1},
		)
		if err != nil && c.Interface() != nil {
			return errors.New("interface kept after failed build")
		}
		return err
	})
	// every rank sends from a slot beyond the first
	for rank, err := range errs {
		require.ErrorContains(t, err, "outside storage", "rank %d", rank)
	}
}
