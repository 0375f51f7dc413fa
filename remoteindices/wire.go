package remoteindices

import (
	"fmt"

	"github.com/spacemeshos/go-scale"

	"github.com/spacemeshos/go-parindex/common/types"
	"github.com/spacemeshos/go-parindex/indexset"
)

// publishedPair is an index pair as seen by other ranks.
type publishedPair struct {
	Global    types.GlobalIndex
	Attribute types.Attribute
}

func (p *publishedPair) EncodeScale(e *scale.Encoder) (int, error) {
	total, err := p.Global.EncodeScale(e)
	if err != nil {
		return total, err
	}
	n, err := p.Attribute.EncodeScale(e)
	return total + n, err
}

func (p *publishedPair) DecodeScale(d *scale.Decoder) (int, error) {
	total, err := p.Global.DecodeScale(d)
	if err != nil {
		return total, err
	}
	n, err := p.Attribute.DecodeScale(d)
	return total + n, err
}

// publication is what one rank tells every other rank during a rebuild.
// Dest is only present when the rank uses distinct source and destination sets.
type publication struct {
	Two    bool
	Source []publishedPair
	Dest   []publishedPair
}

func encodePairs(e *scale.Encoder, pairs []publishedPair) (int, error) {
	total, err := scale.EncodeCompact32(e, uint32(len(pairs)))
	if err != nil {
		return total, err
	}
	for i := range pairs {
		n, err := pairs[i].EncodeScale(e)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func decodePairs(d *scale.Decoder) ([]publishedPair, int, error) {
	size, total, err := scale.DecodeCompact32(d)
	if err != nil {
		return nil, total, err
	}
	var pairs []publishedPair
	var prev types.GlobalIndex
	for i := range size {
		var p publishedPair
		n, err := p.DecodeScale(d)
		total += n
		if err != nil {
			return nil, total, err
		}
		if i > 0 && p.Global <= prev {
			return nil, total, fmt.Errorf("published pairs not ascending at %d", p.Global)
		}
		prev = p.Global
		pairs = append(pairs, p)
	}
	return pairs, total, nil
}

func (p *publication) EncodeScale(e *scale.Encoder) (int, error) {
	var two byte
	if p.Two {
		two = 1
	}
	total, err := scale.EncodeByte(e, two)
	if err != nil {
		return total, err
	}
	n, err := encodePairs(e, p.Source)
	total += n
	if err != nil {
		return total, err
	}
	if p.Two {
		n, err = encodePairs(e, p.Dest)
		total += n
	}
	return total, err
}

func (p *publication) DecodeScale(d *scale.Decoder) (int, error) {
	two, total, err := scale.DecodeByte(d)
	if err != nil {
		return total, err
	}
	p.Two = two != 0
	var n int
	p.Source, n, err = decodePairs(d)
	total += n
	if err != nil || !p.Two {
		return total, err
	}
	p.Dest, n, err = decodePairs(d)
	return total + n, err
}

// publish collects the pairs of set that other ranks may learn about.
func publish(set *indexset.IndexSet, ignorePublic bool) []publishedPair {
	out := make([]publishedPair, 0, set.NoPublic())
	for p := range set.All() {
		if ignorePublic || p.Local.Public {
			out = append(out, publishedPair{Global: p.Global, Attribute: p.Local.Attribute})
		}
	}
	return out
}
