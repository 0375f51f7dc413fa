package syncer

import (
	"fmt"

	"github.com/spacemeshos/go-scale"

	"github.com/spacemeshos/go-parindex/common/types"
)

// holder is a rank that held an entity before the sync, with its attribute there.
type holder struct {
	Rank      uint32
	Attribute types.Attribute
}

func (h *holder) EncodeScale(e *scale.Encoder) (int, error) {
	total := 0
	n, err := scale.EncodeUint32(e, h.Rank)
	if err != nil {
		return total, err
	}
	total += n
	n, err = h.Attribute.EncodeScale(e)
	return total + n, err
}

func (h *holder) DecodeScale(d *scale.Decoder) (int, error) {
	total := 0
	v, n, err := scale.DecodeUint32(d)
	if err != nil {
		return total, err
	}
	h.Rank = v
	total += n
	n, err = h.Attribute.DecodeScale(d)
	return total + n, err
}

// entry announces one entity of the sender with every rank it knew to hold it.
type entry struct {
	Global    types.GlobalIndex
	Attribute types.Attribute
	Holders   []holder
}

// message is the payload sent to one old neighbour.
// Layout: entry count, holder count, then per entry the global index, the sender's
// attribute, the holder count and the holders.
type message struct {
	Entries []entry
}

func (m *message) holders() int {
	n := 0
	for _, e := range m.Entries {
		n += len(e.Holders)
	}
	return n
}

func (m *message) EncodeScale(e *scale.Encoder) (int, error) {
	total := 0
	for _, v := range []int{len(m.Entries), m.holders()} {
		n, err := scale.EncodeUint32(e, uint32(v))
		if err != nil {
			return total, err
		}
		total += n
	}
	for i := range m.Entries {
		ent := &m.Entries[i]
		n, err := ent.Global.EncodeScale(e)
		if err != nil {
			return total, err
		}
		total += n
		if n, err = ent.Attribute.EncodeScale(e); err != nil {
			return total, err
		}
		total += n
		if n, err = scale.EncodeUint32(e, uint32(len(ent.Holders))); err != nil {
			return total, err
		}
		total += n
		for j := range ent.Holders {
			if n, err = ent.Holders[j].EncodeScale(e); err != nil {
				return total, err
			}
			total += n
		}
	}
	return total, nil
}

func (m *message) DecodeScale(d *scale.Decoder) (int, error) {
	total := 0
	entries, n, err := scale.DecodeUint32(d)
	if err != nil {
		return total, err
	}
	total += n
	holders, n, err := scale.DecodeUint32(d)
	if err != nil {
		return total, err
	}
	total += n
	m.Entries = nil
	seen := 0
	for range entries {
		var ent entry
		if n, err = ent.Global.DecodeScale(d); err != nil {
			return total, err
		}
		total += n
		if n, err = ent.Attribute.DecodeScale(d); err != nil {
			return total, err
		}
		total += n
		count, n, err := scale.DecodeUint32(d)
		if err != nil {
			return total, err
		}
		total += n
		if seen += int(count); seen > int(holders) {
			return total, fmt.Errorf("more holders than announced %d", holders)
		}
		for range count {
			var h holder
			if n, err = h.DecodeScale(d); err != nil {
				return total, err
			}
			total += n
			ent.Holders = append(ent.Holders, h)
		}
		if k := len(m.Entries); k > 0 && m.Entries[k-1].Global >= ent.Global {
			return total, fmt.Errorf("entry %d after %d", ent.Global, m.Entries[k-1].Global)
		}
		m.Entries = append(m.Entries, ent)
	}
	if seen != int(holders) {
		return total, fmt.Errorf("announced %d holders, got %d", holders, seen)
	}
	return total, nil
}
