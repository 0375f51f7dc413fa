package communicator

import "fmt"

// Run is a contiguous range of elements in flat storage.
type Run struct {
	Offset int
	Len    int
}

// Descriptor is an ordered list of runs. Appending a run that starts where the last one
// ends extends the last run.
type Descriptor struct {
	runs []Run
	n    int
}

// NewDescriptor creates an empty descriptor.
func NewDescriptor() *Descriptor {
	return &Descriptor{}
}

// Append adds length elements at offset.
func (d *Descriptor) Append(offset, length int) {
	if length == 0 {
		return
	}
	d.n += length
	if k := len(d.runs); k > 0 && d.runs[k-1].Offset+d.runs[k-1].Len == offset {
		d.runs[k-1].Len += length
		return
	}
	d.runs = append(d.runs, Run{Offset: offset, Len: length})
}

// Runs returns the runs. The slice must not be modified.
func (d *Descriptor) Runs() []Run { return d.runs }

// Len returns the total number of elements.
func (d *Descriptor) Len() int { return d.n }

func (d *Descriptor) String() string {
	return fmt.Sprintf("descriptor{elements=%d, runs=%v}", d.n, d.runs)
}
