package stf

import "github.com/rollkernel/rollkernel/workingset"

// BlobSelector decides which of the slot's received blobs to process, and
// in what order. Pluggable per spec.md §4.6's "blob selection policy is
// pluggable (the kernel)".
type BlobSelector interface {
	SelectBlobs(ws *workingset.WorkingSet, blobs []Blob) ([]Blob, error)
}

// FCFSKernel is the default kernel: every blob is processed, in the order
// it was received, with no reordering.
type FCFSKernel struct{}

func (FCFSKernel) SelectBlobs(ws *workingset.WorkingSet, blobs []Blob) ([]Blob, error) {
	return blobs, nil
}
