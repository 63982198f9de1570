//go:build !windows

package datastore

import "golang.org/x/sys/unix"

// willNeed advises the kernel that the given mapped range will be accessed
// soon, matching the Rust implementation's `will_need` mmap hint used before
// a segment's HNSW traversal or a full scan (original_source data_store.rs).
func willNeed(region []byte) error {
	if len(region) == 0 {
		return nil
	}
	return unix.Madvise(region, unix.MADV_WILLNEED)
}

// adviseRandom marks a mapping for non-sequential access (MADV_RANDOM). No
// code in this module calls it.
func adviseRandom(region []byte) error {
	if len(region) == 0 {
		return nil
	}
	return unix.Madvise(region, unix.MADV_RANDOM)
}
