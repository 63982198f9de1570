//go:build windows

package datastore

// willNeed is a no-op on Windows: there is no MADV_WILLNEED equivalent wired
// up here, matching the Rust implementation's behavior on that platform.
func willNeed(region []byte) error { return nil }

// adviseRandom is a no-op on Windows for the same reason.
func adviseRandom(region []byte) error { return nil }
