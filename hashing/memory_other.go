//go:build !linux

package hashing

// physicalMemory is unknown here; scrypt calibration falls back to MaxMem.
func physicalMemory() uint64 { return 0 }
