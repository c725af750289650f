package main

import (
	"encoding/binary"
	"strings"
)

// workerHashID maps a worker's full name to the stable 64-bit id used by
// downstream accounting: the first 8 bytes of sha256(name), little-endian.
// An empty name maps to 0.
func workerHashID(fullName string) int64 {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return 0
	}
	sum := sha256Sum([]byte(fullName))
	return int64(binary.LittleEndian.Uint64(sum[:8]))
}
