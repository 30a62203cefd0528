package registry

import (
	"crypto/rand"
	"encoding/binary"
	"strconv"
)

const idMask = 1<<48 - 1

// randomID returns a non-zero 48-bit number in lowercase hex
func randomID() string {
	var b [8]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			panic("registry: reading random id: " + err.Error())
		}
		if n := binary.BigEndian.Uint64(b[:]) & idMask; n != 0 {
			return strconv.FormatUint(n, 16)
		}
	}
}
