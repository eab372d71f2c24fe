package transfer

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// NewQueryID returns a query id with the unix time in the high 32 bits
// and random low bits.
func NewQueryID() uint64 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return uint64(time.Now().Unix())<<32 | uint64(binary.BigEndian.Uint32(b[:]))
}
