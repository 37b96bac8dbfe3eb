package storage

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

// Digest is a 32 byte commitment to the contents of a database.
type Digest [32]byte

// String renders the digest as lowercase hex.
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// ComputeDigest hashes every key/value pair under prefix in key order. Each
// key and value is length prefixed so distinct layouts cannot collide.
func ComputeDigest(db Database, prefix []byte) (Digest, error) {
	var out Digest
	if db == nil {
		return out, fmt.Errorf("storage: digest of nil database")
	}
	h := blake3.New(len(out), nil)
	var lenBuf [8]byte
	write := func(b []byte) {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(b)))
		_, _ = h.Write(lenBuf[:])
		_, _ = h.Write(b)
	}
	err := db.Iterate(prefix, func(key, value []byte) bool {
		write(key)
		write(value)
		return true
	})
	if err != nil {
		return out, err
	}
	copy(out[:], h.Sum(nil))
	return out, nil
}
