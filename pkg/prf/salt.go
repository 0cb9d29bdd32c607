package prf

import (
	"crypto/sha256"
	"encoding/binary"
	"io"

	"golang.org/x/crypto/hkdf"
)

// saltInfo binds derived salts to this use so the same label cannot collide
// with keys derived elsewhere from it.
const saltInfo = "ammlsh/projection-salt/v1"

// DeriveSalt derives an independent hash family salt from a label.
// The same label always yields the same salt.
func DeriveSalt(label string) uint64 {
	r := hkdf.New(sha256.New, []byte(label), nil, []byte(saltInfo))

	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		// HKDF-SHA256 can emit 8160 bytes; 8 never fails.
		panic(err)
	}
	return binary.LittleEndian.Uint64(buf[:])
}
