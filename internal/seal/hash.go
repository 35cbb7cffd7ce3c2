package seal

import (
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"hash"
)

var hashToScalarPrefix = []byte("veridian|hash_to_scalar|")

func updateLenBytes(h hash.Hash, b []byte) {
	var l [4]byte
	binary.LittleEndian.PutUint32(l[:], uint32(len(b)))
	h.Write(l[:])
	h.Write(b)
}

// HashToScalar maps length-prefixed messages under a domain separator to a
// uniform scalar.
func HashToScalar(domainSep string, msgs ...[]byte) (Scalar, error) {
	h := sha512.New()
	h.Write(hashToScalarPrefix)
	updateLenBytes(h, []byte(domainSep))
	for _, m := range msgs {
		if m == nil {
			return Scalar{}, fmt.Errorf("hashToScalar: nil msg")
		}
		updateLenBytes(h, m)
	}
	return ScalarFromUniformBytes(h.Sum(nil))
}
