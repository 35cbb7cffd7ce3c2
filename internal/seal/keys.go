package seal

import (
	"crypto/rand"
	"fmt"
	"io"
)

// KeyPair is an encryption identity: the cluster's MXE key or a player's
// shared-domain key.
type KeyPair struct {
	Secret Scalar
	Public Point
}

// KeyFromSeed derives a key pair deterministically.
func KeyFromSeed(seed []byte) (KeyPair, error) {
	if len(seed) == 0 {
		return KeyPair{}, fmt.Errorf("seal: empty seed")
	}
	sk, err := HashToScalar("veridian/keypair", seed)
	if err != nil {
		return KeyPair{}, err
	}
	if sk.IsZero() {
		return KeyPair{}, fmt.Errorf("seal: zero secret")
	}
	return KeyPair{Secret: sk, Public: MulBase(sk)}, nil
}

// GenerateKey reads a 64-byte seed from r (crypto/rand when nil).
func GenerateKey(r io.Reader) (KeyPair, error) {
	if r == nil {
		r = rand.Reader
	}
	seed := make([]byte, 64)
	if _, err := io.ReadFull(r, seed); err != nil {
		return KeyPair{}, fmt.Errorf("seal: read seed: %w", err)
	}
	return KeyFromSeed(seed)
}

// KeyPairFromSecret rebuilds a pair from the canonical secret encoding.
func KeyPairFromSecret(b []byte) (KeyPair, error) {
	sk, err := ScalarFromBytesCanonical(b)
	if err != nil {
		return KeyPair{}, err
	}
	if sk.IsZero() {
		return KeyPair{}, fmt.Errorf("seal: zero secret")
	}
	return KeyPair{Secret: sk, Public: MulBase(sk)}, nil
}

func (k KeyPair) PublicBytes() []byte {
	return k.Public.Bytes()
}
