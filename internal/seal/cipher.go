package seal

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"
)

const BlockSize = 32

type Key [32]byte

// MXEKey is the symmetric key of the computation-only domain.
func MXEKey(mxe Scalar) (Key, error) {
	return deriveKey(mxe.Bytes(), "veridian/mxe")
}

// SessionKey derives a per-session key from base.
func SessionKey(base Key, sessionID uint64) (Key, error) {
	return deriveKey(base[:], "veridian/session/"+strconv.FormatUint(sessionID, 10))
}

// SharedKey is the symmetric key shared by the holder of own and the holder
// of peer's secret. SharedKey(a, B) == SharedKey(b, A).
func SharedKey(own Scalar, peer Point) (Key, error) {
	if peer.v == nil {
		return Key{}, fmt.Errorf("seal: nil peer key")
	}
	return deriveKey(MulPoint(peer, own).Bytes(), "veridian/shared")
}

func deriveKey(secret []byte, info string) (Key, error) {
	var k Key
	r := hkdf.New(sha256.New, secret, nil, []byte(info))
	if _, err := io.ReadFull(r, k[:]); err != nil {
		return Key{}, fmt.Errorf("seal: derive key: %w", err)
	}
	return k, nil
}

// Seal encrypts block index of a value under (key, nonce). A nonce must never
// be reused for the same key; the keystream would repeat.
func Seal(key Key, nonce uint64, index uint32, block [BlockSize]byte) ([BlockSize]byte, error) {
	var iv [chacha20.NonceSize]byte
	binary.LittleEndian.PutUint64(iv[:8], nonce)
	binary.LittleEndian.PutUint32(iv[8:], index)
	c, err := chacha20.NewUnauthenticatedCipher(key[:], iv[:])
	if err != nil {
		return [BlockSize]byte{}, fmt.Errorf("seal: %w", err)
	}
	var out [BlockSize]byte
	c.XORKeyStream(out[:], block[:])
	return out, nil
}

// Open is the inverse of Seal.
func Open(key Key, nonce uint64, index uint32, ct [BlockSize]byte) ([BlockSize]byte, error) {
	return Seal(key, nonce, index, ct)
}

func SealBlocks(key Key, nonce uint64, blocks [][BlockSize]byte) ([][BlockSize]byte, error) {
	out := make([][BlockSize]byte, len(blocks))
	for i, b := range blocks {
		ct, err := Seal(key, nonce, uint32(i), b)
		if err != nil {
			return nil, err
		}
		out[i] = ct
	}
	return out, nil
}

func OpenBlocks(key Key, nonce uint64, cts [][BlockSize]byte) ([][BlockSize]byte, error) {
	return SealBlocks(key, nonce, cts)
}
