package state

import "encoding/binary"

// Key layout. Every key starts with a one-byte prefix.
const (
	prefixNextSessionID byte = 0x01
	prefixSession       byte = 0x02 // | u64be sessionID -> session json
	prefixPending       byte = 0x03 // | u64be queueID -> u64be sessionID
	prefixArchive       byte = 0x04 // | u64be sessionID -> session json
	prefixAccountKey    byte = 0x05 // | addr -> ed25519 pubkey
	prefixNonceMax      byte = 0x06 // | signer -> u64be
	prefixQueueSeq      byte = 0x07
	prefixMeta          byte = 0x08 // | name
	prefixNodeNonce     byte = 0x09 // | nodeID -> u64be
)

const (
	metaHeight  = "height"
	metaAppHash = "apphash"
	metaParams  = "params"
)

func u64Key(prefix byte, v uint64) []byte {
	k := make([]byte, 9)
	k[0] = prefix
	binary.BigEndian.PutUint64(k[1:], v)
	return k
}

func strKey(prefix byte, s string) []byte {
	k := make([]byte, 0, 1+len(s))
	k = append(k, prefix)
	return append(k, s...)
}

func metaKey(name string) []byte { return strKey(prefixMeta, name) }

func sessionKey(id uint64) []byte { return u64Key(prefixSession, id) }
func archiveKey(id uint64) []byte { return u64Key(prefixArchive, id) }
func pendingKey(queue uint64) []byte { return u64Key(prefixPending, queue) }

func u64Bytes(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}
