package state

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/stanleykosi/veridian/internal/computation"
	"github.com/stanleykosi/veridian/internal/session"
)

// Params is the chain-side configuration fixed at genesis.
type Params struct {
	Cluster           computation.Cluster `json:"cluster"`
	MaxDealerDraws    uint8               `json:"max_dealer_draws,omitempty"`
	ActionTimeoutSecs uint64              `json:"action_timeout_secs,omitempty"`
	InlineResultLimit uint32              `json:"inline_result_limit,omitempty"`
}

func (c *Cache) Params() (Params, bool, error) {
	var p Params
	ok, err := c.getJSON(metaKey(metaParams), &p)
	return p, ok, err
}

func (c *Cache) SetParams(p Params) error {
	return c.setJSON(metaKey(metaParams), p)
}

// NextSessionID allocates a session id. Ids start at 1.
func (c *Cache) NextSessionID() (uint64, error) {
	return c.nextSeq([]byte{prefixNextSessionID})
}

// NextQueueID allocates the global computation queue sequence.
func (c *Cache) NextQueueID() (uint64, error) {
	return c.nextSeq([]byte{prefixQueueSeq})
}

func (c *Cache) nextSeq(key []byte) (uint64, error) {
	b, ok, err := c.get(key)
	if err != nil {
		return 0, err
	}
	next := uint64(1)
	if ok {
		if len(b) != 8 {
			return 0, fmt.Errorf("corrupt sequence %x", key)
		}
		next = binary.BigEndian.Uint64(b)
	}
	if next == ^uint64(0) {
		return 0, fmt.Errorf("sequence %x exhausted", key)
	}
	c.Set(key, u64Bytes(next+1))
	return next, nil
}

func (c *Cache) Session(id uint64) (*session.Session, bool, error) {
	var s session.Session
	ok, err := c.getJSON(sessionKey(id), &s)
	if err != nil || !ok {
		return nil, false, err
	}
	return &s, true, nil
}

// SetSession stores s and keeps the pending index in step with s.Pending.
// prevQueue is the queue id that was pending before the change (0 if none).
func (c *Cache) SetSession(s *session.Session, prevQueue uint64) error {
	if s == nil || s.ID == 0 {
		return fmt.Errorf("set session: missing id")
	}
	var queue uint64
	if s.Pending != nil {
		queue = s.Pending.QueueID
	}
	if prevQueue != 0 && prevQueue != queue {
		c.Delete(pendingKey(prevQueue))
	}
	if queue != 0 {
		c.Set(pendingKey(queue), u64Bytes(s.ID))
	}
	return c.setJSON(sessionKey(s.ID), s)
}

// ArchiveSession moves a closed session out of the live set.
func (c *Cache) ArchiveSession(s *session.Session) error {
	if s == nil || !s.Closed {
		return fmt.Errorf("archive session: session is not closed")
	}
	if s.Pending != nil {
		return fmt.Errorf("archive session %d: request outstanding", s.ID)
	}
	c.Delete(sessionKey(s.ID))
	return c.setJSON(archiveKey(s.ID), s)
}

func (c *Cache) AccountKey(addr string) ([]byte, error) {
	return c.Get(strKey(prefixAccountKey, addr))
}

func (c *Cache) SetAccountKey(addr string, pub []byte) {
	c.Set(strKey(prefixAccountKey, addr), pub)
}

// NonceMax is the highest tx.nonce accepted from an account signer.
func (c *Cache) NonceMax(signer string) (uint64, bool, error) {
	return c.u64(strKey(prefixNonceMax, signer))
}

func (c *Cache) SetNonceMax(signer string, nonce uint64) {
	c.Set(strKey(prefixNonceMax, signer), u64Bytes(nonce))
}

// NodeNonceMax is the highest tx.nonce accepted from a cluster node. Nodes
// keep their own table so no account name can reach a node's counter.
func (c *Cache) NodeNonceMax(nodeID string) (uint64, bool, error) {
	return c.u64(strKey(prefixNodeNonce, nodeID))
}

func (c *Cache) SetNodeNonceMax(nodeID string, nonce uint64) {
	c.Set(strKey(prefixNodeNonce, nodeID), u64Bytes(nonce))
}

func (c *Cache) u64(key []byte) (uint64, bool, error) {
	b, ok, err := c.get(key)
	if err != nil || !ok {
		return 0, false, err
	}
	if len(b) != 8 {
		return 0, false, fmt.Errorf("corrupt u64 at %x", key)
	}
	return binary.BigEndian.Uint64(b), true, nil
}

func (c *Cache) getJSON(key []byte, v any) (bool, error) {
	b, ok, err := c.get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("decode %x: %w", key, err)
	}
	return true, nil
}

func (c *Cache) setJSON(key []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %x: %w", key, err)
	}
	c.Set(key, b)
	return nil
}

// PendingSessions lists committed sessions with a request outstanding, in
// queue order.
func (s *Store) PendingSessions() ([]*session.Session, error) {
	var ids []uint64
	err := s.iterate([]byte{prefixPending}, func(_, v []byte) error {
		if len(v) != 8 {
			return fmt.Errorf("corrupt pending index entry")
		}
		ids = append(ids, binary.BigEndian.Uint64(v))
		return nil
	})
	if err != nil {
		return nil, err
	}
	view := s.Cache()
	out := make([]*session.Session, 0, len(ids))
	for _, id := range ids {
		sess, ok, err := view.Session(id)
		if err != nil {
			return nil, err
		}
		if ok && sess.Pending != nil {
			out = append(out, sess)
		}
	}
	return out, nil
}

// Archived reads a closed session from the archive.
func (s *Store) Archived(id uint64) (*session.Session, bool, error) {
	b, err := s.archive.Get(u64Bytes(id))
	if err != nil {
		return nil, false, fmt.Errorf("get archived %d: %w", id, err)
	}
	if b == nil {
		return nil, false, nil
	}
	var sess session.Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return nil, false, fmt.Errorf("decode archived %d: %w", id, err)
	}
	return &sess, true, nil
}
