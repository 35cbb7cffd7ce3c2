package state

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	dbm "github.com/cosmos/cosmos-db"
)

const dbName = "veridian"

// Store is the committed key/value state. All writes go through a Cache and
// land in a single batch per block in Commit.
type Store struct {
	db      dbm.DB
	archive *dbm.PrefixDB

	height  int64
	appHash []byte
}

// Open opens (or creates) the goleveldb store under dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir home: %w", err)
	}
	db, err := dbm.NewGoLevelDB(dbName, dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return load(db)
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *Store {
	st, err := load(dbm.NewMemDB())
	if err != nil {
		panic(err)
	}
	return st
}

func load(db dbm.DB) (*Store, error) {
	st := &Store{db: db, archive: dbm.NewPrefixDB(db, []byte{prefixArchive})}
	h, err := db.Get(metaKey(metaHeight))
	if err != nil {
		return nil, fmt.Errorf("read height: %w", err)
	}
	if len(h) == 8 {
		st.height = int64(binary.BigEndian.Uint64(h))
	}
	st.appHash, err = db.Get(metaKey(metaAppHash))
	if err != nil {
		return nil, fmt.Errorf("read app hash: %w", err)
	}
	return st, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Height() int64 { return s.height }

// AppHash is the hash committed at Height. It is nil before the first block.
func (s *Store) AppHash() []byte { return bytes.Clone(s.appHash) }

// Cache opens a staged view on top of the committed state.
func (s *Store) Cache() *Cache {
	return &Cache{parent: s, writes: map[string]entry{}}
}

func (s *Store) get(key []byte) ([]byte, bool, error) {
	v, err := s.db.Get(key)
	if err != nil {
		return nil, false, fmt.Errorf("get %x: %w", key, err)
	}
	return v, v != nil, nil
}

// NextAppHash computes the hash Commit would produce for the block writes in
// c without persisting anything.
func (s *Store) NextAppHash(height int64, c *Cache) []byte {
	h := sha256.New()
	h.Write(s.appHash)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(height))
	h.Write(buf[:])
	for _, k := range c.sortedKeys() {
		e := c.writes[k]
		binary.BigEndian.PutUint64(buf[:], uint64(len(k)))
		h.Write(buf[:])
		h.Write([]byte(k))
		if e.deleted {
			h.Write([]byte{0})
			continue
		}
		h.Write([]byte{1})
		binary.BigEndian.PutUint64(buf[:], uint64(len(e.value)))
		h.Write(buf[:])
		h.Write(e.value)
	}
	return h.Sum(nil)
}

// Commit writes the block cache to disk along with the new height and app
// hash and returns the hash. The hash chains over the previous one, so it
// commits to the full write history.
func (s *Store) Commit(height int64, c *Cache) ([]byte, error) {
	if c.parent != Reader(s) {
		return nil, fmt.Errorf("commit: cache is not rooted at this store")
	}
	hash := s.NextAppHash(height, c)

	batch := s.db.NewBatch()
	defer batch.Close()
	for _, k := range c.sortedKeys() {
		e := c.writes[k]
		var err error
		if e.deleted {
			err = batch.Delete([]byte(k))
		} else {
			err = batch.Set([]byte(k), e.value)
		}
		if err != nil {
			return nil, fmt.Errorf("commit %x: %w", k, err)
		}
	}
	var hb [8]byte
	binary.BigEndian.PutUint64(hb[:], uint64(height))
	if err := batch.Set(metaKey(metaHeight), hb[:]); err != nil {
		return nil, fmt.Errorf("commit height: %w", err)
	}
	if err := batch.Set(metaKey(metaAppHash), hash); err != nil {
		return nil, fmt.Errorf("commit app hash: %w", err)
	}
	if err := batch.WriteSync(); err != nil {
		return nil, fmt.Errorf("write batch: %w", err)
	}

	c.writes = map[string]entry{}
	s.height = height
	s.appHash = hash
	return bytes.Clone(hash), nil
}

// iterate calls fn for every committed key with the given prefix, in order.
func (s *Store) iterate(prefix []byte, fn func(k, v []byte) error) error {
	it, err := s.db.Iterator(prefix, prefixEnd(prefix))
	if err != nil {
		return fmt.Errorf("iterate %x: %w", prefix, err)
	}
	defer it.Close()
	for ; it.Valid(); it.Next() {
		if err := fn(it.Key(), it.Value()); err != nil {
			return err
		}
	}
	return it.Error()
}

func prefixEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// Reader is anything a Cache can stage writes over.
type Reader interface {
	get(key []byte) ([]byte, bool, error)
}

type entry struct {
	value   []byte
	deleted bool
}

// Cache buffers writes over a parent. A tx runs on a Cache over the block
// cache and is written back only if it succeeds.
type Cache struct {
	parent Reader
	writes map[string]entry
}

// Cache opens a nested view whose writes land here on Write.
func (c *Cache) Cache() *Cache {
	return &Cache{parent: c, writes: map[string]entry{}}
}

func (c *Cache) get(key []byte) ([]byte, bool, error) {
	if e, ok := c.writes[string(key)]; ok {
		if e.deleted {
			return nil, false, nil
		}
		return e.value, true, nil
	}
	return c.parent.get(key)
}

func (c *Cache) Get(key []byte) ([]byte, error) {
	v, _, err := c.get(key)
	return bytes.Clone(v), err
}

func (c *Cache) Has(key []byte) (bool, error) {
	_, ok, err := c.get(key)
	return ok, err
}

func (c *Cache) Set(key, value []byte) {
	c.writes[string(key)] = entry{value: bytes.Clone(value)}
}

func (c *Cache) Delete(key []byte) {
	c.writes[string(key)] = entry{deleted: true}
}

// Write merges staged writes into the parent cache.
func (c *Cache) Write() error {
	p, ok := c.parent.(*Cache)
	if !ok {
		return fmt.Errorf("write: root cache must be committed through the store")
	}
	for k, e := range c.writes {
		p.writes[k] = e
	}
	c.writes = map[string]entry{}
	return nil
}

// Discard drops staged writes.
func (c *Cache) Discard() {
	c.writes = map[string]entry{}
}

// Dirty reports whether anything is staged.
func (c *Cache) Dirty() bool { return len(c.writes) > 0 }

func (c *Cache) sortedKeys() []string {
	keys := make([]string, 0, len(c.writes))
	for k := range c.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
