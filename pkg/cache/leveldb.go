package cache

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	levelDBEntryPrefix = "e:"
	// expiryLen is the big-endian unix-nanosecond expiry that precedes the
	// JSON value of every record; 0 means never
	expiryLen = 8
)

// LevelDBCache persists entries in a LevelDB database so resolved URLs
// survive restarts of a long-running deployment.
type LevelDBCache struct {
	db *leveldb.DB
}

// NewLevelDBCache opens (or creates) the database at path
func NewLevelDBCache(path string) (*LevelDBCache, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb at %s: %w", path, err)
	}
	return &LevelDBCache{db: db}, nil
}

func levelDBKey(key string) []byte {
	return []byte(levelDBEntryPrefix + key)
}

// Set stores a value with the specified TTL; zero TTL never expires
func (l *LevelDBCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	var expiresAt int64
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl).UnixNano()
	}
	return l.db.Put(levelDBKey(key), encodeRecord(expiresAt, data), nil)
}

// Get retrieves a value and unmarshals it into dest
func (l *LevelDBCache) Get(ctx context.Context, key string, dest interface{}) error {
	b, err := l.db.Get(levelDBKey(key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return ErrCacheNotFound
		}
		return err
	}
	expiresAt, data, err := decodeRecord(b)
	if err != nil {
		return fmt.Errorf("failed to decode cache record %q: %w", key, err)
	}
	if expiresAt != 0 && time.Now().UnixNano() > expiresAt {
		_ = l.db.Delete(levelDBKey(key), nil)
		return ErrCacheExpired
	}
	return json.Unmarshal(data, dest)
}

// Delete removes a single entry
func (l *LevelDBCache) Delete(ctx context.Context, key string) error {
	return l.db.Delete(levelDBKey(key), nil)
}

// Clear removes every entry in one batch
func (l *LevelDBCache) Clear(ctx context.Context) error {
	it := l.db.NewIterator(util.BytesPrefix([]byte(levelDBEntryPrefix)), nil)
	defer it.Release()

	batch := new(leveldb.Batch)
	for it.Next() {
		batch.Delete(append([]byte(nil), it.Key()...))
	}
	if err := it.Error(); err != nil {
		return err
	}
	return l.db.Write(batch, nil)
}

// Len counts stored entries
func (l *LevelDBCache) Len(ctx context.Context) (int, error) {
	it := l.db.NewIterator(util.BytesPrefix([]byte(levelDBEntryPrefix)), nil)
	defer it.Release()

	n := 0
	for it.Next() {
		n++
	}
	return n, it.Error()
}

// Close closes the database
func (l *LevelDBCache) Close() error {
	return l.db.Close()
}

func encodeRecord(expiresAt int64, data []byte) []byte {
	b := make([]byte, expiryLen+len(data))
	binary.BigEndian.PutUint64(b, uint64(expiresAt))
	copy(b[expiryLen:], data)
	return b
}

func decodeRecord(b []byte) (int64, []byte, error) {
	if len(b) < expiryLen {
		return 0, nil, fmt.Errorf("record too short: %d bytes", len(b))
	}
	return int64(binary.BigEndian.Uint64(b[:expiryLen])), b[expiryLen:], nil
}
