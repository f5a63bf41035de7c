package state

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"ripe/storage"
)

var (
	errTxActive   = errors.New("state: unit of work already open")
	errNoTx       = errors.New("state: no unit of work open")
	errEmptyKey   = errors.New("kv: key must not be empty")
	errNilManager = errors.New("state: manager not configured")
)

// Manager provides RLP-encoded key/value access to the credit engine state.
// Writes made between Begin and Commit are buffered in an overlay so that a
// failed operation can be discarded without touching the backing store.
type Manager struct {
	mu      sync.RWMutex
	db      storage.Database
	pending map[string][]byte
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Key joins the supplied segments into a namespaced key. Segments are
// separated by '/' so that distinct prefixes never collide.
func Key(prefix string, parts ...[]byte) []byte {
	size := len(prefix)
	for _, part := range parts {
		size += len(part) + 1
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for _, part := range parts {
		buf = append(buf, '/')
		buf = append(buf, part...)
	}
	return buf
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// Begin opens a unit of work. Only one unit of work may be open at a time.
func (m *Manager) Begin() error {
	if m == nil {
		return errNilManager
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending != nil {
		return errTxActive
	}
	m.pending = make(map[string][]byte)
	return nil
}

// InTx reports whether a unit of work is open.
func (m *Manager) InTx() bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pending != nil
}

// Commit flushes the overlay to the backing store. Backends implementing
// storage.Batcher receive the writes atomically.
func (m *Manager) Commit() error {
	if m == nil {
		return errNilManager
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return errNoTx
	}
	writes := m.pending
	m.pending = nil
	if len(writes) == 0 {
		return nil
	}
	if batcher, ok := m.db.(storage.Batcher); ok {
		return batcher.WriteBatch(writes)
	}
	keys := make([]string, 0, len(writes))
	for key := range writes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value := writes[key]
		var err error
		if value == nil {
			err = m.db.Delete([]byte(key))
		} else {
			err = m.db.Put([]byte(key), value)
		}
		if err != nil {
			return fmt.Errorf("state: commit %x: %w", key, err)
		}
	}
	return nil
}

// Rollback discards the overlay.
func (m *Manager) Rollback() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.pending = nil
	m.mu.Unlock()
}

func (m *Manager) get(hashed []byte) ([]byte, error) {
	m.mu.RLock()
	if m.pending != nil {
		if value, ok := m.pending[string(hashed)]; ok {
			m.mu.RUnlock()
			return value, nil
		}
	}
	m.mu.RUnlock()
	data, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

func (m *Manager) put(hashed, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending != nil {
		m.pending[string(hashed)] = value
		return nil
	}
	if value == nil {
		return m.db.Delete(hashed)
	}
	return m.db.Put(hashed, value)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if m == nil || m.db == nil {
		return errNilManager
	}
	if len(key) == 0 {
		return errEmptyKey
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("kv: encode %s: %w", printableKey(key), err)
	}
	return m.put(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if m == nil || m.db == nil {
		return false, errNilManager
	}
	if len(key) == 0 {
		return false, errEmptyKey
	}
	data, err := m.get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("kv: decode %s: %w", printableKey(key), err)
	}
	return true, nil
}

// KVDelete removes the value stored under key.
func (m *Manager) KVDelete(key []byte) error {
	if m == nil || m.db == nil {
		return errNilManager
	}
	if len(key) == 0 {
		return errEmptyKey
	}
	return m.put(kvKey(key), nil)
}

func printableKey(key []byte) string {
	var b strings.Builder
	for _, c := range key {
		if c >= 0x20 && c < 0x7f {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "\\x%02x", c)
	}
	return b.String()
}
