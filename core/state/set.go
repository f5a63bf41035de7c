package state

import (
	"encoding/binary"
	"fmt"
)

// IndexedSet is a persisted, 1-indexed membership list. Slot 0 is never
// used so that a zero index means "absent". Removal moves the last member
// into the vacated slot.
type IndexedSet struct {
	m      *Manager
	prefix string
}

// NewIndexedSet returns the set stored under prefix.
func NewIndexedSet(m *Manager, prefix string) IndexedSet {
	return IndexedSet{m: m, prefix: prefix}
}

func (s IndexedSet) countKey() []byte {
	return Key(s.prefix, []byte("count"))
}

func (s IndexedSet) itemKey(index uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], index)
	return Key(s.prefix, []byte("item"), buf[:])
}

func (s IndexedSet) indexKey(member []byte) []byte {
	return Key(s.prefix, []byte("index"), member)
}

// Len returns the number of members.
func (s IndexedSet) Len() (uint64, error) {
	var count uint64
	if _, err := s.m.KVGet(s.countKey(), &count); err != nil {
		return 0, err
	}
	return count, nil
}

// IndexOf returns the 1-based slot of member, or zero when absent.
func (s IndexedSet) IndexOf(member []byte) (uint64, error) {
	var index uint64
	if _, err := s.m.KVGet(s.indexKey(member), &index); err != nil {
		return 0, err
	}
	return index, nil
}

// Contains reports whether member is present.
func (s IndexedSet) Contains(member []byte) (bool, error) {
	index, err := s.IndexOf(member)
	return index != 0, err
}

// At returns the member stored at the 1-based slot.
func (s IndexedSet) At(index uint64) ([]byte, error) {
	var member []byte
	ok, err := s.m.KVGet(s.itemKey(index), &member)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("state: %s slot %d empty", s.prefix, index)
	}
	return member, nil
}

// Add appends member if absent and reports whether it was added.
func (s IndexedSet) Add(member []byte) (bool, error) {
	index, err := s.IndexOf(member)
	if err != nil || index != 0 {
		return false, err
	}
	count, err := s.Len()
	if err != nil {
		return false, err
	}
	count++
	if err := s.m.KVPut(s.itemKey(count), member); err != nil {
		return false, err
	}
	if err := s.m.KVPut(s.indexKey(member), count); err != nil {
		return false, err
	}
	return true, s.m.KVPut(s.countKey(), count)
}

// Remove deletes member if present and reports whether it was removed.
func (s IndexedSet) Remove(member []byte) (bool, error) {
	index, err := s.IndexOf(member)
	if err != nil || index == 0 {
		return false, err
	}
	count, err := s.Len()
	if err != nil {
		return false, err
	}
	if index != count {
		last, err := s.At(count)
		if err != nil {
			return false, err
		}
		if err := s.m.KVPut(s.itemKey(index), last); err != nil {
			return false, err
		}
		if err := s.m.KVPut(s.indexKey(last), index); err != nil {
			return false, err
		}
	}
	if err := s.m.KVDelete(s.itemKey(count)); err != nil {
		return false, err
	}
	if err := s.m.KVDelete(s.indexKey(member)); err != nil {
		return false, err
	}
	if count-1 == 0 {
		return true, s.m.KVDelete(s.countKey())
	}
	return true, s.m.KVPut(s.countKey(), count-1)
}

// Members returns every member in slot order.
func (s IndexedSet) Members() ([][]byte, error) {
	count, err := s.Len()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, count)
	for i := uint64(1); i <= count; i++ {
		member, err := s.At(i)
		if err != nil {
			return nil, err
		}
		out = append(out, member)
	}
	return out, nil
}
