package kv

import (
	"bytes"

	"github.com/emirpasic/gods/maps/treemap"
)

var _ Map = (*FakeMap)(nil)

// FakeMap is an in-memory implementation of the
// Map interface
type FakeMap struct {
	m *treemap.Map
}

// NewFakeMap creates a new FakeMap
func NewFakeMap() *FakeMap {
	return &FakeMap{m: treemap.NewWith(func(a, b interface{}) int {
		return bytes.Compare(a.([]byte), b.([]byte))
	})}
}

// Clone returns an independent copy of the map
func (m *FakeMap) Clone() *FakeMap {
	clone := NewFakeMap()
	iter := m.m.Iterator()

	for iter.Next() {
		clone.m.Put(iter.Key(), iter.Value())
	}

	return clone
}

// Put implements Map.Put
func (m *FakeMap) Put(key, value []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}

	m.m.Put(append([]byte{}, key...), append([]byte{}, value...))

	return nil
}

// Delete implements Map.Delete
func (m *FakeMap) Delete(key []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}

	m.m.Remove(key)

	return nil
}

// Get implements Map.Get
func (m *FakeMap) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}

	v, ok := m.m.Get(key)

	if !ok {
		return nil, nil
	}

	return append([]byte{}, v.([]byte)...), nil
}

// Keys implements Map.Keys
func (m *FakeMap) Keys(prefix []byte, order SortOrder) (Iterator, error) {
	iter := m.m.Iterator()

	if order == SortOrderDesc {
		iter.End()
	} else {
		iter.Begin()
	}

	return &FakeIterator{iter: iter, prefix: prefix, order: order}, nil
}

var _ Iterator = (*FakeIterator)(nil)

// FakeIterator is the iterator implementation for FakeMap
type FakeIterator struct {
	iter   treemap.Iterator
	prefix []byte
	order  SortOrder
}

// Next implements Iterator.Next
func (iter *FakeIterator) Next() bool {
	advance := iter.iter.Next

	if iter.order == SortOrderDesc {
		advance = iter.iter.Prev
	}

	for advance() {
		if bytes.HasPrefix(iter.iter.Key().([]byte), iter.prefix) {
			return true
		}
	}

	return false
}

// Key implements Iterator.Key
func (iter *FakeIterator) Key() []byte {
	return iter.iter.Key().([]byte)
}

// Value implements Iterator.Value
func (iter *FakeIterator) Value() []byte {
	return iter.iter.Value().([]byte)
}

// Error implements Iterator.Error
func (iter *FakeIterator) Error() error {
	return nil
}
