// Package memory implements a kv plugin that keeps all stores in memory.
// It is meant for tests and for dry runs that must not touch the disk.
package memory

import (
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/jrife/osdplacement/storage/kv"
)

const (
	// DriverName is the name of the memory plugin
	DriverName = "memory"
)

// Plugins returns the memory plugins
func Plugins() []kv.Plugin {
	return []kv.Plugin{
		&MemoryPlugin{},
	}
}

var _ kv.Plugin = (*MemoryPlugin)(nil)

// MemoryPlugin creates in-memory root stores
type MemoryPlugin struct {
}

// Name implements kv.Plugin.Name
func (plugin *MemoryPlugin) Name() string {
	return DriverName
}

// NewRootStore implements kv.Plugin.NewRootStore. It takes no options.
func (plugin *MemoryPlugin) NewRootStore(options kv.PluginOptions) (kv.RootStore, error) {
	return New(), nil
}

// NewTempRootStore implements kv.Plugin.NewTempRootStore
func (plugin *MemoryPlugin) NewTempRootStore() (kv.RootStore, error) {
	return New(), nil
}

var _ kv.RootStore = (*MemoryRootStore)(nil)

// MemoryRootStore keeps every store as a sorted map. Write
// transactions are serialized and work on a copy of the store
// that replaces the original on commit.
type MemoryRootStore struct {
	mu      sync.Mutex
	writers sync.Mutex
	closed  bool
	stores  *treemap.Map
}

// New creates an empty root store
func New() *MemoryRootStore {
	return &MemoryRootStore{stores: treemap.NewWithStringComparator()}
}

// Close implements kv.RootStore.Close
func (rootStore *MemoryRootStore) Close() error {
	rootStore.mu.Lock()
	defer rootStore.mu.Unlock()

	rootStore.closed = true

	return nil
}

// Delete implements kv.RootStore.Delete
func (rootStore *MemoryRootStore) Delete() error {
	rootStore.mu.Lock()
	defer rootStore.mu.Unlock()

	rootStore.closed = true
	rootStore.stores.Clear()

	return nil
}

// Stores implements kv.RootStore.Stores
func (rootStore *MemoryRootStore) Stores() ([][]byte, error) {
	rootStore.mu.Lock()
	defer rootStore.mu.Unlock()

	if rootStore.closed {
		return nil, kv.ErrClosed
	}

	names := [][]byte{}

	for _, name := range rootStore.stores.Keys() {
		names = append(names, []byte(name.(string)))
	}

	return names, nil
}

// Store implements kv.RootStore.Store
func (rootStore *MemoryRootStore) Store(name []byte) kv.Store {
	return &MemoryStore{rootStore: rootStore, name: name}
}

var _ kv.Store = (*MemoryStore)(nil)

// MemoryStore is a handle for one store of a MemoryRootStore
type MemoryStore struct {
	rootStore *MemoryRootStore
	name      []byte
}

// Name implements kv.Store.Name
func (store *MemoryStore) Name() []byte {
	return store.name
}

// Create implements kv.Store.Create
func (store *MemoryStore) Create() error {
	store.rootStore.mu.Lock()
	defer store.rootStore.mu.Unlock()

	if store.rootStore.closed {
		return kv.ErrClosed
	}

	if _, ok := store.rootStore.stores.Get(string(store.name)); !ok {
		store.rootStore.stores.Put(string(store.name), kv.NewFakeMap())
	}

	return nil
}

// Delete implements kv.Store.Delete
func (store *MemoryStore) Delete() error {
	store.rootStore.mu.Lock()
	defer store.rootStore.mu.Unlock()

	if store.rootStore.closed {
		return kv.ErrClosed
	}

	store.rootStore.stores.Remove(string(store.name))

	return nil
}

// Begin implements kv.Store.Begin
func (store *MemoryStore) Begin(writable bool) (kv.Transaction, error) {
	if writable {
		store.rootStore.writers.Lock()
	}

	store.rootStore.mu.Lock()
	defer store.rootStore.mu.Unlock()

	err := kv.ErrNoSuchStore

	if store.rootStore.closed {
		err = kv.ErrClosed
	} else if m, ok := store.rootStore.stores.Get(string(store.name)); ok {
		return &MemoryTransaction{store: store, FakeMap: m.(*kv.FakeMap).Clone(), writable: writable}, nil
	}

	if writable {
		store.rootStore.writers.Unlock()
	}

	return nil, err
}

var _ kv.Transaction = (*MemoryTransaction)(nil)

// MemoryTransaction works on a private copy of the store
type MemoryTransaction struct {
	*kv.FakeMap
	store    *MemoryStore
	writable bool
	done     bool
}

// Put implements kv.Transaction.Put
func (transaction *MemoryTransaction) Put(key, value []byte) error {
	if !transaction.writable {
		return kv.ErrReadOnly
	}

	return transaction.FakeMap.Put(key, value)
}

// Delete implements kv.Transaction.Delete
func (transaction *MemoryTransaction) Delete(key []byte) error {
	if !transaction.writable {
		return kv.ErrReadOnly
	}

	return transaction.FakeMap.Delete(key)
}

// Commit implements kv.Transaction.Commit
func (transaction *MemoryTransaction) Commit() error {
	if transaction.done {
		return nil
	}

	transaction.done = true

	if !transaction.writable {
		return nil
	}

	defer transaction.store.rootStore.writers.Unlock()

	rootStore := transaction.store.rootStore
	rootStore.mu.Lock()
	defer rootStore.mu.Unlock()

	if rootStore.closed {
		return kv.ErrClosed
	}

	if _, ok := rootStore.stores.Get(string(transaction.store.name)); !ok {
		return kv.ErrNoSuchStore
	}

	rootStore.stores.Put(string(transaction.store.name), transaction.FakeMap)

	return nil
}

// Rollback implements kv.Transaction.Rollback
func (transaction *MemoryTransaction) Rollback() error {
	if transaction.done {
		return nil
	}

	transaction.done = true

	if transaction.writable {
		transaction.store.rootStore.writers.Unlock()
	}

	return nil
}
