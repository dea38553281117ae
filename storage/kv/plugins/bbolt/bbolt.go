// Package bbolt implements a kv plugin on top of a bbolt database file.
// Every store is a top-level bucket of the database.
package bbolt

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jrife/osdplacement/storage/kv"
	"github.com/jrife/osdplacement/utils/uuid"
	bolt "go.etcd.io/bbolt"
)

const (
	// DriverName is the name of the bbolt plugin
	DriverName = "bbolt"
	// DefaultOpenTimeout is how long opening waits for the file lock
	DefaultOpenTimeout = time.Second
)

// Plugins returns the bbolt plugins
func Plugins() []kv.Plugin {
	return []kv.Plugin{
		&BBoltPlugin{},
	}
}

var _ kv.Plugin = (*BBoltPlugin)(nil)

// BBoltPlugin creates bbolt root stores
type BBoltPlugin struct {
}

// Name implements kv.Plugin.Name
func (plugin *BBoltPlugin) Name() string {
	return DriverName
}

// NewRootStore implements kv.Plugin.NewRootStore. The "path"
// option names the database file and is required.
func (plugin *BBoltPlugin) NewRootStore(options kv.PluginOptions) (kv.RootStore, error) {
	var config BBoltRootStoreConfig

	if path, ok := options["path"]; !ok {
		return nil, fmt.Errorf("\"path\" is required")
	} else if pathString, ok := path.(string); !ok {
		return nil, fmt.Errorf("\"path\" must be a string")
	} else {
		config.Path = pathString
	}

	rootStore, err := New(config)

	if err != nil {
		return nil, err
	}

	return rootStore, nil
}

// NewTempRootStore implements kv.Plugin.NewTempRootStore
func (plugin *BBoltPlugin) NewTempRootStore() (kv.RootStore, error) {
	return plugin.NewRootStore(kv.PluginOptions{
		"path": filepath.Join(os.TempDir(), fmt.Sprintf("bbolt-%s", uuid.MustUUID())),
	})
}

// BBoltRootStoreConfig configures a bbolt root store
type BBoltRootStoreConfig struct {
	Path string
}

var _ kv.RootStore = (*BBoltRootStore)(nil)

// BBoltRootStore is a root store backed by one bbolt database
type BBoltRootStore struct {
	db *bolt.DB
}

// New opens or creates the bbolt database at config.Path
func New(config BBoltRootStoreConfig) (*BBoltRootStore, error) {
	db, err := bolt.Open(config.Path, 0666, &bolt.Options{Timeout: DefaultOpenTimeout})

	if err != nil {
		return nil, fmt.Errorf("could not open bbolt store at %s: %s", config.Path, err.Error())
	}

	return &BBoltRootStore{db: db}, nil
}

// Close implements kv.RootStore.Close
func (rootStore *BBoltRootStore) Close() error {
	return rootStore.db.Close()
}

// Delete implements kv.RootStore.Delete
func (rootStore *BBoltRootStore) Delete() error {
	path := rootStore.db.Path()

	if err := rootStore.Close(); err != nil {
		return fmt.Errorf("could not close store: %s", err.Error())
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("could not remove path %s: %s", path, err.Error())
	}

	return nil
}

// Stores implements kv.RootStore.Stores
func (rootStore *BBoltRootStore) Stores() ([][]byte, error) {
	names := [][]byte{}

	err := rootStore.db.View(func(txn *bolt.Tx) error {
		return txn.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, append([]byte{}, name...))

			return nil
		})
	})

	if err != nil {
		return nil, wrapError(err)
	}

	return names, nil
}

// Store implements kv.RootStore.Store
func (rootStore *BBoltRootStore) Store(name []byte) kv.Store {
	return &BBoltStore{db: rootStore.db, name: name}
}

var _ kv.Store = (*BBoltStore)(nil)

// BBoltStore is a store kept in a top-level bucket
type BBoltStore struct {
	db   *bolt.DB
	name []byte
}

// Name implements kv.Store.Name
func (store *BBoltStore) Name() []byte {
	return store.name
}

// Create implements kv.Store.Create
func (store *BBoltStore) Create() error {
	return wrapError(store.db.Update(func(txn *bolt.Tx) error {
		_, err := txn.CreateBucketIfNotExists(store.name)

		return err
	}))
}

// Delete implements kv.Store.Delete
func (store *BBoltStore) Delete() error {
	return wrapError(store.db.Update(func(txn *bolt.Tx) error {
		if err := txn.DeleteBucket(store.name); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}

		return nil
	}))
}

// Begin implements kv.Store.Begin
func (store *BBoltStore) Begin(writable bool) (kv.Transaction, error) {
	transaction, err := store.db.Begin(writable)

	if err != nil {
		return nil, fmt.Errorf("could not begin transaction: %w", wrapError(err))
	}

	bucket := transaction.Bucket(store.name)

	if bucket == nil {
		transaction.Rollback()

		return nil, kv.ErrNoSuchStore
	}

	return &BBoltTransaction{transaction: transaction, bucket: bucket}, nil
}

var _ kv.Transaction = (*BBoltTransaction)(nil)

// BBoltTransaction is a transaction scoped to one store
type BBoltTransaction struct {
	transaction *bolt.Tx
	bucket      *bolt.Bucket
}

// Put implements kv.Transaction.Put
func (transaction *BBoltTransaction) Put(key []byte, value []byte) error {
	if len(key) == 0 {
		return kv.ErrEmptyKey
	}

	if !transaction.transaction.Writable() {
		return kv.ErrReadOnly
	}

	return transaction.bucket.Put(key, value)
}

// Delete implements kv.Transaction.Delete
func (transaction *BBoltTransaction) Delete(key []byte) error {
	if len(key) == 0 {
		return kv.ErrEmptyKey
	}

	if !transaction.transaction.Writable() {
		return kv.ErrReadOnly
	}

	return transaction.bucket.Delete(key)
}

// Get implements kv.Transaction.Get. The returned value
// remains valid after the transaction ends.
func (transaction *BBoltTransaction) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, kv.ErrEmptyKey
	}

	value := transaction.bucket.Get(key)

	if value == nil {
		return nil, nil
	}

	return append([]byte{}, value...), nil
}

// Keys implements kv.Transaction.Keys
func (transaction *BBoltTransaction) Keys(prefix []byte, order kv.SortOrder) (kv.Iterator, error) {
	return &BBoltIterator{cursor: transaction.bucket.Cursor(), prefix: prefix, order: order}, nil
}

// Commit implements kv.Transaction.Commit
func (transaction *BBoltTransaction) Commit() error {
	return wrapError(transaction.transaction.Commit())
}

// Rollback implements kv.Transaction.Rollback
func (transaction *BBoltTransaction) Rollback() error {
	if err := transaction.transaction.Rollback(); err != nil && !errors.Is(err, bolt.ErrTxClosed) {
		return err
	}

	return nil
}

var _ kv.Iterator = (*BBoltIterator)(nil)

// BBoltIterator iterates over the keys of a store
type BBoltIterator struct {
	cursor  *bolt.Cursor
	prefix  []byte
	order   kv.SortOrder
	started bool
	key     []byte
	value   []byte
}

// Next implements kv.Iterator.Next
func (iterator *BBoltIterator) Next() bool {
	var key, value []byte

	switch {
	case !iterator.started && iterator.order == kv.SortOrderDesc:
		key, value = iterator.last()
	case !iterator.started:
		key, value = iterator.cursor.Seek(iterator.prefix)
	case iterator.order == kv.SortOrderDesc:
		key, value = iterator.cursor.Prev()
	default:
		key, value = iterator.cursor.Next()
	}

	iterator.started = true

	if key == nil || !bytes.HasPrefix(key, iterator.prefix) {
		iterator.key, iterator.value = nil, nil

		return false
	}

	iterator.key, iterator.value = key, value

	return true
}

// last positions the cursor on the last key with the prefix
func (iterator *BBoltIterator) last() ([]byte, []byte) {
	if len(iterator.prefix) == 0 {
		return iterator.cursor.Last()
	}

	key, _ := iterator.cursor.Seek(iterator.prefix)

	for key != nil && bytes.HasPrefix(key, iterator.prefix) {
		key, _ = iterator.cursor.Next()
	}

	if key == nil {
		return iterator.cursor.Last()
	}

	return iterator.cursor.Prev()
}

// Key implements kv.Iterator.Key
func (iterator *BBoltIterator) Key() []byte {
	return iterator.key
}

// Value implements kv.Iterator.Value
func (iterator *BBoltIterator) Value() []byte {
	return iterator.value
}

// Error implements kv.Iterator.Error
func (iterator *BBoltIterator) Error() error {
	return nil
}

func wrapError(err error) error {
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return kv.ErrClosed
	}

	return err
}
