package storage

import (
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	ldbiter "github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelStore implements Store on an embedded goleveldb database.
type LevelStore struct {
	db *leveldb.DB
}

// LevelOptions configure OpenLevel.
type LevelOptions struct {
	// MaxOpenFiles bounds the table-file cache. The LSM does not consult
	// the process file-descriptor limit on its own; overflowing it turns
	// into failed reads, so the caller derives a budget from rlimits.
	MaxOpenFiles int

	// ReadOnly opens the database without write access; the database
	// must already exist.
	ReadOnly bool
}

// OpenLevel opens (creating if needed) a goleveldb database at path.
func OpenLevel(path string, o LevelOptions) (*LevelStore, error) {
	opts := &opt.Options{
		Compression:            opt.SnappyCompression,
		OpenFilesCacheCapacity: o.MaxOpenFiles,
		ReadOnly:               o.ReadOnly,
	}
	db, err := leveldb.OpenFile(path, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	return &LevelStore{db: db}, nil
}

// Get retrieves the value stored under key.
func (s *LevelStore) Get(key string) ([]byte, error) {
	v, err := s.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get %q", key)
	}
	return v, nil
}

// Put stores value under key.
func (s *LevelStore) Put(key string, value []byte) error {
	if err := s.db.Put([]byte(key), value, nil); err != nil {
		return errors.Wrapf(err, "put %q", key)
	}
	return nil
}

// Delete removes key; absent keys are ignored.
func (s *LevelStore) Delete(key string) error {
	if err := s.db.Delete([]byte(key), nil); err != nil {
		return errors.Wrapf(err, "delete %q", key)
	}
	return nil
}

// Scan returns a snapshot iterator over keys sharing prefix, in order.
func (s *LevelStore) Scan(prefix string) Iterator {
	var rng *util.Range
	if prefix != "" {
		rng = util.BytesPrefix([]byte(prefix))
	}
	return &levelIterator{iter: s.db.NewIterator(rng, nil)}
}

// Property returns a goleveldb property string such as "leveldb.stats".
func (s *LevelStore) Property(name string) string {
	v, err := s.db.GetProperty(name)
	if err != nil {
		return ""
	}
	return v
}

// Close releases the database handle.
func (s *LevelStore) Close() error {
	return errors.Wrap(s.db.Close(), "closing leveldb")
}

// levelIterator adapts a goleveldb iterator. The underlying iterator
// reuses its key and value buffers between Next calls, so both are
// copied out before they are handed to the caller.
type levelIterator struct {
	iter ldbiter.Iterator
}

func (it *levelIterator) Next() bool { return it.iter.Next() }

func (it *levelIterator) Key() string {
	return string(it.iter.Key())
}

func (it *levelIterator) Value() []byte {
	v := it.iter.Value()
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

func (it *levelIterator) Error() error { return it.iter.Error() }

func (it *levelIterator) Release() { it.iter.Release() }
