// Package engine persists a hypergraph on a sorted key/value store.
// See doc.go for complete package documentation.
package engine

import (
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"go.uber.org/zap"

	"github.com/dreamware/hyperstore/internal/atom"
	"github.com/dreamware/hyperstore/internal/keys"
	"github.com/dreamware/hyperstore/internal/sidcodec"
	"github.com/dreamware/hyperstore/internal/storage"
)

// Scheme is the accepted URI scheme: hyper://<absolute-path>.
const Scheme = "hyper://"

// Databases are created at version 2; version 1 databases open but
// refuse frame deletion.
const (
	currentVersion = 2
	oldestVersion  = 1
)

// fdReserve is subtracted from the process file-descriptor limit when
// deriving the table-file budget, leaving room for everything else the
// process holds open.
const fdReserve = 230

// Options configure Open. The zero value is a read-write store with the
// open-file budget derived from RLIMIT_NOFILE and no logging.
type Options struct {
	// MaxOpenFiles overrides the rlimit-derived table-file budget.
	MaxOpenFiles int

	// ReadOnly opens an existing database without write access. Close
	// skips the high-water flush.
	ReadOnly bool

	// Logger receives debug/info events. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Storage is an open hypergraph store bound to one database path. It is
// safe for concurrent use by multiple goroutines.
type Storage struct {
	uri      string
	path     string
	readOnly bool
	log      *zap.Logger
	db       storage.Store
	closed   atomic.Bool

	// nextAID is the next unissued atom id. sidMu serializes issuance
	// together with the initial insert of each new atom, so two threads
	// racing the forward lookup cannot give one atom two sids.
	nextAID atomic.Uint64
	sidMu   sync.Mutex

	// listMu serializes read-modify-write of the h@ sid lists.
	listMu sync.Mutex

	tvPredSid  string
	version    int
	multiSpace atomic.Bool

	// boundSpace is the single space written in single-graph mode;
	// writing a second distinct space is an error until frames are
	// enabled.
	boundSpace *atom.Space

	// frameMu guards all four frame caches.
	frameMu    sync.Mutex
	frameMap   map[*atom.Space]string
	fidMap     map[string]*atom.Space
	topFrames  map[*atom.Space]bool
	orderCache map[*atom.Space][]frameRef

	nStores  atomic.Uint64
	nFetches atomic.Uint64
	nDeletes atomic.Uint64
}

// openPaths detects double-open: one Storage per normalized path per
// process.
var (
	openMu    sync.Mutex
	openPaths = map[string]*Storage{}
)

// Open opens (creating if needed) the store at a hyper:// URI. The path
// is lexically normalized, so two URIs spelled differently for the same
// location still collide in the double-open check.
func Open(uri string, o *Options) (*Storage, error) {
	if o == nil {
		o = &Options{}
	}
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}

	if !strings.HasPrefix(uri, Scheme) {
		return nil, configErrf("unknown URI %q; URIs start with %q", uri, Scheme)
	}
	path := uri[len(Scheme):]
	if !strings.HasPrefix(path, "/") {
		return nil, configErrf("URI path %q is not absolute", path)
	}
	path = filepath.Clean(path)

	maxOpen := o.MaxOpenFiles
	if maxOpen == 0 {
		var err error
		maxOpen, err = openFileBudget()
		if err != nil {
			return nil, err
		}
	}

	openMu.Lock()
	defer openMu.Unlock()
	if _, dup := openPaths[path]; dup {
		return nil, stateErrf("database %q is already open", path)
	}

	db, err := storage.OpenLevel(path, storage.LevelOptions{
		MaxOpenFiles: maxOpen,
		ReadOnly:     o.ReadOnly,
	})
	if err != nil {
		return nil, configErrf("can't open %q: %v", path, err)
	}

	s := &Storage{
		uri:        Scheme + path,
		path:       path,
		readOnly:   o.ReadOnly,
		log:        log,
		db:         db,
		frameMap:   map[*atom.Space]string{},
		fidMap:     map[string]*atom.Space{},
		topFrames:  map[*atom.Space]bool{},
		orderCache: map[*atom.Space][]frameRef{},
	}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	openPaths[path] = s
	log.Debug("opened store",
		zap.String("uri", s.uri),
		zap.Uint64("next_aid", s.nextAID.Load()),
		zap.Bool("multi_space", s.multiSpace.Load()))
	return s, nil
}

// openFileBudget derives the table-file cache size from RLIMIT_NOFILE.
// The LSM's table files each consume a descriptor; overflowing the
// process limit turns into failed reads, so the budget must stay under
// it with a reserve for everything else.
func openFileBudget() (int, error) {
	var lim syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &lim); err != nil {
		return 0, configErrf("reading RLIMIT_NOFILE: %v", err)
	}
	cur := int(lim.Cur)
	if cur <= 256 {
		return 0, configErrf("open file limit %d too low; set ulimit -n 1024 or larger", cur)
	}
	return cur - fdReserve, nil
}

// init verifies the version, recovers the aid counter, detects layered
// mode, and bootstraps the truth-value predicate.
func (s *Storage) init() error {
	v, err := s.db.Get(keys.VersionKey)
	switch {
	case err == storage.ErrKeyNotFound:
		if s.readOnly {
			return configErrf("%q is empty; nothing to read", s.path)
		}
		s.version = currentVersion
		if err := s.db.Put(keys.VersionKey, []byte("2")); err != nil {
			return internalErr(err, "writing version")
		}
	case err != nil:
		return internalErr(err, "reading version")
	default:
		switch string(v) {
		case "1":
			s.version = oldestVersion
		case "2":
			s.version = currentVersion
		default:
			return configErrf("unsupported database version %q", string(v))
		}
	}

	v, err = s.db.Get(keys.AidKey)
	switch {
	case err == storage.ErrKeyNotFound:
		s.nextAID.Store(1)
		if !s.readOnly {
			if err := s.db.Put(keys.AidKey, []byte(sidcodec.Encode(1))); err != nil {
				return internalErr(err, "writing initial aid")
			}
		}
	case err != nil:
		return internalErr(err, "reading aid high-water mark")
	default:
		s.nextAID.Store(sidcodec.Decode(string(v)) + 1)
	}

	it := s.db.Scan(keys.PfxFrame)
	s.multiSpace.Store(it.Next())
	it.Release()

	// The truth-value predicate lives outside normal atomspace
	// management; pin its sid now so value scans can special-case it.
	tvp := atom.TruthValueKey()
	if s.readOnly {
		sid, err := s.findSid(tvp)
		if err != nil {
			return err
		}
		s.tvPredSid = sid
	} else {
		sid, err := s.writeAtom(tvp)
		if err != nil {
			return err
		}
		s.tvPredSid = sid
	}
	return nil
}

// Close flushes the high-water mark (unless read-only), releases the
// database handle, and clears the in-memory caches. Closing twice is a
// state error.
func (s *Storage) Close() error {
	if s.closed.Swap(true) {
		return stateErrf("store already closed")
	}
	if !s.readOnly {
		if err := s.writeAid(); err != nil {
			return err
		}
	}
	s.log.Debug("closing store",
		zap.String("uri", s.uri),
		zap.Uint64("final_aid", s.nextAID.Load()))
	err := s.db.Close()

	openMu.Lock()
	delete(openPaths, s.path)
	openMu.Unlock()

	s.frameMu.Lock()
	s.frameMap = map[*atom.Space]string{}
	s.fidMap = map[string]*atom.Space{}
	s.topFrames = map[*atom.Space]bool{}
	s.orderCache = map[*atom.Space][]frameRef{}
	s.frameMu.Unlock()
	if err != nil {
		return internalErr(err, "closing database")
	}
	return nil
}

// Barrier persists the high-water mark. Durability between barriers is
// whatever the underlying store provides.
func (s *Storage) Barrier() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.readOnly {
		return nil
	}
	return s.writeAid()
}

// URI returns the normalized URI the store was opened with.
func (s *Storage) URI() string { return s.uri }

// Version returns the on-disk format version.
func (s *Storage) Version() int { return s.version }

// MultiSpace reports whether the store is in layered (overlay) mode.
func (s *Storage) MultiSpace() bool { return s.multiSpace.Load() }

// newSID issues the next sid and durably advances the on-disk counter.
// Callers hold sidMu. Writing on every allocation is slightly wasteful
// but means the on-disk counter is never behind a sid that appears in
// any persisted record, whatever instant a crash happens.
func (s *Storage) newSID() (string, error) {
	naid := s.nextAID.Add(1)
	sid := sidcodec.Encode(naid - 1)
	if err := s.db.Put(keys.AidKey, []byte(sidcodec.Encode(naid))); err != nil {
		return "", internalErr(err, "persisting aid high-water mark")
	}
	return sid, nil
}

// writeAid stores the highest issued aid, nextAID-1. This is one below
// what newSID writes (the next unissued aid); Open resumes one above the
// stored value in both cases, so no issued sid is handed out again.
func (s *Storage) writeAid() error {
	naid := s.nextAID.Load() - 1
	if err := s.db.Put(keys.AidKey, []byte(sidcodec.Encode(naid))); err != nil {
		return internalErr(err, "persisting aid high-water mark")
	}
	return nil
}

func (s *Storage) checkOpen() error {
	if s.closed.Load() {
		return stateErrf("store is closed")
	}
	return nil
}

func (s *Storage) checkWritable() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.readOnly {
		return stateErrf("store is read-only")
	}
	return nil
}
