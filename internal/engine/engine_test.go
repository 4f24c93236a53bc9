package engine

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/hyperstore/internal/atom"
	"github.com/dreamware/hyperstore/internal/keys"
	"github.com/dreamware/hyperstore/internal/sidcodec"
	"github.com/dreamware/hyperstore/internal/storage"
)

// openTemp opens a fresh store in a temp directory and returns it with
// its URI for reopening.
func openTemp(t *testing.T) (*Storage, string) {
	t.Helper()
	uri := Scheme + t.TempDir() + "/graph"
	s, err := Open(uri, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		if !s.closed.Load() {
			s.Close()
		}
	})
	return s, uri
}

// crash abandons the store without flushing the high-water mark,
// simulating a process death between barriers.
func crash(s *Storage) {
	s.closed.Store(true)
	s.db.Close()
	openMu.Lock()
	delete(openPaths, s.path)
	openMu.Unlock()
}

// reopen opens the same URI again after the caller has closed (or
// crashed) the previous store.
func reopen(t *testing.T, uri string) *Storage {
	t.Helper()
	s, err := Open(uri, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		if !s.closed.Load() {
			s.Close()
		}
	})
	return s
}

func TestOpenRejectsBadURIs(t *testing.T) {
	for _, uri := range []string{
		"",
		"/no/scheme",
		"rocks:///wrong/scheme",
		Scheme + "relative/path",
	} {
		_, err := Open(uri, nil)
		require.Error(t, err, "uri %q", uri)
		assert.True(t, errors.Is(err, ErrConfig), "uri %q: %v", uri, err)
	}
}

func TestDoubleOpenRejected(t *testing.T) {
	s, uri := openTemp(t)
	_, err := Open(uri, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrState))

	// Path aliasing does not evade the check.
	alias := Scheme + "/" + s.path[1:] + "/."
	_, err = Open(alias, nil)
	assert.True(t, errors.Is(err, ErrState), "aliased path: %v", err)

	// Reopening after close is fine.
	require.NoError(t, s.Close())
	s2 := reopen(t, uri)
	require.NoError(t, s2.Close())
}

func TestCloseSemantics(t *testing.T) {
	s, _ := openTemp(t)
	require.NoError(t, s.Close())
	err := s.Close()
	assert.True(t, errors.Is(err, ErrState), "double close: %v", err)

	sp := atom.NewSpace("main")
	err = s.StoreAtom(sp, atom.NewNode(atom.TConcept, "A"))
	assert.True(t, errors.Is(err, ErrState), "store after close: %v", err)
	err = s.LoadAtomspace(sp)
	assert.True(t, errors.Is(err, ErrState), "load after close: %v", err)
}

func TestNewDatabaseIsVersion2(t *testing.T) {
	s, _ := openTemp(t)
	assert.Equal(t, 2, s.Version())
	v, err := s.db.Get(keys.VersionKey)
	require.NoError(t, err)
	assert.Equal(t, "2", string(v))
}

func TestUnsupportedVersionRejected(t *testing.T) {
	dir := t.TempDir() + "/graph"
	db, err := storage.OpenLevel(dir, storage.LevelOptions{MaxOpenFiles: 64})
	require.NoError(t, err)
	require.NoError(t, db.Put(keys.VersionKey, []byte("9")))
	require.NoError(t, db.Close())

	_, err = Open(Scheme+dir, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfig))
}

func TestVersion1Opens(t *testing.T) {
	dir := t.TempDir() + "/graph"
	db, err := storage.OpenLevel(dir, storage.LevelOptions{MaxOpenFiles: 64})
	require.NoError(t, err)
	require.NoError(t, db.Put(keys.VersionKey, []byte("1")))
	require.NoError(t, db.Close())

	s, err := Open(Scheme+dir, nil)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, 1, s.Version())

	// Frame deletion is gated on version 2.
	sp := atom.NewSpace("f")
	_, err = s.StoreFrames(sp)
	require.NoError(t, err)
	err = s.DeleteFrame(sp)
	assert.True(t, errors.Is(err, ErrState), "delete frame on v1: %v", err)
}

func TestAidHighWaterSurvivesCrash(t *testing.T) {
	s, uri := openTemp(t)
	sp := atom.NewSpace("main")
	for i := 0; i < 20; i++ {
		require.NoError(t, s.StoreAtom(sp, atom.NewNode(atom.TConcept, string(rune('a'+i)))))
	}
	highWater := s.nextAID.Load()
	crash(s)

	s2 := reopen(t, uri)
	assert.GreaterOrEqual(t, s2.nextAID.Load(), highWater,
		"reopened counter must not reissue any sid")

	// And freshly issued sids collide with nothing.
	require.NoError(t, s2.StoreAtom(atom.NewSpace("main"), atom.NewNode(atom.TConcept, "fresh")))
}

func TestCloseFlushesHighWater(t *testing.T) {
	s, uri := openTemp(t)
	require.NoError(t, s.StoreAtom(atom.NewSpace("main"), atom.NewNode(atom.TConcept, "A")))
	want := s.nextAID.Load()
	require.NoError(t, s.Close())

	s2 := reopen(t, uri)
	assert.Equal(t, want, s2.nextAID.Load())
}

func TestBarrierPersistsHighWater(t *testing.T) {
	s, uri := openTemp(t)
	require.NoError(t, s.StoreAtom(atom.NewSpace("main"), atom.NewNode(atom.TConcept, "A")))
	require.NoError(t, s.Barrier())
	v, err := s.db.Get(keys.AidKey)
	require.NoError(t, err)
	assert.Equal(t, s.nextAID.Load()-1, sidcodec.Decode(string(v)))
	crash(s)
	reopen(t, uri)
}

func TestReadOnly(t *testing.T) {
	s, uri := openTemp(t)
	sp := atom.NewSpace("main")
	require.NoError(t, s.StoreAtom(sp, atom.NewNode(atom.TConcept, "A")))
	require.NoError(t, s.Close())

	ro, err := Open(uri, &Options{ReadOnly: true})
	require.NoError(t, err)
	defer ro.Close()

	err = ro.StoreAtom(sp, atom.NewNode(atom.TConcept, "B"))
	assert.True(t, errors.Is(err, ErrState), "write on read-only: %v", err)

	sp2 := atom.NewSpace("main")
	require.NoError(t, ro.LoadAtomspace(sp2))
	assert.NotNil(t, sp2.Lookup(`(Concept "A")`))
}

func TestTruthValuePredicateBootstrapped(t *testing.T) {
	s, uri := openTemp(t)
	first := s.tvPredSid
	assert.NotEmpty(t, first)
	require.NoError(t, s.Close())

	// The sid is stable across reopens: it is found, not reallocated.
	s2 := reopen(t, uri)
	assert.Equal(t, first, s2.tvPredSid)
}

func TestKillData(t *testing.T) {
	s, _ := openTemp(t)
	sp := atom.NewSpace("main")
	a := atom.NewNode(atom.TConcept, "A")
	a.SetValue(atom.NewNode(atom.TPredicate, "w"), atom.FloatValue{1})
	require.NoError(t, s.StoreAtom(sp, a))

	require.NoError(t, s.KillData())

	n, err := s.CountRecords(keys.PfxNode)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n, "only the re-bootstrapped predicate remains")
	n, _ = s.CountRecords(keys.PfxValue)
	assert.Zero(t, n)

	// The store stays usable.
	require.NoError(t, s.StoreAtom(atom.NewSpace("fresh"), atom.NewNode(atom.TConcept, "B")))
}

func TestMonitorAndClearStats(t *testing.T) {
	s, _ := openTemp(t)
	require.NoError(t, s.StoreAtom(atom.NewSpace("main"), atom.NewNode(atom.TConcept, "A")))

	rep, err := s.Monitor()
	require.NoError(t, err)
	assert.Contains(t, rep, "Connected to `"+s.URI()+"`")
	assert.Contains(t, rep, "Next aid:")
	assert.Contains(t, rep, "n@:")

	assert.NotZero(t, s.nStores.Load())
	s.ClearStats()
	assert.Zero(t, s.nStores.Load())
}

func TestCheckFindsDanglingValues(t *testing.T) {
	s, _ := openTemp(t)
	sp := atom.NewSpace("main")
	a := atom.NewNode(atom.TConcept, "A")
	a.SetValue(atom.NewNode(atom.TPredicate, "w"), atom.FloatValue{1})
	require.NoError(t, s.StoreAtom(sp, a))

	bad, err := s.Check()
	require.NoError(t, err)
	assert.Empty(t, bad, "clean store has no dangling values")

	require.NoError(t, s.db.Put("k@zzz:7", []byte("(FloatValue 1)")))
	bad, err = s.Check()
	require.NoError(t, err)
	require.Len(t, bad, 1)
	assert.Equal(t, "k@zzz:7", bad[0])
}
