package engine

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/hyperstore/internal/atom"
	"github.com/dreamware/hyperstore/internal/keys"
)

// dump captures the full key/value state of the store for idempotence
// comparisons.
func dump(t *testing.T, s *Storage) map[string]string {
	t.Helper()
	out := map[string]string{}
	it := s.db.Scan("")
	defer it.Release()
	for it.Next() {
		out[it.Key()] = string(it.Value())
	}
	require.NoError(t, it.Error())
	return out
}

func TestStoreAssignsDistinctSids(t *testing.T) {
	s, _ := openTemp(t)
	sp := atom.NewSpace("main")

	a := atom.NewNode(atom.TConcept, "A")
	b := atom.NewNode(atom.TConcept, "B")
	require.NoError(t, s.StoreAtom(sp, a))
	require.NoError(t, s.StoreAtom(sp, b))

	sa, err := s.FindSid(a)
	require.NoError(t, err)
	sb, err := s.FindSid(b)
	require.NoError(t, err)
	assert.NotEmpty(t, sa)
	assert.NotEmpty(t, sb)
	assert.NotEqual(t, sa, sb)

	// Storing a known atom returns the same sid.
	require.NoError(t, s.StoreAtom(sp, atom.NewNode(atom.TConcept, "A")))
	sa2, err := s.FindSid(a)
	require.NoError(t, err)
	assert.Equal(t, sa, sa2)
}

func TestStoreIsIdempotent(t *testing.T) {
	s, _ := openTemp(t)
	sp := atom.NewSpace("main")

	l := atom.NewLink(atom.TList,
		atom.NewNode(atom.TConcept, "A"),
		atom.NewNode(atom.TConcept, "B"))
	l.SetValue(atom.NewNode(atom.TPredicate, "w"), atom.FloatValue{3, 4})

	require.NoError(t, s.StoreAtom(sp, l))
	first := dump(t, s)
	require.NoError(t, s.StoreAtom(sp, l))
	assert.Equal(t, first, dump(t, s), "second store changes nothing")
}

func TestGetAtomRoundTrip(t *testing.T) {
	s, _ := openTemp(t)
	sp := atom.NewSpace("main")
	l := atom.NewLink(atom.TEvaluation,
		atom.NewNode(atom.TPredicate, "likes"),
		atom.NewLink(atom.TList,
			atom.NewNode(atom.TConcept, "Alice"),
			atom.NewNode(atom.TConcept, "Bob")))
	require.NoError(t, s.StoreAtom(sp, l))

	sid, err := s.FindSid(l)
	require.NoError(t, err)
	got, err := s.GetAtom(sid)
	require.NoError(t, err)
	assert.Equal(t, l.String(), got.String())
}

func TestGetAtomMissingSidIsInternal(t *testing.T) {
	s, _ := openTemp(t)
	_, err := s.GetAtom("zzz")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInternal)
}

func TestIncomingIndex(t *testing.T) {
	s, _ := openTemp(t)
	sp := atom.NewSpace("main")
	a := atom.NewNode(atom.TConcept, "A")
	b := atom.NewNode(atom.TConcept, "B")
	l := atom.NewLink(atom.TList, a, b, a) // a appears twice
	require.NoError(t, s.StoreAtom(sp, l))

	sa, _ := s.FindSid(a)
	sl, _ := s.FindSid(l)

	// Exactly one incoming record per distinct child, keyed by the
	// parent's type.
	parents, err := s.incomingParents(sa, "")
	require.NoError(t, err)
	assert.Equal(t, []string{sl}, parents, "duplicate child yields one record")

	parents, err = s.incomingParents(sa, "List")
	require.NoError(t, err)
	assert.Equal(t, []string{sl}, parents)

	parents, err = s.incomingParents(sa, "Member")
	require.NoError(t, err)
	assert.Empty(t, parents)
}

func TestFetchIncomingSet(t *testing.T) {
	s, _ := openTemp(t)
	sp := atom.NewSpace("main")
	a := atom.NewNode(atom.TConcept, "A")
	l1 := atom.NewLink(atom.TList, a)
	l2 := atom.NewLink(atom.TMember, a, atom.NewNode(atom.TConcept, "B"))
	require.NoError(t, s.StoreAtom(sp, l1))
	require.NoError(t, s.StoreAtom(sp, l2))

	fresh := atom.NewSpace("fresh")
	in, err := s.FetchIncomingSet(fresh, a)
	require.NoError(t, err)
	assert.Len(t, in, 2)

	byType, err := s.FetchIncomingByType(fresh, a, atom.TMember)
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, l2.String(), byType[0].String())
}

func TestAlphaEquivalentLookup(t *testing.T) {
	s, _ := openTemp(t)
	sp := atom.NewSpace("main")
	lx := atom.NewLink(atom.TLambda,
		atom.NewNode(atom.TVariable, "X"),
		atom.NewNode(atom.TConcept, "A"))
	require.NoError(t, s.StoreAtom(sp, lx))
	sx, err := s.FindSid(lx)
	require.NoError(t, err)

	ly := atom.NewLink(atom.TLambda,
		atom.NewNode(atom.TVariable, "Y"),
		atom.NewNode(atom.TConcept, "A"))
	sy, err := s.FindSid(ly)
	require.NoError(t, err)
	assert.Equal(t, sx, sy, "alpha-equivalent form resolves to the stored sid")

	// Storing the variant allocates nothing new.
	require.NoError(t, s.StoreAtom(sp, ly))
	n, err := s.CountRecords(keys.PfxLink)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	// The stored content is the original form.
	got, err := s.GetAtom(sy)
	require.NoError(t, err)
	assert.Equal(t, lx.String(), got.String())

	// The a@ record carries the hash prefix; the bucket lists the sid.
	rec, err := s.getAtomRecord(sx)
	require.NoError(t, err)
	assert.NotEqual(t, byte('('), rec[0])
	list, err := s.db.Get(keys.Hash(lx.HashHex()))
	require.NoError(t, err)
	assert.True(t, keys.ContainsSid(string(list), sx))
}

func TestGetLink(t *testing.T) {
	s, _ := openTemp(t)
	sp := atom.NewSpace("main")
	a := atom.NewNode(atom.TConcept, "A")
	l := atom.NewLink(atom.TList, a, a)
	l.SetValue(atom.NewNode(atom.TPredicate, "w"), atom.FloatValue{9})
	require.NoError(t, s.StoreAtom(sp, l))

	fresh := atom.NewSpace("fresh")
	got, err := s.GetLink(fresh, atom.TList,
		atom.NewNode(atom.TConcept, "A"), atom.NewNode(atom.TConcept, "A"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, l.String(), got.String())
	assert.Equal(t, atom.FloatValue{9}, got.Value(atom.NewNode(atom.TPredicate, "w")))

	none, err := s.GetLink(fresh, atom.TMember, a)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestRemoveAtomNonRecursiveAborts(t *testing.T) {
	s, _ := openTemp(t)
	sp := atom.NewSpace("main")
	a := atom.NewNode(atom.TConcept, "A")
	l := atom.NewLink(atom.TList, a)
	require.NoError(t, s.StoreAtom(sp, l))

	// a sits inside l: the non-recursive remove silently declines.
	require.NoError(t, s.RemoveAtom(sp, a, false))
	sid, err := s.FindSid(a)
	require.NoError(t, err)
	assert.NotEmpty(t, sid, "atom survives")

	// l itself has no incoming set; it goes, and a's incoming empties.
	require.NoError(t, s.RemoveAtom(sp, l, false))
	lsid, _ := s.FindSid(l)
	assert.Empty(t, lsid)
	require.NoError(t, s.RemoveAtom(sp, a, false))
	sid, _ = s.FindSid(a)
	assert.Empty(t, sid)
}

func TestRemoveAtomRecursive(t *testing.T) {
	s, _ := openTemp(t)
	sp := atom.NewSpace("main")
	a := atom.NewNode(atom.TConcept, "a")
	b := atom.NewNode(atom.TConcept, "b")
	inner := atom.NewLink(atom.TList, a, b)
	outer := atom.NewLink(atom.TList, inner, a)
	outer.SetValue(atom.NewNode(atom.TPredicate, "w"), atom.FloatValue{1})
	require.NoError(t, s.StoreAtom(sp, outer))

	require.NoError(t, s.RemoveAtom(sp, a, true))

	// No record of any kind mentions a, inner, or outer.
	for _, gone := range []*atom.Atom{a, inner, outer} {
		sid, err := s.FindSid(gone)
		require.NoError(t, err)
		assert.Empty(t, sid, "%s still findable", gone)
	}
	for _, pfx := range []string{keys.PfxValue, keys.PfxIncoming, keys.PfxHash} {
		n, err := s.CountRecords(pfx)
		require.NoError(t, err)
		assert.Zero(t, n, "stray %s records", pfx)
	}
	// b survives, with an empty incoming set.
	sid, err := s.FindSid(b)
	require.NoError(t, err)
	assert.NotEmpty(t, sid)
}

func TestRemoveAlphaAtomCleansBucket(t *testing.T) {
	s, _ := openTemp(t)
	sp := atom.NewSpace("main")
	lx := atom.NewLink(atom.TLambda,
		atom.NewNode(atom.TVariable, "X"),
		atom.NewNode(atom.TConcept, "A"))
	require.NoError(t, s.StoreAtom(sp, lx))

	require.NoError(t, s.RemoveAtom(sp, lx, true))
	n, err := s.CountRecords(keys.PfxHash)
	require.NoError(t, err)
	assert.Zero(t, n, "empty bucket is deleted")
}

func TestValuesRoundTrip(t *testing.T) {
	s, _ := openTemp(t)
	sp := atom.NewSpace("main")
	a := atom.NewNode(atom.TConcept, "A")
	wkey := atom.NewNode(atom.TPredicate, "weight")
	a.SetValue(wkey, atom.FloatValue{1, 2})
	a.SetTruthValue(&atom.TruthValue{Strength: 0.5, Confidence: 0.8})
	require.NoError(t, s.StoreAtom(sp, a))

	fresh := atom.NewSpace("fresh")
	got, err := s.FetchAtom(fresh, atom.NewNode(atom.TConcept, "A"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, atom.FloatValue{1, 2}, got.Value(wkey))
	tv := got.GetTruthValue()
	require.NotNil(t, tv)
	assert.Equal(t, 0.5, tv.Strength)

	// The truth-value predicate is attached without being interned.
	assert.Nil(t, fresh.Lookup(atom.TruthValueKey().String()))
	// The real value key was interned.
	assert.NotNil(t, fresh.Lookup(wkey.String()))
}

func TestDefaultTruthValueNotPersisted(t *testing.T) {
	s, _ := openTemp(t)
	sp := atom.NewSpace("main")
	a := atom.NewNode(atom.TConcept, "A")
	a.SetTruthValue(&atom.TruthValue{Strength: 0.2, Confidence: 0.9})
	require.NoError(t, s.StoreAtom(sp, a))
	n, _ := s.CountRecords(keys.PfxValue)
	assert.Equal(t, uint64(1), n)

	// Reverting to the default clears the stored record.
	a.SetTruthValue(atom.DefaultTV())
	require.NoError(t, s.StoreAtom(sp, a))
	n, _ = s.CountRecords(keys.PfxValue)
	assert.Zero(t, n, "default truth value is not spuriously persisted")
}

func TestStoreAndLoadValue(t *testing.T) {
	s, _ := openTemp(t)
	sp := atom.NewSpace("main")
	a := atom.NewNode(atom.TConcept, "A")
	key := atom.NewNode(atom.TPredicate, "count")

	a.SetValue(key, atom.FloatValue{1})
	require.NoError(t, s.StoreValue(sp, a, key))

	// Update in memory, re-persist, reload onto a fresh instance.
	a.SetValue(key, atom.FloatValue{2})
	require.NoError(t, s.StoreValue(sp, a, key))

	b := atom.NewNode(atom.TConcept, "A")
	require.NoError(t, s.LoadValue(sp, b, key))
	assert.Equal(t, atom.FloatValue{2}, b.Value(key))

	// Missing records load nothing, quietly.
	c := atom.NewNode(atom.TConcept, "unstored")
	require.NoError(t, s.LoadValue(sp, c, key))
	assert.Nil(t, c.Value(key))
}

func TestStrayValueKeyCleanedUp(t *testing.T) {
	s, _ := openTemp(t)
	sp := atom.NewSpace("main")
	a := atom.NewNode(atom.TConcept, "A")
	require.NoError(t, s.StoreAtom(sp, a))
	sid, _ := s.FindSid(a)

	// Fabricate a value whose key atom does not exist.
	require.NoError(t, s.db.Put(keys.Value(sid, "zzz"), []byte("(FloatValue 1)")))

	fresh := atom.NewSpace("fresh")
	got, err := s.FetchAtom(fresh, a)
	require.NoError(t, err)
	assert.Empty(t, got.Keys(), "stray value not attached")

	_, err = s.db.Get(keys.Value(sid, "zzz"))
	assert.Error(t, err, "stray record was opportunistically deleted")
}

func TestSecondSpaceRejectedWithoutFrames(t *testing.T) {
	s, _ := openTemp(t)
	sp1 := atom.NewSpace("one")
	sp2 := atom.NewSpace("two")
	require.NoError(t, s.StoreAtom(sp1, atom.NewNode(atom.TConcept, "A")))
	err := s.StoreAtom(sp2, atom.NewNode(atom.TConcept, "B"))
	assert.ErrorIs(t, err, ErrState)

	layered := atom.NewSpace("top", atom.NewSpace("base"))
	err = s.StoreAtom(layered, atom.NewNode(atom.TConcept, "C"))
	assert.ErrorIs(t, err, ErrState)
}

func TestConcurrentStoreOneSid(t *testing.T) {
	s, _ := openTemp(t)
	sp := atom.NewSpace("main")

	var wg sync.WaitGroup
	sids := make([]string, 16)
	for i := range sids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a := atom.NewNode(atom.TConcept, "racer")
			if err := s.StoreAtom(sp, a); err != nil {
				t.Error(err)
				return
			}
			sid, err := s.FindSid(a)
			if err != nil {
				t.Error(err)
				return
			}
			sids[i] = sid
		}(i)
	}
	wg.Wait()
	for _, sid := range sids[1:] {
		assert.Equal(t, sids[0], sid, "every thread saw one sid")
	}
}

func TestConcurrentDistinctAtoms(t *testing.T) {
	s, _ := openTemp(t)
	sp := atom.NewSpace("main")

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				a := atom.NewNode(atom.TConcept, fmt.Sprintf("c-%d-%d", w, i))
				if err := s.StoreAtom(sp, a); err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	// 160 distinct atoms plus the truth-value predicate.
	n, err := s.CountRecords(keys.PfxNode)
	require.NoError(t, err)
	assert.Equal(t, uint64(161), n)
}
