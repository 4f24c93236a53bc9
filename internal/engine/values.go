package engine

import (
	"strings"

	"github.com/dreamware/hyperstore/internal/atom"
	"github.com/dreamware/hyperstore/internal/keys"
	"github.com/dreamware/hyperstore/internal/sexpr"
	"github.com/dreamware/hyperstore/internal/storage"
)

// valueKey builds the k@ key for (sid, ksid), layered when fid is set.
func valueKey(sid, fid, ksid string) string {
	if fid == "" {
		return keys.Value(sid, ksid)
	}
	return keys.LayerValue(sid, fid, ksid)
}

// writeValues persists every value attached to an atom, returning how
// many were written. Default truth values are elided, and a previously
// persisted truth-value record is cleared so a default never lingers on
// disk from an earlier state.
func (s *Storage) writeValues(sid, fid string, a *atom.Atom) (int, error) {
	tvx := atom.TruthValueKey().String()
	n := 0
	hasTV := false
	for _, kv := range a.Keys() {
		var ksid string
		if kv.Key.String() == tvx {
			if tv, ok := kv.Value.(*atom.TruthValue); ok && tv.IsDefault() {
				continue
			}
			ksid = s.tvPredSid
			hasTV = true
		} else {
			var err error
			if ksid, err = s.writeAtomIn(kv.Key, fid, true); err != nil {
				return n, err
			}
		}
		k := valueKey(sid, fid, ksid)
		if err := s.db.Put(k, []byte(kv.Value.String())); err != nil {
			return n, internalErr(err, "writing value %q", k)
		}
		n++
	}
	if !hasTV {
		if err := s.db.Delete(valueKey(sid, fid, s.tvPredSid)); err != nil {
			return n, internalErr(err, "clearing truth value of %s", sid)
		}
	}
	return n, nil
}

// StoreValue persists the atom's current value under the given key,
// creating sids for both as needed. A nil current value deletes the
// record; re-persisting after an in-memory update is how updates reach
// disk.
func (s *Storage) StoreValue(sp *atom.Space, a, key *atom.Atom) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	var fid string
	if s.multiSpace.Load() {
		var err error
		if fid, err = s.frameSid(sp); err != nil {
			return err
		}
	}
	sid, err := s.writeAtomIn(a, fid, false)
	if err != nil {
		return err
	}
	var ksid string
	if key.String() == atom.TruthValueKey().String() {
		ksid = s.tvPredSid
	} else if ksid, err = s.writeAtomIn(key, fid, true); err != nil {
		return err
	}
	k := valueKey(sid, fid, ksid)
	v := a.Value(key)
	if v == nil {
		if err := s.db.Delete(k); err != nil {
			return internalErr(err, "deleting value %q", k)
		}
		return nil
	}
	if err := s.db.Put(k, []byte(v.String())); err != nil {
		return internalErr(err, "writing value %q", k)
	}
	if fid != "" {
		// A real value supersedes any keyless-presence sentinel; both at
		// once would end the layer scan at the sentinel.
		if err := s.db.Delete(keys.LayerValue(sid, fid, keys.MarkPresent)); err != nil {
			return internalErr(err, "clearing presence mark of %s in %s", sid, fid)
		}
		if err := s.db.Put(keys.Member(fid, sid), nil); err != nil {
			return internalErr(err, "writing membership of %s in %s", sid, fid)
		}
	}
	s.nStores.Add(1)
	return nil
}

// LoadValue fetches the value stored for (atom, key) and attaches it.
// Missing atoms, keys, or records quietly load nothing.
func (s *Storage) LoadValue(sp *atom.Space, a, key *atom.Atom) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	sid, err := s.findSid(a)
	if err != nil || sid == "" {
		return err
	}
	var ksid string
	if key.String() == atom.TruthValueKey().String() {
		ksid = s.tvPredSid
	} else if ksid, err = s.findSid(key); err != nil || ksid == "" {
		return err
	}
	var fid string
	if s.multiSpace.Load() {
		if fid, err = s.frameSid(sp); err != nil {
			return err
		}
	}
	rec, err := s.db.Get(valueKey(sid, fid, ksid))
	if err == storage.ErrKeyNotFound {
		return nil
	}
	if err != nil {
		return internalErr(err, "reading value of %s", sid)
	}
	pos := 0
	v, err := sexpr.DecodeValue(string(rec), &pos)
	if err != nil {
		return internalErr(err, "decoding value %q", string(rec))
	}
	a.SetValue(key, v)
	s.nFetches.Add(1)
	return nil
}

// getKeys loads every value attached to sid onto the atom, interning
// decoded value-key atoms into sp. A key atom that was deleted since
// the value was written leaves a stray record: it is cleaned up here
// and the scan continues. The truth value attaches under the well-known
// predicate without interning it.
func (s *Storage) getKeys(sp *atom.Space, sid string, a *atom.Atom) error {
	prefix := keys.ValueScan(sid)
	it := s.db.Scan(prefix)
	defer it.Release()
	for it.Next() {
		ksid := it.Key()[len(prefix):]
		pos := 0
		v, err := sexpr.DecodeValue(string(it.Value()), &pos)
		if err != nil {
			return internalErr(err, "decoding value %q", string(it.Value()))
		}
		if ksid == s.tvPredSid {
			a.SetValue(atom.TruthValueKey(), v)
			continue
		}
		krec, err := s.getAtomRecord(ksid)
		if err == storage.ErrKeyNotFound {
			// The key atom is gone; drop the stray record and move on.
			if err := s.db.Delete(it.Key()); err != nil {
				return internalErr(err, "deleting stray value %q", it.Key())
			}
			continue
		}
		if err != nil {
			return internalErr(err, "reading key atom %s", ksid)
		}
		ka, err := decodeAtomRecord(krec)
		if err != nil {
			return err
		}
		a.SetValue(sp.Intern(ka), v)
	}
	if err := it.Error(); err != nil {
		return internalErr(err, "scanning values of %s", sid)
	}
	return nil
}

// getKeysMulti loads sid's records for one layer. An absence sentinel
// hides the atom in the frame and ends the layer; a keyless-presence
// sentinel adds it and ends the layer. The first real value forces a
// copy-on-write clone in the frame, so values attached here never leak
// into (or inherit from) deeper layers. Sentinels sort before sids, so
// a shadowed layer never half-loads.
func (s *Storage) getKeysMulti(fr *atom.Space, fid, sid string, a *atom.Atom) error {
	prefix := keys.LayerValueScan(sid, fid)
	it := s.db.Scan(prefix)
	defer it.Release()
	var cur *atom.Atom
	for it.Next() {
		ksid := it.Key()[len(prefix):]
		if strings.HasPrefix(ksid, "-") {
			fr.Hide(a.String())
			return it.Error()
		}
		if strings.HasPrefix(ksid, "+") {
			fr.Intern(a)
			return it.Error()
		}
		if cur == nil {
			cur = fr.InternClean(a)
		}
		pos := 0
		v, err := sexpr.DecodeValue(string(it.Value()), &pos)
		if err != nil {
			return internalErr(err, "decoding value %q", string(it.Value()))
		}
		if ksid == s.tvPredSid {
			cur.SetValue(atom.TruthValueKey(), v)
			continue
		}
		krec, err := s.getAtomRecord(ksid)
		if err == storage.ErrKeyNotFound {
			if err := s.db.Delete(it.Key()); err != nil {
				return internalErr(err, "deleting stray value %q", it.Key())
			}
			continue
		}
		if err != nil {
			return internalErr(err, "reading key atom %s", ksid)
		}
		ka, err := decodeAtomRecord(krec)
		if err != nil {
			return err
		}
		cur.SetValue(fr.Intern(ka), v)
	}
	if err := it.Error(); err != nil {
		return internalErr(err, "scanning layer values of %s", sid)
	}
	return nil
}
