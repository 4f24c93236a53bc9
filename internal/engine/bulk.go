package engine

import (
	"go.uber.org/zap"

	"github.com/dreamware/hyperstore/internal/atom"
	"github.com/dreamware/hyperstore/internal/keys"
	"github.com/dreamware/hyperstore/internal/sexpr"
	"github.com/dreamware/hyperstore/internal/sidcodec"
	"github.com/dreamware/hyperstore/internal/storage"
)

// LoadAtomspace reconstructs a whole graph into sp.
//
// Single-graph mode walks the a@ records directly. Layered mode builds
// the frame order for sp, materializes all nodes, then links height by
// height, so a link is never materialized before its children: a
// shadowed child must take effect before any parent could drag it into
// a layer where it is hidden.
func (s *Storage) LoadAtomspace(sp *atom.Space) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if !s.multiSpace.Load() {
		return s.loadFlat(sp)
	}
	order, err := s.makeOrder(sp)
	if err != nil {
		return err
	}

	// Height 0: every node.
	it := s.db.Scan(keys.PfxNode)
	for it.Next() {
		satom := it.Key()[len(keys.PfxNode):]
		sid := string(it.Value())
		pos := 0
		a, err := sexpr.DecodeAtom(satom, &pos)
		if err != nil {
			it.Release()
			return internalErr(err, "decoding node %q", satom)
		}
		if err := s.loadLayers(order, sid, a); err != nil {
			it.Release()
			return err
		}
	}
	err = it.Error()
	it.Release()
	if err != nil {
		return internalErr(err, "scanning nodes")
	}

	// Links, height by height, until a height comes up empty.
	for height := 1; ; height++ {
		n := 0
		pfx := keys.HeightScan(height)
		it := s.db.Scan(pfx)
		for it.Next() {
			sid := it.Key()[len(pfx):]
			rec, err := s.getAtomRecord(sid)
			if err == storage.ErrKeyNotFound {
				it.Release()
				return internalErrf("height record names %s but no atom record exists", sid)
			}
			if err != nil {
				it.Release()
				return internalErr(err, "reading link %s", sid)
			}
			a, err := decodeAtomRecord(rec)
			if err != nil {
				it.Release()
				return err
			}
			if err := s.loadLayers(order, sid, a); err != nil {
				it.Release()
				return err
			}
			n++
		}
		err := it.Error()
		it.Release()
		if err != nil {
			return internalErr(err, "scanning height %d", height)
		}
		if n == 0 {
			break
		}
	}
	s.nFetches.Add(1)
	return nil
}

// loadFlat is the single-graph bulk load: every a@ record, decoded,
// interned, values attached.
func (s *Storage) loadFlat(sp *atom.Space) error {
	it := s.db.Scan(keys.PfxAtom)
	defer it.Release()
	for it.Next() {
		key := it.Key()
		// Key form is a@<sid>: so strip the prefix and trailing colon.
		sid := key[len(keys.PfxAtom) : len(key)-1]
		a, err := decodeAtomRecord(string(it.Value()))
		if err != nil {
			return err
		}
		in := sp.Intern(a)
		if err := s.getKeys(sp, sid, in); err != nil {
			return err
		}
	}
	if err := it.Error(); err != nil {
		return internalErr(err, "scanning atoms")
	}
	s.nFetches.Add(1)
	return nil
}

// StoreAtomspace persists a whole graph. In layered mode every frame in
// sp's order stores its own atoms under its own fid, and atoms hidden
// in a frame get their absence sentinels, so a reload sees the same
// shadowing.
func (s *Storage) StoreAtomspace(sp *atom.Space) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	if !s.multiSpace.Load() {
		if err := s.bindSpace(sp); err != nil {
			return err
		}
		for _, a := range sp.Atoms() {
			sid, err := s.writeAtom(a)
			if err != nil {
				return err
			}
			if _, err := s.writeValues(sid, "", a); err != nil {
				return err
			}
		}
		return nil
	}

	order, err := s.makeOrder(sp)
	if err != nil {
		return err
	}
	for _, ref := range order {
		for _, a := range ref.sp.Atoms() {
			if err := s.storeAtomLayer(ref.sp, a); err != nil {
				return err
			}
		}
		for _, sx := range ref.sp.Hidden() {
			pos := 0
			a, err := sexpr.DecodeAtom(sx, &pos)
			if err != nil {
				return internalErr(err, "decoding hidden atom %q", sx)
			}
			sid, err := s.findSid(a)
			if err != nil {
				return err
			}
			if sid == "" {
				continue // hidden atom never stored anywhere; nothing to shadow
			}
			if err := s.db.Put(keys.Member(ref.fid, sid), nil); err != nil {
				return internalErr(err, "writing membership of %s in %s", sid, ref.fid)
			}
			if err := s.db.Put(keys.LayerValue(sid, ref.fid, keys.MarkAbsent), nil); err != nil {
				return internalErr(err, "shadowing %s in %s", sid, ref.fid)
			}
			if err := s.db.Delete(keys.LayerValue(sid, ref.fid, keys.MarkPresent)); err != nil {
				return internalErr(err, "clearing presence mark of %s in %s", sid, ref.fid)
			}
		}
	}
	return nil
}

// LoadType loads every stored atom of one type into sp. The height
// ordering of the full bulk load is unnecessary here: the caller asked
// for a single type, and children of any loaded link resolve through
// the usual interning.
func (s *Storage) LoadType(sp *atom.Space, t atom.Type) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	var order []frameRef
	if s.multiSpace.Load() {
		var err error
		if order, err = s.makeOrder(sp); err != nil {
			return err
		}
	}
	// The trailing space pins the full type name: "n@(Concept " cannot
	// match a ConceptualBlah node.
	prefixes := []string{
		keys.PfxNode + "(" + t.Name() + " ",
		keys.PfxLink + "(" + t.Name() + " ",
	}
	for _, pfx := range prefixes {
		it := s.db.Scan(pfx)
		for it.Next() {
			satom := it.Key()[2:]
			sid := string(it.Value())
			pos := 0
			a, err := sexpr.DecodeAtom(satom, &pos)
			if err != nil {
				it.Release()
				return internalErr(err, "decoding %q", satom)
			}
			if order != nil {
				err = s.loadLayers(order, sid, a)
			} else {
				err = s.getKeys(sp, sid, sp.Intern(a))
			}
			if err != nil {
				it.Release()
				return err
			}
		}
		err := it.Error()
		it.Release()
		if err != nil {
			return internalErr(err, "scanning type %s", t.Name())
		}
	}
	s.nFetches.Add(1)
	return nil
}

// KillData deletes every record in the database and resets the aid
// counter. The version key is rewritten by the next open; the
// truth-value predicate is re-bootstrapped immediately so the open
// store stays usable.
func (s *Storage) KillData() error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	it := s.db.Scan("")
	defer it.Release()
	for it.Next() {
		if err := s.db.Delete(it.Key()); err != nil {
			return internalErr(err, "deleting %q", it.Key())
		}
	}
	if err := it.Error(); err != nil {
		return internalErr(err, "scanning database")
	}

	s.nextAID.Store(1)
	if err := s.db.Put(keys.AidKey, []byte(sidcodec.Encode(1))); err != nil {
		return internalErr(err, "writing initial aid")
	}
	s.multiSpace.Store(false)

	s.frameMu.Lock()
	s.boundSpace = nil
	s.frameMap = map[*atom.Space]string{}
	s.fidMap = map[string]*atom.Space{}
	s.topFrames = map[*atom.Space]bool{}
	s.orderCache = map[*atom.Space][]frameRef{}
	s.frameMu.Unlock()

	sid, err := s.writeAtom(atom.TruthValueKey())
	if err != nil {
		return err
	}
	s.tvPredSid = sid
	s.log.Info("database contents destroyed", zap.String("uri", s.uri))
	return nil
}
