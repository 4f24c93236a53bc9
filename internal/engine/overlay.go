package engine

import (
	"github.com/dreamware/hyperstore/internal/atom"
	"github.com/dreamware/hyperstore/internal/keys"
	"github.com/dreamware/hyperstore/internal/storage"
)

// storeAtomLayer persists an atom in its frame: the plain atom records,
// the first-appearance membership record, the height record for links,
// and either the atom's values or a keyless-presence sentinel. Any
// stale absence mark is cleared: storing an atom in a frame un-shadows
// it there.
func (s *Storage) storeAtomLayer(fr *atom.Space, a *atom.Atom) error {
	fid, err := s.frameSid(fr)
	if err != nil {
		return err
	}
	sid, err := s.writeAtomIn(a, fid, false)
	if err != nil {
		return err
	}
	// The atom may predate this frame; it is getting marks here now, so
	// the frame's membership index must cover it, and a link re-stored
	// into layered mode may still owe its height record.
	if err := s.db.Put(keys.Member(fid, sid), nil); err != nil {
		return internalErr(err, "writing membership of %s in %s", sid, fid)
	}
	if a.IsLink() {
		if err := s.db.Put(keys.Height(a.Height(), sid), nil); err != nil {
			return internalErr(err, "writing height of %s", sid)
		}
	}
	if err := s.db.Delete(keys.LayerValue(sid, fid, keys.MarkAbsent)); err != nil {
		return internalErr(err, "clearing absence mark of %s in %s", sid, fid)
	}

	n, err := s.writeValues(sid, fid, a)
	if err != nil {
		return err
	}
	if n > 0 {
		if err := s.db.Delete(keys.LayerValue(sid, fid, keys.MarkPresent)); err != nil {
			return internalErr(err, "clearing presence mark of %s in %s", sid, fid)
		}
		return nil
	}
	if err := s.db.Put(keys.LayerValue(sid, fid, keys.MarkPresent), nil); err != nil {
		return internalErr(err, "marking presence of %s in %s", sid, fid)
	}
	return nil
}

// removeAtomLayer shadows an atom in one frame. Physical deletion never
// happens here: an absence sentinel replaces any presence mark, so the
// atom stays visible in deeper frames and invisible in this one. With
// recursive set, links containing the atom are shadowed first.
func (s *Storage) removeAtomLayer(fr *atom.Space, fid, sid, sx string, recursive bool) error {
	parents, err := s.incomingParents(sid, "")
	if err != nil {
		return err
	}
	if len(parents) > 0 {
		if !recursive {
			return nil
		}
		for _, psid := range parents {
			rec, err := s.getAtomRecord(psid)
			if err == storage.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return internalErr(err, "reading parent %s", psid)
			}
			pa, err := decodeAtomRecord(rec)
			if err != nil {
				return err
			}
			if err := s.removeAtomLayer(fr, fid, psid, pa.String(), true); err != nil {
				return err
			}
		}
	}
	// The absence mark is itself a record in this frame; the membership
	// index must name the atom or frame deletion would leave it behind.
	if err := s.db.Put(keys.Member(fid, sid), nil); err != nil {
		return internalErr(err, "writing membership of %s in %s", sid, fid)
	}
	if err := s.db.Put(keys.LayerValue(sid, fid, keys.MarkAbsent), nil); err != nil {
		return internalErr(err, "shadowing %s in %s", sid, fid)
	}
	if err := s.db.Delete(keys.LayerValue(sid, fid, keys.MarkPresent)); err != nil {
		return internalErr(err, "clearing presence mark of %s in %s", sid, fid)
	}
	fr.Hide(sx)
	s.nDeletes.Add(1)
	return nil
}

// loadLayers runs one atom through every layer of a frame order,
// deepest first, so values accumulate upward and a shallow sentinel
// overrides everything beneath it.
func (s *Storage) loadLayers(order []frameRef, sid string, a *atom.Atom) error {
	for _, ref := range order {
		if err := s.getKeysMulti(ref.sp, ref.fid, sid, a); err != nil {
			return err
		}
	}
	return nil
}
