package engine

import (
	"github.com/dreamware/hyperstore/internal/atom"
	"github.com/dreamware/hyperstore/internal/keys"
	"github.com/dreamware/hyperstore/internal/sexpr"
	"github.com/dreamware/hyperstore/internal/storage"
)

// fwdKey returns the forward-lookup key (n@ or l@) for an atom.
func fwdKey(a *atom.Atom) string {
	if a.IsNode() {
		return keys.Node(a.String())
	}
	return keys.Link(a.String())
}

// writeAtom persists an atom outside any layer: single-graph writes and
// the atoms the engine manages itself (the truth-value predicate).
func (s *Storage) writeAtom(a *atom.Atom) (string, error) {
	return s.writeAtomIn(a, "", false)
}

// writeAtomIn persists an atom and, recursively, the outgoing children
// of a link, maintaining the incoming index. It returns the existing
// sid when the atom (or an alpha-equivalent form of it) is already
// present; nothing is re-marked in that case.
//
// With a fid, a freshly allocated atom also gets its first-appearance
// membership record and, for links, its height record. When mark is
// set, as it is for recursively stored children whose values are not
// being written, the atom gets a keyless-presence sentinel as well, so
// every new atom is accounted to the layer it arrived in.
func (s *Storage) writeAtomIn(a *atom.Atom, fid string, mark bool) (string, error) {
	fwd := fwdKey(a)
	if v, err := s.db.Get(fwd); err == nil {
		return string(v), nil
	} else if err != storage.ErrKeyNotFound {
		return "", internalErr(err, "looking up %s", a)
	}

	alpha := a.Type().AlphaConvertible()
	var hkey string
	if alpha {
		hkey = a.HashHex()
		sid, _, err := s.findAlpha(a, hkey)
		if err != nil {
			return "", err
		}
		if sid != "" {
			return sid, nil
		}
	}

	// Children go in first so no record ever points at an unstored atom.
	if a.IsLink() {
		for _, ch := range a.Out() {
			if _, err := s.writeAtomIn(ch, fid, true); err != nil {
				return "", err
			}
		}
	}

	s.sidMu.Lock()
	// Re-check under the lock: another thread may have just stored this
	// atom, or an alpha-equivalent form of it.
	if v, err := s.db.Get(fwd); err == nil {
		s.sidMu.Unlock()
		return string(v), nil
	} else if err != storage.ErrKeyNotFound {
		s.sidMu.Unlock()
		return "", internalErr(err, "looking up %s", a)
	}
	if alpha {
		sid, _, err := s.findAlpha(a, hkey)
		if err != nil {
			s.sidMu.Unlock()
			return "", err
		}
		if sid != "" {
			s.sidMu.Unlock()
			return sid, nil
		}
	}

	sid, err := s.newSID()
	if err == nil {
		err = s.db.Put(fwd, []byte(sid))
	}
	if err == nil {
		rec := a.String()
		if alpha {
			// The hash prefix lets deletion find the owning bucket
			// without recomputing the hash.
			rec = hkey + rec
		}
		err = s.db.Put(keys.Atom(sid), []byte(rec))
	}
	if err == nil && alpha {
		err = s.appendToSidList(keys.Hash(hkey), sid)
	}
	s.sidMu.Unlock()
	if err != nil {
		return "", err
	}

	if fid != "" {
		if err := s.db.Put(keys.Member(fid, sid), nil); err != nil {
			return "", internalErr(err, "writing membership of %s in %s", sid, fid)
		}
		if a.IsLink() {
			if err := s.db.Put(keys.Height(a.Height(), sid), nil); err != nil {
				return "", internalErr(err, "writing height of %s", sid)
			}
		}
		if mark {
			if err := s.db.Put(keys.LayerValue(sid, fid, keys.MarkPresent), nil); err != nil {
				return "", internalErr(err, "marking presence of %s in %s", sid, fid)
			}
		}
	}

	if a.IsLink() {
		tn := a.Type().Name()
		seen := map[string]bool{}
		for _, ch := range a.Out() {
			csid, err := s.writeAtomIn(ch, fid, true)
			if err != nil {
				return "", err
			}
			if seen[csid] {
				continue
			}
			seen[csid] = true
			if err := s.db.Put(keys.Incoming(csid, tn, sid), nil); err != nil {
				return "", internalErr(err, "writing incoming edge for %s", ch)
			}
		}
	}

	s.nStores.Add(1)
	return sid, nil
}

// FindSid resolves an atom to its sid, or "" when the atom is not
// stored. Alpha-convertible atoms resolve through the hash index, so an
// alpha-equivalent stored form answers too.
func (s *Storage) FindSid(a *atom.Atom) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	return s.findSid(a)
}

func (s *Storage) findSid(a *atom.Atom) (string, error) {
	v, err := s.db.Get(fwdKey(a))
	if err == nil {
		return string(v), nil
	}
	if err != storage.ErrKeyNotFound {
		return "", internalErr(err, "looking up %s", a)
	}
	if a.Type().AlphaConvertible() {
		sid, _, err := s.findAlpha(a, a.HashHex())
		return sid, err
	}
	return "", nil
}

// GetAtom reads the canonical record for sid and decodes it. A missing
// record for a referenced sid is an internal inconsistency.
func (s *Storage) GetAtom(sid string) (*atom.Atom, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rec, err := s.db.Get(keys.Atom(sid))
	if err == storage.ErrKeyNotFound {
		return nil, internalErrf("sid %s has no atom record", sid)
	}
	if err != nil {
		return nil, internalErr(err, "reading atom %s", sid)
	}
	return decodeAtomRecord(string(rec))
}

// getAtomRecord reads the raw a@ record, hash prefix included.
// ErrKeyNotFound passes through for callers that tolerate absence.
func (s *Storage) getAtomRecord(sid string) (string, error) {
	rec, err := s.db.Get(keys.Atom(sid))
	if err != nil {
		return "", err
	}
	return string(rec), nil
}

func decodeAtomRecord(rec string) (*atom.Atom, error) {
	sx := sexpr.SkipHash(rec)
	pos := 0
	a, err := sexpr.DecodeAtom(sx, &pos)
	if err != nil {
		return nil, internalErr(err, "decoding atom record %q", rec)
	}
	return a, nil
}

// StoreAtom persists an atom together with its attached values. In
// layered mode sp is the frame the atom belongs to; its presence there
// is marked even when the atom carries no values.
func (s *Storage) StoreAtom(sp *atom.Space, a *atom.Atom) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	if s.multiSpace.Load() {
		return s.storeAtomLayer(sp, a)
	}
	if err := s.bindSpace(sp); err != nil {
		return err
	}
	sid, err := s.writeAtom(a)
	if err != nil {
		return err
	}
	_, err = s.writeValues(sid, "", a)
	return err
}

// bindSpace enforces the single-graph rule: one space per database
// until frames are enabled.
func (s *Storage) bindSpace(sp *atom.Space) error {
	if len(sp.Outgoing()) > 0 {
		return stateErrf("space %q is layered; store the frame DAG first", sp.Name())
	}
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	if s.boundSpace == nil {
		s.boundSpace = sp
		return nil
	}
	if s.boundSpace != sp {
		return stateErrf("storing atoms from a second space %q without multi-space mode", sp.Name())
	}
	return nil
}

// FetchAtom loads the values attached to an atom into sp, interning the
// atom there. In layered mode sp is the frame to read at; deeper layers
// contribute first and shallow sentinels override. Returns the interned
// atom, or nil when the atom is not stored.
func (s *Storage) FetchAtom(sp *atom.Space, a *atom.Atom) (*atom.Atom, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	sid, err := s.findSid(a)
	if err != nil || sid == "" {
		return nil, err
	}
	s.nFetches.Add(1)
	if !s.multiSpace.Load() {
		in := sp.Intern(a)
		if err := s.getKeys(sp, sid, in); err != nil {
			return nil, err
		}
		return in, nil
	}
	order, err := s.makeOrder(sp)
	if err != nil {
		return nil, err
	}
	if err := s.loadLayers(order, sid, a); err != nil {
		return nil, err
	}
	return sp.Lookup(a.String()), nil
}

// GetLink looks up the stored link with the given type and outgoing
// sequence, loading its values into sp. Returns nil when no such link
// is stored. Layered stores do not support this lookup.
func (s *Storage) GetLink(sp *atom.Space, t atom.Type, out ...*atom.Atom) (*atom.Atom, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if s.multiSpace.Load() {
		return nil, stateErrf("get-link is not supported on layered storage")
	}
	l := atom.NewLink(t, out...)
	sid, err := s.findSid(l)
	if err != nil || sid == "" {
		return nil, err
	}
	stored := l
	if t.AlphaConvertible() {
		// The stored form may be an alpha-variant; surface that one.
		rec, err := s.getAtomRecord(sid)
		if err != nil {
			return nil, internalErr(err, "reading atom %s", sid)
		}
		if stored, err = decodeAtomRecord(rec); err != nil {
			return nil, err
		}
	}
	in := sp.Intern(stored)
	if err := s.getKeys(sp, sid, in); err != nil {
		return nil, err
	}
	s.nFetches.Add(1)
	return in, nil
}

// RemoveAtom deletes an atom. In single-graph mode the deletion is
// physical; with recursive set, every link containing the atom goes
// first, depth-first. Without recursive, an atom with a non-empty
// incoming set is left untouched. In layered mode sp names the frame
// the atom is removed from, and the removal is an absence mark: deeper
// frames keep the atom.
func (s *Storage) RemoveAtom(sp *atom.Space, a *atom.Atom, recursive bool) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	sid, err := s.findSid(a)
	if err != nil || sid == "" {
		return err
	}
	if s.multiSpace.Load() {
		fid, err := s.frameSid(sp)
		if err != nil {
			return err
		}
		return s.removeAtomLayer(sp, fid, sid, a.String(), recursive)
	}
	rec, err := s.getAtomRecord(sid)
	if err == storage.ErrKeyNotFound {
		return internalErrf("sid %s has no atom record", sid)
	}
	if err != nil {
		return internalErr(err, "reading atom %s", sid)
	}
	return s.removeSatom(rec, sid, a.IsNode(), recursive)
}

// removeSatom implements single-graph deletion of one atom record.
func (s *Storage) removeSatom(rec, sid string, isNode, recursive bool) error {
	// Incoming set first: bail out or clear the parents.
	parents, err := s.incomingParents(sid, "")
	if err != nil {
		return err
	}
	if len(parents) > 0 {
		if !recursive {
			return nil
		}
		for _, psid := range parents {
			prec, err := s.getAtomRecord(psid)
			if err == storage.ErrKeyNotFound {
				continue // a sibling of the same delete got here first
			}
			if err != nil {
				return internalErr(err, "reading parent %s", psid)
			}
			if err := s.removeSatom(prec, psid, false, true); err != nil {
				return err
			}
		}
	}

	// Alpha bucket, located by the record's hash prefix.
	satom := sexpr.SkipHash(rec)
	if len(satom) != len(rec) {
		hkey := rec[:len(rec)-len(satom)]
		if err := s.remFromSidList(keys.Hash(hkey), sid); err != nil {
			return err
		}
	}

	// Drop this link's entries from its children's incoming sets. The
	// outgoing list may repeat a child; deduplicate so the second copy
	// does not look like a double-removal.
	if !isNode {
		kids, err := sexpr.SplitOutgoing(satom)
		if err != nil {
			return internalErr(err, "parsing outgoing of %s", satom)
		}
		if len(kids) > 0 {
			tn, err := sexpr.LinkTypeName(satom)
			if err != nil {
				return internalErr(err, "parsing type of %s", satom)
			}
			seen := map[string]bool{}
			for _, csx := range kids {
				if seen[csx] {
					continue
				}
				seen[csx] = true
				pos := 0
				ch, err := sexpr.DecodeAtom(csx, &pos)
				if err != nil {
					return internalErr(err, "decoding child %s", csx)
				}
				csid, err := s.findSid(ch)
				if err != nil {
					return err
				}
				if csid == "" {
					continue // child already removed by a concurrent delete
				}
				if err := s.db.Delete(keys.Incoming(csid, tn, sid)); err != nil {
					return internalErr(err, "removing incoming edge on %s", csid)
				}
			}
		}
	}

	fwd := keys.Node(satom)
	if !isNode {
		fwd = keys.Link(satom)
	}
	if err := s.db.Delete(fwd); err != nil {
		return internalErr(err, "deleting forward record of %s", sid)
	}
	if err := s.db.Delete(keys.Atom(sid)); err != nil {
		return internalErr(err, "deleting atom record of %s", sid)
	}

	it := s.db.Scan(keys.ValueScan(sid))
	defer it.Release()
	for it.Next() {
		if err := s.db.Delete(it.Key()); err != nil {
			return internalErr(err, "deleting value record %q", it.Key())
		}
	}
	if err := it.Error(); err != nil {
		return internalErr(err, "scanning values of %s", sid)
	}
	s.nDeletes.Add(1)
	return nil
}

// incomingParents lists the parent sids recorded under i@sid:, or under
// i@sid:Type- when typeName is non-empty.
func (s *Storage) incomingParents(sid, typeName string) ([]string, error) {
	prefix := keys.IncomingScan(sid)
	if typeName != "" {
		prefix = keys.IncomingTypeScan(sid, typeName)
	}
	it := s.db.Scan(prefix)
	defer it.Release()
	var out []string
	for it.Next() {
		psid := keys.IncomingParent(it.Key())
		if psid == "" {
			return nil, internalErrf("malformed incoming record %q", it.Key())
		}
		out = append(out, psid)
	}
	if err := it.Error(); err != nil {
		return nil, internalErr(err, "scanning incoming set of %s", sid)
	}
	return out, nil
}
