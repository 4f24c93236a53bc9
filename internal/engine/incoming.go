package engine

import (
	"github.com/dreamware/hyperstore/internal/atom"
	"github.com/dreamware/hyperstore/internal/storage"
)

// FetchIncomingSet materializes every stored link that contains the
// atom, interning the parents and their values into sp. Returns the
// parents loaded.
func (s *Storage) FetchIncomingSet(sp *atom.Space, a *atom.Atom) ([]*atom.Atom, error) {
	return s.fetchIncoming(sp, a, "")
}

// FetchIncomingByType is FetchIncomingSet restricted to parents of one
// type.
func (s *Storage) FetchIncomingByType(sp *atom.Space, a *atom.Atom, t atom.Type) ([]*atom.Atom, error) {
	return s.fetchIncoming(sp, a, t.Name())
}

func (s *Storage) fetchIncoming(sp *atom.Space, a *atom.Atom, typeName string) ([]*atom.Atom, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	sid, err := s.findSid(a)
	if err != nil || sid == "" {
		return nil, err
	}
	parents, err := s.incomingParents(sid, typeName)
	if err != nil {
		return nil, err
	}

	var order []frameRef
	if s.multiSpace.Load() {
		if order, err = s.makeOrder(sp); err != nil {
			return nil, err
		}
	}

	var out []*atom.Atom
	for _, psid := range parents {
		rec, err := s.getAtomRecord(psid)
		if err == storage.ErrKeyNotFound {
			return nil, internalErrf("incoming set of %s names %s but no atom record exists", sid, psid)
		}
		if err != nil {
			return nil, internalErr(err, "reading parent %s", psid)
		}
		pa, err := decodeAtomRecord(rec)
		if err != nil {
			return nil, err
		}
		if order != nil {
			if err := s.loadLayers(order, psid, pa); err != nil {
				return nil, err
			}
			if in := sp.Lookup(pa.String()); in != nil {
				out = append(out, in)
			}
			continue
		}
		in := sp.Intern(pa)
		if err := s.getKeys(sp, psid, in); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	s.nFetches.Add(1)
	return out, nil
}
