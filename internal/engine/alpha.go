package engine

import (
	"github.com/dreamware/hyperstore/internal/atom"
	"github.com/dreamware/hyperstore/internal/keys"
	"github.com/dreamware/hyperstore/internal/storage"
)

// appendToSidList adds sid to the whitespace-separated list stored at
// key. Idempotent when the sid is already listed. The read-modify-write
// runs under the list lock; the underlying store only promises per-key
// atomicity, not atomic string appends.
func (s *Storage) appendToSidList(key, sid string) error {
	s.listMu.Lock()
	defer s.listMu.Unlock()
	cur, err := s.db.Get(key)
	if err != nil && err != storage.ErrKeyNotFound {
		return internalErr(err, "reading sid list %q", key)
	}
	next := keys.AppendSid(string(cur), sid)
	if next == string(cur) {
		return nil
	}
	if err := s.db.Put(key, []byte(next)); err != nil {
		return internalErr(err, "writing sid list %q", key)
	}
	return nil
}

// remFromSidList removes sid from the list stored at key, deleting the
// record when the list empties. A sid that is not in the list is an
// internal inconsistency: the caller derived it from a record that
// asserts membership.
func (s *Storage) remFromSidList(key, sid string) error {
	s.listMu.Lock()
	defer s.listMu.Unlock()
	cur, err := s.db.Get(key)
	if err == storage.ErrKeyNotFound {
		return internalErrf("sid list %q is gone but should hold %s", key, sid)
	}
	if err != nil {
		return internalErr(err, "reading sid list %q", key)
	}
	next, ok := keys.RemoveSid(string(cur), sid)
	if !ok {
		return internalErrf("sid %s missing from list %q", sid, key)
	}
	if next == "" {
		if err := s.db.Delete(key); err != nil {
			return internalErr(err, "deleting sid list %q", key)
		}
		return nil
	}
	if err := s.db.Put(key, []byte(next)); err != nil {
		return internalErr(err, "writing sid list %q", key)
	}
	return nil
}

// findAlpha resolves an alpha-convertible atom through its hash bucket:
// every sid in h@<hash> is a candidate, and the first stored atom that
// is genuinely alpha-equivalent wins. Hash collisions between unrelated
// atoms make the equivalence check mandatory. Returns ("", nil, nil)
// when no candidate matches.
func (s *Storage) findAlpha(a *atom.Atom, hkey string) (string, *atom.Atom, error) {
	list, err := s.db.Get(keys.Hash(hkey))
	if err == storage.ErrKeyNotFound {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, internalErr(err, "reading hash bucket %s", hkey)
	}
	for _, sid := range keys.SplitSids(string(list)) {
		rec, err := s.getAtomRecord(sid)
		if err == storage.ErrKeyNotFound {
			return "", nil, internalErrf("hash bucket %s lists %s but no atom record exists", hkey, sid)
		}
		if err != nil {
			return "", nil, internalErr(err, "reading candidate %s", sid)
		}
		cand, err := decodeAtomRecord(rec)
		if err != nil {
			return "", nil, err
		}
		if atom.AlphaEqual(a, cand) {
			return sid, cand, nil
		}
	}
	return "", nil, nil
}
