package engine

import (
	"fmt"
	"io"
	"strings"

	"github.com/dreamware/hyperstore/internal/keys"
	"github.com/dreamware/hyperstore/internal/storage"
)

// CountRecords counts the records under a key prefix.
func (s *Storage) CountRecords(prefix string) (uint64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	it := s.db.Scan(prefix)
	defer it.Release()
	var n uint64
	for it.Next() {
		n++
	}
	if err := it.Error(); err != nil {
		return 0, internalErr(err, "counting %q", prefix)
	}
	return n, nil
}

// Monitor renders the stats report: next aid, per-index record counts,
// session operation counters, and the backend's own property strings.
func (s *Storage) Monitor() (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	count := func(pfx string) uint64 {
		n, _ := s.CountRecords(pfx)
		return n
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Connected to `%s`\n", s.uri)
	b.WriteString("Database contents:\n")
	fmt.Fprintf(&b, "  Next aid: %d\n", s.nextAID.Load())
	fmt.Fprintf(&b, "  Atoms/Links/Nodes a@: %d l@: %d n@: %d\n",
		count(keys.PfxAtom), count(keys.PfxLink), count(keys.PfxNode))
	fmt.Fprintf(&b, "  Keys/Incoming/Hash k@: %d i@: %d h@: %d\n",
		count(keys.PfxValue), count(keys.PfxIncoming), count(keys.PfxHash))
	if s.multiSpace.Load() {
		fmt.Fprintf(&b, "  Frames/Members d@: %d f@: %d o@: %d\n",
			count(keys.PfxFrameID), count(keys.PfxFrame), count(keys.PfxMember))
	}
	fmt.Fprintf(&b, "Performed %d stores %d fetches %d deletes\n",
		s.nStores.Load(), s.nFetches.Load(), s.nDeletes.Load())
	for _, prop := range []string{"leveldb.stats", "leveldb.sstables"} {
		if v := s.db.Property(prop); v != "" {
			fmt.Fprintf(&b, "%s:\n%s\n", prop, v)
		}
	}
	return b.String(), nil
}

// ClearStats resets the session operation counters. The on-disk record
// counts are recomputed per report and are unaffected.
func (s *Storage) ClearStats() {
	s.nStores.Store(0)
	s.nFetches.Store(0)
	s.nDeletes.Store(0)
}

// Check scans every k@ record and reports those whose atom sid has no
// a@ record: dangling values that indicate corruption or a bug.
func (s *Storage) Check() ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	it := s.db.Scan(keys.PfxValue)
	defer it.Release()
	var bad []string
	checked := map[string]bool{}
	for it.Next() {
		key := it.Key()
		rest := key[len(keys.PfxValue):]
		i := strings.IndexByte(rest, ':')
		if i < 0 {
			bad = append(bad, key)
			continue
		}
		sid := rest[:i]
		if _, done := checked[sid]; !done {
			_, err := s.db.Get(keys.Atom(sid))
			checked[sid] = err == nil
			if err != nil && err != storage.ErrKeyNotFound {
				return nil, internalErr(err, "reading atom %s", sid)
			}
		}
		if !checked[sid] {
			bad = append(bad, key)
		}
	}
	if err := it.Error(); err != nil {
		return nil, internalErr(err, "scanning values")
	}
	return bad, nil
}

// PrintRange writes every record under the prefix as "key . value"
// lines, the debugging form the scripting layer exposes.
func (s *Storage) PrintRange(w io.Writer, prefix string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	it := s.db.Scan(prefix)
	defer it.Release()
	for it.Next() {
		if _, err := fmt.Fprintf(w, "%s . %s\n", it.Key(), string(it.Value())); err != nil {
			return err
		}
	}
	if err := it.Error(); err != nil {
		return internalErr(err, "scanning %q", prefix)
	}
	return nil
}

// DumpRange writes records under the prefix with all bytes escaped,
// for when the values themselves are binary or suspect.
func (s *Storage) DumpRange(w io.Writer, prefix string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	it := s.db.Scan(prefix)
	defer it.Release()
	for it.Next() {
		if _, err := fmt.Fprintf(w, "%q = %q\n", it.Key(), string(it.Value())); err != nil {
			return err
		}
	}
	if err := it.Error(); err != nil {
		return internalErr(err, "scanning %q", prefix)
	}
	return nil
}
