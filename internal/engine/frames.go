package engine

import (
	"cmp"
	"strconv"
	"strings"

	"slices"

	"github.com/dreamware/hyperstore/internal/atom"
	"github.com/dreamware/hyperstore/internal/keys"
	"github.com/dreamware/hyperstore/internal/sidcodec"
	"github.com/dreamware/hyperstore/internal/storage"
)

// frameTag opens every frame encoding. Frames are encoded compactly,
// as a quoted name plus the child fids, rather than as s-expressions,
// because overlay DAGs can be thousands of frames deep.
const frameTag = "(as "

// frameRef is one entry of a frame total order: the frame, its fid, and
// the fid's numeric value for sorting. Children (deeper frames) have
// strictly smaller aids than every frame above them.
type frameRef struct {
	aid uint64
	fid string
	sp  *atom.Space
}

// encodeFrame assembles the compact frame encoding from a name and the
// already-resolved child fids.
func encodeFrame(name string, cfids []string) string {
	var b strings.Builder
	b.WriteString(frameTag)
	b.WriteString(strconv.Quote(name))
	for _, fid := range cfids {
		b.WriteByte(' ')
		b.WriteString(fid)
	}
	b.WriteByte(')')
	return b.String()
}

// parseFrame splits a frame encoding into its name and child fids.
func parseFrame(sframe string) (string, []string, error) {
	if !strings.HasPrefix(sframe, frameTag) {
		return "", nil, internalErrf("frame encoding %q does not begin with the frame tag", sframe)
	}
	rest := sframe[len(frameTag):]
	if len(rest) == 0 || rest[0] != '"' {
		return "", nil, internalErrf("frame encoding %q has no quoted name", sframe)
	}
	end := 1
	for end < len(rest) {
		if rest[end] == '\\' {
			end += 2
			continue
		}
		if rest[end] == '"' {
			break
		}
		end++
	}
	if end >= len(rest) {
		return "", nil, internalErrf("frame encoding %q has an unterminated name", sframe)
	}
	name, err := strconv.Unquote(rest[:end+1])
	if err != nil {
		return "", nil, internalErrf("frame encoding %q has a malformed name", sframe)
	}
	rest = rest[end+1:]
	if !strings.HasSuffix(rest, ")") {
		return "", nil, internalErrf("frame encoding %q is unterminated", sframe)
	}
	fids := strings.Fields(rest[:len(rest)-1])
	return name, fids, nil
}

// StoreFrames enables layered mode and persists the overlay DAG rooted
// at top, children first so every child's fid is smaller than all of
// its parents'. Returns top's fid. Idempotent for already-stored
// frames.
func (s *Storage) StoreFrames(top *atom.Space) (string, error) {
	if err := s.checkWritable(); err != nil {
		return "", err
	}
	s.multiSpace.Store(true)
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	return s.writeFrame(top)
}

// frameSid resolves a frame to its fid, persisting the frame (and its
// children) on first reference.
func (s *Storage) frameSid(fr *atom.Space) (string, error) {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	if fid, ok := s.frameMap[fr]; ok {
		return fid, nil
	}
	return s.writeFrame(fr)
}

// writeFrame persists one frame. Callers hold frameMu; the recursion
// stays under the one acquisition.
func (s *Storage) writeFrame(fr *atom.Space) (string, error) {
	if fid, ok := s.frameMap[fr]; ok {
		return fid, nil
	}
	cfids := make([]string, len(fr.Outgoing()))
	for i, ch := range fr.Outgoing() {
		cfid, err := s.writeFrame(ch)
		if err != nil {
			return "", err
		}
		cfids[i] = cfid
	}
	sframe := encodeFrame(fr.Name(), cfids)

	if v, err := s.db.Get(keys.Frame(sframe)); err == nil {
		fid := string(v)
		s.cacheFrame(fr, fid)
		return fid, nil
	} else if err != storage.ErrKeyNotFound {
		return "", internalErr(err, "looking up frame %q", sframe)
	}

	s.sidMu.Lock()
	fid, err := s.newSID()
	s.sidMu.Unlock()
	if err != nil {
		return "", err
	}
	if err := s.db.Put(keys.Frame(sframe), []byte(fid)); err != nil {
		return "", internalErr(err, "writing frame %q", sframe)
	}
	if err := s.db.Put(keys.FrameID(fid), []byte(sframe)); err != nil {
		return "", internalErr(err, "writing frame %s", fid)
	}
	s.cacheFrame(fr, fid)
	return fid, nil
}

// cacheFrame records a frame<->fid binding and maintains the top-frame
// set. The order cache goes entirely: a new frame changes some frame's
// parent set. Callers hold frameMu.
func (s *Storage) cacheFrame(fr *atom.Space, fid string) {
	s.frameMap[fr] = fid
	s.fidMap[fid] = fr
	s.topFrames[fr] = true
	for _, ch := range fr.Outgoing() {
		delete(s.topFrames, ch)
	}
	s.orderCache = map[*atom.Space][]frameRef{}
}

// GetFrame resolves a fid to its frame, loading (recursively) from disk
// on a cache miss.
func (s *Storage) GetFrame(fid string) (*atom.Space, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	return s.getFrame(fid)
}

// getFrame loads one frame by fid. Callers hold frameMu.
func (s *Storage) getFrame(fid string) (*atom.Space, error) {
	if fr, ok := s.fidMap[fid]; ok {
		return fr, nil
	}
	rec, err := s.db.Get(keys.FrameID(fid))
	if err == storage.ErrKeyNotFound {
		return nil, stateErrf("frame %s is not on disk", fid)
	}
	if err != nil {
		return nil, internalErr(err, "reading frame %s", fid)
	}
	name, cfids, err := parseFrame(string(rec))
	if err != nil {
		return nil, err
	}
	children := make([]*atom.Space, len(cfids))
	for i, cfid := range cfids {
		if children[i], err = s.getFrame(cfid); err != nil {
			return nil, err
		}
	}
	fr := atom.NewSpace(name, children...)
	s.cacheFrame(fr, fid)
	return fr, nil
}

// LoadFrameDAG loads every persisted frame and returns the roots: the
// frames no other frame overlays. Layered loads require this (or
// StoreFrames) to have populated the caches first.
func (s *Storage) LoadFrameDAG() ([]*atom.Space, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	s.frameMu.Lock()
	defer s.frameMu.Unlock()

	it := s.db.Scan(keys.PfxFrameID)
	type entry struct {
		fid    string
		sframe string
	}
	var entries []entry
	for it.Next() {
		entries = append(entries, entry{
			fid:    it.Key()[len(keys.PfxFrameID):],
			sframe: string(it.Value()),
		})
	}
	err := it.Error()
	it.Release()
	if err != nil {
		return nil, internalErr(err, "scanning frames")
	}
	if len(entries) == 0 {
		return nil, nil
	}
	s.multiSpace.Store(true)

	children := map[string]bool{}
	for _, e := range entries {
		if _, err := s.getFrame(e.fid); err != nil {
			return nil, err
		}
		_, cfids, err := parseFrame(e.sframe)
		if err != nil {
			return nil, err
		}
		for _, cfid := range cfids {
			children[cfid] = true
		}
	}

	s.topFrames = map[*atom.Space]bool{}
	var roots []frameRef
	for _, e := range entries {
		if children[e.fid] {
			continue
		}
		fr := s.fidMap[e.fid]
		s.topFrames[fr] = true
		roots = append(roots, frameRef{aid: sidcodec.Decode(e.fid), fid: e.fid, sp: fr})
	}
	slices.SortFunc(roots, func(a, b frameRef) int { return cmp.Compare(a.aid, b.aid) })
	out := make([]*atom.Space, len(roots))
	for i, r := range roots {
		out[i] = r.sp
	}
	return out, nil
}

// DeleteFrame physically deletes a leaf frame: every value, sentinel,
// and membership record of every atom that first appeared in it, then
// the frame records themselves. Only frames no other frame points at
// may go, and only on databases at version 2. Atoms orphaned by the
// deletion stay behind.
func (s *Storage) DeleteFrame(fr *atom.Space) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	if s.version < currentVersion {
		return stateErrf("frame deletion requires format version 2, database is version %d", s.version)
	}
	s.frameMu.Lock()
	defer s.frameMu.Unlock()

	fid, ok := s.frameMap[fr]
	if !ok {
		return stateErrf("frame %q is not loaded", fr.Name())
	}
	for _, other := range s.fidMap {
		for _, ch := range other.Outgoing() {
			if ch == fr {
				return stateErrf("frame %q still has a parent frame %q", fr.Name(), other.Name())
			}
		}
	}

	it := s.db.Scan(keys.MemberScan(fid))
	defer it.Release()
	for it.Next() {
		sid := it.Key()[len(keys.MemberScan(fid)):]
		vit := s.db.Scan(keys.LayerValueScan(sid, fid))
		for vit.Next() {
			if err := s.db.Delete(vit.Key()); err != nil {
				vit.Release()
				return internalErr(err, "deleting layer value %q", vit.Key())
			}
		}
		err := vit.Error()
		vit.Release()
		if err != nil {
			return internalErr(err, "scanning layer values of %s", sid)
		}
		if err := s.db.Delete(it.Key()); err != nil {
			return internalErr(err, "deleting membership record %q", it.Key())
		}
	}
	if err := it.Error(); err != nil {
		return internalErr(err, "scanning members of %s", fid)
	}

	sframe, err := s.db.Get(keys.FrameID(fid))
	if err != nil {
		return internalErr(err, "reading frame %s", fid)
	}
	if err := s.db.Delete(keys.FrameID(fid)); err != nil {
		return internalErr(err, "deleting frame %s", fid)
	}
	if err := s.db.Delete(keys.Frame(string(sframe))); err != nil {
		return internalErr(err, "deleting frame record %q", string(sframe))
	}

	delete(s.frameMap, fr)
	delete(s.fidMap, fid)
	delete(s.topFrames, fr)
	s.orderCache = map[*atom.Space][]frameRef{}
	s.nDeletes.Add(1)
	return nil
}

// makeOrder builds the total order of a frame and every frame beneath
// it, deepest (smallest fid) first. The order is cached per frame; the
// cache clears whenever any frame binding changes.
func (s *Storage) makeOrder(fr *atom.Space) ([]frameRef, error) {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	if o, ok := s.orderCache[fr]; ok {
		return o, nil
	}
	seen := map[string]*atom.Space{}
	var walk func(f *atom.Space) error
	walk = func(f *atom.Space) error {
		fid, ok := s.frameMap[f]
		if !ok {
			return stateErrf("frame %q has not been stored or loaded; store the frame DAG or load it first", f.Name())
		}
		if _, dup := seen[fid]; dup {
			return nil
		}
		seen[fid] = f
		for _, ch := range f.Outgoing() {
			if err := walk(ch); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(fr); err != nil {
		return nil, err
	}
	order := make([]frameRef, 0, len(seen))
	for fid, f := range seen {
		order = append(order, frameRef{aid: sidcodec.Decode(fid), fid: fid, sp: f})
	}
	slices.SortFunc(order, func(a, b frameRef) int { return cmp.Compare(a.aid, b.aid) })
	s.orderCache[fr] = order
	return order, nil
}
