// Package keys builds and parses the on-disk key schema.
// See doc.go for complete package documentation.
package keys

import (
	"strconv"
	"strings"
)

// Index prefixes. Each is followed by the fields listed in doc.go.
const (
	PfxAtom     = "a@"
	PfxNode     = "n@"
	PfxLink     = "l@"
	PfxValue    = "k@"
	PfxIncoming = "i@"
	PfxHash     = "h@"
	PfxFrameID  = "d@"
	PfxFrame    = "f@"
	PfxMember   = "o@"
)

// Well-known singleton keys.
const (
	AidKey     = "*-NextUnusedAID-*"
	VersionKey = "*-Version-*"
)

// Per-layer membership sentinels, stored in the key-sid position of a k@
// record. Both sort before every base-62 sid ('+' and '-' precede '0'),
// so a scan of a layer's values sees a sentinel first.
const (
	MarkPresent = "+1"
	MarkAbsent  = "-1"
)

// Atom returns the a@ key holding the canonical record for sid.
func Atom(sid string) string { return PfxAtom + sid + ":" }

// Node returns the n@ forward-lookup key for a node's s-expression.
func Node(satom string) string { return PfxNode + satom }

// Link returns the l@ forward-lookup key for a link's s-expression.
func Link(satom string) string { return PfxLink + satom }

// Value returns the single-graph k@ key for the value attached to sid
// under the value-key ksid.
func Value(sid, ksid string) string { return PfxValue + sid + ":" + ksid }

// ValueScan returns the prefix covering all values attached to sid.
func ValueScan(sid string) string { return PfxValue + sid + ":" }

// LayerValue returns the overlay-mode k@ key for (sid, fid, ksid). The
// sentinel constants MarkPresent and MarkAbsent may be passed as ksid.
func LayerValue(sid, fid, ksid string) string {
	return PfxValue + sid + ":" + fid + ":" + ksid
}

// LayerValueScan returns the prefix covering every value of sid in fid.
func LayerValueScan(sid, fid string) string {
	return PfxValue + sid + ":" + fid + ":"
}

// Incoming returns the key-form i@ record for an edge from parent
// (of the named type) down to child.
func Incoming(child, typeName, parent string) string {
	return PfxIncoming + child + ":" + typeName + "-" + parent
}

// IncomingScan returns the prefix covering child's whole incoming set.
func IncomingScan(child string) string { return PfxIncoming + child + ":" }

// IncomingTypeScan returns the prefix covering child's incoming set
// restricted to parents of the named type.
func IncomingTypeScan(child, typeName string) string {
	return PfxIncoming + child + ":" + typeName + "-"
}

// IncomingParent extracts the parent sid from a key-form i@ record: the
// substring after the final dash. Sids never contain dashes, so the split
// is unambiguous even for type names that do.
func IncomingParent(key string) string {
	i := strings.LastIndexByte(key, '-')
	if i < 0 {
		return ""
	}
	return key[i+1:]
}

// Hash returns the h@ bucket key for a 16-hex-digit content hash.
func Hash(hexHash string) string { return PfxHash + hexHash }

// FrameID returns the d@ key mapping a fid to its frame encoding.
func FrameID(fid string) string { return PfxFrameID + fid }

// Frame returns the f@ key mapping a frame encoding to its fid.
func Frame(sframe string) string { return PfxFrame + sframe }

// Member returns the o@ key recording that sid first appears in fid.
func Member(fid, sid string) string { return PfxMember + fid + ":" + sid }

// MemberScan returns the prefix covering every atom first appearing in fid.
func MemberScan(fid string) string { return PfxMember + fid + ":" }

// Height returns the z<N>@ key recording that the link sid has height n.
func Height(n int, sid string) string {
	return "z" + strconv.Itoa(n) + "@" + sid
}

// HeightScan returns the prefix covering every link of height n.
func HeightScan(n int) string { return "z" + strconv.Itoa(n) + "@" }

/* ================================================================ */
// Sid lists.

// AppendSid adds sid to a whitespace-separated sid list, returning the
// new list. Appending a sid already present is a no-op.
func AppendSid(list, sid string) string {
	if ContainsSid(list, sid) {
		return list
	}
	return list + sid + " "
}

// RemoveSid deletes sid from a sid list. The second return is false when
// the sid is not in the list.
func RemoveSid(list, sid string) (string, bool) {
	i := sidIndex(list, sid)
	if i < 0 {
		return list, false
	}
	return list[:i] + list[i+len(sid)+1:], true
}

// ContainsSid reports whether sid occurs in the list as a whole entry.
func ContainsSid(list, sid string) bool {
	return sidIndex(list, sid) >= 0
}

// SplitSids returns the entries of a sid list in order.
func SplitSids(list string) []string {
	return strings.Fields(list)
}

// sidIndex locates sid as a whole list entry: preceded by the start of
// the list or a space, and followed by a space. A plain substring search
// would mis-match sids that are prefixes or suffixes of longer sids.
func sidIndex(list, sid string) int {
	from := 0
	for {
		i := strings.Index(list[from:], sid)
		if i < 0 {
			return -1
		}
		i += from
		end := i + len(sid)
		if (i == 0 || list[i-1] == ' ') && end < len(list) && list[end] == ' ' {
			return i
		}
		from = i + 1
	}
}
