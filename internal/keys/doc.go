// Package keys builds and parses the prefixed byte-string keys of the
// on-disk schema.
//
// All keys are printable 7-bit strings. The first one or two bytes,
// followed by '@', identify a logical index; colons, dashes, and
// parentheses separate fields. The layout is designed so that a range
// scan on a prefix returns every record of the owning index in order:
//
//	a@<sid>:                    canonical atom record
//	n@<satom>                   node forward lookup
//	l@<satom>                   link forward lookup
//	k@<sid>:<key-sid>           attached value (single-graph)
//	k@<sid>:<fid>:<key-sid>     attached value in a layer
//	k@<sid>:<fid>:+1            keyless-presence sentinel
//	k@<sid>:<fid>:-1            absence (shadow) sentinel
//	i@<child>:<Type>-<parent>   incoming edge (key form)
//	h@<hex-hash>                alpha-equivalence sid list
//	d@<fid>                     frame by fid
//	f@<sframe>                  frame by content
//	o@<fid>:<sid>               first-appearance membership
//	z<N>@<sid>                  link height N
//
// The package also holds the whitespace-separated sid-list helpers used
// by the h@ buckets: entries are appended as "<sid> " and removal is
// substring-safe (a sid matches only when it is preceded by the start of
// the list or a space, and followed by a space).
package keys
