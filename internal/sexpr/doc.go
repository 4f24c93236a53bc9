// Package sexpr is the s-expression codec for atoms and values.
//
// Encoding is delegated to the canonical String forms of the atom
// package; decoding parses those forms back, starting at a caller-held
// offset that is left at the first byte past the form. Unknown atom type
// names are registered on the fly, so atoms written by a process with a
// richer type registry still load. Values are limited to the forms the
// atom package defines (stv, FloatValue, StringValue, LinkValue); any
// other value form is a decode error.
//
// The package also provides the three structural helpers the storage
// engine is contractually allowed to apply to otherwise-opaque
// serializations: skipping an optional 16-hex-digit hash prefix to the
// first '(', extracting a link's type name, and splitting a link body
// into balanced sub-expressions by parenthesis counting.
package sexpr
