// Package sidcodec converts 64-bit atom identifiers (aids) to and from
// their compact base-62 string form (sids).
//
// The encoding uses the digits 0-9A-Za-z in little-endian order: the least
// significant base-62 digit comes first. Base-62 rather than base-64 keeps
// ASCII punctuation free for use as delimiters in the on-disk key schema.
//
// Sids are shared between processes through the database, so the digit
// mapping is part of the on-disk format and must never change.
package sidcodec
