// Package atom is the in-memory hypergraph the storage engine persists.
//
// An Atom is either a Node (a typed named leaf) or a Link (a typed ordered
// sequence of child atoms). Atoms are immutable once constructed, except
// for the set of typed values attached to them. Two atoms with identical
// canonical s-expressions are the same atom; interning a tree into a Space
// collapses structurally equal atoms onto one instance.
//
// Types live in a process-wide registry with a single-parent subtype
// relation. Atoms whose type descends from Scope are alpha-convertible:
// structurally equivalent modulo renaming of bound variables. Such atoms
// are distinct but share a content hash, computed over an alpha-canonical
// form in which variable names are replaced by occurrence-ordered
// placeholders.
//
// A Space is an intern table. In layered mode a Space is also a frame: it
// names a layer, lists the deeper frames it overlays as its outgoing set,
// and tracks per-layer membership. Atoms interned in a deeper frame are
// visible in the frames above it unless a shallower frame hides them.
// InternClean gives a shallow frame its own value-free copy of an atom, so
// values set on that copy never reach deeper layers; the engine's layered
// load takes such a copy the first time it reads a value in a layer.
// Space does not copy on SetValue: a value set on an atom found through a
// deeper frame lands on that deeper frame's instance.
package atom
