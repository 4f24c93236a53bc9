package atom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInternCollapsesEqualAtoms(t *testing.T) {
	sp := NewSpace("main")
	a1 := sp.Intern(NewNode(TConcept, "A"))
	a2 := sp.Intern(NewNode(TConcept, "A"))
	assert.Same(t, a1, a2)

	l := sp.Intern(NewLink(TList, NewNode(TConcept, "A"), NewNode(TConcept, "B")))
	require.Equal(t, 2, l.Arity())
	assert.Same(t, a1, l.Out()[0], "link children intern onto existing atoms")
}

func TestInternKeepsValues(t *testing.T) {
	sp := NewSpace("main")
	inner := NewNode(TConcept, "A")
	l := NewLink(TList, inner)
	key := NewNode(TPredicate, "w")
	l.SetValue(key, FloatValue{7})

	got := sp.Intern(l)
	assert.Equal(t, FloatValue{7}, got.Value(key))
}

func TestLayeredLookup(t *testing.T) {
	base := NewSpace("base")
	top := NewSpace("top", base)

	x := base.Intern(NewNode(TConcept, "X"))
	assert.Same(t, x, top.Lookup(x.String()), "base atoms visible from top")
	assert.Nil(t, base.Lookup(`(Concept "Y")`))

	y := top.Intern(NewNode(TConcept, "Y"))
	assert.Nil(t, base.Lookup(y.String()), "top atoms invisible from base")
}

func TestHideShadowsDeeperCopy(t *testing.T) {
	base := NewSpace("base")
	top := NewSpace("top", base)
	x := base.Intern(NewNode(TConcept, "X"))

	top.Hide(x.String())
	assert.Nil(t, top.Lookup(x.String()))
	assert.Same(t, x, base.Lookup(x.String()), "base unaffected")

	// Interning again in top clears the hide mark.
	x2 := top.Intern(NewNode(TConcept, "X"))
	assert.NotNil(t, top.Lookup(x.String()))
	assert.NotNil(t, x2)
}

func TestInternClean(t *testing.T) {
	base := NewSpace("base")
	top := NewSpace("top", base)

	x := base.Intern(NewNode(TConcept, "X"))
	x.SetValue(NewNode(TPredicate, "w"), FloatValue{1})

	clone := top.InternClean(x)
	assert.NotSame(t, x, clone, "copy-on-write clone")
	assert.Empty(t, clone.Keys(), "clone starts without inherited values")
	assert.Same(t, clone, top.Lookup(x.String()), "shallow copy wins")
	require.Len(t, x.Keys(), 1, "deep copy keeps its values")
}

func TestVisible(t *testing.T) {
	base := NewSpace("base")
	top := NewSpace("top", base)
	x := base.Intern(NewNode(TConcept, "X"))
	y := top.Intern(NewNode(TConcept, "Y"))

	vis := top.Visible()
	require.Len(t, vis, 2)
	assert.Equal(t, []*Atom{x, y}, vis)

	assert.Equal(t, []*Atom{x}, base.Visible())

	top.Hide(x.String())
	vis = top.Visible()
	require.Len(t, vis, 1)
	assert.Same(t, y, vis[0])
}

func TestVisibleDiamond(t *testing.T) {
	// Diamond DAG: both mids overlay the same bottom; the top sees one
	// copy of the bottom atom.
	bottom := NewSpace("bottom")
	m1 := NewSpace("m1", bottom)
	m2 := NewSpace("m2", bottom)
	top := NewSpace("top", m1, m2)

	b := bottom.Intern(NewNode(TConcept, "B"))
	m1.Intern(NewNode(TConcept, "L"))
	m2.Intern(NewNode(TConcept, "R"))

	vis := top.Visible()
	assert.Len(t, vis, 3)
	assert.Same(t, b, top.Lookup(b.String()))
}
