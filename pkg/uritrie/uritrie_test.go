package uritrie_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wampcore/wampgo/pkg/uritrie"
)

func TestSplitURIBoundaries(t *testing.T) {
	assert.Equal(t, []string{""}, uritrie.SplitURI(""))
	assert.Equal(t, []string{"", ""}, uritrie.SplitURI("."))
	assert.Equal(t, []string{"a", "b", "c"}, uritrie.SplitURI("a.b.c"))
	assert.Equal(t, []string{"a", "", "c"}, uritrie.SplitURI("a..c"))
}

func TestWildcardMatchScenario(t *testing.T) {
	patterns := []string{
		"", ".", "a..c", "a.b.", "a..", ".b.", "..",
		"x..", ".x.", "..x", "x..x", "x.x.", ".x.x", "x.x.x",
	}
	trie := uritrie.New[string]()
	for _, p := range patterns {
		_, inserted := trie.Insert(uritrie.SplitURI(p), p)
		require.True(t, inserted, "pattern %q rejected", p)
	}

	matches := trie.Match(uritrie.SplitURI("a.b.c"), uritrie.PolicyWildcard)
	var got []string
	for _, m := range matches {
		got = append(got, m.URI)
	}
	want := []string{"a..c", "a.b.", "a..", ".b.", ".."}
	sort.Strings(want)
	sort.Strings(got)
	assert.Equal(t, want, got)
}

func TestPrefixMatch(t *testing.T) {
	trie := uritrie.New[string]()
	for _, p := range []string{"", "a", "a.b", "a.b.c", "a.x"} {
		trie.Insert(uritrie.SplitURI(p), p)
	}
	matches := trie.Match(uritrie.SplitURI("a.b.c.d"), uritrie.PolicyPrefix)
	var got []string
	for _, m := range matches {
		got = append(got, m.URI)
	}
	// "" is stored as the single empty label, which is not a literal
	// prefix of a.b.c.d.
	assert.Equal(t, []string{"a", "a.b", "a.b.c"}, got)
}

func TestIterationMatchesSortedKeys(t *testing.T) {
	keys := []string{"b.b", "a", "a.c", "z", "a.b.c", "m.n", "a.b", ""}
	trie := uritrie.New[int]()
	for i, k := range keys {
		trie.Insert(uritrie.SplitURI(k), i)
	}

	var got []string
	for _, e := range trie.Items() {
		got = append(got, e.URI)
	}

	want := append([]string(nil), keys...)
	sort.Slice(want, func(i, j int) bool {
		a, b := uritrie.SplitURI(want[i]), uritrie.SplitURI(want[j])
		for k := 0; k < len(a) && k < len(b); k++ {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return len(a) < len(b)
	})
	assert.Equal(t, want, got)
}

func TestInsertDoesNotOverwrite(t *testing.T) {
	trie := uritrie.New[int]()
	_, inserted := trie.Insert(uritrie.SplitURI("a.b"), 1)
	require.True(t, inserted)
	v, inserted := trie.Insert(uritrie.SplitURI("a.b"), 2)
	assert.False(t, inserted)
	assert.Equal(t, 1, v)

	assert.False(t, trie.InsertOrAssign(uritrie.SplitURI("a.b"), 3))
	got, ok := trie.Find(uritrie.SplitURI("a.b"))
	require.True(t, ok)
	assert.Equal(t, 3, got)
}

func TestErasePrunesButKeepsSiblings(t *testing.T) {
	trie := uritrie.New[int]()
	trie.Insert(uritrie.SplitURI("a.b.c"), 1)
	trie.Insert(uritrie.SplitURI("a.b.d"), 2)
	trie.Insert(uritrie.SplitURI("a"), 3)

	require.True(t, trie.Erase(uritrie.SplitURI("a.b.c")))
	assert.Equal(t, 2, trie.Len())

	// The sibling and the shorter key survive erasure untouched.
	v, ok := trie.Find(uritrie.SplitURI("a.b.d"))
	require.True(t, ok)
	assert.Equal(t, 2, v)
	v, ok = trie.Find(uritrie.SplitURI("a"))
	require.True(t, ok)
	assert.Equal(t, 3, v)

	require.True(t, trie.Erase(uritrie.SplitURI("a.b.d")))
	_, ok = trie.Find(uritrie.SplitURI("a.b.d"))
	assert.False(t, ok)
	assert.False(t, trie.Erase(uritrie.SplitURI("a.b.d")))

	trie.Clear()
	assert.Equal(t, 0, trie.Len())
}

func TestExactMatchOnly(t *testing.T) {
	trie := uritrie.New[int]()
	trie.Insert(uritrie.SplitURI("a.b"), 1)
	assert.Len(t, trie.Match(uritrie.SplitURI("a.b"), uritrie.PolicyExact), 1)
	assert.Empty(t, trie.Match(uritrie.SplitURI("a.b.c"), uritrie.PolicyExact))
	assert.Empty(t, trie.Match(uritrie.SplitURI("a"), uritrie.PolicyExact))
}

func TestEqual(t *testing.T) {
	a := uritrie.New[int]()
	b := uritrie.New[int]()
	for _, k := range []string{"x", "x.y", "z"} {
		a.Insert(uritrie.SplitURI(k), len(k))
		b.Insert(uritrie.SplitURI(k), len(k))
	}
	eq := func(x, y int) bool { return x == y }
	assert.True(t, uritrie.Equal(a, b, eq))
	b.InsertOrAssign(uritrie.SplitURI("z"), 99)
	assert.False(t, uritrie.Equal(a, b, eq))
}
