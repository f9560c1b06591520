package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSymbolsMerge(t *testing.T) {
	a := Symbols{Usage: "Parses configs.", Functions: []string{"Load"}, Imports: []string{"os"}}
	b := Symbols{Usage: "Writes configs.", Functions: []string{"Load", "Save"}, Classes: []string{"Config"}}

	got := a.Merge(b)
	assert.Equal(t, "Parses configs. Writes configs.", got.Usage)
	assert.Equal(t, []string{"Load", "Load", "Save"}, got.Functions)
	assert.Equal(t, []string{"Config"}, got.Classes)
	assert.Equal(t, []string{"os"}, got.Imports)
	assert.Equal(t, []string{"Load"}, a.Functions, "receiver is not modified")

	assert.Equal(t, "Writes configs.", Symbols{}.Merge(b).Usage)
	assert.Equal(t, "Parses configs.", a.Merge(Symbols{Usage: "Parses configs."}).Usage)
	assert.True(t, Symbols{}.Merge(Symbols{}).IsEmpty())
}

func TestIndexEntriesSorted(t *testing.T) {
	idx := Index{"/b": {Path: "/b"}, "/a": {Path: "/a"}, "/c": {Path: "/c"}}
	var paths []string
	for _, e := range idx.Entries() {
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{"/a", "/b", "/c"}, paths)

	clone := idx.Clone()
	delete(clone, "/a")
	assert.Len(t, idx, 3)
}
