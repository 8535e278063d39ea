package sysio

import (
	lru "github.com/hashicorp/golang-lru"
)

// SourceLocation pairs a source line/column with the name of the
// script (sprite/stage) the position came from, the secondary artifact
// spec §6 calls the "Locations table" and §7's ErrorSummary reads from.
type SourceLocation struct {
	ScriptName string
	Line       int
	Column     int
}

// LocationTable maps bytecode positions to SourceLocation, backed by a
// bounded LRU over an immutable base table: large compiled programs
// can carry tens of thousands of positions, and only a small hot set
// (the frames actually appearing in a live stack trace) are looked up
// per error, so a full decode up front is wasted work.
type LocationTable struct {
	base  map[int]SourceLocation
	cache *lru.Cache
}

// NewLocationTable wraps base (typically decoded once from the
// compiled artifact) with an LRU front of the given size.
func NewLocationTable(base map[int]SourceLocation, cacheSize int) *LocationTable {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	c, _ := lru.New(cacheSize)
	return &LocationTable{base: base, cache: c}
}

// Lookup resolves a bytecode position to its SourceLocation.
func (t *LocationTable) Lookup(pos int) (SourceLocation, bool) {
	if v, ok := t.cache.Get(pos); ok {
		return v.(SourceLocation), true
	}
	loc, ok := t.base[pos]
	if ok {
		t.cache.Add(pos, loc)
	}
	return loc, ok
}
