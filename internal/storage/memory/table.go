package memory

import (
	"reward-center/internal/pda"
)

// table is a committed set of rows keyed by address.
type table[T any] struct {
	rows  map[pda.Pubkey]T
	clone func(T) T // deep copy for rows holding slices; nil copies by value
}

func newTable[T any](clone func(T) T) *table[T] {
	return &table[T]{rows: make(map[pda.Pubkey]T), clone: clone}
}

func (t *table[T]) copyOf(v T) T {
	if t.clone != nil {
		return t.clone(v)
	}
	return v
}

// staged overlays uncommitted writes and deletes on a table.
type staged[T any] struct {
	base    *table[T]
	writes  map[pda.Pubkey]T
	deletes map[pda.Pubkey]struct{}
}

func stage[T any](base *table[T]) *staged[T] {
	return &staged[T]{
		base:    base,
		writes:  make(map[pda.Pubkey]T),
		deletes: make(map[pda.Pubkey]struct{}),
	}
}

func (s *staged[T]) get(addr pda.Pubkey) (T, bool) {
	if v, ok := s.writes[addr]; ok {
		return s.base.copyOf(v), true
	}
	if _, deleted := s.deletes[addr]; deleted {
		var zero T
		return zero, false
	}
	v, ok := s.base.rows[addr]
	if !ok {
		var zero T
		return zero, false
	}
	return s.base.copyOf(v), true
}

func (s *staged[T]) put(addr pda.Pubkey, v T) {
	delete(s.deletes, addr)
	s.writes[addr] = s.base.copyOf(v)
}

func (s *staged[T]) del(addr pda.Pubkey) {
	delete(s.writes, addr)
	s.deletes[addr] = struct{}{}
}

func (s *staged[T]) commit() {
	for addr := range s.deletes {
		delete(s.base.rows, addr)
	}
	for addr, v := range s.writes {
		s.base.rows[addr] = v
	}
}

