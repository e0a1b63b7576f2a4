package compiler

import (
	"sort"

	"github.com/dolthub/swiss"
	"github.com/samber/lo"
)

// symbolEntry is the per-identifier record the code generator consults on
// every reference (spec.md §3 "Symbol table").
type symbolEntry struct {
	label     string // "var_<name>"
	typ       Type
	isPointer bool
	storage   StorageClass
}

// SymbolTable is the code generator's owned per-translation-unit symbol
// table: three mappings (label, type, is-pointer) keyed by identifier, plus
// the declared/freed/const/driver-constant sets spec.md §3 and §4.3
// describe. Backed by a swiss.Map rather than a plain Go map: every lookup
// here is a point read with no iteration-order requirement, the same access
// pattern mna-nenuphar's interpreter uses dolthub/swiss for its variable
// bindings.
type SymbolTable struct {
	entries *swiss.Map[string, symbolEntry]

	declared        map[string]bool
	freed           map[string]bool
	everBorrowed    map[string]bool // set by MarkFreed, for explicit free{} and the auto-free sweep alike
	constDeclared   map[string]bool
	driverConstants map[string]bool

	structFieldOffsets map[string]map[string]int
	structSizes        map[string]int
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		entries:            swiss.NewMap[string, symbolEntry](16),
		declared:           map[string]bool{},
		freed:              map[string]bool{},
		everBorrowed:       map[string]bool{},
		constDeclared:      map[string]bool{},
		driverConstants:    map[string]bool{},
		structFieldOffsets: map[string]map[string]int{},
		structSizes:        map[string]int{},
	}
}

// Declare registers v in the symbol table, recording it in the appropriate
// const/declared set (spec.md §3).
func (s *SymbolTable) Declare(v Variable) {
	s.entries.Put(v.Name, symbolEntry{
		label:     "var_" + v.Name,
		typ:       v.Type,
		isPointer: v.Type.IsPointer(),
		storage:   v.Storage,
	})
	if v.IsConst {
		s.constDeclared[v.Name] = true
	} else {
		s.declared[v.Name] = true
	}
}

func (s *SymbolTable) DeclareDriverConstant(name string) {
	s.driverConstants[name] = true
}

// Resolve looks up name; ok is false if it was never declared (spec.md §3
// invariant: "every reference to a symbol at code-gen time must resolve in
// the table; unresolved names are a hard error").
func (s *SymbolTable) Resolve(name string) (label string, typ Type, isPointer bool, ok bool) {
	e, found := s.entries.Get(name)
	if !found {
		return "", Type{}, false, false
	}
	return e.label, e.typ, e.isPointer, true
}

// SetStorage updates name's recorded storage class — used when alloc{N}'s
// result is assigned to a variable that was declared before its storage
// class (stack/data vs. heap) was known.
func (s *SymbolTable) SetStorage(name string, sc StorageClass) {
	e, ok := s.entries.Get(name)
	if !ok {
		return
	}
	e.storage = sc
	s.entries.Put(name, e)
}

// StorageOf reports the storage class of a declared identifier (data-section
// global or heap-allocated), used by the auto-free sweep to decide between a
// trace comment and a real libc free() call.
func (s *SymbolTable) StorageOf(name string) StorageClass {
	e, _ := s.entries.Get(name)
	return e.storage
}

func (s *SymbolTable) IsConst(name string) bool { return s.constDeclared[name] }

// MarkFreed records that name has been released, either by an explicit
// free{name} or by the end-of-section auto-free sweep. Freeing an
// already-freed identifier is idempotent, matching spec.md §4.3.
func (s *SymbolTable) MarkFreed(name string) {
	s.freed[name] = true
	s.everBorrowed[name] = true
}

func (s *SymbolTable) IsFreed(name string) bool { return s.freed[name] }

// PendingAutoFree returns, in a stable declaration-independent order, every
// declared identifier not yet freed, not const, and not a driver constant —
// the set the end-of-section auto-free sweep must release (spec.md §4.3,
// §5 "guarantees every declared identifier is released exactly once").
func (s *SymbolTable) PendingAutoFree() []string {
	candidates := lo.Keys(s.declared)
	pending := lo.Filter(candidates, func(name string, _ int) bool {
		return !s.freed[name] && !s.constDeclared[name] && !s.driverConstants[name]
	})
	sort.Strings(pending) // deterministic emission (spec.md §8 round-trip/idempotence)
	return pending
}

// NeverBorrowed reports whether MarkFreed has never been called for name.
// The auto-free sweep calls MarkFreed as well, so after the sweep this does
// not tell an auto-freed identifier apart from an explicitly freed one. No
// code generator calls it.
func (s *SymbolTable) NeverBorrowed(name string) bool { return !s.everBorrowed[name] }

// DeclareStruct computes field offsets in declaration order using the
// per-target pointer size (spec.md §3: u8=1, i32/bool=4, i64/string/
// pointer=8 on 64-bit targets and 4 on 32-bit), and records the running
// total as the struct's size. Offsets are monotonically non-decreasing by
// construction (spec.md §3 invariant, §8 testable property).
func (s *SymbolTable) DeclareStruct(decl *StructDecl, ptrSize int) {
	offsets := map[string]int{}
	offset := 0
	_ = lo.Reduce(decl.Fields, func(acc int, f StructField, _ int) int {
		offsets[f.Name] = acc
		sz := s.fieldSize(f.Type, ptrSize)
		if f.ArrayLen > 0 {
			sz *= f.ArrayLen
		}
		offset = acc + sz
		return offset
	}, 0)
	s.structFieldOffsets[decl.Name] = offsets
	s.structSizes[decl.Name] = offset
}

func (s *SymbolTable) fieldSize(t Type, ptrSize int) int {
	switch {
	case t.Base == "u8":
		return 1
	case t.Base == "i32" || t.Base == "bool":
		return 4
	case t.Base == "i64" || t.Base == "string" || t.IsPointer():
		return ptrSize
	default:
		// user struct field: nested struct size if known, else a
		// pointer-sized default.
		if sz, ok := s.structSizes[t.Base]; ok {
			return sz
		}
		return ptrSize
	}
}

// FieldOffset resolves struct.field; ok is false for an unknown struct or
// field (spec.md §4.3: "an unknown field is a hard error").
func (s *SymbolTable) FieldOffset(structName, field string) (int, bool) {
	fields, ok := s.structFieldOffsets[structName]
	if !ok {
		return 0, false
	}
	off, ok := fields[field]
	return off, ok
}

func (s *SymbolTable) StructSize(name string) (int, bool) {
	sz, ok := s.structSizes[name]
	return sz, ok
}
