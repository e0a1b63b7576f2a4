package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbolTableDeclareAndResolve(t *testing.T) {
	sym := NewSymbolTable()
	sym.Declare(Variable{Name: "x", Type: Type{Base: "i32"}})

	label, typ, isPointer, ok := sym.Resolve("x")
	require.True(t, ok)
	assert.Equal(t, "var_x", label)
	assert.Equal(t, "i32", typ.Base)
	assert.False(t, isPointer)

	_, _, _, ok = sym.Resolve("nope")
	assert.False(t, ok)
}

func TestSymbolTableConstViolation(t *testing.T) {
	sym := NewSymbolTable()
	sym.Declare(Variable{Name: "c", Type: Type{Base: "i32"}, IsConst: true})
	assert.True(t, sym.IsConst("c"))
	assert.False(t, sym.IsConst("other"))
}

func TestSymbolTableAutoFreeSweepSkipsConstAndDriverConstants(t *testing.T) {
	sym := NewSymbolTable()
	sym.Declare(Variable{Name: "heapVar", Type: Type{Base: "pointer"}})
	sym.Declare(Variable{Name: "constVar", Type: Type{Base: "i32"}, IsConst: true})
	sym.DeclareDriverConstant("drvConst")
	sym.Declare(Variable{Name: "drvConst", Type: Type{Base: "pointer"}})

	pending := sym.PendingAutoFree()
	assert.Equal(t, []string{"heapVar"}, pending)
}

func TestSymbolTableFreeIsIdempotent(t *testing.T) {
	sym := NewSymbolTable()
	sym.Declare(Variable{Name: "p", Type: Type{Base: "pointer"}})
	assert.False(t, sym.IsFreed("p"))
	sym.MarkFreed("p")
	assert.True(t, sym.IsFreed("p"))
	sym.MarkFreed("p") // freeing twice must not panic or error
	assert.True(t, sym.IsFreed("p"))
}

func TestSymbolTableStorageTracking(t *testing.T) {
	sym := NewSymbolTable()
	sym.Declare(Variable{Name: "p", Type: Type{Base: "pointer"}, Storage: StorageData})
	assert.Equal(t, StorageData, sym.StorageOf("p"))
	sym.SetStorage("p", StorageHeap)
	assert.Equal(t, StorageHeap, sym.StorageOf("p"))
}

func TestSymbolTableStructFieldOffsetsMonotonic(t *testing.T) {
	sym := NewSymbolTable()
	decl := &StructDecl{
		Name: "Point",
		Fields: []StructField{
			{Name: "tag", Type: Type{Base: "u8"}},
			{Name: "x", Type: Type{Base: "i32"}},
			{Name: "label", Type: Type{Base: "string"}},
		},
	}
	sym.DeclareStruct(decl, 8)

	tagOff, ok := sym.FieldOffset("Point", "tag")
	require.True(t, ok)
	xOff, ok := sym.FieldOffset("Point", "x")
	require.True(t, ok)
	labelOff, ok := sym.FieldOffset("Point", "label")
	require.True(t, ok)

	assert.Equal(t, 0, tagOff)
	assert.Less(t, tagOff, xOff)
	assert.Less(t, xOff, labelOff)

	size, ok := sym.StructSize("Point")
	require.True(t, ok)
	assert.Equal(t, labelOff+8, size)

	_, ok = sym.FieldOffset("Point", "missing")
	assert.False(t, ok)
	_, ok = sym.FieldOffset("Unknown", "x")
	assert.False(t, ok)
}
