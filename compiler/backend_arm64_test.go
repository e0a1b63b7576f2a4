package compiler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestARM64LinuxEmitsDirectRegisterAddressing(t *testing.T) {
	prog, diags := parseSrc(t, `
#Mainprogramm.start
<.de
var x : i32 = 5
var y : i32 = 10
var total : i32 = x + y
.>
#Mainprogramm.end
`)
	require.False(t, diags.HasFatal(), diags.Items())

	backend := NewARM64Backend(ARM64Linux)
	code, err := backend.Emit(prog)
	require.NoError(t, err)

	assert.Contains(t, code, ".text")
	assert.Contains(t, code, "_start:")
	assert.Contains(t, code, "stp x29, x30")
	assert.Contains(t, code, "svc #0")
	assert.NotContains(t, code, "#R1") // no sigil-indirection table on AArch64
}

func TestARM64MacOSUsesMachOSections(t *testing.T) {
	prog, diags := parseSrc(t, `
#Mainprogramm.start
<.de
var x : i32 = 1
.>
#Mainprogramm.end
`)
	require.False(t, diags.HasFatal(), diags.Items())

	backend := NewARM64Backend(ARM64MacOS)
	code, err := backend.Emit(prog)
	require.NoError(t, err)

	assert.Contains(t, code, "__TEXT,__text")
	assert.Contains(t, code, "__DATA,__data")
	assert.Contains(t, code, "svc #0x80")
}

func TestARM64LoopWithBreak(t *testing.T) {
	prog, diags := parseSrc(t, `
#Mainprogramm.start
<.de
var i : i32 = 0
loop {
break
}
.>
#Mainprogramm.end
`)
	require.False(t, diags.HasFatal(), diags.Items())

	backend := NewARM64Backend(ARM64Linux)
	code, err := backend.Emit(prog)
	require.NoError(t, err)
	assert.Contains(t, code, "loop_start")
	assert.Contains(t, code, "loop_end")
}

func TestARM64MultipleFunctionsEmitDistinctReturnLabels(t *testing.T) {
	prog, diags := parseSrc(t, `
#Mainprogramm.start
fn first() {
<.de
return
.>
}
fn second() {
<.de
return
.>
}
<.de
call first
call second
.>
#Mainprogramm.end
`)
	require.False(t, diags.HasFatal(), diags.Items())

	backend := NewARM64Backend(ARM64Linux)
	code, err := backend.Emit(prog)
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(code, "func_ret1:"), code)
	assert.Equal(t, 1, strings.Count(code, "func_ret2:"), code)
	assert.Contains(t, code, "bl first")
	assert.Contains(t, code, "bl second")
}

func TestARM64StructFieldOffsetAddressing(t *testing.T) {
	prog, diags := parseSrc(t, `
#Mainprogramm.start
struct Point {
x : i32
y : i32
}
<.de
var p : Point
p.x = 3
.>
#Mainprogramm.end
`)
	require.False(t, diags.HasFatal(), diags.Items())

	backend := NewARM64Backend(ARM64Linux)
	code, err := backend.Emit(prog)
	require.NoError(t, err)
	assert.Contains(t, code, "adrp")
	assert.Contains(t, code, "str x1, [x0, #")
}
