package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseSrc(t *testing.T, src string) (*Program, *Diagnostics) {
	t.Helper()
	diags := NewDiagnostics()
	lex := NewLexer(src, diags)
	toks := lex.Tokenize()
	p := NewParser(toks, diags)
	prog := p.ParseProgram(false)
	return prog, diags
}

const helloProgram = `
#Mainprogramm.start
<.de
var x : i32 = 5
var y : i32 = 10
display{x}
printnum{y}
.>
#Mainprogramm.end
`

func TestParserHelloWorld(t *testing.T) {
	prog, diags := parseSrc(t, helloProgram)
	require.False(t, diags.HasFatal(), diags.Items())
	require.Len(t, prog.MainSecs, 1)
	sec := prog.MainSecs[0]
	require.Len(t, sec.Decls, 2)
	assert.Equal(t, "x", sec.Decls[0].Var.Name)
	assert.Equal(t, "5", sec.Decls[0].Var.Initializer)
	require.Len(t, sec.Stmts, 2)
	_, ok := sec.Stmts[0].(*DisplayNode)
	assert.True(t, ok)
	_, ok = sec.Stmts[1].(*PrintNumNode)
	assert.True(t, ok)
}

func TestParserConstWithoutInitializerErrors(t *testing.T) {
	_, diags := parseSrc(t, `
#Mainprogramm.start
<.de
const x : i32
.>
#Mainprogramm.end
`)
	assert.True(t, diags.HasFatal())
}

func TestParserArithmeticPrecedence(t *testing.T) {
	diags := NewDiagnostics()
	lex := NewLexer("1 + 2 * 3", diags)
	toks := lex.Tokenize()
	p := NewParser(toks, diags)
	expr := p.parseExpression()
	assert.Equal(t, "(1+(2*3))", expr.Serialize())
}

func TestParserStructFieldAccessAssign(t *testing.T) {
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
	require.Len(t, prog.Structs, 1)
	sec := prog.MainSecs[0]
	require.Len(t, sec.Stmts, 1)
	assign, ok := sec.Stmts[0].(*Assign)
	require.True(t, ok)
	assert.True(t, assign.IsStruct)
}

func TestParserLoopWithBreak(t *testing.T) {
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
	sec := prog.MainSecs[0]
	loop, ok := sec.Stmts[0].(*LoopNode)
	require.True(t, ok)
	require.Len(t, loop.Body, 1)
	_, ok = loop.Body[0].(*BreakNode)
	assert.True(t, ok)
}

func TestParserImportDirectiveRecorded(t *testing.T) {
	prog, diags := parseSrc(t, `
#Mainprogramm.start
Import{mylib}
<.de
.>
#Mainprogramm.end
`)
	require.False(t, diags.HasFatal(), diags.Items())
	assert.Equal(t, []string{"mylib"}, prog.Imports)
}

func TestParserBareCallProducesFuncCall(t *testing.T) {
	prog, diags := parseSrc(t, `
#Mainprogramm.start
fn doit() {
<.de
.>
}
<.de
call doit
.>
#Mainprogramm.end
`)
	require.False(t, diags.HasFatal(), diags.Items())
	sec := prog.MainSecs[0]
	require.Len(t, sec.Stmts, 1)
	call, ok := sec.Stmts[0].(*FuncCall)
	require.True(t, ok, "expected *FuncCall, got %T", sec.Stmts[0])
	assert.Equal(t, "doit", call.Name)
}

func TestParserDriverAssignSigilProducesDriverCall(t *testing.T) {
	prog, diags := parseSrc(t, `
#Mainprogramm.start
<.de
var status : i32 = 0
status << keyboard
.>
#Mainprogramm.end
`)
	require.False(t, diags.HasFatal(), diags.Items())
	sec := prog.MainSecs[0]
	require.Len(t, sec.Stmts, 1)
	dc, ok := sec.Stmts[0].(*DriverCall)
	require.True(t, ok, "expected *DriverCall, got %T", sec.Stmts[0])
	assert.Equal(t, "status", dc.DriverTarget)
	assert.Equal(t, "keyboard", dc.BuiltinName)
	assert.True(t, dc.UseBuiltin)
}

func TestParserBareDriverAssignSigilNoTarget(t *testing.T) {
	prog, diags := parseSrc(t, `
#Mainprogramm.start
<.de
<< myHandler
.>
#Mainprogramm.end
`)
	require.False(t, diags.HasFatal(), diags.Items())
	sec := prog.MainSecs[0]
	require.Len(t, sec.Stmts, 1)
	dc, ok := sec.Stmts[0].(*DriverCall)
	require.True(t, ok, "expected *DriverCall, got %T", sec.Stmts[0])
	assert.Equal(t, "", dc.DriverTarget)
	assert.Equal(t, "myHandler", dc.BuiltinName)
	assert.False(t, dc.UseBuiltin)
}
