package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexerTokenizeEndsWithExactlyOneEOF(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{"empty", ""},
		{"sigils", "#Mainprogramm.start #NO_RUNTIME #SAFE #Mainprogramm.end"},
		{"unknown char emits no phantom token", "x @ y"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			diags := NewDiagnostics()
			lex := NewLexer(tc.src, diags)
			toks := lex.Tokenize()
			require.NotEmpty(t, toks)
			assert.Equal(t, TokEOF, toks[len(toks)-1].Kind)
			for _, tok := range toks[:len(toks)-1] {
				assert.NotEqual(t, TokEOF, tok.Kind, "EOF must appear exactly once, at the end")
			}
		})
	}
}

func TestLexerKeywordsAndRegisters(t *testing.T) {
	diags := NewDiagnostics()
	lex := NewLexer("var x : i32 = 5 #R1 #R7", diags)
	toks := lex.Tokenize()

	var kinds []TokenKind
	for _, tok := range toks {
		kinds = append(kinds, tok.Kind)
	}
	assert.Contains(t, kinds, TokVar)
	assert.Contains(t, kinds, TokI32)
	assert.Contains(t, kinds, TokRegister)
}

func TestLexerDriverTypeNamesStayIdent(t *testing.T) {
	diags := NewDiagnostics()
	lex := NewLexer("keyboard mouse volume", diags)
	toks := lex.Tokenize()
	for _, tok := range toks[:3] {
		assert.Equal(t, TokIdent, tok.Kind)
	}
}

func TestLexerSectionBrackets(t *testing.T) {
	diags := NewDiagnostics()
	lex := NewLexer("<.de .> <drv. .dr>", diags)
	toks := lex.Tokenize()
	var kinds []TokenKind
	for _, tok := range toks {
		kinds = append(kinds, tok.Kind)
	}
	assert.Contains(t, kinds, TokSecOpen)
	assert.Contains(t, kinds, TokSecClose)
	assert.Contains(t, kinds, TokDrvOpen)
	assert.Contains(t, kinds, TokDrvClose)
}

func TestLexerStringEscapes(t *testing.T) {
	diags := NewDiagnostics()
	lex := NewLexer(`"hi\n\tthere"`, diags)
	toks := lex.Tokenize()
	require.GreaterOrEqual(t, len(toks), 2)
	assert.Equal(t, TokString, toks[0].Kind)
	assert.Contains(t, toks[0].Val, "\n")
	assert.Contains(t, toks[0].Val, "\t")
}
