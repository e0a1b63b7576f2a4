// Package compiler implements the Defacto compiler: a lexer, recursive-descent
// parser, program tree, and code generators for five targets (one shared x86
// generator and one AArch64 generator) that lower Defacto source to native
// assembly text.
package compiler

import "fmt"

// TokenKind is the closed set of token classes the lexer produces.
type TokenKind int

const (
	TokEOF TokenKind = iota

	// Literals and identifiers.
	TokIdent
	TokNumber
	TokHex
	TokString
	TokTrue
	TokFalse

	// Register sigil, e.g. #R1.
	TokRegister

	// Sigil directives.
	TokProgStart  // #Mainprogramm.start
	TokProgEnd    // #Mainprogramm.end
	TokNoRuntime  // #NO_RUNTIME
	TokSafe       // #SAFE
	TokInterrupt  // #INTERRUPT
	TokDriver     // #DRIVER
	TokDriverStop // #DRIVER.stop
	TokMov        // #MOV
	TokRegStatic  // #STATIC
	TokRegStop    // #STOP

	// Section brackets.
	TokSecOpen  // <.de
	TokSecClose // .>
	TokDrvOpen  // <drv.
	TokDrvClose // .dr>
	TokStaticPl // static.pl> (legacy separator, accepted and ignored)

	// Keywords.
	TokVar
	TokConst
	TokConstDriver
	TokFunction
	TokFn
	TokLoop
	TokWhile
	TokFor
	TokIf
	TokElse
	TokSwitch
	TokCase
	TokDefault
	TokStop
	TokBreak
	TokContinue
	TokReturn
	TokDisplay
	TokPrintNum
	TokFree
	TokAlloc
	TokColor
	TokReadKey
	TokReadChar
	TokPutChar
	TokClear
	TokReboot
	TokStruct
	TokEnum
	TokExtern
	TokInclude
	TokImport
	TokCall

	// Type keywords.
	TokI32
	TokI64
	TokU8
	TokBool
	TokStringType
	TokPointer

	// Operators and punctuation.
	TokEq       // =
	TokEqEq     // ==
	TokNotEq    // !=
	TokLt       // <
	TokLe       // <=
	TokGt       // >
	TokGe       // >=
	TokPlus     // +
	TokMinus    // -
	TokStar     // * (multiplication or dereference; parser disambiguates)
	TokSlash    // /
	TokAndAnd   // &&
	TokOrOr     // ||
	TokNot      // !
	TokAmp      // &
	TokDrvAssign // <<
	TokLShift   // ->  (reserved arrow)
	TokRBrack2  // >>
	TokLParen
	TokRParen
	TokLBrace
	TokRBrace
	TokLBrack
	TokRBrack
	TokColon
	TokSemicolon
	TokComma
	TokDot
)

var tokenNames = map[TokenKind]string{
	TokEOF:         "EOF",
	TokIdent:       "IDENT",
	TokNumber:      "NUMBER",
	TokHex:         "HEX",
	TokString:      "STRING",
	TokTrue:        "true",
	TokFalse:       "false",
	TokRegister:    "REGISTER",
	TokProgStart:   "#Mainprogramm.start",
	TokProgEnd:     "#Mainprogramm.end",
	TokNoRuntime:   "#NO_RUNTIME",
	TokSafe:        "#SAFE",
	TokInterrupt:   "#INTERRUPT",
	TokDriver:      "#DRIVER",
	TokDriverStop:  "#DRIVER.stop",
	TokMov:         "#MOV",
	TokRegStatic:   "#STATIC",
	TokRegStop:     "#STOP",
	TokSecOpen:     "<.de",
	TokSecClose:    ".>",
	TokDrvOpen:     "<drv.",
	TokDrvClose:    ".dr>",
	TokStaticPl:    "static.pl>",
	TokVar:         "var",
	TokConst:       "const",
	TokConstDriver: "Const.driver",
	TokFunction:    "function",
	TokFn:          "fn",
	TokLoop:        "loop",
	TokWhile:       "while",
	TokFor:         "for",
	TokIf:          "if",
	TokElse:        "else",
	TokSwitch:      "switch",
	TokCase:        "case",
	TokDefault:     "default",
	TokStop:        "stop",
	TokBreak:       "break",
	TokContinue:    "continue",
	TokReturn:      "return",
	TokDisplay:     "display",
	TokPrintNum:    "printnum",
	TokFree:        "free",
	TokAlloc:       "alloc",
	TokColor:       "color",
	TokReadKey:     "readkey",
	TokReadChar:    "readchar",
	TokPutChar:     "putchar",
	TokClear:       "clear",
	TokReboot:      "reboot",
	TokStruct:      "struct",
	TokEnum:        "enum",
	TokExtern:      "extern",
	TokInclude:     "include",
	TokImport:      "Import",
	TokCall:        "call",
	TokI32:         "i32",
	TokI64:         "i64",
	TokU8:          "u8",
	TokBool:        "bool",
	TokStringType:  "string",
	TokPointer:     "pointer",
}

func (k TokenKind) String() string {
	if n, ok := tokenNames[k]; ok {
		return n
	}
	return fmt.Sprintf("tok(%d)", int(k))
}

// Token is a single lexical unit. Immutable once produced.
type Token struct {
	Kind TokenKind
	Val  string
	Line int
	Col  int
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)@%d:%d", t.Kind, t.Val, t.Line, t.Col)
}

// keywords maps reserved identifier spellings to their keyword token kind.
// Identifiers not present here lex as TokIdent.
var keywords = map[string]TokenKind{
	"var":          TokVar,
	"const":        TokConst,
	"Const.driver": TokConstDriver,
	"function":     TokFunction,
	"fn":           TokFn,
	"call":         TokCall,
	"loop":         TokLoop,
	"while":        TokWhile,
	"for":          TokFor,
	"if":           TokIf,
	"else":         TokElse,
	"switch":       TokSwitch,
	"case":         TokCase,
	"default":      TokDefault,
	"stop":         TokStop,
	"break":        TokBreak,
	"continue":     TokContinue,
	"return":       TokReturn,
	"display":      TokDisplay,
	"printnum":     TokPrintNum,
	"free":         TokFree,
	"alloc":        TokAlloc,
	"color":        TokColor,
	"readkey":      TokReadKey,
	"readchar":     TokReadChar,
	"putchar":      TokPutChar,
	"clear":        TokClear,
	"reboot":       TokReboot,
	"struct":       TokStruct,
	"enum":         TokEnum,
	"extern":       TokExtern,
	"include":      TokInclude,
	"Import":       TokImport,
	"true":         TokTrue,
	"false":        TokFalse,
	"i32":          TokI32,
	"i64":          TokI64,
	"u8":           TokU8,
	"bool":         TokBool,
	"string":       TokStringType,
	"pointer":      TokPointer,
}

// driverTypeNames are driver-type identifiers that stay IDENT tokens (per
// original_source/compiler/src/lexer.h's kw(), which deliberately keeps these
// as plain identifiers rather than dedicated keyword tokens).
var driverTypeNames = map[string]bool{
	"keyboard": true,
	"mouse":    true,
	"volume":   true,
}
