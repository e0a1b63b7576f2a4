package compiler

import (
	"strconv"
	"strings"
)

// Parser is a recursive-descent parser producing a Program tree from a
// token stream. Structural errors are accumulated rather than raised
// immediately, the same shape as tinyrange-rtg/std/compiler/parser.go's
// Parser.errorf — later errors in the same file still surface instead of
// being hidden behind the first one.
type Parser struct {
	tokens []Token
	pos    int
	diags  *Diagnostics

	constSet map[string]bool
	structs  map[string]*StructDecl
}

func NewParser(tokens []Token, diags *Diagnostics) *Parser {
	return &Parser{
		tokens:   tokens,
		diags:    diags,
		constSet: map[string]bool{},
		structs:  map[string]*StructDecl{},
	}
}

func (p *Parser) peek() Token {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return Token{Kind: TokEOF}
}

func (p *Parser) peekAt(n int) Token {
	if p.pos+n < len(p.tokens) {
		return p.tokens[p.pos+n]
	}
	return Token{Kind: TokEOF}
}

func (p *Parser) advance() Token {
	t := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return t
}

func (p *Parser) at(k TokenKind) bool { return p.peek().Kind == k }

func (p *Parser) match(k TokenKind) bool {
	if p.at(k) {
		p.advance()
		return true
	}
	return false
}

// expect consumes a token of kind k, or records a fatal structural error
// carrying (message, line) and returns the zero Token (spec.md §4.2
// "Failure behavior"). Parsing continues from the current position so
// later errors in the same file are still found.
func (p *Parser) expect(k TokenKind, msg string) Token {
	if p.at(k) {
		return p.advance()
	}
	p.errorf("%s (got %s %q)", msg, p.peek().Kind, p.peek().Val)
	return Token{}
}

func (p *Parser) errorf(format string, args ...any) {
	p.diags.Error(p.peek().Line, format, args...)
}

func (p *Parser) warnf(format string, args ...any) {
	p.diags.Warn(p.peek().Line, format, args...)
}

// skipToken emits a recovery warning and discards the current token, per
// spec.md §4.2: "a spurious token inside a statement context emits a
// warning and is skipped to allow recovery".
func (p *Parser) skipToken() {
	p.warnf("unexpected token %s %q, skipping", p.peek().Kind, p.peek().Val)
	p.advance()
}

// ParseProgram parses a full translation unit: header directive, optional
// flags/imports, top-level decls in any order, the main section(s), footer
// directive, optional driver-stop. Libraries (isLibrary=true) skip the
// header/footer requirement (spec.md §3 invariant).
func (p *Parser) ParseProgram(isLibrary bool) *Program {
	prog := &Program{}

	if !isLibrary {
		p.expect(TokProgStart, "expected '#Mainprogramm.start'")
	}

	for {
		switch {
		case p.at(TokNoRuntime):
			p.advance()
			prog.NoRuntime = true
		case p.at(TokSafe):
			p.advance()
			prog.Safe = true
		case p.at(TokDriver):
			p.advance()
		case p.at(TokImport):
			p.advance()
			p.expect(TokLBrace, "expected '{' after Import")
			name := p.expect(TokIdent, "expected library name").Val
			p.expect(TokRBrace, "expected '}'")
			prog.Imports = append(prog.Imports, name)
		default:
			goto decls
		}
	}

decls:
	for p.isTopLevelStart() {
		p.parseTopDecl(prog)
	}

	for p.at(TokSecOpen) {
		prog.MainSecs = append(prog.MainSecs, p.parseSection())
		for p.isTopLevelStart() {
			p.parseTopDecl(prog)
		}
	}

	if !isLibrary {
		p.expect(TokProgEnd, "expected '#Mainprogramm.end'")
		if p.at(TokDriverStop) {
			p.advance()
		}
	}

	if !p.at(TokEOF) {
		p.errorf("unexpected trailing token %s after program end", p.peek().Kind)
	}
	return prog
}

func (p *Parser) isTopLevelStart() bool {
	switch p.peek().Kind {
	case TokStruct, TokEnum, TokExtern, TokInterrupt, TokFn, TokFunction, TokDriver, TokDrvOpen, TokInclude:
		return true
	}
	return false
}

func (p *Parser) parseTopDecl(prog *Program) {
	switch {
	case p.at(TokStruct):
		prog.Structs = append(prog.Structs, p.parseStruct())
	case p.at(TokEnum):
		p.parseEnum()
	case p.at(TokExtern):
		prog.Externs = append(prog.Externs, p.parseExtern())
	case p.at(TokInclude):
		p.parseInclude()
	case p.at(TokInterrupt):
		prog.Interrupts = append(prog.Interrupts, p.parseInterrupt())
	case p.at(TokFn), p.at(TokFunction):
		prog.Functions = append(prog.Functions, p.parseFunc())
	case p.at(TokDriver):
		p.advance()
	case p.at(TokDrvOpen):
		prog.Drivers = append(prog.Drivers, p.parseDriverSection())
	default:
		p.skipToken()
	}
}

func (p *Parser) parseStruct() *StructDecl {
	p.advance() // 'struct'
	name := p.expect(TokIdent, "expected struct name").Val
	p.expect(TokLBrace, "expected '{'")
	s := &StructDecl{Name: name}
	for !p.at(TokRBrace) && !p.at(TokEOF) {
		fname := p.expect(TokIdent, "expected field name").Val
		p.expect(TokColon, "expected ':'")
		ftype, arrLen := p.parseType()
		s.Fields = append(s.Fields, StructField{Name: fname, Type: ftype, ArrayLen: arrLen})
	}
	p.expect(TokRBrace, "expected '}'")
	p.structs[name] = s
	return s
}

func (p *Parser) parseEnum() {
	p.advance() // 'enum'
	name := p.expect(TokIdent, "expected enum name").Val
	p.expect(TokLBrace, "expected '{'")
	var variants []string
	for !p.at(TokRBrace) && !p.at(TokEOF) {
		variants = append(variants, p.expect(TokIdent, "expected enum variant").Val)
		p.match(TokComma)
	}
	p.expect(TokRBrace, "expected '}'")
	_ = &EnumDecl{Name: name, Variants: variants}
}

func (p *Parser) parseExtern() *ExternDecl {
	p.advance() // 'extern'
	name := p.expect(TokIdent, "expected extern name").Val
	lib := ""
	if p.match(TokColon) {
		lib = p.expect(TokIdent, "expected library name").Val
	}
	return &ExternDecl{Name: name, Library: lib}
}

func (p *Parser) parseInclude() {
	p.advance() // 'include'
	p.expect(TokString, "expected include path")
}

// parseInterrupt parses `#INTERRUPT{<number>} == <function_name>`.
func (p *Parser) parseInterrupt() InterruptBinding {
	p.advance() // '#INTERRUPT'
	p.expect(TokLBrace, "expected '{'")
	numTok := p.expect(TokNumber, "expected interrupt vector number")
	p.expect(TokRBrace, "expected '}'")
	p.expect(TokEqEq, "expected '=='")
	fn := p.expect(TokIdent, "expected function name").Val
	n, _ := strconv.Atoi(numTok.Val)
	return InterruptBinding{Number: n, Function: fn}
}

// parseFunc parses the current `fn name(params) { section }` syntax, and
// the legacy `function == name { section }` variant (spec.md §6).
func (p *Parser) parseFunc() *FuncDecl {
	if p.at(TokFunction) {
		p.advance()
		p.expect(TokEqEq, "expected '=='")
		name := p.expect(TokIdent, "expected function name").Val
		p.expect(TokLBrace, "expected '{'")
		body := p.parseSection()
		p.expect(TokRBrace, "expected '}'")
		return &FuncDecl{Name: name, Body: body}
	}
	p.advance() // 'fn'
	name := p.expect(TokIdent, "expected function name").Val
	p.expect(TokLParen, "expected '('")
	var params []Param
	for !p.at(TokRParen) && !p.at(TokEOF) {
		if len(params) > 0 {
			p.expect(TokComma, "expected ','")
		}
		pname := p.expect(TokIdent, "expected parameter name").Val
		p.expect(TokColon, "expected ':'")
		ptype, _ := p.parseType()
		params = append(params, Param{Name: pname, Type: ptype})
	}
	p.expect(TokRParen, "expected ')'")
	var ret Type
	if p.match(TokColon) {
		ret, _ = p.parseType()
	}
	p.expect(TokLBrace, "expected '{'")
	body := p.parseSection()
	p.expect(TokRBrace, "expected '}'")
	return &FuncDecl{Name: name, Params: params, ReturnType: ret, Body: body}
}

// parseType parses a base type or struct-name IDENT, any number of leading
// '*' for pointer depth, and an optional '[N]' array-field suffix.
func (p *Parser) parseType() (Type, int) {
	depth := 0
	for p.at(TokStar) {
		p.advance()
		depth++
	}
	var base string
	switch {
	case p.at(TokI32):
		base = "i32"
	case p.at(TokI64):
		base = "i64"
	case p.at(TokU8):
		base = "u8"
	case p.at(TokBool):
		base = "bool"
	case p.at(TokStringType):
		base = "string"
	case p.at(TokPointer):
		base = "pointer"
	case p.at(TokIdent):
		base = p.peek().Val
	default:
		p.errorf("expected type, got %s", p.peek().Kind)
	}
	p.advance()
	arrLen := 0
	if p.match(TokLBrack) {
		n := p.expect(TokNumber, "expected array length")
		arrLen, _ = strconv.Atoi(n.Val)
		p.expect(TokRBrack, "expected ']'")
	}
	return Type{Base: base, PointerDep: depth}, arrLen
}

// parseSection parses `<.de decls/stmts .>`. The legacy `static.pl>`
// separator token is accepted and ignored wherever it appears, per spec.md
// §9: "make static.pl> optional ... accepted and ignored to keep older
// programs compiling".
func (p *Parser) parseSection() *SectionNode {
	p.expect(TokSecOpen, "expected '<.de'")
	sec := &SectionNode{}
	for !p.at(TokSecClose) && !p.at(TokEOF) {
		if p.match(TokStaticPl) {
			continue
		}
		if p.at(TokVar) || p.at(TokConst) {
			sec.Decls = append(sec.Decls, p.parseVarDecl())
			continue
		}
		if stmt := p.parseStatement(); stmt != nil {
			sec.Stmts = append(sec.Stmts, stmt)
		}
	}
	p.expect(TokSecClose, "expected '.>'")
	return sec
}

func (p *Parser) parseVarDecl() *VarDecl {
	isConst := p.at(TokConst)
	p.advance() // 'var' or 'const'
	name := p.expect(TokIdent, "expected variable name").Val
	p.expect(TokColon, "expected ':'")
	typ, arrLen := p.parseType() // parseType consumes a trailing '[N]'
	isArray := arrLen > 0
	init := ""
	if p.match(TokEq) {
		init = p.parseExpression().Serialize()
	} else if isConst {
		p.errorf("const '%s' missing initializer", name)
	}
	if isConst && isArray {
		p.errorf("const '%s' cannot be declared as an array", name)
	}
	if isConst {
		p.constSet[name] = true
	}
	return &VarDecl{Var: Variable{
		Name: name, Type: typ, Initializer: init, IsConst: isConst,
		IsArray: isArray, ArrayLen: arrLen,
	}}
}

func (p *Parser) parseStatement() Node {
	switch {
	case p.at(TokLoop):
		return p.parseLoop()
	case p.at(TokWhile):
		return p.parseWhile()
	case p.at(TokFor):
		return p.parseFor()
	case p.at(TokIf):
		return p.parseIf()
	case p.at(TokSwitch):
		return p.parseSwitch()
	case p.at(TokBreak), p.at(TokStop):
		p.advance()
		return &BreakNode{}
	case p.at(TokContinue):
		p.advance()
		return &ContinueNode{}
	case p.at(TokReturn):
		p.advance()
		val := ""
		if !p.at(TokRBrace) && !p.at(TokSecClose) {
			val = p.parseExpression().Serialize()
		}
		return &ReturnNode{Value: val}
	case p.at(TokDisplay):
		return p.parseArgBuiltin(func(arg string) Node { return &DisplayNode{Var: arg} })
	case p.at(TokPrintNum):
		return p.parseArgBuiltin(func(arg string) Node { return &PrintNumNode{Var: arg} })
	case p.at(TokFree):
		return p.parseArgBuiltin(func(arg string) Node {
			if p.constSet[arg] {
				p.errorf("cannot free const '%s'", arg)
			}
			return &FreeNode{Var: arg}
		})
	case p.at(TokPutChar):
		return p.parseArgBuiltin(func(arg string) Node { return &PutCharNode{Value: arg} })
	case p.at(TokColor):
		return p.parseArgBuiltin(func(arg string) Node { return &ColorNode{Value: arg} })
	case p.at(TokReadChar):
		return p.parseArgBuiltin(func(arg string) Node { return &ReadCharNode{Var: arg} })
	case p.at(TokReadKey):
		p.advance()
		dest := ""
		if p.match(TokLBrace) {
			dest = p.expect(TokIdent, "expected destination").Val
			p.expect(TokRBrace, "expected '}'")
		}
		return &ReadKeyNode{Dest: dest}
	case p.at(TokClear):
		p.advance()
		return &ClearNode{}
	case p.at(TokReboot):
		p.advance()
		return &RebootNode{}
	case p.at(TokCall):
		p.advance() // 'call'
		target := p.expect(TokIdent, "expected function name").Val
		return &FuncCall{Name: target}
	case p.at(TokDrvAssign):
		p.advance() // '<<'
		return p.finishDriverCall("")
	case p.at(TokRegister), p.at(TokIdent), p.at(TokStar), p.at(TokMov):
		return p.parseAssignOrCall()
	default:
		p.skipToken()
		return nil
	}
}

// parseArgBuiltin parses `keyword{arg}` built-ins (spec.md §6: "Argument
// delimiter for built-in operations: { } around the single argument").
func (p *Parser) parseArgBuiltin(build func(arg string) Node) Node {
	p.advance() // the keyword
	p.expect(TokLBrace, "expected '{'")
	arg := ""
	if !p.at(TokRBrace) {
		arg = p.parseExpression().Serialize()
	}
	p.expect(TokRBrace, "expected '}'")
	return build(arg)
}

// finishDriverCall parses the right-hand side of the driver-function-assign
// sigil `<<` (spec.md §4.2): `target << name` invokes name, storing its
// result in target when target is non-empty. A name matching a registered
// driver type (keyboard/mouse/volume) resolves to the built-in
// `__defacto_drv_<type>` stub; anything else calls it directly.
func (p *Parser) finishDriverCall(target string) Node {
	name := p.expect(TokIdent, "expected driver or function name").Val
	return &DriverCall{DriverTarget: target, BuiltinName: name, UseBuiltin: driverTypeNames[name]}
}

// parseAssignOrCall parses a statement starting with an identifier,
// register, or '*': assignment to a plain/register/array/struct-field/
// deref target, an alloc{N} result assignment, or a bare function call.
func (p *Parser) parseAssignOrCall() Node {
	if p.at(TokMov) {
		p.advance()
		target := p.expect(TokRegister, "expected register target").Val
		p.expect(TokComma, "expected ','")
		source := p.parseOperand()
		return &RegOp{Op: "#MOV", Target: target, Source: source}
	}

	if p.at(TokStar) {
		p.advance()
		ptr := p.expect(TokIdent, "expected pointer name").Val
		p.expect(TokEq, "expected '='")
		val := p.parseExpression().Serialize()
		return &Assign{Target: ptr, Value: val, IsDeref: true}
	}

	isReg := p.at(TokRegister)
	name := p.peek().Val
	p.advance()

	// Driver call: `target << name`.
	if p.match(TokDrvAssign) {
		return p.finishDriverCall(name)
	}

	// Bare call: `doit()` or `#doit()`.
	if p.at(TokLParen) {
		p.advance()
		var args []string
		for !p.at(TokRParen) && !p.at(TokEOF) {
			if len(args) > 0 {
				p.expect(TokComma, "expected ','")
			}
			args = append(args, p.parseExpression().Serialize())
		}
		p.expect(TokRParen, "expected ')'")
		return &FuncCall{Name: name, Args: args}
	}

	if p.match(TokDot) {
		field := p.expect(TokIdent, "expected field name").Val
		p.expect(TokEq, "expected '='")
		val := p.parseExpression().Serialize()
		if p.constSet[name] {
			p.errorf("cannot assign to const '%s'", name)
		}
		return &Assign{Target: name + "." + field, Value: val, IsStruct: true}
	}

	// The lexer keeps '.' inside identifiers, so `p.x = v` arrives as the
	// single IDENT "p.x".
	if i := strings.IndexByte(name, '.'); i > 0 && !isReg {
		p.expect(TokEq, "expected '='")
		val := p.parseExpression().Serialize()
		if p.constSet[name[:i]] {
			p.errorf("cannot assign to const '%s'", name[:i])
		}
		return &Assign{Target: name, Value: val, IsStruct: true}
	}

	if p.match(TokLBrack) {
		idx := p.parseExpression().Serialize()
		p.expect(TokRBrack, "expected ']'")
		p.expect(TokEq, "expected '='")
		val := p.parseExpression().Serialize()
		if p.constSet[name] {
			p.errorf("cannot assign to const '%s'", name)
		}
		return &Assign{Target: name, Value: val, Index: idx, IsArray: true}
	}

	p.expect(TokEq, "expected '='")
	if p.at(TokAlloc) {
		return p.parseArgBuiltin(func(arg string) Node { return &AllocNode{Size: arg, Dest: name} })
	}
	val := p.parseExpression().Serialize()
	if p.constSet[name] {
		p.errorf("cannot assign to const '%s'", name)
	}
	return &Assign{Target: name, Value: val, IsReg: isReg}
}

// parseOperand parses a single register/number/identifier operand used by
// the low-level `#MOV` register-move form.
func (p *Parser) parseOperand() string {
	t := p.peek()
	p.advance()
	return t.Val
}

func (p *Parser) parseLoop() Node {
	p.advance() // 'loop'
	body := p.parseBlock()
	return &LoopNode{Body: body}
}

func (p *Parser) parseCondTriple() (left, op, right string) {
	left = p.parseExpression().Serialize()
	t := p.peek()
	if cop, ok := cmpOps[t.Kind]; ok {
		p.advance()
		op = cop
	} else {
		p.errorf("expected comparison operator, got %s", t.Kind)
	}
	right = p.parseExpression().Serialize()
	return
}

func (p *Parser) parseWhile() Node {
	p.advance() // 'while'
	left, op, right := p.parseCondTriple()
	body := p.parseBlock()
	return &WhileNode{Left: left, Op: op, Right: right, Body: body}
}

// parseFor parses `for i = A to B { body }`.
func (p *Parser) parseFor() Node {
	p.advance() // 'for'
	initVar := p.expect(TokIdent, "expected loop variable").Val
	p.expect(TokEq, "expected '='")
	initVal := p.parseExpression().Serialize()
	// 'to' is a contextual keyword (IDENT "to"), matching a dedicated token
	// would over-reserve a common identifier; checked here instead.
	if t := p.peek(); t.Kind == TokIdent && t.Val == "to" {
		p.advance()
	} else {
		p.errorf("expected 'to' in for-loop bounds")
	}
	condRight := p.parseExpression().Serialize()
	body := p.parseBlock()
	return &ForNode{InitVar: initVar, InitValue: initVal, CondOp: "<", CondRight: condRight, Body: body}
}

func (p *Parser) parseIf() Node {
	p.advance() // 'if'
	left, op, right := p.parseCondTriple()
	thenBody := p.parseBlock()
	var elseBody []Node
	if p.match(TokElse) {
		elseBody = p.parseBlock()
	}
	return &IfNode{Left: left, Op: op, Right: right, Then: thenBody, Else: elseBody}
}

func (p *Parser) parseSwitch() Node {
	p.advance() // 'switch'
	val := p.parseExpression().Serialize()
	p.expect(TokLBrace, "expected '{'")
	sw := &SwitchNode{Value: val}
	for p.at(TokCase) {
		p.advance()
		caseVal := p.parseExpression().Serialize()
		p.expect(TokColon, "expected ':'")
		var body []Node
		for !p.at(TokCase) && !p.at(TokDefault) && !p.at(TokRBrace) && !p.at(TokEOF) {
			if s := p.parseStatement(); s != nil {
				body = append(body, s)
			}
		}
		sw.Cases = append(sw.Cases, SwitchCase{CaseVal: caseVal, Body: body})
	}
	if p.match(TokDefault) {
		p.expect(TokColon, "expected ':'")
		for !p.at(TokRBrace) && !p.at(TokEOF) {
			if s := p.parseStatement(); s != nil {
				sw.DefaultBody = append(sw.DefaultBody, s)
			}
		}
	}
	p.expect(TokRBrace, "expected '}'")
	return sw
}

func (p *Parser) parseBlock() []Node {
	p.expect(TokLBrace, "expected '{'")
	var body []Node
	for !p.at(TokRBrace) && !p.at(TokEOF) {
		if p.at(TokVar) || p.at(TokConst) {
			// Nested blocks may declare their own locals; represented as an
			// assignment-shaped decl statement folded into the body so a
			// single []Node can hold both without a parallel decls slice.
			vd := p.parseVarDecl()
			body = append(body, vd)
			continue
		}
		if s := p.parseStatement(); s != nil {
			body = append(body, s)
		}
	}
	p.expect(TokRBrace, "expected '}'")
	return body
}

// parseDriverSection parses `<drv. ... .dr>`.
func (p *Parser) parseDriverSection() *DriverSectionNode {
	p.expect(TokDrvOpen, "expected '<drv.'")
	d := &DriverSectionNode{}
	for !p.at(TokDrvClose) && !p.at(TokEOF) {
		switch {
		case p.match(TokStaticPl):
		case p.at(TokConstDriver):
			p.advance()
			name := p.expect(TokIdent, "expected driver name").Val
			d.DriverName = name
		case p.at(TokIdent) && driverTypeNames[p.peek().Val]:
			d.DriverType = p.peek().Val
			p.advance()
		case p.at(TokVar) || p.at(TokConst):
			d.Decls = append(d.Decls, p.parseVarDecl())
		default:
			if s := p.parseStatement(); s != nil {
				d.Stmts = append(d.Stmts, s)
			} else {
				break
			}
		}
	}
	p.expect(TokDrvClose, "expected '.dr>'")
	return d
}
