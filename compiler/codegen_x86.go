package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// negatedJump is the condition-negation table spec.md §4.3 specifies for
// if/while lowering: the comparison op used in source, the jump emitted to
// *skip* the body when the condition is false.
var negatedJump = map[string]string{
	"==": "jne", "!=": "je", "<": "jge", ">": "jle", "<=": "jg", ">=": "jl",
}

// x86Regs32 / x86Regs64 are the fixed #RN -> GPR lookup tables. Only 8
// distinct physical registers are cycled across the 16 sigils (DESIGN.md
// Open Question 1), matching original_source/compiler/src/codegen.h::reg()
// exactly rather than assigning 16 distinct registers.
var x86Regs32 = map[int]string{
	1: "edi", 7: "edi",
	2: "esi", 8: "esi", 12: "esi",
	3: "edx", 11: "edx",
	4: "ecx", 10: "ecx",
	5: "ebx", 9: "ebx",
	6: "eax", 14: "eax",
	15: "ebp",
	16: "esp",
}

var x86Regs64 = map[int]string{
	1: "rdi", 7: "rdi",
	2: "rsi", 8: "rsi", 12: "rsi",
	3: "rdx", 11: "rdx",
	4: "rcx", 10: "rcx",
	5: "rbx", 9: "rbx",
	6: "rax", 14: "rax",
	15: "rbp",
	16: "rsp",
}

// x86CodeGen is the shared x86 generator for all four x86 targets
// (bare-metal, Linux-32, Linux-64, macOS-64); the target is selected by the
// three mode flags below, which each x86 backend's Emit sets when it
// constructs the generator (all false selects Linux-32). The flags mirror
// original_source/compiler/src/codegen.h's CodeGen class and its
// set_mode(bare_metal, macos_terminal, linux64_terminal, arm64_terminal)
// signature, minus the AArch64 flag: AArch64 has its own generator in
// backend_arm64.go, per spec.md §9's "two co-existing code generators"
// design note extended to a fifth target.
type x86CodeGen struct {
	bareMetal      bool
	macosTerminal  bool
	linux64        bool

	code strings.Builder
	data strings.Builder

	sym *SymbolTable

	lcnt, scnt int
	loopStarts []string
	loopEnds   []string
	retLabel   string // current function's unique return label, set by genFunc

	usesMalloc bool
}

func (g *x86CodeGen) is64() bool { return g.linux64 || g.macosTerminal }
func (g *x86CodeGen) ptrSize() int {
	if g.is64() {
		return 8
	}
	return 4
}

func (g *x86CodeGen) regTable() map[int]string {
	if g.is64() {
		return x86Regs64
	}
	return x86Regs32
}

func (g *x86CodeGen) accReg() string {
	if g.is64() {
		return "rax"
	}
	return "eax"
}

func (g *x86CodeGen) lbl(prefix string) string {
	g.lcnt++
	return fmt.Sprintf("%s%d", prefix, g.lcnt)
}

func isRegRef(s string) bool {
	return strings.HasPrefix(s, "#R")
}

func regNumber(s string) int {
	n, _ := strconv.Atoi(strings.TrimPrefix(s, "#R"))
	return n
}

func isNumLiteral(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == '-' {
		s = s[1:]
	}
	return s != "" && isDigit(s[0])
}

func isHexLiteral(s string) bool {
	return strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")
}

// load emits code moving src (a register ref, numeric literal, or variable
// name) into dstReg.
func (g *x86CodeGen) load(dstReg, src string) error {
	switch {
	case isRegRef(src):
		g.code.WriteString(fmt.Sprintf("    mov %s, %s\n", dstReg, g.regTable()[regNumber(src)]))
	case isNumLiteral(src) || isHexLiteral(src):
		g.code.WriteString(fmt.Sprintf("    mov %s, %s\n", dstReg, src))
	default:
		name, fieldOrIdx, derefd := splitFieldOrIndex(src)
		label, _, isPointer, ok := g.sym.Resolve(stripDeref(name))
		if !ok {
			return codegenErrf(0, "undefined identifier '%s'", name)
		}
		_ = isPointer
		_ = derefd
		_ = fieldOrIdx
		g.code.WriteString(fmt.Sprintf("    mov %s, [%s]\n", dstReg, label))
	}
	return nil
}

func stripDeref(s string) string { return strings.TrimPrefix(s, "*") }

// splitFieldOrIndex splits "name.field" or "name[idx]" forms produced by
// the expression serialiser's primary() folding.
func splitFieldOrIndex(s string) (name, fieldOrIdx string, isDeref bool) {
	if strings.HasPrefix(s, "*") {
		return s[1:], "", true
	}
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return s[:i], s[i+1:], false
	}
	if i := strings.IndexByte(s, '['); i >= 0 && strings.HasSuffix(s, "]") {
		return s[:i], s[i+1 : len(s)-1], false
	}
	return s, "", false
}

func (g *x86CodeGen) store(srcReg, dst string) error {
	label, _, _, ok := g.sym.Resolve(dst)
	if !ok {
		return codegenErrf(0, "undefined identifier '%s'", dst)
	}
	g.code.WriteString(fmt.Sprintf("    mov [%s], %s\n", label, srcReg))
	return nil
}

// expr lowers a fully-parenthesised expression string into dstReg, scanning
// right-to-left for the lowest-precedence top-level operator, recursing
// left-then-right, and spilling to the stack only when the right operand is
// itself compound — the algorithm spec.md §4.3 describes, grounded on
// original_source/compiler/src/codegen.h::expr.
func (g *x86CodeGen) expr(dstReg, s string) error {
	s = stripParens(strings.TrimSpace(s))
	op, left, right, ok := splitTopLevel(s)
	if !ok {
		return g.loadLeaf(dstReg, s)
	}

	if err := g.expr(dstReg, left); err != nil {
		return err
	}

	rightIsCompound := isCompound(right)
	scratch := g.scratchReg(dstReg)
	if rightIsCompound {
		g.code.WriteString(fmt.Sprintf("    push %s\n", dstReg))
		if err := g.expr(scratch, right); err != nil {
			return err
		}
		g.code.WriteString(fmt.Sprintf("    mov %s, %s\n", dstReg, scratch))
		g.code.WriteString(fmt.Sprintf("    pop %s\n", scratch))
		g.emitBinOp(op, scratch, dstReg)
		g.code.WriteString(fmt.Sprintf("    mov %s, %s\n", dstReg, scratch))
		return nil
	}

	if isNumLiteral(right) || isHexLiteral(right) {
		g.emitBinOpImm(op, dstReg, right)
		return nil
	}
	if err := g.load(scratch, right); err != nil {
		return err
	}
	g.emitBinOp(op, dstReg, scratch)
	return nil
}

func isCompound(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) > 1 && s[0] == '(' && s[len(s)-1] == ')' {
		return true
	}
	_, _, _, ok := splitTopLevel(s)
	return ok
}

func (g *x86CodeGen) scratchReg(dst string) string {
	if dst == g.accReg() {
		if g.is64() {
			return "rbx"
		}
		return "ebx"
	}
	if g.is64() {
		return "rax"
	}
	return "eax"
}

func (g *x86CodeGen) loadLeaf(dstReg, s string) error {
	switch {
	case isRegRef(s):
		g.code.WriteString(fmt.Sprintf("    mov %s, %s\n", dstReg, g.regTable()[regNumber(s)]))
		return nil
	case isNumLiteral(s), isHexLiteral(s):
		g.code.WriteString(fmt.Sprintf("    mov %s, %s\n", dstReg, s))
		return nil
	case strings.HasPrefix(s, "&"):
		name := s[1:]
		label, _, _, ok := g.sym.Resolve(name)
		if !ok {
			return codegenErrf(0, "undefined identifier '%s'", name)
		}
		g.code.WriteString(fmt.Sprintf("    lea %s, [%s]\n", dstReg, label))
		return nil
	case strings.HasPrefix(s, "*"):
		return g.loadDeref(dstReg, s[1:])
	default:
		name, field, idx := splitLeaf(s)
		if field != "" {
			return g.loadStructField(dstReg, name, field)
		}
		if idx != "" {
			return g.loadArrayElement(dstReg, name, idx)
		}
		return g.load(dstReg, s)
	}
}

func splitLeaf(s string) (name, field, idx string) {
	if i := strings.IndexByte(s, '['); i >= 0 && strings.HasSuffix(s, "]") {
		return s[:i], "", s[i+1 : len(s)-1]
	}
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return s[:i], s[i+1:], ""
	}
	return s, "", ""
}

func (g *x86CodeGen) loadDeref(dstReg, ptrName string) error {
	label, _, _, ok := g.sym.Resolve(ptrName)
	if !ok {
		return codegenErrf(0, "undefined identifier '%s'", ptrName)
	}
	scratch := g.scratchReg(dstReg)
	g.code.WriteString(fmt.Sprintf("    mov %s, [%s]\n", scratch, label))
	g.code.WriteString(fmt.Sprintf("    mov %s, [%s]\n", dstReg, scratch))
	return nil
}

// loadStructField applies spec.md §4.3's struct addressing to *loads* too,
// not only stores — the original's gen_assign only special-cases the store
// side; this generalises the same 32-vs-64-bit lea-vs-label-plus-offset
// branch symmetrically (SPEC_FULL.md §4.6). loadArrayElement addresses
// label+index*4 directly on every target.
func (g *x86CodeGen) loadStructField(dstReg, varName, field string) error {
	label, typ, _, ok := g.sym.Resolve(varName)
	if !ok {
		return codegenErrf(0, "undefined identifier '%s'", varName)
	}
	off, ok := g.sym.FieldOffset(typ.Base, field)
	if !ok {
		return codegenErrf(0, "unknown field '%s' on struct '%s'", field, typ.Base)
	}
	if g.is64() {
		scratch := g.scratchReg(dstReg)
		g.code.WriteString(fmt.Sprintf("    lea %s, [%s]\n", scratch, label))
		g.code.WriteString(fmt.Sprintf("    mov %s, [%s+%d]\n", dstReg, scratch, off))
	} else {
		g.code.WriteString(fmt.Sprintf("    mov %s, [%s+%d]\n", dstReg, label, off))
	}
	return nil
}

func (g *x86CodeGen) loadArrayElement(dstReg, varName, idxExpr string) error {
	label, _, _, ok := g.sym.Resolve(varName)
	if !ok {
		return codegenErrf(0, "undefined identifier '%s'", varName)
	}
	if isNumLiteral(idxExpr) {
		n, _ := strconv.Atoi(idxExpr)
		g.code.WriteString(fmt.Sprintf("    mov %s, [%s+%d]\n", dstReg, label, n*4))
		return nil
	}
	scratch := g.scratchReg(dstReg)
	if err := g.expr(scratch, idxExpr); err != nil {
		return err
	}
	g.code.WriteString(fmt.Sprintf("    mov %s, [%s+%s*4]\n", dstReg, label, scratch))
	return nil
}

func (g *x86CodeGen) emitBinOp(op, dst, src string) {
	switch op {
	case "+":
		g.code.WriteString(fmt.Sprintf("    add %s, %s\n", dst, src))
	case "-":
		g.code.WriteString(fmt.Sprintf("    sub %s, %s\n", dst, src))
	case "*":
		g.code.WriteString(fmt.Sprintf("    imul %s, %s\n", dst, src))
	case "/":
		g.emitDivide(dst, src, false)
	}
}

func (g *x86CodeGen) emitBinOpImm(op, dst, imm string) {
	switch op {
	case "+":
		g.code.WriteString(fmt.Sprintf("    add %s, %s\n", dst, imm))
	case "-":
		g.code.WriteString(fmt.Sprintf("    sub %s, %s\n", dst, imm))
	case "*":
		g.code.WriteString(fmt.Sprintf("    imul %s, %s, %s\n", dst, dst, imm))
	case "/":
		scratch := g.scratchReg(dst)
		g.code.WriteString(fmt.Sprintf("    mov %s, %s\n", scratch, imm))
		g.emitDivide(dst, scratch, true)
	}
}

// emitDivide lowers integer division with explicit edx clearing/restore,
// per spec.md §4.3: "Division uses idiv with explicit edx clearing and
// save/restore."
func (g *x86CodeGen) emitDivide(dst, src string, immSrc bool) {
	dxReg, axReg := "edx", "eax"
	if g.is64() {
		dxReg, axReg = "rdx", "rax"
	}
	needSave := dst != axReg
	if needSave {
		g.code.WriteString(fmt.Sprintf("    push %s\n", axReg))
		g.code.WriteString(fmt.Sprintf("    mov %s, %s\n", axReg, dst))
	}
	g.code.WriteString(fmt.Sprintf("    push %s\n", dxReg))
	g.code.WriteString(fmt.Sprintf("    xor %s, %s\n", dxReg, dxReg))
	g.code.WriteString(fmt.Sprintf("    idiv %s\n", src))
	g.code.WriteString(fmt.Sprintf("    pop %s\n", dxReg))
	if needSave {
		g.code.WriteString(fmt.Sprintf("    mov %s, %s\n", dst, axReg))
		g.code.WriteString(fmt.Sprintf("    pop %s\n", axReg))
	}
}

// --- declarations ---

func (g *x86CodeGen) genStruct(s *StructDecl) {
	g.sym.DeclareStruct(s, g.ptrSize())
}

func (g *x86CodeGen) genVar(v *VarDecl) {
	vv := v.Var
	g.sym.Declare(vv)
	label := "var_" + vv.Name

	if vv.IsArray {
		esz := 4
		if vv.Type.Base == "u8" {
			esz = 1
		}
		g.data.WriteString(fmt.Sprintf("%s: times %d db 0\n", label, vv.ArrayLen*esz))
		return
	}

	switch vv.Type.Base {
	case "string":
		if vv.Initializer != "" {
			sl := fmt.Sprintf("str_%d", g.scnt)
			g.scnt++
			str := strings.Trim(vv.Initializer, "\"")
			g.data.WriteString(fmt.Sprintf("%s: db %s, 0\n", sl, nasmStringLiteral(str)))
			g.data.WriteString(fmt.Sprintf("%s: dd %s\n", label, sl))
		} else {
			g.data.WriteString(fmt.Sprintf("%s: dd 0\n", label))
		}
	case "pointer":
		g.data.WriteString(fmt.Sprintf("%s: dd 0\n", label))
	default:
		if vv.Type.IsPointer() {
			g.data.WriteString(fmt.Sprintf("%s: dd 0\n", label))
			return
		}
		init := vv.Initializer
		if init == "" {
			init = "0"
		}
		sizeDirective := "dd"
		if vv.Type.Base == "u8" {
			sizeDirective = "db"
		} else if vv.Type.Base == "i64" {
			sizeDirective = "dq"
		}
		g.data.WriteString(fmt.Sprintf("%s: %s %s\n", label, sizeDirective, init))
	}
}

// nasmStringLiteral renders str as a NASM db argument, escaping embedded
// quotes and expanding the lexer's already-decoded \n/\t bytes back into
// explicit numeric bytes (NASM strings cannot carry raw control bytes).
func nasmStringLiteral(str string) string {
	var parts []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			parts = append(parts, "\""+cur.String()+"\"")
			cur.Reset()
		}
	}
	for i := 0; i < len(str); i++ {
		c := str[i]
		if c < 0x20 {
			flush()
			parts = append(parts, strconv.Itoa(int(c)))
			continue
		}
		cur.WriteByte(c)
	}
	flush()
	if len(parts) == 0 {
		return "\"\""
	}
	return strings.Join(parts, ", ")
}

// --- statements ---

func (g *x86CodeGen) genSection(s *SectionNode) error {
	for _, d := range s.Decls {
		g.genVar(d)
	}
	for _, st := range s.Stmts {
		if err := g.genStmt(st); err != nil {
			return err
		}
	}
	g.genAutoFree()
	return nil
}

func (g *x86CodeGen) genStmt(n Node) error {
	switch st := n.(type) {
	case *VarDecl:
		g.genVar(st)
		return nil
	case *Assign:
		return g.genAssign(st)
	case *DisplayNode:
		return g.genDisplay(st)
	case *PrintNumNode:
		return g.genPrintNum(st)
	case *IfNode:
		return g.genIf(st)
	case *LoopNode:
		return g.genLoop(st)
	case *WhileNode:
		return g.genWhile(st)
	case *ForNode:
		return g.genFor(st)
	case *SwitchNode:
		return g.genSwitch(st)
	case *BreakNode:
		if len(g.loopEnds) == 0 {
			return codegenErrf(0, "'break'/'stop' outside of a loop")
		}
		g.code.WriteString(fmt.Sprintf("    jmp %s\n", g.loopEnds[len(g.loopEnds)-1]))
		return nil
	case *ContinueNode:
		if len(g.loopStarts) == 0 {
			return codegenErrf(0, "'continue' outside of a loop")
		}
		g.code.WriteString(fmt.Sprintf("    jmp %s\n", g.loopStarts[len(g.loopStarts)-1]))
		return nil
	case *ReturnNode:
		if st.Value != "" {
			if err := g.expr(g.accReg(), st.Value); err != nil {
				return err
			}
		}
		if g.retLabel == "" {
			return codegenErrf(0, "'return' outside of a function")
		}
		g.code.WriteString(fmt.Sprintf("    jmp %s\n", g.retLabel))
		return nil
	case *FreeNode:
		return g.genFree(st)
	case *AllocNode:
		return g.genAlloc(st)
	case *DeallocNode:
		return g.genFree(&FreeNode{Var: st.Ptr})
	case *ColorNode:
		return g.genColor(st)
	case *ReadKeyNode:
		return g.genReadKey(st)
	case *ReadCharNode:
		return g.genReadChar(st)
	case *PutCharNode:
		return g.genPutChar(st)
	case *ClearNode:
		g.genClear()
		return nil
	case *RebootNode:
		g.genReboot()
		return nil
	case *FuncCall:
		return g.genCall(st)
	case *DriverCall:
		return g.genDriverCall(st)
	case *RegOp:
		return g.genRegOp(st)
	default:
		return nil
	}
}

func (g *x86CodeGen) genAssign(a *Assign) error {
	switch {
	case a.IsReg:
		if err := g.expr(g.regTable()[regNumber(a.Target)], a.Value); err != nil {
			return err
		}
		return nil
	case a.IsDeref:
		if err := g.expr(g.accReg(), a.Value); err != nil {
			return err
		}
		label, _, _, ok := g.sym.Resolve(a.Target)
		if !ok {
			return codegenErrf(0, "undefined identifier '%s'", a.Target)
		}
		scratch := g.scratchReg(g.accReg())
		g.code.WriteString(fmt.Sprintf("    mov %s, [%s]\n", scratch, label))
		g.code.WriteString(fmt.Sprintf("    mov [%s], %s\n", scratch, g.accReg()))
		return nil
	case a.IsStruct:
		name, field, _ := splitLeaf(a.Target)
		if g.sym.IsConst(name) {
			return codegenErrf(0, "cannot assign to const '%s'", name)
		}
		label, typ, _, ok := g.sym.Resolve(name)
		if !ok {
			return codegenErrf(0, "undefined identifier '%s'", name)
		}
		off, ok := g.sym.FieldOffset(typ.Base, field)
		if !ok {
			return codegenErrf(0, "unknown field '%s' on struct '%s'", field, typ.Base)
		}
		if err := g.expr(g.accReg(), a.Value); err != nil {
			return err
		}
		if g.is64() {
			scratch := g.scratchReg(g.accReg())
			g.code.WriteString(fmt.Sprintf("    lea %s, [%s]\n", scratch, label))
			g.code.WriteString(fmt.Sprintf("    mov [%s+%d], %s\n", scratch, off, g.accReg()))
		} else {
			g.code.WriteString(fmt.Sprintf("    mov [%s+%d], %s\n", label, off, g.accReg()))
		}
		return nil
	case a.IsArray:
		if g.sym.IsConst(a.Target) {
			return codegenErrf(0, "cannot assign to const '%s'", a.Target)
		}
		label, _, _, ok := g.sym.Resolve(a.Target)
		if !ok {
			return codegenErrf(0, "undefined identifier '%s'", a.Target)
		}
		if err := g.expr(g.accReg(), a.Value); err != nil {
			return err
		}
		if isNumLiteral(a.Index) {
			n, _ := strconv.Atoi(a.Index)
			g.code.WriteString(fmt.Sprintf("    mov [%s+%d], %s\n", label, n*4, g.accReg()))
			return nil
		}
		scratch := g.scratchReg(g.accReg())
		g.code.WriteString(fmt.Sprintf("    push %s\n", g.accReg()))
		if err := g.expr(scratch, a.Index); err != nil {
			return err
		}
		g.code.WriteString(fmt.Sprintf("    pop %s\n", g.accReg()))
		g.code.WriteString(fmt.Sprintf("    mov [%s+%s*4], %s\n", label, scratch, g.accReg()))
		return nil
	default:
		if g.sym.IsConst(a.Target) {
			return codegenErrf(0, "cannot assign to const '%s'", a.Target)
		}
		if err := g.expr(g.accReg(), a.Value); err != nil {
			return err
		}
		return g.store(g.accReg(), a.Target)
	}
}

func (g *x86CodeGen) genFree(f *FreeNode) error {
	if g.sym.IsConst(f.Var) {
		return codegenErrf(0, "cannot free const '%s'", f.Var)
	}
	if g.sym.IsFreed(f.Var) {
		return nil // idempotent, spec.md §4.3
	}
	label, _, _, ok := g.sym.Resolve(f.Var)
	if !ok {
		return codegenErrf(0, "undefined identifier '%s'", f.Var)
	}
	if !g.bareMetal {
		g.usesMalloc = true
		g.code.WriteString(fmt.Sprintf("    mov %s, [%s]\n", g.ptrArg0(), label))
		g.code.WriteString("    call free\n")
	} else {
		g.code.WriteString(fmt.Sprintf("; auto-free: %s\n", f.Var))
	}
	g.sym.MarkFreed(f.Var)
	return nil
}

// genAutoFree runs the end-of-section sweep: every declared identifier not
// yet freed, const, or a driver constant is released — a real libc free()
// call in terminal modes for heap-allocated pointers, a trace comment in
// bare-metal mode (SPEC_FULL.md §4.6 fixes the original's comment-only
// behaviour for terminal targets). No warning diagnostic is emitted for the
// identifiers it releases.
func (g *x86CodeGen) genAutoFree() {
	for _, name := range g.sym.PendingAutoFree() {
		label, _, _, _ := g.sym.Resolve(name)
		if !g.bareMetal && g.sym.StorageOf(name) == StorageHeap {
			g.usesMalloc = true
			g.code.WriteString(fmt.Sprintf("    mov %s, [%s]\n", g.ptrArg0(), label))
			g.code.WriteString("    call free\n")
		} else {
			g.code.WriteString(fmt.Sprintf("; auto-free: %s\n", name))
		}
		g.sym.MarkFreed(name)
	}
}

// ptrArg0 is the register holding a function's first argument under this
// target's calling convention — used for the single-argument malloc/free
// call sequences.
func (g *x86CodeGen) ptrArg0() string {
	if g.is64() {
		if g.macosTerminal {
			return "rdi"
		}
		return "rdi" // System V AMD64 and Linux agree on rdi for arg0
	}
	return "eax" // cdecl passes via stack in the general case; see genAlloc/genFree call sequence below
}

func (g *x86CodeGen) genAlloc(a *AllocNode) error {
	g.usesMalloc = true
	if err := g.expr(g.ptrArg0(), a.Size); err != nil {
		return err
	}
	g.code.WriteString("    call malloc\n")
	if a.Dest != "" {
		if err := g.store(g.accReg(), a.Dest); err != nil {
			return err
		}
		g.sym.SetStorage(a.Dest, StorageHeap)
	}
	return nil
}

func (g *x86CodeGen) genCall(c *FuncCall) error {
	name := strings.TrimPrefix(c.Name, "#")
	g.code.WriteString(fmt.Sprintf("    call %s\n", name))
	return nil
}

func (g *x86CodeGen) genDriverCall(d *DriverCall) error {
	target := strings.TrimPrefix(d.BuiltinName, "#")
	if d.UseBuiltin {
		g.code.WriteString(fmt.Sprintf("    call __defacto_drv_%s\n", target))
	} else {
		g.code.WriteString(fmt.Sprintf("    call %s\n", target))
	}
	if d.DriverTarget != "" {
		if err := g.store(g.accReg(), d.DriverTarget); err != nil {
			return err
		}
	}
	return nil
}

func (g *x86CodeGen) genRegOp(r *RegOp) error {
	dst := g.regTable()[regNumber(r.Target)]
	if isRegRef(r.Source) {
		g.code.WriteString(fmt.Sprintf("    mov %s, %s\n", dst, g.regTable()[regNumber(r.Source)]))
		return nil
	}
	return g.load(dst, r.Source)
}

// --- control flow ---

func (g *x86CodeGen) genIf(n *IfNode) error {
	skip := g.lbl("if_skip")
	end := g.lbl("if_end")

	if err := g.emitCompare(n.Left, n.Op, n.Right); err != nil {
		return err
	}
	g.code.WriteString(fmt.Sprintf("    %s %s\n", negatedJump[n.Op], skip))

	for _, s := range n.Then {
		if err := g.genStmt(s); err != nil {
			return err
		}
	}
	if len(n.Else) > 0 {
		g.code.WriteString(fmt.Sprintf("    jmp %s\n", end))
		g.code.WriteString(skip + ":\n")
		for _, s := range n.Else {
			if err := g.genStmt(s); err != nil {
				return err
			}
		}
		g.code.WriteString(end + ":\n")
	} else {
		g.code.WriteString(skip + ":\n")
	}
	return nil
}

func (g *x86CodeGen) emitCompare(left, op, right string) error {
	if err := g.expr(g.accReg(), left); err != nil {
		return err
	}
	scratch := g.scratchReg(g.accReg())
	if isNumLiteral(right) || isHexLiteral(right) {
		g.code.WriteString(fmt.Sprintf("    cmp %s, %s\n", g.accReg(), right))
		return nil
	}
	if err := g.expr(scratch, right); err != nil {
		return err
	}
	g.code.WriteString(fmt.Sprintf("    cmp %s, %s\n", g.accReg(), scratch))
	return nil
}

func (g *x86CodeGen) genLoop(n *LoopNode) error {
	start := g.lbl("loop_start")
	end := g.lbl("loop_end")
	g.loopStarts = append(g.loopStarts, start)
	g.loopEnds = append(g.loopEnds, end)

	g.code.WriteString(start + ":\n")
	for _, s := range n.Body {
		if err := g.genStmt(s); err != nil {
			return err
		}
	}
	g.code.WriteString(fmt.Sprintf("    jmp %s\n", start))
	g.code.WriteString(end + ":\n")

	g.loopStarts = g.loopStarts[:len(g.loopStarts)-1]
	g.loopEnds = g.loopEnds[:len(g.loopEnds)-1]
	return nil
}

func (g *x86CodeGen) genWhile(n *WhileNode) error {
	start := g.lbl("while_start")
	end := g.lbl("while_end")
	g.loopStarts = append(g.loopStarts, start)
	g.loopEnds = append(g.loopEnds, end)

	g.code.WriteString(start + ":\n")
	if err := g.emitCompare(n.Left, n.Op, n.Right); err != nil {
		return err
	}
	g.code.WriteString(fmt.Sprintf("    %s %s\n", negatedJump[n.Op], end))
	for _, s := range n.Body {
		if err := g.genStmt(s); err != nil {
			return err
		}
	}
	g.code.WriteString(fmt.Sprintf("    jmp %s\n", start))
	g.code.WriteString(end + ":\n")

	g.loopStarts = g.loopStarts[:len(g.loopStarts)-1]
	g.loopEnds = g.loopEnds[:len(g.loopEnds)-1]
	return nil
}

// genFor lowers `for i = A to B { body }`: store A into i, compare i<B,
// jge-to-end, body, i=i+1, jmp start — a zero-trip loop when A==B (spec.md
// §8 boundary case).
func (g *x86CodeGen) genFor(n *ForNode) error {
	if err := g.expr(g.accReg(), n.InitValue); err != nil {
		return err
	}
	if err := g.store(g.accReg(), n.InitVar); err != nil {
		return err
	}

	start := g.lbl("for_start")
	end := g.lbl("for_end")
	g.loopStarts = append(g.loopStarts, start)
	g.loopEnds = append(g.loopEnds, end)

	g.code.WriteString(start + ":\n")
	if err := g.emitCompare(n.InitVar, "<", n.CondRight); err != nil {
		return err
	}
	g.code.WriteString(fmt.Sprintf("    jge %s\n", end))
	for _, s := range n.Body {
		if err := g.genStmt(s); err != nil {
			return err
		}
	}
	if err := g.load(g.accReg(), n.InitVar); err != nil {
		return err
	}
	g.code.WriteString(fmt.Sprintf("    add %s, 1\n", g.accReg()))
	if err := g.store(g.accReg(), n.InitVar); err != nil {
		return err
	}
	g.code.WriteString(fmt.Sprintf("    jmp %s\n", start))
	g.code.WriteString(end + ":\n")

	g.loopStarts = g.loopStarts[:len(g.loopStarts)-1]
	g.loopEnds = g.loopEnds[:len(g.loopEnds)-1]
	return nil
}

func (g *x86CodeGen) genSwitch(n *SwitchNode) error {
	end := g.lbl("switch_end")
	if err := g.expr(g.accReg(), n.Value); err != nil {
		return err
	}
	caseLabels := make([]string, len(n.Cases))
	for i, c := range n.Cases {
		caseLabels[i] = g.lbl("case")
		g.code.WriteString(fmt.Sprintf("    cmp %s, %s\n", g.accReg(), c.CaseVal))
		g.code.WriteString(fmt.Sprintf("    je %s\n", caseLabels[i]))
	}
	defaultLbl := end
	if len(n.DefaultBody) > 0 {
		defaultLbl = g.lbl("default")
	}
	g.code.WriteString(fmt.Sprintf("    jmp %s\n", defaultLbl))

	for i, c := range n.Cases {
		g.code.WriteString(caseLabels[i] + ":\n")
		for _, s := range c.Body {
			if err := g.genStmt(s); err != nil {
				return err
			}
		}
		g.code.WriteString(fmt.Sprintf("    jmp %s\n", end))
	}
	if len(n.DefaultBody) > 0 {
		g.code.WriteString(defaultLbl + ":\n")
		for _, s := range n.DefaultBody {
			if err := g.genStmt(s); err != nil {
				return err
			}
		}
	}
	g.code.WriteString(end + ":\n")
	return nil
}

func (g *x86CodeGen) genFunc(f *FuncDecl) error {
	name := strings.TrimPrefix(f.Name, "#")
	g.code.WriteString(fmt.Sprintf("\n%s:\n", name))
	g.code.WriteString(fmt.Sprintf("    push %s\n", g.framePtr()))
	g.code.WriteString(fmt.Sprintf("    mov %s, %s\n", g.framePtr(), g.stackPtr()))

	prevRet := g.retLabel
	g.retLabel = g.lbl("func_ret")
	if err := g.genSection(f.Body); err != nil {
		g.retLabel = prevRet
		return err
	}
	g.code.WriteString(g.retLabel + ":\n")
	g.retLabel = prevRet

	g.code.WriteString(fmt.Sprintf("    mov %s, %s\n", g.stackPtr(), g.framePtr()))
	g.code.WriteString(fmt.Sprintf("    pop %s\n", g.framePtr()))
	g.code.WriteString("    ret\n")
	return nil
}

func (g *x86CodeGen) framePtr() string {
	if g.is64() {
		return "rbp"
	}
	return "ebp"
}

func (g *x86CodeGen) stackPtr() string {
	if g.is64() {
		return "rsp"
	}
	return "esp"
}
