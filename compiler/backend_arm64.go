package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// arm64NegatedJump mirrors negatedJump's condition table with AArch64
// branch mnemonics (original_source/compiler/src/arm64_codegen.h::gen_if).
var arm64NegatedJump = map[string]string{
	"==": "b.ne", "!=": "b.eq", "<": "b.ge", ">": "b.le", "<=": "b.gt", ">=": "b.lt",
}

// arm64CodeGen targets AArch64, macOS or Linux (spec.md §4.3). Unlike the
// x86 generator, register references are direct numeric x0-x30 addressing
// rather than a sigil-indirection table — original_source/.../
// arm64_codegen.h's reg(n) simply formats "x"+n, so this backend keeps that
// shape instead of forcing the x86 aliasing table onto a different ISA
// (SPEC_FULL.md §4.6).
type arm64CodeGen struct {
	os ARM64OS

	code strings.Builder
	data strings.Builder
	sym  *SymbolTable

	lcnt, scnt int
	loopStarts []string
	loopEnds   []string
	retLabel   string // current function's unique return label, set by genFunc
}

func init() {
	RegisterBackend(TargetARM64, func() Backend { return &arm64Backend{os: ARM64Linux} })
}

// arm64Backend wraps arm64CodeGen for the Backend registry. The host OS
// (macOS vs Linux) is selected by NewARM64Backend; the zero value defaults
// to Linux, matching the registry's single-target-per-Target-name contract.
type arm64Backend struct {
	os ARM64OS
}

// NewARM64Backend returns an AArch64 backend for the given host OS, for
// callers (cmd/defacto) that need to distinguish macOS from Linux beyond
// the registry's single TargetARM64 entry.
func NewARM64Backend(os ARM64OS) Backend { return &arm64Backend{os: os} }

func (b *arm64Backend) Name() string { return string(TargetARM64) }

func (b *arm64Backend) Emit(prog *Program) (string, error) {
	g := &arm64CodeGen{os: b.os}
	return g.Emit(prog)
}

func (g *arm64CodeGen) isMacOS() bool { return g.os == ARM64MacOS }

func (g *arm64CodeGen) lbl(prefix string) string {
	g.lcnt++
	return fmt.Sprintf("%s%d", prefix, g.lcnt)
}

func (g *arm64CodeGen) reg(n int) string { return fmt.Sprintf("x%d", n) }

// load moves src (a register ref, numeric literal, or variable) into the
// register numbered dst, using adrp/ldr page-relative addressing for
// variables, matching arm64_codegen.h::load.
func (g *arm64CodeGen) load(dst int, src string) error {
	dstReg := g.reg(dst)
	switch {
	case isRegRef(src):
		g.code.WriteString(fmt.Sprintf("    mov %s, %s\n", dstReg, g.reg(regNumber(src))))
	case isNumLiteral(src):
		n, _ := strconv.Atoi(src)
		if n >= 0 && n <= 0xFFFF {
			g.code.WriteString(fmt.Sprintf("    mov %s, #%d\n", dstReg, n))
		} else {
			g.code.WriteString(fmt.Sprintf("    movz %s, #%d\n", dstReg, n&0xFFFF))
			g.code.WriteString(fmt.Sprintf("    movk %s, #%d, lsl #16\n", dstReg, (n>>16)&0xFFFF))
		}
	case isHexLiteral(src):
		n, _ := strconv.ParseInt(strings.TrimPrefix(strings.TrimPrefix(src, "0x"), "0X"), 16, 64)
		g.code.WriteString(fmt.Sprintf("    mov %s, #%d\n", dstReg, n))
	default:
		label, _, _, ok := g.sym.Resolve(src)
		if !ok {
			return codegenErrf(0, "undefined identifier '%s'", src)
		}
		g.code.WriteString(fmt.Sprintf("    adrp %s, %s@PAGE\n", dstReg, label))
		g.code.WriteString(fmt.Sprintf("    ldr %s, [%s, %s@PAGEOFF]\n", dstReg, dstReg, label))
	}
	return nil
}

func (g *arm64CodeGen) store(src int, dst string) error {
	label, _, _, ok := g.sym.Resolve(dst)
	if !ok {
		return codegenErrf(0, "undefined identifier '%s'", dst)
	}
	g.code.WriteString(fmt.Sprintf("    adrp x16, %s@PAGE\n", label))
	g.code.WriteString(fmt.Sprintf("    str %s, [x16, %s@PAGEOFF]\n", g.reg(src), label))
	return nil
}

// expr lowers a serialised expression into register dst, the same
// right-to-left lowest-precedence scan the x86 generator uses (spec.md
// §4.3), adapted to AArch64's three-operand add/sub/mul instruction forms.
func (g *arm64CodeGen) expr(dst int, s string) error {
	s = stripParens(strings.TrimSpace(s))
	op, left, right, ok := splitTopLevel(s)
	if !ok {
		return g.loadLeaf(dst, s)
	}
	if err := g.expr(dst, left); err != nil {
		return err
	}
	scratch := dst + 1
	if scratch > 15 {
		scratch = 9
	}
	if isNumLiteral(right) || isHexLiteral(right) {
		if err := g.load(scratch, right); err != nil {
			return err
		}
	} else if err := g.expr(scratch, right); err != nil {
		return err
	}
	g.emitBinOp(op, dst, dst, scratch)
	return nil
}

func (g *arm64CodeGen) loadLeaf(dst int, s string) error {
	switch {
	case strings.HasPrefix(s, "&"):
		name := s[1:]
		label, _, _, ok := g.sym.Resolve(name)
		if !ok {
			return codegenErrf(0, "undefined identifier '%s'", name)
		}
		dstReg := g.reg(dst)
		g.code.WriteString(fmt.Sprintf("    adrp %s, %s@PAGE\n", dstReg, label))
		g.code.WriteString(fmt.Sprintf("    add %s, %s, %s@PAGEOFF\n", dstReg, dstReg, label))
		return nil
	case strings.HasPrefix(s, "*"):
		if err := g.load(dst, s[1:]); err != nil {
			return err
		}
		g.code.WriteString(fmt.Sprintf("    ldr %s, [%s]\n", g.reg(dst), g.reg(dst)))
		return nil
	default:
		name, field, idx := splitLeaf(s)
		if field != "" {
			return g.loadStructField(dst, name, field)
		}
		if idx != "" {
			return g.loadArrayElement(dst, name, idx)
		}
		return g.load(dst, s)
	}
}

func (g *arm64CodeGen) loadStructField(dst int, varName, field string) error {
	_, typ, _, ok := g.sym.Resolve(varName)
	if !ok {
		return codegenErrf(0, "undefined identifier '%s'", varName)
	}
	off, ok := g.sym.FieldOffset(typ.Base, field)
	if !ok {
		return codegenErrf(0, "unknown field '%s' on struct '%s'", field, typ.Base)
	}
	if err := g.loadLeaf(dst, "&"+varName); err != nil {
		return err
	}
	g.code.WriteString(fmt.Sprintf("    ldr %s, [%s, #%d]\n", g.reg(dst), g.reg(dst), off))
	return nil
}

func (g *arm64CodeGen) loadArrayElement(dst int, varName, idxExpr string) error {
	if err := g.loadLeaf(dst, "&"+varName); err != nil {
		return err
	}
	if isNumLiteral(idxExpr) {
		n, _ := strconv.Atoi(idxExpr)
		g.code.WriteString(fmt.Sprintf("    ldr %s, [%s, #%d]\n", g.reg(dst), g.reg(dst), n*4))
		return nil
	}
	scratch := dst + 1
	if err := g.expr(scratch, idxExpr); err != nil {
		return err
	}
	g.code.WriteString(fmt.Sprintf("    add %s, %s, %s, lsl #2\n", g.reg(dst), g.reg(dst), g.reg(scratch)))
	g.code.WriteString(fmt.Sprintf("    ldr %s, [%s]\n", g.reg(dst), g.reg(dst)))
	return nil
}

func (g *arm64CodeGen) emitBinOp(op string, dst, a, b int) {
	dstReg, aReg, bReg := g.reg(dst), g.reg(a), g.reg(b)
	switch op {
	case "+":
		g.code.WriteString(fmt.Sprintf("    add %s, %s, %s\n", dstReg, aReg, bReg))
	case "-":
		g.code.WriteString(fmt.Sprintf("    sub %s, %s, %s\n", dstReg, aReg, bReg))
	case "*":
		g.code.WriteString(fmt.Sprintf("    mul %s, %s, %s\n", dstReg, aReg, bReg))
	case "/":
		g.code.WriteString(fmt.Sprintf("    sdiv %s, %s, %s\n", dstReg, aReg, bReg))
	}
}

func (g *arm64CodeGen) genStruct(s *StructDecl) { g.sym.DeclareStruct(s, 8) }

func (g *arm64CodeGen) genVar(v *VarDecl) {
	vv := v.Var
	g.sym.Declare(vv)
	label := "var_" + vv.Name

	if vv.IsArray {
		esz := 4
		if vv.Type.Base == "u8" {
			esz = 1
		}
		g.data.WriteString(fmt.Sprintf("%s: .space %d\n", label, vv.ArrayLen*esz))
		return
	}
	if vv.Type.Base == "string" {
		if vv.Initializer != "" {
			sl := fmt.Sprintf("str_%d", g.scnt)
			g.scnt++
			str := strings.Trim(vv.Initializer, "\"")
			g.data.WriteString(fmt.Sprintf("%s: .asciz \"%s\"\n", sl, str))
			g.data.WriteString(fmt.Sprintf("%s: .quad %s\n", label, sl))
		} else {
			g.data.WriteString(fmt.Sprintf("%s: .quad 0\n", label))
		}
		return
	}
	init := vv.Initializer
	if init == "" {
		init = "0"
	}
	g.data.WriteString(fmt.Sprintf("%s: .quad %s\n", label, init))
}

func (g *arm64CodeGen) genSection(s *SectionNode) error {
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

func (g *arm64CodeGen) genAutoFree() {
	for _, name := range g.sym.PendingAutoFree() {
		if g.sym.StorageOf(name) == StorageHeap {
			g.code.WriteString(fmt.Sprintf("; auto-free (bl free): %s\n", name))
			if err := g.load(0, name); err == nil {
				g.code.WriteString("    bl free\n")
			}
		} else {
			g.code.WriteString(fmt.Sprintf("; auto-free: %s\n", name))
		}
		g.sym.MarkFreed(name)
	}
}

func (g *arm64CodeGen) genStmt(n Node) error {
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
		g.code.WriteString(fmt.Sprintf("    b %s\n", g.loopEnds[len(g.loopEnds)-1]))
		return nil
	case *ContinueNode:
		if len(g.loopStarts) == 0 {
			return codegenErrf(0, "'continue' outside of a loop")
		}
		g.code.WriteString(fmt.Sprintf("    b %s\n", g.loopStarts[len(g.loopStarts)-1]))
		return nil
	case *ReturnNode:
		if st.Value != "" {
			if err := g.expr(0, st.Value); err != nil {
				return err
			}
		}
		if g.retLabel == "" {
			return codegenErrf(0, "'return' outside of a function")
		}
		g.code.WriteString(fmt.Sprintf("    b %s\n", g.retLabel))
		return nil
	case *FreeNode:
		if g.sym.IsConst(st.Var) {
			return codegenErrf(0, "cannot free const '%s'", st.Var)
		}
		if g.sym.IsFreed(st.Var) {
			return nil
		}
		if err := g.load(0, st.Var); err != nil {
			return err
		}
		g.code.WriteString("    bl free\n")
		g.sym.MarkFreed(st.Var)
		return nil
	case *AllocNode:
		if err := g.expr(0, st.Size); err != nil {
			return err
		}
		g.code.WriteString("    bl malloc\n")
		if st.Dest != "" {
			if err := g.store(0, st.Dest); err != nil {
				return err
			}
			g.sym.SetStorage(st.Dest, StorageHeap)
		}
		return nil
	case *DeallocNode:
		return g.genStmt(&FreeNode{Var: st.Ptr})
	case *FuncCall:
		g.code.WriteString(fmt.Sprintf("    bl %s\n", strings.TrimPrefix(st.Name, "#")))
		return nil
	case *DriverCall:
		target := strings.TrimPrefix(st.BuiltinName, "#")
		if st.UseBuiltin {
			g.code.WriteString(fmt.Sprintf("    bl __defacto_drv_%s\n", target))
		} else {
			g.code.WriteString(fmt.Sprintf("    bl %s\n", target))
		}
		if st.DriverTarget != "" {
			if err := g.store(0, st.DriverTarget); err != nil {
				return err
			}
		}
		return nil
	case *ColorNode, *ReadKeyNode, *ReadCharNode, *PutCharNode, *ClearNode, *RebootNode:
		return nil // bare-metal-only device I/O; AArch64 targets are always hosted (spec.md §2)
	default:
		return nil
	}
}

func (g *arm64CodeGen) genAssign(a *Assign) error {
	switch {
	case a.IsDeref:
		if err := g.expr(1, a.Value); err != nil {
			return err
		}
		if err := g.load(0, a.Target); err != nil {
			return err
		}
		g.code.WriteString("    str x1, [x0]\n")
		return nil
	case a.IsStruct:
		name, field, _ := splitLeaf(a.Target)
		if g.sym.IsConst(name) {
			return codegenErrf(0, "cannot assign to const '%s'", name)
		}
		_, typ, _, ok := g.sym.Resolve(name)
		if !ok {
			return codegenErrf(0, "undefined identifier '%s'", name)
		}
		off, ok := g.sym.FieldOffset(typ.Base, field)
		if !ok {
			return codegenErrf(0, "unknown field '%s' on struct '%s'", field, typ.Base)
		}
		if err := g.expr(1, a.Value); err != nil {
			return err
		}
		if err := g.loadLeaf(0, "&"+name); err != nil {
			return err
		}
		g.code.WriteString(fmt.Sprintf("    str x1, [x0, #%d]\n", off))
		return nil
	case a.IsArray:
		if g.sym.IsConst(a.Target) {
			return codegenErrf(0, "cannot assign to const '%s'", a.Target)
		}
		if err := g.expr(1, a.Value); err != nil {
			return err
		}
		if err := g.loadLeaf(0, "&"+a.Target); err != nil {
			return err
		}
		if isNumLiteral(a.Index) {
			n, _ := strconv.Atoi(a.Index)
			g.code.WriteString(fmt.Sprintf("    str x1, [x0, #%d]\n", n*4))
			return nil
		}
		if err := g.expr(2, a.Index); err != nil {
			return err
		}
		g.code.WriteString("    add x0, x0, x2, lsl #2\n    str x1, [x0]\n")
		return nil
	default:
		if g.sym.IsConst(a.Target) {
			return codegenErrf(0, "cannot assign to const '%s'", a.Target)
		}
		if err := g.expr(0, a.Value); err != nil {
			return err
		}
		return g.store(0, a.Target)
	}
}

func (g *arm64CodeGen) genDisplay(d *DisplayNode) error {
	_, typ, _, ok := g.sym.Resolve(d.Var)
	if ok && (typ.Base == "i32" || typ.Base == "i64") {
		return g.genPrintNum(&PrintNumNode{Var: d.Var})
	}
	label, _, _, ok := g.sym.Resolve(d.Var)
	if !ok {
		return codegenErrf(0, "undefined identifier '%s'", d.Var)
	}
	g.code.WriteString(fmt.Sprintf("    adrp x1, %s@PAGE\n", label))
	g.code.WriteString(fmt.Sprintf("    ldr x1, [x1, %s@PAGEOFF]\n", label))
	g.emitStrlenWrite()
	return nil
}

// emitStrlenWrite computes strlen(x1) into x2, then issues write(1, x1, x2),
// matching arm64_codegen.h::gen_display's fixed-length write but generalised
// to the string's actual length (that file hardcodes a 100-byte write).
func (g *arm64CodeGen) emitStrlenWrite() {
	loop := g.lbl("strlen")
	done := g.lbl("strlen_done")
	g.code.WriteString("    mov x9, x1\n    mov x2, #0\n")
	g.code.WriteString(loop + ":\n")
	g.code.WriteString("    ldrb w10, [x9, x2]\n")
	g.code.WriteString("    cmp w10, #0\n")
	g.code.WriteString(fmt.Sprintf("    b.eq %s\n", done))
	g.code.WriteString("    add x2, x2, #1\n")
	g.code.WriteString(fmt.Sprintf("    b %s\n", loop))
	g.code.WriteString(done + ":\n")
	g.code.WriteString("    mov x0, #1\n")
	g.emitWriteSyscall()
}

func (g *arm64CodeGen) emitWriteSyscall() {
	if g.isMacOS() {
		g.code.WriteString("    mov x16, #4\n    svc #0x80\n")
	} else {
		g.code.WriteString("    mov x8, #64\n    svc #0\n")
	}
}

// genPrintNum: divide-by-10 digit extraction into a stack buffer, then
// write(2) (AArch64 targets are always hosted — spec.md §2).
func (g *arm64CodeGen) genPrintNum(p *PrintNumNode) error {
	if err := g.load(0, p.Var); err != nil {
		return err
	}
	g.code.WriteString("    sub sp, sp, #16\n")
	g.code.WriteString("    mov x9, sp\n    add x9, x9, #15\n")
	g.code.WriteString("    mov w10, #10\n    strb w10, [x9]\n    sub x9, x9, #1\n")
	g.code.WriteString("    mov x2, #1\n")
	loop := g.lbl("pn_loop")
	done := g.lbl("pn_done")
	g.code.WriteString(loop + ":\n")
	g.code.WriteString("    cmp x0, #0\n")
	g.code.WriteString(fmt.Sprintf("    ble %s\n", done))
	g.code.WriteString("    mov x11, #10\n    sdiv x12, x0, x11\n")
	g.code.WriteString("    msub x13, x12, x11, x0\n") // remainder = x0 - (x0/10)*10
	g.code.WriteString("    add x13, x13, #'0'\n")
	g.code.WriteString("    strb w13, [x9]\n    sub x9, x9, #1\n")
	g.code.WriteString("    mov x0, x12\n")
	g.code.WriteString("    add x2, x2, #1\n")
	g.code.WriteString(fmt.Sprintf("    b %s\n", loop))
	g.code.WriteString(done + ":\n")
	g.code.WriteString("    add x9, x9, #1\n")
	g.code.WriteString("    mov x1, x9\n")
	g.code.WriteString("    mov x0, #1\n")
	g.emitWriteSyscall()
	g.code.WriteString("    add sp, sp, #16\n")
	return nil
}

func (g *arm64CodeGen) genIf(n *IfNode) error {
	skip := g.lbl("if_skip")
	end := g.lbl("if_end")
	if err := g.emitCompare(n.Left, n.Right); err != nil {
		return err
	}
	g.code.WriteString(fmt.Sprintf("    %s %s\n", arm64NegatedJump[n.Op], skip))
	for _, s := range n.Then {
		if err := g.genStmt(s); err != nil {
			return err
		}
	}
	if len(n.Else) > 0 {
		g.code.WriteString(fmt.Sprintf("    b %s\n", end))
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

func (g *arm64CodeGen) emitCompare(left, right string) error {
	if err := g.expr(0, left); err != nil {
		return err
	}
	if isNumLiteral(right) {
		g.code.WriteString(fmt.Sprintf("    cmp x0, #%s\n", right))
		return nil
	}
	if err := g.expr(1, right); err != nil {
		return err
	}
	g.code.WriteString("    cmp x0, x1\n")
	return nil
}

func (g *arm64CodeGen) genLoop(n *LoopNode) error {
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
	g.code.WriteString(fmt.Sprintf("    b %s\n", start))
	g.code.WriteString(end + ":\n")
	g.loopStarts = g.loopStarts[:len(g.loopStarts)-1]
	g.loopEnds = g.loopEnds[:len(g.loopEnds)-1]
	return nil
}

func (g *arm64CodeGen) genWhile(n *WhileNode) error {
	start := g.lbl("while_start")
	end := g.lbl("while_end")
	g.loopStarts = append(g.loopStarts, start)
	g.loopEnds = append(g.loopEnds, end)
	g.code.WriteString(start + ":\n")
	if err := g.emitCompare(n.Left, n.Right); err != nil {
		return err
	}
	g.code.WriteString(fmt.Sprintf("    %s %s\n", arm64NegatedJump[n.Op], end))
	for _, s := range n.Body {
		if err := g.genStmt(s); err != nil {
			return err
		}
	}
	g.code.WriteString(fmt.Sprintf("    b %s\n", start))
	g.code.WriteString(end + ":\n")
	g.loopStarts = g.loopStarts[:len(g.loopStarts)-1]
	g.loopEnds = g.loopEnds[:len(g.loopEnds)-1]
	return nil
}

func (g *arm64CodeGen) genFor(n *ForNode) error {
	if err := g.expr(0, n.InitValue); err != nil {
		return err
	}
	if err := g.store(0, n.InitVar); err != nil {
		return err
	}
	start := g.lbl("for_start")
	end := g.lbl("for_end")
	g.loopStarts = append(g.loopStarts, start)
	g.loopEnds = append(g.loopEnds, end)
	g.code.WriteString(start + ":\n")
	if err := g.emitCompare(n.InitVar, n.CondRight); err != nil {
		return err
	}
	g.code.WriteString(fmt.Sprintf("    b.ge %s\n", end))
	for _, s := range n.Body {
		if err := g.genStmt(s); err != nil {
			return err
		}
	}
	if err := g.load(0, n.InitVar); err != nil {
		return err
	}
	g.code.WriteString("    add x0, x0, #1\n")
	if err := g.store(0, n.InitVar); err != nil {
		return err
	}
	g.code.WriteString(fmt.Sprintf("    b %s\n", start))
	g.code.WriteString(end + ":\n")
	g.loopStarts = g.loopStarts[:len(g.loopStarts)-1]
	g.loopEnds = g.loopEnds[:len(g.loopEnds)-1]
	return nil
}

func (g *arm64CodeGen) genSwitch(n *SwitchNode) error {
	end := g.lbl("switch_end")
	if err := g.expr(0, n.Value); err != nil {
		return err
	}
	caseLabels := make([]string, len(n.Cases))
	for i, c := range n.Cases {
		caseLabels[i] = g.lbl("case")
		g.code.WriteString(fmt.Sprintf("    cmp x0, #%s\n", c.CaseVal))
		g.code.WriteString(fmt.Sprintf("    b.eq %s\n", caseLabels[i]))
	}
	defaultLbl := end
	if len(n.DefaultBody) > 0 {
		defaultLbl = g.lbl("default")
	}
	g.code.WriteString(fmt.Sprintf("    b %s\n", defaultLbl))
	for i, c := range n.Cases {
		g.code.WriteString(caseLabels[i] + ":\n")
		for _, s := range c.Body {
			if err := g.genStmt(s); err != nil {
				return err
			}
		}
		g.code.WriteString(fmt.Sprintf("    b %s\n", end))
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

func (g *arm64CodeGen) genFunc(f *FuncDecl) error {
	name := strings.TrimPrefix(f.Name, "#")
	g.code.WriteString(fmt.Sprintf("\n%s:\n", name))
	g.code.WriteString("    stp x29, x30, [sp, #-16]!\n    mov x29, sp\n")

	prevRet := g.retLabel
	g.retLabel = g.lbl("func_ret")
	if err := g.genSection(f.Body); err != nil {
		g.retLabel = prevRet
		return err
	}
	g.code.WriteString(g.retLabel + ":\n")
	g.retLabel = prevRet

	g.code.WriteString("    ldp x29, x30, [sp], #16\n    ret\n")
	return nil
}

// Emit writes a complete GAS/Apple-dialect assembly file for prog.
func (g *arm64CodeGen) Emit(prog *Program) (string, error) {
	g.sym = NewSymbolTable()

	var out strings.Builder
	if g.isMacOS() {
		out.WriteString(".section __TEXT,__text\n")
	} else {
		out.WriteString(".text\n")
	}
	out.WriteString(".global _start\n_start:\n")
	out.WriteString("    stp x29, x30, [sp, #-16]!\n    mov x29, sp\n")

	for _, s := range prog.Structs {
		g.genStruct(s)
	}
	for _, sec := range prog.MainSecs {
		if err := g.genSection(sec); err != nil {
			return "", err
		}
	}

	g.code.WriteString("    mov x0, #0\n")
	if g.isMacOS() {
		g.code.WriteString("    mov x16, #1\n    svc #0x80\n")
	} else {
		g.code.WriteString("    mov x8, #93\n    svc #0\n")
	}

	for _, f := range prog.Functions {
		if err := g.genFunc(f); err != nil {
			return "", err
		}
	}

	out.WriteString(g.code.String())
	if g.isMacOS() {
		out.WriteString("\n.section __DATA,__data\n")
	} else {
		out.WriteString("\n.data\n")
	}
	out.WriteString(g.data.String())
	return out.String(), nil
}
