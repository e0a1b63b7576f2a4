package compiler

import "fmt"

// syscallInstr returns this target's syscall instruction, and
// writeSyscallNum/exitSyscallNum the numbers of its write(2)/exit(2)
// syscalls, per spec.md §4.3's per-target numbering: int 0x80 for Linux-32,
// syscall for Linux-64 and macOS (with the 0x2000000|N macOS convention).
func (g *x86CodeGen) syscallInstr() string {
	if g.linux64 || g.macosTerminal {
		return "syscall"
	}
	return "int 0x80"
}

func (g *x86CodeGen) writeSyscallNum() string {
	switch {
	case g.macosTerminal:
		return "0x2000004"
	case g.linux64:
		return "1"
	default:
		return "4"
	}
}

func (g *x86CodeGen) exitSyscallNum() string {
	switch {
	case g.macosTerminal:
		return "0x2000001"
	case g.linux64:
		return "60"
	default:
		return "1"
	}
}

// sysArgRegs returns the argument registers for a 3-argument syscall
// (fd, buf, len for write) under this target's convention.
func (g *x86CodeGen) sysArgRegs() (argReg, a0, a1, a2 string) {
	if g.linux64 || g.macosTerminal {
		return "rax", "rdi", "rsi", "rdx"
	}
	return "eax", "ebx", "ecx", "edx"
}

// genDisplay writes msg to the console: numeric types delegate to printnum
// (spec.md §4.3), else bare-metal does a direct VGA byte-write loop and
// terminal targets strlen-then-write(2).
func (g *x86CodeGen) genDisplay(d *DisplayNode) error {
	_, typ, _, ok := g.sym.Resolve(d.Var)
	if ok && (typ.Base == "i32" || typ.Base == "i64") {
		return g.genPrintNum(&PrintNumNode{Var: d.Var})
	}
	label, _, _, ok := g.sym.Resolve(d.Var)
	if !ok {
		return codegenErrf(0, "undefined identifier '%s'", d.Var)
	}
	if g.bareMetal {
		g.genVGAWriteString(label)
		return nil
	}
	return g.genTerminalWriteString(label)
}

// genVGAWriteString emits a loop writing the NUL-terminated string at label
// directly to VGA text memory (0xB8000), maintaining a cursor and attribute
// byte, per spec.md §4.3's bare-metal device-I/O description.
func (g *x86CodeGen) genVGAWriteString(label string) {
	loop := g.lbl("vga_loop")
	done := g.lbl("vga_done")
	g.code.WriteString(fmt.Sprintf("    mov esi, [%s]\n", label))
	g.code.WriteString(loop + ":\n")
	g.code.WriteString("    mov al, [esi]\n")
	g.code.WriteString("    cmp al, 0\n")
	g.code.WriteString(fmt.Sprintf("    je %s\n", done))
	g.code.WriteString("    mov edi, [__defacto_cursor]\n")
	g.code.WriteString("    mov byte [0xB8000+edi*2], al\n")
	g.code.WriteString("    mov bl, [__defacto_attr]\n")
	g.code.WriteString("    mov byte [0xB8000+edi*2+1], bl\n")
	g.code.WriteString("    inc edi\n")
	g.code.WriteString("    mov [__defacto_cursor], edi\n")
	g.code.WriteString("    inc esi\n")
	g.code.WriteString(fmt.Sprintf("    jmp %s\n", loop))
	g.code.WriteString(done + ":\n")
}

func (g *x86CodeGen) genTerminalWriteString(label string) error {
	_, a0, a1, a2 := g.sysArgRegs()
	strLen := g.lbl("strlen")
	strDone := g.lbl("strlen_done")
	ptrReg := "esi"
	cntReg := "ecx"
	if g.is64() {
		ptrReg, cntReg = "rsi", "rcx"
	}
	g.code.WriteString(fmt.Sprintf("    mov %s, [%s]\n", ptrReg, label))
	g.code.WriteString(fmt.Sprintf("    xor %s, %s\n", cntReg, cntReg))
	g.code.WriteString(strLen + ":\n")
	g.code.WriteString(fmt.Sprintf("    cmp byte [%s+%s], 0\n", ptrReg, cntReg))
	g.code.WriteString(fmt.Sprintf("    je %s\n", strDone))
	g.code.WriteString(fmt.Sprintf("    inc %s\n", cntReg))
	g.code.WriteString(fmt.Sprintf("    jmp %s\n", strLen))
	g.code.WriteString(strDone + ":\n")
	g.emitWriteSyscall(a0, a1, a2, ptrReg, cntReg)
	return nil
}

func (g *x86CodeGen) emitWriteSyscall(a0, a1, a2, bufReg, lenReg string) {
	argReg, _, _, _ := g.sysArgRegs()
	// bufReg/lenReg can themselves be argument registers (ecx, rdi), so
	// they are moved through the stack rather than register to register.
	g.code.WriteString(fmt.Sprintf("    push %s\n", bufReg))
	g.code.WriteString(fmt.Sprintf("    push %s\n", lenReg))
	g.code.WriteString(fmt.Sprintf("    pop %s\n", a2))
	g.code.WriteString(fmt.Sprintf("    pop %s\n", a1))
	g.code.WriteString(fmt.Sprintf("    mov %s, 1\n", a0)) // stdout fd
	g.code.WriteString(fmt.Sprintf("    mov %s, %s\n", argReg, g.writeSyscallNum()))
	g.code.WriteString(fmt.Sprintf("    %s\n", g.syscallInstr()))
}

// genPrintNum lowers printnum{v}: repeated divide-by-10 digit extraction,
// emitted in reverse into a small stack buffer, then either written
// directly to VGA memory (bare-metal) or via write(2) (terminal), matching
// original_source/compiler/src/codegen.h::gen_printnum.
func (g *x86CodeGen) genPrintNum(p *PrintNumNode) error {
	label, _, _, ok := g.sym.Resolve(p.Var)
	if !ok {
		return codegenErrf(0, "undefined identifier '%s'", p.Var)
	}
	acc := g.accReg()
	buf := "edi"
	if g.is64() {
		buf = "rdi"
	}
	digitLoop := g.lbl("pn_loop")
	digitDone := g.lbl("pn_done")

	g.code.WriteString(fmt.Sprintf("    sub %s, 16\n", g.stackPtr()))
	g.code.WriteString(fmt.Sprintf("    mov %s, %s\n", buf, g.stackPtr()))
	g.code.WriteString(fmt.Sprintf("    add %s, 15\n", buf)) // fill from the end
	g.code.WriteString(fmt.Sprintf("    mov byte [%s], 10\n", buf)) // trailing newline
	g.code.WriteString(fmt.Sprintf("    dec %s\n", buf))
	g.code.WriteString(fmt.Sprintf("    mov %s, [%s]\n", acc, label))
	g.code.WriteString(fmt.Sprintf("    mov %s, 1\n", g.countReg()))

	g.code.WriteString(digitLoop + ":\n")
	g.code.WriteString(fmt.Sprintf("    cmp %s, 0\n", acc))
	g.code.WriteString(fmt.Sprintf("    jle %s\n", digitDone))
	g.code.WriteString(fmt.Sprintf("    xor %s, %s\n", g.dxReg(), g.dxReg()))
	g.code.WriteString(fmt.Sprintf("    mov %s, 10\n", g.scratchReg(acc)))
	g.code.WriteString(fmt.Sprintf("    idiv %s\n", g.scratchReg(acc)))
	g.code.WriteString(fmt.Sprintf("    add %s, '0'\n", g.dxReg()))
	g.code.WriteString(fmt.Sprintf("    mov byte [%s], %s\n", buf, g.dxByteReg()))
	g.code.WriteString(fmt.Sprintf("    dec %s\n", buf))
	g.code.WriteString(fmt.Sprintf("    inc %s\n", g.countReg()))
	g.code.WriteString(fmt.Sprintf("    jmp %s\n", digitLoop))
	g.code.WriteString(digitDone + ":\n")
	g.code.WriteString(fmt.Sprintf("    inc %s\n", buf))

	if g.bareMetal {
		g.genVGAWriteBuffer(buf)
	} else {
		_, a0, a1, a2 := g.sysArgRegs()
		g.emitWriteSyscall(a0, a1, a2, buf, g.countReg())
	}
	g.code.WriteString(fmt.Sprintf("    add %s, 16\n", g.stackPtr()))
	return nil
}

func (g *x86CodeGen) countReg() string {
	if g.is64() {
		return "rcx"
	}
	return "ecx"
}

func (g *x86CodeGen) dxReg() string {
	if g.is64() {
		return "rdx"
	}
	return "edx"
}

func (g *x86CodeGen) dxByteReg() string { return "dl" }

// genVGAWriteBuffer writes countReg bytes starting at ptrReg directly to VGA
// text memory, the bare-metal counterpart of emitWriteSyscall.
func (g *x86CodeGen) genVGAWriteBuffer(ptrReg string) {
	loop := g.lbl("vgab_loop")
	done := g.lbl("vgab_done")
	g.code.WriteString(loop + ":\n")
	g.code.WriteString(fmt.Sprintf("    cmp %s, 0\n", g.countReg()))
	g.code.WriteString(fmt.Sprintf("    je %s\n", done))
	g.code.WriteString(fmt.Sprintf("    mov al, [%s]\n", ptrReg))
	g.code.WriteString("    mov edx, [__defacto_cursor]\n")
	g.code.WriteString("    mov byte [0xB8000+edx*2], al\n")
	g.code.WriteString("    mov bl, [__defacto_attr]\n")
	g.code.WriteString("    mov byte [0xB8000+edx*2+1], bl\n")
	g.code.WriteString("    inc edx\n")
	g.code.WriteString("    mov [__defacto_cursor], edx\n")
	g.code.WriteString(fmt.Sprintf("    inc %s\n", ptrReg))
	g.code.WriteString(fmt.Sprintf("    dec %s\n", g.countReg()))
	g.code.WriteString(fmt.Sprintf("    jmp %s\n", loop))
	g.code.WriteString(done + ":\n")
}

// genColor sets the VGA attribute byte (bare-metal) or is a no-op stub
// (terminal — there is no VGA attribute concept over a tty).
func (g *x86CodeGen) genColor(c *ColorNode) error {
	if !g.bareMetal {
		return nil
	}
	if err := g.expr("eax", c.Value); err != nil {
		return err
	}
	g.code.WriteString("    mov [__defacto_attr], al\n")
	return nil
}

// genReadKey polls the PS/2 keyboard controller (bare-metal) or stubs to 0
// in terminal mode, per spec.md §4.3's device-I/O description.
func (g *x86CodeGen) genReadKey(r *ReadKeyNode) error {
	if !g.bareMetal {
		if r.Dest != "" {
			g.code.WriteString(fmt.Sprintf("    mov dword [var_%s], 0\n", r.Dest))
		}
		return nil
	}
	wait := g.lbl("kbd_wait")
	g.code.WriteString(wait + ":\n")
	g.code.WriteString("    in al, 0x64\n")
	g.code.WriteString("    test al, 1\n")
	g.code.WriteString(fmt.Sprintf("    jz %s\n", wait))
	g.code.WriteString("    in al, 0x60\n")
	g.code.WriteString("    movzx eax, al\n")
	g.code.WriteString("    call __defacto_scancode_to_ascii\n")
	if r.Dest != "" {
		label, _, _, ok := g.sym.Resolve(r.Dest)
		if ok {
			g.code.WriteString(fmt.Sprintf("    mov [%s], eax\n", label))
		}
	}
	return nil
}

// genReadChar has a real syscall path in terminal mode (read(2) on stdin)
// and polls the keyboard in bare-metal mode.
func (g *x86CodeGen) genReadChar(r *ReadCharNode) error {
	if g.bareMetal {
		return g.genReadKey(&ReadKeyNode{Dest: r.Var})
	}
	label, _, _, ok := g.sym.Resolve(r.Var)
	if !ok {
		return codegenErrf(0, "undefined identifier '%s'", r.Var)
	}
	argReg, a0, a1, a2 := g.sysArgRegs()
	readNum := "3"
	if g.linux64 {
		readNum = "0"
	} else if g.macosTerminal {
		readNum = "0x2000003"
	}
	g.code.WriteString(fmt.Sprintf("    sub %s, 8\n", g.stackPtr()))
	g.code.WriteString(fmt.Sprintf("    mov %s, 0\n", a0)) // stdin fd
	g.code.WriteString(fmt.Sprintf("    mov %s, %s\n", a1, g.stackPtr()))
	g.code.WriteString(fmt.Sprintf("    mov %s, 1\n", a2))
	g.code.WriteString(fmt.Sprintf("    mov %s, %s\n", argReg, readNum))
	g.code.WriteString(fmt.Sprintf("    %s\n", g.syscallInstr()))
	g.code.WriteString(fmt.Sprintf("    movzx eax, byte [%s]\n", g.stackPtr()))
	g.code.WriteString(fmt.Sprintf("    add %s, 8\n", g.stackPtr()))
	g.code.WriteString(fmt.Sprintf("    mov [%s], eax\n", label))
	return nil
}

func (g *x86CodeGen) genPutChar(p *PutCharNode) error {
	if g.bareMetal {
		if err := g.expr("eax", p.Value); err != nil {
			return err
		}
		g.code.WriteString("    mov edi, [__defacto_cursor]\n")
		g.code.WriteString("    mov byte [0xB8000+edi*2], al\n")
		g.code.WriteString("    mov bl, [__defacto_attr]\n")
		g.code.WriteString("    mov byte [0xB8000+edi*2+1], bl\n")
		g.code.WriteString("    inc edi\n")
		g.code.WriteString("    mov [__defacto_cursor], edi\n")
		return nil
	}
	sp := g.stackPtr()
	if err := g.expr(g.accReg(), p.Value); err != nil {
		return err
	}
	g.code.WriteString(fmt.Sprintf("    push %s\n", g.accReg()))
	_, a0, a1, a2 := g.sysArgRegs()
	g.emitWriteSyscall(a0, a1, a2, sp, "1")
	g.code.WriteString(fmt.Sprintf("    add %s, %d\n", sp, g.ptrSize()))
	return nil
}

func (g *x86CodeGen) genClear() {
	if !g.bareMetal {
		return
	}
	g.code.WriteString("    mov ecx, 80*25\n")
	g.code.WriteString("    xor edi, edi\n")
	loop := g.lbl("clear_loop")
	g.code.WriteString(loop + ":\n")
	g.code.WriteString("    mov byte [0xB8000+edi*2], 0\n")
	g.code.WriteString("    mov byte [0xB8000+edi*2+1], 0\n")
	g.code.WriteString("    inc edi\n")
	g.code.WriteString("    loop " + loop + "\n")
	g.code.WriteString("    mov dword [__defacto_cursor], 0\n")
}

// genReboot issues the 8042-controller reboot sequence (bare-metal only):
// write 0xFE to port 0x64, then halt, per spec.md §4.3.
func (g *x86CodeGen) genReboot() {
	if !g.bareMetal {
		return
	}
	g.code.WriteString("    mov al, 0xFE\n")
	g.code.WriteString("    out 0x64, al\n")
	g.code.WriteString("    hlt\n")
}
