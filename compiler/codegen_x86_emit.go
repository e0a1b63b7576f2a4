package compiler

import (
	"fmt"
	"strings"
)

// genDriverSection registers the driver (exempt from auto-free) and emits a
// named stub that jumps to a device initialiser in bare-metal mode, or is a
// bare ret in terminal mode, per spec.md §4.3.
func (g *x86CodeGen) genDriverSection(d *DriverSectionNode) error {
	if d.DriverName != "" {
		g.sym.DeclareDriverConstant(d.DriverName)
	}
	for _, decl := range d.Decls {
		g.genVar(decl)
	}
	for _, s := range d.Stmts {
		if err := g.genStmt(s); err != nil {
			return err
		}
	}
	g.code.WriteString(fmt.Sprintf("\n__defacto_drv_%s:\n", d.DriverType))
	if g.bareMetal {
		switch d.DriverType {
		case "keyboard":
			g.code.WriteString("    call _init_keyboard\n")
		case "mouse":
			g.code.WriteString("    call _init_mouse\n")
		case "volume":
			g.code.WriteString("    call _init_speaker\n")
		}
	}
	g.code.WriteString("    ret\n")
	return nil
}

// Emit writes a complete assembly file for prog: prelude, libc externs
// (terminal targets only — including macOS, fixing the original's gap per
// SPEC_FULL.md §4.6), entry point, main-section body, exit sequence,
// function bodies, driver stubs, and the data section. No partial success:
// an error here means no output was produced (spec.md §4.3 "Failure model").
func (g *x86CodeGen) Emit(prog *Program) (string, error) {
	g.sym = NewSymbolTable()

	var out strings.Builder

	// Prelude.
	if g.bareMetal {
		out.WriteString("[BITS 32]\n[ORG 0x1000]\n\n")
	} else if g.macosTerminal {
		out.WriteString("[BITS 64]\nDEFAULT REL\n\n")
	} else if g.linux64 {
		out.WriteString("[BITS 64]\n\n")
	} else {
		out.WriteString("[BITS 32]\n\n")
	}

	if !g.bareMetal {
		out.WriteString("extern malloc\nextern free\nextern exit\n\n")
	}

	out.WriteString("global _start\n_start:\n")

	for _, s := range prog.Structs {
		g.genStruct(s)
	}
	for _, sec := range prog.MainSecs {
		if err := g.genSection(sec); err != nil {
			return "", err
		}
	}

	// Exit sequence.
	if g.bareMetal {
		hang := g.lbl("hang")
		g.code.WriteString(hang + ":\n    hlt\n    jmp " + hang + "\n")
	} else {
		argReg, a0, _, _ := g.sysArgRegs()
		g.code.WriteString(fmt.Sprintf("    mov %s, 0\n", a0))
		g.code.WriteString(fmt.Sprintf("    mov %s, %s\n", argReg, g.exitSyscallNum()))
		g.code.WriteString(fmt.Sprintf("    %s\n", g.syscallInstr()))
	}

	for _, f := range prog.Functions {
		if err := g.genFunc(f); err != nil {
			return "", err
		}
	}
	for _, d := range prog.Drivers {
		if err := g.genDriverSection(d); err != nil {
			return "", err
		}
	}

	out.WriteString(g.code.String())

	out.WriteString("\nsection .data\n")
	if g.bareMetal {
		out.WriteString("__defacto_cursor: dd 0\n__defacto_attr: db 15\n")
	}
	out.WriteString(g.data.String())

	return out.String(), nil
}
