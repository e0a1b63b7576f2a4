package compiler

// baremetalBackend targets a flat 32-bit binary that boots directly on x86
// hardware: [ORG 0x1000][BITS 32], direct VGA/PS2/8042 I/O, an infinite hlt
// loop instead of an exit syscall (spec.md §4.3).
type baremetalBackend struct{}

func init() {
	RegisterBackend(TargetBareMetal, func() Backend { return &baremetalBackend{} })
}

func (*baremetalBackend) Name() string { return string(TargetBareMetal) }

func (*baremetalBackend) Emit(prog *Program) (string, error) {
	g := &x86CodeGen{bareMetal: true}
	return g.Emit(prog)
}
