// Command defacto compiles a Defacto source file to assembly and, unless
// -S is given, drives an external assembler and linker to produce a final
// executable or flat binary (spec.md §6; original_source/compiler/main.cpp).
package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vivooifo-droid/Defacto/compiler"
)

var (
	outputPath   string
	emitAsmOnly  bool
	kernelTarget bool
	terminal32   bool
	terminal64   bool
	terminalMac  bool
	terminalARM  bool
	verbose      bool
	importDirs   []string
	configPath   string
)

var importRe = regexp.MustCompile(`Import\{\s*([A-Za-z0-9_./-]+)\s*\}`)

var command = &cobra.Command{
	Use:  "defacto <file>",
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := run(args[0]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	},
}

func init() {
	command.Flags().StringVarP(&outputPath, "output", "o", "", "output file path")
	command.Flags().BoolVarP(&emitAsmOnly, "asm-only", "S", false, "emit assembly only, skip assembler/linker")
	command.Flags().BoolVar(&kernelTarget, "kernel", false, "bare-metal x86-32 target")
	command.Flags().BoolVar(&terminal32, "terminal", false, "32-bit Linux terminal target")
	command.Flags().BoolVar(&terminal64, "terminal64", false, "64-bit Linux terminal target")
	command.Flags().BoolVar(&terminalMac, "terminal-macos", false, "64-bit macOS terminal target")
	command.Flags().BoolVar(&terminalARM, "terminal-arm64", false, "AArch64 terminal target (host OS auto-detected)")
	command.Flags().BoolVarP(&verbose, "verbose", "v", false, "print the compilation trace")
	command.Flags().StringSliceVarP(&importDirs, "include-path", "I", nil, "search directory for Import{lib} resolution")
	command.Flags().StringVar(&configPath, "config", "defacto.yaml", "project config file")
}

func main() {
	if err := command.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(srcPath string) error {
	cfg, err := compiler.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading %s: %w", configPath, err)
	}

	src, err := os.ReadFile(srcPath)
	if err != nil {
		return err
	}

	spliced, err := spliceImports(string(src), append(importDirs, cfg.ImportPaths...))
	if err != nil {
		return err
	}

	target := selectTarget(cfg)
	var backend compiler.Backend
	if target == compiler.TargetARM64 && runtime.GOOS == "darwin" {
		backend = compiler.NewARM64Backend(compiler.ARM64MacOS)
	} else {
		backend, err = compiler.GetBackend(target)
		if err != nil {
			return err
		}
	}

	diags := compiler.NewDiagnostics()
	lex := compiler.NewLexer(spliced, diags)
	tokens := lex.Tokenize()
	p := compiler.NewParser(tokens, diags)
	prog := p.ParseProgram(false)

	if diags.HasFatal() {
		diags.Print(os.Stderr)
		return fmt.Errorf("compilation failed: %d diagnostic(s)", len(diags.Items()))
	}
	if verbose {
		diags.Print(os.Stderr)
	}

	asm, err := backend.Emit(prog)
	if err != nil {
		return fmt.Errorf("code generation: %w", err)
	}

	out := outputPath
	if out == "" {
		out = strings.TrimSuffix(filepath.Base(srcPath), filepath.Ext(srcPath))
	}
	asmPath := out + asmSuffix(target)

	if err := os.WriteFile(asmPath, []byte(asm), 0o644); err != nil {
		return err
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "wrote %s\n", asmPath)
	}
	if emitAsmOnly {
		return nil
	}
	return assembleAndLink(target, asmPath, out)
}

// selectTarget applies the explicit target flags, falling back to the
// config file's default and finally the host triple, mirroring
// original_source/compiler/main.cpp's argv-then-auto-detect precedence.
func selectTarget(cfg *compiler.Config) compiler.Target {
	switch {
	case kernelTarget:
		return compiler.TargetBareMetal
	case terminal32:
		return compiler.TargetLinux386
	case terminal64:
		return compiler.TargetLinuxAMD64
	case terminalMac:
		return compiler.TargetMacOSAMD64
	case terminalARM:
		return compiler.TargetARM64
	}
	if name := cfg.ResolveTarget(""); name != "" {
		return compiler.Target(name)
	}
	if runtime.GOOS == "darwin" {
		if runtime.GOARCH == "arm64" {
			return compiler.TargetARM64
		}
		return compiler.TargetMacOSAMD64
	}
	if runtime.GOARCH == "arm64" {
		return compiler.TargetARM64
	}
	return compiler.TargetLinuxAMD64
}

// spliceImports resolves every `Import{lib}` directive by concatenating the
// named library source after the file's leading directive lines, the same
// placement original_source/compiler/main.cpp uses: everything up through
// the last directive line before the first non-directive line stays first,
// library text follows, then the remainder of the file. Import{} lines
// themselves are dropped from the output, so the parser never sees them and
// the parsed Program's Imports list stays empty.
func spliceImports(src string, dirs []string) (string, error) {
	lines := strings.Split(src, "\n")
	var directives, body []string
	seenBody := false
	var libs []string

	for _, ln := range lines {
		trimmed := strings.TrimSpace(ln)
		if m := importRe.FindStringSubmatch(trimmed); m != nil {
			libs = append(libs, m[1])
			continue
		}
		if !seenBody && isDirectiveLine(trimmed) {
			directives = append(directives, ln)
			continue
		}
		seenBody = true
		body = append(body, ln)
	}

	var libText []string
	for _, lib := range libs {
		text, err := resolveLibrary(lib, dirs)
		if err != nil {
			return "", err
		}
		libText = append(libText, text)
	}

	var out strings.Builder
	out.WriteString(strings.Join(directives, "\n"))
	out.WriteString("\n")
	for _, t := range libText {
		out.WriteString(t)
		out.WriteString("\n")
	}
	out.WriteString(strings.Join(body, "\n"))
	return out.String(), nil
}

func isDirectiveLine(line string) bool {
	return strings.HasPrefix(line, "#") || strings.HasPrefix(line, "<drv.") || line == ""
}

func resolveLibrary(name string, dirs []string) (string, error) {
	candidates := append([]string{"."}, dirs...)
	for _, dir := range candidates {
		path := filepath.Join(dir, name+".de")
		if data, err := os.ReadFile(path); err == nil {
			return string(data), nil
		}
	}
	return "", fmt.Errorf("Import{%s}: library not found in search path", name)
}

func asmSuffix(t compiler.Target) string {
	if t == compiler.TargetARM64 {
		return ".s"
	}
	return ".asm"
}

// assembleAndLink drives the external assembler and linker for target,
// the per-target command lines original_source/compiler/main.cpp builds.
func assembleAndLink(target compiler.Target, asmPath, out string) error {
	objPath := out + ".o"

	switch target {
	case compiler.TargetBareMetal:
		return runCmd("nasm", "-f", "bin", asmPath, "-o", out)
	case compiler.TargetLinux386:
		if err := runCmd("nasm", "-f", "elf32", asmPath, "-o", objPath); err != nil {
			return err
		}
		return runCmd("ld", "-m", "elf_i386", "-lc", "-o", out, objPath)
	case compiler.TargetLinuxAMD64:
		if err := runCmd("nasm", "-f", "elf64", asmPath, "-o", objPath); err != nil {
			return err
		}
		return runCmd("ld", "-lc", "-o", out, objPath)
	case compiler.TargetMacOSAMD64:
		if err := runCmd("nasm", "-f", "macho64", asmPath, "-o", objPath); err != nil {
			return err
		}
		return runCmd("clang", "-o", out, objPath)
	case compiler.TargetARM64:
		if err := runCmd("as", "-arch", "arm64", "-o", objPath, asmPath); err != nil {
			return err
		}
		return runCmd("clang", "-arch", "arm64", "-o", out, objPath)
	default:
		return fmt.Errorf("no assembler/linker recipe for target %s", target)
	}
}

func runCmd(name string, args ...string) error {
	c := exec.Command(name, args...)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if verbose {
		fmt.Fprintf(os.Stderr, "+ %s %s\n", name, strings.Join(args, " "))
	}
	return c.Run()
}
