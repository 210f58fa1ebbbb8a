// This is the main-driver for the compiler.
package main

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/teris-io/cli"

	"snekc/internal/asm"
	"snekc/internal/codegen"
	"snekc/internal/parser"
	"snekc/runtime"
)

var description = strings.ReplaceAll(`
snekc compiles a small expression-oriented language into x86-64 assembly.
Given an input source file it emits assembly to the requested output file,
and can optionally assemble and link the result against the runtime, and
run it, via gcc.
`, "\n", " ")

var cmd = cli.New(description).
	WithArg(cli.NewArg("input", "The source file to compile")).
	WithArg(cli.NewArg("output", "Where to write the generated assembly").
		AsOptional().WithType(cli.TypeString)).
	WithOption(cli.NewOption("compile", "Assemble and link the output, via gcc").
		WithType(cli.TypeBool)).
	WithOption(cli.NewOption("run", "Run the linked binary (implies --compile)").
		WithType(cli.TypeBool)).
	WithOption(cli.NewOption("out", "The linked binary's path").
		WithType(cli.TypeString)).
	WithAction(handler)

func handler(args []string, options map[string]string) int {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "ERROR: an input source file is required, use --help\n")
		return 1
	}
	input := args[0]

	output := input + ".s"
	if len(args) > 1 && args[1] != "" {
		output = args[1]
	}

	src, err := os.ReadFile(input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: unable to read %q: %s\n", input, err)
		return 1
	}

	text, err := compile(string(src))
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		return 1
	}

	if err := os.WriteFile(output, []byte(text), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: unable to write %q: %s\n", output, err)
		return 1
	}

	_, doRun := options["run"]
	_, doCompile := options["compile"]
	if !doCompile && !doRun {
		return 0
	}

	binary := "a.out"
	if b, ok := options["out"]; ok && b != "" {
		binary = b
	}

	if err := assembleAndLink(text, binary); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		return 1
	}

	if doRun {
		exe := exec.Command(binary)
		exe.Stdout = os.Stdout
		exe.Stderr = os.Stderr
		if err := exe.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: running %q: %s\n", binary, err)
			return 1
		}
	}
	return 0
}

// compile runs the full source-to-assembly pipeline: parse, lower to
// the instruction stream, and emit it as text, preceded by the
// directives gas needs to read Intel syntax and export the entry
// symbol the runtime calls.
func compile(src string) (string, error) {
	prog, err := parser.Parse(src)
	if err != nil {
		return "", err
	}

	gen := codegen.New(prog)
	instrs, err := gen.Program(prog)
	if err != nil {
		return "", err
	}

	text, err := asm.NewEmitter(instrs).Emit()
	if err != nil {
		return "", err
	}
	header := "        .intel_syntax noprefix\n        .text\n        .globl our_code_starts_here\n"
	return header + text, nil
}

// assembleAndLink pipes the generated assembly, plus the embedded
// runtime translation unit, through gcc to produce a standalone
// binary. gcc reads the generated assembly from stdin (the teacher's
// "-x assembler -" trick) and the runtime is written to a temporary
// file alongside it, since gcc needs a real C translation unit on
// disk to compile and link in the same invocation.
func assembleAndLink(generatedAsm string, binary string) error {
	runtimeFile, err := os.CreateTemp("", "snekc-runtime-*.c")
	if err != nil {
		return fmt.Errorf("creating temporary runtime file: %w", err)
	}
	defer os.Remove(runtimeFile.Name())

	if _, err := runtimeFile.Write(runtime.Source); err != nil {
		runtimeFile.Close()
		return fmt.Errorf("writing runtime source: %w", err)
	}
	if err := runtimeFile.Close(); err != nil {
		return fmt.Errorf("closing runtime source: %w", err)
	}

	gcc := exec.Command("gcc", "-static", "-o", binary, runtimeFile.Name(), "-x", "assembler", "-")
	gcc.Stdout = os.Stdout
	gcc.Stderr = os.Stderr

	var b bytes.Buffer
	b.WriteString(generatedAsm)
	gcc.Stdin = &b

	if err := gcc.Run(); err != nil {
		return fmt.Errorf("launching gcc: %w", err)
	}
	return nil
}

func main() { os.Exit(cmd.Run(os.Args, os.Stdout)) }
