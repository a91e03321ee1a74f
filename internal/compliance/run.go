// Package compliance batches the rv32ui-p-* compliance ELF binaries
// used as this interpreter's acceptance workload: load each one, run
// it to halt (or a step ceiling), and report whether it exited
// cleanly. It adapts the *shape* of LMMilewski-riscv-emu/diff.go (a
// loop that runs a program and compares an outcome) to batch
// pass/fail reporting instead of per-instruction differential testing
// against the Spike simulator — there is no second reference
// simulator to diff against here, only a directory of test binaries
// that are each expected to exit 0.
package compliance

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/lmrv32/rv32i-emu/internal/exec"
	"github.com/lmrv32/rv32i-emu/internal/loader"
	"github.com/lmrv32/rv32i-emu/internal/machine"
)

// Result is the outcome of running a single compliance binary.
type Result struct {
	Name     string
	ExitCode uint32
	Steps    uint64
	Err      error
}

// Passed reports whether the binary ran to completion with exit code 0.
func (r Result) Passed() bool {
	return r.Err == nil && r.ExitCode == 0
}

// RunDir runs every file under dir whose name matches glob (typically
// "rv32ui-p-*") through a fresh Machine, each bounded by maxSteps
// instructions, and returns one Result per binary in deterministic
// (sorted-name) order.
func RunDir(dir, glob string, maxSteps uint64) ([]Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("compliance: can't read %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ok, err := filepath.Match(glob, e.Name()); err == nil && ok {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	results := make([]Result, 0, len(names))
	for _, name := range names {
		results = append(results, runOne(filepath.Join(dir, name), name, maxSteps))
	}
	return results, nil
}

func runOne(path, name string, maxSteps uint64) Result {
	img, err := loader.Load(path)
	if err != nil {
		return Result{Name: name, Err: fmt.Errorf("load: %w", err)}
	}
	m := machine.NewFromImage(img)
	if err := m.Run(exec.Execute, maxSteps); err != nil {
		return Result{Name: name, ExitCode: m.ExitCode, Steps: m.Steps, Err: err}
	}
	return Result{Name: name, ExitCode: m.ExitCode, Steps: m.Steps}
}
