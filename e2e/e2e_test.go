//go:build e2e

package e2e_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"
	"go.trai.ch/codev/internal/adapters/zipfs"
)

var codevBinary string

func TestMain(m *testing.M) {
	tmpDir, err := os.MkdirTemp("", "codev-e2e-*")
	if err != nil {
		panic(err)
	}

	codevBinary = filepath.Join(tmpDir, "codev")

	//nolint:gosec // Building binary with static arguments, not user input
	cmd := exec.Command("go", "build", "-o", codevBinary, "./cmd/codev")
	cmd.Dir = ".."
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		panic("failed to build codev binary: " + err.Error())
	}

	exitCode := m.Run()

	_ = os.RemoveAll(tmpDir)

	os.Exit(exitCode)
}

func TestScripts(t *testing.T) {
	testscript.Run(t, testscript.Params{
		Dir:   "testdata",
		Setup: setupE2E,
		Cmds: map[string]func(ts *testscript.TestScript, neg bool, args []string){
			"mkjar":  mkjar,
			"hasjar": hasjar,
		},
	})
}

func setupE2E(env *testscript.Env) error {
	env.Setenv("NO_COLOR", "1")
	env.Setenv("CI", "true")

	binDir := filepath.Dir(codevBinary)
	currentPath := env.Getenv("PATH")
	env.Setenv("PATH", binDir+string(os.PathListSeparator)+currentPath)

	homeDir := filepath.Join(env.WorkDir, ".home")
	if err := os.MkdirAll(homeDir, 0o750); err != nil {
		return err
	}
	env.Setenv("HOME", homeDir)

	return nil
}

// mkjar out.jar file... writes a jar holding the named files of the work
// directory under the same entry names.
func mkjar(ts *testscript.TestScript, neg bool, args []string) {
	if neg {
		ts.Fatalf("unsupported: ! mkjar")
	}
	if len(args) < 1 {
		ts.Fatalf("usage: mkjar out.jar file...")
	}
	a, err := zipfs.Create(ts.MkAbs(args[0]))
	ts.Check(err)
	for _, name := range args[1:] {
		ts.Check(a.WriteFile(name, []byte(ts.ReadFile(name))))
	}
	ts.Check(a.Close())
}

// hasjar jar entry reports whether the jar holds entry.
func hasjar(ts *testscript.TestScript, neg bool, args []string) {
	if len(args) != 2 {
		ts.Fatalf("usage: hasjar jar entry")
	}
	a, err := zipfs.Open(ts.MkAbs(args[0]))
	ts.Check(err)
	defer a.Close() //nolint:errcheck // read-only handle

	if a.Has(args[1]) == neg {
		if neg {
			ts.Fatalf("%s holds %s", args[0], args[1])
		}
		ts.Fatalf("%s does not hold %s", args[0], args[1])
	}
}
