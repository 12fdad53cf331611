package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, cfg *Config, inv invocation) (code int, stdout, stderr string) {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	var out, errOut bytes.Buffer
	inv.stdout = &out
	inv.stderr = &errOut
	if inv.stdin == nil {
		inv.stdin = strings.NewReader("")
	}
	code = run(context.Background(), cfg, inv)
	return code, out.String(), errOut.String()
}

func TestRun_Source(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		wantCode int
		wantOut  string
	}{
		{"print", `System.print(1 + 2)`, exitOK, "3\n"},
		{"compile error", `System.print(1 +`, exitCompileError, ""},
		{"runtime error", `Fiber.abort("boom")`, exitRuntimeError, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, out, errOut := runCLI(t, nil, invocation{source: tc.source})
			if code != tc.wantCode {
				t.Fatalf("exit code = %d, want %d (stderr %q)", code, tc.wantCode, errOut)
			}
			if out != tc.wantOut {
				t.Errorf("stdout = %q, want %q", out, tc.wantOut)
			}
			if tc.wantCode != exitOK && errOut == "" {
				t.Error("expected errors on stderr")
			}
		})
	}
}

func TestRun_RuntimeErrorMessage(t *testing.T) {
	_, _, errOut := runCLI(t, nil, invocation{source: `Fiber.abort("boom")`})
	if !strings.HasPrefix(errOut, "boom\n") {
		t.Errorf("stderr = %q, want the abort message first", errOut)
	}
}

func TestRun_ScriptWithImports(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "main.wren"), `
import "./lib/greet" for Greet
System.print(Greet.hello("wren"))
`)
	writeFile(t, filepath.Join(dir, "lib", "greet.wren"), `
class Greet {
  static hello(name) { "hello " + name }
}
`)

	code, out, errOut := runCLI(t, nil, invocation{script: filepath.Join(dir, "main.wren")})
	if code != exitOK {
		t.Fatalf("exit code = %d (stderr %q)", code, errOut)
	}
	if out != "hello wren\n" {
		t.Errorf("stdout = %q", out)
	}
}

func TestRun_ModulePath(t *testing.T) {
	lib := t.TempDir()
	writeFile(t, filepath.Join(lib, "answer.wren"), `var Answer = 42`)

	cfg := &Config{ModulePath: []string{lib}}
	code, out, errOut := runCLI(t, cfg, invocation{source: `
import "answer" for Answer
System.print(Answer)
`})
	if code != exitOK {
		t.Fatalf("exit code = %d (stderr %q)", code, errOut)
	}
	if out != "42\n" {
		t.Errorf("stdout = %q", out)
	}
}

func TestRun_MissingModule(t *testing.T) {
	code, _, errOut := runCLI(t, nil, invocation{source: `import "nowhere" for X`})
	if code != exitRuntimeError {
		t.Fatalf("exit code = %d, want %d", code, exitRuntimeError)
	}
	if !strings.Contains(errOut, "nowhere") {
		t.Errorf("stderr = %q, want the module name", errOut)
	}
}

func TestRun_Stdin(t *testing.T) {
	code, out, _ := runCLI(t, nil, invocation{stdin: strings.NewReader(`System.print("piped")`)})
	if code != exitOK {
		t.Fatalf("exit code = %d", code)
	}
	if out != "piped\n" {
		t.Errorf("stdout = %q", out)
	}
}

func TestRun_Version(t *testing.T) {
	code, out, _ := runCLI(t, nil, invocation{version: true})
	if code != exitOK {
		t.Fatalf("exit code = %d", code)
	}
	if out != "wren 0.4.0\n" {
		t.Errorf("stdout = %q", out)
	}
}

func TestRun_MissingScript(t *testing.T) {
	code, _, errOut := runCLI(t, nil, invocation{script: filepath.Join(t.TempDir(), "absent.wren")})
	if code != exitFailure {
		t.Fatalf("exit code = %d, want %d", code, exitFailure)
	}
	if !strings.Contains(errOut, "read script") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestRun_BadWasm(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wasm")
	writeFile(t, path, "not wasm")

	code, _, errOut := runCLI(t, &Config{Wasm: path}, invocation{source: `System.print(1)`})
	if code != exitFailure {
		t.Fatalf("exit code = %d, want %d", code, exitFailure)
	}
	if !strings.Contains(errOut, "bad.wasm") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestVersionString(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{4000, "0.4.0"},
		{1002003, "1.2.3"},
		{0, "0.0.0"},
	}
	for _, tc := range tests {
		if got := versionString(tc.n); got != tc.want {
			t.Errorf("versionString(%d) = %q, want %q", tc.n, got, tc.want)
		}
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
