// Package executor compiles and runs untrusted source files in throwaway
// working directories under a wall-clock timeout.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"chat_terminal/internal/logger"
)

// Reserved exit codes, distinct from anything a well-behaved toolchain
// produces on its own.
const (
	ExitUsage       = 2   // source missing or unsupported language
	ExitTimeout     = 124 // wall-clock budget exceeded
	ExitToolMissing = 127 // compiler/interpreter not installed
)

const defaultTimeout = 20 * time.Second

// Request describes one execution. Args and Stdin are passed to the final
// process (the produced binary for compiled languages, the interpreter for
// the rest).
type Request struct {
	Language   string
	SourcePath string
	Args       []string
	Stdin      string
}

// Result is the captured outcome of one execution. ExecutablePath is set
// only when a compile step produced a binary that was then run.
type Result struct {
	ExitCode       int
	Stdout         string
	Stderr         string
	ExecutablePath string
}

type langKind int

const (
	kindCompiled langKind = iota
	kindInterpreted
)

// toolchain describes how one canonical language is built and run. For
// compiled languages compileArgs produces the full compiler argv; for
// interpreted ones the source is handed to the interpreter directly.
type toolchain struct {
	kind        langKind
	tools       []string // candidate executables, first found wins
	output      string   // binary name inside the work dir (compiled only)
	compileArgs func(tool, src, out string) []string
	runArgs     func(tool, src string, args []string) []string
}

// Fixed language table. Aliases map onto canonical names; anything absent is
// rejected up front without probing the PATH.
var (
	langAliases = map[string]string{
		"c": "c", "c99": "c", "c11": "c",
		"cpp": "cpp", "c++": "cpp", "cxx": "cpp",
		"csharp": "csharp", "cs": "csharp", "c#": "csharp",
		"shell": "shell", "bash": "shell", "sh": "shell",
		"powershell": "powershell", "pwsh": "powershell",
	}

	toolchains = map[string]toolchain{
		"c": {
			kind:   kindCompiled,
			tools:  []string{"gcc"},
			output: "program_c",
			compileArgs: func(tool, src, out string) []string {
				return []string{tool, src, "-O2", "-std=c11", "-o", out}
			},
		},
		"cpp": {
			kind:   kindCompiled,
			tools:  []string{"g++"},
			output: "program_cpp",
			compileArgs: func(tool, src, out string) []string {
				return []string{tool, src, "-O2", "-std=c++17", "-o", out}
			},
		},
		"csharp": {
			kind:   kindCompiled,
			tools:  []string{"csc"},
			output: "Program.exe",
			compileArgs: func(tool, src, out string) []string {
				return []string{tool, "/nologo", "/out:" + out, src}
			},
		},
		"shell": {
			kind:  kindInterpreted,
			tools: []string{"bash", "sh"},
			runArgs: func(tool, src string, args []string) []string {
				return append([]string{tool, src}, args...)
			},
		},
		"powershell": {
			kind:  kindInterpreted,
			tools: []string{"pwsh", "powershell"},
			runArgs: func(tool, src string, args []string) []string {
				return append([]string{tool, "-NoProfile", "-File", src}, args...)
			},
		},
	}
)

// Engine runs execution requests. It enforces resource and correctness
// policy only (timeout, isolation, cleanup); who may call it is the
// dispatcher's concern.
type Engine struct {
	timeout time.Duration
	log     *logger.Logger
}

func New(timeout time.Duration, log *logger.Logger) *Engine {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Engine{timeout: timeout, log: log}
}

// Execute validates the request, sets up an isolated working directory and
// dispatches on the language table. The directory and everything in it are
// removed on every exit path. Compile and run get independent timeout
// windows.
func (e *Engine) Execute(ctx context.Context, req Request) Result {
	if _, err := os.Stat(req.SourcePath); err != nil {
		return Result{ExitCode: ExitUsage, Stderr: fmt.Sprintf("source file not found: %s", req.SourcePath)}
	}

	canonical, ok := langAliases[strings.ToLower(req.Language)]
	if !ok {
		return Result{ExitCode: ExitUsage, Stderr: fmt.Sprintf("unsupported language: %s", req.Language)}
	}
	tc := toolchains[canonical]

	tool, err := lookupTool(tc.tools)
	if err != nil {
		return Result{ExitCode: ExitToolMissing, Stderr: err.Error()}
	}

	workDir, err := os.MkdirTemp("", "exec_")
	if err != nil {
		return Result{ExitCode: ExitUsage, Stderr: fmt.Sprintf("create work dir: %v", err)}
	}
	defer func() {
		if rerr := os.RemoveAll(workDir); rerr != nil && e.log != nil {
			e.log.Errorw("failed to remove exec work dir", "dir", workDir, "err", rerr)
		}
	}()

	if tc.kind == kindInterpreted {
		argv := tc.runArgs(tool, req.SourcePath, req.Args)
		return e.runStep(ctx, workDir, req.Stdin, argv)
	}

	out := filepath.Join(workDir, tc.output)
	comp := e.runStep(ctx, workDir, "", tc.compileArgs(tool, req.SourcePath, out))
	if comp.ExitCode != 0 {
		// Compiler diagnostics come back as-is; nothing is run.
		return comp
	}

	res := e.runStep(ctx, workDir, req.Stdin, append([]string{out}, req.Args...))
	res.ExecutablePath = out
	return res
}

// runStep runs one child process inside dir under the engine timeout,
// capturing stdout/stderr. The child gets its own process group and the
// whole group is killed on timeout or cancellation so grandchildren never
// leak.
func (e *Engine) runStep(ctx context.Context, dir, stdin string, argv []string) Result {
	stepCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(stepCtx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	configureProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	// Backstop in case the group refuses to die before Wait returns.
	cmd.WaitDelay = 5 * time.Second

	err := cmd.Run()

	if errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		return Result{
			ExitCode: ExitTimeout,
			Stdout:   stdout.String(),
			Stderr:   fmt.Sprintf("timeout after %s", e.timeout),
		}
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{ExitCode: exitErr.ExitCode(), Stdout: stdout.String(), Stderr: stderr.String()}
		}
		return Result{ExitCode: ExitToolMissing, Stdout: stdout.String(), Stderr: err.Error()}
	}
	return Result{ExitCode: 0, Stdout: stdout.String(), Stderr: stderr.String()}
}

// lookupTool returns the first candidate found on PATH. Absence of every
// candidate is a hard failure distinct from a compile error.
func lookupTool(candidates []string) (string, error) {
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("tool not found: %s", strings.Join(candidates, " or "))
}
