// Package execution compiles and runs a room's program against its stdin.
package execution

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

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

var ErrUnsupportedLanguage = errors.New("unsupported language")

const (
	LanguageCPP    = "cpp"
	LanguageC      = "c"
	LanguagePython = "python"
)

type Request struct {
	Language string
	Code     string
	Stdin    string
}

type Result struct {
	ID       string        `json:"id"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
}

// Output is what a caller shows the user: stderr when the program wrote any,
// stdout otherwise.
func (r Result) Output() string {
	if r.Stderr != "" {
		return r.Stderr
	}
	return r.Stdout
}

type Runner interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// Toolchain names the executables used per language. TempDir is the parent of the
// per-run scratch directories; empty means the system default.
type Toolchain struct {
	CPPCompiler       string
	CCompiler         string
	PythonInterpreter string
	TempDir           string
}

// LocalRunner builds and runs programs with the host toolchain in a scratch
// directory per run.
type LocalRunner struct {
	toolchain Toolchain
	timeout   time.Duration
}

func NewLocalRunner(toolchain Toolchain, timeout time.Duration) *LocalRunner {
	return &LocalRunner{toolchain: toolchain, timeout: timeout}
}

// NormalizeLanguage maps the language names clients send onto the runner's keys.
// An empty name means C++.
func NormalizeLanguage(language string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(language)) {
	case "", "cpp", "c++", "cxx":
		return LanguageCPP, nil
	case "c":
		return LanguageC, nil
	case "python", "python3", "py":
		return LanguagePython, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)
}

func (r *LocalRunner) Run(ctx context.Context, req Request) (Result, error) {
	language, err := NormalizeLanguage(req.Language)
	if err != nil {
		return Result{}, err
	}

	id := ulid.Make().String()
	log := logrus.WithFields(logrus.Fields{
		"run_id":   id,
		"language": language,
	})

	dir, err := os.MkdirTemp(r.toolchain.TempDir, "run-"+id+"-")
	if err != nil {
		return Result{}, fmt.Errorf("create run directory: %w", err)
	}
	defer os.RemoveAll(dir)

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	program, err := r.prepare(ctx, dir, language, req.Code)
	if err != nil {
		return Result{}, err
	}
	var result Result
	if program.buildFailed != nil {
		result = *program.buildFailed
	} else {
		result = r.exec(ctx, program.argv, dir, req.Stdin)
	}
	result.ID = id
	result.Duration = time.Since(start)

	log.WithFields(logrus.Fields{
		"exit_code": result.ExitCode,
		"duration":  result.Duration,
	}).Info("Program finished")
	return result, nil
}

type preparedProgram struct {
	argv        []string
	buildFailed *Result
}

func (r *LocalRunner) prepare(ctx context.Context, dir, language, code string) (preparedProgram, error) {
	var source string
	switch language {
	case LanguageCPP:
		source = "main.cpp"
	case LanguageC:
		source = "main.c"
	case LanguagePython:
		source = "main.py"
	}

	sourcePath := filepath.Join(dir, source)
	if err := os.WriteFile(sourcePath, []byte(code), 0o600); err != nil {
		return preparedProgram{}, fmt.Errorf("write source: %w", err)
	}

	if language == LanguagePython {
		return preparedProgram{argv: []string{r.toolchain.PythonInterpreter, sourcePath}}, nil
	}

	compiler := r.toolchain.CPPCompiler
	if language == LanguageC {
		compiler = r.toolchain.CCompiler
	}
	binary := filepath.Join(dir, "main")
	build := r.exec(ctx, []string{compiler, "-O2", "-o", binary, sourcePath}, dir, "")
	if build.ExitCode != 0 {
		return preparedProgram{buildFailed: &build}, nil
	}
	return preparedProgram{argv: []string{binary}}, nil
}

func (r *LocalRunner) exec(ctx context.Context, argv []string, dir, stdin string) Result {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		result.ExitCode = -1
		result.Stderr += fmt.Sprintf("execution timed out after %s\n", r.timeout)
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
		if result.Stderr == "" {
			result.Stderr = fmt.Sprintf("exit status %d\n", result.ExitCode)
		}
	default:
		result.ExitCode = -1
		result.Stderr += err.Error() + "\n"
	}
	return result
}
