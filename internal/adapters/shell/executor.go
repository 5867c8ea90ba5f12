// Package shell runs external tools, such as the configured decompiler.
package shell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/codev/internal/core/ports"
	"go.trai.ch/zerr"
)

// Command is one invocation of an external tool.
type Command struct {
	// Args holds the program name followed by its arguments.
	Args []string
	// Dir is the working directory. Empty uses the current one.
	Dir string
	// Env holds KEY=VALUE overrides. A PATH entry is prepended to the
	// inherited PATH.
	Env []string
}

// Executor runs commands, streaming their output to the logger line by line.
type Executor struct {
	logger ports.Logger
}

// NewExecutor creates a new Executor.
func NewExecutor(logger ports.Logger) *Executor {
	return &Executor{
		logger: logger,
	}
}

// Run executes cmd and waits for it to exit. Output is also copied to out
// when it is not nil.
func (e *Executor) Run(ctx context.Context, cmd Command, out io.Writer) error {
	if len(cmd.Args) == 0 {
		return nil
	}

	name := cmd.Args[0]
	env := resolveEnvironment(os.Environ(), cmd.Env)

	executable := name
	if !filepath.IsAbs(name) {
		if lp, err := lookPath(name, env); err == nil {
			executable = lp
		}
	}

	c := exec.CommandContext(ctx, executable, cmd.Args[1:]...) //nolint:gosec // user provided command
	c.Args[0] = name
	c.Dir = cmd.Dir
	c.Env = env

	stdoutLog := &logWriter{logger: e.logger, level: levelDebug}
	stderrLog := &logWriter{logger: e.logger, level: levelWarn}
	defer func() {
		_ = stdoutLog.Close()
		_ = stderrLog.Close()
	}()
	if out != nil {
		c.Stdout = io.MultiWriter(stdoutLog, out)
		c.Stderr = io.MultiWriter(stderrLog, out)
	} else {
		c.Stdout = stdoutLog
		c.Stderr = stderrLog
	}

	if err := c.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		err = zerr.With(zerr.Wrap(err, domain.ErrCommandFailed.Error()), "command", name)
		return zerr.With(err, "exit_code", exitCode)
	}
	return nil
}

const (
	levelDebug = "debug"
	levelWarn  = "warn"
)

type logWriter struct {
	logger ports.Logger
	level  string
	buf    []byte
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	w.buf = append(w.buf, p...)

	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.logLine(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

func (w *logWriter) Close() error {
	if len(w.buf) > 0 {
		w.logLine(w.buf)
		w.buf = nil
	}
	return nil
}

func (w *logWriter) logLine(line []byte) {
	msg := strings.TrimSuffix(string(line), "\r")
	if w.level == levelDebug {
		w.logger.Debug(msg)
	} else {
		w.logger.Warn(msg)
	}
}

// allowListedEnvVars are the system environment variables a command
// inherits. JAVA_HOME lets java based tools find their runtime.
var allowListedEnvVars = map[string]struct{}{
	"HOME":      {},
	"TERM":      {},
	"USER":      {},
	"PATH":      {},
	"JAVA_HOME": {},
}

// resolveEnvironment merges the allow-listed system variables with the
// command's overrides.
func resolveEnvironment(sysEnv, cmdEnv []string) []string {
	envMap := make(map[string]string)
	for _, entry := range sysEnv {
		k, v, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		if _, allowed := allowListedEnvVars[k]; allowed {
			envMap[k] = v
		}
	}

	for _, entry := range cmdEnv {
		k, v, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		if k == "PATH" {
			if sysPath := envMap["PATH"]; sysPath != "" {
				v += string(os.PathListSeparator) + sysPath
			}
		}
		envMap[k] = v
	}

	result := make([]string, 0, len(envMap))
	for k, v := range envMap {
		result = append(result, k+"="+v)
	}
	return result
}

// lookPath searches for an executable in the directories named by the PATH environment variable.
func lookPath(file string, env []string) (string, error) {
	var path string
	for _, e := range env {
		if strings.HasPrefix(e, "PATH=") {
			path = strings.TrimPrefix(e, "PATH=")
			break
		}
	}

	if path == "" {
		return "", exec.ErrNotFound
	}

	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			// Unix shell semantics: path element "" means "."
			dir = "."
		}
		path := filepath.Join(dir, file)
		if err := findExecutable(path); err == nil {
			return path, nil
		}
	}
	return "", exec.ErrNotFound
}

func findExecutable(file string) error {
	d, err := os.Stat(file)
	if err != nil {
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0o111 != 0 {
		return nil
	}
	return os.ErrPermission
}
