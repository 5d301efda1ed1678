package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"time"
)

// Command is one subprocess invocation.
type Command struct {
	// Line is passed to the shell as is.
	Line string
	Dir  string

	// Capture records stdout and stderr. Tee additionally copies them to
	// Stdout and Stderr while the process runs. Without Capture the process
	// is attached to Stdout and Stderr directly. Stdin is attached when set.
	Capture bool
	Tee     bool

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Outcome is what a finished subprocess left behind.
type Outcome struct {
	Stdout     []byte
	Stderr     []byte
	ReturnCode int
	Elapsed    time.Duration
}

// Executor runs commands. A non-zero exit is reported in the Outcome, not as
// an error; errors mean the process could not run to completion (failed to
// start, or ctx was cancelled).
type Executor interface {
	Execute(ctx context.Context, cmd Command) (*Outcome, error)
}

// ShellExecutor runs commands through a POSIX shell.
type ShellExecutor struct {
	// Shell defaults to /bin/sh.
	Shell string
}

// Execute runs cmd.Line with "sh -c". Cancelling ctx kills the process.
func (s ShellExecutor) Execute(ctx context.Context, cmd Command) (*Outcome, error) {
	shell := s.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	c := exec.CommandContext(ctx, shell, "-c", cmd.Line)
	c.Dir = cmd.Dir
	c.Stdin = cmd.Stdin

	var stdout, stderr bytes.Buffer
	if cmd.Capture {
		c.Stdout, c.Stderr = &stdout, &stderr
		if cmd.Tee {
			c.Stdout = teeTo(&stdout, cmd.Stdout)
			c.Stderr = teeTo(&stderr, cmd.Stderr)
		}
	} else {
		c.Stdout, c.Stderr = cmd.Stdout, cmd.Stderr
	}

	start := time.Now()
	err := c.Run()
	elapsed := time.Since(start)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, Error.New("%s interrupted: %v", firstWord(cmd.Line), ctxErr)
	}
	out := &Outcome{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), Elapsed: elapsed}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		out.ReturnCode = exitErr.ExitCode()
	default:
		return nil, Error.New("%s: %v", firstWord(cmd.Line), err)
	}
	return out, nil
}

func teeTo(buf *bytes.Buffer, w io.Writer) io.Writer {
	if w == nil {
		return buf
	}
	return io.MultiWriter(buf, w)
}

func firstWord(line string) string {
	if i := strings.IndexByte(line, ' '); i > 0 {
		return line[:i]
	}
	return line
}

// shellQuote quotes s for /bin/sh when it holds anything but plain path
// characters.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	plain := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./:=+,@%", r)) {
			plain = false
			break
		}
	}
	if plain {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
