package os

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

const readBufferSize = 64 * 1024

// Cmd is a model of the OS command.
type Cmd struct {
	Name string
	Args []string
	Env  []string
	Dir  string
	Log  bool
}

// String renders the command the way it would be typed into a shell.
func (c Cmd) String() string {
	return strings.TrimSpace("$ " + c.Name + " " + strings.Join(c.Args, " "))
}

// Output identifies the stream a line of process output was read from.
type Output int

const (
	// Stdout is the standard output of the process.
	Stdout Output = iota
	// Stderr is the standard error of the process.
	Stderr
)

// Line is a single line of process output.
type Line struct {
	Output Output
	Text   string
}

// Stream runs the command and passes every line the process prints to emit, in the order the lines
// become available on either stream. If cmd.Log is set, the rendered command is emitted as the first
// line. A non-zero exit status is returned as an error after all output has been emitted.
func Stream(ctx context.Context, cmd Cmd, emit func(Line)) error {
	osCmd := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	osCmd.Dir = cmd.Dir
	osCmd.Env = append(os.Environ(), cmd.Env...)
	stdout, err := osCmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stream -> stdout pipe: %w; cmd=%s", err, cmd.Name)
	}
	stderr, err := osCmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stream -> stderr pipe: %w; cmd=%s", err, cmd.Name)
	}
	if err = osCmd.Start(); err != nil {
		return fmt.Errorf("stream -> cannot start: %w; cmd=%s", err, cmd.Name)
	}
	if cmd.Log {
		emit(Line{Output: Stdout, Text: cmd.String()})
	}

	lines := make(chan Line)
	readErrs := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go scanLines(stdout, Stdout, lines, readErrs, &wg)
	go scanLines(stderr, Stderr, lines, readErrs, &wg)
	go func() {
		wg.Wait()
		close(lines)
		close(readErrs)
	}()
	for l := range lines {
		emit(l)
	}
	var readErr error
	for e := range readErrs {
		if readErr == nil {
			readErr = e
		}
	}

	err = osCmd.Wait()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("stream -> command failed with status %d: %w; cmd=%s", exitErr.ExitCode(), err, cmd)
		}
		return fmt.Errorf("stream -> wait: %w; cmd=%s", err, cmd)
	}
	if readErr != nil {
		return fmt.Errorf("stream -> read output: %w; cmd=%s", readErr, cmd)
	}
	return nil
}

// scanLines forwards the lines of r until EOF. Lines have no length limit and an unterminated final
// line is forwarded as well.
func scanLines(r io.Reader, out Output, lines chan<- Line, errs chan<- error, wg *sync.WaitGroup) {
	defer wg.Done()
	reader := bufio.NewReaderSize(r, readBufferSize)
	for {
		text, err := reader.ReadString('\n')
		if text != "" {
			lines <- Line{Output: out, Text: strings.TrimRight(text, "\r\n")}
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			errs <- err
			// keep the pipe drained so the process can't block on a full buffer
			_, _ = io.Copy(io.Discard, r)
			return
		}
	}
}
