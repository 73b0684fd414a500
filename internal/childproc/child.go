// Package childproc spawns and supervises a single stdio MCP server child
// process: a shell command with inherited environment, a line-delimited
// JSON-RPC write side, and a framed JSON-RPC read side.
package childproc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"

	"github.com/netbridge/mcpgate/internal/framer"
	"github.com/netbridge/mcpgate/internal/logx"
	"github.com/netbridge/mcpgate/internal/rpc"
)

// ExitStatus describes how a child process terminated.
type ExitStatus struct {
	Code   int
	Signal string
}

// Child is a running stdio MCP server process.
type Child struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan rpc.Message
	stderr chan string
	done   chan ExitStatus

	writeMu sync.Mutex
}

// Spawn runs command through the host shell, inheriting the parent's
// environment, and begins reading its stdout/stderr in background
// goroutines. command is parsed by the shell exactly the way a user typing
// it at a terminal would expect, so compound pipelines and quoting behave.
func Spawn(command string) (*Child, error) {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command("cmd", "/c", command)
	} else {
		cmd = exec.Command("sh", "-c", command)
	}
	cmd.Env = os.Environ()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %q: %w", command, err)
	}

	c := &Child{
		cmd:    cmd,
		stdin:  stdin,
		lines:  make(chan rpc.Message, 64),
		stderr: make(chan string, 16),
		done:   make(chan ExitStatus, 1),
	}

	// cmd.Wait closes the stdout/stderr pipes, so it must only run once both
	// readers have drained them.
	var readers sync.WaitGroup
	readers.Add(2)
	go func() { defer readers.Done(); c.readStdout(stdout) }()
	go func() { defer readers.Done(); c.readStderr(stderr) }()
	go func() { readers.Wait(); c.wait() }()

	return c, nil
}

func (c *Child) readStdout(r io.Reader) {
	defer close(c.lines)
	br := bufio.NewReader(r)
	f := framer.New()
	buf := make([]byte, 4096)
	for {
		n, err := br.Read(buf)
		if n > 0 {
			for _, line := range f.Feed(buf[:n]) {
				m, perr := rpc.Parse([]byte(line))
				if perr != nil {
					logx.Log.Error().Err(perr).Str("line", line).Msg("child emitted non-JSON line")
					continue
				}
				c.lines <- m
			}
		}
		if err != nil {
			return
		}
	}
}

func (c *Child) readStderr(r io.Reader) {
	defer close(c.stderr)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		select {
		case c.stderr <- sc.Text():
		default:
		}
	}
}

func (c *Child) wait() {
	err := c.cmd.Wait()
	status := ExitStatus{Code: 1}
	switch e := err.(type) {
	case nil:
		status.Code = 0
	case *exec.ExitError:
		status.Code = e.ExitCode()
		if status.Code < 0 {
			// negative ExitCode means the process was killed by a signal.
			status.Code = 1
			status.Signal = e.Error()
		}
	}
	c.done <- status
	close(c.done)
}

// WriteLine serializes m and writes it to the child's stdin as exactly one
// JSON object followed by a single "\n". Writes are serialized so two
// concurrent callers can never interleave bytes on the pipe.
func (c *Child) WriteLine(m rpc.Message) error {
	b, err := rpc.Encode(m)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.stdin.Write(append(b, '\n')); err != nil {
		return err
	}
	return nil
}

// WriteRaw writes an already-encoded JSON-RPC object followed by "\n".
func (c *Child) WriteRaw(b json.RawMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.stdin.Write(append(append([]byte{}, b...), '\n'))
	return err
}

// Lines returns the channel of parsed JSON-RPC messages read from the
// child's stdout. It is closed when the child's stdout is closed.
func (c *Child) Lines() <-chan rpc.Message { return c.lines }

// Stderr returns a best-effort channel of the child's stderr lines.
func (c *Child) Stderr() <-chan string { return c.stderr }

// Done returns a channel that receives the child's exit status exactly once.
func (c *Child) Done() <-chan ExitStatus { return c.done }

// Kill terminates the child process immediately.
func (c *Child) Kill() error {
	if c.cmd.Process == nil {
		return nil
	}
	return c.cmd.Process.Kill()
}
