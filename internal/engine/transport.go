package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Transport carries protocol lines to and from one engine.
// Lines is closed when the engine stops producing output.
type Transport interface {
	Send(line string) error
	Lines() <-chan string
	Close() error
}

// ProcessTransport runs an engine binary and speaks to it over stdin/stdout.
type ProcessTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	writer *bufio.Writer
	lines  chan string
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool
	exited chan struct{}
}

// StartProcess launches the engine at path.
func StartProcess(path string, logger zerolog.Logger) (*ProcessTransport, error) {
	cmd := exec.Command(path)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("engine stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("engine stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine %s: %w", path, err)
	}

	t := &ProcessTransport{
		cmd:    cmd,
		stdin:  stdin,
		writer: bufio.NewWriter(stdin),
		lines:  make(chan string, 256),
		logger: logger.With().Str("component", "engine-process").Int("pid", cmd.Process.Pid).Logger(),
		exited: make(chan struct{}),
	}
	go t.read(stdout)
	return t, nil
}

func (t *ProcessTransport) read(stdout io.Reader) {
	defer close(t.exited)
	defer close(t.lines)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		t.logger.Debug().Str("line", line).Msg("<<")
		t.lines <- line
	}
	if err := scanner.Err(); err != nil {
		t.logger.Warn().Err(err).Msg("engine output ended")
	}
}

func (t *ProcessTransport) Send(line string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return io.ErrClosedPipe
	}
	t.logger.Debug().Str("line", line).Msg(">>")
	if _, err := t.writer.WriteString(line + "\n"); err != nil {
		return err
	}
	return t.writer.Flush()
}

func (t *ProcessTransport) Lines() <-chan string {
	return t.lines
}

// Close asks the engine to quit and kills it if it has not exited within a second.
func (t *ProcessTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.writer.WriteString(string(CmdQuit) + "\n")
	t.writer.Flush()
	t.closed = true
	t.stdin.Close()
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	select {
	case <-t.exited:
	case <-ctx.Done():
		t.cmd.Process.Kill()
		// drain so the reader can finish
		go func() {
			for range t.lines {
			}
		}()
		<-t.exited
	}
	return t.cmd.Wait()
}

// Launch starts the engine binary at path and performs the handshake.
func Launch(ctx context.Context, path string, opts Options, logger zerolog.Logger) (*Session, error) {
	t, err := StartProcess(path, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s, err := Open(ctx, t, opts, logger)
	if err != nil {
		t.Close()
		return nil, err
	}
	return s, nil
}
