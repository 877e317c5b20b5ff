package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/sirupsen/logrus"
)

// ProcessOptions configures a pipeline process
type ProcessOptions struct {
	Args       []string
	PipeStdin  bool   // Expose stdin for raw frame writes
	PipeStdout bool   // Expose stdout for bitstream/frame reads
	LogTag     string // Tag for stderr log lines
}

// Process represents a running FFmpeg process with piped ends
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	done   chan error

	mu          sync.Mutex
	stdinClosed bool

	waitOnce sync.Once
	waitErr  error
	exited   bool
}

// Start launches an FFmpeg process. Its stderr is drained in the
// background and logged at debug level so a wedged pipe never blocks
// on a full stderr buffer.
func (f *FFmpeg) Start(ctx context.Context, opts ProcessOptions) (*Process, error) {
	cmd := exec.CommandContext(ctx, f.binaryPath, opts.Args...)

	p := &Process{
		cmd:  cmd,
		done: make(chan error, 1),
	}

	var err error
	if opts.PipeStdin {
		if p.stdin, err = cmd.StdinPipe(); err != nil {
			return nil, fmt.Errorf("get stdin pipe: %w", err)
		}
	}
	if opts.PipeStdout {
		if p.stdout, err = cmd.StdoutPipe(); err != nil {
			return nil, fmt.Errorf("get stdout pipe: %w", err)
		}
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("get stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	log := logrus.WithField("component", opts.LogTag)
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			log.Debug(scanner.Text())
		}
	}()

	go func() {
		p.done <- cmd.Wait()
	}()

	return p, nil
}

// Write writes raw frame data to the process stdin
func (p *Process) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stdin == nil || p.stdinClosed {
		return 0, fmt.Errorf("stdin not available")
	}
	return p.stdin.Write(data)
}

// CloseStdin closes the stdin pipe, signalling end of input. Safe to
// call more than once.
func (p *Process) CloseStdin() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stdin == nil || p.stdinClosed {
		return nil
	}
	p.stdinClosed = true
	return p.stdin.Close()
}

// Stdout returns the stdout pipe
func (p *Process) Stdout() io.ReadCloser {
	return p.stdout
}

// StdoutFile returns stdout as an *os.File when the platform delivers
// it as one, enabling read deadlines on the pipe.
func (p *Process) StdoutFile() (*os.File, bool) {
	f, ok := p.stdout.(*os.File)
	return f, ok
}

// Wait blocks until the process exits and returns its exit error.
// Safe to call more than once.
func (p *Process) Wait() error {
	p.waitOnce.Do(func() {
		p.waitErr = <-p.done
		p.mu.Lock()
		p.exited = true
		p.mu.Unlock()
	})
	return p.waitErr
}

// Exited reports whether the process has already exited, without
// blocking.
func (p *Process) Exited() (bool, error) {
	p.mu.Lock()
	if p.exited {
		defer p.mu.Unlock()
		return true, p.waitErr
	}
	p.mu.Unlock()

	select {
	case err := <-p.done:
		p.mu.Lock()
		p.exited = true
		p.waitErr = err
		p.mu.Unlock()
		p.waitOnce.Do(func() {})
		return true, err
	default:
		return false, nil
	}
}

// Kill forcefully terminates the process
func (p *Process) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}
