//go:build !windows

package ptystream

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// unixProcess runs the child under a real PTY, in its own process group so
// a single signal to -pid reaches every descendant it spawns.
type unixProcess struct {
	cmd  *exec.Cmd
	ptmx *os.File

	mu       sync.Mutex
	waited   bool
	waitErr  error
}

func startProcess(ctx context.Context, argv []string, env []string, cwd string, initialStdin []byte) (process, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec // argv is built by AgentCommand from a closed set of providers
	if cwd != "" {
		cmd.Dir = cwd
	}
	if env != nil {
		cmd.Env = env
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("starting pty: %w", err)
	}

	p := &unixProcess{cmd: cmd, ptmx: ptmx}

	if len(initialStdin) > 0 {
		if _, err := ptmx.Write(initialStdin); err != nil {
			return nil, fmt.Errorf("writing initial stdin: %w", err)
		}
	}

	return p, nil
}

func (p *unixProcess) Read(buf []byte) (int, error) {
	return p.ptmx.Read(buf)
}

func (p *unixProcess) Write(buf []byte) (int, error) {
	return p.ptmx.Write(buf)
}

func (p *unixProcess) CloseStdin() error {
	// A PTY has one fd for both directions; half-close isn't available, so
	// closing drops the whole stream. Emulate EOF with the ASCII
	// end-of-transmission byte instead, which most readline-based CLIs
	// treat as EOF on the tty.
	_, err := p.ptmx.Write([]byte{0x04})
	return err
}

func (p *unixProcess) Resize(rows, cols int) error {
	return pty.Setsize(p.ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)}) //nolint:gosec // bounded by UI window dimensions
}

func (p *unixProcess) Terminate(grace time.Duration) error {
	pid := p.cmd.Process.Pid
	_ = syscall.Kill(-pid, syscall.SIGTERM)

	time.Sleep(grace)

	// Signal(0) fails once the process has been reaped; a live process
	// group still answers it, which is the cue to escalate to SIGKILL.
	if err := p.cmd.Process.Signal(syscall.Signal(0)); err == nil {
		_ = syscall.Kill(-pid, syscall.SIGKILL)
	}
	return nil
}

func (p *unixProcess) Wait() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.waited {
		p.waitErr = p.cmd.Wait()
		_ = p.ptmx.Close()
		p.waited = true
	}
	return p.waitErr
}
