package component

import (
	"fmt"
	"io"
	"net/url"
	"os/exec"
	"sync"

	"github.com/rs/zerolog"
)

// Controller tracks one running component.
type Controller struct {
	info   *LaunchInfo
	cmd    *exec.Cmd
	logger zerolog.Logger

	mu   sync.Mutex
	done bool
}

// Launch implements Manager.
func (m *ExecManager) Launch(info *LaunchInfo, ioFn IOFunc, onExit func(err error)) (*Controller, error) {
	u, err := url.Parse(info.URL)
	if err != nil {
		return nil, fmt.Errorf("malformed component URL %q: %w", info.URL, err)
	}
	bin := u.Path
	if bin == "" {
		bin = u.Host
	}

	cmd := exec.Command(bin, info.Argv[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	ctrl := &Controller{
		info:   info,
		cmd:    cmd,
		logger: m.logger.With().Uint64("component_id", info.ComponentID).Logger(),
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start component %q: %w", info.URL, err)
	}
	ctrl.logger.Info().Str("url", info.URL).Int("pid", cmd.Process.Pid).Msg("Component started")

	if ioFn != nil {
		go forward(stdout, Stdout, ioFn)
		go forward(stderr, Stderr, ioFn)
	} else {
		go drain(stdout)
		go drain(stderr)
	}

	go func() {
		err := cmd.Wait()
		ctrl.mu.Lock()
		ctrl.done = true
		ctrl.mu.Unlock()
		if onExit != nil {
			onExit(err)
		}
	}()

	return ctrl, nil
}

func forward(r io.Reader, stream Stream, ioFn IOFunc) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			ioFn(stream, data)
		}
		if err != nil {
			return
		}
	}
}

func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, r)
}

// Info returns the launch this controller was created for.
func (c *Controller) Info() *LaunchInfo { return c.info }

// Stop kills the component if it is still running.
func (c *Controller) Stop() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done || c.cmd == nil || c.cmd.Process == nil {
		return
	}
	if err := c.cmd.Process.Kill(); err != nil {
		c.logger.Debug().Err(err).Msg("Failed to kill component")
	}
}
