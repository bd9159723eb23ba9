package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// CommandSource runs a local command whose stdout is the event stream.
// The request is written to the command's stdin as JSON.
type CommandSource struct {
	binary  string
	args    []string
	workDir string
}

// NewCommandSource creates a source that runs binary with args in workDir.
func NewCommandSource(workDir, binary string, args ...string) *CommandSource {
	return &CommandSource{binary: binary, args: args, workDir: workDir}
}

// Open starts the command. The stream ends when the command exits; a non-zero
// exit surfaces as a read error carrying stderr.
func (c *CommandSource) Open(ctx context.Context, req Request) (io.ReadCloser, error) {
	input, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	cmdCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(cmdCtx, c.binary, c.args...)
	cmd.Dir = c.workDir
	cmd.Stdin = bytes.NewReader(input)

	stream := &commandStream{cmd: cmd, cancel: cancel}
	cmd.Stderr = &stream.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stream.stdout = stdout

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start %s: %w", c.binary, err)
	}

	return stream, nil
}

type commandStream struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdout io.ReadCloser
	stderr bytes.Buffer

	waitOnce sync.Once
	waitErr  error
}

func (s *commandStream) Read(p []byte) (int, error) {
	n, err := s.stdout.Read(p)
	if errors.Is(err, io.EOF) {
		if werr := s.wait(); werr != nil {
			errMsg := strings.TrimSpace(s.stderr.String())
			if errMsg == "" {
				return n, werr
			}
			return n, fmt.Errorf("%s: %w", errMsg, werr)
		}
	}
	return n, err
}

// Close kills the command if it is still running.
func (s *commandStream) Close() error {
	s.cancel()
	_ = s.wait()
	return nil
}

func (s *commandStream) wait() error {
	s.waitOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
		s.cancel()
	})
	return s.waitErr
}
