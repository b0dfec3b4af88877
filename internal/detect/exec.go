package detect

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// ExecSource runs an external detector process and reads one JSON frame per
// stdout line. The process owns the camera or network stream; this side only
// sees detections.
type ExecSource struct {
	command    string
	cmd        *exec.Cmd
	cancel     context.CancelFunc
	lines      chan execLine
	stderrDone chan struct{}
	logger     *slog.Logger

	wg      sync.WaitGroup
	mu      sync.Mutex
	exitErr error
}

// execLine is one stdout line, or the skip error for a line that could not
// be read.
type execLine struct {
	data []byte
	err  error
}

// StartExec spawns command with args and begins reading its output. A
// failure to start the process is returned immediately.
func StartExec(ctx context.Context, command string, args []string, logger *slog.Logger) (*ExecSource, error) {
	if command == "" {
		return nil, fmt.Errorf("detector command is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, command, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start detector %s: %w", command, err)
	}

	s := &ExecSource{
		command:    command,
		cmd:        cmd,
		cancel:     cancel,
		lines:      make(chan execLine, 8),
		stderrDone: make(chan struct{}),
		logger:     logger,
	}
	logger.Info("detector process started", "command", command, "pid", cmd.Process.Pid)

	s.wg.Add(2)
	go s.readStdout(ctx, stdout)
	go s.logStderr(stderr)

	return s, nil
}

// Name identifies the source in logs and status output.
func (s *ExecSource) Name() string { return "exec:" + s.command }

// Next returns the next frame. When the process exits cleanly Next returns
// io.EOF; a non-zero exit is returned as an error.
func (s *ExecSource) Next(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case line, ok := <-s.lines:
		if !ok {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.exitErr != nil {
				return Frame{}, fmt.Errorf("detector exited: %w", s.exitErr)
			}
			return Frame{}, io.EOF
		}
		if line.err != nil {
			return Frame{}, line.err
		}
		return DecodeFrame(line.data, time.Now())
	}
}

// Close stops the process and waits for the reader goroutines.
func (s *ExecSource) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

func (s *ExecSource) readStdout(ctx context.Context, stdout io.Reader) {
	defer s.wg.Done()
	defer close(s.lines)

	br := bufio.NewReader(stdout)
	for {
		data, err := readFrameLine(br)
		if errors.Is(err, ErrSkipFrame) {
			s.send(ctx, execLine{err: err})
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Warn("detector stdout read failed", "err", err)
				// Keep the pipe drained so the process can exit.
				_, _ = io.Copy(io.Discard, br)
			}
			break
		}
		if len(data) == 0 {
			continue
		}
		s.send(ctx, execLine{data: data})
	}

	// Wait requires all pipe reads to finish first.
	<-s.stderrDone
	err := s.cmd.Wait()
	if ctx.Err() != nil {
		s.logger.Debug("detector process stopped", "command", s.command)
		return
	}
	if err != nil {
		s.logger.Error("detector process exited", "command", s.command, "err", err)
		s.mu.Lock()
		s.exitErr = err
		s.mu.Unlock()
	}
}

func (s *ExecSource) send(ctx context.Context, l execLine) {
	select {
	case s.lines <- l:
	case <-ctx.Done():
	}
}

// logStderr forwards detector diagnostics at a level inferred from the
// line prefix.
func (s *ExecSource) logStderr(stderr io.Reader) {
	defer s.wg.Done()
	defer close(s.stderrDone)

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "[ERROR]"), strings.Contains(line, "[CRITICAL]"):
			s.logger.Error("detector", "line", line)
		case strings.Contains(line, "[WARNING]"), strings.Contains(line, "[WARN]"):
			s.logger.Warn("detector", "line", line)
		default:
			s.logger.Debug("detector", "line", line)
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn("detector stderr read failed", "err", err)
		_, _ = io.Copy(io.Discard, stderr)
	}
}
