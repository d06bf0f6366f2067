package engine

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/forgekit/forge/internal/runstate"
)

// noOutputWatchdogSecs kills an iteration whose streams have been silent
// this long, catching engines that hang without ever hitting the wall clock.
const noOutputWatchdogSecs = 120

type streamSource int

const (
	sourceStdout streamSource = iota
	sourceStderr
)

type streamEvent struct {
	source streamSource
	chunk  string
	closed bool
}

// Execute runs one engine invocation to completion. It fails only on
// spawn or pipe-capture failure; timeouts and non-zero exits come back in
// the RunResult. The call returns only after the child has exited and both
// stream readers have drained, no matter which path ended the run.
func Execute(e Engine, params ExecParams, heartbeat func() error) (RunResult, error) {
	cfg := params.Config
	args := e.BuildArgs(params)

	timeout := params.Timeout
	if timeout == 0 && cfg.TimeoutMinutes > 0 {
		timeout = time.Duration(cfg.TimeoutMinutes) * time.Minute
	}
	watchdog := params.Watchdog
	if watchdog == 0 && timeout > 0 {
		watchdog = noOutputWatchdogSecs * time.Second
	}

	cmd := exec.Command(cfg.EngineCmd, args...)
	cmd.Dir = params.Cwd

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return RunResult{}, fmt.Errorf("capturing stdout of %s: %w", cfg.EngineCmd, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return RunResult{}, fmt.Errorf("capturing stderr of %s: %w", cfg.EngineCmd, err)
	}
	if err := cmd.Start(); err != nil {
		return RunResult{}, fmt.Errorf("executing %s: %w", cfg.EngineCmd, err)
	}

	events := make(chan streamEvent, 64)
	var readers errgroup.Group
	readers.Go(func() error { return readStream(stdout, sourceStdout, events) })
	readers.Go(func() error { return readStream(stderr, sourceStderr, events) })

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	started := time.Now()
	lastOutputAt := started
	var result RunResult
	var stdoutBuf, stderrBuf []byte
	var hbErr error
	killed := false
	openStreams := 2

	kill := func() {
		if !killed {
			killed = true
			_ = cmd.Process.Kill()
		}
	}
	beat := func() {
		if hbErr == nil {
			if err := heartbeat(); err != nil {
				hbErr = err
				kill()
			}
		}
	}

	// Killing the child closes its pipe ends; the readers hit EOF, both
	// streams report closed, and the loop falls through to Wait.
	for openStreams > 0 {
		select {
		case ev := <-events:
			beat()
			if ev.closed {
				openStreams--
				continue
			}
			lastOutputAt = time.Now()
			switch ev.source {
			case sourceStdout:
				stdoutBuf = append(stdoutBuf, ev.chunk...)
				_ = runstate.AppendHistory(params.LiveLogPath, ev.chunk)
			case sourceStderr:
				stderrBuf = append(stderrBuf, ev.chunk...)
				_ = runstate.AppendHistory(params.LiveLogPath, "[stderr] "+ev.chunk)
			}
		case <-ticker.C:
			beat()
			if killed {
				continue
			}
			if timeout > 0 && time.Since(started) >= timeout {
				result.TimedOut = true
				kill()
			} else if watchdog > 0 && time.Since(lastOutputAt) >= watchdog {
				result.TimedOut = true
				kill()
				_ = runstate.AppendHistory(params.LiveLogPath, fmt.Sprintf(
					"[forge] no output watchdog triggered after %s; iteration killed\n",
					watchdog))
			}
		}
	}

	_ = readers.Wait()
	result.ExitOK = cmd.Wait() == nil

	result.Stdout = string(stdoutBuf)
	result.Stderr = string(stderrBuf)
	if hbErr != nil {
		return RunResult{}, hbErr
	}
	return result, nil
}

func readStream(r io.Reader, source streamSource, events chan<- streamEvent) error {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			events <- streamEvent{source: source, chunk: line}
		}
		if err != nil {
			events <- streamEvent{source: source, closed: true}
			return nil
		}
	}
}
