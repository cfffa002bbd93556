// Package runner is the production collaborator behind the agent
// interfaces: it invokes the configured agent CLI one prompt at a time
// under a pseudo-terminal and captures its output. Sub-agents are the
// same binary with a role preamble prepended to the prompt.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os/exec"
	"strings"
	"time"

	"github.com/creack/pty"

	"github.com/ralph-agent/ralph/internal/agent"
	"github.com/ralph-agent/ralph/internal/config"
	"github.com/ralph-agent/ralph/internal/logging"
)

// Role preambles for named sub-agents.
var preambles = map[string]string{
	agent.WorkerName: "You are an implementation agent. Make the requested change " +
		"directly in the working tree and report what you did.",
	agent.ReviewerName: "You are a meticulous code reviewer. Judge the work strictly " +
		"and answer only in the requested format.",
}

// TurnReporter observes top-level streaming turn boundaries. The bridge
// implements it.
type TurnReporter interface {
	TurnStart(t time.Time)
	TurnEnd()
}

// Runner implements agent.Streamer and agent.Spawner over the agent CLI.
type Runner struct {
	cfg      config.AgentConfig
	logger   *logging.Logger
	reporter TurnReporter
}

// New creates a Runner for the given agent configuration.
func New(cfg config.AgentConfig, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Runner{cfg: cfg, logger: logger}
}

// SetTurnReporter registers an observer for top-level turn boundaries.
// Sub-agent runs are not turns and are not reported.
func (r *Runner) SetTurnReporter(reporter TurnReporter) {
	r.reporter = reporter
}

// StreamAndWait runs the agent CLI with the prompt and waits for the
// full response. Context cancellation kills the process; partial output
// is returned with WasCancelled set rather than as an error.
func (r *Runner) StreamAndWait(ctx context.Context, prompt string) (agent.StreamResult, error) {
	if r.reporter != nil {
		r.reporter.TurnStart(time.Now())
		defer r.reporter.TurnEnd()
	}

	output, runErr := r.run(ctx, prompt)
	if ctx.Err() != nil {
		return agent.StreamResult{Content: output, WasCancelled: true}, nil
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return agent.StreamResult{Content: output, WasInterrupted: true}, nil
		}
		return agent.StreamResult{}, runErr
	}
	return agent.StreamResult{Content: output}, nil
}

// SpawnSubagent runs a named sub-agent to completion. A non-zero exit is
// an agent-level failure (Success=false), not a transport error.
func (r *Runner) SpawnSubagent(ctx context.Context, req agent.SpawnRequest) (agent.SpawnResult, error) {
	preamble, ok := preambles[req.Name]
	if !ok {
		return agent.SpawnResult{}, fmt.Errorf("unknown sub-agent %q", req.Name)
	}

	output, runErr := r.run(ctx, preamble+"\n\n"+req.Prompt)
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) || ctx.Err() != nil {
			r.logger.Warn("sub-agent exited abnormally", "name", req.Name, "error", runErr)
			return agent.SpawnResult{Output: output}, nil
		}
		return agent.SpawnResult{}, runErr
	}
	return agent.SpawnResult{Success: true, Output: output}, nil
}

// run executes one CLI invocation under a pty and returns its combined
// output with terminal line endings normalized.
func (r *Runner) run(ctx context.Context, prompt string) (string, error) {
	args := r.buildArgs(prompt)
	r.logger.Debug("agent invocation", "command", r.cfg.Command, "args", len(args))

	cmd := exec.Command(r.cfg.Command, args...)
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return "", fmt.Errorf("starting %s: %w", r.cfg.Command, err)
	}
	defer ptmx.Close()

	killed := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = cmd.Process.Kill()
		case <-killed:
		}
	}()

	var buf bytes.Buffer
	_, copyErr := io.Copy(&buf, ptmx)
	close(killed)
	waitErr := cmd.Wait()

	output := strings.ReplaceAll(buf.String(), "\r\n", "\n")
	if waitErr != nil {
		return output, waitErr
	}
	// The pty master reads EIO once the child exits; that is the normal
	// end of stream, not a failure.
	var pathErr *fs.PathError
	if copyErr != nil && !errors.As(copyErr, &pathErr) {
		return output, copyErr
	}
	return output, nil
}

// buildArgs assembles the CLI arguments for a one-shot prompt.
func (r *Runner) buildArgs(prompt string) []string {
	var args []string
	if r.cfg.OneShotFlag != "" {
		args = append(args, r.cfg.OneShotFlag)
	}
	if r.cfg.SkipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	}
	if r.cfg.Model != "" {
		args = append(args, "--model", r.cfg.Model)
	}
	return append(args, prompt)
}
