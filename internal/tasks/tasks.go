// Package tasks claims external task IDs for findings and hands created tasks
// to a dispatcher.
package tasks

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/huangsam/codeaudit/schema"
)

// NewAllocator builds the configured allocator.
func NewAllocator(cfg contract.TaskConfig, seq Sequencer) (contract.TaskAllocator, error) {
	switch cfg.Allocator {
	case contract.AllocatorCommand:
		if len(cfg.AllocateCmd) == 0 {
			return nil, contract.UsageErrorf("the command allocator needs --task-allocator-cmd")
		}
		return NewCommandAllocator(cfg.AllocateCmd), nil
	case contract.AllocatorLocal, "":
		return NewLocalAllocator(seq), nil
	default:
		return nil, contract.UsageErrorf("unknown task allocator '%s'", cfg.Allocator)
	}
}

// NewDispatcher builds the configured dispatcher, or nil when dispatch is off.
func NewDispatcher(cfg contract.TaskConfig) contract.TaskDispatcher {
	if !cfg.Dispatch || len(cfg.DispatchCmd) == 0 {
		return nil
	}
	return NewCommandDispatcher(cfg.DispatchCmd)
}

// CommandAllocator runs an executable per finding. The finding is written to
// its stdin as JSON and exported as CODEAUDIT_* variables; it answers with
// task_id=<id> and an optional ref=<ref> line on stdout.
type CommandAllocator struct {
	argv []string
}

var _ contract.TaskAllocator = &CommandAllocator{} // Compile-time check

// NewCommandAllocator creates a command allocator.
func NewCommandAllocator(argv []string) *CommandAllocator {
	return &CommandAllocator{argv: argv}
}

// Claim implements contract.TaskAllocator.
func (a *CommandAllocator) Claim(ctx context.Context, pf schema.ProcessedFinding) (contract.TaskClaim, error) {
	payload, err := json.Marshal(pf)
	if err != nil {
		return contract.TaskClaim{}, fmt.Errorf("failed to encode finding %d: %w", pf.ID, err)
	}

	cmd := exec.CommandContext(ctx, a.argv[0], a.argv[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Env = append(os.Environ(),
		"CODEAUDIT_FINDING_ID="+strconv.FormatInt(pf.ID, 10),
		"CODEAUDIT_SEVERITY="+string(pf.Severity),
		"CODEAUDIT_CATEGORY="+string(pf.Category),
		"CODEAUDIT_PATH="+pf.Path,
		"CODEAUDIT_LINE="+strconv.Itoa(pf.Line),
		"CODEAUDIT_DESCRIPTION="+pf.Description,
	)

	out, err := run(cmd)
	if err != nil {
		return contract.TaskClaim{}, fmt.Errorf("task allocator failed for finding %d: %w", pf.ID, err)
	}
	return ParseClaim(out)
}

// ParseClaim reads task_id= and ref= lines. Other lines are ignored.
func ParseClaim(out []byte) (contract.TaskClaim, error) {
	var claim contract.TaskClaim
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "task_id":
			claim.ID = strings.TrimSpace(value)
		case "ref":
			claim.Ref = strings.TrimSpace(value)
		}
	}
	if err := scanner.Err(); err != nil {
		return contract.TaskClaim{}, fmt.Errorf("failed to read allocator output: %w", err)
	}
	if claim.ID == "" {
		return contract.TaskClaim{}, errors.New("allocator output has no task_id line")
	}
	return claim, nil
}

// Sequencer hands out never-reused sequence numbers.
type Sequencer interface {
	NextTaskSequence(ctx context.Context) (int64, error)
}

// LocalAllocator names tasks t<N> from a store-backed sequence, for offline use.
type LocalAllocator struct {
	seq Sequencer
}

var _ contract.TaskAllocator = &LocalAllocator{} // Compile-time check

// NewLocalAllocator creates a local allocator.
func NewLocalAllocator(seq Sequencer) *LocalAllocator {
	return &LocalAllocator{seq: seq}
}

// Claim implements contract.TaskAllocator.
func (a *LocalAllocator) Claim(ctx context.Context, _ schema.ProcessedFinding) (contract.TaskClaim, error) {
	n, err := a.seq.NextTaskSequence(ctx)
	if err != nil {
		return contract.TaskClaim{}, fmt.Errorf("failed to allocate local task id: %w", err)
	}
	return contract.TaskClaim{ID: "t" + strconv.FormatInt(n, 10)}, nil
}

// CommandDispatcher runs an executable with the created task IDs as arguments.
type CommandDispatcher struct {
	argv []string
}

var _ contract.TaskDispatcher = &CommandDispatcher{} // Compile-time check

// NewCommandDispatcher creates a command dispatcher.
func NewCommandDispatcher(argv []string) *CommandDispatcher {
	return &CommandDispatcher{argv: argv}
}

// Dispatch implements contract.TaskDispatcher.
func (d *CommandDispatcher) Dispatch(ctx context.Context, taskIDs []string) error {
	if len(taskIDs) == 0 {
		return nil
	}
	args := append(append([]string{}, d.argv[1:]...), taskIDs...)
	if _, err := run(exec.CommandContext(ctx, d.argv[0], args...)); err != nil {
		return fmt.Errorf("task dispatcher failed: %w", err)
	}
	return nil
}

// run executes cmd and returns its stdout. A non-zero exit is an error
// carrying the trimmed stderr.
func run(cmd *exec.Cmd) ([]byte, error) {
	out, err := cmd.Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		stderr := strings.TrimSpace(string(exitErr.Stderr))
		return nil, fmt.Errorf("%s exited with %d: %s", cmd.Path, exitErr.ExitCode(), stderr)
	} else if err != nil {
		return nil, fmt.Errorf("failed to run %s: %w", cmd.Path, err)
	}
	return out, nil
}
