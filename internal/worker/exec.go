package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Command runs each task as a subprocess, streaming its stdout lines into
// the sink as log events. The task description is appended as the final
// argument. Cancellation kills the process group via the exec context.
type Command struct {
	// Argv is the program and fixed leading arguments, e.g.
	// ["browser-agent", "--headless"].
	Argv []string
}

func (c *Command) Run(ctx context.Context, task string, sink Sink) (string, error) {
	if len(c.Argv) == 0 {
		return "", errors.New("no worker command configured")
	}

	args := append(append([]string(nil), c.Argv[1:]...), task)
	cmd := exec.CommandContext(ctx, c.Argv[0], args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("starting worker command: %w", err)
	}

	var lastLine string
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		lastLine = line
		sink.Log("info", line)
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("worker command: %w", err)
	}

	// The final output line is the command's result payload.
	return lastLine, nil
}
