// Package agent invokes the external AI agent processes (planner, coder,
// reviewer) as configured shell commands. The pipeline never talks to a
// model API directly; each step is one subprocess with a prompt file in and
// an output file out.
package agent

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/flowsmith/flowsmith/internal/config"
)

// Role identifies which agent command to run
type Role string

const (
	RolePlanner  Role = "planner"
	RoleCoder    Role = "coder"
	RoleReviewer Role = "reviewer"
)

// ProcessError means the agent process could not be started at all (missing
// binary, unresolvable command). Unlike a failed run, this is not worth
// retrying.
type ProcessError struct {
	Role Role
	Err  error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("%s process could not be started: %v", e.Role, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// Invoker runs one agent step and returns its output text
type Invoker interface {
	Invoke(ctx context.Context, role Role, prompt string) (string, error)
}

// CommandInvoker implements Invoker by running configured shell commands.
// Command templates may reference {prompt_file} and {output_file}; when
// {output_file} is absent the process's stdout is taken as the output.
type CommandInvoker struct {
	Commands config.CommandsConfig
	Dir      string
	WorkDir  string
	Timeout  time.Duration
}

// Invoke writes the prompt to a file, runs the role's command, and returns
// the step output. A command that cannot start yields a *ProcessError; a
// command that starts and fails yields a plain error carrying the output
// tail.
func (iv *CommandInvoker) Invoke(ctx context.Context, role Role, prompt string) (string, error) {
	tmpl, err := iv.commandFor(role)
	if err != nil {
		return "", &ProcessError{Role: role, Err: err}
	}

	stepDir := iv.Dir
	if stepDir == "" {
		stepDir = os.TempDir()
	}
	if err := os.MkdirAll(stepDir, 0o755); err != nil {
		return "", &ProcessError{Role: role, Err: err}
	}

	stamp := time.Now().UTC().Format("20060102-150405.000")
	promptFile := filepath.Join(stepDir, fmt.Sprintf("%s-%s-prompt.md", role, stamp))
	outputFile := filepath.Join(stepDir, fmt.Sprintf("%s-%s-output.md", role, stamp))
	if err := os.WriteFile(promptFile, []byte(prompt), 0o644); err != nil {
		return "", &ProcessError{Role: role, Err: err}
	}

	command := strings.ReplaceAll(tmpl, "{prompt_file}", shellQuote(promptFile))
	wantsFile := strings.Contains(tmpl, "{output_file}")
	command = strings.ReplaceAll(command, "{output_file}", shellQuote(outputFile))

	runCtx := ctx
	if iv.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, iv.Timeout)
		defer cancel()
	}

	log.Printf("agent: running %s step", role)
	start := time.Now()

	cmd := exec.CommandContext(runCtx, "bash", "-lc", command)
	cmd.Dir = iv.WorkDir
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", &ProcessError{Role: role, Err: err}
	}
	runErr := cmd.Wait()
	elapsed := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("%s step timed out after %s", role, iv.Timeout)
	}
	if runErr != nil {
		tail := lastLines(stderr.String()+stdout.String(), 20)
		return "", fmt.Errorf("%s step failed after %s: %w\n%s", role, elapsed.Round(time.Second), runErr, tail)
	}

	log.Printf("agent: %s step finished in %s", role, elapsed.Round(time.Second))

	if wantsFile {
		out, err := os.ReadFile(outputFile)
		if err != nil {
			return "", fmt.Errorf("%s step wrote no output file: %w", role, err)
		}
		return string(out), nil
	}
	return stdout.String(), nil
}

// commandFor resolves the role's command template. A template of the form
// "$VAR" or "${VAR}" is looked up in the environment, so deployments can
// keep agent CLI invocations out of the config file.
func (iv *CommandInvoker) commandFor(role Role) (string, error) {
	var tmpl string
	switch role {
	case RolePlanner:
		tmpl = iv.Commands.Planner
	case RoleCoder:
		tmpl = iv.Commands.Coder
	case RoleReviewer:
		tmpl = iv.Commands.Reviewer
	default:
		return "", fmt.Errorf("unknown role %q", role)
	}

	tmpl = strings.TrimSpace(tmpl)
	if tmpl == "" {
		return "", fmt.Errorf("no command configured for role %q", role)
	}

	if strings.HasPrefix(tmpl, "$") {
		name := strings.TrimPrefix(tmpl, "$")
		name = strings.TrimPrefix(name, "{")
		name = strings.TrimSuffix(name, "}")
		resolved := os.Getenv(name)
		if resolved == "" {
			return "", fmt.Errorf("command for role %q references unset environment variable %s", role, name)
		}
		return resolved, nil
	}
	return tmpl, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
