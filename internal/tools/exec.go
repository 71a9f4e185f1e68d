package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	shellwords "github.com/mattn/go-shellwords"
)

const (
	execDefaultTimeout = 60 * time.Second
	execMaxOutput      = 30000
)

// ExecTool runs a shell command on the host and returns combined output.
// Commands are tokenized with shell-style word splitting rather than handed
// to a shell, so redirects and pipes are not available.
type ExecTool struct {
	timeout   time.Duration
	workDir   string
	sensitive bool
	name      string
	desc      string
}

func NewExecTool(workDir string, timeout time.Duration) *ExecTool {
	if timeout <= 0 {
		timeout = execDefaultTimeout
	}
	return &ExecTool{
		timeout: timeout,
		workDir: workDir,
		name:    "exec",
		desc:    "Run a command on the host and return its output. No shell features (pipes, redirects).",
	}
}

// NewSudoTool returns the privileged variant. It prefixes commands with
// sudo and is marked sensitive, so every call goes through human approval.
func NewSudoTool(workDir string, timeout time.Duration) *ExecTool {
	t := NewExecTool(workDir, timeout)
	t.sensitive = true
	t.name = "sudo_exec"
	t.desc = "Run a command with root privileges via sudo. Requires explicit approval for every call."
	return t
}

func (t *ExecTool) Name() string        { return t.name }
func (t *ExecTool) Description() string { return t.desc }
func (t *ExecTool) Sensitive() bool     { return t.sensitive }

func (t *ExecTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "Command line to run, e.g. \"ls -la /tmp\".",
			},
			"timeout_sec": map[string]interface{}{
				"type":        "number",
				"description": "Seconds before the command is killed.",
			},
		},
		"required": []string{"command"},
	}
}

func (t *ExecTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	command, _ := args["command"].(string)
	if strings.TrimSpace(command) == "" {
		return ErrorResult("command is required")
	}

	words, err := shellwords.Parse(command)
	if err != nil {
		return ErrorResult(fmt.Sprintf("cannot parse command: %v", err))
	}
	if len(words) == 0 {
		return ErrorResult("command is empty")
	}
	if t.sensitive && words[0] != "sudo" {
		words = append([]string{"sudo", "-n"}, words...)
	}

	timeout := t.timeout
	if ts, ok := args["timeout_sec"].(float64); ok && ts > 0 {
		timeout = time.Duration(ts * float64(time.Second))
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, words[0], words[1:]...)
	cmd.Dir = t.workDir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	runErr := cmd.Run()
	output := out.String()
	if len(output) > execMaxOutput {
		output = output[:execMaxOutput] + "\n... (output truncated)"
	}

	if ctx.Err() == context.DeadlineExceeded {
		return ErrorResult(fmt.Sprintf("command timed out after %s\n%s", timeout, output))
	}
	if runErr != nil {
		return ErrorResult(fmt.Sprintf("command failed: %v\n%s", runErr, output)).WithError(runErr)
	}
	if output == "" {
		output = "(no output)"
	}
	return NewResult(output)
}
