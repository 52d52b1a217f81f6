package component

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/errorcode"
	"github.com/flowforge/core/internal/state"
)

// DefaultCodeTimeout applies when a code node does not set its own.
const DefaultCodeTimeout = 10 * time.Second

// blockedSourcePatterns is the forbidden-pattern blocklist applied to a code
// node's source before it is ever handed to a subprocess. Not a sandbox
// substitute — a defense-in-depth check on the most common escape attempts.
var blockedSourcePatterns = []string{
	"os.remove", "os.system", "subprocess", "rm -rf", "chmod 777",
	"/etc/passwd", "curl ", "wget ", "socket.", "eval(", "exec(",
}

// codeConfig is the extra_config shape of a code / code_execute node.
type codeConfig struct {
	Interpreter    string   `json:"interpreter"`
	Source         string   `json:"source"`
	TimeoutSeconds int      `json:"timeout_seconds"`
	Args           []string `json:"args"`
}

// CodeFactory builds code and code_execute runners: the node's source runs
// in a subprocess with a restricted PATH, a hard timeout and a source-level
// blocklist, grounded on the teacher's HTTP executor's context-timeout
// pattern, adapted from a network call to a subprocess invocation.
type CodeFactory struct{}

// Build implements Factory.
func (CodeFactory) Build(node *domain.Node) (Runner, error) {
	var cfg codeConfig
	if err := extraConfig(node, &cfg); err != nil {
		return nil, err
	}
	if cfg.Interpreter == "" {
		cfg.Interpreter = "python3"
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = int(DefaultCodeTimeout.Seconds())
	}

	if blocked, pattern := containsBlockedPattern(cfg.Source); blocked {
		return nil, errorcode.New(errorcode.SecurityViolation, fmt.Errorf("code %s: source contains forbidden pattern %q", node.ID, pattern))
	}

	return func(ctx context.Context, _ *state.State) (Delta, error) {
		timeoutCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.TimeoutSeconds)*time.Second)
		defer cancel()

		cmd := exec.CommandContext(timeoutCtx, cfg.Interpreter, append([]string{"-c", cfg.Source}, cfg.Args...)...)
		cmd.Env = []string{"PATH=/usr/bin:/bin"}

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		err := cmd.Run()

		exitCode := 0
		if err != nil {
			if timeoutCtx.Err() != nil {
				return nil, errorcode.New(errorcode.SubprocessTimeout, fmt.Errorf("code %s: timed out after %ds", node.ID, cfg.TimeoutSeconds))
			}
			if exitErr, ok := err.(*exec.ExitError); ok {
				exitCode = exitErr.ExitCode()
			} else {
				return nil, fmt.Errorf("code %s: %w", node.ID, err)
			}
		}

		output := map[string]interface{}{
			"stdout":    stdout.String(),
			"stderr":    stderr.String(),
			"exit_code": exitCode,
		}
		if parsed, ok := lastLineAsJSON(stdout.String()); ok {
			output["result"] = parsed
		}

		return Delta{
			"output":       output,
			"node_outputs": map[string]interface{}{node.ID: output},
		}, nil
	}, nil
}

func containsBlockedPattern(source string) (bool, string) {
	lower := strings.ToLower(source)
	for _, p := range blockedSourcePatterns {
		if strings.Contains(lower, p) {
			return true, p
		}
	}
	return false, ""
}

func lastLineAsJSON(stdout string) (interface{}, bool) {
	lines := strings.Split(strings.TrimRight(stdout, "\n"), "\n")
	if len(lines) == 0 {
		return nil, false
	}
	last := lines[len(lines)-1]
	var v interface{}
	if err := json.Unmarshal([]byte(last), &v); err != nil {
		return nil, false
	}
	return v, true
}
