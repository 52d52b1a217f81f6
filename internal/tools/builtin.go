package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"time"

	"github.com/expr-lang/expr"

	"github.com/flowforge/core/internal/component"
	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/errorcode"
	"github.com/flowforge/core/internal/state"
)

// calculatorTool evaluates an arithmetic expression with expr-lang/expr,
// the same evaluator internal/condition compiles edge conditions with.
// Grounded on the teacher's function_call.go adapters, which wrap a single
// pure computation behind the tool-calling contract.
type calculatorTool struct{}

func buildCalculator(*domain.Node) (component.Tool, error) { return calculatorTool{}, nil }

func (calculatorTool) Spec() component.ToolSpec {
	return component.ToolSpec{
		Name:        "calculator",
		Description: "Evaluates an arithmetic expression and returns the numeric result.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"expression":{"type":"string"}},"required":["expression"]}`),
	}
}

func (calculatorTool) Invoke(_ context.Context, _ *state.State, args json.RawMessage) (interface{}, error) {
	var in struct {
		Expression string `json:"expression"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("calculator: decode args: %w", err)
	}
	program, err := expr.Compile(in.Expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, errorcode.New(errorcode.ValidationError, fmt.Errorf("calculator: invalid expression: %w", err))
	}
	result, err := expr.Run(program, map[string]interface{}{})
	if err != nil {
		return nil, errorcode.New(errorcode.ValidationError, fmt.Errorf("calculator: evaluation failed: %w", err))
	}
	return map[string]interface{}{"result": result}, nil
}

// datetimeTool returns the current time in a requested layout/location,
// also a pure computation in the teacher's function_call.go style.
type datetimeTool struct{}

func buildDatetime(*domain.Node) (component.Tool, error) { return datetimeTool{}, nil }

func (datetimeTool) Spec() component.ToolSpec {
	return component.ToolSpec{
		Name:        "datetime",
		Description: "Returns the current date/time, optionally formatted with a Go reference layout.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"layout":{"type":"string"},"timezone":{"type":"string"}}}`),
	}
}

func (datetimeTool) Invoke(_ context.Context, _ *state.State, args json.RawMessage) (interface{}, error) {
	var in struct {
		Layout   string `json:"layout"`
		Timezone string `json:"timezone"`
	}
	_ = json.Unmarshal(args, &in)

	loc := time.UTC
	if in.Timezone != "" {
		l, err := time.LoadLocation(in.Timezone)
		if err != nil {
			return nil, errorcode.New(errorcode.ValidationError, fmt.Errorf("datetime: unknown timezone %q", in.Timezone))
		}
		loc = l
	}
	layout := time.RFC3339
	if in.Layout != "" {
		layout = in.Layout
	}
	return map[string]interface{}{"now": time.Now().In(loc).Format(layout)}, nil
}

// httpRequestTool performs an outbound HTTP call on the agent's behalf.
// Grounded on the teacher's pkg/executor/builtin/http.go HTTPExecutor.
type httpRequestTool struct {
	client *http.Client
}

func buildHTTPRequest(*domain.Node) (component.Tool, error) {
	return httpRequestTool{client: &http.Client{Timeout: 30 * time.Second}}, nil
}

func (httpRequestTool) Spec() component.ToolSpec {
	return component.ToolSpec{
		Name:        "http_request",
		Description: "Makes an HTTP request and returns the status code and response body.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"method":{"type":"string"},"url":{"type":"string"},"headers":{"type":"object"},"body":{"type":"string"}},"required":["url"]}`),
	}
}

func (t httpRequestTool) Invoke(ctx context.Context, _ *state.State, args json.RawMessage) (interface{}, error) {
	var in struct {
		Method  string            `json:"method"`
		URL     string            `json:"url"`
		Headers map[string]string `json:"headers"`
		Body    string            `json:"body"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("http_request: decode args: %w", err)
	}
	if in.Method == "" {
		in.Method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, in.Method, in.URL, bytes.NewBufferString(in.Body))
	if err != nil {
		return nil, errorcode.New(errorcode.ValidationError, fmt.Errorf("http_request: build request: %w", err))
	}
	for k, v := range in.Headers {
		req.Header.Set(k, v)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, errorcode.New(errorcode.ProviderError, fmt.Errorf("http_request: %w", err))
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("http_request: read body: %w", err)
	}
	return map[string]interface{}{
		"status_code": resp.StatusCode,
		"body":        string(body),
	}, nil
}

// runCommandTool executes a fixed, node-configured shell command with a
// hard timeout. Grounded on internal/component.CodeFactory's subprocess
// sandbox — unlike a code node, the command line and its args are fixed
// at node-build time, not sourced from the tool call's own arguments, so
// the agent only supplies the command's stdin.
type runCommandTool struct {
	command string
	args    []string
	timeout time.Duration
}

type runCommandConfig struct {
	Command        string   `json:"command"`
	Args           []string `json:"args"`
	TimeoutSeconds int      `json:"timeout_seconds"`
}

func buildRunCommand(node *domain.Node) (component.Tool, error) {
	var cfg runCommandConfig
	if node.ComponentConfig != nil && len(node.ComponentConfig.ExtraConfig) > 0 {
		if err := json.Unmarshal(node.ComponentConfig.ExtraConfig, &cfg); err != nil {
			return nil, fmt.Errorf("run_command %s: decode extra_config: %w", node.ID, err)
		}
	}
	if cfg.Command == "" {
		return nil, &domain.ValidationError{Field: "extra_config.command", Message: "run_command requires a command"}
	}
	timeout := 10 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return runCommandTool{command: cfg.Command, args: cfg.Args, timeout: timeout}, nil
}

func (runCommandTool) Spec() component.ToolSpec {
	return component.ToolSpec{
		Name:        "run_command",
		Description: "Runs the node's configured command, piping the given text to its stdin.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"stdin":{"type":"string"}}}`),
	}
}

func (t runCommandTool) Invoke(ctx context.Context, _ *state.State, args json.RawMessage) (interface{}, error) {
	var in struct {
		Stdin string `json:"stdin"`
	}
	_ = json.Unmarshal(args, &in)

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.command, t.args...)
	cmd.Stdin = bytes.NewBufferString(in.Stdin)
	cmd.Env = []string{"PATH=/usr/bin:/bin"}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errorcode.New(errorcode.SubprocessTimeout, fmt.Errorf("run_command: timed out"))
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("run_command: %w", err)
		}
	}
	return map[string]interface{}{
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
		"exit_code": exitCode,
	}, nil
}
